// Package comparator aggregates release-note changes between two Trino
// versions and caches the result per version pair.
package comparator

import (
	"context"
	"encoding/json"
	"time"

	"github.com/juju/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kringz/sidebyside/pkg/model"
	"github.com/kringz/sidebyside/pkg/scraper"
	"github.com/kringz/sidebyside/pkg/version"
)

// CodeRangeTooLarge is the error code for ranges above the configured limit.
const CodeRangeTooLarge = version.CodeRangeTooLarge

const (
	// DefaultTTL is how long a comparison stays cached when no TTL is set.
	DefaultTTL = 30 * 24 * time.Hour
	// DefaultMaxVersions bounds a comparison when no limit is set.
	DefaultMaxVersions = 200
	// DefaultBuildTimeout bounds a comparison that is no longer tied to the
	// request that started it.
	DefaultBuildTimeout = 10 * time.Minute
)

// Fetcher retrieves the release notes of one version.
type Fetcher interface {
	Fetch(ctx context.Context, v string) (*model.Release, error)
}

// Classifier turns release notes into change items.
type Classifier interface {
	Classify(release *model.Release) (*model.VersionChanges, error)
}

// Store persists comparisons.
type Store interface {
	GetComparison(from, to string) (*model.ComparisonCache, error)
	PutComparison(entry *model.ComparisonCache) error
	DeleteComparison(from, to string) error
	PurgeExpired(now time.Time) (int64, error)
	ClearComparisons() (int64, error)
	KnownVersions() ([]string, error)
}

// Options tune a Comparator.
type Options struct {
	TTL time.Duration
	// IncludeFromVersion keeps the notes of the starting version.
	IncludeFromVersion bool
	// MaxVersions bounds the number of versions fetched for one pair,
	// DefaultMaxVersions when zero.
	MaxVersions int
	// BuildTimeout caps one computation, DefaultBuildTimeout when zero.
	BuildTimeout time.Duration
	Clock        clock.Clock
	// Registerer receives the comparator metrics; nil leaves them
	// unregistered.
	Registerer prometheus.Registerer
}

// Comparator computes and caches comparisons.
type Comparator struct {
	fetcher    Fetcher
	classifier Classifier
	store      Store
	opts       Options
	clock      clock.Clock
	log        *zap.Logger
	metrics    *metrics
	group      singleflight.Group
}

// New returns a Comparator.
func New(fetcher Fetcher, classifier Classifier, store Store, opts Options, log *zap.Logger) *Comparator {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.MaxVersions <= 0 {
		opts.MaxVersions = DefaultMaxVersions
	}
	if opts.BuildTimeout <= 0 {
		opts.BuildTimeout = DefaultBuildTimeout
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.WallClock
	}
	return &Comparator{
		fetcher:    fetcher,
		classifier: classifier,
		store:      store,
		opts:       opts,
		clock:      clk,
		log:        log,
		metrics:    newMetrics(opts.Registerer),
	}
}

// Compare returns the changes between from and to, from the cache when an
// unexpired entry exists. The pair may be given in either order.
func (c *Comparator) Compare(ctx context.Context, from, to string) (*model.Comparison, error) {
	return c.compare(ctx, from, to, false)
}

// Refresh recomputes the comparison, ignoring any cached entry.
func (c *Comparator) Refresh(ctx context.Context, from, to string) (*model.Comparison, error) {
	return c.compare(ctx, from, to, true)
}

// Invalidate drops the cached entry for the pair.
func (c *Comparator) Invalidate(from, to string) error {
	f, t, _, err := normalizePair(from, to)
	if err != nil {
		return err
	}
	return c.store.DeleteComparison(f, t)
}

// PurgeExpired drops every expired cache entry.
func (c *Comparator) PurgeExpired() (int64, error) {
	return c.store.PurgeExpired(c.clock.Now())
}

// Clear drops every cache entry.
func (c *Comparator) Clear() (int64, error) {
	return c.store.ClearComparisons()
}

func (c *Comparator) compare(ctx context.Context, from, to string, force bool) (*model.Comparison, error) {
	f, t, swapped, err := normalizePair(from, to)
	if err != nil {
		return nil, err
	}
	if swapped {
		c.log.Debug("Swapping version pair into chronological order",
			zap.String("from", from), zap.String("to", to))
	}

	if !force {
		if cached := c.lookup(f, t); cached != nil {
			cached.Swapped = swapped
			return cached, nil
		}
	}

	key := f + ".." + t
	if force {
		key = "refresh:" + key
	}
	// The build outlives the caller that started it; others may be waiting
	// on it and its result is cached either way.
	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		buildCtx, cancel := context.WithTimeout(detached, c.opts.BuildTimeout)
		defer cancel()
		return c.build(buildCtx, f, t)
	})
	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, oops.With("from", f, "to", t).Wrapf(ctx.Err(), "comparison abandoned")
	}
	if res.Err != nil {
		return nil, res.Err
	}
	if res.Shared {
		c.log.Debug("Shared in-flight comparison", zap.String("pair", key))
	}
	// the computed value is shared between callers, so hand out copies
	out := *res.Val.(*model.Comparison)
	out.Swapped = swapped
	return &out, nil
}

func (c *Comparator) lookup(from, to string) *model.Comparison {
	entry, err := c.store.GetComparison(from, to)
	if err != nil {
		c.log.Warn("Failed to read cached comparison", zap.String("from", from), zap.String("to", to), zap.Error(err))
		return nil
	}
	if entry == nil {
		c.metrics.cache.WithLabelValues("miss").Inc()
		return nil
	}
	if entry.Expired(c.clock.Now()) {
		c.metrics.cache.WithLabelValues("expired").Inc()
		return nil
	}
	var cmp model.Comparison
	if err := json.Unmarshal(entry.Data, &cmp); err != nil {
		c.log.Warn("Discarding unreadable cached comparison",
			zap.String("from", from), zap.String("to", to), zap.Error(err))
		c.metrics.cache.WithLabelValues("miss").Inc()
		return nil
	}
	c.metrics.cache.WithLabelValues("hit").Inc()
	cmp.Cached = true
	cmp.ExpiresAt = entry.ExpiresAt
	return &cmp
}

// build fetches and classifies every version of the pair and stores the
// result. Fetches run one after another.
func (c *Comparator) build(ctx context.Context, from, to string) (*model.Comparison, error) {
	known, err := c.store.KnownVersions()
	if err != nil {
		c.log.Warn("Failed to load known versions", zap.Error(err))
	}
	// the starting version is counted by Range but not fetched
	dropFrom := from != to && !c.opts.IncludeFromVersion
	limit := c.opts.MaxVersions
	if dropFrom {
		limit++
	}
	versions, err := version.Range(from, to, known, limit)
	if err != nil {
		return nil, err
	}
	if dropFrom {
		versions = versions[1:]
	}

	c.log.Info("Comparing versions",
		zap.String("from", from),
		zap.String("to", to),
		zap.Strings("versions", versions))

	cmp := &model.Comparison{
		FromVersion:     from,
		ToVersion:       to,
		VersionsChecked: versions,
		MissingVersions: []string{},
		Versions:        []model.VersionChanges{},
		Changes:         []model.ChangeItem{},
	}
	for _, v := range versions {
		release, err := c.fetcher.Fetch(ctx, v)
		if err != nil {
			if errorCode(err) == scraper.CodeNotFound {
				c.metrics.fetches.WithLabelValues("missing").Inc()
				c.log.Warn("No release notes for version", zap.String("version", v))
				cmp.MissingVersions = append(cmp.MissingVersions, v)
				continue
			}
			c.metrics.fetches.WithLabelValues("error").Inc()
			return nil, oops.Code(scraper.CodeFetchFailed).With("version", v).
				Wrapf(err, "failed to fetch release notes for version %s", v)
		}
		c.metrics.fetches.WithLabelValues("ok").Inc()

		changes, err := c.classifier.Classify(release)
		if err != nil {
			c.metrics.skipped.Add(1)
			c.log.Warn("Skipping unparseable release notes", zap.String("version", v), zap.Error(err))
			continue
		}
		if changes.Skipped > 0 {
			c.metrics.skipped.Add(float64(changes.Skipped))
		}
		cmp.Versions = append(cmp.Versions, *changes)
		for _, item := range changes.Items {
			cmp.Changes = append(cmp.Changes, item)
			cmp.Summary.Add(item)
		}
	}

	now := c.clock.Now().UTC()
	cmp.GeneratedAt = now
	cmp.ExpiresAt = now.Add(c.opts.TTL)
	c.save(cmp)
	return cmp, nil
}

func (c *Comparator) save(cmp *model.Comparison) {
	data, err := json.Marshal(cmp)
	if err != nil {
		c.log.Error("Failed to encode comparison", zap.Error(err))
		return
	}
	err = c.store.PutComparison(&model.ComparisonCache{
		FromVersion: cmp.FromVersion,
		ToVersion:   cmp.ToVersion,
		Data:        data,
		CreatedAt:   cmp.GeneratedAt,
		ExpiresAt:   cmp.ExpiresAt,
	})
	if err != nil {
		c.log.Error("Failed to cache comparison",
			zap.String("from", cmp.FromVersion), zap.String("to", cmp.ToVersion), zap.Error(err))
		return
	}
	c.log.Info("Cached comparison",
		zap.String("from", cmp.FromVersion),
		zap.String("to", cmp.ToVersion),
		zap.Int("changes", len(cmp.Changes)),
		zap.Time("expires", cmp.ExpiresAt))
}

// normalizePair canonicalizes both versions and orders them ascending.
func normalizePair(from, to string) (string, string, bool, error) {
	f, err := version.CanonicalString(from)
	if err != nil {
		return "", "", false, err
	}
	t, err := version.CanonicalString(to)
	if err != nil {
		return "", "", false, err
	}
	if version.Compare(f, t) > 0 {
		return t, f, true, nil
	}
	return f, t, false, nil
}

func errorCode(err error) any {
	if oe, ok := oops.AsOops(err); ok {
		return oe.Code()
	}
	return nil
}

// ErrorCode returns the machine code attached to err, or "" if there is none.
func ErrorCode(err error) string {
	if code, ok := errorCode(err).(string); ok {
		return code
	}
	return ""
}
