// Package catalog maintains the list of known Trino versions.
package catalog

import (
	"context"
	"errors"
	"slices"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/kringz/sidebyside/pkg/model"
	"github.com/kringz/sidebyside/pkg/version"
)

var errNoIndexer = errors.New("no release index configured")

// Store persists version entries.
type Store interface {
	AddVersions(entries []model.VersionEntry) (int64, error)
	UpsertVersions(entries []model.VersionEntry) error
	ListVersions() ([]model.VersionEntry, error)
}

// Indexer discovers published releases.
type Indexer interface {
	ScrapeReleaseIndex(ctx context.Context) ([]model.VersionEntry, error)
}

// Options configure a Catalog.
type Options struct {
	// Seed versions are stored on first start and listed while the store is
	// empty.
	Seed []string
	LTS  []string
	// URLFor returns the release-notes URL of a version.
	URLFor func(v string) string
}

// Catalog lists versions from the store, the release index and the seed list.
type Catalog struct {
	store   Store
	indexer Indexer
	opts    Options
	log     *zap.Logger
}

// New returns a Catalog. indexer may be nil, in which case Sync fails.
func New(store Store, indexer Indexer, opts Options, log *zap.Logger) *Catalog {
	if log == nil {
		log = zap.NewNop()
	}
	return &Catalog{store: store, indexer: indexer, opts: opts, log: log}
}

// Seed stores every seed version not yet known and returns how many were
// added.
func (c *Catalog) Seed() (int64, error) {
	added, err := c.store.AddVersions(c.seedEntries())
	if err != nil {
		return 0, err
	}
	if added > 0 {
		c.log.Info("Seeded version catalog", zap.Int64("added", added))
	}
	return added, nil
}

// Sync scrapes the release index and stores every version found there.
func (c *Catalog) Sync(ctx context.Context) (int, error) {
	if c.indexer == nil {
		return 0, errNoIndexer
	}
	entries, err := c.indexer.ScrapeReleaseIndex(ctx)
	if err != nil {
		return 0, err
	}
	for i := range entries {
		entries[i].LTS = c.isLTS(entries[i].Version)
	}
	if err := c.store.UpsertVersions(entries); err != nil {
		return 0, err
	}
	c.log.Info("Synced version catalog from release index", zap.Int("versions", len(entries)))
	return len(entries), nil
}

// List returns the known versions, newest first. While the store holds no
// versions the seed list is returned.
func (c *Catalog) List() ([]model.VersionEntry, error) {
	entries, err := c.store.ListVersions()
	if err != nil {
		return nil, err
	}
	if len(entries) > 0 {
		return entries, nil
	}
	c.log.Debug("Version catalog is empty, listing seed versions")
	seed := c.seedEntries()
	slices.SortStableFunc(seed, func(a, b model.VersionEntry) int {
		return version.Compare(b.Version, a.Version)
	})
	return seed, nil
}

func (c *Catalog) seedEntries() []model.VersionEntry {
	versions := lo.Uniq(lo.FilterMap(c.opts.Seed, func(s string, _ int) (string, bool) {
		v, err := version.CanonicalString(s)
		if err != nil {
			c.log.Warn("Ignoring invalid seed version", zap.String("version", s))
			return "", false
		}
		return v, true
	}))
	return lo.Map(versions, func(v string, _ int) model.VersionEntry {
		entry := model.VersionEntry{Version: v, LTS: c.isLTS(v)}
		if c.opts.URLFor != nil {
			entry.URL = c.opts.URLFor(v)
		}
		return entry
	})
}

func (c *Catalog) isLTS(v string) bool {
	return slices.ContainsFunc(c.opts.LTS, func(l string) bool {
		return version.Compare(l, v) == 0
	})
}
