// Package scraper downloads Trino release-notes pages and the release index
// with colly.
package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/kringz/sidebyside/pkg/model"
	"github.com/kringz/sidebyside/pkg/version"
)

// Error codes reported by the fetcher.
const (
	CodeNotFound    = "not_found"
	CodeFetchFailed = "fetch_failed"
)

// Options configures a Fetcher.
type Options struct {
	BaseURL     string
	URLPattern  string // {base} and {version} are substituted
	IndexURL    string
	UserAgent   string
	Timeout     time.Duration
	Retries     uint64
	BackoffBase time.Duration

	// Transport replaces the HTTP transport, mostly for tests.
	Transport http.RoundTripper
}

// Fetcher downloads Trino release-notes pages.
type Fetcher struct {
	opts    Options
	log     *zap.Logger
	domains []string
	now     func() time.Time
}

// New returns a Fetcher for the given release-notes location.
func New(opts Options, log *zap.Logger) (*Fetcher, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.URLPattern == "" {
		opts.URLPattern = "{base}/release-{version}.html"
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = 500 * time.Millisecond
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "sidebyside/1.0 (+https://github.com/kringz/sidebyside)"
	}

	f := &Fetcher{opts: opts, log: log, now: time.Now}
	for _, raw := range []string{f.URL("0"), opts.IndexURL} {
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || u.Hostname() == "" {
			return nil, fmt.Errorf("invalid release notes URL %q", raw)
		}
		if !slices.Contains(f.domains, u.Hostname()) {
			f.domains = append(f.domains, u.Hostname())
		}
	}
	return f, nil
}

// URL returns the release-notes URL of a version.
func (f *Fetcher) URL(v string) string {
	r := strings.NewReplacer(
		"{base}", strings.TrimSuffix(f.opts.BaseURL, "/"),
		"{version}", v,
	)
	return r.Replace(f.opts.URLPattern)
}

func (f *Fetcher) collector(ctx context.Context) *colly.Collector {
	c := colly.NewCollector(
		colly.AllowedDomains(f.domains...),
		colly.AllowURLRevisit(),
		colly.StdlibContext(ctx),
		colly.UserAgent(f.opts.UserAgent),
	)
	if f.opts.Timeout > 0 {
		c.SetRequestTimeout(f.opts.Timeout)
	}
	if f.opts.Transport != nil {
		c.WithTransport(f.opts.Transport)
	}
	return c
}

// Fetch downloads the release notes of one version, retrying transient
// failures. A missing page is reported with CodeNotFound.
func (f *Fetcher) Fetch(ctx context.Context, v string) (*model.Release, error) {
	target := f.URL(v)
	backoff := retry.WithMaxRetries(f.opts.Retries, retry.NewExponential(f.opts.BackoffBase))

	attempt := 0
	release, err := retry.DoValue(ctx, backoff, func(ctx context.Context) (*model.Release, error) {
		attempt++
		resp, status, err := f.visit(ctx, http.MethodGet, target)
		if err == nil {
			release := &model.Release{
				Version:   v,
				URL:       target,
				Body:      resp.Body,
				FetchedAt: f.now(),
			}
			if resp.Headers != nil {
				release.ContentType = resp.Headers.Get("Content-Type")
			}
			return release, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if status == http.StatusNotFound {
			return nil, oops.Code(CodeNotFound).With("version", v, "url", target).Errorf("no release notes for version %s", v)
		}
		f.log.Warn("Release notes request failed",
			zap.String("version", v),
			zap.String("url", target),
			zap.Int("status", status),
			zap.Int("attempt", attempt),
			zap.Error(err))
		if transient(status) {
			return nil, retry.RetryableError(err)
		}
		return nil, err
	})
	if err != nil {
		if oe, ok := oops.AsOops(err); ok && oe.Code() == CodeNotFound {
			return nil, err
		}
		return nil, oops.Code(CodeFetchFailed).With("version", v, "url", target, "attempts", attempt).
			Wrapf(err, "failed to fetch release notes for version %s", v)
	}

	f.log.Debug("Fetched release notes",
		zap.String("version", v),
		zap.Int("bytes", len(release.Body)),
		zap.Int("attempts", attempt))
	return release, nil
}

// Probe reports whether a release-notes page exists for the version.
func (f *Fetcher) Probe(ctx context.Context, v string) (bool, error) {
	_, status, err := f.visit(ctx, http.MethodHead, f.URL(v))
	switch {
	case err == nil:
		return true, nil
	case status == http.StatusNotFound:
		return false, nil
	}
	return false, oops.Code(CodeFetchFailed).With("version", v).Wrapf(err, "failed to probe version %s", v)
}

// visit performs one request and returns the response, or the HTTP status
// (0 for transport errors) with the error.
func (f *Fetcher) visit(ctx context.Context, method, target string) (*colly.Response, int, error) {
	c := f.collector(ctx)

	var resp *colly.Response
	status := 0
	c.OnResponse(func(r *colly.Response) {
		resp = r
	})
	c.OnError(func(r *colly.Response, err error) {
		status = r.StatusCode
		f.log.Debug("Request failed",
			zap.String("url", r.Request.URL.String()),
			zap.Int("status", r.StatusCode),
			zap.Error(err))
	})

	var err error
	if method == http.MethodHead {
		err = c.Head(target)
	} else {
		err = c.Visit(target)
	}
	if err != nil {
		return nil, status, err
	}
	if resp == nil {
		return nil, status, fmt.Errorf("no response from %s", target)
	}
	return resp, resp.StatusCode, nil
}

func transient(status int) bool {
	return status == 0 || status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

// Current index format: <a href="release/release-406.html">Release 406 (25 Jan 2023)</a>
var (
	releaseLinkRe = regexp.MustCompile(`release-(\d+(?:\.\d+)?)\.(?:html|md)`)
	releaseDateRe = regexp.MustCompile(`\((\d{1,2} [A-Z][a-z]{2,8} \d{4})\)`)
)

// ScrapeReleaseIndex visits the release index page and returns every
// release it links to, with release dates when the link text carries one.
func (f *Fetcher) ScrapeReleaseIndex(ctx context.Context) ([]model.VersionEntry, error) {
	if f.opts.IndexURL == "" {
		return nil, fmt.Errorf("no release index URL configured")
	}

	entries := map[string]model.VersionEntry{}
	var mu sync.Mutex

	c := f.collector(ctx)
	c.OnError(func(r *colly.Response, err error) {
		f.log.Warn("Release index request failed",
			zap.String("url", r.Request.URL.String()),
			zap.Int("status", r.StatusCode),
			zap.Error(err))
	})
	c.OnHTML("a[href]", func(e *colly.HTMLElement) {
		matches := releaseLinkRe.FindStringSubmatch(e.Attr("href"))
		if len(matches) < 2 {
			return
		}
		v, err := version.CanonicalString(matches[1])
		if err != nil {
			return
		}

		entry := model.VersionEntry{Version: v, URL: f.URL(v)}
		if m := releaseDateRe.FindStringSubmatch(e.Text); len(m) == 2 {
			if date, ok := version.ParseReleaseDate(m[1]); ok {
				entry.ReleaseDate = &date
			}
		}

		mu.Lock()
		defer mu.Unlock()
		// Only the first link per version; later ones are usually in-page anchors.
		if _, exists := entries[v]; !exists {
			entries[v] = entry
		}
	})

	if err := c.Visit(f.opts.IndexURL); err != nil {
		return nil, oops.Code(CodeFetchFailed).Wrapf(err, "failed to visit release index %s", f.opts.IndexURL)
	}
	c.Wait()

	if len(entries) == 0 {
		return nil, fmt.Errorf("no releases found on %s", f.opts.IndexURL)
	}

	out := make([]model.VersionEntry, 0, len(entries))
	for _, entry := range entries {
		out = append(out, entry)
	}
	sortEntries(out)
	f.log.Info("Scraped release index", zap.String("url", f.opts.IndexURL), zap.Int("releases", len(out)))
	return out, nil
}

func sortEntries(entries []model.VersionEntry) {
	versions := make([]string, len(entries))
	byVersion := make(map[string]model.VersionEntry, len(entries))
	for i, e := range entries {
		versions[i] = e.Version
		byVersion[e.Version] = e
	}
	version.SortDesc(versions)
	for i, v := range versions {
		entries[i] = byVersion[v]
	}
}
