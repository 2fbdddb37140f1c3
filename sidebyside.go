// Package sidebyside compares Trino releases: it fetches the release notes
// of every version between two releases, classifies each item and caches the
// result per version pair.
package sidebyside

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kringz/sidebyside/pkg/api"
	"github.com/kringz/sidebyside/pkg/catalog"
	"github.com/kringz/sidebyside/pkg/classifier"
	"github.com/kringz/sidebyside/pkg/comparator"
	"github.com/kringz/sidebyside/pkg/config"
	"github.com/kringz/sidebyside/pkg/scraper"
	"github.com/kringz/sidebyside/pkg/store"
)

// App holds every component built from one configuration.
type App struct {
	Config     *config.Config
	Store      *store.Store
	Fetcher    *scraper.Fetcher
	Classifier *classifier.Classifier
	Comparator *comparator.Comparator
	Catalog    *catalog.Catalog
	Registry   *prometheus.Registry

	log *zap.Logger
}

// New opens the database and wires the comparator, catalog and metrics.
func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}

	db, err := store.Open(cfg.Database.DSN, log.Named("store"))
	if err != nil {
		return nil, err
	}

	fetcher, err := scraper.New(scraper.Options{
		BaseURL:     cfg.Releases.BaseURL,
		URLPattern:  cfg.Releases.URLPattern,
		IndexURL:    cfg.Releases.IndexURL,
		UserAgent:   cfg.Releases.UserAgent,
		Timeout:     cfg.Releases.Timeout,
		Retries:     cfg.Releases.Retries,
		BackoffBase: cfg.Releases.BackoffBase,
	}, log.Named("scraper"))
	if err != nil {
		return nil, errors.Join(err, db.Close())
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	cls := classifier.New(log.Named("classifier"))
	cmp := comparator.New(fetcher, cls, db, comparator.Options{
		TTL:                cfg.Cache.TTL,
		IncludeFromVersion: cfg.Cache.IncludeFromVersion,
		MaxVersions:        cfg.Cache.MaxVersions,
		Registerer:         reg,
	}, log.Named("comparator"))

	cat := catalog.New(db, fetcher, catalog.Options{
		Seed:   cfg.Versions.Seed,
		LTS:    cfg.Versions.LTS,
		URLFor: fetcher.URL,
	}, log.Named("catalog"))

	return &App{
		Config:     cfg,
		Store:      db,
		Fetcher:    fetcher,
		Classifier: cls,
		Comparator: cmp,
		Catalog:    cat,
		Registry:   reg,
		log:        log,
	}, nil
}

// Server returns the HTTP front end of the app.
func (a *App) Server() *api.Server {
	return api.New(a.Comparator, a.Catalog, api.Options{
		Defaults: api.Defaults{
			FromVersion: a.Config.Cluster1.Version,
			ToVersion:   a.Config.Cluster2.Version,
		},
		Registry: a.Registry,
	}, a.log.Named("api"))
}

// Close releases the database.
func (a *App) Close() error {
	return a.Store.Close()
}

// NewLogger builds the process logger from the log section of the config.
func NewLogger(cfg config.LogConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		level, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		zc.Level = zap.NewAtomicLevelAt(level)
	}
	return zc.Build()
}
