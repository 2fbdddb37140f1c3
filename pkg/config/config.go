// Package config loads the sidebyside YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where the configuration lives unless --config says otherwise.
var DefaultPath = filepath.Join("config", "config.yaml")

// Config is the full configuration file.
type Config struct {
	Cluster1 ClusterConfig  `yaml:"cluster1"`
	Cluster2 ClusterConfig  `yaml:"cluster2"`
	Releases ReleasesConfig `yaml:"releases"`
	Cache    CacheConfig    `yaml:"cache"`
	Database DatabaseConfig `yaml:"database"`
	Server   ServerConfig   `yaml:"server"`
	Versions VersionsConfig `yaml:"versions"`
	Log      LogConfig      `yaml:"log"`
}

// ClusterConfig describes one of the two side-by-side clusters. Only the
// version is used by the comparator, as the default comparison pair.
type ClusterConfig struct {
	Version       string `yaml:"version"`
	Port          int    `yaml:"port"`
	ContainerName string `yaml:"container_name"`
}

// ReleasesConfig controls where release notes are fetched from.
type ReleasesConfig struct {
	BaseURL    string `yaml:"base_url"`
	URLPattern string `yaml:"url_pattern"` // {base} and {version} are substituted
	IndexURL   string `yaml:"index_url"`
	UserAgent  string `yaml:"user_agent"`

	Timeout     time.Duration `yaml:"timeout"`
	Retries     uint64        `yaml:"retries"`
	BackoffBase time.Duration `yaml:"backoff_base"`
}

// CacheConfig controls how long comparisons are cached and how large they
// may grow.
type CacheConfig struct {
	TTL                time.Duration `yaml:"ttl"`
	IncludeFromVersion bool          `yaml:"include_from_version"`
	MaxVersions        int           `yaml:"max_versions"`
}

// DatabaseConfig selects the database: a SQLite path or a postgres:// URL.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Listen string `yaml:"listen"`
}

// VersionsConfig seeds the version catalog.
type VersionsConfig struct {
	Seed []string `yaml:"seed"`
	LTS  []string `yaml:"lts"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Cluster1: ClusterConfig{Version: "405", Port: 8001, ContainerName: "trino1"},
		Cluster2: ClusterConfig{Version: "406", Port: 8002, ContainerName: "trino2"},
		Releases: ReleasesConfig{
			BaseURL:     "https://trino.io/docs/current/release",
			URLPattern:  "{base}/release-{version}.html",
			IndexURL:    "https://trino.io/docs/current/release.html",
			UserAgent:   "sidebyside/1.0 (+https://github.com/kringz/sidebyside)",
			Timeout:     10 * time.Second,
			Retries:     3,
			BackoffBase: 500 * time.Millisecond,
		},
		Cache: CacheConfig{
			TTL:         30 * 24 * time.Hour,
			MaxVersions: 200,
		},
		Database: DatabaseConfig{DSN: filepath.Join("instance", "sidebyside.db")},
		Server:   ServerConfig{Listen: ":5000"},
		Versions: VersionsConfig{
			Seed: []string{"401", "406", "414", "424", "438", "442", "446", "451", "458", "465", "473", "474"},
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads path over the defaults and applies environment overrides.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("SIDEBYSIDE_LISTEN"); v != "" {
		c.Server.Listen = v
	}
	if v := os.Getenv("SIDEBYSIDE_CACHE_TTL"); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid SIDEBYSIDE_CACHE_TTL %q: %w", v, err)
		}
		c.Cache.TTL = ttl
	}
	return nil
}

// Validate checks the values the comparator cannot work without.
func (c *Config) Validate() error {
	if c.Releases.BaseURL == "" && c.Releases.URLPattern == "" {
		return errors.New("releases.base_url or releases.url_pattern is required")
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive, got %s", c.Cache.TTL)
	}
	if c.Cache.MaxVersions <= 0 {
		return fmt.Errorf("cache.max_versions must be positive, got %d", c.Cache.MaxVersions)
	}
	return nil
}

// Save writes the configuration to path, creating its directory.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config %s: %w", path, err)
	}
	return nil
}
