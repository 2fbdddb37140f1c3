// Package store persists cached comparisons and the version catalog.
package store

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/samber/lo"
	"github.com/samber/oops"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/kringz/sidebyside/pkg/model"
	"github.com/kringz/sidebyside/pkg/version"
)

// CodeStore is the error code for database failures.
const CodeStore = "store"

// Store wraps the database.
type Store struct {
	db  *gorm.DB
	log *zap.Logger
}

// Open connects to dsn and migrates the schema. DSNs starting with
// postgres:// or postgresql:// use Postgres; anything else is a SQLite file.
func Open(dsn string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	dialector, driver, err := dialect(dsn)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, oops.Code(CodeStore).With("driver", driver).Wrapf(err, "failed to open database")
	}
	if err := db.AutoMigrate(&model.VersionEntry{}, &model.ComparisonCache{}); err != nil {
		return nil, oops.Code(CodeStore).With("driver", driver).Wrapf(err, "failed to migrate database")
	}
	log.Debug("Opened database", zap.String("driver", driver))
	return &Store{db: db, log: log}, nil
}

func dialect(dsn string) (gorm.Dialector, string, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return postgres.Open(dsn), "postgres", nil
	}
	if dsn == "" {
		return nil, "", oops.Code(CodeStore).Errorf("database DSN is empty")
	}
	path := strings.TrimPrefix(dsn, "file:")
	if dir := filepath.Dir(path); path != ":memory:" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, "", oops.Code(CodeStore).Wrapf(err, "failed to create database directory %s", dir)
		}
	}
	return sqlite.Open(dsn), "sqlite", nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// GetComparison returns the stored comparison for the pair, or nil if there
// is none. Expired entries are returned too; callers check Expired.
func (s *Store) GetComparison(from, to string) (*model.ComparisonCache, error) {
	var entry model.ComparisonCache
	err := s.db.Where("from_version = ? AND to_version = ?", from, to).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, oops.Code(CodeStore).With("from", from, "to", to).Wrapf(err, "failed to read comparison")
	}
	return &entry, nil
}

// PutComparison inserts the entry or replaces the one stored for its pair.
func (s *Store) PutComparison(entry *model.ComparisonCache) error {
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "from_version"}, {Name: "to_version"}},
		DoUpdates: clause.AssignmentColumns([]string{"comparison_data", "create_date", "expire_date"}),
	}).Create(entry).Error
	if err != nil {
		return oops.Code(CodeStore).With("from", entry.FromVersion, "to", entry.ToVersion).Wrapf(err, "failed to store comparison")
	}
	return nil
}

// DeleteComparison removes the entry for the pair, if any.
func (s *Store) DeleteComparison(from, to string) error {
	err := s.db.Where("from_version = ? AND to_version = ?", from, to).Delete(&model.ComparisonCache{}).Error
	if err != nil {
		return oops.Code(CodeStore).With("from", from, "to", to).Wrapf(err, "failed to delete comparison")
	}
	return nil
}

// PurgeExpired deletes every entry expired at now and returns how many were
// removed.
func (s *Store) PurgeExpired(now time.Time) (int64, error) {
	res := s.db.Where("expire_date <= ?", now.UTC()).Delete(&model.ComparisonCache{})
	if res.Error != nil {
		return 0, oops.Code(CodeStore).Wrapf(res.Error, "failed to purge expired comparisons")
	}
	if res.RowsAffected > 0 {
		s.log.Debug("Purged expired comparisons", zap.Int64("count", res.RowsAffected))
	}
	return res.RowsAffected, nil
}

// ClearComparisons deletes every stored comparison.
func (s *Store) ClearComparisons() (int64, error) {
	res := s.db.Where("1 = 1").Delete(&model.ComparisonCache{})
	if res.Error != nil {
		return 0, oops.Code(CodeStore).Wrapf(res.Error, "failed to clear comparisons")
	}
	return res.RowsAffected, nil
}

// UpsertVersions stores the entries, replacing LTS flag, release date and
// URL of versions already known.
func (s *Store) UpsertVersions(entries []model.VersionEntry) error {
	if len(entries) == 0 {
		return nil
	}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "version"}},
		DoUpdates: clause.AssignmentColumns([]string{"lts", "release_date", "url"}),
	}).Create(&entries).Error
	if err != nil {
		return oops.Code(CodeStore).With("count", len(entries)).Wrapf(err, "failed to upsert versions")
	}
	return nil
}

// AddVersions stores the entries whose version is not yet known and returns
// how many were added.
func (s *Store) AddVersions(entries []model.VersionEntry) (int64, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	res := s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&entries)
	if res.Error != nil {
		return 0, oops.Code(CodeStore).With("count", len(entries)).Wrapf(res.Error, "failed to add versions")
	}
	return res.RowsAffected, nil
}

// ListVersions returns every known version, newest first.
func (s *Store) ListVersions() ([]model.VersionEntry, error) {
	var entries []model.VersionEntry
	if err := s.db.Find(&entries).Error; err != nil {
		return nil, oops.Code(CodeStore).Wrapf(err, "failed to list versions")
	}
	slices.SortStableFunc(entries, func(a, b model.VersionEntry) int {
		return version.Compare(b.Version, a.Version)
	})
	return entries, nil
}

// KnownVersions returns the version strings of the catalog, ascending.
func (s *Store) KnownVersions() ([]string, error) {
	entries, err := s.ListVersions()
	if err != nil {
		return nil, err
	}
	versions := lo.Map(entries, func(e model.VersionEntry, _ int) string { return e.Version })
	version.Sort(versions)
	return versions, nil
}
