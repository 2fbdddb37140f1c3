// Package model holds the release, change and comparison types shared by
// the fetcher, classifier, comparator and API.
package model

import "time"

// Category is the kind of change a release-note item describes.
type Category string

// Change categories.
const (
	CategoryBreaking          Category = "breaking"
	CategoryNewFeature        Category = "new_feature"
	CategoryDeprecatedRemoved Category = "deprecated_removed"
	CategoryOther             Category = "other"
)

// Categories lists every category in report order.
var Categories = []Category{
	CategoryBreaking,
	CategoryNewFeature,
	CategoryDeprecatedRemoved,
	CategoryOther,
}

// Status of a deprecated_removed item.
const (
	StatusDeprecated = "Deprecated"
	StatusRemoved    = "Removed"
)

// VersionEntry is a known Trino release.
type VersionEntry struct {
	Version     string     `json:"version" gorm:"primaryKey;size:20"`
	LTS         bool       `json:"lts"`
	ReleaseDate *time.Time `json:"releaseDate,omitempty"`
	URL         string     `json:"url,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// TableName is the gorm table of the version catalog.
func (VersionEntry) TableName() string {
	return "versions"
}

// Release is the raw release-notes page of one version.
type Release struct {
	Version     string    `json:"version"`
	URL         string    `json:"url"`
	ContentType string    `json:"contentType,omitempty"`
	Body        []byte    `json:"-"`
	FetchedAt   time.Time `json:"fetchedAt"`
}

// ChangeItem is a single entry from a release-notes page.
type ChangeItem struct {
	Version     string   `json:"version"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Text        string   `json:"text"`
	Category    Category `json:"category"`
	Section     string   `json:"section"`   // heading the item was listed under
	Component   string   `json:"component"` // e.g. "General", "Hive", "SPI"
	Connector   string   `json:"connector,omitempty"`
	Symbol      string   `json:"symbol,omitempty"` // first code literal, e.g. "hive.allow-drop-table"
	Status      string   `json:"status,omitempty"` // Deprecated or Removed

	ImpactsPerformance   bool `json:"impacts_performance"`
	ImpactsCompatibility bool `json:"impacts_compatibility"`
}

// IsConnector reports whether the item was listed under a connector heading.
func (c ChangeItem) IsConnector() bool {
	return c.Connector != ""
}

// VersionChanges is the classified release notes of one version.
type VersionChanges struct {
	Version     string       `json:"version"`
	Title       string       `json:"title,omitempty"`
	ReleaseDate string       `json:"releaseDate,omitempty"`
	URL         string       `json:"url,omitempty"`
	Items       []ChangeItem `json:"items"`
	Skipped     int          `json:"skipped,omitempty"`
}

// Summary counts the items of a comparison.
type Summary struct {
	Total             int `json:"total"`
	Breaking          int `json:"breaking"`
	NewFeatures       int `json:"new_features"`
	DeprecatedRemoved int `json:"deprecated_removed"`
	Other             int `json:"other"`
	Connector         int `json:"connector"`
	General           int `json:"general"`
}

// Add counts one item.
func (s *Summary) Add(item ChangeItem) {
	s.Total++
	switch item.Category {
	case CategoryBreaking:
		s.Breaking++
	case CategoryNewFeature:
		s.NewFeatures++
	case CategoryDeprecatedRemoved:
		s.DeprecatedRemoved++
	default:
		s.Other++
	}
	if item.IsConnector() {
		s.Connector++
	} else {
		s.General++
	}
}

// Comparison is the aggregated change list between two versions.
type Comparison struct {
	FromVersion     string           `json:"from_version"`
	ToVersion       string           `json:"to_version"`
	Swapped         bool             `json:"swapped,omitempty"`
	VersionsChecked []string         `json:"versions_checked"`
	MissingVersions []string         `json:"missing_versions,omitempty"`
	Versions        []VersionChanges `json:"versions"`
	Changes         []ChangeItem     `json:"changes"`
	Summary         Summary          `json:"summary"`
	GeneratedAt     time.Time        `json:"generated_at"`
	ExpiresAt       time.Time        `json:"expires_at"`
	Cached          bool             `json:"cached"`
}

// ConnectorChanges returns the items listed under connector headings.
func (c *Comparison) ConnectorChanges() []ChangeItem {
	return c.filter(func(item ChangeItem) bool { return item.IsConnector() })
}

// GeneralChanges returns the items not tied to a connector.
func (c *Comparison) GeneralChanges() []ChangeItem {
	return c.filter(func(item ChangeItem) bool { return !item.IsConnector() })
}

// ByCategory returns the items of one category.
func (c *Comparison) ByCategory(category Category) []ChangeItem {
	return c.filter(func(item ChangeItem) bool { return item.Category == category })
}

func (c *Comparison) filter(keep func(ChangeItem) bool) []ChangeItem {
	out := []ChangeItem{}
	for _, item := range c.Changes {
		if keep(item) {
			out = append(out, item)
		}
	}
	return out
}

// ComparisonCache is a stored comparison for a version pair.
type ComparisonCache struct {
	ID          uint      `gorm:"primaryKey"`
	FromVersion string    `gorm:"size:20;not null;uniqueIndex:unique_version_comparison"`
	ToVersion   string    `gorm:"size:20;not null;uniqueIndex:unique_version_comparison"`
	Data        []byte    `gorm:"column:comparison_data"`
	CreatedAt   time.Time `gorm:"column:create_date"`
	ExpiresAt   time.Time `gorm:"column:expire_date;index"`
}

// TableName is the gorm table of cached comparisons.
func (ComparisonCache) TableName() string {
	return "version_comparisons"
}

// Expired reports whether the entry is past its expiry at now.
func (c ComparisonCache) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}
