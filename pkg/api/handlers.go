package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/samber/lo"

	"github.com/kringz/sidebyside/pkg/model"
)

// CompareRequest names the two versions to compare. POST requests send it as
// a form or JSON body, GET requests as ?from=&to=.
type CompareRequest struct {
	FromVersion string `json:"from_version" form:"from_version" query:"from"`
	ToVersion   string `json:"to_version" form:"to_version" query:"to"`
}

// CompareResponse is the comparison as served to clients. Item lists are
// never null.
type CompareResponse struct {
	Success         bool                   `json:"success"`
	FromVersion     string                 `json:"from_version"`
	ToVersion       string                 `json:"to_version"`
	Swapped         bool                   `json:"swapped,omitempty"`
	VersionsChecked []string               `json:"versions_checked"`
	TotalVersions   int                    `json:"total_versions"`
	MissingVersions []string               `json:"missing_versions"`
	Releases        []model.VersionChanges `json:"releases"`

	// connector name to the items listed under it
	ConnectorChanges  map[string][]model.ChangeItem `json:"connector_changes"`
	GeneralChanges    []model.ChangeItem            `json:"general_changes"`
	BreakingChanges   []model.ChangeItem            `json:"breaking_changes"`
	NewFeatures       []model.ChangeItem            `json:"new_features"`
	DeprecatedRemoved []model.ChangeItem            `json:"deprecated_removed"`
	OtherChanges      []model.ChangeItem            `json:"other_changes"`

	Summary     model.Summary `json:"summary"`
	Cached      bool          `json:"cached"`
	GeneratedAt time.Time     `json:"generated_at"`
	ExpiresAt   time.Time     `json:"expires_at"`
}

// NewCompareResponse shapes a comparison for the API.
func NewCompareResponse(cmp *model.Comparison) CompareResponse {
	return CompareResponse{
		Success:           true,
		FromVersion:       cmp.FromVersion,
		ToVersion:         cmp.ToVersion,
		Swapped:           cmp.Swapped,
		VersionsChecked:   nonNil(cmp.VersionsChecked),
		TotalVersions:     len(cmp.VersionsChecked),
		MissingVersions:   nonNil(cmp.MissingVersions),
		Releases:          nonNil(cmp.Versions),
		ConnectorChanges:  lo.GroupBy(cmp.ConnectorChanges(), func(item model.ChangeItem) string { return item.Connector }),
		GeneralChanges:    cmp.GeneralChanges(),
		BreakingChanges:   cmp.ByCategory(model.CategoryBreaking),
		NewFeatures:       cmp.ByCategory(model.CategoryNewFeature),
		DeprecatedRemoved: cmp.ByCategory(model.CategoryDeprecatedRemoved),
		OtherChanges:      cmp.ByCategory(model.CategoryOther),
		Summary:           cmp.Summary,
		Cached:            cmp.Cached,
		GeneratedAt:       cmp.GeneratedAt,
		ExpiresAt:         cmp.ExpiresAt,
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func (s *Server) compare(c echo.Context) error {
	return s.respond(c, s.comparator.Compare)
}

func (s *Server) refresh(c echo.Context) error {
	return s.respond(c, s.comparator.Refresh)
}

func (s *Server) respond(c echo.Context, run func(ctx context.Context, from, to string) (*model.Comparison, error)) error {
	var req CompareRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid request body")
	}
	req.FromVersion = strings.TrimSpace(req.FromVersion)
	req.ToVersion = strings.TrimSpace(req.ToVersion)
	if req.FromVersion == "" || req.ToVersion == "" {
		return badRequest("both from_version and to_version are required")
	}

	cmp, err := run(c.Request().Context(), req.FromVersion, req.ToVersion)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, NewCompareResponse(cmp))
}

func (s *Server) listVersions(c echo.Context) error {
	entries, err := s.catalog.List()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success":  true,
		"versions": entries,
	})
}

func (s *Server) getDefaults(c echo.Context) error {
	return c.JSON(http.StatusOK, s.defaults)
}

func (s *Server) purgeCache(c echo.Context) error {
	all := c.QueryParam("all") == "true"
	purge := s.comparator.PurgeExpired
	if all {
		purge = s.comparator.Clear
	}
	deleted, err := purge()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"all":     all,
		"deleted": deleted,
	})
}
