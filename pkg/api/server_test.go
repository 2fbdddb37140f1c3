package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kringz/sidebyside/pkg/comparator"
	"github.com/kringz/sidebyside/pkg/model"
	"github.com/kringz/sidebyside/pkg/scraper"
	"github.com/kringz/sidebyside/pkg/version"
)

var expires = time.Date(2025, 3, 31, 12, 0, 0, 0, time.UTC)

type call struct {
	from, to string
	refresh  bool
}

type fakeComparator struct {
	calls   []call
	err     error
	purged  int64
	cleared int64
}

func (f *fakeComparator) result(from, to string) *model.Comparison {
	items := []model.ChangeItem{
		{Version: to, Title: "Add support for MERGE.", Category: model.CategoryNewFeature, Component: "General"},
		{Version: to, Title: "Remove hive.legacy.", Category: model.CategoryDeprecatedRemoved, Status: model.StatusRemoved, Component: "Hive", Connector: "Hive"},
		{Version: to, Title: "Require Java 22.", Category: model.CategoryBreaking, Component: "General"},
		{Version: to, Title: "Fix Iceberg reads.", Category: model.CategoryOther, Component: "Iceberg", Connector: "Iceberg"},
	}
	cmp := &model.Comparison{
		FromVersion:     from,
		ToVersion:       to,
		VersionsChecked: []string{to},
		Versions:        []model.VersionChanges{{Version: to, Items: items}},
		Changes:         items,
		ExpiresAt:       expires,
	}
	for _, item := range items {
		cmp.Summary.Add(item)
	}
	return cmp
}

func (f *fakeComparator) Compare(_ context.Context, from, to string) (*model.Comparison, error) {
	f.calls = append(f.calls, call{from: from, to: to})
	if f.err != nil {
		return nil, f.err
	}
	return f.result(from, to), nil
}

func (f *fakeComparator) Refresh(_ context.Context, from, to string) (*model.Comparison, error) {
	f.calls = append(f.calls, call{from: from, to: to, refresh: true})
	if f.err != nil {
		return nil, f.err
	}
	return f.result(from, to), nil
}

func (f *fakeComparator) PurgeExpired() (int64, error) { return f.purged, f.err }
func (f *fakeComparator) Clear() (int64, error)        { return f.cleared, f.err }

type fakeCatalog struct {
	entries []model.VersionEntry
	err     error
}

func (f fakeCatalog) List() ([]model.VersionEntry, error) { return f.entries, f.err }

func newTestServer(cmp *fakeComparator) *Server {
	return New(cmp, fakeCatalog{entries: []model.VersionEntry{{Version: "474", LTS: true}, {Version: "406"}}}, Options{
		Defaults: Defaults{FromVersion: "405", ToVersion: "406"},
		Registry: prometheus.NewRegistry(),
	}, nil)
}

func serve(t *testing.T, s *Server, req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	var body map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestCompareForm(t *testing.T) {
	cmp := &fakeComparator{}
	s := newTestServer(cmp)

	form := url.Values{"from_version": {"405"}, "to_version": {" 406 "}}
	req := httptest.NewRequest(http.MethodPost, "/api/compare", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec, body := serve(t, s, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []call{{from: "405", to: "406"}}, cmp.calls)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "405", body["from_version"])
	assert.Equal(t, float64(1), body["total_versions"])
	assert.Equal(t, []any{}, body["missing_versions"])
	assert.Len(t, body["breaking_changes"], 1)
	assert.Len(t, body["new_features"], 1)
	assert.Len(t, body["deprecated_removed"], 1)
	assert.Len(t, body["other_changes"], 1)
	assert.Len(t, body["general_changes"], 2)
	assert.Equal(t, "2025-03-31T12:00:00Z", body["expires_at"])

	connectors, ok := body["connector_changes"].(map[string]any)
	require.True(t, ok)
	assert.Len(t, connectors, 2)
	assert.Len(t, connectors["Hive"], 1)

	summary := body["summary"].(map[string]any)
	assert.Equal(t, float64(4), summary["total"])
	assert.Equal(t, float64(2), summary["connector"])
}

func TestCompareJSONAndQuery(t *testing.T) {
	cmp := &fakeComparator{}
	s := newTestServer(cmp)

	req := httptest.NewRequest(http.MethodPost, "/api/compare", strings.NewReader(`{"from_version":"410","to_version":"405"}`))
	req.Header.Set("Content-Type", "application/json")
	rec, _ := serve(t, s, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = serve(t, s, httptest.NewRequest(http.MethodGet, "/api/compare?from=401&to=402", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/compare/refresh", strings.NewReader(`{"from_version":"401","to_version":"402"}`))
	req.Header.Set("Content-Type", "application/json")
	rec, _ = serve(t, s, req)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, []call{
		{from: "410", to: "405"},
		{from: "401", to: "402"},
		{from: "401", to: "402", refresh: true},
	}, cmp.calls)
}

func TestCompareErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		query  string
		status int
		code   string
	}{
		{
			name:   "missing version",
			query:  "from=405",
			status: http.StatusBadRequest,
		},
		{
			name:   "invalid version",
			query:  "from=latest&to=406",
			err:    oops.Code(version.CodeInvalidVersion).Errorf(`invalid version "latest"`),
			status: http.StatusBadRequest,
			code:   version.CodeInvalidVersion,
		},
		{
			name:   "range too large",
			query:  "from=1&to=474",
			err:    oops.Code(comparator.CodeRangeTooLarge).Errorf("range too large"),
			status: http.StatusBadRequest,
			code:   comparator.CodeRangeTooLarge,
		},
		{
			name:   "fetch failure",
			query:  "from=405&to=406",
			err:    oops.Code(scraper.CodeFetchFailed).Wrapf(errors.New("503"), "failed to fetch release notes for version 406"),
			status: http.StatusBadGateway,
			code:   scraper.CodeFetchFailed,
		},
		{
			name:   "unexpected",
			query:  "from=405&to=406",
			err:    errors.New("disk full"),
			status: http.StatusInternalServerError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(&fakeComparator{err: tt.err})
			rec, body := serve(t, s, httptest.NewRequest(http.MethodGet, "/api/compare?"+tt.query, nil))

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, false, body["success"])
			assert.NotEmpty(t, body["message"])
			if tt.code != "" {
				assert.Equal(t, tt.code, body["error"])
			}
		})
	}
}

func TestVersionsAndDefaults(t *testing.T) {
	s := newTestServer(&fakeComparator{})

	rec, body := serve(t, s, httptest.NewRequest(http.MethodGet, "/api/versions", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	versions := body["versions"].([]any)
	require.Len(t, versions, 2)
	assert.Equal(t, "474", versions[0].(map[string]any)["version"])
	assert.Equal(t, true, versions[0].(map[string]any)["lts"])

	rec, body = serve(t, s, httptest.NewRequest(http.MethodGet, "/api/defaults", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "405", body["from_version"])
	assert.Equal(t, "406", body["to_version"])
}

func TestPurgeCache(t *testing.T) {
	s := newTestServer(&fakeComparator{purged: 3, cleared: 7})

	rec, body := serve(t, s, httptest.NewRequest(http.MethodDelete, "/api/cache", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(3), body["deleted"])
	assert.Equal(t, false, body["all"])

	rec, body = serve(t, s, httptest.NewRequest(http.MethodDelete, "/api/cache?all=true", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(7), body["deleted"])
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(&fakeComparator{})

	rec, _ := serve(t, s, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	serve(t, s, httptest.NewRequest(http.MethodGet, "/api/defaults", nil))
	rec, _ = serve(t, s, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sidebyside_http_requests_total")
}

func TestUnknownRoute(t *testing.T) {
	s := newTestServer(&fakeComparator{})
	rec, body := serve(t, s, httptest.NewRequest(http.MethodGet, "/api/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, false, body["success"])
}
