package sidebyside

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kringz/sidebyside/pkg/config"
)

const releaseIndex = `<html><body><ul>
<li><a href="release/release-407.html">Release 407 (16 Feb 2023)</a></li>
<li><a href="release/release-406.html">Release 406 (25 Jan 2023)</a></li>
<li><a href="release/release-405.html">Release 405 (28 Dec 2022)</a></li>
</ul></body></html>`

func releasePage(v string) string {
	return fmt.Sprintf(`<html><body><article role="main">
<h1>Release %[1]s</h1>
<h2>General</h2>
<ul>
<li><p>⚠️ Breaking change: Require Java %[1]s.</p></li>
<li><p>Add support for the <code>feature_%[1]s</code> function.</p></li>
</ul>
<h2>Iceberg connector</h2>
<ul><li><p>Improve performance of reading manifests.</p></li></ul>
</article></body></html>`, v)
}

func newTestApp(t *testing.T) (*App, *atomic.Int32) {
	t.Helper()
	var fetches atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/release.html":
			fmt.Fprint(w, releaseIndex)
		case "/release/release-406.html", "/release/release-407.html":
			fetches.Add(1)
			v := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/release/release-"), ".html")
			fmt.Fprint(w, releasePage(v))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.Releases.BaseURL = srv.URL + "/release"
	cfg.Releases.IndexURL = srv.URL + "/release.html"
	cfg.Releases.Retries = 0
	cfg.Releases.Timeout = 2 * time.Second
	cfg.Database.DSN = filepath.Join(t.TempDir(), "sidebyside.db")
	cfg.Versions.LTS = []string{"406"}

	app, err := New(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })
	return app, &fetches
}

func TestCompareThroughAPI(t *testing.T) {
	app, fetches := newTestApp(t)
	server := app.Server()

	post := func() map[string]any {
		req := httptest.NewRequest(http.MethodPost, "/api/compare", strings.NewReader(`{"from_version":"408","to_version":"405"}`))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		server.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		return body
	}

	first := post()
	assert.Equal(t, "405", first["from_version"])
	assert.Equal(t, "408", first["to_version"])
	assert.Equal(t, []any{"406", "407", "408"}, first["versions_checked"])
	assert.Equal(t, []any{"408"}, first["missing_versions"])
	assert.Equal(t, false, first["cached"])
	assert.Len(t, first["breaking_changes"], 2)
	assert.Len(t, first["new_features"], 2)
	assert.Len(t, first["other_changes"], 2)
	assert.Len(t, first["connector_changes"].(map[string]any)["Iceberg"], 2)
	assert.Equal(t, int32(2), fetches.Load())

	second := post()
	assert.Equal(t, true, second["cached"])
	assert.Equal(t, first["summary"], second["summary"])
	assert.Equal(t, int32(2), fetches.Load())
}

func TestCatalogSync(t *testing.T) {
	app, _ := newTestApp(t)

	_, err := app.Catalog.Seed()
	require.NoError(t, err)
	n, err := app.Catalog.Sync(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	known, err := app.Store.KnownVersions()
	require.NoError(t, err)
	assert.Contains(t, known, "405")
	assert.Contains(t, known, "474")

	entries, err := app.Catalog.List()
	require.NoError(t, err)
	for _, e := range entries {
		if e.Version == "406" {
			assert.True(t, e.LTS)
			require.NotNil(t, e.ReleaseDate)
		}
	}
}

func TestNewLogger(t *testing.T) {
	log, err := NewLogger(config.LogConfig{Level: "debug", Development: true})
	require.NoError(t, err)
	assert.NotNil(t, log)

	_, err = NewLogger(config.LogConfig{Level: "loud"})
	require.Error(t, err)
}
