package catalog

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kringz/sidebyside/pkg/model"
	"github.com/kringz/sidebyside/pkg/store"
)

type fakeIndexer struct {
	entries []model.VersionEntry
	err     error
}

func (f fakeIndexer) ScrapeReleaseIndex(context.Context) ([]model.VersionEntry, error) {
	return f.entries, f.err
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "catalog.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func urlFor(v string) string {
	return "https://trino.io/docs/current/release/release-" + v + ".html"
}

func TestListFallsBackToSeed(t *testing.T) {
	c := New(openStore(t), nil, Options{
		Seed:   []string{"406", "474", "bogus", "406", "0.215"},
		LTS:    []string{"474"},
		URLFor: urlFor,
	}, nil)

	entries, err := c.List()
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "474", entries[0].Version)
	assert.True(t, entries[0].LTS)
	assert.Equal(t, "406", entries[1].Version)
	assert.False(t, entries[1].LTS)
	assert.Equal(t, "0.215", entries[2].Version)
	assert.Equal(t, urlFor("406"), entries[1].URL)
}

func TestSeedIsIdempotent(t *testing.T) {
	s := openStore(t)
	c := New(s, nil, Options{Seed: []string{"405", "406"}, URLFor: urlFor}, nil)

	added, err := c.Seed()
	require.NoError(t, err)
	assert.Equal(t, int64(2), added)

	added, err = c.Seed()
	require.NoError(t, err)
	assert.Equal(t, int64(0), added)

	entries, err := s.ListVersions()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, urlFor("406"), entries[0].URL)
}

func TestSync(t *testing.T) {
	s := openStore(t)
	released := time.Date(2025, 3, 21, 0, 0, 0, 0, time.UTC)
	c := New(s, fakeIndexer{entries: []model.VersionEntry{
		{Version: "474", ReleaseDate: &released, URL: urlFor("474")},
		{Version: "406", URL: urlFor("406")},
	}}, Options{Seed: []string{"406"}, LTS: []string{"406"}}, nil)

	_, err := c.Seed()
	require.NoError(t, err)

	n, err := c.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	entries, err := c.List()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "474", entries[0].Version)
	require.NotNil(t, entries[0].ReleaseDate)
	assert.True(t, entries[0].ReleaseDate.Equal(released))
	assert.True(t, entries[1].LTS, "LTS flag survives a sync")
	assert.Equal(t, urlFor("406"), entries[1].URL)
}

func TestSyncErrors(t *testing.T) {
	_, err := New(openStore(t), nil, Options{}, nil).Sync(context.Background())
	require.Error(t, err)

	boom := errors.New("index unavailable")
	_, err = New(openStore(t), fakeIndexer{err: boom}, Options{}, nil).Sync(context.Background())
	require.ErrorIs(t, err, boom)
}
