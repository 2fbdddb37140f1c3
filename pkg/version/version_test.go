package version

import (
	"testing"
	"time"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "406", want: "406"},
		{in: " 406 ", want: "406"},
		{in: "release-406", want: "406"},
		{in: "release-406.html", want: "406"},
		{in: "0.215", want: "0.215"},
		{in: "405.1", want: "405.1"},
		{in: "405.1.0", want: "405.1"},
		{in: "405.1.2", want: "405.1.2"},
		{in: "latest", wantErr: true},
		{in: "", wantErr: true},
		{in: "406-rc1", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := CanonicalString(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				oe, ok := oops.AsOops(err)
				require.True(t, ok)
				assert.Equal(t, CodeInvalidVersion, oe.Code())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompare(t *testing.T) {
	assert.Equal(t, -1, Compare("405", "406"))
	assert.Equal(t, 1, Compare("474", "406"))
	assert.Equal(t, 0, Compare("406", "release-406"))
	assert.Equal(t, -1, Compare("0.215", "300"))
	assert.Equal(t, -1, Compare("0.99", "0.215"))
	// numeric, not lexical
	assert.Equal(t, -1, Compare("99", "100"))
}

func TestSort(t *testing.T) {
	versions := []string{"406", "0.215", "351", "99", "474"}
	Sort(versions)
	assert.Equal(t, []string{"0.215", "99", "351", "406", "474"}, versions)

	SortDesc(versions)
	assert.Equal(t, []string{"474", "406", "351", "99", "0.215"}, versions)
}

func TestRange(t *testing.T) {
	got, err := Range("403", "407", nil, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"403", "404", "405", "406", "407"}, got)

	reversed, err := Range("407", "403", nil, 0)
	require.NoError(t, err)
	assert.Equal(t, got, reversed)

	single, err := Range("406", "406", nil, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"406"}, single)

	legacy, err := Range("0.213", "0.215", nil, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"0.213", "0.214", "0.215"}, legacy)
}

func TestRangeAcrossSeriesUsesKnownVersions(t *testing.T) {
	known := []string{"301", "0.215", "300", "0.214", "0.210", "302", "300"}
	got, err := Range("0.214", "301", known, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"0.214", "0.215", "300", "301"}, got)

	fallback, err := Range("0.214", "301", nil, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"0.214", "301"}, fallback)
}

func TestRangeLimit(t *testing.T) {
	got, err := Range("401", "405", nil, 5)
	require.NoError(t, err)
	assert.Len(t, got, 5)

	tests := []struct {
		name     string
		from, to string
		known    []string
		limit    int
	}{
		{name: "integers", from: "401", to: "406", limit: 5},
		{name: "huge", from: "1", to: "4000000000", limit: 200},
		{name: "max uint64", from: "18446744073709551614", to: "18446744073709551615", limit: 1},
		{name: "full uint64", from: "1", to: "18446744073709551615", limit: 200},
		{name: "legacy", from: "0.0", to: "0.18446744073709551615", limit: 200},
		{name: "known", from: "0.214", to: "301", known: []string{"0.214", "0.215", "300", "301"}, limit: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Range(tt.from, tt.to, tt.known, tt.limit)
			require.Error(t, err)
			oe, ok := oops.AsOops(err)
			require.True(t, ok)
			assert.Equal(t, CodeRangeTooLarge, oe.Code())
		})
	}
}

func TestRangeAtMaxUint64(t *testing.T) {
	got, err := Range("18446744073709551614", "18446744073709551615", nil, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"18446744073709551614", "18446744073709551615"}, got)
}

func TestRangeInvalid(t *testing.T) {
	_, err := Range("abc", "406", nil, 0)
	require.Error(t, err)
	_, err = Range("406", "", nil, 0)
	require.Error(t, err)
}

func TestParseReleaseDate(t *testing.T) {
	got, ok := ParseReleaseDate("1 September 2022")
	require.True(t, ok)
	assert.Equal(t, time.September, got.Month())

	got, ok = ParseReleaseDate("25 Jan 2023")
	require.True(t, ok)
	assert.Equal(t, time.Date(2023, time.January, 25, 0, 0, 0, 0, time.UTC), got)

	_, ok = ParseReleaseDate("yesterday")
	assert.False(t, ok)
}
