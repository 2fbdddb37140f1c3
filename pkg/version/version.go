// Package version parses and orders Trino release numbers.
//
// Trino releases are plain integers (351, 406, 474). The Presto-era releases
// before them are numbered 0.x (0.215). Both forms are accepted everywhere.
package version

import (
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/samber/oops"
)

// Error codes reported by this package.
const (
	CodeInvalidVersion = "invalid_version"
	CodeRangeTooLarge  = "range_too_large"
)

// Parse returns the version as a semver value: "406" is 406.0.0 and
// "0.215" is 0.215.0. A "release-" prefix is ignored.
func Parse(s string) (*semver.Version, error) {
	v, err := semver.NewVersion(Normalize(s))
	if err != nil {
		return nil, oops.Code(CodeInvalidVersion).With("version", s).Wrapf(err, "invalid version %q", s)
	}
	if v.Prerelease() != "" || v.Metadata() != "" {
		return nil, oops.Code(CodeInvalidVersion).With("version", s).Errorf("invalid version %q: pre-release tags are not Trino releases", s)
	}
	return v, nil
}

// Normalize trims whitespace and any "release-" prefix.
func Normalize(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.ToLower(s), "release-")
	return strings.TrimSuffix(s, ".html")
}

// Valid reports whether s parses as a version.
func Valid(s string) bool {
	_, err := Parse(s)
	return err == nil
}

// Compare orders two version strings numerically segment by segment.
// Unparseable versions sort before everything else.
func Compare(a, b string) int {
	va, errA := Parse(a)
	vb, errB := Parse(b)
	switch {
	case errA != nil && errB != nil:
		return strings.Compare(a, b)
	case errA != nil:
		return -1
	case errB != nil:
		return 1
	}
	return va.Compare(vb)
}

// Sort orders versions ascending in place.
func Sort(versions []string) {
	slices.SortStableFunc(versions, Compare)
}

// SortDesc orders versions descending in place.
func SortDesc(versions []string) {
	slices.SortStableFunc(versions, func(a, b string) int { return -Compare(a, b) })
}

// Range returns every version between from and to inclusive, ascending.
// The bounds may be given in either order. Integer releases enumerate every
// integer and 0.x releases every minor. A range that crosses from the 0.x
// series into the integer series is taken from known, falling back to just
// the two bounds. A positive limit caps the number of versions returned;
// larger ranges fail with CodeRangeTooLarge before anything is enumerated.
func Range(from, to string, known []string, limit int) ([]string, error) {
	vf, err := Parse(from)
	if err != nil {
		return nil, err
	}
	vt, err := Parse(to)
	if err != nil {
		return nil, err
	}
	if vf.GreaterThan(vt) {
		vf, vt = vt, vf
	}

	switch {
	case isLegacy(vf) && isLegacy(vt):
		if err := checkSpan(vf, vt, vf.Minor(), vt.Minor(), limit); err != nil {
			return nil, err
		}
		return enumerate(vf.Minor(), vt.Minor(), func(m uint64) string {
			return "0." + strconv.FormatUint(m, 10)
		}), nil
	case !isLegacy(vf) && !isLegacy(vt) && vf.Minor() == 0 && vt.Minor() == 0:
		if err := checkSpan(vf, vt, vf.Major(), vt.Major(), limit); err != nil {
			return nil, err
		}
		return enumerate(vf.Major(), vt.Major(), func(m uint64) string {
			return strconv.FormatUint(m, 10)
		}), nil
	}

	var out []string
	seen := map[string]bool{}
	for _, k := range known {
		v, err := Parse(k)
		if err != nil {
			continue
		}
		s := Canonical(v)
		if seen[s] || v.LessThan(vf) || v.GreaterThan(vt) {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	for _, bound := range []*semver.Version{vf, vt} {
		if s := Canonical(bound); !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	if limit > 0 && len(out) > limit {
		return nil, tooLarge(vf, vt, limit)
	}
	Sort(out)
	return out, nil
}

// checkSpan fails when lo..hi holds more than limit numbers. hi-lo is
// compared rather than hi-lo+1, which overflows for the full uint64 range.
func checkSpan(vf, vt *semver.Version, lo, hi uint64, limit int) error {
	if limit > 0 && hi-lo >= uint64(limit) {
		return tooLarge(vf, vt, limit)
	}
	return nil
}

func tooLarge(vf, vt *semver.Version, limit int) error {
	from, to := Canonical(vf), Canonical(vt)
	return oops.Code(CodeRangeTooLarge).
		With("from", from, "to", to, "max", limit).
		Errorf("range %s to %s spans more than %d versions", from, to, limit)
}

// enumerate names every number in lo..hi. The loop stops on equality so a
// bound of math.MaxUint64 cannot wrap around.
func enumerate(lo, hi uint64, name func(uint64) string) []string {
	var out []string
	for m := lo; ; m++ {
		out = append(out, name(m))
		if m == hi {
			return out
		}
	}
}

// Canonical renders a parsed version the way Trino names its releases.
func Canonical(v *semver.Version) string {
	if isLegacy(v) {
		return "0." + strconv.FormatUint(v.Minor(), 10)
	}
	switch {
	case v.Minor() == 0 && v.Patch() == 0:
		return strconv.FormatUint(v.Major(), 10)
	case v.Patch() == 0:
		return strconv.FormatUint(v.Major(), 10) + "." + strconv.FormatUint(v.Minor(), 10)
	}
	return v.String()
}

// CanonicalString parses s and renders it canonically.
func CanonicalString(s string) (string, error) {
	v, err := Parse(s)
	if err != nil {
		return "", err
	}
	return Canonical(v), nil
}

func isLegacy(v *semver.Version) bool {
	return v.Major() == 0
}

// ParseReleaseDate parses dates as written in release-note headings,
// e.g. "25 Jan 2023" or "1 September 2022".
func ParseReleaseDate(s string) (time.Time, bool) {
	for _, layout := range []string{"2 Jan 2006", "2 January 2006", "2006-01-02"} {
		if t, err := time.Parse(layout, strings.TrimSpace(s)); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
