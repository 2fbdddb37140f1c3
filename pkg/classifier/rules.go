package classifier

import (
	"regexp"
	"strings"

	"github.com/samber/lo"

	"github.com/kringz/sidebyside/pkg/model"
)

var (
	breakingMarkers = []string{"breaking change", "⚠️", "{{breaking}}"}

	deletionPrefixes = []string{"remove ", "removed ", "drop support", "drop the "}
	removalPrefixes  = append([]string{"deprecate"}, deletionPrefixes...)
	removalPhrases   = []string{"deprecated", "no longer supported", "has been removed", "is removed"}

	featurePrefixes = []string{"add ", "support ", "allow ", "introduce ", "enable ", "expose "}

	performancePhrases = []string{"performance", "faster", "speed up", "latency", "memory usage", "reduce memory", "cpu usage"}

	// Matches a leading breaking-change marker so titles read naturally.
	breakingPrefixRe = regexp.MustCompile(`(?i)^(?:⚠️\s*)?(?:\{\{breaking\}\}\s*)?(?:breaking change:?\s*)?`)
	firstSentenceRe  = regexp.MustCompile(`(?s)^(.+?[.!?])\s+(.+)$`)
	whitespaceRe     = regexp.MustCompile(`\s+`)
)

// Rule is the outcome of classifying one item.
type Rule struct {
	Category             model.Category
	Status               string
	ImpactsPerformance   bool
	ImpactsCompatibility bool
}

// ClassifyItem assigns a category and flags to an item from the heading it
// was listed under and its text. Breaking changes win over removals, which
// win over new features.
func ClassifyItem(heading, text string) Rule {
	h := strings.ToLower(heading)
	lower := strings.ToLower(text)
	body := strings.ToLower(strings.TrimSpace(breakingPrefixRe.ReplaceAllString(text, "")))

	var r Rule
	switch {
	case strings.Contains(h, "breaking") || containsAny(lower, breakingMarkers):
		r.Category = model.CategoryBreaking
	case strings.Contains(h, "deprecat") || strings.Contains(h, "removed") ||
		hasAnyPrefix(body, removalPrefixes) || containsAny(body, removalPhrases):
		r.Category = model.CategoryDeprecatedRemoved
		r.Status = model.StatusRemoved
		if !hasAnyPrefix(body, deletionPrefixes) && strings.Contains(body, "deprecat") {
			r.Status = model.StatusDeprecated
		}
	case strings.Contains(h, "new feature") || strings.Contains(h, "feature changes") ||
		hasAnyPrefix(body, featurePrefixes):
		r.Category = model.CategoryNewFeature
	default:
		r.Category = model.CategoryOther
	}

	r.ImpactsPerformance = containsAny(body, performancePhrases) || strings.Contains(h, "performance")
	r.ImpactsCompatibility = r.Category == model.CategoryBreaking ||
		r.Status == model.StatusRemoved ||
		strings.Contains(body, "compatib")
	return r
}

// IsConnectorHeading reports whether a heading names a connector section and
// returns the connector name ("Hive connector" is "Hive").
func IsConnectorHeading(heading string) (string, bool) {
	h := strings.TrimSpace(heading)
	lower := strings.ToLower(h)
	if !strings.HasSuffix(lower, "connector") {
		return "", false
	}
	name := strings.TrimSpace(h[:len(h)-len("connector")])
	if name == "" {
		return h, true
	}
	return name, true
}

// SplitTitle returns the first sentence of text and the remainder.
func SplitTitle(text string) (string, string) {
	text = strings.TrimSpace(breakingPrefixRe.ReplaceAllString(text, ""))
	if m := firstSentenceRe.FindStringSubmatch(text); m != nil {
		return m[1], strings.TrimSpace(m[2])
	}
	return text, ""
}

func cleanText(s string) string {
	s = strings.NewReplacer("¶", "", " ", " ").Replace(s)
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

func cleanHeading(s string) string {
	return strings.TrimSpace(strings.TrimRight(cleanText(s), "#"))
}

func containsAny(s string, phrases []string) bool {
	return lo.SomeBy(phrases, func(p string) bool { return strings.Contains(s, p) })
}

func hasAnyPrefix(s string, prefixes []string) bool {
	return lo.SomeBy(prefixes, func(p string) bool { return strings.HasPrefix(s, p) })
}
