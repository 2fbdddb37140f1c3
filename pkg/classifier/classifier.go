// Package classifier turns Trino release-notes pages into categorized change
// items.
package classifier

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/parser"
	"go.uber.org/zap"

	"github.com/kringz/sidebyside/pkg/model"
	"github.com/kringz/sidebyside/pkg/version"
)

// DefaultComponent is the component of items not listed under any heading.
const DefaultComponent = "General"

// Content containers tried in order; Sphinx themes wrap the notes in one of
// these, and everything outside (navigation, sidebars) is ignored.
var contentSelectors = []string{"article", "[role=main]", "main", "div.main-container", "body"}

var (
	titleDateRe = regexp.MustCompile(`\(([^)]+)\)\s*$`)

	// Sphinx roles in the Markdown sources, e.g. ({issue}`15000`).
	issueRoleRe = regexp.MustCompile("\\s*\\(\\{issue\\}`[^`]*`\\)")
	roleRe      = regexp.MustCompile(`\{[a-z]+\}` + "`")
)

// Classifier parses release-notes pages.
type Classifier struct {
	log *zap.Logger
}

// New returns a Classifier logging to log.
func New(log *zap.Logger) *Classifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Classifier{log: log}
}

// Classify parses a fetched release and classifies every item in it.
// Markdown sources are rendered to HTML first.
func (c *Classifier) Classify(release *model.Release) (*model.VersionChanges, error) {
	body := release.Body
	if IsMarkdown(release) {
		body = RenderMarkdown(body)
	}
	changes, err := c.ClassifyHTML(release.Version, body)
	if err != nil {
		return nil, err
	}
	changes.URL = release.URL
	return changes, nil
}

// IsMarkdown reports whether the release body is Markdown rather than HTML.
func IsMarkdown(release *model.Release) bool {
	ct := strings.ToLower(release.ContentType)
	if strings.Contains(ct, "markdown") {
		return true
	}
	if strings.Contains(ct, "html") {
		return false
	}
	return strings.HasSuffix(strings.ToLower(release.URL), ".md")
}

// RenderMarkdown converts Markdown release notes to HTML.
func RenderMarkdown(md []byte) []byte {
	md = issueRoleRe.ReplaceAll(md, nil)
	md = roleRe.ReplaceAll(md, []byte("`"))
	md = bytes.ReplaceAll(md, []byte("{{breaking}}"), []byte("⚠️ Breaking change:"))
	p := parser.NewWithExtensions(parser.CommonExtensions)
	return markdown.ToHTML(md, p, nil)
}

// ClassifyHTML classifies the release notes in an HTML document.
func (c *Classifier) ClassifyHTML(v string, body []byte) (*model.VersionChanges, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse release notes for version %s: %w", v, err)
	}

	content := doc.Selection
	for _, sel := range contentSelectors {
		if found := doc.Find(sel).First(); found.Length() > 0 {
			content = found
			break
		}
	}

	changes := &model.VersionChanges{
		Version: v,
		Items:   []model.ChangeItem{},
	}
	if title := cleanHeading(content.Find("h1").First().Text()); title != "" {
		changes.Title = title
		if m := titleDateRe.FindStringSubmatch(title); len(m) == 2 {
			if date, ok := version.ParseReleaseDate(m[1]); ok {
				changes.ReleaseDate = date.Format("2006-01-02")
			}
		}
	}

	w := walker{version: v, section: DefaultComponent, component: DefaultComponent}
	content.Find("h2, h3, ul, ol").Each(func(_ int, s *goquery.Selection) {
		switch goquery.NodeName(s) {
		case "h2":
			w.enterSection(cleanHeading(s.Text()), true)
		case "h3":
			w.enterSection(cleanHeading(s.Text()), false)
		default:
			// nested lists belong to the item that contains them
			if s.ParentsFiltered("li").Length() > 0 {
				return
			}
			s.ChildrenFiltered("li").Each(func(_ int, li *goquery.Selection) {
				if item, ok := w.item(li); ok {
					changes.Items = append(changes.Items, item)
				} else {
					changes.Skipped++
				}
			})
		}
	})

	if changes.Skipped > 0 {
		c.log.Debug("Skipped empty release-note items",
			zap.String("version", v),
			zap.Int("skipped", changes.Skipped))
	}
	if len(changes.Items) == 0 {
		c.log.Warn("No change items found in release notes", zap.String("version", v))
	}
	return changes, nil
}

// walker tracks the heading context while visiting a document in order.
type walker struct {
	version   string
	section   string
	component string
	connector string

	// connector of the enclosing h2, inherited by h3 subsections
	parentConnector string
}

func (w *walker) enterSection(heading string, top bool) {
	if heading == "" {
		return
	}
	w.section = heading
	name, isConnector := IsConnectorHeading(heading)
	switch {
	case isConnector:
		w.connector = name
		w.component = name
	case !top && w.parentConnector != "":
		w.connector = w.parentConnector
		w.component = w.parentConnector
	default:
		w.connector = ""
		w.component = heading
	}
	if top {
		w.parentConnector = w.connector
	}
}

func (w *walker) item(li *goquery.Selection) (model.ChangeItem, bool) {
	text := cleanText(li.Text())
	if text == "" {
		return model.ChangeItem{}, false
	}
	rule := ClassifyItem(w.section, text)
	title, description := SplitTitle(text)
	return model.ChangeItem{
		Version:              w.version,
		Title:                title,
		Description:          description,
		Text:                 text,
		Category:             rule.Category,
		Section:              w.section,
		Component:            w.component,
		Connector:            w.connector,
		Symbol:               cleanText(li.Find("code").First().Text()),
		Status:               rule.Status,
		ImpactsPerformance:   rule.ImpactsPerformance,
		ImpactsCompatibility: rule.ImpactsCompatibility,
	}, true
}
