// Package changelog groups conventional commits into release blocks and
// merges them into CHANGELOG.md files.
package changelog

import (
	"strings"
	"time"

	"github.com/relicta-tech/monorel/internal/domain/changes"
)

// BreakingSection is the title of the leading breaking-changes section.
const BreakingSection = "⚠ BREAKING CHANGES"

// Item is one line of a section.
type Item struct {
	Description string
	Scope       string
	ShortHash   string
	Link        string
}

// Section is a titled list of items.
type Section struct {
	Title string
	Items []Item
}

// Entry is one release block.
type Entry struct {
	Package  string
	Version  string
	Date     time.Time
	Sections []Section
}

// IsEmpty reports whether the entry has no visible items.
func (e Entry) IsEmpty() bool {
	for _, s := range e.Sections {
		if len(s.Items) > 0 {
			return false
		}
	}
	return true
}

// Renderer turns commits into release blocks.
type Renderer struct {
	types   *changes.TypeTable
	links   Links
	heading Template
}

// RendererOption configures a Renderer.
type RendererOption func(*Renderer)

// WithTypes sets the type table used for sections and visibility.
func WithTypes(t *changes.TypeTable) RendererOption {
	return func(r *Renderer) {
		r.types = t
	}
}

// WithLinks sets commit link resolution.
func WithLinks(l Links) RendererOption {
	return func(r *Renderer) {
		r.links = l
	}
}

// WithHeading sets the release block heading template.
func WithHeading(t Template) RendererOption {
	return func(r *Renderer) {
		r.heading = t
	}
}

// NewRenderer creates a renderer with the default type table, no links and
// the default heading.
func NewRenderer(opts ...RendererOption) *Renderer {
	r := &Renderer{
		types:   changes.DefaultTypeTable(),
		heading: MustParseTemplate(DefaultHeading),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Build groups commits into an entry. Sections follow the type table order
// and Other is always last. Breaking commits are also listed first under
// BreakingSection with their footer text when present.
func (r *Renderer) Build(pkg, ver string, date time.Time, commits []*changes.ConventionalCommit) Entry {
	entry := Entry{Package: pkg, Version: ver, Date: date}

	var breaking []Item
	bySection := make(map[string][]Item)

	for _, c := range commits {
		if c.IsBreaking() {
			item := r.item(c)
			if d := c.BreakingDescription(); d != "" {
				item.Description = d
			}
			breaking = append(breaking, item)
		}

		section, show := r.types.SectionFor(c)
		if !show {
			continue
		}
		bySection[section] = append(bySection[section], r.item(c))
	}

	if len(breaking) > 0 {
		entry.Sections = append(entry.Sections, Section{Title: BreakingSection, Items: breaking})
	}
	order := append(r.types.Sections(), changes.OtherSection)
	seen := make(map[string]bool, len(order))
	for _, title := range order {
		if seen[title] {
			continue
		}
		seen[title] = true
		if items := bySection[title]; len(items) > 0 {
			entry.Sections = append(entry.Sections, Section{Title: title, Items: items})
		}
	}
	return entry
}

func (r *Renderer) item(c *changes.ConventionalCommit) Item {
	return Item{
		Description: c.Description(),
		Scope:       c.Scope(),
		ShortHash:   c.ShortHash(),
		Link:        r.links.CommitURL(c.Hash()),
	}
}

// Heading renders the heading line of e.
func (r *Renderer) Heading(e Entry) string {
	return r.heading.Execute(Vars{
		Package: e.Package,
		Version: e.Version,
		Date:    e.Date,
		RepoURL: r.links.RepoURL,
	})
}

// Render renders e as markdown. An empty entry renders as "".
func (r *Renderer) Render(e Entry) string {
	if e.IsEmpty() {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(r.Heading(e))
	sb.WriteString("\n\n")
	for _, section := range e.Sections {
		if len(section.Items) == 0 {
			continue
		}
		sb.WriteString("### ")
		sb.WriteString(section.Title)
		sb.WriteString("\n\n")
		for _, item := range section.Items {
			sb.WriteString(renderItem(item))
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// renderItem renders "- description (scope) [sha](link)".
func renderItem(item Item) string {
	var sb strings.Builder
	sb.WriteString("- ")
	sb.WriteString(item.Description)
	if item.Scope != "" {
		sb.WriteString(" (")
		sb.WriteString(item.Scope)
		sb.WriteString(")")
	}
	switch {
	case item.ShortHash != "" && item.Link != "":
		sb.WriteString(" [")
		sb.WriteString(item.ShortHash)
		sb.WriteString("](")
		sb.WriteString(item.Link)
		sb.WriteString(")")
	case item.ShortHash != "":
		sb.WriteString(" ")
		sb.WriteString(item.ShortHash)
	}
	return sb.String()
}
