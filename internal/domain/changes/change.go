package changes

import (
	"time"

	"github.com/relicta-tech/monorel/internal/domain/version"
)

// ChangeType classifies a change for bump seeding.
type ChangeType string

const (
	ChangeFeature ChangeType = "feature"
	ChangeFix     ChangeType = "fix"
	ChangeOther   ChangeType = "other"
)

// Change is a unit of intent attached to a package: either derived from a
// conventional commit or entered by hand.
type Change struct {
	Package     string
	Type        ChangeType
	CommitType  CommitType
	Description string
	Breaking    bool
	Commit      string
}

// FromCommit maps a parsed commit to a change on pkg. Breaking changes carry
// the footer text when present.
func FromCommit(pkg string, c *ConventionalCommit) Change {
	ch := Change{
		Package:     pkg,
		CommitType:  c.Type(),
		Description: c.Description(),
		Breaking:    c.IsBreaking(),
		Commit:      c.Hash(),
	}
	switch c.Type() {
	case CommitTypeFeat:
		ch.Type = ChangeFeature
	case CommitTypeFix:
		ch.Type = ChangeFix
	default:
		ch.Type = ChangeOther
	}
	if c.BreakingDescription() != "" {
		ch.Description = c.BreakingDescription()
	}
	return ch
}

// BumpFor returns the bump a single commit contributes. Breaking commits are
// always Major; everything else, including non-conventional commits, is
// looked up in the table.
func (t *TypeTable) BumpFor(c *ConventionalCommit) version.BumpKind {
	if c.IsBreaking() {
		return version.BumpMajor
	}
	cfg, _ := t.Lookup(c.Type())
	return cfg.Bump
}

// VersionBumpFor folds commits into the largest bump. The result does not
// depend on commit order.
func (t *TypeTable) VersionBumpFor(commits []*ConventionalCommit) version.BumpKind {
	result := version.BumpNone
	for _, c := range commits {
		result = version.MaxBump(result, t.BumpFor(c))
	}
	return result
}

// SectionFor returns the changelog section of a commit and whether it
// should be shown.
func (t *TypeTable) SectionFor(c *ConventionalCommit) (string, bool) {
	cfg, _ := t.Lookup(c.Type())
	return cfg.Section, cfg.ShowInChangelog
}

// RawCommit is an unparsed commit as read from history.
type RawCommit struct {
	Hash    string
	Author  string
	Date    time.Time
	Message string
}

// ParseAll parses messages in input order and collects a
// warning for every non-conventional one.
func ParseAll(messages []RawCommit) ([]*ConventionalCommit, []error) {
	out := make([]*ConventionalCommit, 0, len(messages))
	var warnings []error
	for _, m := range messages {
		c := ParseConventionalCommit(m.Hash, m.Message, WithAuthor(m.Author), WithDate(m.Date))
		if w := c.Warning(); w != nil {
			warnings = append(warnings, w)
		}
		out = append(out, c)
	}
	return out, warnings
}
