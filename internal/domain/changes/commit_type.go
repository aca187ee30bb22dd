// Package changes provides domain types for analyzing commit changes.
package changes

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/relicta-tech/monorel/internal/domain/version"
)

// CommitType represents the type of a conventional commit.
type CommitType string

// Standard conventional commit types.
const (
	CommitTypeFeat     CommitType = "feat"
	CommitTypeFix      CommitType = "fix"
	CommitTypeDocs     CommitType = "docs"
	CommitTypeStyle    CommitType = "style"
	CommitTypeRefactor CommitType = "refactor"
	CommitTypePerf     CommitType = "perf"
	CommitTypeTest     CommitType = "test"
	CommitTypeBuild    CommitType = "build"
	CommitTypeCI       CommitType = "ci"
	CommitTypeChore    CommitType = "chore"
	CommitTypeRevert   CommitType = "revert"
)

// OtherSection is the changelog section for types without configuration.
const OtherSection = "Other"

// IsStandard returns true if t is one of the standard conventional types.
func (t CommitType) IsStandard() bool {
	switch t {
	case CommitTypeFeat, CommitTypeFix, CommitTypeDocs, CommitTypeStyle,
		CommitTypeRefactor, CommitTypePerf, CommitTypeTest, CommitTypeBuild,
		CommitTypeCI, CommitTypeChore, CommitTypeRevert:
		return true
	default:
		return false
	}
}

// String returns the string representation of the commit type.
func (t CommitType) String() string {
	return string(t)
}

// ParseCommitType normalises a type token.
func ParseCommitType(s string) CommitType {
	return CommitType(strings.ToLower(strings.TrimSpace(s)))
}

// TypeConfig is how a commit type participates in releases.
type TypeConfig struct {
	Bump            version.BumpKind
	Section         string
	ShowInChangelog bool
}

// TypeTable maps commit types to their configuration. Types not in the table
// fall back to DefaultBump under the Other section.
type TypeTable struct {
	entries     map[CommitType]TypeConfig
	order       []CommitType
	defaultBump version.BumpKind
}

// NewTypeTable creates an empty table.
func NewTypeTable(defaultBump version.BumpKind) *TypeTable {
	return &TypeTable{
		entries:     make(map[CommitType]TypeConfig),
		defaultBump: defaultBump,
	}
}

// DefaultTypeTable returns the standard configuration.
func DefaultTypeTable() *TypeTable {
	t := NewTypeTable(version.BumpPatch)
	t.Set(CommitTypeFeat, TypeConfig{Bump: version.BumpMinor, Section: "Features", ShowInChangelog: true})
	t.Set(CommitTypeFix, TypeConfig{Bump: version.BumpPatch, Section: "Bug Fixes", ShowInChangelog: true})
	t.Set(CommitTypePerf, TypeConfig{Bump: version.BumpPatch, Section: "Performance Improvements", ShowInChangelog: true})
	t.Set(CommitTypeRevert, TypeConfig{Bump: version.BumpPatch, Section: "Reverts", ShowInChangelog: true})
	t.Set(CommitTypeRefactor, TypeConfig{Bump: version.BumpPatch, Section: "Code Refactoring"})
	t.Set(CommitTypeDocs, TypeConfig{Bump: version.BumpNone, Section: "Documentation"})
	t.Set(CommitTypeStyle, TypeConfig{Bump: version.BumpNone, Section: "Styles"})
	t.Set(CommitTypeTest, TypeConfig{Bump: version.BumpNone, Section: "Tests"})
	t.Set(CommitTypeBuild, TypeConfig{Bump: version.BumpPatch, Section: "Build System"})
	t.Set(CommitTypeCI, TypeConfig{Bump: version.BumpNone, Section: "Continuous Integration"})
	t.Set(CommitTypeChore, TypeConfig{Bump: version.BumpNone, Section: "Chores"})
	return t
}

// Set configures a type. A blank section is derived from the type name.
func (t *TypeTable) Set(ct CommitType, cfg TypeConfig) {
	if cfg.Section == "" {
		cfg.Section = cases.Title(language.English).String(strings.ReplaceAll(string(ct), "-", " "))
	}
	if _, ok := t.entries[ct]; !ok {
		t.order = append(t.order, ct)
	}
	t.entries[ct] = cfg
}

// SetDefaultBump changes the bump for unconfigured types.
func (t *TypeTable) SetDefaultBump(b version.BumpKind) {
	t.defaultBump = b
}

// DefaultBump returns the bump for unconfigured types.
func (t *TypeTable) DefaultBump() version.BumpKind {
	return t.defaultBump
}

// Lookup returns the configuration of ct and whether it was configured.
func (t *TypeTable) Lookup(ct CommitType) (TypeConfig, bool) {
	if cfg, ok := t.entries[ct]; ok {
		return cfg, true
	}
	return TypeConfig{Bump: t.defaultBump, Section: OtherSection, ShowInChangelog: true}, false
}

// Types returns the configured types in the order they were added.
func (t *TypeTable) Types() []CommitType {
	return append([]CommitType(nil), t.order...)
}

// Sections returns the distinct configured sections in type order.
func (t *TypeTable) Sections() []string {
	seen := make(map[string]bool)
	var out []string
	for _, ct := range t.order {
		s := t.entries[ct].Section
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
