// Package changeset provides the branch-scoped release intent record.
package changeset

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/relicta-tech/monorel/internal/domain/changes"
	"github.com/relicta-tech/monorel/internal/domain/plan"
	"github.com/relicta-tech/monorel/internal/domain/version"
	rperrors "github.com/relicta-tech/monorel/internal/errors"
)

// ReasonKind is the on-disk reason of a package entry.
type ReasonKind string

const (
	ReasonDirect     ReasonKind = "direct"
	ReasonDependency ReasonKind = "dependency"
	ReasonManual     ReasonKind = "manual"
	ReasonCycle      ReasonKind = "cycle"
)

// Reason explains why a package is part of the changeset.
type Reason struct {
	Kind   ReasonKind `json:"kind" yaml:"kind" toml:"kind" validate:"required,oneof=direct dependency manual cycle"`
	Detail string     `json:"detail,omitempty" yaml:"detail,omitempty" toml:"detail,omitempty"`
}

// Change is one recorded change of a package.
type Change struct {
	Type        string `json:"type" yaml:"type" toml:"type" validate:"required"`
	Description string `json:"description" yaml:"description" toml:"description"`
	Breaking    bool   `json:"breaking" yaml:"breaking" toml:"breaking"`
	Commit      string `json:"commit,omitempty" yaml:"commit,omitempty" toml:"commit,omitempty" validate:"omitempty,hexadecimal"`
}

// Package is the planned move of one package.
type Package struct {
	Name    string           `json:"name" yaml:"name" toml:"name" validate:"required"`
	Bump    version.BumpKind `json:"bump" yaml:"bump" toml:"bump" validate:"bumpkind"`
	From    string           `json:"from" yaml:"from" toml:"from" validate:"required,semver"`
	To      string           `json:"to" yaml:"to" toml:"to" validate:"required,semver"`
	Reason  Reason           `json:"reason" yaml:"reason" toml:"reason"`
	Changes []Change         `json:"changes" yaml:"changes" toml:"changes" validate:"dive"`
}

// Changeset records the release intent of one branch. There is at most one
// active changeset per branch.
type Changeset struct {
	Branch             string    `json:"branch" yaml:"branch" toml:"branch" validate:"required"`
	Author             string    `json:"author" yaml:"author" toml:"author"`
	CreatedAt          time.Time `json:"created_at" yaml:"created_at" toml:"created_at" validate:"required"`
	UpdatedAt          time.Time `json:"updated_at" yaml:"updated_at" toml:"updated_at" validate:"required,gtecsfield=CreatedAt"`
	TargetEnvironments []string  `json:"target_environments" yaml:"target_environments" toml:"target_environments" validate:"dive,required"`
	Packages           []Package `json:"packages" yaml:"packages" toml:"packages" validate:"dive"`
	Commits            []string  `json:"commits" yaml:"commits" toml:"commits" validate:"dive,hexadecimal"`

	archived bool
}

// New creates an empty draft changeset. Timestamps are truncated to whole
// seconds so they survive every codec unchanged.
func New(branch, author string, envs []string, now time.Time) *Changeset {
	now = now.UTC().Truncate(time.Second)
	return &Changeset{
		Branch:             branch,
		Author:             author,
		CreatedAt:          now,
		UpdatedAt:          now,
		TargetEnvironments: normalize(envs),
		Packages:           []Package{},
		Commits:            []string{},
	}
}

// Status returns the derived lifecycle state.
func (c *Changeset) Status() Status {
	switch {
	case c.archived:
		return StatusArchived
	case len(c.Packages) > 0:
		return StatusReady
	default:
		return StatusDraft
	}
}

// IsArchived reports whether the record was loaded from history.
func (c *Changeset) IsArchived() bool {
	return c.archived
}

// MarkArchived flags the record as archived.
func (c *Changeset) MarkArchived() {
	c.archived = true
}

// Touch advances UpdatedAt to now, or one second past its current value when
// now is not later, so updates are strictly ordered.
func (c *Changeset) Touch(now time.Time) {
	now = now.UTC().Truncate(time.Second)
	if !now.After(c.UpdatedAt) {
		now = c.UpdatedAt.Add(time.Second)
	}
	c.UpdatedAt = now
}

// Package returns the entry for name.
func (c *Changeset) Package(name string) (Package, bool) {
	for _, p := range c.Packages {
		if p.Name == name {
			return p, true
		}
	}
	return Package{}, false
}

// SetPackage adds or replaces the entry for p.Name, keeping entries sorted.
func (c *Changeset) SetPackage(p Package) {
	for i := range c.Packages {
		if c.Packages[i].Name == p.Name {
			c.Packages[i] = p
			return
		}
	}
	c.Packages = append(c.Packages, p)
	sort.Slice(c.Packages, func(i, j int) bool { return c.Packages[i].Name < c.Packages[j].Name })
}

// AddCommits appends hashes not already recorded.
func (c *Changeset) AddCommits(hashes ...string) {
	seen := make(map[string]bool, len(c.Commits))
	for _, h := range c.Commits {
		seen[h] = true
	}
	for _, h := range hashes {
		h = strings.ToLower(strings.TrimSpace(h))
		if h == "" || seen[h] {
			continue
		}
		seen[h] = true
		c.Commits = append(c.Commits, h)
	}
}

// HasEnvironment reports whether env is targeted.
func (c *Changeset) HasEnvironment(env string) bool {
	for _, e := range c.TargetEnvironments {
		if e == env {
			return true
		}
	}
	return false
}

// ApplyPlan replaces the package entries with the suggestions of p. The
// changes map supplies the per-package change list.
func (c *Changeset) ApplyPlan(p *plan.Plan, byPackage map[string][]changes.Change) {
	c.Packages = c.Packages[:0]
	for _, s := range p.Suggestions {
		entry := Package{
			Name:    s.Package,
			Bump:    s.Bump,
			From:    s.From.String(),
			To:      s.Resolved().String(),
			Reason:  reasonOf(s),
			Changes: []Change{},
		}
		for _, ch := range byPackage[s.Package] {
			entry.Changes = append(entry.Changes, Change{
				Type:        changeType(ch),
				Description: ch.Description,
				Breaking:    ch.Breaking,
				Commit:      ch.Commit,
			})
		}
		c.SetPackage(entry)
	}
}

func changeType(ch changes.Change) string {
	if ch.CommitType != "" {
		return ch.CommitType.String()
	}
	return string(ch.Type)
}

// reasonOf picks the strongest reason of a suggestion: manual, then direct,
// then cycle, then dependency.
func reasonOf(s plan.VersionSuggestion) Reason {
	var direct, cycle, dep *plan.BumpReason
	for i := range s.Reasons {
		r := &s.Reasons[i]
		switch {
		case r.Kind == plan.ReasonManual:
			return Reason{Kind: ReasonManual}
		case r.IsDirect() && direct == nil:
			direct = r
		case r.Kind == plan.ReasonCycle && cycle == nil:
			cycle = r
		case r.Kind == plan.ReasonDependency && dep == nil:
			dep = r
		}
	}
	switch {
	case direct != nil:
		return Reason{Kind: ReasonDirect, Detail: direct.Detail}
	case cycle != nil:
		return Reason{Kind: ReasonCycle, Detail: cycle.Detail}
	case dep != nil:
		return Reason{Kind: ReasonDependency, Detail: dep.Detail}
	}
	return Reason{Kind: ReasonDirect}
}

func normalize(envs []string) []string {
	out := make([]string, 0, len(envs))
	seen := make(map[string]bool, len(envs))
	for _, e := range envs {
		e = strings.TrimSpace(e)
		if e == "" || seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	return out
}

// DefaultReleaseBranches are the branches that never carry a changeset.
var DefaultReleaseBranches = []string{"main", "master", "develop"}

// invalidBranchChars are the characters git forbids in ref names.
var invalidBranchChars = regexp.MustCompile(`[\x00-\x20~^:?*\[\\\x7f]`)

// ValidateBranch checks that branch is a usable ref name that is not one of
// the release branches.
func ValidateBranch(branch string, releaseBranches []string) error {
	const op = "changeset.ValidateBranch"

	switch {
	case strings.TrimSpace(branch) == "":
		return rperrors.Coded(rperrors.CodeInvalidBranch, op, "branch name is empty")
	case invalidBranchChars.MatchString(branch),
		strings.Contains(branch, ".."),
		strings.Contains(branch, "@{"),
		strings.Contains(branch, "//"),
		strings.HasPrefix(branch, "/"), strings.HasSuffix(branch, "/"),
		strings.HasSuffix(branch, "."), strings.HasSuffix(branch, ".lock"):
		return rperrors.Coded(rperrors.CodeInvalidBranch, op, "invalid branch name %q", branch).
			WithDetail("branch", branch)
	}
	if releaseBranches == nil {
		releaseBranches = DefaultReleaseBranches
	}
	for _, rb := range releaseBranches {
		if branch == rb {
			return rperrors.Coded(rperrors.CodeInvalidBranch, op,
				"branch %q is a release branch and cannot carry a changeset", branch).
				WithDetail("branch", branch)
		}
	}
	return nil
}

// SafeName returns the file stem for branch: every "/" becomes "-".
func SafeName(branch string) string {
	return strings.ReplaceAll(branch, "/", "-")
}
