package plan

import (
	"encoding/json"

	"github.com/relicta-tech/monorel/internal/domain/version"
	"github.com/relicta-tech/monorel/internal/domain/workspace"
)

// Warning codes attached to plans.
const (
	WarnCycleDetected      = "cycle_detected"
	WarnSelfDependency     = "self_dependency"
	WarnVersionConflict    = "version_conflict"
	WarnNotConventional    = "not_conventional"
	WarnGitUnavailable     = "git_unavailable"
	WarnStaleRequirement   = "stale_requirement"
	WarnRegistry           = "registry_unavailable"
	WarnUnownedFiles       = "unowned_files"
	WarnBreakingSuppressed = "breaking_suppressed"
)

// Warning is a non-fatal finding recorded on a plan.
type Warning struct {
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

// RequirementUpdate is a dependency requirement the declaring package must
// rewrite to accept the planned version of an internal dependency.
type RequirementUpdate struct {
	Dependency string                   `json:"dependency"`
	Kind       workspace.DependencyKind `json:"kind"`
	From       version.Requirement      `json:"from"`
	To         version.Requirement      `json:"to"`
}

// VersionSuggestion is the planned move of one package.
type VersionSuggestion struct {
	Package            string
	From               version.SemanticVersion
	To                 version.SemanticVersion
	Bump               version.BumpKind
	Reasons            []BumpReason
	CycleGroup         []string
	Snapshot           *version.SnapshotVersion
	RequirementUpdates []RequirementUpdate
}

// Resolved returns the snapshot version when one is set, else the release.
func (s VersionSuggestion) Resolved() version.ResolvedVersion {
	if s.Snapshot != nil {
		return version.Snapshot(*s.Snapshot)
	}
	return version.Release(s.To)
}

// HasReason reports whether the suggestion carries a reason of kind k.
func (s VersionSuggestion) HasReason(k ReasonKind) bool {
	for _, r := range s.Reasons {
		if r.Kind == k {
			return true
		}
	}
	return false
}

// Plan is the ordered list of suggestions: every package appears after the
// packages it depends on, cycle members as one contiguous block.
type Plan struct {
	Suggestions []VersionSuggestion
	Warnings    []Warning
}

// IsEmpty reports whether nothing is bumped.
func (p *Plan) IsEmpty() bool {
	return len(p.Suggestions) == 0
}

// Get returns the suggestion for a package.
func (p *Plan) Get(name string) (VersionSuggestion, bool) {
	for _, s := range p.Suggestions {
		if s.Package == name {
			return s, true
		}
	}
	return VersionSuggestion{}, false
}

// Names returns the planned packages in plan order.
func (p *Plan) Names() []string {
	out := make([]string, len(p.Suggestions))
	for i, s := range p.Suggestions {
		out[i] = s.Package
	}
	return out
}

// Warn appends a warning.
func (p *Plan) Warn(code, detail string) {
	p.Warnings = append(p.Warnings, Warning{Code: code, Detail: detail})
}

// ApplySnapshot replaces every target with a snapshot of it. Requirement
// updates pointing at a snapshotted dependency are rewritten to accept the
// snapshot when it is a valid semantic version.
func (p *Plan) ApplySnapshot(sha string, length int, style version.SnapshotStyle) error {
	snaps := make([]version.SnapshotVersion, len(p.Suggestions))
	for i, s := range p.Suggestions {
		snap, err := version.NewSnapshot(s.To, sha, length)
		if err != nil {
			return err
		}
		snaps[i] = snap.WithStyle(style)
	}

	resolved := make(map[string]version.SemanticVersion, len(snaps))
	for i := range p.Suggestions {
		p.Suggestions[i].Snapshot = &snaps[i]
		if v, err := version.Parse(snaps[i].String()); err == nil {
			resolved[p.Suggestions[i].Package] = v
		}
	}
	for i := range p.Suggestions {
		for j, u := range p.Suggestions[i].RequirementUpdates {
			if v, ok := resolved[u.Dependency]; ok {
				p.Suggestions[i].RequirementUpdates[j].To = u.From.Rewrite(v)
			}
		}
	}
	return nil
}

// Report is the stable JSON form of a plan.
type Report struct {
	Suggestions []SuggestionReport `json:"suggestions"`
	Warnings    []Warning          `json:"warnings"`
}

// SuggestionReport is the JSON form of one suggestion.
type SuggestionReport struct {
	Package            string              `json:"package"`
	From               string              `json:"from"`
	To                 string              `json:"to"`
	Bump               string              `json:"bump"`
	Reasons            []BumpReason        `json:"reasons"`
	CycleGroup         []string            `json:"cycle_group,omitempty"`
	Snapshot           string              `json:"snapshot,omitempty"`
	RequirementUpdates []RequirementUpdate `json:"requirement_updates,omitempty"`
}

// Report converts the plan to its JSON form.
func (p *Plan) Report() Report {
	r := Report{
		Suggestions: make([]SuggestionReport, 0, len(p.Suggestions)),
		Warnings:    append([]Warning{}, p.Warnings...),
	}
	for _, s := range p.Suggestions {
		sr := SuggestionReport{
			Package:            s.Package,
			From:               s.From.String(),
			To:                 s.To.String(),
			Bump:               s.Bump.String(),
			Reasons:            append([]BumpReason{}, s.Reasons...),
			CycleGroup:         s.CycleGroup,
			RequirementUpdates: s.RequirementUpdates,
		}
		if s.Snapshot != nil {
			sr.Snapshot = s.Snapshot.String()
		}
		r.Suggestions = append(r.Suggestions, sr)
	}
	return r
}

// MarshalJSON renders the plan report.
func (p *Plan) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Report())
}
