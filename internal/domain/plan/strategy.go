// Package plan computes ordered version bump plans for a workspace.
package plan

import (
	"fmt"
	"sort"
	"strings"

	"github.com/relicta-tech/monorel/internal/domain/changes"
	"github.com/relicta-tech/monorel/internal/domain/version"
	rperrors "github.com/relicta-tech/monorel/internal/errors"
)

// StrategyKind names a planning strategy.
type StrategyKind string

const (
	StrategyIndependent  StrategyKind = "independent"
	StrategyConventional StrategyKind = "conventional"
	StrategyUnified      StrategyKind = "unified"
	StrategyManual       StrategyKind = "manual"
)

// ParseStrategyKind parses a configured strategy name.
func ParseStrategyKind(s string) (StrategyKind, error) {
	switch k := StrategyKind(strings.ToLower(strings.TrimSpace(s))); k {
	case StrategyIndependent, StrategyConventional, StrategyUnified, StrategyManual:
		return k, nil
	case "conventional-commits", "conventional_commits":
		return StrategyConventional, nil
	}
	return "", rperrors.Coded(rperrors.CodeInvalidStrategy, "plan.ParseStrategyKind",
		"unknown strategy %q (want independent, conventional, unified or manual)", s)
}

// Strategy decides how changes become bumps.
type Strategy interface {
	Kind() StrategyKind
	validate() error
}

// Promotions switches individual promotions on or off.
type Promotions struct {
	MajorIfBreaking bool
	MinorIfFeature  bool
	PatchOtherwise  bool
}

// AllPromotions enables every promotion.
func AllPromotions() Promotions {
	return Promotions{MajorIfBreaking: true, MinorIfFeature: true, PatchOtherwise: true}
}

// contribute returns the bump and reason a single change contributes given
// its base bump. Breaking changes keep their Breaking reason even when the
// major promotion is off and are demoted like any other change.
func (p Promotions) contribute(base version.BumpKind, ch changes.Change) (version.BumpKind, BumpReason) {
	reason := reasonFor(ch)
	if ch.Breaking && p.MajorIfBreaking {
		return version.BumpMajor, reason
	}

	k := base
	if k == version.BumpMajor {
		k = version.BumpMinor
	}
	if k == version.BumpMinor && !p.MinorIfFeature {
		k = version.BumpPatch
	}
	if k == version.BumpPatch && !p.PatchOtherwise {
		k = version.BumpNone
	}
	return k, reason
}

func reasonFor(ch changes.Change) BumpReason {
	switch {
	case ch.Breaking:
		return Breaking(ch.Description)
	case ch.Type == changes.ChangeFeature:
		return Feature(ch.Description)
	case ch.Type == changes.ChangeFix:
		return Fix(ch.Description)
	default:
		return Other(ch.Description)
	}
}

// Independent bumps each package from its own changes: features are minor,
// everything else is patch.
type Independent struct {
	Promotions
}

// Kind implements Strategy.
func (Independent) Kind() StrategyKind { return StrategyIndependent }

func (Independent) validate() error { return nil }

func (s Independent) seed(ch changes.Change) (version.BumpKind, BumpReason) {
	base := version.BumpPatch
	if ch.Type == changes.ChangeFeature {
		base = version.BumpMinor
	}
	return s.contribute(base, ch)
}

// ConventionalCommits bumps each package from commits since FromRef, using
// the type table for the base bump of each commit type.
type ConventionalCommits struct {
	Promotions
	FromRef string
	Types   *changes.TypeTable
}

// Kind implements Strategy.
func (ConventionalCommits) Kind() StrategyKind { return StrategyConventional }

func (ConventionalCommits) validate() error { return nil }

func (s ConventionalCommits) seed(ch changes.Change) (version.BumpKind, BumpReason) {
	if ch.CommitType == "" {
		// Not derived from a commit.
		return Independent{Promotions: s.Promotions}.seed(ch)
	}
	types := s.Types
	if types == nil {
		types = changes.DefaultTypeTable()
	}
	cfg, _ := types.Lookup(ch.CommitType)
	return s.contribute(cfg.Bump, ch)
}

// Unified moves every package to the same version.
type Unified struct {
	Version version.SemanticVersion
}

// Kind implements Strategy.
func (Unified) Kind() StrategyKind { return StrategyUnified }

func (s Unified) validate() error {
	if s.Version.Equal(version.Zero) {
		return rperrors.Coded(rperrors.CodeInvalidStrategy, "plan.Unified", "unified strategy needs a target version")
	}
	return nil
}

// Manual sets explicit per-package targets. Packages without a target are
// planned from their changes with every promotion enabled.
type Manual struct {
	Targets map[string]version.SemanticVersion
}

// Kind implements Strategy.
func (Manual) Kind() StrategyKind { return StrategyManual }

func (Manual) validate() error { return nil }

// ParseManualTargets parses "name=version" pairs.
func ParseManualTargets(pairs []string) (map[string]version.SemanticVersion, error) {
	const op = "plan.ParseManualTargets"

	out := make(map[string]version.SemanticVersion, len(pairs))
	for _, pair := range pairs {
		i := strings.LastIndex(pair, "=")
		if i <= 0 {
			return nil, rperrors.Coded(rperrors.CodeInvalidStrategy, op, "manual target %q must be name=version", pair)
		}
		v, err := version.Parse(pair[i+1:])
		if err != nil {
			return nil, err
		}
		out[strings.TrimSpace(pair[:i])] = v
	}
	return out, nil
}

// DependencyBump maps a dependency's bump to the minimum bump of its
// dependents.
type DependencyBump struct {
	Major version.BumpKind
	Minor version.BumpKind
	Patch version.BumpKind
}

// DefaultDependencyBump propagates a patch bump for every dependency bump.
func DefaultDependencyBump() DependencyBump {
	return DependencyBump{Major: version.BumpPatch, Minor: version.BumpPatch, Patch: version.BumpPatch}
}

// For returns the bump a dependent receives when a dependency moves by k.
func (d DependencyBump) For(k version.BumpKind) version.BumpKind {
	switch k {
	case version.BumpMajor:
		return d.Major
	case version.BumpMinor:
		return d.Minor
	case version.BumpPatch:
		return d.Patch
	default:
		return version.BumpNone
	}
}

// Validate requires every level to propagate at least a patch.
func (d DependencyBump) Validate() error {
	for name, k := range map[string]version.BumpKind{"major": d.Major, "minor": d.Minor, "patch": d.Patch} {
		if k == version.BumpNone || !k.IsValid() {
			return rperrors.Coded(rperrors.CodeInvalidConfig, "plan.DependencyBump",
				"dependency_bump.%s must be patch, minor or major, got %s", name, k)
		}
	}
	return nil
}

func sortedTargets(m map[string]version.SemanticVersion) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func describe(names []string) string {
	return fmt.Sprintf("{%s}", strings.Join(names, ", "))
}
