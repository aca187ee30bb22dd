package plan

import (
	"sort"
	"strconv"
	"strings"

	"github.com/relicta-tech/monorel/internal/domain/changes"
	"github.com/relicta-tech/monorel/internal/domain/graph"
	"github.com/relicta-tech/monorel/internal/domain/version"
	"github.com/relicta-tech/monorel/internal/domain/workspace"
	rperrors "github.com/relicta-tech/monorel/internal/errors"
)

// Planner turns changes into a Plan. It is pure: no I/O, no clock.
type Planner struct {
	harmonize bool
	depBump   DependencyBump
	known     map[string][]version.SemanticVersion
}

// PlannerOption configures a Planner.
type PlannerOption func(*Planner)

// WithHarmonizeCycles gives every member of a bumped cycle the largest bump
// in the cycle.
func WithHarmonizeCycles(on bool) PlannerOption {
	return func(p *Planner) {
		p.harmonize = on
	}
}

// WithDependencyBump sets the dependency propagation policy.
func WithDependencyBump(d DependencyBump) PlannerOption {
	return func(p *Planner) {
		p.depBump = d
	}
}

// WithKnownVersions supplies external versions (usually from a registry) for
// conflict detection.
func WithKnownVersions(known map[string][]version.SemanticVersion) PlannerOption {
	return func(p *Planner) {
		p.known = known
	}
}

// NewPlanner creates a planner.
func NewPlanner(opts ...PlannerOption) *Planner {
	p := &Planner{depBump: DefaultDependencyBump()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Input is everything a plan is computed from.
type Input struct {
	Workspace *workspace.Workspace
	// Graph is built from Workspace when nil.
	Graph    *graph.Graph
	Changes  []changes.Change
	Strategy Strategy
	// FromRef is the start of the commit range the changes were read from,
	// used in messages only.
	FromRef string
}

// state is the mutable bump lattice of one planning run.
type state struct {
	kind    map[string]version.BumpKind
	reasons map[string][]BumpReason
	fixed   map[string]version.SemanticVersion
	cycle   map[string][]string

	// suppressed holds breaking reasons whose change was demoted to no bump.
	suppressed map[string][]BumpReason
}

func (s *state) raise(name string, k version.BumpKind, reason BumpReason) bool {
	if _, ok := s.fixed[name]; ok {
		return false
	}
	if k <= s.kind[name] {
		return false
	}
	s.kind[name] = k
	s.reasons[name] = append(s.reasons[name], reason)
	return true
}

// Plan computes the plan for in.
func (p *Planner) Plan(in Input) (*Plan, error) {
	const op = "plan.Plan"

	if in.Workspace == nil {
		return nil, rperrors.Coded(rperrors.CodeWorkspaceInconsistent, op, "no workspace")
	}
	if in.Strategy == nil {
		return nil, rperrors.Coded(rperrors.CodeInvalidStrategy, op, "no strategy")
	}
	if err := in.Strategy.validate(); err != nil {
		return nil, err
	}
	if err := p.depBump.Validate(); err != nil {
		return nil, err
	}
	g := in.Graph
	if g == nil {
		g = graph.Build(in.Workspace)
	}

	st := &state{
		kind:    make(map[string]version.BumpKind),
		reasons: make(map[string][]BumpReason),
		fixed:   make(map[string]version.SemanticVersion),
		cycle:   make(map[string][]string),

		suppressed: make(map[string][]BumpReason),
	}
	if err := p.seed(op, in, st); err != nil {
		return nil, err
	}

	p.settle(g, st)

	out := &Plan{}
	p.addGraphWarnings(g, out)

	for _, name := range g.TopologicalOrder() {
		if st.kind[name] == version.BumpNone {
			for _, r := range st.suppressed[name] {
				out.Warn(WarnBreakingSuppressed, name+": "+r.Detail)
			}
			continue
		}
		pkg, _ := in.Workspace.Get(name)
		s := VersionSuggestion{
			Package:    name,
			From:       pkg.Version,
			Bump:       st.kind[name],
			Reasons:    append(st.reasons[name], st.suppressed[name]...),
			CycleGroup: st.cycle[name],
		}
		if target, ok := st.fixed[name]; ok {
			s.To = target
		} else {
			s.To = s.Bump.Apply(pkg.Version)
		}
		out.Suggestions = append(out.Suggestions, s)
	}

	p.rewriteRequirements(g, out)
	return out, nil
}

// seed fills the lattice from the strategy and the changes.
func (p *Planner) seed(op string, in Input, st *state) error {
	ws := in.Workspace
	for _, ch := range in.Changes {
		if !ws.Has(ch.Package) {
			return rperrors.Coded(rperrors.CodeWorkspaceInconsistent, op,
				"change references unknown package %q", ch.Package)
		}
	}

	switch s := in.Strategy.(type) {
	case Unified:
		for _, pkg := range ws.Packages() {
			if err := fix(op, st, pkg, s.Version); err != nil {
				return err
			}
		}
		return nil

	case Manual:
		if len(s.Targets) == 0 && len(in.Changes) == 0 {
			return rperrors.Coded(rperrors.CodeNoChanges, op, "no changes and no manual targets")
		}
		for _, name := range sortedTargets(s.Targets) {
			pkg, ok := ws.Get(name)
			if !ok {
				return rperrors.Coded(rperrors.CodeWorkspaceInconsistent, op,
					"manual target references unknown package %q", name)
			}
			if err := fix(op, st, pkg, s.Targets[name]); err != nil {
				return err
			}
		}
		seedChanges(st, in.Changes, Independent{Promotions: AllPromotions()}.seed)
		return nil

	case Independent:
		if len(in.Changes) == 0 {
			return rperrors.Coded(rperrors.CodeNoChanges, op, "no changes detected since %s", describeRef(in.FromRef))
		}
		seedChanges(st, in.Changes, s.seed)
		return nil

	case ConventionalCommits:
		if len(in.Changes) == 0 {
			from := in.FromRef
			if from == "" {
				from = s.FromRef
			}
			return rperrors.Coded(rperrors.CodeNoChanges, op, "no changes detected since %s", describeRef(from))
		}
		seedChanges(st, in.Changes, s.seed)
		return nil
	}

	return rperrors.Coded(rperrors.CodeInvalidStrategy, op, "unsupported strategy %T", in.Strategy)
}

func describeRef(ref string) string {
	if ref == "" {
		return "the first commit"
	}
	return strconv.Quote(ref)
}

func fix(op string, st *state, pkg *workspace.Package, target version.SemanticVersion) error {
	if target.LessThan(pkg.Version) {
		return rperrors.Coded(rperrors.CodeDowngrade, op,
			"%s: target %s is lower than current %s", pkg.Name, target, pkg.Version).
			WithDetail("package", pkg.Name)
	}
	k := version.Between(pkg.Version, target)
	if k == version.BumpNone {
		return nil
	}
	st.fixed[pkg.Name] = target
	st.kind[pkg.Name] = k
	st.reasons[pkg.Name] = []BumpReason{ManualTarget()}
	return nil
}

func seedChanges(st *state, list []changes.Change, seed func(changes.Change) (version.BumpKind, BumpReason)) {
	for _, ch := range list {
		if _, ok := st.fixed[ch.Package]; ok {
			continue
		}
		k, reason := seed(ch)
		if k == version.BumpNone {
			if reason.Kind == ReasonBreaking {
				st.suppressed[ch.Package] = append(st.suppressed[ch.Package], reason)
			}
			continue
		}
		if k > st.kind[ch.Package] {
			st.kind[ch.Package] = k
		}
		st.reasons[ch.Package] = append(st.reasons[ch.Package], reason)
	}
}

// settle alternates dependency propagation and cycle harmonization until
// nothing changes. Bumps only grow, so this terminates.
func (p *Planner) settle(g *graph.Graph, st *state) {
	order := g.TopologicalOrder()
	for changed := true; changed; {
		changed = false
		for _, name := range order {
			need := p.depBump.For(st.kind[name])
			if need == version.BumpNone {
				continue
			}
			for _, d := range g.Dependents(name) {
				if st.raise(d, need, DependencyUpdate(name)) {
					changed = true
				}
			}
		}

		if !p.harmonize {
			continue
		}
		for _, members := range g.Cycles() {
			peer, top := "", version.BumpNone
			for _, m := range members {
				if st.kind[m] > top {
					peer, top = m, st.kind[m]
				}
			}
			if top == version.BumpNone {
				continue
			}
			for _, m := range members {
				st.cycle[m] = members
				if st.raise(m, top, CycleHarmonization(peer)) {
					changed = true
				}
			}
		}
	}
}

// rewriteRequirements records a caret-preserving requirement update on every
// planned package for each of its internal dependencies that is also planned.
func (p *Planner) rewriteRequirements(g *graph.Graph, out *Plan) {
	index := make(map[string]int, len(out.Suggestions))
	for i, s := range out.Suggestions {
		index[s.Package] = i
	}

	for _, e := range g.Edges() {
		target, ok := index[e.To]
		if !ok {
			continue
		}
		to := e.Requirement.Rewrite(out.Suggestions[target].To)
		if to.String() == e.Requirement.String() {
			continue
		}
		update := RequirementUpdate{Dependency: e.To, Kind: e.Kind, From: e.Requirement, To: to}
		if i, ok := index[e.From]; ok {
			out.Suggestions[i].RequirementUpdates = append(out.Suggestions[i].RequirementUpdates, update)
			continue
		}
		out.Warn(WarnStaleRequirement, e.From+" requires "+e.To+"@"+e.Requirement.String()+
			" but is not part of the plan")
	}
}

func (p *Planner) addGraphWarnings(g *graph.Graph, out *Plan) {
	for _, c := range g.Cycles() {
		out.Warn(WarnCycleDetected, describe(c))
	}
	for _, name := range g.SelfLoops() {
		out.Warn(WarnSelfDependency, name+" depends on itself")
	}
	for _, c := range g.Conflicts(p.known) {
		out.Warn(WarnVersionConflict, c.String())
	}
}

// Summary renders one line per suggestion, for logs.
func (p *Plan) Summary() string {
	lines := make([]string, 0, len(p.Suggestions))
	for _, s := range p.Suggestions {
		reasons := make([]string, len(s.Reasons))
		for i, r := range s.Reasons {
			reasons[i] = r.String()
		}
		sort.Strings(reasons)
		lines = append(lines, s.Package+": "+s.From.String()+" -> "+s.Resolved().String()+
			" ("+s.Bump.String()+"; "+strings.Join(reasons, ", ")+")")
	}
	return strings.Join(lines, "\n")
}
