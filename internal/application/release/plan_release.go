package release

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/relicta-tech/monorel/internal/application/detection"
	"github.com/relicta-tech/monorel/internal/domain/changes"
	"github.com/relicta-tech/monorel/internal/domain/graph"
	"github.com/relicta-tech/monorel/internal/domain/plan"
	"github.com/relicta-tech/monorel/internal/domain/sourcecontrol"
	"github.com/relicta-tech/monorel/internal/domain/version"
	"github.com/relicta-tech/monorel/internal/domain/workspace"
	rperrors "github.com/relicta-tech/monorel/internal/errors"
)

// AssumedChangeDescription describes the change assumed for every package
// when history cannot be read.
const AssumedChangeDescription = "history unavailable"

// maxListedFiles caps the file names quoted in an unowned-files warning.
const maxListedFiles = 5

// Discoverer loads a workspace from its root directory.
type Discoverer interface {
	Discover(ctx context.Context, root string) (*workspace.Workspace, error)
}

// VersionSource supplies published versions of external dependencies.
type VersionSource interface {
	KnownVersions(ctx context.Context, names []string) (map[string][]version.SemanticVersion, error)
}

func checkContext(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return rperrors.Wrap(err, rperrors.KindCanceled, op, "operation canceled")
	}
	return nil
}

// PlanReleaseInput represents the input for the PlanRelease use case.
type PlanReleaseInput struct {
	Root     string
	Strategy plan.Strategy
	// FromRef and ToRef bound the commit range. An empty FromRef falls back
	// to the strategy's ref, then to the last tag matching TagPattern, then
	// to the repository root.
	FromRef    string
	ToRef      string
	TagPattern string

	Snapshot               bool
	SnapshotHashLength     int
	SnapshotStyle          version.SnapshotStyle
	AllowSnapshotOnRelease bool
	ReleaseBranches        []string
}

// Validate validates the PlanReleaseInput.
func (i *PlanReleaseInput) Validate() error {
	const op = "release.PlanInput"

	v := NewValidationError()
	if strings.TrimSpace(i.Root) == "" {
		v.Add(fmt.Errorf("workspace root is required"))
	}
	v.Add(ValidateRef(i.FromRef, "from reference"))
	v.Add(ValidateRef(i.ToRef, "to reference"))
	if err := v.ToError(op); err != nil {
		return err
	}
	if i.Strategy == nil {
		return rperrors.Coded(rperrors.CodeInvalidStrategy, op, "no strategy given")
	}
	if i.Snapshot && i.SnapshotHashLength != 0 && i.SnapshotHashLength < version.MinSnapshotHashLength {
		return rperrors.Coded(rperrors.CodeInvalidConfig, op,
			"snapshot hash length %d is below the minimum of %d", i.SnapshotHashLength, version.MinSnapshotHashLength)
	}
	return nil
}

// PlanReleaseOutput represents the output of the PlanRelease use case.
type PlanReleaseOutput struct {
	Workspace *workspace.Workspace
	Graph     *graph.Graph
	Plan      *plan.Plan
	Branch    string
	SHA       sourcecontrol.CommitHash
	FromRef   string
	// Commits maps a package to the parsed commits that touched it, newest
	// first.
	Commits map[string][]*changes.ConventionalCommit
	// Changes maps a package to the changes derived from its commits.
	Changes map[string][]changes.Change
	// CommitHashes lists every attributed commit once, newest first.
	CommitHashes []string
	// HistoryUnavailable is set when commits could not be read. Every
	// package then carries an assumed patch change.
	HistoryUnavailable bool
}

// PlanReleaseUseCase discovers the workspace, reads history, attributes
// commits to packages and runs the bump planner.
type PlanReleaseUseCase struct {
	discoverer  Discoverer
	gitRepo     sourcecontrol.GitRepository
	registry    VersionSource
	types       *changes.TypeTable
	plannerOpts []plan.PlannerOption
	repoPrefix  string
	logger      *slog.Logger
}

// PlanOption configures a PlanReleaseUseCase.
type PlanOption func(*PlanReleaseUseCase)

// WithRegistry enables registry-aware conflict detection.
func WithRegistry(r VersionSource) PlanOption {
	return func(uc *PlanReleaseUseCase) {
		uc.registry = r
	}
}

// WithTypes sets the commit type table.
func WithTypes(t *changes.TypeTable) PlanOption {
	return func(uc *PlanReleaseUseCase) {
		uc.types = t
	}
}

// WithPlannerOptions passes options to every planner the use case builds.
func WithPlannerOptions(opts ...plan.PlannerOption) PlanOption {
	return func(uc *PlanReleaseUseCase) {
		uc.plannerOpts = append(uc.plannerOpts, opts...)
	}
}

// WithRepoPrefix sets the workspace root relative to the repository root.
func WithRepoPrefix(prefix string) PlanOption {
	return func(uc *PlanReleaseUseCase) {
		uc.repoPrefix = prefix
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) PlanOption {
	return func(uc *PlanReleaseUseCase) {
		uc.logger = logger
	}
}

// NewPlanReleaseUseCase creates a new PlanReleaseUseCase. gitRepo may be nil,
// in which case planning proceeds without history.
func NewPlanReleaseUseCase(discoverer Discoverer, gitRepo sourcecontrol.GitRepository, opts ...PlanOption) *PlanReleaseUseCase {
	uc := &PlanReleaseUseCase{
		discoverer: discoverer,
		gitRepo:    gitRepo,
		types:      changes.DefaultTypeTable(),
		logger:     slog.Default().With("usecase", "plan_release"),
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// Types returns the commit type table in use.
func (uc *PlanReleaseUseCase) Types() *changes.TypeTable {
	return uc.types
}

// Execute executes the plan release use case.
func (uc *PlanReleaseUseCase) Execute(ctx context.Context, input PlanReleaseInput) (*PlanReleaseOutput, error) {
	const op = "release.Plan"

	if err := input.Validate(); err != nil {
		return nil, err
	}

	ws, err := uc.discoverer.Discover(ctx, input.Root)
	if err != nil {
		return nil, err
	}
	if err := checkContext(ctx, op); err != nil {
		return nil, err
	}

	out := &PlanReleaseOutput{
		Workspace: ws,
		Graph:     graph.Build(ws),
		Commits:   make(map[string][]*changes.ConventionalCommit),
		Changes:   make(map[string][]changes.Change),
	}

	var warnings []plan.Warning
	warn := func(code, detail string) {
		uc.logger.Warn(detail, "code", code)
		warnings = append(warnings, plan.Warning{Code: code, Detail: detail})
	}

	if err := uc.collect(ctx, input, out, warn); err != nil {
		return nil, err
	}
	if err := checkContext(ctx, op); err != nil {
		return nil, err
	}

	if out.HistoryUnavailable {
		assumeAllAffected(out)
	}

	var all []changes.Change
	for _, name := range ws.Names() {
		all = append(all, out.Changes[name]...)
	}

	planner := plan.NewPlanner(append(append([]plan.PlannerOption{}, uc.plannerOpts...),
		plan.WithKnownVersions(uc.knownVersions(ctx, out.Graph, warn)))...)
	p, err := planner.Plan(plan.Input{
		Workspace: ws,
		Graph:     out.Graph,
		Changes:   all,
		Strategy:  input.Strategy,
		FromRef:   out.FromRef,
	})
	if err != nil {
		return nil, err
	}
	p.Warnings = append(warnings, p.Warnings...)
	out.Plan = p

	if input.Snapshot {
		if err := uc.snapshot(input, out); err != nil {
			return nil, err
		}
	}
	if err := checkContext(ctx, op); err != nil {
		return nil, err
	}

	uc.logger.Info("release planned",
		"strategy", input.Strategy.Kind(),
		"packages", len(p.Suggestions),
		"warnings", len(p.Warnings),
		"snapshot", input.Snapshot)
	return out, nil
}

// collect reads history and attributes parsed commits to packages. Git
// failures become warnings.
func (uc *PlanReleaseUseCase) collect(ctx context.Context, input PlanReleaseInput, out *PlanReleaseOutput, warn func(code, detail string)) error {
	if uc.gitRepo == nil {
		warn(plan.WarnGitUnavailable, "no git repository, every package is assumed changed")
		out.HistoryUnavailable = true
		return nil
	}

	if branch, err := uc.gitRepo.CurrentBranch(ctx); err == nil {
		out.Branch = branch
	} else {
		uc.logger.Debug("current branch unavailable", "error", err)
	}
	if sha, err := uc.gitRepo.CurrentSHA(ctx); err == nil {
		out.SHA = sha
	} else {
		uc.logger.Debug("current sha unavailable", "error", err)
	}

	from := uc.fromRef(ctx, input, warn)
	out.FromRef = from

	commits, err := uc.gitRepo.CommitsBetween(ctx, from, input.ToRef)
	if err != nil {
		if ctx.Err() != nil {
			return checkContext(ctx, "release.Plan")
		}
		warn(plan.WarnGitUnavailable, fmt.Sprintf("cannot read history, every package is assumed changed: %v", err))
		out.HistoryUnavailable = true
		return nil
	}

	detector := detection.NewDetector(out.Workspace,
		detection.WithRepoPrefix(uc.repoPrefix),
		detection.WithLogger(uc.logger))
	attribution, err := detector.Attribute(ctx, uc.gitRepo, commits)
	if err != nil {
		return err
	}
	for _, w := range attribution.Warnings {
		warn(plan.WarnGitUnavailable, w.Error())
	}
	if dropped := attribution.Files.Dropped; len(dropped) > 0 {
		warn(plan.WarnUnownedFiles, describeFiles(dropped))
	}

	parsed := make(map[sourcecontrol.CommitHash]*changes.ConventionalCommit, len(commits))
	seen := make(map[string]bool, len(commits))
	for _, c := range commits {
		cc := c.Parse()
		parsed[c.Hash()] = cc
		if !cc.IsConventional() && !seen[cc.Hash()] {
			warn(plan.WarnNotConventional, fmt.Sprintf("%s: %s", cc.ShortHash(), cc.Description()))
		}
		seen[cc.Hash()] = true
	}

	attributed := make(map[sourcecontrol.CommitHash]bool)
	for _, name := range out.Workspace.Names() {
		for _, c := range attribution.Commits[name] {
			cc := parsed[c.Hash()]
			out.Commits[name] = append(out.Commits[name], cc)
			out.Changes[name] = append(out.Changes[name], changes.FromCommit(name, cc))
			attributed[c.Hash()] = true
		}
	}
	for _, c := range commits {
		if attributed[c.Hash()] {
			out.CommitHashes = append(out.CommitHashes, c.Hash().String())
		}
	}
	return nil
}

// assumeAllAffected gives every package one change with no commit behind it.
func assumeAllAffected(out *PlanReleaseOutput) {
	for _, name := range out.Workspace.Names() {
		out.Changes[name] = append(out.Changes[name], changes.Change{
			Package:     name,
			Type:        changes.ChangeOther,
			Description: AssumedChangeDescription,
		})
	}
}

func (uc *PlanReleaseUseCase) fromRef(ctx context.Context, input PlanReleaseInput, warn func(code, detail string)) string {
	if input.FromRef != "" {
		return input.FromRef
	}
	if cc, ok := input.Strategy.(plan.ConventionalCommits); ok && cc.FromRef != "" {
		return cc.FromRef
	}
	if input.TagPattern == "" {
		return ""
	}
	tag, err := uc.gitRepo.GetLastTagMatching(ctx, input.TagPattern)
	if err != nil {
		warn(plan.WarnGitUnavailable, fmt.Sprintf("cannot read tags: %v", err))
		return ""
	}
	if tag == nil {
		uc.logger.Debug("no tag matches, reading full history", "pattern", input.TagPattern)
		return ""
	}
	return tag.Name()
}

func (uc *PlanReleaseUseCase) knownVersions(ctx context.Context, g *graph.Graph, warn func(code, detail string)) map[string][]version.SemanticVersion {
	if uc.registry == nil {
		return nil
	}
	names := g.External()
	if len(names) == 0 {
		return nil
	}
	known, err := uc.registry.KnownVersions(ctx, names)
	if err != nil {
		warn(plan.WarnRegistry, fmt.Sprintf("registry lookup failed, conflicts use workspace versions only: %v", err))
	}
	return known
}

func (uc *PlanReleaseUseCase) snapshot(input PlanReleaseInput, out *PlanReleaseOutput) error {
	const op = "release.Snapshot"

	if !input.AllowSnapshotOnRelease && out.Branch != "" && isReleaseBranch(out.Branch, input.ReleaseBranches) {
		return rperrors.Coded(rperrors.CodeInvalidBranch, op,
			"snapshots are not allowed on release branch %q", out.Branch).
			WithDetail("branch", out.Branch)
	}
	if out.SHA.IsEmpty() {
		return rperrors.Coded(rperrors.CodeGitUnavailable, op, "snapshots need the current commit, which git could not provide")
	}

	length := input.SnapshotHashLength
	if length == 0 {
		length = version.DefaultSnapshotHashLength
	}
	style := input.SnapshotStyle
	if style == "" {
		style = version.SnapshotLegacy
	}
	return out.Plan.ApplySnapshot(out.SHA.String(), length, style)
}

func describeFiles(files []string) string {
	listed := files
	if len(listed) > maxListedFiles {
		listed = listed[:maxListedFiles]
	}
	s := fmt.Sprintf("%d files outside every package: %s", len(files), strings.Join(listed, ", "))
	if len(files) > maxListedFiles {
		s += ", ..."
	}
	return s
}
