package release

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/relicta-tech/monorel/internal/application/monorepo"
	"github.com/relicta-tech/monorel/internal/domain/changeset"
	"github.com/relicta-tech/monorel/internal/domain/plan"
)

// ManifestApplier rewrites package manifests.
type ManifestApplier interface {
	Apply(manifestPath string, edit monorepo.ManifestEdit) error
}

// ApplyReleaseInput represents the input for the ApplyRelease use case.
type ApplyReleaseInput struct {
	Plan         PlanReleaseInput
	Author       string
	Environments []string
	DryRun       bool

	SkipChangeset  bool
	SkipManifests  bool
	SkipChangelogs bool
}

// ApplyReleaseOutput represents the output of the ApplyRelease use case.
type ApplyReleaseOutput struct {
	Planned   *PlanReleaseOutput
	Changeset *changeset.Changeset
	// ChangesetSkipped explains why no changeset was written, if none was.
	ChangesetSkipped string
	Manifests        []string
	Changelogs       []ChangelogResult
	DryRun           bool
}

// ApplyReleaseUseCase plans a release and carries it out: it records the
// branch changeset, rewrites manifests and writes changelogs, in that order.
type ApplyReleaseUseCase struct {
	planner    *PlanReleaseUseCase
	recorder   *RecordChangesetUseCase
	manifests  ManifestApplier
	changelogs *ChangelogWriter
	now        func() time.Time
	logger     *slog.Logger
}

// ApplyOption configures an ApplyReleaseUseCase.
type ApplyOption func(*ApplyReleaseUseCase)

// WithClock sets the clock used for changelog dates.
func WithClock(now func() time.Time) ApplyOption {
	return func(uc *ApplyReleaseUseCase) {
		uc.now = now
	}
}

// NewApplyReleaseUseCase creates a new ApplyReleaseUseCase. A nil recorder
// disables changesets.
func NewApplyReleaseUseCase(
	planner *PlanReleaseUseCase,
	recorder *RecordChangesetUseCase,
	manifests ManifestApplier,
	changelogs *ChangelogWriter,
	opts ...ApplyOption,
) *ApplyReleaseUseCase {
	uc := &ApplyReleaseUseCase{
		planner:    planner,
		recorder:   recorder,
		manifests:  manifests,
		changelogs: changelogs,
		now:        time.Now,
		logger:     slog.Default().With("usecase", "apply_release"),
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// Execute executes the apply release use case.
func (uc *ApplyReleaseUseCase) Execute(ctx context.Context, input ApplyReleaseInput) (*ApplyReleaseOutput, error) {
	const op = "release.Apply"

	planned, err := uc.planner.Execute(ctx, input.Plan)
	if err != nil {
		return nil, err
	}
	out := &ApplyReleaseOutput{Planned: planned, DryRun: input.DryRun}

	if err := uc.recordChangeset(ctx, input, out); err != nil {
		return nil, err
	}
	if !input.SkipManifests {
		if err := uc.rewriteManifests(ctx, input, out); err != nil {
			return nil, err
		}
	}
	if !input.SkipChangelogs && uc.changelogs != nil {
		if err := uc.writeChangelogs(ctx, input, out); err != nil {
			return nil, err
		}
	}
	if err := checkContext(ctx, op); err != nil {
		return nil, err
	}

	uc.logger.Info("release applied",
		"packages", len(planned.Plan.Suggestions),
		"manifests", len(out.Manifests),
		"changelogs", len(out.Changelogs),
		"dry_run", input.DryRun)
	return out, nil
}

func (uc *ApplyReleaseUseCase) recordChangeset(ctx context.Context, input ApplyReleaseInput, out *ApplyReleaseOutput) error {
	branch := out.Planned.Branch
	switch {
	case input.SkipChangeset || uc.recorder == nil:
		out.ChangesetSkipped = "changesets disabled"
	case branch == "":
		out.ChangesetSkipped = "current branch unknown"
	case isReleaseBranch(branch, input.Plan.ReleaseBranches):
		out.ChangesetSkipped = "release branch " + branch
	case out.Planned.Plan.IsEmpty():
		out.ChangesetSkipped = "empty plan"
	case input.DryRun:
		out.ChangesetSkipped = "dry run"
	}
	if out.ChangesetSkipped != "" {
		uc.logger.Debug("changeset not written", "reason", out.ChangesetSkipped)
		return nil
	}

	c, err := uc.recorder.Execute(ctx, RecordChangesetInput{
		Branch:       branch,
		Author:       input.Author,
		Environments: input.Environments,
		Planned:      out.Planned,
	})
	if err != nil {
		return err
	}
	out.Changeset = c
	return nil
}

func (uc *ApplyReleaseUseCase) rewriteManifests(ctx context.Context, input ApplyReleaseInput, out *ApplyReleaseOutput) error {
	const op = "release.RewriteManifests"

	ws := out.Planned.Workspace
	for _, s := range out.Planned.Plan.Suggestions {
		if err := checkContext(ctx, op); err != nil {
			return err
		}
		pkg, ok := ws.Get(s.Package)
		if !ok {
			continue
		}
		edit := manifestEdit(s)
		if edit.IsEmpty() {
			continue
		}
		path := filepath.Join(ws.Root(), filepath.FromSlash(pkg.ManifestPath))
		out.Manifests = append(out.Manifests, path)
		if input.DryRun {
			continue
		}
		if err := uc.manifests.Apply(path, edit); err != nil {
			return err
		}
		uc.logger.Debug("manifest rewritten", "package", s.Package, "version", edit.Version)
	}
	return nil
}

func manifestEdit(s plan.VersionSuggestion) monorepo.ManifestEdit {
	edit := monorepo.ManifestEdit{Version: s.Resolved().String()}
	for _, u := range s.RequirementUpdates {
		edit.Requirements = append(edit.Requirements, monorepo.RequirementEdit{
			Kind:        u.Kind,
			Name:        u.Dependency,
			Requirement: u.To.String(),
		})
	}
	return edit
}

func (uc *ApplyReleaseUseCase) writeChangelogs(ctx context.Context, input ApplyReleaseInput, out *ApplyReleaseOutput) error {
	ws := out.Planned.Workspace
	date := uc.now().UTC()
	for _, s := range out.Planned.Plan.Suggestions {
		pkg, ok := ws.Get(s.Package)
		if !ok {
			continue
		}
		res, err := uc.changelogs.Write(ctx, ws.Root(), pkg, s.Resolved().String(), date,
			out.Planned.Commits[s.Package], input.DryRun)
		if err != nil {
			return err
		}
		if res.Changed {
			out.Changelogs = append(out.Changelogs, res)
		}
	}
	return nil
}

func isReleaseBranch(branch string, releaseBranches []string) bool {
	if releaseBranches == nil {
		releaseBranches = changeset.DefaultReleaseBranches
	}
	for _, b := range releaseBranches {
		if b == branch {
			return true
		}
	}
	return false
}
