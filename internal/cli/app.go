package cli

import (
	"context"
	"time"

	"github.com/relicta-tech/monorel/internal/application/release"
	"github.com/relicta-tech/monorel/internal/config"
	"github.com/relicta-tech/monorel/internal/container"
	"github.com/relicta-tech/monorel/internal/domain/changes"
	"github.com/relicta-tech/monorel/internal/domain/plan"
	"github.com/relicta-tech/monorel/internal/domain/sourcecontrol"
	"github.com/relicta-tech/monorel/internal/domain/workspace"
	"github.com/relicta-tech/monorel/internal/infrastructure/persistence"
)

// cliApp is the slice of the container the commands use.
type cliApp interface {
	Close() error
	Root() string
	Git() sourcecontrol.GitRepository
	Types() *changes.TypeTable
	HasRegistry() bool
	Registry() release.VersionSource
	Workspace(ctx context.Context) (*workspace.Workspace, error)
	Changesets() *persistence.FileChangesetStore
	ChangesetsFor(ws *workspace.Workspace) (*persistence.FileChangesetStore, error)
	ChangesetDir() string
	PlanRelease() *release.PlanReleaseUseCase
	RecordChangeset() *release.RecordChangesetUseCase
	ApplyRelease() *release.ApplyReleaseUseCase
	PlanInput(strategy plan.Strategy) release.PlanReleaseInput
	Now() time.Time
}

var newContainerApp = func(ctx context.Context, cfg *config.Config, root string) (cliApp, error) {
	app, err := container.New(ctx, cfg, root)
	if err != nil {
		return nil, err
	}
	return app, nil
}

func closeApp(app cliApp) {
	if app == nil {
		return
	}
	if err := app.Close(); err != nil {
		logger.Warn("failed to close app", "error", err)
	}
}
