// Package container wires monorel's services from configuration.
package container

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/relicta-tech/monorel/internal/application/monorepo"
	"github.com/relicta-tech/monorel/internal/application/release"
	"github.com/relicta-tech/monorel/internal/config"
	"github.com/relicta-tech/monorel/internal/domain/changelog"
	"github.com/relicta-tech/monorel/internal/domain/changes"
	"github.com/relicta-tech/monorel/internal/domain/changeset"
	"github.com/relicta-tech/monorel/internal/domain/plan"
	"github.com/relicta-tech/monorel/internal/domain/sourcecontrol"
	"github.com/relicta-tech/monorel/internal/domain/workspace"
	rperrors "github.com/relicta-tech/monorel/internal/errors"
	"github.com/relicta-tech/monorel/internal/fileutil"
	gitadapter "github.com/relicta-tech/monorel/internal/infrastructure/git"
	"github.com/relicta-tech/monorel/internal/infrastructure/persistence"
	"github.com/relicta-tech/monorel/internal/infrastructure/registry"
)

// defaultShutdownTimeout is the default timeout for graceful shutdown of components.
const defaultShutdownTimeout = 10 * time.Second

// defaultRemote is the remote used for changelog links.
const defaultRemote = "origin"

// Closeable represents a component that can be closed/shutdown.
type Closeable interface {
	Close() error
}

// options are the overrides accepted by New.
type options struct {
	fs       fileutil.FS
	git      sourcecontrol.GitRepository
	gitSet   bool
	registry release.VersionSource
	now      func() time.Time
	logger   *slog.Logger
}

// Option overrides a collaborator, mostly for tests.
type Option func(*options)

// WithFS replaces the filesystem façade.
func WithFS(fs fileutil.FS) Option {
	return func(o *options) {
		o.fs = fs
	}
}

// WithGit replaces the git repository. A nil repository plans without
// history.
func WithGit(repo sourcecontrol.GitRepository) Option {
	return func(o *options) {
		o.git = repo
		o.gitSet = true
	}
}

// WithRegistry replaces the registry client.
func WithRegistry(r release.VersionSource) Option {
	return func(o *options) {
		o.registry = r
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// App holds the services of one invocation. It owns the workspace root and
// its collaborators for the duration of a command.
type App struct {
	config *config.Config
	root   string
	logger *slog.Logger
	mu     sync.RWMutex
	closed bool

	// Infrastructure layer
	fs        fileutil.FS
	git       sourcecontrol.GitRepository
	registry  release.VersionSource
	store     *persistence.FileChangesetStore
	manifests *monorepo.ManifestWriter
	now       func() time.Time

	// Domain configuration
	types     *changes.TypeTable
	renderer  *changelog.Renderer
	remoteURL string

	// Application layer use cases
	discoverer  *monorepo.Discoverer
	planUC      *release.PlanReleaseUseCase
	recordUC    *release.RecordChangesetUseCase
	applyUC     *release.ApplyReleaseUseCase
	changelogUC *release.ChangelogWriter

	// Cleanup tracking
	closeables []Closeable
}

// New builds the services for the workspace at root.
func New(ctx context.Context, cfg *config.Config, root string, opts ...Option) (*App, error) {
	const op = "container.New"

	if cfg == nil {
		return nil, rperrors.Coded(rperrors.CodeInvalidConfig, op, "configuration is required")
	}
	o := options{
		fs:     fileutil.NewOS(),
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, rperrors.IOWrap(err, op, "resolve workspace root")
	}

	a := &App{
		config:     cfg,
		root:       absRoot,
		logger:     o.logger,
		fs:         o.fs,
		registry:   o.registry,
		manifests:  monorepo.NewManifestWriter(o.fs),
		now:        o.now,
		closeables: make([]Closeable, 0),
	}

	if err := a.initInfrastructure(ctx, o); err != nil {
		_ = a.Close()
		return nil, err
	}
	if err := a.initApplicationLayer(); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

// registerCloseable registers a component for cleanup during shutdown.
func (a *App) registerCloseable(closeable Closeable) {
	if closeable != nil {
		a.closeables = append(a.closeables, closeable)
	}
}

// initInfrastructure opens git and the registry and creates the store.
func (a *App) initInfrastructure(ctx context.Context, o options) error {
	const op = "container.initInfrastructure"

	if o.gitSet {
		a.git = o.git
	} else {
		repo, err := gitadapter.Open(gitadapter.WithRepoPath(a.root))
		if err != nil {
			// Planning proceeds without history; the use case warns.
			a.logger.Warn("git unavailable", "root", a.root, "error", err)
		} else {
			a.git = repo
		}
	}
	if a.git != nil {
		if u, err := a.git.RemoteURL(ctx, defaultRemote); err == nil {
			a.remoteURL = u
		}
	}

	if a.registry == nil && a.config.Registry.Enabled {
		rc := registry.DefaultConfig()
		rc.URL = a.config.Registry.URL
		rc.Token = a.config.Registry.Token
		rc.Timeout = a.config.Registry.Timeout
		rc.CacheSize = a.config.Registry.CacheSize
		rc.Resilience.RetryAttempts = a.config.Registry.RetryAttempts
		client, err := registry.New(rc, registry.WithLogger(a.logger.With("service", "registry")))
		if err != nil {
			return err
		}
		a.registry = client
		a.registerCloseable(client)
	}

	format, err := persistence.ParseFormat(a.config.ChangesetFormat)
	if err != nil {
		return err
	}
	a.store, err = a.newStore(format, nil)
	if err != nil {
		return rperrors.Wrap(err, rperrors.KindInternal, op, "create changeset store")
	}
	return nil
}

func (a *App) newStore(format persistence.Format, packages changeset.PackageSet) (*persistence.FileChangesetStore, error) {
	return persistence.NewFileChangesetStore(a.ChangesetDir(),
		persistence.WithFormat(format),
		persistence.WithFS(a.fs),
		persistence.WithClock(a.now),
		persistence.WithStoreLogger(a.logger.With("service", "changeset_store")),
		persistence.WithRules(changeset.Rules{
			Packages:        packages,
			Environments:    a.config.AvailableEnvironments,
			ReleaseBranches: a.config.ReleaseBranches,
		}),
	)
}

// initApplicationLayer builds the use cases.
func (a *App) initApplicationLayer() error {
	var err error
	if a.types, err = a.config.TypeTable(); err != nil {
		return err
	}
	depBump, err := a.config.DependencyBumps()
	if err != nil {
		return err
	}
	heading, err := a.config.Heading()
	if err != nil {
		return err
	}

	a.renderer = changelog.NewRenderer(
		changelog.WithTypes(a.types),
		changelog.WithLinks(a.config.Links(a.remoteURL)),
		changelog.WithHeading(heading),
	)

	planOpts := []release.PlanOption{
		release.WithTypes(a.types),
		release.WithPlannerOptions(
			plan.WithHarmonizeCycles(a.config.HarmonizeCycles),
			plan.WithDependencyBump(depBump),
		),
		release.WithRepoPrefix(a.repoPrefix()),
		release.WithLogger(a.logger.With("usecase", "plan_release")),
	}
	if a.registry != nil {
		planOpts = append(planOpts, release.WithRegistry(a.registry))
	}

	a.discoverer = monorepo.NewDiscoverer(a.fs, monorepo.WithLogger(a.logger.With("service", "discovery")))
	a.planUC = release.NewPlanReleaseUseCase(a.discoverer, a.git, planOpts...)
	a.recordUC = release.NewRecordChangesetUseCase(a.store)
	a.changelogUC = release.NewChangelogWriter(a.fs, a.renderer, release.WithChangelogFile(a.config.Changelog.File))
	a.applyUC = release.NewApplyReleaseUseCase(a.planUC, a.recordUC, a.manifests, a.changelogUC, release.WithClock(a.now))
	return nil
}

// repoPrefix is the workspace root relative to the repository root, in
// slash form.
func (a *App) repoPrefix() string {
	rooted, ok := a.git.(interface{ Root() string })
	if !ok {
		return ""
	}
	gitRoot, err := filepath.EvalSymlinks(rooted.Root())
	if err != nil {
		return ""
	}
	wsRoot, err := filepath.EvalSymlinks(a.root)
	if err != nil {
		return ""
	}
	rel, err := filepath.Rel(gitRoot, wsRoot)
	if err != nil || rel == "." {
		return ""
	}
	return filepath.ToSlash(rel)
}

// Root returns the absolute workspace root.
func (a *App) Root() string {
	return a.root
}

// Config returns the configuration.
func (a *App) Config() *config.Config {
	return a.config
}

// Git returns the repository, or nil when git is unavailable.
func (a *App) Git() sourcecontrol.GitRepository {
	return a.git
}

// HasRegistry reports whether registry lookups are enabled.
func (a *App) HasRegistry() bool {
	return a.registry != nil
}

// Registry returns the registry version source, or nil.
func (a *App) Registry() release.VersionSource {
	return a.registry
}

// Types returns the commit type table.
func (a *App) Types() *changes.TypeTable {
	return a.types
}

// Renderer returns the changelog renderer.
func (a *App) Renderer() *changelog.Renderer {
	return a.renderer
}

// ChangesetDir returns the absolute changeset directory.
func (a *App) ChangesetDir() string {
	if filepath.IsAbs(a.config.ChangesetDir) {
		return a.config.ChangesetDir
	}
	return filepath.Join(a.root, filepath.FromSlash(a.config.ChangesetDir))
}

// Workspace discovers the workspace at the root.
func (a *App) Workspace(ctx context.Context) (*workspace.Workspace, error) {
	return a.discoverer.Discover(ctx, a.root)
}

// Changesets returns the changeset store.
func (a *App) Changesets() *persistence.FileChangesetStore {
	return a.store
}

// ChangesetsFor returns a store that also checks package names against ws.
func (a *App) ChangesetsFor(ws *workspace.Workspace) (*persistence.FileChangesetStore, error) {
	format, err := persistence.ParseFormat(a.config.ChangesetFormat)
	if err != nil {
		return nil, err
	}
	if ws == nil {
		return a.newStore(format, nil)
	}
	return a.newStore(format, ws)
}

// PlanRelease returns the plan use case.
func (a *App) PlanRelease() *release.PlanReleaseUseCase {
	return a.planUC
}

// RecordChangeset returns the changeset recording use case.
func (a *App) RecordChangeset() *release.RecordChangesetUseCase {
	return a.recordUC
}

// ApplyRelease returns the apply use case.
func (a *App) ApplyRelease() *release.ApplyReleaseUseCase {
	return a.applyUC
}

// Changelogs returns the changelog writer.
func (a *App) Changelogs() *release.ChangelogWriter {
	return a.changelogUC
}

// Now returns the current time from the configured clock.
func (a *App) Now() time.Time {
	return a.now()
}

// PlanInput returns a plan input carrying the configured defaults.
func (a *App) PlanInput(strategy plan.Strategy) release.PlanReleaseInput {
	return release.PlanReleaseInput{
		Root:                   a.root,
		Strategy:               strategy,
		TagPattern:             a.config.TagPattern,
		SnapshotHashLength:     a.config.SnapshotHashLength,
		SnapshotStyle:          a.config.Snapshot(),
		AllowSnapshotOnRelease: a.config.AllowSnapshotOnMain,
		ReleaseBranches:        a.config.ReleaseBranches,
	}
}

// Close gracefully shuts down the container and all its components.
func (a *App) Close() error {
	return a.CloseWithTimeout(defaultShutdownTimeout)
}

// CloseWithTimeout gracefully shuts down the container with a custom timeout.
func (a *App) CloseWithTimeout(timeout time.Duration) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}

	a.closed = true
	a.logger.Debug("initiating container shutdown", "timeout", timeout)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Close all registered closeables in reverse order (LIFO)
	var errs []error
	for i := len(a.closeables) - 1; i >= 0; i-- {
		if err := a.closeWithContext(ctx, a.closeables[i]); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		a.logger.Warn("some components failed to close cleanly", "error_count", len(errs))
		return errs[0]
	}
	return nil
}

// closeWithContext closes a component with context cancellation support.
func (a *App) closeWithContext(ctx context.Context, closeable Closeable) error {
	done := make(chan error, 1)
	go func() {
		done <- closeable.Close()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		a.logger.Warn("component close timed out", "error", ctx.Err())
		return ctx.Err()
	}
}
