package container

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relicta-tech/monorel/internal/config"
	"github.com/relicta-tech/monorel/internal/domain/changeset"
	"github.com/relicta-tech/monorel/internal/domain/plan"
	"github.com/relicta-tech/monorel/internal/domain/version"
	"github.com/relicta-tech/monorel/internal/domain/workspace"
	rperrors "github.com/relicta-tech/monorel/internal/errors"
)

// mockCloseable implements Closeable for testing.
type mockCloseable struct {
	closeCount int32
	closeDelay time.Duration
	closeErr   error
	order      *[]string
	name       string
}

func (m *mockCloseable) Close() error {
	if m.closeDelay > 0 {
		time.Sleep(m.closeDelay)
	}
	atomic.AddInt32(&m.closeCount, 1)
	if m.order != nil {
		*m.order = append(*m.order, m.name)
	}
	return m.closeErr
}

type stubRegistry struct{}

func (stubRegistry) KnownVersions(context.Context, []string) (map[string][]version.SemanticVersion, error) {
	return nil, nil
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newWorkspace(t *testing.T, root string) {
	t.Helper()
	writeFile(t, filepath.Join(root, "package.json"), `{"name": "root", "private": true, "workspaces": ["packages/*"]}`)
	writeFile(t, filepath.Join(root, "packages", "a", "package.json"), `{"name": "a", "version": "1.0.0"}`)
	writeFile(t, filepath.Join(root, "packages", "b", "package.json"),
		`{"name": "b", "version": "1.0.0", "dependencies": {"a": "^1.0.0"}}`)
}

func newApp(t *testing.T, cfg *config.Config, root string, opts ...Option) *App {
	t.Helper()
	app, err := New(context.Background(), cfg, root, append([]Option{WithGit(nil)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })
	return app
}

func TestNewRequiresConfig(t *testing.T) {
	_, err := New(context.Background(), nil, t.TempDir())
	assert.Equal(t, rperrors.CodeInvalidConfig, rperrors.GetCode(err))
}

func TestNewRejectsInvalidSettings(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.ChangesetFormat = "xml"
	_, err := New(context.Background(), cfg, t.TempDir(), WithGit(nil))
	assert.Equal(t, rperrors.CodeInvalidConfig, rperrors.GetCode(err))

	cfg = config.DefaultConfig()
	cfg.DefaultBump = "enormous"
	_, err = New(context.Background(), cfg, t.TempDir(), WithGit(nil))
	assert.Equal(t, rperrors.CodeInvalidConfig, rperrors.GetCode(err))
}

func TestAppWiring(t *testing.T) {
	root := t.TempDir()
	newWorkspace(t, root)
	cfg := config.DefaultConfig()
	cfg.ChangesetDir = "release/changesets"

	app := newApp(t, cfg, root)

	assert.Equal(t, root, app.Root())
	assert.Same(t, cfg, app.Config())
	assert.Nil(t, app.Git())
	assert.False(t, app.HasRegistry())
	assert.Equal(t, filepath.Join(root, "release", "changesets"), app.ChangesetDir())
	assert.Equal(t, app.ChangesetDir(), app.Changesets().Dir())
	assert.NotNil(t, app.Types())
	assert.NotNil(t, app.Renderer())
	assert.NotNil(t, app.RecordChangeset())
	assert.NotNil(t, app.Changelogs())

	ws, err := app.Workspace(context.Background())
	require.NoError(t, err)
	assert.True(t, ws.Has("a"))
	assert.True(t, ws.Has("b"))

	input := app.PlanInput(plan.Unified{Version: version.MustParse("2.0.0")})
	assert.Equal(t, cfg.SnapshotHashLength, input.SnapshotHashLength)
	assert.Equal(t, version.SnapshotLegacy, input.SnapshotStyle)

	out, err := app.PlanRelease().Execute(context.Background(), input)
	require.NoError(t, err)
	require.Len(t, out.Plan.Suggestions, 2)
	assert.Equal(t, "a", out.Plan.Suggestions[0].Package)
	assert.Equal(t, "2.0.0", out.Plan.Suggestions[1].To.String())
}

func TestRegistryIsWiredWhenEnabled(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Registry.Enabled = true

	app := newApp(t, cfg, t.TempDir())
	assert.True(t, app.HasRegistry())
	assert.Len(t, app.closeables, 1)

	injected := newApp(t, cfg, t.TempDir(), WithRegistry(stubRegistry{}))
	assert.Equal(t, stubRegistry{}, injected.Registry())
	assert.Empty(t, injected.closeables, "injected registries are owned by the caller")
}

func TestChangesetsForChecksPackages(t *testing.T) {
	root := t.TempDir()
	app := newApp(t, config.DefaultConfig(), root, WithClock(func() time.Time {
		return time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	}))

	ws, err := workspace.New(root, workspace.KindNPM, []*workspace.Package{
		{Name: "auth", Version: version.MustParse("1.0.0"), Path: "packages/auth", ManifestPath: "packages/auth/package.json"},
	}, nil)
	require.NoError(t, err)
	store, err := app.ChangesetsFor(ws)
	require.NoError(t, err)

	ctx := context.Background()
	cs, err := store.Create(ctx, "feature/login", "dev@example.com", nil)
	require.NoError(t, err)
	assert.Equal(t, "2026-10-19T09:00:00Z", cs.CreatedAt.Format(time.RFC3339))

	cs.SetPackage(changeset.Package{Name: "billing", Bump: version.BumpPatch, From: "1.0.0", To: "1.0.1",
		Reason: changeset.Reason{Kind: changeset.ReasonManual}})
	err = store.Update(ctx, cs)
	assert.Equal(t, rperrors.CodeWorkspaceInconsistent, rperrors.GetCode(err))

	open, err := app.ChangesetsFor(nil)
	require.NoError(t, err)
	assert.NoError(t, open.Update(ctx, cs), "without a workspace any package name is accepted")
}

func TestGitIsOpenedFromWorkspace(t *testing.T) {
	repoRoot := t.TempDir()
	_, err := gogit.PlainInit(repoRoot, false)
	require.NoError(t, err)
	wsRoot := filepath.Join(repoRoot, "js")
	newWorkspace(t, wsRoot)

	app, err := New(context.Background(), config.DefaultConfig(), wsRoot)
	require.NoError(t, err)
	defer app.Close()

	require.NotNil(t, app.Git())
	assert.Equal(t, "js", app.repoPrefix())

	outside, err := New(context.Background(), config.DefaultConfig(), t.TempDir())
	require.NoError(t, err)
	defer outside.Close()
	assert.Nil(t, outside.Git(), "a directory outside any repository plans without git")
}

func TestCloseIsLIFOAndIdempotent(t *testing.T) {
	app := newApp(t, config.DefaultConfig(), t.TempDir())

	var order []string
	first := &mockCloseable{name: "first", order: &order}
	second := &mockCloseable{name: "second", order: &order, closeErr: errors.New("boom")}
	app.registerCloseable(first)
	app.registerCloseable(second)
	app.registerCloseable(nil)

	err := app.Close()
	assert.EqualError(t, err, "boom")
	assert.Equal(t, []string{"second", "first"}, order)

	assert.NoError(t, app.Close())
	assert.Equal(t, int32(1), atomic.LoadInt32(&first.closeCount))
}

func TestCloseWithTimeout(t *testing.T) {
	app := newApp(t, config.DefaultConfig(), t.TempDir())
	app.registerCloseable(&mockCloseable{closeDelay: 200 * time.Millisecond})

	err := app.CloseWithTimeout(10 * time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
