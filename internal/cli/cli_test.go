package cli

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"github.com/relicta-tech/monorel/internal/config"
	"github.com/relicta-tech/monorel/internal/container"
	"github.com/relicta-tech/monorel/internal/domain/sourcecontrol"
	rperrors "github.com/relicta-tech/monorel/internal/errors"
)

const (
	shaFeat = "abcdef1234567890abcdef1234567890abcdef12"
	shaDocs = "1234567890abcdef1234567890abcdef12345678"
)

var releaseDay = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

// fakeGit implements sourcecontrol.GitRepository for testing.
type fakeGit struct {
	branch  string
	commits []*sourcecontrol.Commit
	files   map[sourcecontrol.CommitHash][]string
}

func (f *fakeGit) CurrentBranch(context.Context) (string, error) {
	if f.branch == "" {
		return "", rperrors.Coded(rperrors.CodeGitUnavailable, "fake", "detached")
	}
	return f.branch, nil
}

func (f *fakeGit) CurrentSHA(context.Context) (sourcecontrol.CommitHash, error) {
	return shaFeat, nil
}

func (f *fakeGit) ListStagedFiles(context.Context) ([]string, error) { return nil, nil }

func (f *fakeGit) FilesChangedIn(_ context.Context, hash sourcecontrol.CommitHash) ([]string, error) {
	return f.files[hash], nil
}

func (f *fakeGit) FilesChangedBetween(context.Context, string, string) ([]string, error) {
	return nil, nil
}

func (f *fakeGit) CommitsBetween(context.Context, string, string) ([]*sourcecontrol.Commit, error) {
	return f.commits, nil
}

func (f *fakeGit) ListTags(context.Context, bool) (sourcecontrol.TagList, error) { return nil, nil }

func (f *fakeGit) GetLastTagMatching(context.Context, string) (*sourcecontrol.Tag, error) {
	return nil, nil
}

func (f *fakeGit) RemoteURL(context.Context, string) (string, error) {
	return "https://github.com/acme/web.git", nil
}

// newFakeGit returns history with a feature for package a and an
// unattributed docs commit.
func newFakeGit(branch string) *fakeGit {
	author := sourcecontrol.Author{Name: "Dev", Email: "dev@example.com"}
	return &fakeGit{
		branch: branch,
		commits: []*sourcecontrol.Commit{
			sourcecontrol.NewCommit(shaFeat, "feat(a): add thing", author, releaseDay),
			sourcecontrol.NewCommit(shaDocs, "docs: update readme", author, releaseDay.Add(-time.Hour)),
		},
		files: map[sourcecontrol.CommitHash][]string{
			shaFeat: {"packages/a/index.js"},
			shaDocs: {"README.md"},
		},
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

// newWorkspace lays out a two package npm workspace where b depends on a.
func newWorkspace(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "package.json"), `{"name": "root", "private": true, "workspaces": ["packages/*"]}`)
	writeFile(t, filepath.Join(root, "packages", "a", "package.json"), "{\n  \"name\": \"a\",\n  \"version\": \"1.0.0\"\n}\n")
	writeFile(t, filepath.Join(root, "packages", "b", "package.json"),
		"{\n  \"name\": \"b\",\n  \"version\": \"1.0.0\",\n  \"dependencies\": {\n    \"a\": \"^1.0.0\"\n  }\n}\n")
	return root
}

// resetFlags restores every flag of cmd and its children to its default so
// package-level commands can run more than once per test binary.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// useGit makes commands open the workspace with git as its repository.
func useGit(t *testing.T, git sourcecontrol.GitRepository) {
	t.Helper()
	orig := newContainerApp
	newContainerApp = func(ctx context.Context, cfg *config.Config, root string) (cliApp, error) {
		app, err := container.New(ctx, cfg, root,
			container.WithGit(git),
			container.WithClock(func() time.Time { return releaseDay }))
		if err != nil {
			return nil, err
		}
		return app, nil
	}
	t.Cleanup(func() { newContainerApp = orig })
}

// runCLI executes the root command in root and returns stdout and the exit
// code main would use.
func runCLI(t *testing.T, root string, args ...string) (string, int) {
	t.Helper()

	resetFlags(rootCmd)
	logger.SetOutput(io.Discard)
	lipgloss.SetColorProfile(termenv.Ascii)

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(append(append([]string{}, args...), "--cwd", root))
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
		out = os.Stdout
		cfg = nil
	})

	err := rootCmd.ExecuteContext(context.Background())
	code := HandleError(&stderr, err)
	return stdout.String(), code
}
