package detection

import (
	"context"
	"errors"
	"math/rand"
	"reflect"
	"testing"
	"time"

	"github.com/relicta-tech/monorel/internal/domain/sourcecontrol"
	"github.com/relicta-tech/monorel/internal/domain/version"
	"github.com/relicta-tech/monorel/internal/domain/workspace"
	rperrors "github.com/relicta-tech/monorel/internal/errors"
)

func testWorkspace(t *testing.T, withRoot bool) *workspace.Workspace {
	t.Helper()
	pkgs := []*workspace.Package{
		{Name: "app", Version: version.MustParse("1.0.0"), Path: "apps/app"},
		{Name: "core", Version: version.MustParse("1.0.0"), Path: "packages/core"},
		{Name: "core-utils", Version: version.MustParse("1.0.0"), Path: "packages/core/utils"},
		{Name: "corelib", Version: version.MustParse("1.0.0"), Path: "packages/corelib"},
	}
	var root *workspace.Package
	if withRoot {
		root = &workspace.Package{Name: "monorepo", Version: version.MustParse("0.1.0"), Path: "."}
	}
	ws, err := workspace.New("/repo", workspace.KindPNPM, pkgs, root)
	if err != nil {
		t.Fatal(err)
	}
	return ws
}

func TestDetect(t *testing.T) {
	d := NewDetector(testWorkspace(t, false))
	res := d.Detect([]string{
		"packages/core/src/index.ts",
		"packages/core/utils/a.ts",
		"packages/corelib/b.ts",
		"apps/app/main.ts",
		"apps/app/main.ts",
		"README.md",
	})

	want := map[string][]string{
		"app":        {"apps/app/main.ts"},
		"core":       {"packages/core/src/index.ts"},
		"core-utils": {"packages/core/utils/a.ts"},
		"corelib":    {"packages/corelib/b.ts"},
	}
	if !reflect.DeepEqual(res.Files, want) {
		t.Errorf("Files = %v, want %v", res.Files, want)
	}
	if !reflect.DeepEqual(res.Dropped, []string{"README.md"}) {
		t.Errorf("Dropped = %v", res.Dropped)
	}
}

func TestDetectRootPackageFallback(t *testing.T) {
	d := NewDetector(testWorkspace(t, true))
	res := d.Detect([]string{"README.md", ".github/workflows/ci.yml", "packages/core/x.ts"})

	if got := res.Files["monorepo"]; !reflect.DeepEqual(got, []string{".github/workflows/ci.yml", "README.md"}) {
		t.Errorf("root files = %v", got)
	}
	if len(res.Dropped) != 0 {
		t.Errorf("Dropped = %v, want none", res.Dropped)
	}
}

func TestDetectWithRepoPrefix(t *testing.T) {
	d := NewDetector(testWorkspace(t, true), WithRepoPrefix("js/"))
	res := d.Detect([]string{"js/packages/core/x.ts", "js/package.json", "go/main.go"})

	if got := res.Packages(); !reflect.DeepEqual(got, []string{"core", "monorepo"}) {
		t.Errorf("Packages() = %v", got)
	}
	if !reflect.DeepEqual(res.Dropped, []string{"go/main.go"}) {
		t.Errorf("Dropped = %v", res.Dropped)
	}
}

func TestDetectIsOrderIndependentAndIdempotent(t *testing.T) {
	d := NewDetector(testWorkspace(t, true))
	paths := []string{
		"packages/core/a", "packages/core/utils/b", "apps/app/c", "d", "packages/corelib/e",
		"packages/core/a", "apps/app/f",
	}
	want := d.Detect(paths)

	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 20; i++ {
		shuffled := append([]string(nil), paths...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		if got := d.Detect(shuffled); !reflect.DeepEqual(got, want) {
			t.Fatalf("Detect(shuffled) = %v, want %v", got, want)
		}
	}

	var flattened []string
	for _, files := range want.Files {
		flattened = append(flattened, files...)
	}
	if got := d.Detect(flattened); !reflect.DeepEqual(got.Files, want.Files) {
		t.Errorf("Detect is not idempotent: %v vs %v", got.Files, want.Files)
	}
}

type fakeFiles struct {
	files map[sourcecontrol.CommitHash][]string
	fail  map[sourcecontrol.CommitHash]bool
}

func (f *fakeFiles) ListStagedFiles(context.Context) ([]string, error) { return nil, nil }

func (f *fakeFiles) FilesChangedIn(_ context.Context, h sourcecontrol.CommitHash) ([]string, error) {
	if f.fail[h] {
		return nil, rperrors.GitWrap(errors.New("object not found"), "fake", "failed")
	}
	return f.files[h], nil
}

func (f *fakeFiles) FilesChangedBetween(context.Context, string, string) ([]string, error) {
	return nil, nil
}

func commit(hash, msg string) *sourcecontrol.Commit {
	return sourcecontrol.NewCommit(sourcecontrol.CommitHash(hash), msg, sourcecontrol.Author{Name: "dev"}, time.Unix(0, 0))
}

func TestAttribute(t *testing.T) {
	ws := testWorkspace(t, false)
	d := NewDetector(ws)
	repo := &fakeFiles{
		files: map[sourcecontrol.CommitHash][]string{
			"c1": {"packages/core/a.ts", "apps/app/b.ts"},
			"c2": {"packages/core/c.ts"},
			"c3": {"docs/readme.md"},
		},
		fail: map[sourcecontrol.CommitHash]bool{"c4": true},
	}
	commits := []*sourcecontrol.Commit{
		commit("c1", "feat: both"),
		commit("c2", "fix(core): one"),
		commit("c3", "docs: none"),
		commit("c4", "chore: unknown"),
	}

	attr, err := d.Attribute(context.Background(), repo, commits)
	if err != nil {
		t.Fatal(err)
	}

	hashes := func(name string) []string {
		var out []string
		for _, c := range attr.Commits[name] {
			out = append(out, c.Hash().String())
		}
		return out
	}
	if got := hashes("core"); !reflect.DeepEqual(got, []string{"c1", "c2", "c4"}) {
		t.Errorf("core commits = %v", got)
	}
	if got := hashes("app"); !reflect.DeepEqual(got, []string{"c1", "c4"}) {
		t.Errorf("app commits = %v", got)
	}
	if got := hashes("corelib"); !reflect.DeepEqual(got, []string{"c4"}) {
		t.Errorf("corelib commits = %v", got)
	}
	if len(attr.Warnings) != 1 || !rperrors.IsRecoverable(attr.Warnings[0]) {
		t.Errorf("Warnings = %v", attr.Warnings)
	}
	if !reflect.DeepEqual(attr.Files.Dropped, []string{"docs/readme.md"}) {
		t.Errorf("Dropped = %v", attr.Files.Dropped)
	}

	// Every attributed commit changed a file the package owns, unless the
	// files could not be read.
	for name, cs := range attr.Commits {
		for _, c := range cs {
			if repo.fail[c.Hash()] {
				continue
			}
			owned := false
			for _, f := range repo.files[c.Hash()] {
				if p, ok := d.Owner(f); ok && p.Name == name {
					owned = true
				}
			}
			if !owned {
				t.Errorf("commit %s attributed to %s without owning a file", c.Hash(), name)
			}
		}
	}
}

func TestAttributeCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d := NewDetector(testWorkspace(t, false))
	_, err := d.Attribute(ctx, &fakeFiles{}, []*sourcecontrol.Commit{commit("c1", "feat: x")})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Attribute() error = %v, want context.Canceled", err)
	}
}
