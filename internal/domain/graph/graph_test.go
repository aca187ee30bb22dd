package graph

import (
	"fmt"
	"math/rand"
	"reflect"
	"testing"

	"github.com/relicta-tech/monorel/internal/domain/version"
	"github.com/relicta-tech/monorel/internal/domain/workspace"
)

// spec maps a package to "dep@requirement" entries.
type spec map[string][]string

func buildWorkspace(t *testing.T, versions map[string]string, deps spec) *workspace.Workspace {
	t.Helper()
	var pkgs []*workspace.Package
	for name, v := range versions {
		p := &workspace.Package{Name: name, Version: version.MustParse(v), Path: "packages/" + name}
		for _, d := range deps[name] {
			dep, req := splitDep(d)
			p.Dependencies = append(p.Dependencies, workspace.Dependency{
				Name:        dep,
				Requirement: version.MustParseRequirement(req),
				Kind:        workspace.DependencyRuntime,
			})
		}
		pkgs = append(pkgs, p)
	}
	ws, err := workspace.New("/repo", workspace.KindNPM, pkgs, nil)
	if err != nil {
		t.Fatal(err)
	}
	return ws
}

func splitDep(s string) (string, string) {
	for i := len(s) - 1; i > 0; i-- {
		if s[i] == '@' {
			return s[:i], s[i+1:]
		}
	}
	return s, "*"
}

func TestBuildChain(t *testing.T) {
	ws := buildWorkspace(t,
		map[string]string{"a": "1.0.0", "b": "1.0.0", "c": "1.0.0"},
		spec{"b": {"a@^1.0.0"}, "c": {"b@^1.0.0", "lodash@^4.0.0"}})
	g := Build(ws)

	if got := g.TopologicalOrder(); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Errorf("TopologicalOrder() = %v", got)
	}
	if got := g.Dependents("a"); !reflect.DeepEqual(got, []string{"b"}) {
		t.Errorf("Dependents(a) = %v", got)
	}
	if got := g.Dependencies("c"); !reflect.DeepEqual(got, []string{"b"}) {
		t.Errorf("Dependencies(c) = %v", got)
	}
	if got := g.External(); !reflect.DeepEqual(got, []string{"lodash"}) {
		t.Errorf("External() = %v", got)
	}
	if len(g.Cycles()) != 0 {
		t.Errorf("Cycles() = %v, want none", g.Cycles())
	}
	if got := g.Affected([]string{"a"}); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Errorf("Affected(a) = %v", got)
	}
	if got := g.Affected([]string{"c", "unknown"}); !reflect.DeepEqual(got, []string{"c"}) {
		t.Errorf("Affected(c) = %v", got)
	}
	if len(g.Edges()) != 2 || len(g.EdgesTo("b")) != 1 {
		t.Errorf("Edges() = %v", g.Edges())
	}
}

func TestCycleDetection(t *testing.T) {
	ws := buildWorkspace(t,
		map[string]string{"x": "1.0.0", "y": "1.0.0", "z": "1.0.0", "app": "1.0.0", "base": "1.0.0"},
		spec{
			"x":   {"y@^1.0.0", "base@^1.0.0"},
			"y":   {"z@^1.0.0"},
			"z":   {"x@^1.0.0"},
			"app": {"x@^1.0.0"},
		})
	g := Build(ws)

	if got := g.Cycles(); !reflect.DeepEqual(got, [][]string{{"x", "y", "z"}}) {
		t.Errorf("Cycles() = %v", got)
	}
	if !g.InCycle("y") || g.InCycle("app") {
		t.Error("InCycle mismatch")
	}
	want := [][]string{{"base"}, {"x", "y", "z"}, {"app"}}
	if got := g.TopologicalGroups(); !reflect.DeepEqual(got, want) {
		t.Errorf("TopologicalGroups() = %v, want %v", got, want)
	}
	if got := g.SCCOf("z"); !reflect.DeepEqual(got, []string{"x", "y", "z"}) {
		t.Errorf("SCCOf(z) = %v", got)
	}
}

func TestSelfLoopIsNotACycle(t *testing.T) {
	ws := buildWorkspace(t, map[string]string{"a": "1.0.0"}, spec{"a": {"a@workspace:*"}})
	g := Build(ws)

	if got := g.SelfLoops(); !reflect.DeepEqual(got, []string{"a"}) {
		t.Errorf("SelfLoops() = %v", got)
	}
	if len(g.Cycles()) != 0 {
		t.Errorf("Cycles() = %v, want none", g.Cycles())
	}
	if len(g.Dependents("a")) != 0 {
		t.Errorf("Dependents(a) = %v, want none", g.Dependents("a"))
	}
}

func TestTieBreakByName(t *testing.T) {
	ws := buildWorkspace(t,
		map[string]string{"d": "1.0.0", "c": "1.0.0", "b": "1.0.0", "a": "1.0.0"},
		spec{"a": {"d@*"}})
	g := Build(ws)

	if got := g.TopologicalOrder(); !reflect.DeepEqual(got, []string{"b", "c", "d", "a"}) {
		t.Errorf("TopologicalOrder() = %v", got)
	}
}

// TestTopologicalOrderProperty checks on random graphs that no package is
// placed before one of its dependencies unless both share a cycle, and that
// cycle members are contiguous.
func TestTopologicalOrderProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for iter := 0; iter < 50; iter++ {
		n := 2 + rng.Intn(12)
		versions := make(map[string]string, n)
		deps := spec{}
		names := make([]string, n)
		for i := range names {
			names[i] = fmt.Sprintf("p%02d", i)
			versions[names[i]] = "1.0.0"
		}
		for _, from := range names {
			for _, to := range names {
				if from != to && rng.Float64() < 0.15 {
					deps[from] = append(deps[from], to+"@*")
				}
			}
		}

		g := Build(buildWorkspace(t, versions, deps))
		order := g.TopologicalOrder()
		if len(order) != n {
			t.Fatalf("order has %d entries, want %d", len(order), n)
		}
		pos := make(map[string]int, n)
		for i, name := range order {
			pos[name] = i
		}
		for _, e := range g.Edges() {
			sameSCC := reflect.DeepEqual(g.SCCOf(e.From), g.SCCOf(e.To))
			if !sameSCC && pos[e.To] > pos[e.From] {
				t.Errorf("iteration %d: %s placed before its dependency %s", iter, e.From, e.To)
			}
		}
		for _, c := range g.Cycles() {
			first := pos[c[0]]
			for i, m := range c {
				if pos[m] != first+i {
					t.Errorf("iteration %d: cycle %v is not contiguous in %v", iter, c, order)
				}
			}
		}
	}
}

func TestConflicts(t *testing.T) {
	ws := buildWorkspace(t,
		map[string]string{"a": "1.0.0", "b": "1.0.0", "c": "1.0.0", "d": "1.0.0"},
		spec{
			"b": {"a@^2.0.0", "lodash@^3.0.0"},
			"c": {"a@workspace:*", "lodash@^4.0.0"},
			"d": {"c@^1.0.0", "left-pad@^1.0.0"},
		})
	g := Build(ws)

	conflicts := g.Conflicts(map[string][]version.SemanticVersion{
		"lodash": {version.MustParse("3.10.1"), version.MustParse("4.17.21")},
	})
	if len(conflicts) != 2 {
		t.Fatalf("Conflicts() = %v, want a and lodash", conflicts)
	}
	if conflicts[0].Dependency != "a" || len(conflicts[0].Declarations) != 1 {
		t.Errorf("conflict[0] = %+v", conflicts[0])
	}
	if conflicts[1].Dependency != "lodash" || len(conflicts[1].Candidates) != 2 {
		t.Errorf("conflict[1] = %+v", conflicts[1])
	}
	if conflicts[0].String() == "" {
		t.Error("String() should describe the conflict")
	}

	withRegistry := g.Conflicts(map[string][]version.SemanticVersion{"a": {version.MustParse("2.1.0")}})
	for _, c := range withRegistry {
		if c.Dependency == "a" {
			t.Errorf("a should be satisfiable once 2.1.0 is known: %v", c)
		}
	}
}
