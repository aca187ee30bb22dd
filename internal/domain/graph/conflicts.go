package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/relicta-tech/monorel/internal/domain/version"
)

// Conflict is a dependency whose requirements across the workspace cannot
// all be met by any known version.
type Conflict struct {
	Dependency   string
	Declarations []Declaration
	Candidates   []version.SemanticVersion
}

// String renders the conflict for warnings.
func (c Conflict) String() string {
	reqs := make([]string, len(c.Declarations))
	for i, d := range c.Declarations {
		reqs[i] = fmt.Sprintf("%s requires %s", d.Package, d.Requirement)
	}
	cands := make([]string, len(c.Candidates))
	for i, v := range c.Candidates {
		cands[i] = v.String()
	}
	return fmt.Sprintf("%s: %s; known versions: %s",
		c.Dependency, strings.Join(reqs, ", "), strings.Join(cands, ", "))
}

// Declared returns every name some package depends on, sorted.
func (g *Graph) Declared() []string {
	out := make([]string, 0, len(g.declarations))
	for name := range g.declarations {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Conflicts checks every declared dependency against its candidate versions:
// the current version for workspace packages plus whatever known supplies
// (usually registry versions). Protocol and alias requirements never conflict.
// Names with no candidates are skipped.
func (g *Graph) Conflicts(known map[string][]version.SemanticVersion) []Conflict {
	var out []Conflict
	for _, name := range g.Declared() {
		var decls []Declaration
		for _, d := range g.declarations[name] {
			switch d.Requirement.Kind() {
			case version.RequirementRange:
				decls = append(decls, d)
			}
		}
		if len(decls) == 0 {
			continue
		}

		var candidates []version.SemanticVersion
		if v, ok := g.versions[name]; ok {
			candidates = append(candidates, v)
		}
		candidates = append(candidates, known[name]...)
		if len(candidates) == 0 {
			continue
		}

		if jointlySatisfiable(decls, candidates) {
			continue
		}
		sort.Slice(candidates, func(i, j int) bool { return candidates[i].LessThan(candidates[j]) })
		out = append(out, Conflict{Dependency: name, Declarations: decls, Candidates: candidates})
	}
	return out
}

func jointlySatisfiable(decls []Declaration, candidates []version.SemanticVersion) bool {
	for _, c := range candidates {
		ok := true
		for _, d := range decls {
			if !d.Requirement.SatisfiedBy(c) {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}
