// Package graph builds the dependency graph of a workspace and answers
// ordering, cycle and impact questions about it.
package graph

import (
	"container/heap"
	"sort"

	"github.com/relicta-tech/monorel/internal/domain/version"
	"github.com/relicta-tech/monorel/internal/domain/workspace"
)

// Edge is a dependency declared by From on the internal package To.
type Edge struct {
	From        string
	To          string
	Kind        workspace.DependencyKind
	Requirement version.Requirement
}

// Declaration is one package's requirement on a dependency.
type Declaration struct {
	Package     string
	Kind        workspace.DependencyKind
	Requirement version.Requirement
}

// Graph is the dependency graph of a workspace. It is immutable once built.
type Graph struct {
	nodes        []string
	versions     map[string]version.SemanticVersion
	edges        []Edge
	dependencies map[string][]string
	dependents   map[string][]string
	declarations map[string][]Declaration
	external     []string
	selfLoops    []string

	components  [][]string
	componentOf map[string]int
	order       [][]string
}

// Build constructs the graph of ws. Edges to names outside the workspace are
// recorded in the external set rather than as edges.
func Build(ws *workspace.Workspace) *Graph {
	g := &Graph{
		versions:     make(map[string]version.SemanticVersion),
		dependencies: make(map[string][]string),
		dependents:   make(map[string][]string),
		declarations: make(map[string][]Declaration),
		componentOf:  make(map[string]int),
	}

	for _, p := range ws.Packages() {
		g.nodes = append(g.nodes, p.Name)
		g.versions[p.Name] = p.Version
	}

	externalSet := make(map[string]bool)
	selfSet := make(map[string]bool)
	depSet := make(map[string]map[string]bool)
	for _, p := range ws.Packages() {
		for _, d := range p.Dependencies {
			g.declarations[d.Name] = append(g.declarations[d.Name], Declaration{
				Package:     p.Name,
				Kind:        d.Kind,
				Requirement: d.Requirement,
			})
			if !ws.Has(d.Name) {
				externalSet[d.Name] = true
				continue
			}
			if d.Name == p.Name {
				selfSet[p.Name] = true
				continue
			}
			g.edges = append(g.edges, Edge{From: p.Name, To: d.Name, Kind: d.Kind, Requirement: d.Requirement})
			if depSet[p.Name] == nil {
				depSet[p.Name] = make(map[string]bool)
			}
			if !depSet[p.Name][d.Name] {
				depSet[p.Name][d.Name] = true
				g.dependencies[p.Name] = append(g.dependencies[p.Name], d.Name)
				g.dependents[d.Name] = append(g.dependents[d.Name], p.Name)
			}
		}
	}
	for _, list := range g.dependencies {
		sort.Strings(list)
	}
	for _, list := range g.dependents {
		sort.Strings(list)
	}
	sort.Slice(g.edges, func(i, j int) bool {
		a, b := g.edges[i], g.edges[j]
		if a.From != b.From {
			return a.From < b.From
		}
		if a.To != b.To {
			return a.To < b.To
		}
		return a.Kind < b.Kind
	})
	g.external = sortedKeys(externalSet)
	g.selfLoops = sortedKeys(selfSet)

	g.components = g.tarjan()
	for i, c := range g.components {
		for _, n := range c {
			g.componentOf[n] = i
		}
	}
	g.order = g.contractedOrder()
	return g
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Nodes returns the package names sorted.
func (g *Graph) Nodes() []string {
	return append([]string(nil), g.nodes...)
}

// Edges returns every internal edge, excluding self-loops.
func (g *Graph) Edges() []Edge {
	return append([]Edge(nil), g.edges...)
}

// Dependencies returns the internal packages name depends on.
func (g *Graph) Dependencies(name string) []string {
	return append([]string(nil), g.dependencies[name]...)
}

// Dependents returns the internal packages that depend on name.
func (g *Graph) Dependents(name string) []string {
	return append([]string(nil), g.dependents[name]...)
}

// EdgesTo returns the edges whose target is name.
func (g *Graph) EdgesTo(name string) []Edge {
	var out []Edge
	for _, e := range g.edges {
		if e.To == name {
			out = append(out, e)
		}
	}
	return out
}

// External returns the depended-on names that are not workspace packages.
func (g *Graph) External() []string {
	return append([]string(nil), g.external...)
}

// SelfLoops returns the packages that declare a dependency on themselves.
func (g *Graph) SelfLoops() []string {
	return append([]string(nil), g.selfLoops...)
}

// Cycles returns the strongly connected components with two or more
// members, members sorted, components ordered by their first member.
func (g *Graph) Cycles() [][]string {
	var out [][]string
	for _, c := range g.components {
		if len(c) > 1 {
			out = append(out, append([]string(nil), c...))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}

// SCCOf returns the sorted members of the component containing name.
func (g *Graph) SCCOf(name string) []string {
	i, ok := g.componentOf[name]
	if !ok {
		return nil
	}
	return append([]string(nil), g.components[i]...)
}

// InCycle reports whether name belongs to a component of two or more members.
func (g *Graph) InCycle(name string) bool {
	return len(g.SCCOf(name)) > 1
}

// TopologicalGroups returns the components in dependency order: every
// component appears after all components it depends on. Ties are broken by
// the smallest member name.
func (g *Graph) TopologicalGroups() [][]string {
	out := make([][]string, len(g.order))
	for i, c := range g.order {
		out[i] = append([]string(nil), c...)
	}
	return out
}

// TopologicalOrder flattens TopologicalGroups.
func (g *Graph) TopologicalOrder() []string {
	var out []string
	for _, c := range g.order {
		out = append(out, c...)
	}
	return out
}

// Affected returns the changed packages together with every package that
// transitively depends on one of them, sorted.
func (g *Graph) Affected(changed []string) []string {
	seen := make(map[string]bool)
	queue := make([]string, 0, len(changed))
	for _, c := range changed {
		if _, ok := g.versions[c]; ok && !seen[c] {
			seen[c] = true
			queue = append(queue, c)
		}
	}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, d := range g.dependents[n] {
			if !seen[d] {
				seen[d] = true
				queue = append(queue, d)
			}
		}
	}
	return sortedKeys(seen)
}

// tarjan returns the strongly connected components with sorted members.
func (g *Graph) tarjan() [][]string {
	index := 0
	indices := make(map[string]int, len(g.nodes))
	lowlink := make(map[string]int, len(g.nodes))
	onStack := make(map[string]bool, len(g.nodes))
	var stack []string
	var out [][]string

	var strongConnect func(v string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range g.dependencies[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var comp []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				comp = append(comp, w)
				if w == v {
					break
				}
			}
			sort.Strings(comp)
			out = append(out, comp)
		}
	}

	for _, n := range g.nodes {
		if _, visited := indices[n]; !visited {
			strongConnect(n)
		}
	}
	return out
}

// contractedOrder runs Kahn's algorithm over the component graph.
func (g *Graph) contractedOrder() [][]string {
	n := len(g.components)
	pending := make([]int, n)
	dependentComps := make([]map[int]bool, n)
	for i := range dependentComps {
		dependentComps[i] = make(map[int]bool)
	}
	for from, deps := range g.dependencies {
		fc := g.componentOf[from]
		for _, to := range deps {
			tc := g.componentOf[to]
			if fc == tc || dependentComps[tc][fc] {
				continue
			}
			dependentComps[tc][fc] = true
			pending[fc]++
		}
	}

	ready := &componentHeap{components: g.components}
	for i := 0; i < n; i++ {
		if pending[i] == 0 {
			ready.ids = append(ready.ids, i)
		}
	}
	heap.Init(ready)

	out := make([][]string, 0, n)
	for ready.Len() > 0 {
		c := heap.Pop(ready).(int)
		out = append(out, g.components[c])
		for dc := range dependentComps[c] {
			pending[dc]--
			if pending[dc] == 0 {
				heap.Push(ready, dc)
			}
		}
	}
	return out
}

type componentHeap struct {
	ids        []int
	components [][]string
}

func (h *componentHeap) Len() int { return len(h.ids) }
func (h *componentHeap) Less(i, j int) bool {
	return h.components[h.ids[i]][0] < h.components[h.ids[j]][0]
}
func (h *componentHeap) Swap(i, j int) { h.ids[i], h.ids[j] = h.ids[j], h.ids[i] }
func (h *componentHeap) Push(x any)   { h.ids = append(h.ids, x.(int)) }
func (h *componentHeap) Pop() any {
	old := h.ids
	x := old[len(old)-1]
	h.ids = old[:len(old)-1]
	return x
}
