// Package workspace provides the domain model for packages and the workspace
// that contains them.
package workspace

import (
	"github.com/relicta-tech/monorel/internal/domain/version"
)

// DependencyKind is the manifest section a dependency is declared in.
type DependencyKind string

const (
	DependencyRuntime  DependencyKind = "runtime"
	DependencyDev      DependencyKind = "dev"
	DependencyPeer     DependencyKind = "peer"
	DependencyOptional DependencyKind = "optional"
)

// DependencyKinds lists the kinds in manifest order.
var DependencyKinds = []DependencyKind{DependencyRuntime, DependencyDev, DependencyPeer, DependencyOptional}

// ManifestField returns the package.json field holding dependencies of this kind.
func (k DependencyKind) ManifestField() string {
	switch k {
	case DependencyDev:
		return "devDependencies"
	case DependencyPeer:
		return "peerDependencies"
	case DependencyOptional:
		return "optionalDependencies"
	default:
		return "dependencies"
	}
}

// Dependency is an edge declared by a package. Identity is (declaring
// package, Name, Kind).
type Dependency struct {
	Name        string
	Requirement version.Requirement
	Kind        DependencyKind
}

// Source returns how the requirement is expressed (range, workspace, file...).
func (d Dependency) Source() version.RequirementKind {
	return d.Requirement.Kind()
}

// Package is a publishable unit identified by its name.
type Package struct {
	Name    string
	Version version.SemanticVersion
	// Path is the package directory relative to the workspace root,
	// slash-separated, "." for the root package.
	Path string
	// ManifestPath is the manifest path relative to the workspace root.
	ManifestPath string
	Private      bool
	Dependencies []Dependency
}

// IsRoot reports whether the package lives at the workspace root.
func (p *Package) IsRoot() bool {
	return p.Path == "." || p.Path == ""
}

// DependenciesOn returns every edge from p to name, one per kind.
func (p *Package) DependenciesOn(name string) []Dependency {
	var out []Dependency
	for _, d := range p.Dependencies {
		if d.Name == name {
			out = append(out, d)
		}
	}
	return out
}
