package workspace

import (
	"path"
	"sort"
	"strings"

	rperrors "github.com/relicta-tech/monorel/internal/errors"
)

// Kind identifies the package manager layout of a workspace.
type Kind string

const (
	KindSingle Kind = "single"
	KindNPM    Kind = "npm"
	KindYarn   Kind = "yarn"
	KindPNPM   Kind = "pnpm"
	KindBun    Kind = "bun"
)

// Workspace is an immutable set of packages rooted at a directory.
type Workspace struct {
	root     string
	kind     Kind
	packages []*Package
	byName   map[string]*Package
	rootPkg  *Package
}

// New builds a workspace. Package names must be unique; the root package,
// when given, is included in Packages.
func New(root string, kind Kind, packages []*Package, rootPkg *Package) (*Workspace, error) {
	const op = "workspace.New"

	all := make([]*Package, 0, len(packages)+1)
	all = append(all, packages...)
	if rootPkg != nil {
		all = append(all, rootPkg)
	}

	byName := make(map[string]*Package, len(all))
	for _, p := range all {
		if prev, ok := byName[p.Name]; ok {
			return nil, rperrors.Coded(rperrors.CodeWorkspaceInconsistent, op,
				"duplicate package name %q at %s and %s", p.Name, prev.Path, p.Path)
		}
		byName[p.Name] = p
	}

	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	return &Workspace{
		root:     root,
		kind:     kind,
		packages: all,
		byName:   byName,
		rootPkg:  rootPkg,
	}, nil
}

// Root returns the workspace root directory.
func (w *Workspace) Root() string {
	return w.root
}

// Kind returns the workspace layout.
func (w *Workspace) Kind() Kind {
	return w.kind
}

// IsMonorepo reports whether the workspace declares member packages.
func (w *Workspace) IsMonorepo() bool {
	return w.kind != KindSingle
}

// RootPackage returns the package at the workspace root, if any.
func (w *Workspace) RootPackage() *Package {
	return w.rootPkg
}

// Packages returns all packages sorted by name.
func (w *Workspace) Packages() []*Package {
	out := make([]*Package, len(w.packages))
	copy(out, w.packages)
	return out
}

// Names returns all package names sorted.
func (w *Workspace) Names() []string {
	out := make([]string, len(w.packages))
	for i, p := range w.packages {
		out[i] = p.Name
	}
	return out
}

// Get returns the package with the given name.
func (w *Workspace) Get(name string) (*Package, bool) {
	p, ok := w.byName[name]
	return p, ok
}

// Has reports whether name is a workspace package.
func (w *Workspace) Has(name string) bool {
	_, ok := w.byName[name]
	return ok
}

// PackageForPath returns the package owning a workspace-relative file path:
// the member whose directory is the longest prefix of the path, falling back
// to the root package. It returns nil when nothing owns the path.
func (w *Workspace) PackageForPath(file string) *Package {
	file = path.Clean(strings.TrimPrefix(file, "./"))
	if file == ".." || strings.HasPrefix(file, "../") || path.IsAbs(file) {
		return nil
	}

	var best *Package
	for _, p := range w.packages {
		if p.IsRoot() {
			continue
		}
		dir := path.Clean(p.Path)
		if file != dir && !strings.HasPrefix(file, dir+"/") {
			continue
		}
		if best == nil || len(dir) > len(path.Clean(best.Path)) {
			best = p
		}
	}
	if best != nil {
		return best
	}
	return w.rootPkg
}
