// Package detection maps changed files and commits onto workspace packages.
package detection

import (
	"context"
	"log/slog"
	"path"
	"sort"
	"strings"

	"github.com/relicta-tech/monorel/internal/domain/sourcecontrol"
	"github.com/relicta-tech/monorel/internal/domain/workspace"
	rperrors "github.com/relicta-tech/monorel/internal/errors"
)

// Result groups changed files by owning package.
type Result struct {
	// Files maps package name to its changed files, sorted and deduplicated.
	Files map[string][]string
	// Dropped lists files no package owns, sorted.
	Dropped []string
}

// Packages returns the names of packages with changed files, sorted.
func (r Result) Packages() []string {
	out := make([]string, 0, len(r.Files))
	for name := range r.Files {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Detector attributes repository paths to workspace packages.
type Detector struct {
	ws     *workspace.Workspace
	prefix string
	logger *slog.Logger
}

// Option configures a Detector.
type Option func(*Detector)

// WithRepoPrefix sets the workspace root relative to the repository root, in
// slash form. Paths outside it are dropped.
func WithRepoPrefix(prefix string) Option {
	return func(d *Detector) {
		prefix = strings.Trim(path.Clean("/"+prefix), "/")
		d.prefix = prefix
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Detector) {
		d.logger = logger
	}
}

// NewDetector creates a detector for ws.
func NewDetector(ws *workspace.Workspace, opts ...Option) *Detector {
	d := &Detector{
		ws:     ws,
		logger: slog.Default().With("service", "detection"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Owner returns the package that owns a repository path.
func (d *Detector) Owner(repoPath string) (*workspace.Package, bool) {
	rel, ok := d.relative(repoPath)
	if !ok {
		return nil, false
	}
	pkg := d.ws.PackageForPath(rel)
	return pkg, pkg != nil
}

func (d *Detector) relative(repoPath string) (string, bool) {
	p := strings.TrimPrefix(path.Clean(strings.ReplaceAll(repoPath, "\\", "/")), "./")
	if d.prefix == "" {
		return p, true
	}
	if p == d.prefix {
		return ".", true
	}
	if !strings.HasPrefix(p, d.prefix+"/") {
		return "", false
	}
	return strings.TrimPrefix(p, d.prefix+"/"), true
}

// Detect groups paths by their owning package. The result does not depend
// on input order or duplicates.
func (d *Detector) Detect(paths []string) Result {
	res := d.detect(paths)
	if len(res.Dropped) > 0 {
		d.logger.Warn("files outside every package were ignored", "count", len(res.Dropped))
	}
	return res
}

func (d *Detector) detect(paths []string) Result {
	files := make(map[string]map[string]bool)
	dropped := make(map[string]bool)

	for _, p := range paths {
		pkg, ok := d.Owner(p)
		if !ok {
			dropped[p] = true
			continue
		}
		if files[pkg.Name] == nil {
			files[pkg.Name] = make(map[string]bool)
		}
		files[pkg.Name][p] = true
	}

	res := Result{Files: make(map[string][]string, len(files))}
	for name, set := range files {
		res.Files[name] = sortedSet(set)
	}
	res.Dropped = sortedSet(dropped)
	return res
}

func sortedSet(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Attribution is the outcome of attributing commits to packages.
type Attribution struct {
	// Commits maps a package to the commits that touched it, in input order.
	Commits map[string][]*sourcecontrol.Commit
	// Files is the combined file detection over all commits.
	Files Result
	// Warnings collects recoverable git failures.
	Warnings []error
}

// Attribute assigns each commit to every package owning one of its changed
// files. When the files of a commit cannot be read the commit is assigned to
// every package and a warning is recorded.
func (d *Detector) Attribute(ctx context.Context, repo sourcecontrol.FileReader, commits []*sourcecontrol.Commit) (*Attribution, error) {
	const op = "detection.Attribute"

	out := &Attribution{Commits: make(map[string][]*sourcecontrol.Commit)}
	var allFiles []string
	for _, c := range commits {
		if err := ctx.Err(); err != nil {
			return nil, rperrors.Wrap(err, rperrors.KindCanceled, op, "attribution canceled")
		}

		files, err := repo.FilesChangedIn(ctx, c.Hash())
		if err != nil {
			d.logger.Warn("cannot read files of commit, assuming every package is affected",
				"commit", c.ShortHash(), "error", err)
			out.Warnings = append(out.Warnings, err)
			for _, name := range d.ws.Names() {
				out.Commits[name] = append(out.Commits[name], c)
			}
			continue
		}

		allFiles = append(allFiles, files...)
		for _, name := range d.detect(files).Packages() {
			out.Commits[name] = append(out.Commits[name], c)
		}
	}
	out.Files = d.Detect(allFiles)
	return out, nil
}
