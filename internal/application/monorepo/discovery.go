package monorepo

import (
	"context"
	"log/slog"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/relicta-tech/monorel/internal/domain/workspace"
	rperrors "github.com/relicta-tech/monorel/internal/errors"
	"github.com/relicta-tech/monorel/internal/fileutil"
)

// DefaultConcurrency bounds parallel manifest reads.
const DefaultConcurrency = 8

// skipDirs are never traversed while expanding workspace globs.
var skipDirs = map[string]bool{
	"node_modules": true,
	".git":         true,
}

// Discoverer finds the packages of a workspace.
type Discoverer struct {
	fs          fileutil.FS
	reader      *ManifestReader
	logger      *slog.Logger
	concurrency int
	extra       []string
}

// DiscovererOption configures a Discoverer.
type DiscovererOption func(*Discoverer)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) DiscovererOption {
	return func(d *Discoverer) {
		d.logger = logger
	}
}

// WithConcurrency bounds the number of manifests read in parallel.
func WithConcurrency(n int) DiscovererOption {
	return func(d *Discoverer) {
		if n > 0 {
			d.concurrency = n
		}
	}
}

// WithExtraPatterns adds workspace globs on top of those the root declares.
func WithExtraPatterns(patterns ...string) DiscovererOption {
	return func(d *Discoverer) {
		d.extra = append(d.extra, patterns...)
	}
}

// NewDiscoverer creates a Discoverer over the filesystem façade.
func NewDiscoverer(fsys fileutil.FS, opts ...DiscovererOption) *Discoverer {
	d := &Discoverer{
		fs:          fsys,
		reader:      NewManifestReader(fsys),
		logger:      slog.Default().With("service", "discovery"),
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

type pnpmWorkspace struct {
	Packages []string `yaml:"packages"`
}

// Discover reads the root manifest, detects the workspace kind, expands the
// member globs and reads every member manifest.
func (d *Discoverer) Discover(ctx context.Context, root string) (*workspace.Workspace, error) {
	const op = "monorepo.Discover"

	rootManifestPath := filepath.Join(root, ManifestFile)
	pnpmPath := filepath.Join(root, "pnpm-workspace.yaml")

	var rootRaw *rawManifest
	if d.fs.Exists(rootManifestPath) {
		m, err := d.reader.readRaw(rootManifestPath)
		if err != nil {
			return nil, err
		}
		rootRaw = m
	} else if !d.fs.Exists(pnpmPath) {
		return nil, rperrors.Coded(rperrors.CodeManifestNotFound, op, "no %s in %s", ManifestFile, root)
	}

	var patterns []string
	if rootRaw != nil {
		p, err := rootRaw.workspacePatterns()
		if err != nil {
			return nil, rperrors.CodedWrap(err, rperrors.CodeManifestParse, op, "invalid workspaces field in %s", rootManifestPath)
		}
		patterns = p
	}
	if d.fs.Exists(pnpmPath) {
		content, err := d.fs.ReadString(pnpmPath)
		if err != nil {
			return nil, err
		}
		var pw pnpmWorkspace
		if err := yaml.Unmarshal([]byte(content), &pw); err != nil {
			return nil, rperrors.CodedWrap(err, rperrors.CodeManifestParse, op, "parse %s", pnpmPath)
		}
		patterns = append(patterns, pw.Packages...)
	}
	patterns = append(patterns, d.extra...)

	kind := d.detectKind(root, len(patterns) > 0)
	d.logger.Debug("detected workspace", "root", root, "kind", kind, "patterns", patterns)

	var rootPkg *workspace.Package
	if rootRaw != nil {
		switch {
		case kind == workspace.KindSingle:
			p, err := toPackage(op, rootRaw, ".", rootManifestPath)
			if err != nil {
				return nil, err
			}
			rootPkg = p
		case rootRaw.Name != "" && rootRaw.Version != "":
			p, err := toPackage(op, rootRaw, ".", rootManifestPath)
			if err != nil {
				return nil, err
			}
			rootPkg = p
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dirs, err := d.expand(root, patterns)
	if err != nil {
		return nil, err
	}

	packages := make([]*workspace.Package, len(dirs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)
	for i, dir := range dirs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			p, err := d.reader.Read(root, dir)
			if err != nil {
				return err
			}
			packages[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ws, err := workspace.New(root, kind, packages, rootPkg)
	if err != nil {
		return nil, err
	}
	d.logger.Info("discovered workspace", "kind", kind, "packages", len(ws.Packages()))
	return ws, nil
}

func (d *Discoverer) detectKind(root string, hasPatterns bool) workspace.Kind {
	if !hasPatterns {
		return workspace.KindSingle
	}
	exists := func(name string) bool { return d.fs.Exists(filepath.Join(root, name)) }
	switch {
	case exists("pnpm-workspace.yaml"), exists("pnpm-lock.yaml"):
		return workspace.KindPNPM
	case exists("bun.lockb"), exists("bun.lock"):
		return workspace.KindBun
	case exists("yarn.lock"):
		return workspace.KindYarn
	default:
		return workspace.KindNPM
	}
}

// expand returns the slash-separated directories relative to root that hold a
// manifest and match an include pattern but no "!" exclude pattern.
func (d *Discoverer) expand(root string, patterns []string) ([]string, error) {
	var include, exclude []string
	maxDepth := 0
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		negated := strings.HasPrefix(p, "!")
		p = strings.TrimPrefix(p, "!")
		p = strings.TrimSuffix(strings.TrimPrefix(p, "./"), "/")
		if p == "" || !doublestar.ValidatePattern(p) {
			d.logger.Warn("ignoring invalid workspace pattern", "pattern", p)
			continue
		}
		if negated {
			exclude = append(exclude, p)
			continue
		}
		include = append(include, p)
		if strings.Contains(p, "**") {
			maxDepth = -1
		} else if maxDepth >= 0 {
			if n := strings.Count(p, "/") + 1; n > maxDepth {
				maxDepth = n
			}
		}
	}
	if len(include) == 0 {
		return nil, nil
	}

	var found []string
	var walk func(rel string, depth int) error
	walk = func(rel string, depth int) error {
		if maxDepth >= 0 && depth > maxDepth {
			return nil
		}
		entries, err := d.fs.ReadDir(filepath.Join(root, filepath.FromSlash(rel)))
		if err != nil {
			return err
		}
		for _, e := range entries {
			if !e.IsDir || skipDirs[e.Name] {
				continue
			}
			child := path.Join(rel, e.Name)
			if rel == "." {
				child = e.Name
			}
			if matchAny(include, child) && !matchAny(exclude, child) &&
				d.fs.Exists(filepath.Join(root, filepath.FromSlash(child), ManifestFile)) {
				found = append(found, child)
			}
			if err := walk(child, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(".", 1); err != nil {
		return nil, err
	}
	sort.Strings(found)
	return found, nil
}

func matchAny(patterns []string, p string) bool {
	for _, pattern := range patterns {
		if ok, _ := doublestar.Match(pattern, p); ok {
			return true
		}
	}
	return false
}
