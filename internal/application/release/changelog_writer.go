package release

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/relicta-tech/monorel/internal/domain/changelog"
	"github.com/relicta-tech/monorel/internal/domain/changes"
	"github.com/relicta-tech/monorel/internal/domain/workspace"
	rperrors "github.com/relicta-tech/monorel/internal/errors"
	"github.com/relicta-tech/monorel/internal/fileutil"
)

// DefaultChangelogFile is the changelog file name inside a package.
const DefaultChangelogFile = "CHANGELOG.md"

// ChangelogResult describes one changelog write.
type ChangelogResult struct {
	Package string
	Path    string
	Block   string
	Changed bool
}

// ChangelogWriter renders release blocks and merges them into the
// changelog file of each package.
type ChangelogWriter struct {
	fs       fileutil.FS
	renderer *changelog.Renderer
	file     string
	logger   *slog.Logger
}

// ChangelogWriterOption configures a ChangelogWriter.
type ChangelogWriterOption func(*ChangelogWriter)

// WithChangelogFile sets the file name written inside each package.
func WithChangelogFile(name string) ChangelogWriterOption {
	return func(w *ChangelogWriter) {
		if name != "" {
			w.file = name
		}
	}
}

// NewChangelogWriter creates a writer.
func NewChangelogWriter(fsys fileutil.FS, renderer *changelog.Renderer, opts ...ChangelogWriterOption) *ChangelogWriter {
	w := &ChangelogWriter{
		fs:       fsys,
		renderer: renderer,
		file:     DefaultChangelogFile,
		logger:   slog.Default().With("service", "changelog"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Path returns the changelog path of pkg under root.
func (w *ChangelogWriter) Path(root string, pkg *workspace.Package) string {
	return filepath.Join(root, filepath.FromSlash(pkg.Path), w.file)
}

// Write renders the block for pkg at ver and merges it into the package
// changelog. A block with no visible commits leaves the file alone. With
// dryRun nothing is written.
func (w *ChangelogWriter) Write(ctx context.Context, root string, pkg *workspace.Package, ver string, date time.Time, commits []*changes.ConventionalCommit, dryRun bool) (ChangelogResult, error) {
	const op = "release.WriteChangelog"

	res := ChangelogResult{Package: pkg.Name, Path: w.Path(root, pkg)}
	if err := checkContext(ctx, op); err != nil {
		return res, err
	}

	res.Block = w.renderer.Render(w.renderer.Build(pkg.Name, ver, date, commits))
	if res.Block == "" {
		w.logger.Debug("no visible changes, changelog untouched", "package", pkg.Name)
		return res, nil
	}

	existing, err := w.fs.ReadString(res.Path)
	exists := err == nil
	if err != nil && !rperrors.IsKind(err, rperrors.KindNotFound) {
		return res, rperrors.CodedWrap(err, rperrors.CodeChangelogWriteFailed, op, "read %s", res.Path).
			WithDetail("path", res.Path)
	}

	merged, changed := changelog.Merge(existing, exists, res.Block)
	res.Changed = changed
	if !changed || dryRun {
		return res, nil
	}
	if err := w.fs.WriteStringAtomic(res.Path, merged); err != nil {
		return res, rperrors.CodedWrap(err, rperrors.CodeChangelogWriteFailed, op, "write %s", res.Path).
			WithDetail("path", res.Path)
	}
	w.logger.Info("changelog updated", "package", pkg.Name, "version", ver, "path", res.Path)
	return res, nil
}
