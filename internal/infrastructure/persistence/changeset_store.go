package persistence

import (
	"context"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/relicta-tech/monorel/internal/domain/changeset"
	rperrors "github.com/relicta-tech/monorel/internal/errors"
	"github.com/relicta-tech/monorel/internal/fileutil"
)

// HistoryDir is the archive subdirectory of the changeset directory.
const HistoryDir = "history"

// historyStamp is the archive timestamp layout: fixed width, so names sort
// chronologically.
const historyStamp = "20060102T150405Z"

// checkContext returns the context error once it is done.
func checkContext(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return rperrors.Wrap(ctx.Err(), rperrors.KindCanceled, "persistence", "operation canceled")
	default:
		return nil
	}
}

// FileChangesetStore implements changeset.Repository on a directory with one
// file per branch.
type FileChangesetStore struct {
	dir       string
	fs        fileutil.FS
	codec     Codec
	rules     changeset.Rules
	now       func() time.Time
	lifecycle *changeset.Lifecycle
	logger    *slog.Logger
	mu        sync.RWMutex
}

// StoreOption configures a FileChangesetStore.
type StoreOption func(*FileChangesetStore)

// WithFormat sets the format new records are written in.
func WithFormat(f Format) StoreOption {
	return func(s *FileChangesetStore) {
		s.codec = CodecFor(f)
	}
}

// WithFS replaces the filesystem façade.
func WithFS(fs fileutil.FS) StoreOption {
	return func(s *FileChangesetStore) {
		s.fs = fs
	}
}

// WithRules sets the write-time validation rules.
func WithRules(r changeset.Rules) StoreOption {
	return func(s *FileChangesetStore) {
		s.rules = r
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) StoreOption {
	return func(s *FileChangesetStore) {
		s.now = now
	}
}

// WithStoreLogger sets the logger.
func WithStoreLogger(l *slog.Logger) StoreOption {
	return func(s *FileChangesetStore) {
		s.logger = l
	}
}

// NewFileChangesetStore creates a store rooted at dir. The directory is
// created on first write.
func NewFileChangesetStore(dir string, opts ...StoreOption) (*FileChangesetStore, error) {
	lc, err := changeset.NewLifecycle()
	if err != nil {
		return nil, err
	}
	s := &FileChangesetStore{
		dir:       dir,
		fs:        fileutil.NewOS(),
		codec:     jsonCodec{},
		now:       time.Now,
		lifecycle: lc,
		logger:    slog.Default().With("service", "changeset_store"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Dir returns the store directory.
func (s *FileChangesetStore) Dir() string {
	return s.dir
}

// Path returns the active record path for branch in the configured format.
func (s *FileChangesetStore) Path(branch string) string {
	return filepath.Join(s.dir, changeset.SafeName(branch)+"."+s.codec.Format().Extension())
}

// find returns the existing active file for branch in any format.
func (s *FileChangesetStore) find(branch string) (string, Format, bool) {
	safe := changeset.SafeName(branch)
	for _, f := range append([]Format{s.codec.Format()}, Formats...) {
		p := filepath.Join(s.dir, safe+"."+f.Extension())
		if s.fs.Exists(p) {
			return p, f, true
		}
	}
	return "", "", false
}

// resolve finds and reads the active record of branch. Branches whose safe
// names coincide share a file; the record only belongs to the branch it names.
func (s *FileChangesetStore) resolve(op, branch string) (string, Format, *changeset.Changeset, error) {
	p, f, ok := s.find(branch)
	if !ok {
		return "", "", nil, rperrors.Coded(rperrors.CodeChangesetNotFound, op, "no changeset for %q", branch).
			WithDetail("branch", branch)
	}
	c, err := s.read(p, CodecFor(f))
	if err != nil {
		return "", "", nil, err
	}
	if err := checkOwner(op, p, branch, c); err != nil {
		return "", "", nil, err
	}
	return p, f, c, nil
}

func checkOwner(op, path, branch string, c *changeset.Changeset) error {
	if c.Branch == "" || c.Branch == branch {
		return nil
	}
	return rperrors.Coded(rperrors.CodeChangesetExists, op,
		"%s holds the changeset of %q, whose file name collides with %q", path, c.Branch, branch).
		WithDetail("path", path).
		WithDetail("branch", c.Branch)
}

// Create writes a new draft changeset for branch.
func (s *FileChangesetStore) Create(ctx context.Context, branch, author string, envs []string) (*changeset.Changeset, error) {
	const op = "persistence.Create"
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	if err := changeset.ValidateBranch(branch, s.rules.ReleaseBranches); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if p, f, ok := s.find(branch); ok {
		if existing, err := s.read(p, CodecFor(f)); err == nil {
			if err := checkOwner(op, p, branch, existing); err != nil {
				return nil, err
			}
		}
		return nil, rperrors.Coded(rperrors.CodeChangesetExists, op,
			"a changeset for %q already exists", branch).WithDetail("path", p)
	}

	c := changeset.New(branch, author, envs, s.now())
	if err := s.rules.Validate(c); err != nil {
		return nil, err
	}
	if err := s.write(s.Path(branch), s.codec, c); err != nil {
		return nil, err
	}
	s.logger.Info("changeset created", "branch", branch, "path", s.Path(branch))
	return c, nil
}

// Load reads the active changeset of branch.
func (s *FileChangesetStore) Load(ctx context.Context, branch string) (*changeset.Changeset, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.load(branch)
}

func (s *FileChangesetStore) load(branch string) (*changeset.Changeset, error) {
	_, _, c, err := s.resolve("persistence.Load", branch)
	return c, err
}

// Update rewrites an existing changeset and advances its updated_at.
func (s *FileChangesetStore) Update(ctx context.Context, c *changeset.Changeset) error {
	const op = "persistence.Update"
	if err := checkContext(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if c.IsArchived() {
		if _, err := s.lifecycle.Next(changeset.StatusArchived, changeset.EventFor(c)); err != nil {
			return err
		}
	}
	prev, err := s.load(c.Branch)
	if err != nil {
		return err
	}
	if _, err := s.lifecycle.Next(prev.Status(), changeset.EventFor(c)); err != nil {
		return err
	}

	c.CreatedAt = prev.CreatedAt
	if c.UpdatedAt.Before(prev.UpdatedAt) {
		c.UpdatedAt = prev.UpdatedAt
	}
	c.Touch(s.now())
	if err := s.rules.Validate(c); err != nil {
		return err
	}

	path, f, _ := s.find(c.Branch)
	if err := s.write(path, CodecFor(f), c); err != nil {
		return rperrors.CodedWrap(err, rperrors.CodeAtomicWriteFailed, op, "update changeset %q", c.Branch)
	}
	s.logger.Debug("changeset updated", "branch", c.Branch, "status", c.Status())
	return nil
}

// Delete removes the active changeset of branch.
func (s *FileChangesetStore) Delete(ctx context.Context, branch string) error {
	const op = "persistence.Delete"
	if err := checkContext(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, _, _, err := s.resolve(op, branch)
	if err != nil {
		return err
	}
	if err := s.fs.Remove(p); err != nil {
		return err
	}
	s.logger.Info("changeset deleted", "branch", branch)
	return nil
}

// Archive moves the changeset of branch to history and returns its new path.
// The archive is written before the original is removed, so a failure never
// loses the record.
func (s *FileChangesetStore) Archive(ctx context.Context, branch string) (string, error) {
	const op = "persistence.Archive"
	if err := checkContext(ctx); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	src, f, c, err := s.resolve(op, branch)
	if err != nil {
		return "", err
	}
	if _, err := s.lifecycle.Next(c.Status(), changeset.EventArchive); err != nil {
		return "", err
	}

	histDir := filepath.Join(s.dir, HistoryDir)
	if err := s.fs.CreateDirAll(histDir); err != nil {
		return "", err
	}
	stamp, err := s.nextStamp(histDir, changeset.SafeName(branch))
	if err != nil {
		return "", err
	}
	dst := filepath.Join(histDir, changeset.SafeName(branch)+"-"+stamp+"."+f.Extension())

	data, err := s.fs.ReadString(src)
	if err != nil {
		return "", err
	}
	if err := s.fs.WriteStringAtomic(dst, data); err != nil {
		return "", err
	}
	if err := s.fs.Remove(src); err != nil {
		return "", err
	}
	s.logger.Info("changeset archived", "branch", branch, "path", dst)
	return dst, nil
}

// nextStamp returns a timestamp later than every existing archive of safe.
func (s *FileChangesetStore) nextStamp(histDir, safe string) (string, error) {
	now := s.now().UTC().Truncate(time.Second)
	entries, err := s.fs.ReadDir(histDir)
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		if e.IsDir || !strings.HasPrefix(e.Name, safe+"-") {
			continue
		}
		rest := strings.TrimPrefix(e.Name, safe+"-")
		if len(rest) < len(historyStamp) {
			continue
		}
		t, err := time.Parse(historyStamp, rest[:len(historyStamp)])
		if err != nil {
			continue
		}
		if !now.After(t) {
			now = t.Add(time.Second)
		}
	}
	return now.Format(historyStamp), nil
}

// List returns the records matching f, sorted by branch. Archived records
// are read from history only when f.Status is archived.
func (s *FileChangesetStore) List(ctx context.Context, f changeset.Filter) ([]*changeset.Changeset, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	dir := s.dir
	if f.Status == changeset.StatusArchived {
		dir = filepath.Join(s.dir, HistoryDir)
	}
	if !s.fs.Exists(dir) {
		return nil, nil
	}
	entries, err := s.fs.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var out []*changeset.Changeset
	for _, e := range entries {
		if err := checkContext(ctx); err != nil {
			return nil, err
		}
		format, ok := formatOf(e.Name)
		if e.IsDir || !ok {
			continue
		}
		c, err := s.read(filepath.Join(dir, e.Name), CodecFor(format))
		if err != nil {
			s.logger.Warn("skipping unreadable changeset", "file", e.Name, "error", err)
			continue
		}
		if f.Status == changeset.StatusArchived {
			c.MarkArchived()
		}
		if f.Matches(c) {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Branch < out[j].Branch })
	return out, nil
}

// Exists reports whether branch has an active changeset. A file holding the
// record of another branch with the same safe name is an error.
func (s *FileChangesetStore) Exists(ctx context.Context, branch string) (bool, error) {
	if err := checkContext(ctx); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, _, _, err := s.resolve("persistence.Exists", branch)
	switch {
	case err == nil:
		return true, nil
	case rperrors.GetCode(err) == rperrors.CodeChangesetNotFound:
		return false, nil
	default:
		return false, err
	}
}

func formatOf(name string) (Format, bool) {
	ext := strings.TrimPrefix(filepath.Ext(name), ".")
	if ext == "yml" {
		return FormatYAML, true
	}
	for _, f := range Formats {
		if ext == f.Extension() {
			return f, true
		}
	}
	return "", false
}

func (s *FileChangesetStore) read(path string, codec Codec) (*changeset.Changeset, error) {
	const op = "persistence.read"
	data, err := s.fs.ReadString(path)
	if err != nil {
		if rperrors.IsKind(err, rperrors.KindNotFound) {
			return nil, rperrors.CodedWrap(err, rperrors.CodeChangesetNotFound, op, "changeset %s is gone", path)
		}
		return nil, err
	}
	c := &changeset.Changeset{}
	if err := codec.Unmarshal([]byte(data), c); err != nil {
		return nil, rperrors.Wrapf(err, rperrors.KindParse, op, "decode %s", path)
	}
	fillEmpty(c)
	return c, nil
}

// write serializes c to a buffer and replaces path atomically.
func (s *FileChangesetStore) write(path string, codec Codec, c *changeset.Changeset) error {
	const op = "persistence.write"
	data, err := codec.Marshal(c)
	if err != nil {
		return rperrors.Wrapf(err, rperrors.KindInternal, op, "encode changeset %q", c.Branch)
	}
	if err := s.fs.CreateDirAll(filepath.Dir(path)); err != nil {
		return err
	}
	return s.fs.WriteStringAtomic(path, string(data))
}

// fillEmpty replaces nil slices so every codec writes [] rather than null.
func fillEmpty(c *changeset.Changeset) {
	if c.TargetEnvironments == nil {
		c.TargetEnvironments = []string{}
	}
	if c.Packages == nil {
		c.Packages = []changeset.Package{}
	}
	if c.Commits == nil {
		c.Commits = []string{}
	}
	for i := range c.Packages {
		if c.Packages[i].Changes == nil {
			c.Packages[i].Changes = []changeset.Change{}
		}
	}
}
