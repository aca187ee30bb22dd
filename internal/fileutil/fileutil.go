// Package fileutil provides the filesystem façade used by monorel.
// Every write goes through a temp file, fsync and rename so readers never
// observe a partially written manifest, changeset or changelog.
package fileutil

import (
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/relicta-tech/monorel/internal/errors"
)

// MaxFileSize bounds every read through the façade.
const MaxFileSize = 10 * 1024 * 1024

// DirEntry is a single directory listing entry.
type DirEntry struct {
	Name  string
	IsDir bool
}

// FS is the filesystem façade. Errors are *errors.Error with KindNotFound
// for missing paths and KindIO for everything else.
type FS interface {
	ReadString(path string) (string, error)
	WriteStringAtomic(path, content string) error
	Exists(path string) bool
	ReadDir(path string) ([]DirEntry, error)
	CreateDirAll(path string) error
	Remove(path string) error
}

// OS is the FS backed by the host filesystem.
type OS struct {
	// Perm is the mode applied to written files. Zero means 0644.
	Perm os.FileMode
}

// NewOS returns the host filesystem façade.
func NewOS() *OS {
	return &OS{Perm: 0o644}
}

// ReadString reads a whole file as text.
func (o *OS) ReadString(path string) (string, error) {
	const op = "fileutil.ReadString"
	data, err := ReadFileLimited(path, MaxFileSize)
	if err != nil {
		return "", classify(err, op, path)
	}
	return string(data), nil
}

// WriteStringAtomic replaces path with content atomically.
func (o *OS) WriteStringAtomic(path, content string) error {
	const op = "fileutil.WriteStringAtomic"
	perm := o.Perm
	if perm == 0 {
		perm = 0o644
	}
	if err := AtomicWriteFile(path, []byte(content), perm); err != nil {
		return errors.CodedWrap(err, errors.CodeAtomicWriteFailed, op, "write %s", path).
			WithDetail("path", path)
	}
	return nil
}

// Exists reports whether path exists.
func (o *OS) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ReadDir lists a directory sorted by name.
func (o *OS) ReadDir(path string) ([]DirEntry, error) {
	const op = "fileutil.ReadDir"
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, classify(err, op, path)
	}
	out := make([]DirEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, DirEntry{Name: e.Name(), IsDir: e.IsDir()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// CreateDirAll creates path and any missing parents.
func (o *OS) CreateDirAll(path string) error {
	const op = "fileutil.CreateDirAll"
	if err := os.MkdirAll(path, 0o755); err != nil {
		return classify(err, op, path)
	}
	return nil
}

// Remove deletes a file.
func (o *OS) Remove(path string) error {
	const op = "fileutil.Remove"
	if err := os.Remove(path); err != nil {
		return classify(err, op, path)
	}
	return nil
}

func classify(err error, op, path string) *errors.Error {
	var e *errors.Error
	switch {
	case stderrors.Is(err, fs.ErrNotExist):
		e = errors.Wrap(err, errors.KindNotFound, op, fmt.Sprintf("%s not found", path))
	case stderrors.Is(err, fs.ErrPermission):
		e = errors.Wrap(err, errors.KindIO, op, fmt.Sprintf("permission denied: %s", path))
		e.WithDetail("permission", true)
	default:
		e = errors.IOWrap(err, op, path)
	}
	return e.WithDetail("path", path)
}

type tempFile interface {
	Name() string
	Chmod(os.FileMode) error
	Write([]byte) (int, error)
	Sync() error
	Close() error
}

type fsOps struct {
	createTemp func(dir, pattern string) (tempFile, error)
	rename     func(oldpath, newpath string) error
	remove     func(path string) error
}

func defaultFSOps() fsOps {
	return fsOps{
		createTemp: func(dir, pattern string) (tempFile, error) {
			return os.CreateTemp(dir, pattern)
		},
		rename: os.Rename,
		remove: os.Remove,
	}
}

// ReadFileLimited reads a file up to maxSize bytes.
// Returns an error if the file exceeds the maximum size.
func ReadFileLimited(path string, maxSize int64) ([]byte, error) {
	f, err := os.Open(path) // #nosec G304 -- caller is responsible for path validation
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.Size() > maxSize {
		return nil, fmt.Errorf("file size %d exceeds maximum allowed size %d", info.Size(), maxSize)
	}

	data, err := io.ReadAll(io.LimitReader(f, maxSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxSize {
		return nil, fmt.Errorf("file size exceeds maximum allowed size %d", maxSize)
	}
	return data, nil
}

// AtomicWriteFile writes data to a sibling temp file, syncs it and renames it
// over path. On failure the previous content of path is untouched.
func AtomicWriteFile(path string, data []byte, perm os.FileMode) error {
	return atomicWriteFile(path, data, perm, defaultFSOps())
}

func atomicWriteFile(path string, data []byte, perm os.FileMode, ops fsOps) error {
	dir := filepath.Dir(path)
	base := filepath.Base(path)

	tmpFile, err := ops.createTemp(dir, "."+base+".tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	defer func() {
		if tmpFile != nil {
			_ = tmpFile.Close()
			_ = ops.remove(tmpPath)
		}
	}()

	if err := tmpFile.Chmod(perm); err != nil {
		return fmt.Errorf("failed to set file permissions: %w", err)
	}
	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}
	tmpFile = nil

	if err := ops.rename(tmpPath, path); err != nil {
		_ = ops.remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
