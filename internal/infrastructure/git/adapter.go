// Package git provides the go-git backed source control adapter.
package git

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/relicta-tech/monorel/internal/domain/sourcecontrol"
	rperrors "github.com/relicta-tech/monorel/internal/errors"
)

// Default timeouts for git operations to prevent hangs on slow/unreachable remotes.
const (
	// DefaultLocalTimeout is the timeout for local git operations (read-only).
	DefaultLocalTimeout = 30 * time.Second

	// DefaultRemoteTimeout is the timeout for remote git operations (network calls).
	DefaultRemoteTimeout = 60 * time.Second
)

// Ensure Repository implements the domain interface.
var _ sourcecontrol.GitRepository = (*Repository)(nil)

// withLocalTimeout applies a timeout for local git operations.
func withLocalTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	// Don't override if context already has a shorter deadline
	if deadline, ok := ctx.Deadline(); ok {
		if time.Until(deadline) < DefaultLocalTimeout {
			return ctx, func() {}
		}
	}
	return context.WithTimeout(ctx, DefaultLocalTimeout)
}

// withRemoteTimeout applies a timeout for remote git operations.
func withRemoteTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if deadline, ok := ctx.Deadline(); ok {
		if time.Until(deadline) < DefaultRemoteTimeout {
			return ctx, func() {}
		}
	}
	return context.WithTimeout(ctx, DefaultRemoteTimeout)
}

// Config configures the repository adapter.
type Config struct {
	// RepoPath is any path inside the repository.
	RepoPath string
	// DefaultRemote is used for remote tag listing.
	DefaultRemote string
}

// DefaultConfig returns the default adapter configuration.
func DefaultConfig() Config {
	return Config{
		RepoPath:      ".",
		DefaultRemote: "origin",
	}
}

// Option configures the adapter.
type Option func(*Config)

// WithRepoPath sets the repository path.
func WithRepoPath(path string) Option {
	return func(cfg *Config) {
		cfg.RepoPath = path
	}
}

// WithDefaultRemote sets the default remote.
func WithDefaultRemote(remote string) Option {
	return func(cfg *Config) {
		cfg.DefaultRemote = remote
	}
}

// Repository is the go-git implementation of sourcecontrol.GitRepository.
type Repository struct {
	cfg  Config
	repo *git.Repository
	root string
}

// Open opens the repository containing cfg.RepoPath.
func Open(opts ...Option) (*Repository, error) {
	const op = "git.Open"

	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	absPath, err := filepath.Abs(cfg.RepoPath)
	if err != nil {
		return nil, rperrors.GitWrap(err, op, "failed to get absolute path")
	}

	repo, err := git.PlainOpenWithOptions(absPath, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, rperrors.GitWrap(err, op, "failed to open repository")
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return nil, rperrors.GitWrap(err, op, "failed to get worktree")
	}

	return &Repository{
		cfg:  cfg,
		repo: repo,
		root: worktree.Filesystem.Root(),
	}, nil
}

// Root returns the absolute path of the working tree.
func (r *Repository) Root() string {
	return r.root
}

// CurrentBranch returns the current branch name.
func (r *Repository) CurrentBranch(_ context.Context) (string, error) {
	const op = "git.CurrentBranch"

	head, err := r.repo.Head()
	if err != nil {
		return "", rperrors.GitWrap(err, op, "failed to get HEAD")
	}

	if !head.Name().IsBranch() {
		return "", rperrors.Coded(rperrors.CodeGitUnavailable, op, "HEAD is not on a branch (detached HEAD)")
	}

	return head.Name().Short(), nil
}

// CurrentSHA returns the hash of HEAD.
func (r *Repository) CurrentSHA(_ context.Context) (sourcecontrol.CommitHash, error) {
	const op = "git.CurrentSHA"

	head, err := r.repo.Head()
	if err != nil {
		return "", rperrors.GitWrap(err, op, "failed to get HEAD")
	}
	return sourcecontrol.CommitHash(head.Hash().String()), nil
}

// ListStagedFiles returns the paths staged in the index.
func (r *Repository) ListStagedFiles(_ context.Context) ([]string, error) {
	const op = "git.ListStagedFiles"

	worktree, err := r.repo.Worktree()
	if err != nil {
		return nil, rperrors.GitWrap(err, op, "failed to get worktree")
	}
	status, err := worktree.Status()
	if err != nil {
		return nil, rperrors.GitWrap(err, op, "failed to get worktree status")
	}

	files := make([]string, 0, len(status))
	for path, st := range status {
		if st.Staging == git.Unmodified || st.Staging == git.Untracked {
			continue
		}
		files = append(files, filepath.ToSlash(path))
	}
	sort.Strings(files)
	return files, nil
}

// FilesChangedIn returns the files changed by a commit against its first parent.
func (r *Repository) FilesChangedIn(ctx context.Context, hash sourcecontrol.CommitHash) ([]string, error) {
	const op = "git.FilesChangedIn"

	ctx, cancel := withLocalTimeout(ctx)
	defer cancel()

	commit, err := r.repo.CommitObject(plumbing.NewHash(hash.String()))
	if err != nil {
		return nil, rperrors.GitWrap(err, op, fmt.Sprintf("failed to get commit %s", hash.Short()))
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, rperrors.GitWrap(err, op, "failed to get tree")
	}

	if commit.NumParents() == 0 {
		var files []string
		err := tree.Files().ForEach(func(f *object.File) error {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			files = append(files, f.Name)
			return nil
		})
		if err != nil {
			return nil, rperrors.GitWrap(err, op, "failed to list root commit files")
		}
		sort.Strings(files)
		return files, nil
	}

	parent, err := commit.Parent(0)
	if err != nil {
		return nil, rperrors.GitWrap(err, op, "failed to get parent commit")
	}
	parentTree, err := parent.Tree()
	if err != nil {
		return nil, rperrors.GitWrap(err, op, "failed to get parent tree")
	}
	return diffTrees(ctx, op, parentTree, tree)
}

// FilesChangedBetween returns the files that differ between two refs.
func (r *Repository) FilesChangedBetween(ctx context.Context, from, to string) ([]string, error) {
	const op = "git.FilesChangedBetween"

	ctx, cancel := withLocalTimeout(ctx)
	defer cancel()

	fromTree, err := r.treeAt(from)
	if err != nil {
		return nil, rperrors.GitWrap(err, op, fmt.Sprintf("failed to resolve from reference %s", from))
	}
	toTree, err := r.treeAt(to)
	if err != nil {
		return nil, rperrors.GitWrap(err, op, fmt.Sprintf("failed to resolve to reference %s", to))
	}
	return diffTrees(ctx, op, fromTree, toTree)
}

func (r *Repository) treeAt(ref string) (*object.Tree, error) {
	hash, err := r.resolveRef(ref)
	if err != nil {
		return nil, err
	}
	commit, err := r.repo.CommitObject(hash)
	if err != nil {
		return nil, err
	}
	return commit.Tree()
}

func diffTrees(ctx context.Context, op string, from, to *object.Tree) ([]string, error) {
	changes, err := object.DiffTreeWithOptions(ctx, from, to, object.DefaultDiffTreeOptions)
	if err != nil {
		return nil, rperrors.GitWrap(err, op, "failed to compute diff")
	}

	seen := make(map[string]bool, len(changes))
	files := make([]string, 0, len(changes))
	for _, change := range changes {
		for _, name := range []string{change.From.Name, change.To.Name} {
			if name != "" && !seen[name] {
				seen[name] = true
				files = append(files, name)
			}
		}
	}
	sort.Strings(files)
	return files, nil
}

// CommitsBetween returns commits reachable from to but not from from,
// newest first. An empty to means HEAD; an empty from walks to the root.
func (r *Repository) CommitsBetween(ctx context.Context, from, to string) ([]*sourcecontrol.Commit, error) {
	const op = "git.CommitsBetween"
	const estimatedCommitsPerRelease = 50

	ctx, cancel := withLocalTimeout(ctx)
	defer cancel()

	if to == "" {
		to = "HEAD"
	}
	toHash, err := r.resolveRef(to)
	if err != nil {
		return nil, rperrors.GitWrap(err, op, fmt.Sprintf("failed to resolve to reference %s", to))
	}

	exclude := make(map[plumbing.Hash]bool)
	if from != "" {
		fromHash, err := r.resolveRef(from)
		if err != nil {
			return nil, rperrors.GitWrap(err, op, fmt.Sprintf("failed to resolve from reference %s", from))
		}
		if err := r.walk(ctx, fromHash, func(c *object.Commit) error {
			exclude[c.Hash] = true
			return nil
		}); err != nil {
			return nil, rperrors.GitWrap(err, op, "failed to walk excluded history")
		}
	}

	commits := make([]*sourcecontrol.Commit, 0, estimatedCommitsPerRelease)
	err = r.walk(ctx, toHash, func(c *object.Commit) error {
		if exclude[c.Hash] {
			return nil
		}
		commits = append(commits, convertCommit(c))
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, rperrors.GitWrap(ctx.Err(), op, "operation canceled")
		}
		return nil, rperrors.GitWrap(err, op, "failed to iterate commits")
	}
	return commits, nil
}

func (r *Repository) walk(ctx context.Context, from plumbing.Hash, fn func(*object.Commit) error) error {
	iter, err := r.repo.Log(&git.LogOptions{
		From:  from,
		Order: git.LogOrderCommitterTime,
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	return iter.ForEach(func(c *object.Commit) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fn(c)
	})
}

// ListTags returns local tags, or the tags advertised by the default
// remote when local is false. Annotated tags resolve to their commit.
func (r *Repository) ListTags(ctx context.Context, local bool) (sourcecontrol.TagList, error) {
	const op = "git.ListTags"

	if !local {
		return r.listRemoteTags(ctx)
	}

	iter, err := r.repo.Tags()
	if err != nil {
		return nil, rperrors.GitWrap(err, op, "failed to get tags iterator")
	}
	defer iter.Close()

	var tags sourcecontrol.TagList
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		hash := ref.Hash()
		if tagObj, err := r.repo.TagObject(hash); err == nil {
			if commit, err := tagObj.Commit(); err == nil {
				hash = commit.Hash
			}
		}
		tags = append(tags, sourcecontrol.NewTag(ref.Name().Short(), sourcecontrol.CommitHash(hash.String())))
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, rperrors.GitWrap(ctx.Err(), op, "operation canceled")
		}
		return nil, rperrors.GitWrap(err, op, "failed to iterate tags")
	}

	tags.SortByName()
	return tags, nil
}

func (r *Repository) listRemoteTags(ctx context.Context) (sourcecontrol.TagList, error) {
	const op = "git.ListTags"

	ctx, cancel := withRemoteTimeout(ctx)
	defer cancel()

	remote, err := r.repo.Remote(r.cfg.DefaultRemote)
	if err != nil {
		return nil, rperrors.GitWrap(err, op, fmt.Sprintf("failed to get remote %s", r.cfg.DefaultRemote))
	}
	refs, err := remote.ListContext(ctx, &git.ListOptions{})
	if err != nil {
		return nil, rperrors.GitWrap(err, op, "failed to list remote references")
	}

	var tags sourcecontrol.TagList
	for _, ref := range refs {
		if !ref.Name().IsTag() || strings.HasSuffix(ref.Name().String(), "^{}") {
			continue
		}
		tags = append(tags, sourcecontrol.NewTag(ref.Name().Short(), sourcecontrol.CommitHash(ref.Hash().String())))
	}
	tags.SortByName()
	return tags, nil
}

// GetLastTagMatching returns the highest version tag whose name matches the
// doublestar pattern, or nil.
func (r *Repository) GetLastTagMatching(ctx context.Context, pattern string) (*sourcecontrol.Tag, error) {
	tags, err := r.ListTags(ctx, true)
	if err != nil {
		return nil, err
	}
	return tags.FilterByPattern(pattern).Latest(), nil
}

// RemoteURL returns the first URL of the named remote.
func (r *Repository) RemoteURL(_ context.Context, name string) (string, error) {
	const op = "git.RemoteURL"

	remote, err := r.repo.Remote(name)
	if err != nil {
		return "", rperrors.GitWrap(err, op, fmt.Sprintf("failed to get remote %s", name))
	}

	cfg := remote.Config()
	if len(cfg.URLs) == 0 {
		return "", rperrors.Coded(rperrors.CodeGitUnavailable, op, "remote %s has no URLs", name)
	}

	return cfg.URLs[0], nil
}

// resolveRef resolves a reference (tag, branch, or commit hash) to a hash.
func (r *Repository) resolveRef(ref string) (plumbing.Hash, error) {
	if plumbing.IsHash(ref) {
		return plumbing.NewHash(ref), nil
	}

	resolved, err := r.repo.ResolveRevision(plumbing.Revision(ref))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to resolve reference %s: %w", ref, err)
	}

	return *resolved, nil
}

// convertCommit converts a go-git commit to the domain type.
func convertCommit(c *object.Commit) *sourcecontrol.Commit {
	commit := sourcecontrol.NewCommit(
		sourcecontrol.CommitHash(c.Hash.String()),
		c.Message,
		sourcecontrol.Author{Name: c.Author.Name, Email: c.Author.Email},
		c.Author.When,
	)

	parents := make([]sourcecontrol.CommitHash, 0, len(c.ParentHashes))
	for _, p := range c.ParentHashes {
		parents = append(parents, sourcecontrol.CommitHash(p.String()))
	}
	commit.SetParents(parents)
	return commit
}
