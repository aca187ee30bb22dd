package sourcecontrol

import (
	"context"
)

// BranchReader reads the checked-out position.
type BranchReader interface {
	// CurrentBranch returns the short branch name. A detached HEAD is an error.
	CurrentBranch(ctx context.Context) (string, error)
	// CurrentSHA returns the full hash of HEAD.
	CurrentSHA(ctx context.Context) (CommitHash, error)
}

// FileReader lists changed files as repo-relative slash paths.
type FileReader interface {
	// ListStagedFiles returns files staged in the index.
	ListStagedFiles(ctx context.Context) ([]string, error)
	// FilesChangedIn returns files changed by a single commit against its
	// first parent, or every file of a root commit.
	FilesChangedIn(ctx context.Context, hash CommitHash) ([]string, error)
	// FilesChangedBetween returns files that differ between two refs.
	FilesChangedBetween(ctx context.Context, from, to string) ([]string, error)
}

// CommitReader provides read access to commits.
type CommitReader interface {
	// CommitsBetween returns commits reachable from to (HEAD when empty) and
	// not reachable from from, newest first. An empty from walks to the root.
	CommitsBetween(ctx context.Context, from, to string) ([]*Commit, error)
}

// TagReader provides read access to tags.
type TagReader interface {
	// ListTags returns tags sorted by name. With local false the tags of
	// the default remote are listed instead.
	ListTags(ctx context.Context, local bool) (TagList, error)
	// GetLastTagMatching returns the highest version tag whose name matches
	// pattern, or nil when none does.
	GetLastTagMatching(ctx context.Context, pattern string) (*Tag, error)
}

// RemoteReader resolves remote URLs.
type RemoteReader interface {
	RemoteURL(ctx context.Context, name string) (string, error)
}

// GitRepository is the read-only git façade the release engine consumes.
// Every error it returns is a recoverable GitUnavailable.
// Implemented in the infrastructure layer.
type GitRepository interface {
	BranchReader
	FileReader
	CommitReader
	TagReader
	RemoteReader
}
