package version

import (
	"regexp"
	"strings"

	rperrors "github.com/relicta-tech/monorel/internal/errors"
)

// MinSnapshotHashLength is the shortest commit hash accepted in a snapshot.
const MinSnapshotHashLength = 4

// DefaultSnapshotHashLength is the hash length used when none is configured.
const DefaultSnapshotHashLength = 7

// SnapshotStyle selects how a snapshot is rendered.
type SnapshotStyle string

const (
	// SnapshotLegacy renders "<base>-0.0-<sha>".
	SnapshotLegacy SnapshotStyle = "legacy"
	// SnapshotSimple renders "<base>-snapshot.<sha>".
	SnapshotSimple SnapshotStyle = "simple"
)

var hexRegex = regexp.MustCompile(`^[0-9a-f]+$`)

// SnapshotVersion is a pre-release build of a base version at a specific commit.
type SnapshotVersion struct {
	base  SemanticVersion
	sha   string
	style SnapshotStyle
}

// NewSnapshot builds a snapshot of base at commit sha, keeping the first
// length characters of the hash.
func NewSnapshot(base SemanticVersion, sha string, length int) (SnapshotVersion, error) {
	const op = "version.NewSnapshot"

	if length < MinSnapshotHashLength {
		return SnapshotVersion{}, rperrors.Coded(rperrors.CodeInvalidConfig, op,
			"snapshot hash length %d is below the minimum of %d", length, MinSnapshotHashLength)
	}
	sha = strings.ToLower(strings.TrimSpace(sha))
	if !hexRegex.MatchString(sha) {
		return SnapshotVersion{}, rperrors.Coded(rperrors.CodeInvalidVersion, op, "invalid commit hash %q", sha)
	}
	if len(sha) > length {
		sha = sha[:length]
	}
	return SnapshotVersion{base: base.WithoutMetadata(), sha: sha, style: SnapshotLegacy}, nil
}

// WithStyle returns the snapshot rendered in the given style.
func (s SnapshotVersion) WithStyle(style SnapshotStyle) SnapshotVersion {
	s.style = style
	return s
}

// Base returns the version the snapshot was built from.
func (s SnapshotVersion) Base() SemanticVersion {
	return s.base
}

// SHA returns the shortened commit hash.
func (s SnapshotVersion) SHA() string {
	return s.sha
}

// String renders the snapshot.
func (s SnapshotVersion) String() string {
	if s.style == SnapshotSimple {
		return s.base.String() + "-snapshot." + s.sha
	}
	return s.base.String() + "-0.0-" + s.sha
}

// ResolvedVersion is either a release or a snapshot.
type ResolvedVersion struct {
	release  SemanticVersion
	snapshot *SnapshotVersion
}

// Release wraps a release version.
func Release(v SemanticVersion) ResolvedVersion {
	return ResolvedVersion{release: v}
}

// Snapshot wraps a snapshot version.
func Snapshot(s SnapshotVersion) ResolvedVersion {
	return ResolvedVersion{release: s.base, snapshot: &s}
}

// IsSnapshot reports whether r is a snapshot.
func (r ResolvedVersion) IsSnapshot() bool {
	return r.snapshot != nil
}

// Base returns the release version, or the snapshot's base.
func (r ResolvedVersion) Base() SemanticVersion {
	return r.release
}

// String renders the version.
func (r ResolvedVersion) String() string {
	if r.snapshot != nil {
		return r.snapshot.String()
	}
	return r.release.String()
}

// Compare orders two resolved versions by base. A release and a snapshot of
// the same base are incomparable, reported by ok == false.
func (r ResolvedVersion) Compare(other ResolvedVersion) (cmp int, ok bool) {
	c := r.release.Compare(other.release)
	if c == 0 && r.IsSnapshot() != other.IsSnapshot() {
		return 0, false
	}
	return c, true
}
