// Package version provides domain types for semantic versioning, snapshot
// versions and dependency version requirements.
package version

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	rperrors "github.com/relicta-tech/monorel/internal/errors"
)

// SemanticVersion is a value object representing a semantic version.
// Immutable by design - all operations return new instances.
type SemanticVersion struct {
	major      uint64
	minor      uint64
	patch      uint64
	prerelease Prerelease
	metadata   BuildMetadata
}

// Prerelease represents the prerelease portion of a semantic version.
type Prerelease string

// BuildMetadata represents the build metadata portion of a semantic version.
type BuildMetadata string

var (
	semverRegex = regexp.MustCompile(`^v?(0|[1-9]\d*)\.(0|[1-9]\d*)\.(0|[1-9]\d*)(?:-([0-9A-Za-z-]+(?:\.[0-9A-Za-z-]+)*))?(?:\+([0-9A-Za-z-]+(?:\.[0-9A-Za-z-]+)*))?$`)

	// Zero is the zero version (0.0.0).
	Zero = SemanticVersion{}
)

// NewSemanticVersion creates a new SemanticVersion value object.
func NewSemanticVersion(major, minor, patch uint64) SemanticVersion {
	return SemanticVersion{
		major: major,
		minor: minor,
		patch: patch,
	}
}

// Parse parses a version string. A leading "v" is accepted; prerelease and
// build metadata are kept.
func Parse(s string) (SemanticVersion, error) {
	const op = "version.Parse"

	matches := semverRegex.FindStringSubmatch(strings.TrimSpace(s))
	if matches == nil {
		return Zero, rperrors.Coded(rperrors.CodeInvalidVersion, op, "invalid semantic version %q", s)
	}

	var parts [3]uint64
	for i := range parts {
		n, err := strconv.ParseUint(matches[i+1], 10, 64)
		if err != nil {
			return Zero, rperrors.CodedWrap(err, rperrors.CodeInvalidVersion, op, "invalid semantic version %q", s)
		}
		parts[i] = n
	}

	return SemanticVersion{
		major:      parts[0],
		minor:      parts[1],
		patch:      parts[2],
		prerelease: Prerelease(matches[4]),
		metadata:   BuildMetadata(matches[5]),
	}, nil
}

// MustParse parses a semantic version string and panics if invalid.
// Use only for known-good version strings.
func MustParse(s string) SemanticVersion {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// Major returns the major version component.
func (v SemanticVersion) Major() uint64 {
	return v.major
}

// Minor returns the minor version component.
func (v SemanticVersion) Minor() uint64 {
	return v.minor
}

// Patch returns the patch version component.
func (v SemanticVersion) Patch() uint64 {
	return v.patch
}

// Prerelease returns the prerelease identifier.
func (v SemanticVersion) Prerelease() Prerelease {
	return v.prerelease
}

// Metadata returns the build metadata.
func (v SemanticVersion) Metadata() BuildMetadata {
	return v.metadata
}

// IsPrerelease returns true if this is a prerelease version.
func (v SemanticVersion) IsPrerelease() bool {
	return v.prerelease != ""
}

// String returns the string representation of the version (without 'v' prefix).
func (v SemanticVersion) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d.%d.%d", v.major, v.minor, v.patch)
	if v.prerelease != "" {
		sb.WriteString("-")
		sb.WriteString(string(v.prerelease))
	}
	if v.metadata != "" {
		sb.WriteString("+")
		sb.WriteString(string(v.metadata))
	}
	return sb.String()
}

// WithPrerelease returns a new version with the specified prerelease identifier.
func (v SemanticVersion) WithPrerelease(pre Prerelease) SemanticVersion {
	v.prerelease = pre
	return v
}

// WithoutMetadata returns a new version without the build metadata.
func (v SemanticVersion) WithoutMetadata() SemanticVersion {
	v.metadata = ""
	return v
}

// BumpMajor returns the next major version with prerelease and metadata cleared.
func (v SemanticVersion) BumpMajor() SemanticVersion {
	return SemanticVersion{major: v.major + 1}
}

// BumpMinor returns the next minor version with prerelease and metadata cleared.
func (v SemanticVersion) BumpMinor() SemanticVersion {
	return SemanticVersion{major: v.major, minor: v.minor + 1}
}

// BumpPatch returns the next patch version with prerelease and metadata cleared.
func (v SemanticVersion) BumpPatch() SemanticVersion {
	return SemanticVersion{major: v.major, minor: v.minor, patch: v.patch + 1}
}

// Compare orders versions by semver 2.0.0 precedence.
// Returns -1 if v < other, 0 if v == other, 1 if v > other.
// Build metadata is ignored.
func (v SemanticVersion) Compare(other SemanticVersion) int {
	if c := cmpUint(v.major, other.major); c != 0 {
		return c
	}
	if c := cmpUint(v.minor, other.minor); c != 0 {
		return c
	}
	if c := cmpUint(v.patch, other.patch); c != 0 {
		return c
	}
	return comparePrerelease(string(v.prerelease), string(other.prerelease))
}

func cmpUint(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// comparePrerelease compares dot-separated identifiers. Numeric identifiers
// compare numerically and sort below alphanumeric ones; a release sorts above
// any prerelease.
func comparePrerelease(a, b string) int {
	switch {
	case a == b:
		return 0
	case a == "":
		return 1
	case b == "":
		return -1
	}

	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	for i := 0; i < len(as) && i < len(bs); i++ {
		if c := compareIdentifier(as[i], bs[i]); c != 0 {
			return c
		}
	}
	return cmpUint(uint64(len(as)), uint64(len(bs)))
}

func compareIdentifier(a, b string) int {
	an, aErr := strconv.ParseUint(a, 10, 64)
	bn, bErr := strconv.ParseUint(b, 10, 64)
	aNum, bNum := aErr == nil, bErr == nil
	switch {
	case aNum && bNum:
		return cmpUint(an, bn)
	case aNum:
		return -1
	case bNum:
		return 1
	}
	return strings.Compare(a, b)
}

// LessThan returns true if v < other.
func (v SemanticVersion) LessThan(other SemanticVersion) bool {
	return v.Compare(other) < 0
}

// GreaterThan returns true if v > other.
func (v SemanticVersion) GreaterThan(other SemanticVersion) bool {
	return v.Compare(other) > 0
}

// Equal returns true if two versions have equal precedence.
func (v SemanticVersion) Equal(other SemanticVersion) bool {
	return v.Compare(other) == 0
}

// MarshalText implements encoding.TextMarshaler.
func (v SemanticVersion) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *SemanticVersion) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
