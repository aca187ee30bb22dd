package version

import (
	"fmt"
	"strings"

	rperrors "github.com/relicta-tech/monorel/internal/errors"
)

// BumpKind is the magnitude of a version bump. Values are ordered so the
// larger of two bumps is their maximum.
type BumpKind uint8

const (
	// BumpNone leaves the version unchanged.
	BumpNone BumpKind = iota
	// BumpPatch increments the patch component.
	BumpPatch
	// BumpMinor increments the minor component.
	BumpMinor
	// BumpMajor increments the major component.
	BumpMajor
)

// String returns the lowercase name of the bump.
func (b BumpKind) String() string {
	switch b {
	case BumpPatch:
		return "patch"
	case BumpMinor:
		return "minor"
	case BumpMajor:
		return "major"
	default:
		return "none"
	}
}

// IsValid reports whether b is one of the defined bumps.
func (b BumpKind) IsValid() bool {
	return b <= BumpMajor
}

// ParseBumpKind parses "none", "patch", "minor" or "major".
func ParseBumpKind(s string) (BumpKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "":
		return BumpNone, nil
	case "patch":
		return BumpPatch, nil
	case "minor":
		return BumpMinor, nil
	case "major":
		return BumpMajor, nil
	}
	return BumpNone, rperrors.Coded(rperrors.CodeInvalidConfig, "version.ParseBumpKind",
		"invalid bump %q (must be none, patch, minor or major)", s)
}

// MaxBump returns the largest of the given bumps, BumpNone for no input.
func MaxBump(kinds ...BumpKind) BumpKind {
	out := BumpNone
	for _, k := range kinds {
		if k > out {
			out = k
		}
	}
	return out
}

// Apply returns v bumped by b. BumpNone returns v unchanged.
func (b BumpKind) Apply(v SemanticVersion) SemanticVersion {
	switch b {
	case BumpMajor:
		return v.BumpMajor()
	case BumpMinor:
		return v.BumpMinor()
	case BumpPatch:
		return v.BumpPatch()
	default:
		return v
	}
}

// Between returns the bump that best describes the move from "from" to "to".
// It returns BumpNone when to does not increase the version.
func Between(from, to SemanticVersion) BumpKind {
	if !to.GreaterThan(from) {
		return BumpNone
	}
	switch {
	case to.major != from.major:
		return BumpMajor
	case to.minor != from.minor:
		return BumpMinor
	default:
		return BumpPatch
	}
}

// MarshalText implements encoding.TextMarshaler.
func (b BumpKind) MarshalText() ([]byte, error) {
	if !b.IsValid() {
		return nil, fmt.Errorf("invalid bump kind %d", uint8(b))
	}
	return []byte(b.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *BumpKind) UnmarshalText(text []byte) error {
	k, err := ParseBumpKind(string(text))
	if err != nil {
		return err
	}
	*b = k
	return nil
}
