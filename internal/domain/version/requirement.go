package version

import (
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"

	rperrors "github.com/relicta-tech/monorel/internal/errors"
)

// RequirementKind classifies how a dependency requirement is expressed.
type RequirementKind uint8

const (
	// RequirementRange is a semver range: caret, tilde, x-range, exact or compound.
	RequirementRange RequirementKind = iota
	// RequirementWorkspace is the workspace: protocol.
	RequirementWorkspace
	// RequirementFile is a file: or link: path.
	RequirementFile
	// RequirementGit is a git URL, optionally with a #ref.
	RequirementGit
	// RequirementGitHub is github:user/repo#ref or the user/repo shorthand.
	RequirementGitHub
	// RequirementURL is a tarball URL.
	RequirementURL
	// RequirementAlias is npm:name@range.
	RequirementAlias
	// RequirementJSR is jsr:@scope/name@range.
	RequirementJSR
	// RequirementTag is a registry dist-tag such as "latest".
	RequirementTag
)

// String returns the kind name.
func (k RequirementKind) String() string {
	switch k {
	case RequirementWorkspace:
		return "workspace"
	case RequirementFile:
		return "file"
	case RequirementGit:
		return "git"
	case RequirementGitHub:
		return "github"
	case RequirementURL:
		return "url"
	case RequirementAlias:
		return "npm"
	case RequirementJSR:
		return "jsr"
	case RequirementTag:
		return "tag"
	default:
		return "range"
	}
}

var (
	distTagRegex    = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9._-]*$`)
	simpleRangeRe   = regexp.MustCompile(`^(\^|~|>=|=)?\s*v?\d+(\.\d+){0,2}(-[0-9A-Za-z.-]+)?(\+[0-9A-Za-z.-]+)?$`)
	githubShorthand = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*/[A-Za-z0-9_.-]+(#.*)?$`)
)

// Requirement is a parsed dependency version requirement as written in a
// manifest. The zero value is the "*" range.
type Requirement struct {
	raw   string
	kind  RequirementKind
	rng   string // range expression for range, workspace, alias and jsr kinds
	alias string // aliased package for alias and jsr kinds
	c     *semver.Constraints
}

// ParseRequirement parses a requirement string.
func ParseRequirement(s string) (Requirement, error) {
	const op = "version.ParseRequirement"

	raw := strings.TrimSpace(s)
	r := Requirement{raw: raw}

	switch {
	case strings.HasPrefix(raw, "workspace:"):
		r.kind = RequirementWorkspace
		r.rng = strings.TrimPrefix(raw, "workspace:")
		return r, nil
	case strings.HasPrefix(raw, "file:"), strings.HasPrefix(raw, "link:"):
		r.kind = RequirementFile
		return r, nil
	case strings.HasPrefix(raw, "git+"), strings.HasPrefix(raw, "git://"), strings.HasPrefix(raw, "git@"):
		r.kind = RequirementGit
		return r, nil
	case strings.HasPrefix(raw, "github:"):
		r.kind = RequirementGitHub
		return r, nil
	case strings.HasPrefix(raw, "http://"), strings.HasPrefix(raw, "https://"):
		r.kind = RequirementURL
		return r, nil
	case strings.HasPrefix(raw, "npm:"), strings.HasPrefix(raw, "jsr:"):
		r.kind = RequirementAlias
		if strings.HasPrefix(raw, "jsr:") {
			r.kind = RequirementJSR
		}
		name, rng := splitAlias(raw[4:])
		r.alias = name
		r.rng = rng
		if rng == "" {
			return r, nil
		}
		c, err := semver.NewConstraint(rng)
		if err != nil {
			return Requirement{}, rperrors.CodedWrap(err, rperrors.CodeInvalidVersion, op, "invalid requirement %q", s)
		}
		r.c = c
		return r, nil
	case githubShorthand.MatchString(raw):
		r.kind = RequirementGitHub
		return r, nil
	}

	r.kind = RequirementRange
	r.rng = raw
	if r.rng == "" {
		r.rng = "*"
	}
	c, err := semver.NewConstraint(r.rng)
	if err != nil {
		if distTagRegex.MatchString(raw) {
			r.kind = RequirementTag
			r.rng = ""
			return r, nil
		}
		return Requirement{}, rperrors.CodedWrap(err, rperrors.CodeInvalidVersion, op, "invalid requirement %q", s)
	}
	r.c = c
	return r, nil
}

// MustParseRequirement parses a requirement and panics if invalid.
func MustParseRequirement(s string) Requirement {
	r, err := ParseRequirement(s)
	if err != nil {
		panic(err)
	}
	return r
}

// splitAlias splits "name@range" where name may be scoped ("@scope/name").
func splitAlias(s string) (name, rng string) {
	at := strings.LastIndex(s, "@")
	if at <= 0 {
		return s, ""
	}
	return s[:at], s[at+1:]
}

// Kind returns how the requirement is expressed.
func (r Requirement) Kind() RequirementKind {
	return r.kind
}

// String returns the requirement as written.
func (r Requirement) String() string {
	if r.raw == "" && r.kind == RequirementRange {
		return "*"
	}
	return r.raw
}

// Range returns the semver range expression, if the requirement has one.
func (r Requirement) Range() string {
	return r.rng
}

// AliasTarget returns the aliased package for npm: and jsr: requirements.
func (r Requirement) AliasTarget() string {
	return r.alias
}

// IsProtocol reports whether the requirement points at a source rather than a
// version range. Protocol requirements never conflict.
func (r Requirement) IsProtocol() bool {
	switch r.kind {
	case RequirementWorkspace, RequirementFile, RequirementGit, RequirementGitHub, RequirementURL, RequirementTag:
		return true
	}
	return false
}

// SatisfiedBy reports whether v satisfies the requirement. Protocol
// requirements accept any version.
func (r Requirement) SatisfiedBy(v SemanticVersion) bool {
	if r.IsProtocol() {
		return true
	}
	if r.c == nil {
		return true
	}
	return r.c.Check(toSemver(v))
}

// MaxSatisfying returns the greatest candidate satisfying r.
func (r Requirement) MaxSatisfying(candidates []SemanticVersion) (SemanticVersion, error) {
	var best SemanticVersion
	found := false
	for _, c := range candidates {
		if !r.SatisfiedBy(c) {
			continue
		}
		if !found || c.GreaterThan(best) {
			best = c
			found = true
		}
	}
	if !found {
		return Zero, rperrors.Coded(rperrors.CodeUnsatisfiableRequirement, "version.MaxSatisfying",
			"no candidate satisfies %q", r.String())
	}
	return best, nil
}

// Rewrite returns the requirement that a dependent should declare once its
// dependency moves to v. The operator of a single-comparator range is kept;
// wildcards, dist-tags and source protocols are returned unchanged;
// workspace:*, workspace:^ and workspace:~ are unchanged; any other compound
// range becomes ^v.
func (r Requirement) Rewrite(v SemanticVersion) Requirement {
	switch r.kind {
	case RequirementFile, RequirementGit, RequirementGitHub, RequirementURL, RequirementTag:
		return r
	case RequirementWorkspace:
		switch r.rng {
		case "*", "^", "~", "":
			return r
		}
		return mustRebuild("workspace:" + rewriteRange(r.rng, v))
	case RequirementAlias, RequirementJSR:
		prefix := "npm:"
		if r.kind == RequirementJSR {
			prefix = "jsr:"
		}
		if r.rng == "" {
			return r
		}
		return mustRebuild(prefix + r.alias + "@" + rewriteRange(r.rng, v))
	}

	switch r.rng {
	case "", "*", "x", "X":
		return r
	}
	return mustRebuild(rewriteRange(r.rng, v))
}

func rewriteRange(rng string, v SemanticVersion) string {
	rng = strings.TrimSpace(rng)
	if simpleRangeRe.MatchString(rng) {
		for _, op := range []string{">=", "^", "~", "="} {
			if strings.HasPrefix(rng, op) {
				return op + v.String()
			}
		}
		return v.String()
	}
	return "^" + v.String()
}

func mustRebuild(s string) Requirement {
	r, err := ParseRequirement(s)
	if err != nil {
		// The rewritten forms are generated from a valid version and a known
		// operator, so they always parse.
		panic(err)
	}
	return r
}

func toSemver(v SemanticVersion) *semver.Version {
	return semver.New(v.major, v.minor, v.patch, string(v.prerelease), string(v.metadata))
}

// MarshalText implements encoding.TextMarshaler.
func (r Requirement) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Requirement) UnmarshalText(text []byte) error {
	parsed, err := ParseRequirement(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
