package sourcecontrol

import (
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/relicta-tech/monorel/internal/domain/version"
)

// Tag represents a git tag entity.
type Tag struct {
	name    string
	hash    CommitHash
	version *version.SemanticVersion
}

// NewTag creates a new Tag entity. The version is parsed from the part of
// the name after the last "@" (package tags such as "pkg@1.2.0") or from the
// whole name.
func NewTag(name string, hash CommitHash) *Tag {
	t := &Tag{
		name: name,
		hash: hash,
	}

	candidate := name
	if i := strings.LastIndex(name, "@"); i > 0 {
		candidate = name[i+1:]
	}
	if ver, err := version.Parse(candidate); err == nil {
		t.version = &ver
	}

	return t
}

// Name returns the tag name.
func (t *Tag) Name() string {
	return t.name
}

// Hash returns the commit hash the tag points to.
func (t *Tag) Hash() CommitHash {
	return t.hash
}

// IsVersionTag returns true if this tag represents a version.
func (t *Tag) IsVersionTag() bool {
	return t.version != nil
}

// Version returns the semantic version if this is a version tag.
func (t *Tag) Version() *version.SemanticVersion {
	return t.version
}

// HasPrefix returns true if the tag has the specified prefix.
func (t *Tag) HasPrefix(prefix string) bool {
	return strings.HasPrefix(t.name, prefix)
}

// Matches reports whether the tag name matches a doublestar pattern.
// An invalid pattern matches nothing.
func (t *Tag) Matches(pattern string) bool {
	ok, err := doublestar.Match(pattern, t.name)
	return err == nil && ok
}

// TagList represents a list of tags.
type TagList []*Tag

// Latest returns the tag with the highest version, ties broken by name.
func (tl TagList) Latest() *Tag {
	var latest *Tag
	for _, t := range tl {
		if !t.IsVersionTag() {
			continue
		}
		if latest == nil {
			latest = t
			continue
		}
		switch t.version.Compare(*latest.version) {
		case 1:
			latest = t
		case 0:
			if t.name > latest.name {
				latest = t
			}
		}
	}
	return latest
}

// FilterByPrefix returns tags with the specified prefix.
func (tl TagList) FilterByPrefix(prefix string) TagList {
	// Pre-allocate assuming ~25% match rate to reduce reallocations
	result := make(TagList, 0, len(tl)/4+1)
	for _, t := range tl {
		if t.HasPrefix(prefix) {
			result = append(result, t)
		}
	}
	return result
}

// FilterByPattern returns tags whose names match a doublestar pattern.
func (tl TagList) FilterByPattern(pattern string) TagList {
	result := make(TagList, 0, len(tl))
	for _, t := range tl {
		if t.Matches(pattern) {
			result = append(result, t)
		}
	}
	return result
}

// VersionTags returns only version tags.
func (tl TagList) VersionTags() TagList {
	result := make(TagList, 0, len(tl))
	for _, t := range tl {
		if t.IsVersionTag() {
			result = append(result, t)
		}
	}
	return result
}

// SortByName orders the list by tag name in place.
func (tl TagList) SortByName() {
	sort.Slice(tl, func(i, j int) bool { return tl[i].name < tl[j].name })
}
