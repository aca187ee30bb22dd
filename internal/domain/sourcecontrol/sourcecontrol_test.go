package sourcecontrol

import (
	"testing"
	"time"

	"github.com/relicta-tech/monorel/internal/domain/changes"
)

func TestCommitHash_Short(t *testing.T) {
	tests := []struct {
		name string
		hash CommitHash
		want string
	}{
		{"full hash", CommitHash("abc1234567890def"), "abc1234"},
		{"exactly 7 chars", CommitHash("abc1234"), "abc1234"},
		{"less than 7 chars", CommitHash("abc12"), "abc12"},
		{"empty hash", CommitHash(""), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.hash.Short(); got != tt.want {
				t.Errorf("CommitHash.Short() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCommit(t *testing.T) {
	date := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	c := NewCommit("abc1234567890def", "feat(ui): add button\n\nbody", Author{Name: "Jane", Email: "jane@example.com"}, date)

	if c.Subject() != "feat(ui): add button" {
		t.Errorf("Subject() = %q", c.Subject())
	}
	if c.ShortHash() != "abc1234" {
		t.Errorf("ShortHash() = %q", c.ShortHash())
	}
	if c.Author().String() != "Jane <jane@example.com>" {
		t.Errorf("Author() = %q", c.Author())
	}
	if c.IsMergeCommit() {
		t.Error("IsMergeCommit() = true without parents")
	}
	c.SetParents([]CommitHash{"p1", "p2"})
	if !c.IsMergeCommit() {
		t.Error("IsMergeCommit() = false with two parents")
	}

	parsed := c.Parse()
	if parsed.Type() != changes.CommitTypeFeat || parsed.Scope() != "ui" || parsed.Author() != "Jane" {
		t.Errorf("Parse() = %+v", parsed)
	}
	if raw := c.Raw(); raw.Hash != "abc1234567890def" || !raw.Date.Equal(date) {
		t.Errorf("Raw() = %+v", raw)
	}
}

func TestTagVersions(t *testing.T) {
	tests := []struct {
		name      string
		isVersion bool
		want      string
	}{
		{"v1.2.3", true, "1.2.3"},
		{"1.0.0-rc.1", true, "1.0.0-rc.1"},
		{"@scope/pkg@2.0.0", true, "2.0.0"},
		{"pkg@0.1.0", true, "0.1.0"},
		{"latest", false, ""},
		{"release-2024", false, ""},
	}
	for _, tt := range tests {
		tag := NewTag(tt.name, "abc")
		if tag.IsVersionTag() != tt.isVersion {
			t.Errorf("%s: IsVersionTag() = %v", tt.name, tag.IsVersionTag())
			continue
		}
		if tt.isVersion && tag.Version().String() != tt.want {
			t.Errorf("%s: Version() = %s, want %s", tt.name, tag.Version(), tt.want)
		}
	}
}

func TestTagListQueries(t *testing.T) {
	tags := TagList{
		NewTag("pkg-a@1.0.0", "1"),
		NewTag("pkg-a@1.10.0", "2"),
		NewTag("pkg-a@1.9.0", "3"),
		NewTag("pkg-b@3.0.0", "4"),
		NewTag("nightly", "5"),
	}

	a := tags.FilterByPattern("pkg-a@*")
	if len(a) != 3 {
		t.Fatalf("FilterByPattern() = %d tags, want 3", len(a))
	}
	if latest := a.Latest(); latest.Name() != "pkg-a@1.10.0" {
		t.Errorf("Latest() = %s, want pkg-a@1.10.0", latest.Name())
	}
	if got := tags.FilterByPrefix("pkg-b"); len(got) != 1 {
		t.Errorf("FilterByPrefix() = %d tags", len(got))
	}
	if got := tags.VersionTags(); len(got) != 4 {
		t.Errorf("VersionTags() = %d tags", len(got))
	}
	if tags.FilterByPattern("[").Latest() != nil {
		t.Error("invalid pattern should match nothing")
	}

	tags.SortByName()
	if tags[0].Name() != "nightly" {
		t.Errorf("SortByName() first = %s", tags[0].Name())
	}
}
