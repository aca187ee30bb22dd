package changes

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/relicta-tech/monorel/internal/domain/version"
	rperrors "github.com/relicta-tech/monorel/internal/errors"
)

func TestParseConventionalCommit(t *testing.T) {
	tests := []struct {
		name         string
		message      string
		wantType     CommitType
		wantScope    string
		wantDesc     string
		wantBreaking bool
		wantConv     bool
	}{
		{"simple feat", "feat: add login", CommitTypeFeat, "", "add login", false, true},
		{"scoped fix", "fix(auth): handle nil token", CommitTypeFix, "auth", "handle nil token", false, true},
		{"bang", "fix!: drop old API", CommitTypeFix, "", "drop old API", true, true},
		{"scoped bang", "feat(api)!: remove v1", CommitTypeFeat, "api", "remove v1", true, true},
		{"uppercase type", "FEAT: shout", CommitTypeFeat, "", "shout", false, true},
		{"custom type", "deps: bump lodash", CommitType("deps"), "", "bump lodash", false, true},
		{"missing space", "feat:nospace", "", "", "feat:nospace", false, false},
		{"plain message", "Update README", "", "", "Update README", false, false},
		{"merge commit", "Merge branch 'main' into feature", "", "", "Merge branch 'main' into feature", false, false},
		{"empty scope", "feat(): nothing", "", "", "feat(): nothing", false, false},
		{"crlf", "feat: windows\r\n\r\nbody", CommitTypeFeat, "", "windows", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := ParseConventionalCommit("abc1234def", tt.message)
			if c.Type() != tt.wantType {
				t.Errorf("Type() = %q, want %q", c.Type(), tt.wantType)
			}
			if c.Scope() != tt.wantScope {
				t.Errorf("Scope() = %q, want %q", c.Scope(), tt.wantScope)
			}
			if c.Description() != tt.wantDesc {
				t.Errorf("Description() = %q, want %q", c.Description(), tt.wantDesc)
			}
			if c.IsBreaking() != tt.wantBreaking {
				t.Errorf("IsBreaking() = %v, want %v", c.IsBreaking(), tt.wantBreaking)
			}
			if c.IsConventional() != tt.wantConv {
				t.Errorf("IsConventional() = %v, want %v", c.IsConventional(), tt.wantConv)
			}
		})
	}
}

func TestParseBodyAndFooters(t *testing.T) {
	msg := "feat(parser): support footers\n\n" +
		"First paragraph of the body.\n\n" +
		"Second paragraph.\n\n" +
		"Reviewed-by: Z\n" +
		"Refs #133\n" +
		"BREAKING CHANGE: the parser now\n" +
		"  rejects empty input"

	c := ParseConventionalCommit("abc", msg)
	if want := "First paragraph of the body.\n\nSecond paragraph."; c.Body() != want {
		t.Errorf("Body() = %q, want %q", c.Body(), want)
	}
	footers := c.Footers()
	if len(footers) != 3 {
		t.Fatalf("Footers() = %+v, want 3", footers)
	}
	if footers[0] != (Footer{Token: "Reviewed-by", Value: "Z"}) {
		t.Errorf("footer[0] = %+v", footers[0])
	}
	if footers[1] != (Footer{Token: "Refs", Value: "#133"}) {
		t.Errorf("footer[1] = %+v", footers[1])
	}
	if !c.IsBreaking() {
		t.Error("BREAKING CHANGE footer should mark the commit breaking")
	}
	if want := "the parser now\nrejects empty input"; c.BreakingDescription() != want {
		t.Errorf("BreakingDescription() = %q, want %q", c.BreakingDescription(), want)
	}
}

func TestBreakingFooterVariants(t *testing.T) {
	for _, footer := range []string{"BREAKING CHANGE: gone", "BREAKING-CHANGE: gone"} {
		c := ParseConventionalCommit("abc", "refactor: rework\n\n"+footer)
		if !c.IsBreaking() {
			t.Errorf("%q: IsBreaking() = false", footer)
		}
		if c.BreakingDescription() != "gone" {
			t.Errorf("%q: BreakingDescription() = %q", footer, c.BreakingDescription())
		}
	}

	// Footers only count in the trailer block.
	c := ParseConventionalCommit("abc", "docs: explain\n\nWe mention BREAKING CHANGE: inline here.")
	if c.IsBreaking() {
		t.Error("inline mention in body should not be breaking")
	}
}

func TestNonConventionalWarning(t *testing.T) {
	c := ParseConventionalCommit("0123456789", "Update docs", WithAuthor("alice"), WithDate(time.Unix(0, 0)))
	err := c.Warning()
	if err == nil {
		t.Fatal("Warning() = nil for non-conventional commit")
	}
	if !errors.Is(err, rperrors.ErrNotConventional) {
		t.Errorf("Warning() = %v, want NotConventional", err)
	}
	if c.Author() != "alice" || !c.Date().Equal(time.Unix(0, 0)) {
		t.Error("options not applied")
	}

	if ParseConventionalCommit("x", "fix: ok").Warning() != nil {
		t.Error("Warning() should be nil for conventional commits")
	}
}

func TestParseFormatRoundTrip(t *testing.T) {
	messages := []string{
		"feat: add login",
		"fix(auth): handle nil token",
		"feat(api)!: remove v1",
		"chore(deps): bump\n\nbody text\n\nCloses #12",
		"refactor: rework\n\nBREAKING CHANGE: gone",
		"perf(core)!: faster\n\nSigned-off-by: A <a@example.com>",
	}
	for _, msg := range messages {
		first := ParseConventionalCommit("h", msg)
		second := ParseConventionalCommit("h", first.Format())
		if first.Type() != second.Type() || first.Scope() != second.Scope() ||
			first.IsBreaking() != second.IsBreaking() || first.Description() != second.Description() {
			t.Errorf("round trip of %q changed header: %q -> %q", msg, first.Header(), second.Header())
		}
		if len(first.Footers()) != len(second.Footers()) {
			t.Errorf("round trip of %q changed footers: %v -> %v", msg, first.Footers(), second.Footers())
		}
		if first.Body() != second.Body() {
			t.Errorf("round trip of %q changed body: %q -> %q", msg, first.Body(), second.Body())
		}
	}
}

func TestVersionBumpFor(t *testing.T) {
	table := DefaultTypeTable()
	commits := []*ConventionalCommit{
		ParseConventionalCommit("1", "docs: readme"),
		ParseConventionalCommit("2", "fix: bug"),
		ParseConventionalCommit("3", "feat: thing"),
	}
	if got := table.VersionBumpFor(commits); got != version.BumpMinor {
		t.Errorf("VersionBumpFor() = %v, want minor", got)
	}
	if got := table.VersionBumpFor(commits[:1]); got != version.BumpNone {
		t.Errorf("VersionBumpFor(docs) = %v, want none", got)
	}
	if got := table.VersionBumpFor(nil); got != version.BumpNone {
		t.Errorf("VersionBumpFor(nil) = %v, want none", got)
	}

	breaking := append(commits, ParseConventionalCommit("4", "chore!: drop node 16"))
	if got := table.VersionBumpFor(breaking); got != version.BumpMajor {
		t.Errorf("VersionBumpFor(breaking) = %v, want major", got)
	}
}

func TestVersionBumpForIsOrderIndependent(t *testing.T) {
	table := DefaultTypeTable()
	messages := []string{
		"docs: a", "fix: b", "feat: c", "chore: d", "Update", "style: e",
		"refactor(x): f", "ci: g", "build!: h", "weird: i",
	}
	rng := rand.New(rand.NewSource(7))
	for iter := 0; iter < 100; iter++ {
		n := 1 + rng.Intn(len(messages))
		picked := make([]*ConventionalCommit, n)
		for i := range picked {
			picked[i] = ParseConventionalCommit("h", messages[rng.Intn(len(messages))])
		}
		want := table.VersionBumpFor(picked)

		shuffled := append([]*ConventionalCommit(nil), picked...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		if got := table.VersionBumpFor(shuffled); got != want {
			t.Fatalf("iteration %d: shuffled fold = %v, want %v", iter, got, want)
		}

		mid := n / 2
		left := table.VersionBumpFor(picked[:mid])
		right := table.VersionBumpFor(picked[mid:])
		if got := version.MaxBump(left, right); got != want {
			t.Fatalf("iteration %d: split fold = %v, want %v", iter, got, want)
		}
	}
}

func TestTypeTableFallback(t *testing.T) {
	table := DefaultTypeTable()

	cfg, ok := table.Lookup("deps")
	if ok {
		t.Error("Lookup(deps) should report unconfigured")
	}
	if cfg.Bump != version.BumpPatch || cfg.Section != OtherSection || !cfg.ShowInChangelog {
		t.Errorf("fallback = %+v", cfg)
	}

	table.SetDefaultBump(version.BumpNone)
	if got := table.BumpFor(ParseConventionalCommit("h", "Update README")); got != version.BumpNone {
		t.Errorf("BumpFor(non-conventional) = %v, want none", got)
	}

	table.Set("security-fix", TypeConfig{Bump: version.BumpPatch, ShowInChangelog: true})
	cfg, ok = table.Lookup("security-fix")
	if !ok || cfg.Section != "Security Fix" {
		t.Errorf("Lookup(security-fix) = %+v, %v", cfg, ok)
	}

	sections := table.Sections()
	if sections[0] != "Features" || sections[len(sections)-1] != "Security Fix" {
		t.Errorf("Sections() = %v", sections)
	}
}

func TestFromCommit(t *testing.T) {
	tests := []struct {
		message  string
		wantType ChangeType
		wantDesc string
	}{
		{"feat: login", ChangeFeature, "login"},
		{"fix(auth): token", ChangeFix, "token"},
		{"docs: readme", ChangeOther, "readme"},
		{"refactor: api\n\nBREAKING CHANGE: removed v1", ChangeOther, "removed v1"},
	}
	for _, tt := range tests {
		c := ParseConventionalCommit("abc", tt.message)
		ch := FromCommit("pkg", c)
		if ch.Type != tt.wantType || ch.Description != tt.wantDesc || ch.Package != "pkg" || ch.Commit != "abc" {
			t.Errorf("FromCommit(%q) = %+v", tt.message, ch)
		}
	}
}

func TestParseAll(t *testing.T) {
	commits, warnings := ParseAll([]RawCommit{
		{Hash: "1", Message: "feat: a"},
		{Hash: "2", Message: "random"},
	})
	if len(commits) != 2 || commits[0].Hash() != "1" {
		t.Fatalf("ParseAll() = %v", commits)
	}
	if len(warnings) != 1 {
		t.Errorf("warnings = %v, want 1", warnings)
	}
}
