package version

import (
	"testing"
)

// FuzzParse checks that anything Parse accepts renders and re-parses to an
// equal version.
// Run with: go test -fuzz=FuzzParse -fuzztime=30s
func FuzzParse(f *testing.F) {
	seeds := []string{
		"1.0.0", "0.0.1", "v1.2.3-rc.1", "1.2.3-alpha.1+build.456", "1.0.0-0.3.7",
		"", "v", "1.0", "01.0.0", "1.0.0-", "1.0.0+", "1.0.0-α", "\t1.0.0",
		"1.0.0-0.0-abc1234",
	}
	for _, seed := range seeds {
		f.Add(seed)
	}

	f.Fuzz(func(t *testing.T, s string) {
		v, err := Parse(s)
		if err != nil {
			return
		}
		reparsed, err := Parse(v.String())
		if err != nil {
			t.Fatalf("failed to reparse %q: %v", v.String(), err)
		}
		if reparsed.Compare(v) != 0 || reparsed.String() != v.String() {
			t.Errorf("round trip mismatch: %v vs %v", v, reparsed)
		}
	})
}

// FuzzBumpApply checks that every bump strictly increases the version.
func FuzzBumpApply(f *testing.F) {
	f.Add(uint64(0), uint64(0), uint64(1), uint8(1), "")
	f.Add(uint64(1), uint64(0), uint64(0), uint8(3), "beta.1")
	f.Add(uint64(0), uint64(1), uint64(0), uint8(2), "rc")

	f.Fuzz(func(t *testing.T, major, minor, patch uint64, kind uint8, pre string) {
		major, minor, patch = major%1000000, minor%1000000, patch%1000000
		b := BumpKind(kind % 4)
		v := NewSemanticVersion(major, minor, patch)
		if pre != "" {
			candidate, err := Parse(v.String() + "-" + pre)
			if err != nil {
				return
			}
			v = candidate
		}

		got := b.Apply(v)
		if b == BumpNone {
			if got.String() != v.String() {
				t.Errorf("none bump changed %v to %v", v, got)
			}
			return
		}
		if !got.GreaterThan(v) {
			t.Errorf("%s bump of %v produced %v", b, v, got)
		}
		if got.IsPrerelease() {
			t.Errorf("%s bump of %v kept prerelease: %v", b, v, got)
		}
	})
}
