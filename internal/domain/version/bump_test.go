package version

import (
	"testing"
)

func TestBumpKindOrdering(t *testing.T) {
	if !(BumpNone < BumpPatch && BumpPatch < BumpMinor && BumpMinor < BumpMajor) {
		t.Fatal("bump kinds must be ordered none < patch < minor < major")
	}
	if got := MaxBump(BumpPatch, BumpMajor, BumpMinor); got != BumpMajor {
		t.Errorf("MaxBump() = %v, want major", got)
	}
	if got := MaxBump(); got != BumpNone {
		t.Errorf("MaxBump() with no input = %v, want none", got)
	}
}

func TestParseBumpKind(t *testing.T) {
	tests := []struct {
		input   string
		want    BumpKind
		wantErr bool
	}{
		{"none", BumpNone, false},
		{"patch", BumpPatch, false},
		{"Minor", BumpMinor, false},
		{" major ", BumpMajor, false},
		{"prerelease", BumpNone, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseBumpKind(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseBumpKind(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseBumpKind(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestBumpKindApply(t *testing.T) {
	tests := []struct {
		version string
		kind    BumpKind
		want    string
	}{
		{"1.2.3", BumpNone, "1.2.3"},
		{"1.2.3", BumpPatch, "1.2.4"},
		{"1.2.3", BumpMinor, "1.3.0"},
		{"1.2.3", BumpMajor, "2.0.0"},
		{"0.0.0", BumpPatch, "0.0.1"},
		{"1.0.0-rc.1", BumpPatch, "1.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.version+"/"+tt.kind.String(), func(t *testing.T) {
			if got := tt.kind.Apply(MustParse(tt.version)); got.String() != tt.want {
				t.Errorf("Apply() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestBetween(t *testing.T) {
	tests := []struct {
		from, to string
		want     BumpKind
	}{
		{"1.0.0", "2.0.0", BumpMajor},
		{"1.0.0", "1.4.0", BumpMinor},
		{"1.0.0", "1.0.9", BumpPatch},
		{"1.0.0-rc.1", "1.0.0", BumpPatch},
		{"1.0.0", "1.0.0", BumpNone},
		{"2.0.0", "1.0.0", BumpNone},
	}

	for _, tt := range tests {
		t.Run(tt.from+"->"+tt.to, func(t *testing.T) {
			if got := Between(MustParse(tt.from), MustParse(tt.to)); got != tt.want {
				t.Errorf("Between() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBumpKindText(t *testing.T) {
	var b BumpKind
	if err := b.UnmarshalText([]byte("minor")); err != nil {
		t.Fatal(err)
	}
	if b != BumpMinor {
		t.Errorf("UnmarshalText = %v", b)
	}
	text, err := BumpMajor.MarshalText()
	if err != nil || string(text) != "major" {
		t.Errorf("MarshalText = %q, %v", text, err)
	}
	if _, err := BumpKind(9).MarshalText(); err == nil {
		t.Error("expected error for out-of-range bump")
	}
}
