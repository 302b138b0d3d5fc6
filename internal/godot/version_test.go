package godot

import (
	"errors"
	"testing"
)

func TestParseVersion(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   Version
	}{
		{
			name:   "patch release",
			output: "3.5.1.stable.official.de2f0f147\n",
			want:   Version{Major: 3, Minor: 5, Hash: "de2f0f147", Raw: "3.5.1.stable.official.de2f0f147", Output: "3.5.1.stable.official.de2f0f147"},
		},
		{
			name:   "minor release",
			output: "3.5.stable.official.6fed1ffa3",
			want:   Version{Major: 3, Minor: 5, Hash: "6fed1ffa3", Raw: "3.5.stable.official.6fed1ffa3", Output: "3.5.stable.official.6fed1ffa3"},
		},
		{
			name:   "godot 4 with banner noise",
			output: "Godot Engine v4.2.1\n4.2.1.stable.official.b09f793f5\n",
			want:   Version{Major: 4, Minor: 2, Hash: "b09f793f5", Raw: "4.2.1.stable.official.b09f793f5", Output: "Godot Engine v4.2.1\n4.2.1.stable.official.b09f793f5"},
		},
		{
			name:   "two digit minor",
			output: "3.10.stable.mono.0123456789",
			want:   Version{Major: 3, Minor: 10, Hash: "012345678", Raw: "3.10.stable.mono.012345678", Output: "3.10.stable.mono.0123456789"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseVersion(tt.output)
			if err != nil {
				t.Fatalf("ParseVersion(%q) error: %v", tt.output, err)
			}
			if got != tt.want {
				t.Errorf("ParseVersion(%q) = %+v, want %+v", tt.output, got, tt.want)
			}
		})
	}
}

func TestVersion_StringPrefersOutput(t *testing.T) {
	v, err := ParseVersion("  4.2.1.stable.custom_build.b09f793f5 [dev]\n")
	if err != nil {
		t.Fatal(err)
	}
	if v.String() != "4.2.1.stable.custom_build.b09f793f5 [dev]" {
		t.Errorf("String() = %q", v.String())
	}
	if (Version{Raw: "3.5.stable.official.6fed1ffa3"}).String() != "3.5.stable.official.6fed1ffa3" {
		t.Error("String() should fall back to Raw")
	}
}

func TestParseVersion_Unrecognized(t *testing.T) {
	for _, output := range []string{
		"",
		"bash: godot: command not found",
		"5.0.stable.official.de2f0f147",
		"3.5.1.stable.official.nothex!!",
	} {
		if _, err := ParseVersion(output); !errors.Is(err, ErrUnrecognizedVersion) {
			t.Errorf("ParseVersion(%q) err = %v, want ErrUnrecognizedVersion", output, err)
		}
	}
}

func TestRequirementFor(t *testing.T) {
	tests := []struct {
		project string
		want    Line
	}{
		{"4.1", Line{Major: 4, MinMinor: 2, Target: "4.2"}},
		{"4.3", Line{Major: 4, MinMinor: 2, Target: "4.2"}},
		{"3.6", Line{Major: 3, MinMinor: 6, Target: "3.6"}},
		{"3.x", Line{Major: 3, MinMinor: 6, Target: "3.6"}},
		{"", Line{Major: 3, MinMinor: 6, Target: "3.6"}},
	}
	for _, tt := range tests {
		if got := RequirementFor(tt.project); got != tt.want {
			t.Errorf("RequirementFor(%q) = %+v, want %+v", tt.project, got, tt.want)
		}
	}
}

func TestLine_Supports(t *testing.T) {
	line3 := RequirementFor("3.x")
	if line3.Supports(Version{Major: 3, Minor: 5}) {
		t.Error("3.5 should not support headless")
	}
	if !line3.Supports(Version{Major: 3, Minor: 6}) {
		t.Error("3.6 should support headless")
	}
	if !line3.Supports(Version{Major: 3, Minor: 10}) {
		t.Error("3.10 should compare numerically and support headless")
	}
	if line3.Supports(Version{Major: 4, Minor: 2}) {
		t.Error("a 4.x build should not serve a 3.x project")
	}
}
