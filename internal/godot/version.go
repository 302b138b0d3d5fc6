// Package godot knows the few things lspbridge needs about the Godot engine:
// how its executables report their version and how a project declares the
// engine line it targets.
package godot

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrUnrecognizedVersion is returned when executable output carries no
// recognizable Godot version string.
var ErrUnrecognizedVersion = errors.New("unrecognized godot version string")

// versionPattern matches e.g. "3.5.1.stable.official.de2f0f147" or
// "4.2.stable.official.46dc27791".
var versionPattern = regexp.MustCompile(`([34])\.([0-9]+)\.(?:[0-9]+\.)?\w+.\w+.([0-9a-f]{9})`)

// Version is a parsed `godot --version` result. Raw is the matched version
// string, Output the whole trimmed output shown to the user.
type Version struct {
	Major  int
	Minor  int
	Hash   string
	Raw    string
	Output string
}

func (v Version) String() string {
	if v.Output != "" {
		return v.Output
	}
	return v.Raw
}

// ParseVersion extracts the engine version from the output of `godot --version`.
func ParseVersion(output string) (Version, error) {
	m := versionPattern.FindStringSubmatch(output)
	if m == nil {
		return Version{}, ErrUnrecognizedVersion
	}
	major, err := strconv.Atoi(m[1])
	if err != nil {
		return Version{}, ErrUnrecognizedVersion
	}
	minor, err := strconv.Atoi(m[2])
	if err != nil {
		return Version{}, ErrUnrecognizedVersion
	}
	return Version{
		Major:  major,
		Minor:  minor,
		Hash:   m[3],
		Raw:    m[0],
		Output: strings.TrimSpace(output),
	}, nil
}

// Line is the engine line a project targets together with the oldest
// release of that line able to serve the language server headless.
type Line struct {
	Major    int
	MinMinor int
	Target   string
}

// RequirementFor maps a project's declared engine version ("4.1", "3.x")
// to its headless requirement. Anything not on the 4.x line is treated as 3.x.
func RequirementFor(projectVersion string) Line {
	if strings.HasPrefix(strings.TrimSpace(projectVersion), "4") {
		return Line{Major: 4, MinMinor: 2, Target: "4.2"}
	}
	return Line{Major: 3, MinMinor: 6, Target: "3.6"}
}

// Supports reports whether v can run the language server headless for this line.
func (l Line) Supports(v Version) bool {
	return v.Major == l.Major && v.Minor >= l.MinMinor
}

func (l Line) String() string {
	return fmt.Sprintf("%d.x (headless from %s)", l.Major, l.Target)
}

// Personal.AI order the ending
