package godot

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/turtacn/lspbridge/pkg/consts"
	lberrors "github.com/turtacn/lspbridge/pkg/errors"
)

// DefaultProjectVersion is assumed when project.godot declares no 4.x feature tag.
const DefaultProjectVersion = "3.x"

var (
	featuresPattern = regexp.MustCompile(`config/features=PackedStringArray\((.*)\)`)
	featureVersion  = regexp.MustCompile(`"(4.[0-9]+)"`)
)

// skipDirs are never searched for project files.
var skipDirs = map[string]bool{
	".git":         true,
	".godot":       true,
	".import":      true,
	".lspbridge":   true,
	"node_modules": true,
}

// Resolver locates the Godot project inside a workspace.
type Resolver struct {
	Root string
}

// NewResolver returns a resolver searching below root.
func NewResolver(root string) *Resolver {
	return &Resolver{Root: root}
}

// ProjectFile returns the shallowest project.godot below the workspace root.
func (r *Resolver) ProjectFile(ctx context.Context) (string, error) {
	root := r.Root
	if root == "" {
		root = "."
	}

	best, bestDepth := "", -1
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subtrees are skipped rather than aborting the search
			if d != nil && d.IsDir() && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if path != root && skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() != consts.ProjectFileName {
			return nil
		}
		depth := strings.Count(filepath.ToSlash(path), "/")
		if bestDepth < 0 || depth < bestDepth {
			best, bestDepth = path, depth
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if best == "" {
		return "", lberrors.New(lberrors.ErrCodeProjectNotFound, "ProjectFile",
			"no "+consts.ProjectFileName+" found in workspace", nil)
	}
	return best, nil
}

// ProjectDir returns the absolute directory holding the project file.
func (r *Resolver) ProjectDir(ctx context.Context) (string, error) {
	file, err := r.ProjectFile(ctx)
	if err != nil {
		return "", err
	}
	return filepath.Abs(filepath.Dir(file))
}

// ProjectVersion returns the engine version the project declares in its
// feature list, or DefaultProjectVersion.
func (r *Resolver) ProjectVersion(ctx context.Context) (string, error) {
	file, err := r.ProjectFile(ctx)
	if err != nil {
		return DefaultProjectVersion, err
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return DefaultProjectVersion, err
	}
	return DeclaredVersion(string(data)), nil
}

// DeclaredVersion extracts the engine version from project.godot contents.
func DeclaredVersion(contents string) string {
	m := featuresPattern.FindStringSubmatch(contents)
	if m == nil {
		return DefaultProjectVersion
	}
	v := featureVersion.FindStringSubmatch(m[1])
	if v == nil {
		return DefaultProjectVersion
	}
	return v[1]
}

// Personal.AI order the ending
