package gitops

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

var validRepositoryPath = regexp.MustCompile(`^[\w\-\_\/\\\.]+$`)

// InvalidPathError is returned for repository paths which are malformed
// or point outside of the repository root.
type InvalidPathError struct {
	Path string
}

func (e *InvalidPathError) Error() string {
	return fmt.Sprintf("invalid repository path: %s", e.Path)
}

// ValidRepositoryPath returns true if the path consists of word characters, dashes, dots and slashes only.
func ValidRepositoryPath(subpath string) bool {
	return validRepositoryPath.MatchString(subpath)
}

// ResolveRepositoryPath validates the requested path and joins it with the repository root.
// Paths leaving the repository root are rejected.
func ResolveRepositoryPath(root, subpath string) (string, error) {
	if !ValidRepositoryPath(subpath) {
		return "", &InvalidPathError{Path: subpath}
	}
	repoPath := filepath.Join(root, subpath)
	rel, err := filepath.Rel(root, repoPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", &InvalidPathError{Path: subpath}
	}
	return repoPath, nil
}
