// Package security guards file access driven by request input.
package security

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrPathTraversal is returned when a path resolves outside its directory.
var ErrPathTraversal = errors.New("path escapes data directory")

// ValidatePathWithinDirectory checks that filePath resolves inside safeDir
// once symlinks are followed. A path that does not exist yet is checked
// through its deepest existing parent.
func ValidatePathWithinDirectory(filePath, safeDir string) error {
	absPath, err := filepath.Abs(filepath.Clean(filePath))
	if err != nil {
		return fmt.Errorf("failed to resolve absolute path: %w", err)
	}
	absSafeDir, err := filepath.Abs(safeDir)
	if err != nil {
		return fmt.Errorf("failed to resolve safe directory path: %w", err)
	}

	canonicalPath := canonicalise(absPath)
	canonicalSafeDir, err := filepath.EvalSymlinks(absSafeDir)
	if err != nil {
		return fmt.Errorf("failed to resolve safe directory symlinks: %w", err)
	}

	relPath, err := filepath.Rel(canonicalSafeDir, canonicalPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPathTraversal, err)
	}
	if relPath == ".." || strings.HasPrefix(relPath, ".."+string(filepath.Separator)) || filepath.IsAbs(relPath) {
		return fmt.Errorf("%w: %s", ErrPathTraversal, filePath)
	}
	return nil
}

// canonicalise resolves symlinks in absPath. For a path that does not exist
// the deepest existing parent is resolved and the remainder re-attached, so
// a dangling name under a symlinked directory cannot slip through.
func canonicalise(absPath string) string {
	if resolved, err := filepath.EvalSymlinks(absPath); err == nil {
		return resolved
	}
	checkPath := absPath
	for {
		parentDir := filepath.Dir(checkPath)
		if parentDir == checkPath {
			return absPath
		}
		if resolved, err := filepath.EvalSymlinks(parentDir); err == nil {
			rel, _ := filepath.Rel(parentDir, absPath)
			return filepath.Join(resolved, rel)
		}
		checkPath = parentDir
	}
}

// ResolveDataPath joins a request-supplied relative path onto dataDir and
// rejects absolute paths and anything that escapes dataDir.
func ResolveDataPath(dataDir, rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("empty path")
	}
	if filepath.IsAbs(rel) || strings.HasPrefix(rel, "/") {
		return "", fmt.Errorf("%w: absolute path %q not allowed", ErrPathTraversal, rel)
	}
	full := filepath.Join(dataDir, filepath.FromSlash(rel))
	if err := ValidatePathWithinDirectory(full, dataDir); err != nil {
		return "", err
	}
	return full, nil
}

// SanitizeFilename makes a safe filename from an arbitrary string. Anything
// other than ASCII letters, digits, dot, underscore or dash becomes a single
// underscore, and the result is capped at 128 bytes.
func SanitizeFilename(s string) string {
	const maxLen = 128
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		if b.Len() >= maxLen {
			break
		}
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'),
			r == '.' || r == '_' || r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteRune('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}
