package ops

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hpungsan/glean/internal/config"
	"github.com/hpungsan/glean/internal/errors"
)

// PathCheckMode indicates what a validated path will be used for.
type PathCheckMode int

const (
	PathCheckRead   PathCheckMode = iota // import (read .jsonl)
	PathCheckWrite                       // export (write .jsonl)
	PathCheckSource                      // knowledge-base file (read text/markdown/html)
)

// sourceExtensions are the file types AddKnowledge can read.
var sourceExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
	".html":     true,
	".htm":      true,
}

// ValidatePath performs path validation for file reads and writes.
// It checks:
// 1. Path traversal (.. sequences)
// 2. Extension (.jsonl for import/export, a text format for knowledge sources)
// 3. Directory restrictions (file must be DIRECTLY in the default directory or allowed_paths)
// 4. Symlink safety (parent dir must not be a symlink, file must not be a symlink)
//
// Disallowing subdirectories means no intermediate path component can be swapped for a
// symlink between validation and open; O_NOFOLLOW covers the final component.
func ValidatePath(path string, mode PathCheckMode, cfg *config.Config) error {
	if path == "" {
		return errors.NewInvalidRequest("path is required")
	}

	if containsTraversal(path) {
		return errors.NewInvalidRequest("path must not contain directory traversal (..)")
	}

	cleaned := filepath.Clean(path)
	if err := checkExtension(cleaned, mode); err != nil {
		return err
	}

	absPath, err := filepath.Abs(cleaned)
	if err != nil {
		return errors.NewInvalidRequest(fmt.Sprintf("invalid path: %v", err))
	}

	// Unsafe paths skip the directory checks but never the symlink checks.
	if cfg != nil && cfg.AllowUnsafePaths {
		if mode != PathCheckWrite {
			if _, err := os.Stat(absPath); os.IsNotExist(err) {
				return errors.NewFileNotFound(path)
			}
		}
		if info, err := os.Lstat(absPath); err == nil {
			if info.Mode()&os.ModeSymlink != 0 {
				return errors.NewInvalidRequest("path must not be a symlink")
			}
		}
		return nil
	}

	allowedDirs, err := getAllowedDirs(mode, cfg)
	if err != nil {
		return err
	}

	parentDir := filepath.Dir(absPath)
	if !isDirectlyInAllowedDir(parentDir, allowedDirs) {
		return errors.NewInvalidRequest(
			fmt.Sprintf("file must be directly in an allowed directory (no subdirectories); allowed: %v",
				allowedDirs))
	}

	if info, err := os.Lstat(parentDir); err == nil {
		if info.Mode()&os.ModeSymlink != 0 {
			return errors.NewInvalidRequest("parent directory must not be a symlink")
		}
	}

	if mode != PathCheckWrite {
		if _, err := os.Stat(absPath); os.IsNotExist(err) {
			return errors.NewFileNotFound(path)
		}
	}

	// O_NOFOLLOW would reject this at open time too; checking here gives a clearer error.
	if info, err := os.Lstat(absPath); err == nil {
		if info.Mode()&os.ModeSymlink != 0 {
			return errors.NewInvalidRequest("path must not be a symlink")
		}
	}

	return nil
}

func checkExtension(path string, mode PathCheckMode) error {
	ext := strings.ToLower(filepath.Ext(path))
	if mode == PathCheckSource {
		if !sourceExtensions[ext] {
			return errors.NewInvalidRequest("file must be .txt, .md, .markdown, .html or .htm")
		}
		return nil
	}
	if ext != ".jsonl" {
		return errors.NewInvalidRequest("path must have .jsonl extension")
	}
	return nil
}

// getAllowedDirs returns the allowed directories for mode (absolute, cleaned).
// Existing symlinked entries are resolved so they match against their real target.
func getAllowedDirs(mode PathCheckMode, cfg *config.Config) ([]string, error) {
	var (
		defaultDir string
		err        error
	)
	if mode == PathCheckSource {
		defaultDir, err = DefaultSourcesDir()
	} else {
		defaultDir, err = DefaultExportsDir()
	}
	if err != nil {
		return nil, err
	}
	dirs := []string{defaultDir}

	if cfg != nil {
		for _, p := range cfg.AllowedPaths {
			if filepath.IsAbs(p) {
				dirs = append(dirs, filepath.Clean(p))
			}
		}
	}

	result := make([]string, 0, len(dirs))
	for _, d := range dirs {
		abs, err := filepath.Abs(filepath.Clean(d))
		if err != nil {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("invalid allowed path: %v", err))
		}

		if info, err := os.Lstat(abs); err == nil && info.Mode()&os.ModeSymlink != 0 {
			resolved, err := filepath.EvalSymlinks(abs)
			if err != nil {
				return nil, errors.NewInvalidRequest(fmt.Sprintf("cannot resolve symlink in allowed path: %v", err))
			}
			abs = resolved
		}
		result = append(result, abs)
	}

	return result, nil
}

// isDirectlyInAllowedDir checks if parentDir exactly matches one of the allowed directories.
func isDirectlyInAllowedDir(parentDir string, allowedDirs []string) bool {
	parentDir = filepath.Clean(parentDir)
	for _, dir := range allowedDirs {
		if parentDir == filepath.Clean(dir) {
			return true
		}
	}
	return false
}

// BaseDir returns the glean data directory (~/.glean).
func BaseDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", errors.NewInternal(fmt.Errorf("failed to get home directory: %w", err))
	}
	return filepath.Join(homeDir, ".glean"), nil
}

// DefaultExportsDir returns the default exports directory (~/.glean/exports).
func DefaultExportsDir() (string, error) {
	base, err := BaseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "exports"), nil
}

// DefaultSourcesDir returns the directory knowledge-base files are read from (~/.glean/sources).
func DefaultSourcesDir() (string, error) {
	base, err := BaseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "sources"), nil
}

// containsTraversal checks if path contains ".." directory traversal.
func containsTraversal(path string) bool {
	for _, part := range strings.Split(path, string(filepath.Separator)) {
		if part == ".." {
			return true
		}
	}
	if filepath.Separator != '/' {
		for _, part := range strings.Split(path, "/") {
			if part == ".." {
				return true
			}
		}
	}
	return false
}
