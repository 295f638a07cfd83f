package fileutil

import (
	"errors"
	"fmt"
	"os"
)

// ErrNotDirectory is returned by RequireDir when the path exists but is not
// a directory.
var ErrNotDirectory = errors.New("not a directory")

// EnsureDir creates a directory and all parent directories if they don't exist.
// Uses mode 0755. Returns nil if directory already exists.
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", path, err)
	}
	return nil
}

// RequireDir returns an error unless path names an existing directory.
// A missing path yields an error matching fs.ErrNotExist.
func RequireDir(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("working directory %s: %w", path, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("working directory %s: %w", path, ErrNotDirectory)
	}
	return nil
}
