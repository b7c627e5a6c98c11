// Package filex handles the output artifact lifecycle: files carry a .part
// suffix while a transfer is in progress and are renamed into place only on
// success, so no partial file is ever left claiming completeness.
package filex

import (
	"fmt"
	"os"
	"path/filepath"
)

// PartSuffix marks an artifact whose transfer is still in progress.
const PartSuffix = ".part"

// EnsureDir creates dir (and parents) if needed and returns its absolute path.
func EnsureDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", dir, err)
	}
	if err := os.MkdirAll(abs, 0o770); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", abs, err)
	}
	return abs, nil
}

// PartPath returns the in-progress path for a final artifact path.
func PartPath(finalPath string) string {
	return finalPath + PartSuffix
}

// CreatePart creates (truncating) the in-progress file for finalPath.
func CreatePart(finalPath string) (*os.File, error) {
	f, err := os.Create(PartPath(finalPath))
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", PartPath(finalPath), err)
	}
	return f, nil
}

// Finish atomically moves the in-progress file to its final path.
func Finish(finalPath string) error {
	if err := os.Rename(PartPath(finalPath), finalPath); err != nil {
		return fmt.Errorf("finish %s: %w", finalPath, err)
	}
	return nil
}

// Discard removes the in-progress file, ignoring absence.
func Discard(finalPath string) {
	_ = os.Remove(PartPath(finalPath))
}
