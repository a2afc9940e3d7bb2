// Package fsutil holds the file copying primitives used to lay out bundles.
package fsutil

import (
	"fmt"
	"os"
	"path/filepath"

	cp "github.com/otiai10/copy"
)

// Copy copies a file or directory tree to dst. Existing directories are
// merged and existing files overwritten.
func Copy(src, dst string) error {
	if err := cp.Copy(src, dst); err != nil {
		return fmt.Errorf("copy %s to %s: %w", src, dst, err)
	}
	return nil
}

// CopyInto copies src into dir, keeping its base name.
func CopyInto(src, dir string) error {
	return Copy(src, filepath.Join(dir, filepath.Base(src)))
}

// CopyRelative copies each file (relative to root) to the same relative
// location under dest.
func CopyRelative(root string, files []string, dest string) error {
	for _, f := range files {
		src := f
		if !filepath.IsAbs(f) {
			src = filepath.Join(root, f)
		}
		dst := filepath.Join(dest, f)
		if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
			return fmt.Errorf("create %s: %w", filepath.Dir(dst), err)
		}
		if err := Copy(src, dst); err != nil {
			return err
		}
	}
	return nil
}

// Exists reports whether path exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// IsDir reports whether path is an existing directory.
func IsDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
