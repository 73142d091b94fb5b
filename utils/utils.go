// Package utils holds small file helpers shared by the binaries.
package utils

import (
	"fmt"
	"os"
	"path/filepath"
)

// WriteFile writes buf to filename, refusing to overwrite an
// existing file.
func WriteFile(filename string, buf []byte, perm os.FileMode) error {
	if _, err := os.Stat(filename); err == nil {
		return fmt.Errorf("Can't write file. File '%s' already exists", filename)
	}
	return os.WriteFile(filename, buf, perm)
}

// ResolvePath returns file unchanged if it is absolute, and joined to
// the directory of other otherwise. Configs use it to locate the key
// files next to themselves.
func ResolvePath(file, other string) string {
	if !filepath.IsAbs(file) {
		file = filepath.Join(filepath.Dir(other), file)
	}
	return file
}
