// Package storage reads image files by their opaque reference. The
// engine only ever needs the bytes; upload bookkeeping and deletion
// belong to the surrounding application.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Local resolves image references against a root directory on disk.
type Local struct {
	root string
}

// NewLocal creates a Local source rooted at dir.
func NewLocal(dir string) *Local {
	return &Local{root: dir}
}

// ReadImage returns the raw bytes for a file reference. References must
// stay inside the root directory.
func (l *Local) ReadImage(_ context.Context, ref string) ([]byte, error) {
	path := filepath.Join(l.root, filepath.Clean("/"+ref))
	if !strings.HasPrefix(path, filepath.Clean(l.root)+string(os.PathSeparator)) {
		return nil, fmt.Errorf("storage: reference %q escapes root", ref)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", ref, err)
	}
	return data, nil
}
