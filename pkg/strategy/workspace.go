package strategy

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Workspace is a uniquely named scratch directory holding one external render
type Workspace struct {
	Dir string
}

// NewWorkspace creates a fresh directory under root (the system temp path when empty)
func NewWorkspace(root string) (*Workspace, error) {
	if root == "" {
		root = os.TempDir()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create workspace root: %w", err)
	}
	dir := filepath.Join(root, "ssg-"+uuid.NewString())
	if err := os.Mkdir(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}
	return &Workspace{Dir: dir}, nil
}

// WriteFile writes data to a slash-separated path inside the workspace. Paths escaping the
// workspace are rejected.
func (w *Workspace) WriteFile(name string, data []byte) error {
	rel := filepath.FromSlash(name)
	if !filepath.IsLocal(rel) {
		return fmt.Errorf("refusing to write outside workspace: %s", name)
	}
	path := filepath.Join(w.Dir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", name, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

// Remove deletes the workspace and everything in it
func (w *Workspace) Remove() error {
	return os.RemoveAll(w.Dir)
}
