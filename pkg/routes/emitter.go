package routes

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Emitter writes a rendered page and returns where it went
type Emitter interface {
	Emit(ctx context.Context, page Rendered) (string, error)
}

// FileEmitter writes pages under Dir, creating directories as needed
type FileEmitter struct {
	Dir string
}

// Emit writes page.HTML to Dir/page.OutputPath
func (f *FileEmitter) Emit(ctx context.Context, page Rendered) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name := filepath.FromSlash(page.OutputPath)
	if !filepath.IsLocal(name) {
		return "", fmt.Errorf("output path %q escapes the output directory", page.OutputPath)
	}
	dest := filepath.Join(f.Dir, name)
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return "", fmt.Errorf("failed to create directory for %s: %w", page.OutputPath, err)
	}
	if err := os.WriteFile(dest, []byte(page.HTML), 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", page.OutputPath, err)
	}
	return dest, nil
}
