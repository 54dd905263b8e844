package build

import (
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// MemFS is the in-memory output filesystem of a compiler. Nothing written here touches disk.
type MemFS struct {
	mu    sync.RWMutex
	files map[string][]byte
}

// NewMemFS creates an empty filesystem
func NewMemFS() *MemFS {
	return &MemFS{files: make(map[string][]byte)}
}

// WriteFile stores a copy of data under path
func (m *MemFS) WriteFile(path string, data []byte) {
	cp := make([]byte, len(data))
	copy(cp, data)
	m.mu.Lock()
	m.files[filepath.Clean(path)] = cp
	m.mu.Unlock()
}

// ReadFile returns the contents stored under path
func (m *MemFS) ReadFile(path string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.files[filepath.Clean(path)]
	if !ok {
		return nil, &os.PathError{Op: "open", Path: path, Err: os.ErrNotExist}
	}
	return data, nil
}

// Paths lists stored paths in sorted order
func (m *MemFS) Paths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.files))
	for p := range m.files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
