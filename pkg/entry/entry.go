// Package entry normalizes bundler entry configurations.
//
// An entry is a single module path, an ordered list of paths, or an ordered mapping of chunk
// names to either form. Order is significant everywhere: multiple entries concatenate into
// one bundle and the last module provides the exports.
package entry

import (
	"path/filepath"
	"strings"
)

// Kind identifies the shape of an Entry
type Kind int

const (
	KindNone Kind = iota
	KindSingle
	KindList
	KindMap
)

// Entry is a tagged union over the three entry shapes
type Entry struct {
	kind   Kind
	path   string
	paths  []string
	keys   []string
	values map[string]Entry
}

// Single returns a one-path entry
func Single(path string) Entry {
	return Entry{kind: KindSingle, path: path}
}

// List returns an ordered multi-path entry
func List(paths ...string) Entry {
	cp := make([]string, len(paths))
	copy(cp, paths)
	return Entry{kind: KindList, paths: cp}
}

// NewMap returns an empty named entry mapping
func NewMap() Entry {
	return Entry{kind: KindMap, values: make(map[string]Entry)}
}

// Add returns a copy of e with name set to value, keeping first-insertion order. e itself is
// not modified. Nested mappings are not allowed, map values must be Single or List.
func (e Entry) Add(name string, value Entry) Entry {
	if value.kind == KindMap {
		value = List(Flatten(value)...)
	}
	out := NewMap()
	if e.kind == KindMap {
		out.keys = make([]string, len(e.keys), len(e.keys)+1)
		copy(out.keys, e.keys)
		for k, v := range e.values {
			out.values[k] = v
		}
	}
	if _, ok := out.values[name]; !ok {
		out.keys = append(out.keys, name)
	}
	out.values[name] = value
	return out
}

// Kind returns the entry shape
func (e Entry) Kind() Kind { return e.kind }

// IsZero reports whether the entry carries no paths
func (e Entry) IsZero() bool {
	switch e.kind {
	case KindSingle:
		return e.path == ""
	case KindList:
		return len(e.paths) == 0
	case KindMap:
		return len(e.keys) == 0
	}
	return true
}

// Path returns the path of a single entry
func (e Entry) Path() string { return e.path }

// Paths returns a copy of the paths of a list entry
func (e Entry) Paths() []string {
	cp := make([]string, len(e.paths))
	copy(cp, e.paths)
	return cp
}

// Keys returns mapping keys in insertion order
func (e Entry) Keys() []string {
	cp := make([]string, len(e.keys))
	copy(cp, e.keys)
	return cp
}

// Get returns the value stored under name
func (e Entry) Get(name string) (Entry, bool) {
	v, ok := e.values[name]
	return v, ok
}

// Normalize rewrites every path relative to context and prepends prefix
func Normalize(context string, e Entry, prefix string) Entry {
	switch e.kind {
	case KindSingle:
		return Single(convertPathToRelative(context, e.path, prefix))
	case KindList:
		out := make([]string, len(e.paths))
		for i, p := range e.paths {
			out[i] = convertPathToRelative(context, p, prefix)
		}
		return Entry{kind: KindList, paths: out}
	case KindMap:
		out := NewMap()
		for _, k := range e.keys {
			out = out.Add(k, Normalize(context, e.values[k], prefix))
		}
		return out
	}
	return e
}

// Flatten returns every path in bundle order
func Flatten(e Entry) []string {
	switch e.kind {
	case KindSingle:
		if e.path == "" {
			return nil
		}
		return []string{e.path}
	case KindList:
		return e.Paths()
	case KindMap:
		var out []string
		for _, k := range e.keys {
			out = append(out, Flatten(e.values[k])...)
		}
		return out
	}
	return nil
}

func convertPathToRelative(context, p, prefix string) string {
	if p == "" {
		return p
	}
	target := p
	if !filepath.IsAbs(target) {
		target = filepath.Join(context, target)
	}
	rel, err := filepath.Rel(context, target)
	if err != nil {
		rel = p
	}
	return prefix + filepath.ToSlash(rel)
}

// String renders the entry for logs
func (e Entry) String() string {
	switch e.kind {
	case KindSingle:
		return e.path
	case KindList:
		return "[" + strings.Join(e.paths, ", ") + "]"
	case KindMap:
		parts := make([]string, 0, len(e.keys))
		for _, k := range e.keys {
			parts = append(parts, k+": "+e.values[k].String())
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}
	return ""
}
