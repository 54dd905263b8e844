// Package routes prerenders a fixed list of pages after the build and emits each page's
// document. Rendering goes through a Renderer; SandboxRenderer runs the prerender bundle once
// per route with the route as the document location.
package routes

import (
	"context"
	"path"
	"strings"
)

// Route describes one page to render
type Route struct {
	// Path is the URL path, e.g. "/" or "/about/"
	Path string `json:"path" yaml:"path"`

	// Params is passed to the render function
	Params any `json:"params,omitempty" yaml:"params,omitempty"`

	// OutputPath overrides the emitted file name
	OutputPath string `json:"output_path,omitempty" yaml:"output_path,omitempty"`
}

// Rendered is a rendered page
type Rendered struct {
	Route      string
	HTML       string
	OutputPath string
}

// PostProcess transforms a rendered page before it is emitted
type PostProcess func(Rendered) (Rendered, error)

// Renderer renders routes. Implementations may drive a real browser.
type Renderer interface {
	Render(ctx context.Context, routes []Route, post PostProcess) ([]Rendered, error)
}

// OutputPath maps a route path to a file path relative to the output directory. Paths with
// an extension keep it; others get index.html.
func OutputPath(route string) string {
	p := path.Clean("/" + route)
	if path.Ext(p) != "" {
		return strings.TrimPrefix(p, "/")
	}
	return strings.TrimPrefix(path.Join(p, "index.html"), "/")
}

// Chain runs post-processors in order
func Chain(steps ...PostProcess) PostProcess {
	return func(r Rendered) (Rendered, error) {
		var err error
		for _, step := range steps {
			if step == nil {
				continue
			}
			if r, err = step(r); err != nil {
				return r, err
			}
		}
		return r, nil
	}
}
