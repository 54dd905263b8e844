// Package build models the host bundler: compilers, compilations and the child compilations
// spawned from a running build. Bundling itself is delegated to esbuild.
package build

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/wehubfusion/Daedalus/pkg/entry"
	perrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"go.uber.org/zap"
)

// Output formats understood by the compiler
const (
	FormatESM  = "esm"
	FormatIIFE = "iife"
	FormatCJS  = "cjs"
)

// Target platforms
const (
	PlatformBrowser = "browser"
	PlatformNode    = "node"
)

// OutputOptions controls where and how a compiler writes its bundle
type OutputOptions struct {
	// Path is the output directory. Child compilers only write into their MemFS.
	Path string

	// Filename is the fixed output filename relative to Path
	Filename string

	// Format is one of FormatESM, FormatIIFE, FormatCJS
	Format string

	// Library is the global name the bundle assigns its exports to (IIFE only)
	Library string

	// Platform is PlatformBrowser or PlatformNode
	Platform string
}

// Options holds the compiler configuration shared with child compilers
type Options struct {
	// Context is the base directory entries resolve from
	Context string

	// Entry is the application entry
	Entry entry.Entry

	// Plugins are applied to this compiler's builds
	Plugins []Plugin

	// Output configures the emitted bundle
	Output OutputOptions

	// Define replaces global identifiers at build time
	Define map[string]string

	// Loaders maps file extensions to esbuild loaders ("jsx", "tsx", "text", ...)
	Loaders map[string]string

	// External lists module ids left as runtime require calls
	External []string

	// Target is the esbuild language target, e.g. "es2017"
	Target string

	// Minify minifies the bundle
	Minify bool
}

// ApplyDefaults sets default values for configuration fields
func (o *Options) ApplyDefaults() {
	if o.Context == "" {
		if wd, err := os.Getwd(); err == nil {
			o.Context = wd
		}
	}
	if o.Output.Path == "" {
		o.Output.Path = filepath.Join(o.Context, "dist")
	}
	if o.Output.Filename == "" {
		o.Output.Filename = "main.js"
	}
	if o.Output.Format == "" {
		o.Output.Format = FormatESM
	}
	if o.Output.Platform == "" {
		o.Output.Platform = PlatformBrowser
	}
	if o.Target == "" {
		o.Target = "es2017"
	}
}

// Validate checks if the configuration is valid
func (o *Options) Validate() error {
	if o.Context == "" {
		return fmt.Errorf("context is required")
	}
	switch o.Output.Format {
	case FormatESM, FormatIIFE, FormatCJS:
	default:
		return fmt.Errorf("invalid output format: %s", o.Output.Format)
	}
	switch o.Output.Platform {
	case PlatformBrowser, PlatformNode:
	default:
		return fmt.Errorf("invalid platform: %s", o.Output.Platform)
	}
	if _, ok := targets[o.Target]; !ok {
		return fmt.Errorf("invalid target: %s", o.Target)
	}
	for ext, name := range o.Loaders {
		if _, ok := loaders[name]; !ok {
			return fmt.Errorf("invalid loader %q for %s", name, ext)
		}
	}
	return nil
}

// Compiler builds one entry configuration. Child compilers keep a reference to the
// compilation that created them.
type Compiler struct {
	Name              string
	Options           Options
	OutputFS          *MemFS
	ParentCompilation *Compilation

	entries []string
	logger  *zap.Logger
}

// NewCompiler creates a root compiler
func NewCompiler(name string, options Options, logger *zap.Logger) (*Compiler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	options.ApplyDefaults()
	if err := options.Validate(); err != nil {
		return nil, err
	}
	return &Compiler{
		Name:     name,
		Options:  options,
		OutputFS: NewMemFS(),
		logger:   logger,
	}, nil
}

// RootCompiler walks parent compilations up to the top-level compiler
func RootCompiler(c *Compiler) *Compiler {
	for c.ParentCompilation != nil && c.ParentCompilation.Compiler != nil {
		c = c.ParentCompilation.Compiler
	}
	return c
}

// ApplyEntry appends the paths of e, in bundle order, to the compiler's entries
func (c *Compiler) ApplyEntry(e entry.Entry) {
	c.entries = append(c.entries, entry.Flatten(e)...)
}

// Entries returns the entries applied so far
func (c *Compiler) Entries() []string {
	out := make([]string, len(c.entries))
	copy(out, c.entries)
	return out
}

// NewCompilation creates an empty compilation owned by this compiler. Loaders use it as the
// parent of their child compilations.
func (c *Compiler) NewCompilation() *Compilation {
	return newCompilation(c)
}

// Run builds the compiler's configured entry
func (c *Compiler) Run(ctx context.Context) (*Compilation, error) {
	if len(c.entries) == 0 && !c.Options.Entry.IsZero() {
		c.ApplyEntry(entry.Normalize(c.Options.Context, c.Options.Entry, "./"))
	}
	return c.Compile(ctx)
}

// Compile bundles the applied entries into the compiler's MemFS and returns the compilation
func (c *Compiler) Compile(ctx context.Context) (*Compilation, error) {
	if len(c.entries) == 0 {
		return nil, perrors.ConfigurationError(fmt.Sprintf("compiler %s has no entries", c.Name))
	}
	if err := ctx.Err(); err != nil {
		return nil, perrors.NewError(perrors.CodeCompilation, "compilation cancelled", err)
	}
	comp := newCompilation(c)

	outfile := filepath.Join(c.Options.Output.Path, c.Options.Output.Filename)
	result := api.Build(c.buildOptions(outfile))

	comp.Errors = append(comp.Errors, result.Errors...)
	comp.Warnings = append(comp.Warnings, result.Warnings...)

	for _, f := range result.OutputFiles {
		rel, err := filepath.Rel(c.Options.Output.Path, f.Path)
		if err != nil {
			rel = filepath.Base(f.Path)
		}
		rel = filepath.ToSlash(rel)
		c.OutputFS.WriteFile(f.Path, f.Contents)
		comp.Assets[rel] = Asset{Name: rel, Path: f.Path, Contents: f.Contents}
	}

	c.logger.Debug("Compilation finished",
		zap.String("compiler", c.Name),
		zap.Strings("entries", c.entries),
		zap.Int("assets", len(comp.Assets)),
		zap.Int("errors", len(comp.Errors)),
		zap.Int("warnings", len(comp.Warnings)))

	return comp, nil
}
