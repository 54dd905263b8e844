package build

import (
	"context"
	"errors"
	"os"
	"strings"

	"github.com/wehubfusion/Daedalus/pkg/entry"
	perrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"go.uber.org/zap"
)

const (
	// ChildCompilerName names the prerender sub-build
	ChildCompilerName = "prerender"

	// BundleFilename is the fixed name of the sub-build output asset
	BundleFilename = "ssg-bundle.js"

	// DefaultLibrary is the global the sub-build assigns its exports to
	DefaultLibrary = "__DAEDALUS_PRERENDER__"
)

// Artifact is the single compiled output of a sub-build
type Artifact struct {
	// Filename is the asset name inside the compilation
	Filename string

	// Source is the compiled bundle
	Source string

	// Library is the global name holding the bundle's exports after evaluation
	Library string

	// Assets holds every asset of the sub-build by name, including Filename
	Assets map[string]string
}

// RunnerConfig configures sub-compilations
type RunnerConfig struct {
	// Filename is the output asset name
	Filename string

	// Library is the exported global name
	Library string

	// AllowedCapabilities selects which parent plugins are re-applied
	AllowedCapabilities []string
}

// ApplyDefaults sets default values for configuration fields
func (c *RunnerConfig) ApplyDefaults() {
	if c.Filename == "" {
		c.Filename = BundleFilename
	}
	if c.Library == "" {
		c.Library = DefaultLibrary
	}
	if c.AllowedCapabilities == nil {
		c.AllowedCapabilities = []string{CapabilityCSSExtract}
	}
}

// Runner spawns prerender sub-builds from a running parent compilation
type Runner struct {
	config RunnerConfig
	logger *zap.Logger
}

// NewRunner creates a sub-compilation runner
func NewRunner(config RunnerConfig, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()
	return &Runner{config: config, logger: logger}
}

// Run compiles e as an isolated child of parent and returns its output asset. A nil artifact
// with a nil error means the sub-build produced no bundle.
func (r *Runner) Run(ctx context.Context, parent *Compilation, e entry.Entry) (*Artifact, error) {
	if parent == nil || parent.Compiler == nil {
		return nil, perrors.ConfigurationError("parent compilation is required")
	}
	root := RootCompiler(parent.Compiler)

	output := OutputOptions{
		Path:     os.TempDir(),
		Filename: r.config.Filename,
		Format:   FormatIIFE,
		Library:  r.config.Library,
		Platform: PlatformNode,
	}
	plugins := FilterPlugins(root.Options.Plugins, r.config.AllowedCapabilities)

	child := parent.CreateChildCompiler(ChildCompilerName, output, plugins)
	child.Options.Context = root.Options.Context
	child.ApplyEntry(e)

	r.logger.Debug("Starting child compilation",
		zap.String("context", child.Options.Context),
		zap.String("entry", e.String()),
		zap.Int("plugins", len(plugins)))

	compilation, err := runChildCompiler(ctx, child)
	if err != nil {
		return nil, err
	}

	asset, ok := compilation.Assets[r.config.Filename]
	if !ok {
		r.logger.Warn("Child compilation produced no bundle",
			zap.String("filename", r.config.Filename))
		return nil, nil
	}

	assets := make(map[string]string, len(compilation.Assets))
	for name, a := range compilation.Assets {
		assets[name] = a.Source()
	}

	return &Artifact{
		Filename: r.config.Filename,
		Source:   asset.Source(),
		Library:  r.config.Library,
		Assets:   assets,
	}, nil
}

// runChildCompiler compiles and registers the result with the parent before looking at
// diagnostics, so the parent tracks the child even when it failed.
func runChildCompiler(ctx context.Context, compiler *Compiler) (*Compilation, error) {
	compilation, err := compiler.Compile(ctx)
	if compilation != nil && compiler.ParentCompilation != nil {
		compiler.ParentCompilation.AddChild(compilation)
	}
	if err != nil {
		var typed *perrors.Error
		if errors.As(err, &typed) {
			return nil, err
		}
		return nil, perrors.NewError(perrors.CodeCompilation, "child compilation", err)
	}

	if compilation.HasErrors() {
		details := FormatDiagnostics(compilation.Errors)
		return nil, perrors.CompilationError(strings.Join(details, "\n"))
	}

	return compilation, nil
}
