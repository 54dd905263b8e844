package build

import (
	"sync"

	"github.com/evanw/esbuild/pkg/api"
	"go.uber.org/zap"
)

// Asset is one output file of a compilation
type Asset struct {
	Name     string
	Path     string
	Contents []byte
}

// Source returns the asset contents as text
func (a Asset) Source() string {
	return string(a.Contents)
}

// Compilation is the result of one compiler run. Its children list only grows, and loader
// invocations running concurrently may append to it.
type Compilation struct {
	Compiler *Compiler
	Assets   map[string]Asset
	Errors   []api.Message
	Warnings []api.Message

	mu       sync.Mutex
	children []*Compilation
}

func newCompilation(c *Compiler) *Compilation {
	return &Compilation{
		Compiler: c,
		Assets:   make(map[string]Asset),
	}
}

// AddChild records a child compilation
func (c *Compilation) AddChild(child *Compilation) {
	c.mu.Lock()
	c.children = append(c.children, child)
	c.mu.Unlock()
}

// Children returns a snapshot of the recorded child compilations
func (c *Compilation) Children() []*Compilation {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Compilation, len(c.children))
	copy(out, c.children)
	return out
}

// CreateChildCompiler creates an isolated compiler that inherits the build context, defines,
// loaders and target of the compilation's compiler, writes only to its own MemFS, and runs
// with the given plugins rather than the parent's.
func (c *Compilation) CreateChildCompiler(name string, output OutputOptions, plugins []Plugin) *Compiler {
	parent := c.Compiler
	opts := Options{
		Output:  output,
		Plugins: plugins,
		Target:  "es2017",
	}
	logger := zap.NewNop()
	if parent != nil {
		logger = parent.logger
		opts.Context = parent.Options.Context
		opts.Define = parent.Options.Define
		opts.Loaders = parent.Options.Loaders
		opts.External = parent.Options.External
		opts.Target = parent.Options.Target
	}
	return &Compiler{
		Name:              name,
		Options:           opts,
		OutputFS:          NewMemFS(),
		ParentCompilation: c,
		logger:            logger,
	}
}

// HasErrors reports whether the compilation recorded any error diagnostics
func (c *Compilation) HasErrors() bool {
	return len(c.Errors) > 0
}
