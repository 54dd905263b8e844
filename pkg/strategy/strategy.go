// Package strategy executes a prerender bundle and produces the rendered output. Two
// implementations exist: InProcess evaluates the bundle in a sandbox against a synthetic
// document; Process runs it in an external program and captures its standard output.
package strategy

import (
	"context"
	"fmt"

	"github.com/wehubfusion/Daedalus/pkg/build"
	"github.com/wehubfusion/Daedalus/pkg/document"
	"github.com/wehubfusion/Daedalus/pkg/entry"
	"github.com/wehubfusion/Daedalus/pkg/sandbox"
	"go.uber.org/zap"
)

const (
	// KindSandbox selects InProcess
	KindSandbox = "sandbox"

	// KindProcess selects Process
	KindProcess = "process"
)

// Request describes one render
type Request struct {
	// Template is the document rendered output is injected into. Empty means
	// document.DefaultTemplate.
	Template string

	// Source is the content whose directive token is substituted on the placeholder path
	Source string

	// Directive, when set, selects the placeholder path: the rendered markup replaces the
	// directive token in Source instead of being injected into a document
	Directive *entry.Directive

	// DirectiveName is the placeholder name recognized in templates
	DirectiveName string

	// Params is passed to a callable render export when HasParams is set
	Params    any
	HasParams bool

	// DocumentURL is the location the document reports to scripts
	DocumentURL string
}

func (r Request) directiveName() string {
	if r.DirectiveName == "" {
		return entry.DefaultDirective
	}
	return r.DirectiveName
}

func (r Request) params() []any {
	if !r.HasParams {
		return nil
	}
	return []any{r.Params}
}

// Result is either substituted markup or a document with the render injected
type Result struct {
	Markup   string
	Document *document.Document
	Inserted bool
}

// Output returns the final text: the serialized document, or the markup
func (r Result) Output() (string, error) {
	if r.Document != nil {
		return r.Document.Serialize()
	}
	return r.Markup, nil
}

// Strategy executes an artifact. A nil artifact is an empty render: the template or source is
// returned with its directive resolved and nothing injected.
type Strategy interface {
	Name() string
	Execute(ctx context.Context, artifact *build.Artifact, req Request) (Result, error)
}

// Config selects and configures a strategy
type Config struct {
	Kind    string         `json:"kind,omitempty" yaml:"kind,omitempty"`
	Sandbox sandbox.Config `json:"sandbox,omitempty" yaml:"sandbox,omitempty"`
	Process ProcessConfig  `json:"process,omitempty" yaml:"process,omitempty"`
}

// ApplyDefaults sets default values for configuration fields
func (c *Config) ApplyDefaults() {
	if c.Kind == "" {
		c.Kind = KindSandbox
	}
	if c.Kind == KindProcess {
		c.Process.ApplyDefaults()
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Kind {
	case KindSandbox:
		return nil
	case KindProcess:
		return c.Process.Validate()
	default:
		return fmt.Errorf("unknown strategy %q (expected %q or %q)", c.Kind, KindSandbox, KindProcess)
	}
}

// New builds the strategy config selects
func New(config Config, logger *zap.Logger) (Strategy, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	switch config.Kind {
	case KindProcess:
		return NewProcess(config.Process, logger), nil
	default:
		return NewInProcess(config.Sandbox, logger), nil
	}
}
