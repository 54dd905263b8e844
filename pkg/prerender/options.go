package prerender

import (
	"fmt"
	"os"

	"github.com/wehubfusion/Daedalus/pkg/entry"
	perrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/strategy"
)

// AsString makes Load return a JS module whose default export is the rendered text
const AsString = "string"

// Options configures a Loader
type Options struct {
	// Entry overrides the parent's entry. With several items the last one is used. A path in
	// the directive token wins over this option.
	Entry []string `json:"entry,omitempty" yaml:"entry,omitempty"`

	// TemplateContent is the document the render is injected into. When empty, the loaded
	// content itself is used if it is a full HTML document.
	TemplateContent string `json:"template_content,omitempty" yaml:"template_content,omitempty"`

	// Params is passed to the render function when the bundle exports one
	Params any `json:"params,omitempty" yaml:"params,omitempty"`

	// DocumentURL is the location scripts see
	DocumentURL string `json:"document_url,omitempty" yaml:"document_url,omitempty"`

	// Disabled skips rendering and returns the content unchanged
	Disabled bool `json:"disabled,omitempty" yaml:"disabled,omitempty"`

	// As selects the output form: "" for markup, AsString for a JS module
	As string `json:"as,omitempty" yaml:"as,omitempty"`

	// Directive is the placeholder name, HTML by default
	Directive string `json:"directive,omitempty" yaml:"directive,omitempty"`

	// OverrideRoot decides what an entry override is relative to
	OverrideRoot entry.OverrideRoot `json:"override_root,omitempty" yaml:"override_root,omitempty"`

	// AllowedCapabilities selects which parent plugins the sub-build re-applies
	AllowedCapabilities []string `json:"allowed_capabilities,omitempty" yaml:"allowed_capabilities,omitempty"`

	// Strategy selects in-process or external execution
	Strategy strategy.Config `json:"strategy,omitempty" yaml:"strategy,omitempty"`

	// CWD is the working directory RootCWD overrides resolve from
	CWD string `json:"cwd,omitempty" yaml:"cwd,omitempty"`
}

// ApplyDefaults sets default values for configuration fields
func (o *Options) ApplyDefaults() {
	if o.Directive == "" {
		o.Directive = entry.DefaultDirective
	}
	if o.OverrideRoot == "" {
		o.OverrideRoot = entry.RootCWD
	}
	if o.CWD == "" {
		if wd, err := os.Getwd(); err == nil {
			o.CWD = wd
		}
	}
	o.Strategy.ApplyDefaults()
}

// Validate checks if the configuration is valid
func (o *Options) Validate() error {
	switch o.As {
	case "", AsString:
	default:
		return perrors.ConfigurationError(fmt.Sprintf("invalid output form %q", o.As))
	}
	switch o.OverrideRoot {
	case entry.RootCWD, entry.RootContext:
	default:
		return perrors.ConfigurationError(fmt.Sprintf("invalid override root %q", o.OverrideRoot))
	}
	if err := o.Strategy.Validate(); err != nil {
		return perrors.NewError(perrors.CodeConfiguration, "invalid strategy", err)
	}
	return nil
}
