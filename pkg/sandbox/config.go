package sandbox

import (
	"fmt"
	"net/url"

	"github.com/dop251/goja"
	"go.uber.org/zap"
)

// DefaultDocumentURL is the location reported to scripts when none is configured
const DefaultDocumentURL = "http://localhost/"

// DefaultUserAgent is reported by navigator.userAgent
const DefaultUserAgent = "Mozilla/5.0 (Daedalus) AppleWebKit/537.36 (KHTML, like Gecko)"

// Surface enumerates the browser capabilities stubbed into each sandbox. Every stub is inert:
// enough for typical client entry points to load and render, nothing more.
type Surface struct {
	// AnimationFrame installs requestAnimationFrame returning an incrementing id; callbacks
	// are never invoked
	AnimationFrame bool `json:"animation_frame" yaml:"animation_frame"`

	// CustomElements installs an inert customElements registry
	CustomElements bool `json:"custom_elements" yaml:"custom_elements"`

	// MessagePort installs MessageChannel producing a pair of inert event targets
	MessagePort bool `json:"message_port" yaml:"message_port"`

	// MediaQuery installs matchMedia returning a never-matching, listener-only query list
	MediaQuery bool `json:"media_query" yaml:"media_query"`

	// ServiceWorker installs navigator.serviceWorker whose promises never settle
	ServiceWorker bool `json:"service_worker" yaml:"service_worker"`

	// Timers installs setTimeout and friends on a virtual clock drained while awaiting
	Timers bool `json:"timers" yaml:"timers"`

	// Console forwards console.* to the sandbox logger
	Console bool `json:"console" yaml:"console"`
}

// DefaultSurface enables every stub
func DefaultSurface() Surface {
	return Surface{
		AnimationFrame: true,
		CustomElements: true,
		MessagePort:    true,
		MediaQuery:     true,
		ServiceWorker:  true,
		Timers:         true,
		Console:        true,
	}
}

// HostModule builds the exports of a module provided by the host
type HostModule func(vm *goja.Runtime) goja.Value

// Config represents the configuration of one sandbox
type Config struct {
	// DocumentURL is exposed as document.URL and window.location
	DocumentURL string `json:"document_url,omitempty" yaml:"document_url,omitempty"`

	// UserAgent is exposed as navigator.userAgent
	UserAgent string `json:"user_agent,omitempty" yaml:"user_agent,omitempty"`

	// Env is exposed as process.env
	Env map[string]string `json:"env,omitempty" yaml:"env,omitempty"`

	// Surface selects the stubbed browser capabilities. Nil means DefaultSurface.
	Surface *Surface `json:"surface,omitempty" yaml:"surface,omitempty"`

	// HostModules are resolvable through require when the bundle does not contain them
	HostModules map[string]HostModule `json:"-" yaml:"-"`

	// MaxConsoleEntries bounds the captured console output
	MaxConsoleEntries int `json:"max_console_entries,omitempty" yaml:"max_console_entries,omitempty"`

	// Logger receives console output and sandbox diagnostics
	Logger *zap.Logger `json:"-" yaml:"-"`
}

// ApplyDefaults sets default values for configuration fields
func (c *Config) ApplyDefaults() {
	if c.DocumentURL == "" {
		c.DocumentURL = DefaultDocumentURL
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.Env == nil {
		c.Env = map[string]string{"NODE_ENV": "production"}
	}
	if c.Surface == nil {
		s := DefaultSurface()
		c.Surface = &s
	}
	if c.MaxConsoleEntries == 0 {
		c.MaxConsoleEntries = 1000
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	u, err := url.Parse(c.DocumentURL)
	if err != nil {
		return fmt.Errorf("invalid document url: %w", err)
	}
	if !u.IsAbs() {
		return fmt.Errorf("document url must be absolute: %s", c.DocumentURL)
	}
	if c.MaxConsoleEntries < 0 {
		return fmt.Errorf("max_console_entries must not be negative")
	}
	return nil
}
