// Package config loads the daedalus.yaml file read by the CLI
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/wehubfusion/Daedalus/internal/tracing"
	"github.com/wehubfusion/Daedalus/pkg/build"
	"github.com/wehubfusion/Daedalus/pkg/entry"
	"github.com/wehubfusion/Daedalus/pkg/prerender"
	"github.com/wehubfusion/Daedalus/pkg/routes"
	"gopkg.in/yaml.v3"
)

// DefaultFilename is looked up in the working directory when no file is given
const DefaultFilename = "daedalus.yaml"

// Config is the CLI configuration file
type Config struct {
	Build     Build             `yaml:"build"`
	Prerender prerender.Options `yaml:"prerender"`
	Routes    Routes            `yaml:"routes"`
	Tracing   tracing.Config    `yaml:"tracing"`
	Sentry    Sentry            `yaml:"sentry"`
}

// Build describes the client application build
type Build struct {
	Context  string            `yaml:"context"`
	Entry    entry.Entry       `yaml:"entry"`
	Define   map[string]string `yaml:"define,omitempty"`
	Loaders  map[string]string `yaml:"loaders,omitempty"`
	External []string          `yaml:"external,omitempty"`
	Target   string            `yaml:"target,omitempty"`
}

// Routes configures the route phase
type Routes struct {
	Paths    []routes.Route `yaml:"paths"`
	Template string         `yaml:"template,omitempty"` // template file
	Origin   string         `yaml:"origin,omitempty"`
	OutDir   string         `yaml:"out_dir,omitempty"`
	Azure    *Azure         `yaml:"azure,omitempty"`
}

// Azure selects blob storage emission instead of the output directory
type Azure struct {
	ConnectionString string `yaml:"connection_string"`
	Container        string `yaml:"container"`
	Prefix           string `yaml:"prefix,omitempty"`
}

// Sentry enables failure reporting when DSN is set
type Sentry struct {
	DSN         string `yaml:"dsn,omitempty"`
	Environment string `yaml:"environment,omitempty"`
}

// Load reads path. Environment variables in the file are expanded, and relative paths are
// resolved against the file's directory.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(b))), &c); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	c.resolve(filepath.Dir(abs))
	return &c, c.Validate()
}

// Default returns the configuration used when no file exists: the working directory as the
// build context.
func Default(dir string) *Config {
	c := &Config{}
	c.resolve(dir)
	return c
}

func (c *Config) resolve(dir string) {
	c.Build.Context = under(dir, c.Build.Context)
	if c.Routes.Template != "" {
		c.Routes.Template = under(dir, c.Routes.Template)
	}
	c.Routes.OutDir = under(c.Build.Context, orDefault(c.Routes.OutDir, "dist"))
	if c.Prerender.CWD == "" {
		c.Prerender.CWD = dir
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if _, err := c.Build.Options(); err != nil {
		return err
	}
	if az := c.Routes.Azure; az != nil && (az.ConnectionString == "" || az.Container == "") {
		return fmt.Errorf("routes.azure needs connection_string and container")
	}
	for i, r := range c.Routes.Paths {
		if r.Path == "" {
			return fmt.Errorf("routes.paths[%d]: path is required", i)
		}
	}
	return nil
}

// Options returns validated compiler options
func (b Build) Options() (build.Options, error) {
	o := build.Options{
		Context:  b.Context,
		Entry:    b.Entry,
		Define:   b.Define,
		Loaders:  b.Loaders,
		External: b.External,
		Target:   b.Target,
	}
	o.ApplyDefaults()
	if err := o.Validate(); err != nil {
		return build.Options{}, fmt.Errorf("invalid build config: %w", err)
	}
	return o, nil
}

func under(dir, p string) string {
	if p == "" {
		return dir
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(dir, p)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
