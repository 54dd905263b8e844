package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wehubfusion/Daedalus/pkg/entry"
	"github.com/wehubfusion/Daedalus/pkg/routes"
	"github.com/wehubfusion/Daedalus/pkg/strategy"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultFilename)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	t.Setenv("DAEDALUS_TEST_CONTAINER", "site")
	path := writeConfig(t, `
build:
  context: web
  entry:
    main: ./src/main.js
    vendor: [./src/polyfill.js, ./src/vendor.js]
  define:
    process.env.NODE_ENV: '"production"'
prerender:
  directive: PRERENDER
  as: string
  strategy:
    kind: process
    process:
      command: bun
      args: [index.js]
routes:
  template: web/index.html
  origin: https://example.com
  paths:
    - path: /
    - path: /about/
      params: {title: About}
      output_path: about.html
  azure:
    connection_string: AccountName=a;AccountKey=b
    container: ${DAEDALUS_TEST_CONTAINER}
tracing:
  enabled: true
  sample_ratio: 0.5
`)
	dir := filepath.Dir(path)

	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "web"), c.Build.Context)
	assert.Equal(t, []string{"main", "vendor"}, c.Build.Entry.Keys())
	assert.Equal(t, `"production"`, c.Build.Define["process.env.NODE_ENV"])

	assert.Equal(t, "PRERENDER", c.Prerender.Directive)
	assert.Equal(t, "string", c.Prerender.As)
	assert.Equal(t, strategy.KindProcess, c.Prerender.Strategy.Kind)
	assert.Equal(t, "bun", c.Prerender.Strategy.Process.Command)
	assert.Equal(t, dir, c.Prerender.CWD)

	want := []routes.Route{
		{Path: "/"},
		{Path: "/about/", Params: map[string]any{"title": "About"}, OutputPath: "about.html"},
	}
	if diff := cmp.Diff(want, c.Routes.Paths); diff != "" {
		t.Errorf("routes mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, filepath.Join(dir, "web", "index.html"), c.Routes.Template)
	assert.Equal(t, filepath.Join(dir, "web", "dist"), c.Routes.OutDir)
	require.NotNil(t, c.Routes.Azure)
	assert.Equal(t, "site", c.Routes.Azure.Container)

	assert.True(t, c.Tracing.Enabled)
	assert.Equal(t, 0.5, c.Tracing.SampleRatio)

	options, err := c.Build.Options()
	require.NoError(t, err)
	assert.Equal(t, "es2017", options.Target)
	assert.Equal(t, entry.KindMap, options.Entry.Kind())
}

func TestLoadRejectsInvalid(t *testing.T) {
	for name, content := range map[string]string{
		"target":     "build:\n  target: es1\n",
		"route path": "routes:\n  paths:\n    - params: {}\n",
		"azure":      "routes:\n  azure:\n    container: site\n",
		"yaml":       "build: [",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, content))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDefault(t *testing.T) {
	dir := t.TempDir()
	c := Default(dir)
	assert.Equal(t, dir, c.Build.Context)
	assert.Equal(t, filepath.Join(dir, "dist"), c.Routes.OutDir)
	assert.True(t, c.Build.Entry.IsZero())
}
