package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeProject(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRenderTemplate(t *testing.T) {
	dir := writeProject(t, map[string]string{
		"daedalus.yaml": "build:\n  entry: ./src/app.js\n",
		"src/app.js":    `export default function (p) { return "<h1>" + p.name + "</h1>"; }`,
		"index.html":    `<html><head><title>t</title></head><body><div id="app">{{HTML}}</div></body></html>`,
	})

	out, err := execute(t, "render", "--config", filepath.Join(dir, "daedalus.yaml"),
		"--params", `{"name":"Ada"}`, filepath.Join(dir, "index.html"))
	require.NoError(t, err)
	assert.Equal(t, `<!DOCTYPE html><html><head><title>t</title></head><body><div id="app"><h1>Ada</h1></div></body></html>`, out)
}

func TestRenderWritesFile(t *testing.T) {
	dir := writeProject(t, map[string]string{
		"daedalus.yaml": "build:\n  entry: ./app.js\nprerender:\n  as: string\n",
		"app.js":        `export default "<p>hi</p>";`,
	})
	dest := filepath.Join(dir, "out", "page.js")

	_, err := execute(t, "render", "-c", filepath.Join(dir, "daedalus.yaml"), "-o", dest)
	require.NoError(t, err)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, `export default "<!DOCTYPE html><html><head></head><body><p>hi</p></body></html>"`, string(data))
}

func TestRenderFailsOnCompileError(t *testing.T) {
	dir := writeProject(t, map[string]string{
		"daedalus.yaml": "build:\n  entry: ./app.js\n",
		"app.js":        "export default \"<p>hi\n",
	})

	_, err := execute(t, "render", "-c", filepath.Join(dir, "daedalus.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unterminated string literal")
}

func TestRoutesEmitsEachPage(t *testing.T) {
	dir := writeProject(t, map[string]string{
		"daedalus.yaml": `
build:
  entry: ./app.js
routes:
  template: shell.html
  paths:
    - path: /
    - path: /docs/
`,
		"app.js":     `export default function () { return "<main>" + location.pathname + "</main>"; }`,
		"shell.html": `<html><body><div data-prerender></div></body></html>`,
	})

	out, err := execute(t, "routes", "-c", filepath.Join(dir, "daedalus.yaml"), "--route", "/broken/../blog/")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "rendered 3/3 routes\n"), out)

	data, err := os.ReadFile(filepath.Join(dir, "dist", "docs", "index.html"))
	require.NoError(t, err)
	assert.Equal(t, "<!DOCTYPE html><html><head></head><body><main>/docs/</main></body></html>", string(data))

	_, err = os.Stat(filepath.Join(dir, "dist", "index.html"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "dist", "blog", "index.html"))
	assert.NoError(t, err)
}

func TestRoutesContinuesPastFailures(t *testing.T) {
	dir := writeProject(t, map[string]string{
		"daedalus.yaml": "build:\n  entry: ./app.js\nroutes:\n  paths: [{path: /}, {path: /bad/}]\n",
		"app.js":        `export default function () { if (location.pathname === "/bad/") throw new Error("bad"); return "ok"; }`,
	})

	out, err := execute(t, "routes", "-c", filepath.Join(dir, "daedalus.yaml"))
	require.NoError(t, err)
	assert.Contains(t, out, "rendered 1/2 routes")
}

func TestRoutesRequiresRoutes(t *testing.T) {
	dir := writeProject(t, map[string]string{
		"daedalus.yaml": "build:\n  entry: ./app.js\n",
		"app.js":        `export default "x";`,
	})
	_, err := execute(t, "routes", "-c", filepath.Join(dir, "daedalus.yaml"))
	assert.ErrorContains(t, err, "no routes configured")
}
