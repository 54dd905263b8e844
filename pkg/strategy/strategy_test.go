package strategy

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wehubfusion/Daedalus/pkg/build"
	"github.com/wehubfusion/Daedalus/pkg/entry"
	perrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/sandbox"
)

func bundle(src string) *build.Artifact {
	return &build.Artifact{
		Filename: build.BundleFilename,
		Source:   "var LIB = " + src + ";",
		Library:  "LIB",
		Assets:   map[string]string{build.BundleFilename: "var LIB = " + src + ";"},
	}
}

func TestNewSelectsStrategy(t *testing.T) {
	s, err := New(Config{}, nil)
	require.NoError(t, err)
	assert.Equal(t, KindSandbox, s.Name())

	s, err = New(Config{Kind: KindProcess}, nil)
	require.NoError(t, err)
	assert.Equal(t, KindProcess, s.Name())
	assert.Equal(t, "node", s.(*Process).config.Command)

	_, err = New(Config{Kind: "browser"}, nil)
	assert.Error(t, err)
}

func TestInProcessInjectsIntoTemplate(t *testing.T) {
	s := NewInProcess(sandbox.Config{}, nil)
	res, err := s.Execute(context.Background(), bundle(`{ default: function () { return "<h1>" + document.title + "</h1>"; } }`), Request{
		Template: `<html><head><title>Home</title></head><body><main><div data-prerender></div></main></body></html>`,
	})
	require.NoError(t, err)
	assert.True(t, res.Inserted)

	out, err := res.Output()
	require.NoError(t, err)
	assert.Equal(t, `<!DOCTYPE html><html><head><title>Home</title></head><body><main><h1>Home</h1></main></body></html>`, out)
}

func TestInProcessPlaceholderPath(t *testing.T) {
	source := `<section>{{HTML}}</section>`
	d, ok := entry.ParseDirective(entry.DefaultDirective, source)
	require.True(t, ok)

	s := NewInProcess(sandbox.Config{}, nil)
	res, err := s.Execute(context.Background(), bundle(`{ app: function (p) { return "<b>" + p.user + "</b>"; } }`), Request{
		Source:    source,
		Directive: &d,
		Params:    map[string]any{"user": "ada"},
		HasParams: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "<section><b>ada</b></section>", res.Markup)
	assert.Nil(t, res.Document)
}

func TestInProcessInsertsAfterScriptRemovesNextSibling(t *testing.T) {
	s := NewInProcess(sandbox.Config{}, nil)
	res, err := s.Execute(context.Background(), bundle(`function () { document.getElementById("keep").remove(); return "<i>new</i>"; }`), Request{
		Template: `<html><head></head><body><div data-prerender></div><p id="keep">k</p><p id="after">a</p></body></html>`,
	})
	require.NoError(t, err)

	out, err := res.Output()
	require.NoError(t, err)
	assert.Equal(t, `<!DOCTYPE html><html><head></head><body><p id="after">a</p><i>new</i></body></html>`, out)
}

func TestInProcessFallsBackToBodyWhenParentRemoved(t *testing.T) {
	s := NewInProcess(sandbox.Config{}, nil)
	res, err := s.Execute(context.Background(), bundle(`function () { document.querySelector("main").remove(); return "<i>new</i>"; }`), Request{
		Template: `<html><head></head><body><main><div data-prerender></div></main><footer></footer></body></html>`,
	})
	require.NoError(t, err)

	out, err := res.Output()
	require.NoError(t, err)
	assert.Equal(t, `<!DOCTYPE html><html><head></head><body><footer></footer><i>new</i></body></html>`, out)
}

func TestInProcessDocumentURL(t *testing.T) {
	s := NewInProcess(sandbox.Config{}, nil)
	res, err := s.Execute(context.Background(), bundle(`function () { return location.pathname; }`), Request{
		DocumentURL: "https://example.com/about/",
	})
	require.NoError(t, err)
	out, err := res.Output()
	require.NoError(t, err)
	assert.Contains(t, out, "<body>/about/</body>")
}

func TestInProcessNilArtifactIsEmptyRender(t *testing.T) {
	s := NewInProcess(sandbox.Config{}, nil)
	res, err := s.Execute(context.Background(), nil, Request{Template: `<body><p data-prerender></p></body>`})
	require.NoError(t, err)
	assert.False(t, res.Inserted)
	out, err := res.Output()
	require.NoError(t, err)
	assert.Equal(t, "<!DOCTYPE html><html><head></head><body></body></html>", out)
}

func TestInProcessPropagatesErrors(t *testing.T) {
	s := NewInProcess(sandbox.Config{}, nil)
	_, err := s.Execute(context.Background(), bundle(`require("./missing")`), Request{})
	assert.True(t, perrors.IsModuleResolution(err))
}

func TestWorkspaceLifecycle(t *testing.T) {
	root := t.TempDir()
	ws, err := NewWorkspace(root)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(filepath.Base(ws.Dir), "ssg-"))

	require.NoError(t, ws.WriteFile("chunks/a.js", []byte("a")))
	data, err := os.ReadFile(filepath.Join(ws.Dir, "chunks", "a.js"))
	require.NoError(t, err)
	assert.Equal(t, "a", string(data))

	assert.Error(t, ws.WriteFile("../escape.js", []byte("x")))

	other, err := NewWorkspace(root)
	require.NoError(t, err)
	assert.NotEqual(t, ws.Dir, other.Dir)

	require.NoError(t, ws.Remove())
	_, err = os.Stat(ws.Dir)
	assert.True(t, os.IsNotExist(err))
}

func TestProcessWorkspaceExistsOnlyDuringRun(t *testing.T) {
	root := t.TempDir()
	p := NewProcess(ProcessConfig{
		Command: "sh",
		Args:    []string{"-c", `test -f index.js && test -f ssg-source.js && test -f ssg-params.json && pwd`},
		Root:    root,
	}, nil)

	res, err := p.Execute(context.Background(), bundle(`"unused"`), Request{Template: "{{HTML}}"})
	require.NoError(t, err)

	dir := strings.TrimSpace(res.Markup)
	assert.Equal(t, root, filepath.Dir(dir))
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestProcessWorkspaceRemovedOnFailure(t *testing.T) {
	root := t.TempDir()
	p := NewProcess(ProcessConfig{
		Command: "sh",
		Args:    []string{"-c", "echo broken >&2; exit 3"},
		Root:    root,
	}, nil)

	_, err := p.Execute(context.Background(), bundle(`"unused"`), Request{})
	require.Error(t, err)
	assert.True(t, perrors.IsProcessExit(err))
	assert.Contains(t, err.Error(), `sh -c echo broken >&2; exit 3`)
	assert.Contains(t, err.Error(), "broken")

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestProcessSubstitutesStdout(t *testing.T) {
	p := NewProcess(ProcessConfig{
		Command: "sh",
		Args:    []string{"-c", "printf '<p>from process</p>'"},
		Root:    t.TempDir(),
	}, nil)

	res, err := p.Execute(context.Background(), bundle(`"unused"`), Request{
		Template: `<html><body><div id="app">{{HTML}}</div></body></html>`,
	})
	require.NoError(t, err)
	assert.Equal(t, `<html><body><div id="app"><p>from process</p></div></body></html>`, res.Markup)

	res, err = p.Execute(context.Background(), bundle(`"unused"`), Request{})
	require.NoError(t, err)
	out, err := res.Output()
	require.NoError(t, err)
	assert.Equal(t, `<!DOCTYPE html><html><head></head><body><p>from process</p></body></html>`, out)
}

func TestProcessMissingCommandFailsBeforeSpawn(t *testing.T) {
	root := t.TempDir()
	for _, config := range []ProcessConfig{
		{Args: []string{"index.js"}, Root: root},
		{Command: "node", Root: root},
	} {
		_, err := NewProcess(config, nil).Execute(context.Background(), bundle(`"x"`), Request{})
		assert.True(t, perrors.IsConfiguration(err))
	}
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestProcessRunnerScriptAndParams(t *testing.T) {
	root := t.TempDir()
	p := NewProcess(ProcessConfig{
		Command: "sh",
		Args:    []string{"-c", "cat ssg-params.json; echo; tail -n 1 ssg-source.js; grep -c best index.js"},
		Root:    root,
	}, nil)

	res, err := p.Execute(context.Background(), bundle(`"x"`), Request{
		Template:  "{{HTML}}",
		Params:    map[string]any{"page": 2},
		HasParams: true,
	})
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(res.Markup), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, `[{"page":2}]`, lines[0])
	assert.Equal(t, "module.exports = LIB;", lines[1])
	assert.Equal(t, "2", lines[2])
}
