package prerender

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wehubfusion/Daedalus/pkg/build"
	"github.com/wehubfusion/Daedalus/pkg/concurrency"
	"github.com/wehubfusion/Daedalus/pkg/entry"
	perrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/strategy"
)

func writeApp(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	return dir
}

func parentFor(t *testing.T, dir string) *build.Compilation {
	t.Helper()
	compiler, err := build.NewCompiler("client", build.Options{
		Context: dir,
		Entry:   entry.Single(filepath.Join(dir, "app.js")),
	}, nil)
	require.NoError(t, err)
	return compiler.NewCompilation()
}

func newLoader(t *testing.T, options Options) *Loader {
	t.Helper()
	l, err := NewLoader(options, nil)
	require.NoError(t, err)
	return l
}

func TestLoadInjectsIntoDefaultDocument(t *testing.T) {
	dir := writeApp(t, map[string]string{
		"app.js": `export default "<p>hi</p>";`,
	})

	out, err := newLoader(t, Options{}).Load(context.Background(), parentFor(t, dir), "index.html", "")
	require.NoError(t, err)
	assert.Equal(t, "<!DOCTYPE html><html><head></head><body><p>hi</p></body></html>", out)
}

func TestLoadSubstitutesPlaceholder(t *testing.T) {
	dir := writeApp(t, map[string]string{
		"app.js": `export default "X";`,
	})

	out, err := newLoader(t, Options{}).Load(context.Background(), parentFor(t, dir), "fragment.txt", "prefix {{HTML}} suffix")
	require.NoError(t, err)
	assert.Equal(t, "prefix X suffix", out)
}

func TestLoadCompilationErrorWritesNothing(t *testing.T) {
	dir := writeApp(t, map[string]string{
		"app.js": "export default \"<p>hi\n",
	})
	parent := parentFor(t, dir)
	before, err := os.ReadDir(dir)
	require.NoError(t, err)

	out, err := newLoader(t, Options{}).Load(context.Background(), parent, "index.html", "")
	require.Error(t, err)
	assert.Empty(t, out)
	assert.True(t, perrors.IsCompilation(err))
	assert.Contains(t, err.Error(), "Unterminated string literal")

	after, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, len(before), len(after))

	children := parent.Children()
	require.Len(t, children, 1)
	assert.Empty(t, children[0].Compiler.OutputFS.Paths())
}

func TestLoadUsesContentAsTemplate(t *testing.T) {
	dir := writeApp(t, map[string]string{
		"app.js": `export default function () { return "<h1>" + document.title + "</h1>"; }`,
	})
	content := `<!doctype html><html><head><title>Docs</title></head><body><div id="root">{{HTML}}</div></body></html>`

	out, err := newLoader(t, Options{}).Load(context.Background(), parentFor(t, dir), "index.html", content)
	require.NoError(t, err)
	assert.Equal(t, `<!DOCTYPE html><html><head><title>Docs</title></head><body><div id="root"><h1>Docs</h1></div></body></html>`, out)
}

func TestLoadDirectiveOverridesEntry(t *testing.T) {
	dir := writeApp(t, map[string]string{
		"app.js":           `export default "from app";`,
		"pages/about.js":   `export function app(params) { return "about " + params.lang; }`,
		"pages/ignored.js": `export default "ignored";`,
	})

	l := newLoader(t, Options{
		Entry:        []string{"pages/ignored.js"},
		OverrideRoot: entry.RootContext,
		Params:       map[string]any{"lang": "en"},
	})
	out, err := l.Load(context.Background(), parentFor(t, dir), "about.txt", "[{{HTML: ./pages/about.js}}]")
	require.NoError(t, err)
	assert.Equal(t, "[about en]", out)

	out, err = l.Load(context.Background(), parentFor(t, dir), "other.txt", "[{{HTML}}]")
	require.NoError(t, err)
	assert.Equal(t, "[ignored]", out)
}

func TestLoadTemplateContentOption(t *testing.T) {
	dir := writeApp(t, map[string]string{
		"app.js": `export default "<main>page</main>";`,
	})

	l := newLoader(t, Options{
		TemplateContent: `<html><body><header></header><div data-prerender></div><footer></footer></body></html>`,
	})
	out, err := l.Load(context.Background(), parentFor(t, dir), "index.html", "ignored content")
	require.NoError(t, err)
	assert.Equal(t, `<!DOCTYPE html><html><head></head><body><header></header><main>page</main><footer></footer></body></html>`, out)
}

func TestLoadAsString(t *testing.T) {
	dir := writeApp(t, map[string]string{
		"app.js": `export default "<b>\"quoted\"</b>";`,
	})

	out, err := newLoader(t, Options{As: AsString}).Load(context.Background(), parentFor(t, dir), "x.txt", "{{HTML}}")
	require.NoError(t, err)
	assert.Equal(t, `export default "<b>\"quoted\"</b>"`, out)
}

func TestLoadDisabled(t *testing.T) {
	l := newLoader(t, Options{Disabled: true, As: AsString})
	out, err := l.Load(context.Background(), nil, "x.txt", "raw {{HTML}}")
	require.NoError(t, err)
	assert.Equal(t, `export default "raw {{HTML}}"`, out)
}

func TestLoadRequiresParent(t *testing.T) {
	_, err := newLoader(t, Options{}).Load(context.Background(), nil, "x", "")
	assert.True(t, perrors.IsConfiguration(err))
}

func TestLoadExecutionError(t *testing.T) {
	dir := writeApp(t, map[string]string{
		"app.js": `export default function () { throw new Error("nope"); }`,
	})

	_, err := newLoader(t, Options{}).Load(context.Background(), parentFor(t, dir), "index.html", "")
	require.Error(t, err)
	assert.True(t, perrors.IsExecution(err))
	assert.Contains(t, err.Error(), "nope")
}

func TestOptionsValidate(t *testing.T) {
	for _, options := range []Options{
		{As: "json"},
		{OverrideRoot: "home"},
		{Strategy: strategy.Config{Kind: "browser"}},
	} {
		_, err := NewLoader(options, nil)
		assert.True(t, perrors.IsConfiguration(err), "%+v", options)
	}
}

func TestBatchRendersEveryJob(t *testing.T) {
	dir := writeApp(t, map[string]string{
		"app.js": `export default "<i>page</i>";`,
	})
	parent := parentFor(t, dir)

	var jobs []Job
	for i := 0; i < 6; i++ {
		jobs = append(jobs, Job{Request: fmt.Sprintf("page-%d.txt", i), Content: fmt.Sprintf("%d:{{HTML}}", i)})
	}

	outcomes := newLoader(t, Options{}).Batch(context.Background(), parent, concurrency.NewLimiter(2, nil), jobs)
	require.Len(t, outcomes, 6)
	for i, o := range outcomes {
		require.NoError(t, o.Err)
		assert.Equal(t, fmt.Sprintf("page-%d.txt", i), o.Request)
		assert.Equal(t, fmt.Sprintf("%d:<i>page</i>", i), o.Output)
	}
	assert.Len(t, parent.Children(), 6)
}

func TestBatchStopsAfterRepeatedFailures(t *testing.T) {
	dir := writeApp(t, map[string]string{
		"app.js": `import "./missing.js"; export default "x";`,
	})

	jobs := make([]Job, 4)
	limiter := concurrency.NewLimiter(1, concurrency.NewBreaker(2, 0))
	outcomes := newLoader(t, Options{}).Batch(context.Background(), parentFor(t, dir), limiter, jobs)

	assert.True(t, perrors.IsCompilation(outcomes[0].Err))
	assert.True(t, perrors.IsCompilation(outcomes[1].Err))
	assert.ErrorIs(t, outcomes[2].Err, concurrency.ErrBreakerOpen)
	assert.ErrorIs(t, outcomes[3].Err, concurrency.ErrBreakerOpen)
}
