package sandbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wehubfusion/Daedalus/pkg/build"
	"github.com/wehubfusion/Daedalus/pkg/document"
	"github.com/wehubfusion/Daedalus/pkg/entry"
	perrors "github.com/wehubfusion/Daedalus/pkg/errors"
)

func newSandbox(t *testing.T, template string, config Config) *Sandbox {
	t.Helper()
	doc, err := document.Parse(template, entry.Pattern(entry.DefaultDirective))
	require.NoError(t, err)
	s, err := New(doc, config)
	require.NoError(t, err)
	return s
}

func artifact(expr string, assets map[string]string) *build.Artifact {
	return &build.Artifact{
		Filename: "test.js",
		Source:   "var LIB = " + expr + ";",
		Library:  "LIB",
		Assets:   assets,
	}
}

func evaluate(t *testing.T, s *Sandbox, expr string) goja.Value {
	t.Helper()
	v, err := s.Evaluate(context.Background(), artifact(expr, nil))
	require.NoError(t, err)
	return v
}

func TestDOMManipulation(t *testing.T) {
	s := newSandbox(t, "", Config{})
	v := evaluate(t, s, `(function () {
		var d = document.createElement("div");
		d.setAttribute("id", "x");
		d.textContent = "hi";
		document.body.appendChild(d);
		return document.body.innerHTML;
	})()`)
	assert.Equal(t, `<div id="x">hi</div>`, v.String())

	out, err := s.Document().Serialize()
	require.NoError(t, err)
	assert.Contains(t, out, `<body><div id="x">hi</div></body>`)
}

func TestDOMQueriesAndIdentity(t *testing.T) {
	s := newSandbox(t, `<html><body><ul><li class="a">1</li><li class="b">2</li></ul></body></html>`, Config{})

	assert.Equal(t, int64(2), evaluate(t, s, `document.querySelectorAll("li").length`).ToInteger())
	assert.Equal(t, "2", evaluate(t, s, `document.querySelector(".b").textContent`).String())
	assert.True(t, evaluate(t, s, `document.body === document.body`).ToBoolean())
	assert.True(t, evaluate(t, s, `document.querySelector("li").parentNode === document.querySelector("ul")`).ToBoolean())
	assert.Equal(t, "LI", evaluate(t, s, `document.getElementsByClassName("a")[0].tagName`).String())
}

func TestDOMExpandoProperties(t *testing.T) {
	s := newSandbox(t, "", Config{})
	v := evaluate(t, s, `(function () {
		document.body.__app = { mounted: true };
		return document.body.__app.mounted;
	})()`)
	assert.True(t, v.ToBoolean())
}

func TestInnerHTMLAndFragments(t *testing.T) {
	s := newSandbox(t, "", Config{})
	v := evaluate(t, s, `(function () {
		var f = document.createDocumentFragment();
		f.appendChild(document.createElement("a"));
		f.appendChild(document.createTextNode("t"));
		document.body.appendChild(f);
		var main = document.createElement("main");
		main.innerHTML = "<p>one</p><p>two</p>";
		document.body.appendChild(main);
		return [f.childNodes.length, main.children.length, document.body.childNodes.length].join(",");
	})()`)
	assert.Equal(t, "0,2,3", v.String())
}

func TestInvalidSelectorThrows(t *testing.T) {
	s := newSandbox(t, "", Config{})
	_, err := s.Evaluate(context.Background(), artifact(`document.querySelector("[[")`, nil))
	require.Error(t, err)
	assert.True(t, perrors.IsExecution(err))
}

func TestAwaitDrivesVirtualTimers(t *testing.T) {
	s := newSandbox(t, "", Config{})
	v := evaluate(t, s, `new Promise(function (resolve) {
		setTimeout(function () { resolve("late"); }, 60000);
		setTimeout(function () { resolve("early"); }, 10);
	})`)

	start := time.Now()
	got, err := s.Await(context.Background(), v)
	require.NoError(t, err)
	assert.Equal(t, "early", got.String())
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestAwaitWatchesContextOncePerCall(t *testing.T) {
	s := newSandbox(t, "", Config{})
	v := evaluate(t, s, `new Promise(function (resolve) {
		var n = 0;
		var id = setInterval(function () {
			if (++n === 1000) { clearInterval(id); resolve(n); }
		}, 1);
	})`)

	got, err := s.Await(context.Background(), v)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), got.ToInteger())
	assert.Equal(t, 2, s.watchers)
}

func TestAwaitInterruptedBetweenTimers(t *testing.T) {
	s := newSandbox(t, "", Config{})
	v := evaluate(t, s, `new Promise(function () {
		setInterval(function () { var x = 0; for (var i = 0; i < 1000; i++) { x += i; } }, 1);
	})`)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := s.Await(ctx, v)
	require.Error(t, err)
	assert.True(t, perrors.IsExecution(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAwaitChainedAndAsync(t *testing.T) {
	s := newSandbox(t, "", Config{})
	v := evaluate(t, s, `(async function () {
		await new Promise(function (r) { setTimeout(r, 100); });
		return "<p>" + (await Promise.resolve("async")) + "</p>";
	})()`)
	got, err := s.Await(context.Background(), v)
	require.NoError(t, err)
	assert.Equal(t, "<p>async</p>", got.String())
}

func TestAwaitForeignThenable(t *testing.T) {
	s := newSandbox(t, "", Config{})
	v := evaluate(t, s, `{ then: function (resolve) { resolve("adopted"); } }`)
	got, err := s.Await(context.Background(), v)
	require.NoError(t, err)
	assert.Equal(t, "adopted", got.String())
}

func TestAwaitNonThenablePassesThrough(t *testing.T) {
	s := newSandbox(t, "", Config{})
	v := evaluate(t, s, `"plain"`)
	got, err := s.Await(context.Background(), v)
	require.NoError(t, err)
	assert.Equal(t, "plain", got.String())
}

func TestAwaitRejection(t *testing.T) {
	s := newSandbox(t, "", Config{})
	v := evaluate(t, s, `Promise.reject(new Error("nope"))`)
	_, err := s.Await(context.Background(), v)
	require.Error(t, err)
	assert.True(t, perrors.IsRender(err))
	assert.Contains(t, err.Error(), "nope")
}

func TestNeverSettlingStubStalls(t *testing.T) {
	for _, expr := range []string{
		`customElements.whenDefined("x-el")`,
		`(async function () { await navigator.serviceWorker.register("/sw.js"); return "unreachable"; })()`,
	} {
		s := newSandbox(t, "", Config{})
		v := evaluate(t, s, expr)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		_, err := s.Await(ctx, v)
		cancel()
		require.Error(t, err, expr)
		assert.True(t, perrors.IsExecution(err))
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	}
}

func TestRunawayScriptInterrupted(t *testing.T) {
	s := newSandbox(t, "", Config{})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := s.Evaluate(ctx, &build.Artifact{Filename: "loop.js", Source: "while (true) {}", Library: "LIB"})
	require.Error(t, err)
	assert.True(t, perrors.IsExecution(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestScriptErrorCarriesStack(t *testing.T) {
	s := newSandbox(t, "", Config{})
	_, err := s.Evaluate(context.Background(), &build.Artifact{
		Filename: "bundle.js",
		Source:   "function explode() { throw new TypeError('boom'); }\nexplode();",
		Library:  "LIB",
	})
	require.Error(t, err)
	assert.True(t, perrors.IsExecution(err))

	var se *ScriptError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "TypeError", se.Name)
	assert.Equal(t, "boom", se.Message)
	var frame *StackFrame
	for i := range se.StackTrace {
		if se.StackTrace[i].FunctionName == "explode" {
			frame = &se.StackTrace[i]
			break
		}
	}
	require.NotNil(t, frame, se.Error())
	assert.Equal(t, "bundle.js", frame.FileName)
	assert.Equal(t, 1, frame.Line)

	_, err = s.Evaluate(context.Background(), artifact(`1`, nil))
	assert.ErrorIs(t, err, ErrUnusable)
}

func TestRequireBundleAssetsFirst(t *testing.T) {
	s := newSandbox(t, "", Config{
		HostModules: map[string]HostModule{
			"./chunk.js": func(vm *goja.Runtime) goja.Value { return vm.ToValue("host") },
		},
	})
	v, err := s.Evaluate(context.Background(), artifact(`require("./chunk.js")`, map[string]string{
		"chunk.js": `module.exports = "bundle";`,
	}))
	require.NoError(t, err)
	assert.Equal(t, "bundle", v.String())
}

func TestRequireMemoizesModules(t *testing.T) {
	s := newSandbox(t, "", Config{})
	v, err := s.Evaluate(context.Background(), artifact(
		`(function () { var a = require("./obj.js"); a.count++; return a === require("./obj") && require("obj.js").count; })()`,
		map[string]string{"obj.js": `exports.count = 0;`},
	))
	require.NoError(t, err)
	assert.Equal(t, int64(1), v.ToInteger())
}

func TestRequireHostModule(t *testing.T) {
	s := newSandbox(t, "", Config{
		HostModules: map[string]HostModule{
			"path": func(vm *goja.Runtime) goja.Value { return vm.ToValue(map[string]any{"sep": "/"}) },
		},
	})
	v := evaluate(t, s, `require("node:path").sep`)
	assert.Equal(t, "/", v.String())
}

func TestRequireUnknownModule(t *testing.T) {
	s := newSandbox(t, "", Config{})
	_, err := s.Evaluate(context.Background(), artifact(`require("left-pad")`, nil))
	require.Error(t, err)
	assert.True(t, perrors.IsModuleResolution(err))
	assert.Contains(t, err.Error(), "left-pad")

	_, err = s.Evaluate(context.Background(), artifact(`1`, nil))
	assert.ErrorIs(t, err, ErrUnusable)
}

func TestBrowserStubs(t *testing.T) {
	s := newSandbox(t, "", Config{DocumentURL: "https://example.com/blog/post?x=1#top"})

	assert.Equal(t, "1,2", evaluate(t, s, `[requestAnimationFrame(function () {}), requestAnimationFrame(function () {})].join(",")`).String())
	assert.False(t, evaluate(t, s, `matchMedia("(min-width: 1px)").matches`).ToBoolean())
	assert.Equal(t, "function", evaluate(t, s, `typeof new MessageChannel().port1.postMessage`).String())
	assert.Equal(t, "function", evaluate(t, s, `typeof navigator.serviceWorker.register("/sw.js").then`).String())
	assert.Equal(t, "/blog/post", evaluate(t, s, `location.pathname`).String())
	assert.Equal(t, "?x=1", evaluate(t, s, `window.location.search`).String())
	assert.Equal(t, "https://example.com/blog/post?x=1#top", evaluate(t, s, `document.URL`).String())
	assert.Equal(t, "production", evaluate(t, s, `process.env.NODE_ENV`).String())
	assert.True(t, evaluate(t, s, `window === globalThis && self === window`).ToBoolean())
}

func TestSurfaceCanBeDisabled(t *testing.T) {
	s := newSandbox(t, "", Config{Surface: &Surface{Console: true}})
	assert.Equal(t, "undefined", evaluate(t, s, `typeof requestAnimationFrame`).String())
	assert.Equal(t, "undefined", evaluate(t, s, `typeof setTimeout`).String())
	assert.Equal(t, "undefined", evaluate(t, s, `typeof navigator.serviceWorker`).String())
}

func TestConsoleCaptured(t *testing.T) {
	s := newSandbox(t, "", Config{MaxConsoleEntries: 2})
	evaluate(t, s, `(function () { console.log("a", 1); console.warn("b"); console.error("c"); })()`)

	assert.Equal(t, []ConsoleEntry{
		{Level: "warn", Message: "b"},
		{Level: "error", Message: "c"},
	}, s.Console())
}

func TestConfigValidate(t *testing.T) {
	config := Config{DocumentURL: "/relative"}
	config.ApplyDefaults()
	assert.Error(t, config.Validate())

	_, err := New(nil, Config{})
	assert.True(t, perrors.IsConfiguration(err))
}
