// Package render turns the value a prerender bundle exposes into markup and places it in the
// output: best-export selection, invocation, awaiting, and injection or substitution.
package render

import (
	"context"

	"github.com/dop251/goja"
	"github.com/wehubfusion/Daedalus/pkg/document"
	"github.com/wehubfusion/Daedalus/pkg/entry"
)

// Runtime is the execution environment a render resolves values in
type Runtime interface {
	Runtime() *goja.Runtime
	Call(ctx context.Context, fn goja.Callable, args ...goja.Value) (goja.Value, error)
	Await(ctx context.Context, v goja.Value) (goja.Value, error)
}

// Result is the settled outcome of a render. Undefined results produce no markup and inject
// nothing.
type Result struct {
	Markup  string
	Defined bool
}

// BestExport selects the export to render from a module namespace: a truthy default export,
// otherwise the first enumerable key other than __esModule. Functions and primitives are
// returned unchanged; an object with no usable key yields undefined.
func BestExport(v goja.Value) goja.Value {
	obj, ok := v.(*goja.Object)
	if !ok {
		return v
	}
	if _, callable := goja.AssertFunction(obj); callable {
		return obj
	}
	if d := obj.Get("default"); d != nil && d.ToBoolean() {
		return d
	}
	for _, key := range obj.Keys() {
		if key == "__esModule" {
			continue
		}
		if export := obj.Get(key); export != nil {
			return export
		}
		return goja.Undefined()
	}
	return goja.Undefined()
}

// Resolve selects the best export of exports, calls it exactly once when it is callable, and
// awaits the outcome. The callable receives params when any are given and no arguments
// otherwise.
func Resolve(ctx context.Context, rt Runtime, exports goja.Value, params ...any) (Result, error) {
	value := BestExport(exports)

	if fn, ok := goja.AssertFunction(value); ok {
		vm := rt.Runtime()
		args := make([]goja.Value, len(params))
		for i, p := range params {
			args[i] = vm.ToValue(p)
		}
		out, err := rt.Call(ctx, fn, args...)
		if err != nil {
			return Result{}, err
		}
		value = out
	}

	settled, err := rt.Await(ctx, value)
	if err != nil {
		return Result{}, err
	}
	if settled == nil || goja.IsUndefined(settled) || goja.IsNull(settled) {
		return Result{}, nil
	}
	return Result{Markup: settled.String(), Defined: true}, nil
}

// Inject inserts the result's markup at the document's insertion point
func Inject(doc *document.Document, result Result) error {
	if !result.Defined {
		return nil
	}
	return doc.Insert(result.Markup)
}

// Substitute replaces the directive's token in source with the result's markup. An undefined
// result removes the token.
func Substitute(source string, d entry.Directive, result Result) string {
	return d.Replace(source, result.Markup)
}
