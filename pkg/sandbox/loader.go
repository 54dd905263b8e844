package sandbox

import (
	"path"
	"strings"

	"github.com/dop251/goja"
	perrors "github.com/wehubfusion/Daedalus/pkg/errors"
)

// BundleModule is an asset resolved from a require id. ID is the canonical asset key.
type BundleModule struct {
	ID     string
	Source string
}

// BundleResolver finds modules among the assets the sub-compilation emitted
type BundleResolver interface {
	TryBundleAsset(id string) (BundleModule, bool)
}

// HostResolver finds modules provided by the host runtime
type HostResolver interface {
	TryHostModule(vm *goja.Runtime, id string) (exports goja.Value, ok bool)
}

// Assets resolves module ids against emitted assets keyed by relative path
type Assets map[string]string

// TryBundleAsset looks id up as given, without a leading "./", and with a ".js" suffix
func (a Assets) TryBundleAsset(id string) (BundleModule, bool) {
	clean := strings.TrimPrefix(path.Clean(id), "/")
	for _, candidate := range []string{id, clean, clean + ".js"} {
		if src, ok := a[candidate]; ok {
			return BundleModule{ID: candidate, Source: src}, true
		}
	}
	return BundleModule{}, false
}

// HostModules resolves module ids against a fixed set of host-provided builders
type HostModules map[string]HostModule

// TryHostModule builds the module registered under id, accepting a "node:" prefix
func (h HostModules) TryHostModule(vm *goja.Runtime, id string) (goja.Value, bool) {
	build, ok := h[id]
	if !ok {
		build, ok = h[strings.TrimPrefix(id, "node:")]
	}
	if !ok {
		return nil, false
	}
	return build(vm), true
}

// loader implements require: bundle assets first, then host modules. Resolved modules are
// memoized so every require of an id returns the same exports.
type loader struct {
	vm     *goja.Runtime
	bundle BundleResolver
	host   HostResolver
	cache  map[string]*goja.Object
}

func newLoader(vm *goja.Runtime, host HostResolver) *loader {
	return &loader{vm: vm, host: host, cache: make(map[string]*goja.Object)}
}

func (l *loader) require(call goja.FunctionCall) goja.Value {
	id := call.Argument(0).String()
	exports, err := l.resolve(id)
	if err != nil {
		if exc, ok := err.(*goja.Exception); ok {
			panic(exc)
		}
		panic(l.vm.NewGoError(err))
	}
	return exports
}

func (l *loader) resolve(id string) (goja.Value, error) {
	if module, ok := l.cache[id]; ok {
		return module.Get("exports"), nil
	}

	if l.bundle != nil {
		if m, ok := l.bundle.TryBundleAsset(id); ok {
			if module, ok := l.cache[m.ID]; ok {
				l.cache[id] = module
				return module.Get("exports"), nil
			}
			exports, err := l.evaluate(m.ID, m.Source)
			if err == nil {
				l.cache[id] = l.cache[m.ID]
			}
			return exports, err
		}
	}
	if l.host != nil {
		if exports, ok := l.host.TryHostModule(l.vm, id); ok {
			module := l.vm.NewObject()
			_ = module.Set("exports", exports)
			l.cache[id] = module
			return exports, nil
		}
	}
	return nil, perrors.ModuleResolutionError(id)
}

// evaluate runs an asset in the (module, exports, require) shape
func (l *loader) evaluate(id, src string) (goja.Value, error) {
	wrapped := "(function (module, exports, require) {\n" + src + "\n})"
	fnValue, err := l.vm.RunScript(id, wrapped)
	if err != nil {
		return nil, err
	}
	fn, ok := goja.AssertFunction(fnValue)
	if !ok {
		return nil, perrors.ModuleResolutionError(id)
	}

	module := l.vm.NewObject()
	exports := l.vm.NewObject()
	_ = module.Set("exports", exports)
	l.cache[id] = module

	if _, err := fn(goja.Undefined(), module, exports, l.vm.Get("require")); err != nil {
		delete(l.cache, id)
		return nil, err
	}
	return module.Get("exports"), nil
}
