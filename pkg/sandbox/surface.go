package sandbox

import (
	"net/url"

	"github.com/dop251/goja"
)

// stub installs one inert browser capability
type stub struct {
	name    string
	enabled func(Surface) bool
	install func(s *Sandbox) error
}

// stubs lists the browser capabilities the sandbox can stand in for
var stubs = []stub{
	{"animation-frame", func(f Surface) bool { return f.AnimationFrame }, installAnimationFrame},
	{"custom-elements", func(f Surface) bool { return f.CustomElements }, installCustomElements},
	{"message-port", func(f Surface) bool { return f.MessagePort }, installMessageChannel},
	{"media-query", func(f Surface) bool { return f.MediaQuery }, installMatchMedia},
	{"service-worker", func(f Surface) bool { return f.ServiceWorker }, installServiceWorker},
}

func noop(goja.FunctionCall) goja.Value { return goja.Undefined() }

// eventTarget returns an object accepting listeners that are never called
func eventTarget(vm *goja.Runtime) *goja.Object {
	obj := vm.NewObject()
	_ = obj.Set("addEventListener", noop)
	_ = obj.Set("removeEventListener", noop)
	_ = obj.Set("dispatchEvent", func(goja.FunctionCall) goja.Value { return vm.ToValue(true) })
	return obj
}

func installAnimationFrame(s *Sandbox) error {
	var counter int64
	if err := s.vm.Set("requestAnimationFrame", func(goja.FunctionCall) goja.Value {
		counter++
		return s.vm.ToValue(counter)
	}); err != nil {
		return err
	}
	return s.vm.Set("cancelAnimationFrame", noop)
}

func installCustomElements(s *Sandbox) error {
	registry := s.vm.NewObject()
	_ = registry.Set("define", noop)
	_ = registry.Set("get", noop)
	_ = registry.Set("upgrade", noop)
	_ = registry.Set("whenDefined", func(goja.FunctionCall) goja.Value {
		return s.newNeverSettles()
	})
	return s.vm.Set("customElements", registry)
}

func installMessageChannel(s *Sandbox) error {
	port := func() *goja.Object {
		p := eventTarget(s.vm)
		_ = p.Set("postMessage", noop)
		_ = p.Set("start", noop)
		_ = p.Set("close", noop)
		_ = p.Set("onmessage", goja.Null())
		return p
	}
	return s.vm.Set("MessageChannel", func(call goja.ConstructorCall) *goja.Object {
		_ = call.This.Set("port1", port())
		_ = call.This.Set("port2", port())
		return nil
	})
}

func installMatchMedia(s *Sandbox) error {
	return s.vm.Set("matchMedia", func(call goja.FunctionCall) goja.Value {
		list := eventTarget(s.vm)
		_ = list.Set("matches", false)
		_ = list.Set("media", call.Argument(0).String())
		_ = list.Set("onchange", goja.Null())
		_ = list.Set("addListener", noop)
		_ = list.Set("removeListener", noop)
		return list
	})
}

func installServiceWorker(s *Sandbox) error {
	container := eventTarget(s.vm)
	never := func(goja.FunctionCall) goja.Value { return s.newNeverSettles() }
	_ = container.Set("register", never)
	_ = container.Set("getRegistration", never)
	_ = container.Set("getRegistrations", never)
	_ = container.Set("ready", s.newNeverSettles())
	_ = container.Set("controller", goja.Null())
	return s.navigator.Set("serviceWorker", container)
}

// installWindow sets up the global object as the browser window
func installWindow(s *Sandbox) error {
	vm := s.vm
	global := vm.GlobalObject()
	for _, name := range []string{"window", "self", "globalThis", "parent", "top"} {
		if err := vm.Set(name, global); err != nil {
			return err
		}
	}

	s.navigator = vm.NewObject()
	_ = s.navigator.Set("userAgent", s.config.UserAgent)
	_ = s.navigator.Set("language", "en-US")
	_ = s.navigator.Set("languages", []string{"en-US", "en"})
	_ = s.navigator.Set("onLine", true)
	_ = s.navigator.Set("cookieEnabled", false)
	if err := vm.Set("navigator", s.navigator); err != nil {
		return err
	}

	location, err := newLocation(vm, s.config.DocumentURL)
	if err != nil {
		return err
	}
	s.location = location
	if err := vm.Set("location", location); err != nil {
		return err
	}
	if err := vm.Set("document", s.dom.wrap(s.dom.doc.Root)); err != nil {
		return err
	}

	for name, fn := range map[string]func(goja.FunctionCall) goja.Value{
		"addEventListener":    noop,
		"removeEventListener": noop,
		"scrollTo":            noop,
		"scroll":              noop,
		"alert":               noop,
		"dispatchEvent":       func(goja.FunctionCall) goja.Value { return vm.ToValue(true) },
		"getComputedStyle": func(goja.FunctionCall) goja.Value {
			style := vm.NewObject()
			_ = style.Set("getPropertyValue", func(goja.FunctionCall) goja.Value { return vm.ToValue("") })
			return style
		},
	} {
		if err := vm.Set(name, fn); err != nil {
			return err
		}
	}
	_ = vm.Set("innerWidth", 1024)
	_ = vm.Set("innerHeight", 768)
	_ = vm.Set("devicePixelRatio", 1)

	// queueMicrotask rides the promise job queue
	if _, err := vm.RunString(`globalThis.queueMicrotask = function (cb) { Promise.resolve().then(cb); };`); err != nil {
		return err
	}

	process := vm.NewObject()
	env := vm.NewObject()
	for k, v := range s.config.Env {
		_ = env.Set(k, v)
	}
	_ = process.Set("env", env)
	_ = process.Set("browser", true)
	return vm.Set("process", process)
}

func newLocation(vm *goja.Runtime, raw string) (*goja.Object, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	loc := vm.NewObject()
	origin := u.Scheme + "://" + u.Host
	search := ""
	if u.RawQuery != "" {
		search = "?" + u.RawQuery
	}
	hash := ""
	if u.Fragment != "" {
		hash = "#" + u.Fragment
	}
	pathname := u.EscapedPath()
	if pathname == "" {
		pathname = "/"
	}
	for k, v := range map[string]string{
		"href":     u.String(),
		"protocol": u.Scheme + ":",
		"host":     u.Host,
		"hostname": u.Hostname(),
		"port":     u.Port(),
		"origin":   origin,
		"pathname": pathname,
		"search":   search,
		"hash":     hash,
	} {
		_ = loc.Set(k, v)
	}
	_ = loc.Set("assign", noop)
	_ = loc.Set("replace", noop)
	_ = loc.Set("reload", noop)
	_ = loc.Set("toString", func(goja.FunctionCall) goja.Value { return vm.ToValue(u.String()) })
	return loc, nil
}
