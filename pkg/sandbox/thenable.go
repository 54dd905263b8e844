package sandbox

import "github.com/dop251/goja"

// newNeverSettles returns a thenable that never resolves or rejects. then, catch and finally
// each return a fresh never-settling thenable, so any chain built on it stays pending and
// code awaiting an unsupported browser API stalls instead of failing.
func (s *Sandbox) newNeverSettles() *goja.Object {
	obj := s.vm.NewObject()
	chain := func(goja.FunctionCall) goja.Value {
		return s.newNeverSettles()
	}
	_ = obj.Set("then", chain)
	_ = obj.Set("catch", chain)
	_ = obj.Set("finally", chain)
	s.neverSettles[obj] = struct{}{}
	return obj
}

// IsNeverSettles reports whether v is one of the sandbox's never-settling thenables
func (s *Sandbox) IsNeverSettles(v goja.Value) bool {
	obj, ok := v.(*goja.Object)
	if !ok {
		return false
	}
	_, ok = s.neverSettles[obj]
	return ok
}
