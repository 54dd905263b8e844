package sandbox

import (
	"container/heap"

	"github.com/dop251/goja"
)

// timer is a callback scheduled on the virtual clock
type timer struct {
	id       int64
	at       int64
	seq      int64
	interval int64
	fn       goja.Callable
	args     []goja.Value
	index    int
}

type timerQueue []*timer

func (q timerQueue) Len() int { return len(q) }
func (q timerQueue) Less(i, j int) bool {
	if q[i].at != q[j].at {
		return q[i].at < q[j].at
	}
	return q[i].seq < q[j].seq
}
func (q timerQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}
func (q *timerQueue) Push(x any) {
	t := x.(*timer)
	t.index = len(*q)
	*q = append(*q, t)
}
func (q *timerQueue) Pop() any {
	old := *q
	t := old[len(old)-1]
	old[len(old)-1] = nil
	*q = old[:len(old)-1]
	t.index = -1
	return t
}

// loop runs timers on a virtual clock. Nothing fires on its own; the sandbox advances the
// clock one timer at a time while a render is pending, so delays cost no wall time.
type loop struct {
	now    int64
	seq    int64
	nextID int64
	queue  timerQueue
	byID   map[int64]*timer
}

func newLoop() *loop {
	return &loop{byID: make(map[int64]*timer)}
}

func (l *loop) schedule(fn goja.Callable, delay int64, repeat bool, args []goja.Value) int64 {
	if delay < 0 {
		delay = 0
	}
	l.nextID++
	l.seq++
	t := &timer{id: l.nextID, at: l.now + delay, seq: l.seq, fn: fn, args: args}
	if repeat {
		// intervals of zero would spin the clock forever
		t.interval = max(delay, 1)
	}
	heap.Push(&l.queue, t)
	l.byID[t.id] = t
	return t.id
}

func (l *loop) cancel(id int64) {
	if t, ok := l.byID[id]; ok {
		heap.Remove(&l.queue, t.index)
		delete(l.byID, id)
	}
}

func (l *loop) pending() int { return l.queue.Len() }

// next pops the earliest timer and advances the clock to it
func (l *loop) next() (*timer, bool) {
	if l.queue.Len() == 0 {
		return nil, false
	}
	t := heap.Pop(&l.queue).(*timer)
	l.now = t.at
	if t.interval > 0 {
		l.seq++
		t.at = l.now + t.interval
		t.seq = l.seq
		heap.Push(&l.queue, t)
	} else {
		delete(l.byID, t.id)
	}
	return t, true
}

func (l *loop) install(vm *goja.Runtime) error {
	set := func(repeat bool) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			fn, ok := goja.AssertFunction(call.Argument(0))
			if !ok {
				panic(vm.NewTypeError("callback must be a function"))
			}
			var args []goja.Value
			if len(call.Arguments) > 2 {
				args = append(args, call.Arguments[2:]...)
			}
			return vm.ToValue(l.schedule(fn, call.Argument(1).ToInteger(), repeat, args))
		}
	}
	cancel := func(call goja.FunctionCall) goja.Value {
		if present(call.Argument(0)) {
			l.cancel(call.Argument(0).ToInteger())
		}
		return goja.Undefined()
	}
	immediate := func(call goja.FunctionCall) goja.Value {
		fn, ok := goja.AssertFunction(call.Argument(0))
		if !ok {
			panic(vm.NewTypeError("callback must be a function"))
		}
		var args []goja.Value
		if len(call.Arguments) > 1 {
			args = append(args, call.Arguments[1:]...)
		}
		return vm.ToValue(l.schedule(fn, 0, false, args))
	}

	for name, fn := range map[string]func(goja.FunctionCall) goja.Value{
		"setTimeout":     set(false),
		"setInterval":    set(true),
		"clearTimeout":   cancel,
		"clearInterval":  cancel,
		"setImmediate":   immediate,
		"clearImmediate": cancel,
	} {
		if err := vm.Set(name, fn); err != nil {
			return err
		}
	}
	return nil
}
