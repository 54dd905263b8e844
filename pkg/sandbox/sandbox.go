// Package sandbox evaluates a prerender bundle inside an isolated goja runtime that stands in
// for a browser page: a synthetic document, inert browser stubs, virtual-time timers and a
// require that resolves against the bundle's own assets before host modules.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/dop251/goja"
	"github.com/wehubfusion/Daedalus/pkg/build"
	"github.com/wehubfusion/Daedalus/pkg/document"
	perrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"go.uber.org/zap"
)

// DefaultMaxTimerTicks bounds how many timer callbacks run while awaiting one value
const DefaultMaxTimerTicks = 100000

var (
	// ErrUnusable is returned by a sandbox after a failed evaluation or Close
	ErrUnusable = errors.New("sandbox is no longer usable")

	promiseType = reflect.TypeOf((*goja.Promise)(nil))
)

// Sandbox is one isolated execution environment. It is not safe for concurrent use and is
// discarded after a single render.
type Sandbox struct {
	vm        *goja.Runtime
	config    Config
	logger    *zap.Logger
	dom       *dom
	loop      *loop
	console   *console
	loader    *loader
	navigator *goja.Object
	location  *goja.Object

	neverSettles map[*goja.Object]struct{}
	unusable     bool
	watchers     int
}

// New creates a sandbox whose document is doc
func New(doc *document.Document, config Config) (*Sandbox, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, perrors.ConfigurationError(err.Error())
	}
	if doc == nil {
		return nil, perrors.ConfigurationError("sandbox requires a document")
	}

	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))

	s := &Sandbox{
		vm:           vm,
		config:       config,
		logger:       config.Logger,
		loop:         newLoop(),
		neverSettles: make(map[*goja.Object]struct{}),
	}
	s.dom = newDOM(s, doc)
	s.loader = newLoader(vm, HostModules(config.HostModules))

	if err := installWindow(s); err != nil {
		return nil, fmt.Errorf("failed to install window: %w", err)
	}
	if err := vm.Set("require", s.loader.require); err != nil {
		return nil, fmt.Errorf("failed to install require: %w", err)
	}

	surface := *config.Surface
	if surface.Timers {
		if err := s.loop.install(vm); err != nil {
			return nil, fmt.Errorf("failed to install timers: %w", err)
		}
	}
	s.console = newConsole(s.logger, config.MaxConsoleEntries)
	if surface.Console {
		if err := s.console.install(vm); err != nil {
			return nil, fmt.Errorf("failed to install console: %w", err)
		}
	}
	for _, st := range stubs {
		if !st.enabled(surface) {
			continue
		}
		if err := st.install(s); err != nil {
			return nil, fmt.Errorf("failed to install %s: %w", st.name, err)
		}
	}
	return s, nil
}

// Runtime returns the underlying goja runtime
func (s *Sandbox) Runtime() *goja.Runtime { return s.vm }

// Document returns the document scripts operate on
func (s *Sandbox) Document() *document.Document { return s.dom.doc }

// Console returns the captured console output
func (s *Sandbox) Console() []ConsoleEntry { return s.console.snapshot() }

// Evaluate runs the artifact's source and returns the value bound to its library name. Any
// failure, including a module that cannot be resolved, leaves the sandbox unusable.
func (s *Sandbox) Evaluate(ctx context.Context, artifact *build.Artifact) (goja.Value, error) {
	if s.unusable {
		return nil, ErrUnusable
	}
	if artifact == nil {
		return nil, perrors.ConfigurationError("no artifact to evaluate")
	}
	s.loader.bundle = Assets(artifact.Assets)

	stop := s.watch(ctx)
	defer stop()
	if _, err := s.run(ctx, func() (goja.Value, error) {
		return s.vm.RunScript(artifact.Filename, artifact.Source)
	}); err != nil {
		return nil, err
	}

	library := artifact.Library
	if library == "" {
		library = build.DefaultLibrary
	}
	s.logger.Debug("bundle evaluated",
		zap.String("filename", artifact.Filename),
		zap.String("library", library))
	v := s.vm.Get(library)
	if v == nil {
		return goja.Undefined(), nil
	}
	return v, nil
}

// Call invokes fn with no receiver
func (s *Sandbox) Call(ctx context.Context, fn goja.Callable, args ...goja.Value) (goja.Value, error) {
	if s.unusable {
		return nil, ErrUnusable
	}
	stop := s.watch(ctx)
	defer stop()
	return s.run(ctx, func() (goja.Value, error) {
		return fn(goja.Undefined(), args...)
	})
}

// Await settles v. Non-thenables are returned as is. Pending promises are driven by running
// due timers on the virtual clock; when nothing is left that could settle them the call
// blocks until ctx is done. Rejections surface as render errors.
func (s *Sandbox) Await(ctx context.Context, v goja.Value) (goja.Value, error) {
	if s.unusable {
		return nil, ErrUnusable
	}
	if s.IsNeverSettles(v) {
		return nil, s.stall(ctx)
	}
	stop := s.watch(ctx)
	defer stop()
	promise, err := s.toPromise(ctx, v)
	if err != nil || promise == nil {
		return v, err
	}

	for ticks := 0; ; ticks++ {
		switch promise.State() {
		case goja.PromiseStateFulfilled:
			return promise.Result(), nil
		case goja.PromiseStateRejected:
			return nil, perrors.RenderError(describe(promise.Result()))
		}
		if err := ctx.Err(); err != nil {
			return nil, perrors.ExecutionError(err)
		}
		if ticks >= DefaultMaxTimerTicks {
			return nil, s.stall(ctx)
		}
		t, ok := s.loop.next()
		if !ok {
			return nil, s.stall(ctx)
		}
		if _, err := s.run(ctx, func() (goja.Value, error) {
			return t.fn(goja.Undefined(), t.args...)
		}); err != nil {
			return nil, err
		}
	}
}

// Close releases the runtime. The sandbox cannot be used afterwards.
func (s *Sandbox) Close() {
	s.unusable = true
	s.vm.ClearInterrupt()
	s.loader.cache = nil
}

func (s *Sandbox) stall(ctx context.Context) error {
	s.logger.Debug("render is waiting on work that will never complete",
		zap.Int("pending_timers", s.loop.pending()))
	<-ctx.Done()
	return perrors.ExecutionError(ctx.Err())
}

// toPromise returns the promise behind v, adopting foreign thenables through Promise.resolve.
// A nil promise means v is not thenable.
func (s *Sandbox) toPromise(ctx context.Context, v goja.Value) (*goja.Promise, error) {
	obj, ok := v.(*goja.Object)
	if !ok {
		return nil, nil
	}
	if obj.ExportType() == promiseType {
		return obj.Export().(*goja.Promise), nil
	}
	if _, ok := goja.AssertFunction(obj.Get("then")); !ok {
		return nil, nil
	}

	ctor := s.vm.Get("Promise").ToObject(s.vm)
	resolve, _ := goja.AssertFunction(ctor.Get("resolve"))
	adopted, err := s.run(ctx, func() (goja.Value, error) {
		return resolve(ctor, v)
	})
	if err != nil {
		return nil, err
	}
	return adopted.Export().(*goja.Promise), nil
}

// watch interrupts the runtime when ctx is done until the returned stop is called. One watcher
// covers every callback run by an Evaluate, Call or Await.
func (s *Sandbox) watch(ctx context.Context) (stop func()) {
	s.watchers++
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		select {
		case <-ctx.Done():
			s.vm.Interrupt(ctx.Err())
		case <-done:
		}
	}()
	return func() {
		close(done)
		<-exited
		s.vm.ClearInterrupt()
	}
}

// run executes f inside a watch. Errors are translated and mark the sandbox unusable.
func (s *Sandbox) run(ctx context.Context, f func() (goja.Value, error)) (v goja.Value, err error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		s.unusable = true
		return nil, perrors.ExecutionError(ctxErr)
	}
	defer func() {
		if r := recover(); r != nil {
			err = perrors.ExecutionError(fmt.Errorf("panic during execution: %v", r))
		}
		if err != nil {
			s.unusable = true
		}
	}()

	v, err = f()
	if err != nil {
		return nil, s.translate(ctx, err)
	}
	return v, nil
}

func (s *Sandbox) translate(ctx context.Context, err error) error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return perrors.ExecutionError(ctxErr)
		}
		return perrors.ExecutionError(err)
	}

	var exc *goja.Exception
	if errors.As(err, &exc) {
		// errors raised by the host, such as a module that cannot be resolved, keep their code
		var typed *perrors.Error
		if errors.As(exc.Unwrap(), &typed) {
			return typed
		}
		return perrors.ExecutionError(ParseException(exc))
	}
	return perrors.ExecutionError(err)
}

// describe renders a rejection reason for error messages
func describe(v goja.Value) string {
	if !present(v) {
		return fmt.Sprint(v)
	}
	if obj, ok := v.(*goja.Object); ok {
		if msg := obj.Get("message"); present(msg) {
			if name := obj.Get("name"); present(name) {
				return name.String() + ": " + msg.String()
			}
			return msg.String()
		}
	}
	return v.String()
}
