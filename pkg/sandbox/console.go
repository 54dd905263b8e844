package sandbox

import (
	"fmt"
	"strings"
	"sync"

	"github.com/dop251/goja"
	"go.uber.org/zap"
)

// ConsoleEntry is one captured console call
type ConsoleEntry struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// console forwards console.* to the sandbox logger and keeps a bounded copy of the output
type console struct {
	logger  *zap.Logger
	max     int
	mu      sync.Mutex
	entries []ConsoleEntry
}

func newConsole(logger *zap.Logger, max int) *console {
	return &console{logger: logger.With(zap.String("source", "console")), max: max}
}

func (c *console) install(vm *goja.Runtime) error {
	obj := vm.NewObject()
	levels := map[string]string{
		"log":   "info",
		"info":  "info",
		"debug": "debug",
		"trace": "debug",
		"warn":  "warn",
		"error": "error",
	}
	for method, level := range levels {
		level := level
		if err := obj.Set(method, func(call goja.FunctionCall) goja.Value {
			c.record(level, format(call.Arguments))
			return goja.Undefined()
		}); err != nil {
			return err
		}
	}
	for _, method := range []string{"group", "groupEnd", "time", "timeEnd", "table", "dir", "assert", "count"} {
		if err := obj.Set(method, func(goja.FunctionCall) goja.Value { return goja.Undefined() }); err != nil {
			return err
		}
	}
	return vm.Set("console", obj)
}

func (c *console) record(level, msg string) {
	switch level {
	case "debug":
		c.logger.Debug(msg)
	case "warn":
		c.logger.Warn(msg)
	case "error":
		c.logger.Error(msg)
	default:
		c.logger.Info(msg)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, ConsoleEntry{Level: level, Message: msg})
	if len(c.entries) > c.max {
		c.entries = c.entries[len(c.entries)-c.max:]
	}
}

func (c *console) snapshot() []ConsoleEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ConsoleEntry(nil), c.entries...)
}

func format(args []goja.Value) string {
	parts := make([]string, len(args))
	for i, arg := range args {
		switch {
		case arg == nil:
			parts[i] = "undefined"
		case goja.IsUndefined(arg) || goja.IsNull(arg):
			parts[i] = arg.String()
		default:
			if _, ok := arg.(*goja.Object); ok {
				parts[i] = fmt.Sprint(arg.Export())
			} else {
				parts[i] = arg.String()
			}
		}
	}
	return strings.Join(parts, " ")
}
