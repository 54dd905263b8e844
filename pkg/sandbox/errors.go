package sandbox

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dop251/goja"
)

// ScriptError is an exception thrown by bundle code, with its parsed stack
type ScriptError struct {
	Name       string       `json:"name,omitempty"`
	Message    string       `json:"message"`
	StackTrace []StackFrame `json:"stack_trace,omitempty"`

	cause *goja.Exception
}

// StackFrame represents a single frame in the stack trace
type StackFrame struct {
	FunctionName string `json:"function_name,omitempty"`
	FileName     string `json:"file_name,omitempty"`
	Line         int    `json:"line"`
	Column       int    `json:"column"`
}

// Error implements the error interface
func (e *ScriptError) Error() string {
	var b strings.Builder
	if e.Name != "" {
		b.WriteString(e.Name)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)

	for i, frame := range e.StackTrace {
		if i >= 10 {
			fmt.Fprintf(&b, "\n  ... %d more frames", len(e.StackTrace)-i)
			break
		}
		b.WriteString("\n  at ")
		if frame.FunctionName != "" {
			b.WriteString(frame.FunctionName)
		} else {
			b.WriteString("<anonymous>")
		}
		if frame.FileName != "" {
			fmt.Fprintf(&b, " (%s:%d:%d)", frame.FileName, frame.Line, frame.Column)
		}
	}
	return b.String()
}

// Unwrap returns the underlying goja exception, which in turn unwraps to any Go error thrown
// through the runtime
func (e *ScriptError) Unwrap() error {
	if e.cause == nil {
		return nil
	}
	return e.cause
}

// ParseException converts a goja exception into a ScriptError
func ParseException(exc *goja.Exception) *ScriptError {
	if exc == nil {
		return &ScriptError{Message: "unknown error"}
	}

	se := &ScriptError{Message: exc.Error(), cause: exc}
	v := exc.Value()
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return se
	}

	obj, ok := v.(*goja.Object)
	if !ok {
		se.Message = v.String()
		return se
	}
	if name := obj.Get("name"); present(name) {
		se.Name = name.String()
	}
	if msg := obj.Get("message"); present(msg) {
		se.Message = msg.String()
	}
	if stack := obj.Get("stack"); present(stack) {
		se.StackTrace = parseStackTrace(stack.String())
	} else {
		se.StackTrace = framesFromException(exc)
	}
	return se
}

func framesFromException(exc *goja.Exception) []StackFrame {
	var frames []StackFrame
	for _, f := range exc.Stack() {
		pos := f.Position()
		frames = append(frames, StackFrame{
			FunctionName: f.FuncName(),
			FileName:     f.SrcName(),
			Line:         pos.Line,
			Column:       pos.Column,
		})
	}
	return frames
}

// parseStackTrace parses a JavaScript stack trace string into structured frames. Lines that
// are not frames, such as the leading "Error: message", are skipped.
func parseStackTrace(stack string) []StackFrame {
	lines := strings.Split(stack, "\n")
	frames := make([]StackFrame, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "at ") {
			continue
		}
		frames = append(frames, parseStackFrame(strings.TrimPrefix(line, "at ")))
	}
	return frames
}

// parseStackFrame handles "name (file:line:col)" and bare "file:line:col". goja appends the
// program counter as "(pc)" after the column, which is dropped.
func parseStackFrame(line string) StackFrame {
	var frame StackFrame
	location := line
	if idx := strings.Index(line, " ("); idx != -1 && strings.HasSuffix(line, ")") {
		frame.FunctionName = strings.TrimSpace(line[:idx])
		location = line[idx+2 : len(line)-1]
	}
	if idx := strings.Index(location, "("); idx != -1 {
		location = location[:idx]
	}

	parts := strings.Split(location, ":")
	if len(parts) >= 3 {
		frame.FileName = strings.Join(parts[:len(parts)-2], ":")
		frame.Line, _ = strconv.Atoi(parts[len(parts)-2])
		frame.Column, _ = strconv.Atoi(parts[len(parts)-1])
	} else {
		frame.FileName = location
	}
	return frame
}

func present(v goja.Value) bool {
	return v != nil && !goja.IsUndefined(v) && !goja.IsNull(v)
}
