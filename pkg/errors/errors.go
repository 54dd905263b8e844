package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration indicates that required parameters were missing or invalid
	ErrConfiguration = errors.New("invalid configuration")

	// ErrCompilation indicates that the sub-build reported errors
	ErrCompilation = errors.New("compilation failed")

	// ErrModuleResolution indicates that the sandbox could not resolve a required module
	ErrModuleResolution = errors.New("module not found")

	// ErrExecution indicates an uncaught error while evaluating bundle code
	ErrExecution = errors.New("execution failed")

	// ErrRender indicates that an asynchronous render result was rejected
	ErrRender = errors.New("render failed")

	// ErrProcessExit indicates that the external render process exited non-zero
	ErrProcessExit = errors.New("process exited with non-zero status")
)

// Error codes
const (
	CodeConfiguration    = "CONFIGURATION"
	CodeCompilation      = "COMPILATION"
	CodeModuleResolution = "MODULE_RESOLUTION"
	CodeExecution        = "EXECUTION"
	CodeRender           = "RENDER"
	CodeProcessExit      = "PROCESS_EXIT"
)

var sentinels = map[string]error{
	CodeConfiguration:    ErrConfiguration,
	CodeCompilation:      ErrCompilation,
	CodeModuleResolution: ErrModuleResolution,
	CodeExecution:        ErrExecution,
	CodeRender:           ErrRender,
	CodeProcessExit:      ErrProcessExit,
}

// Error represents a structured prerender error
type Error struct {
	// Code is a machine-readable error code
	Code string

	// Message is a human-readable error message
	Message string

	// Err is the underlying error, if any
	Err error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel matching this error's code
func (e *Error) Is(target error) bool {
	if s, ok := sentinels[e.Code]; ok && s == target {
		return true
	}
	if t, ok := target.(*Error); ok {
		return t.Code == e.Code && t.Message == "" && t.Err == nil
	}
	return false
}

// NewError creates a new structured error
func NewError(code, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ConfigurationError reports missing or invalid parameters
func ConfigurationError(message string) *Error {
	return NewError(CodeConfiguration, message, nil)
}

// CompilationError carries the concatenated diagnostics of a failed sub-build
func CompilationError(details string) *Error {
	return NewError(CodeCompilation, "Child compilation failed:\n"+details, nil)
}

// ModuleResolutionError reports a module id nobody could resolve
func ModuleResolutionError(id string) *Error {
	return NewError(CodeModuleResolution, fmt.Sprintf("module not found: %s", id), nil)
}

// ExecutionError wraps an uncaught evaluation error
func ExecutionError(err error) *Error {
	return NewError(CodeExecution, "bundle evaluation failed", err)
}

// RenderError wraps a rejected render result
func RenderError(reason string) *Error {
	return NewError(CodeRender, fmt.Sprintf("render promise rejected: %s", reason), nil)
}

// ProcessExitError carries the attempted command line of a failed external render
func ProcessExitError(command string, err error) *Error {
	return NewError(CodeProcessExit, fmt.Sprintf("command failed: %s", command), err)
}

// Code returns the code of the first structured error in err's chain
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsConfiguration checks if an error is a configuration error
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// IsCompilation checks if an error is a compilation error
func IsCompilation(err error) bool {
	return errors.Is(err, ErrCompilation)
}

// IsModuleResolution checks if an error is a module resolution error
func IsModuleResolution(err error) bool {
	return errors.Is(err, ErrModuleResolution)
}

// IsExecution checks if an error is an execution error
func IsExecution(err error) bool {
	return errors.Is(err, ErrExecution)
}

// IsRender checks if an error is a render error
func IsRender(err error) bool {
	return errors.Is(err, ErrRender)
}

// IsProcessExit checks if an error is a process exit error
func IsProcessExit(err error) bool {
	return errors.Is(err, ErrProcessExit)
}
