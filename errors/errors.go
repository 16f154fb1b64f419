package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in the kernel lifecycle the error occurred
type Phase string

const (
	PhaseConfig Phase = "config" // pool construction and validation
	PhaseVerify Phase = "verify" // kernel file checks
	PhaseLoad   Phase = "load"   // enter-scope, toolkit load calls
	PhaseUnload Phase = "unload" // exit-scope, toolkit unload calls
	PhaseHost   Phase = "host"   // wasm host plumbing
)

// Kind categorizes the error
type Kind string

const (
	KindInvalidInput   Kind = "invalid_input"
	KindFileMissing    Kind = "file_missing"
	KindToolkitFailure Kind = "toolkit_failure"
	KindNotLoaded      Kind = "not_loaded"
	KindNotInitialized Kind = "not_initialized"
	KindMissingExport  Kind = "missing_export"
	KindGuestTrap      Kind = "guest_trap"
	KindInvalidData    Kind = "invalid_data"
)

// Error is the structured error type used throughout the module
type Error struct {
	Cause  error
	Phase  Phase
	Kind   Kind
	Kernel string
	Detail string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Kernel != "" {
		b.WriteString(fmt.Sprintf(" kernel %q", e.Kernel))
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error on phase and kind
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Convenience constructors for common error patterns

// LoadFailed wraps a toolkit load failure for the named kernel
func LoadFailed(kernel string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindToolkitFailure,
		Kernel: kernel,
		Cause:  cause,
	}
}

// UnloadFailed wraps a toolkit unload failure for the named kernel
func UnloadFailed(kernel string, cause error) *Error {
	return &Error{
		Phase:  PhaseUnload,
		Kind:   KindToolkitFailure,
		Kernel: kernel,
		Cause:  cause,
	}
}

// FileMissing reports a kernel path that does not name a readable file
func FileMissing(kernel string, cause error) *Error {
	return &Error{
		Phase:  PhaseVerify,
		Kind:   KindFileMissing,
		Kernel: kernel,
		Cause:  cause,
	}
}

// NotAFile reports a kernel path that exists but is not a regular file
func NotAFile(kernel string) *Error {
	return &Error{
		Phase:  PhaseVerify,
		Kind:   KindInvalidInput,
		Kernel: kernel,
		Detail: "not a regular file",
	}
}

// NotLoaded reports an unload of a kernel the registry does not hold
func NotLoaded(kernel string) *Error {
	return &Error{
		Phase:  PhaseUnload,
		Kind:   KindNotLoaded,
		Kernel: kernel,
		Detail: "kernel is not loaded",
	}
}

// InvalidInput creates an invalid input error in the given phase
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// NotInitialized creates a not-initialized error for a missing component
func NotInitialized(component string) *Error {
	return &Error{
		Phase:  PhaseHost,
		Kind:   KindNotInitialized,
		Detail: fmt.Sprintf("%s not initialized", component),
	}
}

// MissingExport reports a toolkit module that lacks a required export
func MissingExport(name string) *Error {
	return &Error{
		Phase:  PhaseHost,
		Kind:   KindMissingExport,
		Detail: fmt.Sprintf("export %q not found in toolkit module", name),
	}
}

// GuestTrap wraps a trap raised by the toolkit module during a call
func GuestTrap(fn string, cause error) *Error {
	return &Error{
		Phase:  PhaseHost,
		Kind:   KindGuestTrap,
		Detail: fmt.Sprintf("call %s", fn),
		Cause:  cause,
	}
}

// Wrap wraps an existing error with phase, kind and detail context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// PartialLoadError is returned when enter-scope fails after some kernels
// were already loaded and the pool is not configured to roll them back.
// Loaded lists the kernels that remain loaded, in load order.
type PartialLoadError struct {
	Err    error
	Loaded []string
}

func (e *PartialLoadError) Error() string {
	var b strings.Builder
	if e.Err != nil {
		b.WriteString(e.Err.Error())
	}
	b.WriteString("; ")
	b.WriteString(fmt.Sprintf("%d kernel(s) left loaded", len(e.Loaded)))
	if len(e.Loaded) > 0 {
		b.WriteString(": ")
		b.WriteString(strings.Join(e.Loaded, ", "))
	}
	return b.String()
}

// Unwrap returns the load failure itself
func (e *PartialLoadError) Unwrap() error {
	return e.Err
}

// Is reports whether target is also a partial load error
func (e *PartialLoadError) Is(target error) bool {
	_, ok := target.(*PartialLoadError)
	return ok
}
