package core

import (
	"errors"
	"fmt"
)

// Code classifies an Error for callers that map failures to user-visible behaviour.
type Code string

const (
	// CodeValidation covers missing capabilities, malformed modules, invalid
	// providers and duplicate registrations.
	CodeValidation Code = "VALIDATION_ERROR"
	// CodeNotFound is returned by lookups of keys, adapters or modules that do not exist.
	CodeNotFound Code = "NOT_FOUND"
	// CodeUnknown wraps unexpected errors raised inside a use-case, hook or handler.
	CodeUnknown Code = "UNKNOWN"
)

// Error kinds. Match them with errors.Is.
var (
	ErrDependencyNotRegistered = errors.New("dependency not registered")
	ErrInvalidProvider         = errors.New("invalid provider")
	ErrAdapterNotFound         = errors.New("adapter not found")
	ErrAlreadyRegistered       = errors.New("already registered")
	ErrMissingCapabilities     = errors.New("missing capabilities")
	ErrInvalidModuleShape      = errors.New("invalid module shape")
	ErrTypeMismatch            = errors.New("type mismatch")
	ErrHandlerPanic            = errors.New("panic")
)

// Error is the single error type surfaced by the runtime.
//
// Kind is one of the sentinel errors above (or nil for plain UNKNOWN wraps),
// Cause is the underlying error if any, and Context carries inspectable detail
// such as the module id or the list of missing capabilities.
type Error struct {
	Code    Code
	Kind    error
	Message string
	Cause   error
	Context map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return e.Message + ": " + e.Cause.Error()
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Cause != nil {
		out = append(out, e.Cause)
	}
	return out
}

// With returns a copy of e with key set in its context.
func (e *Error) With(key string, val any) *Error {
	cp := *e
	cp.Context = make(map[string]any, len(e.Context)+1)
	for k, v := range e.Context {
		cp.Context[k] = v
	}
	cp.Context[key] = val
	return &cp
}

// Validation builds a VALIDATION_ERROR of the given kind.
func Validation(kind error, format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// NotFound builds a NOT_FOUND error of the given kind.
func NotFound(kind error, format string, args ...any) *Error {
	return &Error{Code: CodeNotFound, Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap returns err unchanged when it already carries an *Error somewhere in its
// chain, and otherwise wraps it as UNKNOWN with msg as the message.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Code: CodeUnknown, Message: msg, Cause: err}
}

// Recovered converts a recovered panic value into an UNKNOWN error.
func Recovered(rec any, msg string) *Error {
	cause, ok := rec.(error)
	if !ok {
		cause = fmt.Errorf("%v", rec)
	}
	return &Error{Code: CodeUnknown, Kind: ErrHandlerPanic, Message: msg, Cause: cause}
}

// CodeOf reports the Code of the first *Error in err's chain, or CodeUnknown.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}
