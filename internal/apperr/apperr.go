// Package apperr defines the classified error type shared by ZodiacBot
// services. The transport layer maps codes to HTTP statuses and renders the
// user-facing message in the caller's language.
package apperr

import (
	"errors"
	"net/http"
)

// Code classifies a failure.
type Code string

const (
	// CodeNotFound means the user or record does not exist.
	CodeNotFound Code = "not_found"
	// CodeValidation means the request is structurally invalid or breaks a
	// business rule.
	CodeValidation Code = "validation"
	// CodeUpstream means an external collaborator failed or timed out.
	CodeUpstream Code = "upstream"
	// CodeInternal is any other failure.
	CodeInternal Code = "internal"
)

// HTTPStatus returns the status code the transport reports for c.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified failure.
type Error struct {
	Code    Code
	Message string // internal message for logs
	Key     string // message catalog key for the user-facing text
	Args    []any  // arguments for Key
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// Localize attaches a catalog key and its arguments.
func (e *Error) Localize(key string, args ...any) *Error {
	e.Key = key
	e.Args = args
	return e
}

// New creates an error with a code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates an error that wraps cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// NotFound is shorthand for New(CodeNotFound, message).
func NotFound(message string) *Error { return New(CodeNotFound, message) }

// Validation is shorthand for New(CodeValidation, message).
func Validation(message string) *Error { return New(CodeValidation, message) }

// Upstream is shorthand for Wrap(CodeUpstream, message, cause).
func Upstream(message string, cause error) *Error { return Wrap(CodeUpstream, message, cause) }

// CodeOf returns the code of the first *Error in err's chain, or
// CodeInternal when there is none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
