// Package apperror defines the error taxonomy returned by the approval engine.
package apperror

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers and transports
type Kind string

const (
	KindNotFound     Kind = "NOT_FOUND"
	KindInvalidState Kind = "INVALID_STATE"
	KindUnauthorized Kind = "UNAUTHORIZED"
	KindValidation   Kind = "VALIDATION"
	KindStaleState   Kind = "STALE_STATE"
	KindInternal     Kind = "INTERNAL"
)

// Sentinel values for errors.Is comparisons. Only the Kind is compared.
var (
	ErrNotFound     = &Error{Kind: KindNotFound, Message: "not found"}
	ErrInvalidState = &Error{Kind: KindInvalidState, Message: "invalid state"}
	ErrUnauthorized = &Error{Kind: KindUnauthorized, Message: "unauthorized"}
	ErrValidation   = &Error{Kind: KindValidation, Message: "validation failed"}
	ErrStaleState   = &Error{Kind: KindStaleState, Message: "stale state"}
)

// Error is a classified application error
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the cause error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error of the same Kind
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// NotFound creates a NOT_FOUND error
func NotFound(format string, args ...interface{}) *Error {
	return newf(KindNotFound, format, args...)
}

// InvalidState creates an INVALID_STATE error
func InvalidState(format string, args ...interface{}) *Error {
	return newf(KindInvalidState, format, args...)
}

// Unauthorized creates an UNAUTHORIZED error
func Unauthorized(format string, args ...interface{}) *Error {
	return newf(KindUnauthorized, format, args...)
}

// Validation creates a VALIDATION error
func Validation(format string, args ...interface{}) *Error {
	return newf(KindValidation, format, args...)
}

// StaleState creates a STALE_STATE error
func StaleState(format string, args ...interface{}) *Error {
	return newf(KindStaleState, format, args...)
}

// Wrap attaches a kind and message to an underlying cause
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf returns the Kind of the first *Error in err's chain, or KindInternal
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}
