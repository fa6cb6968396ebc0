// Package errs defines the error taxonomy shared by every lottery operation.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies why an operation was rejected.
type Kind string

const (
	// PermissionDenied means the caller lacks the role the operation requires.
	PermissionDenied Kind = "PermissionDenied"
	// NotFound means a lottery, prize or address is unknown.
	NotFound Kind = "NotFound"
	// InvalidState means the operation is not allowed in the lottery's current status.
	InvalidState Kind = "InvalidState"
	// InvalidConfiguration means an input value or the resulting slot partition is invalid.
	InvalidConfiguration Kind = "InvalidConfiguration"
)

// Error is a classified domain error. Field names the input that triggered it, if any.
type Error struct {
	Kind    Kind
	Field   string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// New creates a classified error.
func New(kind Kind, field, message string) *Error {
	return &Error{Kind: kind, Field: field, Message: message}
}

// Newf creates a classified error with a formatted message.
func Newf(kind Kind, field, format string, args ...any) *Error {
	return &Error{Kind: kind, Field: field, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a classified error around an underlying cause.
func Wrap(kind Kind, field, message string, cause error) *Error {
	return &Error{Kind: kind, Field: field, Message: message, Cause: cause}
}

// Sentinels usable with errors.Is.
var (
	ErrPermissionDenied     = &Error{Kind: PermissionDenied}
	ErrNotFound             = &Error{Kind: NotFound}
	ErrInvalidState         = &Error{Kind: InvalidState}
	ErrInvalidConfiguration = &Error{Kind: InvalidConfiguration}
)

// KindOf returns the kind of the first *Error in err's chain, or "" if there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// FieldOf returns the field of the first *Error in err's chain.
func FieldOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Field
	}
	return ""
}
