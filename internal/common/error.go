// Package common defines the error taxonomy and small helpers shared by the
// storage, repository and CLI layers of GophChat. Callers should use errors.Is
// to match the kind sentinels and errors.As to obtain the typed *Error.
package common

import (
	"errors"
	"fmt"
)

var (
	// Storage-level errors.
	ErrorNotFound = errors.New("not found")

	// Error kinds. Every *Error unwraps to exactly one of these.
	ErrValidation = errors.New("validation error")
	ErrAuth       = errors.New("auth error")
	ErrNotFound   = errors.New("not found error")
	ErrBackend    = errors.New("backend error")
)

// Error is a typed domain failure carrying a human-readable reason.
type Error struct {
	// Kind is one of ErrValidation, ErrAuth, ErrNotFound or ErrBackend.
	Kind error
	// Op names the repository operation that failed, e.g. "send message".
	Op string
	// Reason is shown to the user verbatim.
	Reason string
	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Reason == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Reason
}

// Unwrap exposes both the kind sentinel and the cause.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Validation reports rejected input. No state was mutated.
func Validation(op, reason string) *Error {
	return &Error{Kind: ErrValidation, Op: op, Reason: reason}
}

// Auth reports a credential or identity failure.
func Auth(op, reason string) *Error {
	return &Error{Kind: ErrAuth, Op: op, Reason: reason}
}

// NotFound reports an operation against an id with no backing record.
func NotFound(op, what, id string) *Error {
	return &Error{Kind: ErrNotFound, Op: op, Reason: fmt.Sprintf("%s %q does not exist", what, id), Err: ErrorNotFound}
}

// Backend wraps a storage or network failure. It is never retried.
func Backend(op string, err error) *Error {
	return &Error{Kind: ErrBackend, Op: op, Err: err}
}

// Reason returns the human-readable reason of err, falling back to err.Error().
func Reason(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Error()
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
