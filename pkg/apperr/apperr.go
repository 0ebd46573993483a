// Package apperr defines the error taxonomy shared by all lifecycle
// operations. Every guard failure is one of these kinds; handlers map kinds
// to HTTP statuses and none of them is process-fatal.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a domain error.
type Kind int

const (
	// KindNotFound means an entity reference did not resolve.
	KindNotFound Kind = iota + 1
	// KindForbidden means the caller lacks the required relationship
	// (not the owning participant or organizer).
	KindForbidden
	// KindInvalidState means the operation is not legal from the entity's
	// current status.
	KindInvalidState
	// KindCapacityExceeded means admission would breach max_registrations
	// or allowed_check_ins.
	KindCapacityExceeded
	// KindAlreadyExists means a uniqueness rule would be violated.
	KindAlreadyExists
	// KindValidation means the input itself is malformed.
	KindValidation
)

// Error carries a kind and a user-facing message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an error of the given kind around a cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// NotFound builds a KindNotFound error.
func NotFound(message string) *Error { return New(KindNotFound, message) }

// Forbidden builds a KindForbidden error.
func Forbidden(message string) *Error { return New(KindForbidden, message) }

// InvalidState builds a KindInvalidState error.
func InvalidState(message string) *Error { return New(KindInvalidState, message) }

// CapacityExceeded builds a KindCapacityExceeded error.
func CapacityExceeded(message string) *Error { return New(KindCapacityExceeded, message) }

// AlreadyExists builds a KindAlreadyExists error.
func AlreadyExists(message string) *Error { return New(KindAlreadyExists, message) }

// Validation builds a KindValidation error.
func Validation(message string) *Error { return New(KindValidation, message) }

// KindOf returns the kind of err, or 0 if err carries no kind.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// Is reports whether err is a domain error of the given kind.
func Is(err error, kind Kind) bool { return KindOf(err) == kind }
