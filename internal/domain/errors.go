package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failure so transports can map it without string matching.
type ErrorKind string

const (
	KindNotFound           ErrorKind = "NOT_FOUND"
	KindForbidden          ErrorKind = "FORBIDDEN"
	KindConflict           ErrorKind = "CONFLICT"
	KindInvariantViolation ErrorKind = "INVARIANT_VIOLATION"
	KindBusy               ErrorKind = "BUSY"
	KindInvalidArgument    ErrorKind = "INVALID_ARGUMENT"
	KindInternal           ErrorKind = "INTERNAL"
)

// Error is the error type returned by services and repositories.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message != "" {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Expected reports whether the error is the caller's to fix rather than a server fault.
func (e *Error) Expected() bool {
	switch e.Kind {
	case KindNotFound, KindForbidden, KindConflict, KindInvalidArgument, KindBusy:
		return true
	}
	return false
}

// Is lets the bare kind sentinels below match any Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

var (
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrForbidden          = &Error{Kind: KindForbidden}
	ErrConflict           = &Error{Kind: KindConflict}
	ErrInvariantViolation = &Error{Kind: KindInvariantViolation}
	ErrBusy               = &Error{Kind: KindBusy}
	ErrInvalidArgument    = &Error{Kind: KindInvalidArgument}
)

func newError(kind ErrorKind, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) error {
	return newError(KindNotFound, format, args...)
}

func Forbidden(format string, args ...any) error {
	return newError(KindForbidden, format, args...)
}

func Conflict(format string, args ...any) error {
	return newError(KindConflict, format, args...)
}

func InvariantViolation(format string, args ...any) error {
	return newError(KindInvariantViolation, format, args...)
}

func InvalidArgument(format string, args ...any) error {
	return newError(KindInvalidArgument, format, args...)
}

// Busy wraps a lock or timeout failure from the store.
func Busy(cause error, format string, args ...any) error {
	return &Error{Kind: KindBusy, Message: fmt.Sprintf(format, args...), Err: cause}
}

// KindOf returns the kind of the first domain Error in err's chain, or KindInternal.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// MessageOf returns the user-facing message for err.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) && de.Message != "" {
		return de.Message
	}
	return "internal server error"
}
