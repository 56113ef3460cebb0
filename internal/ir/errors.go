package ir

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes store errors.
type ErrorCode string

const (
	// ErrCodeInvalidArgument marks a malformed or empty required field.
	// The call is rejected before any effect.
	ErrCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"

	// ErrCodeIntegrityViolation marks a uniqueness conflict on an interning
	// insert. It is recovered inside the store and never reaches callers of
	// the public operations.
	ErrCodeIntegrityViolation ErrorCode = "INTEGRITY_VIOLATION"

	// ErrCodeCorruptState marks a fact row referencing an interned id that
	// does not exist. Fatal for the affected read only.
	ErrCodeCorruptState ErrorCode = "CORRUPT_STATE"

	// ErrCodeStorageUnavailable marks a failure of the persistence layer.
	// Previously committed state is untouched.
	ErrCodeStorageUnavailable ErrorCode = "STORAGE_UNAVAILABLE"
)

// Error is the typed error returned by store, query and cache operations.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Op names the failing operation, e.g. "uri lookup".
	Op string

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Op, msg)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewInvalidArgument creates an INVALID_ARGUMENT error.
func NewInvalidArgument(op, format string, args ...any) *Error {
	return &Error{Code: ErrCodeInvalidArgument, Op: op, Message: fmt.Sprintf(format, args...)}
}

// NewIntegrityViolation creates an INTEGRITY_VIOLATION error wrapping err.
func NewIntegrityViolation(op string, err error) *Error {
	return &Error{Code: ErrCodeIntegrityViolation, Op: op, Message: "uniqueness conflict", Err: err}
}

// NewCorruptState creates a CORRUPT_STATE error.
func NewCorruptState(op, format string, args ...any) *Error {
	return &Error{Code: ErrCodeCorruptState, Op: op, Message: fmt.Sprintf(format, args...)}
}

// NewStorageUnavailable creates a STORAGE_UNAVAILABLE error wrapping err.
// Returns nil when err is nil so call sites can wrap unconditionally.
func NewStorageUnavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return err
	}
	return &Error{Code: ErrCodeStorageUnavailable, Op: op, Err: err}
}

// CodeOf returns the code of the first *Error in err's chain, or "" if
// there is none.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsInvalidArgument reports whether err is an INVALID_ARGUMENT error.
func IsInvalidArgument(err error) bool {
	return CodeOf(err) == ErrCodeInvalidArgument
}

// IsIntegrityViolation reports whether err is an INTEGRITY_VIOLATION error.
func IsIntegrityViolation(err error) bool {
	return CodeOf(err) == ErrCodeIntegrityViolation
}

// IsCorruptState reports whether err is a CORRUPT_STATE error.
func IsCorruptState(err error) bool {
	return CodeOf(err) == ErrCodeCorruptState
}

// IsStorageUnavailable reports whether err is a STORAGE_UNAVAILABLE error.
func IsStorageUnavailable(err error) bool {
	return CodeOf(err) == ErrCodeStorageUnavailable
}
