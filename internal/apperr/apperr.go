// Package apperr defines the failure taxonomy shared by the quest queue and
// flight list engines. Engines wrap these sentinels with context; the API
// layer maps them to transport status codes.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates a referenced character, quest, flight or position does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a uniqueness rule would be broken (duplicate assignment, flight code, linked flight).
	ErrConflict = errors.New("conflict")
	// ErrOutOfRange indicates an invalid list position.
	ErrOutOfRange = errors.New("position out of range")
	// ErrEmptyList indicates the operation needs a non-empty list.
	ErrEmptyList = errors.New("list is empty")
	// ErrInvalid indicates malformed input rejected before touching the store.
	ErrInvalid = errors.New("invalid input")
)

// StoreError is a StoreFailure: the underlying transaction failed and was rolled back.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store failure during %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NotFound wraps ErrNotFound with a formatted message.
func NotFound(format string, args ...any) error {
	return wrap(ErrNotFound, format, args...)
}

// Conflict wraps ErrConflict with a formatted message.
func Conflict(format string, args ...any) error {
	return wrap(ErrConflict, format, args...)
}

// OutOfRange wraps ErrOutOfRange with a formatted message.
func OutOfRange(format string, args ...any) error {
	return wrap(ErrOutOfRange, format, args...)
}

// Empty wraps ErrEmptyList with a formatted message.
func Empty(format string, args ...any) error {
	return wrap(ErrEmptyList, format, args...)
}

// Invalid wraps ErrInvalid with a formatted message.
func Invalid(format string, args ...any) error {
	return wrap(ErrInvalid, format, args...)
}

func wrap(sentinel error, format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), sentinel)
}

// Store classifies err for operation op. Typed failures pass through
// unchanged; anything else becomes a *StoreError.
func Store(op string, err error) error {
	if err == nil {
		return nil
	}
	if Typed(err) {
		return err
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

// Typed reports whether err carries one of the domain sentinels.
func Typed(err error) bool {
	for _, s := range []error{ErrNotFound, ErrConflict, ErrOutOfRange, ErrEmptyList, ErrInvalid} {
		if errors.Is(err, s) {
			return true
		}
	}
	return false
}

// Code returns a machine-readable code for err.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrConflict):
		return "CONFLICT"
	case errors.Is(err, ErrOutOfRange):
		return "OUT_OF_RANGE"
	case errors.Is(err, ErrEmptyList):
		return "EMPTY_LIST"
	case errors.Is(err, ErrInvalid):
		return "INVALID"
	default:
		return "STORE_FAILURE"
	}
}
