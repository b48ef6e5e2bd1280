// Package fault defines the error kinds shared by the codec packages.
//
// Every failure surfaced by fxcodec wraps one of the sentinel errors below, so
// callers can branch with errors.Is regardless of which package produced it.
package fault

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument reports a malformed request: a bad formatter symbol,
	// an out of range precision or a non-positive pool size.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInputMismatch reports that encoded input does not have the shape the
	// caller asked for: wrong field type, bad header magic or version skew.
	ErrInputMismatch = errors.New("input mismatch")

	// ErrTruncated reports that the input ended inside a header or payload.
	ErrTruncated = errors.New("input truncated")
)

// InvalidArgument returns an error wrapping ErrInvalidArgument.
func InvalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// Truncated returns an error wrapping ErrTruncated.
func Truncated(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrTruncated, fmt.Sprintf(format, args...))
}

// MismatchError describes a field read with a getter for another type.
type MismatchError struct {
	Field    string
	Expected string
	Actual   string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("input mismatch: field %q: expected type %s, got %s", e.Field, e.Expected, e.Actual)
}

// Is makes errors.Is(err, ErrInputMismatch) hold for a *MismatchError.
func (e *MismatchError) Is(target error) bool {
	return target == ErrInputMismatch
}
