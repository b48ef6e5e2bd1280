package fxcodec

import "github.com/starfederation/fxcodec/fault"

// Error kinds returned by Writer and Reader; see package fault.
var (
	ErrInvalidArgument = fault.ErrInvalidArgument
	ErrInputMismatch   = fault.ErrInputMismatch
	ErrTruncated       = fault.ErrTruncated
)

// MismatchError is returned by a typed getter called for another field type.
type MismatchError = fault.MismatchError
