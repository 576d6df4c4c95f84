package state

import "errors"

// Error taxonomy shared by every module. Module-specific errors wrap one of
// these so callers can match on the category with errors.Is.
var (
	ErrAccessDenied  = errors.New("access denied")
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrOutOfBounds   = errors.New("out of bounds")
	ErrExceeded      = errors.New("limit exceeded")
	ErrArithmetic    = errors.New("arithmetic error")
	ErrFrozen        = errors.New("frozen")
	ErrInFlight      = errors.New("operation in flight")
)
