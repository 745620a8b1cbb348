package delta

import (
	"errors"
	"fmt"
)

// ErrMalformedBatch indicates a delta whose spans are invalid or exceed the
// length of the text it targets.
var ErrMalformedBatch = errors.New("malformed batch")

// MalformedError describes the first invalid op of a delta.
type MalformedError struct {
	// Index is the position of the offending op in the delta.
	Index int

	// Op is the offending op.
	Op Op

	// Reason describes what is wrong with the op.
	Reason string
}

// Error implements the error interface.
func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed batch: op %d (%s): %s", e.Index, e.Op, e.Reason)
}

// Unwrap returns ErrMalformedBatch.
func (e *MalformedError) Unwrap() error {
	return ErrMalformedBatch
}
