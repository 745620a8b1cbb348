package stableref

import "errors"

// Errors returned by the codec.
var (
	// ErrOffsetOutOfRange indicates an offset outside [0, Len].
	ErrOffsetOutOfRange = errors.New("offset out of range")

	// ErrStaleReference indicates the reference's anchor is unknown to the
	// resolving container, e.g. it was minted by an operation not yet merged.
	ErrStaleReference = errors.New("stale reference")

	// ErrForeignContainer indicates the reference was minted for a different
	// container.
	ErrForeignContainer = errors.New("reference belongs to another container")

	// ErrInvalidRef indicates the reference bytes could not be decoded.
	ErrInvalidRef = errors.New("invalid reference")
)
