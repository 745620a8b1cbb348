package replica

import "errors"

// Errors returned by replica operations.
var (
	// ErrOffsetOutOfRange indicates an offset outside the text.
	ErrOffsetOutOfRange = errors.New("offset out of range")

	// ErrDetached indicates an edit was attempted while viewing a historical version.
	ErrDetached = errors.New("document is detached")

	// ErrVersionNotFound indicates a checkout to a version the document does not have.
	ErrVersionNotFound = errors.New("version not found")

	// ErrNothingToUndo indicates the undo stack is empty.
	ErrNothingToUndo = errors.New("nothing to undo")

	// ErrNothingToRedo indicates the redo stack is empty.
	ErrNothingToRedo = errors.New("nothing to redo")
)
