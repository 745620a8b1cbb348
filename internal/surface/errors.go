package surface

import "errors"

// Errors returned by surface operations.
var (
	// ErrReentrantDispatch indicates a mutation from inside an update listener.
	// Listeners that need to change the surface must defer the change until
	// the current dispatch has returned.
	ErrReentrantDispatch = errors.New("surface: mutation during update dispatch")

	// ErrRangeOutOfBounds indicates an edit or selection outside the text.
	ErrRangeOutOfBounds = errors.New("surface: range out of bounds")

	// ErrOverlappingEdits indicates edits that are unsorted or overlap.
	ErrOverlappingEdits = errors.New("surface: edits overlap or are out of order")

	// ErrNativeHistoryDisabled indicates Undo or Redo on a surface whose
	// history is owned by someone else.
	ErrNativeHistoryDisabled = errors.New("surface: native history disabled")

	// ErrNothingToUndo indicates the native undo stack is empty.
	ErrNothingToUndo = errors.New("surface: nothing to undo")

	// ErrNothingToRedo indicates the native redo stack is empty.
	ErrNothingToRedo = errors.New("surface: nothing to redo")
)
