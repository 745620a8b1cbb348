package surface

// TagNativeHistory marks transactions produced by the surface's own undo.
const TagNativeHistory Tag = "surface.history"

// historyEntry holds one transaction and its inverse.
type historyEntry struct {
	undo      []Edit // Against the post-transaction text
	redo      []Edit // Against the pre-transaction text
	selection Selection
}

// history is the surface's own undo stack. Collaborative sessions disable
// it so that the replicated history is the only one.
type history struct {
	undoStack  []*historyEntry
	redoStack  []*historyEntry
	maxEntries int
}

func newHistory(maxEntries int) *history {
	return &history{maxEntries: maxEntries}
}

func (h *history) push(changes []Change, removed []string, before Selection) {
	e := &historyEntry{selection: before}
	for i, c := range changes {
		e.redo = append(e.redo, Edit{From: c.FromA, To: c.ToA, Text: c.Text})
		e.undo = append(e.undo, Edit{From: c.FromB, To: c.ToB, Text: removed[i]})
	}
	h.undoStack = append(h.undoStack, e)
	h.redoStack = nil
	if len(h.undoStack) > h.maxEntries {
		h.undoStack = h.undoStack[len(h.undoStack)-h.maxEntries:]
	}
}

// Undo reverts the last edit made through ApplyEdits.
func (s *Surface) Undo() error {
	if s.history == nil {
		return ErrNativeHistoryDisabled
	}
	h := s.history
	if len(h.undoStack) == 0 {
		return ErrNothingToUndo
	}
	e := h.undoStack[len(h.undoStack)-1]
	if err := s.ApplyEdits(e.undo, TagNativeHistory); err != nil {
		return err
	}
	h.undoStack = h.undoStack[:len(h.undoStack)-1]
	h.redoStack = append(h.redoStack, e)
	return s.SetSelection(e.selection.Clamp(len(s.text)), TagNativeHistory)
}

// Redo reapplies the last undone edit.
func (s *Surface) Redo() error {
	if s.history == nil {
		return ErrNativeHistoryDisabled
	}
	h := s.history
	if len(h.redoStack) == 0 {
		return ErrNothingToRedo
	}
	e := h.redoStack[len(h.redoStack)-1]
	if err := s.ApplyEdits(e.redo, TagNativeHistory); err != nil {
		return err
	}
	h.redoStack = h.redoStack[:len(h.redoStack)-1]
	h.undoStack = append(h.undoStack, e)
	return nil
}
