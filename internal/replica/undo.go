package replica

import (
	"time"

	"github.com/dshills/costorm/internal/delta"
	"github.com/dshills/costorm/internal/stableref"
)

// PushKind tells a push hook why an entry is being recorded.
type PushKind uint8

const (
	PushEdit PushKind = iota // A local commit
	PushUndo                 // The counter-entry of a redo, or an undo being popped
	PushRedo                 // The counter-entry of an undo, or a redo being popped
)

// String returns the kind name.
func (k PushKind) String() string {
	switch k {
	case PushEdit:
		return "edit"
	case PushUndo:
		return "undo"
	case PushRedo:
		return "redo"
	default:
		return "unknown"
	}
}

// charRef names one character of one container.
type charRef struct {
	container delta.ContainerID
	id        ID
}

// undoEntry holds the effects of one or more local commits.
type undoEntry struct {
	inserted   []charRef
	deleted    []charRef
	checkpoint stableref.Pair
	timestamp  time.Time
}

func (e *undoEntry) add(ch Change) {
	for _, op := range ch.Ops {
		switch op.Kind {
		case OpInsert:
			e.inserted = append(e.inserted, charRef{op.Container, op.ID})
		case OpDelete:
			e.deleted = append(e.deleted, charRef{op.Container, op.Target})
		}
	}
}

// UndoManager keeps undo and redo stacks of this peer's local commits.
// Undoing reverts only what this peer did: concurrent remote edits stay.
// Reverts are committed as ordinary changes with OriginHistory, so they
// replicate like any other edit.
type UndoManager struct {
	doc *Doc

	undoStack []*undoEntry
	redoStack []*undoEntry

	grouping bool
	group    *undoEntry

	maxEntries int

	onPush func(PushKind) stableref.Pair
	onPop  func(PushKind, stableref.Pair)
}

// NewUndoManager attaches an undo manager to d. maxEntries bounds the undo
// stack; values <= 0 select the default of 1000.
func NewUndoManager(d *Doc, maxEntries int) *UndoManager {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	m := &UndoManager{doc: d, maxEntries: maxEntries}
	d.undo = m
	return m
}

// Detach stops recording local commits. The stacks are discarded.
func (m *UndoManager) Detach() {
	if m.doc.undo == m {
		m.doc.undo = nil
	}
	m.undoStack = nil
	m.redoStack = nil
	m.onPush = nil
	m.onPop = nil
}

// OnBeforePush sets the hook that supplies the checkpoint stored with a
// new entry. It is called before a local commit is recorded and before an
// undo or redo is applied.
func (m *UndoManager) OnBeforePush(fn func(kind PushKind) stableref.Pair) {
	m.onPush = fn
}

// OnAfterPop sets the hook that receives an entry's checkpoint after the
// entry has been reverted. kind is PushUndo for an undo and PushRedo for a
// redo.
func (m *UndoManager) OnAfterPop(fn func(kind PushKind, checkpoint stableref.Pair)) {
	m.onPop = fn
}

func (m *UndoManager) checkpoint(kind PushKind) stableref.Pair {
	if m.onPush == nil {
		return stableref.Pair{}
	}
	return m.onPush(kind)
}

// record is called by Doc.Commit for every local change.
func (m *UndoManager) record(ch Change) {
	if m.grouping {
		if m.group == nil {
			m.group = &undoEntry{checkpoint: m.checkpoint(PushEdit), timestamp: time.Now()}
		}
		m.group.add(ch)
		return
	}
	e := &undoEntry{checkpoint: m.checkpoint(PushEdit), timestamp: time.Now()}
	e.add(ch)
	m.push(e)
}

func (m *UndoManager) push(e *undoEntry) {
	m.undoStack = append(m.undoStack, e)
	m.redoStack = nil

	if len(m.undoStack) > m.maxEntries {
		excess := len(m.undoStack) - m.maxEntries
		m.undoStack = m.undoStack[excess:]
	}
}

// BeginGroup starts merging local commits into a single undo entry.
func (m *UndoManager) BeginGroup() {
	if m.grouping {
		return
	}
	m.grouping = true
	m.group = nil
}

// EndGroup finishes the current group.
func (m *UndoManager) EndGroup() {
	if !m.grouping {
		return
	}
	m.grouping = false
	if m.group != nil {
		m.push(m.group)
		m.group = nil
	}
}

// Undo reverts the most recent local entry still on the undo stack.
func (m *UndoManager) Undo() error {
	if len(m.undoStack) == 0 {
		return ErrNothingToUndo
	}
	if m.doc.detached {
		return ErrDetached
	}
	entry := m.undoStack[len(m.undoStack)-1]
	m.undoStack = m.undoStack[:len(m.undoStack)-1]

	counter := m.revert(entry, PushRedo)
	if counter != nil {
		m.redoStack = append(m.redoStack, counter)
	}
	if m.onPop != nil {
		m.onPop(PushUndo, entry.checkpoint)
	}
	return nil
}

// Redo reapplies the most recently undone entry.
func (m *UndoManager) Redo() error {
	if len(m.redoStack) == 0 {
		return ErrNothingToRedo
	}
	if m.doc.detached {
		return ErrDetached
	}
	entry := m.redoStack[len(m.redoStack)-1]
	m.redoStack = m.redoStack[:len(m.redoStack)-1]

	counter := m.revert(entry, PushUndo)
	if counter != nil {
		m.undoStack = append(m.undoStack, counter)
	}
	if m.onPop != nil {
		m.onPop(PushRedo, entry.checkpoint)
	}
	return nil
}

// CanUndo returns true if undo is available.
func (m *UndoManager) CanUndo() bool {
	return len(m.undoStack) > 0
}

// CanRedo returns true if redo is available.
func (m *UndoManager) CanRedo() bool {
	return len(m.redoStack) > 0
}

// UndoCount returns the number of entries on the undo stack.
func (m *UndoManager) UndoCount() int {
	return len(m.undoStack)
}

// RedoCount returns the number of entries on the redo stack.
func (m *UndoManager) RedoCount() int {
	return len(m.redoStack)
}

// revert applies the inverse of e as one OriginHistory commit and returns
// the entry that would revert it again. Characters inserted by e that are
// already gone are skipped; deleted characters come back as new
// characters placed right after their tombstones.
func (m *UndoManager) revert(e *undoEntry, counterKind PushKind) *undoEntry {
	d := m.doc
	cp := m.checkpoint(counterKind)
	d.Commit()

	for i := len(e.inserted) - 1; i >= 0; i-- {
		ref := e.inserted[i]
		t, ok := d.texts[ref.container]
		if !ok {
			continue
		}
		t.deleteID(ref.id)
	}
	for _, ref := range e.deleted {
		t, ok := d.texts[ref.container]
		if !ok {
			continue
		}
		t.restore(ref.id)
	}

	ch := d.commit(delta.OriginHistory)
	if ch == nil {
		return nil
	}
	counter := &undoEntry{checkpoint: cp, timestamp: time.Now()}
	counter.add(*ch)
	return counter
}

// deleteID tombstones a visible character by identity.
func (t *Text) deleteID(id ID) {
	it, ok := t.byID[id]
	if !ok || it.deleted {
		return
	}
	pos := t.visibleBefore(t.indexOf(id))
	it.deleted = true
	it.delSeq = len(t.doc.log)
	t.doc.record(Op{Kind: OpDelete, Container: t.id, Target: id})
	t.doc.stage(t.id, []delta.Op{delta.Retain(pos), delta.Delete(1)})
}

// restore inserts a copy of a deleted character directly after it.
func (t *Text) restore(id ID) {
	old, ok := t.byID[id]
	if !ok || !old.deleted {
		return
	}
	it := &item{
		id:     t.doc.tick(),
		parent: id,
		r:      old.r,
		insSeq: len(t.doc.log),
		delSeq: noSeq,
	}
	i := t.integrate(it)
	old.restored = it
	t.doc.record(Op{Kind: OpInsert, Container: t.id, ID: it.id, Parent: id, Rune: it.r, Restores: id})
	t.doc.stage(t.id, []delta.Op{delta.Retain(t.visibleBefore(i)), delta.Insert(string(it.r))})
}
