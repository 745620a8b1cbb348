package replica

import (
	"fmt"
	"strings"

	"github.com/dshills/costorm/internal/delta"
	"github.com/dshills/costorm/internal/stableref"
)

// noSeq marks an item that has not been deleted.
const noSeq = -1

// item is one character of the sequence. Deleted items stay in place as
// tombstones so references to them keep a position.
type item struct {
	id      ID
	parent  ID
	r       rune
	deleted bool
	insSeq  int // Index of the inserting change in the document log
	delSeq  int // Index of the first deleting change, or noSeq

	// restored is the copy that an undo inserted for this deleted item.
	// Cursors anchored here follow it.
	restored *item
}

// Text is a replicated text container (an RGA sequence of runes).
type Text struct {
	doc   *Doc
	id    delta.ContainerID
	items []*item
	byID  map[ID]*item
}

func newText(doc *Doc, name string) *Text {
	return &Text{
		doc:  doc,
		id:   delta.ContainerID("text:" + name),
		byID: make(map[ID]*item),
	}
}

// ID returns the container identity.
func (t *Text) ID() delta.ContainerID {
	return t.id
}

// visible reports whether it is part of the text in the current view.
// While the document is detached the view is the checked-out version.
func (t *Text) visible(it *item) bool {
	if !t.doc.detached {
		return !it.deleted
	}
	v := t.doc.view
	if it.insSeq >= v {
		return false
	}
	return it.delSeq == noSeq || it.delSeq >= v
}

// String returns the text in the current view.
func (t *Text) String() string {
	var sb strings.Builder
	for _, it := range t.items {
		if t.visible(it) {
			sb.WriteRune(it.r)
		}
	}
	return sb.String()
}

// Len returns the number of visible runes.
func (t *Text) Len() int {
	n := 0
	for _, it := range t.items {
		if t.visible(it) {
			n++
		}
	}
	return n
}

// nthVisible returns the slice index of the n-th visible item.
func (t *Text) nthVisible(n int) int {
	for i, it := range t.items {
		if !t.visible(it) {
			continue
		}
		if n == 0 {
			return i
		}
		n--
	}
	return -1
}

// indexOf returns the slice index of the item with the given id.
func (t *Text) indexOf(id ID) int {
	for i, it := range t.items {
		if it.id == id {
			return i
		}
	}
	return -1
}

// visibleBefore counts visible items before slice index i.
func (t *Text) visibleBefore(i int) int {
	n := 0
	for _, it := range t.items[:i] {
		if t.visible(it) {
			n++
		}
	}
	return n
}

// integrate places a new item after its parent, skipping concurrent
// siblings with larger IDs. Returns the slice index used.
func (t *Text) integrate(it *item) int {
	i := 0
	if !it.parent.IsZero() {
		i = t.indexOf(it.parent) + 1
	}
	for i < len(t.items) && it.id.Less(t.items[i].id) {
		i++
	}
	t.items = append(t.items, nil)
	copy(t.items[i+1:], t.items[i:])
	t.items[i] = it
	t.byID[it.id] = it
	return i
}

// Insert inserts s at a rune offset.
func (t *Text) Insert(offset int, s string) error {
	if t.doc.detached {
		return ErrDetached
	}
	if offset < 0 || offset > t.Len() {
		return fmt.Errorf("%w: insert at %d, length %d", ErrOffsetOutOfRange, offset, t.Len())
	}
	if s == "" {
		return nil
	}

	var parent ID
	if offset > 0 {
		parent = t.items[t.nthVisible(offset-1)].id
	}
	seq := len(t.doc.log)
	for _, r := range s {
		it := &item{
			id:     t.doc.tick(),
			parent: parent,
			r:      r,
			insSeq: seq,
			delSeq: noSeq,
		}
		t.integrate(it)
		t.doc.record(Op{Kind: OpInsert, Container: t.id, ID: it.id, Parent: parent, Rune: r})
		parent = it.id
	}
	t.doc.stage(t.id, []delta.Op{delta.Retain(offset), delta.Insert(s)})
	return nil
}

// Delete removes n runes starting at a rune offset.
func (t *Text) Delete(offset, n int) error {
	if t.doc.detached {
		return ErrDetached
	}
	length := t.Len()
	if offset < 0 || n < 0 || offset+n > length {
		return fmt.Errorf("%w: delete [%d:%d), length %d", ErrOffsetOutOfRange, offset, offset+n, length)
	}
	if n == 0 {
		return nil
	}

	seq := len(t.doc.log)
	var targets []*item
	for i := t.nthVisible(offset); i < len(t.items) && len(targets) < n; i++ {
		if it := t.items[i]; !it.deleted {
			targets = append(targets, it)
		}
	}
	for _, it := range targets {
		it.deleted = true
		it.delSeq = seq
		t.doc.record(Op{Kind: OpDelete, Container: t.id, Target: it.id})
	}
	t.doc.stage(t.id, []delta.Op{delta.Retain(offset), delta.Delete(n)})
	return nil
}

// applyRemote integrates a remote op and returns the delta it produced in
// the live view.
func (t *Text) applyRemote(op Op, seq int) []delta.Op {
	switch op.Kind {
	case OpInsert:
		if _, ok := t.byID[op.ID]; ok {
			return nil
		}
		it := &item{id: op.ID, parent: op.Parent, r: op.Rune, insSeq: seq, delSeq: noSeq}
		i := t.integrate(it)
		if old, ok := t.byID[op.Restores]; ok && !op.Restores.IsZero() {
			old.restored = it
		}
		return []delta.Op{delta.Retain(t.visibleBefore(i)), delta.Insert(string(op.Rune))}
	case OpDelete:
		it, ok := t.byID[op.Target]
		if !ok || it.deleted {
			return nil
		}
		pos := t.visibleBefore(t.indexOf(op.Target))
		it.deleted = true
		it.delSeq = seq
		return []delta.Op{delta.Retain(pos), delta.Delete(1)}
	}
	return nil
}

// knows reports whether an op's dependencies are present.
func (t *Text) knows(op Op) bool {
	switch op.Kind {
	case OpInsert:
		if op.Parent.IsZero() {
			return true
		}
		_, ok := t.byID[op.Parent]
		return ok
	case OpDelete:
		_, ok := t.byID[op.Target]
		return ok
	}
	return false
}

// CursorAt returns a cursor for a live offset. Offsets inside the text
// anchor before the character at offset; the end of a non-empty text
// anchors after its last character.
func (t *Text) CursorAt(offset int) (stableref.Cursor, error) {
	length := t.Len()
	if offset < 0 || offset > length {
		return stableref.Cursor{}, fmt.Errorf("%w: cursor at %d, length %d", ErrOffsetOutOfRange, offset, length)
	}
	if length == 0 {
		return stableref.Cursor{Container: t.id, Side: stableref.SideBefore}, nil
	}
	side := stableref.SideBefore
	n := offset
	if offset == length {
		side = stableref.SideAfter
		n = offset - 1
	}
	it := t.items[t.nthVisible(n)]
	return stableref.Cursor{
		Container: t.id,
		Peer:      uint64(it.id.Peer),
		Counter:   it.id.Counter,
		Side:      side,
	}, nil
}

// CursorPos resolves a cursor against the current view. A cursor anchored
// to a deleted character resolves to the boundary where it used to be.
func (t *Text) CursorPos(c stableref.Cursor) (int, error) {
	if c.Container != t.id {
		return 0, stableref.ErrForeignContainer
	}
	if !c.HasAnchor() {
		if c.Side == stableref.SideAfter {
			return t.Len(), nil
		}
		return 0, nil
	}
	id := ID{Peer: PeerID(c.Peer), Counter: c.Counter}
	it, ok := t.byID[id]
	if !ok {
		return 0, fmt.Errorf("%w: %s", stableref.ErrStaleReference, id)
	}
	for !t.visible(it) && it.restored != nil {
		it = it.restored
	}
	pos := t.visibleBefore(t.indexOf(it.id))
	if c.Side == stableref.SideAfter && t.visible(it) {
		pos++
	}
	return pos, nil
}
