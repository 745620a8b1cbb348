package stableref

import (
	"fmt"

	"github.com/dshills/costorm/internal/delta"
)

// Side says which boundary of the anchored character a cursor denotes.
type Side int8

const (
	// SideBefore is the boundary immediately before the anchored character.
	SideBefore Side = iota

	// SideAfter is the boundary immediately after the anchored character.
	SideAfter
)

// Cursor is the decoded form of a reference: a character identity inside a
// container plus a side. A cursor without an anchor (Peer and Counter zero)
// denotes the start (SideBefore) or the end (SideAfter) of the text.
type Cursor struct {
	Container delta.ContainerID
	Peer      uint64
	Counter   uint32
	Side      Side
}

// HasAnchor returns true if the cursor is anchored to a character.
func (c Cursor) HasAnchor() bool {
	return c.Peer != 0 || c.Counter != 0
}

// String returns a human-readable representation of the cursor.
func (c Cursor) String() string {
	side := "before"
	if c.Side == SideAfter {
		side = "after"
	}
	if !c.HasAnchor() {
		if c.Side == SideAfter {
			return fmt.Sprintf("%s:end", c.Container)
		}
		return fmt.Sprintf("%s:start", c.Container)
	}
	return fmt.Sprintf("%s:%d@%d:%s", c.Container, c.Counter, c.Peer, side)
}

// Container is the part of a replicated text container the codec needs.
type Container interface {
	// ID returns the container's identity.
	ID() delta.ContainerID

	// Len returns the current length in runes.
	Len() int

	// CursorAt returns a cursor for a live offset in [0, Len].
	CursorAt(offset int) (Cursor, error)

	// CursorPos resolves a cursor to a live offset. Unknown anchors yield
	// ErrStaleReference.
	CursorPos(c Cursor) (int, error)
}
