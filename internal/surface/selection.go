package surface

import (
	"fmt"

	"github.com/dshills/costorm/internal/delta"
)

// Edit replaces the rune range [From, To) with Text.
type Edit = delta.Edit

// Range is a half-open rune range [From, To).
type Range struct {
	From int
	To   int
}

// Len returns the number of runes covered.
func (r Range) Len() int {
	return r.To - r.From
}

// IsEmpty returns true for a zero-width range.
func (r Range) IsEmpty() bool {
	return r.From == r.To
}

// Selection is the main selection of a surface.
// Anchor is where the selection started; Head is where typing occurs.
// When Anchor == Head the selection is a caret.
type Selection struct {
	Anchor int
	Head   int
}

// Caret returns a collapsed selection at offset.
func Caret(offset int) Selection {
	return Selection{Anchor: offset, Head: offset}
}

// IsEmpty returns true if the selection has no extent.
func (s Selection) IsEmpty() bool {
	return s.Anchor == s.Head
}

// Range returns the selection as an ordered range.
func (s Selection) Range() Range {
	if s.Anchor <= s.Head {
		return Range{From: s.Anchor, To: s.Head}
	}
	return Range{From: s.Head, To: s.Anchor}
}

// Clamp limits both ends to [0, length].
func (s Selection) Clamp(length int) Selection {
	return Selection{Anchor: clamp(s.Anchor, length), Head: clamp(s.Head, length)}
}

// String returns a debug representation.
func (s Selection) String() string {
	if s.IsEmpty() {
		return fmt.Sprintf("Caret(%d)", s.Head)
	}
	return fmt.Sprintf("Selection(%d->%d)", s.Anchor, s.Head)
}

func clamp(v, length int) int {
	if v < 0 {
		return 0
	}
	if v > length {
		return length
	}
	return v
}

// TransformOffset maps an offset through edits given in pre-edit
// coordinates, ascending and non-overlapping.
//
// Transformation rules, per edit:
//   - If the edit ends at or before offset: shift by the edit's delta
//   - If the edit starts at or after offset: no change
//   - If the edit spans offset: move to the end of the new text
func TransformOffset(offset int, edits []Edit) int {
	shift := 0
	for _, e := range edits {
		newLen := len([]rune(e.Text))
		switch {
		case e.To <= offset:
			shift += newLen - (e.To - e.From)
		case e.From >= offset:
			return offset + shift
		default:
			return e.From + shift + newLen
		}
	}
	return offset + shift
}

// TransformSelection maps both ends of a selection through edits.
func TransformSelection(s Selection, edits []Edit) Selection {
	return Selection{
		Anchor: TransformOffset(s.Anchor, edits),
		Head:   TransformOffset(s.Head, edits),
	}
}
