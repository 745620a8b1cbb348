package presence

import "github.com/dshills/costorm/internal/replica"

// Rect is a screen rectangle in the projector's units.
type Rect struct {
	X, Y int
	W, H int
}

// Projector maps text offsets to screen geometry.
type Projector interface {
	// CoordsAt returns the rectangle of the caret position at offset, or
	// false if it is not on screen.
	CoordsAt(offset int) (Rect, bool)

	// RangeRects returns the on-screen rectangles covering [from, to).
	RangeRects(from, to int) []Rect
}

// Dirty records why a layer was recomputed.
type Dirty uint8

const (
	DirtyDoc Dirty = 1 << iota
	DirtyViewport
	DirtyPresence
)

// Decoration is a remote peer's resolved selection.
type Decoration struct {
	Peer   replica.PeerID
	Anchor int
	Head   int
	Label  string
	Color  string
}

// HasSelection returns true unless anchor and head coincide.
func (d Decoration) HasSelection() bool {
	return d.Anchor != d.Head
}

// CursorMarker is a caret with a name tag.
type CursorMarker struct {
	Peer       replica.PeerID
	Rect       Rect
	Label      string
	ColorClass string
}

// SelectionMarker highlights a selected range.
type SelectionMarker struct {
	Peer       replica.PeerID
	Rects      []Rect
	ColorClass string
}

// Layer is the decoration state of every remote peer at one point in
// time. A suppressed layer draws nothing.
type Layer struct {
	decorations []Decoration
	suppressed  bool
	dirty       Dirty
}

// Decorations returns the resolved remote selections, ordered by peer.
func (l *Layer) Decorations() []Decoration {
	if l == nil || l.suppressed {
		return nil
	}
	return append([]Decoration(nil), l.decorations...)
}

// Decoration returns one peer's decoration.
func (l *Layer) Decoration(peer replica.PeerID) (Decoration, bool) {
	for _, d := range l.Decorations() {
		if d.Peer == peer {
			return d, true
		}
	}
	return Decoration{}, false
}

// Suppressed returns true while the document shows a historical version.
func (l *Layer) Suppressed() bool {
	return l != nil && l.suppressed
}

// Dirty returns what triggered the recompute.
func (l *Layer) Dirty() Dirty {
	if l == nil {
		return 0
	}
	return l.dirty
}

// Markers projects the decorations. A collapsed selection yields only a
// caret.
func (l *Layer) Markers(p Projector) ([]CursorMarker, []SelectionMarker) {
	var carets []CursorMarker
	var selections []SelectionMarker
	for _, d := range l.Decorations() {
		if d.HasSelection() {
			from, to := d.Anchor, d.Head
			if from > to {
				from, to = to, from
			}
			if rects := p.RangeRects(from, to); len(rects) > 0 {
				selections = append(selections, SelectionMarker{Peer: d.Peer, Rects: rects, ColorClass: d.Color})
			}
		}
		if r, ok := p.CoordsAt(d.Head); ok {
			carets = append(carets, CursorMarker{Peer: d.Peer, Rect: r, Label: d.Label, ColorClass: d.Color})
		}
	}
	return carets, selections
}
