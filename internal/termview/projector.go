// Package termview draws a surface and its remote presence onto a terminal.
package termview

import (
	"github.com/rivo/uniseg"

	"github.com/dshills/costorm/internal/presence"
	"github.com/dshills/costorm/internal/surface"
)

// Projector maps rune offsets of a surface to terminal cells. Rows are
// relative to the viewport top; columns are display widths, so wide runes
// take two cells.
type Projector struct {
	surface *surface.Surface
}

var _ presence.Projector = (*Projector)(nil)

// NewProjector creates a projector for s.
func NewProjector(s *surface.Surface) *Projector {
	return &Projector{surface: s}
}

// CoordsAt returns the caret cell at offset.
func (p *Projector) CoordsAt(offset int) (presence.Rect, bool) {
	line, col := p.surface.Position(offset)
	vp := p.surface.Viewport()
	if !vp.Contains(line) {
		return presence.Rect{}, false
	}
	lines := p.surface.Lines()
	return presence.Rect{
		X: prefixWidth(lines[line], col),
		Y: line - vp.Top,
		W: 1,
		H: 1,
	}, true
}

// RangeRects returns one rectangle per visible line of [from, to). A line
// break inside the range occupies one cell.
func (p *Projector) RangeRects(from, to int) []presence.Rect {
	if from >= to {
		return nil
	}
	fromLine, fromCol := p.surface.Position(from)
	toLine, toCol := p.surface.Position(to)
	vp := p.surface.Viewport()
	lines := p.surface.Lines()

	var rects []presence.Rect
	for ln := fromLine; ln <= toLine; ln++ {
		if !vp.Contains(ln) {
			continue
		}
		start, end := 0, len([]rune(lines[ln]))
		if ln == fromLine {
			start = fromCol
		}
		if ln == toLine {
			end = toCol
		}
		x0 := prefixWidth(lines[ln], start)
		w := prefixWidth(lines[ln], end) - x0
		if ln < toLine {
			w++
		}
		if w <= 0 {
			continue
		}
		rects = append(rects, presence.Rect{X: x0, Y: ln - vp.Top, W: w, H: 1})
	}
	return rects
}

// prefixWidth returns the display width of the first col runes of line.
func prefixWidth(line string, col int) int {
	runes := []rune(line)
	if col > len(runes) {
		col = len(runes)
	}
	return uniseg.StringWidth(string(runes[:col]))
}
