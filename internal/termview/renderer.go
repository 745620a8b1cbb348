package termview

import (
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/rivo/uniseg"

	"github.com/dshills/costorm/internal/presence"
	"github.com/dshills/costorm/internal/surface"
)

// Renderer draws the surface text and remote presence onto a tcell screen.
// Its Render method is meant to be passed to presence.WithRenderer.
type Renderer struct {
	mu      sync.Mutex
	screen  tcell.Screen
	surface *surface.Surface
	proj    *Projector
	base    tcell.Style
}

// NewRenderer creates a renderer. The screen must already be initialized.
func NewRenderer(screen tcell.Screen, s *surface.Surface) *Renderer {
	return &Renderer{
		screen:  screen,
		surface: s,
		proj:    NewProjector(s),
		base:    tcell.StyleDefault,
	}
}

// Projector returns the projector the renderer places markers with.
func (r *Renderer) Projector() *Projector {
	return r.proj
}

// Render redraws the whole view. A nil or suppressed layer draws text only.
func (r *Renderer) Render(l *presence.Layer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.screen.Clear()
	r.drawText()
	carets, selections := l.Markers(r.proj)
	r.drawSelections(selections)
	r.drawCarets(carets)
	r.screen.Show()
}

func (r *Renderer) drawText() {
	width, height := r.screen.Size()
	vp := r.surface.Viewport()
	lines := r.surface.Lines()
	for row := 0; row < height && row < vp.Height; row++ {
		ln := vp.Top + row
		if ln >= len(lines) {
			break
		}
		x := 0
		g := uniseg.NewGraphemes(lines[ln])
		for g.Next() && x < width {
			runes := g.Runes()
			r.screen.SetContent(x, row, runes[0], runes[1:], r.base)
			w := g.Width()
			if w < 1 {
				w = 1
			}
			x += w
		}
	}
}

func (r *Renderer) drawSelections(selections []presence.SelectionMarker) {
	for _, sel := range selections {
		bg := ParseColor(sel.ColorClass)
		for _, rect := range sel.Rects {
			for y := rect.Y; y < rect.Y+rect.H; y++ {
				for x := rect.X; x < rect.X+rect.W; x++ {
					r.restyle(x, y, func(st tcell.Style) tcell.Style { return st.Background(bg) })
				}
			}
		}
	}
}

func (r *Renderer) drawCarets(carets []presence.CursorMarker) {
	width, height := r.screen.Size()
	for _, c := range carets {
		color := ParseColor(c.ColorClass)
		r.restyle(c.Rect.X, c.Rect.Y, func(st tcell.Style) tcell.Style {
			return st.Background(color).Foreground(tcell.ColorBlack)
		})

		// Name tag above the caret, or below it on the first row.
		y := c.Rect.Y - 1
		if y < 0 {
			y = c.Rect.Y + 1
		}
		if y >= height {
			continue
		}
		tag := tcell.StyleDefault.Background(color).Foreground(tcell.ColorBlack).Bold(true)
		x := c.Rect.X
		for _, ch := range c.Label {
			if x >= width {
				break
			}
			r.screen.SetContent(x, y, ch, nil, tag)
			x += max(uniseg.StringWidth(string(ch)), 1)
		}
	}
}

// restyle changes the style of the cell at (x, y) and keeps its content.
func (r *Renderer) restyle(x, y int, fn func(tcell.Style) tcell.Style) {
	width, height := r.screen.Size()
	if x < 0 || y < 0 || x >= width || y >= height {
		return
	}
	mainc, combc, style, _ := r.screen.GetContent(x, y) //nolint:staticcheck // GetContent is the correct API
	if mainc == 0 {
		mainc = ' '
	}
	r.screen.SetContent(x, y, mainc, combc, fn(style))
}

// ParseColor converts a "#rrggbb" color class to a terminal color. Anything
// else maps to the default color.
func ParseColor(class string) tcell.Color {
	c, err := colorful.Hex(class)
	if err != nil {
		return tcell.ColorDefault
	}
	r, g, b := c.RGB255()
	return tcell.NewRGBColor(int32(r), int32(g), int32(b))
}
