// Package surface is a minimal text-editing surface: a rune buffer with one
// main selection, focus, a line viewport and tagged transactions.
//
// Every mutation is dispatched to listeners as an Update carrying the
// changed ranges and the tags of the transaction that caused it. Mutating
// the surface from inside a listener fails with ErrReentrantDispatch.
package surface

import (
	"fmt"
	"strings"
)

// Viewport is the visible window in lines.
type Viewport struct {
	Top    int
	Height int
}

// Contains reports whether line is visible.
func (v Viewport) Contains(line int) bool {
	return line >= v.Top && line < v.Top+v.Height
}

// Option configures a Surface.
type Option func(*Surface)

// WithText sets the initial content.
func WithText(text string) Option {
	return func(s *Surface) {
		s.text = []rune(text)
	}
}

// WithViewport sets the initial viewport.
func WithViewport(v Viewport) Option {
	return func(s *Surface) {
		s.viewport = v
	}
}

// WithNativeHistory enables or disables the surface's own undo stack.
// It is enabled by default.
func WithNativeHistory(enabled bool) Option {
	return func(s *Surface) {
		s.nativeHistory = enabled
	}
}

// Surface is an editable text buffer. It is not safe for concurrent use.
type Surface struct {
	text     []rune
	sel      Selection
	focused  bool
	viewport Viewport

	listeners   []*listener
	listenSeq   uint64
	dispatching bool

	nativeHistory bool
	history       *history
}

// New creates a surface.
func New(opts ...Option) *Surface {
	s := &Surface{
		viewport:      Viewport{Top: 0, Height: 24},
		nativeHistory: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.nativeHistory {
		s.history = newHistory(1000)
	}
	return s
}

// SetNativeHistory turns the surface's own undo stack on or off. Turning it
// off discards recorded entries.
func (s *Surface) SetNativeHistory(enabled bool) {
	s.nativeHistory = enabled
	switch {
	case !enabled:
		s.history = nil
	case s.history == nil:
		s.history = newHistory(1000)
	}
}

// NativeHistory reports whether the surface keeps its own undo stack.
func (s *Surface) NativeHistory() bool {
	return s.history != nil
}

// Text returns the buffer content.
func (s *Surface) Text() string {
	return string(s.text)
}

// Len returns the buffer length in runes.
func (s *Surface) Len() int {
	return len(s.text)
}

// Slice returns the text in r.
func (s *Surface) Slice(r Range) string {
	from, to := clamp(r.From, len(s.text)), clamp(r.To, len(s.text))
	if from >= to {
		return ""
	}
	return string(s.text[from:to])
}

// Selection returns the main selection.
func (s *Surface) Selection() Selection {
	return s.sel
}

// HasFocus returns true if the surface has input focus.
func (s *Surface) HasFocus() bool {
	return s.focused
}

// Viewport returns the visible window.
func (s *Surface) Viewport() Viewport {
	return s.viewport
}

// ApplyEdits applies edits given in pre-transaction coordinates as one
// transaction. Edits must be ascending and non-overlapping. The selection
// is mapped through the edits.
func (s *Surface) ApplyEdits(edits []Edit, tags ...Tag) error {
	if s.dispatching {
		return ErrReentrantDispatch
	}
	applied, err := s.validate(edits)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		return nil
	}

	var removed []string
	record := s.history != nil && !hasTag(tags, TagNativeHistory)
	if record {
		for _, e := range applied {
			removed = append(removed, string(s.text[e.From:e.To]))
		}
	}
	u := s.apply(applied, tags)
	if record {
		s.history.push(u.Changes, removed, u.SelectionBefore)
	}
	s.dispatch(u)
	return nil
}

// validate checks ordering and bounds and drops no-op edits.
func (s *Surface) validate(edits []Edit) ([]Edit, error) {
	var out []Edit
	last := 0
	for i, e := range edits {
		if e.From < 0 || e.To < e.From || e.To > len(s.text) {
			return nil, fmt.Errorf("%w: edit %d [%d:%d), length %d", ErrRangeOutOfBounds, i, e.From, e.To, len(s.text))
		}
		if e.From < last {
			return nil, fmt.Errorf("%w: edit %d starts at %d before %d", ErrOverlappingEdits, i, e.From, last)
		}
		last = e.To
		if e.IsNoOp() {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *Surface) apply(edits []Edit, tags []Tag) Update {
	u := Update{
		DocChanged:      true,
		SelectionBefore: s.sel,
		Focused:         s.focused,
		Tags:            tags,
	}

	var sb strings.Builder
	pos, shift := 0, 0
	for _, e := range edits {
		sb.WriteString(string(s.text[pos:e.From]))
		sb.WriteString(e.Text)
		pos = e.To

		n := len([]rune(e.Text))
		u.Changes = append(u.Changes, Change{
			FromA: e.From,
			ToA:   e.To,
			FromB: e.From + shift,
			ToB:   e.From + shift + n,
			Text:  e.Text,
		})
		shift += n - (e.To - e.From)
	}
	sb.WriteString(string(s.text[pos:]))

	s.text = []rune(sb.String())
	s.sel = TransformSelection(s.sel, edits).Clamp(len(s.text))
	u.Selection = s.sel
	return u
}

// Replace swaps the whole content in one transaction.
func (s *Surface) Replace(text string, tags ...Tag) error {
	return s.ApplyEdits([]Edit{{From: 0, To: len(s.text), Text: text}}, tags...)
}

// SetSelection sets the main selection.
func (s *Surface) SetSelection(sel Selection, tags ...Tag) error {
	if s.dispatching {
		return ErrReentrantDispatch
	}
	if sel.Anchor < 0 || sel.Head < 0 || sel.Anchor > len(s.text) || sel.Head > len(s.text) {
		return fmt.Errorf("%w: %s, length %d", ErrRangeOutOfBounds, sel, len(s.text))
	}
	before := s.sel
	s.sel = sel
	s.dispatch(Update{
		SelectionSet:    true,
		SelectionBefore: before,
		Selection:       sel,
		Focused:         s.focused,
		Tags:            tags,
	})
	return nil
}

// Focus gives the surface input focus.
func (s *Surface) Focus() error {
	return s.setFocus(true)
}

// Blur removes input focus.
func (s *Surface) Blur() error {
	return s.setFocus(false)
}

func (s *Surface) setFocus(focused bool) error {
	if s.dispatching {
		return ErrReentrantDispatch
	}
	if s.focused == focused {
		return nil
	}
	s.focused = focused
	s.dispatch(Update{
		FocusChanged:    true,
		SelectionBefore: s.sel,
		Selection:       s.sel,
		Focused:         focused,
	})
	return nil
}

// SetViewport changes the visible window.
func (s *Surface) SetViewport(v Viewport) error {
	if s.dispatching {
		return ErrReentrantDispatch
	}
	if v == s.viewport {
		return nil
	}
	s.viewport = v
	s.dispatch(Update{
		ViewportChanged: true,
		SelectionBefore: s.sel,
		Selection:       s.sel,
		Focused:         s.focused,
	})
	return nil
}

// ScrollIntoView moves the viewport so the start of r is visible.
func (s *Surface) ScrollIntoView(r Range) error {
	line, _ := s.Position(r.From)
	if s.viewport.Contains(line) {
		return nil
	}
	v := s.viewport
	if line < v.Top {
		v.Top = line
	} else {
		v.Top = line - v.Height + 1
	}
	if v.Top < 0 {
		v.Top = 0
	}
	return s.SetViewport(v)
}

// Position converts a rune offset to a zero-based line and column.
func (s *Surface) Position(offset int) (line, col int) {
	offset = clamp(offset, len(s.text))
	for _, r := range s.text[:offset] {
		if r == '\n' {
			line++
			col = 0
			continue
		}
		col++
	}
	return line, col
}

// Lines returns the buffer split into lines.
func (s *Surface) Lines() []string {
	return strings.Split(string(s.text), "\n")
}
