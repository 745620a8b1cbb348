package surface

import "sort"

// Tag annotates a transaction so listeners can tell who caused it.
type Tag string

// Change describes one replaced range: [FromA, ToA) in the old text became
// [FromB, ToB) in the new text.
type Change struct {
	FromA, ToA int
	FromB, ToB int
	Text       string
}

// Update is delivered to listeners after every dispatched transaction.
type Update struct {
	Changes         []Change
	DocChanged      bool
	SelectionSet    bool // Selection was set explicitly, not only mapped through edits
	FocusChanged    bool
	ViewportChanged bool
	SelectionBefore Selection
	Selection       Selection
	Focused         bool
	Tags            []Tag
}

// HasTag reports whether the transaction carried tag.
func (u Update) HasTag(tag Tag) bool {
	return hasTag(u.Tags, tag)
}

func hasTag(tags []Tag, tag Tag) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

// SelectionChanged returns true if the selection moved or was set.
func (u Update) SelectionChanged() bool {
	return u.SelectionSet || u.Selection != u.SelectionBefore
}

// Priority orders listeners. Higher priorities run first.
type Priority int

const (
	PriorityLow    Priority = -100
	PriorityNormal Priority = 0
	PriorityHigh   Priority = 100
)

type listener struct {
	fn        func(Update)
	priority  Priority
	seq       uint64
	cancelled bool
}

// ListenOption configures a listener.
type ListenOption func(*listener)

// WithPriority sets the listener priority.
func WithPriority(p Priority) ListenOption {
	return func(l *listener) {
		l.priority = p
	}
}

// Listen registers fn for every update. The returned function removes the
// listener; calling it more than once is harmless.
func (s *Surface) Listen(fn func(Update), opts ...ListenOption) (cancel func()) {
	s.listenSeq++
	l := &listener{fn: fn, priority: PriorityNormal, seq: s.listenSeq}
	for _, opt := range opts {
		opt(l)
	}
	s.listeners = append(s.listeners, l)
	sort.SliceStable(s.listeners, func(i, j int) bool {
		return s.listeners[i].priority > s.listeners[j].priority
	})
	return func() {
		if l.cancelled {
			return
		}
		l.cancelled = true
		for i, other := range s.listeners {
			if other == l {
				s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
				break
			}
		}
	}
}

func (s *Surface) dispatch(u Update) {
	s.dispatching = true
	defer func() { s.dispatching = false }()

	listeners := append([]*listener(nil), s.listeners...)
	for _, l := range listeners {
		if !l.cancelled {
			l.fn(u)
		}
	}
}
