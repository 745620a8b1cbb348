// Package undo routes undo and redo through the replicated document's own
// history and puts the selection back where it was.
//
// The surface's native history must be disabled so there is only one
// history. Before every local edit the coordinator captures the selection
// as stable references; the document's undo manager stores it with the
// entry, and after an undo or redo step the selection is restored from it
// on the next tick, once the replayed change has reached the surface.
package undo

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/dshills/costorm/internal/diag"
	"github.com/dshills/costorm/internal/replica"
	"github.com/dshills/costorm/internal/scheduler"
	"github.com/dshills/costorm/internal/stableref"
	"github.com/dshills/costorm/internal/surface"
	"github.com/dshills/costorm/internal/textsync"
)

// Errors returned by the coordinator.
var (
	ErrNothingToUndo  = replica.ErrNothingToUndo
	ErrNothingToRedo  = replica.ErrNothingToRedo
	ErrUnknownCommand = errors.New("undo: unknown command")
)

// Command names the coordinator binds.
const (
	CommandUndo = "undo"
	CommandRedo = "redo"
)

// History is the document's undo manager.
type History interface {
	Undo() error
	Redo() error
	CanUndo() bool
	CanRedo() bool
	OnBeforePush(fn func(kind replica.PushKind) stableref.Pair)
	OnAfterPop(fn func(kind replica.PushKind, checkpoint stableref.Pair))
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		c.log = l
	}
}

// WithMetrics sets the metrics the coordinator counts into.
func WithMetrics(m *diag.Metrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// Coordinator owns undo and redo for one surface.
type Coordinator struct {
	history History
	text    stableref.Container
	surface *surface.Surface
	loop    *scheduler.Loop
	log     *slog.Logger
	metrics *diag.Metrics

	// last is the selection captured before the most recent local edit.
	last stableref.Pair

	destroyed bool
	unsub     func()
}

// New attaches a coordinator. It installs the history hooks and a
// high-priority surface listener that samples the selection before the
// sync bridge pushes an edit.
func New(h History, text stableref.Container, s *surface.Surface, loop *scheduler.Loop, opts ...Option) *Coordinator {
	c := &Coordinator{
		history: h,
		text:    text,
		surface: s,
		loop:    loop,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = diag.Discard()
	}
	c.log = diag.WithComponent(c.log, "undo")
	if c.metrics == nil {
		c.metrics = diag.NewMetrics()
	}

	h.OnBeforePush(c.onPush)
	h.OnAfterPop(c.onPop)
	c.unsub = s.Listen(c.onSurface, surface.WithPriority(surface.PriorityHigh))
	return c
}

// Close removes the hooks. Restores already deferred do nothing.
// Calling Close more than once is harmless.
func (c *Coordinator) Close() error {
	if c.destroyed {
		return nil
	}
	c.destroyed = true
	c.unsub()
	c.history.OnBeforePush(nil)
	c.history.OnAfterPop(nil)
	return nil
}

// RequestUndo reverts the last local edit. With nothing to undo it returns
// ErrNothingToUndo and changes nothing.
func (c *Coordinator) RequestUndo() error {
	if c.destroyed {
		return nil
	}
	if !c.history.CanUndo() {
		c.metrics.EmptyHistory.Inc()
		return ErrNothingToUndo
	}
	if err := c.history.Undo(); err != nil {
		return fmt.Errorf("undo: %w", err)
	}
	c.metrics.Undos.Inc()
	return nil
}

// RequestRedo reapplies the last undone edit. With nothing to redo it
// returns ErrNothingToRedo and changes nothing.
func (c *Coordinator) RequestRedo() error {
	if c.destroyed {
		return nil
	}
	if !c.history.CanRedo() {
		c.metrics.EmptyHistory.Inc()
		return ErrNothingToRedo
	}
	if err := c.history.Redo(); err != nil {
		return fmt.Errorf("redo: %w", err)
	}
	c.metrics.Redos.Inc()
	return nil
}

// Command runs a bound command by name.
func (c *Coordinator) Command(name string) error {
	switch name {
	case CommandUndo:
		return c.RequestUndo()
	case CommandRedo:
		return c.RequestRedo()
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, name)
	}
}

// onSurface captures the selection in effect before a local edit. It runs
// ahead of the sync bridge, so the container still holds the text the
// selection refers to.
func (c *Coordinator) onSurface(u surface.Update) {
	if c.destroyed || !u.DocChanged {
		return
	}
	if u.HasTag(textsync.TagSync) || u.HasTag(textsync.TagHistory) {
		return
	}
	sel := u.SelectionBefore
	pair, err := stableref.EncodePair(c.text, sel.Anchor, sel.Head)
	if err != nil {
		c.log.Warn("capturing selection", "selection", sel, "error", err)
		return
	}
	c.last = pair
}

// onPush supplies the checkpoint for a new history entry. Entries pushed
// by undo or redo reuse the last captured selection.
func (c *Coordinator) onPush(kind replica.PushKind) stableref.Pair {
	c.log.Debug("history push", "kind", kind)
	return c.last
}

// onPop restores the checkpoint of the entry just reverted.
func (c *Coordinator) onPop(kind replica.PushKind, cp stableref.Pair) {
	if cp.IsZero() {
		return
	}
	c.loop.Defer(func() {
		if c.destroyed {
			return
		}
		c.restore(kind, cp)
	})
}

func (c *Coordinator) restore(kind replica.PushKind, cp stableref.Pair) {
	anchor, head, err := stableref.DecodePair(c.text, cp)
	if err != nil {
		c.log.Warn("resolving checkpoint", "kind", kind, "error", err)
		return
	}
	sel := surface.Selection{Anchor: anchor, Head: head}.Clamp(c.surface.Len())
	if err := c.surface.SetSelection(sel, textsync.TagHistory); err != nil {
		c.log.Warn("restoring selection", "error", err)
		return
	}
	if err := c.surface.ScrollIntoView(sel.Range()); err != nil {
		c.log.Warn("scrolling to selection", "error", err)
	}
	c.log.Debug("restored selection", "kind", kind, "selection", sel)
}
