// Package bridge composes the sync, presence and undo bridges against one
// editing session.
//
// A Session carries everything the components share: the replicated
// document and its text container, the editing surface, the presence store,
// the scheduler that defines "next tick", and the diagnostics sinks. There is
// no process-wide state; two sessions in one process are independent.
package bridge

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/costorm/internal/config"
	"github.com/dshills/costorm/internal/diag"
	"github.com/dshills/costorm/internal/presence"
	"github.com/dshills/costorm/internal/replica"
	"github.com/dshills/costorm/internal/scheduler"
	"github.com/dshills/costorm/internal/surface"
	"github.com/dshills/costorm/internal/textsync"
	"github.com/dshills/costorm/internal/undo"
)

// Errors returned by Attach.
var (
	// ErrIncompleteSession indicates a required session field is nil.
	ErrIncompleteSession = errors.New("incomplete session")

	// ErrUndoRequiresSync indicates undo was enabled without sync.
	ErrUndoRequiresSync = errors.New("undo requires sync")

	// ErrPresenceRequiresSync indicates presence was enabled without sync.
	// Cursor references are encoded against the container, which only
	// tracks the buffer while sync is attached.
	ErrPresenceRequiresSync = errors.New("presence requires sync")
)

// Session is the explicit per-session context shared by all components.
type Session struct {
	// ID labels the session in logs. Attach assigns a random one if empty.
	ID      string
	Doc     *replica.Doc
	Text    *replica.Text
	Surface *surface.Surface
	Store   presence.Store
	Loop    *scheduler.Loop
	Logger  *slog.Logger
	Metrics *diag.Metrics
}

// Config selects which components Attach installs. Undo and presence both
// require sync. Enabling undo turns off the surface's native history.
type Config struct {
	Sync     bool
	Presence bool
	Undo     bool

	// UndoMaxEntries bounds the undo stack. Zero uses the default.
	UndoMaxEntries int
	Identity       presence.Identity
	Renderers      []func(*presence.Layer)
}

// FromConfig derives an attach configuration from loaded settings.
// All three components are enabled unless undo is switched off.
func FromConfig(c *config.Config) Config {
	return Config{
		Sync:           true,
		Presence:       true,
		Undo:           c.Undo.Enabled,
		UndoMaxEntries: c.Undo.MaxEntries,
		Identity:       IdentityFromConfig(c),
	}
}

// IdentityFromConfig returns the presence identity from the peer section.
func IdentityFromConfig(c *config.Config) presence.Identity {
	return presence.Identity{DisplayName: c.Peer.Name, ColorClass: c.Peer.Color}
}

// NewStore returns the presence store for mode.
func NewStore(mode string, ttl time.Duration) (presence.Store, error) {
	switch mode {
	case config.ModeTable, "":
		return presence.NewTable(), nil
	case config.ModeEphemeral:
		return presence.NewEphemeral(ttl), nil
	default:
		return nil, fmt.Errorf("unknown presence mode %q", mode)
	}
}

// Editor is a set of components attached to one session.
type Editor struct {
	session  *Session
	log      *slog.Logger
	sync     *textsync.Bridge
	presence *presence.Bridge
	undo     *undo.Coordinator
	history  *replica.UndoManager
	closed   bool
}

// Attach installs the components cfg enables. On failure nothing stays
// attached.
func Attach(s *Session, cfg Config) (*Editor, error) {
	if s == nil || s.Doc == nil || s.Text == nil || s.Surface == nil || s.Loop == nil {
		return nil, ErrIncompleteSession
	}
	if cfg.Presence && s.Store == nil {
		return nil, fmt.Errorf("%w: presence needs a store", ErrIncompleteSession)
	}
	if cfg.Undo && !cfg.Sync {
		return nil, ErrUndoRequiresSync
	}
	if cfg.Presence && !cfg.Sync {
		return nil, ErrPresenceRequiresSync
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.Logger == nil {
		s.Logger = diag.Discard()
	}
	if s.Metrics == nil {
		s.Metrics = diag.NewMetrics()
	}
	log := s.Logger.With("session", s.ID, "peer", s.Doc.PeerID())

	e := &Editor{session: s, log: diag.WithComponent(log, "bridge")}

	if cfg.Sync {
		b, err := textsync.New(s.Doc, s.Text, s.Surface, s.Loop,
			textsync.WithLogger(log), textsync.WithMetrics(s.Metrics))
		if err != nil {
			return nil, fmt.Errorf("attaching sync: %w", err)
		}
		e.sync = b
	}

	if cfg.Undo {
		// The replicated history is the only one for this buffer.
		if s.Surface.NativeHistory() {
			s.Surface.SetNativeHistory(false)
			e.log.Debug("disabled native surface history")
		}
		e.history = replica.NewUndoManager(s.Doc, cfg.UndoMaxEntries)
		e.undo = undo.New(e.history, s.Text, s.Surface, s.Loop,
			undo.WithLogger(log), undo.WithMetrics(s.Metrics))
	}

	if cfg.Presence {
		opts := []presence.Option{
			presence.WithLogger(log),
			presence.WithMetrics(s.Metrics),
			presence.WithIdentity(cfg.Identity),
		}
		for _, r := range cfg.Renderers {
			opts = append(opts, presence.WithRenderer(r))
		}
		e.presence = presence.New(s.Doc.PeerID(), s.Doc, s.Text, s.Surface, s.Store, s.Loop, opts...)
	}

	e.log.Debug("attached", "sync", cfg.Sync, "presence", cfg.Presence, "undo", cfg.Undo)
	return e, nil
}

// Session returns the session the editor is attached to.
func (e *Editor) Session() *Session { return e.session }

// Sync returns the sync bridge, or nil if disabled.
func (e *Editor) Sync() *textsync.Bridge { return e.sync }

// Presence returns the presence bridge, or nil if disabled.
func (e *Editor) Presence() *presence.Bridge { return e.presence }

// Undo returns the undo coordinator, or nil if disabled.
func (e *Editor) Undo() *undo.Coordinator { return e.undo }

// Close tears down presence first so the tombstone is published while the
// document is still attached, then undo, then sync. Calling Close more than
// once is harmless.
func (e *Editor) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true

	var errs []error
	if e.presence != nil {
		if err := e.presence.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing presence: %w", err))
		}
	}
	if e.undo != nil {
		if err := e.undo.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing undo: %w", err))
		}
		e.history.Detach()
	}
	if e.sync != nil {
		if err := e.sync.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing sync: %w", err))
		}
	}
	e.log.Debug("detached")
	return errors.Join(errs...)
}
