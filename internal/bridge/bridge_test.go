package bridge

import (
	"errors"
	"testing"
	"time"

	"github.com/dshills/costorm/internal/config"
	"github.com/dshills/costorm/internal/presence"
	"github.com/dshills/costorm/internal/replica"
	"github.com/dshills/costorm/internal/scheduler"
	"github.com/dshills/costorm/internal/surface"
)

func newSession(id replica.PeerID, store presence.Store) *Session {
	doc := replica.New(replica.WithPeerID(id))
	return &Session{
		Doc:     doc,
		Text:    doc.Text("content"),
		Surface: surface.New(surface.WithNativeHistory(false)),
		Store:   store,
		Loop:    scheduler.New(),
	}
}

func attach(t *testing.T, s *Session, cfg Config) *Editor {
	t.Helper()
	e, err := Attach(s, cfg)
	if err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

var all = Config{Sync: true, Presence: true, Undo: true}

// exchange ships document and presence state both ways and runs the next
// tick on both sessions.
func exchange(t *testing.T, a, b *Session) {
	t.Helper()
	for _, p := range [][2]*Session{{a, b}, {b, a}} {
		if err := p[1].Doc.Import(p[0].Doc.Export(p[1].Doc.VersionVector())); err != nil {
			t.Fatalf("Import failed: %v", err)
		}
	}
	for _, p := range [][2]*Session{{a, b}, {b, a}} {
		data, err := p[0].Store.Export()
		if err != nil {
			t.Fatalf("Export failed: %v", err)
		}
		if err := p[1].Store.Apply(data); err != nil {
			t.Fatalf("Apply failed: %v", err)
		}
	}
	for _, s := range []*Session{a, b} {
		if _, err := s.Loop.Flush(); err != nil {
			t.Fatalf("Flush failed: %v", err)
		}
	}
}

func edit(t *testing.T, s *Session, e surface.Edit) {
	t.Helper()
	if err := s.Surface.ApplyEdits([]surface.Edit{e}); err != nil {
		t.Fatalf("ApplyEdits failed: %v", err)
	}
}

func TestAttachValidation(t *testing.T) {
	if _, err := Attach(nil, all); !errors.Is(err, ErrIncompleteSession) {
		t.Errorf("expected ErrIncompleteSession, got %v", err)
	}

	s := newSession(1, nil)
	if _, err := Attach(s, Config{Sync: true, Presence: true}); !errors.Is(err, ErrIncompleteSession) {
		t.Errorf("expected ErrIncompleteSession without store, got %v", err)
	}
	if _, err := Attach(s, Config{Undo: true}); !errors.Is(err, ErrUndoRequiresSync) {
		t.Errorf("expected ErrUndoRequiresSync, got %v", err)
	}

	s.Store = presence.NewTable()
	if _, err := Attach(s, Config{Presence: true}); !errors.Is(err, ErrPresenceRequiresSync) {
		t.Errorf("expected ErrPresenceRequiresSync, got %v", err)
	}
}

func TestUndoDisablesNativeHistory(t *testing.T) {
	doc := replica.New(replica.WithPeerID(1))
	s := &Session{
		Doc:     doc,
		Text:    doc.Text("content"),
		Surface: surface.New(),
		Store:   presence.NewTable(),
		Loop:    scheduler.New(),
	}
	e := attach(t, s, all)

	if s.Surface.NativeHistory() {
		t.Fatal("expected native history to be disabled")
	}
	edit(t, s, surface.Edit{From: 0, To: 0, Text: "abc"})

	if err := s.Surface.Undo(); !errors.Is(err, surface.ErrNativeHistoryDisabled) {
		t.Errorf("expected ErrNativeHistoryDisabled, got %v", err)
	}
	if got := s.Surface.Text(); got != "abc" {
		t.Errorf("expected buffer untouched, got %q", got)
	}
	if got := s.Text.String(); got != "abc" {
		t.Errorf("expected container untouched, got %q", got)
	}

	if err := e.Undo().RequestUndo(); err != nil {
		t.Fatalf("RequestUndo failed: %v", err)
	}
	if _, err := s.Loop.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if got := s.Surface.Text(); got != "" {
		t.Errorf("expected replicated undo to clear the buffer, got %q", got)
	}
}

func TestSyncOnlyKeepsNativeHistory(t *testing.T) {
	doc := replica.New(replica.WithPeerID(1))
	s := &Session{
		Doc:     doc,
		Text:    doc.Text("content"),
		Surface: surface.New(),
		Loop:    scheduler.New(),
	}
	attach(t, s, Config{Sync: true})
	if !s.Surface.NativeHistory() {
		t.Error("expected native history to stay on without undo")
	}
}

func TestAttachSelectedComponents(t *testing.T) {
	s := newSession(1, presence.NewTable())
	e := attach(t, s, Config{Sync: true})

	if e.Sync() == nil {
		t.Error("expected sync bridge")
	}
	if e.Presence() != nil || e.Undo() != nil {
		t.Error("expected presence and undo to stay detached")
	}
	if s.ID == "" {
		t.Error("expected a session id")
	}
	if s.Logger == nil || s.Metrics == nil {
		t.Error("expected default logger and metrics")
	}
}

func TestHelloWorld(t *testing.T) {
	a := newSession(1, presence.NewTable())
	b := newSession(2, presence.NewTable())
	attach(t, a, all)
	attach(t, b, all)

	edit(t, a, surface.Edit{From: 0, To: 0, Text: "hello"})
	exchange(t, a, b)
	if got := b.Surface.Text(); got != "hello" {
		t.Fatalf("expected hello on b, got %q", got)
	}

	edit(t, b, surface.Edit{From: 5, To: 5, Text: " world"})
	exchange(t, a, b)
	for _, s := range []*Session{a, b} {
		if got := s.Surface.Text(); got != "hello world" {
			t.Errorf("peer %s: expected %q, got %q", s.Doc.PeerID(), "hello world", got)
		}
		if got := s.Text.String(); got != "hello world" {
			t.Errorf("peer %s container: expected %q, got %q", s.Doc.PeerID(), "hello world", got)
		}
	}
}

func TestConcurrentTypingConverges(t *testing.T) {
	a := newSession(1, presence.NewEphemeral(time.Minute))
	b := newSession(2, presence.NewEphemeral(time.Minute))
	attach(t, a, all)
	attach(t, b, all)

	edit(t, a, surface.Edit{From: 0, To: 0, Text: "the fox"})
	exchange(t, a, b)

	edit(t, a, surface.Edit{From: 4, To: 4, Text: "quick "})
	edit(t, b, surface.Edit{From: 7, To: 7, Text: " jumps"})
	edit(t, b, surface.Edit{From: 0, To: 3, Text: "a"})
	exchange(t, a, b)

	if a.Surface.Text() != b.Surface.Text() {
		t.Fatalf("diverged: %q vs %q", a.Surface.Text(), b.Surface.Text())
	}
	if got := a.Surface.Text(); got != "a quick fox jumps" {
		t.Errorf("expected %q, got %q", "a quick fox jumps", got)
	}
}

func TestUndoOnlyRevertsLocalEdits(t *testing.T) {
	a := newSession(1, presence.NewTable())
	b := newSession(2, presence.NewTable())
	ea := attach(t, a, all)
	attach(t, b, all)

	edit(t, a, surface.Edit{From: 0, To: 0, Text: "hello"})
	exchange(t, a, b)
	edit(t, b, surface.Edit{From: 5, To: 5, Text: " world"})
	exchange(t, a, b)

	if err := ea.Undo().RequestUndo(); err != nil {
		t.Fatalf("RequestUndo failed: %v", err)
	}
	exchange(t, a, b)
	for _, s := range []*Session{a, b} {
		if got := s.Surface.Text(); got != " world" {
			t.Errorf("peer %s: expected %q, got %q", s.Doc.PeerID(), " world", got)
		}
	}

	if err := ea.Undo().RequestUndo(); !errors.Is(err, replica.ErrNothingToUndo) {
		t.Errorf("expected nothing to undo, got %v", err)
	}
	if got := a.Surface.Text(); got != " world" {
		t.Errorf("empty undo mutated buffer: %q", got)
	}
}

func TestPresenceAcrossSessions(t *testing.T) {
	a := newSession(1, presence.NewTable())
	b := newSession(2, presence.NewTable())
	cfg := all
	cfg.Identity = presence.Identity{DisplayName: "ada", ColorClass: "#00aaff"}
	attach(t, a, cfg)
	eb := attach(t, b, all)

	edit(t, a, surface.Edit{From: 0, To: 0, Text: "hello"})
	if err := a.Surface.Focus(); err != nil {
		t.Fatal(err)
	}
	if err := a.Surface.SetSelection(surface.Selection{Anchor: 2, Head: 5}); err != nil {
		t.Fatal(err)
	}
	exchange(t, a, b)

	d, ok := eb.Presence().Layer().Decoration(1)
	if !ok {
		t.Fatal("expected a decoration for peer 1")
	}
	if d.Anchor != 2 || d.Head != 5 || d.Label != "ada" {
		t.Errorf("unexpected decoration: %+v", d)
	}

	edit(t, b, surface.Edit{From: 0, To: 0, Text: "XY"})
	exchange(t, a, b)
	d, _ = eb.Presence().Layer().Decoration(1)
	if d.Anchor != 4 || d.Head != 7 {
		t.Errorf("expected [4, 7), got [%d, %d)", d.Anchor, d.Head)
	}
}

func TestCloseTombstonesPresence(t *testing.T) {
	a := newSession(1, presence.NewTable())
	b := newSession(2, presence.NewTable())
	ea, err := Attach(a, all)
	if err != nil {
		t.Fatal(err)
	}
	eb := attach(t, b, all)

	if err := a.Surface.Focus(); err != nil {
		t.Fatal(err)
	}
	exchange(t, a, b)
	if len(eb.Presence().Layer().Decorations()) != 1 {
		t.Fatal("expected one decoration before close")
	}

	if err := ea.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := ea.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
	exchange(t, a, b)
	if got := eb.Presence().Layer().Decorations(); len(got) != 0 {
		t.Errorf("expected no decorations after close, got %v", got)
	}

	// A closed editor no longer syncs local edits.
	edit(t, a, surface.Edit{From: 0, To: 0, Text: "late"})
	if got := a.Text.String(); got != "" {
		t.Errorf("expected container untouched after close, got %q", got)
	}
}

func TestFromConfig(t *testing.T) {
	c := config.Default()
	c.Peer.Name = "grace"
	c.Undo.Enabled = false

	cfg := FromConfig(c)
	if !cfg.Sync || !cfg.Presence || cfg.Undo {
		t.Errorf("unexpected components: %+v", cfg)
	}
	if cfg.Identity.DisplayName != "grace" {
		t.Errorf("expected grace, got %q", cfg.Identity.DisplayName)
	}
}

func TestNewStore(t *testing.T) {
	if s, err := NewStore(config.ModeTable, 0); err != nil {
		t.Errorf("table: %v", err)
	} else if _, ok := s.(*presence.Table); !ok {
		t.Errorf("expected *presence.Table, got %T", s)
	}
	if s, err := NewStore(config.ModeEphemeral, time.Second); err != nil {
		t.Errorf("ephemeral: %v", err)
	} else if _, ok := s.(*presence.Ephemeral); !ok {
		t.Errorf("expected *presence.Ephemeral, got %T", s)
	}
	if _, err := NewStore("gossip", 0); err == nil {
		t.Error("expected error for unknown mode")
	}
}
