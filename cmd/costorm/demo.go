package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/gdamore/tcell/v2"

	"github.com/dshills/costorm/internal/bridge"
	"github.com/dshills/costorm/internal/config"
	"github.com/dshills/costorm/internal/diag"
	"github.com/dshills/costorm/internal/presence"
	"github.com/dshills/costorm/internal/replica"
	"github.com/dshills/costorm/internal/scheduler"
	"github.com/dshills/costorm/internal/surface"
	"github.com/dshills/costorm/internal/termview"
	"github.com/dshills/costorm/internal/undo"
)

var errQuit = errors.New("quit")

type peer struct {
	name    string
	session *bridge.Session
	editor  *bridge.Editor
}

func newPeer(name string, cfg *config.Config, identity presence.Identity, logger *slog.Logger, loopOpts []scheduler.Option, renderers ...func(*presence.Layer)) (*peer, error) {
	store, err := bridge.NewStore(cfg.Presence.Mode, cfg.Presence.TTL.Std())
	if err != nil {
		return nil, err
	}
	doc := replica.New()
	s := &bridge.Session{
		Doc:     doc,
		Text:    doc.Text(cfg.Sync.Container),
		Surface: surface.New(surface.WithNativeHistory(false)),
		Store:   store,
		Loop:    scheduler.New(loopOpts...),
		Logger:  logger.With("peer_name", name),
		Metrics: diag.NewMetrics(),
	}
	acfg := bridge.FromConfig(cfg)
	acfg.Identity = identity
	acfg.Renderers = renderers
	e, err := bridge.Attach(s, acfg)
	if err != nil {
		return nil, fmt.Errorf("attaching %s: %w", name, err)
	}
	return &peer{name: name, session: s, editor: e}, nil
}

func (p *peer) flush() error {
	_, err := p.session.Loop.Flush()
	return err
}

func (p *peer) edit(from, to int, text string) error {
	return p.session.Surface.ApplyEdits([]surface.Edit{{From: from, To: to, Text: text}})
}

// exchange ships document updates and presence both ways, then runs the
// next tick on both peers.
func exchange(a, b *peer) error {
	for _, pair := range [][2]*peer{{a, b}, {b, a}} {
		src, dst := pair[0].session, pair[1].session
		if err := dst.Doc.Import(src.Doc.Export(dst.Doc.VersionVector())); err != nil {
			return fmt.Errorf("import into %s: %w", pair[1].name, err)
		}
	}
	for _, pair := range [][2]*peer{{a, b}, {b, a}} {
		data, err := pair[0].session.Store.Export()
		if err != nil {
			return err
		}
		if err := pair[1].session.Store.Apply(data); err != nil {
			return err
		}
		if eph, ok := pair[1].session.Store.(*presence.Ephemeral); ok {
			eph.Expire()
		}
	}
	if err := a.flush(); err != nil {
		return err
	}
	return b.flush()
}

func describe(p *peer) string {
	if p.editor.Presence() == nil {
		return "-"
	}
	var parts []string
	for _, d := range p.editor.Presence().Layer().Decorations() {
		parts = append(parts, fmt.Sprintf("%s[%d,%d)", d.Label, min(d.Anchor, d.Head), max(d.Anchor, d.Head)))
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, " ")
}

func runDemo(ctx context.Context, cfg *config.Config, opts options, logger *slog.Logger, out io.Writer) error {
	var screen tcell.Screen
	var renderer *termview.Renderer
	var loopOpts []scheduler.Option
	wake := make(chan struct{}, 1)

	if opts.tui {
		var err error
		screen, err = tcell.NewScreen()
		if err != nil {
			return fmt.Errorf("creating terminal: %w", err)
		}
		if err := screen.Init(); err != nil {
			return fmt.Errorf("initializing terminal: %w", err)
		}
		defer screen.Fini()
		loopOpts = append(loopOpts, scheduler.WithNotify(func() {
			_ = screen.PostEvent(tcell.NewEventInterrupt(nil))
		}))
		out = io.Discard
	} else {
		loopOpts = append(loopOpts, scheduler.WithNotify(func() {
			select {
			case wake <- struct{}{}:
			default:
			}
		}))
	}

	self := bridge.IdentityFromConfig(cfg)
	if self.DisplayName == "" {
		self.DisplayName = "alice"
	}

	alice, err := newPeer(self.DisplayName, cfg, self, logger, loopOpts, func(l *presence.Layer) {
		if renderer != nil {
			renderer.Render(l)
		}
	})
	if err != nil {
		return err
	}
	defer alice.editor.Close()
	if screen != nil {
		renderer = termview.NewRenderer(screen, alice.session.Surface)
		_, h := screen.Size()
		if err := alice.session.Surface.SetViewport(surface.Viewport{Top: 0, Height: h}); err != nil {
			return err
		}
	}

	bob, err := newPeer("bob", cfg, presence.Identity{DisplayName: "bob"}, logger, nil)
	if err != nil {
		return err
	}

	report := func(step string) {
		fmt.Fprintf(out, "%-30s %-8s %-22q %-8s %-22q\n", step,
			alice.name+":", alice.session.Surface.Text(), "bob:", bob.session.Surface.Text())
		fmt.Fprintf(out, "%-30s %s sees %s; bob sees %s\n", "", alice.name, describe(alice), describe(bob))
	}

	steps := []struct {
		name string
		fn   func() error
	}{
		{"alice types hello", func() error {
			if err := alice.session.Surface.Focus(); err != nil {
				return err
			}
			return alice.edit(0, 0, "hello")
		}},
		{"bob appends world, selects it", func() error {
			if err := bob.session.Surface.Focus(); err != nil {
				return err
			}
			if err := bob.edit(5, 5, " world"); err != nil {
				return err
			}
			return bob.session.Surface.SetSelection(surface.Selection{Anchor: 6, Head: 11})
		}},
		{"alice prefixes >> ", func() error {
			return alice.edit(0, 0, ">> ")
		}},
		{"alice undoes", func() error {
			if alice.editor.Undo() == nil {
				return nil
			}
			return alice.editor.Undo().Command(undo.CommandUndo)
		}},
		{"alice redoes", func() error {
			if alice.editor.Undo() == nil {
				return nil
			}
			return alice.editor.Undo().Command(undo.CommandRedo)
		}},
		{"bob checks out version 1", func() error {
			return bob.session.Doc.Checkout(1)
		}},
		{"bob returns to latest", func() error {
			bob.session.Doc.CheckoutToLatest()
			return nil
		}},
		{"bob leaves", func() error {
			return bob.editor.Close()
		}},
	}

	for _, st := range steps {
		if err := st.fn(); err != nil && !errors.Is(err, replica.ErrNothingToUndo) && !errors.Is(err, replica.ErrNothingToRedo) {
			return fmt.Errorf("%s: %w", st.name, err)
		}
		if err := exchange(alice, bob); err != nil {
			return fmt.Errorf("%s: %w", st.name, err)
		}
		report(st.name)
	}
	logger.Info("session finished", alice.session.Metrics.LogAttrs()...)

	if opts.watch {
		go func() {
			err := config.Watch(ctx, opts.configPath, func(c *config.Config, err error) {
				if err != nil {
					logger.Warn("config reload failed", "error", err)
					return
				}
				id := bridge.IdentityFromConfig(c)
				alice.session.Loop.Defer(func() {
					alice.editor.Presence().SetIdentity(id)
					logger.Info("identity reloaded", "name", id.DisplayName, "color", id.ColorClass)
				})
			})
			if err != nil {
				logger.Error("watch stopped", "error", err)
			}
		}()
	}

	if screen != nil {
		return runTUI(ctx, screen, renderer, alice)
	}
	if !opts.watch {
		return nil
	}
	fmt.Fprintf(out, "watching %s; interrupt to exit\n", opts.configPath)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-wake:
			if err := alice.flush(); err != nil {
				return err
			}
		}
	}
}

// runTUI shows alice's view until Esc or q. Deferred work is flushed when
// the loop wakes the event queue.
func runTUI(ctx context.Context, screen tcell.Screen, renderer *termview.Renderer, alice *peer) error {
	go func() {
		<-ctx.Done()
		_ = screen.PostEvent(tcell.NewEventInterrupt(errQuit))
	}()
	renderer.Render(alice.editor.Presence().Layer())

	for {
		switch ev := screen.PollEvent().(type) {
		case nil:
			return nil
		case *tcell.EventKey:
			if ev.Key() == tcell.KeyEscape || ev.Rune() == 'q' {
				return nil
			}
		case *tcell.EventResize:
			screen.Sync()
			_, h := ev.Size()
			if err := alice.session.Surface.SetViewport(surface.Viewport{Top: 0, Height: h}); err != nil {
				return err
			}
		case *tcell.EventInterrupt:
			if ev.Data() == errQuit {
				return nil
			}
		}
		if err := alice.flush(); err != nil {
			return err
		}
	}
}
