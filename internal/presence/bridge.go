package presence

import (
	"bytes"
	"log/slog"
	"sort"

	"github.com/dshills/costorm/internal/delta"
	"github.com/dshills/costorm/internal/diag"
	"github.com/dshills/costorm/internal/replica"
	"github.com/dshills/costorm/internal/scheduler"
	"github.com/dshills/costorm/internal/stableref"
	"github.com/dshills/costorm/internal/surface"
)

// Document is the replicated document the shared text lives in.
type Document interface {
	IsDetached() bool
	Subscribe(fn func(delta.Batch)) (cancel func())
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bridge) {
		b.log = l
	}
}

// WithMetrics sets the metrics the bridge counts into.
func WithMetrics(m *diag.Metrics) Option {
	return func(b *Bridge) {
		b.metrics = m
	}
}

// WithIdentity sets the identity published with the local record.
func WithIdentity(id Identity) Option {
	return func(b *Bridge) {
		b.identity = &id
	}
}

// WithRenderer registers fn to receive every recomputed layer.
func WithRenderer(fn func(*Layer)) Option {
	return func(b *Bridge) {
		b.renderers = append(b.renderers, fn)
	}
}

// Bridge publishes the local selection and resolves remote ones.
// It runs on the surface's event loop; the store must deliver changes
// on the same loop.
type Bridge struct {
	self     replica.PeerID
	doc      Document
	text     stableref.Container
	surface  *surface.Surface
	store    Store
	loop     *scheduler.Loop
	log      *slog.Logger
	metrics  *diag.Metrics
	identity *Identity

	remote map[replica.PeerID]*Record
	layer  *Layer

	renderers []func(*Layer)

	lastRecord    []byte
	lastTombstone bool

	dirty     Dirty
	scheduled bool
	destroyed bool

	unsubs []func()
}

// New attaches a presence bridge and publishes the initial local state.
func New(self replica.PeerID, doc Document, text stableref.Container, s *surface.Surface, store Store, loop *scheduler.Loop, opts ...Option) *Bridge {
	b := &Bridge{
		self:    self,
		doc:     doc,
		text:    text,
		surface: s,
		store:   store,
		loop:    loop,
		remote:  make(map[replica.PeerID]*Record),
		layer:   &Layer{},
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.log == nil {
		b.log = diag.Discard()
	}
	b.log = diag.WithComponent(b.log, "presence")
	if b.metrics == nil {
		b.metrics = diag.NewMetrics()
	}

	for _, p := range store.Peers() {
		if p == self {
			continue
		}
		if rec, ok := store.Get(p); ok {
			b.remote[p] = rec
		}
	}

	b.unsubs = append(b.unsubs,
		store.Subscribe(b.onPresence),
		doc.Subscribe(b.onBatch),
		s.Listen(b.onSurface, surface.WithPriority(surface.PriorityLow)),
	)
	b.publishLocal()
	b.markDirty(DirtyPresence)
	return b
}

// Layer returns the most recently computed decorations.
func (b *Bridge) Layer() *Layer {
	return b.layer
}

// SetIdentity changes the published identity and republishes.
func (b *Bridge) SetIdentity(id Identity) {
	if b.destroyed {
		return
	}
	b.identity = &id
	b.publishLocal()
}

// Close publishes a tombstone for this peer and detaches. Calling Close
// more than once is harmless.
func (b *Bridge) Close() error {
	if b.destroyed {
		return nil
	}
	err := b.store.Publish(b.self, nil)
	if err == nil {
		b.metrics.PresenceTombstones.Inc()
	}
	b.destroyed = true
	for _, unsub := range b.unsubs {
		unsub()
	}
	b.log.Debug("closed")
	return err
}

// localRecord builds this peer's record, or nil when it has no visible
// presence.
func (b *Bridge) localRecord() (*Record, error) {
	if !b.surface.HasFocus() || b.doc.IsDetached() {
		return nil, nil
	}
	sel := b.surface.Selection()
	pair, err := stableref.EncodePair(b.text, sel.Anchor, sel.Head)
	if err != nil {
		return nil, err
	}
	return &Record{
		Peer:     b.self,
		Identity: b.identity,
		Cursor:   &CursorRefs{Anchor: pair.Anchor, Head: pair.Head},
	}, nil
}

func (b *Bridge) publishLocal() {
	rec, err := b.localRecord()
	if err != nil {
		b.log.Warn("encoding local selection", "error", err)
		return
	}

	if rec == nil {
		if b.lastTombstone {
			return
		}
		if err := b.store.Publish(b.self, nil); err != nil {
			b.log.Warn("publishing tombstone", "error", err)
			return
		}
		b.lastTombstone = true
		b.lastRecord = nil
		b.metrics.PresenceTombstones.Inc()
		return
	}

	data, err := Marshal(rec)
	if err != nil {
		b.log.Warn("encoding local record", "error", err)
		return
	}
	if bytes.Equal(data, b.lastRecord) {
		return
	}
	if err := b.store.Publish(b.self, rec); err != nil {
		b.log.Warn("publishing record", "error", err)
		return
	}
	b.lastRecord = data
	b.lastTombstone = false
	b.metrics.PresencePublished.Inc()
}

func (b *Bridge) onSurface(u surface.Update) {
	if b.destroyed {
		return
	}
	if u.SelectionChanged() || u.FocusChanged || u.DocChanged {
		b.publishLocal()
	}
	var d Dirty
	if u.DocChanged {
		d |= DirtyDoc
	}
	if u.ViewportChanged {
		d |= DirtyViewport
	}
	b.markDirty(d)
}

func (b *Bridge) onBatch(batch delta.Batch) {
	if b.destroyed {
		return
	}
	if batch.Origin == delta.OriginCheckout {
		b.publishLocal()
	}
	b.markDirty(DirtyDoc)
}

func (b *Bridge) onPresence(c Change) {
	if b.destroyed || c.By == SourceLocal {
		return
	}
	for _, p := range append(append([]replica.PeerID(nil), c.Added...), c.Updated...) {
		if p == b.self {
			continue
		}
		if rec, ok := b.store.Get(p); ok {
			b.remote[p] = rec
		} else {
			delete(b.remote, p)
		}
	}
	for _, p := range c.Removed {
		delete(b.remote, p)
	}
	b.metrics.PresenceReceived.Inc()
	b.log.Debug("presence changed",
		"by", c.By,
		"added", len(c.Added),
		"updated", len(c.Updated),
		"removed", len(c.Removed),
	)
	b.markDirty(DirtyPresence)
}

// markDirty schedules a recompute on the next tick.
func (b *Bridge) markDirty(d Dirty) {
	if d == 0 {
		return
	}
	b.dirty |= d
	if b.scheduled {
		return
	}
	b.scheduled = true
	b.loop.Defer(b.recompute)
}

func (b *Bridge) recompute() {
	b.scheduled = false
	if b.destroyed {
		return
	}
	layer := &Layer{dirty: b.dirty}
	b.dirty = 0

	if b.doc.IsDetached() {
		layer.suppressed = true
	} else {
		peers := make([]replica.PeerID, 0, len(b.remote))
		for p := range b.remote {
			peers = append(peers, p)
		}
		sort.Slice(peers, func(i, j int) bool { return peers[i] < peers[j] })

		for _, p := range peers {
			rec := b.remote[p]
			if !rec.HasCursor() {
				continue
			}
			anchor, head, err := stableref.DecodePair(b.text, rec.Cursor.Pair())
			if err != nil {
				b.metrics.StaleReferences.Inc()
				b.log.Debug("hiding unresolvable cursor", "peer", p, "error", err)
				continue
			}
			layer.decorations = append(layer.decorations, Decoration{
				Peer:   p,
				Anchor: anchor,
				Head:   head,
				Label:  rec.Label(),
				Color:  rec.Color(),
			})
		}
	}

	b.layer = layer
	b.metrics.Renders.Inc()
	for _, fn := range b.renderers {
		fn(layer)
	}
}
