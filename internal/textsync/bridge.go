// Package textsync keeps an editing surface and a replicated text
// container in step.
//
// Local surface changes are written to the container and committed as one
// change per transaction. Change batches from the document are replayed
// into the surface: remote and history batches edit the affected ranges,
// checkout batches replace the whole buffer. Every surface mutation made by
// the bridge carries TagSync or TagHistory, and the bridge skips updates
// carrying them; every container mutation is committed with OriginLocal,
// and the bridge skips batches of that origin. Both halves are needed to
// keep the two sides from echoing each other.
package textsync

import (
	"encoding/hex"
	"errors"
	"log/slog"

	"github.com/zeebo/blake3"

	"github.com/dshills/costorm/internal/delta"
	"github.com/dshills/costorm/internal/diag"
	"github.com/dshills/costorm/internal/scheduler"
	"github.com/dshills/costorm/internal/surface"
)

// Tags carried by surface transactions the bridge performs.
const (
	TagSync    surface.Tag = "textsync"
	TagHistory surface.Tag = "textsync.history"
)

// Container is the replicated text the bridge writes to.
type Container interface {
	ID() delta.ContainerID
	String() string
	Len() int
	Insert(offset int, s string) error
	Delete(offset, n int) error
}

// Document is the replicated document owning the container.
type Document interface {
	Subscribe(fn func(delta.Batch)) (cancel func())
	Commit()
	IsDetached() bool
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

// Bridge is the sync bridge between one surface and one container.
type Bridge struct {
	doc     Document
	text    Container
	surface *surface.Surface
	loop    *scheduler.Loop
	log     *slog.Logger
	metrics *diag.Metrics

	// pendingEcho is set while the bridge itself mutates the surface.
	pendingEcho bool
	destroyed   bool
	resyncing   bool

	unsubDoc     func()
	unsubSurface func()
}

// New attaches a bridge and reconciles the surface with the container.
func New(doc Document, text Container, s *surface.Surface, loop *scheduler.Loop, opts ...Option) (*Bridge, error) {
	b := &Bridge{
		doc:     doc,
		text:    text,
		surface: s,
		loop:    loop,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.log == nil {
		b.log = diag.Discard()
	}
	b.log = diag.WithComponent(b.log, "textsync")
	if b.metrics == nil {
		b.metrics = diag.NewMetrics()
	}

	if err := b.reconcile(); err != nil {
		return nil, err
	}
	b.unsubDoc = doc.Subscribe(b.onBatch)
	b.unsubSurface = s.Listen(b.onLocalBufferChange)
	return b, nil
}

// Close detaches the bridge. Callbacks already deferred do nothing.
// Calling Close more than once is harmless.
func (b *Bridge) Close() error {
	if b.destroyed {
		return nil
	}
	b.destroyed = true
	b.unsubSurface()
	b.unsubDoc()
	b.log.Debug("closed")
	return nil
}

// Container returns the tracked container.
func (b *Bridge) Container() Container {
	return b.text
}

// Digest returns the BLAKE3 digest of text, hex encoded.
func Digest(text string) string {
	sum := blake3.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// reconcile replaces the surface content with the container text if
// they differ.
func (b *Bridge) reconcile() error {
	want := b.text.String()
	have := b.surface.Text()
	wantSum, haveSum := Digest(want), Digest(have)
	if wantSum == haveSum {
		return nil
	}
	b.log.Info("replacing buffer with container text",
		"container", b.text.ID(),
		"buffer_digest", haveSum[:16],
		"container_digest", wantSum[:16],
	)
	return b.mutate(func() error {
		return b.surface.Replace(want, TagSync)
	})
}

// scheduleResync reconciles on the next tick after a failure left the
// surface and container out of step.
func (b *Bridge) scheduleResync() {
	if b.resyncing {
		return
	}
	b.resyncing = true
	b.loop.Defer(func() {
		b.resyncing = false
		if b.destroyed {
			return
		}
		if err := b.reconcile(); err != nil {
			b.log.Error("resync failed", "error", err)
		}
	})
}

func (b *Bridge) mutate(fn func() error) error {
	b.pendingEcho = true
	defer func() { b.pendingEcho = false }()
	return fn()
}

// onLocalBufferChange writes a surface transaction into the container.
func (b *Bridge) onLocalBufferChange(u surface.Update) {
	if b.destroyed || !u.DocChanged || len(u.Changes) == 0 {
		return
	}
	if b.pendingEcho || u.HasTag(TagSync) || u.HasTag(TagHistory) {
		b.metrics.EchoesSuppressed.Inc()
		return
	}
	if b.doc.IsDetached() {
		b.log.Warn("buffer edited while viewing history; restoring")
		b.scheduleResync()
		return
	}

	shift := 0
	for _, c := range u.Changes {
		pos := c.FromA + shift
		removed := c.ToA - c.FromA
		if removed > 0 {
			if err := b.text.Delete(pos, removed); err != nil {
				b.fail("delete", err)
				return
			}
		}
		if c.Text != "" {
			if err := b.text.Insert(pos, c.Text); err != nil {
				b.fail("insert", err)
				return
			}
		}
		shift += len([]rune(c.Text)) - removed
	}
	b.doc.Commit()
	b.metrics.LocalEdits.Inc()
	b.log.Debug("pushed local edit", "changes", len(u.Changes))
}

func (b *Bridge) fail(op string, err error) {
	b.log.Error("container rejected local edit", "op", op, "error", err)
	b.doc.Commit()
	b.scheduleResync()
}

// onBatch replays a document change batch into the surface.
func (b *Bridge) onBatch(batch delta.Batch) {
	if b.destroyed {
		return
	}
	switch batch.Origin {
	case delta.OriginLocal:
		b.metrics.EchoesSuppressed.Inc()
	case delta.OriginCheckout:
		b.metrics.Checkouts.Inc()
		b.applyCheckout()
	case delta.OriginRemote:
		if b.replay(batch, TagSync) {
			b.metrics.RemoteBatches.Inc()
		}
	case delta.OriginHistory:
		if b.replay(batch, TagHistory) {
			b.metrics.HistoryBatches.Inc()
		}
	}
}

func (b *Bridge) applyCheckout() {
	text := b.text.String()
	err := b.mutate(func() error {
		return b.surface.Replace(text, TagSync)
	})
	if err != nil {
		b.log.Warn("checkout replay failed", "error", err)
		b.scheduleResync()
	}
}

// replay validates every event for this container and applies them in
// order. A malformed event drops the whole batch.
func (b *Bridge) replay(batch delta.Batch, tag surface.Tag) bool {
	events, foreign := batch.For(b.text.ID())
	if foreign > 0 {
		b.metrics.ForeignDeltas.Add(float64(foreign))
		b.log.Debug("skipped foreign events", "count", foreign)
	}
	if len(events) == 0 {
		return false
	}

	length := b.surface.Len()
	for i, ev := range events {
		if err := delta.Validate(ev.Ops, length); err != nil {
			b.metrics.MalformedBatches.Inc()
			b.log.Warn("dropping malformed batch",
				"origin", batch.Origin,
				"event", i,
				"error", err,
			)
			b.scheduleResync()
			return false
		}
		length += delta.ChangeLength(ev.Ops)
	}

	for _, ev := range events {
		edits := delta.Reduce(ev.Ops)
		err := b.mutate(func() error {
			return b.surface.ApplyEdits(edits, tag)
		})
		if err != nil {
			if errors.Is(err, surface.ErrReentrantDispatch) {
				b.log.Debug("replay during dispatch; deferring resync")
			} else {
				b.log.Warn("replay failed", "error", err)
			}
			b.scheduleResync()
			return false
		}
	}
	b.log.Debug("replayed batch", "origin", batch.Origin, "events", len(events))
	return true
}
