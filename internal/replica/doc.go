// Package replica is an in-memory replicated text document.
//
// It implements the document side of the editor bridge: offset-addressed
// edits grouped into atomic commits, a change stream classified by origin,
// stable cursors, causal exchange of updates between peers, historical
// checkouts and an undo manager that only reverts this peer's own edits.
//
// Text containers are RGA sequences: every rune carries a (peer, Lamport
// counter) identity, inserts name their left neighbour, and deletes leave
// tombstones. Concurrent inserts after the same neighbour are ordered by
// descending identity, so every replica converges to the same sequence.
//
// A Doc is not safe for concurrent use. It is driven from a single event
// loop, and subscribers are invoked synchronously from Commit, Import and
// Checkout.
package replica

import (
	"fmt"
	"strings"
	"sync"

	"github.com/dshills/costorm/internal/delta"
)

// Option configures a Doc during creation.
type Option func(*Doc)

// WithPeerID sets the peer id instead of generating a random one.
func WithPeerID(p PeerID) Option {
	return func(d *Doc) {
		if p != 0 {
			d.peer = p
		}
	}
}

type subscriber struct {
	fn        func(delta.Batch)
	cancelled bool
}

// Doc is a replicated document holding named text containers.
type Doc struct {
	peer  PeerID
	clock uint32
	seq   uint32

	texts map[delta.ContainerID]*Text
	order []*Text

	log     []Change
	vv      VersionVector
	pending []Change

	// Uncommitted local operations and the deltas they produced.
	staged []Op
	events []delta.Event

	subs []*subscriber

	detached bool
	view     int

	undo *UndoManager
}

// New creates an empty document.
func New(opts ...Option) *Doc {
	d := &Doc{
		texts: make(map[delta.ContainerID]*Text),
		vv:    make(VersionVector),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.peer == 0 {
		d.peer = NewPeerID()
	}
	return d
}

// PeerID returns this replica's peer id.
func (d *Doc) PeerID() PeerID {
	return d.peer
}

// Text returns the named text container, creating it on first use.
// Containers with the same name share an identity across replicas.
func (d *Doc) Text(name string) *Text {
	return d.container(delta.ContainerID("text:" + name))
}

func (d *Doc) container(id delta.ContainerID) *Text {
	if t, ok := d.texts[id]; ok {
		return t
	}
	t := newText(d, strings.TrimPrefix(string(id), "text:"))
	d.texts[id] = t
	d.order = append(d.order, t)
	return t
}

// tick advances the Lamport clock and returns a fresh ID.
func (d *Doc) tick() ID {
	d.clock++
	return ID{Peer: d.peer, Counter: d.clock}
}

func (d *Doc) record(op Op) {
	d.staged = append(d.staged, op)
}

// stage composes ops into the pending delta for a container.
func (d *Doc) stage(id delta.ContainerID, ops []delta.Op) {
	d.events = composeInto(d.events, id, ops)
}

func composeInto(events []delta.Event, id delta.ContainerID, ops []delta.Op) []delta.Event {
	for i := range events {
		if events[i].Target == id {
			events[i].Ops = delta.Compose(events[i].Ops, ops)
			return events
		}
	}
	return append(events, delta.Event{Target: id, Ops: delta.Normalize(ops)})
}

// Commit seals pending local operations into one change and notifies
// subscribers with an OriginLocal batch. It does nothing if there are no
// pending operations.
func (d *Doc) Commit() {
	d.commit(delta.OriginLocal)
}

func (d *Doc) commit(origin delta.Origin) *Change {
	if len(d.staged) == 0 {
		return nil
	}
	d.seq++
	ch := Change{Peer: d.peer, Seq: d.seq, Ops: d.staged}
	d.log = append(d.log, ch)
	d.vv[d.peer] = d.seq

	events := d.events
	d.staged = nil
	d.events = nil

	if origin == delta.OriginLocal && d.undo != nil {
		d.undo.record(ch)
	}
	d.emit(delta.Batch{Origin: origin, Events: events})
	return &ch
}

// Subscribe registers fn for every change-batch. The returned function
// cancels the subscription; calling it more than once is harmless.
func (d *Doc) Subscribe(fn func(delta.Batch)) (cancel func()) {
	s := &subscriber{fn: fn}
	d.subs = append(d.subs, s)
	var once sync.Once
	return func() {
		once.Do(func() {
			s.cancelled = true
			for i, other := range d.subs {
				if other == s {
					d.subs = append(d.subs[:i], d.subs[i+1:]...)
					break
				}
			}
		})
	}
}

func (d *Doc) emit(b delta.Batch) {
	subs := append([]*subscriber(nil), d.subs...)
	for _, s := range subs {
		if !s.cancelled {
			s.fn(b)
		}
	}
}

// VersionVector returns the changes this replica has integrated.
func (d *Doc) VersionVector() VersionVector {
	return d.vv.Clone()
}

// Head returns the number of integrated changes. It is the version
// CheckoutToLatest returns to and the upper bound for Checkout.
func (d *Doc) Head() int {
	return len(d.log)
}

// Export returns the changes not covered by since. A nil vector exports
// everything.
func (d *Doc) Export(since VersionVector) Update {
	d.Commit()
	var u Update
	for _, ch := range d.log {
		if since.Includes(ch.Peer, ch.Seq) {
			continue
		}
		u.Changes = append(u.Changes, ch)
	}
	return u
}

// Import integrates changes from another replica. Changes whose causal
// dependencies are missing are held until a later import supplies them.
// Subscribers receive one OriginRemote batch for everything that became
// visible; nothing is emitted while the document is detached.
func (d *Doc) Import(u Update) error {
	for _, ch := range u.Changes {
		if ch.Peer == 0 {
			return fmt.Errorf("import: change %d has no peer", ch.Seq)
		}
	}
	d.Commit()

	queue := append(d.pending, u.Changes...)
	d.pending = nil
	var events []delta.Event

	for progress := true; progress; {
		progress = false
		var rest []Change
		for _, ch := range queue {
			if d.vv.Includes(ch.Peer, ch.Seq) {
				continue
			}
			if ch.Seq != d.vv[ch.Peer]+1 || !d.ready(ch) {
				rest = append(rest, ch)
				continue
			}
			events = d.integrate(ch, events)
			progress = true
		}
		queue = rest
	}
	d.pending = queue

	if !d.detached && len(events) > 0 {
		d.emit(delta.Batch{Origin: delta.OriginRemote, Events: events})
	}
	return nil
}

// Pending returns the number of changes waiting for dependencies.
func (d *Doc) Pending() int {
	return len(d.pending)
}

// ready reports whether every dependency of ch is integrated, counting
// characters inserted earlier in ch itself.
func (d *Doc) ready(ch Change) bool {
	local := make(map[ID]bool)
	for _, op := range ch.Ops {
		if op.Kind == OpInsert && (op.Parent.IsZero() || local[op.Parent]) {
			local[op.ID] = true
			continue
		}
		if op.Kind == OpDelete && local[op.Target] {
			continue
		}
		t, ok := d.texts[op.Container]
		if !ok || !t.knows(op) {
			if op.Kind == OpInsert && op.Parent.IsZero() {
				continue
			}
			return false
		}
		if op.Kind == OpInsert {
			local[op.ID] = true
		}
	}
	return true
}

func (d *Doc) integrate(ch Change, events []delta.Event) []delta.Event {
	seq := len(d.log)
	for _, op := range ch.Ops {
		t := d.container(op.Container)
		if ops := t.applyRemote(op, seq); ops != nil {
			events = composeInto(events, t.id, ops)
		}
		if op.Kind == OpInsert && op.ID.Counter > d.clock {
			d.clock = op.ID.Counter
		}
	}
	d.log = append(d.log, ch)
	d.vv[ch.Peer] = ch.Seq
	return events
}

// IsDetached returns true while a historical version is checked out.
func (d *Doc) IsDetached() bool {
	return d.detached
}

// Checkout switches the view to the state after the first head changes.
// Edits are rejected with ErrDetached until CheckoutToLatest.
func (d *Doc) Checkout(head int) error {
	d.Commit()
	if head < 0 || head > len(d.log) {
		return fmt.Errorf("%w: %d (head is %d)", ErrVersionNotFound, head, len(d.log))
	}
	before := d.snapshot()
	d.detached = true
	d.view = head
	d.emit(d.checkoutBatch(before))
	return nil
}

// CheckoutToLatest returns to the live, editable state.
func (d *Doc) CheckoutToLatest() {
	if !d.detached {
		return
	}
	before := d.snapshot()
	d.detached = false
	d.view = 0
	d.emit(d.checkoutBatch(before))
}

func (d *Doc) snapshot() []string {
	out := make([]string, len(d.order))
	for i, t := range d.order {
		out[i] = t.String()
	}
	return out
}

func (d *Doc) checkoutBatch(before []string) delta.Batch {
	b := delta.Batch{Origin: delta.OriginCheckout}
	for i, t := range d.order {
		ops := delta.Normalize([]delta.Op{
			delta.Delete(len([]rune(before[i]))),
			delta.Insert(t.String()),
		})
		b.Events = append(b.Events, delta.Event{Target: t.id, Ops: ops})
	}
	return b
}
