package presence

import (
	"fmt"
	"sync"

	"github.com/fxamacker/cbor/v2"

	"github.com/dshills/costorm/internal/replica"
)

// tableEntry is one peer's state. A nil Record is a tombstone; it is kept
// so the removal reaches peers that saw the record.
type tableEntry struct {
	Clock  uint64 `cbor:"clock"`
	Record []byte `cbor:"record,omitempty"`
}

// Table is a permanent per-peer state table. Every publish bumps the
// peer's clock; Apply keeps the entry with the highest clock.
type Table struct {
	mu      sync.Mutex
	entries map[replica.PeerID]*tableEntry
	subs    subscribers
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{entries: make(map[replica.PeerID]*tableEntry)}
}

// Publish sets or, with a nil record, tombstones a peer's state.
func (t *Table) Publish(peer replica.PeerID, rec *Record) error {
	var data []byte
	if rec != nil {
		cp := *rec
		cp.Peer = peer
		var err error
		if data, err = Marshal(&cp); err != nil {
			return err
		}
	}

	t.mu.Lock()
	e := t.entries[peer]
	if e == nil {
		e = &tableEntry{}
		t.entries[peer] = e
	}
	existed := e.Record != nil
	e.Clock++
	e.Record = data
	c := classify(peer, existed, data != nil)
	c.By = SourceLocal
	fns := t.subs.snapshot()
	t.mu.Unlock()

	notify(fns, c)
	return nil
}

func classify(peer replica.PeerID, existed, live bool) Change {
	var c Change
	switch {
	case live && existed:
		c.Updated = []replica.PeerID{peer}
	case live:
		c.Added = []replica.PeerID{peer}
	case existed:
		c.Removed = []replica.PeerID{peer}
	}
	return c
}

// Get returns a peer's live record.
func (t *Table) Get(peer replica.PeerID) (*Record, bool) {
	t.mu.Lock()
	e := t.entries[peer]
	t.mu.Unlock()
	if e == nil || e.Record == nil {
		return nil, false
	}
	rec, err := Unmarshal(e.Record)
	if err != nil {
		return nil, false
	}
	return rec, true
}

// Peers returns the peers with live records.
func (t *Table) Peers() []replica.PeerID {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []replica.PeerID
	for p, e := range t.entries {
		if e.Record != nil {
			out = append(out, p)
		}
	}
	return sortPeers(out)
}

// Subscribe registers fn for every change.
func (t *Table) Subscribe(fn func(Change)) (cancel func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.subs.add(&t.mu, fn)
}

// Export encodes every entry, tombstones included.
func (t *Table) Export() ([]byte, error) {
	t.mu.Lock()
	wire := make(map[uint64]tableEntry, len(t.entries))
	for p, e := range t.entries {
		wire[uint64(p)] = *e
	}
	t.mu.Unlock()

	data, err := encMode.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("encoding presence table: %w", err)
	}
	return data, nil
}

// Apply merges entries exported by another table.
func (t *Table) Apply(data []byte) error {
	var wire map[uint64]tableEntry
	if err := cbor.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidUpdate, err)
	}

	t.mu.Lock()
	c := Change{By: SourceRemote}
	for raw, in := range wire {
		peer := replica.PeerID(raw)
		e := t.entries[peer]
		if e != nil && in.Clock <= e.Clock {
			continue
		}
		if e == nil {
			e = &tableEntry{}
			t.entries[peer] = e
		}
		one := classify(peer, e.Record != nil, in.Record != nil)
		*e = in
		c.Added = append(c.Added, one.Added...)
		c.Updated = append(c.Updated, one.Updated...)
		c.Removed = append(c.Removed, one.Removed...)
	}
	sortPeers(c.Added)
	sortPeers(c.Updated)
	sortPeers(c.Removed)
	fns := t.subs.snapshot()
	t.mu.Unlock()

	notify(fns, c)
	return nil
}
