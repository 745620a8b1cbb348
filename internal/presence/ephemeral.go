package presence

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/dshills/costorm/internal/replica"
)

const keySuffix = "-cm-state"

// Key returns the ephemeral store key of a peer's record.
func Key(peer replica.PeerID) string {
	return strconv.FormatUint(uint64(peer), 10) + keySuffix
}

func parseKey(key string) (replica.PeerID, bool) {
	raw, ok := strings.CutSuffix(key, keySuffix)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || n == 0 {
		return 0, false
	}
	return replica.PeerID(n), true
}

type ephemeralEntry struct {
	value   []byte // nil for a deleted key
	seq     uint64
	updated time.Time
	local   bool
}

type ephemeralWire struct {
	Value []byte `cbor:"value,omitempty"`
	Seq   uint64 `cbor:"seq"`
}

// EphemeralOption configures an Ephemeral store.
type EphemeralOption func(*Ephemeral)

// WithClock sets the time source used for expiry.
func WithClock(now func() time.Time) EphemeralOption {
	return func(e *Ephemeral) {
		e.now = now
	}
}

// Ephemeral is a key/value presence store whose remote entries expire
// when they have not been refreshed within the TTL. Entries published
// locally never expire here; other peers expire them.
type Ephemeral struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]*ephemeralEntry
	subs    subscribers
}

// NewEphemeral creates a store with the given entry lifetime.
func NewEphemeral(ttl time.Duration, opts ...EphemeralOption) *Ephemeral {
	e := &Ephemeral{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]*ephemeralEntry),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Publish sets or, with a nil record, deletes the peer's key.
func (s *Ephemeral) Publish(peer replica.PeerID, rec *Record) error {
	var data []byte
	if rec != nil {
		cp := *rec
		cp.Peer = peer
		var err error
		if data, err = Marshal(&cp); err != nil {
			return err
		}
	}

	key := Key(peer)
	s.mu.Lock()
	e := s.entries[key]
	if e == nil {
		e = &ephemeralEntry{}
		s.entries[key] = e
	}
	existed := e.value != nil
	e.value = data
	e.seq++
	e.updated = s.now()
	e.local = true
	c := classify(peer, existed, data != nil)
	c.By = SourceLocal
	fns := s.subs.snapshot()
	s.mu.Unlock()

	notify(fns, c)
	return nil
}

// Get returns a peer's live record.
func (s *Ephemeral) Get(peer replica.PeerID) (*Record, bool) {
	s.mu.Lock()
	e := s.entries[Key(peer)]
	s.mu.Unlock()
	if e == nil || e.value == nil {
		return nil, false
	}
	rec, err := Unmarshal(e.value)
	if err != nil {
		return nil, false
	}
	return rec, true
}

// Peers returns the peers with live records.
func (s *Ephemeral) Peers() []replica.PeerID {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []replica.PeerID
	for key, e := range s.entries {
		if e.value == nil {
			continue
		}
		if p, ok := parseKey(key); ok {
			out = append(out, p)
		}
	}
	return sortPeers(out)
}

// Subscribe registers fn for every change.
func (s *Ephemeral) Subscribe(fn func(Change)) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subs.add(&s.mu, fn)
}

// Export encodes the keys this store owns, deletions included.
func (s *Ephemeral) Export() ([]byte, error) {
	s.mu.Lock()
	wire := make(map[string]ephemeralWire)
	for key, e := range s.entries {
		if e.local {
			wire[key] = ephemeralWire{Value: e.value, Seq: e.seq}
		}
	}
	s.mu.Unlock()

	data, err := encMode.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("encoding ephemeral presence: %w", err)
	}
	return data, nil
}

// Apply merges keys exported by another store. Receipt refreshes the
// expiry of every applied key.
func (s *Ephemeral) Apply(data []byte) error {
	var wire map[string]ephemeralWire
	if err := cbor.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidUpdate, err)
	}

	now := s.now()
	s.mu.Lock()
	c := Change{By: SourceRemote}
	for key, in := range wire {
		peer, ok := parseKey(key)
		if !ok {
			continue
		}
		e := s.entries[key]
		if e != nil && (e.local || in.Seq < e.seq) {
			continue
		}
		if e == nil {
			e = &ephemeralEntry{}
			s.entries[key] = e
		}
		e.updated = now
		if in.Seq == e.seq && e.value != nil {
			continue
		}
		one := classify(peer, e.value != nil, in.Value != nil)
		e.value = in.Value
		e.seq = in.Seq
		c.Added = append(c.Added, one.Added...)
		c.Updated = append(c.Updated, one.Updated...)
		c.Removed = append(c.Removed, one.Removed...)
	}
	sortPeers(c.Added)
	sortPeers(c.Updated)
	sortPeers(c.Removed)
	fns := s.subs.snapshot()
	s.mu.Unlock()

	notify(fns, c)
	return nil
}

// Expire drops remote keys not refreshed within the TTL and returns the
// peers whose records disappeared.
func (s *Ephemeral) Expire() []replica.PeerID {
	now := s.now()
	s.mu.Lock()
	var removed []replica.PeerID
	for key, e := range s.entries {
		if e.local || now.Sub(e.updated) < s.ttl {
			continue
		}
		delete(s.entries, key)
		if e.value == nil {
			continue
		}
		if p, ok := parseKey(key); ok {
			removed = append(removed, p)
		}
	}
	sortPeers(removed)
	fns := s.subs.snapshot()
	s.mu.Unlock()

	notify(fns, Change{Removed: removed, By: SourceExpiry})
	return removed
}
