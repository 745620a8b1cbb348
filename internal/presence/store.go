package presence

import (
	"errors"
	"sort"
	"sync"

	"github.com/dshills/costorm/internal/replica"
)

// ErrInvalidUpdate indicates presence data from another peer that could
// not be decoded.
var ErrInvalidUpdate = errors.New("presence: invalid update")

// Source tells subscribers who caused a change.
type Source uint8

const (
	SourceLocal  Source = iota // Publish on this store
	SourceRemote               // Apply of data from another peer
	SourceExpiry               // Expire swept stale entries
)

// String returns the source name.
func (s Source) String() string {
	switch s {
	case SourceLocal:
		return "local"
	case SourceRemote:
		return "remote"
	case SourceExpiry:
		return "expiry"
	default:
		return "unknown"
	}
}

// Change lists the peers whose records changed.
type Change struct {
	Added   []replica.PeerID
	Updated []replica.PeerID
	Removed []replica.PeerID
	By      Source
}

// IsEmpty returns true if no peer changed.
func (c Change) IsEmpty() bool {
	return len(c.Added) == 0 && len(c.Updated) == 0 && len(c.Removed) == 0
}

// Store carries presence records between peers.
//
// Publish with a nil record publishes a tombstone: subscribers of every
// store that receives it see the peer in Removed.
type Store interface {
	Publish(peer replica.PeerID, rec *Record) error
	Get(peer replica.PeerID) (*Record, bool)
	Peers() []replica.PeerID
	Subscribe(fn func(Change)) (cancel func())

	// Export encodes the store state for another peer; Apply merges it.
	Export() ([]byte, error)
	Apply(data []byte) error
}

// subscribers is the listener list shared by both store shapes. It is
// guarded by the owning store's mutex.
type subscribers struct {
	fns  map[int]func(Change)
	next int
}

func (s *subscribers) add(mu *sync.Mutex, fn func(Change)) func() {
	if s.fns == nil {
		s.fns = make(map[int]func(Change))
	}
	id := s.next
	s.next++
	s.fns[id] = fn
	var once sync.Once
	return func() {
		once.Do(func() {
			mu.Lock()
			delete(s.fns, id)
			mu.Unlock()
		})
	}
}

// snapshot returns the listeners in subscription order.
func (s *subscribers) snapshot() []func(Change) {
	ids := make([]int, 0, len(s.fns))
	for id := range s.fns {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]func(Change), len(ids))
	for i, id := range ids {
		out[i] = s.fns[id]
	}
	return out
}

func notify(fns []func(Change), c Change) {
	if c.IsEmpty() {
		return
	}
	for _, fn := range fns {
		fn(c)
	}
}

func sortPeers(peers []replica.PeerID) []replica.PeerID {
	sort.Slice(peers, func(i, j int) bool { return peers[i] < peers[j] })
	return peers
}
