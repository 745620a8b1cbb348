package replica

import (
	"encoding/binary"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/dshills/costorm/internal/delta"
)

// PeerID identifies a replica. Zero is reserved.
type PeerID uint64

// NewPeerID returns a random peer id.
func NewPeerID() PeerID {
	u := uuid.New()
	id := binary.BigEndian.Uint64(u[:8])
	if id == 0 {
		id = 1
	}
	return PeerID(id)
}

// String returns the peer id in decimal.
func (p PeerID) String() string {
	return fmt.Sprintf("%d", uint64(p))
}

// ID is the identity of one character: the peer that inserted it and the
// Lamport clock value of the insertion. The zero ID denotes the text head.
type ID struct {
	Peer    PeerID
	Counter uint32
}

// IsZero returns true for the head sentinel.
func (a ID) IsZero() bool {
	return a.Peer == 0 && a.Counter == 0
}

// Less orders IDs by counter, then peer. Concurrent siblings are placed in
// descending ID order.
func (a ID) Less(b ID) bool {
	if a.Counter != b.Counter {
		return a.Counter < b.Counter
	}
	return a.Peer < b.Peer
}

// String returns a compact representation of the ID.
func (a ID) String() string {
	return fmt.Sprintf("%d@%d", a.Counter, a.Peer)
}

// OpKind is the type of a replicated operation.
type OpKind uint8

const (
	OpInsert OpKind = iota // Insert one rune after Parent
	OpDelete               // Tombstone Target
)

// Op is one replicated operation on a text container.
type Op struct {
	Kind      OpKind
	Container delta.ContainerID
	ID        ID   // New character (insert)
	Parent    ID   // Left neighbour at insertion time (insert)
	Rune      rune // Inserted rune (insert)
	Target    ID   // Deleted character (delete)
	Restores  ID   // Deleted character this insert brings back (undo)
}

// Change is an atomic group of operations committed by one peer.
// Seq numbers are contiguous per peer, starting at 1.
type Change struct {
	Peer PeerID
	Seq  uint32
	Ops  []Op
}

// VersionVector maps each peer to the highest change Seq integrated from it.
type VersionVector map[PeerID]uint32

// Clone returns a copy of the vector.
func (vv VersionVector) Clone() VersionVector {
	out := make(VersionVector, len(vv))
	for k, v := range vv {
		out[k] = v
	}
	return out
}

// Includes reports whether the change identified by peer and seq is covered.
func (vv VersionVector) Includes(peer PeerID, seq uint32) bool {
	return vv[peer] >= seq
}

// Update carries changes from one replica to another.
type Update struct {
	Changes []Change
}

// IsEmpty returns true if the update has no changes.
func (u Update) IsEmpty() bool {
	return len(u.Changes) == 0
}

// EncodeUpdate serializes an update for transport.
func EncodeUpdate(u Update) ([]byte, error) {
	data, err := cbor.Marshal(u)
	if err != nil {
		return nil, fmt.Errorf("encoding update: %w", err)
	}
	return data, nil
}

// DecodeUpdate parses an update produced by EncodeUpdate.
func DecodeUpdate(data []byte) (Update, error) {
	var u Update
	if err := cbor.Unmarshal(data, &u); err != nil {
		return Update{}, fmt.Errorf("decoding update: %w", err)
	}
	return u, nil
}
