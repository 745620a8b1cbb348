// Package presence shares each peer's cursor, selection and identity.
//
// A Record holds a peer's selection as stable references, so it can be
// resolved against any later state of the shared text. Records travel
// through a Store, which is either a permanent per-peer Table or an
// Ephemeral key/value store whose entries expire. The Bridge publishes the
// local record from surface state and turns remote records into
// decorations.
package presence

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/lucasb-eyer/go-colorful"

	"github.com/dshills/costorm/internal/replica"
	"github.com/dshills/costorm/internal/stableref"
)

// UnknownLabel is shown for peers that did not publish an identity.
const UnknownLabel = "unknown"

// Identity is how a peer is shown to others.
type Identity struct {
	DisplayName string `cbor:"name,omitempty"`
	ColorClass  string `cbor:"color,omitempty"`
}

// CursorRefs is a selection as stable references. Head is empty for a
// caret.
type CursorRefs struct {
	Anchor stableref.Ref `cbor:"anchor"`
	Head   stableref.Ref `cbor:"head,omitempty"`
}

// Pair converts the refs for decoding.
func (c CursorRefs) Pair() stableref.Pair {
	return stableref.Pair{Anchor: c.Anchor, Head: c.Head}
}

// Record is one peer's presence. A record without a cursor has no
// visible presence.
type Record struct {
	Peer     replica.PeerID `cbor:"peer"`
	Identity *Identity      `cbor:"identity,omitempty"`
	Cursor   *CursorRefs    `cbor:"cursor,omitempty"`
}

// HasCursor returns true if the record carries a selection.
func (r *Record) HasCursor() bool {
	return r != nil && r.Cursor != nil && len(r.Cursor.Anchor) > 0
}

// Label returns the display name, or UnknownLabel.
func (r *Record) Label() string {
	if r == nil || r.Identity == nil || r.Identity.DisplayName == "" {
		return UnknownLabel
	}
	return r.Identity.DisplayName
}

// Color returns the color class, or a color derived from the peer id.
func (r *Record) Color() string {
	if r != nil && r.Identity != nil && r.Identity.ColorClass != "" {
		return r.Identity.ColorClass
	}
	var peer replica.PeerID
	if r != nil {
		peer = r.Peer
	}
	return DefaultColor(peer)
}

// DefaultColor returns a stable hex color for a peer.
func DefaultColor(peer replica.PeerID) string {
	h := float64((uint64(peer) * 2654435761) % 360)
	return colorful.Hsv(h, 0.55, 0.9).Hex()
}

var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("presence: CBOR encoder initialization failed: " + err.Error())
	}
}

// Marshal encodes a record.
func Marshal(r *Record) ([]byte, error) {
	data, err := encMode.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encoding presence record: %w", err)
	}
	return data, nil
}

// Unmarshal decodes a record.
func Unmarshal(data []byte) (*Record, error) {
	var r Record
	if err := cbor.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decoding presence record: %w", err)
	}
	return &r, nil
}
