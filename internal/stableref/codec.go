package stableref

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/dshills/costorm/internal/delta"
)

// wireVersion is the current reference format.
const wireVersion = 1

// Ref is an opaque, encoded stable position reference.
type Ref []byte

// String returns the reference as hex.
func (r Ref) String() string {
	return hex.EncodeToString(r)
}

// wireRef is the CBOR layout of a reference.
type wireRef struct {
	_         struct{} `cbor:",toarray"`
	Version   uint8
	Container string
	Peer      uint64
	Counter   uint32
	Side      int8
}

var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("stableref: CBOR encoder initialization failed: " + err.Error())
	}
}

// Marshal encodes a cursor as a reference. Equal cursors produce equal bytes.
func Marshal(c Cursor) (Ref, error) {
	data, err := encMode.Marshal(wireRef{
		Version:   wireVersion,
		Container: string(c.Container),
		Peer:      c.Peer,
		Counter:   c.Counter,
		Side:      int8(c.Side),
	})
	if err != nil {
		return nil, fmt.Errorf("encoding cursor: %w", err)
	}
	return Ref(data), nil
}

// Unmarshal decodes a reference into a cursor.
func Unmarshal(ref Ref) (Cursor, error) {
	if len(ref) == 0 {
		return Cursor{}, ErrInvalidRef
	}
	var w wireRef
	if err := cbor.Unmarshal(ref, &w); err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidRef, err)
	}
	if w.Version != wireVersion {
		return Cursor{}, fmt.Errorf("%w: unsupported version %d", ErrInvalidRef, w.Version)
	}
	if w.Side != int8(SideBefore) && w.Side != int8(SideAfter) {
		return Cursor{}, fmt.Errorf("%w: bad side %d", ErrInvalidRef, w.Side)
	}
	return Cursor{
		Container: delta.ContainerID(w.Container),
		Peer:      w.Peer,
		Counter:   w.Counter,
		Side:      Side(w.Side),
	}, nil
}

// Encode returns a stable reference for offset in c.
func Encode(c Container, offset int) (Ref, error) {
	if offset < 0 || offset > c.Len() {
		return nil, fmt.Errorf("%w: %d not in [0, %d]", ErrOffsetOutOfRange, offset, c.Len())
	}
	cur, err := c.CursorAt(offset)
	if err != nil {
		return nil, fmt.Errorf("cursor at %d: %w", offset, err)
	}
	return Marshal(cur)
}

// Decode resolves ref to a live offset in c, clamped to [0, Len].
func Decode(c Container, ref Ref) (int, error) {
	cur, err := Unmarshal(ref)
	if err != nil {
		return 0, err
	}
	if cur.Container != c.ID() {
		return 0, fmt.Errorf("%w: %s", ErrForeignContainer, cur.Container)
	}
	pos, err := c.CursorPos(cur)
	if err != nil {
		if errors.Is(err, ErrStaleReference) {
			return 0, err
		}
		return 0, fmt.Errorf("resolving %s: %w", cur, err)
	}
	return clamp(pos, c.Len()), nil
}

func clamp(pos, length int) int {
	if pos < 0 {
		return 0
	}
	if pos > length {
		return length
	}
	return pos
}

// Pair is a selection encoded as references. Head is nil when the
// selection is collapsed onto Anchor.
type Pair struct {
	Anchor Ref
	Head   Ref
}

// IsZero returns true if the pair holds no references.
func (p Pair) IsZero() bool {
	return len(p.Anchor) == 0
}

// EncodePair encodes a selection. A collapsed selection stores only the anchor.
func EncodePair(c Container, anchor, head int) (Pair, error) {
	a, err := Encode(c, anchor)
	if err != nil {
		return Pair{}, err
	}
	if head == anchor {
		return Pair{Anchor: a}, nil
	}
	h, err := Encode(c, head)
	if err != nil {
		return Pair{}, err
	}
	return Pair{Anchor: a, Head: h}, nil
}

// DecodePair resolves a selection. A missing head resolves to the anchor.
func DecodePair(c Container, p Pair) (anchor, head int, err error) {
	anchor, err = Decode(c, p.Anchor)
	if err != nil {
		return 0, 0, err
	}
	if len(p.Head) == 0 {
		return anchor, anchor, nil
	}
	head, err = Decode(c, p.Head)
	if err != nil {
		return 0, 0, err
	}
	return anchor, head, nil
}
