package delta

import (
	"fmt"
	"unicode/utf8"
)

// ContainerID identifies one logical text container inside a replicated document.
type ContainerID string

// Kind is the instruction type of a delta operation.
type Kind uint8

const (
	KindRetain Kind = iota // Skip over existing text
	KindInsert             // Insert new text at the current position
	KindDelete             // Remove text at the current position
)

// String returns the instruction name.
func (k Kind) String() string {
	switch k {
	case KindRetain:
		return "retain"
	case KindInsert:
		return "insert"
	case KindDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Op is a single delta instruction. Spans are counted in runes.
type Op struct {
	Kind Kind
	N    int    // Span for retain and delete
	Text string // Inserted text
}

// Retain returns an op that skips n runes.
func Retain(n int) Op {
	return Op{Kind: KindRetain, N: n}
}

// Insert returns an op that inserts s.
func Insert(s string) Op {
	return Op{Kind: KindInsert, Text: s}
}

// Delete returns an op that removes n runes.
func Delete(n int) Op {
	return Op{Kind: KindDelete, N: n}
}

// Len returns the number of runes the op covers.
func (o Op) Len() int {
	if o.Kind == KindInsert {
		return utf8.RuneCountInString(o.Text)
	}
	return o.N
}

// String returns a human-readable representation of the op.
func (o Op) String() string {
	if o.Kind == KindInsert {
		return fmt.Sprintf("insert %q", o.Text)
	}
	return fmt.Sprintf("%s %d", o.Kind, o.N)
}

// ChangeLength returns the net change in text length caused by ops.
func ChangeLength(ops []Op) int {
	n := 0
	for _, op := range ops {
		switch op.Kind {
		case KindInsert:
			n += op.Len()
		case KindDelete:
			n -= op.N
		}
	}
	return n
}

// BaseLength returns the minimum text length ops can be applied to.
func BaseLength(ops []Op) int {
	n := 0
	for _, op := range ops {
		if op.Kind != KindInsert {
			n += op.N
		}
	}
	return n
}
