package delta

import "math"

// builder accumulates ops in canonical form: adjacent ops of one kind are
// merged, empty ops are dropped, and inserts are kept ahead of deletes at
// the same position.
type builder struct {
	ops []Op
}

func (b *builder) push(op Op) {
	if op.Len() == 0 {
		return
	}
	n := len(b.ops)
	if n > 0 {
		last := &b.ops[n-1]
		if last.Kind == op.Kind {
			if op.Kind == KindInsert {
				last.Text += op.Text
			} else {
				last.N += op.N
			}
			return
		}
		if last.Kind == KindDelete && op.Kind == KindInsert {
			if n > 1 && b.ops[n-2].Kind == KindInsert {
				b.ops[n-2].Text += op.Text
				return
			}
			b.ops = append(b.ops, b.ops[n-1])
			b.ops[n-1] = op
			return
		}
	}
	b.ops = append(b.ops, op)
}

// result returns the accumulated ops without a trailing retain.
func (b *builder) result() []Op {
	if n := len(b.ops); n > 0 && b.ops[n-1].Kind == KindRetain {
		b.ops = b.ops[:n-1]
	}
	return b.ops
}

// Normalize returns ops in canonical form.
func Normalize(ops []Op) []Op {
	var b builder
	for _, op := range ops {
		b.push(op)
	}
	return b.result()
}

// iterator walks a delta, splitting ops on demand. Past the end it yields
// an unbounded retain.
type iterator struct {
	ops    []Op
	index  int
	offset int
}

func (it *iterator) hasNext() bool {
	return it.index < len(it.ops)
}

func (it *iterator) peekKind() Kind {
	if !it.hasNext() {
		return KindRetain
	}
	return it.ops[it.index].Kind
}

func (it *iterator) peekLen() int {
	if !it.hasNext() {
		return math.MaxInt
	}
	return it.ops[it.index].Len() - it.offset
}

// next consumes up to n runes of the current op.
func (it *iterator) next(n int) Op {
	if !it.hasNext() {
		return Retain(n)
	}
	op := it.ops[it.index]
	remaining := op.Len() - it.offset
	if n >= remaining {
		n = remaining
	}
	var out Op
	switch op.Kind {
	case KindInsert:
		runes := []rune(op.Text)
		out = Insert(string(runes[it.offset : it.offset+n]))
	default:
		out = Op{Kind: op.Kind, N: n}
	}
	if n == remaining {
		it.index++
		it.offset = 0
	} else {
		it.offset += n
	}
	return out
}

// Compose returns a single delta equivalent to applying a and then b.
func Compose(a, b []Op) []Op {
	ai := &iterator{ops: a}
	bi := &iterator{ops: b}
	var out builder

	for ai.hasNext() || bi.hasNext() {
		if bi.peekKind() == KindInsert {
			out.push(bi.next(bi.peekLen()))
			continue
		}
		if ai.peekKind() == KindDelete {
			out.push(ai.next(ai.peekLen()))
			continue
		}

		n := min(ai.peekLen(), bi.peekLen())
		aop := ai.next(n)
		bop := bi.next(n)
		switch bop.Kind {
		case KindRetain:
			// Retained text keeps whatever a produced: a retain or an insert.
			out.push(aop)
		case KindDelete:
			// Deleting text a inserted cancels both.
			if aop.Kind == KindRetain {
				out.push(bop)
			}
		}
	}
	return out.result()
}
