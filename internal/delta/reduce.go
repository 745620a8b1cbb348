package delta

import "fmt"

// Edit replaces the runes in [From, To) with Text.
// Positions are expressed against the text before the delta is applied.
type Edit struct {
	From int
	To   int
	Text string
}

// IsNoOp returns true if the edit changes nothing.
func (e Edit) IsNoOp() bool {
	return e.From == e.To && e.Text == ""
}

// String returns a human-readable representation of the edit.
func (e Edit) String() string {
	if e.From == e.To {
		return fmt.Sprintf("Insert(%d, %q)", e.From, e.Text)
	}
	if e.Text == "" {
		return fmt.Sprintf("Delete[%d:%d)", e.From, e.To)
	}
	return fmt.Sprintf("Replace[%d:%d) with %q", e.From, e.To, e.Text)
}

// Validate checks ops against a text of the given length.
// Spans must be positive, inserts non-empty, and the retained plus deleted
// runes must fit inside the text.
func Validate(ops []Op, length int) error {
	span := 0
	for i, op := range ops {
		switch op.Kind {
		case KindRetain, KindDelete:
			if op.N <= 0 {
				return &MalformedError{Index: i, Op: op, Reason: "non-positive span"}
			}
			span += op.N
			if span > length {
				return &MalformedError{
					Index:  i,
					Op:     op,
					Reason: fmt.Sprintf("span %d exceeds length %d", span, length),
				}
			}
		case KindInsert:
			if op.Text == "" {
				return &MalformedError{Index: i, Op: op, Reason: "empty insert"}
			}
		default:
			return &MalformedError{Index: i, Op: op, Reason: "unknown op kind"}
		}
	}
	return nil
}

// reducer folds delta instructions into edits. pos is the read position in
// the original text; inserts do not advance it.
type reducer struct {
	pos   int
	edits []Edit
}

func (r *reducer) step(op Op) {
	switch op.Kind {
	case KindRetain:
		r.pos += op.N
	case KindInsert:
		r.emit(Edit{From: r.pos, To: r.pos, Text: op.Text})
	case KindDelete:
		r.emit(Edit{From: r.pos, To: r.pos + op.N})
		r.pos += op.N
	}
}

// emit appends e, merging it into the previous edit when they touch.
func (r *reducer) emit(e Edit) {
	if n := len(r.edits); n > 0 {
		last := &r.edits[n-1]
		if last.To == e.From {
			last.To = e.To
			last.Text += e.Text
			return
		}
	}
	r.edits = append(r.edits, e)
}

// Reduce converts a delta into ascending, non-overlapping edits expressed in
// the coordinates of the text before the delta. Callers should Validate
// first; Reduce does not check spans.
func Reduce(ops []Op) []Edit {
	var r reducer
	for _, op := range ops {
		r.step(op)
	}
	return r.edits
}

// FromEdits converts ascending, non-overlapping edits (in original
// coordinates) into a delta.
func FromEdits(edits []Edit) []Op {
	var b builder
	pos := 0
	for _, e := range edits {
		if e.From > pos {
			b.push(Retain(e.From - pos))
		}
		if e.To > e.From {
			b.push(Delete(e.To - e.From))
		}
		if e.Text != "" {
			b.push(Insert(e.Text))
		}
		pos = e.To
	}
	return b.result()
}

// Apply returns text transformed by ops.
func Apply(text string, ops []Op) (string, error) {
	src := []rune(text)
	if err := Validate(ops, len(src)); err != nil {
		return "", err
	}
	out := make([]rune, 0, len(src)+ChangeLength(ops))
	pos := 0
	for _, op := range ops {
		switch op.Kind {
		case KindRetain:
			out = append(out, src[pos:pos+op.N]...)
			pos += op.N
		case KindInsert:
			out = append(out, []rune(op.Text)...)
		case KindDelete:
			pos += op.N
		}
	}
	out = append(out, src[pos:]...)
	return string(out), nil
}
