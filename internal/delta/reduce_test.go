package delta

import (
	"errors"
	"reflect"
	"testing"
)

func TestReduce(t *testing.T) {
	tests := []struct {
		name string
		ops  []Op
		want []Edit
	}{
		{
			name: "insert at start",
			ops:  []Op{Insert("hello")},
			want: []Edit{{From: 0, To: 0, Text: "hello"}},
		},
		{
			name: "retain then insert",
			ops:  []Op{Retain(5), Insert(" world")},
			want: []Edit{{From: 5, To: 5, Text: " world"}},
		},
		{
			name: "delete advances position",
			ops:  []Op{Retain(1), Delete(2), Retain(3), Insert("x")},
			want: []Edit{{From: 1, To: 3}, {From: 6, To: 6, Text: "x"}},
		},
		{
			name: "insert does not advance position",
			ops:  []Op{Insert("ab"), Retain(2), Delete(1)},
			want: []Edit{{From: 0, To: 0, Text: "ab"}, {From: 2, To: 3}},
		},
		{
			name: "delete then insert coalesce into replace",
			ops:  []Op{Retain(2), Delete(3), Insert("XY")},
			want: []Edit{{From: 2, To: 5, Text: "XY"}},
		},
		{
			name: "insert then delete coalesce into replace",
			ops:  []Op{Retain(2), Insert("XY"), Delete(3)},
			want: []Edit{{From: 2, To: 5, Text: "XY"}},
		},
		{
			name: "empty delta",
			ops:  nil,
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Reduce(tt.ops)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Reduce(%v) = %v, want %v", tt.ops, got, tt.want)
			}
		})
	}
}

func TestReduceMatchesApply(t *testing.T) {
	text := "the quick brown fox"
	ops := []Op{Retain(4), Delete(6), Insert("slow "), Retain(6), Insert("!"), Delete(3)}

	want, err := Apply(text, ops)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	// Applying the reduced edits from the end keeps earlier positions valid.
	runes := []rune(text)
	edits := Reduce(ops)
	for i := len(edits) - 1; i >= 0; i-- {
		e := edits[i]
		tail := append([]rune(e.Text), runes[e.To:]...)
		runes = append(runes[:e.From], tail...)
	}
	if got := string(runes); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		ops     []Op
		length  int
		wantErr bool
	}{
		{"valid retain delete insert", []Op{Retain(2), Delete(3), Insert("x")}, 5, false},
		{"insert into empty", []Op{Insert("x")}, 0, false},
		{"span exceeds length", []Op{Retain(4), Delete(2)}, 5, true},
		{"zero retain", []Op{Retain(0)}, 5, true},
		{"negative delete", []Op{Delete(-1)}, 5, true},
		{"empty insert", []Op{Insert("")}, 5, true},
		{"unknown kind", []Op{{Kind: Kind(9), N: 1}}, 5, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.ops, tt.length)
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedBatch) {
					t.Errorf("expected ErrMalformedBatch, got %v", err)
				}
				var me *MalformedError
				if !errors.As(err, &me) {
					t.Errorf("expected *MalformedError, got %T", err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestApplyUnicode(t *testing.T) {
	got, err := Apply("héllo wörld", []Op{Retain(1), Delete(1), Insert("e"), Retain(5), Delete(1), Insert("o")})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got != "hello world" {
		t.Errorf("expected %q, got %q", "hello world", got)
	}
}

func TestApplyRejectsMalformed(t *testing.T) {
	if _, err := Apply("abc", []Op{Retain(2), Delete(2)}); !errors.Is(err, ErrMalformedBatch) {
		t.Errorf("expected ErrMalformedBatch, got %v", err)
	}
}

func TestFromEdits(t *testing.T) {
	edits := []Edit{{From: 1, To: 3, Text: "Z"}, {From: 5, To: 5, Text: "!"}}
	ops := FromEdits(edits)
	want := []Op{Retain(1), Insert("Z"), Delete(2), Retain(2), Insert("!")}
	if !reflect.DeepEqual(ops, want) {
		t.Errorf("FromEdits = %v, want %v", ops, want)
	}

	got, err := Apply("abcdef", ops)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got != "aZde!f" {
		t.Errorf("expected %q, got %q", "aZde!f", got)
	}
}

func TestBatchFor(t *testing.T) {
	b := Batch{
		Origin: OriginRemote,
		Events: []Event{
			{Target: "text", Ops: []Op{Insert("a")}},
			{Target: "other", Ops: []Op{Insert("b")}},
			{Target: "text", Ops: []Op{Retain(1), Insert("c")}},
		},
	}
	events, foreign := b.For("text")
	if len(events) != 2 {
		t.Errorf("expected 2 events, got %d", len(events))
	}
	if foreign != 1 {
		t.Errorf("expected 1 foreign event, got %d", foreign)
	}
}

func TestOriginString(t *testing.T) {
	tests := []struct {
		origin Origin
		want   string
	}{
		{OriginLocal, "local"},
		{OriginRemote, "remote"},
		{OriginHistory, "history"},
		{OriginCheckout, "checkout"},
		{Origin(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.origin.String(); got != tt.want {
			t.Errorf("Origin(%d).String() = %q, want %q", tt.origin, got, tt.want)
		}
	}
}
