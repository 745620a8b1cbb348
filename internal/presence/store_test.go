package presence

import (
	"reflect"
	"testing"
	"time"

	"github.com/dshills/costorm/internal/replica"
	"github.com/dshills/costorm/internal/stableref"
)

func TestRecordEncoding(t *testing.T) {
	rec := &Record{
		Peer:     7,
		Identity: &Identity{DisplayName: "carol"},
		Cursor:   &CursorRefs{Anchor: stableref.Ref{1, 2}, Head: stableref.Ref{3}},
	}
	data, err := Marshal(rec)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Unmarshal(data)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, rec) {
		t.Errorf("Unmarshal() = %+v, want %+v", got, rec)
	}
	if (&Record{}).HasCursor() {
		t.Error("empty record has a cursor")
	}
}

func TestDefaultColor(t *testing.T) {
	if DefaultColor(5) != DefaultColor(5) {
		t.Error("DefaultColor is not deterministic")
	}
	if c := DefaultColor(5); len(c) != 7 || c[0] != '#' {
		t.Errorf("DefaultColor(5) = %q, want #rrggbb", c)
	}
}

func TestTableChanges(t *testing.T) {
	local := NewTable()
	var seen []Change
	cancel := local.Subscribe(func(c Change) { seen = append(seen, c) })

	if err := local.Publish(1, &Record{}); err != nil {
		t.Fatal(err)
	}
	if err := local.Publish(1, &Record{Identity: &Identity{DisplayName: "x"}}); err != nil {
		t.Fatal(err)
	}
	if err := local.Publish(1, nil); err != nil {
		t.Fatal(err)
	}
	cancel()
	cancel()
	if err := local.Publish(2, &Record{}); err != nil {
		t.Fatal(err)
	}

	want := []Change{
		{Added: []replica.PeerID{1}, By: SourceLocal},
		{Updated: []replica.PeerID{1}, By: SourceLocal},
		{Removed: []replica.PeerID{1}, By: SourceLocal},
	}
	if !reflect.DeepEqual(seen, want) {
		t.Errorf("changes = %+v, want %+v", seen, want)
	}
	if got := local.Peers(); !reflect.DeepEqual(got, []replica.PeerID{2}) {
		t.Errorf("Peers() = %v, want [2]", got)
	}
}

func TestTableApplyKeepsNewest(t *testing.T) {
	a, b := NewTable(), NewTable()
	if err := a.Publish(1, &Record{Identity: &Identity{DisplayName: "old"}}); err != nil {
		t.Fatal(err)
	}
	old, err := a.Export()
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Publish(1, &Record{Identity: &Identity{DisplayName: "new"}}); err != nil {
		t.Fatal(err)
	}
	fresh, err := a.Export()
	if err != nil {
		t.Fatal(err)
	}

	var seen []Change
	b.Subscribe(func(c Change) { seen = append(seen, c) })
	if err := b.Apply(fresh); err != nil {
		t.Fatal(err)
	}
	if err := b.Apply(old); err != nil {
		t.Fatal(err)
	}

	rec, ok := b.Get(1)
	if !ok || rec.Label() != "new" {
		t.Errorf("Get(1) = %+v, want the newest record", rec)
	}
	if len(seen) != 1 || seen[0].By != SourceRemote {
		t.Errorf("changes = %+v, want one remote change", seen)
	}
}

func TestEphemeralKeys(t *testing.T) {
	if got := Key(42); got != "42-cm-state" {
		t.Errorf("Key(42) = %q", got)
	}
	if p, ok := parseKey("42-cm-state"); !ok || p != 42 {
		t.Errorf("parseKey = %v, %v", p, ok)
	}
	for _, bad := range []string{"42", "x-cm-state", "0-cm-state"} {
		if _, ok := parseKey(bad); ok {
			t.Errorf("parseKey(%q) accepted", bad)
		}
	}
}

func TestEphemeralTombstonePropagates(t *testing.T) {
	a := NewEphemeral(time.Minute)
	b := NewEphemeral(time.Minute)
	var seen []Change
	b.Subscribe(func(c Change) { seen = append(seen, c) })

	send := func() {
		t.Helper()
		data, err := a.Export()
		if err != nil {
			t.Fatal(err)
		}
		if err := b.Apply(data); err != nil {
			t.Fatal(err)
		}
	}

	if err := a.Publish(1, &Record{}); err != nil {
		t.Fatal(err)
	}
	send()
	send()
	if err := a.Publish(1, nil); err != nil {
		t.Fatal(err)
	}
	send()

	want := []Change{
		{Added: []replica.PeerID{1}, By: SourceRemote},
		{Removed: []replica.PeerID{1}, By: SourceRemote},
	}
	if !reflect.DeepEqual(seen, want) {
		t.Errorf("changes = %+v, want %+v", seen, want)
	}
}
