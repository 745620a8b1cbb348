package textsync

import (
	"testing"

	"github.com/dshills/costorm/internal/delta"
	"github.com/dshills/costorm/internal/diag"
	"github.com/dshills/costorm/internal/replica"
	"github.com/dshills/costorm/internal/scheduler"
	"github.com/dshills/costorm/internal/surface"
)

type peer struct {
	doc     *replica.Doc
	text    *replica.Text
	surface *surface.Surface
	loop    *scheduler.Loop
	metrics *diag.Metrics
	bridge  *Bridge
}

func newPeer(t *testing.T, id replica.PeerID, initial string) *peer {
	t.Helper()
	p := &peer{
		doc:     replica.New(replica.WithPeerID(id)),
		surface: surface.New(surface.WithText(initial), surface.WithNativeHistory(false)),
		loop:    scheduler.New(),
		metrics: diag.NewMetrics(),
	}
	p.text = p.doc.Text("content")
	b, err := New(p.doc, p.text, p.surface, p.loop, WithMetrics(p.metrics))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	p.bridge = b
	t.Cleanup(func() { b.Close() })
	return p
}

func (p *peer) edit(t *testing.T, edits ...surface.Edit) {
	t.Helper()
	if err := p.surface.ApplyEdits(edits); err != nil {
		t.Fatalf("ApplyEdits: %v", err)
	}
}

// deliver sends everything from one peer to another.
func deliver(t *testing.T, from, to *peer) {
	t.Helper()
	if err := to.doc.Import(from.doc.Export(to.doc.VersionVector())); err != nil {
		t.Fatalf("Import: %v", err)
	}
}

func TestLocalEditReachesContainer(t *testing.T) {
	p := newPeer(t, 1, "")

	p.edit(t, surface.Edit{From: 0, To: 0, Text: "hello world"})
	p.edit(t,
		surface.Edit{From: 0, To: 1, Text: "J"},
		surface.Edit{From: 5, To: 6, Text: ", "},
		surface.Edit{From: 11, To: 11, Text: "!"},
	)

	if got := p.text.String(); got != "Jello, world!" {
		t.Errorf("container = %q, want %q", got, "Jello, world!")
	}
	if got := p.doc.Head(); got != 2 {
		t.Errorf("Head() = %d, want one commit per transaction", got)
	}
	if got := p.metrics.Value("costorm_sync_local_edits_total"); got != 2 {
		t.Errorf("local edits = %v, want 2", got)
	}
}

func TestNoEcho(t *testing.T) {
	p := newPeer(t, 1, "")

	bridgeMutations := 0
	p.surface.Listen(func(u surface.Update) {
		if u.HasTag(TagSync) || u.HasTag(TagHistory) {
			bridgeMutations++
		}
	})

	p.edit(t, surface.Edit{From: 0, To: 0, Text: "abc"})
	p.edit(t, surface.Edit{From: 1, To: 2, Text: "XYZ"})
	p.edit(t, surface.Edit{From: 0, To: 5})

	if bridgeMutations != 0 {
		t.Errorf("bridge mutated the surface %d times in response to its own commits", bridgeMutations)
	}
	if got := p.metrics.Value("costorm_sync_echoes_suppressed_total"); got != 3 {
		t.Errorf("echoes suppressed = %v, want 3", got)
	}
	if p.surface.Text() != p.text.String() {
		t.Errorf("surface %q != container %q", p.surface.Text(), p.text.String())
	}
}

func TestHelloWorld(t *testing.T) {
	p1 := newPeer(t, 1, "")
	p2 := newPeer(t, 2, "")

	p1.edit(t, surface.Edit{From: 0, To: 0, Text: "hello"})
	deliver(t, p1, p2)
	if got := p2.surface.Text(); got != "hello" {
		t.Fatalf("peer 2 buffer = %q, want %q", got, "hello")
	}

	p2.edit(t, surface.Edit{From: 5, To: 5, Text: " world"})
	deliver(t, p2, p1)
	if got := p1.surface.Text(); got != "hello world" {
		t.Errorf("peer 1 buffer = %q, want %q", got, "hello world")
	}
	if got := p1.metrics.Value("costorm_sync_remote_batches_total"); got != 1 {
		t.Errorf("peer 1 remote batches = %v, want 1", got)
	}
}

func TestConvergence(t *testing.T) {
	a := newPeer(t, 1, "")
	b := newPeer(t, 2, "")

	a.edit(t, surface.Edit{From: 0, To: 0, Text: "the quick brown fox"})
	deliver(t, a, b)

	a.edit(t, surface.Edit{From: 4, To: 9, Text: "slow"})
	a.edit(t, surface.Edit{From: 0, To: 0, Text: "> "})
	b.edit(t, surface.Edit{From: 10, To: 15, Text: "red"}, surface.Edit{From: 19, To: 19, Text: "!"})
	b.edit(t, surface.Edit{From: 0, To: 3, Text: "A"})

	deliver(t, a, b)
	deliver(t, b, a)

	if a.surface.Text() != b.surface.Text() {
		t.Fatalf("buffers diverged: %q vs %q", a.surface.Text(), b.surface.Text())
	}
	if a.surface.Text() != a.text.String() || b.surface.Text() != b.text.String() {
		t.Errorf("buffer and container out of step")
	}
	// Both prefixes were inserted at the head concurrently; the higher peer
	// id goes first.
	if got, want := a.surface.Text(), "A>  slow red fox!"; got != want {
		t.Errorf("merged = %q, want %q", got, want)
	}
}

func TestStartupReconciliation(t *testing.T) {
	doc := replica.New(replica.WithPeerID(1))
	text := doc.Text("content")
	if err := text.Insert(0, "from container"); err != nil {
		t.Fatal(err)
	}
	doc.Commit()

	s := surface.New(surface.WithText("stale buffer"))
	m := diag.NewMetrics()
	loop := scheduler.New()
	b, err := New(doc, text, s, loop, WithMetrics(m))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer b.Close()

	if s.Text() != "from container" {
		t.Errorf("surface = %q, want container text", s.Text())
	}
	if doc.Head() != 1 || m.Value("costorm_sync_local_edits_total") != 0 {
		t.Error("reconciliation was pushed back as a local edit")
	}
}

func TestCheckoutReplacesBuffer(t *testing.T) {
	p := newPeer(t, 1, "")
	p.edit(t, surface.Edit{From: 0, To: 0, Text: "v1"})
	p.edit(t, surface.Edit{From: 2, To: 2, Text: " v2"})

	if err := p.doc.Checkout(1); err != nil {
		t.Fatal(err)
	}
	if got := p.surface.Text(); got != "v1" {
		t.Errorf("detached buffer = %q, want %q", got, "v1")
	}

	// Typing into a historical view is reverted on the next tick.
	p.edit(t, surface.Edit{From: 0, To: 0, Text: "x"})
	if _, err := p.loop.Flush(); err != nil {
		t.Fatal(err)
	}
	if got := p.surface.Text(); got != "v1" {
		t.Errorf("buffer after detached edit = %q, want %q", got, "v1")
	}

	p.doc.CheckoutToLatest()
	if got := p.surface.Text(); got != "v1 v2" {
		t.Errorf("latest buffer = %q, want %q", got, "v1 v2")
	}
	if got := p.metrics.Value("costorm_sync_checkouts_total"); got != 2 {
		t.Errorf("checkouts = %v, want 2", got)
	}
}

func TestHistoryReplay(t *testing.T) {
	p := newPeer(t, 1, "")
	um := replica.NewUndoManager(p.doc, 0)

	p.edit(t, surface.Edit{From: 0, To: 0, Text: "hello"})
	p.edit(t, surface.Edit{From: 5, To: 5, Text: " world"})

	var tagged int
	p.surface.Listen(func(u surface.Update) {
		if u.HasTag(TagHistory) {
			tagged++
		}
	})
	if err := um.Undo(); err != nil {
		t.Fatal(err)
	}
	if got := p.surface.Text(); got != "hello" {
		t.Errorf("after undo = %q, want %q", got, "hello")
	}
	if tagged != 1 {
		t.Errorf("history replays = %d, want 1", tagged)
	}
	if p.doc.Head() != 3 {
		t.Errorf("history replay was pushed back as a local edit")
	}
}

func TestClose(t *testing.T) {
	a := newPeer(t, 1, "")
	b := newPeer(t, 2, "")

	if err := b.bridge.Close(); err != nil {
		t.Fatal(err)
	}
	if err := b.bridge.Close(); err != nil {
		t.Fatal(err)
	}

	a.edit(t, surface.Edit{From: 0, To: 0, Text: "ignored"})
	deliver(t, a, b)
	if b.surface.Text() != "" {
		t.Errorf("closed bridge replayed into surface: %q", b.surface.Text())
	}
	b.edit(t, surface.Edit{From: 0, To: 0, Text: "local"})
	if b.text.String() != "ignored" {
		t.Errorf("closed bridge pushed local edit: %q", b.text.String())
	}
}

// fakeDoc emits hand-built batches.
type fakeDoc struct {
	subs []func(delta.Batch)
}

func (d *fakeDoc) Subscribe(fn func(delta.Batch)) func() {
	d.subs = append(d.subs, fn)
	return func() {}
}
func (d *fakeDoc) Commit() {}
func (d *fakeDoc) IsDetached() bool { return false }
func (d *fakeDoc) emit(b delta.Batch) {
	for _, fn := range d.subs {
		fn(b)
	}
}

type fakeText struct {
	id   delta.ContainerID
	text string
}

func (f *fakeText) ID() delta.ContainerID { return f.id }
func (f *fakeText) String() string { return f.text }
func (f *fakeText) Len() int { return len([]rune(f.text)) }
func (f *fakeText) Insert(offset int, s string) error { return nil }
func (f *fakeText) Delete(offset, n int) error { return nil }

func TestForeignAndMalformed(t *testing.T) {
	doc := &fakeDoc{}
	text := &fakeText{id: "text:content", text: "abc"}
	s := surface.New(surface.WithText("abc"))
	m := diag.NewMetrics()
	loop := scheduler.New()
	b, err := New(doc, text, s, loop, WithMetrics(m))
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	doc.emit(delta.Batch{Origin: delta.OriginRemote, Events: []delta.Event{
		{Target: "text:other", Ops: []delta.Op{delta.Insert("zzz")}},
		{Target: "text:content", Ops: []delta.Op{delta.Retain(2), delta.Insert("X")}},
	}})
	if s.Text() != "abXc" {
		t.Errorf("surface = %q, want %q", s.Text(), "abXc")
	}
	if got := m.Value("costorm_sync_foreign_deltas_total"); got != 1 {
		t.Errorf("foreign deltas = %v, want 1", got)
	}

	doc.emit(delta.Batch{Origin: delta.OriginRemote, Events: []delta.Event{
		{Target: "text:content", Ops: []delta.Op{delta.Insert("ok")}},
		{Target: "text:content", Ops: []delta.Op{delta.Retain(10), delta.Delete(1)}},
	}})
	if s.Text() != "abXc" {
		t.Errorf("malformed batch was partially applied: %q", s.Text())
	}
	if got := m.Value("costorm_sync_malformed_batches_total"); got != 1 {
		t.Errorf("malformed batches = %v, want 1", got)
	}

	// The dropped batch schedules a resync that brings the buffer back to
	// the container.
	if got := loop.Pending(); got != 1 {
		t.Fatalf("pending = %d, want 1", got)
	}
	if _, err := loop.Flush(); err != nil {
		t.Fatal(err)
	}
	if s.Text() != text.String() {
		t.Errorf("surface = %q after resync, want %q", s.Text(), text.String())
	}
}

func TestDigest(t *testing.T) {
	if Digest("a") == Digest("b") {
		t.Error("different texts share a digest")
	}
	if len(Digest("")) != 64 {
		t.Errorf("digest length = %d, want 64", len(Digest("")))
	}
}
