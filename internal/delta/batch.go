package delta

// Origin classifies why a change-batch was produced.
type Origin uint8

const (
	// OriginLocal is an edit committed by this peer.
	OriginLocal Origin = iota

	// OriginRemote is the result of merging changes from another peer.
	OriginRemote

	// OriginHistory is produced by undo/redo navigation.
	OriginHistory

	// OriginCheckout is produced when the document switches to another
	// snapshot, e.g. a historical version or back to the live head.
	OriginCheckout
)

// String returns the origin name.
func (o Origin) String() string {
	switch o {
	case OriginLocal:
		return "local"
	case OriginRemote:
		return "remote"
	case OriginHistory:
		return "history"
	case OriginCheckout:
		return "checkout"
	default:
		return "unknown"
	}
}

// Event is a delta against a single container.
type Event struct {
	Target ContainerID
	Ops    []Op
}

// Batch is an atomic, originated set of deltas.
// Events apply in order; each event's ops apply left to right.
type Batch struct {
	Origin Origin
	Events []Event
}

// For splits the batch into the events that target id and the number of
// events that target some other container.
func (b Batch) For(id ContainerID) (events []Event, foreign int) {
	for _, ev := range b.Events {
		if ev.Target != id {
			foreign++
			continue
		}
		events = append(events, ev)
	}
	return events, foreign
}

// IsEmpty reports whether the batch carries no operations.
func (b Batch) IsEmpty() bool {
	for _, ev := range b.Events {
		if len(ev.Ops) > 0 {
			return false
		}
	}
	return true
}
