package diag

import (
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts what the bridges do. Each Metrics owns a private
// registry so several sessions can live in one process.
type Metrics struct {
	registry *prometheus.Registry

	// Sync bridge
	LocalEdits       prometheus.Counter
	RemoteBatches    prometheus.Counter
	HistoryBatches   prometheus.Counter
	Checkouts        prometheus.Counter
	EchoesSuppressed prometheus.Counter
	ForeignDeltas    prometheus.Counter
	MalformedBatches prometheus.Counter

	// Presence bridge
	PresencePublished  prometheus.Counter
	PresenceTombstones prometheus.Counter
	PresenceReceived   prometheus.Counter
	StaleReferences    prometheus.Counter
	Renders            prometheus.Counter

	// Undo coordinator
	Undos        prometheus.Counter
	Redos        prometheus.Counter
	EmptyHistory prometheus.Counter
}

// NewMetrics creates a metrics set on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	counter := func(subsystem, name, help string) prometheus.Counter {
		return f.NewCounter(prometheus.CounterOpts{
			Namespace: "costorm",
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		})
	}

	return &Metrics{
		registry: reg,

		LocalEdits:       counter("sync", "local_edits_total", "Local buffer changes committed to the document."),
		RemoteBatches:    counter("sync", "remote_batches_total", "Remote change batches replayed into the buffer."),
		HistoryBatches:   counter("sync", "history_batches_total", "Undo/redo change batches replayed into the buffer."),
		Checkouts:        counter("sync", "checkouts_total", "Full buffer replacements after a checkout."),
		EchoesSuppressed: counter("sync", "echoes_suppressed_total", "Buffer changes and batches ignored because the bridge caused them."),
		ForeignDeltas:    counter("sync", "foreign_deltas_total", "Change events skipped because they target another container."),
		MalformedBatches: counter("sync", "malformed_batches_total", "Change batches dropped because an event failed validation."),

		PresencePublished:  counter("presence", "published_total", "Local presence records published."),
		PresenceTombstones: counter("presence", "tombstones_total", "Local presence tombstones published."),
		PresenceReceived:   counter("presence", "received_total", "Remote presence changes consumed."),
		StaleReferences:    counter("presence", "stale_references_total", "Remote references that could not be resolved."),
		Renders:            counter("presence", "renders_total", "Decoration recomputes."),

		Undos:        counter("undo", "undo_total", "Undo steps applied."),
		Redos:        counter("undo", "redo_total", "Redo steps applied."),
		EmptyHistory: counter("undo", "empty_total", "Undo or redo requests with nothing to apply."),
	}
}

// Registry returns the registry holding the counters.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Sample is one counter value.
type Sample struct {
	Name  string
	Value float64
}

// Snapshot returns every counter, sorted by name.
func (m *Metrics) Snapshot() []Sample {
	families, err := m.registry.Gather()
	if err != nil {
		return nil
	}
	var out []Sample
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			if c := metric.GetCounter(); c != nil {
				out = append(out, Sample{Name: mf.GetName(), Value: c.GetValue()})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Value returns the named counter, or 0 if it does not exist.
func (m *Metrics) Value(name string) float64 {
	for _, s := range m.Snapshot() {
		if s.Name == name {
			return s.Value
		}
	}
	return 0
}

// LogAttrs returns the non-zero counters as slog key/value pairs.
func (m *Metrics) LogAttrs() []any {
	var attrs []any
	for _, s := range m.Snapshot() {
		if s.Value != 0 {
			attrs = append(attrs, s.Name, s.Value)
		}
	}
	return attrs
}
