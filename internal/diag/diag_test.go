package diag

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"", slog.LevelInfo, false},
		{"WARN", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewLogger("warn", "json", &buf)
	if err != nil {
		t.Fatal(err)
	}
	WithComponent(l, "sync").Info("hidden")
	WithComponent(l, "sync").Warn("shown", "n", 1)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info message logged at warn level: %s", out)
	}
	if !strings.Contains(out, `"component":"sync"`) || !strings.Contains(out, "shown") {
		t.Errorf("unexpected output: %s", out)
	}

	if _, err := NewLogger("info", "xml", &buf); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestMetrics(t *testing.T) {
	m := NewMetrics()
	m.LocalEdits.Inc()
	m.LocalEdits.Inc()
	m.StaleReferences.Inc()

	if got := testutil.ToFloat64(m.LocalEdits); got != 2 {
		t.Errorf("LocalEdits = %v, want 2", got)
	}
	if got := m.Value("costorm_sync_local_edits_total"); got != 2 {
		t.Errorf("Value(local edits) = %v, want 2", got)
	}
	if got := len(m.LogAttrs()); got != 4 {
		t.Errorf("LogAttrs() has %d entries, want 4", got)
	}

	// Separate sessions do not share counters.
	other := NewMetrics()
	if got := other.Value("costorm_sync_local_edits_total"); got != 0 {
		t.Errorf("fresh metrics = %v, want 0", got)
	}
}
