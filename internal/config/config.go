// Package config loads costorm settings.
//
// Settings are resolved in three layers, later layers overriding earlier:
//
//	┌──────────────────────────────┐
//	│  3. COSTORM_* environment    │  ← Highest priority
//	├──────────────────────────────┤
//	│  2. Config file (TOML/YAML)  │
//	├──────────────────────────────┤
//	│  1. Built-in defaults        │  ← Lowest priority
//	└──────────────────────────────┘
//
// The file format is chosen by extension: .toml, or .yaml/.yml.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lucasb-eyer/go-colorful"
	"gopkg.in/yaml.v3"

	"github.com/dshills/costorm/internal/diag"
)

// Presence store modes.
const (
	ModeTable     = "table"
	ModeEphemeral = "ephemeral"
)

// Config is the full costorm configuration.
type Config struct {
	Peer     PeerConfig     `toml:"peer" yaml:"peer"`
	Presence PresenceConfig `toml:"presence" yaml:"presence"`
	Undo     UndoConfig     `toml:"undo" yaml:"undo"`
	Sync     SyncConfig     `toml:"sync" yaml:"sync"`
	Log      LogConfig      `toml:"log" yaml:"log"`
}

// PeerConfig is the local identity shown to other peers.
type PeerConfig struct {
	Name  string `toml:"name" yaml:"name"`
	Color string `toml:"color" yaml:"color"`
}

// PresenceConfig selects the presence store.
type PresenceConfig struct {
	Mode string   `toml:"mode" yaml:"mode"`
	TTL  Duration `toml:"ttl" yaml:"ttl"`
}

// UndoConfig controls the collaborative undo stack.
type UndoConfig struct {
	Enabled    bool `toml:"enabled" yaml:"enabled"`
	MaxEntries int  `toml:"max_entries" yaml:"max_entries"`
}

// SyncConfig names the shared text container.
type SyncConfig struct {
	Container string `toml:"container" yaml:"container"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Presence: PresenceConfig{
			Mode: ModeTable,
			TTL:  Duration(30 * time.Second),
		},
		Undo: UndoConfig{
			Enabled:    true,
			MaxEntries: 1000,
		},
		Sync: SyncConfig{
			Container: "content",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks every section and returns all failures joined.
func (c *Config) Validate() error {
	var errs []error
	fail := func(path, msg string, value any) {
		errs = append(errs, &ValidationError{Path: path, Message: msg, Value: value})
	}

	if c.Peer.Color != "" {
		if _, err := colorful.Hex(c.Peer.Color); err != nil {
			fail("peer.color", "must be a #rrggbb hex color", c.Peer.Color)
		}
	}
	switch c.Presence.Mode {
	case ModeTable:
	case ModeEphemeral:
		if c.Presence.TTL <= 0 {
			fail("presence.ttl", "must be positive in ephemeral mode", c.Presence.TTL)
		}
	default:
		fail("presence.mode", fmt.Sprintf("must be %q or %q", ModeTable, ModeEphemeral), c.Presence.Mode)
	}
	if c.Undo.MaxEntries < 0 {
		fail("undo.max_entries", "must not be negative", c.Undo.MaxEntries)
	}
	if strings.TrimSpace(c.Sync.Container) == "" {
		fail("sync.container", "must not be empty", c.Sync.Container)
	}
	if _, err := diag.ParseLevel(c.Log.Level); err != nil {
		fail("log.level", err.Error(), c.Log.Level)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		fail("log.format", `must be "text" or "json"`, c.Log.Format)
	}
	return errors.Join(errs...)
}

// Duration is a time.Duration written as a string ("30s") in config files.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// String implements fmt.Stringer.
func (d Duration) String() string { return time.Duration(d).String() }

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	return d.UnmarshalText([]byte(n.Value))
}
