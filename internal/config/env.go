package config

import (
	"fmt"
	"strconv"
	"strings"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "COSTORM_"

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// envSetters maps environment variables to the setting they override.
var envSetters = map[string]func(*Config, string) error{
	"COSTORM_PEER_NAME":     func(c *Config, v string) error { c.Peer.Name = v; return nil },
	"COSTORM_PEER_COLOR":    func(c *Config, v string) error { c.Peer.Color = v; return nil },
	"COSTORM_PRESENCE_MODE": func(c *Config, v string) error { c.Presence.Mode = strings.ToLower(v); return nil },
	"COSTORM_PRESENCE_TTL":  func(c *Config, v string) error { return c.Presence.TTL.UnmarshalText([]byte(v)) },
	"COSTORM_UNDO_ENABLED": func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		c.Undo.Enabled = b
		return nil
	},
	"COSTORM_UNDO_MAX_ENTRIES": func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		c.Undo.MaxEntries = n
		return nil
	},
	"COSTORM_SYNC_CONTAINER": func(c *Config, v string) error { c.Sync.Container = v; return nil },
	"COSTORM_LOG_LEVEL":      func(c *Config, v string) error { c.Log.Level = strings.ToLower(v); return nil },
	"COSTORM_LOG_FORMAT":     func(c *Config, v string) error { c.Log.Format = strings.ToLower(v); return nil },
}

// ApplyEnv overrides cfg from environment variables found by lookup.
// Note: Empty string values are treated as set, not as unset.
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	for name, set := range envSetters {
		v, ok := lookup(name)
		if !ok {
			continue
		}
		if err := set(cfg, v); err != nil {
			return fmt.Errorf("environment %s=%q: %w", name, v, err)
		}
	}
	return nil
}
