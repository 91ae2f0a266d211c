// Package config loads the server configuration from YAML. Unknown
// fields are rejected so typos fail loudly at startup instead of
// silently falling back to defaults.
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the replicantd server configuration.
type Config struct {
	// Listen is the address the WebSocket endpoint binds to.
	Listen string `yaml:"listen"`

	// DatabasePath is the SQLite database file. The file and its parent
	// directory are created on first open.
	DatabasePath string `yaml:"database_path"`

	// HistoryKeep is how many history rows per replicant the prune
	// command retains. Zero disables pruning defaults.
	HistoryKeep int `yaml:"history_keep,omitempty"`

	// PersistTimeout bounds each storage call.
	PersistTimeout Duration `yaml:"persist_timeout,omitempty"`

	// Transport tunes per-connection WebSocket behavior.
	Transport TransportConfig `yaml:"transport,omitempty"`
}

// TransportConfig tunes per-connection behavior. Zero values fall back
// to the server package defaults.
type TransportConfig struct {
	WriteTimeout Duration `yaml:"write_timeout,omitempty"`
	PingInterval Duration `yaml:"ping_interval,omitempty"`
	SendBuffer   int      `yaml:"send_buffer,omitempty"`
}

// Duration decodes Go duration strings ("5s", "1m30s") from YAML.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return fmt.Errorf("duration must be a string like \"5s\": %w", err)
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the duration as the standard library type.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Defaults applied when a field is absent.
const (
	DefaultListen       = "127.0.0.1:9090"
	DefaultDatabasePath = "replicant.db"
	DefaultHistoryKeep  = 50
)

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Listen:       DefaultListen,
		DatabasePath: DefaultDatabasePath,
		HistoryKeep:  DefaultHistoryKeep,
	}
}

// Load reads and parses a configuration file. Returns an error if the
// file doesn't exist, is malformed, or contains unknown fields (typos).
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks that required fields are present and sane.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen is required")
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("database_path is required")
	}
	if c.HistoryKeep < 0 {
		return fmt.Errorf("history_keep must be non-negative")
	}
	if c.PersistTimeout < 0 {
		return fmt.Errorf("persist_timeout must be non-negative")
	}
	if c.Transport.SendBuffer < 0 {
		return fmt.Errorf("transport.send_buffer must be non-negative")
	}
	return nil
}
