// Package config handles configuration for the server component,
// including defaults, JSON overlay, and command-line flags.
package config

import "time"

// Config holds runtime settings for the chatline server.
//
// Fields:
//   - JSONAddr: bind address for the JSON-over-TCP listener.
//   - BinaryAddr: bind address for the binary-over-TCP listener.
//   - WSAddr: bind address for the WebSocket listener (JSON frames).
//   - DatabaseDSN: PostgreSQL DSN (pgx). Empty selects the in-memory store.
//   - ShutdownTimeout: grace period for draining connections on shutdown.
type Config struct {
	JSONAddr        string
	BinaryAddr      string
	WSAddr          string
	DatabaseDSN     string
	ShutdownTimeout time.Duration
}

// LoadDefaults populates Config with development defaults. The empty DSN
// means messages and accounts live in process memory and vanish on restart.
func (c *Config) LoadDefaults() {
	c.JSONAddr = ":5452"
	c.BinaryAddr = ":5453"
	c.WSAddr = ":5454"
	c.DatabaseDSN = ""
	c.ShutdownTimeout = 10 * time.Second
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file and finally from command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
