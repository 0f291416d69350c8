// Package config handles configuration for the chat CLI, including
// defaults, JSON overlay, and command-line flags.
package config

// Config holds runtime settings for the chatline CLI.
//
// Fields:
//   - ServerAddr: host:port of the server listener to connect to.
//   - Encoding: wire encoding, "json" or "binary". Must match the listener
//     behind ServerAddr.
type Config struct {
	ServerAddr string
	Encoding   string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerAddr = "127.0.0.1:5452"
	c.Encoding = "json"
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
