package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/chatline/internal/flagx"
)

// JsonConfig defines a configuration structure tailored for JSON
// unmarshalling. It is an intermediate DTO used only for reading JSON
// configuration files; after unmarshalling, non-zero fields are copied
// into the runtime Config struct.
type JsonConfig struct {
	JSONAddr        string `json:"json_addr"`
	BinaryAddr      string `json:"binary_addr"`
	WSAddr          string `json:"ws_addr"`
	DatabaseDSN     string `json:"database_dsn"`
	ShutdownTimeout int    `json:"shutdown_timeout_seconds"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The file path is taken from the -c or -config command-line flags; when
// neither is set, no JSON file is loaded. Keys missing from the file keep
// their current (default) values. If the file cannot be read or contains
// invalid JSON, the function panics.
func parseJson(config *Config) {

	// try flags
	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	if c.JSONAddr != "" {
		config.JSONAddr = c.JSONAddr
	}
	if c.BinaryAddr != "" {
		config.BinaryAddr = c.BinaryAddr
	}
	if c.WSAddr != "" {
		config.WSAddr = c.WSAddr
	}
	if c.DatabaseDSN != "" {
		config.DatabaseDSN = c.DatabaseDSN
	}
	if c.ShutdownTimeout > 0 {
		config.ShutdownTimeout = time.Duration(c.ShutdownTimeout) * time.Second
	}
}
