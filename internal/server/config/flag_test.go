package config

import (
	"flag"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {

	// Test cases
	tests := []struct {
		expected    *Config
		name        string
		args        []string
		expectPanic bool
	}{
		{name: "Test1 OK", args: []string{"cmd",
			"-j", "127.0.0.1:5452", "-b", "127.0.0.1:5453", "-w", "127.0.0.1:5454",
			"-d", "postgres://localhost/chatline", "-t", "5",
		}, expectPanic: false,
			expected: &Config{
				JSONAddr:        "127.0.0.1:5452",
				BinaryAddr:      "127.0.0.1:5453",
				WSAddr:          "127.0.0.1:5454",
				DatabaseDSN:     "postgres://localhost/chatline",
				ShutdownTimeout: 5 * time.Second,
			}},
		{name: "Test2 unrelated flags are ignored", args: []string{"cmd",
			"-j", "127.0.0.1:5452", "-x", "whatever",
		}, expectPanic: false,
			expected: &Config{
				JSONAddr: "127.0.0.1:5452",
			}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.PanicOnError)

			os.Args = tt.args

			config := &Config{}

			if !tt.expectPanic {
				require.NotPanics(t, func() { parseFlags(config) })
				assert.Empty(t, cmp.Diff(config, tt.expected))
			} else {
				require.Panics(t, func() { parseFlags(config) })
			}
		})
	}
}
