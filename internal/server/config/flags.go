package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/chatline/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-j string   JSON listener bind address (e.g., ":5452")
//	-b string   binary listener bind address (e.g., ":5453")
//	-w string   WebSocket listener bind address (e.g., ":5454")
//	-d string   PostgreSQL DSN; empty selects the in-memory store
//	-t int      shutdown grace period, seconds
//
// The function first filters os.Args to only the flags it recognizes using
// flagx.FilterArgs, avoiding collisions with other components.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-j", "-b", "-w", "-d", "-t"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.JSONAddr, "j", config.JSONAddr, "address and port of the JSON listener")
	fs.StringVar(&config.BinaryAddr, "b", config.BinaryAddr, "address and port of the binary listener")
	fs.StringVar(&config.WSAddr, "w", config.WSAddr, "address and port of the WebSocket listener")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")

	shutdownTimeout := fs.Int("t", int(config.ShutdownTimeout.Seconds()), "shutdown_timeout (in seconds)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.ShutdownTimeout = time.Duration(*shutdownTimeout) * time.Second
}
