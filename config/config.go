// Package config parses the daemon's command-line flags with
// github.com/spf13/pflag, in the style of calvinalkan-agent-task's cmd/tk
// flag wiring: one flat struct, one Parse function, sensible zero-config
// defaults.
package config

import (
	"github.com/spf13/pflag"
)

// Config holds every tunable of a running server.
type Config struct {
	// PageSize is the fixed size in bytes of every page in the log, and of
	// every read slot's buffer.
	PageSize int
	// ReadSlots is R, the number of read slots the page cache keeps
	// resident.
	ReadSlots int
	// LRUK is the k parameter of the LRU-K eviction policy.
	LRUK int
	// Addr is the TCP address the server listens on.
	Addr string
	// DBPath is the backing file for the log. Empty selects an in-memory
	// disk, useful for local experimentation and tests.
	DBPath string
	// DiskWorkers sizes the disk I/O worker pool; 0 selects a
	// runtime.GOMAXPROCS(0)-sized pool.
	DiskWorkers int
	// LogLevel is parsed with logrus.ParseLevel.
	LogLevel string
}

// Default returns the configuration a bare invocation runs with.
func Default() Config {
	return Config{
		PageSize:    4096,
		ReadSlots:   8,
		LRUK:        2,
		Addr:        ":4444",
		DBPath:      "main.db",
		DiskWorkers: 0,
		LogLevel:    "info",
	}
}

// Parse registers flags on fs (typically pflag.CommandLine) against a copy
// of Default, parses args, and returns the result.
func Parse(fs *pflag.FlagSet, args []string) (Config, error) {
	cfg := Default()

	fs.IntVar(&cfg.PageSize, "page-size", cfg.PageSize, "size in bytes of each page in the log")
	fs.IntVar(&cfg.ReadSlots, "read-slots", cfg.ReadSlots, "number of resident read slots in the page cache")
	fs.IntVar(&cfg.LRUK, "lru-k", cfg.LRUK, "k parameter of the LRU-K eviction policy")
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "address to listen on")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "path to the backing log file (empty for in-memory)")
	fs.IntVar(&cfg.DiskWorkers, "disk-workers", cfg.DiskWorkers, "size of the disk I/O worker pool (0 selects a default)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "logrus level: trace, debug, info, warn, error")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
