package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/gophchat/internal/flagx"
)

// parseFlags overlays cfg with command-line flags. Unknown flags are filtered
// out first so other packages can share os.Args.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-b", "-f", "-d", "-l", "-p"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.Backend, "b", cfg.Backend, "storage backend (embedded or networked)")
	fs.StringVar(&cfg.LocalDBPath, "f", cfg.LocalDBPath, "path to the on-device database file")
	fs.StringVar(&cfg.DatabaseDSN, "d", cfg.DatabaseDSN, "PostgreSQL DSN for the networked backend")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")
	poll := fs.Int("p", int(cfg.SyncPollInterval.Milliseconds()), "sync poll interval (in milliseconds)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.SyncPollInterval = time.Duration(*poll) * time.Millisecond
}
