package main

import (
	"os"
	"runtime"

	"github.com/petems/nexara-tray/internal/cli"
	"github.com/petems/nexara-tray/internal/config"
	"github.com/petems/nexara-tray/internal/logging"
	"github.com/petems/nexara-tray/internal/output"
	"github.com/petems/nexara-tray/internal/version"
)

var (
	// Version is set via ldflags at build time
	Version = "dev"
	// Commit is set via ldflags at build time
	Commit = "unknown"
)

// The tray event loop must run on the main OS thread.
func init() {
	runtime.LockOSThread()
}

func main() {
	version.Version = Version
	version.Commit = Commit

	// Load config from XDG/Library/AppData
	store, err := config.Load()
	if err != nil {
		log := logging.New()
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	log := logging.NewWithLevel(store.Snapshot().LogLevel)

	root := cli.NewRootCmd(&cli.Dependencies{
		Store:  store,
		Logger: log,
	})
	if err := root.Execute(); err != nil {
		output.NewFormatter(os.Stderr).Error(err.Error())
		os.Exit(1)
	}
}
