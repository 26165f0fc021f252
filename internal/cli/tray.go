package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/petems/nexara-tray/internal/hotkey"
	"github.com/petems/nexara-tray/internal/permissions"
	"github.com/petems/nexara-tray/internal/tray"
	"github.com/petems/nexara-tray/internal/version"
	"github.com/spf13/cobra"
)

func NewTrayCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "tray",
		Short: "Run the tray application (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTray(cmd.Context(), deps)
		},
	}
}

func runTray(parent context.Context, deps *Dependencies) error {
	log := deps.Logger
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rt, err := deps.runtime()
	if err != nil {
		return err
	}
	defer rt.Close()

	// Opening the microphone once makes device labels available and shows
	// the permission prompt before the first recording.
	if _, err := rt.Acquirer.Initialize(ctx); err != nil {
		log.Warn().Err(err).Msg("Microphone is not available yet")
	}

	// Initialize hotkey manager
	hkManager, err := hotkey.New()
	if err != nil {
		return err
	}
	defer hkManager.Close()

	// Create tray UI first (we'll pass it to app)
	trayUI := tray.New(tray.Config{
		Settings: deps.Store,
		Devices:  rt.Acquirer,
		Logger:   log,
		Version:  version.Version,
		Commit:   version.Commit,
		OnQuit:   cancel,
	})

	application := rt.NewApp(deps.Store, trayUI, log, nil)
	trayUI.SetApp(application)

	if err := permissions.EnsureAccessibility(); err != nil {
		log.Warn().Err(err).Msg("Global hotkey may not work")
	}
	hk := deps.Store.Snapshot().PlatformHotkey()
	if err := hkManager.Register(hk, application.OnHotkey); err != nil {
		log.Error().Err(err).Str("hotkey", hk).Msg("Failed to register hotkey")
	}

	log.Info().Str("hotkey", hk).Msg("Nexara Tray starting...")

	// Start tray UI - MUST run on main thread
	runErr := trayUI.Run(ctx)

	log.Info().Msg("Shutting down...")
	if err := application.Shutdown(context.Background()); err != nil {
		log.Error().Err(err).Msg("Shutdown error")
	}
	return runErr
}
