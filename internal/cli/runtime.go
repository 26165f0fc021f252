package cli

import (
	"fmt"

	"github.com/petems/nexara-tray/internal/app"
	"github.com/petems/nexara-tray/internal/capture"
	"github.com/petems/nexara-tray/internal/config"
	"github.com/petems/nexara-tray/internal/encoder"
	"github.com/petems/nexara-tray/internal/inject"
	"github.com/petems/nexara-tray/internal/media"
	"github.com/petems/nexara-tray/internal/mixer"
	"github.com/petems/nexara-tray/internal/nexara"
	"github.com/petems/nexara-tray/internal/permissions"
	"github.com/petems/nexara-tray/internal/webhook"
	"github.com/rs/zerolog"
)

// Runtime holds the audio and network components shared by the commands.
type Runtime struct {
	Audio    *media.PortAudio
	Acquirer *media.Acquirer
	Recorder *capture.Recorder
	Nexara   *nexara.Client
	Webhook  *webhook.Dispatcher
}

func newRuntime(settings config.Settings, log zerolog.Logger) (*Runtime, error) {
	pa, err := media.NewPortAudio(log)
	if err != nil {
		return nil, fmt.Errorf("initializing audio: %w", err)
	}

	var display media.DisplayShare
	if settings.Audio.SystemAudioDevice != "" {
		display = media.NewLoopbackShare(pa, settings.Audio.SystemAudioDevice)
	}

	acq := media.NewAcquirer(media.AcquirerConfig{
		Backend:    pa,
		Display:    display,
		Permission: permissions.EnsureMicrophone,
		Logger:     log,
	})

	rec := capture.NewRecorder(capture.Options{
		Acquirer: acq,
		Mixer:    mixer.New(log),
		Encoders: encoder.NewRegistry(),
		Logger:   log,
	})

	return &Runtime{
		Audio:    pa,
		Acquirer: acq,
		Recorder: rec,
		Nexara:   nexara.New(nexara.Config{Logger: log}),
		Webhook:  webhook.New(webhook.Config{Logger: log}),
	}, nil
}

// NewApp wires an orchestrator over the runtime. onOutcome may be nil.
func (r *Runtime) NewApp(settings app.SettingsSource, status app.StatusUpdater, log zerolog.Logger, onOutcome func(*app.Outcome, error)) *app.App {
	return app.New(app.Config{
		Recorder:      r.Recorder,
		Transcriber:   r.Nexara,
		Dispatcher:    r.Webhook,
		Settings:      settings,
		Clipboard:     inject.NewClipboard(),
		Logger:        log,
		StatusUpdater: status,
		OnOutcome:     onOutcome,
	})
}

// newFileApp builds an orchestrator for uploads of existing files. It never
// opens the audio stack, so its recorder has no acquirer and is never started.
func newFileApp(settings app.SettingsSource, status app.StatusUpdater, log zerolog.Logger) *app.App {
	return app.New(app.Config{
		Recorder:      capture.NewRecorder(capture.Options{Logger: log}),
		Transcriber:   nexara.New(nexara.Config{Logger: log}),
		Dispatcher:    webhook.New(webhook.Config{Logger: log}),
		Settings:      settings,
		Clipboard:     inject.NewClipboard(),
		Logger:        log,
		StatusUpdater: status,
	})
}

func (r *Runtime) Close() error {
	return r.Audio.Close()
}
