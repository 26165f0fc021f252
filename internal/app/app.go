package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/petems/nexara-tray/internal/capture"
	"github.com/petems/nexara-tray/internal/config"
	"github.com/petems/nexara-tray/internal/nexara"
	"github.com/petems/nexara-tray/internal/webhook"
	"github.com/rs/zerolog"
)

type Phase int

const (
	PhaseIdle Phase = iota
	PhaseRecording
	PhasePaused
	PhaseProcessing
	PhaseSending
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseRecording:
		return "recording"
	case PhasePaused:
		return "paused"
	case PhaseProcessing:
		return "processing"
	case PhaseSending:
		return "sending"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// ErrBusy is returned for record controls while a finished recording is
// still being transcribed or delivered.
var ErrBusy = errors.New("app: previous recording is still being processed")

// StatusUpdater is an interface for updating status (e.g., tray icon)
type StatusUpdater interface {
	SetIdle()
	SetRecording()
	SetPaused()
	SetProcessing()
	SetSending()
	SetError(err error)
	SetElapsed(seconds int)
}

type Recorder interface {
	Start(ctx context.Context, spec capture.SourceSpec) error
	Pause() (*capture.Artifact, error)
	Resume() error
	Stop(ctx context.Context) (*capture.Artifact, error)
	SetObserver(o capture.Observer)
	SetOnTrackEnded(fn func())
	SetOnError(fn func(error))
}

type Transcriber interface {
	Transcribe(ctx context.Context, art *capture.Artifact, opts nexara.Options, creds nexara.Credentials) (*nexara.Result, error)
}

type Dispatcher interface {
	Send(ctx context.Context, target *webhook.Target, result *nexara.Result, meta webhook.UserMeta) error
}

type SettingsSource interface {
	Snapshot() config.Settings
}

// Clipboard receives the transcript when copying is enabled.
type Clipboard interface {
	Copy(text string) error
}

type Config struct {
	Recorder    Recorder
	Transcriber Transcriber
	Dispatcher  Dispatcher
	Settings    SettingsSource
	Clipboard   Clipboard // Optional
	Logger      zerolog.Logger
	// StatusUpdater and OnOutcome are optional.
	StatusUpdater StatusUpdater
	OnOutcome     func(*Outcome, error)
}

// Outcome is what a finished pipeline produced. Result is kept even when
// delivery fails.
type Outcome struct {
	Artifact    *capture.Artifact
	Result      *nexara.Result
	DeliveryErr error
}

// Delivered reports whether the webhook accepted the transcript.
func (o *Outcome) Delivered() bool {
	return o != nil && o.Result != nil && o.DeliveryErr == nil
}

// Partial reports a transcript that could not be delivered. A missing
// webhook is not a partial failure.
func (o *Outcome) Partial() bool {
	return o != nil && o.DeliveryErr != nil && !errors.Is(o.DeliveryErr, webhook.ErrNotConfigured)
}

type App struct {
	rec      Recorder
	stt      Transcriber
	hook     Dispatcher
	settings SettingsSource
	clip     Clipboard
	log      zerolog.Logger
	status   StatusUpdater
	notify   func(*Outcome, error)

	mu    sync.Mutex
	phase Phase
	// opts is captured when the recording starts.
	opts nexara.Options
}

func New(cfg Config) *App {
	a := &App{
		rec:      cfg.Recorder,
		stt:      cfg.Transcriber,
		hook:     cfg.Dispatcher,
		settings: cfg.Settings,
		clip:     cfg.Clipboard,
		log:      cfg.Logger,
		status:   cfg.StatusUpdater,
		notify:   cfg.OnOutcome,
	}
	a.rec.SetObserver(a)
	a.rec.SetOnTrackEnded(a.onSourceEnded)
	a.rec.SetOnError(a.onRecorderError)
	return a
}

func (a *App) Phase() Phase {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.phase
}

// IsRecording is true while a session is open, paused or not.
func (a *App) IsRecording() bool {
	p := a.Phase()
	return p == PhaseRecording || p == PhasePaused
}

// Start opens a recording session with the current settings.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch a.phase {
	case PhaseProcessing, PhaseSending:
		return ErrBusy
	case PhaseRecording, PhasePaused:
		return capture.ErrSessionActive
	}

	s := a.settings.Snapshot()
	spec := capture.SourceSpec{
		DeviceID:         s.Audio.DeviceID,
		WantsSystemAudio: s.Audio.RecordSystemAudio,
	}

	a.log.Info().
		Str("device", spec.DeviceID).
		Bool("system_audio", spec.WantsSystemAudio).
		Msg("Starting recording")

	if err := a.rec.Start(ctx, spec); err != nil {
		a.log.Error().Err(err).Msg("Failed to start recording")
		a.setError(err)
		return err
	}

	a.opts = optionsFrom(s)
	a.phase = PhaseRecording
	return nil
}

// Pause suspends the recording and returns a preview of what was captured
// so far, or nil when nothing has been encoded yet.
func (a *App) Pause() (*capture.Artifact, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.busyLocked() {
		return nil, ErrBusy
	}
	preview, err := a.rec.Pause()
	if err != nil {
		return nil, err
	}
	a.phase = PhasePaused
	a.log.Info().Int("preview_bytes", preview.Size()).Msg("Recording paused")
	return preview, nil
}

func (a *App) Resume() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.busyLocked() {
		return ErrBusy
	}
	if err := a.rec.Resume(); err != nil {
		return err
	}
	a.phase = PhaseRecording
	a.log.Info().Msg("Recording resumed")
	return nil
}

// Stop finishes the recording, transcribes it and delivers the transcript.
// It returns nil, nil when nothing is being recorded. A transcription
// failure is returned as the error and nothing is delivered; a delivery
// failure is reported in Outcome.DeliveryErr.
func (a *App) Stop(ctx context.Context) (*Outcome, error) {
	a.mu.Lock()
	switch a.phase {
	case PhaseProcessing, PhaseSending:
		a.mu.Unlock()
		return nil, ErrBusy
	case PhaseIdle:
		a.mu.Unlock()
		return nil, nil
	}

	a.log.Info().Msg("Stopping recording")
	art, err := a.rec.Stop(ctx)
	if err != nil {
		a.phase = PhaseIdle
		a.setError(err)
		a.mu.Unlock()
		return nil, err
	}
	if art == nil || art.Size() == 0 {
		a.phase = PhaseIdle
		a.mu.Unlock()
		a.log.Warn().Msg("Nothing was recorded")
		a.setIdle()
		return nil, ErrNothingRecorded
	}
	opts := a.opts
	a.phase = PhaseProcessing
	a.mu.Unlock()

	return a.process(ctx, art, opts)
}

// Toggle starts a recording when idle and otherwise finishes the current
// one in the background.
func (a *App) Toggle() {
	switch a.Phase() {
	case PhaseIdle:
		if err := a.Start(context.Background()); err != nil {
			a.report(nil, err)
		}
	case PhaseRecording, PhasePaused:
		go a.stopAndReport()
	default:
		a.log.Warn().Msg("Still processing the previous recording")
	}
}

func (a *App) OnHotkey(pressed bool) {
	mode := a.settings.Snapshot().Mode

	switch mode {
	case config.ModePushToTalk:
		if pressed {
			if a.Phase() == PhaseIdle {
				a.Toggle()
			}
		} else if a.IsRecording() {
			a.Toggle()
		}
	default:
		if pressed {
			a.Toggle()
		}
	}
}

func (a *App) Shutdown(ctx context.Context) error {
	if !a.IsRecording() {
		return nil
	}
	_, err := a.Stop(ctx)
	return err
}

// OnStateChange and OnTick make the App the recorder's observer. They run
// while a.mu may be held by Start or Stop, so they only touch the status.
func (a *App) OnStateChange(s capture.State) {
	if a.status == nil {
		return
	}
	switch s {
	case capture.Recording:
		a.status.SetRecording()
	case capture.Paused:
		a.status.SetPaused()
	}
}

func (a *App) OnTick(elapsed int) {
	if a.status != nil {
		a.status.SetElapsed(elapsed)
	}
}

// onSourceEnded runs when a source was revoked from outside, e.g. the
// loopback device disappeared.
func (a *App) onSourceEnded() {
	a.log.Warn().Msg("A recording source ended, stopping")
	a.stopAndReport()
}

// onRecorderError runs when the recorder gave up on a session by itself.
// The recorder is already idle and has released its sources.
func (a *App) onRecorderError(err error) {
	a.mu.Lock()
	if a.phase == PhaseRecording || a.phase == PhasePaused {
		a.phase = PhaseIdle
	}
	a.mu.Unlock()

	a.log.Error().Err(err).Msg("Recording failed")
	a.setError(err)
	a.report(nil, err)
}

func (a *App) stopAndReport() {
	out, err := a.Stop(context.Background())
	if out == nil && err == nil {
		return
	}
	a.report(out, err)
}

func (a *App) report(out *Outcome, err error) {
	if a.notify != nil {
		a.notify(out, err)
	}
}

func (a *App) busyLocked() bool {
	return a.phase == PhaseProcessing || a.phase == PhaseSending
}

func (a *App) setPhase(p Phase) {
	a.mu.Lock()
	a.phase = p
	a.mu.Unlock()
}

func (a *App) setIdle() {
	if a.status != nil {
		a.status.SetIdle()
	}
}

func (a *App) setError(err error) {
	if a.status != nil {
		a.status.SetError(err)
	}
}

func optionsFrom(s config.Settings) nexara.Options {
	return nexara.Options{
		Diarization:     s.Diarization,
		DiarizationMode: s.DiarizationMode,
		NumSpeakers:     s.NumSpeakers,
		Language:        s.Language,
	}
}
