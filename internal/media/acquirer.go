package media

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Device describes an audio input.
type Device struct {
	ID      string
	Label   string
	Default bool
}

// Backend opens input devices.
type Backend interface {
	OpenInput(ctx context.Context, deviceID string) (Track, error)
	InputDevices() ([]Device, error)
}

// DisplayShare asks the user for a shared system-audio stream. It returns
// ErrShareDeclined when nothing was granted.
type DisplayShare interface {
	Request(ctx context.Context) (*Stream, error)
}

// PermissionFunc prompts for, or checks, microphone access.
type PermissionFunc func() error

// ErrPermissionDenied is the error a PermissionFunc returns when access was refused.
var ErrPermissionDenied = errors.New("microphone permission denied")

type AcquirerConfig struct {
	Backend Backend
	// Display is optional; without it system audio is never available.
	Display DisplayShare
	// Permission is optional.
	Permission PermissionFunc
	Logger     zerolog.Logger
}

// Acquirer turns device requests into tracks.
type Acquirer struct {
	backend    Backend
	display    DisplayShare
	permission PermissionFunc
	log        zerolog.Logger
	granted    atomic.Bool
}

func NewAcquirer(cfg AcquirerConfig) *Acquirer {
	return &Acquirer{
		backend:    cfg.Backend,
		display:    cfg.Display,
		permission: cfg.Permission,
		log:        cfg.Logger.With().Str("component", "media").Logger(),
	}
}

// AcquireMicrophone opens the microphone identified by deviceID, or the
// default input when deviceID is empty.
func (a *Acquirer) AcquireMicrophone(ctx context.Context, deviceID string) (Track, error) {
	if a.permission != nil {
		if err := a.permission(); err != nil {
			return nil, &DeviceError{Device: deviceID, Reason: ReasonPermissionDenied, Err: err}
		}
	}

	track, err := a.backend.OpenInput(ctx, deviceID)
	if err != nil {
		return nil, classify(deviceID, err)
	}

	a.granted.Store(true)
	a.log.Debug().Str("device", deviceID).Str("track", track.ID()).Msg("Microphone acquired")
	return track, nil
}

// AcquireSystemAudio requests a shared stream and returns its first audio
// track. It returns nil, nil when the user declined or the granted stream
// carries no audio; the caller then records the microphone alone. Tracks the
// session does not use are stopped before returning.
func (a *Acquirer) AcquireSystemAudio(ctx context.Context) (Track, error) {
	if a.display == nil {
		a.log.Warn().Err(ErrSystemAudioUnavailable).Msg("No system audio source configured, recording microphone only")
		return nil, nil
	}

	stream, err := a.display.Request(ctx)
	if errors.Is(err, ErrShareDeclined) {
		a.log.Warn().Err(ErrSystemAudioUnavailable).Msg("System audio share declined, recording microphone only")
		return nil, nil
	}
	if err != nil {
		stream.Stop()
		return nil, err
	}

	audio := stream.AudioTracks()
	if len(audio) == 0 {
		stream.Stop()
		a.log.Warn().Err(ErrSystemAudioUnavailable).Msg("Shared stream has no audio track, recording microphone only")
		return nil, nil
	}

	keep := audio[0]
	for _, t := range stream.Tracks {
		if t != keep {
			t.Stop()
		}
	}

	a.log.Debug().Str("track", keep.ID()).Str("label", keep.Label()).Msg("System audio acquired")
	return keep, nil
}

// EnumerateInputDevices lists audio inputs. Labels stay blank until a
// microphone has been granted once.
func (a *Acquirer) EnumerateInputDevices() ([]Device, error) {
	devices, err := a.backend.InputDevices()
	if err != nil {
		return nil, err
	}
	if !a.granted.Load() {
		for i := range devices {
			devices[i].Label = ""
		}
	}
	return devices, nil
}

// Initialize opens and releases the default microphone so device labels
// become available, then lists the inputs.
func (a *Acquirer) Initialize(ctx context.Context) ([]Device, error) {
	track, err := a.AcquireMicrophone(ctx, "")
	if err != nil {
		return nil, err
	}
	track.Stop()
	return a.EnumerateInputDevices()
}

func classify(deviceID string, err error) error {
	var derr *DeviceError
	if errors.As(err, &derr) {
		return err
	}

	reason := ReasonUnavailable
	switch {
	case errors.Is(err, ErrDeviceNotFound):
		reason = ReasonNotFound
	case errors.Is(err, ErrPermissionDenied):
		reason = ReasonPermissionDenied
	}
	return &DeviceError{Device: deviceID, Reason: reason, Err: err}
}
