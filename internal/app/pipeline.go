package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/petems/nexara-tray/internal/capture"
	"github.com/petems/nexara-tray/internal/config"
	"github.com/petems/nexara-tray/internal/encoder"
	"github.com/petems/nexara-tray/internal/nexara"
	"github.com/petems/nexara-tray/internal/webhook"
)

var (
	ErrNothingRecorded = errors.New("app: nothing was recorded")
	ErrUnsupportedFile = errors.New("app: unsupported audio file")
)

// fileTypes maps upload extensions to the MIME type sent with them.
var fileTypes = map[string]string{
	".wav":  encoder.MimeWAV,
	".ogg":  encoder.MimeOgg,
	".opus": encoder.MimeOggOpus,
	".mp3":  "audio/mpeg",
	".m4a":  encoder.MimeMP4,
	".mp4":  encoder.MimeMP4,
	".webm": "audio/webm",
}

// ProcessFile sends an existing audio file through the same transcription
// and delivery steps as a recording.
func (a *App) ProcessFile(ctx context.Context, path string) (*Outcome, error) {
	ext := strings.ToLower(filepath.Ext(path))
	mimeType, ok := fileTypes[ext]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFile, filepath.Base(path))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrUnsupportedFile, filepath.Base(path))
	}

	a.mu.Lock()
	if a.phase != PhaseIdle {
		a.mu.Unlock()
		return nil, ErrBusy
	}
	a.phase = PhaseProcessing
	opts := optionsFrom(a.settings.Snapshot())
	a.mu.Unlock()

	art := &capture.Artifact{
		Bytes:    data,
		MimeType: mimeType,
		FileName: filepath.Base(path),
	}
	a.log.Info().Str("file", art.FileName).Int("bytes", art.Size()).Msg("Processing file")
	return a.process(ctx, art, opts)
}

// process runs transcription then delivery. The phase is Processing on
// entry and Idle on return.
func (a *App) process(ctx context.Context, art *capture.Artifact, opts nexara.Options) (*Outcome, error) {
	defer a.setPhase(PhaseIdle)

	if a.status != nil {
		a.status.SetProcessing()
	}

	s := a.settings.Snapshot()
	out := &Outcome{Artifact: art}

	a.log.Info().
		Str("mime", art.MimeType).
		Int("bytes", art.Size()).
		Bool("diarization", opts.Diarization).
		Msg("Transcribing")

	res, err := a.stt.Transcribe(ctx, art, opts, credentialsFrom(s))
	if err != nil {
		a.log.Error().Err(err).Msg("Transcription failed")
		a.setError(err)
		return out, err
	}
	out.Result = res
	a.log.Info().Int("chars", len(res.FormattedText)).Bool("diarized", res.IsDiarized).Msg("Transcribed")

	if s.CopyToClipboard && a.clip != nil {
		if err := a.clip.Copy(res.FormattedText); err != nil {
			a.log.Warn().Err(err).Msg("Copy to clipboard failed")
		}
	}

	a.setPhase(PhaseSending)
	if a.status != nil {
		a.status.SetSending()
	}

	out.DeliveryErr = a.hook.Send(ctx, targetFrom(s), res, webhook.UserMeta{
		Name:       s.UserName,
		TelegramID: s.TelegramID,
	})
	switch {
	case out.DeliveryErr == nil:
		a.setIdle()
	case errors.Is(out.DeliveryErr, webhook.ErrNotConfigured):
		a.log.Warn().Msg("No webhook selected, transcript was not sent")
		a.setIdle()
	default:
		a.log.Error().Err(out.DeliveryErr).Msg("Transcript could not be delivered")
		a.setError(out.DeliveryErr)
	}
	return out, nil
}

func credentialsFrom(s config.Settings) nexara.Credentials {
	return nexara.Credentials{
		APIKey:   s.APIKey,
		BaseURL:  s.BaseURL,
		ProxyURL: s.ProxyURL,
	}
}

// targetFrom returns nil when no preset is selected.
func targetFrom(s config.Settings) *webhook.Target {
	preset, ok := s.ActiveWebhook()
	if !ok {
		return nil
	}
	return &webhook.Target{
		Name:  preset.Name,
		URL:   preset.URL,
		Relay: s.ProxyURL,
	}
}
