package nexara

import (
	"context"
	"errors"
	"fmt"

	"github.com/petems/nexara-tray/internal/capture"
	"github.com/petems/nexara-tray/internal/encoder"
	"github.com/petems/nexara-tray/internal/media"
)

// Check validates the settings and uploads half a second of silence.
// An empty transcript counts as success: the request was authenticated and
// processed.
func (c *Client) Check(ctx context.Context, creds Credentials) error {
	if err := ValidateSettings(creds); err != nil {
		return err
	}

	enc, err := encoder.NewRegistry().New(encoder.MimeWAV)
	if err != nil {
		return err
	}
	silence := make([]byte, media.SampleRate) // 0.5 s of 16-bit samples
	data, err := enc.Assemble([][]byte{silence})
	if err != nil {
		return fmt.Errorf("nexara: build test audio: %w", err)
	}

	sample := &capture.Artifact{
		Bytes:    data,
		MimeType: encoder.MimeWAV,
		FileName: capture.FileNameFor(encoder.MimeWAV),
	}
	_, err = c.Transcribe(ctx, sample, Options{}, creds)
	if errors.Is(err, ErrEmptyResult) {
		return nil
	}
	return err
}
