package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/petems/nexara-tray/internal/app"
	"github.com/petems/nexara-tray/internal/config"
	"github.com/petems/nexara-tray/internal/output"
	"github.com/petems/nexara-tray/internal/webhook"
	"github.com/spf13/cobra"
)

func NewRecordCmd(deps *Dependencies) *cobra.Command {
	var flags transcriptionFlags
	var systemAudio bool
	var device string
	var duration time.Duration

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record from the terminal, then transcribe and send",
		Long: "Records until Ctrl+C (or --duration), transcribes the recording with Nexara and\n" +
			"posts the transcript to the active webhook. Flags override the saved settings for this run only.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings := overlay{base: deps.Store, apply: func(s *config.Settings) {
				flags.apply(cmd, s)
				if cmd.Flags().Changed("system-audio") {
					s.Audio.RecordSystemAudio = systemAudio
				}
				if device != "" {
					s.Audio.DeviceID = device
				}
			}}
			return runRecord(cmd.Context(), deps, settings, duration)
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&systemAudio, "system-audio", false, "Mix system audio into the recording")
	cmd.Flags().StringVarP(&device, "device", "d", "", "Input device name (see 'devices')")
	cmd.Flags().DurationVar(&duration, "duration", 0, "Stop automatically after this long")

	return cmd
}

type outcomeMsg struct {
	out *app.Outcome
	err error
}

func runRecord(parent context.Context, deps *Dependencies, settings overlay, duration time.Duration) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := deps.runtime()
	if err != nil {
		return err
	}
	defer rt.Close()

	f := stdout()
	status := &consoleStatus{f: f}

	// Outcomes of recordings stopped by a revoked source arrive here.
	ended := make(chan outcomeMsg, 1)
	a := rt.NewApp(settings, status, deps.Logger, func(out *app.Outcome, err error) {
		ended <- outcomeMsg{out: out, err: err}
	})

	if err := a.Start(ctx); err != nil {
		return err
	}
	f.RecordingStarted(settings.Snapshot().Audio.RecordSystemAudio)

	var timeout <-chan time.Time
	if duration > 0 {
		timer := time.NewTimer(duration)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case msg := <-ended:
		f.Warning("An audio source ended, recording stopped")
		return printOutcome(f, settings.Snapshot(), msg.out, msg.err)
	case <-ctx.Done():
	case <-timeout:
	}
	// A second Ctrl+C aborts the upload.
	stop()

	f.RecordingStopped(status.elapsed())
	out, err := a.Stop(context.Background())
	if errors.Is(err, app.ErrBusy) || (out == nil && err == nil) {
		// The source ended at the same moment; its pipeline reports instead.
		msg := <-ended
		out, err = msg.out, msg.err
	}
	return printOutcome(f, settings.Snapshot(), out, err)
}

// printOutcome returns the transcription error, if any. Delivery problems
// are shown as warnings since the transcript itself was produced.
func printOutcome(f *output.Formatter, s config.Settings, out *app.Outcome, err error) error {
	if err != nil {
		return err
	}
	if out == nil || out.Result == nil {
		return nil
	}

	f.Transcript(out.Result.FormattedText, out.Result.IsDiarized)
	for _, w := range out.Result.Warnings {
		f.Warning(w)
	}

	switch {
	case out.Delivered():
		preset, _ := s.ActiveWebhook()
		f.Delivered(preset.Name)
	case errors.Is(out.DeliveryErr, webhook.ErrNotConfigured):
		f.Warning("No webhook selected, transcript was not sent")
	default:
		f.Warning(fmt.Sprintf("Transcript could not be delivered: %v", out.DeliveryErr))
	}
	return nil
}

// consoleStatus renders orchestrator status changes in the terminal.
type consoleStatus struct {
	f    *output.Formatter
	secs atomic.Int64
}

func (c *consoleStatus) SetIdle()      {}
func (c *consoleStatus) SetRecording() {}
func (c *consoleStatus) SetPaused()    { c.f.Paused() }

func (c *consoleStatus) SetProcessing() { c.f.Transcribing() }
func (c *consoleStatus) SetSending()    { c.f.Sending() }

// SetError is a no-op: errors are returned to cobra and printed once there.
func (c *consoleStatus) SetError(error) {}

func (c *consoleStatus) SetElapsed(seconds int) {
	c.secs.Store(int64(seconds))
	c.f.Elapsed(seconds)
}

func (c *consoleStatus) elapsed() int {
	return int(c.secs.Load())
}
