package cli

import (
	"github.com/petems/nexara-tray/internal/app"
	"github.com/petems/nexara-tray/internal/config"
	"github.com/spf13/cobra"
)

// overlay applies per-invocation flag values on top of the stored settings
// without persisting them.
type overlay struct {
	base  app.SettingsSource
	apply func(*config.Settings)
}

func (o overlay) Snapshot() config.Settings {
	s := o.base.Snapshot()
	if o.apply != nil {
		o.apply(&s)
	}
	return s
}

// transcriptionFlags are shared by record and transcribe.
type transcriptionFlags struct {
	diarize  bool
	speakers int
	mode     string
	language string
	webhook  int
	noSend   bool
}

func (f *transcriptionFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.diarize, "diarize", false, "Label speakers in the transcript")
	cmd.Flags().IntVar(&f.speakers, "speakers", 0, "Expected number of speakers (1-10, 0 = auto)")
	cmd.Flags().StringVar(&f.mode, "diarization-mode", "", "Diarization setting: general, meeting or telephonic")
	cmd.Flags().StringVarP(&f.language, "language", "l", "", "Language code, or auto")
	cmd.Flags().IntVar(&f.webhook, "webhook", -1, "Index of the webhook preset to send to")
	cmd.Flags().BoolVar(&f.noSend, "no-send", false, "Do not send the transcript to a webhook")
}

func (f *transcriptionFlags) apply(cmd *cobra.Command, s *config.Settings) {
	if cmd.Flags().Changed("diarize") {
		s.Diarization = f.diarize
	}
	if cmd.Flags().Changed("speakers") {
		s.NumSpeakers = f.speakers
	}
	if f.mode != "" {
		s.DiarizationMode = f.mode
	}
	if f.language != "" {
		s.Language = f.language
	}
	if f.webhook >= 0 {
		s.ActiveWebhookIndex = f.webhook
	}
	if f.noSend {
		// An out-of-range index means "no webhook selected".
		s.ActiveWebhookIndex = len(s.Webhooks)
	}
}
