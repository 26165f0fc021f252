package cli

import (
	"github.com/petems/nexara-tray/internal/config"
	"github.com/spf13/cobra"
)

func NewTranscribeCmd(deps *Dependencies) *cobra.Command {
	var flags transcriptionFlags

	cmd := &cobra.Command{
		Use:   "transcribe FILE",
		Short: "Transcribe an existing audio file and send it",
		Long:  "Uploads FILE (wav, ogg, opus, mp3, m4a, mp4 or webm) to Nexara and posts the transcript to the active webhook.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings := overlay{base: deps.Store, apply: func(s *config.Settings) {
				flags.apply(cmd, s)
			}}

			f := stdout()
			a := newFileApp(settings, &consoleStatus{f: f}, deps.Logger)
			out, err := a.ProcessFile(cmd.Context(), args[0])
			return printOutcome(f, settings.Snapshot(), out, err)
		},
	}

	flags.register(cmd)
	return cmd
}
