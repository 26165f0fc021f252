package cli

import (
	"os"

	"github.com/petems/nexara-tray/internal/config"
	"github.com/petems/nexara-tray/internal/output"
	"github.com/petems/nexara-tray/internal/version"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type Dependencies struct {
	Store  *config.Store
	Logger zerolog.Logger
	// NewRuntime opens the audio stack; commands that need no audio never
	// call it.
	NewRuntime func(config.Settings, zerolog.Logger) (*Runtime, error)
}

func (d *Dependencies) runtime() (*Runtime, error) {
	if d.NewRuntime != nil {
		return d.NewRuntime(d.Store.Snapshot(), d.Logger)
	}
	return newRuntime(d.Store.Snapshot(), d.Logger)
}

func NewRootCmd(deps *Dependencies) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "nexara-tray",
		Short: "Record audio, transcribe it with Nexara and send it to a webhook",
		Long: "Records the microphone and, optionally, system audio, transcribes the recording with the Nexara API\n" +
			"(with optional speaker diarization) and posts the transcript to the selected webhook.\n" +
			"Without a subcommand the tray application starts.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTray(cmd.Context(), deps)
		},
	}

	rootCmd.Version = version.Version
	rootCmd.SetVersionTemplate(version.Full() + "\n")

	rootCmd.AddCommand(NewTrayCmd(deps))
	rootCmd.AddCommand(NewRecordCmd(deps))
	rootCmd.AddCommand(NewTranscribeCmd(deps))
	rootCmd.AddCommand(NewDevicesCmd(deps))
	rootCmd.AddCommand(NewWebhookCmd(deps))
	rootCmd.AddCommand(NewCheckCmd(deps))
	rootCmd.AddCommand(NewProxyCmd(deps))

	return rootCmd
}

func stdout() *output.Formatter {
	return output.NewFormatter(os.Stdout)
}
