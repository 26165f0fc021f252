package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/petems/nexara-tray/internal/config"
	"github.com/petems/nexara-tray/internal/logging"
	"github.com/petems/nexara-tray/internal/proxy"
	"github.com/spf13/cobra"
)

func NewProxyCmd(deps *Dependencies) *cobra.Command {
	var envFile string
	var port int
	var staticDir string

	cmd := &cobra.Command{
		Use:   "proxy",
		Short: "Run the transcription and webhook relay server",
		Long: "Serves /api/transcribe and /api/webhook so browsers and restricted networks can reach Nexara\n" +
			"and webhooks through one origin. Configured with NEXARA_PROXY_* variables or a .env file.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadProxy(envFile)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}
			if staticDir != "" {
				cfg.StaticDir = staticDir
			}
			if err := config.ValidateStruct(*cfg); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return proxy.New(*cfg, logging.NewWithLevel(cfg.LogLevel)).Run(ctx)
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", "", "Load environment variables from this file")
	cmd.Flags().IntVarP(&port, "port", "p", config.DefaultProxyPort, "Listen port")
	cmd.Flags().StringVar(&staticDir, "static", "", "Serve files from this directory")

	return cmd
}
