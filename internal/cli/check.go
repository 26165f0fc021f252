package cli

import (
	"context"
	"time"

	"github.com/petems/nexara-tray/internal/config"
	"github.com/petems/nexara-tray/internal/logging"
	"github.com/petems/nexara-tray/internal/nexara"
	"github.com/petems/nexara-tray/internal/webhook"
	"github.com/spf13/cobra"
)

func NewCheckCmd(deps *Dependencies) *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:     "check",
		Aliases: []string{"doctor"},
		Short:   "Check settings and the connection to Nexara",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := stdout()
			s := deps.Store.Snapshot()
			ok := true

			f.SetupCheck("Settings file", true, deps.Store.Path())
			f.SetupCheck("Log file", true, logging.Path())

			if err := config.Validate(s); err != nil {
				f.SetupCheck("Settings", false, err.Error())
				ok = false
			} else {
				f.SetupCheck("Settings", true, "valid")
			}

			creds := nexara.Credentials{APIKey: s.APIKey, BaseURL: s.BaseURL, ProxyURL: s.ProxyURL}
			if err := nexara.ValidateSettings(creds); err != nil {
				f.SetupCheck("Nexara API key", false, err.Error())
				ok = false
			} else {
				f.SetupCheck("Nexara API key", true, "configured")
			}
			if s.ProxyURL != "" {
				f.SetupCheck("Proxy", true, s.ProxyURL)
			}

			target := targetOf(s)
			meta := webhook.UserMeta{Name: s.UserName, TelegramID: s.TelegramID}
			warnings, err := webhook.Validate(target, meta)
			if err != nil {
				f.SetupCheck("Webhook", false, err.Error())
				ok = false
			} else {
				f.SetupCheck("Webhook", true, target.Name)
			}
			for _, w := range warnings {
				f.Warning(w)
			}

			if !offline && s.APIKey != "" {
				ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
				defer cancel()
				if err := nexara.New(nexara.Config{Logger: deps.Logger}).Check(ctx, creds); err != nil {
					f.SetupCheck("Nexara connection", false, err.Error())
					ok = false
				} else {
					f.SetupCheck("Nexara connection", true, "transcription request succeeded")
				}
			}

			if ok {
				f.Success("\nAll checks passed. Ready to record!")
			} else {
				f.Warning("\nSome checks failed.")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&offline, "offline", false, "Skip the test request to Nexara")
	return cmd
}
