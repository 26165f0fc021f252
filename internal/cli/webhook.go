package cli

import (
	"fmt"
	"strconv"

	"github.com/petems/nexara-tray/internal/config"
	"github.com/petems/nexara-tray/internal/webhook"
	"github.com/spf13/cobra"
)

func NewWebhookCmd(deps *Dependencies) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webhook",
		Short: "Manage webhook presets",
	}

	cmd.AddCommand(newWebhookListCmd(deps))
	cmd.AddCommand(newWebhookAddCmd(deps))
	cmd.AddCommand(newWebhookRemoveCmd(deps))
	cmd.AddCommand(newWebhookSelectCmd(deps))
	cmd.AddCommand(newWebhookUserCmd(deps))
	cmd.AddCommand(newWebhookTestCmd(deps))

	return cmd
}

func newWebhookListCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List webhook presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := stdout()
			s := deps.Store.Snapshot()
			for i, p := range s.Webhooks {
				url := p.URL
				if url == "" {
					url = "(no URL)"
				}
				f.DeviceListItem(strconv.Itoa(i), p.Name+"  "+url, false, i == s.ActiveWebhookIndex)
			}
			return nil
		},
	}
}

func newWebhookAddCmd(deps *Dependencies) *cobra.Command {
	var activate bool

	cmd := &cobra.Command{
		Use:   "add NAME URL",
		Short: "Add a webhook preset",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			err := deps.Store.Update(func(s *config.Settings) {
				s.Webhooks = append(s.Webhooks, config.WebhookPreset{Name: args[0], URL: args[1]})
				if activate {
					s.ActiveWebhookIndex = len(s.Webhooks) - 1
				}
			})
			if err != nil {
				return err
			}
			stdout().Success(fmt.Sprintf("Added webhook %q", args[0]))
			return nil
		},
	}

	cmd.Flags().BoolVar(&activate, "select", false, "Make the new preset active")
	return cmd
}

func newWebhookRemoveCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "remove INDEX",
		Short: "Remove a webhook preset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			i, err := presetIndex(deps.Store.Snapshot(), args[0])
			if err != nil {
				return err
			}
			err = deps.Store.Update(func(s *config.Settings) {
				s.Webhooks = append(s.Webhooks[:i], s.Webhooks[i+1:]...)
				switch {
				case s.ActiveWebhookIndex == i:
					s.ActiveWebhookIndex = 0
				case s.ActiveWebhookIndex > i:
					s.ActiveWebhookIndex--
				}
			})
			if err != nil {
				return err
			}
			stdout().Success("Removed webhook " + args[0])
			return nil
		},
	}
}

func newWebhookSelectCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "select INDEX",
		Short: "Make a webhook preset active",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			i, err := presetIndex(deps.Store.Snapshot(), args[0])
			if err != nil {
				return err
			}
			if err := deps.Store.Update(func(s *config.Settings) { s.ActiveWebhookIndex = i }); err != nil {
				return err
			}
			stdout().Success(fmt.Sprintf("Webhook %q is now active", deps.Store.Snapshot().Webhooks[i].Name))
			return nil
		},
	}
}

func newWebhookUserCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "user NAME [TELEGRAM_ID]",
		Short: "Set the sender name and Telegram ID included in every payload",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			err := deps.Store.Update(func(s *config.Settings) {
				s.UserName = args[0]
				if len(args) == 2 {
					s.TelegramID = args[1]
				}
			})
			if err != nil {
				return err
			}
			stdout().Success("Saved user details")
			return nil
		},
	}
}

func newWebhookTestCmd(deps *Dependencies) *cobra.Command {
	var index int

	cmd := &cobra.Command{
		Use:   "test",
		Short: "Send a test message to the active webhook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := stdout()
			s := deps.Store.Snapshot()
			if cmd.Flags().Changed("index") {
				s.ActiveWebhookIndex = index
			}

			target := targetOf(s)
			if target == nil {
				return webhook.ErrNotConfigured
			}
			meta := webhook.UserMeta{Name: s.UserName, TelegramID: s.TelegramID}

			f.Info(fmt.Sprintf("Sending test message to %q", target.Name))
			if err := webhook.New(webhook.Config{Logger: deps.Logger}).Test(cmd.Context(), target, meta); err != nil {
				return err
			}
			f.Delivered(target.Name)
			return nil
		},
	}

	cmd.Flags().IntVar(&index, "index", 0, "Test this preset instead of the active one")
	return cmd
}

func presetIndex(s config.Settings, arg string) (int, error) {
	i, err := strconv.Atoi(arg)
	if err != nil || i < 0 || i >= len(s.Webhooks) {
		return 0, fmt.Errorf("no webhook preset %q (have %d)", arg, len(s.Webhooks))
	}
	return i, nil
}

// targetOf mirrors how the orchestrator resolves the active preset.
func targetOf(s config.Settings) *webhook.Target {
	preset, ok := s.ActiveWebhook()
	if !ok || preset.URL == "" {
		return nil
	}
	return &webhook.Target{Name: preset.Name, URL: preset.URL, Relay: s.ProxyURL}
}
