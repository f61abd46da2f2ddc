package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/gazette-watcher/internal/watcher"
)

func newNotifyCmd() *cobra.Command {
	var botToken, chatID string

	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Relay unnotified posts to a Telegram chat",
		Long: `Sends up to one batch of unnotified posts, oldest first, and stops at
the first delivery failure. Credentials default to the TELEGRAM_BOT_TOKEN and
TELEGRAM_CHAT_ID environment variables.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if botToken == "" {
				botToken = os.Getenv("TELEGRAM_BOT_TOKEN")
			}
			if chatID == "" {
				chatID = os.Getenv("TELEGRAM_CHAT_ID")
			}
			if botToken == "" || chatID == "" {
				return errors.New("bot token and chat id are required")
			}
			app, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			sent, err := app.Watcher().Notify(cmd.Context(), watcher.Credentials{BotToken: botToken, ChatID: chatID})
			if err != nil {
				return fmt.Errorf("notify: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sent %d\n", sent)
			return nil
		},
	}
	cmd.Flags().StringVar(&botToken, "bot-token", "", "Telegram bot token")
	cmd.Flags().StringVar(&chatID, "chat-id", "", "Telegram chat id")
	return cmd
}
