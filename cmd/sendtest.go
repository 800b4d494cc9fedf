package cmd

import (
	"github.com/spf13/cobra"

	"github.com/klmry/stockwatch/internal/utils"
	"github.com/klmry/stockwatch/pkg/config"
	"github.com/klmry/stockwatch/pkg/notify"
)

// sendtestCmd implements: stockwatch sendtest
//
// Sends a throwaway email through the configured delivery API so credentials
// and recipient addresses can be verified without waiting for a trigger.
var sendtestCmd = &cobra.Command{
	Use:   "sendtest",
	Short: "Send a test email to the configured recipients",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.FromViper()
		if err != nil {
			return err
		}

		notifier := notify.NewEmailClient(cfg.EmailAPIKey, cfg.SenderAddress)
		msg := notify.Message{
			Subject:    "stockwatch test message",
			Body:       "If you can read this, stockwatch can reach you.\n\nWatching: " + cfg.PageURL + "\n",
			Recipients: cfg.Recipients(),
		}
		if err := notifier.Send(cmd.Context(), msg); err != nil {
			return err
		}

		utils.Log.Infof("Test message sent to %d recipient(s)", len(msg.Recipients))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sendtestCmd)
}
