package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/klmry/stockwatch/internal/utils"
	"github.com/klmry/stockwatch/pkg/config"
	"github.com/klmry/stockwatch/pkg/fetch"
	"github.com/klmry/stockwatch/pkg/notify"
	"github.com/klmry/stockwatch/pkg/state"
	"github.com/klmry/stockwatch/pkg/watch"
)

// checkCmd implements: stockwatch check
//
// One full watch cycle: fetch the page, classify it, send whatever
// notifications are due, persist the new state. Meant to be invoked by an
// external scheduler; overlapping invocations are not supported.
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Fetch the watched page once and send any due notifications",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) > 0 {
			return fmt.Errorf("unknown command: '%s'. See 'stockwatch check --help'", args[0])
		}

		cfg, err := config.FromViper()
		if err != nil {
			return err
		}

		loc, err := cfg.Location()
		if err != nil {
			return err
		}

		proxy, _ := cmd.Flags().GetString("proxy")
		timeout, _ := cmd.Flags().GetDuration("timeout")
		fetcher, err := fetch.NewClient(proxy, timeout)
		if err != nil {
			return err
		}

		store, err := state.Open(cfg.StateDBPath)
		if err != nil {
			return fmt.Errorf("opening state database: %w", err)
		}
		defer store.Close()

		result, err := watch.Run(cmd.Context(), watch.Config{
			PageURL:            cfg.PageURL,
			SiteLabel:          cfg.SiteLabel(),
			PrimaryRecipient:   cfg.PrimaryRecipient,
			SecondaryRecipient: cfg.SecondaryRecipient,
			Location:           loc,
			Fetcher:            fetcher,
			Notifier:           notify.NewEmailClient(cfg.EmailAPIKey, cfg.SenderAddress),
			Store:              store,
			Log:                utils.Log,
		})
		if err != nil {
			return err
		}

		status := "OUT OF STOCK"
		if result.Verdict {
			status = "IN STOCK"
		}
		utils.Log.Infof("Check complete: %s (snapshot %s, restock_alert=%v, daily_report=%v)",
			status, result.Fingerprint, result.RestockFired, result.DailyFired)

		// Delivery failures were already logged inside the run; they don't
		// fail the invocation because state has advanced regardless.
		if len(result.Errors) > 0 {
			utils.Log.Warnf("%d notification(s) failed to deliver this run", len(result.Errors))
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().Duration("timeout", 30*time.Second, "Overall timeout for the page fetch")
}
