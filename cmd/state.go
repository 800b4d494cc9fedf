package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/klmry/stockwatch/pkg/config"
	"github.com/klmry/stockwatch/pkg/state"
)

// stateCmd implements: stockwatch state
var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Print the persisted watch state",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		st, found := store.Load(cmd.Context())
		if !found {
			fmt.Println("No prior state recorded.")
			return nil
		}

		fmt.Printf("last_in_stock:          %v\n", st.LastInStock)
		fmt.Printf("last_fingerprint:       %s\n", emptyDash(st.LastFingerprint))
		fmt.Printf("last_daily_report_date: %s\n", emptyDash(st.LastDailyReportDate))
		return nil
	},
}

// stateResetCmd implements: stockwatch state reset
var stateResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear the persisted watch state",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.Reset(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("State cleared. The next check behaves like a first run.")
		return nil
	},
}

// openStore resolves the state DB path from config without requiring the
// full (email etc.) configuration, so state inspection works standalone.
func openStore() (*state.Store, error) {
	store, err := state.Open(config.StatePathFromViper())
	if err != nil {
		return nil, fmt.Errorf("opening state database: %w", err)
	}
	return store, nil
}

func emptyDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func init() {
	rootCmd.AddCommand(stateCmd)
	stateCmd.AddCommand(stateResetCmd)
}
