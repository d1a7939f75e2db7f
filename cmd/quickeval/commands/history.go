package commands

import (
	"fmt"
	"quickeval/internal/components/chrono"
	"quickeval/internal/history"

	"github.com/spf13/cobra"
)

var historyLimit int

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of entries to print, 0 prints every entry.")
	rootCmd.AddCommand(historyCmd)
}

var historyCmd = &cobra.Command{
	Use:   "history [-n <limit>]",
	Short: "Prints the local ledger of past submissions.",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if cfg.HistoryDb == "-" {
			return fmt.Errorf("history is disabled (history_db is \"-\")")
		}

		clock, err := chrono.NewStandardImpl()
		if err != nil {
			return err
		}
		ledger, err := history.Open(cmd.Context(), cfg.HistoryDb, clock)
		if err != nil {
			return err
		}
		defer ledger.Close()

		entries, err := ledger.List(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Fprintln(out, "No submissions recorded yet.")
			return nil
		}
		renderHistory(out, entries)
		return nil
	},
}
