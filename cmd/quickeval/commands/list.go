package commands

import (
	"errors"
	"fmt"
	"quickeval/internal/portal"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(listCmd)
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Logs in and prints the pending evaluations without submitting anything.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		app, err := newApp(ctx, cfg, out)
		if err != nil {
			return err
		}
		defer app.Close()

		records, err := app.loginAndList(ctx, out)
		if errors.Is(err, portal.ErrNothingPending) {
			fmt.Fprintln(out, "Nothing left to evaluate.")
			return nil
		}
		if err != nil {
			return err
		}
		renderPending(out, records)
		return nil
	},
}
