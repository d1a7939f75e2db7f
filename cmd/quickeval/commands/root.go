package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"quickeval/internal/components/telemetry"
	"quickeval/internal/portal"
	"quickeval/internal/runner"
	"time"

	"github.com/spf13/cobra"
)

var (
	configPath string
	debug      bool
	courses    []string
	selectAll  bool
	flagConfig Config

	cfg     Config
	tracing shutdowner = telemetry.Tracing{}
)

type shutdowner interface {
	Shutdown(ctx context.Context) error
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a json5 config file (default: nearest quickeval.json5).")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable verbose logging.")
	rootCmd.PersistentFlags().StringVar(&flagConfig.HistoryDb, "history-db", "", `Path of the submission history database, "-" disables it.`)
	rootCmd.Flags().StringVar(&flagConfig.Comment, "comment", "", "Comment to leave on every evaluation.")
	rootCmd.Flags().StringArrayVar(&courses, "course", nil, "Submit the course with this name, can be repeated.")
	rootCmd.Flags().BoolVar(&selectAll, "all", false, "Submit every pending evaluation without asking.")
	rootCmd.MarkFlagsMutuallyExclusive("course", "all")
}

var rootCmd = &cobra.Command{
	Use:   "quickeval [--course <name>]... [--all]",
	Short: "quickeval submits the pending course evaluations of the academic-affairs portal.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		telemetry.InitSlog(debug)

		var err error
		cfg, err = loadConfig(configPath, flagConfig)
		if err != nil {
			return err
		}
		slog.Debug("loaded config", "base_url", cfg.BaseUrl, "ocr_url", cfg.OcrUrl, "history_db", cfg.HistoryDb)

		tracing, err = telemetry.SetupTracing(cmd.Context(), "quickeval", cfg.Telemetry)
		if err != nil {
			return fmt.Errorf("setup tracing: %w", err)
		}
		return nil
	},
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		printBanner(out)

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

		var sel runner.Selection
		switch {
		case selectAll:
			sel = runner.SelectAll(len(records))
		case len(courses) > 0:
			sel = runner.MatchNames(records, courses)
		default:
			input, err := promptLine(out, `Courses to evaluate ("1 3", "a" for all, "0" to quit): `)
			if err != nil {
				return err
			}
			sel = runner.ParseSelection(input, len(records))
		}

		summary, err := app.runner.Submit(ctx, records, sel)
		fmt.Fprintln(out, summary.String())
		return err
	},
}

// ExecuteContext runs the CLI, pending traces are flushed whether or not the
// command failed.
func ExecuteContext(ctx context.Context) error {
	return execute(ctx, rootCmd)
}

func execute(ctx context.Context, cmd *cobra.Command) error {
	defer flushTracing()
	return cmd.ExecuteContext(ctx)
}

func flushTracing() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := tracing.Shutdown(ctx)
	if err != nil {
		slog.Warn("failed to flush traces", "err", err)
	}
}
