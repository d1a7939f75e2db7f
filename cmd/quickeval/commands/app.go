package commands

import (
	"context"
	"io"
	"quickeval/internal/captcha"
	"quickeval/internal/components/chrono"
	"quickeval/internal/components/telemetry"
	"quickeval/internal/evaluation"
	"quickeval/internal/history"
	"quickeval/internal/portal"
	"quickeval/internal/runner"
)

// app wires one portal session to the submission runner.
type app struct {
	runner *runner.Runner
	ledger *history.Ledger
}

func newApp(ctx context.Context, cfg Config, out io.Writer) (app, error) {
	tel := telemetry.SlogAPI{}

	session, err := portal.NewSession(portal.Options{
		BaseUrl:           cfg.BaseUrl,
		Timeout:           cfg.timeout(),
		RequestsPerSecond: cfg.RequestsPerSecond,
	}, tel)
	if err != nil {
		return app{}, err
	}
	solver := captcha.NewSolver(captcha.Options{
		Url:     cfg.OcrUrl,
		Type:    cfg.OcrType,
		Timeout: cfg.timeout(),
	}, tel)
	engine := evaluation.NewEngine(evaluation.Options{
		Answers:    evaluation.Optimal().WithComment(cfg.Comment),
		PhaseDelay: millis(cfg.PhaseDelayMs),
	}, tel)

	opts := runner.Options{
		Session: session,
		Solver:  solver,
		Engine:  engine,
		Retry: portal.RetryPolicy{
			Attempts: cfg.LoginAttempts,
			Delay:    millis(cfg.LoginRetryDelayMs),
		},
		RecordDelay: millis(cfg.RecordDelayMs),
		Events:      printEvent(out),
	}

	var ledger *history.Ledger
	if cfg.HistoryDb != "-" {
		clock, err := chrono.NewStandardImpl()
		if err != nil {
			return app{}, err
		}
		opened, err := history.Open(ctx, cfg.HistoryDb, clock)
		if err != nil {
			return app{}, err
		}
		ledger = &opened
		opts.History = opened
	}

	return app{
		runner: runner.New(opts, tel),
		ledger: ledger,
	}, nil
}

func (a app) Close() error {
	if a.ledger == nil {
		return nil
	}
	return a.ledger.Close()
}

// loginAndList prompts for credentials, logs in and fetches the pending list.
func (a app) loginAndList(ctx context.Context, out io.Writer) ([]portal.Record, error) {
	creds, err := promptCredentials(out)
	if err != nil {
		return nil, err
	}
	err = a.runner.Login(ctx, creds)
	if err != nil {
		return nil, err
	}
	return a.runner.Pending(ctx)
}
