// Package runner is the non-interactive core behind the command line: it logs in,
// lists pending evaluations and submits a selection of them one after another,
// reporting progress as a stream of events.
package runner

import (
	"context"
	"errors"
	"fmt"
	"quickeval/internal/components/assert"
	"quickeval/internal/components/telemetry"
	"quickeval/internal/evaluation"
	"quickeval/internal/history"
	"quickeval/internal/portal"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	report_runner_history = "runner.history"
	report_runner_submit  = "runner.submit"
)

var tracer = otel.Tracer("quickeval/runner")

type EventKind int

const (
	EventLoginFailed EventKind = iota
	EventLoggedIn
	EventInvalidSelection
	EventStarted
	EventSucceeded
	EventRejected
	EventFailed
	EventAborted
)

func (k EventKind) String() string {
	switch k {
	case EventLoginFailed:
		return "login failed"
	case EventLoggedIn:
		return "logged in"
	case EventInvalidSelection:
		return "invalid selection"
	case EventStarted:
		return "started"
	case EventSucceeded:
		return "succeeded"
	case EventRejected:
		return "rejected"
	case EventFailed:
		return "failed"
	case EventAborted:
		return "aborted"
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// Event is one status update. Record and Position are only set for events about
// a record.
type Event struct {
	Kind   EventKind
	Record portal.Record
	// Position is the record's 1-based position in the pending list.
	Position int
	// Attempt is the login attempt an EventLoginFailed refers to.
	Attempt int
	// Detail is the rejection reason or the invalid selection entry.
	Detail string
	Err    error
}

type Submitter interface {
	Submit(ctx context.Context, s *portal.Session, record portal.Record) (evaluation.Outcome, error)
}

type Recorder interface {
	Record(ctx context.Context, entry history.Entry) error
}

type Options struct {
	Session *portal.Session
	Solver  portal.CaptchaSolver
	Engine  Submitter
	Retry   portal.RetryPolicy
	// RecordDelay is waited between two submissions.
	RecordDelay time.Duration
	// History, if set, records the outcome of every submission.
	History Recorder
	// Events receives every status update, it is called synchronously.
	Events func(Event)
}

type Runner struct {
	session     *portal.Session
	solver      portal.CaptchaSolver
	engine      Submitter
	retry       portal.RetryPolicy
	recordDelay time.Duration
	history     Recorder
	events      func(Event)
	tel         telemetry.API
}

func New(opts Options, tel telemetry.API) *Runner {
	assert.NotNil(opts.Session)
	assert.NotNil(opts.Solver)
	assert.NotNil(opts.Engine)

	if opts.Events == nil {
		opts.Events = func(Event) {}
	}
	return &Runner{
		session:     opts.Session,
		solver:      opts.Solver,
		engine:      opts.Engine,
		retry:       opts.Retry,
		recordDelay: opts.RecordDelay,
		history:     opts.History,
		events:      opts.Events,
		tel:         telemetry.NewScopedAPI("runner", tel),
	}
}

// Login authenticates the session, every failed attempt is reported as an
// EventLoginFailed.
func (r *Runner) Login(ctx context.Context, creds portal.Credentials) error {
	policy := r.retry
	onFailure := policy.OnFailure
	policy.OnFailure = func(attempt int, reason string) {
		r.events(Event{Kind: EventLoginFailed, Attempt: attempt, Detail: reason})
		if onFailure != nil {
			onFailure(attempt, reason)
		}
	}

	err := portal.LoginWithRetry(ctx, r.session, r.solver, creds, policy)
	if err != nil {
		return err
	}
	r.events(Event{Kind: EventLoggedIn})
	return nil
}

// Pending lists the evaluations left to submit, it returns portal.ErrNothingPending
// when there are none.
func (r *Runner) Pending(ctx context.Context) ([]portal.Record, error) {
	return portal.FetchPending(ctx, r.session)
}

// Summary counts the outcomes of a batch.
type Summary struct {
	// RunId identifies the batch in the submission history.
	RunId     string
	Succeeded int
	Rejected  int
	Failed    int
	Skipped   int
}

func (s Summary) String() string {
	return fmt.Sprintf(
		"%d succeeded, %d rejected, %d failed, %d skipped",
		s.Succeeded, s.Rejected, s.Failed, s.Skipped,
	)
}

// Submit submits the selected records strictly in selection order.
//
// A rejected record or a failed request does not stop the batch. A malformed
// evaluation page does: the remaining records are skipped and the error is
// returned after an EventAborted.
func (r *Runner) Submit(ctx context.Context, records []portal.Record, sel Selection) (Summary, error) {
	ctx, span := tracer.Start(ctx, "Submit")
	defer span.End()
	span.SetAttributes(attribute.Int("selected", len(sel.Indices)))

	for _, entry := range sel.Invalid {
		r.events(Event{Kind: EventInvalidSelection, Detail: entry})
	}

	summary := Summary{RunId: uuid.NewString()}
	span.SetAttributes(attribute.String("run_id", summary.RunId))
	for n, index := range sel.Indices {
		if index < 0 || index >= len(records) {
			r.events(Event{Kind: EventInvalidSelection, Detail: fmt.Sprint(index + 1)})
			continue
		}
		if n > 0 && r.recordDelay > 0 {
			select {
			case <-ctx.Done():
				summary.Skipped += len(sel.Indices) - n
				return summary, ctx.Err()
			case <-time.After(r.recordDelay):
			}
		}

		record := records[index]
		position := index + 1
		r.events(Event{Kind: EventStarted, Record: record, Position: position})

		outcome, err := r.engine.Submit(ctx, r.session, record)
		r.remember(ctx, summary.RunId, record, outcome, err)

		var malformed *evaluation.MalformedPageError
		switch {
		case errors.As(err, &malformed):
			summary.Failed++
			summary.Skipped += len(sel.Indices) - n - 1
			r.tel.ReportBroken(report_runner_submit, err, record.CourseSessionId)
			r.events(Event{Kind: EventAborted, Record: record, Position: position, Err: err})
			span.SetStatus(codes.Error, "aborted on malformed page")
			return summary, err
		case err != nil:
			summary.Failed++
			r.events(Event{Kind: EventFailed, Record: record, Position: position, Err: err})
			if ctx.Err() != nil {
				summary.Skipped += len(sel.Indices) - n - 1
				return summary, ctx.Err()
			}
		case outcome.Status == evaluation.StatusSuccess:
			summary.Succeeded++
			r.events(Event{Kind: EventSucceeded, Record: record, Position: position})
		default:
			summary.Rejected++
			r.events(Event{Kind: EventRejected, Record: record, Position: position, Detail: outcome.Reason})
		}
	}

	r.tel.ReportCount(report_runner_submit, int64(summary.Succeeded))
	return summary, nil
}

func (r *Runner) remember(ctx context.Context, runId string, record portal.Record, outcome evaluation.Outcome, submitErr error) {
	if r.history == nil {
		return
	}

	entry := history.Entry{
		RunId:           runId,
		CourseSessionId: record.CourseSessionId,
		CourseName:      record.CourseName,
	}
	switch {
	case submitErr != nil:
		entry.Status = history.StatusFailed
		entry.Reason = submitErr.Error()
	case outcome.Status == evaluation.StatusSuccess:
		entry.Status = history.StatusSucceeded
	default:
		entry.Status = history.StatusRejected
		entry.Reason = outcome.Reason
	}

	err := r.history.Record(context.WithoutCancel(ctx), entry)
	if err != nil {
		r.tel.ReportWarning(report_runner_history, err)
	}
}
