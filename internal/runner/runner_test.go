package runner

import (
	"context"
	"errors"
	"quickeval/internal/captcha"
	"quickeval/internal/components/chrono"
	"quickeval/internal/components/telemetry"
	"quickeval/internal/evaluation"
	"quickeval/internal/history"
	"quickeval/internal/portal"
	"quickeval/internal/portal/portaltest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeResult struct {
	outcome evaluation.Outcome
	err     error
}

type fakeEngine struct {
	results map[string]fakeResult
	calls   []string
}

func (f *fakeEngine) Submit(_ context.Context, _ *portal.Session, record portal.Record) (evaluation.Outcome, error) {
	f.calls = append(f.calls, record.CourseSessionId)
	result, ok := f.results[record.CourseSessionId]
	if !ok {
		return evaluation.Outcome{Status: evaluation.StatusSuccess, Phase: 1}, nil
	}
	return result.outcome, result.err
}

var testRecords = []portal.Record{
	{CourseSessionId: "k1", CourseName: "高等数学"},
	{CourseSessionId: "k2", CourseName: "大学物理"},
	{CourseSessionId: "k3", CourseName: "线性代数"},
	{CourseSessionId: "k4", CourseName: "思想政治"},
	{CourseSessionId: "k5", CourseName: "体育"},
}

type recorded struct {
	events []Event
}

func (r *recorded) push(e Event) {
	r.events = append(r.events, e)
}

func (r *recorded) kinds() []EventKind {
	var kinds []EventKind
	for _, e := range r.events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

func newTestRunner(t *testing.T, engine Submitter, opts Options) (*Runner, *recorded) {
	session, err := portal.NewSession(portal.Options{BaseUrl: "http://127.0.0.1:1"}, telemetry.Nop{})
	require.NoError(t, err)

	events := &recorded{}
	opts.Session = session
	opts.Solver = captcha.NewSolver(captcha.Options{Url: "http://127.0.0.1:1"}, telemetry.Nop{})
	opts.Engine = engine
	opts.Events = events.push
	return New(opts, telemetry.Nop{}), events
}

func TestSubmitInSelectionOrder(t *testing.T) {
	engine := &fakeEngine{}
	runner, events := newTestRunner(t, engine, Options{})

	summary, err := runner.Submit(context.Background(), testRecords, ParseSelection("3 1 3 9", len(testRecords)))
	require.NoError(t, err)
	require.Equal(t, []string{"k3", "k1"}, engine.calls)
	require.Equal(t, Summary{RunId: summary.RunId, Succeeded: 2}, summary)
	require.Equal(t, []EventKind{
		EventInvalidSelection,
		EventStarted, EventSucceeded,
		EventStarted, EventSucceeded,
	}, events.kinds())
	require.Equal(t, "9", events.events[0].Detail)
	require.Equal(t, 3, events.events[1].Position)
}

func TestSubmitNothingSelected(t *testing.T) {
	engine := &fakeEngine{}
	runner, events := newTestRunner(t, engine, Options{})

	for _, input := range []string{"", "0"} {
		summary, err := runner.Submit(context.Background(), testRecords, ParseSelection(input, len(testRecords)))
		require.NoError(t, err)
		require.Equal(t, Summary{RunId: summary.RunId}, summary)
	}
	require.Empty(t, engine.calls)
	require.Empty(t, events.events)
}

func TestSubmitAll(t *testing.T) {
	engine := &fakeEngine{}
	runner, _ := newTestRunner(t, engine, Options{})

	summary, err := runner.Submit(context.Background(), testRecords, ParseSelection("a", len(testRecords)))
	require.NoError(t, err)
	require.Equal(t, []string{"k1", "k2", "k3", "k4", "k5"}, engine.calls)
	require.Equal(t, 5, summary.Succeeded)
}

func TestSubmitContinuesAfterFailures(t *testing.T) {
	engine := &fakeEngine{results: map[string]fakeResult{
		"k2": {outcome: evaluation.Outcome{Status: evaluation.StatusRejected, Reason: "已评教"}},
		"k3": {err: &portal.TransportError{Op: "save phase 0", Err: errors.New("timeout")}},
	}}
	runner, events := newTestRunner(t, engine, Options{})

	summary, err := runner.Submit(context.Background(), testRecords, SelectAll(4))
	require.NoError(t, err)
	require.Equal(t, []string{"k1", "k2", "k3", "k4"}, engine.calls)
	require.Equal(t, Summary{RunId: summary.RunId, Succeeded: 2, Rejected: 1, Failed: 1}, summary)
	require.Equal(t, []EventKind{
		EventStarted, EventSucceeded,
		EventStarted, EventRejected,
		EventStarted, EventFailed,
		EventStarted, EventSucceeded,
	}, events.kinds())
	require.Equal(t, "已评教", events.events[3].Detail)
}

func TestSubmitAbortsOnMalformedPage(t *testing.T) {
	engine := &fakeEngine{results: map[string]fakeResult{
		"k2": {err: &evaluation.MalformedPageError{Reason: "layout v1 needs at least 46 fields, page has 12"}},
	}}
	runner, events := newTestRunner(t, engine, Options{})

	summary, err := runner.Submit(context.Background(), testRecords, SelectAll(len(testRecords)))
	var malformed *evaluation.MalformedPageError
	require.ErrorAs(t, err, &malformed)
	require.Equal(t, []string{"k1", "k2"}, engine.calls)
	require.Equal(t, Summary{RunId: summary.RunId, Succeeded: 1, Failed: 1, Skipped: 3}, summary)
	require.Equal(t, EventAborted, events.events[len(events.events)-1].Kind)
}

func TestSubmitRecordsHistory(t *testing.T) {
	ctx := context.Background()
	ledger, err := history.Open(ctx, ":memory:", chrono.Fixed(time.Date(2024, 12, 1, 10, 0, 0, 0, time.UTC)))
	require.NoError(t, err)
	defer ledger.Close()

	engine := &fakeEngine{results: map[string]fakeResult{
		"k2": {outcome: evaluation.Outcome{Status: evaluation.StatusRejected, Reason: "已评教"}},
		"k3": {err: errors.New("decode response")},
	}}
	runner, _ := newTestRunner(t, engine, Options{History: ledger})

	summary, err := runner.Submit(ctx, testRecords, SelectAll(3))
	require.NoError(t, err)
	require.NotEmpty(t, summary.RunId)

	entries, err := ledger.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for _, entry := range entries {
		require.Equal(t, summary.RunId, entry.RunId)
	}

	statuses := map[string]history.Status{}
	for _, entry := range entries {
		statuses[entry.CourseSessionId] = entry.Status
	}
	require.Equal(t, map[string]history.Status{
		"k1": history.StatusSucceeded,
		"k2": history.StatusRejected,
		"k3": history.StatusFailed,
	}, statuses)
}

func TestSubmitCancelledBetweenRecords(t *testing.T) {
	engine := &fakeEngine{}
	runner, _ := newTestRunner(t, engine, Options{RecordDelay: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	runner.events = func(e Event) {
		if e.Kind == EventSucceeded {
			cancel()
		}
	}

	summary, err := runner.Submit(ctx, testRecords, SelectAll(3))
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, []string{"k1"}, engine.calls)
	require.Equal(t, Summary{RunId: summary.RunId, Succeeded: 1, Skipped: 2}, summary)
}

func TestLoginReportsAttempts(t *testing.T) {
	server := portaltest.New()
	defer server.Close()
	server.RejectLogins = 2

	session, err := portal.NewSession(portal.Options{BaseUrl: server.URL}, telemetry.Nop{})
	require.NoError(t, err)

	events := &recorded{}
	runner := New(Options{
		Session: session,
		Solver:  captcha.NewSolver(captcha.Options{Url: server.OcrUrl()}, telemetry.Nop{}),
		Engine:  &fakeEngine{},
		Retry:   portal.RetryPolicy{Attempts: 3},
		Events:  events.push,
	}, telemetry.Nop{})

	err = runner.Login(context.Background(), portal.Credentials{
		Username: server.Username,
		Password: server.Password,
	})
	require.NoError(t, err)
	require.Equal(t, []EventKind{EventLoginFailed, EventLoginFailed, EventLoggedIn}, events.kinds())
	require.Equal(t, 2, events.events[1].Attempt)
	require.Equal(t, portaltest.RejectReason, events.events[1].Detail)

	server.Records = []portaltest.CatalogRecord{{KTID: "k1", KCM: "高等数学", WJBM: "w"}}
	records, err := runner.Pending(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestLoginExhausted(t *testing.T) {
	server := portaltest.New()
	defer server.Close()
	server.RejectLogins = 10

	session, err := portal.NewSession(portal.Options{BaseUrl: server.URL}, telemetry.Nop{})
	require.NoError(t, err)

	events := &recorded{}
	runner := New(Options{
		Session: session,
		Solver:  captcha.NewSolver(captcha.Options{Url: server.OcrUrl()}, telemetry.Nop{}),
		Engine:  &fakeEngine{},
		Events:  events.push,
	}, telemetry.Nop{})

	err = runner.Login(context.Background(), portal.Credentials{
		Username: server.Username,
		Password: server.Password,
	})
	var authErr *portal.AuthenticationError
	require.ErrorAs(t, err, &authErr)
	require.Len(t, events.events, 3)
}
