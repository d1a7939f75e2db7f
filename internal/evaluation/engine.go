package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"quickeval/internal/components/telemetry"
	"quickeval/internal/portal"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	report_engine_fetch_page = "engine.fetch-page"
	report_engine_resolve    = "engine.resolve"
	report_engine_trial      = "engine.trial"
	report_engine_final      = "engine.final"

	PathEvaluationPage = "/student/teachingEvaluation/newEvaluation/evaluation/"
	PathSave           = "/student/teachingAssessment/baseInformation/questionsAdd/doSave"

	phaseTrial = "0"
	phaseFinal = "1"
)

var tracer = otel.Tracer("quickeval/evaluation")

type Status int

const (
	StatusSuccess Status = iota + 1
	StatusRejected
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusRejected:
		return "rejected"
	}
	return "unknown"
}

// Outcome is the portal's verdict on one record.
type Outcome struct {
	Status Status
	// Reason is the portal's explanation for a rejection.
	Reason string
	// Phase is the save phase (0 trial, 1 final) the submission ended in.
	Phase int
}

type Options struct {
	// Layout defaults to LayoutV1.
	Layout Layout
	// Answers defaults to Optimal().
	Answers AnswerSet
	// PhaseDelay is waited between the trial and the final save.
	PhaseDelay time.Duration
}

// Engine submits evaluations, it holds no per-record state.
type Engine struct {
	layout     Layout
	answers    AnswerSet
	phaseDelay time.Duration
	tel        telemetry.API
}

func NewEngine(opts Options, tel telemetry.API) Engine {
	if opts.Layout.Version == "" {
		opts.Layout = LayoutV1
	}
	if opts.Answers.Score == "" {
		opts.Answers = Optimal().WithComment(opts.Answers.Comment)
	}
	return Engine{
		layout:     opts.Layout,
		answers:    opts.Answers,
		phaseDelay: opts.PhaseDelay,
		tel:        telemetry.NewScopedAPI("evaluation", tel),
	}
}

type state int

const (
	statePending state = iota
	stateTrialSubmitted
	stateFinalized
)

// submission is the state of one record moving through
// Pending -> TrialSubmitted(token) -> Finalized(outcome).
type submission struct {
	state   state
	record  portal.Record
	answers url.Values
	// token is the page token while pending and the trial token afterwards.
	token   string
	outcome Outcome
}

// saveResponse keeps both fields raw, either may hold any JSON value.
type saveResponse struct {
	Result json.RawMessage `json:"result"`
	Token  json.RawMessage `json:"token"`
}

// jsonText returns the value of a JSON string, or the raw JSON text and false
// for any other value. A missing field or null reads as "".
func jsonText(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", true
	}
	var text string
	err := json.Unmarshal(raw, &text)
	if err != nil {
		return string(raw), false
	}
	return text, true
}

// Submit fetches the evaluation page of `record` and saves the answers in two
// phases. A rejected record is reported through Outcome, transport failures and
// unreadable responses are returned as errors.
//
// If the trial save does not issue a new token the final save is never sent.
func (e Engine) Submit(ctx context.Context, s *portal.Session, record portal.Record) (Outcome, error) {
	ctx, span := tracer.Start(ctx, "Submit")
	defer span.End()
	span.SetAttributes(attribute.String("course_session_id", record.CourseSessionId))

	sub, err := e.prepare(ctx, s, record)
	if err != nil {
		span.SetStatus(codes.Error, "failed to prepare submission")
		return Outcome{}, err
	}

	for sub.state != stateFinalized {
		switch sub.state {
		case statePending:
			err = e.trial(ctx, s, &sub)
		case stateTrialSubmitted:
			err = e.wait(ctx)
			if err == nil {
				err = e.final(ctx, s, &sub)
			}
		}
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return Outcome{}, err
		}
	}

	if sub.outcome.Status == StatusRejected {
		span.SetStatus(codes.Error, sub.outcome.Reason)
	}
	return sub.outcome, nil
}

func (e Engine) prepare(ctx context.Context, s *portal.Session, record portal.Record) (submission, error) {
	page, err := s.Get(ctx, "fetch evaluation page", PathEvaluationPage+url.PathEscape(record.CourseSessionId))
	if err != nil {
		e.tel.ReportBroken(report_engine_fetch_page, err, record.CourseSessionId)
		return submission{}, err
	}

	form, err := ExtractForm(page)
	if err != nil {
		e.tel.ReportBroken(report_engine_fetch_page, err, record.CourseSessionId)
		return submission{}, err
	}
	resolution, err := e.layout.Resolve(form.Fields)
	if err != nil {
		e.tel.ReportBroken(report_engine_resolve, err, record.CourseSessionId)
		return submission{}, err
	}

	return submission{
		state:   statePending,
		record:  record,
		answers: e.answers.Values(resolution),
		token:   form.Token,
	}, nil
}

func (e Engine) wait(ctx context.Context) error {
	if e.phaseDelay <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(e.phaseDelay):
		return nil
	}
}

func (e Engine) trial(ctx context.Context, s *portal.Session, sub *submission) error {
	res, err := e.save(ctx, s, sub, phaseTrial)
	if err != nil {
		e.tel.ReportBroken(report_engine_trial, err, sub.record.CourseSessionId)
		return err
	}

	token, tokenIsText := jsonText(res.Token)
	if !tokenIsText || token == "" {
		reason := "trial save did not issue a token"
		if !tokenIsText {
			reason = fmt.Sprintf("trial save issued an unusable token: %s", token)
		}
		result, _ := jsonText(res.Result)
		if result != "" && result != "ok" {
			reason = result
		}
		e.tel.ReportWarning(report_engine_trial, reason, sub.record.CourseSessionId)
		sub.state = stateFinalized
		sub.outcome = Outcome{Status: StatusRejected, Reason: reason, Phase: 0}
		return nil
	}

	sub.token = token
	sub.state = stateTrialSubmitted
	return nil
}

func (e Engine) final(ctx context.Context, s *portal.Session, sub *submission) error {
	res, err := e.save(ctx, s, sub, phaseFinal)
	if err != nil {
		e.tel.ReportBroken(report_engine_final, err, sub.record.CourseSessionId)
		return err
	}

	sub.state = stateFinalized
	result, _ := jsonText(res.Result)
	if result != "ok" {
		reason := result
		if reason == "" {
			reason = "final save returned no result"
		}
		e.tel.ReportWarning(report_engine_final, reason, sub.record.CourseSessionId)
		sub.outcome = Outcome{Status: StatusRejected, Reason: reason, Phase: 1}
		return nil
	}
	sub.outcome = Outcome{Status: StatusSuccess, Phase: 1}
	return nil
}

func (e Engine) save(ctx context.Context, s *portal.Session, sub *submission, phase string) (saveResponse, error) {
	form := url.Values{}
	for key, values := range sub.answers {
		form[key] = values
	}
	form.Set("wjbm", sub.record.FormDefinitionId)
	form.Set("ktid", sub.record.CourseSessionId)
	form.Set("tokenValue", sub.token)
	form.Set("compare", "")

	op := fmt.Sprintf("save phase %s", phase)
	res, err := s.R(ctx).
		SetHeader("x-requested-with", "XMLHttpRequest").
		SetQueryParam("tokenValue", sub.token).
		SetMultipartFormData(map[string]string{"tjcs": phase}).
		SetFormDataFromValues(form).
		Post(PathSave)
	err = s.Check(op, res, err)
	if err != nil {
		return saveResponse{}, err
	}

	var parsed saveResponse
	err = json.Unmarshal(res.Body(), &parsed)
	if err != nil {
		return saveResponse{}, fmt.Errorf("%s: decode response: %w", op, err)
	}
	return parsed, nil
}
