package portal

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"quickeval/internal/captcha"
	"quickeval/pkg/htmlutil"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	report_login_fetch_token = "login.fetch-token"
	report_login_captcha     = "login.captcha"
	report_login_submit      = "login.submit"
	report_login_classify    = "login.classify"
	report_login_attempts    = "login.attempts"

	welcomeMarker = "欢迎您"
	errorMarker   = "发生错误"
)

type Credentials struct {
	Username string
	Password string
}

// LoginResult is the portal's verdict on one login attempt.
type LoginResult struct {
	Success bool
	// Reason is the portal's explanation when Success is false.
	Reason string
}

type CaptchaSolver interface {
	Solve(ctx context.Context, source captcha.ImageSource) (string, error)
}

// HashPassword returns the lowercase hex MD5 of the password, which is what the
// portal's login form expects in place of the password.
func HashPassword(password string) string {
	sum := md5.Sum([]byte(password))
	return hex.EncodeToString(sum[:])
}

// Login performs one complete login handshake: login page token, CAPTCHA,
// credential POST and response classification.
//
// A rejected login is not an error, it is reported through LoginResult.
func Login(ctx context.Context, s *Session, solver CaptchaSolver, creds Credentials) (LoginResult, error) {
	ctx, span := tracer.Start(ctx, "Login")
	defer span.End()

	hashedPassword := HashPassword(creds.Password)

	page, err := s.Get(ctx, "fetch login page", PathLogin)
	if err != nil {
		s.tel.ReportBroken(report_login_fetch_token, err)
		span.SetStatus(codes.Error, "failed to fetch login page")
		return LoginResult{}, err
	}
	doc, err := parseHtml(page)
	if err != nil {
		span.SetStatus(codes.Error, "failed to parse login page")
		return LoginResult{}, &ProtocolDriftError{Page: "login page", Detail: "parse html", Err: err}
	}
	token := ExtractToken(doc)
	if token == "" {
		err := &ProtocolDriftError{Page: "login page", Detail: "could not find login token"}
		s.tel.ReportBroken(report_login_fetch_token, err)
		span.SetStatus(codes.Error, "failed to find login token")
		return LoginResult{}, err
	}

	captchaText, err := solver.Solve(ctx, s)
	if err != nil {
		s.tel.ReportWarning(report_login_captcha, err)
		span.SetStatus(codes.Error, "failed to solve captcha")
		return LoginResult{}, err
	}

	body, err := s.PostForm(ctx, "submit login", PathLoginSubmit, map[string]string{
		"j_username": creds.Username,
		"j_password": hashedPassword,
		"j_captcha":  captchaText,
		"tokenValue": token,
	})
	if err != nil {
		s.tel.ReportBroken(report_login_submit, err)
		span.SetStatus(codes.Error, "failed to post login")
		return LoginResult{}, err
	}

	result, err := ClassifyLoginResponse(body)
	if err != nil {
		s.tel.ReportBroken(report_login_classify, err)
		span.SetStatus(codes.Error, "unrecognized login response")
		return LoginResult{}, err
	}
	if !result.Success {
		span.SetStatus(codes.Error, result.Reason)
	}
	return result, nil
}

// ClassifyLoginResponse decides whether the page returned after posting the login
// form belongs to a logged in session.
func ClassifyLoginResponse(body []byte) (LoginResult, error) {
	if strings.Contains(string(body), welcomeMarker) {
		return LoginResult{Success: true}, nil
	}

	doc, err := parseHtml(body)
	if err != nil {
		return LoginResult{}, &ProtocolDriftError{Page: "login response", Detail: "parse html", Err: err}
	}

	reason := ""
	found := false
	doc.Find("strong").EachWithBreak(func(_ int, strong *goquery.Selection) bool {
		marker := htmlutil.Normalize(strong.Text())
		if !strings.Contains(marker, errorMarker) {
			return true
		}
		found = true

		text := htmlutil.Normalize(htmlutil.GetText(strong.Parent().Get(0)))
		_, after, _ := strings.Cut(text, marker)
		after, _, _ = strings.Cut(after, "!")
		reason = strings.Trim(after, " ：:！")
		return false
	})
	if !found {
		return LoginResult{}, &ProtocolDriftError{
			Page:   "login response",
			Detail: "neither the welcome nor the error marker is present",
		}
	}
	if reason == "" {
		reason = "unknown error"
	}

	return LoginResult{Reason: reason}, nil
}

type RetryPolicy struct {
	// Attempts is the maximum number of login handshakes to perform.
	Attempts int
	// Delay is waited between two attempts.
	Delay time.Duration
	// OnFailure, if set, is called after every unsuccessful attempt.
	OnFailure func(attempt int, reason string)
}

var DefaultRetryPolicy = RetryPolicy{Attempts: 3, Delay: time.Second}

// LoginWithRetry repeats Login until it succeeds or the policy's attempts are used
// up. Each attempt is independent (fresh token, fresh CAPTCHA).
//
// Credential rejections, CAPTCHA service failures and transport failures all
// consume an attempt. A ProtocolDriftError stops immediately since retrying
// cannot fix a page that no longer looks the way it is expected to.
func LoginWithRetry(ctx context.Context, s *Session, solver CaptchaSolver, creds Credentials, policy RetryPolicy) error {
	ctx, span := tracer.Start(ctx, "LoginWithRetry")
	defer span.End()

	if policy.Attempts <= 0 {
		policy.Attempts = DefaultRetryPolicy.Attempts
	}

	var lastReason string
	var lastErr error
	for attempt := 1; attempt <= policy.Attempts; attempt++ {
		if attempt > 1 && policy.Delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(policy.Delay):
			}
		}

		result, err := Login(ctx, s, solver, creds)
		if err == nil && result.Success {
			span.SetAttributes(attribute.Int("attempts", attempt))
			s.tel.ReportCount(report_login_attempts, int64(attempt))
			return nil
		}

		var drift *ProtocolDriftError
		if errors.As(err, &drift) {
			span.SetStatus(codes.Error, "protocol drift")
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		lastErr = err
		lastReason = result.Reason
		if err != nil {
			lastReason = err.Error()
		}
		if policy.OnFailure != nil {
			policy.OnFailure(attempt, lastReason)
		}
	}

	s.tel.ReportCount(report_login_attempts, int64(policy.Attempts))
	span.SetStatus(codes.Error, "attempts exhausted")
	return &AuthenticationError{
		Attempts: policy.Attempts,
		Reason:   lastReason,
		Err:      lastErr,
	}
}

func (r LoginResult) String() string {
	if r.Success {
		return "success"
	}
	return fmt.Sprintf("failure: %s", r.Reason)
}
