package portal

import (
	"context"
	"errors"
	"quickeval/internal/captcha"
	"quickeval/internal/components/telemetry"
	"quickeval/internal/portal/portaltest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestSession(t testing.TB, server *portaltest.Server) *Session {
	session, err := NewSession(Options{
		BaseUrl: server.URL,
		Timeout: 5 * time.Second,
	}, telemetry.Nop{})
	require.NoError(t, err)
	return session
}

func newTestSolver(server *portaltest.Server) captcha.Solver {
	return captcha.NewSolver(captcha.Options{Url: server.OcrUrl()}, telemetry.Nop{})
}

var noDelay = RetryPolicy{Attempts: 3}

func TestHashPassword(t *testing.T) {
	require.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", HashPassword(""))
	require.Equal(t, "5f4dcc3b5aa765d61d8327deb882cf99", HashPassword("password"))
}

func TestClassifyLoginResponse(t *testing.T) {
	result, err := ClassifyLoginResponse([]byte(`<html><body>欢迎您，张三</body></html>`))
	require.NoError(t, err)
	require.True(t, result.Success)

	result, err = ClassifyLoginResponse([]byte(`<div><strong>发生错误！</strong>验证码错误!</div>`))
	require.NoError(t, err)
	require.False(t, result.Success)
	require.Equal(t, "验证码错误", result.Reason)

	result, err = ClassifyLoginResponse([]byte(`<div>
		<strong> 发生错误！ </strong>
		用户名或密码错误! 请重试
	</div>`))
	require.NoError(t, err)
	require.Equal(t, "用户名或密码错误", result.Reason)

	_, err = ClassifyLoginResponse([]byte(`<html><body>系统维护中</body></html>`))
	var drift *ProtocolDriftError
	require.ErrorAs(t, err, &drift)
}

func TestLogin(t *testing.T) {
	server := portaltest.New()
	defer server.Close()

	session := newTestSession(t, server)
	result, err := Login(context.Background(), session, newTestSolver(server), Credentials{
		Username: server.Username,
		Password: server.Password,
	})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, 1, server.LoginAttempts)
	require.Equal(t, 1, server.CaptchaFetches)
}

func TestLoginWrongPassword(t *testing.T) {
	server := portaltest.New()
	defer server.Close()

	session := newTestSession(t, server)
	result, err := Login(context.Background(), session, newTestSolver(server), Credentials{
		Username: server.Username,
		Password: "wrong",
	})
	require.NoError(t, err)
	require.False(t, result.Success)
	require.Equal(t, "用户名或密码错误", result.Reason)
}

func TestLoginWithRetryBounded(t *testing.T) {
	table := []struct {
		failures int
		success  bool
		attempts int
	}{
		{failures: 0, success: true, attempts: 1},
		{failures: 1, success: true, attempts: 2},
		{failures: 2, success: true, attempts: 3},
		{failures: 3, success: false, attempts: 3},
		{failures: 7, success: false, attempts: 3},
	}

	for _, row := range table {
		server := portaltest.New()
		server.RejectLogins = row.failures

		var reported []int
		policy := noDelay
		policy.OnFailure = func(attempt int, reason string) {
			require.Equal(t, portaltest.RejectReason, reason)
			reported = append(reported, attempt)
		}

		session := newTestSession(t, server)
		err := LoginWithRetry(context.Background(), session, newTestSolver(server), Credentials{
			Username: server.Username,
			Password: server.Password,
		}, policy)

		require.Equal(t, row.attempts, server.LoginAttempts, "failures=%d", row.failures)
		require.Len(t, reported, min(row.failures, 3))
		if row.success {
			require.NoError(t, err)
		} else {
			var authErr *AuthenticationError
			require.ErrorAs(t, err, &authErr)
			require.Equal(t, 3, authErr.Attempts)
			require.Equal(t, portaltest.RejectReason, authErr.Reason)
		}
		server.Close()
	}
}

func TestLoginWithRetryCaptchaServiceFailure(t *testing.T) {
	server := portaltest.New()
	defer server.Close()
	server.OcrBody = `{"code": 500, "msg": "overloaded"}`

	session := newTestSession(t, server)
	err := LoginWithRetry(context.Background(), session, newTestSolver(server), Credentials{
		Username: server.Username,
		Password: server.Password,
	}, noDelay)

	var authErr *AuthenticationError
	require.ErrorAs(t, err, &authErr)
	var serviceErr *captcha.ServiceError
	require.ErrorAs(t, err, &serviceErr)
	require.Equal(t, 3, server.CaptchaFetches)
	require.Equal(t, 0, server.LoginAttempts)
}

func TestLoginWithRetryProtocolDrift(t *testing.T) {
	server := portaltest.New()
	defer server.Close()
	server.LoginResponse = `<html><body>维护中</body></html>`

	session := newTestSession(t, server)
	err := LoginWithRetry(context.Background(), session, newTestSolver(server), Credentials{
		Username: server.Username,
		Password: server.Password,
	}, noDelay)

	var drift *ProtocolDriftError
	require.ErrorAs(t, err, &drift)
	require.Equal(t, 1, server.LoginAttempts)
}

func TestLoginMissingToken(t *testing.T) {
	server := portaltest.New()
	defer server.Close()
	server.LoginPage = `<html><body><form></form></body></html>`

	session := newTestSession(t, server)
	_, err := Login(context.Background(), session, newTestSolver(server), Credentials{})
	var drift *ProtocolDriftError
	require.ErrorAs(t, err, &drift)
	require.Equal(t, 0, server.CaptchaFetches)
}

func TestLoginWithRetryTransportFailure(t *testing.T) {
	server := portaltest.New()
	url := server.URL
	server.Close()

	session, err := NewSession(Options{BaseUrl: url, Timeout: time.Second}, telemetry.Nop{})
	require.NoError(t, err)

	failures := 0
	policy := noDelay
	policy.OnFailure = func(int, string) { failures++ }

	err = LoginWithRetry(context.Background(), session, newTestSolver(server), Credentials{}, policy)
	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	require.Equal(t, 3, failures)
}

func TestLoginWithRetryCancelled(t *testing.T) {
	server := portaltest.New()
	defer server.Close()
	server.RejectLogins = 5

	ctx, cancel := context.WithCancel(context.Background())
	policy := RetryPolicy{
		Attempts:  3,
		Delay:     time.Hour,
		OnFailure: func(int, string) { cancel() },
	}

	session := newTestSession(t, server)
	err := LoginWithRetry(ctx, session, newTestSolver(server), Credentials{
		Username: server.Username,
		Password: server.Password,
	}, policy)
	require.True(t, errors.Is(err, context.Canceled))
	require.Equal(t, 1, server.LoginAttempts)
}
