package portal

import (
	"bytes"
	"context"
	"fmt"
	"net/http/cookiejar"
	"net/url"
	"quickeval/internal/components/telemetry"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseUrl = "http://zhjw.scu.edu.cn"

	PathLogin       = "/login"
	PathCaptcha     = "/img/captcha.jpg"
	PathLoginSubmit = "/j_spring_security_check"
	PathPendingList = "/student/teachingAssessment/evaluation/queryAll"

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36 Edg/131.0.0.0"
)

var tracer = otel.Tracer("quickeval/portal")

type Options struct {
	BaseUrl string
	// Timeout bounds every single request, a timeout is reported as a TransportError.
	Timeout time.Duration
	// RequestsPerSecond limits outgoing requests, 0 disables the limit.
	RequestsPerSecond float64
}

// Session is the authenticated HTTP context (cookie jar + default headers). It is
// created once and passed explicitly to everything that talks to the portal, it
// must not be used by more than one goroutine at a time.
type Session struct {
	BaseUrl *url.URL
	http    *resty.Client
	tel     telemetry.API
}

func NewSession(opts Options, tel telemetry.API) (*Session, error) {
	if opts.BaseUrl == "" {
		opts.BaseUrl = DefaultBaseUrl
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	tel = telemetry.NewScopedAPI("portal", tel)

	baseUrl, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return nil, err
	}

	client := resty.New()
	client.SetBaseURL(opts.BaseUrl)
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	client.SetHeaders(map[string]string{
		"user-agent":      userAgent,
		"accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8",
		"accept-language": "zh-CN,zh;q=0.9,en;q=0.8",
		"dnt":             "1",
	})
	client.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(baseUrl.Hostname()))
	client.SetTimeout(opts.Timeout)

	if opts.RequestsPerSecond > 0 {
		burst := int(opts.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		rateLimiter := rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
		client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return rateLimiter.Wait(req.Context())
		})
	}

	telemetry.InstrumentResty(client, tel)

	return &Session{
		BaseUrl: baseUrl,
		http:    client,
		tel:     tel,
	}, nil
}

// R starts a request bound to ctx.
func (s *Session) R(ctx context.Context) *resty.Request {
	return s.http.R().SetContext(ctx)
}

// Check turns a failed or non-2xx response into a TransportError.
func (s *Session) Check(op string, res *resty.Response, err error) error {
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	if res.IsError() {
		return &TransportError{Op: op, Err: fmt.Errorf("unexpected status %s", res.Status())}
	}
	return nil
}

// Get fetches `path` and returns the response body.
func (s *Session) Get(ctx context.Context, op, path string) ([]byte, error) {
	res, err := s.R(ctx).Get(path)
	err = s.Check(op, res, err)
	if err != nil {
		return nil, err
	}
	return res.Body(), nil
}

// PostForm posts an urlencoded form to `path` and returns the response body.
func (s *Session) PostForm(ctx context.Context, op, path string, form map[string]string) ([]byte, error) {
	res, err := s.R(ctx).
		SetFormData(form).
		Post(path)
	err = s.Check(op, res, err)
	if err != nil {
		return nil, err
	}
	return res.Body(), nil
}

// CaptchaImage implements captcha.ImageSource, the image is bound to the
// session's cookies.
func (s *Session) CaptchaImage(ctx context.Context) ([]byte, error) {
	return s.Get(ctx, "fetch captcha image", PathCaptcha)
}

// ExtractToken returns the anti-forgery token embedded in a portal page, or an
// empty string when there is none.
func ExtractToken(doc *goquery.Document) string {
	return doc.Find("input#tokenValue[name=tokenValue]").First().AttrOr("value", "")
}

func parseHtml(body []byte) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(bytes.NewReader(body))
}
