// Package captcha resolves the portal's login CAPTCHA through an external OCR
// service.
package captcha

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"quickeval/internal/components/telemetry"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-resty/resty/v2"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

const (
	report_solver_fetch_image = "solver.fetch-image"
	report_solver_ocr_request = "solver.ocr-request"
	report_solver_ocr_parse   = "solver.ocr-parse"
	report_solver_recognized  = "solver.recognized"

	DefaultUrl  = "https://duomi.chenyipeng.com/captcha"
	DefaultType = "0"
)

var tracer = otel.Tracer("quickeval/captcha")

//go:embed response.schema.json
var responseSchemaText string

var responseSchema = jsonschema.MustCompileString("response.schema.json", responseSchemaText)

// ImageSource provides the CAPTCHA image bound to the caller's session.
type ImageSource interface {
	CaptchaImage(ctx context.Context) ([]byte, error)
}

// ServiceError means the OCR service was unreachable or answered with something
// other than a successful recognition.
type ServiceError struct {
	Err error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("captcha service: %s", e.Err.Error())
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

type Options struct {
	// Url is the OCR endpoint, defaults to DefaultUrl.
	Url string
	// Type is the recognition model discriminator, defaults to DefaultType.
	Type    string
	Timeout time.Duration
}

type Solver struct {
	http *resty.Client
	url  string
	kind string
	tel  telemetry.API
}

func NewSolver(opts Options, tel telemetry.API) Solver {
	if opts.Url == "" {
		opts.Url = DefaultUrl
	}
	if opts.Type == "" {
		opts.Type = DefaultType
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	tel = telemetry.NewScopedAPI("captcha", tel)

	client := resty.New()
	client.SetTimeout(opts.Timeout)
	telemetry.InstrumentResty(client, tel)

	return Solver{
		http: client,
		url:  opts.Url,
		kind: opts.Type,
		tel:  tel,
	}
}

type ocrResponse struct {
	Code    int    `json:"code"`
	Captcha string `json:"captcha"`
}

// Solve fetches a fresh CAPTCHA image from `source` and returns the text the OCR
// service reads from it.
func (s Solver) Solve(ctx context.Context, source ImageSource) (string, error) {
	ctx, span := tracer.Start(ctx, "solver:Solve")
	defer span.End()

	image, err := source.CaptchaImage(ctx)
	if err != nil {
		s.tel.ReportBroken(report_solver_fetch_image, err)
		span.SetStatus(codes.Error, "failed to fetch captcha image")
		return "", fmt.Errorf("fetch captcha image: %w", err)
	}
	if len(image) == 0 {
		span.SetStatus(codes.Error, "empty captcha image")
		return "", fmt.Errorf("fetch captcha image: empty body")
	}

	res, err := s.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"base64img": DataUri(image),
			"type":      s.kind,
		}).
		Post(s.url)
	if err != nil {
		s.tel.ReportBroken(report_solver_ocr_request, err)
		span.SetStatus(codes.Error, "failed to reach ocr service")
		return "", &ServiceError{Err: err}
	}
	if res.IsError() {
		err := fmt.Errorf("unexpected status %s", res.Status())
		s.tel.ReportBroken(report_solver_ocr_request, err)
		span.SetStatus(codes.Error, "ocr service returned an error status")
		return "", &ServiceError{Err: err}
	}

	text, err := ParseResponse(res.Body())
	if err != nil {
		s.tel.ReportBroken(report_solver_ocr_parse, err, res.String())
		span.SetStatus(codes.Error, "unexpected ocr response")
		return "", &ServiceError{Err: err}
	}

	s.tel.ReportDebug(report_solver_recognized, text)
	return text, nil
}

// ParseResponse validates an OCR response body against the success schema and
// returns the recognized text.
func ParseResponse(body []byte) (string, error) {
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	var raw any
	err := decoder.Decode(&raw)
	if err != nil {
		return "", fmt.Errorf("decode json: %w", err)
	}
	err = responseSchema.Validate(raw)
	if err != nil {
		return "", fmt.Errorf("validate response: %w", err)
	}

	var parsed ocrResponse
	err = json.Unmarshal(body, &parsed)
	if err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	return parsed.Captcha, nil
}

// DataUri encodes an image as a base64 data URI, the MIME type is sniffed from
// the image itself.
func DataUri(image []byte) string {
	mime := mimetype.Detect(image).String()
	if !strings.HasPrefix(mime, "image/") {
		mime = "image/png"
	}
	return fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(image))
}
