package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

type Config struct {
	// OtlpHttpEndpoint is a host:port pair, tracing is disabled when it is empty.
	OtlpHttpEndpoint string `json:"otlp_http_endpoint"`
	OtlpInsecure     bool   `json:"otlp_insecure"`
}

// Tracing holds the installed tracer provider, Shutdown flushes pending spans.
type Tracing struct {
	provider *sdktrace.TracerProvider
}

func (t Tracing) Shutdown(ctx context.Context) error {
	if t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}

// SetupTracing installs a global tracer provider exporting over OTLP/HTTP.
// When no endpoint is configured the global no-op provider is left in place.
func SetupTracing(ctx context.Context, serviceName string, config Config) (Tracing, error) {
	if config.OtlpHttpEndpoint == "" {
		return Tracing{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*15)
	defer cancel()

	r, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return Tracing{}, err
	}

	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(config.OtlpHttpEndpoint),
	}
	if config.OtlpInsecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return Tracing{}, err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(r),
	)
	otel.SetTracerProvider(provider)

	return Tracing{provider: provider}, nil
}
