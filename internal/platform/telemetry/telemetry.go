// Package telemetry sets up OpenTelemetry tracing for the server.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Settings selects where spans go and how many are kept.
type Settings struct {
	ServiceName string
	// Endpoint is "host:port" or a URL. Empty disables tracing.
	Endpoint string
	// SampleRate is the ratio of sampled root spans, 0..1.
	SampleRate float64
}

// ShutdownFunc flushes and stops the trace provider.
type ShutdownFunc func(context.Context) error

func noop(context.Context) error { return nil }

// Init installs a global OTLP/HTTP trace provider for s. With no endpoint,
// or when the exporter cannot be built, tracing stays disabled and a no-op
// shutdown is returned.
func Init(ctx context.Context, s Settings, log *slog.Logger) (ShutdownFunc, error) {
	if s.Endpoint == "" {
		log.Debug("tracing disabled")
		return noop, nil
	}

	target, err := parseEndpoint(s.Endpoint)
	if err != nil {
		return nil, err
	}

	initCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	exporter, err := otlptracehttp.New(initCtx, target.options()...)
	if err != nil {
		log.Warn("otlp exporter unavailable, tracing disabled", slog.String("error", err.Error()))
		return noop, nil
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(s.ServiceName)))
	if err != nil {
		return nil, fmt.Errorf("trace resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(s.SampleRate))),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	log.Info("tracing enabled",
		slog.String("endpoint", target.host+target.path),
		slog.Bool("tls", !target.insecure),
		slog.Float64("sample_rate", s.SampleRate))
	return tp.Shutdown, nil
}

// endpoint is a parsed collector address.
type endpoint struct {
	host     string
	path     string
	insecure bool
}

func (e endpoint) options() []otlptracehttp.Option {
	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(e.host),
		otlptracehttp.WithTimeout(3 * time.Second),
		otlptracehttp.WithRetry(otlptracehttp.RetryConfig{Enabled: false}),
	}
	if e.path != "" {
		opts = append(opts, otlptracehttp.WithURLPath(e.path))
	}
	if e.insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	return opts
}

// parseEndpoint accepts "host:port" (plain HTTP) or an http(s) URL whose
// path, if any, replaces the default /v1/traces.
func parseEndpoint(raw string) (endpoint, error) {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		return endpoint{host: raw, insecure: true}, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return endpoint{}, fmt.Errorf("otlp endpoint %q: %w", raw, err)
	}
	if u.Host == "" {
		return endpoint{}, fmt.Errorf("otlp endpoint %q: missing host", raw)
	}

	e := endpoint{host: u.Host}
	switch u.Scheme {
	case "http":
		e.insecure = true
	case "https":
	default:
		return endpoint{}, fmt.Errorf("otlp endpoint %q: unsupported scheme %q", raw, u.Scheme)
	}
	if p := strings.TrimRight(u.Path, "/"); p != "" {
		e.path = p
	}
	return e, nil
}
