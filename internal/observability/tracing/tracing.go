package tracing

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	ExporterNone    = "none"
	ExporterConsole = "console"
	ExporterJaeger  = "jaeger"
)

type Config struct {
	Exporter       string
	JaegerEndpoint string
	SampleRatio    float64
}

func (c Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Exporter)) {
	case "", ExporterNone, ExporterConsole:
	case ExporterJaeger:
		if strings.TrimSpace(c.JaegerEndpoint) == "" {
			return fmt.Errorf("jaeger exporter requires an endpoint")
		}
	default:
		return fmt.Errorf("unsupported tracing exporter %q", c.Exporter)
	}
	if c.SampleRatio < 0 || c.SampleRatio > 1 {
		return fmt.Errorf("sample ratio must be within [0,1], got %v", c.SampleRatio)
	}
	return nil
}

// Provider is the process tracer provider. Shutdown flushes spans still held by the
// batcher and must be called before exit.
type Provider struct {
	trace.TracerProvider
	shutdown func(context.Context) error
}

func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.shutdown == nil {
		return nil
	}
	return p.shutdown(ctx)
}

// Setup builds the tracer provider selected by cfg.Exporter and installs it as the otel
// global. The "none" exporter yields a no-op provider and leaves the global untouched.
// Console spans go to w, or stderr when w is nil.
func Setup(service string, cfg Config, w io.Writer) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		exporter sdktrace.SpanExporter
		err      error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Exporter)) {
	case "", ExporterNone:
		return &Provider{TracerProvider: noop.NewTracerProvider()}, nil
	case ExporterConsole:
		if w == nil {
			w = os.Stderr
		}
		exporter, err = stdouttrace.New(stdouttrace.WithWriter(w))
	case ExporterJaeger:
		exporter, err = jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(cfg.JaegerEndpoint)))
	}
	if err != nil {
		return nil, fmt.Errorf("init %s trace exporter: %w", cfg.Exporter, err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", service))),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	)
	otel.SetTracerProvider(tp)
	return &Provider{TracerProvider: tp, shutdown: tp.Shutdown}, nil
}
