// Package trace sets up OpenTelemetry for nmtrl. Epochs, validation passes
// and checkpoint writes become spans, and the span context rides along with
// events published to Kafka.
package trace

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/zipkin"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// ============================================================================
// Tracer Interface
// ============================================================================

// Tracer starts spans and moves span context across process boundaries
type Tracer interface {
	Start(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span)

	// GetTraceID is empty when ctx carries no sampled span
	GetTraceID(ctx context.Context) string

	InjectContext(ctx context.Context, carrier propagation.TextMapCarrier)
	ExtractContext(ctx context.Context, carrier propagation.TextMapCarrier) context.Context

	// Shutdown flushes pending spans and stops the exporter
	Shutdown(ctx context.Context) error
}

// ============================================================================
// OpenTelemetry Tracer Implementation
// ============================================================================

// OtelTracer is the SDK backed Tracer
type OtelTracer struct {
	tracer     trace.Tracer
	provider   *sdktrace.TracerProvider
	propagator propagation.TextMapPropagator
}

// TracerConfig mirrors observability.tracing in the config file
type TracerConfig struct {
	ServiceName    string
	ServiceVersion string
	Provider       string  // jaeger, zipkin or otlp
	Endpoint       string
	SamplingRate   float64 // fraction of root spans kept, 0 to 1
}

// ============================================================================
// Tracer Initialization
// ============================================================================

// NewTracer exports spans to cfg.Provider
func NewTracer(cfg TracerConfig) (Tracer, error) {
	var (
		exporter sdktrace.SpanExporter
		err      error
	)
	switch cfg.Provider {
	case "jaeger":
		exporter, err = createJaegerExporter(cfg.Endpoint)
	case "zipkin":
		exporter, err = createZipkinExporter(cfg.Endpoint)
	case "otlp":
		exporter, err = createOTLPExporter(cfg.Endpoint)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create exporter: %w", err)
	}

	return NewTracerWithExporter(cfg, exporter)
}

// NewTracerWithExporter installs exporter as the global provider and
// propagator. Tests pass a tracetest.InMemoryExporter.
func NewTracerWithExporter(cfg TracerConfig, exporter sdktrace.SpanExporter) (*OtelTracer, error) {
	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SamplingRate))),
	)
	otel.SetTracerProvider(tp)

	propagator := propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	)
	otel.SetTextMapPropagator(propagator)

	return &OtelTracer{
		tracer:     tp.Tracer(cfg.ServiceName, trace.WithInstrumentationVersion(cfg.ServiceVersion)),
		provider:   tp,
		propagator: propagator,
	}, nil
}

// ============================================================================
// Exporters
// ============================================================================

func createJaegerExporter(endpoint string) (sdktrace.SpanExporter, error) {
	return jaeger.New(
		jaeger.WithCollectorEndpoint(
			jaeger.WithEndpoint(endpoint),
		),
	)
}

func createZipkinExporter(endpoint string) (sdktrace.SpanExporter, error) {
	return zipkin.New(endpoint)
}

func createOTLPExporter(endpoint string) (sdktrace.SpanExporter, error) {
	client := otlptracegrpc.NewClient(
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	return otlptrace.New(context.Background(), client)
}

// ============================================================================
// OtelTracer
// ============================================================================

func (t *OtelTracer) Start(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, spanName, opts...)
}

func (t *OtelTracer) GetTraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

func (t *OtelTracer) InjectContext(ctx context.Context, carrier propagation.TextMapCarrier) {
	t.propagator.Inject(ctx, carrier)
}

func (t *OtelTracer) ExtractContext(ctx context.Context, carrier propagation.TextMapCarrier) context.Context {
	return t.propagator.Extract(ctx, carrier)
}

func (t *OtelTracer) Shutdown(ctx context.Context) error {
	return t.provider.Shutdown(ctx)
}

// ============================================================================
// Span Helpers
// ============================================================================

// RecordSpanError marks the span in ctx as failed. nil is ignored.
func RecordSpanError(ctx context.Context, err error) {
	if err == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func StringAttr(key, value string) attribute.KeyValue          { return attribute.String(key, value) }
func IntAttr(key string, value int) attribute.KeyValue         { return attribute.Int(key, value) }
func Float64Attr(key string, value float64) attribute.KeyValue { return attribute.Float64(key, value) }

// TraceFunc runs fn inside a span named name
func TraceFunc(ctx context.Context, tracer Tracer, name string, fn func(context.Context) error, attrs ...attribute.KeyValue) error {
	ctx, span := tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	span.SetAttributes(attribute.Int64("duration_ms", time.Since(start).Milliseconds()))
	if err != nil {
		RecordSpanError(ctx, err)
	}

	return err
}

// ============================================================================
// No-op Tracer
// ============================================================================

// NoopTracer hands out non-recording spans
type NoopTracer struct {
	tracer trace.Tracer
}

// NewNoopTracer is used when tracing is disabled
func NewNoopTracer() Tracer {
	return &NoopTracer{tracer: noop.NewTracerProvider().Tracer("nmtrl")}
}

func (t *NoopTracer) Start(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, spanName, opts...)
}

func (t *NoopTracer) GetTraceID(ctx context.Context) string {
	return ""
}

func (t *NoopTracer) InjectContext(ctx context.Context, carrier propagation.TextMapCarrier) {
}

func (t *NoopTracer) ExtractContext(ctx context.Context, carrier propagation.TextMapCarrier) context.Context {
	return ctx
}

func (t *NoopTracer) Shutdown(ctx context.Context) error {
	return nil
}

//Personal.AI order the ending
