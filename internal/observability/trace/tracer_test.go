package trace_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/openeeap/nmtrl/internal/observability/trace"
)

func newRecordingTracer(t *testing.T) (*trace.OtelTracer, *tracetest.InMemoryExporter) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tracer, err := trace.NewTracerWithExporter(trace.TracerConfig{
		ServiceName:  "nmtrl-test",
		SamplingRate: 1,
	}, exporter)
	require.NoError(t, err)
	return tracer, exporter
}

func TestTraceFunc_RecordsError(t *testing.T) {
	tracer, exporter := newRecordingTracer(t)

	boom := errors.New("disk full")
	err := trace.TraceFunc(context.Background(), tracer, "Checkpoint.Save", func(ctx context.Context) error {
		return boom
	}, trace.StringAttr("policy", "override"))
	require.ErrorIs(t, err, boom)

	require.NoError(t, tracer.Shutdown(context.Background()))
	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "Checkpoint.Save", spans[0].Name)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
}

func TestInjectExtractRoundTrip(t *testing.T) {
	tracer, _ := newRecordingTracer(t)

	ctx, span := tracer.Start(context.Background(), "Trainer.Epoch")
	defer span.End()

	carrier := propagation.MapCarrier{}
	tracer.InjectContext(ctx, carrier)
	assert.NotEmpty(t, carrier.Get("traceparent"))

	extracted := tracer.ExtractContext(context.Background(), carrier)
	assert.Equal(t, tracer.GetTraceID(ctx), tracer.GetTraceID(extracted))
}

func TestNoopTracer(t *testing.T) {
	tracer := trace.NewNoopTracer()
	ctx, span := tracer.Start(context.Background(), "noop")
	span.End()

	assert.Empty(t, tracer.GetTraceID(ctx))
	assert.NoError(t, tracer.Shutdown(ctx))
}
