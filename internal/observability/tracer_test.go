package observability

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace/noop"
)

// =============================================================================
// TracerConfig Tests
// =============================================================================

func TestDefaultTracerConfig(t *testing.T) {
	t.Run("returns expected defaults", func(t *testing.T) {
		cfg := DefaultTracerConfig()

		assert.False(t, cfg.Enabled)
		assert.Equal(t, "localhost:4317", cfg.Endpoint)
		assert.Equal(t, "distbuild", cfg.ServiceName)
		assert.Equal(t, "development", cfg.Environment)
		assert.Equal(t, 1.0, cfg.SampleRate)
		assert.True(t, cfg.Insecure)
	})

	t.Run("returns new instance each time", func(t *testing.T) {
		cfg1 := DefaultTracerConfig()
		cfg2 := DefaultTracerConfig()

		cfg1.ServiceName = "modified"
		assert.Equal(t, "distbuild", cfg2.ServiceName)
	})
}

// =============================================================================
// Tracer Tests
// =============================================================================

func TestNewTracer_Disabled(t *testing.T) {
	tracer, err := NewTracer(context.Background(), DefaultTracerConfig(), "dev")
	require.NoError(t, err)

	assert.Nil(t, tracer.provider)
	assert.NoError(t, tracer.Shutdown(context.Background()))

	ctx, span := tracer.StartBuildSpan(context.Background(), "run-1", 4)
	assert.NotNil(t, ctx)
	assert.False(t, span.IsRecording())
	span.End()
}

func TestNewSampler(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{1.0, "AlwaysOnSampler"},
		{2.0, "AlwaysOnSampler"},
		{0, "AlwaysOffSampler"},
		{0.25, "TraceIDRatioBased{0.25}"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("rate %v", tt.rate), func(t *testing.T) {
			assert.Contains(t, newSampler(tt.rate).Description(), tt.want)
		})
	}
}

// recordingTracer returns a tracer whose finished spans land in the recorder
func recordingTracer() (*Tracer, *tracetest.SpanRecorder) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	return &Tracer{provider: provider, tracer: provider.Tracer("test")}, recorder
}

func TestTracer_BuildSpans(t *testing.T) {
	tracer, recorder := recordingTracer()
	defer func() { _ = tracer.Shutdown(context.Background()) }()

	ctx, root := tracer.StartBuildSpan(context.Background(), "run-1", 4)
	assert.NotEmpty(t, ExtractTraceID(ctx))

	_, child := tracer.StartTargetSpan(ctx, "umd", "umd", "dist/dist.umd.js")
	EndSpan(child, errors.New("compile failed"))
	EndSpan(root, nil)

	spans := recorder.Ended()
	require.Len(t, spans, 2)

	assert.Equal(t, "build.umd", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "compile failed", spans[0].Status().Description)
	assert.Contains(t, spans[0].Attributes(), attribute.String("target.output", "dist/dist.umd.js"))
	assert.Equal(t, spans[1].SpanContext().SpanID(), spans[0].Parent().SpanID())

	assert.Equal(t, "build", spans[1].Name())
	assert.Equal(t, codes.Unset, spans[1].Status().Code)
	assert.Contains(t, spans[1].Attributes(), attribute.Int("build.targets", 4))
}

func TestSetSpanAttributes(t *testing.T) {
	t.Run("ignores non-recording spans", func(t *testing.T) {
		ctx, span := noop.NewTracerProvider().Tracer("test").Start(context.Background(), "x")
		defer span.End()

		assert.NotPanics(t, func() {
			SetSpanAttributes(ctx, attribute.Int("artifact.bytes", 10))
		})
	})

	t.Run("sets attributes on recording span", func(t *testing.T) {
		tracer, recorder := recordingTracer()
		ctx, span := tracer.StartTargetSpan(context.Background(), "esm", "es", "dist/dist.es.mjs")
		SetSpanAttributes(ctx, attribute.Int("artifact.bytes", 10))
		span.End()

		require.Len(t, recorder.Ended(), 1)
		assert.Contains(t, recorder.Ended()[0].Attributes(), attribute.Int("artifact.bytes", 10))
	})
}

func TestExtractTraceID(t *testing.T) {
	assert.Empty(t, ExtractTraceID(context.Background()))
}
