package otel

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestTraceContextFrom_NoSpan(t *testing.T) {
	traceID, spanID := TraceContextFrom(context.Background())
	assert.Empty(t, traceID)
	assert.Empty(t, spanID)
}

func TestLogTraceFields(t *testing.T) {
	t.Run("no span adds nothing", func(t *testing.T) {
		var buf bytes.Buffer
		logger := zerolog.New(&buf)
		logger.Info().Func(LogTraceFields(context.Background())).Msg("x")

		var got map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
		assert.NotContains(t, got, "trace_id")
	})

	t.Run("valid span adds ids", func(t *testing.T) {
		sc := trace.NewSpanContext(trace.SpanContextConfig{
			TraceID: trace.TraceID{1, 2, 3},
			SpanID:  trace.SpanID{4, 5, 6},
		})
		ctx := trace.ContextWithSpanContext(context.Background(), sc)

		var buf bytes.Buffer
		logger := zerolog.New(&buf)
		logger.Info().Func(LogTraceFields(ctx)).Msg("x")

		var got map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
		assert.Equal(t, sc.TraceID().String(), got["trace_id"])
		assert.Equal(t, sc.SpanID().String(), got["span_id"])
		assert.NotContains(t, got, "http_request_id")
	})

	t.Run("api request id", func(t *testing.T) {
		ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "host/abc-000001")

		var buf bytes.Buffer
		logger := zerolog.New(&buf)
		logger.Info().Func(LogTraceFields(ctx)).Msg("pipeline_decision")

		var got map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
		assert.Equal(t, "host/abc-000001", got["http_request_id"])
		assert.NotContains(t, got, "trace_id")
	})
}
