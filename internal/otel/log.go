package otel

import (
	"context"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// TraceContextFrom returns trace_id and span_id from the span in ctx, if any.
func TraceContextFrom(ctx context.Context) (traceID, spanID string) {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return "", ""
	}
	return sc.TraceID().String(), sc.SpanID().String()
}

// LogTraceFields returns a zerolog hook adding whatever correlation ids ctx
// carries: trace_id and span_id from a valid span, and http_request_id when
// the request came through the API router. Absent ids add nothing.
//
//	log.Info().Str("plan_id", id).Func(otel.LogTraceFields(ctx)).Msg("action_queued")
func LogTraceFields(ctx context.Context) func(e *zerolog.Event) {
	return func(e *zerolog.Event) {
		traceID, spanID := TraceContextFrom(ctx)
		if traceID != "" {
			e.Str("trace_id", traceID).Str("span_id", spanID)
		}
		if id := middleware.GetReqID(ctx); id != "" {
			e.Str("http_request_id", id)
		}
	}
}
