package llm

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const usageMeterName = "github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/llm"

var (
	tokenHistogram    metric.Int64Histogram
	usageMetricsOnce  sync.Once
	usageMetricsReady bool
)

func initUsageMetrics() {
	meter := otel.Meter(usageMeterName)
	var err error
	tokenHistogram, err = meter.Int64Histogram(
		"engage.llm.tokens",
		metric.WithDescription("Tokens per generation call"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		return
	}
	usageMetricsReady = true
}

// RecordUsage records input and output token counts for one generation call.
func RecordUsage(ctx context.Context, system, model string, inputTokens, outputTokens int) {
	usageMetricsOnce.Do(initUsageMetrics)
	if !usageMetricsReady {
		return
	}
	tokenHistogram.Record(ctx, int64(inputTokens), metric.WithAttributes(
		attribute.String("system", system),
		attribute.String("model", model),
		attribute.String("direction", "input"),
	))
	tokenHistogram.Record(ctx, int64(outputTokens), metric.WithAttributes(
		attribute.String("system", system),
		attribute.String("model", model),
		attribute.String("direction", "output"),
	))
}
