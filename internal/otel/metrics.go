package otel

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/nerrazzuri/ai-engagement-desktop-client-sub000"

type pipelineInstruments struct {
	decisions   metric.Int64Counter
	breaker     metric.Int64Counter
	cacheLookup metric.Int64Counter
	safety      metric.Int64Counter
	httpCount   metric.Int64Counter
	httpLatency metric.Float64Histogram
}

var (
	instruments     pipelineInstruments
	instrumentsOnce sync.Once
	instrumentsOK   bool
)

func initInstruments() {
	meter := otel.Meter(meterName)
	var err error
	if instruments.decisions, err = meter.Int64Counter("engage.decisions",
		metric.WithDescription("Pipeline outcomes by response kind and strategy")); err != nil {
		return
	}
	if instruments.breaker, err = meter.Int64Counter("engage.breaker.transitions",
		metric.WithDescription("Circuit breaker state transitions")); err != nil {
		return
	}
	if instruments.cacheLookup, err = meter.Int64Counter("engage.cache.lookups",
		metric.WithDescription("Brain result cache lookups by outcome")); err != nil {
		return
	}
	if instruments.safety, err = meter.Int64Counter("engage.safety.blocks",
		metric.WithDescription("Safety checks that blocked or downgraded a strategy")); err != nil {
		return
	}
	if instruments.httpCount, err = meter.Int64Counter("engage.http.requests",
		metric.WithDescription("API requests by route and status")); err != nil {
		return
	}
	if instruments.httpLatency, err = meter.Float64Histogram("engage.http.duration",
		metric.WithDescription("API request latency"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(5, 25, 100, 250, 1000, 2500, 10000, 60000)); err != nil {
		return
	}
	instrumentsOK = true
}

func ready() bool {
	instrumentsOnce.Do(initInstruments)
	return instrumentsOK
}

// RecordDecision counts one pipeline response.
func RecordDecision(ctx context.Context, kind, strategy string) {
	if !ready() {
		return
	}
	instruments.decisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("strategy", strategy),
	))
}

// RecordBreakerTransition counts a breaker moving from one state to another.
func RecordBreakerTransition(ctx context.Context, from, to string) {
	if !ready() {
		return
	}
	instruments.breaker.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

// RecordCacheLookup counts a cache hit or miss.
func RecordCacheLookup(ctx context.Context, backend string, hit bool) {
	if !ready() {
		return
	}
	instruments.cacheLookup.Add(ctx, 1, metric.WithAttributes(
		attribute.String("backend", backend),
		attribute.Bool("hit", hit),
	))
}

// RecordSafetyBlock counts a safety rule that fired.
func RecordSafetyBlock(ctx context.Context, ruleID string, shadow bool) {
	if !ready() {
		return
	}
	instruments.safety.Add(ctx, 1, metric.WithAttributes(
		attribute.String("rule_id", ruleID),
		attribute.Bool("shadow", shadow),
	))
}

// RecordHTTPRequest counts one API request and its latency. route is the
// chi pattern, keeping plan ids out of the attribute set.
func RecordHTTPRequest(ctx context.Context, method, route string, status int, elapsed time.Duration) {
	if !ready() {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("http.request.method", method),
		attribute.String("http.route", route),
		attribute.String("http.response.status_code", strconv.Itoa(status)),
	)
	instruments.httpCount.Add(ctx, 1, attrs)
	instruments.httpLatency.Record(ctx, float64(elapsed.Microseconds())/1000, attrs)
}
