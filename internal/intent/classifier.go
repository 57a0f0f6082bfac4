package intent

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	engageotel "github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/otel"
)

var tracer = engageotel.Tracer("github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/intent")

// DefaultInferenceTimeout bounds a single call to the inference collaborator.
const DefaultInferenceTimeout = 1500 * time.Millisecond

// Augmentation eligibility bounds.
const (
	minSignalsForInference = 1
	maxSignalsForInference = 3
)

// Classifier composes intents from lexicon matches and optionally asks an
// Inferrer for extra signals on ambiguous input.
type Classifier struct {
	lexicon      *Lexicon
	inferrer     Inferrer
	inferTimeout time.Duration
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithInferrer enables augmentation. timeout <= 0 uses DefaultInferenceTimeout.
func WithInferrer(inf Inferrer, timeout time.Duration) Option {
	return func(c *Classifier) {
		c.inferrer = inf
		if timeout > 0 {
			c.inferTimeout = timeout
		}
	}
}

// NewClassifier creates a classifier over lex.
func NewClassifier(lex *Lexicon, opts ...Option) *Classifier {
	c := &Classifier{
		lexicon:      lex,
		inferTimeout: DefaultInferenceTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LexiconVersion returns the version of the loaded lexicon.
func (c *Classifier) LexiconVersion() string {
	return c.lexicon.Version()
}

// Classify never fails: inference problems are recorded on the result's
// Augmentation and the deterministic composition is returned.
func (c *Classifier) Classify(ctx context.Context, text string) *Result {
	ctx, span := tracer.Start(ctx, "intent.classify")
	defer span.End()

	normalized := Normalize(text)
	signals := c.lexicon.Scan(normalized)
	res := c.build(signals, ConfidenceDeterministic)

	if c.inferrer != nil && eligibleForInference(res) {
		outcome := c.infer(ctx, text)
		res.Augmentation = &Augmentation{Attempted: true}
		if outcome.Err != nil {
			res.Augmentation.Error = outcome.Err.Error()
			log.Debug().Err(outcome.Err).Func(engageotel.LogTraceFields(ctx)).Msg("signal_inference_failed")
		} else if merged, added := mergeSignals(signals, outcome.Signals); added > 0 {
			aug := res.Augmentation
			res = c.build(merged, ConfidenceAugmented)
			aug.Added = added
			res.Augmentation = aug
		}
	}

	span.SetAttributes(
		attribute.String("intent.primary", string(res.Primary)),
		attribute.String("intent.strength", string(res.Strength)),
		attribute.Int("intent.signals", len(res.Signals)),
	)
	return res
}

func (c *Classifier) build(signals []DetectedSignal, confidence float64) *Result {
	primary, strength := Compose(signals)
	evidence := make([]string, 0, len(signals))
	for _, s := range signals {
		evidence = append(evidence, s.Phrase)
	}
	return &Result{
		Primary:        primary,
		Strength:       strength,
		Signals:        signals,
		Evidence:       evidence,
		Supporting:     supportingIntents(signals, primary),
		Confidence:     confidence,
		LexiconVersion: c.lexicon.Version(),
	}
}

func eligibleForInference(res *Result) bool {
	if res.Primary != IntentUnknown {
		return false
	}
	n := len(res.Signals)
	if n < minSignalsForInference || n > maxSignalsForInference {
		return false
	}
	return !res.HasCategory(CategoryPreference)
}

func (c *Classifier) infer(ctx context.Context, text string) InferenceOutcome {
	ctx, span := tracer.Start(ctx, "intent.infer", trace.WithAttributes(
		attribute.String("inferrer", c.inferrer.Name()),
	))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, c.inferTimeout)
	defer cancel()

	type result struct {
		labels []InferredSignal
		err    error
	}
	done := make(chan result, 1)
	go func() {
		labels, err := c.inferrer.Infer(ctx, text)
		done <- result{labels: labels, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			span.RecordError(r.err)
			return InferenceOutcome{Err: r.err}
		}
		return InferenceOutcome{Signals: AdaptInferred(r.labels)}
	case <-ctx.Done():
		span.RecordError(ctx.Err())
		return InferenceOutcome{Err: ctx.Err()}
	}
}

// mergeSignals appends extra signals whose IDs are not already present.
func mergeSignals(base, extra []DetectedSignal) ([]DetectedSignal, int) {
	seen := make(map[string]bool, len(base))
	merged := make([]DetectedSignal, 0, len(base)+len(extra))
	for _, s := range base {
		seen[s.ID] = true
		merged = append(merged, s)
	}
	added := 0
	for _, s := range extra {
		if seen[s.ID] {
			continue
		}
		seen[s.ID] = true
		merged = append(merged, s)
		added++
	}
	return merged, added
}
