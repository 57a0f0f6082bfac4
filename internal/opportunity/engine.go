package opportunity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/events"
	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/intent"
	engageotel "github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/otel"
)

var tracer = engageotel.Tracer("github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/opportunity")

// Engine evaluates classifications against the opportunity tables.
type Engine struct {
	tables *Tables
	sink   Sink
	now    func() time.Time
}

// NewEngine creates an engine. sink may be nil.
func NewEngine(tables *Tables, sink Sink) *Engine {
	return &Engine{tables: tables, sink: sink, now: time.Now}
}

// Tables returns the loaded tables.
func (e *Engine) Tables() *Tables { return e.tables }

// Input is one classified interaction.
type Input struct {
	TenantID string
	Text     string
	Result   *intent.Result
}

// Evaluate scores the interaction. Unknown or weak classifications are handed
// to the sink without waiting on it.
func (e *Engine) Evaluate(ctx context.Context, in Input) Opportunity {
	ctx, span := tracer.Start(ctx, "opportunity.evaluate")
	defer span.End()

	res := in.Result
	opp := Opportunity{
		PrimaryIntent:     res.Primary,
		SupportingIntents: res.Supporting,
		Stage:             e.stage(res),
	}

	normalized := intent.Normalize(in.Text)
	score := e.tables.BaseWeights[res.Primary]
	parts := []string{fmt.Sprintf("base %s=%d", res.Primary, score)}
	for _, m := range e.tables.Modifiers {
		if m.Matches(normalized) {
			score += m.Delta
			opp.Modifiers = append(opp.Modifiers, m.Name)
			parts = append(parts, fmt.Sprintf("%s %+d", m.Name, m.Delta))
		}
	}
	opp.UrgencyScore = clamp(score, 0, 100)
	opp.Level = LevelForScore(opp.UrgencyScore)
	opp.RecommendedAction = e.tables.ActionFor(opp.Level, opp.Stage)
	opp.Explanation = fmt.Sprintf("%s; score %d -> %s; stage %s -> %s",
		strings.Join(parts, ", "), opp.UrgencyScore, opp.Level, opp.Stage, opp.RecommendedAction)

	span.SetAttributes(
		attribute.String("opportunity.level", string(opp.Level)),
		attribute.String("opportunity.stage", string(opp.Stage)),
		attribute.Int("opportunity.score", opp.UrgencyScore),
	)

	if e.sink != nil && needsReview(res) {
		e.sink.RecordUnknown(ctx, events.UnknownIntent{
			TenantID:   in.TenantID,
			Text:       in.Text,
			Primary:    string(res.Primary),
			Strength:   string(res.Strength),
			Signals:    signalIDs(res.Signals),
			Confidence: res.Confidence,
			CreatedAt:  e.now().UTC(),
		})
	}
	return opp
}

// stage applies the table, then forces REGRET when regret or hostility is
// present among the primary or supporting intents.
func (e *Engine) stage(res *intent.Result) Stage {
	forced := func(in intent.Intent) bool {
		return in == intent.IntentPostPurchaseRegret || in == intent.IntentHostile
	}
	if forced(res.Primary) {
		return StageRegret
	}
	for _, s := range res.Supporting {
		if forced(s) {
			return StageRegret
		}
	}
	return e.tables.StageFor(res.Primary)
}

// needsReview selects classifications worth feeding back into lexicon tuning:
// UNKNOWN results, augmented results, and texts that matched nothing.
func needsReview(res *intent.Result) bool {
	switch {
	case res.Primary == intent.IntentUnknown:
		return true
	case res.Confidence < intent.ConfidenceDeterministic:
		return true
	case len(res.Signals) == 0:
		return true
	}
	return false
}

func signalIDs(signals []intent.DetectedSignal) []string {
	ids := make([]string, 0, len(signals))
	for _, s := range signals {
		ids = append(ids, s.ID)
	}
	return ids
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
