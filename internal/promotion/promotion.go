// Package promotion aggregates opportunities across events from the same
// actor and decides which ones surface for action.
package promotion

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	engageotel "github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/otel"
	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/opportunity"
)

var tracer = engageotel.Tracer("github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/promotion")

// Status is the promotion decision.
type Status string

const (
	StatusPromoted   Status = "PROMOTED"
	StatusDeferred   Status = "DEFERRED"
	StatusSuppressed Status = "SUPPRESSED"
)

// Signal is one scored engagement.
type Signal struct {
	ID          string                  `json:"id"`
	TenantID    string                  `json:"tenant_id"`
	ActorID     string                  `json:"actor_id"`
	VideoID     string                  `json:"video_id"`
	Platform    string                  `json:"platform"`
	Timestamp   time.Time               `json:"timestamp"`
	Opportunity opportunity.Opportunity `json:"opportunity"`
}

// AggregationContext summarizes the actor's recent history.
type AggregationContext struct {
	RepeatedUser        bool `json:"repeated_user"`
	RepeatedVideo       bool `json:"repeated_video"`
	IntentEscalation    bool `json:"intent_escalation"`
	FrequencyScore      int  `json:"frequency_score"`
	RelatedSignalsCount int  `json:"related_signals_count"`
}

// Promoted is the decision for one signal.
type Promoted struct {
	PriorityScore     int                `json:"priority_score"`
	Status            Status             `json:"status"`
	Reason            string             `json:"reason"`
	RecommendedAction opportunity.Action `json:"recommended_action"`
	Aggregation       AggregationContext `json:"aggregation"`
	Signal            Signal             `json:"signal"`
}

// Config holds the scoring constants.
type Config struct {
	Window            time.Duration
	UrgencyWeight     float64
	RepetitionBonus   int
	EscalationBonus   int
	FrequencyWeight   int
	SpamThreshold     int
	SpamPenalty       int
	PromoteThreshold  int
	SuppressThreshold int
	AlwaysSuppressed  []opportunity.Level
}

// DefaultConfig returns the standard scoring constants.
func DefaultConfig() Config {
	return Config{
		Window:            15 * time.Minute,
		UrgencyWeight:     0.6,
		RepetitionBonus:   10,
		EscalationBonus:   20,
		FrequencyWeight:   5,
		SpamThreshold:     5,
		SpamPenalty:       30,
		PromoteThreshold:  80,
		SuppressThreshold: 50,
		AlwaysSuppressed:  []opportunity.Level{opportunity.LevelIgnore},
	}
}

// Engine scores signals against history. It holds no state; see Tracker for
// the live, stateful variant.
type Engine struct {
	cfg Config
}

// NewEngine creates an engine. Zero Window selects DefaultConfig.
func NewEngine(cfg Config) *Engine {
	if cfg.Window <= 0 {
		cfg = DefaultConfig()
	}
	return &Engine{cfg: cfg}
}

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.cfg }

// ProcessBatch evaluates signals in timestamp order; each processed signal
// becomes history for the ones after it. The result is sorted by priority,
// highest first.
func (e *Engine) ProcessBatch(ctx context.Context, signals []Signal) []Promoted {
	_, span := tracer.Start(ctx, "promotion.process_batch")
	defer span.End()
	span.SetAttributes(attribute.Int("promotion.batch_size", len(signals)))

	sorted := make([]Signal, len(signals))
	copy(sorted, signals)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })

	out := make([]Promoted, 0, len(sorted))
	processed := make([]Signal, 0, len(sorted))
	for _, s := range sorted {
		if s.ID == "" {
			s.ID = "sig_" + uuid.New().String()
		}
		out = append(out, e.Evaluate(s, e.relevant(s, processed)))
		processed = append(processed, s)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].PriorityScore > out[j].PriorityScore })
	return out
}

// relevant returns history from the same tenant and actor within the window
// ending at s.Timestamp.
func (e *Engine) relevant(s Signal, history []Signal) []Signal {
	cutoff := s.Timestamp.Add(-e.cfg.Window)
	var out []Signal
	for _, h := range history {
		if h.ID == s.ID || h.TenantID != s.TenantID || h.ActorID != s.ActorID {
			continue
		}
		if h.Timestamp.Before(cutoff) || h.Timestamp.After(s.Timestamp) {
			continue
		}
		out = append(out, h)
	}
	return out
}

// Aggregate computes the aggregation context of s over its relevant history.
func (e *Engine) Aggregate(s Signal, history []Signal) AggregationContext {
	agg := AggregationContext{
		RepeatedUser:        len(history) > 0,
		FrequencyScore:      len(history) + 1,
		RelatedSignalsCount: len(history),
	}
	late := s.Opportunity.Stage == opportunity.StageDecision || s.Opportunity.Stage == opportunity.StageRegret
	for _, h := range history {
		if s.VideoID != "" && h.VideoID == s.VideoID {
			agg.RepeatedVideo = true
		}
		early := h.Opportunity.Stage == opportunity.StageConsideration || h.Opportunity.Stage == opportunity.StageAwareness
		if late && early {
			agg.IntentEscalation = true
		}
	}
	return agg
}

// Evaluate scores s against history and decides its status.
func (e *Engine) Evaluate(s Signal, history []Signal) Promoted {
	agg := e.Aggregate(s, history)
	score, parts := e.score(s, agg)

	p := Promoted{
		PriorityScore:     score,
		Aggregation:       agg,
		Signal:            s,
		RecommendedAction: s.Opportunity.RecommendedAction,
	}
	detail := strings.Join(parts, ", ")
	switch {
	case e.alwaysSuppressed(s.Opportunity.Level):
		p.Status = StatusSuppressed
		p.Reason = fmt.Sprintf("level %s is always suppressed", s.Opportunity.Level)
	case s.Opportunity.Stage == opportunity.StageRegret:
		p.Status = StatusPromoted
		p.Reason = "regret stage bypasses scoring (" + detail + ")"
	case score >= e.cfg.PromoteThreshold:
		p.Status = StatusPromoted
		p.Reason = fmt.Sprintf("score %d >= %d (%s)", score, e.cfg.PromoteThreshold, detail)
	case score <= e.cfg.SuppressThreshold:
		p.Status = StatusSuppressed
		p.Reason = fmt.Sprintf("score %d <= %d (%s)", score, e.cfg.SuppressThreshold, detail)
	default:
		p.Status = StatusDeferred
		p.Reason = fmt.Sprintf("score %d between thresholds (%s)", score, detail)
	}
	return p
}

func (e *Engine) score(s Signal, agg AggregationContext) (int, []string) {
	base := float64(s.Opportunity.UrgencyScore) * e.cfg.UrgencyWeight
	total := base
	parts := []string{fmt.Sprintf("urgency %.1f", base)}
	if agg.RepeatedUser {
		total += float64(e.cfg.RepetitionBonus)
		parts = append(parts, fmt.Sprintf("repeat +%d", e.cfg.RepetitionBonus))
	}
	if agg.IntentEscalation {
		total += float64(e.cfg.EscalationBonus)
		parts = append(parts, fmt.Sprintf("escalation +%d", e.cfg.EscalationBonus))
	}
	freq := agg.FrequencyScore * e.cfg.FrequencyWeight
	total += float64(freq)
	parts = append(parts, fmt.Sprintf("frequency %d x %d", agg.FrequencyScore, e.cfg.FrequencyWeight))
	if agg.FrequencyScore > e.cfg.SpamThreshold {
		total -= float64(e.cfg.SpamPenalty)
		parts = append(parts, fmt.Sprintf("spam -%d", e.cfg.SpamPenalty))
	}

	score := int(total + 0.5)
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score, parts
}

func (e *Engine) alwaysSuppressed(l opportunity.Level) bool {
	for _, s := range e.cfg.AlwaysSuppressed {
		if s == l {
			return true
		}
	}
	return false
}
