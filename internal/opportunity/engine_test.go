package opportunity

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/events"
	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/intent"
)

func defaultEngine(t *testing.T, sink Sink) *Engine {
	t.Helper()
	tables, err := DefaultTables()
	require.NoError(t, err)
	return NewEngine(tables, sink)
}

type recordingSink struct {
	mu   sync.Mutex
	recs []events.UnknownIntent
}

func (s *recordingSink) RecordUnknown(_ context.Context, u events.UnknownIntent) {
	s.mu.Lock()
	s.recs = append(s.recs, u)
	s.mu.Unlock()
}

func result(primary intent.Intent, supporting ...intent.Intent) *intent.Result {
	return &intent.Result{
		Primary:    primary,
		Strength:   intent.StrengthHigh,
		Supporting: supporting,
		Confidence: intent.ConfidenceDeterministic,
		Signals:    []intent.DetectedSignal{intent.NewSignal(intent.Category("PRODUCT_REF"), "serum", false)},
	}
}

func TestLevelForScore(t *testing.T) {
	tests := []struct {
		score int
		want  Level
	}{
		{100, LevelCritical},
		{81, LevelCritical},
		{80, LevelHigh},
		{61, LevelHigh},
		{60, LevelMedium},
		{41, LevelMedium},
		{40, LevelLow},
		{21, LevelLow},
		{20, LevelIgnore},
		{0, LevelIgnore},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LevelForScore(tt.score), "score %d", tt.score)
	}
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		res        *intent.Result
		wantScore  int
		wantLevel  Level
		wantStage  Stage
		wantAction Action
		wantMods   []string
	}{
		{
			name:       "plain inquiry",
			text:       "where is this serum from?",
			res:        result(intent.IntentProductInquiry),
			wantScore:  55,
			wantLevel:  LevelMedium,
			wantStage:  StageConsideration,
			wantAction: ActionPublicReply,
		},
		{
			name:       "comparison and urgency reach exactly 80",
			text:       "need it asap, this vs the other one?",
			res:        result(intent.IntentProductInquiry),
			wantScore:  80,
			wantLevel:  LevelHigh,
			wantStage:  StageConsideration,
			wantAction: ActionPublicReply,
			wantMods:   []string{"comparison", "urgency"},
		},
		{
			name:       "regret with urgency is critical and escalates",
			text:       "it broke, want a refund asap vs replacement",
			res:        result(intent.IntentPostPurchaseRegret),
			wantScore:  95,
			wantLevel:  LevelCritical,
			wantStage:  StageRegret,
			wantAction: ActionEscalate,
			wantMods:   []string{"comparison", "urgency"},
		},
		{
			name:       "latent purchase with urgency is high dm",
			text:       "would buy this today if it came in blue",
			res:        result(intent.IntentLatentPurchase),
			wantScore:  80,
			wantLevel:  LevelHigh,
			wantStage:  StageDecision,
			wantAction: ActionDM,
			wantMods:   []string{"urgency"},
		},
		{
			name:       "hesitation clamps at zero",
			text:       "hmm not sure",
			res:        result(intent.IntentNoise),
			wantScore:  0,
			wantLevel:  LevelIgnore,
			wantStage:  StageAwareness,
			wantAction: ActionIgnore,
			wantMods:   []string{"hesitation"},
		},
		{
			name:       "hostile supporting forces regret stage",
			text:       "where is this from, looks fake",
			res:        result(intent.IntentProductInquiry, intent.IntentHostile),
			wantScore:  55,
			wantLevel:  LevelMedium,
			wantStage:  StageRegret,
			wantAction: ActionDM,
		},
		{
			name:       "hostile primary maps to regret",
			text:       "scam",
			res:        result(intent.IntentHostile),
			wantScore:  30,
			wantLevel:  LevelLow,
			wantStage:  StageRegret,
			wantAction: ActionPublicReply,
		},
	}
	e := defaultEngine(t, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opp := e.Evaluate(context.Background(), Input{Text: tt.text, Result: tt.res})
			assert.Equal(t, tt.wantScore, opp.UrgencyScore)
			assert.Equal(t, tt.wantLevel, opp.Level)
			assert.Equal(t, tt.wantStage, opp.Stage)
			assert.Equal(t, tt.wantAction, opp.RecommendedAction)
			assert.Equal(t, tt.wantMods, opp.Modifiers)
			assert.Equal(t, tt.res.Primary, opp.PrimaryIntent)
			assert.NotEmpty(t, opp.Explanation)
		})
	}
}

func TestEvaluate_ModifierMatchesWholeWords(t *testing.T) {
	e := defaultEngine(t, nil)
	// "vs" must not match inside "canvas", "today" must match as a word.
	opp := e.Evaluate(context.Background(), Input{Text: "canvas bag", Result: result(intent.IntentProductInquiry)})
	assert.Empty(t, opp.Modifiers)
}

func TestEvaluate_FeedsSinkForUnknownAndUnmatched(t *testing.T) {
	sink := &recordingSink{}
	e := defaultEngine(t, sink)
	ctx := context.Background()

	e.Evaluate(ctx, Input{TenantID: "acme", Text: "that shade though", Result: &intent.Result{
		Primary: intent.IntentUnknown, Strength: intent.StrengthLow, Confidence: 1,
		Signals: []intent.DetectedSignal{intent.NewSignal("ATTRIBUTE", "shade", false)},
	}})
	e.Evaluate(ctx, Input{TenantID: "acme", Text: "zzz", Result: &intent.Result{
		Primary: intent.IntentNoise, Strength: intent.StrengthNone, Confidence: 1,
	}})
	e.Evaluate(ctx, Input{TenantID: "acme", Text: "where is this serum from?", Result: result(intent.IntentProductInquiry)})

	require.Len(t, sink.recs, 2)
	assert.Equal(t, "UNKNOWN", sink.recs[0].Primary)
	assert.Equal(t, []string{"ATTRIBUTE:shade"}, sink.recs[0].Signals)
	assert.Equal(t, "acme", sink.recs[0].TenantID)
	assert.Equal(t, "NOISE", sink.recs[1].Primary)
}

func TestParseTables_Errors(t *testing.T) {
	_, err := ParseTables([]byte("stages: ["), []byte("policy: {}"))
	assert.Error(t, err)
	_, err = ParseTables([]byte("version: x"), []byte("policy: ["))
	assert.Error(t, err)
}

func TestTables_Fallbacks(t *testing.T) {
	tables, err := ParseTables([]byte("version: x\n"), []byte("version: y\npolicy: {}\n"))
	require.NoError(t, err)
	assert.Equal(t, StageAwareness, tables.StageFor(intent.IntentProductInquiry))
	assert.Equal(t, ActionIgnore, tables.ActionFor(LevelCritical, StageDecision))
}
