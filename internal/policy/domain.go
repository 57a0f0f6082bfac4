package policy

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/intent"
)

// Domain policy rule ids.
const (
	RuleDomainPolicy  = "domain_policy"
	RuleDomainBlocked = "domain_blocked"
	RuleSafetyNet     = "safety_net_override"
)

// DomainRule is the table entry for one intent.
type DomainRule struct {
	Allowed  bool
	Strategy Strategy
}

// DomainDecision is the outcome of the domain filter.
type DomainDecision struct {
	Allowed  bool     `json:"allowed"`
	Strategy Strategy `json:"strategy"`
	RuleID   string   `json:"rule_id"`
	Reason   string   `json:"reason"`
	Rescued  bool     `json:"rescued,omitempty"`
}

// DefaultDomainTable maps each intent to its allow/strategy pair.
func DefaultDomainTable() map[intent.Intent]DomainRule {
	return map[intent.Intent]DomainRule{
		intent.IntentProductInquiry:     {Allowed: true, Strategy: StrategyAnswer},
		intent.IntentLatentPurchase:     {Allowed: true, Strategy: StrategySilentCapture},
		intent.IntentPostPurchaseRegret: {Allowed: true, Strategy: StrategySilentCapture},
		intent.IntentProblemSolution:    {Allowed: true, Strategy: StrategySilentCapture},
		intent.IntentFitSuitability:     {Allowed: true, Strategy: StrategySilentCapture},
		intent.IntentUnknown:            {Allowed: true, Strategy: StrategyObserveOnly},
		intent.IntentNoise:              {Allowed: false, Strategy: StrategyIgnore},
		intent.IntentHostile:            {Allowed: false, Strategy: StrategyIgnore},
		intent.IntentSocial:             {Allowed: false, Strategy: StrategyIgnore},
	}
}

// DomainFilter applies the intent table plus the safety net: a blocked intent
// detected at HIGH strength or above is rescued to SILENT_CAPTURE so a
// high-value signal is never dropped.
type DomainFilter struct {
	table map[intent.Intent]DomainRule
	// retainAnswer keeps ANSWER for a rescued intent whose table strategy was
	// ANSWER (only reachable when a tenant blocks an answerable intent).
	retainAnswer bool
}

// DomainOption configures a DomainFilter.
type DomainOption func(*DomainFilter)

// WithRetainAnswerOnRescue keeps ANSWER on rescue instead of downgrading.
func WithRetainAnswerOnRescue(retain bool) DomainOption {
	return func(f *DomainFilter) { f.retainAnswer = retain }
}

// WithBlockedIntents blocks additional intents, e.g. per tenant.
func WithBlockedIntents(intents ...intent.Intent) DomainOption {
	return func(f *DomainFilter) {
		for _, in := range intents {
			rule := f.table[in]
			rule.Allowed = false
			f.table[in] = rule
		}
	}
}

// NewDomainFilter builds a filter over the default table.
func NewDomainFilter(opts ...DomainOption) *DomainFilter {
	f := &DomainFilter{table: DefaultDomainTable()}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// With returns a copy of f with extra options applied. f is not modified.
func (f *DomainFilter) With(opts ...DomainOption) *DomainFilter {
	cp := &DomainFilter{table: make(map[intent.Intent]DomainRule, len(f.table)), retainAnswer: f.retainAnswer}
	for k, v := range f.table {
		cp.table[k] = v
	}
	for _, opt := range opts {
		opt(cp)
	}
	return cp
}

// Decide applies the table to a classification.
func (f *DomainFilter) Decide(ctx context.Context, primary intent.Intent, strength intent.Strength) DomainDecision {
	_, span := tracer.Start(ctx, "policy.domain")
	defer span.End()

	d := f.decide(primary, strength)
	span.SetAttributes(
		attribute.Bool("domain.allowed", d.Allowed),
		attribute.String("domain.strategy", string(d.Strategy)),
		attribute.String("domain.rule_id", d.RuleID),
	)
	return d
}

func (f *DomainFilter) decide(primary intent.Intent, strength intent.Strength) DomainDecision {
	rule, ok := f.table[primary]
	if !ok {
		rule = DomainRule{Allowed: false, Strategy: StrategyIgnore}
	}
	if rule.Allowed {
		return DomainDecision{
			Allowed:  true,
			Strategy: rule.Strategy,
			RuleID:   RuleDomainPolicy,
			Reason:   fmt.Sprintf("%s allowed with %s", primary, rule.Strategy),
		}
	}

	if strength.AtLeastHigh() {
		strategy := StrategySilentCapture
		if f.retainAnswer && rule.Strategy == StrategyAnswer {
			strategy = StrategyAnswer
		}
		return DomainDecision{
			Allowed:  true,
			Strategy: strategy,
			RuleID:   RuleSafetyNet,
			Reason:   fmt.Sprintf("%s blocked by policy but strength %s rescued to %s", primary, strength, strategy),
			Rescued:  true,
		}
	}

	return DomainDecision{
		Allowed:  false,
		Strategy: StrategyIgnore,
		RuleID:   RuleDomainBlocked,
		Reason:   fmt.Sprintf("%s blocked by domain policy", primary),
	}
}
