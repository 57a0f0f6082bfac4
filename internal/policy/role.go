package policy

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/intent"
)

// MinAlternativeConfidence is the classification confidence required before
// the alternative-provider voice is considered.
const MinAlternativeConfidence = 0.85

var salesIntents = map[intent.Intent]bool{
	intent.IntentProductInquiry:     true,
	intent.IntentLatentPurchase:     true,
	intent.IntentFitSuitability:     true,
	intent.IntentProblemSolution:    true,
	intent.IntentPostPurchaseRegret: true,
}

// RoleInput carries everything the resolver looks at.
type RoleInput struct {
	Context        ContentContext
	Aggressiveness Aggressiveness
	Intent         intent.Intent
	Strength       intent.Strength
	Confidence     float64
}

// RoleResult is the resolved voice with its reason.
type RoleResult struct {
	Role   Role   `json:"role"`
	Reason string `json:"reason"`
}

// ResolveRole picks the voice. Owned content always speaks as OWNER; anything
// else is NEUTRAL_HELPER unless every alternative-provider condition holds.
func ResolveRole(ctx context.Context, in RoleInput) RoleResult {
	_, span := tracer.Start(ctx, "policy.role")
	defer span.End()

	res := resolveRole(in)
	span.SetAttributes(attribute.String("role", string(res.Role)))
	return res
}

func resolveRole(in RoleInput) RoleResult {
	if in.Context.IsOwned() {
		return RoleResult{Role: RoleOwner, Reason: "owned_content"}
	}
	switch {
	case in.Aggressiveness == "" || in.Aggressiveness == AggressivenessConservative:
		return RoleResult{Role: RoleNeutralHelper, Reason: "conservative_tenant"}
	case !in.Strength.AtLeastHigh():
		return RoleResult{Role: RoleNeutralHelper, Reason: "strength_below_high"}
	case !salesIntents[in.Intent]:
		return RoleResult{Role: RoleNeutralHelper, Reason: "not_sales_intent"}
	case in.Confidence < MinAlternativeConfidence:
		return RoleResult{Role: RoleNeutralHelper, Reason: "confidence_below_threshold"}
	}
	return RoleResult{Role: RoleAlternativeProvider, Reason: "alternative_provider_eligible"}
}
