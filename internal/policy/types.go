// Package policy holds the deterministic decision tables that sit between
// classification and generation: the domain policy filter, the content
// context classifier, the role resolver and the OPA-backed safety gate.
package policy

import (
	engageotel "github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/otel"
)

var tracer = engageotel.Tracer("github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/policy")

// Strategy is the response behaviour chosen before channel and safety adjustment.
type Strategy string

const (
	StrategyAnswer        Strategy = "ANSWER"
	StrategySilentCapture Strategy = "SILENT_CAPTURE"
	StrategyObserveOnly   Strategy = "OBSERVE_ONLY"
	StrategyIgnore        Strategy = "IGNORE"
)

// GeneratesReply reports whether the strategy produces drafted text.
func (s Strategy) GeneratesReply() bool {
	return s == StrategyAnswer
}

// ContentContext says whose content the interaction happened on.
type ContentContext string

const (
	ContextOwned      ContentContext = "OWNED_CONTENT"
	ContextCompetitor ContentContext = "COMPETITOR_CONTENT"
	ContextUnknown    ContentContext = "UNKNOWN"
)

// IsOwned is true only for verified owned content.
func (c ContentContext) IsOwned() bool {
	return c == ContextOwned
}

// Role is the voice the system may speak in.
type Role string

const (
	RoleOwner               Role = "OWNER"
	RoleNeutralHelper       Role = "NEUTRAL_HELPER"
	RoleAlternativeProvider Role = "ALTERNATIVE_PROVIDER"
)

// Aggressiveness is the tenant's appetite for speaking as an alternative provider.
type Aggressiveness string

const (
	AggressivenessConservative Aggressiveness = "CONSERVATIVE"
	AggressivenessBalanced     Aggressiveness = "BALANCED"
	AggressivenessAggressive   Aggressiveness = "AGGRESSIVE"
)

// TemplateCategory classifies reply templates for the safety gate.
type TemplateCategory string

const (
	TemplatePromotional         TemplateCategory = "PROMOTIONAL"
	TemplateAlternativeProvider TemplateCategory = "ALTERNATIVE_PROVIDER"
	TemplateInformational       TemplateCategory = "INFORMATIONAL"
	TemplateEmpathy             TemplateCategory = "EMPATHY"
	TemplateInternal            TemplateCategory = "INTERNAL"
)

// TemplateCategoryForRole is the category of a generated reply spoken in role.
func TemplateCategoryForRole(r Role) TemplateCategory {
	if r == RoleAlternativeProvider {
		return TemplateAlternativeProvider
	}
	return TemplateInformational
}
