// Package opportunity scores a classified interaction: buying stage, urgency,
// level and the recommended action, all driven by versioned rule tables.
package opportunity

import (
	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/intent"
)

// Level is the urgency band.
type Level string

const (
	LevelCritical Level = "CRITICAL"
	LevelHigh     Level = "HIGH"
	LevelMedium   Level = "MEDIUM"
	LevelLow      Level = "LOW"
	LevelIgnore   Level = "IGNORE"
)

// LevelForScore maps a clamped urgency score to its level. Thresholds are
// strict: 80 is HIGH, 81 is CRITICAL.
func LevelForScore(score int) Level {
	switch {
	case score > 80:
		return LevelCritical
	case score > 60:
		return LevelHigh
	case score > 40:
		return LevelMedium
	case score > 20:
		return LevelLow
	default:
		return LevelIgnore
	}
}

// Stage is the buying stage.
type Stage string

const (
	StageAwareness     Stage = "AWARENESS"
	StageConsideration Stage = "CONSIDERATION"
	StageDecision      Stage = "DECISION"
	StageRegret        Stage = "REGRET"
)

// Action is the recommended response channel.
type Action string

const (
	ActionIgnore      Action = "IGNORE"
	ActionPublicReply Action = "PUBLIC_REPLY"
	ActionDM          Action = "DM"
	ActionEscalate    Action = "ESCALATE"
)

// Opportunity is the scored assessment of one interaction.
type Opportunity struct {
	Level             Level           `json:"level"`
	Stage             Stage           `json:"stage"`
	UrgencyScore      int             `json:"urgency_score"`
	PrimaryIntent     intent.Intent   `json:"primary_intent"`
	SupportingIntents []intent.Intent `json:"supporting_intents,omitempty"`
	RecommendedAction Action          `json:"recommended_action"`
	Modifiers         []string        `json:"modifiers,omitempty"`
	Explanation       string          `json:"explanation"`
}
