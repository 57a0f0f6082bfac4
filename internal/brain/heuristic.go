package brain

import (
	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/intent"
)

// Fallback constants identify heuristic responses.
const (
	HeuristicModel      = "heuristic-fallback"
	HeuristicConfidence = 0.5
)

var heuristicReplies = map[intent.Intent]string{
	intent.IntentProductInquiry:     "Thanks for asking! We'll follow up with the details shortly.",
	intent.IntentFitSuitability:     "Great question. It depends on a few details, happy to help you figure it out.",
	intent.IntentProblemSolution:    "Sorry you're dealing with that. A few things usually help, we'll share some tips.",
	intent.IntentLatentPurchase:     "Thanks for the interest! We'll share where you can find it.",
	intent.IntentPostPurchaseRegret: "We're sorry to hear that. Please reach out so we can make it right.",
}

const heuristicDefault = "Thanks for your comment! We'll get back to you soon."

// heuristicReply is the deterministic draft used when generation is unavailable.
func heuristicReply(in intent.Intent) string {
	if r, ok := heuristicReplies[in]; ok {
		return r
	}
	return heuristicDefault
}
