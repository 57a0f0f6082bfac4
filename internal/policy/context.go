package policy

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
)

// OwnershipProof is supplied by the caller after it verified that the tenant
// owns the content. It is never synthesized inside the pipeline.
type OwnershipProof struct {
	Verified  bool   `json:"verified"`
	VideoID   string `json:"video_id"`
	AccountID string `json:"account_id,omitempty"`
}

// ContextInput describes where an interaction happened.
type ContextInput struct {
	VideoID        string
	AccountID      string
	Ownership      *OwnershipProof
	CompetitorHint bool
}

// ContextResult is the classified content context with its reason.
type ContextResult struct {
	Context ContentContext `json:"context"`
	Reason  string         `json:"reason"`
}

// ClassifyContext returns OWNED_CONTENT only for a verified proof that matches
// the video (and the account, when the proof names one). A competitor hint
// yields COMPETITOR_CONTENT; everything else is UNKNOWN.
func ClassifyContext(ctx context.Context, in ContextInput) ContextResult {
	_, span := tracer.Start(ctx, "policy.context")
	defer span.End()

	res := classifyContext(in)
	span.SetAttributes(attribute.String("context", string(res.Context)))
	return res
}

func classifyContext(in ContextInput) ContextResult {
	if p := in.Ownership; p != nil && p.Verified {
		switch {
		case p.VideoID == "" || p.VideoID != in.VideoID:
			return ContextResult{Context: ContextUnknown, Reason: "ownership_video_mismatch"}
		case p.AccountID != "" && p.AccountID != in.AccountID:
			return ContextResult{Context: ContextUnknown, Reason: "ownership_account_mismatch"}
		default:
			return ContextResult{Context: ContextOwned, Reason: "verified_ownership"}
		}
	}
	if in.CompetitorHint {
		return ContextResult{Context: ContextCompetitor, Reason: "competitor_hint"}
	}
	return ContextResult{Context: ContextUnknown, Reason: "no_ownership_proof"}
}
