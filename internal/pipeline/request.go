// Package pipeline is the canonical entry point: one request in, one
// governed decision out.
package pipeline

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/action"
	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/brain"
	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/control"
	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/intent"
	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/opportunity"
	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/policy"
	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/promotion"
	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/safety"
)

// Version is the frozen contract tag.
const Version = "v1"

const (
	maxQueryLength  = 5000
	maxRegeneration = 10
	maxHistory      = 20
)

// ErrInvalidRequest is returned for malformed requests before any stage runs.
var ErrInvalidRequest = errors.New("invalid request")

// EventKind distinguishes comments from passive views.
type EventKind string

const (
	EventComment EventKind = "comment"
	EventView    EventKind = "view"
)

// Event is the raw interaction metadata.
type Event struct {
	Platform  string    `json:"platform"`
	VideoID   string    `json:"video_id"`
	AuthorID  string    `json:"author_id"`
	CommentID string    `json:"comment_id,omitempty"`
	AccountID string    `json:"account_id,omitempty"`
	Kind      EventKind `json:"kind,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// Context is the request's context bag.
type Context struct {
	Domain         string                 `json:"domain,omitempty"`
	Flow           string                 `json:"flow,omitempty"`
	Event          Event                  `json:"event"`
	Ownership      *policy.OwnershipProof `json:"ownership,omitempty"`
	CompetitorHint bool                   `json:"competitor_hint,omitempty"`
	Regeneration   int                    `json:"regeneration,omitempty"`
	History        []string               `json:"history,omitempty"`
}

// Request is the canonical input.
type Request struct {
	Version  string  `json:"version"`
	Channel  string  `json:"channel"`
	Query    string  `json:"query"`
	Context  Context `json:"context"`
	TenantID string  `json:"tenant_id,omitempty"`
	PlanID   string  `json:"plan_id,omitempty"`
}

// Validate rejects malformed requests. It never coerces values.
func (r *Request) Validate() error {
	var problems []string
	if r.Version != Version {
		problems = append(problems, fmt.Sprintf("version must be %q", Version))
	}
	if strings.TrimSpace(r.Channel) == "" {
		problems = append(problems, "channel is required")
	}
	if strings.TrimSpace(r.TenantID) == "" {
		problems = append(problems, "tenant_id is required")
	}
	ev := r.Context.Event
	switch ev.Kind {
	case "", EventComment:
		if strings.TrimSpace(r.Query) == "" {
			problems = append(problems, "query is required for comments")
		}
	case EventView:
	default:
		problems = append(problems, fmt.Sprintf("unknown event kind %q", ev.Kind))
	}
	if utf8.RuneCountInString(r.Query) > maxQueryLength {
		problems = append(problems, fmt.Sprintf("query exceeds %d characters", maxQueryLength))
	}
	if ev.Platform == "" {
		problems = append(problems, "context.event.platform is required")
	}
	if ev.VideoID == "" {
		problems = append(problems, "context.event.video_id is required")
	}
	if ev.AuthorID == "" {
		problems = append(problems, "context.event.author_id is required")
	}
	if r.Context.Regeneration < 0 || r.Context.Regeneration > maxRegeneration {
		problems = append(problems, fmt.Sprintf("context.regeneration must be between 0 and %d", maxRegeneration))
	}
	if len(r.Context.History) > maxHistory {
		problems = append(problems, fmt.Sprintf("context.history holds at most %d entries", maxHistory))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidRequest, strings.Join(problems, "; "))
	}
	return nil
}

// Kind is the response category.
type Kind string

const (
	KindAnswer    Kind = "answer"
	KindRecommend Kind = "recommend"
	KindIgnore    Kind = "ignore"
	KindError     Kind = "error"
)

// Payload carries the decision artefacts.
type Payload struct {
	Text         string                   `json:"text,omitempty"`
	Strategy     policy.Strategy          `json:"strategy,omitempty"`
	Intent       intent.Intent            `json:"intent,omitempty"`
	Strength     intent.Strength          `json:"strength,omitempty"`
	Opportunity  *opportunity.Opportunity `json:"opportunity,omitempty"`
	Promotion    *promotion.Promoted      `json:"promotion,omitempty"`
	Plan         *action.Plan             `json:"plan,omitempty"`
	ActionStatus control.Status           `json:"action_status,omitempty"`
}

// Telemetry is operator-facing detail about how the decision was made.
type Telemetry struct {
	RequestID      string            `json:"request_id"`
	LatencyMS      int64             `json:"latency_ms"`
	Model          string            `json:"model,omitempty"`
	CacheHit       bool              `json:"cache_hit"`
	LexiconVersion string            `json:"lexicon_version,omitempty"`
	PromptVersion  string            `json:"prompt_version,omitempty"`
	PlanID         string            `json:"plan_id,omitempty"`
	Trace          []brain.TraceStep `json:"trace,omitempty"`
	Warnings       []string          `json:"warnings,omitempty"`
}

// PolicyDecision explains every block or downgrade with a rule id.
type PolicyDecision struct {
	Allowed   bool                   `json:"allowed"`
	Strategy  policy.Strategy        `json:"strategy,omitempty"`
	RuleID    string                 `json:"rule_id,omitempty"`
	Reason    string                 `json:"reason,omitempty"`
	Domain    *policy.DomainDecision `json:"domain,omitempty"`
	Context   *policy.ContextResult  `json:"context,omitempty"`
	Role      *policy.RoleResult     `json:"role,omitempty"`
	Gate      *policy.GateResult     `json:"gate,omitempty"`
	PreCheck  *safety.CheckResult    `json:"pre_check,omitempty"`
	PostCheck *safety.CheckResult    `json:"post_check,omitempty"`
	// SendCheck is the rate check run on a reply plan built from a
	// non-answer strategy.
	SendCheck *safety.CheckResult `json:"send_check,omitempty"`
	// BlockedByPlan marks events stored without a suggestion because the
	// tenant's plan quota was exhausted.
	BlockedByPlan bool `json:"blocked_by_plan,omitempty"`
}

// Response is the canonical output.
type Response struct {
	Version        string          `json:"version"`
	Kind           Kind            `json:"kind"`
	Payload        *Payload        `json:"payload,omitempty"`
	Citations      []string        `json:"citations,omitempty"`
	Confidence     float64         `json:"confidence"`
	Telemetry      Telemetry       `json:"telemetry"`
	PolicyDecision *PolicyDecision `json:"policy_decision,omitempty"`
	Error          string          `json:"error,omitempty"`
}

// ErrorResponse wraps err in the canonical shape.
func ErrorResponse(requestID string, err error) *Response {
	return &Response{
		Version:   Version,
		Kind:      KindError,
		Telemetry: Telemetry{RequestID: requestID},
		Error:     err.Error(),
	}
}
