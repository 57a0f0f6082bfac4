// Package action turns a promotion decision into a channel-aware action plan.
// Every plan requires human approval.
package action

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/intent"
	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/opportunity"
	engageotel "github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/otel"
	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/policy"
	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/promotion"
)

var tracer = engageotel.Tracer("github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/action")

// Type is the kind of action proposed.
type Type string

const (
	TypeNoAction    Type = "NO_ACTION"
	TypePublicReply Type = "PUBLIC_REPLY"
	TypeDM          Type = "DM"
	TypeEscalate    Type = "ESCALATE"
)

// SendsMessage reports whether the action carries a message.
func (t Type) SendsMessage() bool {
	return t == TypePublicReply || t == TypeDM || t == TypeEscalate
}

// Replies reports whether the action sends a message to the commenter.
func (t Type) Replies() bool {
	return t == TypePublicReply || t == TypeDM
}

// Channel is where the message would go.
type Channel string

const (
	ChannelNone          Channel = "NONE"
	ChannelPublicComment Channel = "PUBLIC_COMMENT"
	ChannelDirectMessage Channel = "DIRECT_MESSAGE"
	ChannelInternal      Channel = "INTERNAL"
)

// Plan is a proposed action awaiting human approval.
type Plan struct {
	ID                    string                  `json:"id"`
	TenantID              string                  `json:"tenant_id"`
	AccountID             string                  `json:"account_id,omitempty"`
	Platform              string                  `json:"platform"`
	ActorID               string                  `json:"actor_id"`
	VideoID               string                  `json:"video_id"`
	CommentID             string                  `json:"comment_id,omitempty"`
	ActionType            Type                    `json:"action_type"`
	Channel               Channel                 `json:"channel"`
	Priority              int                     `json:"priority"`
	Level                 opportunity.Level       `json:"level"`
	Stage                 opportunity.Stage       `json:"stage"`
	PrimaryIntent         intent.Intent           `json:"primary_intent"`
	TemplateID            string                  `json:"template_id,omitempty"`
	TemplateCategory      policy.TemplateCategory `json:"template_category,omitempty"`
	DraftMessage          string                  `json:"draft_message,omitempty"`
	RequiresHumanApproval bool                    `json:"requires_human_approval"`
	VetoRuleID            string                  `json:"veto_rule_id,omitempty"`
	Reasoning             []string                `json:"reasoning"`
	CreatedAt             time.Time               `json:"created_at"`
}

// Veto turns the plan into NO_ACTION because a safety rule fired at send time.
func (p *Plan) Veto(ruleID, reason string) {
	p.ActionType = TypeNoAction
	p.Channel = ChannelNone
	p.TemplateID = ""
	p.TemplateCategory = ""
	p.DraftMessage = ""
	p.VetoRuleID = ruleID
	p.Reasoning = append(p.Reasoning, fmt.Sprintf("safety %s: %s", ruleID, reason))
}

// Input is everything the orchestrator needs for one event.
type Input struct {
	Promoted  promotion.Promoted
	Intent    intent.Intent
	Context   policy.ContentContext
	Role      policy.Role
	AccountID string
	CommentID string
	Author    string
	Brand     string
	// Draft is the generated reply text, if any.
	Draft string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithEscalationStages replaces the stages that always escalate (default REGRET).
func WithEscalationStages(stages ...opportunity.Stage) Option {
	return func(o *Orchestrator) {
		o.escalate = make(map[opportunity.Stage]bool, len(stages))
		for _, s := range stages {
			o.escalate[s] = true
		}
	}
}

// Orchestrator routes promoted signals to plans.
type Orchestrator struct {
	channels  *Channels
	templates *Templates
	gate      *policy.Gate
	escalate  map[opportunity.Stage]bool
	now       func() time.Time
}

// NewOrchestrator wires the tables and the safety gate. gate may be nil only
// in tests that never select a template.
func NewOrchestrator(channels *Channels, templates *Templates, gate *policy.Gate, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		channels:  channels,
		templates: templates,
		gate:      gate,
		escalate:  map[opportunity.Stage]bool{opportunity.StageRegret: true},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Plan builds the action plan for in. RequiresHumanApproval is always true.
func (o *Orchestrator) Plan(ctx context.Context, in Input) *Plan {
	ctx, span := tracer.Start(ctx, "action.plan")
	defer span.End()

	p := in.Promoted
	sig := p.Signal
	plan := &Plan{
		ID:                    "plan_" + uuid.New().String(),
		TenantID:              sig.TenantID,
		AccountID:             in.AccountID,
		Platform:              sig.Platform,
		ActorID:               sig.ActorID,
		VideoID:               sig.VideoID,
		CommentID:             in.CommentID,
		Priority:              p.PriorityScore,
		Level:                 sig.Opportunity.Level,
		Stage:                 sig.Opportunity.Stage,
		PrimaryIntent:         in.Intent,
		RequiresHumanApproval: true,
		CreatedAt:             o.now().UTC(),
	}

	t, why := o.route(p)
	plan.Reasoning = append(plan.Reasoning, why)
	t, why = o.constrain(t, sig.Platform)
	if why != "" {
		plan.Reasoning = append(plan.Reasoning, why)
	}
	plan.ActionType = t
	plan.Channel = channelFor(t)

	if t.SendsMessage() {
		o.attachTemplate(ctx, plan, in)
	}

	span.SetAttributes(
		engageotel.EngagePlanID.String(plan.ID),
		attribute.String("action.type", string(plan.ActionType)),
		attribute.String("action.template", plan.TemplateID),
	)
	return plan
}

// route applies the routing precedence.
func (o *Orchestrator) route(p promotion.Promoted) (Type, string) {
	opp := p.Signal.Opportunity
	switch {
	case p.Status == promotion.StatusSuppressed || p.Status == promotion.StatusDeferred:
		return TypeNoAction, fmt.Sprintf("promotion status %s", p.Status)
	case o.escalate[opp.Stage]:
		return TypeEscalate, fmt.Sprintf("stage %s requires escalation", opp.Stage)
	}
	switch opp.Level {
	case opportunity.LevelCritical:
		t := fromRecommended(opp.RecommendedAction)
		return t, fmt.Sprintf("critical level follows recommended %s", opp.RecommendedAction)
	case opportunity.LevelHigh, opportunity.LevelMedium:
		if opp.RecommendedAction == opportunity.ActionDM {
			return TypeDM, fmt.Sprintf("%s level with DM recommended", opp.Level)
		}
		return TypePublicReply, fmt.Sprintf("%s level defaults to public reply", opp.Level)
	case opportunity.LevelLow:
		return TypePublicReply, "low level defaults to public reply"
	default:
		return TypeNoAction, fmt.Sprintf("level %s takes no action", opp.Level)
	}
}

func fromRecommended(a opportunity.Action) Type {
	switch a {
	case opportunity.ActionPublicReply:
		return TypePublicReply
	case opportunity.ActionDM:
		return TypeDM
	case opportunity.ActionEscalate:
		return TypeEscalate
	default:
		return TypeNoAction
	}
}

// constrain applies the platform's channel rules. Unknown platforms use the
// default rule, which only permits public replies.
func (o *Orchestrator) constrain(t Type, platform string) (Type, string) {
	rule, known := o.channels.Rule(platform)
	prefix := platform
	if !known {
		prefix = fmt.Sprintf("unknown platform %q (default rules)", platform)
	}
	switch t {
	case TypeDM:
		if rule.DMAllowed {
			return t, ""
		}
		if rule.PublicReplyAllowed {
			return TypePublicReply, prefix + ": DM not allowed, downgraded to public reply"
		}
		return TypeNoAction, prefix + ": no reply channel allowed"
	case TypePublicReply:
		if rule.PublicReplyAllowed {
			return t, ""
		}
		if rule.DMAllowed {
			return TypeDM, prefix + ": public replies not allowed, switched to DM"
		}
		return TypeNoAction, prefix + ": no reply channel allowed"
	}
	return t, ""
}

func channelFor(t Type) Channel {
	switch t {
	case TypePublicReply:
		return ChannelPublicComment
	case TypeDM:
		return ChannelDirectMessage
	case TypeEscalate:
		return ChannelInternal
	default:
		return ChannelNone
	}
}

func (o *Orchestrator) attachTemplate(ctx context.Context, plan *Plan, in Input) {
	var tpl *Template
	if plan.ActionType == TypeEscalate {
		tpl = o.templates.Escalation()
	} else {
		tpl = o.templates.Select(in.Intent, plan.Stage)
	}
	plan.TemplateID = tpl.ID
	plan.TemplateCategory = tpl.Category

	if o.gate != nil {
		gr := o.gate.Check(ctx, policy.GateInput{
			Context:          in.Context,
			Role:             in.Role,
			TemplateCategory: tpl.Category,
		})
		if !gr.Allowed {
			plan.ActionType = TypeNoAction
			plan.Channel = ChannelNone
			plan.Reasoning = append(plan.Reasoning,
				fmt.Sprintf("safety gate vetoed template %s: %s", tpl.ID, strings.Join(gr.Violations, ",")))
			return
		}
	}

	draft, err := tpl.Render(TemplateData{
		Author:   in.Author,
		Platform: plan.Platform,
		Brand:    in.Brand,
		Draft:    in.Draft,
	})
	if err != nil {
		plan.ActionType = TypeNoAction
		plan.Channel = ChannelNone
		plan.Reasoning = append(plan.Reasoning, err.Error())
		return
	}
	if plan.ActionType != TypeEscalate {
		if max := o.channels.MaxLength(plan.Platform); max > 0 && utf8.RuneCountInString(draft) > max {
			draft = truncate(draft, max)
			plan.Reasoning = append(plan.Reasoning, fmt.Sprintf("draft truncated to %d characters", max))
		}
	}
	plan.DraftMessage = draft
	plan.Reasoning = append(plan.Reasoning, "template "+tpl.ID)
}

func truncate(s string, max int) string {
	if max <= 1 {
		return string([]rune(s)[:max])
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:max-1])) + "…"
}
