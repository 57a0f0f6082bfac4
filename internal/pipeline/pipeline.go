package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/action"
	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/brain"
	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/control"
	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/events"
	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/opportunity"
	engageotel "github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/otel"
	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/policy"
	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/promotion"
	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/safety"
	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/tenant"
)

var tracer = engageotel.Tracer("github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/pipeline")

// Rule ids reported by the pipeline itself.
const (
	RuleDailyEventLimit      = "daily_event_limit"
	RuleDailySuggestionLimit = "daily_suggestion_limit"
	RuleQuotaUnavailable     = "quota_unavailable"
	RuleViewEvent            = "view_event"
	RuleSafetyGate           = "safety_gate"
)

// Tenants is the tenant directory the pipeline needs.
type Tenants interface {
	tenant.Provider
	ValidateRequest(ctx context.Context, tenantID string) error
	CheckQuota(ctx context.Context, tenantID string) error
}

// Recorder persists ingested events and suggestions.
type Recorder interface {
	Record(ctx context.Context, r events.Record) error
}

// Decider is the brain engine.
type Decider interface {
	Decide(ctx context.Context, req *brain.Request) (*brain.Response, error)
}

// SendGuard applies cooldown, caps and burst limits to a planned reply.
type SendGuard interface {
	PreCheck(ctx context.Context, target safety.Target, strategy policy.Strategy) safety.CheckResult
}

// Deps are the pipeline's collaborators. All are required.
type Deps struct {
	Tenants     Tenants
	Events      Recorder
	Brain       Decider
	Safety      SendGuard
	Opportunity *opportunity.Engine
	Tracker     *promotion.Tracker
	Actions     *action.Orchestrator
	Control     *control.Orchestrator
	Now         func() time.Time
}

// Pipeline runs one request through every stage.
type Pipeline struct {
	d Deps
}

// New validates deps and returns a pipeline.
func New(d Deps) (*Pipeline, error) {
	switch {
	case d.Tenants == nil, d.Events == nil, d.Brain == nil, d.Safety == nil:
		return nil, errors.New("pipeline: tenants, events, brain and safety are required")
	case d.Opportunity == nil, d.Tracker == nil, d.Actions == nil, d.Control == nil:
		return nil, errors.New("pipeline: opportunity, tracker, actions and control are required")
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Pipeline{d: d}, nil
}

// Process runs req. Only request-level failures are returned as errors:
// ErrInvalidRequest, tenant.ErrTenantNotFound and tenant.ErrRateLimitExceeded.
// Blocks and downgrades are decisions and come back in the response.
func (p *Pipeline) Process(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: request is required", ErrInvalidRequest)
	}
	start := p.d.Now()
	requestID := "req_" + uuid.New().String()
	ctx, span := tracer.Start(ctx, "pipeline.process",
		trace.WithAttributes(
			attribute.String("request_id", requestID),
			engageotel.EngageTenant.String(req.TenantID),
			engageotel.EngagePlatform.String(req.Context.Event.Platform),
		))
	defer span.End()

	fail := func(err error) (*Response, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		engageotel.RecordDecision(ctx, string(KindError), "")
		return nil, err
	}

	if err := req.Validate(); err != nil {
		return fail(err)
	}
	if err := p.d.Tenants.ValidateRequest(ctx, req.TenantID); err != nil {
		return fail(err)
	}
	settings, err := p.d.Tenants.Settings(ctx, req.TenantID)
	if err != nil {
		return fail(err)
	}

	ev := req.Context.Event
	record := events.Record{
		TenantID:  req.TenantID,
		AccountID: ev.AccountID,
		Platform:  strings.ToLower(ev.Platform),
		ActorID:   ev.AuthorID,
		VideoID:   ev.VideoID,
		CommentID: ev.CommentID,
		Kind:      events.KindEvent,
		CreatedAt: p.d.Now().UTC(),
	}
	resp := &Response{
		Version:   Version,
		Telemetry: Telemetry{RequestID: requestID, PlanID: req.PlanID},
	}
	finish := func() (*Response, error) {
		resp.Telemetry.LatencyMS = p.d.Now().Sub(start).Milliseconds()
		strategy := ""
		if resp.PolicyDecision != nil {
			strategy = string(resp.PolicyDecision.Strategy)
		}
		engageotel.RecordDecision(ctx, string(resp.Kind), strategy)
		span.SetAttributes(attribute.String("response.kind", string(resp.Kind)))
		log.Info().
			Str("request_id", requestID).
			Str("tenant_id", req.TenantID).
			Str("kind", string(resp.Kind)).
			Str("strategy", strategy).
			Int64("latency_ms", resp.Telemetry.LatencyMS).
			Func(engageotel.LogTraceFields(ctx)).
			Msg("pipeline_decision")
		return resp, nil
	}

	if err := p.d.Tenants.CheckQuota(ctx, req.TenantID); err != nil {
		rule := RuleQuotaUnavailable
		switch {
		case errors.Is(err, tenant.ErrDailyEventLimit):
			rule = RuleDailyEventLimit
		case errors.Is(err, tenant.ErrDailySuggestionLimit):
			rule = RuleDailySuggestionLimit
		default:
			log.Warn().Err(err).Str("tenant_id", req.TenantID).
				Func(engageotel.LogTraceFields(ctx)).Msg("pipeline_quota_lookup_failed")
		}
		record.BlockedByPlan = true
		p.record(ctx, resp, record)
		resp.Kind = KindIgnore
		resp.PolicyDecision = &PolicyDecision{
			Strategy:      policy.StrategyIgnore,
			RuleID:        rule,
			Reason:        err.Error(),
			BlockedByPlan: true,
		}
		return finish()
	}

	if ev.Kind == EventView {
		p.record(ctx, resp, record)
		resp.Kind = KindIgnore
		resp.PolicyDecision = &PolicyDecision{
			Allowed:  true,
			Strategy: policy.StrategyObserveOnly,
			RuleID:   RuleViewEvent,
			Reason:   "view events are recorded without a decision",
		}
		return finish()
	}

	br, err := p.d.Brain.Decide(ctx, &brain.Request{
		Event: brain.Event{
			Platform:  ev.Platform,
			VideoID:   ev.VideoID,
			CommentID: ev.CommentID,
			AuthorID:  ev.AuthorID,
			AccountID: ev.AccountID,
			Text:      req.Query,
		},
		Tenant: brain.TenantContext{
			ID:                   settings.ID,
			Brand:                settings.Brand,
			Tone:                 settings.Tone,
			Aggressiveness:       settings.Aggressiveness,
			BlockedIntents:       settings.BlockedIntents,
			RetainAnswerOnRescue: settings.RetainAnswerOnRescue,
			History:              req.Context.History,
		},
		Ownership:      req.Context.Ownership,
		CompetitorHint: req.Context.CompetitorHint,
		Regeneration:   req.Context.Regeneration,
	})
	if err != nil {
		// Validation guarantees text, so this is an engine fault.
		return fail(fmt.Errorf("brain decision: %w", err))
	}

	record.Intent = string(br.Intent.Primary)
	record.Strategy = string(br.Strategy)
	p.record(ctx, resp, record)

	resp.Confidence = br.Confidence
	resp.Citations = br.Citations
	resp.Telemetry.Model = br.Model
	resp.Telemetry.CacheHit = br.CacheHit
	resp.Telemetry.LexiconVersion = br.Intent.LexiconVersion
	resp.Telemetry.Trace = br.Trace
	if br.Strategy.GeneratesReply() {
		resp.Telemetry.PromptVersion = brain.PromptVersion
	}
	resp.PolicyDecision = policyDecision(br)
	payload := &Payload{
		Text:     br.Text,
		Strategy: br.Strategy,
		Intent:   br.Intent.Primary,
		Strength: br.Intent.Strength,
	}
	resp.Payload = payload

	opp := p.d.Opportunity.Evaluate(ctx, opportunity.Input{
		TenantID: req.TenantID,
		Text:     req.Query,
		Result:   br.Intent,
	})
	payload.Opportunity = &opp

	ts := ev.Timestamp
	if ts.IsZero() {
		ts = record.CreatedAt
	}
	promoted := p.d.Tracker.Process(ctx, promotion.Signal{
		TenantID:    req.TenantID,
		ActorID:     ev.AuthorID,
		VideoID:     ev.VideoID,
		Platform:    strings.ToLower(ev.Platform),
		Timestamp:   ts,
		Opportunity: opp,
	})
	payload.Promotion = &promoted

	if actionable(br) {
		plan := p.d.Actions.Plan(ctx, action.Input{
			Promoted:  promoted,
			Intent:    br.Intent.Primary,
			Context:   br.Context.Context,
			Role:      br.Role.Role,
			AccountID: ev.AccountID,
			CommentID: ev.CommentID,
			Author:    ev.AuthorID,
			Brand:     settings.Brand,
			Draft:     br.Text,
		})
		payload.Plan = plan
		// ANSWER already passed the reply pre-check in the brain.
		if plan.ActionType.Replies() && br.Strategy != policy.StrategyAnswer {
			p.checkSend(ctx, resp.PolicyDecision, plan)
		}
		if plan.ActionType != action.TypeNoAction {
			queued, err := p.d.Control.Enqueue(ctx, plan)
			if err != nil {
				log.Error().Err(err).Str("plan_id", plan.ID).
					Func(engageotel.LogTraceFields(ctx)).Msg("pipeline_enqueue_failed")
				resp.Telemetry.Warnings = append(resp.Telemetry.Warnings, "enqueue failed: "+err.Error())
			} else {
				payload.ActionStatus = queued.Status
				resp.Telemetry.PlanID = plan.ID
			}
		}
	}

	drafted := br.Text != "" || (payload.ActionStatus == control.StatusPending && payload.Plan.ActionType != action.TypeEscalate)
	if drafted {
		sug := record
		sug.Kind = events.KindSuggestion
		sug.CreatedAt = p.d.Now().UTC()
		p.record(ctx, resp, sug)
	}

	switch {
	case br.Strategy == policy.StrategyAnswer && br.Text != "":
		resp.Kind = KindAnswer
	case payload.ActionStatus == control.StatusPending:
		resp.Kind = KindRecommend
	default:
		resp.Kind = KindIgnore
	}
	return finish()
}

// actionable reports whether an action plan may be built: the strategy must
// still be a reply or capture and the safety pre-check must have allowed it.
func actionable(br *brain.Response) bool {
	if br.Strategy != policy.StrategyAnswer && br.Strategy != policy.StrategySilentCapture {
		return false
	}
	if br.PreCheck != nil && !br.PreCheck.Allowed {
		return false
	}
	return br.PostCheck == nil || br.PostCheck.Allowed
}

// checkSend runs the reply rate rules against a DM or public reply plan and
// vetoes it when one fires.
func (p *Pipeline) checkSend(ctx context.Context, pd *PolicyDecision, plan *action.Plan) {
	res := p.d.Safety.PreCheck(ctx, safety.Target{
		Platform:  plan.Platform,
		ActorID:   plan.ActorID,
		VideoID:   plan.VideoID,
		TenantID:  plan.TenantID,
		AccountID: plan.AccountID,
	}, policy.StrategyAnswer)
	pd.SendCheck = &res
	if res.Allowed {
		return
	}
	plan.Veto(res.RuleID, res.Reason)
	pd.Allowed = false
	pd.RuleID = res.RuleID
	pd.Reason = res.Reason
}

// policyDecision picks the rule that determined the outcome, in stage order.
func policyDecision(br *brain.Response) *PolicyDecision {
	pd := &PolicyDecision{
		Allowed:   br.Domain.Allowed,
		Strategy:  br.Strategy,
		RuleID:    br.Domain.RuleID,
		Reason:    br.Domain.Reason,
		Domain:    &br.Domain,
		Context:   &br.Context,
		Role:      &br.Role,
		Gate:      br.Gate,
		PreCheck:  br.PreCheck,
		PostCheck: br.PostCheck,
	}
	switch {
	case br.PreCheck != nil && !br.PreCheck.Allowed:
		pd.Allowed = false
		pd.RuleID = br.PreCheck.RuleID
		pd.Reason = br.PreCheck.Reason
	case br.Gate != nil && !br.Gate.Allowed:
		pd.Allowed = false
		pd.RuleID = RuleSafetyGate
		pd.Reason = strings.Join(br.Gate.Violations, ",")
	case br.PostCheck != nil && !br.PostCheck.Allowed:
		pd.Allowed = false
		pd.RuleID = br.PostCheck.RuleID
		pd.Reason = br.PostCheck.Reason
	}
	return pd
}

func (p *Pipeline) record(ctx context.Context, resp *Response, r events.Record) {
	if err := p.d.Events.Record(ctx, r); err != nil {
		log.Warn().Err(err).Str("tenant_id", r.TenantID).Str("kind", string(r.Kind)).
			Func(engageotel.LogTraceFields(ctx)).Msg("pipeline_record_failed")
		resp.Telemetry.Warnings = append(resp.Telemetry.Warnings, "record failed: "+err.Error())
	}
}
