// Package brain turns one classified event into a strategy and, when the
// strategy calls for it, a drafted reply. Generation goes through a circuit
// breaker and falls back to a deterministic heuristic; successful drafts are
// cached per event, strategy and regeneration count.
package brain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/intent"
	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/llm"
	engageotel "github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/otel"
	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/policy"
	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/safety"
)

var tracer = engageotel.Tracer("github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/brain")

// ResponseVersion tags every Response.
const ResponseVersion = "brain.v1"

// Defaults for generation.
const (
	DefaultModel           = "gpt-4o-mini"
	DefaultTemperature     = 0.7
	DefaultMaxTokens       = 120
	DefaultGenerateTimeout = 10 * time.Second
)

// ErrEmptyText is returned for events without text.
var ErrEmptyText = errors.New("event text is empty")

// Event is the interaction being decided.
type Event struct {
	Platform  string `json:"platform"`
	VideoID   string `json:"video_id"`
	CommentID string `json:"comment_id,omitempty"`
	AuthorID  string `json:"author_id"`
	AccountID string `json:"account_id,omitempty"`
	Text      string `json:"text"`
}

// TenantContext is the per-tenant input to a decision.
type TenantContext struct {
	ID                   string
	Brand                string
	Tone                 string
	Aggressiveness       policy.Aggressiveness
	BlockedIntents       []intent.Intent
	RetainAnswerOnRescue bool
	History              []string
}

// Request is one decision request.
type Request struct {
	Event          Event
	Tenant         TenantContext
	Ownership      *policy.OwnershipProof
	CompetitorHint bool
	Regeneration   int
}

// TraceStep is one entry of the decision trace.
type TraceStep struct {
	Stage   string `json:"stage"`
	Outcome string `json:"outcome"`
	Detail  string `json:"detail,omitempty"`
}

// Response is the versioned decision.
type Response struct {
	Version     string          `json:"version"`
	Text        string          `json:"text"`
	Strategy    policy.Strategy `json:"strategy"`
	Confidence  float64         `json:"confidence"`
	Explanation string          `json:"explanation"`
	Trace       []TraceStep     `json:"trace"`
	Model       string          `json:"model,omitempty"`
	CacheHit    bool            `json:"cache_hit"`
	Citations   []string        `json:"citations,omitempty"`

	Intent    *intent.Result        `json:"intent"`
	Domain    policy.DomainDecision `json:"domain"`
	Context   policy.ContextResult  `json:"context"`
	Role      policy.RoleResult     `json:"role"`
	Gate      *policy.GateResult    `json:"gate,omitempty"`
	PreCheck  *safety.CheckResult   `json:"pre_check,omitempty"`
	PostCheck *safety.CheckResult   `json:"post_check,omitempty"`
	Retrieval *RetrievalOutcome     `json:"retrieval,omitempty"`
}

func (r *Response) step(stage, outcome, detail string) {
	r.Trace = append(r.Trace, TraceStep{Stage: stage, Outcome: outcome, Detail: detail})
}

// Guard is the safety collaborator consulted before and after generation.
type Guard interface {
	PreCheck(ctx context.Context, target safety.Target, strategy policy.Strategy) safety.CheckResult
	PostCheck(ctx context.Context, target safety.Target, draft string, owned bool) safety.CheckResult
}

// Engine runs the decision pipeline for one event. It is safe for concurrent use.
type Engine struct {
	classifier *intent.Classifier
	domain     *policy.DomainFilter
	gate       *policy.Gate
	provider   llm.Provider
	breaker    Breaker
	cache      Cache
	retriever  Retriever
	guard      Guard

	model       string
	temperature float64
	maxTokens   int
	genTimeout  time.Duration
	maxLength   func(platform string) int

	sanitizer *bluemonday.Policy
	flight    singleflight.Group
}

// Option configures an Engine.
type Option func(*Engine)

func WithBreaker(b Breaker) Option                   { return func(e *Engine) { e.breaker = b } }
func WithCache(c Cache) Option                       { return func(e *Engine) { e.cache = c } }
func WithRetriever(r Retriever) Option               { return func(e *Engine) { e.retriever = r } }
func WithGuard(g Guard) Option                       { return func(e *Engine) { e.guard = g } }
func WithDomainFilter(f *policy.DomainFilter) Option { return func(e *Engine) { e.domain = f } }

// WithModel sets the generation model and sampling parameters.
func WithModel(model string, temperature float64, maxTokens int) Option {
	return func(e *Engine) {
		if model != "" {
			e.model = model
		}
		if temperature > 0 {
			e.temperature = temperature
		}
		if maxTokens > 0 {
			e.maxTokens = maxTokens
		}
	}
}

// WithGenerateTimeout bounds each provider call.
func WithGenerateTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.genTimeout = d
		}
	}
}

// WithMaxLength supplies the per-platform reply length used in prompts.
func WithMaxLength(fn func(platform string) int) Option {
	return func(e *Engine) { e.maxLength = fn }
}

// NewEngine wires the required collaborators. provider may be nil, in which
// case every reply uses the heuristic fallback.
func NewEngine(classifier *intent.Classifier, gate *policy.Gate, provider llm.Provider, opts ...Option) *Engine {
	e := &Engine{
		classifier:  classifier,
		domain:      policy.NewDomainFilter(),
		gate:        gate,
		provider:    provider,
		breaker:     NewCircuitBreaker(DefaultFailureThreshold, DefaultCoolDown),
		cache:       NewMemoryCache(DefaultCacheTTL, 0),
		model:       DefaultModel,
		temperature: DefaultTemperature,
		maxTokens:   DefaultMaxTokens,
		genTimeout:  DefaultGenerateTimeout,
		maxLength:   func(string) int { return 150 },
		sanitizer:   bluemonday.StrictPolicy(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Classifier exposes the intent classifier the engine uses.
func (e *Engine) Classifier() *intent.Classifier { return e.classifier }

// Breaker exposes the generation breaker.
func (e *Engine) Breaker() Breaker { return e.breaker }

// Decide runs classification, policy, safety and (when warranted) generation.
// Collaborator failures never surface as errors; only an invalid event does.
func (e *Engine) Decide(ctx context.Context, req *Request) (*Response, error) {
	if req == nil || strings.TrimSpace(req.Event.Text) == "" {
		return nil, ErrEmptyText
	}
	ctx, span := tracer.Start(ctx, "brain.decide")
	defer span.End()
	span.SetAttributes(
		engageotel.EngageTenant.String(req.Tenant.ID),
		engageotel.EngagePlatform.String(req.Event.Platform),
		attribute.Int("brain.regeneration", req.Regeneration),
	)

	resp := &Response{Version: ResponseVersion}
	ev := req.Event

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		resp.Intent = e.classifier.Classify(gctx, ev.Text)
		return nil
	})
	g.Go(func() error {
		resp.Context = policy.ClassifyContext(gctx, policy.ContextInput{
			VideoID:        ev.VideoID,
			AccountID:      ev.AccountID,
			Ownership:      req.Ownership,
			CompetitorHint: req.CompetitorHint,
		})
		return nil
	})
	_ = g.Wait()

	res := resp.Intent
	resp.Confidence = res.Confidence
	resp.step("intent", string(res.Primary), fmt.Sprintf("strength=%s signals=%d", res.Strength, len(res.Signals)))
	resp.step("context", string(resp.Context.Context), resp.Context.Reason)

	domain := e.domain
	if len(req.Tenant.BlockedIntents) > 0 || req.Tenant.RetainAnswerOnRescue {
		domain = domain.With(
			policy.WithBlockedIntents(req.Tenant.BlockedIntents...),
			policy.WithRetainAnswerOnRescue(req.Tenant.RetainAnswerOnRescue),
		)
	}
	resp.Domain = domain.Decide(ctx, res.Primary, res.Strength)
	strategy := resp.Domain.Strategy
	if !resp.Domain.Allowed {
		strategy = policy.StrategyIgnore
	}
	resp.step("domain", string(strategy), resp.Domain.Reason)
	explanation := []string{resp.Domain.Reason}

	resp.Role = policy.ResolveRole(ctx, policy.RoleInput{
		Context:        resp.Context.Context,
		Aggressiveness: req.Tenant.Aggressiveness,
		Intent:         res.Primary,
		Strength:       res.Strength,
		Confidence:     res.Confidence,
	})
	resp.step("role", string(resp.Role.Role), resp.Role.Reason)

	target := safety.Target{
		Platform:  ev.Platform,
		ActorID:   ev.AuthorID,
		VideoID:   ev.VideoID,
		TenantID:  req.Tenant.ID,
		AccountID: ev.AccountID,
	}
	if e.guard != nil {
		pre := e.guard.PreCheck(ctx, target, strategy)
		resp.PreCheck = &pre
		switch {
		case !pre.Allowed && pre.OverrideStrategy != "":
			strategy = pre.OverrideStrategy
			resp.step("safety_pre", "downgraded", pre.RuleID+": "+pre.Reason)
			explanation = append(explanation, "safety "+pre.RuleID+": "+pre.Reason)
		case !pre.Allowed:
			strategy = policy.StrategyIgnore
			resp.step("safety_pre", "blocked", pre.RuleID+": "+pre.Reason)
			explanation = append(explanation, "safety "+pre.RuleID+": "+pre.Reason)
		case pre.ShadowViolation:
			resp.step("safety_pre", "shadow", pre.RuleID+": "+pre.Reason)
		default:
			resp.step("safety_pre", "allowed", "")
		}
	}

	if strategy.GeneratesReply() && e.gate != nil {
		gr := e.gate.Check(ctx, policy.GateInput{
			Context:          resp.Context.Context,
			Role:             resp.Role.Role,
			TemplateCategory: policy.TemplateCategoryForRole(resp.Role.Role),
		})
		resp.Gate = &gr
		if !gr.Allowed {
			strategy = policy.StrategySilentCapture
			detail := strings.Join(gr.Violations, ",")
			resp.step("gate", "vetoed", detail)
			explanation = append(explanation, "safety gate veto: "+detail)
		} else {
			resp.step("gate", "allowed", "")
		}
	}

	resp.Strategy = strategy
	span.SetAttributes(engageotel.EngageStrategy.String(string(strategy)))
	if !strategy.GeneratesReply() {
		resp.Explanation = strings.Join(explanation, "; ")
		return resp, nil
	}

	key := CacheKey(req, strategy, resp.Context.Context, resp.Role.Role)
	var gen generation
	if cached := e.lookup(ctx, key); cached != nil {
		resp.Text = cached.Text
		resp.Model = cached.Model
		resp.Confidence = cached.Confidence
		resp.Citations = cached.Citations
		resp.CacheHit = true
		resp.step("cache", "hit", "")
		explanation = append(explanation, cached.Explanation)
	} else {
		resp.step("cache", "miss", "")
		gen = e.shared(ctx, key, req, resp)
		if gen.retrieval.Attempted {
			r := gen.retrieval
			resp.Retrieval = &r
			outcome := "used"
			if !r.Used {
				outcome = "discarded"
			}
			resp.step("retrieval", outcome, r.Discarded)
		}
		resp.step("generation", gen.outcome, gen.explanation)
		resp.Text = gen.text
		resp.Model = gen.model
		resp.Confidence = gen.confidence
		resp.Citations = gen.retrieval.Sources()
		explanation = append(explanation, gen.explanation)
	}

	if e.guard != nil {
		post := e.guard.PostCheck(ctx, target, resp.Text, resp.Context.Context.IsOwned())
		resp.PostCheck = &post
		if !post.Allowed {
			resp.Strategy = policy.StrategySilentCapture
			resp.Text = ""
			resp.step("safety_post", "blocked", post.RuleID+": "+post.Reason)
			explanation = append(explanation, "draft rejected "+post.RuleID+": "+post.Reason)
			resp.Explanation = strings.Join(explanation, "; ")
			return resp, nil
		}
		resp.step("safety_post", "allowed", "")
	}

	if !resp.CacheHit && gen.fromProvider {
		if err := e.cache.Set(ctx, key, &CachedResult{
			Text:        resp.Text,
			Model:       resp.Model,
			Confidence:  resp.Confidence,
			Explanation: gen.explanation,
			Citations:   resp.Citations,
			StoredAt:    time.Now().UTC(),
		}); err != nil {
			log.Warn().Err(err).Func(engageotel.LogTraceFields(ctx)).Msg("brain_cache_store_failed")
		}
	}
	resp.Explanation = strings.Join(explanation, "; ")
	return resp, nil
}

func (e *Engine) lookup(ctx context.Context, key string) *CachedResult {
	v, ok, err := e.cache.Get(ctx, key)
	backend := fmt.Sprintf("%T", e.cache)
	if err != nil {
		log.Warn().Err(err).Func(engageotel.LogTraceFields(ctx)).Msg("brain_cache_lookup_failed")
		engageotel.RecordCacheLookup(ctx, backend, false)
		return nil
	}
	engageotel.RecordCacheLookup(ctx, backend, ok)
	if !ok {
		return nil
	}
	return v
}

// shared collapses concurrent generations for the same key. The generation
// runs detached from the first caller so its cancellation does not hand the
// fallback to every waiter; provider and retrieval calls keep their own timeouts.
func (e *Engine) shared(ctx context.Context, key string, req *Request, resp *Response) generation {
	snapshot := &Response{Intent: resp.Intent, Context: resp.Context, Role: resp.Role}
	detached := context.WithoutCancel(ctx)
	ch := e.flight.DoChan(key, func() (interface{}, error) {
		return e.generate(detached, req, snapshot), nil
	})
	select {
	case r := <-ch:
		return r.Val.(generation)
	case <-ctx.Done():
		return generation{
			text:        heuristicReply(resp.Intent.Primary),
			model:       HeuristicModel,
			confidence:  HeuristicConfidence,
			explanation: "provider_error: " + ctx.Err().Error(),
			outcome:     "fallback",
		}
	}
}

type generation struct {
	text         string
	model        string
	confidence   float64
	explanation  string
	outcome      string
	fromProvider bool
	retrieval    RetrievalOutcome
}

func (e *Engine) generate(ctx context.Context, req *Request, resp *Response) generation {
	ctx, span := tracer.Start(ctx, "brain.generate")
	defer span.End()

	var g generation
	g.retrieval = retrieve(ctx, e.retriever, RetrievalQuery{
		Query:       req.Event.Text,
		TenantID:    req.Tenant.ID,
		MaxSnippets: DefaultMaxSnippets,
	})

	fallback := func(reason string) generation {
		g.text = heuristicReply(resp.Intent.Primary)
		g.model = HeuristicModel
		g.confidence = HeuristicConfidence
		g.explanation = reason
		g.outcome = "fallback"
		return g
	}

	if e.provider == nil {
		return fallback("provider_error: no provider configured")
	}
	messages, err := renderPrompt(promptData{
		Brand:        req.Tenant.Brand,
		Tone:         req.Tenant.Tone,
		Role:         resp.Role.Role,
		Owned:        resp.Context.Context.IsOwned(),
		MaxLength:    e.maxLength(req.Event.Platform),
		Regeneration: req.Regeneration,
		Platform:     req.Event.Platform,
		Intent:       string(resp.Intent.Primary),
		Author:       req.Event.AuthorID,
		Text:         req.Event.Text,
		History:      req.Tenant.History,
		Snippets:     g.retrieval.Snippets,
	})
	if err != nil {
		return fallback("provider_error: " + err.Error())
	}
	if err := e.breaker.Allow(); err != nil {
		log.Warn().Str("tenant_id", req.Tenant.ID).Func(engageotel.LogTraceFields(ctx)).Msg("brain_circuit_open")
		return fallback(ErrCircuitOpen.Error())
	}

	callCtx, cancel := context.WithTimeout(ctx, e.genTimeout)
	defer cancel()
	out, err := e.provider.Generate(callCtx, &llm.Request{
		Model:       e.model,
		Messages:    messages,
		Temperature: regenerationTemperature(e.temperature, req.Regeneration),
		MaxTokens:   e.maxTokens,
	})
	if err == nil && strings.TrimSpace(out.Content) == "" {
		err = llm.ErrEmptyResponse
	}
	if err != nil {
		e.breaker.RecordFailure()
		span.RecordError(err)
		log.Warn().Err(err).
			Str("tenant_id", req.Tenant.ID).
			Str("provider", e.provider.Name()).
			Func(engageotel.LogTraceFields(ctx)).
			Msg("brain_generation_fallback")
		return fallback("provider_error: " + err.Error())
	}
	e.breaker.RecordSuccess()

	g.text = e.sanitize(out.Content)
	g.model = out.Model
	if g.model == "" {
		g.model = e.model
	}
	g.confidence = resp.Intent.Confidence
	g.explanation = "generated by " + e.provider.Name() + " using " + PromptVersion
	if g.retrieval.Used {
		g.explanation += fmt.Sprintf(" with %d reference snippets", len(g.retrieval.Snippets))
	}
	g.outcome = "generated"
	g.fromProvider = true
	return g
}

// sanitize strips markup from provider output and keeps it plain text.
func (e *Engine) sanitize(s string) string {
	s = html.UnescapeString(e.sanitizer.Sanitize(s))
	s = strings.TrimSpace(s)
	return strings.Trim(s, `"`)
}

// regenerationTemperature nudges sampling up on each regeneration, capped at 1.
func regenerationTemperature(base float64, regeneration int) float64 {
	t := base + 0.1*float64(regeneration)
	if t > 1 {
		return 1
	}
	return t
}

// CacheKey derives the result-cache key from event identity, strategy,
// content context, role and regeneration count. Without a comment id the
// author and text identify the event.
func CacheKey(req *Request, strategy policy.Strategy, content policy.ContentContext, role policy.Role) string {
	ev := req.Event
	identity := ev.CommentID
	if identity == "" {
		sum := sha256.Sum256([]byte(ev.AuthorID + "\x00" + ev.Text))
		identity = "t:" + hex.EncodeToString(sum[:8])
	}
	raw := strings.Join([]string{
		req.Tenant.ID, ev.AccountID, strings.ToLower(ev.Platform), ev.VideoID, identity,
		string(strategy), string(content), string(role), fmt.Sprint(req.Regeneration),
	}, "|")
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
