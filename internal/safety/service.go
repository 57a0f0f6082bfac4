// Package safety enforces kill switches, tenant mode, cooldowns, suggestion
// caps and burst limits before generation, and checks drafts after it.
package safety

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"

	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/events"
	engageotel "github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/otel"
	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/policy"
	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/tenant"
)

var tracer = engageotel.Tracer("github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/safety")

// Rule identifiers reported in CheckResult.RuleID.
const (
	RuleKillSwitch          = "kill_switch"
	RuleObserveOnly         = "observe_only_mode"
	RuleCooldown            = "cooldown"
	RuleDailyCap            = "daily_cap"
	RuleVideoCap            = "video_cap"
	RuleBurstLimit          = "burst_limit"
	RuleCountUnavailable    = "count_unavailable"
	RuleSettingsUnavailable = "settings_unavailable"
	RuleEmptyDraft          = "empty_draft"
	RuleDraftTooLong        = "draft_too_long"
	RuleLinkOutsideOwned    = "link_outside_owned"
	RuleBannedPhrase        = "banned_phrase"
	RulePIIInDraft          = "pii_in_draft"
)

// DefaultCountTimeout bounds each persistence lookup.
const DefaultCountTimeout = 500 * time.Millisecond

// Target identifies who would be engaged, and by whom.
type Target struct {
	Platform  string `json:"platform"`
	ActorID   string `json:"actor_id"`
	VideoID   string `json:"video_id"`
	TenantID  string `json:"tenant_id"`
	AccountID string `json:"account_id"`
}

// CheckResult is a safety decision. A disallowed result is not an error.
type CheckResult struct {
	Allowed          bool            `json:"allowed"`
	Reason           string          `json:"reason,omitempty"`
	RuleID           string          `json:"rule_id,omitempty"`
	OverrideStrategy policy.Strategy `json:"override_strategy,omitempty"`
	ShadowViolation  bool            `json:"shadow_violation,omitempty"`
}

func allow() CheckResult { return CheckResult{Allowed: true} }

func block(ruleID, reason string, override policy.Strategy) CheckResult {
	return CheckResult{RuleID: ruleID, Reason: reason, OverrideStrategy: override}
}

// Options tune a Service.
type Options struct {
	KillSwitch   *KillSwitch
	CountTimeout time.Duration
	// MaxLength returns the draft length limit for a platform.
	MaxLength func(platform string) int
	Now       func() time.Time
}

// Service implements the pre- and post-generation safety checks.
type Service struct {
	counter events.Counter
	tenants tenant.Provider
	kill    *KillSwitch
	timeout time.Duration
	maxLen  func(string) int
	now     func() time.Time

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewService wires the count and settings collaborators.
func NewService(counter events.Counter, tenants tenant.Provider, opts Options) *Service {
	s := &Service{
		counter:  counter,
		tenants:  tenants,
		kill:     opts.KillSwitch,
		timeout:  opts.CountTimeout,
		maxLen:   opts.MaxLength,
		now:      opts.Now,
		limiters: make(map[string]*rate.Limiter),
	}
	if s.kill == nil {
		s.kill = NewKillSwitch()
	}
	if s.timeout <= 0 {
		s.timeout = DefaultCountTimeout
	}
	if s.maxLen == nil {
		s.maxLen = func(string) int { return 150 }
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// KillSwitch exposes the operator switch.
func (s *Service) KillSwitch() *KillSwitch { return s.kill }

// PreCheck decides whether strategy may proceed for target. The first
// matching rule wins. Cooldown, caps and burst only apply to strategies that
// generate a reply and downgrade them to SILENT_CAPTURE.
func (s *Service) PreCheck(ctx context.Context, target Target, strategy policy.Strategy) CheckResult {
	ctx, span := tracer.Start(ctx, "safety.pre_check")
	defer span.End()
	span.SetAttributes(
		engageotel.EngageTenant.String(target.TenantID),
		engageotel.EngageAccount.String(target.AccountID),
		engageotel.EngagePlatform.String(target.Platform),
		engageotel.EngageStrategy.String(string(strategy)),
	)

	res := s.preCheck(ctx, target, strategy)
	span.SetAttributes(
		attribute.Bool("safety.allowed", res.Allowed),
		engageotel.EngageRuleID.String(res.RuleID),
	)
	if res.RuleID != "" {
		engageotel.RecordSafetyBlock(ctx, res.RuleID, res.ShadowViolation)
		log.Info().
			Str("tenant_id", target.TenantID).
			Str("account_id", target.AccountID).
			Str("platform", target.Platform).
			Str("rule_id", res.RuleID).
			Bool("allowed", res.Allowed).
			Bool("shadow", res.ShadowViolation).
			Func(engageotel.LogTraceFields(ctx)).
			Msg("safety_pre_check_triggered")
	}
	if res.RuleID == RuleCountUnavailable || res.RuleID == RuleSettingsUnavailable {
		span.SetStatus(codes.Error, res.Reason)
	}
	return res
}

func (s *Service) preCheck(ctx context.Context, target Target, strategy policy.Strategy) CheckResult {
	if s.kill.Global() {
		return block(RuleKillSwitch, "global kill switch active", policy.StrategyIgnore)
	}
	if s.kill.Platform(target.Platform) {
		return block(RuleKillSwitch, fmt.Sprintf("kill switch active for %s", target.Platform), policy.StrategyIgnore)
	}

	settings, err := s.tenants.Settings(ctx, target.TenantID)
	if err != nil {
		return block(RuleSettingsUnavailable, "tenant settings unavailable: "+err.Error(), policy.StrategyIgnore)
	}
	if settings.KillSwitch {
		return block(RuleKillSwitch, "tenant kill switch active", policy.StrategyIgnore)
	}
	if settings.PlatformKilled(target.Platform) {
		return block(RuleKillSwitch, fmt.Sprintf("tenant kill switch active for %s", target.Platform), policy.StrategyIgnore)
	}

	if settings.Mode == tenant.ModeObserveOnly &&
		strategy != policy.StrategyIgnore && strategy != policy.StrategyObserveOnly {
		return block(RuleObserveOnly, "tenant is in observe-only mode", policy.StrategyObserveOnly)
	}

	if !strategy.GeneratesReply() {
		return allow()
	}

	res, err := s.rateChecks(ctx, target, settings)
	if err != nil {
		log.Warn().Err(err).
			Str("tenant_id", target.TenantID).
			Str("account_id", target.AccountID).
			Msg("safety_count_failed")
		return block(RuleCountUnavailable, "count lookup failed: "+err.Error(), policy.StrategyIgnore)
	}
	if res.RuleID != "" && settings.Shadow {
		res.Allowed = true
		res.ShadowViolation = true
		res.OverrideStrategy = ""
	}
	return res
}

func (s *Service) rateChecks(ctx context.Context, target Target, settings *tenant.Settings) (CheckResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	now := s.now()
	base := events.Query{
		TenantID:  target.TenantID,
		AccountID: target.AccountID,
		Kind:      events.KindSuggestion,
	}

	if settings.CooldownHours > 0 && target.ActorID != "" {
		q := base
		q.ActorID = target.ActorID
		last, ok, err := s.counter.LastEventAt(ctx, q)
		if err != nil {
			return CheckResult{}, fmt.Errorf("cooldown lookup: %w", err)
		}
		window := time.Duration(settings.CooldownHours) * time.Hour
		if ok && now.Sub(last) < window {
			return block(RuleCooldown,
				fmt.Sprintf("actor engaged %s ago, cooldown is %dh", now.Sub(last).Round(time.Minute), settings.CooldownHours),
				policy.StrategySilentCapture), nil
		}
	}

	dayStart := events.StartOfDay(now)
	if settings.DailyCap > 0 {
		q := base
		q.Since = dayStart
		n, err := s.counter.CountEvents(ctx, q)
		if err != nil {
			return CheckResult{}, fmt.Errorf("daily count: %w", err)
		}
		if n >= settings.DailyCap {
			return block(RuleDailyCap, fmt.Sprintf("daily cap of %d suggestions reached", settings.DailyCap), policy.StrategySilentCapture), nil
		}
	}

	if settings.VideoCap > 0 && target.VideoID != "" {
		q := base
		q.VideoID = target.VideoID
		q.Since = dayStart
		n, err := s.counter.CountEvents(ctx, q)
		if err != nil {
			return CheckResult{}, fmt.Errorf("video count: %w", err)
		}
		if n >= settings.VideoCap {
			return block(RuleVideoCap, fmt.Sprintf("video cap of %d suggestions reached", settings.VideoCap), policy.StrategySilentCapture), nil
		}
	}

	if !s.limiter(target, settings).AllowN(now, 1) {
		return block(RuleBurstLimit, "too many suggestions in a short burst", policy.StrategySilentCapture), nil
	}
	return allow(), nil
}

func (s *Service) limiter(target Target, settings *tenant.Settings) *rate.Limiter {
	key := target.TenantID + "/" + target.AccountID
	perSecond := rate.Limit(float64(settings.BurstPerMinute) / 60)

	s.mu.Lock()
	defer s.mu.Unlock()
	lim, ok := s.limiters[key]
	if !ok {
		lim = rate.NewLimiter(perSecond, settings.Burst)
		s.limiters[key] = lim
		return lim
	}
	if lim.Limit() != perSecond {
		lim.SetLimit(perSecond)
	}
	if lim.Burst() != settings.Burst {
		lim.SetBurst(settings.Burst)
	}
	return lim
}
