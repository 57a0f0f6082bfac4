package safety

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	engageotel "github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/otel"
)

var linkPattern = regexp.MustCompile(`(?i)\b((?:https?://|www\.)[^\s<>"']+|[a-z0-9-]+(?:\.[a-z0-9-]+)*\.(?:com|net|org|io|co|shop|store|ly|me)(?:/[^\s<>"']*)?)`)

// PostCheck validates a generated draft. owned reports whether the
// interaction is on verified owned content; links are only allowed there, and
// only to the tenant's owned domains when any are configured.
func (s *Service) PostCheck(ctx context.Context, target Target, draft string, owned bool) CheckResult {
	ctx, span := tracer.Start(ctx, "safety.post_check")
	defer span.End()

	res := s.postCheck(ctx, target, draft, owned)
	span.SetAttributes(engageotel.EngageRuleID.String(res.RuleID))
	if res.RuleID != "" {
		engageotel.RecordSafetyBlock(ctx, res.RuleID, false)
		log.Info().
			Str("tenant_id", target.TenantID).
			Str("platform", target.Platform).
			Str("rule_id", res.RuleID).
			Func(engageotel.LogTraceFields(ctx)).
			Msg("safety_post_check_blocked")
	}
	return res
}

func (s *Service) postCheck(ctx context.Context, target Target, draft string, owned bool) CheckResult {
	text := strings.TrimSpace(draft)
	if text == "" {
		return block(RuleEmptyDraft, "draft is empty", "")
	}
	if max := s.maxLen(target.Platform); max > 0 && utf8.RuneCountInString(text) > max {
		return block(RuleDraftTooLong, fmt.Sprintf("draft exceeds %d characters for %s", max, target.Platform), "")
	}

	var ownedDomains, banned []string
	if settings, err := s.tenants.Settings(ctx, target.TenantID); err == nil {
		ownedDomains = settings.OwnedDomains
		banned = settings.BannedPhrases
	}

	if m, found := findPII(text, ownedDomains); found {
		return block(RulePIIInDraft, fmt.Sprintf("draft contains personal data (%s)", strings.ToLower(m.Kind)), "")
	}

	for _, link := range linkPattern.FindAllString(text, -1) {
		if !owned {
			return block(RuleLinkOutsideOwned, "links are only allowed on owned content", "")
		}
		if len(ownedDomains) > 0 && !hostAllowed(link, ownedDomains) {
			return block(RuleLinkOutsideOwned, fmt.Sprintf("link %q is not on an owned domain", link), "")
		}
	}

	lower := strings.ToLower(text)
	for _, phrase := range banned {
		p := strings.ToLower(strings.TrimSpace(phrase))
		if p != "" && strings.Contains(lower, p) {
			return block(RuleBannedPhrase, fmt.Sprintf("draft contains banned phrase %q", phrase), "")
		}
	}
	return allow()
}

func hostAllowed(link string, domains []string) bool {
	raw := link
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	for _, d := range domains {
		d = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(d)), "www.")
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}
