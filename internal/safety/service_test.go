package safety

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/events"
	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/policy"
	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/tenant"
)

var fixedNow = time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

func newService(t *testing.T, s tenant.Settings) (*Service, *events.MemoryStore) {
	t.Helper()
	store := events.NewMemoryStore()
	mgr := tenant.NewManager([]tenant.Settings{s}, store)
	svc := NewService(store, mgr, Options{
		Now:       func() time.Time { return fixedNow },
		MaxLength: func(p string) int { return map[string]int{"tiktok": 150}[p] },
	})
	return svc, store
}

func suggestion(account, actor, video string, at time.Time) events.Record {
	return events.Record{
		TenantID: "acme", AccountID: account, ActorID: actor, VideoID: video,
		Platform: "tiktok", Kind: events.KindSuggestion, CreatedAt: at,
	}
}

func target(account string) Target {
	return Target{Platform: "tiktok", ActorID: "u1", VideoID: "v1", TenantID: "acme", AccountID: account}
}

func TestPreCheck_KillSwitchWinsOverEverything(t *testing.T) {
	svc, _ := newService(t, tenant.Settings{ID: "acme", Mode: tenant.ModeObserveOnly})
	svc.KillSwitch().Set("TikTok", true)

	for _, strategy := range []policy.Strategy{policy.StrategyAnswer, policy.StrategySilentCapture, policy.StrategyIgnore} {
		res := svc.PreCheck(context.Background(), target("a1"), strategy)
		assert.False(t, res.Allowed)
		assert.Equal(t, RuleKillSwitch, res.RuleID)
		assert.Equal(t, policy.StrategyIgnore, res.OverrideStrategy)
	}

	other := target("a1")
	other.Platform = "youtube"
	assert.NotEqual(t, RuleKillSwitch, svc.PreCheck(context.Background(), other, policy.StrategyAnswer).RuleID)
}

func TestPreCheck_GlobalAndTenantKillSwitch(t *testing.T) {
	svc, _ := newService(t, tenant.Settings{ID: "acme", Shadow: true})
	svc.KillSwitch().Set("", true)
	res := svc.PreCheck(context.Background(), target("a1"), policy.StrategyAnswer)
	assert.Equal(t, RuleKillSwitch, res.RuleID)
	assert.False(t, res.ShadowViolation, "kill switch is never shadowed")

	svc2, _ := newService(t, tenant.Settings{ID: "acme", PlatformKillSwitch: map[string]bool{"tiktok": true}})
	res = svc2.PreCheck(context.Background(), target("a1"), policy.StrategyAnswer)
	assert.Equal(t, RuleKillSwitch, res.RuleID)
	assert.False(t, res.Allowed)
}

func TestPreCheck_ObserveOnlyMode(t *testing.T) {
	svc, _ := newService(t, tenant.Settings{ID: "acme", Mode: tenant.ModeObserveOnly})

	res := svc.PreCheck(context.Background(), target("a1"), policy.StrategyAnswer)
	assert.Equal(t, RuleObserveOnly, res.RuleID)
	assert.Equal(t, policy.StrategyObserveOnly, res.OverrideStrategy)

	res = svc.PreCheck(context.Background(), target("a1"), policy.StrategyIgnore)
	assert.True(t, res.Allowed)
}

func TestPreCheck_RateRulesOnlyApplyToReplies(t *testing.T) {
	svc, store := newService(t, tenant.Settings{ID: "acme", DailyCap: 1})
	require.NoError(t, store.Record(context.Background(), suggestion("a1", "u9", "v9", fixedNow.Add(-time.Hour))))

	res := svc.PreCheck(context.Background(), target("a1"), policy.StrategySilentCapture)
	assert.True(t, res.Allowed)
	assert.Empty(t, res.RuleID)
}

func TestPreCheck_RateRules(t *testing.T) {
	tests := []struct {
		name     string
		settings tenant.Settings
		seed     []events.Record
		wantRule string
	}{
		{
			name:     "cooldown",
			settings: tenant.Settings{ID: "acme", CooldownHours: 24},
			seed:     []events.Record{suggestion("a1", "u1", "v7", fixedNow.Add(-2*time.Hour))},
			wantRule: RuleCooldown,
		},
		{
			name:     "cooldown elapsed",
			settings: tenant.Settings{ID: "acme", CooldownHours: 1},
			seed:     []events.Record{suggestion("a1", "u1", "v7", fixedNow.Add(-2*time.Hour))},
		},
		{
			name:     "daily cap",
			settings: tenant.Settings{ID: "acme", DailyCap: 2},
			seed: []events.Record{
				suggestion("a1", "u2", "v2", fixedNow.Add(-time.Hour)),
				suggestion("a1", "u3", "v3", fixedNow.Add(-2*time.Hour)),
			},
			wantRule: RuleDailyCap,
		},
		{
			name:     "daily cap ignores yesterday",
			settings: tenant.Settings{ID: "acme", DailyCap: 1},
			seed:     []events.Record{suggestion("a1", "u2", "v2", fixedNow.Add(-20*time.Hour))},
		},
		{
			name:     "video cap",
			settings: tenant.Settings{ID: "acme", VideoCap: 1},
			seed:     []events.Record{suggestion("a1", "u2", "v1", fixedNow.Add(-time.Hour))},
			wantRule: RuleVideoCap,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store := newService(t, tt.settings)
			for _, r := range tt.seed {
				require.NoError(t, store.Record(context.Background(), r))
			}
			res := svc.PreCheck(context.Background(), target("a1"), policy.StrategyAnswer)
			if tt.wantRule == "" {
				assert.True(t, res.Allowed, res.Reason)
				return
			}
			assert.False(t, res.Allowed)
			assert.Equal(t, tt.wantRule, res.RuleID)
			assert.Equal(t, policy.StrategySilentCapture, res.OverrideStrategy)
			assert.NotEmpty(t, res.Reason)
		})
	}
}

func TestPreCheck_CountsAreScopedByAccount(t *testing.T) {
	svc, store := newService(t, tenant.Settings{ID: "acme", VideoCap: 1})
	require.NoError(t, store.Record(context.Background(), suggestion("a1", "u2", "v1", fixedNow.Add(-time.Hour))))

	assert.Equal(t, RuleVideoCap, svc.PreCheck(context.Background(), target("a1"), policy.StrategyAnswer).RuleID)
	assert.True(t, svc.PreCheck(context.Background(), target("a2"), policy.StrategyAnswer).Allowed)
}

func TestPreCheck_BurstLimit(t *testing.T) {
	svc, _ := newService(t, tenant.Settings{ID: "acme", BurstPerMinute: 1, Burst: 2})

	assert.True(t, svc.PreCheck(context.Background(), target("a1"), policy.StrategyAnswer).Allowed)
	assert.True(t, svc.PreCheck(context.Background(), target("a1"), policy.StrategyAnswer).Allowed)
	res := svc.PreCheck(context.Background(), target("a1"), policy.StrategyAnswer)
	assert.Equal(t, RuleBurstLimit, res.RuleID)

	assert.True(t, svc.PreCheck(context.Background(), target("a2"), policy.StrategyAnswer).Allowed)
}

func TestPreCheck_ShadowModeAllowsButFlags(t *testing.T) {
	svc, store := newService(t, tenant.Settings{ID: "acme", DailyCap: 1, Shadow: true})
	require.NoError(t, store.Record(context.Background(), suggestion("a1", "u2", "v2", fixedNow.Add(-time.Hour))))

	res := svc.PreCheck(context.Background(), target("a1"), policy.StrategyAnswer)
	assert.True(t, res.Allowed)
	assert.True(t, res.ShadowViolation)
	assert.Equal(t, RuleDailyCap, res.RuleID)
	assert.Empty(t, res.OverrideStrategy)
}

func TestPreCheck_FailsClosed(t *testing.T) {
	svc, store := newService(t, tenant.Settings{ID: "acme", Shadow: true})
	store.Err = errors.New("db locked")

	res := svc.PreCheck(context.Background(), target("a1"), policy.StrategyAnswer)
	assert.False(t, res.Allowed)
	assert.Equal(t, RuleCountUnavailable, res.RuleID)
	assert.Equal(t, policy.StrategyIgnore, res.OverrideStrategy)

	res = svc.PreCheck(context.Background(), Target{TenantID: "ghost"}, policy.StrategyAnswer)
	assert.Equal(t, RuleSettingsUnavailable, res.RuleID)
	assert.False(t, res.Allowed)
}

func TestPostCheck(t *testing.T) {
	svc, _ := newService(t, tenant.Settings{
		ID:            "acme",
		BannedPhrases: []string{"Guaranteed Results"},
		OwnedDomains:  []string{"acme.example.com"},
	})
	long := make([]byte, 151)
	for i := range long {
		long[i] = 'a'
	}

	tests := []struct {
		name     string
		draft    string
		owned    bool
		wantRule string
	}{
		{"ok", "Thanks for asking! It comes in three shades.", false, ""},
		{"empty", "   ", true, RuleEmptyDraft},
		{"too long", string(long), true, RuleDraftTooLong},
		{"link off owned", "Grab it at https://acme.example.com/p/1", false, RuleLinkOutsideOwned},
		{"bare domain off owned", "see shop.example.com", false, RuleLinkOutsideOwned},
		{"owned domain on owned", "Grab it at https://acme.example.com/p/1", true, ""},
		{"foreign domain on owned", "Try https://rival.com/deal", true, RuleLinkOutsideOwned},
		{"banned phrase", "guaranteed results in a week", true, RuleBannedPhrase},
		{"customer email", "email jane.doe@gmail.com for details", true, RulePIIInDraft},
		{"owned contact email", "write to care@acme.example.com anytime", true, ""},
		{"phone number", "call +44 20 7946 0958 today", true, RulePIIInDraft},
		{"card number", "use card 4111 1111 1111 1111", true, RulePIIInDraft},
		{"short numbers are fine", "it comes in 3 sizes for 25 dollars", true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := svc.PostCheck(context.Background(), target("a1"), tt.draft, tt.owned)
			if tt.wantRule == "" {
				assert.True(t, res.Allowed, res.Reason)
				return
			}
			assert.False(t, res.Allowed)
			assert.Equal(t, tt.wantRule, res.RuleID)
		})
	}
}

func TestKillSwitch_Snapshot(t *testing.T) {
	k := NewKillSwitch()
	k.Set("TikTok", true)
	k.Set("youtube", true)
	k.Set("youtube", false)
	global, platforms := k.Snapshot()
	assert.False(t, global)
	assert.Equal(t, []string{"tiktok"}, platforms)
}
