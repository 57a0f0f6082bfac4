package tenant

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/events"
	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/policy"
)

func TestManager_ValidateRequest_TenantNotFound(t *testing.T) {
	m := NewManager([]Settings{{ID: "acme", RequestsPerSecond: 10}}, nil)
	err := m.ValidateRequest(context.Background(), "other")
	assert.ErrorIs(t, err, ErrTenantNotFound)
}

func TestManager_ValidateRequest_Allowed(t *testing.T) {
	m := NewManager([]Settings{{ID: "acme", RequestsPerSecond: 100}}, events.NewMemoryStore())
	assert.NoError(t, m.ValidateRequest(context.Background(), "acme"))
}

func TestManager_ValidateRequest_RateLimitExceeded(t *testing.T) {
	m := NewManager([]Settings{{ID: "acme", RequestsPerSecond: 1}}, nil)
	ctx := context.Background()

	var lastErr error
	for i := 0; i < 5; i++ {
		lastErr = m.ValidateRequest(ctx, "acme")
	}
	assert.ErrorIs(t, lastErr, ErrRateLimitExceeded)
}

func TestManager_SettingsAppliesDefaults(t *testing.T) {
	m := NewManager([]Settings{{ID: "acme"}}, nil)
	s, err := m.Settings(context.Background(), "acme")
	require.NoError(t, err)

	assert.Equal(t, ModeSuggest, s.Mode)
	assert.Equal(t, policy.AggressivenessConservative, s.Aggressiveness)
	assert.Equal(t, DefaultDailyCap, s.DailyCap)
	assert.Equal(t, DefaultVideoCap, s.VideoCap)
	assert.Equal(t, DefaultCooldownHours, s.CooldownHours)

	s.DailyCap = 1
	again, _ := m.Settings(context.Background(), "acme")
	assert.Equal(t, DefaultDailyCap, again.DailyCap, "settings must be returned by copy")
}

func TestManager_ResolveAPIKey(t *testing.T) {
	m := NewManager([]Settings{
		{ID: "acme", APIKeys: []string{"key-a", "key-b"}},
		{ID: "globex", APIKeys: []string{"key-g"}},
	}, nil)

	tests := []struct {
		key    string
		want   string
		wantOK bool
	}{
		{"key-a", "acme", true},
		{"key-b", "acme", true},
		{"key-g", "globex", true},
		{"nope", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		id, ok := m.ResolveAPIKey(tt.key)
		assert.Equal(t, tt.wantOK, ok, tt.key)
		assert.Equal(t, tt.want, id, tt.key)
	}
}

func TestManager_CheckQuota(t *testing.T) {
	ctx := context.Background()
	store := events.NewMemoryStore()
	m := NewManager([]Settings{{
		ID:   "acme",
		Plan: Plan{Name: "starter", DailyEventLimit: 3, DailySuggestionLimit: 1},
	}}, store)

	require.NoError(t, m.CheckQuota(ctx, "acme"))

	// Suggestions from any account count against the tenant.
	require.NoError(t, store.Record(ctx, events.Record{TenantID: "acme", AccountID: "a2", Kind: events.KindSuggestion}))
	assert.ErrorIs(t, m.CheckQuota(ctx, "acme"), ErrDailySuggestionLimit)

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Record(ctx, events.Record{TenantID: "acme", AccountID: "a1", Kind: events.KindEvent}))
	}
	assert.ErrorIs(t, m.CheckQuota(ctx, "acme"), ErrDailyEventLimit)
}

func TestManager_CheckQuota_IgnoresYesterday(t *testing.T) {
	ctx := context.Background()
	store := events.NewMemoryStore()
	m := NewManager([]Settings{{ID: "acme", Plan: Plan{DailyEventLimit: 1}}}, store)

	require.NoError(t, store.Record(ctx, events.Record{
		TenantID: "acme", Kind: events.KindEvent, CreatedAt: time.Now().Add(-48 * time.Hour),
	}))
	assert.NoError(t, m.CheckQuota(ctx, "acme"))
}

func TestManager_CheckQuota_CountErrorPropagates(t *testing.T) {
	store := events.NewMemoryStore()
	store.Err = errors.New("disk gone")
	m := NewManager([]Settings{{ID: "acme", Plan: Plan{DailyEventLimit: 5}}}, store)

	err := m.CheckQuota(context.Background(), "acme")
	assert.EqualError(t, err, "disk gone")
}

func TestManager_CheckQuota_UnlimitedPlanSkipsCounts(t *testing.T) {
	store := events.NewMemoryStore()
	store.Err = errors.New("should not be called")
	m := NewManager([]Settings{{ID: "acme"}}, store)
	assert.NoError(t, m.CheckQuota(context.Background(), "acme"))
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tenants.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
tenants:
  - id: acme
    display_name: Acme Beauty
    api_keys: [k1]
    mode: ASSIST
    aggressiveness: BALANCED
    daily_cap: 20
    platform_kill_switch:
      TikTok: true
    banned_phrases: ["guaranteed results"]
    owned_domains: ["acme.example"]
    blocked_intents: [HOSTILE]
    plan:
      name: pro
      daily_event_limit: 1000
  - id: globex
`), 0o600))

	tenants, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, tenants, 2)

	acme := tenants[0]
	assert.Equal(t, ModeAssist, acme.Mode)
	assert.Equal(t, policy.AggressivenessBalanced, acme.Aggressiveness)
	assert.Equal(t, 20, acme.DailyCap)
	assert.Equal(t, DefaultVideoCap, acme.VideoCap)
	assert.True(t, acme.PlatformKilled("tiktok"))
	assert.False(t, acme.PlatformKilled("youtube"))
	assert.Equal(t, 1000, acme.Plan.DailyEventLimit)
	assert.Len(t, acme.BlockedIntents, 1)

	assert.Equal(t, ModeSuggest, tenants[1].Mode)
}

func TestParseSettings_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"missing id", "tenants:\n  - mode: ASSIST\n"},
		{"bad mode", "tenants:\n  - id: a\n    mode: LOUD\n"},
		{"bad aggressiveness", "tenants:\n  - id: a\n    aggressiveness: WILD\n"},
		{"duplicate", "tenants:\n  - id: a\n  - id: a\n"},
		{"not yaml", "tenants: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSettings([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}
