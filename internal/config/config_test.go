package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetViper(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"ENGAGE_SIGNING_KEY", "ENGAGE_DATA_DIR", "ENGAGE_PROVIDER", "ENGAGE_BREAKER",
		"ENGAGE_BREAKER_THRESHOLD", "ENGAGE_BREAKER_COOLDOWN", "ENGAGE_OLLAMA_BASE_URL",
		"ENGAGE_OPENAI_API_KEY", "ENGAGE_RETENTION_DAYS", "OPENAI_API_KEY",
	} {
		t.Setenv(k, "")
	}
	viper.Reset()
	viper.SetEnvPrefix("ENGAGE")
	viper.AutomaticEnv()
	SetDefaults(viper.GetViper())
}

func TestLoad_Defaults(t *testing.T) {
	resetViper(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultProvider, cfg.Provider)
	assert.Equal(t, DefaultModel, cfg.Model)
	assert.Equal(t, DefaultOllamaURL, cfg.OllamaBaseURL)
	assert.Equal(t, BreakerBuiltin, cfg.Breaker)
	assert.Equal(t, DefaultBreakerThreshold, cfg.BreakerThreshold)
	assert.Equal(t, DefaultBreakerCoolDown, cfg.BreakerCoolDown)
	assert.Equal(t, DefaultPromotionWindow, cfg.PromotionWindow)
	assert.Equal(t, DefaultRetentionDays, cfg.RetentionDays)
	assert.Empty(t, cfg.AdminKey)
	assert.True(t, cfg.UsingDefaultSigningKey(), "should report default key when none is set")
	assert.Len(t, cfg.SigningKey, 64)
}

func TestLoad_ExplicitSigningKey(t *testing.T) {
	resetViper(t)
	t.Setenv("ENGAGE_SIGNING_KEY", "my-signing-key-at-least-32-chars!")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "my-signing-key-at-least-32-chars!", cfg.SigningKey)
	assert.False(t, cfg.UsingDefaultSigningKey())
}

func TestLoad_Overrides(t *testing.T) {
	resetViper(t)
	dir := t.TempDir()
	t.Setenv("ENGAGE_DATA_DIR", dir)
	t.Setenv("ENGAGE_PROVIDER", "Ollama")
	t.Setenv("ENGAGE_OLLAMA_BASE_URL", "http://gpu-box:11434")
	t.Setenv("ENGAGE_BREAKER", "failsafe")
	t.Setenv("ENGAGE_BREAKER_COOLDOWN", "45s")
	t.Setenv("ENGAGE_RETENTION_DAYS", "7")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, "ollama", cfg.Provider)
	assert.Equal(t, "http://gpu-box:11434", cfg.OllamaBaseURL)
	assert.Equal(t, BreakerFailsafe, cfg.Breaker)
	assert.Equal(t, 45*time.Second, cfg.BreakerCoolDown)
	assert.Equal(t, 7, cfg.RetentionDays)
}

func TestLoad_OpenAIKeyFallsBackToStandardEnv(t *testing.T) {
	resetViper(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sk-test", cfg.OpenAIAPIKey)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		env     string
		value   string
		wantErr string
	}{
		{"short signing key", "ENGAGE_SIGNING_KEY", "short", "at least 32 bytes"},
		{"unknown provider", "ENGAGE_PROVIDER", "bard", "provider must be"},
		{"unknown breaker", "ENGAGE_BREAKER", "hystrix", "breaker must be"},
		{"zero threshold", "ENGAGE_BREAKER_THRESHOLD", "0", "breaker_threshold must be positive"},
		{"negative retention", "ENGAGE_RETENTION_DAYS", "-1", "retention_days"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetViper(t)
			t.Setenv(tt.env, tt.value)

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_Paths(t *testing.T) {
	cfg := &Config{DataDir: "/data/engage", TenantsFile: "no-such-tenants.yaml"}
	assert.Equal(t, "/data/engage/events.db", cfg.EventsDBPath())
	assert.Equal(t, "/data/engage/actions.db", cfg.ActionsDBPath())
	assert.Equal(t, "/data/engage/no-such-tenants.yaml", cfg.TenantsPath())

	cfg.TenantsFile = "/etc/engage/tenants.yaml"
	assert.Equal(t, "/etc/engage/tenants.yaml", cfg.TenantsPath())
}

func TestConfig_EnsureDataDir(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{DataDir: filepath.Join(dir, "nested", "deep")}
	require.NoError(t, cfg.EnsureDataDir())
	assert.DirExists(t, cfg.DataDir)
}

func TestDeriveDefaultKey(t *testing.T) {
	k1 := deriveDefaultKey("/home/user/.engage", "audit-signing")
	assert.Equal(t, k1, deriveDefaultKey("/home/user/.engage", "audit-signing"))
	assert.Len(t, k1, 64)
	assert.NoError(t, validateSigningKey(k1))
	assert.NotEqual(t, k1, deriveDefaultKey("/home/user/.engage", "other"))
	assert.NotEqual(t, k1, deriveDefaultKey("/home/other/.engage", "audit-signing"))
}
