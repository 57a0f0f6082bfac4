package doctor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	tenants := filepath.Join(dir, "tenants.yaml")
	require.NoError(t, os.WriteFile(tenants, []byte("tenants:\n  - id: acme\n    brand: Acme\n    api_keys: [k1]\n"), 0o600))
	return &config.Config{
		DataDir:     dir,
		SigningKey:  "0123456789abcdef0123456789abcdef",
		AdminKey:    "admin",
		TenantsFile: tenants,
		Provider:    "ollama",
		Model:       "llama3",
	}
}

func find(r *Report, name string) (CheckResult, bool) {
	for _, c := range r.Checks {
		if c.Name == name {
			return c, true
		}
	}
	return CheckResult{}, false
}

func TestRun_HealthyOffline(t *testing.T) {
	cfg := testConfig(t)

	report := Run(context.Background(), cfg, Options{SkipUpstream: true})

	assert.Equal(t, StatusPass, report.Status, "%+v", report.Checks)
	assert.Zero(t, report.Summary.Fail)
	for _, name := range []string{
		"data_dir_writable", "signing_key", "admin_key", "llm_provider", "tenants_file",
		"rules_lexicon", "rules_opportunity", "rules_channels", "rules_templates",
		"events_db", "actions_db", "pending_actions",
	} {
		c, ok := find(report, name)
		if assert.True(t, ok, name) {
			assert.Equal(t, StatusPass, c.Status, "%s: %s", name, c.Message)
		}
	}
	for _, c := range report.Checks {
		assert.NotEqual(t, "upstream", c.Category)
	}
}

func TestRun_Warnings(t *testing.T) {
	cfg := testConfig(t)
	cfg.AdminKey = ""
	cfg.Provider = "openai"

	report := Run(context.Background(), cfg, Options{SkipUpstream: true})

	assert.Equal(t, StatusWarn, report.Status)
	c, _ := find(report, "admin_key")
	assert.Equal(t, StatusWarn, c.Status)
	c, _ = find(report, "llm_provider")
	assert.Equal(t, StatusWarn, c.Status)
	assert.Contains(t, c.Fix, "OPENAI_API_KEY")
}

func TestRun_Failures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(t *testing.T, cfg *config.Config)
		check  string
	}{
		{"missing tenants file", func(t *testing.T, cfg *config.Config) {
			cfg.TenantsFile = filepath.Join(cfg.DataDir, "nope.yaml")
		}, "tenants_file"},
		{"broken templates override", func(t *testing.T, cfg *config.Config) {
			p := filepath.Join(cfg.DataDir, "templates.yaml")
			require.NoError(t, os.WriteFile(p, []byte("templates: [unclosed"), 0o600))
			cfg.TemplatesPath = p
		}, "rules_templates"},
		{"missing lexicon override", func(t *testing.T, cfg *config.Config) {
			cfg.LexiconPath = filepath.Join(cfg.DataDir, "missing.yaml")
		}, "rules_lexicon"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.mutate(t, cfg)

			report := Run(context.Background(), cfg, Options{SkipUpstream: true})

			assert.Equal(t, StatusFail, report.Status)
			c, ok := find(report, tt.check)
			require.True(t, ok)
			assert.Equal(t, StatusFail, c.Status)
		})
	}
}

func TestRun_Upstreams(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer broken.Close()

	cfg := testConfig(t)
	cfg.OllamaBaseURL = healthy.URL
	cfg.RetrievalURL = broken.URL + "/retrieve"

	report := Run(context.Background(), cfg, Options{})

	c, ok := find(report, "upstream_ollama")
	require.True(t, ok)
	assert.Equal(t, StatusPass, c.Status)
	assert.Contains(t, c.Message, "/api/tags")

	c, ok = find(report, "upstream_retrieval")
	require.True(t, ok)
	assert.Equal(t, StatusFail, c.Status)
	assert.Equal(t, StatusFail, report.Status)
}

func TestRun_UnreachableRedis(t *testing.T) {
	cfg := testConfig(t)
	cfg.Provider = "none"
	cfg.RedisAddr = "127.0.0.1:1"

	report := Run(context.Background(), cfg, Options{})

	c, ok := find(report, "upstream_redis")
	require.True(t, ok)
	assert.Equal(t, StatusFail, c.Status)
}
