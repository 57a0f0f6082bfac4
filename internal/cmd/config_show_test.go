package cmd

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/config"
)

func TestRedact(t *testing.T) {
	assert.Equal(t, "(unset)", redact(""))
	assert.Equal(t, "****", redact("short"))
	assert.Equal(t, "sk-a****", redact("sk-abcdefghijkl"))
}

func TestRenderConfig_RedactsSecrets(t *testing.T) {
	cfg := &config.Config{
		DataDir:          "/data/engage",
		TenantsFile:      "/etc/engage/tenants.yaml",
		SigningKey:       "super-secret-signing-key-0123456789",
		OpenAIAPIKey:     "sk-live-abcdefghijkl",
		Provider:         "openai",
		Model:            "gpt-4o-mini",
		Breaker:          config.BreakerFailsafe,
		BreakerThreshold: 3,
		BreakerCoolDown:  30 * time.Second,
		ChannelsPath:     "/etc/engage/channels.yaml",
	}
	var buf bytes.Buffer
	renderConfig(&buf, cfg, "")
	out := buf.String()

	assert.Contains(t, out, "Config file:       (none)")
	assert.Contains(t, out, "/etc/engage/tenants.yaml")
	assert.NotContains(t, out, "super-secret")
	assert.NotContains(t, out, "abcdefghijkl")
	assert.Contains(t, out, "sk-l****")
	assert.Contains(t, out, "failsafe, 3 failures, 30s cool-down")
	assert.Contains(t, out, "/etc/engage/channels.yaml")
	assert.Contains(t, out, "embedded")
	assert.Contains(t, out, "(in-memory cache)")
}
