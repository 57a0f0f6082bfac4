package cmd

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/doctor"
)

func TestRenderDoctor(t *testing.T) {
	report := &doctor.Report{
		Status: doctor.StatusWarn,
		Checks: []doctor.CheckResult{
			{Name: "signing_key", Category: "config", Status: doctor.StatusWarn, Message: "Using derived default", Fix: "Set ENGAGE_SIGNING_KEY"},
			{Name: "admin_key", Category: "config", Status: doctor.StatusPass, Message: "Configured", Fix: "ignored"},
			{Name: "events_db", Category: "storage", Status: doctor.StatusFail, Message: "locked"},
		},
		Summary: doctor.Summary{Pass: 1, Warn: 1, Fail: 1},
	}

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, renderDoctor(&buf, report, false))
		out := buf.String()
		assert.Contains(t, out, "[config]")
		assert.Contains(t, out, "[storage]")
		assert.Contains(t, out, "⚠ signing_key: Using derived default")
		assert.Contains(t, out, "fix: Set ENGAGE_SIGNING_KEY")
		assert.NotContains(t, out, "ignored")
		assert.Contains(t, out, "✗ events_db: locked")
		assert.Contains(t, out, "1 passed, 1 warnings, 1 failed")
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, renderDoctor(&buf, report, true))
		var decoded doctor.Report
		require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
		assert.Equal(t, report.Status, decoded.Status)
		assert.Len(t, decoded.Checks, 3)
	})
}
