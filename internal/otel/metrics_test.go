package otel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRecordHelpers_NoProvider(t *testing.T) {
	ctx := context.Background()
	assert.NotPanics(t, func() {
		RecordDecision(ctx, "answer", "ANSWER")
		RecordBreakerTransition(ctx, "closed", "open")
		RecordCacheLookup(ctx, "memory", true)
		RecordSafetyBlock(ctx, "cooldown", false)
		RecordHTTPRequest(ctx, "POST", "/v1/engage", 200, 42*time.Millisecond)
	})
}
