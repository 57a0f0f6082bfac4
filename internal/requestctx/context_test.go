package requestctx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTenantID(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, TenantID(ctx))

	acme := WithTenant(ctx, "acme")
	assert.Equal(t, "acme", TenantID(acme))
	assert.Empty(t, TenantID(ctx))

	other := WithTenant(acme, "globex")
	assert.Equal(t, "globex", TenantID(other))
	assert.Equal(t, "acme", TenantID(acme))
}

func TestReviewerIsIndependentOfTenant(t *testing.T) {
	ctx := WithReviewer(WithTenant(context.Background(), "acme"), "sam")
	assert.Equal(t, "sam", Reviewer(ctx))
	assert.Equal(t, "acme", TenantID(ctx))
	assert.Empty(t, Reviewer(context.Background()))
}
