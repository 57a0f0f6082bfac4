// Package requestctx carries per-request identity set by the HTTP middleware.
package requestctx

import "context"

type contextKey int

const (
	tenantKey contextKey = iota
	reviewerKey
)

// WithTenant stores the tenant resolved from the API key.
func WithTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantKey, tenantID)
}

// TenantID returns the authenticated tenant, or "".
func TenantID(ctx context.Context) string {
	v, _ := ctx.Value(tenantKey).(string)
	return v
}

// WithReviewer stores the reviewer named in the X-Engage-Reviewer header.
func WithReviewer(ctx context.Context, reviewer string) context.Context {
	return context.WithValue(ctx, reviewerKey, reviewer)
}

// Reviewer returns the reviewer for audit entries, or "".
func Reviewer(ctx context.Context) string {
	v, _ := ctx.Value(reviewerKey).(string)
	return v
}
