// Package tenant provides tenant settings, API-key mapping, ingestion rate
// limiting and billing-plan quota checks.
package tenant

import (
	"context"
	"crypto/subtle"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/events"
)

var (
	ErrTenantNotFound       = errors.New("tenant not found")
	ErrRateLimitExceeded    = errors.New("rate limit exceeded")
	ErrDailyEventLimit      = errors.New("daily event limit reached")
	ErrDailySuggestionLimit = errors.New("daily suggestion limit reached")
)

// Provider is the read-only settings collaborator the pipeline depends on.
type Provider interface {
	Settings(ctx context.Context, tenantID string) (*Settings, error)
}

// Manager serves tenant settings and validates requests per tenant.
type Manager struct {
	mu       sync.RWMutex
	tenants  map[string]*Settings
	limiters map[string]*rate.Limiter
	counter  events.Counter
	now      func() time.Time
}

// NewManager creates a manager over tenants. counter may be nil, which
// disables plan quota checks.
func NewManager(tenants []Settings, counter events.Counter) *Manager {
	m := &Manager{
		tenants:  make(map[string]*Settings, len(tenants)),
		limiters: make(map[string]*rate.Limiter),
		counter:  counter,
		now:      time.Now,
	}
	for i := range tenants {
		t := tenants[i]
		t.ApplyDefaults()
		m.tenants[t.ID] = &t
		if t.RequestsPerSecond > 0 {
			m.limiters[t.ID] = rate.NewLimiter(rate.Limit(t.RequestsPerSecond), t.RequestsPerSecond*2) // burst = 2s worth
		}
	}
	return m
}

// Settings returns a copy of the tenant's settings.
func (m *Manager) Settings(_ context.Context, tenantID string) (*Settings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tenants[tenantID]
	if !ok {
		return nil, ErrTenantNotFound
	}
	cp := *t
	return &cp, nil
}

// ResolveAPIKey maps an API key to its tenant id.
func (m *Manager) ResolveAPIKey(key string) (string, bool) {
	if key == "" {
		return "", false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for id, t := range m.tenants {
		for _, k := range t.APIKeys {
			if subtle.ConstantTimeCompare([]byte(k), []byte(key)) == 1 {
				return id, true
			}
		}
	}
	return "", false
}

// IDs lists known tenant ids.
func (m *Manager) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.tenants))
	for id := range m.tenants {
		ids = append(ids, id)
	}
	return ids
}

// ValidateRequest checks that the tenant exists and is within its ingestion rate.
func (m *Manager) ValidateRequest(_ context.Context, tenantID string) error {
	m.mu.RLock()
	_, ok := m.tenants[tenantID]
	lim := m.limiters[tenantID]
	m.mu.RUnlock()
	if !ok {
		return ErrTenantNotFound
	}
	if lim != nil && !lim.Allow() {
		return ErrRateLimitExceeded
	}
	return nil
}

// CheckQuota returns ErrDailyEventLimit or ErrDailySuggestionLimit when the
// tenant's plan is exhausted for the current UTC day. Count errors are returned
// as-is so callers can fail closed.
func (m *Manager) CheckQuota(ctx context.Context, tenantID string) error {
	t, err := m.Settings(ctx, tenantID)
	if err != nil {
		return err
	}
	if m.counter == nil {
		return nil
	}
	since := events.StartOfDay(m.now())

	if t.Plan.DailyEventLimit > 0 {
		n, err := m.counter.CountEvents(ctx, events.Query{TenantID: tenantID, AllAccounts: true, Kind: events.KindEvent, Since: since})
		if err != nil {
			return err
		}
		if n >= t.Plan.DailyEventLimit {
			return ErrDailyEventLimit
		}
	}
	if t.Plan.DailySuggestionLimit > 0 {
		n, err := m.counter.CountEvents(ctx, events.Query{TenantID: tenantID, AllAccounts: true, Kind: events.KindSuggestion, Since: since})
		if err != nil {
			return err
		}
		if n >= t.Plan.DailySuggestionLimit {
			return ErrDailySuggestionLimit
		}
	}
	return nil
}
