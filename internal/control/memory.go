package control

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu      sync.Mutex
	actions map[string]*Action
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{actions: make(map[string]*Action)}
}

func (m *MemoryStore) Insert(_ context.Context, a *Action) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.actions[a.Plan.ID]; ok {
		return ErrActionExists
	}
	m.actions[a.Plan.ID] = a.clone()
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Action, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.actions[id]
	if !ok {
		return nil, ErrActionNotFound
	}
	return a.clone(), nil
}

func (m *MemoryStore) List(_ context.Context, f ListFilter) ([]*Action, error) {
	m.mu.Lock()
	out := make([]*Action, 0, len(m.actions))
	for _, a := range m.actions {
		if f.TenantID != "" && a.Plan.TenantID != f.TenantID {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		out = append(out, a.clone())
	}
	m.mu.Unlock()

	sortActions(out)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func sortActions(as []*Action) {
	sort.SliceStable(as, func(i, j int) bool {
		if as[i].Plan.Priority != as[j].Plan.Priority {
			return as[i].Plan.Priority > as[j].Plan.Priority
		}
		if !as[i].CreatedAt.Equal(as[j].CreatedAt) {
			return as[i].CreatedAt.Before(as[j].CreatedAt)
		}
		return as[i].Plan.ID < as[j].Plan.ID
	})
}

func (m *MemoryStore) Resolve(_ context.Context, id string, status Status, d Decision, draft string) (*Action, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.actions[id]
	if !ok {
		return nil, ErrActionNotFound
	}
	if a.Status != StatusPending {
		return nil, ErrActionConflict
	}
	a.Status = status
	a.Decision = &d
	if draft != "" {
		a.Plan.DraftMessage = draft
	}
	a.UpdatedAt = d.DecidedAt
	return a.clone(), nil
}

func (m *MemoryStore) MarkExecuted(_ context.Context, id string, at time.Time) (*Action, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.actions[id]
	if !ok {
		return nil, ErrActionNotFound
	}
	if a.Status != StatusApproved {
		return nil, ErrActionConflict
	}
	a.Status = StatusExecuted
	a.UpdatedAt = at
	return a.clone(), nil
}

func (m *MemoryStore) Close() error { return nil }

// MemoryAuditLog is an in-process, append-only AuditLog.
type MemoryAuditLog struct {
	mu      sync.RWMutex
	signer  *Signer
	entries []AuditEntry
}

// NewMemoryAuditLog signs entries with signer.
func NewMemoryAuditLog(signer *Signer) *MemoryAuditLog {
	return &MemoryAuditLog{signer: signer}
}

func (l *MemoryAuditLog) Append(_ context.Context, e *AuditEntry) error {
	if err := l.signer.SignEntry(e); err != nil {
		return err
	}
	c := *e
	if e.Details != nil {
		c.Details = make(map[string]string, len(e.Details))
		for k, v := range e.Details {
			c.Details[k] = v
		}
	}
	l.mu.Lock()
	l.entries = append(l.entries, c)
	l.mu.Unlock()
	return nil
}

func (l *MemoryAuditLog) List(_ context.Context, tenantID, planID string, limit int) ([]AuditEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []AuditEntry
	for _, e := range l.entries {
		if tenantID != "" && e.TenantID != tenantID {
			continue
		}
		if planID != "" && e.PlanID != planID {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (l *MemoryAuditLog) Close() error { return nil }
