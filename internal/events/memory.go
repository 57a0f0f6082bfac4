package events

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store for tests and single-node runs.
type MemoryStore struct {
	mu      sync.RWMutex
	records []Record
	unknown []UnknownIntent
	// Err, when set, is returned by every count query.
	Err error
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Record(_ context.Context, r Record) error {
	if r.ID == "" {
		r.ID = "evt_" + uuid.New().String()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	m.mu.Lock()
	m.records = append(m.records, r)
	m.mu.Unlock()
	return nil
}

func (q Query) matches(r Record) bool {
	switch {
	case r.TenantID != q.TenantID:
		return false
	case !q.AllAccounts && r.AccountID != q.AccountID:
		return false
	case q.ActorID != "" && r.ActorID != q.ActorID:
		return false
	case q.VideoID != "" && r.VideoID != q.VideoID:
		return false
	case q.Kind != "" && r.Kind != q.Kind:
		return false
	case !q.Since.IsZero() && r.CreatedAt.Before(q.Since):
		return false
	}
	return true
}

func (m *MemoryStore) CountEvents(_ context.Context, q Query) (int, error) {
	if m.Err != nil {
		return 0, m.Err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, r := range m.records {
		if q.matches(r) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) LastEventAt(_ context.Context, q Query) (time.Time, bool, error) {
	if m.Err != nil {
		return time.Time{}, false, m.Err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var last time.Time
	found := false
	for _, r := range m.records {
		if q.matches(r) && (!found || r.CreatedAt.After(last)) {
			last, found = r.CreatedAt, true
		}
	}
	return last, found, nil
}

func (m *MemoryStore) RecordUnknown(_ context.Context, u UnknownIntent) error {
	if u.ID == "" {
		u.ID = "unk_" + uuid.New().String()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	m.mu.Lock()
	m.unknown = append(m.unknown, u)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) ListUnknown(_ context.Context, tenantID string, limit int) ([]UnknownIntent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []UnknownIntent
	for _, u := range m.unknown {
		if tenantID == "" || u.TenantID == tenantID {
			out = append(out, u)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) Purge(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var purged int64
	kept := m.records[:0]
	for _, r := range m.records {
		if r.CreatedAt.Before(cutoff) {
			purged++
			continue
		}
		kept = append(kept, r)
	}
	m.records = kept
	keptU := m.unknown[:0]
	for _, u := range m.unknown {
		if u.CreatedAt.Before(cutoff) {
			purged++
			continue
		}
		keptU = append(keptU, u)
	}
	m.unknown = keptU
	return purged, nil
}

func (m *MemoryStore) Close() error { return nil }
