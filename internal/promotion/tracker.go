package promotion

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Tracker keeps per tenant+actor history so live events aggregate the same
// way a batch would. It is safe for concurrent use.
type Tracker struct {
	engine *Engine

	mu      sync.Mutex
	history map[string][]Signal
}

// NewTracker creates a tracker over engine.
func NewTracker(engine *Engine) *Tracker {
	return &Tracker{engine: engine, history: make(map[string][]Signal)}
}

func actorKey(tenantID, actorID string) string { return tenantID + "\x00" + actorID }

// Process evaluates s against the actor's recent history and records it.
func (t *Tracker) Process(ctx context.Context, s Signal) Promoted {
	_, span := tracer.Start(ctx, "promotion.track")
	defer span.End()

	if s.ID == "" {
		s.ID = "sig_" + uuid.New().String()
	}
	if s.Timestamp.IsZero() {
		s.Timestamp = time.Now().UTC()
	}
	key := actorKey(s.TenantID, s.ActorID)

	t.mu.Lock()
	defer t.mu.Unlock()
	p := t.engine.Evaluate(s, t.engine.relevant(s, t.history[key]))

	cutoff := s.Timestamp.Add(-t.engine.cfg.Window)
	kept := make([]Signal, 0, len(t.history[key])+1)
	for _, h := range t.history[key] {
		if !h.Timestamp.Before(cutoff) {
			kept = append(kept, h)
		}
	}
	t.history[key] = append(kept, s)
	return p
}

// Prune drops history older than the window as of now and returns the number
// of signals removed.
func (t *Tracker) Prune(now time.Time) int {
	cutoff := now.Add(-t.engine.cfg.Window)
	t.mu.Lock()
	defer t.mu.Unlock()
	removed := 0
	for key, hist := range t.history {
		kept := hist[:0]
		for _, s := range hist {
			if s.Timestamp.Before(cutoff) {
				removed++
				continue
			}
			kept = append(kept, s)
		}
		if len(kept) == 0 {
			delete(t.history, key)
			continue
		}
		t.history[key] = kept
	}
	return removed
}

// Actors returns the number of actors with tracked history.
func (t *Tracker) Actors() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.history)
}
