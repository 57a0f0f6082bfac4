// Package events persists ingested interactions and drafted suggestions and
// answers the count queries that cooldown, cap and quota checks run on.
package events

import (
	"context"
	"errors"
	"time"

	engageotel "github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/otel"
)

var tracer = engageotel.Tracer("github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/events")

// ErrStoreClosed is returned after Close.
var ErrStoreClosed = errors.New("event store closed")

// Kind distinguishes an ingested interaction from a suggestion drafted for it.
type Kind string

const (
	KindEvent      Kind = "event"
	KindSuggestion Kind = "suggestion"
)

// Record is one persisted row.
type Record struct {
	ID            string    `json:"id"`
	TenantID      string    `json:"tenant_id"`
	AccountID     string    `json:"account_id"`
	Platform      string    `json:"platform"`
	ActorID       string    `json:"actor_id"`
	VideoID       string    `json:"video_id"`
	CommentID     string    `json:"comment_id,omitempty"`
	Kind          Kind      `json:"kind"`
	Intent        string    `json:"intent,omitempty"`
	Strategy      string    `json:"strategy,omitempty"`
	BlockedByPlan bool      `json:"blocked_by_plan,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Query selects records. Empty fields do not filter; Since is inclusive.
// TenantID and AccountID always filter (an empty AccountID matches only
// account-less rows) unless AllAccounts is set for tenant-wide plan quotas.
type Query struct {
	TenantID    string
	AccountID   string
	AllAccounts bool
	ActorID     string
	VideoID     string
	Kind        Kind
	Since       time.Time
}

// Counter is the read side used by the safety service and quota checks.
type Counter interface {
	CountEvents(ctx context.Context, q Query) (int, error)
	// LastEventAt returns the newest matching timestamp; ok is false when none match.
	LastEventAt(ctx context.Context, q Query) (t time.Time, ok bool, err error)
}

// UnknownIntent is a low-confidence or unmatched classification kept for
// lexicon tuning.
type UnknownIntent struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenant_id"`
	Text       string    `json:"text"`
	Primary    string    `json:"primary_intent"`
	Strength   string    `json:"strength"`
	Signals    []string  `json:"signals"`
	Confidence float64   `json:"confidence"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store is the full persistence collaborator.
type Store interface {
	Counter
	Record(ctx context.Context, r Record) error
	RecordUnknown(ctx context.Context, u UnknownIntent) error
	ListUnknown(ctx context.Context, tenantID string, limit int) ([]UnknownIntent, error)
	// Purge deletes records and unknown intents created before cutoff.
	Purge(ctx context.Context, cutoff time.Time) (int64, error)
	Close() error
}

// StartOfDay returns midnight UTC of t's day.
func StartOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
