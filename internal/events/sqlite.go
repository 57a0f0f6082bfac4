package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// SQLiteStore persists events and unknown intents in SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// Timestamps are stored as Unix nanoseconds so range filters compare numerically.

// NewSQLiteStore opens (and migrates) the database at dbPath. Use ":memory:" in tests.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening events database: %w", err)
	}
	// An in-memory database is per connection.
	db.SetMaxOpenConns(1)

	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		account_id TEXT NOT NULL DEFAULT '',
		platform TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		video_id TEXT NOT NULL,
		comment_id TEXT NOT NULL DEFAULT '',
		kind TEXT NOT NULL,
		intent TEXT NOT NULL DEFAULT '',
		strategy TEXT NOT NULL DEFAULT '',
		blocked_by_plan INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_scope ON events(tenant_id, account_id, kind, created_at);
	CREATE INDEX IF NOT EXISTS idx_events_actor ON events(tenant_id, account_id, actor_id, created_at);

	CREATE TABLE IF NOT EXISTS unknown_intents (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		text TEXT NOT NULL,
		primary_intent TEXT NOT NULL,
		strength TEXT NOT NULL,
		signals_json TEXT NOT NULL,
		confidence REAL NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_unknown_tenant ON unknown_intents(tenant_id, created_at);
	`
	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating events schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Record inserts r, assigning an ID and timestamp when missing.
func (s *SQLiteStore) Record(ctx context.Context, r Record) error {
	ctx, span := tracer.Start(ctx, "events.record",
		trace.WithAttributes(
			attribute.String("tenant_id", r.TenantID),
			attribute.String("kind", string(r.Kind)),
		))
	defer span.End()

	if r.ID == "" {
		r.ID = "evt_" + uuid.New().String()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO events
		(id, tenant_id, account_id, platform, actor_id, video_id, comment_id, kind, intent, strategy, blocked_by_plan, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.TenantID, r.AccountID, r.Platform, r.ActorID, r.VideoID, r.CommentID,
		string(r.Kind), r.Intent, r.Strategy, r.BlockedByPlan, r.CreatedAt.UnixNano(),
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("storing event: %w", err)
	}
	return nil
}

func whereClause(q Query) (string, []interface{}) {
	where := `WHERE tenant_id = ?`
	args := []interface{}{q.TenantID}
	if !q.AllAccounts {
		where += ` AND account_id = ?`
		args = append(args, q.AccountID)
	}
	if q.ActorID != "" {
		where += ` AND actor_id = ?`
		args = append(args, q.ActorID)
	}
	if q.VideoID != "" {
		where += ` AND video_id = ?`
		args = append(args, q.VideoID)
	}
	if q.Kind != "" {
		where += ` AND kind = ?`
		args = append(args, string(q.Kind))
	}
	if !q.Since.IsZero() {
		where += ` AND created_at >= ?`
		args = append(args, q.Since.UnixNano())
	}
	return where, args
}

// CountEvents implements Counter.
func (s *SQLiteStore) CountEvents(ctx context.Context, q Query) (int, error) {
	ctx, span := tracer.Start(ctx, "events.count")
	defer span.End()

	where, args := whereClause(q)
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events `+where, args...).Scan(&n); err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("counting events: %w", err)
	}
	span.SetAttributes(attribute.Int("count", n))
	return n, nil
}

// LastEventAt implements Counter.
func (s *SQLiteStore) LastEventAt(ctx context.Context, q Query) (time.Time, bool, error) {
	ctx, span := tracer.Start(ctx, "events.last")
	defer span.End()

	where, args := whereClause(q)
	var last int64
	err := s.db.QueryRowContext(ctx, `SELECT created_at FROM events `+where+` ORDER BY created_at DESC LIMIT 1`, args...).Scan(&last)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		span.RecordError(err)
		return time.Time{}, false, fmt.Errorf("querying last event: %w", err)
	}
	return time.Unix(0, last).UTC(), true, nil
}

// RecordUnknown stores an unknown-intent sample.
func (s *SQLiteStore) RecordUnknown(ctx context.Context, u UnknownIntent) error {
	ctx, span := tracer.Start(ctx, "events.record_unknown")
	defer span.End()

	if u.ID == "" {
		u.ID = "unk_" + uuid.New().String()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	signals, err := json.Marshal(u.Signals)
	if err != nil {
		return fmt.Errorf("marshaling signals: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO unknown_intents
		(id, tenant_id, text, primary_intent, strength, signals_json, confidence, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.TenantID, u.Text, u.Primary, u.Strength, string(signals), u.Confidence, u.CreatedAt.UnixNano(),
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("storing unknown intent: %w", err)
	}
	return nil
}

// ListUnknown returns the newest unknown-intent samples. An empty tenantID lists all tenants.
func (s *SQLiteStore) ListUnknown(ctx context.Context, tenantID string, limit int) ([]UnknownIntent, error) {
	ctx, span := tracer.Start(ctx, "events.list_unknown")
	defer span.End()

	query := `SELECT id, tenant_id, text, primary_intent, strength, signals_json, confidence, created_at FROM unknown_intents`
	args := []interface{}{}
	if tenantID != "" {
		query += ` WHERE tenant_id = ?`
		args = append(args, tenantID)
	}
	query += ` ORDER BY created_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying unknown intents: %w", err)
	}
	defer rows.Close()

	var out []UnknownIntent
	for rows.Next() {
		var u UnknownIntent
		var signals string
		var created int64
		if err := rows.Scan(&u.ID, &u.TenantID, &u.Text, &u.Primary, &u.Strength, &signals, &u.Confidence, &created); err != nil {
			return nil, fmt.Errorf("scanning unknown intent: %w", err)
		}
		if err := json.Unmarshal([]byte(signals), &u.Signals); err != nil {
			return nil, fmt.Errorf("decoding signals: %w", err)
		}
		u.CreatedAt = time.Unix(0, created).UTC()
		out = append(out, u)
	}
	return out, rows.Err()
}

// Purge deletes events and unknown intents older than cutoff.
func (s *SQLiteStore) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, span := tracer.Start(ctx, "events.purge")
	defer span.End()

	var total int64
	for _, table := range []string{"events", "unknown_intents"} {
		res, err := s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE created_at < ?`, cutoff.UnixNano())
		if err != nil {
			span.RecordError(err)
			return total, fmt.Errorf("purging %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	span.SetAttributes(attribute.Int64("purged", total))
	return total, nil
}
