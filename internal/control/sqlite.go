package control

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// SQLiteStore persists the approval queue in SQLite. Timestamps are Unix
// nanoseconds.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and migrates) the queue at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening actions database: %w", err)
	}
	db.SetMaxOpenConns(1)

	schema := `
	CREATE TABLE IF NOT EXISTS actions (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		status TEXT NOT NULL,
		priority INTEGER NOT NULL,
		plan_json TEXT NOT NULL,
		decision_json TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_actions_queue ON actions(tenant_id, status, priority DESC, created_at);
	`
	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating actions schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Insert(ctx context.Context, a *Action) error {
	ctx, span := tracer.Start(ctx, "control.sqlite.insert",
		trace.WithAttributes(attribute.String("plan_id", a.Plan.ID)))
	defer span.End()

	plan, err := json.Marshal(a.Plan)
	if err != nil {
		return fmt.Errorf("marshaling plan: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO actions
		(id, tenant_id, status, priority, plan_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.Plan.ID, a.Plan.TenantID, string(a.Status), a.Plan.Priority, string(plan),
		a.CreatedAt.UnixNano(), a.UpdatedAt.UnixNano(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrActionExists
		}
		span.RecordError(err)
		return fmt.Errorf("storing action: %w", err)
	}
	return nil
}

const actionColumns = `plan_json, status, decision_json, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAction(row rowScanner) (*Action, error) {
	var plan, status, decision string
	var created, updated int64
	if err := row.Scan(&plan, &status, &decision, &created, &updated); err != nil {
		return nil, err
	}
	a := &Action{
		Status:    Status(status),
		CreatedAt: time.Unix(0, created).UTC(),
		UpdatedAt: time.Unix(0, updated).UTC(),
	}
	if err := json.Unmarshal([]byte(plan), &a.Plan); err != nil {
		return nil, fmt.Errorf("decoding plan: %w", err)
	}
	if decision != "" {
		a.Decision = &Decision{}
		if err := json.Unmarshal([]byte(decision), a.Decision); err != nil {
			return nil, fmt.Errorf("decoding decision: %w", err)
		}
	}
	return a, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*Action, error) {
	ctx, span := tracer.Start(ctx, "control.sqlite.get")
	defer span.End()

	a, err := scanAction(s.db.QueryRowContext(ctx, `SELECT `+actionColumns+` FROM actions WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, ErrActionNotFound
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("loading action %s: %w", id, err)
	}
	return a, nil
}

func (s *SQLiteStore) List(ctx context.Context, f ListFilter) ([]*Action, error) {
	ctx, span := tracer.Start(ctx, "control.sqlite.list")
	defer span.End()

	query := `SELECT ` + actionColumns + ` FROM actions WHERE 1 = 1`
	var args []interface{}
	if f.TenantID != "" {
		query += ` AND tenant_id = ?`
		args = append(args, f.TenantID)
	}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(f.Status))
	}
	query += ` ORDER BY priority DESC, created_at ASC, id ASC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("listing actions: %w", err)
	}
	defer rows.Close()

	var out []*Action
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning action: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// transition applies a status compare-and-set. mutate edits the loaded action
// before it is written back.
func (s *SQLiteStore) transition(ctx context.Context, id string, from Status, mutate func(*Action)) (*Action, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status != from {
		return nil, ErrActionConflict
	}
	mutate(a)

	plan, err := json.Marshal(a.Plan)
	if err != nil {
		return nil, fmt.Errorf("marshaling plan: %w", err)
	}
	decision := ""
	if a.Decision != nil {
		b, err := json.Marshal(a.Decision)
		if err != nil {
			return nil, fmt.Errorf("marshaling decision: %w", err)
		}
		decision = string(b)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE actions
		SET status = ?, plan_json = ?, decision_json = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(a.Status), string(plan), decision, a.UpdatedAt.UnixNano(), id, string(from),
	)
	if err != nil {
		return nil, fmt.Errorf("updating action %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("updating action %s: %w", id, err)
	}
	if n == 0 {
		return nil, ErrActionConflict
	}
	return a, nil
}

func (s *SQLiteStore) Resolve(ctx context.Context, id string, status Status, d Decision, draft string) (*Action, error) {
	ctx, span := tracer.Start(ctx, "control.sqlite.resolve",
		trace.WithAttributes(attribute.String("plan_id", id)))
	defer span.End()

	return s.transition(ctx, id, StatusPending, func(a *Action) {
		a.Status = status
		a.Decision = &d
		if draft != "" {
			a.Plan.DraftMessage = draft
		}
		a.UpdatedAt = d.DecidedAt
	})
}

func (s *SQLiteStore) MarkExecuted(ctx context.Context, id string, at time.Time) (*Action, error) {
	ctx, span := tracer.Start(ctx, "control.sqlite.mark_executed",
		trace.WithAttributes(attribute.String("plan_id", id)))
	defer span.End()

	return s.transition(ctx, id, StatusApproved, func(a *Action) {
		a.Status = StatusExecuted
		a.UpdatedAt = at
	})
}

// SQLiteAuditLog is an append-only, signed audit table.
type SQLiteAuditLog struct {
	db     *sql.DB
	signer *Signer
}

// NewSQLiteAuditLog opens (and migrates) the audit table at dbPath.
func NewSQLiteAuditLog(dbPath string, signer *Signer) (*SQLiteAuditLog, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening audit database: %w", err)
	}
	db.SetMaxOpenConns(1)

	schema := `
	CREATE TABLE IF NOT EXISTS audit_log (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		timestamp INTEGER NOT NULL,
		tenant_id TEXT NOT NULL,
		plan_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		entry_json TEXT NOT NULL,
		signature TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audit_plan ON audit_log(tenant_id, plan_id);
	`
	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating audit schema: %w", err)
	}
	return &SQLiteAuditLog{db: db, signer: signer}, nil
}

func (l *SQLiteAuditLog) Close() error {
	return l.db.Close()
}

func (l *SQLiteAuditLog) Append(ctx context.Context, e *AuditEntry) error {
	ctx, span := tracer.Start(ctx, "control.audit.append",
		trace.WithAttributes(
			attribute.String("plan_id", e.PlanID),
			attribute.String("event_type", string(e.EventType)),
		))
	defer span.End()

	e.Timestamp = e.Timestamp.UTC()
	if err := l.signer.SignEntry(e); err != nil {
		return err
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshaling audit entry: %w", err)
	}
	_, err = l.db.ExecContext(ctx, `INSERT INTO audit_log
		(id, timestamp, tenant_id, plan_id, event_type, entry_json, signature)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Timestamp.UnixNano(), e.TenantID, e.PlanID, string(e.EventType), string(data), e.Signature,
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("storing audit entry: %w", err)
	}
	return nil
}

func (l *SQLiteAuditLog) List(ctx context.Context, tenantID, planID string, limit int) ([]AuditEntry, error) {
	ctx, span := tracer.Start(ctx, "control.audit.list")
	defer span.End()

	query := `SELECT entry_json FROM audit_log WHERE 1 = 1`
	var args []interface{}
	if tenantID != "" {
		query += ` AND tenant_id = ?`
		args = append(args, tenantID)
	}
	if planID != "" {
		query += ` AND plan_id = ?`
		args = append(args, planID)
	}
	query += ` ORDER BY seq ASC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit log: %w", err)
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}
		var e AuditEntry
		if err := json.Unmarshal([]byte(data), &e); err != nil {
			return nil, fmt.Errorf("decoding audit entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
