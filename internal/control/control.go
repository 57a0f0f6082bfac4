// Package control holds action plans pending human approval and keeps a
// signed audit trail of every enqueue and decision.
package control

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/action"
	engageotel "github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/otel"
)

var tracer = engageotel.Tracer("github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/control")

var (
	ErrActionNotFound      = errors.New("action not found")
	ErrActionConflict      = errors.New("action already resolved")
	ErrActionExists        = errors.New("action already queued")
	ErrEditMessageRequired = errors.New("edit decision requires a replacement message")
	ErrInvalidDecision     = errors.New("invalid decision")
)

// Status is the execution status of a queued action.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
	StatusExecuted Status = "EXECUTED"
)

// DecisionType is what the reviewer chose.
type DecisionType string

const (
	DecisionApprove DecisionType = "APPROVE"
	DecisionReject  DecisionType = "REJECT"
	DecisionEdit    DecisionType = "EDIT"
)

// Decision is a reviewer's verdict on a pending action.
type Decision struct {
	Type      DecisionType `json:"decision"`
	Message   string       `json:"message,omitempty"`
	Reviewer  string       `json:"reviewer,omitempty"`
	DecidedAt time.Time    `json:"decided_at"`
}

// Action is a plan under human control.
type Action struct {
	Plan      action.Plan `json:"plan"`
	Status    Status      `json:"status"`
	Decision  *Decision   `json:"decision,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// ID is the plan id.
func (a *Action) ID() string { return a.Plan.ID }

func (a *Action) clone() *Action {
	c := *a
	c.Plan.Reasoning = append([]string(nil), a.Plan.Reasoning...)
	if a.Decision != nil {
		d := *a.Decision
		c.Decision = &d
	}
	return &c
}

// ListFilter selects queued actions. Empty fields do not filter.
type ListFilter struct {
	TenantID string
	Status   Status
	Limit    int
}

// Store persists actions. Resolve and MarkExecuted are compare-and-set on
// the current status so concurrent decisions resolve exactly once.
type Store interface {
	Insert(ctx context.Context, a *Action) error
	Get(ctx context.Context, id string) (*Action, error)
	// List orders by priority descending, then oldest first.
	List(ctx context.Context, f ListFilter) ([]*Action, error)
	// Resolve moves a PENDING action to status, recording d and replacing the
	// draft when draft is non-empty.
	Resolve(ctx context.Context, id string, status Status, d Decision, draft string) (*Action, error)
	// MarkExecuted moves an APPROVED action to EXECUTED.
	MarkExecuted(ctx context.Context, id string, at time.Time) (*Action, error)
	Close() error
}

// EventType names an audit entry.
type EventType string

const (
	EventQueued   EventType = "QUEUED"
	EventDecision EventType = "DECISION"
	EventExecuted EventType = "EXECUTED"
)

// AuditEntry is one immutable, signed audit record.
type AuditEntry struct {
	ID        string            `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	PlanID    string            `json:"plan_id"`
	TenantID  string            `json:"tenant_id"`
	EventType EventType         `json:"event_type"`
	Details   map[string]string `json:"details,omitempty"`
	Signature string            `json:"signature"`
}

// AuditLog appends and lists audit entries. Append signs the entry.
type AuditLog interface {
	Append(ctx context.Context, e *AuditEntry) error
	// List returns entries oldest first. An empty planID lists every plan of tenantID.
	List(ctx context.Context, tenantID, planID string, limit int) ([]AuditEntry, error)
	Close() error
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// Orchestrator is the approval queue front end.
type Orchestrator struct {
	store Store
	audit AuditLog
	now   func() time.Time
}

// NewOrchestrator wires a store and an audit log.
func NewOrchestrator(store Store, audit AuditLog, opts ...Option) *Orchestrator {
	o := &Orchestrator{store: store, audit: audit, now: time.Now}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Enqueue stores plan as PENDING and audits it.
func (o *Orchestrator) Enqueue(ctx context.Context, plan *action.Plan) (*Action, error) {
	ctx, span := tracer.Start(ctx, "control.enqueue",
		trace.WithAttributes(
			engageotel.EngagePlanID.String(plan.ID),
			engageotel.EngageTenant.String(plan.TenantID),
		))
	defer span.End()

	now := o.now().UTC()
	a := &Action{Plan: *plan, Status: StatusPending, CreatedAt: now, UpdatedAt: now}
	if err := o.store.Insert(ctx, a); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	err := o.record(ctx, a, EventQueued, map[string]string{
		"action_type": string(plan.ActionType),
		"channel":     string(plan.Channel),
		"priority":    fmt.Sprintf("%d", plan.Priority),
		"template_id": plan.TemplateID,
	})
	if err != nil {
		return nil, err
	}
	return a.clone(), nil
}

// Decide applies d to a pending action. EDIT requires a message and resolves
// to APPROVED with the draft replaced. A resolved action yields ErrActionConflict.
func (o *Orchestrator) Decide(ctx context.Context, id string, d Decision) (*Action, error) {
	ctx, span := tracer.Start(ctx, "control.decide",
		trace.WithAttributes(
			engageotel.EngagePlanID.String(id),
			attribute.String("decision", string(d.Type)),
		))
	defer span.End()

	d.Type = DecisionType(strings.ToUpper(string(d.Type)))
	var to Status
	draft := ""
	switch d.Type {
	case DecisionApprove:
		to = StatusApproved
	case DecisionReject:
		to = StatusRejected
	case DecisionEdit:
		draft = strings.TrimSpace(d.Message)
		if draft == "" {
			return nil, ErrEditMessageRequired
		}
		d.Message = draft
		to = StatusApproved
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidDecision, d.Type)
	}
	if d.DecidedAt.IsZero() {
		d.DecidedAt = o.now().UTC()
	}

	a, err := o.store.Resolve(ctx, id, to, d, draft)
	if err != nil {
		if errors.Is(err, ErrActionConflict) {
			log.Info().Str("plan_id", id).Str("decision", string(d.Type)).
				Func(engageotel.LogTraceFields(ctx)).Msg("control_decision_conflict")
		}
		span.RecordError(err)
		return nil, err
	}

	details := map[string]string{
		"decision": string(d.Type),
		"status":   string(a.Status),
	}
	if d.Reviewer != "" {
		details["reviewer"] = d.Reviewer
	}
	if d.Type == DecisionEdit {
		details["edited"] = "true"
	}
	if err := o.record(ctx, a, EventDecision, details); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("status", string(a.Status)))
	return a, nil
}

// MarkExecuted records that an external poster delivered an approved action.
func (o *Orchestrator) MarkExecuted(ctx context.Context, id string) (*Action, error) {
	ctx, span := tracer.Start(ctx, "control.mark_executed",
		trace.WithAttributes(engageotel.EngagePlanID.String(id)))
	defer span.End()

	a, err := o.store.MarkExecuted(ctx, id, o.now().UTC())
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if err := o.record(ctx, a, EventExecuted, nil); err != nil {
		return nil, err
	}
	return a, nil
}

// Get returns one action.
func (o *Orchestrator) Get(ctx context.Context, id string) (*Action, error) {
	return o.store.Get(ctx, id)
}

// Pending lists a tenant's pending actions, highest priority first.
func (o *Orchestrator) Pending(ctx context.Context, tenantID string, limit int) ([]*Action, error) {
	return o.store.List(ctx, ListFilter{TenantID: tenantID, Status: StatusPending, Limit: limit})
}

// List lists actions matching f.
func (o *Orchestrator) List(ctx context.Context, f ListFilter) ([]*Action, error) {
	return o.store.List(ctx, f)
}

// Audit returns the audit trail for a tenant, optionally narrowed to one plan.
func (o *Orchestrator) Audit(ctx context.Context, tenantID, planID string, limit int) ([]AuditEntry, error) {
	return o.audit.List(ctx, tenantID, planID, limit)
}

func (o *Orchestrator) record(ctx context.Context, a *Action, et EventType, details map[string]string) error {
	e := &AuditEntry{
		ID:        "aud_" + uuid.New().String(),
		Timestamp: o.now().UTC(),
		PlanID:    a.Plan.ID,
		TenantID:  a.Plan.TenantID,
		EventType: et,
		Details:   details,
	}
	if err := o.audit.Append(ctx, e); err != nil {
		log.Error().Err(err).Str("plan_id", a.Plan.ID).Str("event_type", string(et)).
			Func(engageotel.LogTraceFields(ctx)).Msg("control_audit_append_failed")
		return fmt.Errorf("recording audit entry: %w", err)
	}
	return nil
}
