package policy

import (
	"context"
	"embed"
	"fmt"
	"sort"

	"github.com/open-policy-agent/opa/rego"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

//go:embed rego/*.rego
var embeddedPolicies embed.FS

const (
	gatePolicyFile = "rego/safety_gate.rego"
	gateQuery      = "data.engage.safety_gate.deny"
)

// Gate violation names.
const (
	ViolationPromotionalOutsideOwned = "promotional_outside_owned"
	ViolationAlternativeRoleMismatch = "alternative_template_role_mismatch"
	ViolationOwnerOutsideOwned       = "owner_voice_outside_owned"
	// ViolationGateUnavailable is reported when evaluation itself fails.
	ViolationGateUnavailable = "gate_unavailable"
)

// GateInput is one context/role/template combination.
type GateInput struct {
	Context          ContentContext
	Role             Role
	TemplateCategory TemplateCategory
}

// GateResult lists every violated rule. Allowed is true only when none fired.
type GateResult struct {
	Allowed    bool     `json:"allowed"`
	Violations []string `json:"violations,omitempty"`
}

// Gate evaluates the safety gate rules with embedded OPA.
type Gate struct {
	prepared rego.PreparedEvalQuery
}

// NewGate compiles the embedded gate policy.
func NewGate(ctx context.Context) (*Gate, error) {
	ctx, span := tracer.Start(ctx, "policy.gate.new")
	defer span.End()

	content, err := embeddedPolicies.ReadFile(gatePolicyFile)
	if err != nil {
		return nil, fmt.Errorf("reading embedded policy %s: %w", gatePolicyFile, err)
	}
	pq, err := rego.New(
		rego.Query(gateQuery),
		rego.Module(gatePolicyFile, string(content)),
	).PrepareForEval(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("preparing Rego policy %s: %w", gatePolicyFile, err)
	}
	return &Gate{prepared: pq}, nil
}

// Check evaluates one combination. An evaluation error vetoes with
// gate_unavailable; the gate never fails open.
func (g *Gate) Check(ctx context.Context, in GateInput) GateResult {
	ctx, span := tracer.Start(ctx, "policy.gate.check")
	defer span.End()

	violations, err := g.violations(ctx, in)
	if err != nil {
		span.RecordError(err)
		violations = []string{ViolationGateUnavailable}
	}
	res := GateResult{Allowed: len(violations) == 0, Violations: violations}
	span.SetAttributes(
		attribute.Bool("gate.allowed", res.Allowed),
		attribute.StringSlice("gate.violations", res.Violations),
	)
	return res
}

func (g *Gate) violations(ctx context.Context, in GateInput) ([]string, error) {
	results, err := g.prepared.Eval(ctx, rego.EvalInput(map[string]interface{}{
		"context":           string(in.Context),
		"role":              string(in.Role),
		"template_category": string(in.TemplateCategory),
	}))
	if err != nil {
		return nil, fmt.Errorf("evaluating safety gate: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return nil, nil
	}

	// A Rego set comes back as []interface{}.
	var out []string
	if set, ok := results[0].Expressions[0].Value.([]interface{}); ok {
		for _, v := range set {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}
