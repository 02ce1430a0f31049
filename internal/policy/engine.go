// Package policy evaluates tool calls against an OPA rego policy.
package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/rego"

	"github.com/wrapshot/agent/internal/domain"
)

// Decision is the outcome of evaluating one tool call.
type Decision string

const (
	DecisionAllow               Decision = "allow"
	DecisionRequireConfirmation Decision = "require_confirmation"
	DecisionBlock               Decision = "block"
)

func (d Decision) valid() bool {
	switch d {
	case DecisionAllow, DecisionRequireConfirmation, DecisionBlock:
		return true
	}
	return false
}

// Input is what a policy sees about a proposed call.
type Input struct {
	ToolName  string
	Tier      domain.Tier
	Args      json.RawMessage
	ProjectID string
	UserID    string
	// BatchSize is the number of tool calls the model proposed in the same turn.
	BatchSize int
}

// Result carries the decision and a human-readable reason.
type Result struct {
	Decision Decision
	Reason   string
}

// Evaluator decides whether a tool call may run.
type Evaluator interface {
	Evaluate(ctx context.Context, in Input) (Result, error)
}

// Engine is the OPA policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a new policy engine with the given policy content.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.agent_policy.result"),
		rego.Module("agent_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// LoadEngine reads the policy at path, or uses DefaultPolicy when path is empty.
func LoadEngine(ctx context.Context, path string) (*Engine, error) {
	if path == "" {
		return NewEngine(ctx, DefaultPolicy)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	return NewEngine(ctx, string(content))
}

// Evaluate checks one tool call. The policy may return either a decision
// string or an object {"decision": ..., "reason": ...}.
func (e *Engine) Evaluate(ctx context.Context, in Input) (Result, error) {
	var args any = map[string]any{}
	if len(in.Args) > 0 {
		if err := json.Unmarshal(in.Args, &args); err != nil {
			return Result{}, fmt.Errorf("failed to decode args for policy: %w", err)
		}
	}
	input := map[string]any{
		"tool_name":  in.ToolName,
		"tier":       string(in.Tier),
		"args":       args,
		"project_id": in.ProjectID,
		"user_id":    in.UserID,
		"batch_size": in.BatchSize,
	}

	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return Result{}, fmt.Errorf("failed to evaluate policy: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return Result{Decision: DecisionAllow, Reason: "no policy result"}, nil
	}

	var res Result
	switch val := results[0].Expressions[0].Value.(type) {
	case string:
		res.Decision = Decision(val)
	case map[string]any:
		d, _ := val["decision"].(string)
		reason, _ := val["reason"].(string)
		res = Result{Decision: Decision(d), Reason: reason}
	default:
		return Result{}, fmt.Errorf("unexpected policy result type %T", val)
	}
	if !res.Decision.valid() {
		return Result{}, fmt.Errorf("policy returned unknown decision %q", res.Decision)
	}
	return res, nil
}

// DefaultPolicy allows reads, asks for confirmation on writes and blocks
// oversized destructive plans.
const DefaultPolicy = `
package agent_policy

max_destructive_batch = 25

default result = {"decision": "allow", "reason": "read-only tool"}

result = {"decision": "block", "reason": msg} {
	input.tier == "destructive"
	input.batch_size > max_destructive_batch
	msg := sprintf("plan removes more than %d records at once", [max_destructive_batch])
} else = {"decision": "require_confirmation", "reason": msg} {
	input.tier != "read"
	msg := sprintf("%s tool requires confirmation", [input.tier])
}
`

// ApplyTierFloor keeps a policy from waiving confirmation for a write.
// A policy may escalate any call but never downgrade a mutate or destructive one.
func ApplyTierFloor(tier domain.Tier, res Result) Result {
	if res.Decision == DecisionAllow && tier != domain.TierRead {
		return Result{Decision: DecisionRequireConfirmation, Reason: fmt.Sprintf("%s tool requires confirmation", tier)}
	}
	return res
}
