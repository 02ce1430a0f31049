package policy

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wrapshot/agent/internal/domain"
)

func TestDefaultPolicy(t *testing.T) {
	ctx := context.Background()
	engine, err := LoadEngine(ctx, "")
	require.NoError(t, err)

	tests := []struct {
		name  string
		input Input
		want  Decision
	}{
		{"read is allowed", Input{ToolName: "get_scenes", Tier: domain.TierRead, BatchSize: 3}, DecisionAllow},
		{"mutate needs confirmation", Input{ToolName: "create_scene", Tier: domain.TierMutate, BatchSize: 1}, DecisionRequireConfirmation},
		{"destructive needs confirmation", Input{ToolName: "delete_scene", Tier: domain.TierDestructive, BatchSize: 2}, DecisionRequireConfirmation},
		{"oversized destructive plan is blocked", Input{ToolName: "delete_scene", Tier: domain.TierDestructive, BatchSize: 40}, DecisionBlock},
		{"oversized mutate plan is not blocked", Input{ToolName: "update_scene", Tier: domain.TierMutate, BatchSize: 40}, DecisionRequireConfirmation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := engine.Evaluate(ctx, tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Decision)
			assert.NotEmpty(t, res.Reason)
		})
	}
}

func TestCustomPolicySeesArgs(t *testing.T) {
	ctx := context.Background()
	content := `
package agent_policy

default result = "allow"

result = "require_confirmation" {
	input.tool_name == "get_crew"
	input.args.query == "salary"
}
`
	engine, err := NewEngine(ctx, content)
	require.NoError(t, err)

	res, err := engine.Evaluate(ctx, Input{ToolName: "get_crew", Tier: domain.TierRead, Args: json.RawMessage(`{"query":"salary"}`)})
	require.NoError(t, err)
	assert.Equal(t, DecisionRequireConfirmation, res.Decision)

	res, err = engine.Evaluate(ctx, Input{ToolName: "get_crew", Tier: domain.TierRead})
	require.NoError(t, err)
	assert.Equal(t, DecisionAllow, res.Decision)
}

func TestLoadEngineFromFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "policy.rego")
	require.NoError(t, os.WriteFile(path, []byte("package agent_policy\n\nresult = \"block\" { true }\n"), 0o600))

	engine, err := LoadEngine(ctx, path)
	require.NoError(t, err)
	res, err := engine.Evaluate(ctx, Input{ToolName: "get_scenes", Tier: domain.TierRead})
	require.NoError(t, err)
	assert.Equal(t, DecisionBlock, res.Decision)

	_, err = LoadEngine(ctx, filepath.Join(t.TempDir(), "missing.rego"))
	assert.Error(t, err)
}

func TestInvalidPolicies(t *testing.T) {
	ctx := context.Background()
	_, err := NewEngine(ctx, "package agent_policy\n\nresult = {")
	assert.Error(t, err)

	engine, err := NewEngine(ctx, "package agent_policy\n\nresult = \"maybe\" { true }\n")
	require.NoError(t, err)
	_, err = engine.Evaluate(ctx, Input{ToolName: "get_scenes", Tier: domain.TierRead})
	assert.Error(t, err)
}

func TestApplyTierFloor(t *testing.T) {
	allow := Result{Decision: DecisionAllow}
	assert.Equal(t, DecisionAllow, ApplyTierFloor(domain.TierRead, allow).Decision)
	assert.Equal(t, DecisionRequireConfirmation, ApplyTierFloor(domain.TierMutate, allow).Decision)
	assert.Equal(t, DecisionRequireConfirmation, ApplyTierFloor(domain.TierDestructive, allow).Decision)
	assert.Equal(t, DecisionBlock, ApplyTierFloor(domain.TierMutate, Result{Decision: DecisionBlock}).Decision)
}
