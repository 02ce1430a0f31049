package service

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wrapshot/agent/internal/domain"
)

func TestCheckReferences(t *testing.T) {
	cases := []struct {
		name     string
		args     string
		position int
		found    bool
		wantErr  bool
	}{
		{"plain dollar amount", `{"description":"$5"}`, 2, false, false},
		{"dollar with cents", `{"description":"$1.50"}`, 2, false, false},
		{"dollar query", `{"query":"$1"}`, 1, false, false},
		{"earlier step", `{"scene_id":{"$ref":"1.id"}}`, 2, true, false},
		{"whole result", `{"cast_ids":[{"$ref":"1"}]}`, 3, true, false},
		{"same step", `{"scene_id":{"$ref":"2.id"}}`, 2, true, true},
		{"later step", `{"scene_id":{"$ref":"3.id"}}`, 2, true, true},
		{"extra key", `{"scene_id":{"$ref":"1.id","note":"x"}}`, 2, false, true},
		{"not a step", `{"scene_id":{"$ref":"first"}}`, 2, false, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			found, err := checkReferences(json.RawMessage(tc.args), tc.position)
			if tc.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidArguments)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.found, found)
		})
	}
}

func TestResolveReferences(t *testing.T) {
	earlier := []domain.ExecutionResultItem{
		{ToolName: "create_scene", Result: domain.ToolResult{Success: true, Data: json.RawMessage(`{"id":"scn_1","cast_ids":["c1"]}`)}},
		{ToolName: "delete_scene", Result: domain.ToolResult{Success: false, Error: "not found"}},
	}

	t.Run("dollar text stays literal", func(t *testing.T) {
		args := json.RawMessage(`{"description":"$1.50","notes":"$5"}`)
		out, err := resolveReferences(args, earlier)
		require.NoError(t, err)
		assert.JSONEq(t, string(args), string(out))
	})

	t.Run("path into earlier result", func(t *testing.T) {
		out, err := resolveReferences(json.RawMessage(`{"scene_id":{"$ref":"1.id"},"description":"$1.50"}`), earlier)
		require.NoError(t, err)
		assert.JSONEq(t, `{"scene_id":"scn_1","description":"$1.50"}`, string(out))
	})

	t.Run("nested in array", func(t *testing.T) {
		out, err := resolveReferences(json.RawMessage(`{"ids":[{"$ref":"1.cast_ids.0"},"c2"]}`), earlier)
		require.NoError(t, err)
		assert.JSONEq(t, `{"ids":["c1","c2"]}`, string(out))
	})

	t.Run("failed step", func(t *testing.T) {
		_, err := resolveReferences(json.RawMessage(`{"scene_id":{"$ref":"2.id"}}`), earlier)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "step 2 (delete_scene) failed")
	})

	t.Run("missing field", func(t *testing.T) {
		_, err := resolveReferences(json.RawMessage(`{"scene_id":{"$ref":"1.number"}}`), earlier)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `has no "number"`)
	})
}
