package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wrapshot/agent/internal/adapter/llm"
	"github.com/wrapshot/agent/internal/audit"
	"github.com/wrapshot/agent/internal/domain"
	"github.com/wrapshot/agent/internal/policy"
	"github.com/wrapshot/agent/internal/production"
	"github.com/wrapshot/agent/internal/repository"
	"github.com/wrapshot/agent/internal/service"
	"github.com/wrapshot/agent/internal/tools"
)

var tc = domain.ToolContext{ProjectID: "p1", UserID: "u1"}

type fixture struct {
	svc    *service.Service
	store  *repository.SQLStore
	client *production.Client
	llm    *llm.ScriptedClient
	audit  *audit.MemoryWriter
}

type fixtureOption func(*service.Config, *policy.Evaluator)

func withMaxIterations(n int) fixtureOption {
	return func(cfg *service.Config, _ *policy.Evaluator) { cfg.MaxIterations = n }
}

func withPolicy(e policy.Evaluator) fixtureOption {
	return func(_ *service.Config, p *policy.Evaluator) { *p = e }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	store, err := repository.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	engine, err := policy.LoadEngine(context.Background(), "")
	require.NoError(t, err)
	var evaluator policy.Evaluator = engine
	cfg := service.Config{Model: "test-model"}
	for _, opt := range opts {
		opt(&cfg, &evaluator)
	}

	client := production.NewClient(store)
	scripted := llm.NewScriptedClient()
	events := audit.NewMemoryWriter()
	svc := service.New(store, store.Confirmations(), tools.NewProductionRegistry(client, zap.NewNop()),
		scripted, evaluator, events, cfg, zap.NewNop())
	return &fixture{svc: svc, store: store, client: client, llm: scripted, audit: events}
}

func (f *fixture) seedScene(t *testing.T, number, heading string) *production.Scene {
	t.Helper()
	scene, err := f.client.Scenes().Create(context.Background(), tc.ProjectID, &production.Scene{Number: number, Heading: heading})
	require.NoError(t, err)
	return scene
}

func (f *fixture) sceneCount(t *testing.T) int {
	t.Helper()
	scenes, err := f.client.Scenes().List(context.Background(), tc.ProjectID)
	require.NoError(t, err)
	return len(scenes)
}

// planDeleteScene14 runs the turn of Scenario B and returns its response.
func (f *fixture) planDeleteScene14(t *testing.T) *domain.TurnResponse {
	t.Helper()
	f.llm.ReplyToolCalls("", llm.ScriptedCall{Name: "delete_scene", Args: map[string]any{"scene_number": "14"}})
	resp, err := f.svc.SendMessage(context.Background(), tc, "delete scene 14")
	require.NoError(t, err)
	require.NotNil(t, resp.Confirmation)
	return resp
}

func TestReadOnlyTurnRunsWithoutConfirmation(t *testing.T) {
	f := newFixture(t)
	f.seedScene(t, "1", "INT. KITCHEN - NIGHT")
	f.seedScene(t, "2", "EXT. PIER - DAY")
	f.llm.
		ReplyToolCalls("", llm.ScriptedCall{Name: "get_scenes", Args: map[string]any{}}).
		ReplyText("You have 2 scenes.")

	resp, err := f.svc.SendMessage(context.Background(), tc, "how many scenes do I have")
	require.NoError(t, err)

	assert.Nil(t, resp.Confirmation)
	assert.Equal(t, "You have 2 scenes.", resp.Message.Content)
	require.NotNil(t, resp.Message.Metadata)
	assert.Equal(t, domain.MetadataToolCallsAuto, resp.Message.Metadata.Type)
	require.Len(t, resp.Message.Metadata.ToolCalls, 1)
	assert.Equal(t, "get_scenes", resp.Message.Metadata.ToolCalls[0].ToolName)
	assert.True(t, resp.Message.Metadata.ToolCalls[0].Success)

	requests := f.llm.Requests()
	require.Len(t, requests, 2)
	assert.Len(t, requests[0].Tools, 25)
	assert.Equal(t, llm.RoleSystem, requests[0].Messages[0].Role)
	assert.Equal(t, "test-model", requests[0].Model)

	last := requests[1].Messages[len(requests[1].Messages)-1]
	assert.Equal(t, llm.RoleTool, last.Role)
	assert.Equal(t, "call_1_1", last.ToolCallID)
	assert.Contains(t, last.Content, `"count":2`)

	events := f.audit.Events()
	require.Len(t, events, 1)
	assert.Equal(t, audit.SourceAuto, events[0].Source)
	assert.Empty(t, events[0].ConfirmationID)
}

func TestDestructiveCallIsHeldForConfirmation(t *testing.T) {
	f := newFixture(t)
	f.seedScene(t, "14", "INT. KITCHEN - NIGHT")

	resp := f.planDeleteScene14(t)

	md := resp.Message.Metadata
	require.NotNil(t, md)
	assert.Equal(t, domain.MetadataConfirmationRequest, md.Type)
	require.Len(t, md.Confirmation.Actions, 1)
	action := md.Confirmation.Actions[0]
	assert.Equal(t, "delete_scene", action.ToolName)
	assert.Equal(t, domain.TierDestructive, action.Tier)
	assert.Equal(t, "Delete scene 14", action.Description)
	assert.Contains(t, resp.Message.Content, "Delete scene 14")
	assert.Regexp(t, `^cf_[0-9a-f-]{36}$`, resp.Confirmation.ConfirmationID)

	assert.Equal(t, 1, f.sceneCount(t), "nothing may run before approval")
	assert.Empty(t, f.audit.Events())

	stored, err := f.svc.GetConfirmation(context.Background(), tc.ProjectID, resp.Confirmation.ConfirmationID)
	require.NoError(t, err)
	assert.Equal(t, domain.ConfirmationStatusPending, stored.Status)
}

func TestDeclineRunsNothing(t *testing.T) {
	f := newFixture(t)
	f.seedScene(t, "14", "INT. KITCHEN - NIGHT")
	plan := f.planDeleteScene14(t)

	resp, err := f.svc.ResolveConfirmation(context.Background(), tc, plan.Confirmation.ConfirmationID, false)
	require.NoError(t, err)

	require.NotNil(t, resp.Message.Metadata)
	assert.Equal(t, domain.MetadataConfirmationDeclined, resp.Message.Metadata.Type)
	assert.Equal(t, plan.Confirmation.ConfirmationID, resp.Message.Metadata.ConfirmationID)
	assert.Equal(t, 1, f.sceneCount(t))
	assert.Empty(t, f.audit.Events())

	_, err = f.svc.ResolveConfirmation(context.Background(), tc, plan.Confirmation.ConfirmationID, true)
	assert.ErrorIs(t, err, domain.ErrConfirmationResolved)
	assert.Equal(t, 1, f.sceneCount(t))
}

func TestApproveExecutesAndVerifies(t *testing.T) {
	f := newFixture(t)
	scene := f.seedScene(t, "14", "INT. KITCHEN - NIGHT")
	plan := f.planDeleteScene14(t)

	resp, err := f.svc.ResolveConfirmation(context.Background(), tc, plan.Confirmation.ConfirmationID, true)
	require.NoError(t, err)

	md := resp.Message.Metadata
	require.NotNil(t, md)
	assert.Equal(t, domain.MetadataToolExecutionResult, md.Type)
	assert.Equal(t, domain.OutcomeSuccess, resp.Outcome)
	require.Len(t, md.Results, 1)
	item := md.Results[0]
	assert.True(t, item.Result.Success)
	require.NotNil(t, item.Verification)
	assert.True(t, item.Verification.Verified)
	assert.Empty(t, item.Verification.Discrepancies)

	_, err = f.client.Scenes().Get(context.Background(), tc.ProjectID, scene.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	events := f.audit.Events()
	require.Len(t, events, 1)
	assert.Equal(t, audit.SourceConfirmation, events[0].Source)
	assert.Equal(t, plan.Confirmation.ConfirmationID, events[0].ConfirmationID)
	require.NotNil(t, events[0].Verified)
	assert.True(t, *events[0].Verified)
}

func TestDuplicateApprovalRunsOnce(t *testing.T) {
	f := newFixture(t)
	f.seedScene(t, "14", "INT. KITCHEN - NIGHT")
	plan := f.planDeleteScene14(t)
	id := plan.Confirmation.ConfirmationID

	var wg sync.WaitGroup
	var succeeded, resolved atomic.Int32
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.ResolveConfirmation(context.Background(), tc, id, true)
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, domain.ErrConfirmationResolved):
				resolved.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), succeeded.Load())
	assert.Equal(t, int32(5), resolved.Load())
	assert.Len(t, f.audit.Events(), 1, "the plan must execute exactly once")
}

func TestDependentActionsRunInPlanOrder(t *testing.T) {
	f := newFixture(t)
	day, err := f.client.ShootingDays().Create(context.Background(), tc.ProjectID, &production.ShootingDay{Date: "2026-11-02"})
	require.NoError(t, err)

	f.llm.ReplyToolCalls("I will add the scene and schedule it.",
		llm.ScriptedCall{Name: "create_scene", Args: map[string]any{"number": "15", "heading": "EXT. PIER - DAY"}},
		llm.ScriptedCall{Name: "assign_scene_to_shooting_day", Args: map[string]any{"scene_id": map[string]any{"$ref": "1.id"}, "shooting_day_id": day.ID}},
	)
	plan, err := f.svc.SendMessage(context.Background(), tc, "add scene 15 at the pier and shoot it on day one")
	require.NoError(t, err)
	require.NotNil(t, plan.Confirmation)
	assert.Equal(t, "I will add the scene and schedule it.", plan.Message.Content)
	require.Len(t, plan.Confirmation.Actions, 2)
	assert.Equal(t, "create_scene", plan.Confirmation.Actions[0].ToolName)
	assert.Equal(t, "assign_scene_to_shooting_day", plan.Confirmation.Actions[1].ToolName)
	assert.Equal(t, 0, f.sceneCount(t))

	resp, err := f.svc.ResolveConfirmation(context.Background(), tc, plan.Confirmation.ConfirmationID, true)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSuccess, resp.Outcome)

	results := resp.Message.Metadata.Results
	require.Len(t, results, 2)
	var created production.Scene
	require.NoError(t, json.Unmarshal(results[0].Result.Data, &created))
	require.NotEmpty(t, created.ID)

	var assignArgs map[string]string
	require.NoError(t, json.Unmarshal(results[1].Args, &assignArgs))
	assert.Equal(t, created.ID, assignArgs["scene_id"])
	assert.True(t, results[1].Result.Success)

	stored, err := f.client.ShootingDays().Get(context.Background(), tc.ProjectID, day.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{created.ID}, stored.SceneIDs)

	events := f.audit.Events()
	require.Len(t, events, 2)
	assert.Equal(t, int32(1), events[0].Step)
	assert.Equal(t, "create_scene", events[0].ToolName)
	assert.Equal(t, int32(2), events[1].Step)
}

func TestFailedStepDoesNotAbortSiblings(t *testing.T) {
	f := newFixture(t)
	day, err := f.client.ShootingDays().Create(context.Background(), tc.ProjectID, &production.ShootingDay{Date: "2026-11-02"})
	require.NoError(t, err)

	f.llm.ReplyToolCalls("",
		llm.ScriptedCall{Name: "delete_scene", Args: map[string]any{"scene_id": "scn_missing"}},
		llm.ScriptedCall{Name: "assign_scene_to_shooting_day", Args: map[string]any{"scene_id": map[string]any{"$ref": "1.id"}, "shooting_day_id": day.ID}},
		llm.ScriptedCall{Name: "update_shooting_day", Args: map[string]any{"shooting_day_id": day.ID, "notes": "Rain cover"}},
	)
	plan, err := f.svc.SendMessage(context.Background(), tc, "clean up the schedule")
	require.NoError(t, err)

	resp, err := f.svc.ResolveConfirmation(context.Background(), tc, plan.Confirmation.ConfirmationID, true)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomePartial, resp.Outcome)

	results := resp.Message.Metadata.Results
	require.Len(t, results, 3)
	assert.False(t, results[0].Result.Success)
	assert.Nil(t, results[0].Verification, "failed steps are not verified")
	assert.False(t, results[1].Result.Success)
	assert.Contains(t, results[1].Result.Error, "step 1 (delete_scene) failed")
	assert.True(t, results[2].Result.Success)
	assert.Contains(t, resp.Message.Content, "Partially done")
}

func TestMixedBatchIsHeldAtomically(t *testing.T) {
	f := newFixture(t)
	f.seedScene(t, "14", "INT. KITCHEN - NIGHT")
	f.llm.ReplyToolCalls("",
		llm.ScriptedCall{Name: "get_scenes", Args: map[string]any{}},
		llm.ScriptedCall{Name: "delete_scene", Args: map[string]any{"scene_number": "14"}},
	)

	plan, err := f.svc.SendMessage(context.Background(), tc, "show my scenes and delete 14")
	require.NoError(t, err)
	require.NotNil(t, plan.Confirmation)
	require.Len(t, plan.Confirmation.Actions, 2)
	assert.Equal(t, domain.TierRead, plan.Confirmation.Actions[0].Tier)
	assert.Empty(t, f.audit.Events(), "reads in a held batch wait for approval")

	resp, err := f.svc.ResolveConfirmation(context.Background(), tc, plan.Confirmation.ConfirmationID, true)
	require.NoError(t, err)
	require.Len(t, resp.Message.Metadata.Results, 2)
	assert.Contains(t, string(resp.Message.Metadata.Results[0].Result.Data), `"count":1`)
	assert.Equal(t, 0, f.sceneCount(t))
	requestsBefore := len(f.llm.Requests())

	f.llm.ReplyText("Scene 14 was the kitchen scene.")
	_, err = f.svc.SendMessage(context.Background(), tc, "what was scene 14?")
	require.NoError(t, err)

	requests := f.llm.Requests()
	require.Len(t, requests, requestsBefore+1, "approval itself makes no provider call")
	var executed string
	for _, m := range requests[len(requests)-1].Messages {
		if m.Role == llm.RoleAssistant && strings.Contains(m.Content, "executed, outcome") {
			executed = m.Content
		}
	}
	assert.Contains(t, executed, "1. get_scenes ok")
	assert.Contains(t, executed, "INT. KITCHEN - NIGHT", "held reads reach the model after approval")
	assert.Contains(t, executed, "2. delete_scene ok")
}

func TestUnknownToolIsAPlanningError(t *testing.T) {
	f := newFixture(t)
	f.llm.ReplyToolCalls("", llm.ScriptedCall{Name: "drop_database", Args: map[string]any{}})

	_, err := f.svc.SendMessage(context.Background(), tc, "wipe everything")
	require.ErrorIs(t, err, domain.ErrUnknownTool)

	history, err := f.svc.ListMessages(context.Background(), tc.ProjectID, 10)
	require.NoError(t, err)
	require.Len(t, history.Messages, 2)
	assert.Equal(t, domain.RoleAssistant, history.Messages[1].Role)
	assert.Contains(t, history.Messages[1].Content, "drop_database")
	assert.Empty(t, f.audit.Events())
}

func TestMalformedArgumentsAreAPlanningError(t *testing.T) {
	f := newFixture(t)
	f.llm.ReplyToolCalls("",
		llm.ScriptedCall{Name: "get_scenes", Args: map[string]any{}},
		llm.ScriptedCall{Name: "create_scene", Args: map[string]any{"number": "3"}},
	)

	_, err := f.svc.SendMessage(context.Background(), tc, "add scene 3")
	require.ErrorIs(t, err, domain.ErrInvalidArguments)
	assert.Empty(t, f.audit.Events(), "no call of a rejected batch may run")
}

func TestForwardReferenceIsRejected(t *testing.T) {
	f := newFixture(t)
	f.llm.ReplyToolCalls("",
		llm.ScriptedCall{Name: "delete_scene", Args: map[string]any{"scene_id": map[string]any{"$ref": "2.id"}}},
		llm.ScriptedCall{Name: "create_scene", Args: map[string]any{"heading": "INT. BARN - DAY"}},
	)

	_, err := f.svc.SendMessage(context.Background(), tc, "swap the barn scene")
	assert.ErrorIs(t, err, domain.ErrInvalidArguments)
}

func TestDollarTextIsNotAReference(t *testing.T) {
	f := newFixture(t)
	f.seedScene(t, "1", "INT. KITCHEN - NIGHT")
	f.llm.
		ReplyToolCalls("", llm.ScriptedCall{Name: "get_scenes", Args: map[string]any{"query": "$1"}}).
		ReplyText("No scene mentions $1.")

	resp, err := f.svc.SendMessage(context.Background(), tc, "find scenes mentioning $1")
	require.NoError(t, err)
	assert.Nil(t, resp.Confirmation, "a read with a dollar query still runs without approval")
	require.Len(t, resp.Message.Metadata.ToolCalls, 1)
	assert.True(t, resp.Message.Metadata.ToolCalls[0].Success)

	f.llm.ReplyToolCalls("",
		llm.ScriptedCall{Name: "create_scene", Args: map[string]any{"heading": "INT. BAR - NIGHT", "description": "$5"}},
		llm.ScriptedCall{Name: "create_scene", Args: map[string]any{"heading": "INT. BAR - LATER", "description": "$1.50"}},
	)
	plan, err := f.svc.SendMessage(context.Background(), tc, "add the two bar scenes, beers cost $5 and $1.50")
	require.NoError(t, err)
	require.NotNil(t, plan.Confirmation)
	require.Len(t, plan.Confirmation.Actions, 2)
	assert.JSONEq(t, `{"heading":"INT. BAR - NIGHT","description":"$5"}`, string(plan.Confirmation.Actions[0].Args))

	done, err := f.svc.ResolveConfirmation(context.Background(), tc, plan.Confirmation.ConfirmationID, true)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSuccess, done.Outcome)

	scenes, err := f.client.Scenes().List(context.Background(), tc.ProjectID)
	require.NoError(t, err)
	descriptions := make([]string, 0, len(scenes))
	for _, sc := range scenes {
		descriptions = append(descriptions, sc.Description)
	}
	assert.ElementsMatch(t, []string{"", "$5", "$1.50"}, descriptions)
}

func TestRepairedArgumentsAreAccepted(t *testing.T) {
	f := newFixture(t)
	f.llm.ReplyToolCalls("", llm.ScriptedCall{Name: "create_scene", Args: `{'heading': 'INT. BARN - DAY', 'number': '7',}`})

	plan, err := f.svc.SendMessage(context.Background(), tc, "add the barn scene")
	require.NoError(t, err)
	require.NotNil(t, plan.Confirmation)
	assert.JSONEq(t, `{"heading":"INT. BARN - DAY","number":"7"}`, string(plan.Confirmation.Actions[0].Args))
}

func TestTextToolCallsFallback(t *testing.T) {
	f := newFixture(t)
	f.seedScene(t, "14", "INT. KITCHEN - NIGHT")
	f.llm.ReplyText("Sure.\n```json\n{\"tool_calls\": [{\"name\": \"delete_scene\", \"arguments\": {\"scene_number\": \"14\"}}]}\n```")

	plan, err := f.svc.SendMessage(context.Background(), tc, "delete scene 14")
	require.NoError(t, err)
	require.NotNil(t, plan.Confirmation)
	assert.Equal(t, "delete_scene", plan.Confirmation.Actions[0].ToolName)
	assert.Equal(t, 1, f.sceneCount(t))
}

func TestPlainJSONAnswerIsNotAToolCall(t *testing.T) {
	f := newFixture(t)
	f.llm.ReplyText(`Here you go: [{"name": "Dana", "role": "gaffer"}]`)

	resp, err := f.svc.SendMessage(context.Background(), tc, "who is on the crew")
	require.NoError(t, err)
	assert.Nil(t, resp.Confirmation)
	assert.Nil(t, resp.Message.Metadata)
}

func TestCallBudgetExceeded(t *testing.T) {
	f := newFixture(t, withMaxIterations(2))
	f.llm.
		ReplyToolCalls("", llm.ScriptedCall{Name: "get_scenes", Args: map[string]any{}}).
		ReplyToolCalls("", llm.ScriptedCall{Name: "get_cast", Args: map[string]any{}})

	_, err := f.svc.SendMessage(context.Background(), tc, "tell me everything")
	require.ErrorIs(t, err, domain.ErrCallBudgetExceeded)
	assert.Equal(t, 0, f.llm.Remaining())

	history, err := f.svc.ListMessages(context.Background(), tc.ProjectID, 10)
	require.NoError(t, err)
	require.Len(t, history.Messages, 2)
	last := history.Messages[1]
	assert.Contains(t, last.Content, "call budget")
	require.NotNil(t, last.Metadata)
	assert.Len(t, last.Metadata.ToolCalls, 2)
}

func TestProviderFailureIsRetryable(t *testing.T) {
	f := newFixture(t)
	f.llm.ReplyError(&llm.Error{Provider: "scripted", Type: llm.ErrorServerError, StatusCode: 503, Message: "overloaded"})

	_, err := f.svc.SendMessage(context.Background(), tc, "hello")
	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
}

func TestPolicyBlock(t *testing.T) {
	engine, err := policy.NewEngine(context.Background(), `
package agent_policy

default result = {"decision": "allow", "reason": "ok"}

result = {"decision": "block", "reason": "crew data is restricted"} {
	input.tool_name == "get_crew"
}
`)
	require.NoError(t, err)
	f := newFixture(t, withPolicy(engine))
	f.llm.ReplyToolCalls("", llm.ScriptedCall{Name: "get_crew", Args: map[string]any{}})

	_, err = f.svc.SendMessage(context.Background(), tc, "list the crew")
	require.ErrorIs(t, err, domain.ErrToolBlocked)
	assert.Contains(t, err.Error(), "crew data is restricted")
	assert.Empty(t, f.audit.Events())
}

func TestPermissivePolicyCannotWaiveConfirmation(t *testing.T) {
	engine, err := policy.NewEngine(context.Background(), `
package agent_policy

default result = "allow"
`)
	require.NoError(t, err)
	f := newFixture(t, withPolicy(engine))
	f.seedScene(t, "14", "INT. KITCHEN - NIGHT")

	plan := f.planDeleteScene14(t)
	assert.Equal(t, domain.TierDestructive, plan.Confirmation.Actions[0].Tier)
	assert.Equal(t, 1, f.sceneCount(t))
}

func TestConfirmationProtocolErrors(t *testing.T) {
	f := newFixture(t)
	f.seedScene(t, "14", "INT. KITCHEN - NIGHT")
	plan := f.planDeleteScene14(t)
	id := plan.Confirmation.ConfirmationID

	_, err := f.svc.ResolveConfirmation(context.Background(), tc, "cf_unknown", true)
	assert.ErrorIs(t, err, domain.ErrConfirmationNotFound)

	other := domain.ToolContext{ProjectID: "p2", UserID: "u1"}
	_, err = f.svc.ResolveConfirmation(context.Background(), other, id, true)
	assert.ErrorIs(t, err, domain.ErrConfirmationForbidden)
	_, err = f.svc.GetConfirmation(context.Background(), other.ProjectID, id)
	assert.ErrorIs(t, err, domain.ErrConfirmationForbidden)

	f.svc.SetClock(func() time.Time { return time.Now().UTC().Add(2 * time.Hour) })
	_, err = f.svc.ResolveConfirmation(context.Background(), tc, id, true)
	assert.ErrorIs(t, err, domain.ErrConfirmationExpired)
	assert.Equal(t, 1, f.sceneCount(t))

	_, err = f.svc.ResolveConfirmation(context.Background(), tc, "", true)
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestExecutionSurvivesCancelledContext(t *testing.T) {
	f := newFixture(t)
	scene := f.seedScene(t, "14", "INT. KITCHEN - NIGHT")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	items := f.svc.ExecuteAll(ctx, tc, "cf_test", []domain.PlannedAction{{
		ToolName: "delete_scene",
		Args:     json.RawMessage(`{"scene_id":"` + scene.ID + `"}`),
		Tier:     domain.TierDestructive,
	}})

	require.Len(t, items, 1)
	assert.True(t, items[0].Result.Success)
	assert.Equal(t, 0, f.sceneCount(t))
}

func TestExecuteRejectsTierDrift(t *testing.T) {
	f := newFixture(t)
	items := f.svc.ExecuteAll(context.Background(), tc, "cf_test", []domain.PlannedAction{{
		ToolName: "delete_scene",
		Args:     json.RawMessage(`{"scene_number":"14"}`),
		Tier:     domain.TierRead,
	}})
	require.Len(t, items, 1)
	assert.False(t, items[0].Result.Success)
	assert.Contains(t, items[0].Result.Error, "changed tier")
}

func TestSendMessageValidation(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.SendMessage(context.Background(), tc, "   ")
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
	_, err = f.svc.SendMessage(context.Background(), domain.ToolContext{UserID: "u1"}, "hi")
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
	assert.Len(t, f.llm.Requests(), 0)
}

func TestHistoryCarriesPlanOutcome(t *testing.T) {
	f := newFixture(t)
	f.seedScene(t, "14", "INT. KITCHEN - NIGHT")
	plan := f.planDeleteScene14(t)
	_, err := f.svc.ResolveConfirmation(context.Background(), tc, plan.Confirmation.ConfirmationID, false)
	require.NoError(t, err)

	f.llm.ReplyText("Scene 14 is still there.")
	_, err = f.svc.SendMessage(context.Background(), tc, "is scene 14 still there?")
	require.NoError(t, err)

	requests := f.llm.Requests()
	msgs := requests[len(requests)-1].Messages
	var joined string
	for _, m := range msgs {
		joined += m.Content + "\n"
	}
	assert.Contains(t, joined, "awaiting approval")
	assert.Contains(t, joined, "declined by the user")
	assert.Equal(t, "is scene 14 still there?", msgs[len(msgs)-1].Content)
}

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []*domain.Message
}

func (p *recordingPublisher) Publish(msg *domain.Message) {
	p.mu.Lock()
	p.msgs = append(p.msgs, msg)
	p.mu.Unlock()
}

func TestPublisherSeesEveryStoredMessage(t *testing.T) {
	f := newFixture(t)
	pub := &recordingPublisher{}
	f.svc.SetPublisher(pub)
	f.llm.ReplyText("Hello.")

	_, err := f.svc.SendMessage(context.Background(), tc, "hi")
	require.NoError(t, err)
	require.Len(t, pub.msgs, 2)
	assert.Equal(t, domain.RoleUser, pub.msgs[0].Role)
	assert.Equal(t, domain.RoleAssistant, pub.msgs[1].Role)
}

func TestListTools(t *testing.T) {
	f := newFixture(t)
	resp := f.svc.ListTools()
	require.Len(t, resp.Tools, 25)
	for _, tool := range resp.Tools {
		assert.True(t, tool.Tier.Valid(), tool.Name)
		assert.True(t, json.Valid(tool.Parameters), tool.Name)
	}
}
