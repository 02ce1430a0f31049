package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wrapshot/agent/internal/audit"
	"github.com/wrapshot/agent/internal/domain"
	"github.com/wrapshot/agent/internal/tools"
)

// ResolveConfirmation approves or declines a pending plan. The store
// transition happens exactly once; a duplicate call fails with a
// confirmation protocol error and runs nothing.
func (s *Service) ResolveConfirmation(ctx context.Context, tc domain.ToolContext, confirmationID string, approved bool) (*domain.TurnResponse, error) {
	if err := validateContext(tc); err != nil {
		return nil, err
	}
	if strings.TrimSpace(confirmationID) == "" {
		return nil, fmt.Errorf("%w: confirmation_id is required", domain.ErrInvalidRequest)
	}

	conf, err := s.confirmations.Resolve(ctx, confirmationID, tc.ProjectID, tc.UserID, approved, s.now())
	if err != nil {
		return nil, err
	}
	s.logger.Info("confirmation resolved",
		zap.String("confirmation_id", conf.ConfirmationID),
		zap.String("project_id", tc.ProjectID),
		zap.String("status", string(conf.Status)))

	// The plan must run to completion and be recorded even if the client goes away.
	ctx = context.WithoutCancel(ctx)

	if !approved {
		msg, err := s.saveMessage(ctx, tc, domain.RoleAssistant,
			"Cancelled. Nothing was changed.", domain.DeclinedMetadata(conf.ConfirmationID))
		if err != nil {
			return nil, err
		}
		return &domain.TurnResponse{Message: msg}, nil
	}

	items := s.ExecuteAll(ctx, tc, conf.ConfirmationID, conf.Actions)
	md := domain.ExecutionMetadata(conf.ConfirmationID, items)
	msg, err := s.saveMessage(ctx, tc, domain.RoleAssistant, summarizeResults(conf.Actions, items, md.Outcome), md)
	if err != nil {
		return nil, err
	}
	return &domain.TurnResponse{Message: msg, Outcome: md.Outcome}, nil
}

// ExecuteAll runs approved actions strictly in order. A failing step does not
// stop later ones; a step that refers to a failed step fails too.
func (s *Service) ExecuteAll(ctx context.Context, tc domain.ToolContext, confirmationID string, actions []domain.PlannedAction) []domain.ExecutionResultItem {
	return s.executeAll(ctx, tc, confirmationID, actions, audit.SourceConfirmation)
}

func (s *Service) executeAll(ctx context.Context, tc domain.ToolContext, confirmationID string, actions []domain.PlannedAction, source string) []domain.ExecutionResultItem {
	ctx = context.WithoutCancel(ctx)
	items := make([]domain.ExecutionResultItem, 0, len(actions))
	for i, action := range actions {
		start := time.Now()
		item := s.executeOne(ctx, tc, action, items)
		items = append(items, item)
		s.recordExecution(tc, confirmationID, i+1, action, item, time.Since(start), source)
	}
	return items
}

func (s *Service) executeOne(ctx context.Context, tc domain.ToolContext, action domain.PlannedAction, earlier []domain.ExecutionResultItem) domain.ExecutionResultItem {
	item := domain.ExecutionResultItem{ToolName: action.ToolName, Args: action.Args}

	def, err := s.registry.Get(action.ToolName)
	if err != nil {
		item.Result = domain.Fail("%v", err)
		return item
	}
	if def.Tier() != action.Tier {
		item.Result = domain.Fail("tool %s changed tier from %s to %s since the plan was made", action.ToolName, action.Tier, def.Tier())
		return item
	}
	args, err := resolveReferences(action.Args, earlier)
	if err != nil {
		item.Result = domain.Fail("%v", err)
		return item
	}
	item.Args = args

	item.Result = s.safeExecute(ctx, def, args, tc)
	if vr, ok := def.Verify(ctx, args, item.Result, tc); ok {
		item.Verification = vr
	}
	return item
}

// safeExecute turns a panicking tool into a failed result.
func (s *Service) safeExecute(ctx context.Context, def tools.Definition, args json.RawMessage, tc domain.ToolContext) (result domain.ToolResult) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("tool panicked", zap.String("tool", def.Name()), zap.Any("panic", r))
			result = domain.Fail("%s failed unexpectedly", def.Name())
		}
	}()
	return def.Execute(ctx, args, tc)
}

func (s *Service) recordExecution(tc domain.ToolContext, confirmationID string, step int, action domain.PlannedAction, item domain.ExecutionResultItem, latency time.Duration, source string) {
	event := &audit.ExecutionEvent{
		EventID:        "ev_" + uuid.NewString(),
		ProjectID:      tc.ProjectID,
		UserID:         tc.UserID,
		ConfirmationID: confirmationID,
		Timestamp:      s.now(),
		Step:           int32(step),
		ToolName:       action.ToolName,
		Tier:           string(action.Tier),
		ArgumentsJSON:  string(item.Args),
		Success:        item.Result.Success,
		Error:          item.Result.Error,
		LatencyMs:      float32(latency.Microseconds()) / 1000,
		Source:         source,
	}
	if item.Verification != nil {
		verified := item.Verification.Verified
		event.Verified = &verified
		event.Discrepancies = item.Verification.Discrepancies
	}
	s.auditWriter.Write(event)
}

// summarizeResults renders the outcome of an executed plan for the user.
func summarizeResults(actions []domain.PlannedAction, items []domain.ExecutionResultItem, outcome domain.ExecutionOutcome) string {
	var b strings.Builder
	succeeded := 0
	for _, item := range items {
		if item.Result.Success {
			succeeded++
		}
	}
	switch outcome {
	case domain.OutcomeSuccess:
		fmt.Fprintf(&b, "Done. %d of %d changes applied.", succeeded, len(items))
	case domain.OutcomeUnverified:
		fmt.Fprintf(&b, "Done, but verify carefully: %d of %d changes applied and some could not be confirmed.", succeeded, len(items))
	case domain.OutcomePartial:
		fmt.Fprintf(&b, "Partially done: %d of %d changes applied.", succeeded, len(items))
	case domain.OutcomeFailed:
		fmt.Fprintf(&b, "Nothing was applied: all %d changes failed.", len(items))
	}
	for i, item := range items {
		desc := item.ToolName
		if i < len(actions) && actions[i].Description != "" {
			desc = actions[i].Description
		}
		switch {
		case !item.Result.Success:
			fmt.Fprintf(&b, "\n%d. %s: failed (%s)", i+1, desc, item.Result.Error)
		case item.Verification != nil && !item.Verification.Verified:
			fmt.Fprintf(&b, "\n%d. %s: applied, verify carefully (%s)", i+1, desc, strings.Join(item.Verification.Discrepancies, "; "))
		default:
			fmt.Fprintf(&b, "\n%d. %s: done", i+1, desc)
		}
	}
	return b.String()
}
