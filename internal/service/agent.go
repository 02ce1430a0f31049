package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wrapshot/agent/internal/adapter/llm"
	"github.com/wrapshot/agent/internal/audit"
	"github.com/wrapshot/agent/internal/confirmation"
	"github.com/wrapshot/agent/internal/domain"
	"github.com/wrapshot/agent/internal/policy"
	"github.com/wrapshot/agent/internal/tools"
)

// plannedCall is one tool call of a model reply, checked against the
// registry and the policy.
type plannedCall struct {
	callID   string
	def      tools.Definition
	args     json.RawMessage
	decision policy.Result
}

func (p plannedCall) action() domain.PlannedAction {
	return domain.PlannedAction{
		ToolName:    p.def.Name(),
		Args:        p.args,
		Tier:        p.def.Tier(),
		Description: p.def.Describe(p.args),
	}
}

// SendMessage runs one user turn. The result is either a final answer, with
// tool_calls_auto metadata when read tools ran, or a plan waiting for
// confirmation. Nothing but read tools runs during a turn.
func (s *Service) SendMessage(ctx context.Context, tc domain.ToolContext, text string) (*domain.TurnResponse, error) {
	text = strings.TrimSpace(text)
	if err := validateContext(tc); err != nil {
		return nil, err
	}
	if text == "" {
		return nil, fmt.Errorf("%w: message is required", domain.ErrInvalidRequest)
	}

	history, _, err := s.messages.ListMessages(ctx, tc.ProjectID, s.config.HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	userMsg, err := s.saveMessage(ctx, tc, domain.RoleUser, text, nil)
	if err != nil {
		return nil, err
	}
	conv := buildConversation(append(history, *userMsg))
	schemas := toolSchemas(s.registry.DescribeAll())

	var autoCalls []domain.AutoToolCall
	for iter := 1; iter <= s.config.MaxIterations; iter++ {
		reply, err := s.complete(ctx, conv, schemas)
		if err != nil {
			return nil, err
		}

		calls := reply.ToolCalls
		content := reply.Content
		if len(calls) == 0 {
			if recovered := textToolCalls(content); len(recovered) > 0 {
				s.logger.Info("recovered tool calls from text reply",
					zap.String("project_id", tc.ProjectID), zap.Int("count", len(recovered)))
				calls, content = recovered, ""
			}
		}
		if len(calls) == 0 {
			return s.finishTurn(ctx, tc, content, autoCalls)
		}

		planned, err := s.planCalls(ctx, tc, calls)
		if err != nil {
			s.logger.Warn("planning failed", zap.String("project_id", tc.ProjectID), zap.Int("iteration", iter), zap.Error(err))
			return nil, s.failTurn(ctx, tc, err)
		}

		if !autoExecutable(planned) {
			return s.holdForConfirmation(ctx, tc, content, planned)
		}

		actions := make([]domain.PlannedAction, len(planned))
		for i, p := range planned {
			actions[i] = p.action()
		}
		items := s.executeAll(ctx, tc, "", actions, audit.SourceAuto)

		conv = append(conv, llm.ChatMessage{Role: llm.RoleAssistant, Content: reply.Content, ToolCalls: calls})
		for i, item := range items {
			conv = append(conv, llm.ChatMessage{
				Role:       llm.RoleTool,
				Name:       item.ToolName,
				ToolCallID: planned[i].callID,
				Content:    toolResultContent(item.Result),
			})
			autoCalls = append(autoCalls, domain.AutoToolCall{
				ToolName: item.ToolName,
				Args:     item.Args,
				Success:  item.Result.Success,
				Error:    item.Result.Error,
			})
		}
	}

	s.logger.Warn("agent loop exceeded call budget",
		zap.String("project_id", tc.ProjectID), zap.Int("max_iterations", s.config.MaxIterations))
	var md *domain.MessageMetadata
	if len(autoCalls) > 0 {
		md = domain.AutoCallsMetadata(autoCalls)
	}
	if _, err := s.saveMessage(ctx, tc, domain.RoleAssistant,
		"I could not finish this request within my call budget. Try a narrower question.", md); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w (%d provider calls)", domain.ErrCallBudgetExceeded, s.config.MaxIterations)
}

// complete asks the provider for the next reply.
func (s *Service) complete(ctx context.Context, conv []llm.ChatMessage, schemas []llm.Tool) (*llm.ChatMessage, error) {
	start := time.Now()
	resp, err := s.llmClient.CreateChatCompletion(ctx, &llm.ChatCompletionRequest{
		Model:    s.config.Model,
		Messages: conv,
		Tools:    schemas,
	})
	if err != nil {
		s.logger.Error("llm call failed", zap.String("provider", s.llmClient.Name()), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
	}
	reply := resp.FirstMessage()
	if reply == nil {
		return nil, fmt.Errorf("%w: empty response from %s", domain.ErrProviderUnavailable, s.llmClient.Name())
	}
	fields := []zap.Field{
		zap.String("provider", s.llmClient.Name()),
		zap.String("model", resp.Model),
		zap.Int("tool_calls", len(reply.ToolCalls)),
		zap.Duration("latency", time.Since(start)),
	}
	if resp.Usage != nil {
		fields = append(fields, zap.Int("total_tokens", resp.Usage.TotalTokens))
	}
	s.logger.Debug("llm call done", fields...)
	return reply, nil
}

// planCalls resolves every call against the registry, validates its
// arguments and asks the policy engine about it. Any failure rejects the
// whole batch.
func (s *Service) planCalls(ctx context.Context, tc domain.ToolContext, calls []llm.ToolCall) ([]plannedCall, error) {
	planned := make([]plannedCall, 0, len(calls))
	for i, call := range calls {
		def, err := s.registry.Get(call.Function.Name)
		if err != nil {
			return nil, err
		}
		args, err := normalizeArgs(call.Function.Arguments)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", def.Name(), err)
		}
		hasRefs, err := checkReferences(args, i+1)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", def.Name(), err)
		}
		// References are checked again once they resolve at execution time.
		if !hasRefs {
			if err := def.Validate(args); err != nil {
				return nil, err
			}
		}

		decision := policy.Result{Decision: policy.DecisionAllow}
		if s.policyEngine != nil {
			decision, err = s.policyEngine.Evaluate(ctx, policy.Input{
				ToolName:  def.Name(),
				Tier:      def.Tier(),
				Args:      args,
				ProjectID: tc.ProjectID,
				UserID:    tc.UserID,
				BatchSize: len(calls),
			})
			if err != nil {
				return nil, fmt.Errorf("failed to evaluate policy for %s: %w", def.Name(), err)
			}
		}
		decision = policy.ApplyTierFloor(def.Tier(), decision)
		if decision.Decision == policy.DecisionBlock {
			return nil, fmt.Errorf("%w: %s: %s", domain.ErrToolBlocked, def.Name(), decision.Reason)
		}
		if hasRefs && decision.Decision == policy.DecisionAllow {
			decision = policy.Result{Decision: policy.DecisionRequireConfirmation, Reason: "arguments depend on earlier results"}
		}

		planned = append(planned, plannedCall{
			callID:   call.ID,
			def:      def,
			args:     args,
			decision: decision,
		})
	}
	return planned, nil
}

// autoExecutable reports whether every call may run without confirmation.
func autoExecutable(planned []plannedCall) bool {
	for _, p := range planned {
		if p.decision.Decision != policy.DecisionAllow {
			return false
		}
	}
	return true
}

// holdForConfirmation stores the whole batch, reads included, as one plan.
// The model sees what the reads returned through the execution result in
// history on the next turn; approval does not call the provider again.
func (s *Service) holdForConfirmation(ctx context.Context, tc domain.ToolContext, content string, planned []plannedCall) (*domain.TurnResponse, error) {
	actions := make([]domain.PlannedAction, len(planned))
	for i, p := range planned {
		actions[i] = p.action()
	}
	conf := confirmation.New(tc, actions, s.now(), s.config.ConfirmationTTL)
	if err := s.confirmations.Create(ctx, conf); err != nil {
		return nil, fmt.Errorf("failed to store confirmation: %w", err)
	}
	s.logger.Info("plan waiting for confirmation",
		zap.String("project_id", tc.ProjectID),
		zap.String("confirmation_id", conf.ConfirmationID),
		zap.Int("actions", len(actions)))

	content = strings.TrimSpace(content)
	if content == "" {
		content = "I need your approval before making these changes:\n" + describeActions(actions)
	}
	req := conf.Request()
	msg, err := s.saveMessage(ctx, tc, domain.RoleAssistant, content, domain.ConfirmationMetadata(req))
	if err != nil {
		return nil, err
	}
	return &domain.TurnResponse{Message: msg, Confirmation: req}, nil
}

func (s *Service) finishTurn(ctx context.Context, tc domain.ToolContext, content string, autoCalls []domain.AutoToolCall) (*domain.TurnResponse, error) {
	var md *domain.MessageMetadata
	if len(autoCalls) > 0 {
		md = domain.AutoCallsMetadata(autoCalls)
	}
	msg, err := s.saveMessage(ctx, tc, domain.RoleAssistant, strings.TrimSpace(content), md)
	if err != nil {
		return nil, err
	}
	return &domain.TurnResponse{Message: msg}, nil
}

// failTurn records a planning error in the conversation and returns it.
func (s *Service) failTurn(ctx context.Context, tc domain.ToolContext, cause error) error {
	content := "I could not plan that request: " + cause.Error()
	if errors.Is(cause, domain.ErrToolBlocked) {
		content = "That request is not allowed: " + cause.Error()
	}
	if _, err := s.saveMessage(ctx, tc, domain.RoleAssistant, content, nil); err != nil {
		return err
	}
	return cause
}

func toolResultContent(result domain.ToolResult) string {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Sprintf(`{"success":false,"error":%q}`, err.Error())
	}
	return string(raw)
}
