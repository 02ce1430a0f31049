package domain

import (
	"encoding/json"
	"fmt"
)

// ToolContext is the authorization and tenancy scope a tool runs under.
// It is built per request from the caller's identity and never cached.
type ToolContext struct {
	ProjectID string `json:"project_id"`
	UserID    string `json:"user_id"`
}

// ToolResult is the outcome of a single tool execution.
// Data is opaque to the orchestrator; only the owning tool understands its shape.
type ToolResult struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// OK builds a successful result carrying data encoded as JSON.
func OK(data any) ToolResult {
	if data == nil {
		return ToolResult{Success: true}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Fail("failed to encode result: %v", err)
	}
	return ToolResult{Success: true, Data: raw}
}

// Fail builds a failed result with a formatted error message.
func Fail(format string, args ...any) ToolResult {
	return ToolResult{Success: false, Error: fmt.Sprintf(format, args...)}
}

// VerificationResult is a structured diff between what was requested and what the store reflects.
type VerificationResult struct {
	Verified      bool     `json:"verified"`
	Expected      string   `json:"expected"`
	Actual        string   `json:"actual"`
	Discrepancies []string `json:"discrepancies"`
}

// PlannedAction is a single proposed invocation, described for a human before it runs.
type PlannedAction struct {
	ToolName    string          `json:"tool_name"`
	Args        json.RawMessage `json:"args"`
	Tier        Tier            `json:"tier"`
	Description string          `json:"description"`
}

// ExecutionResultItem preserves input, output and verification of one executed action.
type ExecutionResultItem struct {
	ToolName     string              `json:"tool_name"`
	Args         json.RawMessage     `json:"args"`
	Result       ToolResult          `json:"result"`
	Verification *VerificationResult `json:"verification,omitempty"`
}

// AutoToolCall records a read-tier call that ran without confirmation.
type AutoToolCall struct {
	ToolName string          `json:"tool_name"`
	Args     json.RawMessage `json:"args"`
	Success  bool            `json:"success"`
	Error    string          `json:"error,omitempty"`
}

// SummarizeExecution computes the aggregate outcome of executed actions.
// Failed verification downgrades an otherwise successful batch to unverified.
func SummarizeExecution(items []ExecutionResultItem) ExecutionOutcome {
	if len(items) == 0 {
		return OutcomeSuccess
	}
	succeeded, unverified := 0, 0
	for _, item := range items {
		if !item.Result.Success {
			continue
		}
		succeeded++
		if item.Verification != nil && !item.Verification.Verified {
			unverified++
		}
	}
	switch {
	case succeeded == 0:
		return OutcomeFailed
	case succeeded < len(items):
		return OutcomePartial
	case unverified > 0:
		return OutcomeUnverified
	}
	return OutcomeSuccess
}
