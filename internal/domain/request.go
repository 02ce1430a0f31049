package domain

import "encoding/json"

// SendMessageRequest is the body of a new user turn.
type SendMessageRequest struct {
	Message string `json:"message"`
}

// ResolveConfirmationRequest approves or declines a pending plan.
type ResolveConfirmationRequest struct {
	Approved *bool `json:"approved"`
}

// TurnResponse is returned by both turn endpoints.
type TurnResponse struct {
	Message      *Message             `json:"message"`
	Confirmation *ConfirmationRequest `json:"confirmation,omitempty"`
	Outcome      ExecutionOutcome     `json:"outcome,omitempty"`
}

// ListMessagesResponse represents the response for listing project messages.
type ListMessagesResponse struct {
	Messages []Message `json:"messages"`
	HasMore  bool      `json:"has_more"`
}

// ToolListItem represents a tool in the list response.
type ToolListItem struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Tier        Tier            `json:"tier"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ListToolsResponse represents the response for listing tools.
type ListToolsResponse struct {
	Tools []ToolListItem `json:"tools"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
