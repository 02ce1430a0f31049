package domain

import (
	"fmt"
	"time"
)

// Message represents a single chat message in a project conversation.
type Message struct {
	MessageID string           `json:"message_id"`
	ProjectID string           `json:"project_id"`
	UserID    string           `json:"user_id,omitempty"`
	Role      Role             `json:"role"`
	Content   string           `json:"content"`
	Metadata  *MessageMetadata `json:"metadata,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

// MessageMetadata is a tagged variant attached to a message at creation time.
// Exactly the fields belonging to Type are set.
type MessageMetadata struct {
	Type           MetadataType          `json:"type"`
	ToolCalls      []AutoToolCall        `json:"tool_calls,omitempty"`
	Confirmation   *ConfirmationRequest  `json:"confirmation,omitempty"`
	Results        []ExecutionResultItem `json:"results,omitempty"`
	Outcome        ExecutionOutcome      `json:"outcome,omitempty"`
	ConfirmationID string                `json:"confirmation_id,omitempty"`
}

// AutoCallsMetadata builds a tool_calls_auto variant.
func AutoCallsMetadata(calls []AutoToolCall) *MessageMetadata {
	return &MessageMetadata{Type: MetadataToolCallsAuto, ToolCalls: calls}
}

// ConfirmationMetadata builds a tool_confirmation_request variant.
func ConfirmationMetadata(req *ConfirmationRequest) *MessageMetadata {
	return &MessageMetadata{Type: MetadataConfirmationRequest, Confirmation: req}
}

// ExecutionMetadata builds a tool_execution_result variant.
func ExecutionMetadata(confirmationID string, items []ExecutionResultItem) *MessageMetadata {
	return &MessageMetadata{
		Type:           MetadataToolExecutionResult,
		Results:        items,
		Outcome:        SummarizeExecution(items),
		ConfirmationID: confirmationID,
	}
}

// DeclinedMetadata builds a confirmation_declined variant.
func DeclinedMetadata(confirmationID string) *MessageMetadata {
	return &MessageMetadata{Type: MetadataConfirmationDeclined, ConfirmationID: confirmationID}
}

// Validate checks that the metadata carries exactly its variant's fields.
func (m *MessageMetadata) Validate() error {
	if m == nil {
		return nil
	}
	switch m.Type {
	case MetadataToolCallsAuto:
		if len(m.ToolCalls) == 0 || m.Confirmation != nil || len(m.Results) > 0 || m.ConfirmationID != "" {
			return fmt.Errorf("%w: malformed %s metadata", ErrInvalidRequest, m.Type)
		}
	case MetadataConfirmationRequest:
		if m.Confirmation == nil || len(m.ToolCalls) > 0 || len(m.Results) > 0 {
			return fmt.Errorf("%w: malformed %s metadata", ErrInvalidRequest, m.Type)
		}
	case MetadataToolExecutionResult:
		if m.ConfirmationID == "" || m.Confirmation != nil || len(m.ToolCalls) > 0 {
			return fmt.Errorf("%w: malformed %s metadata", ErrInvalidRequest, m.Type)
		}
	case MetadataConfirmationDeclined:
		if m.ConfirmationID == "" || m.Confirmation != nil || len(m.ToolCalls) > 0 || len(m.Results) > 0 {
			return fmt.Errorf("%w: malformed %s metadata", ErrInvalidRequest, m.Type)
		}
	default:
		return fmt.Errorf("%w: unknown metadata type %q", ErrInvalidRequest, m.Type)
	}
	return nil
}
