// Package domain defines the core domain models for the production assistant.
package domain

// Tier represents the risk classification of a tool.
type Tier string

const (
	TierRead        Tier = "read"
	TierMutate      Tier = "mutate"
	TierDestructive Tier = "destructive"
)

// Valid reports whether t is one of the known tiers.
func (t Tier) Valid() bool {
	switch t {
	case TierRead, TierMutate, TierDestructive:
		return true
	}
	return false
}

// RequiresConfirmation reports whether calls of this tier must be approved by a human.
func (t Tier) RequiresConfirmation() bool {
	return t != TierRead
}

// ConfirmationStatus represents the status of a confirmation.
type ConfirmationStatus string

const (
	ConfirmationStatusPending  ConfirmationStatus = "pending"
	ConfirmationStatusApproved ConfirmationStatus = "approved"
	ConfirmationStatusDeclined ConfirmationStatus = "declined"
	ConfirmationStatusExpired  ConfirmationStatus = "expired"
)

// Role represents the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleSystem    Role = "system"
)

// MetadataType tags the variant carried by MessageMetadata.
type MetadataType string

const (
	MetadataToolCallsAuto        MetadataType = "tool_calls_auto"
	MetadataConfirmationRequest  MetadataType = "tool_confirmation_request"
	MetadataToolExecutionResult  MetadataType = "tool_execution_result"
	MetadataConfirmationDeclined MetadataType = "confirmation_declined"
)

// ExecutionOutcome summarizes a batch of executed actions.
type ExecutionOutcome string

const (
	OutcomeSuccess    ExecutionOutcome = "success"
	OutcomePartial    ExecutionOutcome = "partial"
	OutcomeFailed     ExecutionOutcome = "failed"
	OutcomeUnverified ExecutionOutcome = "unverified"
)
