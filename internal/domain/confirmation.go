package domain

import "time"

// Confirmation is the durable record of a plan waiting for human approval.
type Confirmation struct {
	ConfirmationID string             `json:"confirmation_id"`
	ProjectID      string             `json:"project_id"`
	UserID         string             `json:"user_id"`
	Actions        []PlannedAction    `json:"actions"`
	Status         ConfirmationStatus `json:"status"`
	CreatedAt      time.Time          `json:"created_at"`
	ExpiresAt      time.Time          `json:"expires_at"`
	ResolvedAt     *time.Time         `json:"resolved_at,omitempty"`
	ResolvedBy     string             `json:"resolved_by,omitempty"`
}

// Request returns the client-visible view of the confirmation.
func (c *Confirmation) Request() *ConfirmationRequest {
	return &ConfirmationRequest{
		ConfirmationID: c.ConfirmationID,
		Actions:        c.Actions,
		ExpiresAt:      c.ExpiresAt,
	}
}

// Expired reports whether a pending confirmation has outlived its TTL at now.
func (c *Confirmation) Expired(now time.Time) bool {
	return c.Status == ConfirmationStatusPending && !now.Before(c.ExpiresAt)
}

// ConfirmationRequest is what the caller sees when a turn pauses for approval.
type ConfirmationRequest struct {
	ConfirmationID string          `json:"confirmation_id"`
	Actions        []PlannedAction `json:"actions"`
	ExpiresAt      time.Time       `json:"expires_at"`
}
