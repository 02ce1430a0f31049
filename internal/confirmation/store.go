// Package confirmation holds plans that wait for human approval.
package confirmation

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/wrapshot/agent/internal/domain"
)

// DefaultTTL bounds how long a plan may wait for approval.
const DefaultTTL = 30 * time.Minute

// Store persists confirmations. Resolve must be atomic: of any number of
// concurrent calls for one id, at most one succeeds. Failures are
// domain.ErrConfirmationNotFound, ErrConfirmationResolved,
// ErrConfirmationExpired, or ErrConfirmationForbidden.
type Store interface {
	Create(ctx context.Context, conf *domain.Confirmation) error
	Get(ctx context.Context, confirmationID string) (*domain.Confirmation, error)
	Resolve(ctx context.Context, confirmationID, projectID, userID string, approved bool, now time.Time) (*domain.Confirmation, error)
	ExpirePending(ctx context.Context, now time.Time) (int64, error)
}

// NewID returns an unguessable confirmation identifier.
func NewID() string {
	return "cf_" + uuid.NewString()
}

// New builds a pending confirmation for actions.
func New(tc domain.ToolContext, actions []domain.PlannedAction, now time.Time, ttl time.Duration) *domain.Confirmation {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now = now.UTC()
	return &domain.Confirmation{
		ConfirmationID: NewID(),
		ProjectID:      tc.ProjectID,
		UserID:         tc.UserID,
		Actions:        actions,
		Status:         domain.ConfirmationStatusPending,
		CreatedAt:      now,
		ExpiresAt:      now.Add(ttl),
	}
}
