package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/wrapshot/agent/internal/domain"
)

// ConfirmationStore persists pending plans in the confirmations table.
type ConfirmationStore struct {
	s *SQLStore
}

// Confirmations returns the confirmation store backed by this database.
func (s *SQLStore) Confirmations() *ConfirmationStore {
	return &ConfirmationStore{s: s}
}

// Create inserts a new pending confirmation.
func (c *ConfirmationStore) Create(ctx context.Context, conf *domain.Confirmation) error {
	actions, err := json.Marshal(conf.Actions)
	if err != nil {
		return fmt.Errorf("failed to encode actions: %w", err)
	}
	_, err = c.s.exec(ctx,
		`INSERT INTO confirmations (confirmation_id, project_id, user_id, actions, status, created_at, expires_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		conf.ConfirmationID, conf.ProjectID, conf.UserID, string(actions), domain.ConfirmationStatusPending, conf.CreatedAt.UTC(), conf.ExpiresAt.UTC())
	if err != nil {
		return unavailable("create confirmation", err)
	}
	return nil
}

// Get retrieves a confirmation by ID.
func (c *ConfirmationStore) Get(ctx context.Context, confirmationID string) (*domain.Confirmation, error) {
	var conf domain.Confirmation
	var actions string
	var resolvedAt sql.NullTime
	var resolvedBy sql.NullString
	err := c.s.queryRow(ctx,
		`SELECT confirmation_id, project_id, user_id, actions, status, created_at, expires_at, resolved_at, resolved_by
		 FROM confirmations WHERE confirmation_id = ?`,
		confirmationID).Scan(&conf.ConfirmationID, &conf.ProjectID, &conf.UserID, &actions, &conf.Status,
		&conf.CreatedAt, &conf.ExpiresAt, &resolvedAt, &resolvedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrConfirmationNotFound, confirmationID)
	}
	if err != nil {
		return nil, unavailable("get confirmation", err)
	}
	if err := json.Unmarshal([]byte(actions), &conf.Actions); err != nil {
		return nil, fmt.Errorf("failed to decode actions of %s: %w", confirmationID, err)
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		conf.ResolvedAt = &t
	}
	conf.ResolvedBy = resolvedBy.String
	return &conf, nil
}

// Resolve transitions a pending, unexpired confirmation to approved or
// declined in a single conditional update. Concurrent callers race on the
// update; exactly one of them sees a row affected.
func (c *ConfirmationStore) Resolve(ctx context.Context, confirmationID, projectID, userID string, approved bool, now time.Time) (*domain.Confirmation, error) {
	status := domain.ConfirmationStatusDeclined
	if approved {
		status = domain.ConfirmationStatusApproved
	}
	now = now.UTC()
	res, err := c.s.exec(ctx,
		`UPDATE confirmations SET status = ?, resolved_at = ?, resolved_by = ?
		 WHERE confirmation_id = ? AND project_id = ? AND status = ? AND expires_at > ?`,
		status, now, nullString(userID), confirmationID, projectID, domain.ConfirmationStatusPending, now)
	if err != nil {
		return nil, unavailable("resolve confirmation", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, unavailable("resolve confirmation", err)
	}
	if affected == 1 {
		return c.Get(ctx, confirmationID)
	}
	return nil, c.explainUnresolvable(ctx, confirmationID, projectID, now)
}

// explainUnresolvable reads the row to report why a resolve changed nothing.
func (c *ConfirmationStore) explainUnresolvable(ctx context.Context, confirmationID, projectID string, now time.Time) error {
	conf, err := c.Get(ctx, confirmationID)
	if err != nil {
		return err
	}
	if conf.ProjectID != projectID {
		return fmt.Errorf("%w: %s", domain.ErrConfirmationForbidden, confirmationID)
	}
	switch {
	case conf.Status == domain.ConfirmationStatusExpired:
		return fmt.Errorf("%w: %s", domain.ErrConfirmationExpired, confirmationID)
	case conf.Status != domain.ConfirmationStatusPending:
		return fmt.Errorf("%w: %s is %s", domain.ErrConfirmationResolved, confirmationID, conf.Status)
	case conf.Expired(now):
		if _, err := c.s.exec(ctx,
			`UPDATE confirmations SET status = ?, resolved_at = ? WHERE confirmation_id = ? AND status = ?`,
			domain.ConfirmationStatusExpired, now, confirmationID, domain.ConfirmationStatusPending); err != nil {
			return unavailable("expire confirmation", err)
		}
		return fmt.Errorf("%w: %s", domain.ErrConfirmationExpired, confirmationID)
	}
	// Pending and live but not updated: a concurrent resolve holds it.
	return fmt.Errorf("%w: %s", domain.ErrConfirmationResolved, confirmationID)
}

// ExpirePending marks every pending confirmation past its expiry as expired.
func (c *ConfirmationStore) ExpirePending(ctx context.Context, now time.Time) (int64, error) {
	now = now.UTC()
	res, err := c.s.exec(ctx,
		`UPDATE confirmations SET status = ?, resolved_at = ? WHERE status = ? AND expires_at <= ?`,
		domain.ConfirmationStatusExpired, now, domain.ConfirmationStatusPending, now)
	if err != nil {
		return 0, unavailable("expire confirmations", err)
	}
	return res.RowsAffected()
}
