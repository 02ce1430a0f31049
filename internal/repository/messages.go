package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/wrapshot/agent/internal/domain"
)

// CreateMessage creates a new message. Metadata is written once with the row.
func (s *SQLStore) CreateMessage(ctx context.Context, message *domain.Message) error {
	if err := message.Metadata.Validate(); err != nil {
		return err
	}
	var metadata sql.NullString
	if message.Metadata != nil {
		raw, err := json.Marshal(message.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode message metadata: %w", err)
		}
		metadata = sql.NullString{String: string(raw), Valid: true}
	}
	_, err := s.exec(ctx,
		`INSERT INTO messages (message_id, project_id, user_id, role, content, metadata, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		message.MessageID, message.ProjectID, nullString(message.UserID), message.Role, message.Content, metadata, message.CreatedAt.UTC())
	if err != nil {
		return unavailable("create message", err)
	}
	return nil
}

// GetMessage retrieves a message by ID.
func (s *SQLStore) GetMessage(ctx context.Context, messageID string) (*domain.Message, error) {
	row := s.queryRow(ctx,
		`SELECT message_id, project_id, user_id, role, content, metadata, created_at FROM messages WHERE message_id = ?`,
		messageID)
	msg, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("message %s: %w", messageID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, unavailable("get message", err)
	}
	return msg, nil
}

// ListMessages returns the most recent limit messages of a project in
// chronological order, and whether older messages exist.
func (s *SQLStore) ListMessages(ctx context.Context, projectID string, limit int) ([]domain.Message, bool, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.query(ctx,
		`SELECT message_id, project_id, user_id, role, content, metadata, created_at FROM messages
		 WHERE project_id = ? ORDER BY seq DESC LIMIT ?`,
		projectID, limit+1)
	if err != nil {
		return nil, false, unavailable("list messages", err)
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, false, unavailable("list messages", err)
		}
		messages = append(messages, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, false, unavailable("list messages", err)
	}

	hasMore := len(messages) > limit
	if hasMore {
		messages = messages[:limit]
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, hasMore, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*domain.Message, error) {
	var msg domain.Message
	var userID, metadata sql.NullString
	if err := row.Scan(&msg.MessageID, &msg.ProjectID, &userID, &msg.Role, &msg.Content, &metadata, &msg.CreatedAt); err != nil {
		return nil, err
	}
	msg.UserID = userID.String
	if metadata.Valid && metadata.String != "" {
		var md domain.MessageMetadata
		if err := json.Unmarshal([]byte(metadata.String), &md); err != nil {
			return nil, fmt.Errorf("failed to decode metadata of message %s: %w", msg.MessageID, err)
		}
		msg.Metadata = &md
	}
	return &msg, nil
}
