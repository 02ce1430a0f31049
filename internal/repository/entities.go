package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/wrapshot/agent/internal/domain"
	"github.com/wrapshot/agent/internal/production"
)

// ListEntities implements production.EntityStore.
func (s *SQLStore) ListEntities(ctx context.Context, projectID string, kind production.Kind) ([]production.EntityRecord, error) {
	rows, err := s.query(ctx,
		`SELECT project_id, kind, entity_id, data, created_at, updated_at FROM entities
		 WHERE project_id = ? AND kind = ? ORDER BY created_at ASC, entity_id ASC`,
		projectID, kind)
	if err != nil {
		return nil, unavailable("list entities", err)
	}
	defer rows.Close()

	var recs []production.EntityRecord
	for rows.Next() {
		var rec production.EntityRecord
		var data string
		if err := rows.Scan(&rec.ProjectID, &rec.Kind, &rec.ID, &data, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, unavailable("list entities", err)
		}
		rec.Data = []byte(data)
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list entities", err)
	}
	return recs, nil
}

// GetEntity implements production.EntityStore.
func (s *SQLStore) GetEntity(ctx context.Context, projectID string, kind production.Kind, id string) (*production.EntityRecord, error) {
	var rec production.EntityRecord
	var data string
	err := s.queryRow(ctx,
		`SELECT project_id, kind, entity_id, data, created_at, updated_at FROM entities
		 WHERE project_id = ? AND kind = ? AND entity_id = ?`,
		projectID, kind, id).Scan(&rec.ProjectID, &rec.Kind, &rec.ID, &data, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, unavailable("get entity", err)
	}
	rec.Data = []byte(data)
	return &rec, nil
}

// InsertEntity implements production.EntityStore.
func (s *SQLStore) InsertEntity(ctx context.Context, rec *production.EntityRecord) error {
	_, err := s.exec(ctx,
		`INSERT INTO entities (project_id, kind, entity_id, data, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ProjectID, rec.Kind, rec.ID, string(rec.Data), rec.CreatedAt.UTC(), rec.UpdatedAt.UTC())
	if err != nil {
		return unavailable("insert entity", err)
	}
	return nil
}

// UpdateEntity implements production.EntityStore.
func (s *SQLStore) UpdateEntity(ctx context.Context, rec *production.EntityRecord) error {
	res, err := s.exec(ctx,
		`UPDATE entities SET data = ?, updated_at = ? WHERE project_id = ? AND kind = ? AND entity_id = ?`,
		string(rec.Data), rec.UpdatedAt.UTC(), rec.ProjectID, rec.Kind, rec.ID)
	if err != nil {
		return unavailable("update entity", err)
	}
	return expectOneRow(res)
}

// DeleteEntity implements production.EntityStore.
func (s *SQLStore) DeleteEntity(ctx context.Context, projectID string, kind production.Kind, id string) error {
	res, err := s.exec(ctx,
		`DELETE FROM entities WHERE project_id = ? AND kind = ? AND entity_id = ?`,
		projectID, kind, id)
	if err != nil {
		return unavailable("delete entity", err)
	}
	return expectOneRow(res)
}

func expectOneRow(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
