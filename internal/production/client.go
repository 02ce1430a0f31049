package production

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wrapshot/agent/internal/domain"
)

// EntityRecord is one stored entity document.
type EntityRecord struct {
	ProjectID string
	Kind      Kind
	ID        string
	Data      json.RawMessage
	CreatedAt time.Time
	UpdatedAt time.Time
}

// EntityStore persists entity documents scoped by project and kind.
// Get, Update, and Delete return domain.ErrNotFound for a missing entity.
type EntityStore interface {
	ListEntities(ctx context.Context, projectID string, kind Kind) ([]EntityRecord, error)
	GetEntity(ctx context.Context, projectID string, kind Kind, id string) (*EntityRecord, error)
	InsertEntity(ctx context.Context, rec *EntityRecord) error
	UpdateEntity(ctx context.Context, rec *EntityRecord) error
	DeleteEntity(ctx context.Context, projectID string, kind Kind, id string) error
}

// Collection is the CRUD contract for one entity type.
type Collection[T any] struct {
	store    EntityStore
	kind     Kind
	meta     func(*T) *Meta
	validate func(*T) error
	now      func() time.Time
}

// Kind returns the entity kind this collection manages.
func (c *Collection[T]) Kind() Kind {
	return c.kind
}

// List returns every entity of this kind in the project, oldest first.
func (c *Collection[T]) List(ctx context.Context, projectID string) ([]T, error) {
	recs, err := c.store.ListEntities(ctx, projectID, c.kind)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", c.kind, err)
	}
	out := make([]T, 0, len(recs))
	for _, rec := range recs {
		var v T
		if err := json.Unmarshal(rec.Data, &v); err != nil {
			return nil, fmt.Errorf("failed to decode %s %s: %w", c.kind, rec.ID, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// Get returns one entity or domain.ErrNotFound.
func (c *Collection[T]) Get(ctx context.Context, projectID, id string) (*T, error) {
	rec, err := c.store.GetEntity(ctx, projectID, c.kind, id)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", c.kind, id, err)
	}
	var v T
	if err := json.Unmarshal(rec.Data, &v); err != nil {
		return nil, fmt.Errorf("failed to decode %s %s: %w", c.kind, id, err)
	}
	return &v, nil
}

// Create assigns an ID and timestamps to v and stores it.
func (c *Collection[T]) Create(ctx context.Context, projectID string, v *T) (*T, error) {
	if err := c.validate(v); err != nil {
		return nil, err
	}
	now := c.now()
	m := c.meta(v)
	m.ID = idPrefixes[c.kind] + uuid.NewString()
	m.ProjectID = projectID
	m.CreatedAt = now
	m.UpdatedAt = now

	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", c.kind, err)
	}
	rec := &EntityRecord{ProjectID: projectID, Kind: c.kind, ID: m.ID, Data: data, CreatedAt: now, UpdatedAt: now}
	if err := c.store.InsertEntity(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", c.kind, err)
	}
	return v, nil
}

// Update loads the entity, applies patch, validates, and stores the result.
func (c *Collection[T]) Update(ctx context.Context, projectID, id string, patch func(*T)) (*T, error) {
	v, err := c.Get(ctx, projectID, id)
	if err != nil {
		return nil, err
	}
	patch(v)
	if err := c.validate(v); err != nil {
		return nil, err
	}
	m := c.meta(v)
	m.ID, m.ProjectID = id, projectID
	m.UpdatedAt = c.now()

	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", c.kind, err)
	}
	rec := &EntityRecord{ProjectID: projectID, Kind: c.kind, ID: id, Data: data, CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt}
	if err := c.store.UpdateEntity(ctx, rec); err != nil {
		return nil, fmt.Errorf("%s %s: %w", c.kind, id, err)
	}
	return v, nil
}

// Delete removes the entity or returns domain.ErrNotFound.
func (c *Collection[T]) Delete(ctx context.Context, projectID, id string) error {
	if err := c.store.DeleteEntity(ctx, projectID, c.kind, id); err != nil {
		return fmt.Errorf("%s %s: %w", c.kind, id, err)
	}
	return nil
}

// Client groups the collections of one production backend.
type Client struct {
	scenes    *Collection[Scene]
	cast      *Collection[CastMember]
	locations *Collection[Location]
	days      *Collection[ShootingDay]
	elements  *Collection[Element]
	crew      *Collection[CrewMember]
}

// NewClient creates a client backed by store.
func NewClient(store EntityStore) *Client {
	now := func() time.Time { return time.Now().UTC() }
	return &Client{
		scenes:    &Collection[Scene]{store: store, kind: KindScene, meta: func(s *Scene) *Meta { return &s.Meta }, validate: validateScene, now: now},
		cast:      &Collection[CastMember]{store: store, kind: KindCastMember, meta: func(c *CastMember) *Meta { return &c.Meta }, validate: validateCastMember, now: now},
		locations: &Collection[Location]{store: store, kind: KindLocation, meta: func(l *Location) *Meta { return &l.Meta }, validate: validateLocation, now: now},
		days:      &Collection[ShootingDay]{store: store, kind: KindShootingDay, meta: func(d *ShootingDay) *Meta { return &d.Meta }, validate: validateShootingDay, now: now},
		elements:  &Collection[Element]{store: store, kind: KindElement, meta: func(e *Element) *Meta { return &e.Meta }, validate: validateElement, now: now},
		crew:      &Collection[CrewMember]{store: store, kind: KindCrewMember, meta: func(c *CrewMember) *Meta { return &c.Meta }, validate: validateCrewMember, now: now},
	}
}

func (c *Client) Scenes() *Collection[Scene]             { return c.scenes }
func (c *Client) Cast() *Collection[CastMember]          { return c.cast }
func (c *Client) Locations() *Collection[Location]       { return c.locations }
func (c *Client) ShootingDays() *Collection[ShootingDay] { return c.days }
func (c *Client) Elements() *Collection[Element]         { return c.elements }
func (c *Client) Crew() *Collection[CrewMember]          { return c.crew }

// IsNotFound reports whether err means the entity does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}

// IsBusinessError reports whether err is an expected failure the caller can
// act on, as opposed to an infrastructure fault.
func IsBusinessError(err error) bool {
	return errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrInvalidRequest)
}
