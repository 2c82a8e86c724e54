// Package models defines the records the client keeps locally: containers,
// their items, and the queue of changes not yet confirmed by the server.
package models

import (
	"time"

	"github.com/xdeleon/offsync/internal/api"
)

// Container is a top-level grouping record. The owning user is never stored
// locally; the whole store belongs to one user at a time.
type Container struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Notes     string     `json:"notes"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

func (c *Container) Deleted() bool { return c.DeletedAt != nil }

// ToRow builds the remote representation owned by ownerID.
func (c *Container) ToRow(ownerID string) api.Row {
	return api.Row{
		ID:        c.ID,
		OwnerID:   ownerID,
		Name:      c.Name,
		Notes:     c.Notes,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
		DeletedAt: c.DeletedAt,
	}
}

func ContainerFromRow(r api.Row) Container {
	return Container{
		ID:        r.ID,
		Name:      r.Name,
		Notes:     r.Notes,
		CreatedAt: r.CreatedAt.UTC().Truncate(time.Microsecond),
		UpdatedAt: r.UpdatedAt.UTC().Truncate(time.Microsecond),
		DeletedAt: utcPtr(r.DeletedAt),
	}
}

// Item is a child record of a container.
type Item struct {
	ID          string     `json:"id"`
	ContainerID string     `json:"container_id"`
	Name        string     `json:"name"`
	Notes       string     `json:"notes"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
}

func (i *Item) Deleted() bool { return i.DeletedAt != nil }

func (i *Item) ToRow(ownerID string) api.Row {
	return api.Row{
		ID:          i.ID,
		OwnerID:     ownerID,
		ContainerID: i.ContainerID,
		Name:        i.Name,
		Notes:       i.Notes,
		CreatedAt:   i.CreatedAt,
		UpdatedAt:   i.UpdatedAt,
		DeletedAt:   i.DeletedAt,
	}
}

func ItemFromRow(r api.Row) Item {
	return Item{
		ID:          r.ID,
		ContainerID: r.ContainerID,
		Name:        r.Name,
		Notes:       r.Notes,
		CreatedAt:   r.CreatedAt.UTC().Truncate(time.Microsecond),
		UpdatedAt:   r.UpdatedAt.UTC().Truncate(time.Microsecond),
		DeletedAt:   utcPtr(r.DeletedAt),
	}
}

// utcPtr normalizes to the precision the local store keeps.
func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC().Truncate(time.Microsecond)
	return &u
}
