package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xdeleon/offsync/internal/client/models"
	"github.com/xdeleon/offsync/internal/client/store"
	"github.com/xdeleon/offsync/internal/common"
)

// enqueue appends a PendingChange inside the caller's transaction.
func (e *Engine) enqueue(ctx context.Context, r store.Repos, kind models.EntityKind, id string, op models.Operation, p models.Payload) error {
	data, err := p.Encode()
	if err != nil {
		return err
	}
	return r.Pending.Enqueue(ctx, &models.PendingChange{
		ID:        e.newID(),
		Kind:      kind,
		EntityID:  id,
		Operation: op,
		Payload:   data,
		CreatedAt: e.now(),
	})
}

// mutate commits a local write, notifies observers, and schedules a drain.
func (e *Engine) mutate(ctx context.Context, fn func(ctx context.Context, r store.Repos) error) error {
	if err := e.commit(ctx, fn); err != nil {
		return err
	}
	e.bump()
	e.TriggerDrain()
	return nil
}

func (e *Engine) CreateContainer(ctx context.Context, name, notes string) (*models.Container, error) {
	userID, err := e.userID(ctx)
	if err != nil {
		return nil, err
	}

	now := e.now()
	c := &models.Container{ID: e.newID(), Name: name, Notes: notes, CreatedAt: now, UpdatedAt: now}
	err = e.mutate(ctx, func(ctx context.Context, r store.Repos) error {
		if err := r.Containers.Put(ctx, c); err != nil {
			return err
		}
		return e.enqueue(ctx, r, models.KindContainer, c.ID, models.OpInsert, models.Payload{UserID: userID, Container: c})
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (e *Engine) UpdateContainer(ctx context.Context, id, name, notes string) (*models.Container, error) {
	userID, err := e.userID(ctx)
	if err != nil {
		return nil, err
	}

	var c *models.Container
	err = e.mutate(ctx, func(ctx context.Context, r store.Repos) error {
		var err error
		if c, err = liveContainer(ctx, r, id); err != nil {
			return err
		}
		c.Name, c.Notes = name, notes
		c.UpdatedAt = e.later(c.UpdatedAt)
		if err := r.Containers.Put(ctx, c); err != nil {
			return err
		}
		return e.enqueue(ctx, r, models.KindContainer, c.ID, models.OpUpdate, models.Payload{UserID: userID, Container: c})
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// DeleteContainer soft-deletes the container and its items in one commit
// and drops queued item changes under it; the server cascades on its side.
func (e *Engine) DeleteContainer(ctx context.Context, id string) error {
	userID, err := e.userID(ctx)
	if err != nil {
		return err
	}

	return e.mutate(ctx, func(ctx context.Context, r store.Repos) error {
		c, err := liveContainer(ctx, r, id)
		if err != nil {
			return err
		}
		at := e.later(c.UpdatedAt)
		c.DeletedAt, c.UpdatedAt = &at, at
		if err := r.Containers.Put(ctx, c); err != nil {
			return err
		}
		if _, err := r.Items.SoftDeleteByContainer(ctx, id, at); err != nil {
			return err
		}
		if _, err := r.Pending.DeleteItemsUnder(ctx, id); err != nil {
			return err
		}
		return e.enqueue(ctx, r, models.KindContainer, id, models.OpDelete,
			models.Payload{UserID: userID, Container: c, DeletedAt: &at})
	})
}

func (e *Engine) CreateItem(ctx context.Context, containerID, name, notes string) (*models.Item, error) {
	userID, err := e.userID(ctx)
	if err != nil {
		return nil, err
	}

	now := e.now()
	it := &models.Item{ID: e.newID(), ContainerID: containerID, Name: name, Notes: notes, CreatedAt: now, UpdatedAt: now}
	err = e.mutate(ctx, func(ctx context.Context, r store.Repos) error {
		if _, err := liveContainer(ctx, r, containerID); err != nil {
			return fmt.Errorf("container %s: %w", containerID, err)
		}
		if err := r.Items.Put(ctx, it); err != nil {
			return err
		}
		return e.enqueue(ctx, r, models.KindItem, it.ID, models.OpInsert, models.Payload{UserID: userID, Item: it})
	})
	if err != nil {
		return nil, err
	}
	return it, nil
}

func (e *Engine) UpdateItem(ctx context.Context, id, name, notes string) (*models.Item, error) {
	userID, err := e.userID(ctx)
	if err != nil {
		return nil, err
	}

	var it *models.Item
	err = e.mutate(ctx, func(ctx context.Context, r store.Repos) error {
		var err error
		if it, err = liveItem(ctx, r, id); err != nil {
			return err
		}
		it.Name, it.Notes = name, notes
		it.UpdatedAt = e.later(it.UpdatedAt)
		if err := r.Items.Put(ctx, it); err != nil {
			return err
		}
		return e.enqueue(ctx, r, models.KindItem, it.ID, models.OpUpdate, models.Payload{UserID: userID, Item: it})
	})
	if err != nil {
		return nil, err
	}
	return it, nil
}

func (e *Engine) DeleteItem(ctx context.Context, id string) error {
	userID, err := e.userID(ctx)
	if err != nil {
		return err
	}

	return e.mutate(ctx, func(ctx context.Context, r store.Repos) error {
		it, err := liveItem(ctx, r, id)
		if err != nil {
			return err
		}
		at := e.later(it.UpdatedAt)
		it.DeletedAt, it.UpdatedAt = &at, at
		if err := r.Items.Put(ctx, it); err != nil {
			return err
		}
		return e.enqueue(ctx, r, models.KindItem, id, models.OpDelete,
			models.Payload{UserID: userID, Item: it, DeletedAt: &at})
	})
}

func liveContainer(ctx context.Context, r store.Repos, id string) (*models.Container, error) {
	c, err := r.Containers.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Deleted() {
		return nil, common.ErrorNotFound
	}
	return c, nil
}

func liveItem(ctx context.Context, r store.Repos, id string) (*models.Item, error) {
	it, err := r.Items.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if it.Deleted() {
		return nil, common.ErrorNotFound
	}
	return it, nil
}

// ListContainers returns the active containers.
func (e *Engine) ListContainers(ctx context.Context) ([]models.Container, error) {
	var out []models.Container
	err := e.read(ctx, func(ctx context.Context, r store.Repos) error {
		var err error
		out, err = r.Containers.ListActive(ctx)
		return err
	})
	return out, err
}

// ListItems returns the active items of a container.
func (e *Engine) ListItems(ctx context.Context, containerID string) ([]models.Item, error) {
	var out []models.Item
	err := e.read(ctx, func(ctx context.Context, r store.Repos) error {
		var err error
		out, err = r.Items.ListActive(ctx, containerID)
		return err
	})
	return out, err
}

// GetContainer returns the container even when it is soft-deleted.
func (e *Engine) GetContainer(ctx context.Context, id string) (*models.Container, error) {
	var out *models.Container
	err := e.read(ctx, func(ctx context.Context, r store.Repos) error {
		var err error
		out, err = r.Containers.Get(ctx, id)
		return err
	})
	return out, err
}

func (e *Engine) GetItem(ctx context.Context, id string) (*models.Item, error) {
	var out *models.Item
	err := e.read(ctx, func(ctx context.Context, r store.Repos) error {
		var err error
		out, err = r.Items.Get(ctx, id)
		return err
	})
	return out, err
}

// PendingCount is the number of changes awaiting confirmation, parked ones
// included.
func (e *Engine) PendingCount(ctx context.Context) (int, error) {
	var n int
	err := e.read(ctx, func(ctx context.Context, r store.Repos) error {
		var err error
		n, err = r.Pending.Count(ctx)
		return err
	})
	return n, err
}

// RetryParked gives parked entries a fresh retry budget and drains.
func (e *Engine) RetryParked(ctx context.Context) (int64, error) {
	if e.maxRetries <= 0 {
		return 0, nil
	}
	var n int64
	err := e.commit(ctx, func(ctx context.Context, r store.Repos) error {
		var err error
		n, err = r.Pending.ResetRetries(ctx, e.maxRetries)
		return err
	})
	if err != nil {
		return 0, err
	}
	if n > 0 {
		e.TriggerDrain()
	}
	return n, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, common.ErrorNotFound)
}

func maxTime(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}

func utcTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := utcTime(*t)
	return &u
}
