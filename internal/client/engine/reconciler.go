package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xdeleon/offsync/internal/api"
	"github.com/xdeleon/offsync/internal/client/models"
	"github.com/xdeleon/offsync/internal/client/store"
)

// Realtime event outcomes, also used as metric labels.
const (
	outcomeApplied   = "applied"
	outcomeDuplicate = "duplicate"
	outcomeShadowed  = "shadowed"
	outcomeForeign   = "foreign"
	outcomeConflict  = "conflict"
	outcomeNoop      = "noop"
	outcomeStale     = "stale"
	outcomeError     = "error"
)

// HandleEvent applies one remote change to the local store.
//
// A queued local change for the same entity shadows remote inserts and
// updates until it is confirmed. Remote deletes are the exception: the
// record is soft-deleted anyway, the queued changes are discarded, and a
// conflict is recorded. A remote update never resurrects a record that is
// deleted locally.
func (e *Engine) HandleEvent(ctx context.Context, ev api.RowEvent) error {
	table := string(ev.Table)
	kind, err := models.KindForTable(ev.Table)
	if err != nil {
		e.metrics.incEvent(table, outcomeError)
		e.recordError(err)
		return err
	}
	if ev.EntityID() == "" || (ev.Type != api.EventDelete && ev.Record == nil) {
		err := fmt.Errorf("malformed %s event on %s", ev.Type, ev.Table)
		e.metrics.incEvent(table, outcomeError)
		e.recordError(err)
		return err
	}

	epoch := e.epoch.Load()
	userID, err := e.userID(ctx)
	if err != nil {
		e.metrics.incEvent(table, outcomeError)
		return err
	}
	if ev.Record != nil && ev.Record.OwnerID != "" && ev.Record.OwnerID != userID {
		e.metrics.incEvent(table, outcomeForeign)
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.epoch.Load() != epoch {
		e.metrics.incEvent(table, outcomeStale)
		return ErrSessionChanged
	}

	var res mergeResult
	err = e.commitLocked(ctx, func(ctx context.Context, r store.Repos) error {
		var err error
		res, err = e.reconcile(ctx, r, kind, ev)
		return err
	})
	if err != nil {
		e.metrics.incEvent(table, outcomeError)
		e.recordError(err)
		e.log.Error(ctx, "realtime event failed", "table", table, "type", ev.Type, "id", ev.EntityID(), "error", err)
		return err
	}

	e.metrics.incEvent(table, res.outcome)
	e.noteConflict(ctx, res.conflict)
	if res.changed {
		e.bump()
	}
	return nil
}

// mergeResult describes what applying one remote row did locally.
type mergeResult struct {
	outcome  string
	changed  bool
	conflict error
}

func (e *Engine) noteConflict(ctx context.Context, conflict error) {
	if conflict == nil {
		return
	}
	e.metrics.incConflicts()
	e.recordError(conflict)
	e.log.Warn(ctx, "sync conflict", "error", conflict)
}

func (e *Engine) reconcile(ctx context.Context, r store.Repos, kind models.EntityKind, ev api.RowEvent) (mergeResult, error) {
	id := ev.EntityID()
	if ev.Type == api.EventDelete || ev.Record.Deleted() {
		at := e.now()
		if ev.Record.Deleted() {
			at = *utc(ev.Record.DeletedAt)
		}
		return applyRemoteDelete(ctx, r, kind, id, at)
	}

	shadowed, err := r.Pending.ExistsFor(ctx, kind, id)
	if err != nil {
		return mergeResult{}, err
	}
	if shadowed {
		return mergeResult{outcome: outcomeShadowed}, nil
	}

	insert := ev.Type == api.EventInsert
	if kind == models.KindContainer {
		return reconcileContainer(ctx, r, models.ContainerFromRow(*ev.Record), insert)
	}
	return reconcileItem(ctx, r, models.ItemFromRow(*ev.Record), insert)
}

func reconcileContainer(ctx context.Context, r store.Repos, in models.Container, insert bool) (mergeResult, error) {
	local, err := r.Containers.Get(ctx, in.ID)
	switch {
	case isNotFound(err):
		if err := r.Containers.Put(ctx, &in); err != nil {
			return mergeResult{}, err
		}
		return mergeResult{outcome: outcomeApplied, changed: true}, nil
	case err != nil:
		return mergeResult{}, err
	case insert:
		return mergeResult{outcome: outcomeDuplicate}, nil
	case local.Deleted():
		return mergeResult{
			outcome:  outcomeConflict,
			conflict: conflictf("remote update for locally deleted container %s ignored", in.ID),
		}, nil
	case in.UpdatedAt.Before(local.UpdatedAt):
		return mergeResult{outcome: outcomeStale}, nil
	case sameContainer(local, &in):
		return mergeResult{outcome: outcomeNoop}, nil
	}
	if err := r.Containers.Put(ctx, &in); err != nil {
		return mergeResult{}, err
	}
	return mergeResult{outcome: outcomeApplied, changed: true}, nil
}

// reconcileItem stores the item even when its container is not known
// locally; the container's own event may still be on its way. An item
// arriving under a container deleted here is stored deleted.
func reconcileItem(ctx context.Context, r store.Repos, in models.Item, insert bool) (mergeResult, error) {
	if err := inheritContainerDelete(ctx, r, &in); err != nil {
		return mergeResult{}, err
	}
	local, err := r.Items.Get(ctx, in.ID)
	switch {
	case isNotFound(err):
		if err := r.Items.Put(ctx, &in); err != nil {
			return mergeResult{}, err
		}
		return mergeResult{outcome: outcomeApplied, changed: true}, nil
	case err != nil:
		return mergeResult{}, err
	case insert:
		return mergeResult{outcome: outcomeDuplicate}, nil
	case local.Deleted():
		return mergeResult{
			outcome:  outcomeConflict,
			conflict: conflictf("remote update for locally deleted item %s ignored", in.ID),
		}, nil
	case in.UpdatedAt.Before(local.UpdatedAt):
		return mergeResult{outcome: outcomeStale}, nil
	case sameItem(local, &in):
		return mergeResult{outcome: outcomeNoop}, nil
	}
	if err := r.Items.Put(ctx, &in); err != nil {
		return mergeResult{}, err
	}
	return mergeResult{outcome: outcomeApplied, changed: true}, nil
}

// inheritContainerDelete marks a live item deleted when its container is
// already soft-deleted locally.
func inheritContainerDelete(ctx context.Context, r store.Repos, it *models.Item) error {
	if it.Deleted() || it.ContainerID == "" {
		return nil
	}
	c, err := r.Containers.Get(ctx, it.ContainerID)
	if isNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if !c.Deleted() {
		return nil
	}
	at := *c.DeletedAt
	it.DeletedAt = &at
	it.UpdatedAt = maxTime(it.UpdatedAt, c.UpdatedAt)
	return nil
}

// applyRemoteDelete soft-deletes the entity at the given time. Queued
// changes for it are discarded; unless they were all deletes themselves
// this is a conflict the remote side won. A container cascades to its items
// and drops their queued changes. Missing records are not materialized.
func applyRemoteDelete(ctx context.Context, r store.Repos, kind models.EntityKind, id string, at time.Time) (mergeResult, error) {
	queued, err := r.Pending.ListFor(ctx, kind, id)
	if err != nil {
		return mergeResult{}, err
	}
	var conflict error
	if len(queued) > 0 {
		if _, err := r.Pending.DeleteFor(ctx, kind, id); err != nil {
			return mergeResult{}, err
		}
		if n := countLive(queued); n > 0 {
			conflict = conflictf("remote deleted %s %s; discarded %d unconfirmed local change(s)", kind, id, n)
		}
	}

	changed := len(queued) > 0
	switch kind {
	case models.KindContainer:
		effective := at
		c, err := r.Containers.Get(ctx, id)
		switch {
		case err == nil && !c.Deleted():
			c.DeletedAt, c.UpdatedAt = &at, maxTime(c.UpdatedAt, at)
			if err := r.Containers.Put(ctx, c); err != nil {
				return mergeResult{}, err
			}
			changed = true
		case err == nil:
			effective = *c.DeletedAt
		case !isNotFound(err):
			return mergeResult{}, err
		}
		n, err := r.Items.SoftDeleteByContainer(ctx, id, effective)
		if err != nil {
			return mergeResult{}, err
		}
		dropped, err := r.Pending.DeleteItemsUnder(ctx, id)
		if err != nil {
			return mergeResult{}, err
		}
		changed = changed || n > 0 || dropped > 0
	case models.KindItem:
		it, err := r.Items.Get(ctx, id)
		switch {
		case err == nil && !it.Deleted():
			it.DeletedAt, it.UpdatedAt = &at, maxTime(it.UpdatedAt, at)
			if err := r.Items.Put(ctx, it); err != nil {
				return mergeResult{}, err
			}
			changed = true
		case err != nil && !isNotFound(err):
			return mergeResult{}, err
		}
	default:
		return mergeResult{}, errors.New("unknown entity kind " + string(kind))
	}

	res := mergeResult{outcome: outcomeNoop, changed: changed, conflict: conflict}
	switch {
	case conflict != nil:
		res.outcome = outcomeConflict
	case changed:
		res.outcome = outcomeApplied
	}
	return res, nil
}

func countLive(queued []models.PendingChange) int {
	n := 0
	for _, pc := range queued {
		if pc.Operation != models.OpDelete {
			n++
		}
	}
	return n
}

func sameContainer(a, b *models.Container) bool {
	return a.Name == b.Name && a.Notes == b.Notes &&
		a.CreatedAt.Equal(b.CreatedAt) && a.UpdatedAt.Equal(b.UpdatedAt) &&
		sameTime(a.DeletedAt, b.DeletedAt)
}

func sameItem(a, b *models.Item) bool {
	return a.ContainerID == b.ContainerID && a.Name == b.Name && a.Notes == b.Notes &&
		a.CreatedAt.Equal(b.CreatedAt) && a.UpdatedAt.Equal(b.UpdatedAt) &&
		sameTime(a.DeletedAt, b.DeletedAt)
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
