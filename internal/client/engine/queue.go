package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/xdeleon/offsync/internal/api"
	"github.com/xdeleon/offsync/internal/client/models"
	"github.com/xdeleon/offsync/internal/client/store"
	"github.com/xdeleon/offsync/internal/common"
)

// TriggerDrain starts a drain in the background.
func (e *Engine) TriggerDrain() {
	e.goAsync(func(ctx context.Context) {
		if err := e.Drain(ctx); err != nil && !errors.Is(err, ErrNoSession) {
			e.log.Debug(ctx, "background drain finished with errors", "error", err)
		}
	})
}

// Drain sends queued changes to the server one at a time. Only one drain
// runs at once; a call made while another is running returns nil at once
// and makes the running drain go around again, so no trigger is lost.
//
// A failing entry is counted and skipped, never blocking the entries
// behind it. The first failure is returned.
func (e *Engine) Drain(ctx context.Context) error {
	done, owner := e.startDrain()
	if !owner {
		return nil
	}
	return e.runDrain(ctx, done)
}

// drainAndWait is Drain, except that when another drain is running it
// waits for that drain's extra pass to finish instead of returning early.
func (e *Engine) drainAndWait(ctx context.Context) error {
	done, owner := e.startDrain()
	if owner {
		return e.runDrain(ctx, done)
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// startDrain claims the drain. When one is already running it asks for
// another pass and returns that drain's done channel.
func (e *Engine) startDrain() (chan struct{}, bool) {
	e.drainMu.Lock()
	defer e.drainMu.Unlock()
	if e.drainDone != nil {
		e.drainAgain = true
		return e.drainDone, false
	}
	e.drainDone = make(chan struct{})
	return e.drainDone, true
}

func (e *Engine) runDrain(ctx context.Context, done chan struct{}) error {
	for {
		err := e.drainOnce(ctx)

		e.drainMu.Lock()
		if !e.drainAgain || ctx.Err() != nil {
			e.drainAgain = false
			e.drainDone = nil
			e.drainMu.Unlock()
			close(done)
			return err
		}
		e.drainAgain = false
		e.drainMu.Unlock()
	}
}

func (e *Engine) drainOnce(ctx context.Context) error {
	if !e.connected() {
		return nil
	}

	epoch := e.epoch.Load()
	userID, err := e.userID(ctx)
	if err != nil {
		return err
	}

	var entries []models.PendingChange
	err = e.read(ctx, func(ctx context.Context, r store.Repos) error {
		var err error
		entries, err = r.Pending.ListOrdered(ctx)
		return err
	})
	if err != nil {
		return err
	}

	var firstErr error
	parked := 0
	for _, pc := range entries {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if e.epoch.Load() != epoch {
			return ErrSessionChanged
		}
		if e.isParked(pc) {
			parked++
			continue
		}
		if !e.stillQueued(ctx, pc.ID) {
			continue
		}

		row, applyErr := e.applier.Apply(ctx, pc, userID)
		if applyErr != nil {
			if err := e.recordFailure(ctx, epoch, pc, applyErr); err != nil {
				return err
			}
			if firstErr == nil {
				firstErr = applyErr
			}
			continue
		}
		if err := e.confirm(ctx, epoch, pc, row); err != nil {
			return err
		}
	}

	if parked > 0 {
		err := fmt.Errorf("%w: %d pending change(s) parked after %d attempts", ErrSyncFailed, parked, e.maxRetries)
		e.recordError(err)
		if firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (e *Engine) isParked(pc models.PendingChange) bool {
	return e.maxRetries > 0 && pc.RetryCount >= e.maxRetries
}

func (e *Engine) stillQueued(ctx context.Context, id string) bool {
	err := e.read(ctx, func(ctx context.Context, r store.Repos) error {
		_, err := r.Pending.Get(ctx, id)
		return err
	})
	return err == nil
}

func (e *Engine) recordFailure(ctx context.Context, epoch uint64, pc models.PendingChange, cause error) error {
	reason := "remote"
	if errors.Is(cause, ErrUserMismatch) {
		reason = "user_mismatch"
	} else if errors.Is(cause, common.ErrUnavailable) {
		reason = "unavailable"
	}
	e.metrics.incFailed(string(pc.Kind), reason)
	e.recordError(cause)
	e.log.Warn(ctx, "pending change failed", "id", pc.ID, "kind", pc.Kind,
		"entity", pc.EntityID, "op", pc.Operation, "attempt", pc.RetryCount+1, "error", cause)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.epoch.Load() != epoch {
		return ErrSessionChanged
	}
	return e.commitLocked(ctx, func(ctx context.Context, r store.Repos) error {
		return r.Pending.MarkFailed(ctx, pc.ID, cause.Error())
	})
}

// confirm removes a delivered entry and, when nothing else is queued for the
// entity, adopts the timestamps the server assigned.
func (e *Engine) confirm(ctx context.Context, epoch uint64, pc models.PendingChange, row *api.Row) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.epoch.Load() != epoch {
		return ErrSessionChanged
	}

	adopted := false
	err := e.commitLocked(ctx, func(ctx context.Context, r store.Repos) error {
		if err := r.Pending.Delete(ctx, pc.ID); err != nil {
			return err
		}
		if row == nil {
			return nil
		}
		more, err := r.Pending.ExistsFor(ctx, pc.Kind, pc.EntityID)
		if err != nil || more {
			return err
		}
		adopted, err = adoptTimestamps(ctx, r, pc.Kind, row)
		return err
	})
	if err != nil {
		return err
	}

	e.metrics.incDrained(string(pc.Kind))
	e.log.Debug(ctx, "pending change confirmed", "id", pc.ID, "kind", pc.Kind, "entity", pc.EntityID, "op", pc.Operation)
	if adopted {
		e.bump()
	}
	return nil
}

// adoptTimestamps replaces optimistic local timestamps with the server's.
// The deletion state is left alone when local and remote disagree; the
// realtime feed or the next snapshot settles it.
func adoptTimestamps(ctx context.Context, r store.Repos, kind models.EntityKind, row *api.Row) (bool, error) {
	switch kind {
	case models.KindContainer:
		c, err := r.Containers.Get(ctx, row.ID)
		if isNotFound(err) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		if c.Deleted() != row.Deleted() || c.UpdatedAt.Equal(utcTime(row.UpdatedAt)) {
			return false, nil
		}
		c.UpdatedAt = utcTime(row.UpdatedAt)
		if row.Deleted() {
			c.DeletedAt = utc(row.DeletedAt)
		}
		return true, r.Containers.Put(ctx, c)
	case models.KindItem:
		it, err := r.Items.Get(ctx, row.ID)
		if isNotFound(err) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		if it.Deleted() != row.Deleted() || it.UpdatedAt.Equal(utcTime(row.UpdatedAt)) {
			return false, nil
		}
		it.UpdatedAt = utcTime(row.UpdatedAt)
		if row.Deleted() {
			it.DeletedAt = utc(row.DeletedAt)
		}
		return true, r.Items.Put(ctx, it)
	}
	return false, nil
}
