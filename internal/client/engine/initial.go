package engine

import (
	"context"
	"fmt"

	"github.com/xdeleon/offsync/internal/api"
	"github.com/xdeleon/offsync/internal/client/models"
	"github.com/xdeleon/offsync/internal/client/repositories/pending"
	"github.com/xdeleon/offsync/internal/client/store"
)

// PerformInitialSync pulls the user's full remote state and merges it into
// the local store. It is a no-op while offline or signed out.
//
// The queue is drained first. Whatever is still queued afterwards shadows
// the snapshot, except that remote deletions always win (and are reported
// as conflicts when they discard local work). Live rows are inserted when
// absent and overwrite the local copy only when their updated_at is
// strictly newer. The merge is one commit.
func (e *Engine) PerformInitialSync(ctx context.Context) error {
	if !e.connected() {
		return nil
	}
	epoch := e.epoch.Load()
	userID, err := e.userID(ctx)
	if err != nil {
		return nil
	}
	if e.remote == nil {
		return nil
	}

	e.syncing.Add(1)
	defer e.syncing.Add(-1)

	if err := e.drainAndWait(ctx); err != nil {
		e.log.Debug(ctx, "drain before initial sync left entries queued", "error", err)
	}
	if e.epoch.Load() != epoch {
		e.metrics.incInitialSync(outcomeStale)
		return ErrSessionChanged
	}

	snapshot := make(map[api.Table][]api.Row, len(api.Tables))
	for _, t := range api.Tables {
		rows, err := e.remote.Fetch(ctx, t)
		if err != nil {
			err = fmt.Errorf("%w: fetch %s: %w", ErrSyncFailed, t, err)
			e.metrics.incInitialSync("failed")
			e.recordError(err)
			return err
		}
		snapshot[t] = rows
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.epoch.Load() != epoch {
		e.metrics.incInitialSync(outcomeStale)
		e.log.Info(ctx, "discarding initial sync from previous session")
		return ErrSessionChanged
	}

	var (
		changed   bool
		conflicts []error
	)
	err = e.commitLocked(ctx, func(ctx context.Context, r store.Repos) error {
		queued, err := r.Pending.EntityIDs(ctx)
		if err != nil {
			return err
		}
		for _, t := range api.Tables {
			kind, _ := models.KindForTable(t)
			for _, row := range snapshot[t] {
				if row.OwnerID != "" && row.OwnerID != userID {
					continue
				}
				res, err := mergeRow(ctx, r, kind, row, queued)
				if err != nil {
					return fmt.Errorf("merge %s %s: %w", kind, row.ID, err)
				}
				changed = changed || res.changed
				if res.conflict != nil {
					conflicts = append(conflicts, res.conflict)
				}
			}
		}
		return nil
	})
	if err != nil {
		e.metrics.incInitialSync("failed")
		e.recordError(err)
		return err
	}

	for _, c := range conflicts {
		e.noteConflict(ctx, c)
	}
	if changed {
		e.bump()
	}
	e.metrics.incInitialSync("ok")
	e.log.Info(ctx, "initial sync complete",
		"containers", len(snapshot[api.TableContainers]), "items", len(snapshot[api.TableItems]),
		"changed", changed, "conflicts", len(conflicts))
	return nil
}

func mergeRow(ctx context.Context, r store.Repos, kind models.EntityKind, row api.Row, queued pending.IDSet) (mergeResult, error) {
	if row.Deleted() {
		return applyRemoteDelete(ctx, r, kind, row.ID, *utc(row.DeletedAt))
	}
	if queued.Has(kind, row.ID) {
		return mergeResult{outcome: outcomeShadowed}, nil
	}

	switch kind {
	case models.KindContainer:
		in := models.ContainerFromRow(row)
		local, err := r.Containers.Get(ctx, row.ID)
		if err != nil && !isNotFound(err) {
			return mergeResult{}, err
		}
		if err == nil && !in.UpdatedAt.After(local.UpdatedAt) {
			return mergeResult{outcome: outcomeNoop}, nil
		}
		return mergeResult{outcome: outcomeApplied, changed: true}, r.Containers.Put(ctx, &in)
	case models.KindItem:
		in := models.ItemFromRow(row)
		if err := inheritContainerDelete(ctx, r, &in); err != nil {
			return mergeResult{}, err
		}
		local, err := r.Items.Get(ctx, row.ID)
		if err != nil && !isNotFound(err) {
			return mergeResult{}, err
		}
		if err == nil && !in.UpdatedAt.After(local.UpdatedAt) {
			return mergeResult{outcome: outcomeNoop}, nil
		}
		return mergeResult{outcome: outcomeApplied, changed: true}, r.Items.Put(ctx, &in)
	}
	return mergeResult{}, fmt.Errorf("unknown entity kind %q", kind)
}
