package engine

import (
	"context"
	"fmt"

	"github.com/xdeleon/offsync/internal/api"
	"github.com/xdeleon/offsync/internal/client/models"
)

// Applier turns one PendingChange into exactly one remote call.
type Applier struct {
	remote Remote
}

func NewApplier(r Remote) *Applier {
	return &Applier{remote: r}
}

// Apply sends pc on behalf of actingUserID and returns the row as stored by
// the server. Inserts and updates become upserts carrying the owner id;
// deletes set deleted_at remotely and never remove the row.
func (a *Applier) Apply(ctx context.Context, pc models.PendingChange, actingUserID string) (*api.Row, error) {
	if a.remote == nil {
		return nil, fmt.Errorf("%w: no remote configured", ErrSyncFailed)
	}

	p, err := models.DecodePayload(pc.Kind, pc.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSyncFailed, err)
	}
	if p.UserID != actingUserID {
		return nil, fmt.Errorf("%w: recorded for %q, session is %q", ErrUserMismatch, p.UserID, actingUserID)
	}

	var row api.Row
	switch pc.Kind {
	case models.KindContainer:
		row = p.Container.ToRow(actingUserID)
	case models.KindItem:
		row = p.Item.ToRow(actingUserID)
	}
	if row.ID != pc.EntityID {
		return nil, fmt.Errorf("%w: payload is for %s, change targets %s", ErrSyncFailed, row.ID, pc.EntityID)
	}

	table := pc.Kind.Table()
	var out *api.Row
	switch pc.Operation {
	case models.OpInsert, models.OpUpdate:
		out, err = a.remote.Upsert(ctx, table, row)
	case models.OpDelete:
		at := p.DeletedAt
		if at == nil {
			at = row.DeletedAt
		}
		if at == nil {
			return nil, fmt.Errorf("%w: delete without deleted_at", ErrSyncFailed)
		}
		out, err = a.remote.SoftDelete(ctx, table, pc.EntityID, actingUserID, *at)
	default:
		return nil, fmt.Errorf("%w: unknown operation %q", ErrSyncFailed, pc.Operation)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s %s: %w", ErrSyncFailed, pc.Operation, pc.Kind, pc.EntityID, err)
	}
	return out, nil
}
