// Package services holds the server's business rules: ownership checks,
// transactional writes with an audit trail, and publishing committed
// changes to realtime subscribers.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xdeleon/offsync/internal/api"
	"github.com/xdeleon/offsync/internal/common"
	"github.com/xdeleon/offsync/internal/dbx"
	"github.com/xdeleon/offsync/internal/server/repositories/repomanager"
	"github.com/xdeleon/offsync/internal/server/repositories/rows"
)

// Publisher receives events after their transaction commits.
type Publisher interface {
	Publish(ownerID string, ev api.RowEvent)
}

type RowService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	publisher   Publisher
}

func NewRowService(db *sql.DB, rm repomanager.RepositoryManager, p Publisher) *RowService {
	return &RowService{db: db, repomanager: rm, publisher: p}
}

func (s *RowService) publish(owner string, evs ...api.RowEvent) {
	if s.publisher == nil {
		return
	}
	for _, ev := range evs {
		s.publisher.Publish(owner, ev)
	}
}

// Upsert stores row on behalf of userID, who must own it. Timestamps come
// from the caller; the stored updated_at never moves backwards. A live item
// written under a soft-deleted container is stored deleted with it.
func (s *RowService) Upsert(ctx context.Context, userID string, t api.Table, row api.Row) (*api.Row, bool, error) {
	if _, err := api.ParseTable(string(t)); err != nil {
		return nil, false, err
	}
	if err := row.Validate(t); err != nil {
		return nil, false, err
	}
	if row.OwnerID != userID {
		return nil, false, fmt.Errorf("%w: row owner %q is not the caller", common.ErrForbidden, row.OwnerID)
	}

	var (
		out      *api.Row
		inserted bool
	)
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Rows(tx)

		before, err := repo.Get(ctx, t, row.ID)
		if err != nil && !errors.Is(err, common.ErrorNotFound) {
			return err
		}
		if before != nil && before.OwnerID != userID {
			return fmt.Errorf("%w: %s %s belongs to another user", common.ErrForbidden, t, row.ID)
		}
		if err := inheritContainerDelete(ctx, repo, userID, t, &row); err != nil {
			return err
		}

		out, inserted, err = repo.Upsert(ctx, t, row)
		if err != nil {
			return err
		}

		action := rows.ActionUpdate
		if inserted {
			action = rows.ActionInsert
		}
		return repo.AppendAudit(ctx, rows.AuditEntry{
			Table: t, RowID: row.ID, OwnerID: userID, Action: action, Before: before, After: out,
		})
	})
	if err != nil {
		return nil, false, err
	}

	typ := api.EventUpdate
	if inserted {
		typ = api.EventInsert
	}
	s.publish(userID, api.RowEvent{Type: typ, Table: t, Record: out})
	return out, inserted, nil
}

func inheritContainerDelete(ctx context.Context, repo rows.Repository, userID string, t api.Table, row *api.Row) error {
	if t != api.TableItems || row.Deleted() {
		return nil
	}
	c, err := repo.Get(ctx, api.TableContainers, row.ContainerID)
	if errors.Is(err, common.ErrorNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if c.OwnerID != userID || !c.Deleted() {
		return nil
	}
	at := *c.DeletedAt
	row.DeletedAt = &at
	if c.UpdatedAt.After(row.UpdatedAt) {
		row.UpdatedAt = c.UpdatedAt
	}
	return nil
}

// SoftDelete marks the caller's row deleted. A container takes its live
// items with it; every affected row is published as an update carrying
// deleted_at.
func (s *RowService) SoftDelete(ctx context.Context, userID string, t api.Table, id, ownerID string, at time.Time) (*api.Row, error) {
	if _, err := api.ParseTable(string(t)); err != nil {
		return nil, err
	}
	if ownerID != userID {
		return nil, fmt.Errorf("%w: owner %q is not the caller", common.ErrForbidden, ownerID)
	}
	if at.IsZero() {
		return nil, fmt.Errorf("%w: missing deleted_at", common.ErrInvalidRow)
	}

	var (
		out      *api.Row
		cascaded []api.Row
	)
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Rows(tx)

		var err error
		out, err = repo.SoftDelete(ctx, t, id, userID, at)
		if err != nil {
			return err
		}
		if err := repo.AppendAudit(ctx, rows.AuditEntry{
			Table: t, RowID: id, OwnerID: userID, Action: rows.ActionSoftDelete, After: out,
		}); err != nil {
			return err
		}

		if t != api.TableContainers {
			return nil
		}
		cascaded, err = repo.CascadeItems(ctx, id, userID, *out.DeletedAt)
		if err != nil {
			return err
		}
		for i := range cascaded {
			if err := repo.AppendAudit(ctx, rows.AuditEntry{
				Table: api.TableItems, RowID: cascaded[i].ID, OwnerID: userID, Action: rows.ActionSoftDelete, After: &cascaded[i],
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(userID, api.RowEvent{Type: api.EventUpdate, Table: t, Record: out})
	for i := range cascaded {
		s.publish(userID, api.RowEvent{Type: api.EventUpdate, Table: api.TableItems, Record: &cascaded[i]})
	}
	return out, nil
}

// Fetch returns every row of the caller in table, deleted ones included.
func (s *RowService) Fetch(ctx context.Context, userID string, t api.Table) ([]api.Row, error) {
	if _, err := api.ParseTable(string(t)); err != nil {
		return nil, err
	}
	return s.repomanager.Rows(s.db).SelectAll(ctx, t, userID)
}
