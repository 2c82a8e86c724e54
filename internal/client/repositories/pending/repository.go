// Package pending persists the queue of local changes that still have to be
// confirmed by the server.
package pending

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/xdeleon/offsync/internal/client/models"
	"github.com/xdeleon/offsync/internal/client/repositories"
	"github.com/xdeleon/offsync/internal/common"
	"github.com/xdeleon/offsync/internal/dbx"
)

// IDSet groups pending entity ids by kind.
type IDSet map[models.EntityKind]map[string]struct{}

func (s IDSet) Has(kind models.EntityKind, id string) bool {
	_, ok := s[kind][id]
	return ok
}

type Repository interface {
	Enqueue(ctx context.Context, pc *models.PendingChange) error
	// Get returns common.ErrorNotFound once the entry is gone.
	Get(ctx context.Context, id string) (*models.PendingChange, error)
	// ListOrdered returns the queue in drain order: containers before items,
	// then by creation time, then by insertion order.
	ListOrdered(ctx context.Context) ([]models.PendingChange, error)
	Delete(ctx context.Context, id string) error
	// MarkFailed increments the retry counter and stores the failure text.
	MarkFailed(ctx context.Context, id, reason string) error
	ExistsFor(ctx context.Context, kind models.EntityKind, entityID string) (bool, error)
	ListFor(ctx context.Context, kind models.EntityKind, entityID string) ([]models.PendingChange, error)
	DeleteFor(ctx context.Context, kind models.EntityKind, entityID string) (int64, error)
	// DeleteItemsUnder drops queued changes for every item of the container.
	DeleteItemsUnder(ctx context.Context, containerID string) (int64, error)
	EntityIDs(ctx context.Context) (IDSet, error)
	Count(ctx context.Context) (int, error)
	// ResetRetries zeroes retry counters that reached atLeast.
	ResetRetries(ctx context.Context, atLeast int) (int64, error)
	DeleteAll(ctx context.Context) error
}

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const selectColumns = `id, entity_kind, entity_id, operation, payload, created_at, retry_count, last_error`

func scan(row interface{ Scan(...any) error }) (*models.PendingChange, error) {
	var (
		pc      models.PendingChange
		created int64
	)
	if err := row.Scan(&pc.ID, &pc.Kind, &pc.EntityID, &pc.Operation, &pc.Payload,
		&created, &pc.RetryCount, &pc.LastError); err != nil {
		return nil, err
	}
	pc.CreatedAt = repositories.FromMicros(created)
	return &pc, nil
}

func (r *SQLiteRepository) Enqueue(ctx context.Context, pc *models.PendingChange) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO pending_changes (id, entity_kind, entity_id, operation, payload, created_at, retry_count, last_error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		pc.ID, pc.Kind, pc.EntityID, pc.Operation, pc.Payload,
		repositories.ToMicros(pc.CreatedAt), pc.RetryCount, pc.LastError)
	if err != nil {
		return fmt.Errorf("failed to enqueue %s %s: %w", pc.Operation, pc.Kind, err)
	}
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (*models.PendingChange, error) {
	pc, err := scan(r.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM pending_changes WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pending change %s: %w", id, err)
	}
	return pc, nil
}

func (r *SQLiteRepository) ListOrdered(ctx context.Context) ([]models.PendingChange, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM pending_changes
		ORDER BY CASE entity_kind WHEN 'container' THEN 0 ELSE 1 END, created_at, seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending changes: %w", err)
	}
	return collect(rows)
}

func (r *SQLiteRepository) ListFor(ctx context.Context, kind models.EntityKind, entityID string) ([]models.PendingChange, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM pending_changes
		WHERE entity_kind = ? AND entity_id = ? ORDER BY created_at, seq`, kind, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending %s %s: %w", kind, entityID, err)
	}
	return collect(rows)
}

func collect(rows *sql.Rows) ([]models.PendingChange, error) {
	defer rows.Close()

	var result []models.PendingChange
	for rows.Next() {
		pc, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pending change: %w", err)
		}
		result = append(result, *pc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate pending changes: %w", err)
	}
	return result, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM pending_changes WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete pending change %s: %w", id, err)
	}
	return nil
}

func (r *SQLiteRepository) MarkFailed(ctx context.Context, id, reason string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE pending_changes SET retry_count = retry_count + 1, last_error = ?
		WHERE id = ?`, reason, id)
	if err != nil {
		return fmt.Errorf("failed to mark pending change %s: %w", id, err)
	}
	return nil
}

func (r *SQLiteRepository) ExistsFor(ctx context.Context, kind models.EntityKind, entityID string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM pending_changes WHERE entity_kind = ? AND entity_id = ?`,
		kind, entityID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to look up pending %s %s: %w", kind, entityID, err)
	}
	return n > 0, nil
}

func (r *SQLiteRepository) DeleteFor(ctx context.Context, kind models.EntityKind, entityID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM pending_changes WHERE entity_kind = ? AND entity_id = ?`, kind, entityID)
	if err != nil {
		return 0, fmt.Errorf("failed to discard pending %s %s: %w", kind, entityID, err)
	}
	return res.RowsAffected()
}

func (r *SQLiteRepository) DeleteItemsUnder(ctx context.Context, containerID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM pending_changes
		WHERE entity_kind = 'item'
		  AND entity_id IN (SELECT id FROM items WHERE container_id = ?)`, containerID)
	if err != nil {
		return 0, fmt.Errorf("failed to discard pending items of %s: %w", containerID, err)
	}
	return res.RowsAffected()
}

func (r *SQLiteRepository) EntityIDs(ctx context.Context) (IDSet, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT entity_kind, entity_id FROM pending_changes`)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot pending ids: %w", err)
	}
	defer rows.Close()

	set := IDSet{models.KindContainer: {}, models.KindItem: {}}
	for rows.Next() {
		var (
			kind models.EntityKind
			id   string
		)
		if err := rows.Scan(&kind, &id); err != nil {
			return nil, fmt.Errorf("failed to scan pending id: %w", err)
		}
		if set[kind] == nil {
			set[kind] = map[string]struct{}{}
		}
		set[kind][id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate pending ids: %w", err)
	}
	return set, nil
}

func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_changes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count pending changes: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) ResetRetries(ctx context.Context, atLeast int) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE pending_changes SET retry_count = 0, last_error = ''
		WHERE retry_count >= ?`, atLeast)
	if err != nil {
		return 0, fmt.Errorf("failed to reset retries: %w", err)
	}
	return res.RowsAffected()
}

func (r *SQLiteRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM pending_changes`); err != nil {
		return fmt.Errorf("failed to erase pending changes: %w", err)
	}
	return nil
}
