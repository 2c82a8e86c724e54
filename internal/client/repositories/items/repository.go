// Package items persists Item records in the local SQLite store.
package items

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xdeleon/offsync/internal/client/models"
	"github.com/xdeleon/offsync/internal/client/repositories"
	"github.com/xdeleon/offsync/internal/common"
	"github.com/xdeleon/offsync/internal/dbx"
)

type Repository interface {
	// Get returns common.ErrorNotFound when no record has that id.
	Get(ctx context.Context, id string) (*models.Item, error)
	Put(ctx context.Context, it *models.Item) error
	ListActive(ctx context.Context, containerID string) ([]models.Item, error)
	// SoftDeleteByContainer stamps every live item of the container with at
	// and reports how many rows changed.
	SoftDeleteByContainer(ctx context.Context, containerID string, at time.Time) (int64, error)
	DeleteAll(ctx context.Context) error
}

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const selectColumns = `id, container_id, name, notes, created_at, updated_at, deleted_at`

func scan(row interface{ Scan(...any) error }) (*models.Item, error) {
	var (
		it               models.Item
		created, updated int64
		deleted          sql.NullInt64
	)
	if err := row.Scan(&it.ID, &it.ContainerID, &it.Name, &it.Notes, &created, &updated, &deleted); err != nil {
		return nil, err
	}
	it.CreatedAt = repositories.FromMicros(created)
	it.UpdatedAt = repositories.FromMicros(updated)
	it.DeletedAt = repositories.FromNullMicros(deleted)
	return &it, nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (*models.Item, error) {
	it, err := scan(r.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM items WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item %s: %w", id, err)
	}
	return it, nil
}

func (r *SQLiteRepository) Put(ctx context.Context, it *models.Item) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO items (id, container_id, name, notes, created_at, updated_at, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			container_id = excluded.container_id,
			name = excluded.name,
			notes = excluded.notes,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			deleted_at = excluded.deleted_at`,
		it.ID, it.ContainerID, it.Name, it.Notes,
		repositories.ToMicros(it.CreatedAt), repositories.ToMicros(it.UpdatedAt),
		repositories.NullMicros(it.DeletedAt))
	if err != nil {
		return fmt.Errorf("failed to put item %s: %w", it.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) ListActive(ctx context.Context, containerID string) ([]models.Item, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM items
		WHERE container_id = ? AND deleted_at IS NULL ORDER BY created_at, id`, containerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	var result []models.Item
	for rows.Next() {
		it, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		result = append(result, *it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate items: %w", err)
	}
	return result, nil
}

func (r *SQLiteRepository) SoftDeleteByContainer(ctx context.Context, containerID string, at time.Time) (int64, error) {
	ts := repositories.ToMicros(at)
	res, err := r.db.ExecContext(ctx, `
		UPDATE items SET deleted_at = ?, updated_at = MAX(updated_at, ?)
		WHERE container_id = ? AND deleted_at IS NULL`, ts, ts, containerID)
	if err != nil {
		return 0, fmt.Errorf("failed to cascade delete items of %s: %w", containerID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM items`); err != nil {
		return fmt.Errorf("failed to erase items: %w", err)
	}
	return nil
}
