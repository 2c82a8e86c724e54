// Package containers persists Container records in the local SQLite store.
package containers

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

type Repository interface {
	// Get returns common.ErrorNotFound when no record has that id, deleted or not.
	Get(ctx context.Context, id string) (*models.Container, error)
	// Put inserts the record or overwrites every column of an existing one.
	Put(ctx context.Context, c *models.Container) error
	// ListActive returns containers without a deletion timestamp, oldest first.
	ListActive(ctx context.Context) ([]models.Container, error)
	DeleteAll(ctx context.Context) error
}

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const selectColumns = `id, name, notes, created_at, updated_at, deleted_at`

func scan(row interface{ Scan(...any) error }) (*models.Container, error) {
	var (
		c                models.Container
		created, updated int64
		deleted          sql.NullInt64
	)
	if err := row.Scan(&c.ID, &c.Name, &c.Notes, &created, &updated, &deleted); err != nil {
		return nil, err
	}
	c.CreatedAt = repositories.FromMicros(created)
	c.UpdatedAt = repositories.FromMicros(updated)
	c.DeletedAt = repositories.FromNullMicros(deleted)
	return &c, nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (*models.Container, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM containers WHERE id = ?`, id)
	c, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get container %s: %w", id, err)
	}
	return c, nil
}

func (r *SQLiteRepository) Put(ctx context.Context, c *models.Container) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO containers (id, name, notes, created_at, updated_at, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			notes = excluded.notes,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			deleted_at = excluded.deleted_at`,
		c.ID, c.Name, c.Notes,
		repositories.ToMicros(c.CreatedAt), repositories.ToMicros(c.UpdatedAt),
		repositories.NullMicros(c.DeletedAt))
	if err != nil {
		return fmt.Errorf("failed to put container %s: %w", c.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) ListActive(ctx context.Context) ([]models.Container, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM containers
		WHERE deleted_at IS NULL ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}
	defer rows.Close()

	var result []models.Container
	for rows.Next() {
		c, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan container: %w", err)
		}
		result = append(result, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate containers: %w", err)
	}
	return result, nil
}

func (r *SQLiteRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM containers`); err != nil {
		return fmt.Errorf("failed to erase containers: %w", err)
	}
	return nil
}
