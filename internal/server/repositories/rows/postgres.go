// Package rows stores containers and items in PostgreSQL. Every statement is
// scoped to the owner, the way a row level policy would scope it.
package rows

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xdeleon/offsync/internal/api"
	"github.com/xdeleon/offsync/internal/common"
	"github.com/xdeleon/offsync/internal/dbx"
)

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// columns lists the selected columns of table in scan order.
func columns(t api.Table) []string {
	if t == api.TableItems {
		return []string{"id", "owner_id", "container_id", "name", "notes", "created_at", "updated_at", "deleted_at"}
	}
	return []string{"id", "owner_id", "name", "notes", "created_at", "updated_at", "deleted_at"}
}

func selectList(t api.Table) string {
	return strings.Join(columns(t), ", ")
}

func checkTable(t api.Table) error {
	_, err := api.ParseTable(string(t))
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRow(t api.Table, s scanner, extra ...any) (*api.Row, error) {
	var (
		r       api.Row
		deleted sql.NullTime
	)
	dest := []any{&r.ID, &r.OwnerID}
	if t == api.TableItems {
		dest = append(dest, &r.ContainerID)
	}
	dest = append(dest, &r.Name, &r.Notes, &r.CreatedAt, &r.UpdatedAt, &deleted)
	dest = append(dest, extra...)
	if err := s.Scan(dest...); err != nil {
		return nil, err
	}
	r.CreatedAt, r.UpdatedAt = r.CreatedAt.UTC(), r.UpdatedAt.UTC()
	if deleted.Valid {
		at := deleted.Time.UTC()
		r.DeletedAt = &at
	}
	return &r, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// Get returns the row with id regardless of owner, or common.ErrorNotFound.
func (r *PostgresRepository) Get(ctx context.Context, t api.Table, id string) (*api.Row, error) {
	if err := checkTable(t); err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, selectList(t), t)
	row, err := scanRow(t, r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select %s %s: %w", t, id, err)
	}
	return row, nil
}

// Upsert inserts row or updates the stored copy. updated_at never moves
// backwards and a deleted_at, once set, is kept. A row owned by someone else
// is left untouched and common.ErrForbidden is returned. The bool reports
// whether the row was newly inserted.
func (r *PostgresRepository) Upsert(ctx context.Context, t api.Table, row api.Row) (*api.Row, bool, error) {
	if err := checkTable(t); err != nil {
		return nil, false, err
	}

	cols := columns(t)
	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	sets := []string{"name = EXCLUDED.name", "notes = EXCLUDED.notes"}
	if t == api.TableItems {
		sets = append([]string{"container_id = EXCLUDED.container_id"}, sets...)
	}
	sets = append(sets,
		fmt.Sprintf("updated_at = GREATEST(%s.updated_at, EXCLUDED.updated_at)", t),
		fmt.Sprintf("deleted_at = COALESCE(%s.deleted_at, EXCLUDED.deleted_at)", t),
	)

	query := fmt.Sprintf(`
		INSERT INTO %[1]s (%[2]s)
		VALUES (%[3]s)
		ON CONFLICT (id)
		DO UPDATE SET %[4]s
			WHERE %[1]s.owner_id = EXCLUDED.owner_id
		RETURNING %[2]s, (xmax = 0) AS inserted`,
		t, selectList(t), strings.Join(placeholders, ", "), strings.Join(sets, ", "))

	args := []any{row.ID, row.OwnerID}
	if t == api.TableItems {
		args = append(args, row.ContainerID)
	}
	args = append(args, row.Name, row.Notes, row.CreatedAt, row.UpdatedAt, nullTime(row.DeletedAt))

	var inserted bool
	out, err := scanRow(t, r.db.QueryRowContext(ctx, query, args...), &inserted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("%w: %s %s belongs to another user", common.ErrForbidden, t, row.ID)
	}
	if err != nil {
		return nil, false, fmt.Errorf("upsert %s %s: %w", t, row.ID, err)
	}
	return out, inserted, nil
}

// SoftDelete sets deleted_at on the caller's row. Deleting twice keeps the
// first timestamp. A missing or foreign row is common.ErrorNotFound.
func (r *PostgresRepository) SoftDelete(ctx context.Context, t api.Table, id, ownerID string, at time.Time) (*api.Row, error) {
	if err := checkTable(t); err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
		UPDATE %s
		SET deleted_at = COALESCE(deleted_at, $3), updated_at = GREATEST(updated_at, $3)
		WHERE id = $1 AND owner_id = $2
		RETURNING %s`, t, selectList(t))

	row, err := scanRow(t, r.db.QueryRowContext(ctx, query, id, ownerID, at))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s %s: %w", t, id, common.ErrorNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("soft delete %s %s: %w", t, id, err)
	}
	return row, nil
}

// CascadeItems soft-deletes the live items of a container and returns them.
func (r *PostgresRepository) CascadeItems(ctx context.Context, containerID, ownerID string, at time.Time) ([]api.Row, error) {
	query := fmt.Sprintf(`
		UPDATE items
		SET deleted_at = $3, updated_at = GREATEST(updated_at, $3)
		WHERE container_id = $1 AND owner_id = $2 AND deleted_at IS NULL
		RETURNING %s`, selectList(api.TableItems))

	rows, err := r.db.QueryContext(ctx, query, containerID, ownerID, at)
	if err != nil {
		return nil, fmt.Errorf("cascade items of %s: %w", containerID, err)
	}
	return collect(api.TableItems, rows)
}

// SelectAll returns every row of the owner, soft-deleted ones included.
func (r *PostgresRepository) SelectAll(ctx context.Context, t api.Table, ownerID string) ([]api.Row, error) {
	if err := checkTable(t); err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE owner_id = $1 ORDER BY created_at, id`, selectList(t), t)
	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to select %s: %w", t, err)
	}
	return collect(t, rows)
}

func collect(t api.Table, rows *sql.Rows) ([]api.Row, error) {
	defer rows.Close()

	var result []api.Row
	for rows.Next() {
		row, err := scanRow(t, rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func snapshot(row *api.Row) (any, error) {
	if row == nil {
		return nil, nil
	}
	b, err := json.Marshal(row)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// AppendAudit writes one audit_log entry. The log is never read back by the
// service.
func (r *PostgresRepository) AppendAudit(ctx context.Context, e AuditEntry) error {
	before, err := snapshot(e.Before)
	if err != nil {
		return fmt.Errorf("audit before: %w", err)
	}
	after, err := snapshot(e.After)
	if err != nil {
		return fmt.Errorf("audit after: %w", err)
	}

	query := `INSERT INTO audit_log (table_name, row_id, owner_id, action, before, after)
		VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := r.db.ExecContext(ctx, query, string(e.Table), e.RowID, e.OwnerID, string(e.Action), before, after); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
