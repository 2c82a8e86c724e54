package rows

import (
	"context"
	"time"

	"github.com/xdeleon/offsync/internal/api"
)

// Action names an audit log entry.
type Action string

const (
	ActionInsert     Action = "insert"
	ActionUpdate     Action = "update"
	ActionSoftDelete Action = "soft_delete"
)

// AuditEntry records one write. Before is nil for inserts.
type AuditEntry struct {
	Table   api.Table
	RowID   string
	OwnerID string
	Action  Action
	Before  *api.Row
	After   *api.Row
}

type Repository interface {
	Get(ctx context.Context, table api.Table, id string) (*api.Row, error)
	Upsert(ctx context.Context, table api.Table, row api.Row) (*api.Row, bool, error)
	SoftDelete(ctx context.Context, table api.Table, id, ownerID string, at time.Time) (*api.Row, error)
	CascadeItems(ctx context.Context, containerID, ownerID string, at time.Time) ([]api.Row, error)
	SelectAll(ctx context.Context, table api.Table, ownerID string) ([]api.Row, error)
	AppendAudit(ctx context.Context, e AuditEntry) error
}
