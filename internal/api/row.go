// Package api holds the wire types shared by the sync server and its
// clients: rows, change events, and the Rows gRPC service carried over a
// JSON codec.
package api

import (
	"fmt"
	"time"

	"github.com/xdeleon/offsync/internal/common"
)

// Table names a remote table.
type Table string

const (
	TableContainers Table = common.TableContainers
	TableItems      Table = common.TableItems
)

// Tables lists every synchronized table in dependency order.
var Tables = []Table{TableContainers, TableItems}

// ParseTable validates a table name.
func ParseTable(s string) (Table, error) {
	switch t := Table(s); t {
	case TableContainers, TableItems:
		return t, nil
	default:
		return "", fmt.Errorf("%w: %q", common.ErrUnknownTable, s)
	}
}

// Row is a remote record of either table. ContainerID is set for items only.
type Row struct {
	ID          string     `json:"id"`
	OwnerID     string     `json:"owner_id"`
	ContainerID string     `json:"container_id,omitempty"`
	Name        string     `json:"name"`
	Notes       string     `json:"notes"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
}

// Deleted reports whether the row carries a soft-delete timestamp.
func (r *Row) Deleted() bool {
	return r != nil && r.DeletedAt != nil
}

// Validate checks the identity fields a row needs for table t.
func (r *Row) Validate(t Table) error {
	if r == nil {
		return fmt.Errorf("%w: empty", common.ErrInvalidRow)
	}
	if r.ID == "" {
		return fmt.Errorf("%w: missing id", common.ErrInvalidRow)
	}
	if r.OwnerID == "" {
		return fmt.Errorf("%w: missing owner_id", common.ErrInvalidRow)
	}
	if t == TableItems && r.ContainerID == "" {
		return fmt.Errorf("%w: item without container_id", common.ErrInvalidRow)
	}
	return nil
}

// EventType tags a change event.
type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

// RowEvent is a committed change on one table, as delivered by the realtime
// feed. Record is nil for DELETE events, which carry OldID instead.
type RowEvent struct {
	Type   EventType `json:"type"`
	Table  Table     `json:"table"`
	Record *Row      `json:"record,omitempty"`
	OldID  string    `json:"old_id,omitempty"`
}

// EntityID returns the id the event refers to.
func (e RowEvent) EntityID() string {
	if e.Record != nil {
		return e.Record.ID
	}
	return e.OldID
}
