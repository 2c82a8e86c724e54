package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/xdeleon/offsync/internal/api"
)

// EntityKind tags which record type a pending change targets.
type EntityKind string

const (
	KindContainer EntityKind = "container"
	KindItem      EntityKind = "item"
)

// Priority orders drains: containers reach the server before their items.
func (k EntityKind) Priority() int {
	switch k {
	case KindContainer:
		return 0
	case KindItem:
		return 1
	default:
		return 2
	}
}

// Table maps the kind onto its remote table.
func (k EntityKind) Table() api.Table {
	if k == KindItem {
		return api.TableItems
	}
	return api.TableContainers
}

// KindForTable is the inverse of Table.
func KindForTable(t api.Table) (EntityKind, error) {
	switch t {
	case api.TableContainers:
		return KindContainer, nil
	case api.TableItems:
		return KindItem, nil
	default:
		return "", fmt.Errorf("no entity kind for table %q", t)
	}
}

type Operation string

const (
	OpInsert Operation = "insert"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// PendingChange is a local mutation waiting for remote confirmation.
type PendingChange struct {
	ID         string
	Kind       EntityKind
	EntityID   string
	Operation  Operation
	Payload    []byte
	CreatedAt  time.Time
	RetryCount int
	LastError  string
}

// Payload is the serialized snapshot carried by a PendingChange. Exactly one
// of Container and Item is set, matching the change's kind.
type Payload struct {
	UserID    string     `json:"user_id"`
	Container *Container `json:"container,omitempty"`
	Item      *Item      `json:"item,omitempty"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

func (p Payload) Encode() ([]byte, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return b, nil
}

// DecodePayload parses data and checks it carries a snapshot for kind.
func DecodePayload(kind EntityKind, data []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Payload{}, fmt.Errorf("decode payload: %w", err)
	}
	switch kind {
	case KindContainer:
		if p.Container == nil {
			return Payload{}, fmt.Errorf("decode payload: missing container snapshot")
		}
	case KindItem:
		if p.Item == nil {
			return Payload{}, fmt.Errorf("decode payload: missing item snapshot")
		}
	default:
		return Payload{}, fmt.Errorf("decode payload: unknown kind %q", kind)
	}
	return p, nil
}
