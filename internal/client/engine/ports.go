package engine

import (
	"context"
	"time"

	"github.com/xdeleon/offsync/internal/api"
	"github.com/xdeleon/offsync/internal/client/store"
)

// LocalStore is the durable keyed store the engine commits to.
type LocalStore interface {
	Read(ctx context.Context, fn func(ctx context.Context, r store.Repos) error) error
	WithTx(ctx context.Context, fn func(ctx context.Context, r store.Repos) error) error
}

// Remote is the server's row API.
type Remote interface {
	Upsert(ctx context.Context, table api.Table, row api.Row) (*api.Row, error)
	SoftDelete(ctx context.Context, table api.Table, id, ownerID string, at time.Time) (*api.Row, error)
	Fetch(ctx context.Context, table api.Table) ([]api.Row, error)
}

// Realtime delivers committed remote changes for one table. The channel is
// closed when ctx ends or the feed drops.
type Realtime interface {
	Subscribe(ctx context.Context, table api.Table) (<-chan api.RowEvent, error)
}

// Session resolves the authenticated user, failing when there is none.
type Session interface {
	UserID(ctx context.Context) (string, error)
}

// Connectivity is a reachability flag with one restored callback.
type Connectivity interface {
	IsConnected() bool
	OnRestored(fn func())
}
