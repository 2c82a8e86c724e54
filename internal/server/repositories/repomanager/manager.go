package repomanager

import (
	"context"
	"database/sql"

	"github.com/xdeleon/offsync/internal/dbx"
	"github.com/xdeleon/offsync/internal/server/repositories/rows"
)

// RepositoryManager vends repositories bound to a connection or a
// transaction and owns the schema.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Rows(db dbx.DBTX) rows.Repository
}
