// Package store opens the client's SQLite database and hands out
// repositories bound either to the database or to a transaction.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	_ "modernc.org/sqlite"

	"github.com/xdeleon/offsync/internal/client/migrations"
	"github.com/xdeleon/offsync/internal/client/repositories/containers"
	"github.com/xdeleon/offsync/internal/client/repositories/items"
	"github.com/xdeleon/offsync/internal/client/repositories/metadata"
	"github.com/xdeleon/offsync/internal/client/repositories/pending"
	"github.com/xdeleon/offsync/internal/dbx"
)

// ErrClosed is returned by every operation after Close.
var ErrClosed = errors.New("local store closed")

// Repos bundles the repositories sharing one DBTX.
type Repos struct {
	Containers containers.Repository
	Items      items.Repository
	Pending    pending.Repository
	Metadata   metadata.Repository
}

func newRepos(db dbx.DBTX) Repos {
	return Repos{
		Containers: containers.NewSQLiteRepository(db),
		Items:      items.NewSQLiteRepository(db),
		Pending:    pending.NewSQLiteRepository(db),
		Metadata:   metadata.NewSQLiteRepository(db),
	}
}

type Store struct {
	db     *sql.DB
	closed atomic.Bool
}

// Open opens (creating if needed) the database at path and migrates it.
// Use ":memory:" for a throwaway store.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection serializes writers and keeps :memory: databases alive.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := migrations.Up(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func dsn(path string) string {
	if path == ":memory:" || strings.HasPrefix(path, "file:") {
		return path
	}
	return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

// Read runs fn with repositories bound to the database. Inside fn only the
// given repositories may be used.
func (s *Store) Read(ctx context.Context, fn func(ctx context.Context, r Repos) error) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return fn(ctx, newRepos(s.db))
}

// WithTx runs fn with repositories bound to one transaction. Nothing is
// committed unless fn returns nil.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, r Repos) error) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return fn(ctx, newRepos(tx))
	})
}

// EraseAll removes every container, item, pending change, and metadata key.
func EraseAll(ctx context.Context, r Repos) error {
	if err := r.Pending.DeleteAll(ctx); err != nil {
		return err
	}
	if err := r.Items.DeleteAll(ctx); err != nil {
		return err
	}
	if err := r.Containers.DeleteAll(ctx); err != nil {
		return err
	}
	return r.Metadata.Clear(ctx)
}

func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.db.Close()
}
