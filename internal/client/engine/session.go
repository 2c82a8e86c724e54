package engine

import (
	"context"
	"errors"

	"github.com/xdeleon/offsync/internal/client/repositories/metadata"
	"github.com/xdeleon/offsync/internal/client/store"
)

// Start wires the connectivity callback and brings the local store in line
// with the current session: after a user switch it runs a fresh initial
// sync, otherwise it reconnects (drain, initial sync, realtime).
func (e *Engine) Start(ctx context.Context) error {
	if e.conn != nil {
		e.conn.OnRestored(func() {
			e.goAsync(e.reconnect)
		})
	}

	switched, err := e.switchIfNeeded(ctx)
	if err != nil {
		return err
	}
	if switched {
		return e.afterSwitch(ctx)
	}
	e.reconnect(ctx)
	return nil
}

// HandleAuthChange reacts to a login, logout, or account switch. When the
// authenticated user differs from the one the local data belongs to, all
// in-flight work is invalidated, realtime stops, and the local store is
// erased; a new user then gets an initial sync and realtime.
func (e *Engine) HandleAuthChange(ctx context.Context) error {
	switched, err := e.switchIfNeeded(ctx)
	if err != nil || !switched {
		return err
	}
	return e.afterSwitch(ctx)
}

func (e *Engine) afterSwitch(ctx context.Context) error {
	if _, err := e.userID(ctx); err != nil {
		return nil
	}
	if err := e.PerformInitialSync(ctx); err != nil && !errors.Is(err, ErrSessionChanged) {
		e.log.Warn(ctx, "initial sync after user switch failed", "error", err)
	}
	return e.StartRealtime(ctx)
}

// reconnect runs the connectivity-restored sequence.
func (e *Engine) reconnect(ctx context.Context) {
	if err := e.Drain(ctx); err != nil {
		e.log.Debug(ctx, "drain on reconnect", "error", err)
	}
	if err := e.PerformInitialSync(ctx); err != nil {
		e.log.Warn(ctx, "initial sync on reconnect failed", "error", err)
	}
	if err := e.StartRealtime(ctx); err != nil {
		e.log.Warn(ctx, "realtime on reconnect failed", "error", err)
	}
}

// switchIfNeeded compares the session user with the owner recorded in the
// store and resets local state when they differ.
func (e *Engine) switchIfNeeded(ctx context.Context) (bool, error) {
	e.authMu.Lock()
	defer e.authMu.Unlock()

	userID, err := e.userID(ctx)
	if err != nil {
		userID = ""
	}

	var owner string
	err = e.read(ctx, func(ctx context.Context, r store.Repos) error {
		var err error
		owner, _, err = r.Metadata.Get(ctx, metadata.KeySessionUserID)
		return err
	})
	if err != nil {
		return false, err
	}
	if owner == userID {
		return false, nil
	}

	e.epoch.Add(1)
	e.StopRealtime()

	err = e.commit(ctx, func(ctx context.Context, r store.Repos) error {
		if err := store.EraseAll(ctx, r); err != nil {
			return err
		}
		if userID == "" {
			return nil
		}
		return r.Metadata.Set(ctx, metadata.KeySessionUserID, userID)
	})
	if err != nil {
		return false, err
	}

	e.ClearLastError()
	e.bump()
	e.log.Info(ctx, "session user changed; local data reset", "previous", owner, "current", userID)
	return true, nil
}
