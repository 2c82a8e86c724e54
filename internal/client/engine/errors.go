package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/xdeleon/offsync/internal/client/store"
)

var (
	// ErrNoLocalContext means the local store is missing or closed.
	ErrNoLocalContext = errors.New("local store unavailable")
	// ErrNoSession means no user is authenticated.
	ErrNoSession = errors.New("no authenticated session")
	// ErrUserMismatch means a queued change was recorded for another user.
	ErrUserMismatch = errors.New("pending change belongs to a different user")
	// ErrSyncFailed wraps remote failures; the entry stays queued.
	ErrSyncFailed = errors.New("sync failed")
	// ErrConflict reports a remote change that beat unconfirmed or deleted
	// local state.
	ErrConflict = errors.New("sync conflict")
	// ErrSessionChanged is returned by work whose results were dropped
	// because the user switched while it ran.
	ErrSessionChanged = errors.New("session changed during sync")
)

// ErrorRecord is the last error the engine observed.
type ErrorRecord struct {
	Err error
	At  time.Time
}

func storeErr(err error) error {
	if errors.Is(err, store.ErrClosed) {
		return fmt.Errorf("%w: %v", ErrNoLocalContext, err)
	}
	return err
}

func conflictf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrConflict}, args...)...)
}
