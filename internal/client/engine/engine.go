package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/xdeleon/offsync/internal/client/store"
	"github.com/xdeleon/offsync/internal/logging"
)

// Deps are the collaborators of an Engine. Store and Session are required
// for anything useful; a nil Connectivity means "always online" and a nil
// Realtime disables live updates.
type Deps struct {
	Store        LocalStore
	Remote       Remote
	Realtime     Realtime
	Session      Session
	Connectivity Connectivity
	Clock        func() time.Time
	NewID        func() string
	Logger       logging.Logger
	Metrics      *Metrics
	// MaxRetries parks an entry after that many failed attempts. Zero means
	// retry forever.
	MaxRetries int
}

type Engine struct {
	store    LocalStore
	remote   Remote
	realtime Realtime
	session  Session
	conn     Connectivity
	applier  *Applier
	clock    func() time.Time
	newID    func() string
	log      logging.Logger
	metrics  *Metrics

	maxRetries int

	// mu serializes every check-then-commit against the local store.
	mu sync.Mutex
	// authMu serializes user switches.
	authMu sync.Mutex

	epoch   atomic.Uint64
	syncing atomic.Int32

	// drainDone is non-nil while a drain runs and is closed when it ends.
	drainMu    sync.Mutex
	drainDone  chan struct{}
	drainAgain bool

	errMu   sync.Mutex
	lastErr *ErrorRecord

	markMu  sync.Mutex
	marker  uint64
	changed chan struct{}

	rtMu     sync.Mutex
	rtCancel context.CancelFunc
	rtWG     sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
	bg     sync.WaitGroup
}

func New(d Deps) *Engine {
	if d.Clock == nil {
		d.Clock = time.Now
	}
	if d.NewID == nil {
		d.NewID = uuid.NewString
	}
	if d.Logger == nil {
		d.Logger = logging.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		store:      d.Store,
		remote:     d.Remote,
		realtime:   d.Realtime,
		session:    d.Session,
		conn:       d.Connectivity,
		applier:    NewApplier(d.Remote),
		clock:      d.Clock,
		newID:      d.NewID,
		log:        d.Logger.With("module", "sync_engine"),
		metrics:    d.Metrics,
		maxRetries: d.MaxRetries,
		changed:    make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Close stops realtime and waits for background drains. It does not close
// the store.
func (e *Engine) Close() {
	e.cancel()
	e.StopRealtime()
	e.bg.Wait()
}

// LastUpdate is a counter bumped after every committed local change.
func (e *Engine) LastUpdate() uint64 {
	e.markMu.Lock()
	defer e.markMu.Unlock()
	return e.marker
}

// Changed returns a channel closed at the next LastUpdate bump.
func (e *Engine) Changed() <-chan struct{} {
	e.markMu.Lock()
	defer e.markMu.Unlock()
	return e.changed
}

func (e *Engine) bump() {
	e.markMu.Lock()
	e.marker++
	close(e.changed)
	e.changed = make(chan struct{})
	e.markMu.Unlock()
}

// LastError returns the most recent recorded failure, or nil.
func (e *Engine) LastError() *ErrorRecord {
	e.errMu.Lock()
	defer e.errMu.Unlock()
	if e.lastErr == nil {
		return nil
	}
	rec := *e.lastErr
	return &rec
}

func (e *Engine) ClearLastError() {
	e.errMu.Lock()
	e.lastErr = nil
	e.errMu.Unlock()
}

func (e *Engine) recordError(err error) {
	if err == nil {
		return
	}
	e.errMu.Lock()
	e.lastErr = &ErrorRecord{Err: err, At: e.now()}
	e.errMu.Unlock()
}

// IsSyncing reports whether an initial sync is running.
func (e *Engine) IsSyncing() bool {
	return e.syncing.Load() > 0
}

// Epoch is the current session epoch.
func (e *Engine) Epoch() uint64 {
	return e.epoch.Load()
}

func (e *Engine) now() time.Time {
	return e.clock().UTC().Truncate(time.Microsecond)
}

func (e *Engine) connected() bool {
	return e.conn == nil || e.conn.IsConnected()
}

func (e *Engine) userID(ctx context.Context) (string, error) {
	if e.session == nil {
		return "", ErrNoSession
	}
	id, err := e.session.UserID(ctx)
	if err != nil {
		if errors.Is(err, ErrNoSession) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", ErrNoSession, err)
	}
	if id == "" {
		return "", ErrNoSession
	}
	return id, nil
}

func (e *Engine) read(ctx context.Context, fn func(ctx context.Context, r store.Repos) error) error {
	if e.store == nil {
		return ErrNoLocalContext
	}
	return storeErr(e.store.Read(ctx, fn))
}

// commit runs fn in one transaction under the engine lock. The caller must
// not hold e.mu.
func (e *Engine) commit(ctx context.Context, fn func(ctx context.Context, r store.Repos) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.commitLocked(ctx, fn)
}

func (e *Engine) commitLocked(ctx context.Context, fn func(ctx context.Context, r store.Repos) error) error {
	if e.store == nil {
		return ErrNoLocalContext
	}
	return storeErr(e.store.WithTx(ctx, fn))
}

// goAsync runs fn on the engine's background context.
func (e *Engine) goAsync(fn func(ctx context.Context)) {
	if e.ctx.Err() != nil {
		return
	}
	e.bg.Add(1)
	go func() {
		defer e.bg.Done()
		fn(e.ctx)
	}()
}

func (e *Engine) waitBackground() {
	e.bg.Wait()
}

// later returns now, nudged past prev so local edits always move
// updated_at forward.
func (e *Engine) later(prev time.Time) time.Time {
	now := e.now()
	if !now.After(prev) {
		return prev.Add(time.Microsecond)
	}
	return now
}
