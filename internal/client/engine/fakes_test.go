package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xdeleon/offsync/internal/api"
	"github.com/xdeleon/offsync/internal/client/store"
	"github.com/xdeleon/offsync/internal/common"
)

var t0 = time.Date(2024, 9, 1, 8, 0, 0, 0, time.UTC)

// tickClock advances one millisecond per reading.
type tickClock struct{ n atomic.Int64 }

func (c *tickClock) Now() time.Time {
	return t0.Add(time.Duration(c.n.Add(1)) * time.Millisecond)
}

type call struct {
	op    string
	table api.Table
	id    string
}

type fakeRemote struct {
	mu      sync.Mutex
	rows    map[api.Table]map[string]api.Row
	calls   []call
	failIDs map[string]error
	failAll error
	// shift is added to updated_at on write, like a server clock ahead of ours.
	shift time.Duration

	beforeUpsert func(ctx context.Context, row api.Row)
	beforeFetch  func(ctx context.Context, t api.Table)
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		rows:    map[api.Table]map[string]api.Row{api.TableContainers: {}, api.TableItems: {}},
		failIDs: map[string]error{},
	}
}

func (f *fakeRemote) Upsert(ctx context.Context, t api.Table, row api.Row) (*api.Row, error) {
	if f.beforeUpsert != nil {
		f.beforeUpsert(ctx, row)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{"upsert", t, row.ID})
	if err := f.failure(row.ID); err != nil {
		return nil, err
	}
	row.UpdatedAt = row.UpdatedAt.Add(f.shift)
	if old, ok := f.rows[t][row.ID]; ok && old.DeletedAt != nil {
		row.DeletedAt = old.DeletedAt
	}
	f.rows[t][row.ID] = row
	return &row, nil
}

func (f *fakeRemote) SoftDelete(ctx context.Context, t api.Table, id, owner string, at time.Time) (*api.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{"delete", t, id})
	if err := f.failure(id); err != nil {
		return nil, err
	}
	row, ok := f.rows[t][id]
	if !ok {
		return nil, fmt.Errorf("row %s: %w", id, common.ErrorNotFound)
	}
	if row.DeletedAt == nil {
		row.DeletedAt = &at
	}
	if at.After(row.UpdatedAt) {
		row.UpdatedAt = at
	}
	f.rows[t][id] = row
	return &row, nil
}

func (f *fakeRemote) Fetch(ctx context.Context, t api.Table) ([]api.Row, error) {
	if f.beforeFetch != nil {
		f.beforeFetch(ctx, t)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{"fetch", t, ""})
	if f.failAll != nil {
		return nil, f.failAll
	}
	out := make([]api.Row, 0, len(f.rows[t]))
	for _, r := range f.rows[t] {
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeRemote) failure(id string) error {
	if f.failAll != nil {
		return f.failAll
	}
	return f.failIDs[id]
}

func (f *fakeRemote) put(t api.Table, row api.Row) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[t][row.ID] = row
}

func (f *fakeRemote) row(t api.Table, id string) (api.Row, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[t][id]
	return r, ok
}

func (f *fakeRemote) writes() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []call
	for _, c := range f.calls {
		if c.op != "fetch" {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeRemote) fetches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.op == "fetch" {
			n++
		}
	}
	return n
}

func (f *fakeRemote) setFailAll(err error) {
	f.mu.Lock()
	f.failAll = err
	f.mu.Unlock()
}

func (f *fakeRemote) failID(id string, err error) {
	f.mu.Lock()
	f.failIDs[id] = err
	f.mu.Unlock()
}

type fakeSession struct {
	mu  sync.Mutex
	uid string
}

func (s *fakeSession) UserID(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.uid == "" {
		return "", errors.New("signed out")
	}
	return s.uid, nil
}

func (s *fakeSession) set(uid string) {
	s.mu.Lock()
	s.uid = uid
	s.mu.Unlock()
}

type fakeConn struct {
	online   atomic.Bool
	mu       sync.Mutex
	restored func()
}

func (c *fakeConn) IsConnected() bool { return c.online.Load() }

func (c *fakeConn) OnRestored(fn func()) {
	c.mu.Lock()
	c.restored = fn
	c.mu.Unlock()
}

// restore flips to online and fires the callback like the real monitor.
func (c *fakeConn) restore() {
	if c.online.Swap(true) {
		return
	}
	c.mu.Lock()
	fn := c.restored
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

type fakeRealtime struct {
	mu      sync.Mutex
	streams map[api.Table]chan api.RowEvent
	subs    int
	err     error
}

func newFakeRealtime() *fakeRealtime {
	return &fakeRealtime{streams: map[api.Table]chan api.RowEvent{}}
}

func (f *fakeRealtime) Subscribe(ctx context.Context, t api.Table) (<-chan api.RowEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.subs++
	in := make(chan api.RowEvent)
	out := make(chan api.RowEvent)
	f.streams[t] = in
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-in:
				if !ok {
					return
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// drop ends the current stream of table as if the server hung up.
func (f *fakeRealtime) drop(table api.Table) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ch, ok := f.streams[table]; ok {
		close(ch)
		delete(f.streams, table)
	}
}

func (f *fakeRealtime) subscriptions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs
}

func (f *fakeRealtime) send(t *testing.T, ev api.RowEvent) {
	t.Helper()
	f.mu.Lock()
	ch := f.streams[ev.Table]
	f.mu.Unlock()
	require.NotNil(t, ch, "no subscription for %s", ev.Table)
	select {
	case ch <- ev:
	case <-time.After(2 * time.Second):
		t.Fatalf("realtime consumer for %s not reading", ev.Table)
	}
}

type harness struct {
	e       *Engine
	store   *store.Store
	remote  *fakeRemote
	session *fakeSession
	conn    *fakeConn
	rt      *fakeRealtime
	metrics *Metrics
}

type option func(*Deps)

func withMaxRetries(n int) option { return func(d *Deps) { d.MaxRetries = n } }

func withRealtime(rt *fakeRealtime) option { return func(d *Deps) { d.Realtime = rt } }

// newHarness builds an online engine for user u1 whose store already
// belongs to u1.
func newHarness(t *testing.T, opts ...option) *harness {
	t.Helper()
	ctx := context.Background()

	st, err := store.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	h := &harness{
		store:   st,
		remote:  newFakeRemote(),
		session: &fakeSession{uid: "u1"},
		conn:    &fakeConn{},
		metrics: NewMetrics(nil),
	}
	h.conn.online.Store(true)

	clock := &tickClock{}
	d := Deps{
		Store:        st,
		Remote:       h.remote,
		Session:      h.session,
		Connectivity: h.conn,
		Clock:        clock.Now,
		Metrics:      h.metrics,
	}
	for _, o := range opts {
		o(&d)
	}
	if rt, ok := d.Realtime.(*fakeRealtime); ok {
		h.rt = rt
	}
	h.e = New(d)
	t.Cleanup(h.e.Close)

	_, err = h.e.switchIfNeeded(ctx)
	require.NoError(t, err)
	return h
}

// settle waits for background drains to finish.
func (h *harness) settle() { h.e.waitBackground() }

func (h *harness) pendingCount(t *testing.T) int {
	t.Helper()
	n, err := h.e.PendingCount(context.Background())
	require.NoError(t, err)
	return n
}

func (h *harness) offline() { h.conn.online.Store(false) }

func row(id, owner string, updated time.Time) api.Row {
	return api.Row{ID: id, OwnerID: owner, Name: id, CreatedAt: t0, UpdatedAt: updated}
}

func itemRow(id, container, owner string, updated time.Time) api.Row {
	r := row(id, owner, updated)
	r.ContainerID = container
	return r
}

func ptr(t time.Time) *time.Time { return &t }
