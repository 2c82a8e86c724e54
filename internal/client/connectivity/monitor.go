// Package connectivity tracks whether the sync server is reachable.
package connectivity

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xdeleon/offsync/internal/logging"
)

const pingTimeout = 3 * time.Second

// Pinger is a liveness probe against the server.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Monitor polls a Pinger and reports the online state. It starts offline.
type Monitor struct {
	pinger   Pinger
	interval time.Duration
	log      logging.Logger

	online atomic.Bool

	mu       sync.Mutex
	restored func()
}

func NewMonitor(p Pinger, interval time.Duration, l logging.Logger) *Monitor {
	if l == nil {
		l = logging.Nop()
	}
	return &Monitor{pinger: p, interval: interval, log: l.With("module", "connectivity")}
}

func (m *Monitor) IsConnected() bool { return m.online.Load() }

// OnRestored registers fn to run on every offline to online transition.
// Only one callback is kept.
func (m *Monitor) OnRestored(fn func()) {
	m.mu.Lock()
	m.restored = fn
	m.mu.Unlock()
}

// Check pings once and updates the state.
func (m *Monitor) Check(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	err := m.pinger.Ping(ctx)
	cancel()

	online := err == nil
	was := m.online.Swap(online)
	switch {
	case online && !was:
		m.log.Info(ctx, "server reachable; switched to online mode")
		m.mu.Lock()
		fn := m.restored
		m.mu.Unlock()
		if fn != nil {
			fn()
		}
	case !online && was:
		m.log.Warn(ctx, "server unreachable; switched to offline mode", "error", err)
	}
	return online
}

// Run checks immediately and then every interval until ctx ends.
func (m *Monitor) Run(ctx context.Context) {
	m.Check(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.Check(ctx)
		case <-ctx.Done():
			return
		}
	}
}
