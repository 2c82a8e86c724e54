package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xdeleon/offsync/internal/api"
)

// StartRealtime (re)subscribes to both tables. Each table is consumed by
// its own goroutine; every event goes through HandleEvent.
func (e *Engine) StartRealtime(ctx context.Context) error {
	if e.realtime == nil || !e.connected() {
		return nil
	}
	if _, err := e.userID(ctx); err != nil {
		return nil
	}

	e.rtMu.Lock()
	defer e.rtMu.Unlock()
	e.stopLocked()

	subCtx, cancel := context.WithCancel(e.ctx)
	streams := make(map[api.Table]<-chan api.RowEvent, len(api.Tables))
	for _, t := range api.Tables {
		ch, err := e.realtime.Subscribe(subCtx, t)
		if err != nil {
			cancel()
			err = fmt.Errorf("%w: subscribe %s: %w", ErrSyncFailed, t, err)
			e.recordError(err)
			return err
		}
		streams[t] = ch
	}

	e.rtCancel = cancel
	for t, ch := range streams {
		e.rtWG.Add(1)
		go e.consume(subCtx, t, ch)
	}
	e.log.Info(ctx, "realtime subscribed", "tables", len(streams))
	return nil
}

func (e *Engine) consume(ctx context.Context, table api.Table, ch <-chan api.RowEvent) {
	defer e.rtWG.Done()
	for ev := range ch {
		if ev.Table == "" {
			ev.Table = table
		}
		if err := e.HandleEvent(ctx, ev); err != nil && !errors.Is(err, ErrSessionChanged) {
			e.log.Warn(ctx, "realtime event not applied", "table", table, "error", err)
		}
	}
	if ctx.Err() == nil {
		e.log.Warn(ctx, "realtime stream closed", "table", table)
		e.resubscribeLater(ctx)
	}
}

// resubscribeDelay spaces out resubscriptions after the server drops a
// stream.
var resubscribeDelay = time.Second

// resubscribeLater restarts realtime unless sub, the dropped subscription's
// context, is cancelled first. Once one table restarts, the other table's
// pending attempt sees its old context cancelled and gives up.
func (e *Engine) resubscribeLater(sub context.Context) {
	e.goAsync(func(ctx context.Context) {
		t := time.NewTimer(resubscribeDelay)
		defer t.Stop()
		select {
		case <-sub.Done():
			return
		case <-ctx.Done():
			return
		case <-t.C:
		}
		if sub.Err() != nil {
			return
		}
		if err := e.StartRealtime(ctx); err != nil {
			e.log.Warn(ctx, "realtime resubscribe failed", "error", err)
		}
	})
}

// StopRealtime cancels the subscriptions and waits for the consumers.
func (e *Engine) StopRealtime() {
	e.rtMu.Lock()
	defer e.rtMu.Unlock()
	e.stopLocked()
}

func (e *Engine) stopLocked() {
	if e.rtCancel != nil {
		e.rtCancel()
		e.rtCancel = nil
	}
	e.rtWG.Wait()
}
