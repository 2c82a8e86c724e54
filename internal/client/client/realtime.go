package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/xdeleon/offsync/internal/api"
	"github.com/xdeleon/offsync/internal/logging"
)

const (
	dialTimeout     = 10 * time.Second
	eventBufferSize = 64
)

// RealtimeClient subscribes to the server's change feed.
type RealtimeClient struct {
	baseURL string
	tokens  TokenSource
	log     logging.Logger
}

// NewRealtimeClient targets baseURL, e.g. ws://host:8080/realtime.
func NewRealtimeClient(baseURL string, tokens TokenSource, l logging.Logger) *RealtimeClient {
	if l == nil {
		l = logging.Nop()
	}
	return &RealtimeClient{baseURL: baseURL, tokens: tokens, log: l.With("module", "realtime_client")}
}

// Subscribe dials the feed for table. Events are delivered in order on the
// returned channel, which is closed when ctx ends or the socket drops.
func (c *RealtimeClient) Subscribe(ctx context.Context, table api.Table) (<-chan api.RowEvent, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("realtime url: %w", err)
	}
	q := u.Query()
	q.Set("table", string(table))
	u.RawQuery = q.Encode()

	header := http.Header{}
	if c.tokens != nil {
		if tok := c.tokens.Token(); tok != "" {
			header.Set("Authorization", "Bearer "+tok)
		}
	}

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	conn, resp, err := websocket.Dial(dialCtx, u.String(), &websocket.DialOptions{
		HTTPHeader: header,
	})
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("%w: realtime %s", ErrUnauthorized, table)
		}
		return nil, fmt.Errorf("%w: realtime %s: %w", ErrUnavailable, table, err)
	}

	out := make(chan api.RowEvent, eventBufferSize)
	go c.readLoop(ctx, conn, table, out)
	return out, nil
}

func (c *RealtimeClient) readLoop(ctx context.Context, conn *websocket.Conn, table api.Table, out chan<- api.RowEvent) {
	defer close(out)
	defer conn.CloseNow()

	for {
		var ev api.RowEvent
		if err := wsjson.Read(ctx, conn, &ev); err != nil {
			if ctx.Err() == nil && websocket.CloseStatus(err) != websocket.StatusNormalClosure && !errors.Is(err, context.Canceled) {
				c.log.Warn(ctx, "realtime feed dropped", "table", table, "error", err)
			}
			return
		}
		if ev.Table == "" {
			ev.Table = table
		}
		select {
		case out <- ev:
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "")
			return
		}
	}
}
