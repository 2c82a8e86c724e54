package realtime

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/xdeleon/offsync/internal/api"
	"github.com/xdeleon/offsync/internal/auth"
	"github.com/xdeleon/offsync/internal/logging"
)

const writeTimeout = 5 * time.Second

// Handler serves GET /realtime?table=<t>. The bearer token in the
// Authorization header picks the owner whose events are streamed.
type Handler struct {
	hub    *Hub
	secret []byte
	logger logging.Logger
}

func NewHandler(hub *Hub, secretKey string, l logging.Logger) *Handler {
	return &Handler{hub: hub, secret: []byte(secretKey), logger: l.With("module", "realtime")}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if tok, ok := strings.CutPrefix(h, "Bearer "); ok {
		return tok
	}
	return ""
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	table, err := api.ParseTable(r.URL.Query().Get("table"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	userID, err := auth.VerifyToken(bearerToken(r), h.secret)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn(ctx, "websocket upgrade failed", "error", err)
		return
	}
	defer conn.CloseNow()

	sub := h.hub.Subscribe(userID, table)
	defer sub.Close()
	h.logger.Info(ctx, "realtime subscriber connected", "user", userID, "table", table)

	// Clients never send; CloseRead handles control frames and ends ctx
	// when the peer goes away.
	ctx = conn.CloseRead(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C:
			if !ok {
				h.logger.Warn(ctx, "realtime subscriber dropped", "user", userID, "table", table)
				_ = conn.Close(websocket.StatusTryAgainLater, "too slow")
				return
			}
			if err := h.write(ctx, conn, ev); err != nil {
				if !errors.Is(err, context.Canceled) {
					h.logger.Warn(ctx, "realtime write failed", "user", userID, "error", err)
				}
				return
			}
		}
	}
}

func (h *Handler) write(ctx context.Context, conn *websocket.Conn, ev api.RowEvent) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, ev)
}
