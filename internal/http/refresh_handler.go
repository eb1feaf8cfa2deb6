package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/portal-scheduler/internal/refresh"
)

const (
	refreshWriteWait  = 10 * time.Second
	refreshPongWait   = 60 * time.Second
	refreshPingPeriod = (refreshPongWait * 9) / 10
)

type refreshSource interface {
	Subscribe(fn refresh.Subscriber) (unsubscribe func())
}

// RefreshHandler pushes invalidation signals to browsers over a websocket so
// open slot lists and calendars re-fetch after any booking mutation.
type RefreshHandler struct {
	source   refreshSource
	upgrader websocket.Upgrader
	now      func() time.Time
	logger   *slog.Logger
}

func NewRefreshHandler(source refreshSource, logger *slog.Logger) *RefreshHandler {
	return &RefreshHandler{
		source: source,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		now:    time.Now,
		logger: defaultLogger(logger),
	}
}

type refreshMessage struct {
	Type string `json:"type"`
	At   string `json:"at"`
}

func (h *RefreshHandler) Serve(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.source == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	logger := handlerLogger(r.Context(), h.logger, "RefreshHandler", "Serve")
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		logger.WarnContext(r.Context(), "websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	// Signals carry no payload, so a pending one absorbs later ones.
	signals := make(chan struct{}, 1)
	unsubscribe := h.source.Subscribe(func(context.Context) {
		select {
		case signals <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go h.readLoop(conn, cancel)

	logger.DebugContext(ctx, "refresh subscriber connected")
	ticker := time.NewTicker(refreshPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.DebugContext(ctx, "refresh subscriber disconnected")
			return
		case <-signals:
			_ = conn.SetWriteDeadline(time.Now().Add(refreshWriteWait))
			msg := refreshMessage{Type: "refresh", At: h.now().UTC().Format(time.RFC3339Nano)}
			if err := conn.WriteJSON(msg); err != nil {
				logger.WarnContext(ctx, "failed to push refresh signal", "error", err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(refreshWriteWait)); err != nil {
				return
			}
		}
	}
}

// readLoop drains client frames so pongs and close frames are processed.
func (h *RefreshHandler) readLoop(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(refreshPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(refreshPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
