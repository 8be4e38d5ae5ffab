package websocket

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/classpoll/internal/adapter/metrics"
	"github.com/pscheid92/classpoll/internal/app"
	"github.com/pscheid92/classpoll/internal/platform/correlation"
)

const maxMessageSize = 64 * 1024

// Hub is the part of the broadcast hub a connection talks to.
type Hub interface {
	Connect(ctx context.Context, connectionID string, sink app.Sink) error
	Dispatch(ctx context.Context, connectionID string, frame []byte) error
	Disconnect(connectionID string)
}

// Handler upgrades HTTP requests and pumps frames between the socket and the hub.
type Handler struct {
	hub      Hub
	clock    clockwork.Clock
	limits   *ConnectionLimits
	metrics  *metrics.WebSocketMetrics
	upgrader ws.Upgrader
	newID    func() string
	active   sync.WaitGroup
}

func NewHandler(hub Hub, clock clockwork.Clock, limits *ConnectionLimits, m *metrics.WebSocketMetrics, checkOrigin func(*http.Request) bool) *Handler {
	return &Handler{
		hub:     hub,
		clock:   clock,
		limits:  limits,
		metrics: m,
		upgrader: ws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		newID: uuid.NewString,
	}
}

// Serve upgrades the request and blocks until the connection is gone.
// clientIP keys the per-IP limits.
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request, clientIP string) {
	ok, reason := h.limits.Acquire(clientIP)
	if !ok {
		h.metrics.ConnectionsRejected.WithLabelValues(string(reason)).Inc()
		slog.Warn("WebSocket connection rejected", "reason", reason, "client_ip", clientIP)
		status := http.StatusTooManyRequests
		if reason == LimitReasonGlobal {
			status = http.StatusServiceUnavailable
		}
		http.Error(w, "too many connections", status)
		return
	}
	defer h.limits.Release(clientIP)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.metrics.ConnectionsRejected.WithLabelValues("upgrade_failed").Inc()
		slog.Debug("WebSocket upgrade failed", "client_ip", clientIP, "error", err)
		return
	}
	h.active.Add(1)
	defer h.active.Done()
	conn.SetReadLimit(maxMessageSize)

	connectionID := h.newID()
	ctx := correlation.WithConnection(correlation.Ensure(r.Context()), connectionID)
	writer := newClientWriter(conn, h.clock, h.metrics)

	if err := h.hub.Connect(ctx, connectionID, writer); err != nil {
		slog.ErrorContext(ctx, "Failed to attach connection", "error", err)
		writer.Close("Server unavailable")
		return
	}
	slog.DebugContext(ctx, "WebSocket connected", "client_ip", clientIP)

	h.readPump(ctx, connectionID, conn, writer)

	h.hub.Disconnect(connectionID)
	writer.stop()
}

// Drain waits until every upgraded connection has finished, or ctx is done.
// Call it after the hub has closed the connections.
func (h *Handler) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.active.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Handler) readPump(ctx context.Context, connectionID string, conn *ws.Conn, writer *clientWriter) {
	for {
		msgType, frame, err := conn.ReadMessage()
		if err != nil {
			if ws.IsUnexpectedCloseError(err, ws.CloseGoingAway, ws.CloseNormalClosure, ws.CloseNoStatusReceived) {
				slog.DebugContext(ctx, "WebSocket closed unexpectedly", "error", err)
			}
			return
		}
		writer.updateReadDeadline()
		if msgType != ws.TextMessage {
			continue
		}

		h.metrics.MessagesReceived.Inc()
		frameCtx := correlation.WithID(ctx, correlation.NewID())
		if err := h.hub.Dispatch(frameCtx, connectionID, frame); err != nil {
			slog.WarnContext(frameCtx, "Dropping connection, hub unavailable", "error", err)
			return
		}
	}
}
