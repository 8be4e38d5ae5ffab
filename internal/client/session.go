package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/pscheid92/classpoll/internal/platform/retry"
	"github.com/pscheid92/classpoll/internal/protocol"
)

const (
	writeDeadline  = 5 * time.Second
	readDeadline   = 60 * time.Second
	maxFrameSize   = 64 * 1024
	clientIDHeader = "X-Client-ID"
)

// SessionConfig describes how to reach the hub.
type SessionConfig struct {
	URL            string
	ClientID       string
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Session connects a Machine to the hub and keeps it connected. Each new
// connection re-identifies a named student by rejoining with the same name;
// nothing else is replayed.
type Session struct {
	cfg     SessionConfig
	machine *Machine
	clock   clockwork.Clock
	dialer  *ws.Dialer

	mu   sync.Mutex
	conn *ws.Conn
}

// errHandshakeThrottled marks a handshake the server refused with 429 or 503.
var errHandshakeThrottled = errors.New("handshake throttled")

func NewSession(cfg SessionConfig, machine *Machine, clock clockwork.Clock) *Session {
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 500 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 10 * time.Second
	}
	s := &Session{
		cfg:     cfg,
		machine: machine,
		clock:   clock,
		dialer:  &ws.Dialer{HandshakeTimeout: 10 * time.Second},
	}
	machine.SetSender(s.send)
	return s
}

// Run dials, reads until the connection drops, and redials with backoff
// until ctx is cancelled.
func (s *Session) Run(ctx context.Context) error {
	policy := retry.Policy{
		InitialBackoff:   s.cfg.InitialBackoff,
		MaxBackoff:       s.cfg.MaxBackoff,
		RateLimitBackoff: s.cfg.MaxBackoff,
		Clock:            s.clock,
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			slog.WarnContext(ctx, "Dial failed, retrying", "attempt", attempt, "backoff", backoff, "error", err)
		},
	}

	for {
		conn, err := retry.Do(ctx, policy, classifyDial(ctx), func() (*ws.Conn, error) {
			return s.dial(ctx)
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to connect to %s: %w", s.cfg.URL, err)
		}

		s.attach(conn)
		s.machine.Opened()
		err = s.readLoop(ctx, conn)
		s.detach(conn)
		s.machine.Closed()

		if ctx.Err() != nil {
			return nil
		}
		slog.WarnContext(ctx, "Connection lost, reconnecting", "error", err)
	}
}

func (s *Session) dial(ctx context.Context) (*ws.Conn, error) {
	header := http.Header{}
	if s.cfg.ClientID != "" {
		header.Set(clientIDHeader, s.cfg.ClientID)
	}

	conn, resp, err := s.dialer.DialContext(ctx, s.cfg.URL, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable) {
			return nil, fmt.Errorf("%w: status %d", errHandshakeThrottled, resp.StatusCode)
		}
		return nil, err
	}
	conn.SetReadLimit(maxFrameSize)
	return conn, nil
}

func classifyDial(ctx context.Context) retry.Classify {
	return func(err error) retry.Action {
		switch {
		case ctx.Err() != nil:
			return retry.Stop
		case errors.Is(err, errHandshakeThrottled):
			return retry.After
		default:
			return retry.Retry
		}
	}
}

func (s *Session) readLoop(ctx context.Context, conn *ws.Conn) error {
	stop := context.AfterFunc(ctx, func() {
		_ = conn.WriteControl(ws.CloseMessage, ws.FormatCloseMessage(ws.CloseNormalClosure, ""), s.clock.Now().Add(writeDeadline))
		_ = conn.Close()
	})
	defer stop()

	s.extendReadDeadline(conn)
	conn.SetPingHandler(func(data string) error {
		s.extendReadDeadline(conn)
		return conn.WriteControl(ws.PongMessage, []byte(data), s.clock.Now().Add(writeDeadline))
	})

	for {
		msgType, frame, err := conn.ReadMessage()
		if err != nil {
			var closeErr *ws.CloseError
			if errors.As(err, &closeErr) {
				slog.InfoContext(ctx, "Server closed connection", "code", closeErr.Code, "reason", closeErr.Text)
			}
			return err
		}
		s.extendReadDeadline(conn)
		if msgType != ws.TextMessage {
			continue
		}

		ev, err := protocol.DecodeEvent(frame)
		if err != nil {
			slog.WarnContext(ctx, "Dropping undecodable event", "error", err)
			continue
		}
		s.machine.Handle(ev)
	}
}

func (s *Session) extendReadDeadline(conn *ws.Conn) {
	_ = conn.SetReadDeadline(s.clock.Now().Add(readDeadline))
}

func (s *Session) attach(conn *ws.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn = conn
}

func (s *Session) detach(conn *ws.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == conn {
		s.conn = nil
	}
	_ = conn.Close()
}

// send writes one action. Actions issued while disconnected are dropped; a
// failed write closes the connection so the read loop reconnects.
func (s *Session) send(a protocol.Action) {
	frame, err := protocol.EncodeAction(a)
	if err != nil {
		slog.Error("Failed to encode action", "action", a.ActionType(), "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		slog.Debug("Dropping action while disconnected", "action", a.ActionType())
		return
	}

	_ = s.conn.SetWriteDeadline(s.clock.Now().Add(writeDeadline))
	if err := s.conn.WriteMessage(ws.TextMessage, frame); err != nil {
		slog.Warn("Failed to send action", "action", a.ActionType(), "error", err)
		_ = s.conn.Close()
	}
}
