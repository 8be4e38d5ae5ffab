package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/classpoll/internal/adapter/metrics"
	"github.com/pscheid92/classpoll/internal/domain"
	"github.com/pscheid92/classpoll/internal/poll"
	"github.com/pscheid92/classpoll/internal/protocol"
	"github.com/pscheid92/classpoll/internal/roster"
	"golang.org/x/time/rate"
)

const (
	commandQueueSize  = 256
	commandTimeout    = 5 * time.Second
	stopTimeout       = 10 * time.Second
	depthLogThreshold = 200 // 80% of commandQueueSize
	shutdownReason    = "Server shutting down"
	kickedReason      = "Removed by teacher"
	maxNameLength     = 50
	maxChatLength     = 1000
)

// Sink is the hub's handle on one connection's outbound side.
// The hub only calls it from its own goroutine.
type Sink interface {
	// Send queues a frame without blocking and reports false when the queue is full.
	Send(frame []byte) bool
	// Close flushes queued frames, sends a close frame with reason, and closes
	// the connection. It must not block on the network.
	Close(reason string)
	// Abort drops queued frames and closes the connection without blocking.
	Abort()
}

// Config tunes the hub. Zero rates disable chat throttling.
type Config struct {
	ChatRatePerSecond float64
	ChatBurst         int
	ChatTimeLayout    string
	ServerSideExpiry  bool
	SweepInterval     time.Duration
}

// Metrics groups the metric families the hub records.
type Metrics struct {
	Hub  *metrics.HubMetrics
	Poll *metrics.PollMetrics
}

// VoteStatus reports whether a voter has voted in a poll.
type VoteStatus struct {
	PollID    string
	HasVoted  bool
	IsExpired bool
}

type connection struct {
	id          string
	sink        Sink
	chatLimiter *rate.Limiter
}

// Hub owns the poll engine and the roster and fans out every state change to
// all attached connections.
type Hub struct {
	cmdCh   chan hubCmd
	clock   clockwork.Clock
	cfg     Config
	metrics Metrics
	engine  *poll.Engine
	roster  *roster.Registry
	conns   map[string]*connection
	done    chan struct{}
}

// NewHub creates a hub and starts its goroutine.
func NewHub(clock clockwork.Clock, cfg Config, m Metrics) *Hub {
	if cfg.ChatTimeLayout == "" {
		cfg.ChatTimeLayout = "03:04 PM"
	}
	h := &Hub{
		cmdCh:   make(chan hubCmd, commandQueueSize),
		clock:   clock,
		cfg:     cfg,
		metrics: m,
		engine:  poll.NewEngine(clock),
		roster:  roster.NewRegistry(clock),
		conns:   make(map[string]*connection),
		done:    make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *Hub) enqueue(cmd hubCmd) error {
	select {
	case <-h.done:
		return domain.ErrHubStopped
	default:
	}
	select {
	case h.cmdCh <- cmd:
		return nil
	case <-h.done:
		return domain.ErrHubStopped
	}
}

// request enqueues a command built around a reply channel and waits for the reply.
func request[T any](ctx context.Context, h *Hub, build func(reply chan result[T]) hubCmd) (T, error) {
	var zero T
	reply := make(chan result[T], 1)
	if err := h.enqueue(build(reply)); err != nil {
		return zero, err
	}

	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case r := <-reply:
		return r.val, r.err
	case <-timer.Chan():
		return zero, fmt.Errorf("hub command timed out after %v", commandTimeout)
	case <-ctx.Done():
		return zero, fmt.Errorf("hub command cancelled: %w", ctx.Err())
	case <-h.done:
		return zero, domain.ErrHubStopped
	}
}

// Connect attaches a connection. The hub acknowledges it with a connected event.
func (h *Hub) Connect(ctx context.Context, connectionID string, sink Sink) error {
	_, err := request(ctx, h, func(reply chan result[struct{}]) hubCmd {
		return connectCmd{connectionID: connectionID, sink: sink, reply: reply}
	})
	return err
}

// Disconnect detaches a connection. Unknown ids are ignored.
func (h *Hub) Disconnect(connectionID string) {
	_ = h.enqueue(disconnectCmd{connectionID: connectionID})
}

// Dispatch decodes one inbound frame and queues it for the hub.
// Decode failures are reported back to the connection in order with its other events.
func (h *Hub) Dispatch(ctx context.Context, connectionID string, frame []byte) error {
	action, err := protocol.DecodeAction(frame)
	return h.enqueue(actionCmd{ctx: ctx, connectionID: connectionID, action: action, decodeErr: err})
}

// CreatePoll creates a poll and broadcasts it as the new current poll.
func (h *Hub) CreatePoll(ctx context.Context, req poll.CreateRequest) (*domain.Poll, error) {
	return request(ctx, h, func(reply chan result[*domain.Poll]) hubCmd {
		return createPollCmd{ctx: ctx, req: req, reply: reply}
	})
}

// CastVote applies a vote for voterID and broadcasts the updated poll.
func (h *Hub) CastVote(ctx context.Context, pollID, option, voterID string) (domain.PollStats, error) {
	return request(ctx, h, func(reply chan result[domain.PollStats]) hubCmd {
		return castVoteCmd{ctx: ctx, pollID: pollID, option: option, voterID: voterID, reply: reply}
	})
}

// Results returns derived statistics for one poll.
func (h *Hub) Results(ctx context.Context, pollID string) (domain.PollStats, error) {
	return request(ctx, h, func(reply chan result[domain.PollStats]) hubCmd {
		return statsCmd{pollID: pollID, reply: reply}
	})
}

// History returns statistics for every poll, newest first.
func (h *Hub) History(ctx context.Context) ([]domain.PollStats, error) {
	return request(ctx, h, func(reply chan result[[]domain.PollStats]) hubCmd {
		return historyCmd{reply: reply}
	})
}

// VoteStatus reports whether voterID has voted in the poll.
func (h *Hub) VoteStatus(ctx context.Context, pollID, voterID string) (VoteStatus, error) {
	return request(ctx, h, func(reply chan result[VoteStatus]) hubCmd {
		return voteStatusCmd{pollID: pollID, voterID: voterID, reply: reply}
	})
}

// ConnectionCount returns the number of attached connections.
func (h *Hub) ConnectionCount(ctx context.Context) (int, error) {
	return request(ctx, h, func(reply chan result[int]) hubCmd {
		return connectionCountCmd{reply: reply}
	})
}

// Ping round-trips a command through the hub goroutine.
func (h *Hub) Ping(ctx context.Context) error {
	_, err := h.ConnectionCount(ctx)
	return err
}

// Stop closes every connection and stops the hub goroutine.
// Blocks until the goroutine has exited or the stop timeout is reached.
func (h *Hub) Stop() {
	if err := h.enqueue(stopCmd{}); err != nil {
		return
	}

	timeout := h.clock.NewTimer(stopTimeout)
	defer timeout.Stop()

	select {
	case <-h.done:
		slog.Info("Hub stopped gracefully")
	case <-timeout.Chan():
		slog.Warn("Hub stop timeout exceeded", "timeout", stopTimeout)
	}
}

func (h *Hub) run() {
	defer close(h.done)

	depthTicker := h.clock.NewTicker(time.Second)
	defer depthTicker.Stop()

	var sweep <-chan time.Time
	if h.cfg.ServerSideExpiry && h.cfg.SweepInterval > 0 {
		sweepTicker := h.clock.NewTicker(h.cfg.SweepInterval)
		defer sweepTicker.Stop()
		sweep = sweepTicker.Chan()
	}

	for {
		select {
		case <-depthTicker.Chan():
			depth := len(h.cmdCh)
			h.metrics.Hub.CommandQueueDepth.Set(float64(depth))
			if depth > depthLogThreshold {
				slog.Warn("Hub command queue near capacity", "depth", depth, "capacity", cap(h.cmdCh))
			}
		case <-sweep:
			h.safely(h.handleSweep)
		case cmd := <-h.cmdCh:
			if _, ok := cmd.(stopCmd); ok {
				h.handleStop()
				return
			}
			h.safely(func() { h.handle(cmd) })
		}
	}
}

// safely runs fn and recovers a panic so one bad command cannot kill the hub.
func (h *Hub) safely(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Hub panic recovered", "panic", r)
			h.metrics.Hub.PanicsTotal.Inc()
		}
	}()
	fn()
}

func (h *Hub) handle(cmd hubCmd) {
	switch c := cmd.(type) {
	case connectCmd:
		h.handleConnect(c)
	case disconnectCmd:
		h.handleDisconnect(c)
	case actionCmd:
		h.handleAction(c)
	case createPollCmd:
		p, err := h.createPoll(c.ctx, c.req)
		c.reply <- result[*domain.Poll]{val: p, err: err}
	case castVoteCmd:
		stats, err := h.castVoteHTTP(c)
		c.reply <- result[domain.PollStats]{val: stats, err: err}
	case statsCmd:
		stats, err := h.engine.Stats(c.pollID)
		c.reply <- result[domain.PollStats]{val: stats, err: err}
	case historyCmd:
		c.reply <- result[[]domain.PollStats]{val: h.engine.History()}
	case voteStatusCmd:
		status, err := h.voteStatus(c.pollID, c.voterID)
		c.reply <- result[VoteStatus]{val: status, err: err}
	case connectionCountCmd:
		c.reply <- result[int]{val: len(h.conns)}
	default:
		slog.Warn("Hub received unknown command type", "command_type", fmt.Sprintf("%T", cmd))
	}
}

func (h *Hub) handleStop() {
	slog.Info("Hub shutting down", "connections", len(h.conns), "students", h.roster.Len())
	h.closeAll(shutdownReason)
}

// closeAll closes every connection with the given reason.
func (h *Hub) closeAll(reason string) {
	for id, c := range h.conns {
		c.sink.Close(reason)
		delete(h.conns, id)
	}
	h.metrics.Hub.ActiveConnections.Set(0)
}
