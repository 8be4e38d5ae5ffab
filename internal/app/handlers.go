package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/pscheid92/classpoll/internal/domain"
	"github.com/pscheid92/classpoll/internal/platform/correlation"
	"github.com/pscheid92/classpoll/internal/poll"
	"github.com/pscheid92/classpoll/internal/protocol"
	"golang.org/x/time/rate"
)

const (
	defaultTeacherName = "Teacher"
	resultOK           = "ok"
)

func (h *Hub) handleConnect(c connectCmd) {
	if _, exists := h.conns[c.connectionID]; exists {
		c.reply <- result[struct{}]{err: fmt.Errorf("connection %s already attached", c.connectionID)}
		return
	}

	conn := &connection{id: c.connectionID, sink: c.sink}
	if h.cfg.ChatRatePerSecond > 0 {
		conn.chatLimiter = rate.NewLimiter(rate.Limit(h.cfg.ChatRatePerSecond), max(h.cfg.ChatBurst, 1))
	}
	h.conns[c.connectionID] = conn
	h.metrics.Hub.ActiveConnections.Set(float64(len(h.conns)))

	slog.Debug("Connection attached", "connection_id", c.connectionID, "total_connections", len(h.conns))
	h.sendTo(context.Background(), c.connectionID, protocol.Connected{ConnectionID: c.connectionID})
	c.reply <- result[struct{}]{}
}

func (h *Hub) handleDisconnect(c disconnectCmd) {
	if _, ok := h.conns[c.connectionID]; !ok {
		return
	}
	delete(h.conns, c.connectionID)
	h.metrics.Hub.ActiveConnections.Set(float64(len(h.conns)))
	slog.Debug("Connection detached", "connection_id", c.connectionID, "remaining_connections", len(h.conns))

	if h.roster.Remove(c.connectionID) {
		h.broadcastRoster(context.Background())
	}
}

func (h *Hub) handleAction(c actionCmd) {
	ctx := c.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = correlation.Ensure(ctx)
	if _, ok := correlation.ConnectionID(ctx); !ok {
		ctx = correlation.WithConnection(ctx, c.connectionID)
	}

	if _, ok := h.conns[c.connectionID]; !ok {
		slog.DebugContext(ctx, "Dropping action from detached connection")
		return
	}

	actionType := "invalid"
	var err error
	if c.decodeErr != nil {
		err = c.decodeErr
	} else {
		actionType = c.action.ActionType()
		err = h.apply(ctx, c.connectionID, c.action)
	}

	outcome := resultOK
	if err != nil {
		outcome = domain.ErrorCode(err)
		h.reportError(ctx, c.connectionID, actionType, err)
	}
	h.metrics.Hub.ActionsTotal.WithLabelValues(actionType, outcome).Inc()
}

func (h *Hub) apply(ctx context.Context, connectionID string, action protocol.Action) error {
	switch a := action.(type) {
	case protocol.JoinAsStudent:
		return h.joinAsStudent(ctx, connectionID, a)
	case protocol.CreatePoll:
		_, err := h.createPoll(ctx, poll.CreateRequest{Question: a.Question, Options: a.Options, Duration: a.Duration})
		return err
	case protocol.CastVote:
		return h.castVote(ctx, connectionID, a)
	case protocol.EndPoll:
		return h.endPoll(ctx, a.PollID)
	case protocol.KickStudent:
		return h.kick(ctx, a.StudentName)
	case protocol.SendChat:
		return h.chat(ctx, connectionID, a)
	default:
		return fmt.Errorf("%w: unsupported action %T", domain.ErrBadRequest, action)
	}
}

func (h *Hub) joinAsStudent(ctx context.Context, connectionID string, a protocol.JoinAsStudent) error {
	name := strings.TrimSpace(a.Name)
	if name == "" {
		return domain.NewValidationError("name", "name is required")
	}
	if len(name) > maxNameLength {
		return domain.NewValidationError("name", fmt.Sprintf("name must be at most %d characters", maxNameLength))
	}

	p := h.roster.Register(connectionID, name)
	slog.InfoContext(ctx, "Student joined", "name", p.DisplayName)
	h.broadcastRoster(ctx)
	return nil
}

func (h *Hub) createPoll(ctx context.Context, req poll.CreateRequest) (*domain.Poll, error) {
	p, err := h.engine.CreatePoll(req)
	if err != nil {
		return nil, err
	}

	h.metrics.Poll.PollsCreated.Inc()
	slog.InfoContext(ctx, "Poll created", "poll_id", p.ID, "options", len(p.Options), "duration", p.Duration)
	h.broadcast(ctx, protocol.NewPoll{Poll: protocol.PollFromDomain(p)})
	return p, nil
}

func (h *Hub) castVote(ctx context.Context, connectionID string, a protocol.CastVote) error {
	voterName := ""
	if p, ok := h.roster.Get(connectionID); ok {
		voterName = p.DisplayName
	}
	_, err := h.applyVote(ctx, a.PollID, a.Option, connectionID, voterName)
	return err
}

func (h *Hub) castVoteHTTP(c castVoteCmd) (domain.PollStats, error) {
	ctx := correlation.Ensure(c.ctx)
	if _, err := h.applyVote(ctx, c.pollID, c.option, c.voterID, ""); err != nil {
		return domain.PollStats{}, err
	}
	return h.engine.Stats(c.pollID)
}

func (h *Hub) applyVote(ctx context.Context, pollID, option, voterID, voterName string) (*domain.Poll, error) {
	p, err := h.engine.CastVote(pollID, option, voterID, voterName)
	if err != nil {
		h.metrics.Poll.VotesTotal.WithLabelValues(domain.ErrorCode(err)).Inc()
		return nil, err
	}

	h.metrics.Poll.VotesTotal.WithLabelValues(resultOK).Inc()
	slog.DebugContext(ctx, "Vote applied", "poll_id", pollID, "total_votes", p.TotalVotes())
	h.broadcast(ctx, protocol.PollUpdate{Poll: protocol.PollFromDomain(p)})
	return p, nil
}

func (h *Hub) endPoll(ctx context.Context, pollID string) error {
	_, changed, err := h.engine.EndPoll(pollID)
	if err != nil {
		return err
	}
	if !changed {
		slog.DebugContext(ctx, "Poll already ended", "poll_id", pollID)
		return nil
	}

	h.metrics.Poll.PollsEnded.WithLabelValues("ended").Inc()
	slog.InfoContext(ctx, "Poll ended", "poll_id", pollID)
	h.broadcast(ctx, protocol.PollEnded{PollID: pollID})
	return nil
}

func (h *Hub) handleSweep() {
	ctx := correlation.Ensure(context.Background())
	for _, p := range h.engine.ExpireDue() {
		h.metrics.Poll.PollsEnded.WithLabelValues("expired").Inc()
		slog.InfoContext(ctx, "Poll expired", "poll_id", p.ID)
		h.broadcast(ctx, protocol.PollEnded{PollID: p.ID})
	}
}

// kick removes the first student registered under name. The target gets the
// kicked event before its connection closes; everyone else gets the new roster.
func (h *Hub) kick(ctx context.Context, name string) error {
	target, ok := h.roster.FindByDisplayName(name)
	if !ok {
		return domain.ErrParticipantNotFound
	}

	h.roster.Remove(target.ID)
	if conn, ok := h.conns[target.ID]; ok {
		h.sendTo(ctx, target.ID, protocol.Kicked{Reason: kickedReason})
		h.detach(conn, kickedReason)
	}

	slog.InfoContext(ctx, "Student kicked", "target_connection_id", target.ID, "name", target.DisplayName)
	h.broadcastRoster(ctx)
	return nil
}

func (h *Hub) chat(ctx context.Context, connectionID string, a protocol.SendChat) error {
	text := strings.TrimSpace(a.Text)
	if text == "" {
		return domain.NewValidationError("text", "message text is required")
	}
	if len(text) > maxChatLength {
		return domain.NewValidationError("text", fmt.Sprintf("message must be at most %d characters", maxChatLength))
	}

	if conn := h.conns[connectionID]; conn.chatLimiter != nil && !conn.chatLimiter.AllowN(h.clock.Now(), 1) {
		return domain.ErrRateLimited
	}

	msg := domain.ChatMessage{
		ID:     uuid.NewString(),
		Text:   text,
		SentAt: h.clock.Now(),
	}
	if p, ok := h.roster.Get(connectionID); ok {
		msg.SenderName, msg.SenderRole = p.DisplayName, domain.RoleStudent
	} else {
		msg.SenderName, msg.SenderRole = strings.TrimSpace(a.Sender), a.Role
		if !msg.SenderRole.Valid() {
			msg.SenderRole = domain.RoleTeacher
		}
		if msg.SenderName == "" {
			msg.SenderName = defaultTeacherName
		}
	}

	h.broadcast(ctx, protocol.ChatFromDomain(msg, h.cfg.ChatTimeLayout))
	return nil
}

func (h *Hub) voteStatus(pollID, voterID string) (VoteStatus, error) {
	voted, err := h.engine.HasVoted(pollID, voterID)
	if err != nil {
		return VoteStatus{}, err
	}
	stats, err := h.engine.Stats(pollID)
	if err != nil {
		return VoteStatus{}, err
	}
	return VoteStatus{PollID: pollID, HasVoted: voted, IsExpired: stats.IsExpired}, nil
}

func (h *Hub) broadcastRoster(ctx context.Context) {
	h.metrics.Hub.RosterSize.Set(float64(h.roster.Len()))
	h.broadcast(ctx, protocol.RosterFromDomain(h.roster.List()))
}

// broadcast sends ev to every attached connection. Connections whose queue is
// full are evicted after the fan-out.
func (h *Hub) broadcast(ctx context.Context, ev protocol.Event) {
	frame, err := protocol.EncodeEvent(ev)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to encode event", "event", ev.EventType(), "error", err)
		return
	}

	var slow []*connection
	for _, conn := range h.conns {
		if !conn.sink.Send(frame) {
			slow = append(slow, conn)
		}
	}
	h.metrics.Hub.EventsBroadcast.WithLabelValues(ev.EventType()).Inc()

	for _, conn := range slow {
		h.evict(ctx, conn)
	}
}

// sendTo sends ev to one connection only.
func (h *Hub) sendTo(ctx context.Context, connectionID string, ev protocol.Event) {
	conn, ok := h.conns[connectionID]
	if !ok {
		return
	}
	frame, err := protocol.EncodeEvent(ev)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to encode event", "event", ev.EventType(), "error", err)
		return
	}
	if !conn.sink.Send(frame) {
		h.evict(ctx, conn)
	}
}

func (h *Hub) evict(ctx context.Context, conn *connection) {
	if _, ok := h.conns[conn.id]; !ok {
		return
	}
	slog.WarnContext(ctx, "Disconnecting slow client", "target_connection_id", conn.id)
	h.metrics.Hub.SlowClientsEvicted.Inc()
	h.forget(conn)
	conn.sink.Abort()

	if h.roster.Remove(conn.id) {
		h.broadcastRoster(ctx)
	}
}

// detach closes the connection and forgets it. The roster is left alone.
func (h *Hub) detach(conn *connection, reason string) {
	h.forget(conn)
	conn.sink.Close(reason)
}

func (h *Hub) forget(conn *connection) {
	delete(h.conns, conn.id)
	h.metrics.Hub.ActiveConnections.Set(float64(len(h.conns)))
}

func (h *Hub) reportError(ctx context.Context, connectionID, actionType string, err error) {
	code := domain.ErrorCode(err)
	message := err.Error()
	var validationErr *domain.ValidationError
	switch {
	case errors.As(err, &validationErr):
		message = validationErr.Message
		slog.InfoContext(ctx, "Action rejected", "action", actionType, "code", code, "error", err)
	case code == domain.CodeInternal:
		message = "internal error"
		slog.ErrorContext(ctx, "Action failed", "action", actionType, "cause", err)
	case code == domain.CodeAlreadyVoted || code == domain.CodePollExpired || code == domain.CodeRateLimited:
		slog.WarnContext(ctx, "Action conflict", "action", actionType, "code", code)
	default:
		slog.InfoContext(ctx, "Action rejected", "action", actionType, "code", code, "error", err)
	}

	h.sendTo(ctx, connectionID, protocol.Error{Code: code, Message: message, Action: actionType})
}
