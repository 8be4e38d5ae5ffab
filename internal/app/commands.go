package app

import (
	"context"

	"github.com/pscheid92/classpoll/internal/domain"
	"github.com/pscheid92/classpoll/internal/poll"
	"github.com/pscheid92/classpoll/internal/protocol"
)

// hubCmd is the command interface for the Hub actor.
type hubCmd interface{ isHubCmd() }

type baseHubCmd struct{}

func (baseHubCmd) isHubCmd() {}

type result[T any] struct {
	val T
	err error
}

type connectCmd struct {
	baseHubCmd
	connectionID string
	sink         Sink
	reply        chan result[struct{}]
}

type disconnectCmd struct {
	baseHubCmd
	connectionID string
}

// actionCmd carries a decoded action, or the decode error to report back.
type actionCmd struct {
	baseHubCmd
	ctx          context.Context
	connectionID string
	action       protocol.Action
	decodeErr    error
}

type createPollCmd struct {
	baseHubCmd
	ctx   context.Context
	req   poll.CreateRequest
	reply chan result[*domain.Poll]
}

type castVoteCmd struct {
	baseHubCmd
	ctx     context.Context
	pollID  string
	option  string
	voterID string
	reply   chan result[domain.PollStats]
}

type statsCmd struct {
	baseHubCmd
	pollID string
	reply  chan result[domain.PollStats]
}

type historyCmd struct {
	baseHubCmd
	reply chan result[[]domain.PollStats]
}

type voteStatusCmd struct {
	baseHubCmd
	pollID  string
	voterID string
	reply   chan result[VoteStatus]
}

type connectionCountCmd struct {
	baseHubCmd
	reply chan result[int]
}

type stopCmd struct {
	baseHubCmd
}
