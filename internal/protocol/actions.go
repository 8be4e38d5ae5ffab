package protocol

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pscheid92/classpoll/internal/domain"
)

// Inbound action types.
const (
	ActionJoinAsStudent = "joinAsStudent"
	ActionCreatePoll    = "createPoll"
	ActionVote          = "vote"
	ActionEndPoll       = "endPoll"
	ActionKickStudent   = "kickStudent"
	ActionChatMessage   = "chatMessage"
)

// Action is a closed set of inbound participant actions.
type Action interface {
	ActionType() string
}

type JoinAsStudent struct {
	Name string `json:"name"`
}

type CreatePoll struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
	Duration int      `json:"duration"`
}

type CastVote struct {
	PollID string `json:"pollId"`
	Option string `json:"option"`
}

type EndPoll struct {
	PollID string `json:"pollId"`
}

type KickStudent struct {
	StudentName string `json:"studentName"`
}

// SendChat carries the sender's claimed name and role. The hub overrides both
// for registered students.
type SendChat struct {
	Text   string      `json:"text"`
	Sender string      `json:"sender"`
	Role   domain.Role `json:"role"`
}

func (JoinAsStudent) ActionType() string { return ActionJoinAsStudent }
func (CreatePoll) ActionType() string    { return ActionCreatePoll }
func (CastVote) ActionType() string      { return ActionVote }
func (EndPoll) ActionType() string       { return ActionEndPoll }
func (KickStudent) ActionType() string   { return ActionKickStudent }
func (SendChat) ActionType() string      { return ActionChatMessage }

// DecodeAction parses one inbound frame. Errors wrap domain.ErrBadRequest.
func DecodeAction(frame []byte) (Action, error) {
	env, err := decodeEnvelope(frame)
	if err != nil {
		return nil, err
	}

	switch env.Type {
	case ActionJoinAsStudent:
		var a JoinAsStudent
		if err := decodeData(env, &a); err != nil {
			return nil, err
		}
		if strings.TrimSpace(a.Name) == "" {
			return nil, domain.NewValidationError("name", "name is required")
		}
		return a, nil
	case ActionCreatePoll:
		return decodeAs[CreatePoll](env)
	case ActionVote:
		return decodeAs[CastVote](env)
	case ActionEndPoll:
		return decodeEndPoll(env)
	case ActionKickStudent:
		return decodeAs[KickStudent](env)
	case ActionChatMessage:
		return decodeAs[SendChat](env)
	default:
		return nil, fmt.Errorf("%w: unknown action %q", domain.ErrBadRequest, env.Type)
	}
}

func decodeAs[T Action](env Envelope) (Action, error) {
	var a T
	if err := decodeData(env, &a); err != nil {
		return nil, err
	}
	return a, nil
}

// decodeEndPoll accepts both {"pollId": "..."} and a bare poll id string.
func decodeEndPoll(env Envelope) (Action, error) {
	var id string
	if err := json.Unmarshal(env.Data, &id); err == nil {
		return EndPoll{PollID: id}, nil
	}
	return decodeAs[EndPoll](env)
}

// EncodeAction renders an action as a frame, for clients.
func EncodeAction(a Action) ([]byte, error) {
	return encode(a.ActionType(), a)
}
