package protocol

import (
	"fmt"
	"time"

	"github.com/pscheid92/classpoll/internal/domain"
)

// Outbound event types.
const (
	EventConnected      = "connected"
	EventStudentsUpdate = "studentsUpdate"
	EventNewPoll        = "newPoll"
	EventPollUpdate     = "pollUpdate"
	EventPollEnded      = "pollEnded"
	EventKicked         = "kicked"
	EventChatMessage    = "chatMessage"
	EventError          = "error"
)

// Event is a closed set of outbound hub events.
type Event interface {
	EventType() string
}

// Poll is the wire form of a poll. Voters carries connection ids.
type Poll struct {
	ID         string         `json:"id"`
	Question   string         `json:"question"`
	Options    []string       `json:"options"`
	Duration   int            `json:"duration"`
	Votes      map[string]int `json:"votes"`
	Voters     []string       `json:"voters"`
	VoterNames []string       `json:"voterNames"`
	Ended      bool           `json:"ended"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// PollFromDomain converts a domain poll for the wire.
func PollFromDomain(p *domain.Poll) Poll {
	c := p.Clone()
	return Poll{
		ID:         c.ID,
		Question:   c.Question,
		Options:    c.Options,
		Duration:   c.Duration,
		Votes:      c.Votes,
		Voters:     nonNil(c.Voters),
		VoterNames: nonNil(c.VoterNames),
		Ended:      c.Ended,
		CreatedAt:  c.CreatedAt,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// Student is one roster entry. Connection ids stay server-side; kick is by name.
type Student struct {
	Name     string    `json:"name"`
	JoinedAt time.Time `json:"joinedAt"`
}

type Connected struct {
	ConnectionID string `json:"connectionId"`
}

// StudentsUpdate is a full roster snapshot, never a diff.
type StudentsUpdate struct {
	Students []Student
}

type NewPoll struct {
	Poll Poll
}

type PollUpdate struct {
	Poll Poll
}

type PollEnded struct {
	PollID string `json:"pollId"`
}

type Kicked struct {
	Reason string `json:"reason,omitempty"`
}

type ChatMessage struct {
	ID        string      `json:"id"`
	Text      string      `json:"text"`
	Sender    string      `json:"sender"`
	Role      domain.Role `json:"role"`
	Timestamp string      `json:"timestamp"`
}

// Error is sent to the originating connection only.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
}

func (Connected) EventType() string      { return EventConnected }
func (StudentsUpdate) EventType() string { return EventStudentsUpdate }
func (NewPoll) EventType() string        { return EventNewPoll }
func (PollUpdate) EventType() string     { return EventPollUpdate }
func (PollEnded) EventType() string      { return EventPollEnded }
func (Kicked) EventType() string         { return EventKicked }
func (ChatMessage) EventType() string    { return EventChatMessage }
func (Error) EventType() string          { return EventError }

// RosterFromDomain converts a participant list to a roster snapshot.
func RosterFromDomain(list []domain.Participant) StudentsUpdate {
	students := make([]Student, 0, len(list))
	for _, p := range list {
		students = append(students, Student{Name: p.DisplayName, JoinedAt: p.JoinedAt})
	}
	return StudentsUpdate{Students: students}
}

// ChatFromDomain converts a chat message, formatting its time with layout.
func ChatFromDomain(m domain.ChatMessage, layout string) ChatMessage {
	return ChatMessage{
		ID:        m.ID,
		Text:      m.Text,
		Sender:    m.SenderName,
		Role:      m.SenderRole,
		Timestamp: m.SentAt.Format(layout),
	}
}

// EncodeEvent renders an event as a frame.
// Roster and poll events put their payload directly under data.
func EncodeEvent(ev Event) ([]byte, error) {
	switch e := ev.(type) {
	case StudentsUpdate:
		return encode(e.EventType(), nonNilStudents(e.Students))
	case NewPoll:
		return encode(e.EventType(), e.Poll)
	case PollUpdate:
		return encode(e.EventType(), e.Poll)
	default:
		return encode(ev.EventType(), ev)
	}
}

func nonNilStudents(s []Student) []Student {
	if s == nil {
		return []Student{}
	}
	return s
}

// DecodeEvent parses one outbound frame, for clients.
func DecodeEvent(frame []byte) (Event, error) {
	env, err := decodeEnvelope(frame)
	if err != nil {
		return nil, err
	}

	switch env.Type {
	case EventConnected:
		return decodeEventAs[Connected](env)
	case EventStudentsUpdate:
		var students []Student
		if err := decodeData(env, &students); err != nil {
			return nil, err
		}
		return StudentsUpdate{Students: students}, nil
	case EventNewPoll:
		var p Poll
		if err := decodeData(env, &p); err != nil {
			return nil, err
		}
		return NewPoll{Poll: p}, nil
	case EventPollUpdate:
		var p Poll
		if err := decodeData(env, &p); err != nil {
			return nil, err
		}
		return PollUpdate{Poll: p}, nil
	case EventPollEnded:
		return decodeEventAs[PollEnded](env)
	case EventKicked:
		return decodeEventAs[Kicked](env)
	case EventChatMessage:
		return decodeEventAs[ChatMessage](env)
	case EventError:
		return decodeEventAs[Error](env)
	default:
		return nil, fmt.Errorf("%w: unknown event %q", domain.ErrBadRequest, env.Type)
	}
}

func decodeEventAs[T Event](env Envelope) (Event, error) {
	var e T
	if err := decodeData(env, &e); err != nil {
		return nil, err
	}
	return e, nil
}
