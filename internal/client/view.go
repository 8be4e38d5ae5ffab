// Package client holds a participant's local view of a classroom session and
// reconciles it against events pushed by the hub.
//
// View is a pure reducer: every method mutates the view and returns the
// actions the participant should send. Machine adds the clock (countdown and
// notice expiry) and Session adds the websocket transport.
package client

import (
	"slices"
	"strings"

	"github.com/pscheid92/classpoll/internal/domain"
	"github.com/pscheid92/classpoll/internal/protocol"
)

// Phase is the screen a participant is on.
type Phase int

const (
	PhaseUnidentified Phase = iota // no role chosen yet
	PhaseAwaitingName              // student without a submitted name
	PhaseIdle
	PhaseVoting
	PhaseResults
	PhaseKickedOut // absorbing until GoHome
)

func (p Phase) String() string {
	switch p {
	case PhaseUnidentified:
		return "unidentified"
	case PhaseAwaitingName:
		return "awaiting_name"
	case PhaseIdle:
		return "idle"
	case PhaseVoting:
		return "voting"
	case PhaseResults:
		return "results"
	case PhaseKickedOut:
		return "kicked_out"
	default:
		return "unknown"
	}
}

type ConnState int

const (
	Disconnected ConnState = iota
	Connected
)

type NoticeKind string

const (
	NoticeInfo    NoticeKind = "info"
	NoticeSuccess NoticeKind = "success"
	NoticeError   NoticeKind = "error"
)

// Notice is a transient status message. Machine dismisses it after a delay.
type Notice struct {
	ID      int
	Kind    NoticeKind
	Message string
}

const (
	defaultTeacherSender = "Teacher"
	kickedMessage        = "You have been kicked out by the teacher!"
	disconnectedMessage  = "Disconnected from server"
	pollEndedMessage     = "Poll has ended"
)

// View is one participant's local state. CurrentPoll carries server-sourced
// fields; TimeLeft is owned by the local countdown and only initialized from
// the poll duration when a new poll id arrives.
type View struct {
	Role         domain.Role
	Phase        Phase
	StudentName  string
	ConnectionID string
	Conn         ConnState

	CurrentPoll *protocol.Poll
	TimeLeft    int
	Selected    string
	VotePending bool
	HasVoted    bool

	Roster  []protocol.Student
	Chat    []protocol.ChatMessage
	Notices []Notice

	nextNoticeID int
}

// Clone returns a deep copy safe to hand to another goroutine.
func (v *View) Clone() View {
	c := *v
	if v.CurrentPoll != nil {
		p := clonePoll(*v.CurrentPoll)
		c.CurrentPoll = &p
	}
	c.Roster = slices.Clone(v.Roster)
	c.Chat = slices.Clone(v.Chat)
	c.Notices = slices.Clone(v.Notices)
	return c
}

func clonePoll(p protocol.Poll) protocol.Poll {
	c := p
	c.Options = slices.Clone(p.Options)
	c.Voters = slices.Clone(p.Voters)
	c.VoterNames = slices.Clone(p.VoterNames)
	if p.Votes != nil {
		c.Votes = make(map[string]int, len(p.Votes))
		for k, n := range p.Votes {
			c.Votes[k] = n
		}
	}
	return c
}

func (v *View) notify(kind NoticeKind, msg string) {
	v.nextNoticeID++
	v.Notices = append(v.Notices, Notice{ID: v.nextNoticeID, Kind: kind, Message: msg})
}

// Dismiss removes a notice by id. Unknown ids are ignored.
func (v *View) Dismiss(id int) {
	v.Notices = slices.DeleteFunc(v.Notices, func(n Notice) bool { return n.ID == id })
}

// CountdownRunning reports whether the local countdown should tick.
func (v *View) CountdownRunning() bool {
	return v.CurrentPoll != nil && !v.CurrentPoll.Ended && v.TimeLeft > 0 && v.Phase != PhaseKickedOut
}

// PollOpen reports whether the current poll still takes votes. Open-ended
// polls (duration 0) stay open until ended.
func (v *View) PollOpen() bool {
	if v.CurrentPoll == nil || v.CurrentPoll.Ended {
		return false
	}
	return v.CurrentPoll.Duration <= 0 || v.TimeLeft > 0
}

// CanSubmitVote gates the vote button.
func (v *View) CanSubmitVote() bool {
	return v.Role == domain.RoleStudent &&
		v.Phase == PhaseVoting &&
		v.Conn == Connected &&
		v.Selected != "" &&
		!v.VotePending &&
		!v.HasVoted &&
		v.PollOpen()
}

func (v *View) identified() bool {
	return v.Role == domain.RoleStudent && v.StudentName != "" && v.Phase != PhaseKickedOut
}

// ChooseRole leaves the role selection screen.
func (v *View) ChooseRole(role domain.Role) {
	if v.Phase != PhaseUnidentified || !role.Valid() {
		return
	}
	v.Role = role
	if role == domain.RoleStudent {
		v.Phase = PhaseAwaitingName
		return
	}
	v.Phase = PhaseIdle
}

// SubmitName registers the student's display name.
func (v *View) SubmitName(name string) []protocol.Action {
	name = strings.TrimSpace(name)
	if v.Phase != PhaseAwaitingName || name == "" {
		return nil
	}
	v.StudentName = name
	v.Phase = PhaseIdle
	if v.CurrentPoll != nil && !v.CurrentPoll.Ended {
		v.Phase = PhaseVoting
	}
	v.notify(NoticeSuccess, "Welcome "+name+"!")
	if v.Conn != Connected {
		return nil
	}
	return []protocol.Action{protocol.JoinAsStudent{Name: name}}
}

// Select picks an option on the voting screen.
func (v *View) Select(option string) {
	if v.Phase != PhaseVoting || v.HasVoted || v.VotePending || v.CurrentPoll == nil {
		return
	}
	if !slices.Contains(v.CurrentPoll.Options, option) {
		return
	}
	v.Selected = option
}

// SubmitVote casts the selected option. The vote stays pending until a poll
// update lists this connection as a voter or the hub reports an error.
func (v *View) SubmitVote() []protocol.Action {
	if !v.CanSubmitVote() {
		return nil
	}
	v.VotePending = true
	v.notify(NoticeSuccess, "Vote submitted!")
	return []protocol.Action{protocol.CastVote{PollID: v.CurrentPoll.ID, Option: v.Selected}}
}

// CreatePoll asks the hub to start a poll. The view adopts the poll when the
// hub broadcasts it back.
func (v *View) CreatePoll(question string, options []string, duration int) []protocol.Action {
	if v.Role != domain.RoleTeacher || v.Conn != Connected {
		return nil
	}
	v.notify(NoticeSuccess, "Poll created and broadcast!")
	return []protocol.Action{protocol.CreatePoll{Question: question, Options: slices.Clone(options), Duration: duration}}
}

// EndPoll ends the current poll early.
func (v *View) EndPoll() []protocol.Action {
	if v.Role != domain.RoleTeacher || v.CurrentPoll == nil || v.CurrentPoll.Ended {
		return nil
	}
	return []protocol.Action{protocol.EndPoll{PollID: v.CurrentPoll.ID}}
}

func (v *View) Kick(name string) []protocol.Action {
	if v.Role != domain.RoleTeacher || strings.TrimSpace(name) == "" {
		return nil
	}
	v.notify(NoticeInfo, "Removed "+name)
	return []protocol.Action{protocol.KickStudent{StudentName: name}}
}

func (v *View) SendChat(text string) []protocol.Action {
	text = strings.TrimSpace(text)
	if text == "" || v.Conn != Connected || !v.Role.Valid() || v.Phase == PhaseKickedOut {
		return nil
	}
	sender := defaultTeacherSender
	if v.Role == domain.RoleStudent {
		sender = v.StudentName
	}
	return []protocol.Action{protocol.SendChat{Text: text, Sender: sender, Role: v.Role}}
}

// GoHome returns to role selection, discarding everything but the transport.
func (v *View) GoHome() {
	*v = View{
		ConnectionID: v.ConnectionID,
		Conn:         v.Conn,
		nextNoticeID: v.nextNoticeID,
	}
}

// Tick advances the countdown by one second. A teacher whose countdown runs
// out marks the poll ended and asks the hub to end it.
func (v *View) Tick() []protocol.Action {
	if !v.CountdownRunning() {
		return nil
	}
	if v.TimeLeft > 1 {
		v.TimeLeft--
		return nil
	}
	v.TimeLeft = 0
	if v.Role != domain.RoleTeacher {
		return nil
	}
	v.CurrentPoll.Ended = true
	return []protocol.Action{protocol.EndPoll{PollID: v.CurrentPoll.ID}}
}

// Opened records a fresh transport before the hub acknowledges it.
func (v *View) Opened() {
	v.ConnectionID = ""
}

// Closed records transport loss.
func (v *View) Closed() {
	if v.Conn == Disconnected {
		return
	}
	v.Conn = Disconnected
	v.ConnectionID = ""
	v.VotePending = false
	v.notify(NoticeError, disconnectedMessage)
}

// Apply merges one hub event into the view.
func (v *View) Apply(ev protocol.Event) []protocol.Action {
	switch e := ev.(type) {
	case protocol.Connected:
		return v.onConnected(e)
	case protocol.StudentsUpdate:
		v.Roster = slices.Clone(e.Students)
	case protocol.NewPoll:
		v.onNewPoll(e.Poll)
	case protocol.PollUpdate:
		v.onPollUpdate(e.Poll)
	case protocol.PollEnded:
		v.onPollEnded(e.PollID)
	case protocol.Kicked:
		if v.Role == domain.RoleStudent {
			v.Phase = PhaseKickedOut
			v.Selected = ""
			v.VotePending = false
			v.notify(NoticeError, kickedMessage)
		}
	case protocol.ChatMessage:
		v.Chat = append(v.Chat, e)
	case protocol.Error:
		v.onError(e)
	}
	return nil
}

func (v *View) onConnected(e protocol.Connected) []protocol.Action {
	v.Conn = Connected
	v.ConnectionID = e.ConnectionID
	v.notify(NoticeSuccess, "Connected to server!")
	if !v.identified() {
		return nil
	}
	return []protocol.Action{protocol.JoinAsStudent{Name: v.StudentName}}
}

func (v *View) onNewPoll(p protocol.Poll) {
	if v.Phase == PhaseKickedOut {
		return
	}
	if v.CurrentPoll != nil && v.CurrentPoll.ID == p.ID {
		v.onPollUpdate(p)
		return
	}

	poll := clonePoll(p)
	v.CurrentPoll = &poll
	v.TimeLeft = 0
	if !poll.Ended {
		v.TimeLeft = poll.Duration
	}
	v.Selected = ""
	v.VotePending = false
	v.HasVoted = false

	switch {
	case v.Role == domain.RoleTeacher:
		v.Phase = PhaseResults
	case v.Role == domain.RoleStudent:
		if v.Phase != PhaseAwaitingName {
			v.Phase = PhaseVoting
		}
		v.notify(NoticeInfo, "New poll available!")
	}
}

// onPollUpdate touches only votes, voters and ended. Duration and TimeLeft
// belong to the local countdown.
func (v *View) onPollUpdate(p protocol.Poll) {
	if v.Phase == PhaseKickedOut {
		return
	}
	if v.CurrentPoll == nil {
		v.onNewPoll(p)
		return
	}
	if v.CurrentPoll.ID != p.ID {
		return
	}

	merged := clonePoll(p)
	v.CurrentPoll.Votes = merged.Votes
	v.CurrentPoll.Voters = merged.Voters
	v.CurrentPoll.VoterNames = merged.VoterNames
	v.CurrentPoll.Ended = v.CurrentPoll.Ended || merged.Ended

	if v.ConnectionID != "" && slices.Contains(merged.Voters, v.ConnectionID) {
		v.HasVoted = true
		v.VotePending = false
	}
}

func (v *View) onPollEnded(pollID string) {
	if v.CurrentPoll == nil || v.Phase == PhaseKickedOut {
		return
	}
	if pollID != "" && v.CurrentPoll.ID != pollID {
		return
	}
	v.CurrentPoll.Ended = true
	v.TimeLeft = 0
	v.VotePending = false
	if v.Role == domain.RoleStudent && v.Phase != PhaseAwaitingName {
		v.Phase = PhaseResults
		v.notify(NoticeInfo, pollEndedMessage)
	}
}

func (v *View) onError(e protocol.Error) {
	if e.Action == protocol.ActionVote {
		v.VotePending = false
		if e.Code == domain.CodeAlreadyVoted {
			v.HasVoted = true
		}
	}
	v.notify(NoticeError, e.Message)
}
