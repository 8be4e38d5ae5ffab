package protocol

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/pscheid92/classpoll/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeAction(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		want  Action
	}{
		{"join", `{"type":"joinAsStudent","data":{"name":"Ana"}}`, JoinAsStudent{Name: "Ana"}},
		{"create", `{"type":"createPoll","data":{"question":"Q?","options":["a","b"],"duration":30}}`,
			CreatePoll{Question: "Q?", Options: []string{"a", "b"}, Duration: 30}},
		{"vote", `{"type":"vote","data":{"pollId":"p1","option":"a"}}`, CastVote{PollID: "p1", Option: "a"}},
		{"end object", `{"type":"endPoll","data":{"pollId":"p1"}}`, EndPoll{PollID: "p1"}},
		{"end bare id", `{"type":"endPoll","data":"p1"}`, EndPoll{PollID: "p1"}},
		{"kick", `{"type":"kickStudent","data":{"studentName":"Ben"}}`, KickStudent{StudentName: "Ben"}},
		{"chat", `{"type":"chatMessage","data":{"text":"hi","sender":"Teacher","role":"teacher"}}`,
			SendChat{Text: "hi", Sender: "Teacher", Role: domain.RoleTeacher}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeAction([]byte(tt.frame))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeAction_Errors(t *testing.T) {
	tests := []struct {
		name     string
		frame    string
		wantCode string
	}{
		{"not json", `hello`, domain.CodeBadRequest},
		{"missing type", `{"data":{}}`, domain.CodeBadRequest},
		{"unknown type", `{"type":"dance","data":{}}`, domain.CodeBadRequest},
		{"wrong payload shape", `{"type":"vote","data":{"pollId":42}}`, domain.CodeBadRequest},
		{"join without name", `{"type":"joinAsStudent","data":{"name":"  "}}`, domain.CodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := DecodeAction([]byte(tt.frame))
			require.Error(t, err)
			assert.Nil(t, a)
			assert.Equal(t, tt.wantCode, domain.ErrorCode(err))
		})
	}
}

func TestEncodeEvent_PollPayloadUnderData(t *testing.T) {
	created := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	p := &domain.Poll{
		ID:        "p1",
		Question:  "Pick one",
		Options:   []string{"A", "B"},
		Duration:  30,
		Votes:     map[string]int{"A": 1, "B": 0},
		Voters:    []string{"c1"},
		CreatedAt: created,
	}

	frame, err := EncodeEvent(NewPoll{Poll: PollFromDomain(p)})
	require.NoError(t, err)

	var decoded struct {
		Type string         `json:"type"`
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(frame, &decoded))
	assert.Equal(t, "newPoll", decoded.Type)
	assert.Equal(t, "p1", decoded.Data["id"])
	assert.Equal(t, float64(30), decoded.Data["duration"])
	assert.Equal(t, false, decoded.Data["ended"])
	assert.Equal(t, []any{"A", "B"}, decoded.Data["options"])
	assert.Equal(t, []any{}, decoded.Data["voterNames"], "nil slices go out as empty arrays")
}

func TestEncodeEvent_EmptyRosterIsArray(t *testing.T) {
	frame, err := EncodeEvent(RosterFromDomain(nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"studentsUpdate","data":[]}`, string(frame))
}

func TestDecodeEvent(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		want  Event
	}{
		{"connected", `{"type":"connected","data":{"connectionId":"c1"}}`, Connected{ConnectionID: "c1"}},
		{"roster", `{"type":"studentsUpdate","data":[{"name":"Ana","joinedAt":"2024-03-01T09:00:00Z"}]}`,
			StudentsUpdate{Students: []Student{{Name: "Ana", JoinedAt: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}}}},
		{"ended", `{"type":"pollEnded","data":{"pollId":"p1"}}`, PollEnded{PollID: "p1"}},
		{"kicked without data", `{"type":"kicked"}`, Kicked{}},
		{"error", `{"type":"error","data":{"code":"ALREADY_VOTED","message":"already voted","action":"vote"}}`,
			Error{Code: domain.CodeAlreadyVoted, Message: "already voted", Action: ActionVote}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeEvent([]byte(tt.frame))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeEvent_PollUpdateKeepsTally(t *testing.T) {
	got, err := DecodeEvent([]byte(`{"type":"pollUpdate","data":{"id":"p1","votes":{"a":3},"ended":false,"voterNames":["Ana"]}}`))
	require.NoError(t, err)

	update, ok := got.(PollUpdate)
	require.True(t, ok)
	assert.Equal(t, 3, update.Poll.Votes["a"])
	assert.Equal(t, []string{"Ana"}, update.Poll.VoterNames)
}

func TestEncodeAction_MatchesDecode(t *testing.T) {
	frame, err := EncodeAction(CastVote{PollID: "p1", Option: "a"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"vote","data":{"pollId":"p1","option":"a"}}`, string(frame))
}

func TestChatFromDomain_FormatsTimestamp(t *testing.T) {
	msg := domain.ChatMessage{
		ID:         "m1",
		Text:       "hello",
		SenderName: "Teacher",
		SenderRole: domain.RoleTeacher,
		SentAt:     time.Date(2024, 3, 1, 14, 5, 0, 0, time.UTC),
	}
	wire := ChatFromDomain(msg, "03:04 PM")
	assert.Equal(t, "02:05 PM", wire.Timestamp)
	assert.Equal(t, "Teacher", wire.Sender)
}

func TestDecodeEvent_Unknown(t *testing.T) {
	_, err := DecodeEvent([]byte(`{"type":"mystery"}`))
	assert.ErrorIs(t, err, domain.ErrBadRequest)
}
