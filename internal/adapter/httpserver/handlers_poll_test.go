package httpserver

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/pscheid92/classpoll/internal/domain"
	"github.com/pscheid92/classpoll/internal/platform/config"
	apperrors "github.com/pscheid92/classpoll/internal/platform/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createPoll(t *testing.T, srv *Server, body string) createPollResponse {
	t.Helper()
	rec := doRequest(srv, http.MethodPost, "/api/poll", body, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp createPollResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func decodeError(t *testing.T, body []byte) apperrors.ErrorResponse {
	t.Helper()
	var resp apperrors.ErrorResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	return resp
}

func TestCreatePoll(t *testing.T) {
	hub, _ := newTestHub(t)
	srv := newTestServer(t, hub)

	resp := createPoll(t, srv, `{"question":" Lunch? ","options":["Pizza","", " Salad "],"duration":30}`)

	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.PollID)
	assert.Equal(t, resp.PollID, resp.Poll.ID)
	assert.Equal(t, "Lunch?", resp.Poll.Question)
	assert.Equal(t, []string{"Pizza", "Salad"}, resp.Poll.Options)
	assert.Equal(t, map[string]int{"Pizza": 0, "Salad": 0}, resp.Poll.Votes)
}

func TestCreatePollValidation(t *testing.T) {
	hub, _ := newTestHub(t)
	srv := newTestServer(t, hub)

	tests := []struct {
		name string
		body string
	}{
		{"blank question", `{"question":"  ","options":["A","B"]}`},
		{"one option", `{"question":"Q","options":["A"," "]}`},
		{"malformed body", `{"question":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(srv, http.MethodPost, "/api/poll", tt.body, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestVoteFlow(t *testing.T) {
	hub, _ := newTestHub(t)
	srv := newTestServer(t, hub)
	created := createPoll(t, srv, `{"question":"Q","options":["A","B"],"duration":60}`)
	headers := map[string]string{ClientIDHeader: "voter-1"}

	rec := doRequest(srv, http.MethodPost, "/api/vote", `{"pollId":"`+created.PollID+`","option":"A"}`, headers)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var voted voteResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &voted))
	assert.True(t, voted.Success)
	assert.Equal(t, 1, voted.Poll.TotalVotes)
	assert.Equal(t, 1, voted.Poll.UniqueVoters)
	assert.Equal(t, []optionTallyResponse{{Text: "A", Votes: 1}, {Text: "B", Votes: 0}}, voted.Poll.Options)
	assert.True(t, voted.Poll.IsActive)
	require.NotNil(t, voted.Poll.EndTime)

	rec = doRequest(srv, http.MethodPost, "/api/vote", `{"pollId":"`+created.PollID+`","option":"B"}`, headers)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, domain.CodeAlreadyVoted, decodeError(t, rec.Body.Bytes()).Code)

	rec = doRequest(srv, http.MethodGet, "/api/vote-status/"+created.PollID, "", headers)
	require.Equal(t, http.StatusOK, rec.Code)
	var status voteStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.True(t, status.HasVoted)
	assert.False(t, status.IsExpired)
}

func TestVoteFallsBackToFingerprint(t *testing.T) {
	hub, _ := newTestHub(t)
	srv := newTestServer(t, hub)
	created := createPoll(t, srv, `{"question":"Q","options":["A","B"]}`)
	body := `{"pollId":"` + created.PollID + `","option":"A"}`

	rec := doRequest(srv, http.MethodPost, "/api/vote", body, map[string]string{"User-Agent": "tablet"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(srv, http.MethodPost, "/api/vote", body, map[string]string{"User-Agent": "tablet"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doRequest(srv, http.MethodPost, "/api/vote", body, map[string]string{"User-Agent": "laptop"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestVoteErrors(t *testing.T) {
	hub, clock := newTestHub(t)
	srv := newTestServer(t, hub)
	created := createPoll(t, srv, `{"question":"Q","options":["A","B"],"duration":10}`)
	headers := map[string]string{ClientIDHeader: "voter-1"}

	rec := doRequest(srv, http.MethodPost, "/api/vote", `{"pollId":"missing","option":"A"}`, headers)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(srv, http.MethodPost, "/api/vote", `{"pollId":"`+created.PollID+`","option":"C"}`, headers)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, domain.CodeInvalidOption, decodeError(t, rec.Body.Bytes()).Code)

	rec = doRequest(srv, http.MethodPost, "/api/vote", `{"pollId":"`+created.PollID+`","option":"  "}`, headers)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(srv, http.MethodPost, "/api/vote", `{"option":"A"}`, headers)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	clock.Advance(11 * time.Second)
	rec = doRequest(srv, http.MethodPost, "/api/vote", `{"pollId":"`+created.PollID+`","option":"A"}`, headers)
	assert.Equal(t, http.StatusGone, rec.Code)
	assert.Equal(t, domain.CodePollExpired, decodeError(t, rec.Body.Bytes()).Code)
}

func TestResults(t *testing.T) {
	hub, _ := newTestHub(t)
	srv := newTestServer(t, hub)
	created := createPoll(t, srv, `{"question":"Open?","options":["Yes","No"]}`)

	rec := doRequest(srv, http.MethodGet, "/api/results/"+created.PollID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["success"])
	assert.Equal(t, created.PollID, body["pollId"])
	assert.Equal(t, "Open?", body["question"])
	assert.Nil(t, body["endTime"])
	assert.Equal(t, false, body["isExpired"])

	rec = doRequest(srv, http.MethodGet, "/api/results/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHistoryNewestFirst(t *testing.T) {
	hub, _ := newTestHub(t)
	srv := newTestServer(t, hub)
	first := createPoll(t, srv, `{"question":"one","options":["A","B"]}`)
	second := createPoll(t, srv, `{"question":"two","options":["A","B"]}`)

	rec := doRequest(srv, http.MethodGet, "/api/polls/history", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var history historyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	assert.Equal(t, 2, history.Count)
	require.Len(t, history.Polls, 2)
	assert.Equal(t, second.PollID, history.Polls[0].PollID)
	assert.Equal(t, first.PollID, history.Polls[1].PollID)
}

func TestVoteStatusUnknownPoll(t *testing.T) {
	hub, _ := newTestHub(t)
	srv := newTestServer(t, hub)

	rec := doRequest(srv, http.MethodGet, "/api/vote-status/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPIIndex(t *testing.T) {
	hub, _ := newTestHub(t)
	srv := newTestServer(t, hub)

	rec := doRequest(srv, http.MethodGet, "/api", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "POST /api/vote")
}

func TestVoteIsRateLimited(t *testing.T) {
	hub, _ := newTestHub(t)
	srv := newTestServer(t, hub, withConfig(func(cfg *config.Config) {
		cfg.VoteRatePerSecond = 0.01
		cfg.VoteBurst = 1
	}))

	doRequest(srv, http.MethodPost, "/api/vote", `{"pollId":"missing","option":"A"}`, nil)
	rec := doRequest(srv, http.MethodPost, "/api/vote", `{"pollId":"missing","option":"A"}`, nil)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestVoteRequiresResolvableVoter(t *testing.T) {
	hub, _ := newTestHub(t)
	srv := newTestServer(t, hub, withVoters(HeaderResolver{Header: ClientIDHeader}))
	created := createPoll(t, srv, `{"question":"Q","options":["A","B"]}`)

	rec := doRequest(srv, http.MethodPost, "/api/vote", `{"pollId":"`+created.PollID+`","option":"A"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(srv, http.MethodPost, "/api/vote", `{"pollId":"`+created.PollID+`","option":"A"}`, map[string]string{ClientIDHeader: "x"})
	require.Equal(t, http.StatusOK, rec.Code)

	stats, err := hub.Results(t.Context(), created.PollID)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalVotes)
}
