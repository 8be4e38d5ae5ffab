package httpserver

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/classpoll/internal/domain"
	apperrors "github.com/pscheid92/classpoll/internal/platform/errors"
	"github.com/pscheid92/classpoll/internal/platform/version"
	"github.com/pscheid92/classpoll/internal/poll"
	"github.com/pscheid92/classpoll/internal/protocol"
)

func (s *Server) registerAPIRoutes() {
	api := s.echo.Group("/api")
	api.GET("", s.handleAPIIndex)
	api.POST("/poll", s.handleCreatePoll)
	api.GET("/results/:pollId", s.handleResults)
	api.GET("/polls/history", s.handleHistory)
	api.POST("/vote", s.handleVote, newRateLimiter("/api/vote", s.config.VoteRatePerSecond, s.config.VoteBurst, s.config.IsProduction(), s.httpMetrics))
	api.GET("/vote-status/:pollId", s.handleVoteStatus)
}

type createPollRequest struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
	Duration int      `json:"duration"`
}

type createPollResponse struct {
	Success bool          `json:"success"`
	PollID  string        `json:"pollId"`
	Poll    protocol.Poll `json:"poll"`
	Message string        `json:"message"`
}

type voteRequest struct {
	PollID string `json:"pollId"`
	Option string `json:"option"`
}

type voteResponse struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Poll    pollStatsResponse `json:"poll"`
}

type optionTallyResponse struct {
	Text  string `json:"text"`
	Votes int    `json:"votes"`
}

type pollStatsResponse struct {
	PollID       string                `json:"pollId"`
	Question     string                `json:"question"`
	Options      []optionTallyResponse `json:"options"`
	Votes        map[string]int        `json:"votes"`
	Duration     int                   `json:"duration"`
	CreatedAt    time.Time             `json:"createdAt"`
	EndTime      *time.Time            `json:"endTime"`
	IsActive     bool                  `json:"isActive"`
	Ended        bool                  `json:"ended"`
	TotalVotes   int                   `json:"totalVotes"`
	UniqueVoters int                   `json:"uniqueVoters"`
	IsExpired    bool                  `json:"isExpired"`
}

type resultsResponse struct {
	Success bool `json:"success"`
	pollStatsResponse
}

type historyResponse struct {
	Success bool                `json:"success"`
	Polls   []pollStatsResponse `json:"polls"`
	Count   int                 `json:"count"`
}

type voteStatusResponse struct {
	Success   bool   `json:"success"`
	PollID    string `json:"pollId"`
	HasVoted  bool   `json:"hasVoted"`
	IsExpired bool   `json:"isExpired"`
}

func statsResponse(stats domain.PollStats) pollStatsResponse {
	options := make([]optionTallyResponse, 0, len(stats.Tallies))
	for _, t := range stats.Tallies {
		options = append(options, optionTallyResponse{Text: t.Text, Votes: t.Votes})
	}
	p := stats.Poll
	return pollStatsResponse{
		PollID:       p.ID,
		Question:     p.Question,
		Options:      options,
		Votes:        p.Votes,
		Duration:     p.Duration,
		CreatedAt:    p.CreatedAt,
		EndTime:      stats.EndTime,
		IsActive:     stats.IsActive,
		Ended:        p.Ended,
		TotalVotes:   stats.TotalVotes,
		UniqueVoters: stats.UniqueVoters,
		IsExpired:    stats.IsExpired,
	}
}

func (s *Server) handleCreatePoll(c echo.Context) error {
	var req createPollRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body").WithCode(domain.CodeBadRequest)
	}

	p, err := s.hub.CreatePoll(c.Request().Context(), poll.CreateRequest{
		Question: req.Question,
		Options:  req.Options,
		Duration: req.Duration,
	})
	if err != nil {
		return err
	}

	resp := createPollResponse{
		Success: true,
		PollID:  p.ID,
		Poll:    protocol.PollFromDomain(p),
		Message: "Poll created successfully",
	}
	if err := c.JSON(http.StatusCreated, resp); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleVote(c echo.Context) error {
	var req voteRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body").WithCode(domain.CodeBadRequest)
	}
	pollID := strings.TrimSpace(req.PollID)
	if pollID == "" {
		return domain.NewValidationError("pollId", "poll ID is required")
	}
	if strings.TrimSpace(req.Option) == "" {
		return domain.NewValidationError("option", "option is required")
	}

	voterID, ok := s.voters.ResolveVoter(c)
	if !ok {
		return domain.NewValidationError("voter", "voter identity could not be determined")
	}

	stats, err := s.hub.CastVote(c.Request().Context(), pollID, req.Option, voterID)
	if err != nil {
		return err
	}

	resp := voteResponse{Success: true, Message: "Vote submitted successfully", Poll: statsResponse(stats)}
	if err := c.JSON(http.StatusOK, resp); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleResults(c echo.Context) error {
	stats, err := s.hub.Results(c.Request().Context(), c.Param("pollId"))
	if err != nil {
		return err
	}

	if err := c.JSON(http.StatusOK, resultsResponse{Success: true, pollStatsResponse: statsResponse(stats)}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleHistory(c echo.Context) error {
	history, err := s.hub.History(c.Request().Context())
	if err != nil {
		return err
	}

	polls := make([]pollStatsResponse, 0, len(history))
	for _, stats := range history {
		polls = append(polls, statsResponse(stats))
	}
	if err := c.JSON(http.StatusOK, historyResponse{Success: true, Polls: polls, Count: len(polls)}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleVoteStatus(c echo.Context) error {
	pollID := c.Param("pollId")
	voterID, ok := s.voters.ResolveVoter(c)
	if !ok {
		return domain.NewValidationError("voter", "voter identity could not be determined")
	}

	status, err := s.hub.VoteStatus(c.Request().Context(), pollID, voterID)
	if err != nil {
		return err
	}

	resp := voteStatusResponse{Success: true, PollID: status.PollID, HasVoted: status.HasVoted, IsExpired: status.IsExpired}
	if err := c.JSON(http.StatusOK, resp); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleAPIIndex(c echo.Context) error {
	info := version.Get()
	resp := map[string]any{
		"message": "Classroom polling API",
		"version": info.Version,
		"endpoints": map[string]string{
			"POST /api/poll":               "Create a new poll",
			"GET /api/results/:pollId":     "Get poll results",
			"GET /api/polls/history":       "Get all polls",
			"POST /api/vote":               "Submit a vote",
			"GET /api/vote-status/:pollId": "Check if user has voted",
			"GET /ws":                      "Live classroom connection",
		},
	}
	if err := c.JSON(http.StatusOK, resp); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}
