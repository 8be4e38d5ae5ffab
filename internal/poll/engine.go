package poll

import (
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/classpoll/internal/domain"
)

const (
	MaxQuestionLength = 500
	MaxOptions        = 20
	MaxOptionLength   = 200
	MaxDuration       = 24 * 60 * 60 // seconds
	minOptions        = 2
)

// CreateRequest is the raw, untrusted input for a new poll.
// Duration is in seconds; zero or negative means no time limit.
type CreateRequest struct {
	Question string
	Options  []string
	Duration int
}

type pollEntry struct {
	poll  *domain.Poll
	voted map[string]struct{}
}

// Engine holds every poll created during the process lifetime.
// All methods must be called from the owning goroutine.
type Engine struct {
	clock     clockwork.Clock
	newID     func() string
	polls     map[string]*pollEntry
	order     []string
	currentID string
}

func NewEngine(clock clockwork.Clock) *Engine {
	return &Engine{
		clock: clock,
		newID: newPollID,
		polls: make(map[string]*pollEntry),
	}
}

// newPollID returns a UUIDv7, so ids sort by creation time.
func newPollID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// CreatePoll validates req, stores the poll, and makes it current.
// The previous current poll stays retrievable by id.
func (e *Engine) CreatePoll(req CreateRequest) (*domain.Poll, error) {
	question, options, duration, err := normalize(req)
	if err != nil {
		return nil, err
	}

	votes := make(map[string]int, len(options))
	for _, opt := range options {
		votes[opt] = 0
	}

	p := &domain.Poll{
		ID:         e.newID(),
		Question:   question,
		Options:    options,
		Duration:   duration,
		Votes:      votes,
		Voters:     []string{},
		VoterNames: []string{},
		CreatedAt:  e.clock.Now(),
	}

	e.polls[p.ID] = &pollEntry{poll: p, voted: make(map[string]struct{})}
	e.order = append(e.order, p.ID)
	e.currentID = p.ID

	return p.Clone(), nil
}

func normalize(req CreateRequest) (string, []string, int, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return "", nil, 0, domain.NewValidationError("question", "question is required")
	}
	if len(question) > MaxQuestionLength {
		return "", nil, 0, domain.NewValidationError("question", fmt.Sprintf("question must be at most %d characters", MaxQuestionLength))
	}

	options := make([]string, 0, len(req.Options))
	for _, raw := range req.Options {
		opt := strings.TrimSpace(raw)
		if opt == "" || slices.Contains(options, opt) {
			continue
		}
		if len(opt) > MaxOptionLength {
			return "", nil, 0, domain.NewValidationError("options", fmt.Sprintf("options must be at most %d characters", MaxOptionLength))
		}
		options = append(options, opt)
	}
	if len(options) < minOptions {
		return "", nil, 0, domain.NewValidationError("options", "at least 2 non-empty options are required")
	}
	if len(options) > MaxOptions {
		return "", nil, 0, domain.NewValidationError("options", fmt.Sprintf("at most %d options are allowed", MaxOptions))
	}

	duration := req.Duration
	if duration < 0 {
		duration = 0
	}
	if duration > MaxDuration {
		return "", nil, 0, domain.NewValidationError("duration", fmt.Sprintf("duration must be at most %d seconds", MaxDuration))
	}

	return question, options, duration, nil
}

// CastVote applies one vote and returns the full updated poll.
// Checks run in order: unknown poll, expired or ended, unknown option, repeat voter.
// voterName is recorded in VoterNames when non-empty.
func (e *Engine) CastVote(pollID, option, voterID, voterName string) (*domain.Poll, error) {
	entry, ok := e.polls[pollID]
	if !ok {
		return nil, domain.ErrPollNotFound
	}

	p := entry.poll
	if !p.AcceptsVotes(e.clock.Now()) {
		return nil, domain.ErrPollExpired
	}

	option = strings.TrimSpace(option)
	if !p.HasOption(option) {
		return nil, domain.ErrInvalidOption
	}

	if _, voted := entry.voted[voterID]; voted {
		return nil, domain.ErrAlreadyVoted
	}

	p.Votes[option]++
	entry.voted[voterID] = struct{}{}
	p.Voters = append(p.Voters, voterID)
	if voterName != "" {
		p.VoterNames = append(p.VoterNames, voterName)
	}

	return p.Clone(), nil
}

// EndPoll marks the poll ended. Ending an ended poll is a no-op;
// changed reports whether this call made the transition.
func (e *Engine) EndPoll(pollID string) (p *domain.Poll, changed bool, err error) {
	entry, ok := e.polls[pollID]
	if !ok {
		return nil, false, domain.ErrPollNotFound
	}
	if entry.poll.Ended {
		return entry.poll.Clone(), false, nil
	}
	entry.poll.Ended = true
	return entry.poll.Clone(), true, nil
}

// ExpireDue ends every open poll whose deadline has passed and returns them.
func (e *Engine) ExpireDue() []*domain.Poll {
	now := e.clock.Now()
	var expired []*domain.Poll
	for _, id := range e.order {
		p := e.polls[id].poll
		if !p.Ended && p.IsExpired(now) {
			p.Ended = true
			expired = append(expired, p.Clone())
		}
	}
	return expired
}

// Get returns a copy of the poll with the given id.
func (e *Engine) Get(pollID string) (*domain.Poll, bool) {
	entry, ok := e.polls[pollID]
	if !ok {
		return nil, false
	}
	return entry.poll.Clone(), true
}

// Current returns a copy of the most recently created poll.
func (e *Engine) Current() (*domain.Poll, bool) {
	if e.currentID == "" {
		return nil, false
	}
	return e.Get(e.currentID)
}

// Stats returns derived statistics for one poll.
func (e *Engine) Stats(pollID string) (domain.PollStats, error) {
	entry, ok := e.polls[pollID]
	if !ok {
		return domain.PollStats{}, domain.ErrPollNotFound
	}
	return domain.StatsAt(entry.poll, e.clock.Now()), nil
}

// History returns stats for every poll, newest first.
func (e *Engine) History() []domain.PollStats {
	now := e.clock.Now()
	history := make([]domain.PollStats, 0, len(e.order))
	for _, id := range slices.Backward(e.order) {
		history = append(history, domain.StatsAt(e.polls[id].poll, now))
	}
	return history
}

// HasVoted reports whether voterID has voted in the poll.
func (e *Engine) HasVoted(pollID, voterID string) (bool, error) {
	entry, ok := e.polls[pollID]
	if !ok {
		return false, domain.ErrPollNotFound
	}
	_, voted := entry.voted[voterID]
	return voted, nil
}

// Len returns the number of polls created.
func (e *Engine) Len() int {
	return len(e.order)
}
