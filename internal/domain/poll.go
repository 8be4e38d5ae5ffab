package domain

import (
	"maps"
	"slices"
	"time"
)

// Poll is a question with an ordered set of options and an accumulating tally.
//
// Voters holds the ids that voted, in vote order, each at most once.
// VoterNames holds the display names of registered voters at vote time.
// Duration is in seconds; zero means the poll has no time limit.
type Poll struct {
	ID         string
	Question   string
	Options    []string
	Duration   int
	Votes      map[string]int
	Voters     []string
	VoterNames []string
	Ended      bool
	CreatedAt  time.Time
}

// Deadline returns the wall-clock expiry and whether the poll has one.
func (p *Poll) Deadline() (time.Time, bool) {
	if p.Duration <= 0 {
		return time.Time{}, false
	}
	return p.CreatedAt.Add(time.Duration(p.Duration) * time.Second), true
}

// IsExpired reports whether the wall-clock duration has elapsed at now.
// It ignores the Ended flag.
func (p *Poll) IsExpired(now time.Time) bool {
	deadline, ok := p.Deadline()
	return ok && !now.Before(deadline)
}

// AcceptsVotes reports whether a vote at now may be applied.
func (p *Poll) AcceptsVotes(now time.Time) bool {
	return !p.Ended && !p.IsExpired(now)
}

// HasOption reports whether option is one of the poll's registered options.
func (p *Poll) HasOption(option string) bool {
	return slices.Contains(p.Options, option)
}

// TotalVotes returns the sum of all option tallies.
func (p *Poll) TotalVotes() int {
	total := 0
	for _, n := range p.Votes {
		total += n
	}
	return total
}

// Clone returns a deep copy safe to hand to another goroutine.
func (p *Poll) Clone() *Poll {
	c := *p
	c.Options = slices.Clone(p.Options)
	c.Votes = maps.Clone(p.Votes)
	c.Voters = slices.Clone(p.Voters)
	c.VoterNames = slices.Clone(p.VoterNames)
	return &c
}

// OptionTally is one option with its vote count, in option order.
type OptionTally struct {
	Text  string
	Votes int
}

// PollStats is the derived, read-only view of a poll.
// IsExpired is computed from the wall clock and is independent of Ended.
type PollStats struct {
	Poll         *Poll
	Tallies      []OptionTally
	EndTime      *time.Time
	IsActive     bool
	TotalVotes   int
	UniqueVoters int
	IsExpired    bool
}

// StatsAt derives PollStats for p at now.
func StatsAt(p *Poll, now time.Time) PollStats {
	tallies := make([]OptionTally, 0, len(p.Options))
	for _, opt := range p.Options {
		tallies = append(tallies, OptionTally{Text: opt, Votes: p.Votes[opt]})
	}

	var endTime *time.Time
	if deadline, ok := p.Deadline(); ok {
		endTime = &deadline
	}

	expired := p.IsExpired(now)
	return PollStats{
		Poll:         p.Clone(),
		Tallies:      tallies,
		EndTime:      endTime,
		IsActive:     !p.Ended && !expired,
		TotalVotes:   p.TotalVotes(),
		UniqueVoters: len(p.Voters),
		IsExpired:    expired,
	}
}
