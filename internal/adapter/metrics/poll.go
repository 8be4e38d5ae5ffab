package metrics

import "github.com/prometheus/client_golang/prometheus"

// PollMetrics holds Prometheus metrics for the poll lifecycle.
type PollMetrics struct {
	PollsCreated prometheus.Counter
	VotesTotal   *prometheus.CounterVec
	PollsEnded   *prometheus.CounterVec
}

// NewPollMetrics creates and registers poll metrics on the given registry.
func NewPollMetrics(reg prometheus.Registerer) *PollMetrics {
	m := &PollMetrics{
		PollsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_created_total",
			Help:      "Total number of polls created.",
		}),
		VotesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "votes_total",
			Help:      "Total number of votes cast, by result.",
		}, []string{"result"}),
		PollsEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_ended_total",
			Help:      "Total number of polls ended, by reason.",
		}, []string{"reason"}),
	}

	reg.MustRegister(m.PollsCreated, m.VotesTotal, m.PollsEnded)
	return m
}
