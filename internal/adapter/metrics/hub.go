package metrics

import "github.com/prometheus/client_golang/prometheus"

// HubMetrics holds Prometheus metrics for the broadcast hub.
type HubMetrics struct {
	ActiveConnections  prometheus.Gauge
	RosterSize         prometheus.Gauge
	EventsBroadcast    *prometheus.CounterVec
	ActionsTotal       *prometheus.CounterVec
	SlowClientsEvicted prometheus.Counter
	CommandQueueDepth  prometheus.Gauge
	PanicsTotal        prometheus.Counter
}

// NewHubMetrics creates and registers hub metrics on the given registry.
func NewHubMetrics(reg prometheus.Registerer) *HubMetrics {
	m := &HubMetrics{
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "active_connections",
			Help:      "Number of connections attached to the hub.",
		}),
		RosterSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "roster_size",
			Help:      "Number of registered students.",
		}),
		EventsBroadcast: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "events_broadcast_total",
			Help:      "Total number of events fanned out, by event type.",
		}, []string{"type"}),
		ActionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "actions_total",
			Help:      "Total number of inbound actions, by action and result code.",
		}, []string{"action", "result"}),
		SlowClientsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "slow_clients_evicted_total",
			Help:      "Connections dropped because their send buffer was full.",
		}),
		CommandQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "command_queue_depth",
			Help:      "Number of commands waiting for the hub goroutine.",
		}),
		PanicsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "panics_total",
			Help:      "Panics recovered while handling a hub command.",
		}),
	}

	reg.MustRegister(m.ActiveConnections, m.RosterSize, m.EventsBroadcast, m.ActionsTotal,
		m.SlowClientsEvicted, m.CommandQueueDepth, m.PanicsTotal)
	return m
}
