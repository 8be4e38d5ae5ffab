package metrics

import "github.com/prometheus/client_golang/prometheus"

// WebSocketMetrics holds Prometheus metrics for the websocket transport.
type WebSocketMetrics struct {
	ConnectionsRejected *prometheus.CounterVec
	MessageSendDuration prometheus.Histogram
	PingFailures        prometheus.Counter
	MessagesReceived    prometheus.Counter
}

// NewWebSocketMetrics creates and registers websocket metrics on the given registry.
func NewWebSocketMetrics(reg prometheus.Registerer) *WebSocketMetrics {
	m := &WebSocketMetrics{
		ConnectionsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "connections_rejected_total",
			Help:      "Upgrades refused before reaching the hub, by reason.",
		}, []string{"reason"}),
		MessageSendDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "message_send_duration_seconds",
			Help:      "Time spent writing one frame to a connection.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
		PingFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "ping_failures_total",
			Help:      "Pings that could not be written.",
		}),
		MessagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "messages_received_total",
			Help:      "Frames read from clients.",
		}),
	}

	reg.MustRegister(m.ConnectionsRejected, m.MessageSendDuration, m.PingFailures, m.MessagesReceived)
	return m
}
