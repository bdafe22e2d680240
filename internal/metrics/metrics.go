// Package metrics exposes Prometheus collectors for the session server.
//
// All recording methods are safe on a nil *Metrics, so components can take an
// optional collector without guarding every call.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Config configures the collectors.
type Config struct {
	// Namespace is the metrics namespace (default: "readyroom").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// Option configures the collectors.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) Option {
	return func(c *Config) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) {
		c.ConstLabels = labels
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

func defaultConfig() Config {
	return Config{
		Namespace: "readyroom",
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics holds the server collectors.
type Metrics struct {
	connectedClients prometheus.Gauge
	connectsTotal    prometheus.Counter
	rejectsTotal     *prometheus.CounterVec
	messagesIn       *prometheus.CounterVec
	messagesOut      *prometheus.CounterVec
	protocolErrors   *prometheus.CounterVec
	transitions      *prometheus.CounterVec
	phase            *prometheus.GaugeVec
	exchangeDuration prometheus.Histogram
	archiveUploads   *prometheus.CounterVec
}

// Phase names reported by the phase gauge.
var phases = []string{"accepting", "countdown", "running"}

// New registers the collectors.
func New(opts ...Option) *Metrics {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	m := &Metrics{
		connectedClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "connected_clients",
			Help:        "Number of clients holding an identity",
			ConstLabels: config.ConstLabels,
		}),

		connectsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "connections_total",
			Help:        "Total number of connections admitted",
			ConstLabels: config.ConstLabels,
		}),

		rejectsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "connection_rejects_total",
			Help:        "Total number of connections closed at accept time, by reason",
			ConstLabels: config.ConstLabels,
		}, []string{"reason"}),

		messagesIn: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "messages_received_total",
			Help:        "Total number of messages decoded from clients, by type",
			ConstLabels: config.ConstLabels,
		}, []string{"type"}),

		messagesOut: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "messages_sent_total",
			Help:        "Total number of messages written to clients, by type",
			ConstLabels: config.ConstLabels,
		}, []string{"type"}),

		protocolErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "protocol_errors_total",
			Help:        "Total number of connections dropped on a framing error, by kind",
			ConstLabels: config.ConstLabels,
		}, []string{"kind"}),

		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "phase_transitions_total",
			Help:        "Total number of phase transitions",
			ConstLabels: config.ConstLabels,
		}, []string{"from", "to"}),

		phase: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "phase",
			Help:        "1 for the active phase, 0 otherwise",
			ConstLabels: config.ConstLabels,
		}, []string{"phase"}),

		exchangeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "exchange_duration_seconds",
			Help:        "Time spent in one io-exchange round",
			ConstLabels: config.ConstLabels,
			Buckets:     []float64{0.00001, 0.0001, 0.001, 0.01, 0.1},
		}),

		archiveUploads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "archive_uploads_total",
			Help:        "Total number of chat transcript uploads, by status",
			ConstLabels: config.ConstLabels,
		}, []string{"status"}),
	}
	for _, p := range phases {
		m.phase.WithLabelValues(p).Set(0)
	}
	return m
}

// ClientConnected records an admitted connection.
func (m *Metrics) ClientConnected() {
	if m == nil {
		return
	}
	m.connectsTotal.Inc()
	m.connectedClients.Inc()
}

// ClientDisconnected records a released identity.
func (m *Metrics) ClientDisconnected() {
	if m == nil {
		return
	}
	m.connectedClients.Dec()
}

// ConnectionRejected records a socket closed at accept time.
func (m *Metrics) ConnectionRejected(reason string) {
	if m == nil {
		return
	}
	m.rejectsTotal.WithLabelValues(reason).Inc()
}

// MessageReceived records a decoded inbound message.
func (m *Metrics) MessageReceived(msgType string) {
	if m == nil {
		return
	}
	m.messagesIn.WithLabelValues(msgType).Inc()
}

// MessageSent records a written outbound message.
func (m *Metrics) MessageSent(msgType string) {
	if m == nil {
		return
	}
	m.messagesOut.WithLabelValues(msgType).Inc()
}

// ProtocolError records a connection dropped on a framing error.
func (m *Metrics) ProtocolError(kind string) {
	if m == nil {
		return
	}
	m.protocolErrors.WithLabelValues(kind).Inc()
}

// Transition records a phase change and moves the phase gauge.
func (m *Metrics) Transition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
	m.SetPhase(to)
}

// SetPhase marks phase as the active one.
func (m *Metrics) SetPhase(phase string) {
	if m == nil {
		return
	}
	for _, p := range phases {
		v := 0.0
		if p == phase {
			v = 1
		}
		m.phase.WithLabelValues(p).Set(v)
	}
}

// ObserveExchange records the duration of one exchange round.
func (m *Metrics) ObserveExchange(d time.Duration) {
	if m == nil {
		return
	}
	m.exchangeDuration.Observe(d.Seconds())
}

// ArchiveUpload records the outcome of a transcript upload.
func (m *Metrics) ArchiveUpload(err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.archiveUploads.WithLabelValues(status).Inc()
}
