// Package metrics exposes Prometheus metrics for chat sessions.
//
// A *Metrics is passed to the client, the router, the supervisor and the
// archiver. Every method is safe to call on a nil *Metrics, so components
// can record unconditionally.
//
// Metrics collected (namespace "blivedm" by default):
//   - frames_total{op}: decoded frames by operation
//   - frame_errors_total{kind}: decode and decompression failures
//   - commands_total{cmd,status}: notifications by command and outcome
//   - dispatch_duration_seconds{cmd}: decode plus callback time
//   - sessions_active: sessions currently live
//   - session_starts_total{result}: start attempts by result
//   - heartbeats_sent_total: heartbeat frames written
//   - popularity{room}: last activity count per room
//   - reconnects_total: supervisor restarts
//   - archive_records_total{sink,status}: archived records by outcome
//
// Example:
//
//	m := metrics.New(metrics.WithNamespace("chat"))
//	c := client.New(roomID, client.WithMetrics(m))
//	http.Handle("/metrics", promhttp.Handler())
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Config configures the collector.
type Config struct {
	// Namespace is the metrics namespace (default: "blivedm").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for dispatch duration.
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// Option configures the collector.
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

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) Option {
	return func(c *Config) {
		c.Buckets = buckets
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
		Namespace: "blivedm",
		// Dispatch is in-process JSON decoding; most calls finish well under 1ms.
		Buckets:  []float64{.0001, .00025, .0005, .001, .0025, .005, .01, .025, .05, .1},
		Registry: prometheus.DefaultRegisterer,
	}
}

// Metrics holds the collectors.
type Metrics struct {
	framesTotal      *prometheus.CounterVec
	frameErrors      *prometheus.CounterVec
	commandsTotal    *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec
	sessionsActive   prometheus.Gauge
	sessionStarts    *prometheus.CounterVec
	heartbeatsSent   prometheus.Counter
	popularity       *prometheus.GaugeVec
	reconnectsTotal  prometheus.Counter
	archiveRecords   *prometheus.CounterVec
}

// Command outcomes used as the status label of commands_total.
const (
	StatusOK          = "ok"
	StatusUnhandled   = "unhandled"
	StatusDecodeError = "decode_error"
	StatusPanic       = "panic"
)

// New registers the collectors and returns them. Registering twice on the
// same registry panics, as with promauto.
func New(opts ...Option) *Metrics {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	return &Metrics{
		framesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "frames_total",
			Help:        "Total number of decoded frames by operation",
			ConstLabels: config.ConstLabels,
		}, []string{"op"}),

		frameErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "frame_errors_total",
			Help:        "Total number of frame decode failures by kind",
			ConstLabels: config.ConstLabels,
		}, []string{"kind"}),

		commandsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "commands_total",
			Help:        "Total number of notification commands by outcome",
			ConstLabels: config.ConstLabels,
		}, []string{"cmd", "status"}),

		dispatchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "dispatch_duration_seconds",
			Help:        "Command decode and callback duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"cmd"}),

		sessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "sessions_active",
			Help:        "Number of authenticated chat sessions",
			ConstLabels: config.ConstLabels,
		}),

		sessionStarts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "session_starts_total",
			Help:        "Total number of session start attempts by result",
			ConstLabels: config.ConstLabels,
		}, []string{"result"}),

		heartbeatsSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "heartbeats_sent_total",
			Help:        "Total number of heartbeat frames sent",
			ConstLabels: config.ConstLabels,
		}),

		popularity: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "popularity",
			Help:        "Last activity count reported by the server",
			ConstLabels: config.ConstLabels,
		}, []string{"room"}),

		reconnectsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "reconnects_total",
			Help:        "Total number of supervised session restarts",
			ConstLabels: config.ConstLabels,
		}),

		archiveRecords: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "archive_records_total",
			Help:        "Total number of archived notification records by sink and outcome",
			ConstLabels: config.ConstLabels,
		}, []string{"sink", "status"}),
	}
}

// Frame records one decoded frame. op is the operation name.
func (m *Metrics) Frame(op string) {
	if m == nil {
		return
	}
	m.framesTotal.WithLabelValues(op).Inc()
}

// FrameError records a frame failure of the given kind ("decode",
// "decompress").
func (m *Metrics) FrameError(kind string) {
	if m == nil {
		return
	}
	m.frameErrors.WithLabelValues(kind).Inc()
}

// Command records the outcome of one notification.
func (m *Metrics) Command(cmd, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.commandsTotal.WithLabelValues(cmd, status).Inc()
	if status != StatusUnhandled {
		m.dispatchDuration.WithLabelValues(cmd).Observe(d.Seconds())
	}
}

// SessionStart records a start attempt ("ok", "resolve_error",
// "dial_error", "auth_rejected").
func (m *Metrics) SessionStart(result string) {
	if m == nil {
		return
	}
	m.sessionStarts.WithLabelValues(result).Inc()
}

// SessionLive records a session entering the live state.
func (m *Metrics) SessionLive() {
	if m == nil {
		return
	}
	m.sessionsActive.Inc()
}

// SessionEnded records a live session ending.
func (m *Metrics) SessionEnded() {
	if m == nil {
		return
	}
	m.sessionsActive.Dec()
}

// HeartbeatSent records one heartbeat frame written.
func (m *Metrics) HeartbeatSent() {
	if m == nil {
		return
	}
	m.heartbeatsSent.Inc()
}

// Popularity records the activity count for a room.
func (m *Metrics) Popularity(roomID int64, v uint32) {
	if m == nil {
		return
	}
	m.popularity.WithLabelValues(strconv.FormatInt(roomID, 10)).Set(float64(v))
}

// Reconnect records a supervised restart.
func (m *Metrics) Reconnect() {
	if m == nil {
		return
	}
	m.reconnectsTotal.Inc()
}

// Archived records n records written to sink, or failed when err != nil.
func (m *Metrics) Archived(sink string, n int, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.archiveRecords.WithLabelValues(sink, status).Add(float64(n))
}
