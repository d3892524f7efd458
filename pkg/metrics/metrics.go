// Package metrics exposes Prometheus collectors for tick loops.
//
// A nil *Metrics is valid and records nothing, so server and client code can
// call its methods unconditionally.
//
// Metrics collected (namespace "tickwire" by default):
//   - remotes_active: Gauge of Remotes held by servers
//   - remotes_accepted_total: Counter of accepted connections
//   - remotes_rejected_total: Counter of connections refused by the factory
//   - remotes_closed_total: Counter of Remotes removed after closing
//   - bytes_sent_total, bytes_received_total: Counters by role
//   - resync_bytes_total: Counter of bytes skipped while resynchronizing
//   - write_errors_total: Counter of failed transport writes by role
//   - rtt_milliseconds: Histogram of RTT estimates by role
//   - tick_sleep_seconds: Histogram of time blocked per tick
//   - tick_overruns_total: Counter of ticks that did not sleep
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Roles used as label values.
const (
	RoleServer = "server"
	RoleClient = "client"
)

// Config configures the collectors.
type Config struct {
	// Namespace is the metrics namespace (default: "tickwire").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// RTTBuckets are the histogram buckets for RTT in milliseconds.
	// Default: 1ms to ~1s, exponential.
	RTTBuckets []float64

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

// WithRTTBuckets sets the RTT histogram buckets.
func WithRTTBuckets(buckets []float64) Option {
	return func(c *Config) {
		c.RTTBuckets = buckets
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
		Namespace:  "tickwire",
		RTTBuckets: prometheus.ExponentialBuckets(1, 2, 11),
		Registry:   prometheus.DefaultRegisterer,
	}
}

// Metrics holds the collectors.
type Metrics struct {
	remotesActive   prometheus.Gauge
	remotesAccepted prometheus.Counter
	remotesRejected prometheus.Counter
	remotesClosed   prometheus.Counter
	bytesSent       *prometheus.CounterVec
	bytesReceived   *prometheus.CounterVec
	resyncBytes     prometheus.Counter
	writeErrors     *prometheus.CounterVec
	rtt             *prometheus.HistogramVec
	tickSleep       prometheus.Histogram
	tickOverruns    prometheus.Counter
}

// New registers the collectors. Registering twice on the same registry
// panics, as with promauto.
func New(opts ...Option) *Metrics {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	counter := func(name, help string) prometheus.Counter {
		return factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: config.ConstLabels,
		})
	}
	byRole := func(name, help string) *prometheus.CounterVec {
		return factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: config.ConstLabels,
		}, []string{"role"})
	}

	return &Metrics{
		remotesActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "remotes_active",
			Help:        "Number of remotes held by servers",
			ConstLabels: config.ConstLabels,
		}),
		remotesAccepted: counter("remotes_accepted_total", "Total connections accepted"),
		remotesRejected: counter("remotes_rejected_total", "Total connections refused by the accept factory"),
		remotesClosed:   counter("remotes_closed_total", "Total remotes removed after closing"),
		bytesSent:       byRole("bytes_sent_total", "Total bytes written to transports"),
		bytesReceived:   byRole("bytes_received_total", "Total bytes read from transports"),
		resyncBytes:     counter("resync_bytes_total", "Total bytes skipped while resynchronizing the frame stream"),
		writeErrors:     byRole("write_errors_total", "Total failed transport writes"),
		rtt: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "rtt_milliseconds",
			Help:        "Smoothed round trip time estimates",
			ConstLabels: config.ConstLabels,
			Buckets:     config.RTTBuckets,
		}, []string{"role"}),
		tickSleep: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "tick_sleep_seconds",
			Help:        "Time blocked at the end of each tick",
			ConstLabels: config.ConstLabels,
			Buckets:     prometheus.ExponentialBuckets(0.0005, 2, 10), // 0.5ms to ~250ms
		}),
		tickOverruns: counter("tick_overruns_total", "Total ticks whose work exceeded the tick duration"),
	}
}

// RemoteAccepted records a new Remote.
func (m *Metrics) RemoteAccepted() {
	if m == nil {
		return
	}
	m.remotesAccepted.Inc()
	m.remotesActive.Inc()
}

// RemoteRejected records a connection the factory refused.
func (m *Metrics) RemoteRejected() {
	if m == nil {
		return
	}
	m.remotesRejected.Inc()
}

// RemotesClosed records n Remotes leaving a server.
func (m *Metrics) RemotesClosed(n int) {
	if m == nil || n == 0 {
		return
	}
	m.remotesClosed.Add(float64(n))
	m.remotesActive.Sub(float64(n))
}

// BytesSent records bytes written by role.
func (m *Metrics) BytesSent(role string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.bytesSent.WithLabelValues(role).Add(float64(n))
}

// BytesReceived records bytes read by role.
func (m *Metrics) BytesReceived(role string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.bytesReceived.WithLabelValues(role).Add(float64(n))
}

// Resynced records bytes skipped by the frame reader.
func (m *Metrics) Resynced(n uint64) {
	if m == nil || n == 0 {
		return
	}
	m.resyncBytes.Add(float64(n))
}

// WriteError records a failed write by role.
func (m *Metrics) WriteError(role string) {
	if m == nil {
		return
	}
	m.writeErrors.WithLabelValues(role).Inc()
}

// ObserveRTT records an RTT estimate in milliseconds.
func (m *Metrics) ObserveRTT(role string, ms float64) {
	if m == nil {
		return
	}
	m.rtt.WithLabelValues(role).Observe(ms)
}

// TickSlept records the time blocked at the end of a tick. Zero counts as
// an overrun.
func (m *Metrics) TickSlept(d time.Duration) {
	if m == nil {
		return
	}
	if d <= 0 {
		m.tickOverruns.Inc()
	}
	m.tickSleep.Observe(d.Seconds())
}
