package server

import (
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/tickwire/pkg/clock"
	"github.com/vango-dev/tickwire/pkg/metrics"
)

// defaultTracerName names the tracer used when Config.Tracer is nil.
const defaultTracerName = "tickwire"

// Config holds configuration for a Server.
type Config struct {
	// TickRate is the number of ticks per second. It overrides
	// Clock.TickRate.
	// Default: 30.
	TickRate uint8

	// Clock configures the reference timer and every Remote's timer.
	// Zero fields use clock.DefaultConfig.
	Clock clock.Config

	// MaxPending bounds a truncated frame kept waiting for more bytes.
	// Default: protocol.DefaultMaxPending.
	MaxPending int

	// Logger receives lifecycle events.
	// Default: slog.Default() with component=server.
	Logger *slog.Logger

	// Metrics records counters. Nil disables metrics.
	Metrics *metrics.Metrics

	// TracerName names the tracer obtained from the global provider when
	// Tracer is nil.
	// Default: "tickwire".
	TracerName string

	// Tracer starts one span per Remote covering its lifetime.
	// Default: otel.Tracer(TracerName).
	Tracer trace.Tracer
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		TickRate:   clock.DefaultTickRate,
		Clock:      clock.DefaultConfig(clock.DefaultTickRate),
		TracerName: defaultTracerName,
	}
}

// normalize fills unset fields and returns a copy.
func (c *Config) normalize() Config {
	if c == nil {
		c = DefaultConfig()
	}
	out := *c
	if out.TickRate == 0 {
		out.TickRate = out.Clock.TickRate
	}
	if out.TickRate == 0 {
		out.TickRate = clock.DefaultTickRate
	}
	out.Clock.TickRate = out.TickRate
	if out.Logger == nil {
		out.Logger = slog.Default()
	}
	out.Logger = out.Logger.With("component", "server")
	if out.TracerName == "" {
		out.TracerName = defaultTracerName
	}
	if out.Tracer == nil {
		out.Tracer = otel.Tracer(out.TracerName)
	}
	return out
}

// serverDeps is the part of the configuration each Remote shares.
type serverDeps struct {
	logger     *slog.Logger
	metrics    *metrics.Metrics
	tracer     trace.Tracer
	maxPending int
}
