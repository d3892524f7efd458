package client

import (
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/tickwire/pkg/clock"
	"github.com/vango-dev/tickwire/pkg/metrics"
)

// Config holds configuration for a Client.
type Config struct {
	// TickRate is the number of ticks per second. It overrides
	// Clock.TickRate.
	// Default: 30.
	TickRate uint8

	// Clock configures the client timer. Zero fields use
	// clock.DefaultConfig.
	Clock clock.Config

	// MaxPending bounds a truncated frame kept waiting for more bytes.
	// Default: protocol.DefaultMaxPending.
	MaxPending int

	// Logger receives connection events.
	// Default: slog.Default() with component=client.
	Logger *slog.Logger

	// Metrics records counters. Nil disables metrics.
	Metrics *metrics.Metrics

	// Tracer starts a span for each Connect.
	// Default: otel.Tracer("tickwire").
	Tracer trace.Tracer
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		TickRate: clock.DefaultTickRate,
		Clock:    clock.DefaultConfig(clock.DefaultTickRate),
	}
}

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
	out.Logger = out.Logger.With("component", "client")
	if out.Tracer == nil {
		out.Tracer = otel.Tracer("tickwire")
	}
	return out
}
