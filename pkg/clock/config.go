package clock

import "time"

// Defaults for Config.
const (
	// DefaultTickRate is the tick rate used when none is configured.
	DefaultTickRate = 30

	// DefaultWindowSize is the number of samples kept by the RTT and
	// offset estimators.
	DefaultWindowSize = 16

	// DefaultPingEvery is the number of ticks between Pings.
	DefaultPingEvery = 8

	// DefaultOutlierFactor rejects offset samples whose RTT exceeds
	// 1.5 times the running RTT.
	DefaultOutlierFactor = 1.5
)

// Config configures a Timer.
type Config struct {
	// TickRate is the number of ticks per second (1-255).
	// Default: 30.
	TickRate uint8

	// WindowSize is the moving average window of both estimators.
	// Default: 16.
	WindowSize int

	// PingEvery is the number of tick durations between Pings.
	// Default: 8.
	PingEvery int

	// RTTRatio is the weight of a new RTT sample. 1 replaces, lower values
	// blend with the running mean.
	// Default: 1.0.
	RTTRatio float64

	// OffsetRatio is the weight of a new clock offset sample.
	// Default: 0.5.
	OffsetRatio float64

	// OutlierFactor bounds the RTT of samples used for the clock offset.
	// Default: 1.5.
	OutlierFactor float64

	// Now returns the current time. Default: time.Now.
	Now func() time.Time

	// Sleep blocks the caller. Default: time.Sleep.
	Sleep func(time.Duration)
}

// DefaultConfig returns a Config for the given tick rate with all other
// fields at their defaults.
func DefaultConfig(tickRate uint8) Config {
	if tickRate == 0 {
		tickRate = DefaultTickRate
	}
	return Config{
		TickRate:      tickRate,
		WindowSize:    DefaultWindowSize,
		PingEvery:     DefaultPingEvery,
		RTTRatio:      1.0,
		OffsetRatio:   0.5,
		OutlierFactor: DefaultOutlierFactor,
		Now:           time.Now,
		Sleep:         time.Sleep,
	}
}

// withDefaults fills unset fields.
func (c Config) withDefaults() Config {
	defaults := DefaultConfig(c.TickRate)
	c.TickRate = defaults.TickRate
	if c.WindowSize <= 0 {
		c.WindowSize = defaults.WindowSize
	}
	if c.PingEvery <= 0 {
		c.PingEvery = defaults.PingEvery
	}
	if c.RTTRatio == 0 {
		c.RTTRatio = defaults.RTTRatio
	}
	if c.OffsetRatio == 0 {
		c.OffsetRatio = defaults.OffsetRatio
	}
	if c.OutlierFactor == 0 {
		c.OutlierFactor = defaults.OutlierFactor
	}
	if c.Now == nil {
		c.Now = defaults.Now
	}
	if c.Sleep == nil {
		c.Sleep = defaults.Sleep
	}
	return c
}
