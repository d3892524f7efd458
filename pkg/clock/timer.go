package clock

import (
	"time"

	"github.com/vango-dev/tickwire/pkg/protocol"
)

// Timer owns one peer's view of time: the tick counter, the RTT and clock
// offset estimates derived from Ping/Pong exchanges, and the pacing state
// that keeps a loop at its tick rate.
//
// A Timer belongs to exactly one Client, Remote or Server and is not safe
// for concurrent use.
type Timer struct {
	config Config

	tick   uint8
	rtt    *MovingAverage
	offset *MovingAverage

	lastPing    time.Time
	lastWait    time.Time
	accumulated time.Duration
}

// New creates a Timer. Zero fields of config are filled from DefaultConfig.
func New(config Config) *Timer {
	config = config.withDefaults()
	now := config.Now()
	return &Timer{
		config:   config,
		rtt:      NewMovingAverage(config.WindowSize),
		offset:   NewMovingAverage(config.WindowSize),
		lastPing: now,
		lastWait: now,
	}
}

// Clone returns a Timer with the same configuration, tick and tick rate but
// fresh estimators and pacing state. A Server derives one per accepted
// Remote from its own reference Timer.
func (t *Timer) Clone() *Timer {
	c := New(t.config)
	c.tick = t.tick
	return c
}

// Reset zeroes the tick counter, estimators and pacing state.
func (t *Timer) Reset() {
	now := t.config.Now()
	t.tick = 0
	t.rtt = NewMovingAverage(t.config.WindowSize)
	t.offset = NewMovingAverage(t.config.WindowSize)
	t.lastPing = now
	t.lastWait = now
	t.accumulated = 0
}

// RTT returns the smoothed round trip time in milliseconds.
func (t *Timer) RTT() float64 {
	return t.rtt.Get()
}

// Offset returns the smoothed clock offset to the peer in milliseconds.
// Positive values mean the peer's clock is ahead.
func (t *Timer) Offset() float64 {
	return t.offset.Get()
}

// Tick returns the current tick counter.
func (t *Timer) Tick() uint8 {
	return t.tick
}

// TickRate returns the configured ticks per second.
func (t *Timer) TickRate() uint8 {
	return t.config.TickRate
}

// TickDuration returns the length of one tick.
func (t *Timer) TickDuration() time.Duration {
	return time.Second / time.Duration(t.config.TickRate)
}

// Config returns the normalized configuration.
func (t *Timer) Config() Config {
	return t.config
}

// tickMillis is the tick length in whole milliseconds, as used on the wire.
func (t *Timer) tickMillis() uint64 {
	return 1000 / uint64(t.config.TickRate)
}

// Receive processes the internal messages that arrived during this tick and
// returns the ones to send back, then advances the tick counter. It must be
// called exactly once per tick, even with no input, so that Pings go out.
func (t *Timer) Receive(incoming []protocol.Internal) []protocol.Internal {
	now := t.config.Now()
	nowMs := unixMillis(now)

	var outgoing []protocol.Internal

	interval := time.Duration(uint64(t.config.PingEvery)*t.tickMillis()) * time.Millisecond
	if now.Sub(t.lastPing) > interval {
		outgoing = append(outgoing, protocol.Ping(t.tick, nowMs))
		t.lastPing = now
	}

	for _, m := range incoming {
		switch m.Kind {
		case protocol.KindPing:
			outgoing = append(outgoing, protocol.Pong(m.Tick, m.SendTime, nowMs))
		case protocol.KindPong:
			t.observe(m, nowMs)
		}
	}

	t.tick++
	return outgoing
}

// Advance moves the tick counter forward without exchanging clock
// messages. A Server's reference Timer has no peer and is advanced this way.
func (t *Timer) Advance() {
	t.tick++
}

// observe folds one Pong into the estimators.
func (t *Timer) observe(pong protocol.Internal, nowMs uint64) {
	tickMs := t.tickMillis()
	tickDiff := uint64(t.tick - pong.Tick)

	expected := float64(saturatingSub(tickDiff, 1) * tickMs)
	actual := float64(saturatingSub(saturatingSub(nowMs, pong.SendTime), tickMs))
	sample := (expected + actual) / 2

	t.rtt.Update(sample, t.config.RTTRatio)

	// Samples far above the running average are not trusted for the offset.
	if sample <= t.rtt.Get()*t.config.OutlierFactor {
		reply := float64(pong.ReplyTime)
		diff := ((reply - float64(pong.SendTime)) + (reply - float64(nowMs))) / 2
		t.offset.Update(diff, t.config.OffsetRatio)
	}
}

// Sleep blocks for the remainder of the current tick and returns how long it
// blocked.
//
// Time spent since the previous call counts against the tick. When a tick
// overruns, Sleep returns immediately and carries the overrun into the next
// tick; ticks then run back to back until the backlog is gone.
func (t *Timer) Sleep() time.Duration {
	desired := t.TickDuration()
	t.accumulated += t.config.Now().Sub(t.lastWait)

	var slept time.Duration
	if t.accumulated <= desired {
		slept = desired - t.accumulated
		t.config.Sleep(slept)
		t.accumulated = 0
	} else {
		t.accumulated -= desired
	}

	t.lastWait = t.config.Now()
	return slept
}

// Backlog returns the overrun carried into the next tick.
func (t *Timer) Backlog() time.Duration {
	return t.accumulated
}

func unixMillis(t time.Time) uint64 {
	ms := t.UnixMilli()
	if ms < 0 {
		return 0
	}
	return uint64(ms)
}

func saturatingSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}
