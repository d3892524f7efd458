package clock

import (
	"testing"
	"time"

	"github.com/vango-dev/tickwire/pkg/protocol"
)

// fakeClock is a manually advanced time source. Sleep advances it.
type fakeClock struct {
	now   time.Time
	slept []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.UnixMilli(1_000_000)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(d time.Duration) {
	c.slept = append(c.slept, d)
	c.now = c.now.Add(d)
}

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func (c *fakeClock) Millis() uint64 { return uint64(c.now.UnixMilli()) }

func newTestTimer(rate uint8, fc *fakeClock) *Timer {
	cfg := DefaultConfig(rate)
	cfg.Now = fc.Now
	cfg.Sleep = fc.Sleep
	return New(cfg)
}

func TestTimerSleepPacing(t *testing.T) {
	tests := []struct {
		name  string
		rate  uint8
		work  []time.Duration
		slept []time.Duration
	}{
		{
			name:  "fast work",
			rate:  25,
			work:  []time.Duration{10 * time.Millisecond, 0, 39 * time.Millisecond},
			slept: []time.Duration{30 * time.Millisecond, 40 * time.Millisecond, time.Millisecond},
		},
		{
			name:  "overrun carried forward",
			rate:  25,
			work:  []time.Duration{100 * time.Millisecond, 0, 0, 0},
			slept: []time.Duration{0, 0, 20 * time.Millisecond, 40 * time.Millisecond},
		},
		{
			name:  "exact tick",
			rate:  10,
			work:  []time.Duration{100 * time.Millisecond},
			slept: []time.Duration{0},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fc := newFakeClock()
			tm := newTestTimer(tc.rate, fc)
			for i, w := range tc.work {
				fc.Advance(w)
				if got := tm.Sleep(); got != tc.slept[i] {
					t.Fatalf("Sleep() #%d = %v, want %v", i, got, tc.slept[i])
				}
			}
		})
	}
}

func TestTimerSleepAveragesTickRate(t *testing.T) {
	fc := newFakeClock()
	tm := newTestTimer(25, fc)
	start := fc.Now()

	// Alternate slow and fast ticks; the loop should still average 40ms.
	for i := 0; i < 50; i++ {
		if i%2 == 0 {
			fc.Advance(60 * time.Millisecond)
		} else {
			fc.Advance(5 * time.Millisecond)
		}
		tm.Sleep()
	}

	if got, want := fc.Now().Sub(start), 50*40*time.Millisecond; got != want {
		t.Fatalf("elapsed = %v, want %v", got, want)
	}
}

func TestTimerPingCadence(t *testing.T) {
	fc := newFakeClock()
	tm := newTestTimer(10, fc) // 100ms ticks, ping interval 800ms

	if out := tm.Receive(nil); len(out) != 0 {
		t.Fatalf("Receive() at start = %v, want no ping", out)
	}

	fc.Advance(800 * time.Millisecond)
	if out := tm.Receive(nil); len(out) != 0 {
		t.Fatalf("Receive() at exactly the interval = %v, want no ping", out)
	}

	fc.Advance(time.Millisecond)
	out := tm.Receive(nil)
	if len(out) != 1 {
		t.Fatalf("Receive() after the interval returned %d messages, want 1", len(out))
	}
	if want := protocol.Ping(2, fc.Millis()); out[0] != want {
		t.Fatalf("Receive() = %v, want %v", out[0], want)
	}

	if out := tm.Receive(nil); len(out) != 0 {
		t.Fatalf("Receive() right after a ping = %v, want none", out)
	}
	if tm.Tick() != 4 {
		t.Fatalf("Tick() = %d, want 4", tm.Tick())
	}
}

func TestTimerAnswersPing(t *testing.T) {
	fc := newFakeClock()
	tm := newTestTimer(30, fc)

	out := tm.Receive([]protocol.Internal{protocol.Ping(7, 123)})
	if len(out) != 1 {
		t.Fatalf("Receive() returned %d messages, want 1", len(out))
	}
	if want := protocol.Pong(7, 123, fc.Millis()); out[0] != want {
		t.Fatalf("Receive() = %v, want %v", out[0], want)
	}
	if tm.RTT() != 0 || tm.Offset() != 0 {
		t.Fatalf("answering a ping changed estimates: rtt=%v offset=%v", tm.RTT(), tm.Offset())
	}
}

func TestTimerPongEstimates(t *testing.T) {
	fc := newFakeClock()
	tm := newTestTimer(10, fc) // tickMs = 100

	for i := 0; i < 5; i++ {
		tm.Receive(nil)
	}

	now := fc.Millis()
	// tickDiff 3: expected = 2*100, actual = 350-100, sample = 225.
	pong := protocol.Pong(2, now-350, now+200)
	tm.Receive([]protocol.Internal{pong})

	if got := tm.RTT(); got != 225 {
		t.Fatalf("RTT() = %v, want 225", got)
	}
	// diff = ((550) + (200)) / 2 = 375, blended at 0.5 with an empty mean.
	if got := tm.Offset(); got != 187.5 {
		t.Fatalf("Offset() = %v, want 187.5", got)
	}
}

func TestTimerRejectsOutlierOffset(t *testing.T) {
	fc := newFakeClock()
	tm := newTestTimer(10, fc)
	tm.Receive(nil)

	// tickDiff 1 so the sample is half the wall clock RTT minus one tick.
	now := fc.Millis()
	tm.Receive([]protocol.Internal{protocol.Pong(tm.Tick()-1, now-300, now)})
	if tm.RTT() != 100 {
		t.Fatalf("RTT() = %v, want 100", tm.RTT())
	}
	if tm.Offset() != 75 {
		t.Fatalf("Offset() = %v, want 75", tm.Offset())
	}

	// Sample 1000 moves the mean to 550; 1000 > 1.5*550 so the offset stays.
	now = fc.Millis()
	tm.Receive([]protocol.Internal{protocol.Pong(tm.Tick()-1, now-2100, now+5000)})
	if tm.RTT() != 550 {
		t.Fatalf("RTT() = %v, want 550", tm.RTT())
	}
	if tm.Offset() != 75 {
		t.Fatalf("Offset() = %v after outlier, want 75", tm.Offset())
	}
}

func TestTimerPongSaturates(t *testing.T) {
	fc := newFakeClock()
	tm := newTestTimer(10, fc)

	// Same tick and a send time in the future: both terms clamp to zero.
	now := fc.Millis()
	tm.Receive([]protocol.Internal{protocol.Pong(tm.Tick(), now+50, now)})
	if tm.RTT() != 0 {
		t.Fatalf("RTT() = %v, want 0", tm.RTT())
	}
}

func TestTimerTickWraps(t *testing.T) {
	fc := newFakeClock()
	tm := newTestTimer(30, fc)
	for i := 0; i < 256; i++ {
		tm.Receive(nil)
	}
	if tm.Tick() != 0 {
		t.Fatalf("Tick() = %d after 256 ticks, want 0", tm.Tick())
	}

	tm.Receive(nil) // tick 1
	now := fc.Millis()
	// Ping sent at tick 255: tickDiff wraps to 2, expected = 33.
	tm.Receive([]protocol.Internal{protocol.Pong(255, now-33, now)})
	if got := tm.RTT(); got != 16.5 {
		t.Fatalf("RTT() = %v, want 16.5", got)
	}
}

func TestTimerAdvance(t *testing.T) {
	fc := newFakeClock()
	tm := newTestTimer(30, fc)
	fc.Advance(time.Second)
	for i := 0; i < 300; i++ {
		tm.Advance()
	}
	if got := tm.Tick(); got != uint8(300%256) {
		t.Fatalf("Tick() = %d after 300 advances, want %d", got, 300%256)
	}
	// Advance never sends, so the first Receive still owes a Ping.
	out := tm.Receive(nil)
	if len(out) != 1 || out[0].Kind != protocol.KindPing || out[0].Tick != 44 {
		t.Fatalf("Receive() = %+v, want one Ping at tick 44", out)
	}
}

func TestTimerCloneAndReset(t *testing.T) {
	fc := newFakeClock()
	tm := newTestTimer(20, fc)
	for i := 0; i < 9; i++ {
		tm.Receive(nil)
	}
	now := fc.Millis()
	tm.Receive([]protocol.Internal{protocol.Pong(0, now-400, now)})
	if tm.RTT() == 0 {
		t.Fatal("RTT() = 0, want an estimate before cloning")
	}

	c := tm.Clone()
	if c.Tick() != tm.Tick() || c.TickRate() != tm.TickRate() {
		t.Fatalf("Clone() tick/rate = %d/%d, want %d/%d", c.Tick(), c.TickRate(), tm.Tick(), tm.TickRate())
	}
	if c.RTT() != 0 || c.Offset() != 0 {
		t.Fatalf("Clone() kept estimates: rtt=%v offset=%v", c.RTT(), c.Offset())
	}

	tm.Reset()
	if tm.Tick() != 0 || tm.RTT() != 0 || tm.Offset() != 0 || tm.Backlog() != 0 {
		t.Fatalf("Reset() left state: tick=%d rtt=%v offset=%v backlog=%v", tm.Tick(), tm.RTT(), tm.Offset(), tm.Backlog())
	}
	if c.Tick() == 0 {
		t.Fatal("Reset() on the original affected the clone")
	}
}

func TestConfigDefaults(t *testing.T) {
	tm := New(Config{})
	cfg := tm.Config()
	if cfg.TickRate != DefaultTickRate || cfg.WindowSize != DefaultWindowSize || cfg.PingEvery != DefaultPingEvery {
		t.Fatalf("New(Config{}) config = %+v", cfg)
	}
	if cfg.RTTRatio != 1.0 || cfg.OffsetRatio != 0.5 || cfg.OutlierFactor != 1.5 {
		t.Fatalf("New(Config{}) ratios = %v/%v/%v", cfg.RTTRatio, cfg.OffsetRatio, cfg.OutlierFactor)
	}
	if tm.TickDuration() != time.Second/30 {
		t.Fatalf("TickDuration() = %v", tm.TickDuration())
	}
}
