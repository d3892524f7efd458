// Package clock keeps peers of a tick loop in step.
//
// Each peer owns a Timer. Once per tick the Timer consumes the internal
// messages received from its peer and produces the ones to send back:
//
//   - every PingEvery ticks it emits Ping(tick, now)
//   - a Ping is answered with Pong(tick, echoedTime, now)
//   - a Pong yields an RTT sample, and if the sample is not an outlier, a
//     clock offset sample
//
// RTT samples combine the tick distance and the wall clock distance of the
// exchange, minus one tick for the peer's own processing delay:
//
//	expected = max(tickDiff-1, 0) * tickMs
//	actual   = max(now - sendTime - tickMs, 0)
//	sample   = (expected + actual) / 2
//
// Both estimates are MovingAverages. RTT samples replace (ratio 1.0), offset
// samples are blended with the running mean (ratio 0.5).
//
// Sleep paces the loop: it blocks for whatever is left of the tick after the
// caller's work and carries overruns forward instead of shortening later
// ticks.
package clock
