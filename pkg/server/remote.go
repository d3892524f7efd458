package server

import (
	"context"
	"iter"
	"log/slog"
	"net"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/tickwire/pkg/clock"
	"github.com/vango-dev/tickwire/pkg/metrics"
	"github.com/vango-dev/tickwire/pkg/protocol"
	"github.com/vango-dev/tickwire/pkg/transport"
)

// State is the lifecycle position of a Remote.
type State uint8

const (
	// StateAccepted is a Remote created during this tick's accept phase.
	StateAccepted State = iota

	// StateConnected is a Remote that has been read at least once.
	StateConnected

	// StateClosing is a Remote whose close was requested. Its transport is
	// shut down at the next write phase.
	StateClosing

	// StateClosed is a Remote whose transport has been shut down.
	StateClosed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateAccepted:
		return "Accepted"
	case StateConnected:
		return "Connected"
	case StateClosing:
		return "Closing"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Remote is the server side of one client connection.
//
// A Remote buffers everything: Send appends to an outgoing buffer that is
// flushed in the server's Closed phase, and reads happen in the Connected
// phase. Receive only decodes what was already read.
type Remote[M any] struct {
	id    uuid.UUID
	conn  transport.Conn
	peer  net.Addr
	state State

	reader   *protocol.FrameReader[M]
	incoming protocol.Buffer
	outgoing []byte
	internal []protocol.Internal
	timer    *clock.Timer

	bytesSent     uint64
	bytesReceived uint64
	resynced      uint64
	closeErr      error

	ctx     context.Context
	span    trace.Span
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func newRemote[M any](conn transport.Conn, peer net.Addr, codec protocol.Codec[M], timer *clock.Timer, s *serverDeps) *Remote[M] {
	id := uuid.New()
	reader := protocol.NewFrameReader(codec)
	if s.maxPending > 0 {
		reader.MaxPending = s.maxPending
	}

	ctx, span := s.tracer.Start(context.Background(), "tickwire.remote",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("tickwire.remote_id", id.String()),
			attribute.String("net.peer.addr", peer.String()),
		),
	)

	return &Remote[M]{
		id:      id,
		conn:    conn,
		peer:    peer,
		state:   StateAccepted,
		reader:  reader,
		timer:   timer,
		ctx:     ctx,
		span:    span,
		logger:  s.logger.With("remote_id", id.String(), "addr", peer.String()),
		metrics: s.metrics,
	}
}

// ID returns the identifier assigned at accept time.
func (r *Remote[M]) ID() uuid.UUID {
	return r.id
}

// State returns the lifecycle state.
func (r *Remote[M]) State() State {
	return r.state
}

// PeerAddr returns the client's address.
func (r *Remote[M]) PeerAddr() net.Addr {
	return r.peer
}

// RTT returns the smoothed round trip time to the client in milliseconds.
func (r *Remote[M]) RTT() float64 {
	return r.timer.RTT()
}

// Offset returns the smoothed clock offset to the client in milliseconds.
func (r *Remote[M]) Offset() float64 {
	return r.timer.Offset()
}

// Tick returns the Remote's tick counter. It starts at the Server's tick
// when the connection is accepted.
func (r *Remote[M]) Tick() uint8 {
	return r.timer.Tick()
}

// BytesSent returns the bytes written to the transport.
func (r *Remote[M]) BytesSent() uint64 {
	return r.bytesSent
}

// BytesReceived returns the bytes read from the transport.
func (r *Remote[M]) BytesReceived() uint64 {
	return r.bytesReceived
}

// Context returns a context carrying the Remote's trace span. Spans
// started from it become children of the connection's lifetime span.
func (r *Remote[M]) Context() context.Context {
	return r.ctx
}

// Send queues m for the next write phase. It fails with an error wrapping
// protocol.ErrInvalidData if m cannot be encoded; nothing is queued then.
func (r *Remote[M]) Send(m M) error {
	out, err := protocol.AppendMessage(r.outgoing, r.reader.Codec, m)
	if err != nil {
		return err
	}
	r.outgoing = out
	return nil
}

// Receive returns the application messages read so far. Internal messages
// found on the way are queued for the clock.
func (r *Remote[M]) Receive() iter.Seq[M] {
	return r.reader.Messages(&r.incoming, &r.internal)
}

// Close requests the connection to be shut down at the next write phase.
// It returns transport.ErrNotConnected if the Remote is already closing.
func (r *Remote[M]) Close() error {
	switch r.state {
	case StateAccepted, StateConnected:
		r.state = StateClosing
		return nil
	default:
		return transport.ErrNotConnected
	}
}

// read promotes an accepted Remote and pulls available bytes. A transport
// error requests a close; the shutdown itself happens in write.
func (r *Remote[M]) read() {
	if r.state == StateAccepted {
		r.state = StateConnected
	}

	n, err := r.conn.Read(&r.incoming)
	if n > 0 {
		r.bytesReceived += uint64(n)
		r.metrics.BytesReceived(metrics.RoleServer, n)
	}
	if err != nil {
		if r.Close() == nil {
			r.closeErr = err
			r.logger.Debug("read failed, closing", "error", err)
		}
	}
}

// write answers the clock, flushes the outgoing buffer and completes a
// pending close. Bytes the transport did not accept stay queued.
func (r *Remote[M]) write() {
	sawPong := false
	for _, m := range r.internal {
		if m.Kind == protocol.KindPong {
			sawPong = true
		}
	}
	for _, m := range r.timer.Receive(r.internal) {
		r.outgoing = protocol.AppendInternal(r.outgoing, m)
	}
	r.internal = r.internal[:0]
	if sawPong {
		r.metrics.ObserveRTT(metrics.RoleServer, r.timer.RTT())
	}

	if skipped := r.reader.Skipped(); skipped > r.resynced {
		r.metrics.Resynced(skipped - r.resynced)
		r.logger.Debug("resynchronized frame stream", "skipped", skipped-r.resynced)
		r.resynced = skipped
	}

	if len(r.outgoing) > 0 && r.state != StateClosed {
		n, err := r.conn.Write(r.outgoing)
		if n > 0 {
			r.outgoing = r.outgoing[:copy(r.outgoing, r.outgoing[n:])]
			r.bytesSent += uint64(n)
			r.metrics.BytesSent(metrics.RoleServer, n)
		}
		if err != nil {
			r.metrics.WriteError(metrics.RoleServer)
			r.logger.Debug("write failed, retrying next tick", "error", err, "pending", len(r.outgoing))
		}
	}

	r.finishClose()
}

// finishClose shuts the transport down if a close was requested.
func (r *Remote[M]) finishClose() {
	if r.state != StateClosing {
		return
	}
	if err := r.conn.Shutdown(); err != nil {
		r.logger.Debug("shutdown failed", "error", err)
	}
	r.state = StateClosed

	r.span.SetAttributes(
		attribute.Int64("tickwire.bytes_sent", int64(r.bytesSent)),
		attribute.Int64("tickwire.bytes_received", int64(r.bytesReceived)),
		attribute.Float64("tickwire.rtt_ms", r.timer.RTT()),
	)
	if r.closeErr != nil && !transport.IsClosed(r.closeErr) {
		r.span.RecordError(r.closeErr)
		r.span.SetStatus(codes.Error, r.closeErr.Error())
	} else {
		r.span.SetStatus(codes.Ok, "")
	}
	r.span.End()

	r.logger.Debug("remote closed", "bytes_sent", r.bytesSent, "bytes_received", r.bytesReceived)
}
