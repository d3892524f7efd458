// Package client runs the client side of a tick loop.
//
// Unlike a server Remote, a Client writes immediately: Send encodes and
// writes one frame per call. Receive reads whatever arrived and decodes it.
// Sleep answers the clock and paces the loop.
//
//	c := client.New[Msg](tcp.New(nil), codec, nil)
//	if err := c.Connect("127.0.0.1:7564", time.Second); err != nil {
//	    return err
//	}
//	for {
//	    msgs, err := c.Receive()
//	    if err != nil {
//	        return err
//	    }
//	    for msg := range msgs {
//	        handle(msg)
//	    }
//	    c.Send(Input{})
//	    c.Sleep()
//	}
package client

import (
	"context"
	"iter"
	"net"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/tickwire/pkg/clock"
	"github.com/vango-dev/tickwire/pkg/metrics"
	"github.com/vango-dev/tickwire/pkg/protocol"
	"github.com/vango-dev/tickwire/pkg/transport"
)

// Client is a connection to a Server.
//
// A Client is not safe for concurrent use.
type Client[M any] struct {
	proto  transport.Protocol
	config Config

	conn     transport.Conn
	reader   *protocol.FrameReader[M]
	incoming protocol.Buffer
	internal []protocol.Internal
	frame    []byte
	timer    *clock.Timer

	bytesSent     uint64
	bytesReceived uint64
	resynced      uint64
}

// New creates a Client that dials through proto and encodes application
// messages with codec. A nil config uses DefaultConfig.
func New[M any](proto transport.Protocol, codec protocol.Codec[M], config *Config) *Client[M] {
	cfg := config.normalize()
	reader := protocol.NewFrameReader(codec)
	if cfg.MaxPending > 0 {
		reader.MaxPending = cfg.MaxPending
	}
	return &Client[M]{
		proto:  proto,
		config: cfg,
		reader: reader,
		timer:  clock.New(cfg.Clock),
	}
}

// Connect dials addr and resets the tick clock. It returns
// transport.ErrAlreadyExists while a connection is open.
func (c *Client[M]) Connect(addr string, timeout time.Duration) error {
	if c.conn != nil {
		return transport.ErrAlreadyExists
	}

	_, span := c.config.Tracer.Start(context.Background(), "tickwire.connect",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("net.peer.addr", addr)),
	)
	defer span.End()

	conn, err := c.proto.Dial(addr, timeout)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.config.Logger.Debug("connect failed", "addr", addr, "error", err)
		return err
	}
	span.SetStatus(codes.Ok, "")

	c.conn = conn
	c.incoming.Reset()
	c.internal = c.internal[:0]
	c.timer.Reset()
	c.config.Logger.Info("connected", "addr", addr, "tick_rate", c.timer.TickRate())
	return nil
}

// Connected reports whether a connection is open.
func (c *Client[M]) Connected() bool {
	return c.conn != nil
}

// PeerAddr returns the server's address.
func (c *Client[M]) PeerAddr() (net.Addr, error) {
	if c.conn == nil {
		return nil, transport.ErrNotConnected
	}
	return c.conn.PeerAddr()
}

// RTT returns the smoothed round trip time to the server in milliseconds.
func (c *Client[M]) RTT() float64 {
	return c.timer.RTT()
}

// Offset returns the smoothed clock offset to the server in milliseconds.
func (c *Client[M]) Offset() float64 {
	return c.timer.Offset()
}

// Tick returns the client's tick counter.
func (c *Client[M]) Tick() uint8 {
	return c.timer.Tick()
}

// BytesSent returns the bytes written since New.
func (c *Client[M]) BytesSent() uint64 {
	return c.bytesSent
}

// BytesReceived returns the bytes read since New.
func (c *Client[M]) BytesReceived() uint64 {
	return c.bytesReceived
}

// Send encodes m and writes it immediately.
func (c *Client[M]) Send(m M) error {
	if c.conn == nil {
		return transport.ErrNotConnected
	}
	frame, err := protocol.AppendMessage(c.frame[:0], c.reader.Codec, m)
	if err != nil {
		return err
	}
	c.frame = frame
	return c.write(frame)
}

// Receive reads available bytes and returns the application messages
// buffered so far. A read error is returned as is; the connection stays
// open until Disconnect.
func (c *Client[M]) Receive() (iter.Seq[M], error) {
	if c.conn == nil {
		return nil, transport.ErrNotConnected
	}

	n, err := c.conn.Read(&c.incoming)
	if n > 0 {
		c.bytesReceived += uint64(n)
		c.config.Metrics.BytesReceived(metrics.RoleClient, n)
	}
	if err != nil {
		return nil, err
	}
	return c.reader.Messages(&c.incoming, &c.internal), nil
}

// Sleep feeds the internal messages received so far to the clock, sends its
// replies and blocks until the next tick is due. It returns how long it
// blocked.
func (c *Client[M]) Sleep() time.Duration {
	sawPong := false
	for _, m := range c.internal {
		if m.Kind == protocol.KindPong {
			sawPong = true
		}
	}

	out := c.timer.Receive(c.internal)
	c.internal = c.internal[:0]

	if c.conn != nil {
		for _, m := range out {
			c.frame = protocol.AppendInternal(c.frame[:0], m)
			if err := c.write(c.frame); err != nil {
				c.config.Logger.Debug("clock frame dropped", "error", err)
			}
		}
	}

	if sawPong {
		c.config.Metrics.ObserveRTT(metrics.RoleClient, c.timer.RTT())
	}
	if skipped := c.reader.Skipped(); skipped > c.resynced {
		c.config.Metrics.Resynced(skipped - c.resynced)
		c.resynced = skipped
	}

	d := c.timer.Sleep()
	c.config.Metrics.TickSlept(d)
	return d
}

// Disconnect shuts the connection down. It returns
// transport.ErrNotConnected when there is none.
func (c *Client[M]) Disconnect() error {
	if c.conn == nil {
		return transport.ErrNotConnected
	}
	conn := c.conn
	c.conn = nil
	c.config.Logger.Info("disconnected", "bytes_sent", c.bytesSent, "bytes_received", c.bytesReceived)
	return conn.Shutdown()
}

func (c *Client[M]) write(p []byte) error {
	n, err := c.conn.Write(p)
	if n > 0 {
		c.bytesSent += uint64(n)
		c.config.Metrics.BytesSent(metrics.RoleClient, n)
	}
	if err != nil {
		c.config.Metrics.WriteError(metrics.RoleClient)
		return err
	}
	return nil
}
