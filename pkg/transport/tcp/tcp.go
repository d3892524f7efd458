// Package tcp implements transport.Protocol over TCP.
//
// Go sockets are blocking, so non-blocking Accept and Read are emulated with
// short deadlines: a call waits at most Options.PollTimeout for data that is
// not already buffered by the kernel. Nagle's algorithm is disabled on every
// connection so that a tick's worth of frames leaves immediately.
package tcp

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"github.com/vango-dev/tickwire/pkg/protocol"
	"github.com/vango-dev/tickwire/pkg/transport"
)

// Options configures the TCP backend.
type Options struct {
	// PollTimeout bounds how long Accept and Read wait when nothing is
	// ready.
	// Default: 100µs.
	PollTimeout time.Duration

	// WriteTimeout bounds a single Write.
	// Default: 1 second.
	WriteTimeout time.Duration

	// KeepAlive is the TCP keep-alive period. Negative disables it.
	// Default: 15 seconds.
	KeepAlive time.Duration

	// ReadChunk is how much buffer space is reserved per read syscall.
	// Default: 4KB.
	ReadChunk int
}

// DefaultOptions returns Options with sensible defaults.
func DefaultOptions() *Options {
	return &Options{
		PollTimeout:  100 * time.Microsecond,
		WriteTimeout: time.Second,
		KeepAlive:    15 * time.Second,
		ReadChunk:    4 * 1024,
	}
}

// Protocol is the TCP transport.
type Protocol struct {
	opts Options
}

var _ transport.Protocol = (*Protocol)(nil)

// New creates a TCP transport. Nil or zero fields use DefaultOptions.
func New(opts *Options) *Protocol {
	defaults := DefaultOptions()
	if opts == nil {
		opts = defaults
	}
	o := *opts
	if o.PollTimeout <= 0 {
		o.PollTimeout = defaults.PollTimeout
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = defaults.WriteTimeout
	}
	if o.KeepAlive == 0 {
		o.KeepAlive = defaults.KeepAlive
	}
	if o.ReadChunk <= 0 {
		o.ReadChunk = defaults.ReadChunk
	}
	return &Protocol{opts: o}
}

// Bind listens on addr.
func (p *Protocol) Bind(addr string) (transport.Host, error) {
	lc := net.ListenConfig{KeepAlive: p.opts.KeepAlive}
	ln, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return nil, transport.NewOpError("bind", nil, err)
	}
	return &Host{ln: ln.(*net.TCPListener), opts: p.opts}, nil
}

// Dial connects to addr.
func (p *Protocol) Dial(addr string, timeout time.Duration) (transport.Conn, error) {
	raddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, transport.NewOpError("dial", nil, errors.Join(transport.ErrAddrNotAvailable, err))
	}

	d := net.Dialer{Timeout: timeout, KeepAlive: p.opts.KeepAlive}
	c, err := d.Dial("tcp", raddr.String())
	if err != nil {
		return nil, transport.NewOpError("dial", raddr, err)
	}
	return newConn(c.(*net.TCPConn), p.opts), nil
}

// Host is a TCP listener.
type Host struct {
	ln   *net.TCPListener
	opts Options
}

// Accept returns a pending connection or transport.ErrWouldBlock.
func (h *Host) Accept() (transport.Conn, error) {
	if err := h.ln.SetDeadline(time.Now().Add(h.opts.PollTimeout)); err != nil {
		return nil, transport.NewOpError("accept", h.ln.Addr(), err)
	}
	c, err := h.ln.AcceptTCP()
	if err != nil {
		if isTimeout(err) {
			return nil, transport.ErrWouldBlock
		}
		return nil, transport.NewOpError("accept", h.ln.Addr(), err)
	}
	return newConn(c, h.opts), nil
}

// Addr returns the listening address.
func (h *Host) Addr() net.Addr {
	return h.ln.Addr()
}

// Shutdown closes the listener.
func (h *Host) Shutdown() error {
	if err := h.ln.Close(); err != nil {
		return transport.NewOpError("shutdown", h.ln.Addr(), err)
	}
	return nil
}

// Conn is a TCP connection.
type Conn struct {
	conn *net.TCPConn
	opts Options
	peer net.Addr
}

func newConn(c *net.TCPConn, opts Options) *Conn {
	_ = c.SetNoDelay(true)
	return &Conn{conn: c, opts: opts, peer: c.RemoteAddr()}
}

// PeerAddr returns the remote address.
func (c *Conn) PeerAddr() (net.Addr, error) {
	if c.peer == nil {
		return nil, transport.ErrNotConnected
	}
	return c.peer, nil
}

// Read appends all immediately available bytes to buf.
func (c *Conn) Read(buf *protocol.Buffer) (int, error) {
	total := 0
	for {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.opts.PollTimeout)); err != nil {
			return total, transport.NewOpError("read", c.peer, err)
		}

		p := buf.Reserve(c.opts.ReadChunk)
		n, err := c.conn.Read(p)
		buf.Commit(n)
		total += n

		switch {
		case err == nil:
			if n < len(p) {
				return total, nil
			}
		case isTimeout(err):
			return total, nil
		case errors.Is(err, io.EOF):
			if total > 0 {
				return total, nil
			}
			_ = c.conn.Close()
			return 0, transport.NewOpError("read", c.peer, transport.ErrConnectionReset)
		default:
			return total, transport.NewOpError("read", c.peer, err)
		}
	}
}

// Write sends p within WriteTimeout.
func (c *Conn) Write(p []byte) (int, error) {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
		return 0, transport.NewOpError("write", c.peer, err)
	}
	n, err := c.conn.Write(p)
	if err != nil {
		return n, transport.NewOpError("write", c.peer, err)
	}
	return n, nil
}

// Shutdown closes the connection.
func (c *Conn) Shutdown() error {
	if err := c.conn.Close(); err != nil {
		if errors.Is(err, net.ErrClosed) {
			return transport.NewOpError("shutdown", c.peer, transport.ErrNotConnected)
		}
		return transport.NewOpError("shutdown", c.peer, err)
	}
	return nil
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
