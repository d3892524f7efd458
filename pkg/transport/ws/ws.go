// Package ws implements transport.Protocol over WebSocket binary messages.
//
// The tick stream is carried as a sequence of binary messages. Message
// boundaries carry no meaning: the frame reader re-parses the concatenated
// bytes, so one Write may be split or merged freely by intermediaries.
//
// A Host serves the upgrade endpoint through a chi router on its own
// http.Server. Upgraded connections are queued and handed out by Accept.
// Each Conn runs one reader goroutine that collects incoming payloads so
// that Read never blocks.
package ws

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/vango-dev/tickwire/pkg/protocol"
	"github.com/vango-dev/tickwire/pkg/transport"
)

// Options configures the WebSocket backend.
type Options struct {
	// Path is the upgrade endpoint.
	// Default: "/tick".
	Path string

	// ReadBufferSize is the I/O buffer size for reading.
	// Default: 4096.
	ReadBufferSize int

	// WriteBufferSize is the I/O buffer size for writing.
	// Default: 4096.
	WriteBufferSize int

	// MaxMessageSize is the largest accepted incoming message.
	// Default: 1MB.
	MaxMessageSize int64

	// WriteTimeout bounds a single Write.
	// Default: 1 second.
	WriteTimeout time.Duration

	// Backlog is how many upgraded connections may wait for Accept. Further
	// upgrades are closed immediately.
	// Default: 128.
	Backlog int

	// CheckOrigin validates the Origin header of upgrade requests.
	// Default: accept all origins.
	CheckOrigin func(r *http.Request) bool

	// Logger receives upgrade failures.
	// Default: slog.Default().
	Logger *slog.Logger
}

// DefaultOptions returns Options with sensible defaults.
func DefaultOptions() *Options {
	return &Options{
		Path:            "/tick",
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		MaxMessageSize:  1 << 20,
		WriteTimeout:    time.Second,
		Backlog:         128,
		CheckOrigin:     func(r *http.Request) bool { return true },
		Logger:          slog.Default(),
	}
}

// Protocol is the WebSocket transport.
type Protocol struct {
	opts Options
}

var _ transport.Protocol = (*Protocol)(nil)

// New creates a WebSocket transport. Nil or zero fields use DefaultOptions.
func New(opts *Options) *Protocol {
	defaults := DefaultOptions()
	if opts == nil {
		opts = defaults
	}
	o := *opts
	if o.Path == "" {
		o.Path = defaults.Path
	}
	if o.ReadBufferSize == 0 {
		o.ReadBufferSize = defaults.ReadBufferSize
	}
	if o.WriteBufferSize == 0 {
		o.WriteBufferSize = defaults.WriteBufferSize
	}
	if o.MaxMessageSize == 0 {
		o.MaxMessageSize = defaults.MaxMessageSize
	}
	if o.WriteTimeout == 0 {
		o.WriteTimeout = defaults.WriteTimeout
	}
	if o.Backlog <= 0 {
		o.Backlog = defaults.Backlog
	}
	if o.CheckOrigin == nil {
		o.CheckOrigin = defaults.CheckOrigin
	}
	if o.Logger == nil {
		o.Logger = defaults.Logger
	}
	o.Logger = o.Logger.With("component", "ws")
	return &Protocol{opts: o}
}

// Bind starts an HTTP server on addr serving the upgrade endpoint.
func (p *Protocol) Bind(addr string) (transport.Host, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, transport.NewOpError("bind", nil, err)
	}

	h := &Host{
		ln:      ln,
		opts:    p.opts,
		pending: make(chan *Conn, p.opts.Backlog),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  p.opts.ReadBufferSize,
			WriteBufferSize: p.opts.WriteBufferSize,
			CheckOrigin:     p.opts.CheckOrigin,
		},
	}

	r := chi.NewRouter()
	r.Get(p.opts.Path, h.handleUpgrade)
	h.srv = &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := h.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			p.opts.Logger.Warn("http server stopped", "addr", ln.Addr().String(), "error", err)
		}
	}()

	return h, nil
}

// Dial performs the WebSocket handshake with addr.
func (p *Protocol) Dial(addr string, timeout time.Duration) (transport.Conn, error) {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return nil, transport.NewOpError("dial", nil, errors.Join(transport.ErrAddrNotAvailable, err))
	}

	u := url.URL{Scheme: "ws", Host: addr, Path: p.opts.Path}
	dialer := websocket.Dialer{
		NetDial:          (&net.Dialer{Timeout: timeout}).Dial,
		HandshakeTimeout: timeout,
		ReadBufferSize:   p.opts.ReadBufferSize,
		WriteBufferSize:  p.opts.WriteBufferSize,
	}

	c, resp, err := dialer.Dial(u.String(), nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, transport.NewOpError("dial", nil, fmt.Errorf("%s: %w", u.String(), err))
	}
	return newConn(c, p.opts), nil
}

// Host is a bound WebSocket endpoint.
type Host struct {
	ln       net.Listener
	srv      *http.Server
	opts     Options
	upgrader websocket.Upgrader
	pending  chan *Conn
	closed   atomic.Bool
}

func (h *Host) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	if h.closed.Load() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	c, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.opts.Logger.Debug("upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	conn := newConn(c, h.opts)
	select {
	case h.pending <- conn:
	default:
		h.opts.Logger.Warn("accept backlog full, dropping connection", "remote", r.RemoteAddr)
		conn.Shutdown()
	}
}

// Accept returns an upgraded connection or transport.ErrWouldBlock.
func (h *Host) Accept() (transport.Conn, error) {
	if h.closed.Load() {
		return nil, transport.NewOpError("accept", h.ln.Addr(), transport.ErrNotConnected)
	}
	select {
	case c := <-h.pending:
		return c, nil
	default:
		return nil, transport.ErrWouldBlock
	}
}

// Addr returns the listening address.
func (h *Host) Addr() net.Addr {
	return h.ln.Addr()
}

// Shutdown stops the HTTP server and closes connections that were never
// accepted.
func (h *Host) Shutdown() error {
	if h.closed.Swap(true) {
		return transport.NewOpError("shutdown", h.ln.Addr(), transport.ErrNotConnected)
	}
	err := h.srv.Close()
	for {
		select {
		case c := <-h.pending:
			c.Shutdown()
		default:
			if err != nil {
				return transport.NewOpError("shutdown", h.ln.Addr(), err)
			}
			return nil
		}
	}
}

// Conn is a WebSocket connection presented as a byte stream.
type Conn struct {
	ws   *websocket.Conn
	opts Options
	peer net.Addr

	mu      sync.Mutex
	pending []byte
	err     error

	shutdown atomic.Bool
}

func newConn(c *websocket.Conn, opts Options) *Conn {
	c.SetReadLimit(opts.MaxMessageSize)
	conn := &Conn{ws: c, opts: opts, peer: c.RemoteAddr()}
	go conn.readLoop()
	return conn
}

// readLoop collects binary payloads until the connection fails.
func (c *Conn) readLoop() {
	for {
		typ, data, err := c.ws.ReadMessage()
		if err != nil {
			c.mu.Lock()
			c.err = err
			c.mu.Unlock()
			return
		}
		if typ != websocket.BinaryMessage {
			continue
		}
		c.mu.Lock()
		c.pending = append(c.pending, data...)
		c.mu.Unlock()
	}
}

// PeerAddr returns the remote address.
func (c *Conn) PeerAddr() (net.Addr, error) {
	if c.peer == nil {
		return nil, transport.ErrNotConnected
	}
	return c.peer, nil
}

// Read moves every collected byte into buf. Once the connection failed and
// all bytes were delivered it returns transport.ErrConnectionReset.
func (c *Conn) Read(buf *protocol.Buffer) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.pending) > 0 {
		n, _ := buf.Write(c.pending)
		c.pending = c.pending[:0]
		return n, nil
	}
	if c.err != nil {
		if websocket.IsUnexpectedCloseError(c.err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			c.opts.Logger.Debug("connection lost", "remote", c.peer.String(), "error", c.err)
		}
		return 0, transport.NewOpError("read", c.peer, fmt.Errorf("%w: %v", transport.ErrConnectionReset, c.err))
	}
	return 0, nil
}

// Write sends p as one binary message.
func (c *Conn) Write(p []byte) (int, error) {
	if c.shutdown.Load() {
		return 0, transport.NewOpError("write", c.peer, transport.ErrNotConnected)
	}
	c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	if err := c.ws.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, transport.NewOpError("write", c.peer, err)
	}
	return len(p), nil
}

// Shutdown sends a close message and closes the connection.
func (c *Conn) Shutdown() error {
	if c.shutdown.Swap(true) {
		return transport.NewOpError("shutdown", c.peer, transport.ErrNotConnected)
	}
	c.ws.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(c.opts.WriteTimeout),
	)
	if err := c.ws.Close(); err != nil {
		return transport.NewOpError("shutdown", c.peer, err)
	}
	return nil
}
