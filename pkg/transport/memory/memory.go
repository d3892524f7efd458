// Package memory implements transport.Protocol with in-process pipes.
//
// A Network is an isolated address space. Dial connects directly to a Host
// bound on the same Network, and every operation completes immediately. It
// is meant for tests; fault injection hooks live on Conn.
package memory

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vango-dev/tickwire/pkg/protocol"
	"github.com/vango-dev/tickwire/pkg/transport"
)

// ErrInjected is returned by writes that were failed on purpose.
var ErrInjected = errors.New("memory: injected failure")

// Addr is an address on a Network.
type Addr string

// Network returns "memory".
func (a Addr) Network() string { return "memory" }

func (a Addr) String() string { return string(a) }

// Network is an in-process address space.
type Network struct {
	mu    sync.Mutex
	hosts map[string]*Host
	seq   int
}

var _ transport.Protocol = (*Network)(nil)

// NewNetwork creates an empty Network.
func NewNetwork() *Network {
	return &Network{hosts: make(map[string]*Host)}
}

// Bind registers a Host at addr. An address ending in ":0" is assigned a
// free port.
func (n *Network) Bind(addr string) (transport.Host, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if strings.HasSuffix(addr, ":0") {
		n.seq++
		addr = fmt.Sprintf("%s:%d", strings.TrimSuffix(addr, ":0"), 40000+n.seq)
	}
	if _, ok := n.hosts[addr]; ok {
		return nil, transport.NewOpError("bind", Addr(addr), transport.ErrAlreadyExists)
	}

	h := &Host{network: n, addr: Addr(addr)}
	n.hosts[addr] = h
	return h, nil
}

// Dial connects to the Host bound at addr.
func (n *Network) Dial(addr string, timeout time.Duration) (transport.Conn, error) {
	n.mu.Lock()
	h, ok := n.hosts[addr]
	n.seq++
	local := Addr(fmt.Sprintf("client:%d", n.seq))
	n.mu.Unlock()

	if !ok {
		return nil, transport.NewOpError("dial", Addr(addr), transport.ErrAddrNotAvailable)
	}

	client, server := Pipe(local, h.addr)
	h.mu.Lock()
	h.queue = append(h.queue, server)
	h.mu.Unlock()
	return client, nil
}

// Host is a bound address on a Network.
type Host struct {
	network *Network
	addr    Addr

	mu     sync.Mutex
	queue  []*Conn
	closed bool
}

// Accept returns the oldest pending connection or transport.ErrWouldBlock.
func (h *Host) Accept() (transport.Conn, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, transport.NewOpError("accept", h.addr, transport.ErrNotConnected)
	}
	if len(h.queue) == 0 {
		return nil, transport.ErrWouldBlock
	}
	c := h.queue[0]
	h.queue = h.queue[1:]
	return c, nil
}

// Addr returns the bound address.
func (h *Host) Addr() net.Addr {
	return h.addr
}

// Shutdown unregisters the Host and resets connections nobody accepted.
func (h *Host) Shutdown() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return transport.NewOpError("shutdown", h.addr, transport.ErrNotConnected)
	}
	h.closed = true
	queued := h.queue
	h.queue = nil
	h.mu.Unlock()

	for _, c := range queued {
		c.Shutdown()
	}

	h.network.mu.Lock()
	delete(h.network.hosts, string(h.addr))
	h.network.mu.Unlock()
	return nil
}

// pipe is one direction of a connection.
type pipe struct {
	mu     sync.Mutex
	data   []byte
	closed bool
}

// Conn is one end of an in-memory connection.
type Conn struct {
	local Addr
	peer  Addr
	in    *pipe
	out   *pipe
	other *Conn

	shutdown   atomic.Bool
	failWrites atomic.Bool
	writeLimit atomic.Int64
	written    atomic.Uint64
}

// Pipe creates a connected pair. Bytes written to one end are read from the
// other.
func Pipe(a, b Addr) (*Conn, *Conn) {
	ab, ba := &pipe{}, &pipe{}
	ca := &Conn{local: a, peer: b, in: ba, out: ab}
	cb := &Conn{local: b, peer: a, in: ab, out: ba}
	ca.other, cb.other = cb, ca
	return ca, cb
}

// Peer returns the other end of the connection.
func (c *Conn) Peer() *Conn {
	return c.other
}

// LocalAddr returns this end's address.
func (c *Conn) LocalAddr() net.Addr {
	return c.local
}

// PeerAddr returns the other end's address.
func (c *Conn) PeerAddr() (net.Addr, error) {
	return c.peer, nil
}

// FailWrites makes every following Write fail with ErrInjected until
// called with false.
func (c *Conn) FailWrites(fail bool) {
	c.failWrites.Store(fail)
}

// LimitWrites caps how many bytes a single Write accepts. Writes beyond the
// cap are cut short and return ErrInjected. Zero removes the cap.
func (c *Conn) LimitWrites(n int) {
	c.writeLimit.Store(int64(n))
}

// Written returns the total bytes accepted by Write.
func (c *Conn) Written() uint64 {
	return c.written.Load()
}

// Closed reports whether Shutdown was called on this end.
func (c *Conn) Closed() bool {
	return c.shutdown.Load()
}

// Read moves every buffered byte into buf.
func (c *Conn) Read(buf *protocol.Buffer) (int, error) {
	c.in.mu.Lock()
	defer c.in.mu.Unlock()

	if len(c.in.data) > 0 {
		n, _ := buf.Write(c.in.data)
		c.in.data = c.in.data[:0]
		return n, nil
	}
	if c.in.closed {
		return 0, transport.NewOpError("read", c.peer, transport.ErrConnectionReset)
	}
	return 0, nil
}

// Write appends p to the peer's input.
func (c *Conn) Write(p []byte) (int, error) {
	if c.shutdown.Load() {
		return 0, transport.NewOpError("write", c.peer, transport.ErrNotConnected)
	}
	if c.failWrites.Load() {
		return 0, transport.NewOpError("write", c.peer, ErrInjected)
	}

	n := len(p)
	var err error
	if limit := int(c.writeLimit.Load()); limit > 0 && n > limit {
		n = limit
		err = transport.NewOpError("write", c.peer, ErrInjected)
	}

	c.out.mu.Lock()
	defer c.out.mu.Unlock()
	if c.out.closed {
		return 0, transport.NewOpError("write", c.peer, transport.ErrConnectionReset)
	}
	c.out.data = append(c.out.data, p[:n]...)
	c.written.Add(uint64(n))
	return n, err
}

// Shutdown closes both directions. The peer reads the remaining bytes and
// then transport.ErrConnectionReset.
func (c *Conn) Shutdown() error {
	if c.shutdown.Swap(true) {
		return transport.NewOpError("shutdown", c.peer, transport.ErrNotConnected)
	}
	for _, p := range []*pipe{c.in, c.out} {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
	}
	return nil
}
