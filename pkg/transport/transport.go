// Package transport defines the capability contract that Server and Client
// use to move bytes, independent of the socket implementation.
//
// Every method is non-blocking except Protocol.Dial, which may block up to
// its timeout. Backends that wrap blocking APIs run helper goroutines and
// expose their results through these calls.
//
// Backends:
//
//   - tcp: plain TCP with Nagle disabled
//   - ws: WebSocket binary messages behind an HTTP router
//   - memory: in-process pipes for tests
package transport

import (
	"net"
	"time"

	"github.com/vango-dev/tickwire/pkg/protocol"
)

// Protocol creates listening hosts and outgoing connections.
type Protocol interface {
	// Bind starts listening on addr.
	Bind(addr string) (Host, error)

	// Dial connects to addr, waiting at most timeout.
	Dial(addr string, timeout time.Duration) (Conn, error)
}

// Host is a bound listener.
type Host interface {
	// Accept returns the next pending connection, or ErrWouldBlock when
	// none is waiting.
	Accept() (Conn, error)

	// Addr returns the bound address.
	Addr() net.Addr

	// Shutdown stops listening. Accepted connections are not affected.
	Shutdown() error
}

// Conn is an established byte stream.
type Conn interface {
	// PeerAddr returns the remote address.
	PeerAddr() (net.Addr, error)

	// Read appends every byte currently available to buf and returns how
	// many were appended. It returns 0, nil when nothing is available and
	// ErrConnectionReset once the peer has closed and all data is drained.
	Read(buf *protocol.Buffer) (int, error)

	// Write sends p and returns how many bytes were accepted. A count
	// below len(p) always comes with an error; the caller keeps the rest.
	Write(p []byte) (int, error)

	// Shutdown closes both directions.
	Shutdown() error
}
