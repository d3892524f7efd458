package transport

import (
	"errors"
	"fmt"
	"net"
)

// Sentinel errors shared by all backends and by the server and client
// packages. Compare with errors.Is.
var (
	// ErrWouldBlock is returned by Host.Accept when no connection is pending.
	ErrWouldBlock = errors.New("transport: would block")

	// ErrConnectionReset is returned by Conn.Read after the peer closed.
	ErrConnectionReset = errors.New("transport: connection reset")

	// ErrNotConnected is returned when an operation needs a connection or
	// listener that does not exist.
	ErrNotConnected = errors.New("transport: not connected")

	// ErrAlreadyExists is returned when connecting or binding twice.
	ErrAlreadyExists = errors.New("transport: already exists")

	// ErrAddrNotAvailable is returned when an address resolves to nothing.
	ErrAddrNotAvailable = errors.New("transport: address not available")
)

// OpError wraps a backend failure with the operation and address involved.
type OpError struct {
	Op   string   // Operation that failed (bind, dial, accept, read, write)
	Addr net.Addr // Address involved, if known
	Err  error    // Underlying error
}

// Error returns the error message with operation context.
func (e *OpError) Error() string {
	if e.Addr == nil {
		return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("transport: %s %s: %v", e.Op, e.Addr, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *OpError) Unwrap() error {
	return e.Err
}

// NewOpError creates a new OpError.
func NewOpError(op string, addr net.Addr, err error) *OpError {
	return &OpError{Op: op, Addr: addr, Err: err}
}

// IsClosed reports whether err means the connection is gone for good.
func IsClosed(err error) bool {
	return errors.Is(err, ErrConnectionReset) || errors.Is(err, ErrNotConnected) || errors.Is(err, net.ErrClosed)
}
