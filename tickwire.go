// Package tickwire provides the public API for tick-synchronized networking.
//
// This is the recommended import for most applications:
//
//	import "github.com/vango-dev/tickwire"
//
// Usage:
//
//	codec := tickwire.JSON[Msg]()
//	srv := tickwire.NewServer[Msg, *Player](tickwire.TCP(), codec)
//	if err := srv.Bind(":7564"); err != nil {
//	    return err
//	}
//
//	c := tickwire.NewClient[Msg](tickwire.TCP(), codec)
//	if err := c.Connect("127.0.0.1:7564", time.Second); err != nil {
//	    return err
//	}
//
// The packages under pkg/ expose the full configuration surface.
package tickwire

import (
	"github.com/vango-dev/tickwire/pkg/client"
	"github.com/vango-dev/tickwire/pkg/clock"
	"github.com/vango-dev/tickwire/pkg/protocol"
	"github.com/vango-dev/tickwire/pkg/server"
	"github.com/vango-dev/tickwire/pkg/transport"
	"github.com/vango-dev/tickwire/pkg/transport/memory"
	"github.com/vango-dev/tickwire/pkg/transport/tcp"
	"github.com/vango-dev/tickwire/pkg/transport/ws"
)

// Version is the library version.
const Version = "0.1.0"

// DefaultTickRate is the tick rate used when none is configured.
const DefaultTickRate = clock.DefaultTickRate

// =============================================================================
// Transports
// =============================================================================

// Protocol creates hosts and connections.
type Protocol = transport.Protocol

// TCP returns the TCP transport with default options.
func TCP() Protocol {
	return tcp.New(nil)
}

// WebSocket returns the WebSocket transport with default options. Servers
// accept upgrades on /tick.
func WebSocket() Protocol {
	return ws.New(nil)
}

// Memory returns an in-process network. Servers bound on it are reachable
// only by clients dialing through the same Network.
func Memory() *memory.Network {
	return memory.NewNetwork()
}

// =============================================================================
// Errors (re-export from pkg/transport and pkg/protocol)
// =============================================================================

var (
	// ErrWouldBlock is returned by Host.Accept when nothing is pending.
	ErrWouldBlock = transport.ErrWouldBlock

	// ErrConnectionReset is returned once the peer has closed the stream.
	ErrConnectionReset = transport.ErrConnectionReset

	// ErrNotConnected is returned by operations that need an open
	// connection or bound host.
	ErrNotConnected = transport.ErrNotConnected

	// ErrAlreadyExists is returned by Bind and Connect when already bound
	// or connected.
	ErrAlreadyExists = transport.ErrAlreadyExists

	// ErrAddrNotAvailable is returned when an address cannot be resolved
	// or nothing is bound there.
	ErrAddrNotAvailable = transport.ErrAddrNotAvailable

	// ErrInvalidData is returned when a message cannot be encoded.
	ErrInvalidData = protocol.ErrInvalidData
)

// =============================================================================
// Codecs
// =============================================================================

// JSON returns a codec that encodes M as JSON.
func JSON[M any]() protocol.Codec[M] {
	return protocol.JSONCodec[M]{}
}

// Binary returns a codec built from encode and decode functions over the
// protocol Encoder and Decoder.
func Binary[M any](encode func(*protocol.Encoder, M) error, decode func(*protocol.Decoder) (M, error)) protocol.Codec[M] {
	return protocol.NewBinaryCodec(encode, decode)
}

// =============================================================================
// Server and client
// =============================================================================

// NewServer creates a server with server.DefaultConfig.
func NewServer[M, D any](proto Protocol, codec protocol.Codec[M]) *server.Server[M, D] {
	return server.New[M, D](proto, codec, nil)
}

// NewServerWithRate creates a server running at tickRate ticks per second.
func NewServerWithRate[M, D any](proto Protocol, codec protocol.Codec[M], tickRate uint8) *server.Server[M, D] {
	cfg := server.DefaultConfig()
	cfg.TickRate = tickRate
	return server.New[M, D](proto, codec, cfg)
}

// NewClient creates a client with client.DefaultConfig.
func NewClient[M any](proto Protocol, codec protocol.Codec[M]) *client.Client[M] {
	return client.New[M](proto, codec, nil)
}

// NewClientWithRate creates a client running at tickRate ticks per second.
func NewClientWithRate[M any](proto Protocol, codec protocol.Codec[M], tickRate uint8) *client.Client[M] {
	cfg := client.DefaultConfig()
	cfg.TickRate = tickRate
	return client.New[M](proto, codec, cfg)
}
