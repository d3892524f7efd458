package server

import (
	"errors"
	"iter"
	"net"
	"time"

	"github.com/vango-dev/tickwire/pkg/clock"
	"github.com/vango-dev/tickwire/pkg/protocol"
	"github.com/vango-dev/tickwire/pkg/transport"
)

// Phase tracks whether a per-tick phase already ran.
type Phase uint8

const (
	PhaseNotRun Phase = iota
	PhaseRun
)

// entry pairs a Remote with the application data created for it.
type entry[M, D any] struct {
	remote *Remote[M]
	data   D
}

// Server accepts connections and drives their Remotes once per tick.
//
// A tick calls, in order:
//
//	for r, d := range s.AcceptedWith(factory) { ... } // new connections
//	for r, d := range s.Connected() { ... }           // read, then Receive/Send
//	for r, d := range s.Closed() { ... }              // write, then departed Remotes
//	s.Sleep()
//
// Each of the three phases does its I/O only on its first call per tick;
// later calls in the same tick only filter. Sleep starts the next tick.
//
// A Server is not safe for concurrent use.
type Server[M, D any] struct {
	proto  transport.Protocol
	codec  protocol.Codec[M]
	config Config
	deps   *serverDeps

	host    transport.Host
	entries []entry[M, D]
	closed  []int
	timer   *clock.Timer

	accepted  Phase
	connected Phase
	departed  Phase
}

// New creates a Server that listens through proto and encodes application
// messages with codec. A nil config uses DefaultConfig.
func New[M, D any](proto transport.Protocol, codec protocol.Codec[M], config *Config) *Server[M, D] {
	cfg := config.normalize()
	return &Server[M, D]{
		proto:  proto,
		codec:  codec,
		config: cfg,
		deps: &serverDeps{
			logger:     cfg.Logger,
			metrics:    cfg.Metrics,
			tracer:     cfg.Tracer,
			maxPending: cfg.MaxPending,
		},
		timer: clock.New(cfg.Clock),
	}
}

// Bind starts listening on addr and resets the tick clock.
func (s *Server[M, D]) Bind(addr string) error {
	if s.host != nil {
		return transport.ErrAlreadyExists
	}
	host, err := s.proto.Bind(addr)
	if err != nil {
		return err
	}
	s.host = host
	s.timer.Reset()
	s.deps.logger.Info("server bound", "addr", host.Addr().String(), "tick_rate", s.config.TickRate)
	return nil
}

// Addr returns the bound address, or nil when not bound.
func (s *Server[M, D]) Addr() net.Addr {
	if s.host == nil {
		return nil
	}
	return s.host.Addr()
}

// Len returns the number of Remotes held by the server.
func (s *Server[M, D]) Len() int {
	return len(s.entries)
}

// TickRate returns the configured ticks per second.
func (s *Server[M, D]) TickRate() uint8 {
	return s.timer.TickRate()
}

// Tick returns the reference tick counter.
func (s *Server[M, D]) Tick() uint8 {
	return s.timer.Tick()
}

// AcceptedWith accepts every pending connection on the first call of a
// tick. factory receives the peer address and returns the application data
// for the connection, or false to refuse it. The sequence yields the Remotes
// still in StateAccepted.
func (s *Server[M, D]) AcceptedWith(factory func(net.Addr) (D, bool)) iter.Seq2[*Remote[M], D] {
	if s.accepted == PhaseNotRun {
		s.accepted = PhaseRun
		if s.host != nil {
			s.accept(factory)
		}
	}
	return s.filter(StateAccepted)
}

// Connected reads from every Remote on the first call of a tick. The
// sequence yields the Remotes in StateConnected.
func (s *Server[M, D]) Connected() iter.Seq2[*Remote[M], D] {
	if s.connected == PhaseNotRun {
		s.connected = PhaseRun
		if s.host != nil {
			for _, e := range s.entries {
				e.remote.read()
			}
		}
	}
	return s.filter(StateConnected)
}

// Closed writes to every Remote on the first call of a tick and records
// the ones that finished closing. Every call removes the recorded Remotes
// and yields each of them exactly once.
func (s *Server[M, D]) Closed() iter.Seq2[*Remote[M], D] {
	if s.departed == PhaseNotRun {
		s.departed = PhaseRun
		for i, e := range s.entries {
			e.remote.write()
			if e.remote.state == StateClosed {
				s.closed = append(s.closed, i)
			}
		}
	}

	removed := s.removeClosed()
	return func(yield func(*Remote[M], D) bool) {
		for _, e := range removed {
			if !yield(e.remote, e.data) {
				return
			}
		}
	}
}

// Sleep ends the tick: it re-arms the three phases, advances Tick and
// blocks until the next tick is due. It returns how long it blocked.
func (s *Server[M, D]) Sleep() time.Duration {
	s.accepted = PhaseNotRun
	s.connected = PhaseNotRun
	s.departed = PhaseNotRun
	s.timer.Advance()

	d := s.timer.Sleep()
	s.deps.metrics.TickSlept(d)
	return d
}

// Shutdown closes every Remote immediately, forgets them, and stops
// listening. It returns transport.ErrNotConnected if the server is not
// bound.
func (s *Server[M, D]) Shutdown() error {
	if s.host == nil {
		return transport.ErrNotConnected
	}
	host := s.host
	s.host = nil

	for _, e := range s.entries {
		e.remote.Close()
		e.remote.finishClose()
	}
	s.deps.metrics.RemotesClosed(len(s.entries))
	s.entries = nil
	s.closed = s.closed[:0]

	err := host.Shutdown()
	if err != nil && !errors.Is(err, transport.ErrNotConnected) {
		s.deps.logger.Warn("host shutdown failed", "error", err)
		return err
	}
	s.deps.logger.Info("server shut down", "addr", host.Addr().String())
	return nil
}

func (s *Server[M, D]) accept(factory func(net.Addr) (D, bool)) {
	for {
		conn, err := s.host.Accept()
		if err != nil {
			if !errors.Is(err, transport.ErrWouldBlock) {
				s.deps.logger.Warn("accept failed", "error", err)
			}
			return
		}

		peer, err := conn.PeerAddr()
		if err != nil {
			s.deps.logger.Debug("dropping connection without peer address", "error", err)
			conn.Shutdown()
			continue
		}

		data, ok := factory(peer)
		if !ok {
			s.deps.logger.Debug("connection refused", "addr", peer.String())
			s.deps.metrics.RemoteRejected()
			conn.Shutdown()
			continue
		}

		remote := newRemote(conn, peer, s.codec, s.timer.Clone(), s.deps)
		s.entries = append(s.entries, entry[M, D]{remote: remote, data: data})
		s.deps.metrics.RemoteAccepted()
		remote.logger.Debug("remote accepted")
	}
}

// removeClosed takes the recorded entries out of the server, keeping the
// order of the rest.
func (s *Server[M, D]) removeClosed() []entry[M, D] {
	if len(s.closed) == 0 {
		return nil
	}

	removed := make([]entry[M, D], 0, len(s.closed))
	kept := s.entries[:0]
	next := 0
	for i, e := range s.entries {
		if next < len(s.closed) && s.closed[next] == i {
			removed = append(removed, e)
			next++
			continue
		}
		kept = append(kept, e)
	}
	clear(s.entries[len(kept):])
	s.entries = kept
	s.closed = s.closed[:0]

	s.deps.metrics.RemotesClosed(len(removed))
	return removed
}

func (s *Server[M, D]) filter(state State) iter.Seq2[*Remote[M], D] {
	return func(yield func(*Remote[M], D) bool) {
		for _, e := range s.entries {
			if e.remote.state != state {
				continue
			}
			if !yield(e.remote, e.data) {
				return
			}
		}
	}
}
