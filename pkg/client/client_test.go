package client

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/vango-dev/tickwire/pkg/protocol"
	"github.com/vango-dev/tickwire/pkg/server"
	"github.com/vango-dev/tickwire/pkg/transport"
	"github.com/vango-dev/tickwire/pkg/transport/memory"
	"github.com/vango-dev/tickwire/pkg/transport/tcp"
	"github.com/vango-dev/tickwire/pkg/transport/ws"
)

type chat struct {
	From string `json:"from"`
	Text string `json:"text"`
}

var codec = protocol.JSONCodec[chat]{}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeClock is shared by both ends of a simulated loop. Sleep advances it.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time        { return c.now }
func (c *fakeClock) Sleep(d time.Duration) { c.now = c.now.Add(d) }

func newPair(t *testing.T, fc *fakeClock) (*server.Server[chat, string], *Client[chat]) {
	t.Helper()
	network := memory.NewNetwork()

	scfg := server.DefaultConfig()
	scfg.Logger = quietLogger()
	ccfg := DefaultConfig()
	ccfg.Logger = quietLogger()
	if fc != nil {
		scfg.Clock.Now, scfg.Clock.Sleep = fc.Now, fc.Sleep
		ccfg.Clock.Now, ccfg.Clock.Sleep = fc.Now, fc.Sleep
	} else {
		noSleep := func(time.Duration) {}
		scfg.Clock.Sleep = noSleep
		ccfg.Clock.Sleep = noSleep
	}

	srv := server.New[chat, string](network, codec, scfg)
	if err := srv.Bind("sim:7564"); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	c := New[chat](network, codec, ccfg)
	if err := c.Connect("sim:7564", time.Second); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	return srv, c
}

// echoTick runs one server tick that echoes every message back.
func echoTick(srv *server.Server[chat, string]) {
	for r := range srv.AcceptedWith(func(addr net.Addr) (string, bool) { return addr.String(), true }) {
		r.Send(chat{From: "server", Text: "welcome"})
	}
	for r := range srv.Connected() {
		for m := range r.Receive() {
			r.Send(chat{From: "server", Text: m.Text})
		}
	}
	for range srv.Closed() {
	}
	srv.Sleep()
}

func receiveAll(t *testing.T, c *Client[chat]) []chat {
	t.Helper()
	msgs, err := c.Receive()
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	var out []chat
	for m := range msgs {
		out = append(out, m)
	}
	return out
}

func TestClientNotConnected(t *testing.T) {
	c := New[chat](memory.NewNetwork(), codec, &Config{Logger: quietLogger()})

	if c.Connected() {
		t.Fatal("Connected() = true before Connect")
	}
	if err := c.Send(chat{}); !errors.Is(err, transport.ErrNotConnected) {
		t.Fatalf("Send() error = %v, want ErrNotConnected", err)
	}
	if _, err := c.Receive(); !errors.Is(err, transport.ErrNotConnected) {
		t.Fatalf("Receive() error = %v, want ErrNotConnected", err)
	}
	if _, err := c.PeerAddr(); !errors.Is(err, transport.ErrNotConnected) {
		t.Fatalf("PeerAddr() error = %v, want ErrNotConnected", err)
	}
	if err := c.Disconnect(); !errors.Is(err, transport.ErrNotConnected) {
		t.Fatalf("Disconnect() error = %v, want ErrNotConnected", err)
	}
	if err := c.Connect("sim:1", time.Second); !errors.Is(err, transport.ErrAddrNotAvailable) {
		t.Fatalf("Connect() to nothing error = %v, want ErrAddrNotAvailable", err)
	}
}

func TestClientConnectTwice(t *testing.T) {
	_, c := newPair(t, nil)
	if err := c.Connect("sim:7564", time.Second); !errors.Is(err, transport.ErrAlreadyExists) {
		t.Fatalf("Connect() twice error = %v, want ErrAlreadyExists", err)
	}
	addr, err := c.PeerAddr()
	if err != nil || addr.String() != "sim:7564" {
		t.Fatalf("PeerAddr() = %v, %v", addr, err)
	}
	if err := c.Disconnect(); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}
	if c.Connected() {
		t.Fatal("Connected() = true after Disconnect")
	}
	if err := c.Disconnect(); !errors.Is(err, transport.ErrNotConnected) {
		t.Fatalf("Disconnect() twice error = %v, want ErrNotConnected", err)
	}
	if err := c.Connect("sim:7564", time.Second); err != nil {
		t.Fatalf("Connect() after Disconnect error = %v", err)
	}
}

func TestClientEcho(t *testing.T) {
	srv, c := newPair(t, nil)

	echoTick(srv)
	if got := receiveAll(t, c); len(got) != 1 || got[0].Text != "welcome" {
		t.Fatalf("first messages = %v, want welcome", got)
	}

	for _, text := range []string{"a", "b", "c"} {
		if err := c.Send(chat{From: "client", Text: text}); err != nil {
			t.Fatalf("Send() error = %v", err)
		}
	}
	echoTick(srv)

	got := receiveAll(t, c)
	if len(got) != 3 || got[0].Text != "a" || got[1].Text != "b" || got[2].Text != "c" {
		t.Fatalf("echoed = %v, want a b c in order", got)
	}
	if c.BytesSent() == 0 || c.BytesReceived() == 0 {
		t.Fatalf("BytesSent() = %d, BytesReceived() = %d", c.BytesSent(), c.BytesReceived())
	}
}

func TestClientSeesServerShutdown(t *testing.T) {
	srv, c := newPair(t, nil)
	echoTick(srv)
	receiveAll(t, c)

	if err := srv.Shutdown(); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if _, err := c.Receive(); !errors.Is(err, transport.ErrConnectionReset) {
		t.Fatalf("Receive() error = %v, want ErrConnectionReset", err)
	}
	if !c.Connected() {
		t.Fatal("a read error must not drop the connection by itself")
	}
	c.Disconnect()
}

func TestDisconnectClosesRemoteOnce(t *testing.T) {
	srv, c := newPair(t, nil)
	echoTick(srv)
	if srv.Len() != 1 {
		t.Fatalf("Len() = %d after accept, want 1", srv.Len())
	}

	if err := c.Disconnect(); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}

	var seen []int
	for i := 0; i < 3; i++ {
		for range srv.Connected() {
		}
		n := 0
		for r := range srv.Closed() {
			if r.State() != server.StateClosed {
				t.Fatalf("tick %d: Closed() yielded a Remote in %v", i, r.State())
			}
			n++
		}
		for range srv.Closed() {
			t.Fatalf("tick %d: second Closed() call yielded the Remote again", i)
		}
		seen = append(seen, n)
		srv.Sleep()
	}

	if seen[0] != 1 || seen[1] != 0 || seen[2] != 0 {
		t.Fatalf("Closed() yields per tick = %v, want [1 0 0]", seen)
	}
	if srv.Len() != 0 {
		t.Fatalf("Len() = %d after close, want 0", srv.Len())
	}
}

func TestClockSyncConverges(t *testing.T) {
	fc := &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
	srv, c := newPair(t, fc)

	var remote *server.Remote[chat]
	for i := 0; i < 200; i++ {
		for r := range srv.AcceptedWith(func(net.Addr) (string, bool) { return "", true }) {
			remote = r
		}
		for r := range srv.Connected() {
			for range r.Receive() {
			}
		}
		for range srv.Closed() {
		}
		for range receiveAll(t, c) {
		}
		c.Sleep()
		srv.Sleep()
	}

	if remote == nil {
		t.Fatal("server never accepted the client")
	}
	// Delivery is instant, so RTT is below one tick. The client answers in
	// the same tick it is pinged and the server in the next one, which
	// shows up as opposite clock offsets.
	tickMs := float64(1000 / int(c.timer.TickRate()))
	if c.RTT() < 0 || c.RTT() >= tickMs || remote.RTT() < 0 || remote.RTT() >= tickMs {
		t.Fatalf("RTT client=%v server=%v, want within one tick", c.RTT(), remote.RTT())
	}
	if c.Offset() <= 0 || remote.Offset() >= 0 {
		t.Fatalf("Offset client=%v server=%v, want positive and negative", c.Offset(), remote.Offset())
	}
}

func TestClientSleepWithoutConnection(t *testing.T) {
	fc := &fakeClock{now: time.UnixMilli(0)}
	cfg := DefaultConfig()
	cfg.Logger = quietLogger()
	cfg.Clock.Now, cfg.Clock.Sleep = fc.Now, fc.Sleep
	c := New[chat](memory.NewNetwork(), codec, cfg)

	start := fc.Now()
	for i := 0; i < 30; i++ {
		c.Sleep()
	}
	if got := fc.Now().Sub(start); got != 30*(time.Second/30) {
		t.Fatalf("30 ticks took %v, want 1s", got)
	}
	if c.Tick() != 30 {
		t.Fatalf("Tick() = %d, want 30", c.Tick())
	}
}

func TestLoopbackRTT(t *testing.T) {
	proto := tcp.New(nil)
	srv := server.New[chat, string](proto, codec, &server.Config{TickRate: 100, Logger: quietLogger()})
	if err := srv.Bind("127.0.0.1:0"); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	defer srv.Shutdown()

	c := New[chat](proto, codec, &Config{TickRate: 100, Logger: quietLogger()})
	if err := c.Connect(srv.Addr().String(), 2*time.Second); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer c.Disconnect()

	// The server runs on even ticks and the client reads on odd ones, so
	// every Pong reaches the clock at least two ticks after its Ping.
	for i := 0; i < 40; i++ {
		if i%2 == 0 {
			echoTick(srv)
		} else {
			receiveAll(t, c)
		}
		c.Sleep()
	}

	if c.RTT() <= 0 || c.RTT() >= 1000 {
		t.Fatalf("RTT() = %v after 40 ticks, want a positive estimate below 1s", c.RTT())
	}
}

func TestLoopbackTransports(t *testing.T) {
	tests := []struct {
		name  string
		proto transport.Protocol
	}{
		{name: "tcp", proto: tcp.New(nil)},
		{name: "ws", proto: ws.New(&ws.Options{Logger: quietLogger()})},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := server.New[chat, string](tc.proto, codec, &server.Config{TickRate: 100, Logger: quietLogger()})
			if err := srv.Bind("127.0.0.1:0"); err != nil {
				t.Fatalf("Bind() error = %v", err)
			}
			defer srv.Shutdown()

			c := New[chat](tc.proto, codec, &Config{TickRate: 100, Logger: quietLogger()})
			if err := c.Connect(srv.Addr().String(), 2*time.Second); err != nil {
				t.Fatalf("Connect() error = %v", err)
			}
			defer c.Disconnect()

			if err := c.Send(chat{From: "client", Text: "over the wire"}); err != nil {
				t.Fatalf("Send() error = %v", err)
			}

			var got []chat
			deadline := time.Now().Add(5 * time.Second)
			for len(got) < 2 && time.Now().Before(deadline) {
				echoTick(srv)
				got = append(got, receiveAll(t, c)...)
				c.Sleep()
			}
			if len(got) != 2 {
				t.Fatalf("received %v before timeout, want welcome and echo", got)
			}
			if got[0].Text != "welcome" || got[1].Text != "over the wire" {
				t.Fatalf("received %v", got)
			}
			if srv.Len() != 1 {
				t.Fatalf("Len() = %d, want 1", srv.Len())
			}
		})
	}
}
