// Package server runs the server side of a tick loop.
//
// A Server owns a listening transport.Host and one Remote per accepted
// connection, each paired with application data of type D. All I/O happens
// in three per-tick phases, so the application loop never blocks except in
// Sleep:
//
//	srv := server.New[Msg, *Player](tcp.New(nil), codec, nil)
//	if err := srv.Bind(":7564"); err != nil {
//	    return err
//	}
//	for {
//	    for r := range srv.AcceptedWith(newPlayer) {
//	        r.Send(Welcome{})
//	    }
//	    for r, p := range srv.Connected() {
//	        for msg := range r.Receive() {
//	            p.Handle(msg)
//	        }
//	    }
//	    for _, p := range srv.Closed() {
//	        p.Leave()
//	    }
//	    srv.Sleep()
//	}
//
// Remote lifecycle:
//
//	Accepted ──read──▶ Connected ──Close/read error──▶ Closing ──write──▶ Closed
//
// Every Remote has its own clock.Timer, cloned from the server's reference
// timer, which answers and issues Ping/Pong frames during the write phase.
// RTT and Offset report the resulting estimates.
//
// Each Remote gets a random UUID for log correlation and an OpenTelemetry
// span covering its lifetime. With no tracer provider installed the span is
// a no-op.
package server
