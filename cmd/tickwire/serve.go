package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"

	"github.com/spf13/cobra"

	"github.com/vango-dev/tickwire/internal/config"
	"github.com/vango-dev/tickwire/internal/errors"
	"github.com/vango-dev/tickwire/pkg/metrics"
	"github.com/vango-dev/tickwire/pkg/server"
	"github.com/vango-dev/tickwire/pkg/transport"
)

type serveOptions struct {
	addr        string
	transport   string
	tickRate    int
	metricsAddr string
	ticks       int
}

// session is the per-client data the serve loop keeps next to each Remote.
type session struct {
	id       int
	joined   uint8
	received int
}

func serveCmd(g *globals) *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a tick server",
		Long: `Run a server that greets every client and echoes its text messages.

Once per second the server logs each client's RTT and clock offset.
With --metrics it also serves Prometheus metrics at /metrics and a
health check at /healthz.

Examples:
  tickwire serve
  tickwire serve --addr :7564 --transport ws
  tickwire serve --tick-rate 60 --metrics :9100`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.merge(cmd, g.cfg)
			if err := opts.validate(); err != nil {
				return err
			}
			return runServe(cmd.Context(), g.logger, g.cfg, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&opts.addr, "addr", "a", "", "Address to listen on (default from tickwire.json)")
	cmd.Flags().StringVarP(&opts.transport, "transport", "t", "", "Transport: tcp or ws (default from tickwire.json)")
	cmd.Flags().IntVarP(&opts.tickRate, "tick-rate", "r", 0, "Ticks per second (default from tickwire.json)")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics", "", "Serve /metrics and /healthz on this address")
	cmd.Flags().IntVar(&opts.ticks, "ticks", 0, "Stop after this many ticks (0 runs until interrupted)")

	return cmd
}

// merge fills options that were not set on the command line from cfg.
func (o *serveOptions) merge(cmd *cobra.Command, cfg *config.Config) {
	if !cmd.Flags().Changed("addr") {
		o.addr = cfg.Server.Addr
	}
	if !cmd.Flags().Changed("transport") {
		o.transport = cfg.Server.Transport
	}
	if !cmd.Flags().Changed("tick-rate") {
		o.tickRate = cfg.Server.TickRate
	}
	if !cmd.Flags().Changed("metrics") {
		o.metricsAddr = cfg.Server.MetricsAddr
	}
}

func (o *serveOptions) validate() error {
	if err := config.ValidateTickRate(o.tickRate); err != nil {
		return err
	}
	if err := config.ValidateTransport(o.transport); err != nil {
		return err
	}
	if err := config.ValidateAddr(o.addr); err != nil {
		return err
	}
	if o.metricsAddr != "" {
		return config.ValidateAddr(o.metricsAddr)
	}
	return nil
}

func runServe(ctx context.Context, logger *slog.Logger, cfg *config.Config, opts serveOptions, out io.Writer) error {
	proto, err := newProtocol(opts.transport, logger)
	if err != nil {
		return err
	}

	reg := newRegistry()
	srv := newServer(proto, logger, cfg, opts.tickRate, metrics.New(metrics.WithRegistry(reg)))
	if err := srv.Bind(opts.addr); err != nil {
		return errors.New(errors.CodeBindFailed).Wrap(err)
	}
	defer srv.Shutdown()

	h := newHealth()
	if opts.metricsAddr != "" {
		addr, stop, err := startMetrics(opts.metricsAddr, newMetricsRouter(reg, h), logger)
		if err != nil {
			return err
		}
		defer stop()
		info(out, "Metrics on http://%s/metrics", addr)
	}

	printBanner(out)
	success(out, "Listening on %s (%s, %d ticks/s)", srv.Addr(), opts.transport, srv.TickRate())

	return serveLoop(ctx, srv, logger, h, out, opts.ticks)
}

func newServer(proto transport.Protocol, logger *slog.Logger, cfg *config.Config, tickRate int, m *metrics.Metrics) *server.Server[Message, *session] {
	scfg := server.DefaultConfig()
	scfg.TickRate = uint8(tickRate)
	scfg.Clock = cfg.ClockConfig(tickRate)
	scfg.Logger = logger
	scfg.Metrics = m
	return server.New[Message, *session](proto, messageCodec, scfg)
}

// serveLoop runs srv until ctx is done or maxTicks ticks have passed. A zero
// maxTicks runs until ctx is done.
func serveLoop(ctx context.Context, srv *server.Server[Message, *session], logger *slog.Logger, h *health, out io.Writer, maxTicks int) error {
	var next int
	perSecond := int(srv.TickRate())

	for n := 0; maxTicks == 0 || n < maxTicks; n++ {
		if ctx.Err() != nil {
			info(out, "Shutting down...")
			return nil
		}

		newSession := func(net.Addr) (*session, bool) {
			next++
			return &session{id: next, joined: srv.Tick()}, true
		}
		for r, s := range srv.AcceptedWith(newSession) {
			info(out, "client %d accepted from %s", s.id, r.PeerAddr())
			hello := Message{Kind: KindHello, Tick: srv.Tick(), Text: fmt.Sprintf("welcome, client %d", s.id)}
			if err := r.Send(hello); err != nil {
				logger.Warn("send failed", "remote_id", r.ID(), "error", err)
			}
		}

		for r, s := range srv.Connected() {
			for m := range r.Receive() {
				s.received++
				if m.Kind != KindText {
					continue
				}
				echo := Message{Kind: KindEcho, Tick: srv.Tick(), Text: m.Text}
				if err := r.Send(echo); err != nil {
					logger.Warn("send failed", "remote_id", r.ID(), "error", err)
				}
			}
			if n%perSecond == 0 {
				info(out, "client %d rtt %.0fms offset %.1fms", s.id, r.RTT(), r.Offset())
			}
		}

		for _, s := range srv.Closed() {
			info(out, "client %d closed after %d messages (joined at tick %d)", s.id, s.received, s.joined)
		}

		h.update(srv.Len(), srv.Tick())
		srv.Sleep()
	}
	return nil
}
