package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/vango-dev/tickwire/internal/config"
	"github.com/vango-dev/tickwire/internal/errors"
	"github.com/vango-dev/tickwire/pkg/client"
	"github.com/vango-dev/tickwire/pkg/metrics"
	"github.com/vango-dev/tickwire/pkg/protocol"
	"github.com/vango-dev/tickwire/pkg/transport"
)

type connectOptions struct {
	addr      string
	transport string
	tickRate  int
	timeout   time.Duration
	ticks     int
	sendEvery int
}

func connectCmd(g *globals) *cobra.Command {
	var opts connectOptions

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Connect a client to a tick server",
		Long: `Connect to a server and send a text message every few ticks.

The client prints every message it receives and, once per second,
its RTT and clock offset estimates.

Examples:
  tickwire connect
  tickwire connect --addr 127.0.0.1:7564 --transport ws
  tickwire connect --ticks 300 --send-every 10`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.merge(cmd, g.cfg)
			if err := opts.validate(); err != nil {
				return err
			}
			return runConnect(cmd.Context(), g.logger, g.cfg, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&opts.addr, "addr", "a", "", "Server address (default from tickwire.json)")
	cmd.Flags().StringVarP(&opts.transport, "transport", "t", "", "Transport: tcp or ws (default from tickwire.json)")
	cmd.Flags().IntVarP(&opts.tickRate, "tick-rate", "r", 0, "Ticks per second (default from tickwire.json)")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "Connect timeout (default from tickwire.json)")
	cmd.Flags().IntVar(&opts.ticks, "ticks", 0, "Disconnect after this many ticks (0 runs until interrupted)")
	cmd.Flags().IntVar(&opts.sendEvery, "send-every", 3, "Send a text message every N ticks")

	return cmd
}

func (o *connectOptions) merge(cmd *cobra.Command, cfg *config.Config) {
	if !cmd.Flags().Changed("addr") {
		o.addr = cfg.Client.Addr
	}
	if !cmd.Flags().Changed("transport") {
		o.transport = cfg.Client.Transport
	}
	if !cmd.Flags().Changed("tick-rate") {
		o.tickRate = cfg.Client.TickRate
	}
	if !cmd.Flags().Changed("timeout") {
		o.timeout = cfg.ConnectTimeoutDuration()
	}
}

func (o *connectOptions) validate() error {
	if err := config.ValidateTickRate(o.tickRate); err != nil {
		return err
	}
	if err := config.ValidateTransport(o.transport); err != nil {
		return err
	}
	if err := config.ValidateAddr(o.addr); err != nil {
		return err
	}
	if o.timeout <= 0 {
		return errors.New(errors.CodeInvalidTimeout)
	}
	if o.sendEvery < 1 {
		return errors.Newf(errors.CategoryCLI, "--send-every must be positive, got %d", o.sendEvery)
	}
	return nil
}

func runConnect(ctx context.Context, logger *slog.Logger, cfg *config.Config, opts connectOptions, out io.Writer) error {
	proto, err := newProtocol(opts.transport, logger)
	if err != nil {
		return err
	}

	c := newClient(proto, logger, cfg, opts.tickRate, nil)
	if err := c.Connect(opts.addr, opts.timeout); err != nil {
		return errors.New(errors.CodeConnectFailed).Wrap(err)
	}
	defer c.Disconnect()

	success(out, "Connected to %s (%s, %d ticks/s)", opts.addr, opts.transport, opts.tickRate)
	return clientLoop(ctx, c, out, opts)
}

func newClient(proto transport.Protocol, logger *slog.Logger, cfg *config.Config, tickRate int, m *metrics.Metrics) *client.Client[Message] {
	ccfg := client.DefaultConfig()
	ccfg.TickRate = uint8(tickRate)
	ccfg.Clock = cfg.ClockConfig(tickRate)
	ccfg.Logger = logger
	ccfg.Metrics = m
	return client.New[Message](proto, messageCodec, ccfg)
}

// clientLoop runs c until ctx is done, opts.ticks ticks have passed or the
// connection is lost.
func clientLoop(ctx context.Context, c *client.Client[Message], out io.Writer, opts connectOptions) error {
	perSecond := opts.tickRate
	sendEvery := max(opts.sendEvery, 1)

	for n := 0; opts.ticks == 0 || n < opts.ticks; n++ {
		if ctx.Err() != nil {
			return nil
		}

		msgs, err := c.Receive()
		if err != nil {
			if transport.IsClosed(err) {
				return errors.New(errors.CodeConnectionLost).Wrap(err)
			}
			return err
		}
		for m := range msgs {
			info(out, "received %s %q (server tick %d)", m.Kind, m.Text, m.Tick)
		}

		if n%perSecond == 0 {
			info(out, "rtt %.0fms offset %.1fms", c.RTT(), c.Offset())
		}

		if n%sendEvery == 0 {
			text := Message{Kind: KindText, Tick: c.Tick(), Text: fmt.Sprintf("tick %d", n)}
			if err := c.Send(text); err != nil {
				return sendError(err)
			}
		}

		c.Sleep()
	}

	info(out, "sent %d bytes, received %d bytes", c.BytesSent(), c.BytesReceived())
	return nil
}

// sendError classifies a failed Client.Send.
func sendError(err error) error {
	if stderrors.Is(err, protocol.ErrInvalidData) {
		return errors.New(errors.CodeInvalidFrame).Wrap(err)
	}
	return errors.FromError(err, errors.CodeConnectionLost)
}
