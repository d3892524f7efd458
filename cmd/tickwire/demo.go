package main

import (
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/vango-dev/tickwire/internal/config"
	"github.com/vango-dev/tickwire/internal/errors"
	"github.com/vango-dev/tickwire/pkg/metrics"
	"github.com/vango-dev/tickwire/pkg/transport"
	"github.com/vango-dev/tickwire/pkg/transport/memory"
)

type demoOptions struct {
	transport string
	tickRate  int
	ticks     int
}

func demoCmd(g *globals) *cobra.Command {
	var opts demoOptions

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run a server and a client in one process",
		Long: `Run a server and a client side by side on a loopback address.

The transport can be tcp, ws or memory. The memory transport skips
the network entirely.

Examples:
  tickwire demo
  tickwire demo --transport ws --ticks 300`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("tick-rate") {
				opts.tickRate = g.cfg.Server.TickRate
			}
			if err := config.ValidateTickRate(opts.tickRate); err != nil {
				return err
			}
			return runDemo(cmd.Context(), g.logger, g.cfg, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&opts.transport, "transport", "t", "tcp", "Transport: tcp, ws or memory")
	cmd.Flags().IntVarP(&opts.tickRate, "tick-rate", "r", 0, "Ticks per second (default from tickwire.json)")
	cmd.Flags().IntVar(&opts.ticks, "ticks", 90, "Client ticks to run before stopping")

	return cmd
}

func runDemo(ctx context.Context, logger *slog.Logger, cfg *config.Config, opts demoOptions, out io.Writer) error {
	proto, addr, err := loopback(opts.transport, logger)
	if err != nil {
		return err
	}

	srv := newServer(proto, logger, cfg, opts.tickRate, metrics.New(metrics.WithRegistry(newRegistry())))
	if err := srv.Bind(addr); err != nil {
		return errors.New(errors.CodeBindFailed).Wrap(err)
	}

	var mu sync.Mutex
	serverOut := &prefixWriter{mu: &mu, w: out, prefix: "[server] "}
	clientOut := &prefixWriter{mu: &mu, w: out, prefix: "[client] "}
	success(serverOut, "Listening on %s (%s, %d ticks/s)", srv.Addr(), opts.transport, srv.TickRate())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	var serveErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		serveErr = serveLoop(ctx, srv, logger, newHealth(), serverOut, 0)
	}()

	c := newClient(proto, logger, cfg, opts.tickRate, nil)
	clientErr := c.Connect(srv.Addr().String(), time.Second)
	if clientErr != nil {
		clientErr = errors.New(errors.CodeConnectFailed).Wrap(clientErr)
	} else {
		success(clientOut, "Connected to %s", srv.Addr())
		clientErr = clientLoop(ctx, c, clientOut, connectOptions{
			tickRate:  opts.tickRate,
			ticks:     opts.ticks,
			sendEvery: 3,
		})
		c.Disconnect()
	}

	// Let the server observe the disconnect before stopping it.
	waitTicks(ctx, opts.tickRate, 10)
	cancel()
	wg.Wait()

	if err := srv.Shutdown(); err != nil {
		logger.Debug("server shutdown", "error", err)
	}
	return stderrors.Join(clientErr, serveErr)
}

// loopback returns the transport named name with an address that only this
// process can reach. "memory" selects an in-process network.
func loopback(name string, logger *slog.Logger) (transport.Protocol, string, error) {
	if name == "memory" {
		return memory.NewNetwork(), "local:0", nil
	}
	proto, err := newProtocol(name, logger)
	if err != nil {
		return nil, "", err
	}
	return proto, "127.0.0.1:0", nil
}

func waitTicks(ctx context.Context, tickRate, n int) {
	select {
	case <-ctx.Done():
	case <-time.After(time.Duration(n) * time.Second / time.Duration(tickRate)):
	}
}

// prefixWriter prefixes every line written through it and serializes writes
// from the server and client goroutines.
type prefixWriter struct {
	mu     *sync.Mutex
	w      io.Writer
	prefix string
}

func (p *prefixWriter) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var buf bytes.Buffer
	for _, line := range bytes.SplitAfter(b, []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		buf.WriteString(p.prefix)
		buf.Write(line)
	}
	if _, err := p.w.Write(buf.Bytes()); err != nil {
		return 0, err
	}
	return len(b), nil
}
