package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vango-dev/tickwire/internal/config"
	"github.com/vango-dev/tickwire/internal/errors"
	"github.com/vango-dev/tickwire/pkg/transport"
	"github.com/vango-dev/tickwire/pkg/transport/tcp"
	"github.com/vango-dev/tickwire/pkg/transport/ws"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const banner = `
  ╔╦╗┬┌─┐┬┌─┬ ┬┬┬─┐┌─┐
   ║ ││  ├┴┐││││├┬┘├┤
   ╩ ┴└─┘┴ ┴└┴┘┴┴└─└─┘
`

// globals holds the persistent flags and what PersistentPreRunE derives
// from them.
type globals struct {
	configPath  string
	logLevel    string
	noColor     bool
	errorFormat string

	cfg    *config.Config
	logger *slog.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes the command line in args and returns the process exit code.
// A failure is reported on stderr in the --error-format style.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	g := &globals{}
	cmd := rootCmd(g)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	style, serr := errors.ParseStyle(g.errorFormat)
	if serr != nil {
		style = errors.StylePretty
	}
	errors.Print(stderr, err, style)
	return 1
}

func rootCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tickwire",
		Short: "Tick-synchronized client/server networking",
		Long: `tickwire runs fixed-rate message loops over TCP or WebSocket.

Both ends advance in ticks, exchange framed messages and keep
an estimate of round trip time and clock offset. Commands:

  • serve    run a server that greets and echoes clients
  • connect  run a client against a server
  • demo     run both in one process
  • bench    measure echo latency with many clients`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return g.setup(cmd.ErrOrStderr())
		},
	}

	cmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "Path to tickwire.json (default: search the working directory)")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Log level: debug, info, warn or error")
	cmd.PersistentFlags().BoolVar(&g.noColor, "no-color", false, "Disable colored output")
	cmd.PersistentFlags().StringVar(&g.errorFormat, "error-format", string(errors.StylePretty), "Error output: pretty, compact or json")

	cmd.AddCommand(
		serveCmd(g),
		connectCmd(g),
		demoCmd(g),
		benchCmd(g),
		versionCmd(),
	)

	return cmd
}

// setup loads the configuration and installs the logger.
func (g *globals) setup(logOut io.Writer) error {
	errors.SetColors(!g.noColor)
	if _, err := errors.ParseStyle(g.errorFormat); err != nil {
		return err
	}

	var err error
	if g.configPath != "" {
		g.cfg, err = config.LoadFile(g.configPath)
	} else {
		g.cfg, err = config.LoadFromWorkingDir()
	}
	if err != nil {
		return err
	}
	if err := g.cfg.ApplyEnv(); err != nil {
		return err
	}

	if g.logLevel != "" {
		g.cfg.LogLevel = g.logLevel
	}
	level, err := config.ParseLevel(g.cfg.LogLevel)
	if err != nil {
		return err
	}

	g.logger = slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(g.logger)
	return nil
}

// newProtocol returns the transport backend registered under name.
func newProtocol(name string, logger *slog.Logger) (transport.Protocol, error) {
	switch name {
	case "tcp":
		return tcp.New(nil), nil
	case "ws":
		return ws.New(&ws.Options{Logger: logger}), nil
	}
	return nil, config.ValidateTransport(name)
}

// printBanner prints the tickwire ASCII art banner.
func printBanner(w io.Writer) {
	fmt.Fprint(w, banner)
}

// success prints a success message.
func success(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "%s %s\n", errors.Paint("✓", errors.Green), fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "  %s\n", fmt.Sprintf(format, args...))
}
