package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"runtime"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/vango-dev/tickwire/internal/config"
	"github.com/vango-dev/tickwire/internal/errors"
	"github.com/vango-dev/tickwire/pkg/client"
	"github.com/vango-dev/tickwire/pkg/metrics"
)

type benchProfile struct {
	Clients  int
	Ticks    int
	TickRate int
}

var benchProfiles = map[string]benchProfile{
	"fast": {
		Clients:  10,
		Ticks:    90,
		TickRate: 30,
	},
	"standard": {
		Clients:  50,
		Ticks:    300,
		TickRate: 30,
	},
	"stress": {
		Clients:  200,
		Ticks:    600,
		TickRate: 60,
	},
}

type benchOptions struct {
	profile   string
	transport string
	clients   int
	ticks     int
	tickRate  int
	jsonPath  string
}

func benchCmd(g *globals) *cobra.Command {
	var opts benchOptions

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure echo latency with many clients",
		Long: `Run an echo server and a fleet of clients in one process.

Every client sends one message per tick and times the echo. The
summary reports latency percentiles, throughput, traffic and GC
activity. Flags override the selected profile.

Examples:
  tickwire bench
  tickwire bench --profile stress --transport tcp
  tickwire bench --clients 20 --ticks 120 --json report.json
  tickwire bench --json s3://bench-results/tickwire/run.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.resolve(); err != nil {
				return err
			}
			return runBench(cmd.Context(), g.logger, g.cfg, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&opts.profile, "profile", "p", "fast", "Profile: fast, standard or stress")
	cmd.Flags().StringVarP(&opts.transport, "transport", "t", "memory", "Transport: tcp, ws or memory")
	cmd.Flags().IntVar(&opts.clients, "clients", 0, "Concurrent clients (default from profile)")
	cmd.Flags().IntVar(&opts.ticks, "ticks", 0, "Ticks each client runs (default from profile)")
	cmd.Flags().IntVarP(&opts.tickRate, "tick-rate", "r", 0, "Ticks per second (default from profile)")
	cmd.Flags().StringVar(&opts.jsonPath, "json", "", "Write a JSON report to a path, '-' for stdout or s3://bucket/key")

	return cmd
}

// resolve fills unset options from the profile and validates the result.
func (o *benchOptions) resolve() error {
	base, ok := benchProfiles[o.profile]
	if !ok {
		return errors.New(errors.CodeInvalidBench).
			WithDetail(fmt.Sprintf("Unknown profile %q.", o.profile))
	}
	if o.clients == 0 {
		o.clients = base.Clients
	}
	if o.ticks == 0 {
		o.ticks = base.Ticks
	}
	if o.tickRate == 0 {
		o.tickRate = base.TickRate
	}

	if o.clients < 0 || o.ticks < 0 {
		return errors.New(errors.CodeInvalidBench).
			WithDetail(fmt.Sprintf("Got %d clients and %d ticks.", o.clients, o.ticks))
	}
	if err := config.ValidateTickRate(o.tickRate); err != nil {
		return err
	}
	if o.transport != "memory" {
		return config.ValidateTransport(o.transport)
	}
	return nil
}

type benchCounters struct {
	sent       atomic.Uint64
	echoes     atomic.Uint64
	unanswered atomic.Uint64
	bytesSent  atomic.Uint64
	bytesRecv  atomic.Uint64
	failures   atomic.Uint64
}

func runBench(ctx context.Context, logger *slog.Logger, cfg *config.Config, opts benchOptions, out io.Writer) error {
	proto, addr, err := loopback(opts.transport, logger)
	if err != nil {
		return err
	}

	reg := newRegistry()
	m := metrics.New(metrics.WithRegistry(reg))
	srv := newServer(proto, logger, cfg, opts.tickRate, m)
	if err := srv.Bind(addr); err != nil {
		return errors.New(errors.CodeBindFailed).Wrap(err)
	}

	serveCtx, stopServe := context.WithCancel(ctx)
	defer stopServe()
	serveDone := make(chan error, 1)
	go func() {
		serveDone <- serveLoop(serveCtx, srv, logger, newHealth(), io.Discard, 0)
	}()

	samplesCh := make(chan time.Duration, max(opts.clients*4, 1024))
	var samples []time.Duration
	collectorDone := make(chan struct{})
	go func() {
		defer close(collectorDone)
		for rtt := range samplesCh {
			samples = append(samples, rtt)
		}
	}()

	var (
		counters benchCounters
		clockMu  sync.Mutex
		clockRTT []float64
	)

	var before runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&before)

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(opts.clients)
	for range opts.clients {
		go func() {
			defer wg.Done()
			c := newClient(proto, logger, cfg, opts.tickRate, m)
			if err := c.Connect(srv.Addr().String(), time.Second); err != nil {
				counters.failures.Add(1)
				logger.Debug("bench client failed to connect", "error", err)
				return
			}
			defer c.Disconnect()

			if err := benchClient(ctx, c, opts.ticks, samplesCh, &counters); err != nil {
				counters.failures.Add(1)
				if errors.HasCode(err, errors.CodeInvalidFrame) {
					logger.Error("bench message could not be encoded", "error", err)
				} else {
					logger.Warn("bench client stopped", "error", err)
				}
			}
			counters.bytesSent.Add(c.BytesSent())
			counters.bytesRecv.Add(c.BytesReceived())

			clockMu.Lock()
			clockRTT = append(clockRTT, c.RTT())
			clockMu.Unlock()
		}()
	}

	wg.Wait()
	elapsed := time.Since(start)
	close(samplesCh)
	<-collectorDone

	stopServe()
	serveErr := <-serveDone
	if err := srv.Shutdown(); err != nil {
		logger.Debug("server shutdown", "error", err)
	}

	var after runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&after)

	slices.Sort(samples)
	report := buildBenchReport(opts, elapsed, samples, clockRTT, &counters, reg, before, after)

	writeBenchSummary(out, report)
	if err := writeBenchJSON(ctx, opts.jsonPath, out, report); err != nil {
		return err
	}
	return serveErr
}

// benchClient sends one numbered message per tick and times each echo.
func benchClient(ctx context.Context, c *client.Client[Message], ticks int, samples chan<- time.Duration, counters *benchCounters) error {
	sent := make(map[string]time.Time)
	defer func() {
		counters.unanswered.Add(uint64(len(sent)))
	}()

	for n := 0; n < ticks; n++ {
		if ctx.Err() != nil {
			return nil
		}

		msgs, err := c.Receive()
		if err != nil {
			return errors.New(errors.CodeConnectionLost).Wrap(err)
		}
		now := time.Now()
		for m := range msgs {
			if m.Kind != KindEcho {
				continue
			}
			at, ok := sent[m.Text]
			if !ok {
				continue
			}
			delete(sent, m.Text)
			counters.echoes.Add(1)
			samples <- now.Sub(at)
		}

		key := strconv.Itoa(n)
		if err := c.Send(Message{Kind: KindText, Tick: c.Tick(), Text: key}); err != nil {
			return sendError(err)
		}
		sent[key] = time.Now()
		counters.sent.Add(1)

		c.Sleep()
	}
	return nil
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[len(sorted)-1]
	}
	idx := int(math.Ceil(float64(len(sorted))*p)) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// counterTotal sums every series of the named counter in g. Gather returns
// what it could collect along with an error, so partial results still count.
func counterTotal(g prometheus.Gatherer, name string) float64 {
	families, _ := g.Gather()
	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

type benchReport struct {
	Version    string         `json:"version"`
	Run        runInfo        `json:"run"`
	Workload   workloadInfo   `json:"workload"`
	LatencyMS  latencyInfo    `json:"latency_ms"`
	ClockRTTMS float64        `json:"clock_rtt_ms"`
	Throughput throughputInfo `json:"throughput"`
	Traffic    trafficInfo    `json:"traffic"`
	GC         gcInfo         `json:"gc"`
	Failures   uint64         `json:"failures"`
}

type runInfo struct {
	Timestamp string `json:"timestamp"`
	Go        string `json:"go"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
	CPUCount  int    `json:"cpu_count"`
	Version   string `json:"tickwire_version"`
}

type workloadInfo struct {
	Profile   string `json:"profile"`
	Transport string `json:"transport"`
	Clients   int    `json:"clients"`
	Ticks     int    `json:"ticks"`
	TickRate  int    `json:"tick_rate"`
}

type latencyInfo struct {
	Min float64 `json:"min"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
	Max float64 `json:"max"`
}

type throughputInfo struct {
	MessagesSent uint64  `json:"messages_sent"`
	Echoes       uint64  `json:"echoes"`
	Unanswered   uint64  `json:"unanswered"`
	EchoesPerSec float64 `json:"echoes_per_sec"`
}

type trafficInfo struct {
	ClientBytesSent     uint64  `json:"client_bytes_sent"`
	ClientBytesReceived uint64  `json:"client_bytes_received"`
	ResyncBytes         float64 `json:"resync_bytes"`
	WriteErrors         float64 `json:"write_errors"`
}

type gcInfo struct {
	AllocMB      float64 `json:"alloc_mb"`
	HeapLiveMB   float64 `json:"heap_live_mb"`
	NumGC        uint32  `json:"num_gc"`
	PauseTotalMS float64 `json:"pause_total_ms"`
}

func buildBenchReport(
	opts benchOptions,
	elapsed time.Duration,
	latencies []time.Duration,
	clockRTT []float64,
	counters *benchCounters,
	reg prometheus.Gatherer,
	before runtime.MemStats,
	after runtime.MemStats,
) benchReport {
	echoes := counters.echoes.Load()
	elapsedSeconds := math.Max(0.001, elapsed.Seconds())

	latency := latencyInfo{}
	if len(latencies) > 0 {
		latency = latencyInfo{
			Min: ms(latencies[0]),
			P50: ms(percentile(latencies, 0.50)),
			P95: ms(percentile(latencies, 0.95)),
			P99: ms(percentile(latencies, 0.99)),
			Max: ms(latencies[len(latencies)-1]),
		}
	}

	var meanRTT float64
	for _, rtt := range clockRTT {
		meanRTT += rtt
	}
	if len(clockRTT) > 0 {
		meanRTT /= float64(len(clockRTT))
	}

	return benchReport{
		Version: "1",
		Run: runInfo{
			Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
			Go:        runtime.Version(),
			OS:        runtime.GOOS,
			Arch:      runtime.GOARCH,
			CPUCount:  runtime.NumCPU(),
			Version:   version,
		},
		Workload: workloadInfo{
			Profile:   opts.profile,
			Transport: opts.transport,
			Clients:   opts.clients,
			Ticks:     opts.ticks,
			TickRate:  opts.tickRate,
		},
		LatencyMS:  latency,
		ClockRTTMS: meanRTT,
		Throughput: throughputInfo{
			MessagesSent: counters.sent.Load(),
			Echoes:       echoes,
			Unanswered:   counters.unanswered.Load(),
			EchoesPerSec: float64(echoes) / elapsedSeconds,
		},
		Traffic: trafficInfo{
			ClientBytesSent:     counters.bytesSent.Load(),
			ClientBytesReceived: counters.bytesRecv.Load(),
			ResyncBytes:         counterTotal(reg, "tickwire_resync_bytes_total"),
			WriteErrors:         counterTotal(reg, "tickwire_write_errors_total"),
		},
		GC: gcInfo{
			AllocMB:      float64(after.TotalAlloc-before.TotalAlloc) / (1024 * 1024),
			HeapLiveMB:   float64(after.HeapAlloc) / (1024 * 1024),
			NumGC:        after.NumGC - before.NumGC,
			PauseTotalMS: ms(time.Duration(after.PauseTotalNs - before.PauseTotalNs)),
		},
		Failures: counters.failures.Load(),
	}
}

func writeBenchSummary(w io.Writer, report benchReport) {
	fmt.Fprintln(w, "=== tickwire benchmark ===")
	fmt.Fprintf(w, "Profile: %s\n", report.Workload.Profile)
	fmt.Fprintf(w, "Transport: %s\n", report.Workload.Transport)
	fmt.Fprintf(w, "Clients: %d\n", report.Workload.Clients)
	fmt.Fprintf(w, "Ticks: %d at %d ticks/s\n", report.Workload.Ticks, report.Workload.TickRate)
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Messages sent: %d\n", report.Throughput.MessagesSent)
	fmt.Fprintf(w, "Echoes: %d (%.1f/s, %d unanswered)\n",
		report.Throughput.Echoes, report.Throughput.EchoesPerSec, report.Throughput.Unanswered)
	fmt.Fprintf(w, "Failures: %d\n", report.Failures)
	fmt.Fprintln(w)

	if report.LatencyMS.Max == 0 {
		fmt.Fprintln(w, "No latency samples recorded.")
	} else {
		fmt.Fprintln(w, "Echo latency (client send -> server tick -> client receive):")
		fmt.Fprintf(w, "  min: %.2f ms\n", report.LatencyMS.Min)
		fmt.Fprintf(w, "  p50: %.2f ms\n", report.LatencyMS.P50)
		fmt.Fprintf(w, "  p95: %.2f ms\n", report.LatencyMS.P95)
		fmt.Fprintf(w, "  p99: %.2f ms\n", report.LatencyMS.P99)
		fmt.Fprintf(w, "  max: %.2f ms\n", report.LatencyMS.Max)
	}
	fmt.Fprintf(w, "Clock RTT estimate: %.2f ms (mean over clients)\n", report.ClockRTTMS)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Traffic:")
	fmt.Fprintf(w, "  client sent:     %d bytes\n", report.Traffic.ClientBytesSent)
	fmt.Fprintf(w, "  client received: %d bytes\n", report.Traffic.ClientBytesReceived)
	fmt.Fprintf(w, "  resync skipped:  %.0f bytes\n", report.Traffic.ResyncBytes)
	fmt.Fprintf(w, "  write errors:    %.0f\n", report.Traffic.WriteErrors)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Go runtime / GC (process-wide):")
	fmt.Fprintf(w, "  alloc:     %.2f MB\n", report.GC.AllocMB)
	fmt.Fprintf(w, "  heap_live: %.2f MB\n", report.GC.HeapLiveMB)
	fmt.Fprintf(w, "  num_gc:    %d\n", report.GC.NumGC)
	fmt.Fprintf(w, "  gc_pause:  %.2f ms (total)\n", report.GC.PauseTotalMS)
}
