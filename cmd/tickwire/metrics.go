package main

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vango-dev/tickwire/internal/errors"
)

// newRegistry returns a registry with the Go runtime and process collectors.
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// health is written by the serve loop and read by /healthz.
type health struct {
	started time.Time
	remotes atomic.Int64
	tick    atomic.Uint32
}

func newHealth() *health {
	return &health{started: time.Now()}
}

func (h *health) update(remotes int, tick uint8) {
	h.remotes.Store(int64(remotes))
	h.tick.Store(uint32(tick))
}

type healthStatus struct {
	Status  string `json:"status"`
	Remotes int64  `json:"remotes"`
	Tick    uint32 `json:"tick"`
	Uptime  string `json:"uptime"`
}

func (h *health) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(healthStatus{
		Status:  "ok",
		Remotes: h.remotes.Load(),
		Tick:    h.tick.Load(),
		Uptime:  time.Since(h.started).Round(time.Second).String(),
	})
}

func newMetricsRouter(reg *prometheus.Registry, h *health) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	r.Method(http.MethodGet, "/healthz", h)
	return r
}

// startMetrics serves handler on addr in the background. The returned stop
// function shuts the server down.
func startMetrics(addr string, handler http.Handler, logger *slog.Logger) (net.Addr, func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, errors.New(errors.CodeMetricsServer).Wrap(err)
	}

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "error", errors.FromError(err, errors.CodeMetricsServer))
		}
	}()

	stop := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
	return ln.Addr(), stop, nil
}
