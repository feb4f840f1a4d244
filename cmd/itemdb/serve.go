package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"itemdb/internal/archive"
	"itemdb/internal/core"
	"itemdb/internal/infra/journal/httpjournal"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func serveCmd(a *app) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the configured journal over HTTP",
		Long: `Serve exposes the configured journal to remote clients using the
http journal driver, plus Prometheus metrics on /metrics. The journal is
replayed into a world once at startup and serving is refused when it does
not load.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			ctx := cmd.Context()
			if listen == "" {
				listen = a.cfg.Server.Listen
			}
			j, err := core.OpenJournal(ctx, a.cfg)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := j.Close(); cerr != nil && err == nil {
					err = fmt.Errorf("close journal: %w", cerr)
				}
			}()
			reg := prometheus.NewRegistry()
			if err := verifyJournal(ctx, a, j, reg); err != nil {
				return fmt.Errorf("verify journal: %w", err)
			}
			ln, err := net.Listen("tcp", listen)
			if err != nil {
				return err
			}
			return serve(ctx, ln, newServeMux(j, reg, a.log), a.log)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (default from config)")
	return cmd
}

// verifyJournal replays j into a world, recording the load on reg. The
// archive is not closed since it shares j with the server.
func verifyJournal(ctx context.Context, a *app, j archive.Journal, reg prometheus.Registerer) error {
	arc, err := archive.Open(archive.Kind(a.cfg.Archive.Kind), j,
		archive.WithLogger(a.log), archive.WithRegisterer(reg), archive.WithSynchronousFlush())
	if err != nil {
		return err
	}
	w, err := core.OpenWorld(ctx, a.cfg, arc, core.WithLogger(a.log), core.WithMetrics(core.NewPrometheusMetrics(reg)))
	if err != nil {
		return err
	}
	s := w.Stats()
	a.log.WithFields(logrus.Fields{"items": s.Items, "entries": s.Entries, "users": s.Users}).Info("journal verified")
	return nil
}

// newServeMux mounts the journal routes, a health check and the metrics
// endpoint. Every route is counted by method and status.
func newServeMux(j archive.Journal, reg *prometheus.Registry, log logrus.FieldLogger) http.Handler {
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	requests := promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
		Namespace: "itemdb",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by method and status code.",
	}, []string{"method", "code"})

	mux := http.NewServeMux()
	httpjournal.NewHandler(j, httpjournal.WithLogger(log)).RegisterHTTPHandlers("", mux)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	return promhttp.InstrumentHandlerCounter(requests, mux)
}

// serve runs an HTTP server on ln until ctx is cancelled, then drains it.
func serve(ctx context.Context, ln net.Listener, h http.Handler, log logrus.FieldLogger) error {
	srv := &http.Server{Handler: h, ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	log.WithField("addr", ln.Addr().String()).Info("serving journal")

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Info("server stopped")
	return nil
}
