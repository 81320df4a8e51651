package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ussdpilot/pkg/logging"
)

// healthReport is the /healthz body.
type healthReport struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Attached bool   `json:"attached"`
	State    string `json:"state,omitempty"`
}

// newMetricsHandler serves /metrics from reg and /healthz from health.
func newMetricsHandler(reg *prometheus.Registry, health func(ctx context.Context) healthReport) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(health(req.Context()))
	})
	return r
}

// health reports the engine attachment and orchestrator state.
func (a *App) health(ctx context.Context) healthReport {
	rep := healthReport{Status: "ok", Version: a.version}
	eng := a.currentEngine()
	if eng == nil {
		return rep
	}
	rep.Attached = true
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if s, err := eng.State(ctx); err == nil {
		rep.State = s.String()
	}
	return rep
}

// serveMetrics runs the metrics endpoint on addr until ctx is done.
func (a *App) serveMetrics(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           newMetricsHandler(a.registry, a.health),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info("http").Str("addr", addr).Msg("Metrics endpoint listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logging.Warn("http").Err(err).Msg("Graceful shutdown did not complete")
			_ = srv.Close()
		}
		return nil
	}
}
