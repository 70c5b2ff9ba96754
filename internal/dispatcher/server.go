package dispatcher

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// NewOpsRouter builds the small HTTP surface a dispatcher exposes alongside
// its queue-consuming loop: liveness at /healthz and Prometheus scraping at
// /metrics. It carries none of the job-handling logic — everything here is
// read-only observability.
func NewOpsRouter(metrics *Metrics, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	logger.Named("http").Info("ops router configured", zap.Strings("routes", []string{"/healthz", "/metrics"}))
	return r
}
