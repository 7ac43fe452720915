package httpserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/chainsafe/permit-auditor/pkg/audit"
)

const defaultMiddlewareTimeout = 10 * time.Second

// ProgressSource exposes the progress of the running audit.
type ProgressSource interface {
	Snapshot() audit.Snapshot
}

// NewRouter serves /health, /progress and /metrics.
func NewRouter(progress ProgressSource, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(defaultMiddlewareTimeout))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Get("/progress", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(progress.Snapshot()); err != nil {
			logger.Error("Failed to encode progress", zap.Error(err))
		}
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
