package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ecomlytics/bestbuy-review-scraper/internal/crawler"
	"github.com/ecomlytics/bestbuy-review-scraper/internal/ledger"
)

// Server exposes run observability over HTTP: health, live progress
// counters, ledger state and Prometheus metrics. It never mutates the run.
type Server struct {
	http   *http.Server
	logger *slog.Logger
}

// StatusResponse is the /status payload.
type StatusResponse struct {
	RunID     string                `json:"run_id"`
	StartedAt time.Time             `json:"started_at"`
	Uptime    string                `json:"uptime"`
	Counts    crawler.SummaryCounts `json:"counts"`
}

func NewServer(addr string, rc *crawler.RunContext, summary *crawler.Summary, led ledger.Ledger, logger *slog.Logger) *Server {
	logger = logger.With("component", "api")

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, logger, StatusResponse{
			RunID:     rc.ID,
			StartedAt: rc.StartedAt,
			Uptime:    time.Since(rc.StartedAt).Round(time.Second).String(),
			Counts:    summary.Snapshot(),
		})
	})

	r.Get("/ledger", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, logger, led.Snapshot())
	})

	r.Handle("/metrics", promhttp.HandlerFor(rc.Metrics.Registry, promhttp.HandlerOpts{}))

	return &Server{
		http: &http.Server{
			Addr:         addr,
			Handler:      r,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Start serves until Shutdown. Intended to run in its own goroutine.
func (s *Server) Start() {
	s.logger.Info("status server listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error("status server failed", "error", err)
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func respondJSON(w http.ResponseWriter, logger *slog.Logger, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}
