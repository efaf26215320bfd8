package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/edufund/veriflow/internal/ports"
	"github.com/edufund/veriflow/internal/verify"
)

// Server is the verification engine's HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// ServerConfig holds the dependencies and settings for creating a
// Server. Health is optional.
type ServerConfig struct {
	Orchestrator *verify.Orchestrator
	Entities     ports.EntityStore
	Logs         ports.LogStore
	Health       Pinger
	Logger       *slog.Logger

	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxRequestBody int64
}

// New creates an HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	h := NewHandlers(HandlersDeps{
		Orchestrator: cfg.Orchestrator,
		Entities:     cfg.Entities,
		Logs:         cfg.Logs,
		Health:       cfg.Health,
		Logger:       cfg.Logger,
		MaxBody:      cfg.MaxRequestBody,
	})

	mux := http.NewServeMux()

	// Entity snapshots.
	mux.HandleFunc("PUT /v1/entities/{kind}/{id}", h.HandleUpsertEntity)
	mux.HandleFunc("GET /v1/entities/{kind}/{id}", h.HandleGetEntity)
	mux.HandleFunc("GET /v1/entities/{kind}/{id}/logs", h.HandleEntityLogs)

	// Verification.
	mux.HandleFunc("POST /v1/verify/pending", h.HandleReverifyPending)
	mux.HandleFunc("POST /v1/verify/{kind}/{id}", h.HandleVerify)

	// Manual review.
	mux.HandleFunc("PUT /v1/reviews/{log_id}", h.HandleManualReview)
	mux.HandleFunc("GET /v1/reviews/pending", h.HandleListPendingReviews)

	// Analytics.
	mux.HandleFunc("GET /v1/analytics/scores", h.HandleScoreAnalytics)
	mux.HandleFunc("GET /v1/analytics/flags", h.HandleFlagAnalytics)
	mux.HandleFunc("GET /v1/analytics/trend", h.HandleTrendAnalytics)

	// Operational endpoints.
	mux.HandleFunc("GET /healthz", h.HandleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Middleware chain; outermost executes first.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler: handler,
		logger:  cfg.Logger,
	}
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
