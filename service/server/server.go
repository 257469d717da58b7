package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/aliquot/service/db"
	"github.com/brojonat/aliquot/service/distributor"
	"github.com/brojonat/aliquot/service/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Distributor is the slice of the distribution engine the HTTP layer needs.
// Satisfied by *distributor.Service.
type Distributor interface {
	Distribute(ctx context.Context, event *distributor.PaymentEvent) (*distributor.Result, error)
	GetStats(ctx context.Context, streamID string) (*distributor.Stats, error)
}

// StreamStore is the slice of the database layer the HTTP layer needs.
// Satisfied by *db.Store.
type StreamStore interface {
	UpsertStream(ctx context.Context, params db.UpsertStreamParams) (*db.RevenueStream, error)
	GetStream(ctx context.Context, streamID string) (*db.RevenueStream, error)
	ListStreams(ctx context.Context) ([]*db.RevenueStream, error)
	ListDistributions(ctx context.Context, streamID string, limit int32) ([]*db.Distribution, error)
}

// Server represents the HTTP server for the distribution service.
type Server struct {
	addr          string
	store         StreamStore
	distributor   Distributor
	webhookSecret string
	metrics       *metrics.Metrics
	logger        *slog.Logger
	server        *http.Server
}

// New creates a new HTTP server with the given dependencies.
// webhookSecret may be empty, in which case webhook signature verification
// is disabled (development only). The metrics is optional - if nil, metrics
// endpoints won't be available.
func New(addr string, store StreamStore, dist Distributor, webhookSecret string, m *metrics.Metrics, logger *slog.Logger) *Server {
	return &Server{
		addr:          addr,
		store:         store,
		distributor:   dist,
		webhookSecret: webhookSecret,
		metrics:       m,
		logger:        logger,
	}
}

// Routes builds the request mux. Exposed for tests.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	// Payment intake routes
	mux.Handle("POST /api/v1/webhook",
		s.instrument("webhook", handlePaymentWebhook(s.distributor, s.webhookSecret, s.logger)))
	mux.Handle("POST /api/v1/distribute-test",
		s.instrument("distribute_test", handleDistributeTest(s.distributor, s.logger)))

	// Revenue stream routes
	mux.Handle("POST /api/v1/streams",
		s.instrument("register_stream", handleRegisterStream(s.store, s.logger)))
	mux.Handle("GET /api/v1/streams",
		s.instrument("list_streams", handleListStreams(s.store, s.logger)))
	mux.Handle("GET /api/v1/streams/{stream_id}",
		s.instrument("get_stream", handleGetStream(s.store, s.logger)))
	mux.Handle("GET /api/v1/streams/{stream_id}/distributions",
		s.instrument("list_distributions", handleListDistributions(s.store, s.logger)))
	mux.Handle("GET /api/v1/streams/{stream_id}/stats",
		s.instrument("stream_stats", handleStreamStats(s.distributor, s.logger)))

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Prometheus metrics endpoint (if metrics collector is configured)
	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	return corsMiddleware(mux)
}

func (s *Server) instrument(name string, h http.Handler) http.Handler {
	if s.metrics == nil {
		return h
	}
	return metrics.HTTPMetricsMiddleware(s.metrics, name)(h)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	if s.webhookSecret == "" {
		s.logger.Warn("WEBHOOK_SECRET not set, webhook signature verification disabled")
	}

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second, // distributions wait for on-chain confirmation
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// corsMiddleware adds CORS headers to all responses and handles OPTIONS preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-X402-Signature")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
