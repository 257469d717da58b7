package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brojonat/aliquot/service/config"
	"github.com/brojonat/aliquot/service/db"
	"github.com/brojonat/aliquot/service/distributor"
	"github.com/brojonat/aliquot/service/metrics"
	natspkg "github.com/brojonat/aliquot/service/nats"
	"github.com/brojonat/aliquot/service/server"
	"github.com/brojonat/aliquot/service/solana"
	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	// Load and validate configuration from environment
	// This fails fast if any required config is missing or invalid
	cfg := config.MustLoad()

	// Setup structured logging
	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting server",
		"addr", cfg.ServerAddr,
		"log_level", cfg.LogLevel,
	)

	// Setup context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection pool
	dbPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	// Verify database connection
	if err := dbPool.Ping(ctx); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	// Initialize database store
	store := db.NewStore(dbPool)

	// Initialize Prometheus metrics collector
	metricsCollector := metrics.NewMetrics(nil) // nil uses default registry

	// Initialize Solana RPC client with the funding signer
	// Note: For premium RPC endpoints, include API key in the URL
	solanaRPC := solana.NewRPCClient(cfg.SolanaRPCURL)
	solanaClient := solana.NewClient(solanaRPC, cfg.Signer, cfg.SolanaRPCURL, metricsCollector, logger)
	if solanaClient.HasSigner() {
		logger.Info("initialized solana RPC client",
			"url", cfg.SolanaRPCURL,
			"signer", solanaClient.SignerAddress(),
		)
	} else {
		logger.Warn("no funding signer configured, distributions will be recorded with mock status",
			"url", cfg.SolanaRPCURL,
		)
	}

	// Initialize NATS publisher for distribution outcome events
	natsPublisher, err := natspkg.NewPublisher(cfg.NATSURL, metricsCollector, logger)
	if err != nil {
		logger.Error("failed to create NATS publisher", "error", err)
		os.Exit(1)
	}
	defer natsPublisher.Close()
	logger.Info("connected to NATS", "url", cfg.NATSURL)

	// Initialize holder directory per configured source
	var holderDir distributor.HolderDirectory
	if cfg.HolderSource == config.HolderSourceMock {
		holderDir = distributor.NewMockHolderDirectory(cfg.MockHolderCount, logger)
		logger.Warn("using mock holder directory", "count", cfg.MockHolderCount)
	} else {
		holderDir = distributor.NewLiveHolderDirectory(solanaClient, cfg.HolderQueryTimeout, logger)
	}

	// Initialize distribution engine
	funds := distributor.NewFundsDistributor(solanaClient, cfg.ConfirmTimeout, logger)
	distService := distributor.NewService(
		store,
		holderDir,
		funds,
		natsPublisher,
		metricsCollector,
		cfg.PlatformFeePercent,
		logger,
	)

	// Initialize HTTP server
	httpServer := server.New(cfg.ServerAddr, store, distService, cfg.WebhookSecret, metricsCollector, logger)

	logger.Info("server initialized, all dependencies ready",
		"solana_rpc", cfg.SolanaRPCURL,
		"nats_url", cfg.NATSURL,
		"holder_source", cfg.HolderSource,
		"platform_fee_percent", cfg.PlatformFeePercent,
	)

	// Start HTTP server in background
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.Start()
	}()

	// Wait for shutdown signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())

		// Graceful shutdown with timeout
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown server gracefully", "error", err)
			os.Exit(1)
		}

		logger.Info("server shutdown complete")
	}
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
