// Package main is the entry point for the trade ledger service.
// The service settles buy and sell intents against per-account cash and
// holdings, keeps the append-only trade history and serves portfolio views.
//
// The application follows the usual layering:
// - Domain layer is pure (no infrastructure dependencies)
// - Dependency injection via DI container
// - Repository pattern for the account store
// - Service layer for settlement and valuation
// - HTTP handlers for API endpoints
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/tradeledger/internal/config"
	"github.com/aristath/tradeledger/internal/di"
	"github.com/aristath/tradeledger/internal/server"
	"github.com/aristath/tradeledger/pkg/logger"
)

// main orchestrates startup:
// 1. Loads configuration (defaults, CONFIG_FILE, environment)
// 2. Initializes logging
// 3. Wires all dependencies via the DI container (store, services, jobs)
// 4. Starts the HTTP server and the background scheduler
// 5. Waits for a shutdown signal and shuts down gracefully
func main() {
	cfg, err := config.Load()
	if err != nil {
		// Use fallback logger if config fails
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:      cfg.LogLevel,
		Pretty:     cfg.DevMode,
		File:       cfg.LogFile,
		MaxBackups: 5,
		MaxAgeDays: 30,
	})
	logger.SetGlobalLogger(log)

	log.Info().Str("backend", cfg.StoreBackend).Msg("Starting tradeledger")

	if err := cfg.EnsureDataDir(); err != nil {
		log.Fatal().Err(err).Msg("Failed to prepare data directory")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Wire all dependencies using DI container
	container, jobs, err := di.Wire(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer func() {
		if err := container.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close store")
		}
	}()

	srv := server.New(server.Config{
		Log:       log,
		Port:      cfg.Port,
		DevMode:   cfg.DevMode,
		Container: container,

		AllowedOrigins: cfg.AllowedOrigins,
	})

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()
	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Background jobs: reconciliation, maintenance and (if enabled) backups
	jobs.Scheduler.Start()

	// Wait for interrupt signal or a fatal server error
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("Shutting down server...")
	case err := <-serverErr:
		log.Error().Err(err).Msg("Server failed")
	}
	cancel()

	// Stop scheduler first so no job touches the store during shutdown
	jobs.Scheduler.Stop()

	// In-flight settlements finish; their commits are bounded by CommitTimeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second+cfg.Settlement.CommitTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
