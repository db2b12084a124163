/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the billing engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Load configuration (YAML file + environment)
  3. Build the logger
  4. Initialize SQLite store
  5. Wire the billing service (holiday calendar, clock)
  6. Configure HTTP router
  7. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  Path to a YAML config file (optional; environment
           variables with the BILLING_ prefix always apply)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (configurable timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with defaults (./data/billing.db, :8080)
  ./server

  # Run with a config file
  ./server -config=./config.yaml

  # Run with an in-memory database
  BILLING_DB=":memory:" ./server

SEE ALSO:
  - config/config.go: Configuration schema
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/vereinswerk/billing-engine/api"
	"github.com/vereinswerk/billing-engine/billing"
	"github.com/vereinswerk/billing-engine/calendar"
	"github.com/vereinswerk/billing-engine/config"
	"github.com/vereinswerk/billing-engine/logging"
	"github.com/vereinswerk/billing-engine/store/sqlite"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	store, err := sqlite.New(cfg.StoragePath)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err), zap.String("path", cfg.StoragePath))
	}
	defer store.Close()

	service := billing.NewService(store, billing.SystemClock{}, calendar.NewGerman(), cfg.Jurisdiction, logger)
	handler := api.NewHandler(service, logger)
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting",
			zap.String("addr", cfg.Server.Addr),
			zap.String("env", cfg.Env),
			zap.String("jurisdiction", cfg.Jurisdiction),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
