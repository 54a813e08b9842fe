/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the Meridian commission engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env (optional) and parse command-line flags
  2. Build the zap logger
  3. Initialize SQLite store
  4. Wire the engine: ledger writer, batch builder, sender, transfer client
  5. Configure HTTP router
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (default: 8080)
  -db      SQLite database path (default: commission.db)
           Use ":memory:" for an in-memory database
  -dev     Development logging (human-readable, debug level)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

ENVIRONMENT:
  TRANSFER_BASE_URL, TRANSFER_CHANNEL, TRANSFER_SECRET
  See transfer/client.go. A .env file in the working directory is loaded
  if present.

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/meridian/commission-engine/api"
	"github.com/meridian/commission-engine/commission"
	"github.com/meridian/commission-engine/store/sqlite"
	"github.com/meridian/commission-engine/transfer"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "commission.db", "SQLite database path")
	dev := flag.Bool("dev", false, "development logging")
	flag.Parse()

	// .env is optional; flags and real env win
	_ = godotenv.Load()

	logger, err := buildLogger(*dev)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	defer store.Close()

	// Wire the engine
	writer := commission.NewWriter(store, store, store, store, store, logger)
	payouts := commission.NewBatchBuilder(store, store, store, store, logger)
	transfers := transfer.NewFromEnv(logger)
	sender := commission.NewSender(store, store, transfers, logger)

	handler := api.NewHandler(api.HandlerDeps{
		Agents:    store,
		Schedules: store,
		Policies:  store,
		Ledger:    store,
		Debts:     store,
		Batches:   store,
		Writer:    writer,
		Payouts:   payouts,
		Sender:    sender,
		Log:       logger,
	})

	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server starting",
			zap.Int("port", *port),
			zap.String("db", *dbPath))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}

func buildLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
