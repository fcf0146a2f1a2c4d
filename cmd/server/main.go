/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the water supply billing server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (defaults, WATER_* env, WATER_CONFIG yaml, flags)
  2. Initialize SQLite store
  3. Register Prometheus metrics
  4. Build billing service, outbox dispatcher and API handler
  5. Start background jobs (reconcile, sync)
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (overrides WATER_PORT)
  -db      SQLite database path (overrides WATER_DB_PATH)
           Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop background jobs
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/water.db"

  # Run with in-memory database
  ./server -db=":memory:"

  # Push changes to a remote backend every 30s
  WATER_SYNC_URL=https://api.example.com/api ./server

SEE ALSO:
  - config/config.go: Configuration sources
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aasavchauhan/Water-Supply-Management-System/api"
	"github.com/aasavchauhan/Water-Supply-Management-System/billing"
	"github.com/aasavchauhan/Water-Supply-Management-System/config"
	"github.com/aasavchauhan/Water-Supply-Management-System/metrics"
	"github.com/aasavchauhan/Water-Supply-Management-System/outbox"
	"github.com/aasavchauhan/Water-Supply-Management-System/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Flags
	port := flag.Int("port", cfg.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path")
	flag.Parse()
	cfg.Port, cfg.DBPath = *port, *dbPath
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logger := log.Default()

	// Initialize store
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	metrics.Init(store, logger)

	svc := billing.NewService(store,
		billing.WithLogger(logger),
		billing.WithObserver(metrics.Observer{}),
	)

	handler := api.NewHandler(svc)
	handler.Queue = store
	handler.Ping = store.DB().PingContext

	scheduler := api.NewScheduler()
	scheduler.Add("reconcile", cfg.ReconcileInterval, api.ReconcileJob(svc, logger))

	if cfg.Sync.RemoteURL != "" {
		dispatcher := outbox.NewDispatcher(store, outbox.NewHTTPRemote(cfg.Sync.RemoteURL, cfg.Sync.Token))
		dispatcher.Config = outbox.Config{
			BatchSize:   cfg.Sync.BatchSize,
			MaxAttempts: cfg.Sync.MaxAttempts,
			BaseBackoff: cfg.Sync.BaseBackoff,
			MaxBackoff:  cfg.Sync.MaxBackoff,
		}
		dispatcher.Logger = logger
		// Remote writes can race local ones; replay balances once a batch lands.
		dispatcher.AfterBatch = func(ctx context.Context) error {
			_, err := svc.ReconcileAll(ctx)
			return err
		}
		handler.Dispatcher = dispatcher
		scheduler.Add("sync", cfg.Sync.Interval, api.SyncJob(dispatcher))
		log.Printf("Sync enabled: %s every %v", cfg.Sync.RemoteURL, cfg.Sync.Interval)
	}

	router := api.NewRouter(handler, cfg.CORSOrigins)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	scheduler.Start()

	// Start server in goroutine
	go func() {
		log.Printf("Server starting on http://localhost:%d", cfg.Port)
		log.Printf("API available at http://localhost:%d/api", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}
	scheduler.Stop()

	log.Println("Server stopped")
}
