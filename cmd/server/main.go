/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the bill ledger server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env + environment), apply flag overrides
  2. Configure zerolog
  3. Open SQLite store (runs migrations)
  4. Build ledger engine, statistics, import/export, entitlements
  5. Start audit scheduler
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS (override the environment):
  -port    HTTP server port (PORT, default: 8080)
  -db      SQLite database path (DB_PATH, default: ledger.db)
           Use ":memory:" for in-memory database

ENVIRONMENT:
  PORT, DB_PATH, ENV, LOG_LEVEL, CORS_ORIGINS, AUDIT_INTERVAL,
  ENTITLED_FEATURES, EXPORT_TIMEZONE. See config/config.go.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the audit scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection

EXAMPLES:
  # Run with file database
  ./server -db="./data/ledger.db"

  # Run with in-memory database
  ./server -db=":memory:"

SEE ALSO:
  - api/server.go: Router configuration
  - ledger/engine.go: Bill ledger engine
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/warp/ledger-engine/api"
	"github.com/warp/ledger-engine/config"
	"github.com/warp/ledger-engine/entitlement"
	"github.com/warp/ledger-engine/importexport"
	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/store/sqlite"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Flags
	port := flag.String("port", cfg.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path")
	flag.Parse()

	// Initialize zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if !cfg.IsProduction() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	level, _ := zerolog.ParseLevel(cfg.LogLevel) // validated by config.Load
	zerolog.SetGlobalLevel(level)

	loc, _ := cfg.Location() // validated by config.Load

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatal().Err(err).Str("db", *dbPath).Msg("Failed to initialize database")
	}
	defer store.Close()
	log.Info().Str("db", *dbPath).Msg("Database ready")

	// Initialize engine and handler
	engine := ledger.NewEngine(store, ledger.WithLogger(log.With().Str("component", "ledger").Logger()))

	handler := api.NewHandler(engine, store, log.Logger)
	handler.Location = loc
	handler.Exporter = importexport.NewExporter(loc)
	handler.Importer = importexport.NewImporter(store, engine, loc, log.With().Str("component", "import").Logger())
	handler.Entitlements = entitlement.NewStatic(cfg.EntitledFeatures...)
	handler.Audit = api.NewAuditScheduler(engine, cfg.AuditInterval, log.Logger)

	handler.Audit.Start()

	// Create router
	router := api.NewRouter(handler, api.RouterConfig{
		CORSOrigins: cfg.CORSOrigins,
		Logger:      log.With().Str("component", "http").Logger(),
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + *port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("port", *port).Str("env", cfg.Env).Msg("Starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	handler.Audit.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
		return
	}

	log.Info().Msg("Server stopped")
}
