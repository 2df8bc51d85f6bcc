/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the PRIMA earnings engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (defaults, YAML file, .env, environment)
  2. Apply command-line flags
  3. Load the commission policy
  4. Initialize SQLite store
  5. Connect Redis lock and RabbitMQ publisher when configured
  6. Configure HTTP router and start the server

COMMAND-LINE FLAGS:
  -config  YAML config file (default: config.yaml, optional)
  -port    HTTP server port (overrides PORT)
  -db      SQLite database path (overrides DB_PATH)
           Use ":memory:" for in-memory database
  -policy  Policy document, YAML or JSON (overrides POLICY_FILE)
  -dev     Mount POST /api/reset

ENVIRONMENT:
  PORT, DB_PATH, POLICY_FILE, LOG_LEVEL, REDIS_ADDR, REDIS_PASSWORD,
  REDIS_DB, AMQP_URL, AMQP_QUEUE, RECALC_CHUNK_SIZE, RECALC_CONCURRENCY,
  ALLOWED_ORIGINS. A .env file in the working directory is read first.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close broker, lock and database connections
  4. Exit

SEE ALSO:
  - config/config.go: Configuration sources
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prima/earnings-engine/api"
	"github.com/prima/earnings-engine/config"
	"github.com/prima/earnings-engine/earnings"
	amqpevents "github.com/prima/earnings-engine/events/amqp"
	"github.com/prima/earnings-engine/factory"
	redislock "github.com/prima/earnings-engine/lock/redis"
	"github.com/prima/earnings-engine/store/sqlite"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Flags
	configPath := flag.String("config", "config.yaml", "YAML config file")
	port := flag.Int("port", 0, "HTTP server port")
	dbPath := flag.String("db", "", "SQLite database path")
	policyPath := flag.String("policy", "", "Policy document (YAML or JSON)")
	dev := flag.Bool("dev", false, "Enable development endpoints")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if *port > 0 {
		cfg.Port = *port
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if *policyPath != "" {
		cfg.PolicyFile = *policyPath
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	// Policy
	policy := earnings.DefaultPolicy()
	if cfg.PolicyFile != "" {
		if policy, err = factory.NewPolicyFactory().LoadFile(cfg.PolicyFile); err != nil {
			return fmt.Errorf("load policy: %w", err)
		}
		logger.Info("policy loaded", "file", cfg.PolicyFile)
	}

	// Store
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer store.Close()

	svc := earnings.NewService(earnings.NewEngine(policy), store, logger)

	ctx := context.Background()
	if cfg.RedisAddr != "" {
		client, err := redislock.Dial(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return err
		}
		defer client.Close()
		svc.Locker = redislock.New(client)
		logger.Info("redis booking lock enabled", "addr", cfg.RedisAddr)
	}
	if cfg.AMQPURL != "" {
		pub, err := amqpevents.Dial(cfg.AMQPURL, cfg.AMQPQueue)
		if err != nil {
			return err
		}
		defer pub.Close()
		svc.Publisher = pub
		logger.Info("earnings events enabled", "queue", cfg.AMQPQueue)
	}

	handler := api.NewHandler(store, svc, logger)
	handler.Recalculator.ChunkSize = cfg.RecalcChunkSize
	handler.Recalculator.Concurrency = cfg.RecalcConcurrency

	router := api.NewRouter(handler, api.RouterOptions{
		AllowedOrigins: cfg.AllowedOrigins,
		EnableReset:    *dev,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "port", cfg.Port, "db", cfg.DBPath)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}
