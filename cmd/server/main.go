/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the idea-voting server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env and parse command-line flags
  2. Initialize SQLite store
  3. Connect session store (Redis if configured, in-memory otherwise)
  4. Connect vote event publisher (Kafka if configured)
  5. Create the voting engine and API handler
  6. Start the weekly reset scheduler
  7. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (default: 8080, env PORT)
  -db      SQLite database path (default: ideaforge.db, env DATABASE_PATH)
           Use ":memory:" for in-memory database

ENVIRONMENT:
  PORT              HTTP server port
  DATABASE_PATH     SQLite database path
  REDIS_URL         Redis connection URL for sessions (optional)
  KAFKA_BROKERS     Comma-separated broker list for vote events (optional)
  KAFKA_TOPIC       Vote event topic (default: idea-votes)
  SESSION_TTL       Session lifetime in seconds (default: 24h)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the scheduler, flush the event publisher
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/ideaforge.db"

  # Run with in-memory database
  ./server -db=":memory:"

  # Run with Redis sessions and Kafka events
  REDIS_URL=redis://localhost:6379 KAFKA_BROKERS=localhost:9092 ./server

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
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ideaforge/vote-engine/api"
	"github.com/ideaforge/vote-engine/events"
	"github.com/ideaforge/vote-engine/session"
	"github.com/ideaforge/vote-engine/store/sqlite"
	"github.com/ideaforge/vote-engine/voting"
)

func main() {
	// .env is optional; environment and flags take over when absent.
	_ = godotenv.Load()

	port := flag.Int("port", envInt("PORT", 8080), "HTTP server port")
	dbPath := flag.String("db", envStr("DATABASE_PATH", "ideaforge.db"), "SQLite database path")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	defer store.Close()

	// Sessions: Redis when configured, in-memory otherwise.
	var sessions session.Store = session.NewMemory()
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		redisStore, err := session.NewRedis(context.Background(), redisURL)
		if err != nil {
			logger.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer redisStore.Close()
		sessions = redisStore
		logger.Info("using redis session store")
	}

	// Vote events: Kafka when configured, no-op otherwise.
	var publisher events.Publisher = events.Nop{}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		topic := envStr("KAFKA_TOPIC", "idea-votes")
		kafka := events.NewKafka(strings.Split(brokers, ","), topic)
		defer kafka.Close()
		publisher = kafka
		logger.Info("publishing vote events to kafka", zap.String("topic", topic))
	}

	// Engine and handler
	engine := voting.NewEngine(store, voting.DefaultTokenPolicy()).
		WithEvents(publisher).
		WithLogger(logger)
	handler := api.NewHandler(store, engine, sessions, logger)
	if ttl := envInt("SESSION_TTL", 0); ttl > 0 {
		handler.SessionTTL = time.Duration(ttl) * time.Second
	}
	router := api.NewRouter(handler, sessions)

	// Background weekly counter sweep
	scheduler := api.NewWeeklyResetScheduler(store, logger)
	scheduler.Start()
	defer scheduler.Stop()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.Int("port", *port))
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

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
