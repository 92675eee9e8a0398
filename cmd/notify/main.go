package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/AGO523/node-news-notification/internal/access"
	"github.com/AGO523/node-news-notification/internal/config"
	"github.com/AGO523/node-news-notification/internal/dlq"
	"github.com/AGO523/node-news-notification/internal/enrich"
	"github.com/AGO523/node-news-notification/internal/handlers"
	"github.com/AGO523/node-news-notification/internal/logging"
	"github.com/AGO523/node-news-notification/internal/pipeline"
	"github.com/AGO523/node-news-notification/internal/ratelimit"
	"github.com/AGO523/node-news-notification/internal/server"
	"github.com/AGO523/node-news-notification/internal/store"
	"github.com/AGO523/node-news-notification/internal/tasks"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize structured logging
	logger := logging.New(
		logging.ParseLevel(cfg.Logging.Level),
		cfg.Logging.Format,
	).With(logging.Service("notify"))
	logging.SetDefault(logger)

	slog.Info("Starting notification ingest service",
		slog.Int("port", cfg.Server.Port),
		slog.String("log_level", cfg.Logging.Level),
		slog.String("enrichment_mode", cfg.Enrichment.Mode),
		slog.Bool("strict_access", cfg.Access.Strict),
	)
	if *configPath != "" {
		slog.Info("Loaded configuration", slog.String("config_path", *configPath))
	}

	// Initialize rate limiter
	var rateLimiter ratelimit.RateLimiter
	burst := ratelimit.Window{Limit: cfg.RateLimit.BurstLimit, Duration: cfg.RateLimit.BurstWindow}
	sustained := ratelimit.Window{Limit: cfg.RateLimit.SustainedLimit, Duration: cfg.RateLimit.SustainedWindow}

	switch {
	case !cfg.RateLimit.Enabled:
		rateLimiter = ratelimit.NoopLimiter{}
		log.Println("Rate limiting disabled in configuration")
	case cfg.RateLimit.Backend == "redis":
		limiter, err := ratelimit.NewRedisLimiter(cfg.RateLimit.RedisURL, burst, sustained)
		if err != nil {
			log.Printf("WARNING: Failed to initialize Redis rate limiter: %v", err)
			log.Println("Falling back to in-memory rate limiting")
			rateLimiter = ratelimit.NewMemoryLimiter(burst, sustained)
		} else {
			rateLimiter = limiter
			log.Printf("Redis rate limiting enabled: %d/%s burst, %d/%s sustained",
				burst.Limit, burst.Duration, sustained.Limit, sustained.Duration)
		}
	default:
		rateLimiter = ratelimit.NewMemoryLimiter(burst, sustained)
		log.Printf("In-memory rate limiting enabled: %d/%s burst, %d/%s sustained",
			burst.Limit, burst.Duration, sustained.Limit, sustained.Duration)
	}
	defer rateLimiter.Close()

	// Initialize Dead Letter Queue
	var dlqWriter dlq.Writer
	if cfg.DLQ.Enabled {
		switch cfg.DLQ.Backend {
		case "jetstream":
			jsDLQ, err := dlq.NewJetStreamQueue(context.Background(), cfg.DLQ.NatsURL)
			if err != nil {
				log.Fatalf("Failed to initialize JetStream DLQ: %v", err)
			}
			dlqWriter = jsDLQ
			defer jsDLQ.Close()
			log.Printf("Dead Letter Queue enabled (backend: jetstream, nats: %s)", cfg.DLQ.NatsURL)
		case "file", "":
			fileDLQ, err := dlq.NewFileQueue(cfg.DLQ.BasePath)
			if err != nil {
				log.Fatalf("Failed to initialize file DLQ: %v", err)
			}
			dlqWriter = fileDLQ
			defer fileDLQ.Close()
			log.Printf("Dead Letter Queue enabled (backend: file, path: %s)", cfg.DLQ.BasePath)
			log.Println("WARNING: File-based DLQ does not support multiple service instances")
		default:
			log.Fatalf("Unknown DLQ backend: %s (supported: jetstream, file)", cfg.DLQ.Backend)
		}
	} else {
		log.Println("Dead Letter Queue disabled")
	}

	// Access policy is built once and read-only afterwards
	policy := access.NewPolicy(
		cfg.Access.Owner,
		cfg.Access.RepositoryList(),
		access.ParseMatchMode(cfg.Access.Match),
	)
	log.Printf("Access policy loaded: %d repositories (match: %s, strict: %v)",
		policy.Size(), cfg.Access.Match, cfg.Access.Strict)

	// Detached task runner
	runner := tasks.NewRunner(cfg.Tasks.Workers, cfg.Tasks.QueueSize, cfg.Tasks.TaskTimeout)

	// External clients
	enricher := enrich.New(cfg.Enrichment.BaseURL, cfg.Enrichment.APIKey, cfg.Enrichment.Model, cfg.Enrichment.Timeout)
	storeClient := store.New(cfg.Store.URL, cfg.Store.Token, cfg.Store.APIKey, cfg.Store.Timeout)

	// Pipeline orchestrator
	orchestrator := pipeline.New(policy, enricher, storeClient, runner, dlqWriter, logger, pipeline.Options{
		Mode:           pipeline.ParseMode(cfg.Enrichment.Mode),
		Strict:         cfg.Access.Strict,
		AcceptedRecord: cfg.Pipeline.AcceptedRecord,
	})

	// Initialize HTTP handlers
	handler := handlers.NewPublishHandler(orchestrator, rateLimiter, runner, logger)
	router := server.NewRouter(handler)

	// Create server with config values
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Notification ingest service listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	// Drain detached tasks before exiting so in-flight enrichment completes
	runner.Close()

	log.Println("Server stopped")
}
