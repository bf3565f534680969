package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mrmushfiq/llm0-express/internal/express"
	"github.com/mrmushfiq/llm0-express/internal/express/dispatch"
	"github.com/mrmushfiq/llm0-express/internal/express/limits"
	"github.com/mrmushfiq/llm0-express/internal/express/metrics"
	"github.com/mrmushfiq/llm0-express/internal/express/tokens"
	"github.com/mrmushfiq/llm0-express/internal/gateway/cache"
	"github.com/mrmushfiq/llm0-express/internal/gateway/handlers"
	"github.com/mrmushfiq/llm0-express/internal/gateway/providers"
	"github.com/mrmushfiq/llm0-express/internal/shared/config"
	"github.com/mrmushfiq/llm0-express/internal/shared/database"
	"github.com/mrmushfiq/llm0-express/internal/shared/logger"
	"github.com/mrmushfiq/llm0-express/internal/shared/redis"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		panic("failed to build logger: " + err.Error())
	}
	defer log.Sync()

	log.Info("starting batch gateway",
		zap.String("port", cfg.Port),
		zap.String("env", cfg.Env),
		zap.String("strategy", string(cfg.Strategy)),
		zap.String("tier", string(cfg.DefaultTier)),
	)

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Token counting
	encoder := tokens.NewTiktokenEncoder(tokens.DefaultEncoding)
	if err := encoder.Init(); err != nil {
		log.Fatal("failed to load tokenizer", zap.Error(err))
	}
	estimator := tokens.NewEstimator(encoder, log)
	log.Info("initialized tokenizer", zap.String("encoding", encoder.Name()))

	collector := metrics.NewCollector("llm0_express", prometheus.DefaultRegisterer)

	var invoker dispatch.Invoker = providers.NewOpenAIInvoker(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL)
	opts := express.Options{
		Window:       cfg.Window,
		Workers:      cfg.PoolWorkers,
		BatchTimeout: cfg.BatchTimeout,
		Observer:     collector,
		Logger:       log,
	}

	// Redis backs the response cache and the daily usage counter
	if cfg.RedisURL != "" {
		redisClient, err := redis.New(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer redisClient.Close()
		log.Info("connected to redis")

		if cfg.CacheEnabled {
			invoker = cache.NewInvoker(invoker, cache.New(redisClient), cfg.CacheTTL(), collector, log)
			log.Info("initialized response cache", zap.Duration("ttl", cfg.CacheTTL()))
		}
		opts.Usage = cache.NewUsageCounter(redisClient, log)
	}

	// Postgres backs the run log
	var runs *handlers.RunsHandler
	if cfg.DatabaseURL != "" {
		db, err := database.New(cfg.DatabaseURL)
		if err != nil {
			log.Fatal("failed to connect to database", zap.Error(err))
		}
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			log.Fatal("failed to migrate run log", zap.Error(err))
		}
		log.Info("connected to postgres")

		opts.RunLog = db
		runs = handlers.NewRunsHandler(db)
	}

	svc := express.New(limits.OpenAI(), estimator, invoker, opts)

	// Initialize handlers
	batchHandler := handlers.NewBatchHandler(svc, cfg.DefaultTier, cfg.Strategy, log)
	middleware := handlers.NewMiddleware(cfg.GatewayAPIKey, log)

	// Setup router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.LoggerMiddleware)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORSMiddleware)

	// Health check (no auth required)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	// API routes
	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.AuthMiddleware)

		r.Post("/batch/completions", batchHandler.HandleBatchCompletion)
		if runs != nil {
			r.Get("/runs/{runID}", runs.HandleGetRun)
		}
	})

	// A run spans one window per batch, so responses have no write deadline
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info("server listening",
			zap.String("addr", srv.Addr),
			zap.Strings("routes", []string{
				"POST /v1/batch/completions",
				"GET  /v1/runs/{runID}",
				"GET  /health",
				"GET  /metrics",
			}),
		)

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info("shutting down gracefully")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown error", zap.Error(err))
	}

	log.Info("server stopped")
}
