package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/flash-sale-processor/internal/auth"
	"github.com/fairyhunter13/flash-sale-processor/internal/cache"
	"github.com/fairyhunter13/flash-sale-processor/internal/config"
	"github.com/fairyhunter13/flash-sale-processor/internal/handler"
	"github.com/fairyhunter13/flash-sale-processor/internal/queue"
	"github.com/fairyhunter13/flash-sale-processor/internal/repository"
	"github.com/fairyhunter13/flash-sale-processor/internal/service"
	"github.com/fairyhunter13/flash-sale-processor/internal/validator"
	"github.com/fairyhunter13/flash-sale-processor/internal/worker"
	"github.com/fairyhunter13/flash-sale-processor/pkg/database"
)

func main() {
	// Load configuration first
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Initialize zerolog based on configuration
	initLogger(cfg)

	// Create context for startup
	ctx := context.Background()

	// Initialize database pool with retry
	pool, err := database.NewPool(ctx, cfg.DB.DSN(), 5)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}

	// Coordination store (caches, rate tokens, job state)
	store, err := cache.New(cfg.Redis, cfg.Cache)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to coordination store")
	}

	// The queue gets its own Redis connection so a slow consumer cannot
	// starve the cache path.
	queueRdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// Queue events are bound to the purchase service after construction;
	// the closures see the final value through the pointer variable.
	var purchaseService *service.PurchaseService
	events := queue.Events{
		OnFailed: func(job *queue.Job, reason string) {
			if purchaseService == nil {
				return
			}
			evCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			purchaseService.MarkJobFailed(evCtx, job, reason)
		},
		OnStalled: func(job *queue.Job) {
			log.Warn().Str("job_id", job.ID).Msg("purchase job stalled, will be retried")
		},
	}
	purchaseQueue := queue.NewRedisQueue(queueRdb, cfg.Queue, events)

	// Repositories and services (layered architecture)
	userRepo := repository.NewUserRepository(pool)
	saleRepo := repository.NewSaleRepository(pool)
	stockRepo := repository.NewStockRepository(pool)
	orderRepo := repository.NewOrderRepository(pool)

	locker := database.NewAdvisoryLock(pool)
	saleService := service.NewSaleService(saleRepo, store, locker)
	stockService := service.NewStockService(pool, stockRepo)
	statusService := service.NewStatusService(store)
	statsService := service.NewStatsService(saleService, orderRepo, store)
	purchaseService = service.NewPurchaseService(
		pool, store, purchaseQueue, saleService, stockService, orderRepo,
		cfg.RateLimit.MaxAttemptsPerMinute,
	)

	// HTTP surface
	app := fiber.New(fiber.Config{
		AppName:      "Flash Sale Processor",
		ReadTimeout:  time.Duration(cfg.Server.RequestTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.RequestTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
		BodyLimit:    1 * 1024 * 1024, // 1MB body limit
	})

	app.Use(recover.New())
	app.Use(requestid.New()) // Adds X-Request-ID header to all requests
	app.Use(logger.New())

	validate := validator.New()
	authMw := auth.NewMiddleware(cfg.Auth.JWTSecret, userRepo)

	saleHandler := handler.NewSaleHandler(saleService)
	purchaseHandler := handler.NewPurchaseHandler(purchaseService, statusService, validate)
	queueHandler := handler.NewQueueHandler(purchaseQueue, pool, store)
	adminHandler := handler.NewAdminHandler(statsService)

	app.Get("/flash-sale/status", authMw.Authenticate(false), saleHandler.Status)
	app.Post("/purchase", authMw.Authenticate(true), purchaseHandler.Purchase)
	app.Get("/purchase/status", authMw.Authenticate(true), purchaseHandler.PurchaseStatus)
	app.Get("/purchase/job/:jobId", authMw.Authenticate(true), purchaseHandler.JobStatus)
	app.Get("/queue/stats", authMw.Authenticate(true), auth.RequireAdmin, queueHandler.Stats)
	app.Get("/queue/health", queueHandler.Health)
	app.Get("/admin/flash-sale/:saleId/stats", authMw.Authenticate(true), auth.RequireAdmin, adminHandler.SaleStats)

	// Background tasks: worker pool and lifecycle ticker
	workerCtx, stopWorkers := context.WithCancel(ctx)
	workerPool := worker.NewPool(purchaseQueue, purchaseService, cfg.Worker.Concurrency)
	workersDone := make(chan struct{})
	go func() {
		defer close(workersDone)
		if err := workerPool.Run(workerCtx); err != nil {
			log.Error().Err(err).Msg("worker pool exited with error")
		}
	}()

	ticker, err := worker.StartLifecycleTicker(saleService)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start lifecycle ticker")
	}

	// Prometheus exposition on its own listener
	metricsSrv := &http.Server{Addr: ":" + cfg.Metrics.Port, Handler: promhttp.Handler()}
	go func() {
		log.Info().Str("port", cfg.Metrics.Port).Msg("metrics listener started")
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics listener failed")
		}
	}()

	// Start server with graceful shutdown
	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("starting server")
		if err := app.Listen(":" + cfg.Server.Port); err != nil {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	log.Info().Int("timeout_seconds", cfg.Server.ShutdownTimeout).Msg("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout)*time.Second,
	)
	defer shutdownCancel()

	// Shutdown server (waits for in-flight requests)
	log.Info().Msg("waiting for in-flight requests to complete...")
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error during server shutdown")
	}
	_ = metricsSrv.Shutdown(shutdownCtx)

	// Stop the ticker, then drain workers before closing connections
	ticker.Stop()
	stopWorkers()
	select {
	case <-workersDone:
		log.Info().Msg("workers drained")
	case <-shutdownCtx.Done():
		log.Warn().Msg("shutdown timeout reached while draining workers")
	}

	if err := purchaseQueue.Close(); err != nil {
		log.Error().Err(err).Msg("error closing queue")
	}
	if err := store.Close(); err != nil {
		log.Error().Err(err).Msg("error closing coordination store")
	}
	log.Info().Msg("closing database connections...")
	pool.Close()
	log.Info().Msg("server stopped")
}

// initLogger configures zerolog based on the application configuration.
func initLogger(cfg *config.Config) {
	// Set log level
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Configure output format
	if cfg.Log.Pretty {
		// Human-readable output for development
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
			With().Timestamp().Logger()
	} else {
		// JSON output for production
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
}
