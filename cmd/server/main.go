// genflow Server - image generation job orchestration
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pixforge/genflow/internal/application/auth"
	"github.com/pixforge/genflow/internal/application/backend"
	"github.com/pixforge/genflow/internal/application/jobengine"
	"github.com/pixforge/genflow/internal/application/materializer"
	"github.com/pixforge/genflow/internal/application/planner"
	"github.com/pixforge/genflow/internal/application/progress"
	"github.com/pixforge/genflow/internal/application/stats"
	"github.com/pixforge/genflow/internal/config"
	"github.com/pixforge/genflow/internal/infrastructure/api/rest"
	"github.com/pixforge/genflow/internal/infrastructure/cache"
	"github.com/pixforge/genflow/internal/infrastructure/logger"
	"github.com/pixforge/genflow/internal/infrastructure/storage"
	"github.com/pixforge/genflow/internal/infrastructure/tracing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	appLogger := logger.New(cfg.Logging)
	logger.SetDefault(appLogger)

	appLogger.Info("starting genflow server", "port", cfg.Server.Port)

	tracingProvider, err := tracing.NewProvider(context.Background(), tracing.Config{
		Enabled:     os.Getenv("OTEL_ENABLED") == "true",
		ServiceName: envOrDefault("OTEL_SERVICE_NAME", "genflow"),
		Endpoint:    envOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
		Insecure:    os.Getenv("OTEL_EXPORTER_OTLP_INSECURE") != "false",
		SampleRate:  1.0,
	})
	if err != nil {
		appLogger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	if tracingProvider != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tracingProvider.Shutdown(shutdownCtx); err != nil {
				appLogger.Error("failed to shut down tracing provider", "error", err)
			}
		}()
	}

	db, err := storage.NewDB(&storage.Config{
		DSN:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		Debug:           cfg.Database.Debug,
	})
	if err != nil {
		appLogger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer storage.Close(db)

	redisCache, err := cache.NewRedisCache(cfg.Redis)
	if err != nil {
		appLogger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisCache.Close()
	redisClient := redisCache.Client()

	statsRepo := storage.NewStatsRepository(db, cfg.Planner)
	jobRepo := storage.NewJobRepository(db)

	tagPlanner := planner.New(cfg.Planner, statsRepo)
	contentRepo := storage.NewContentRepository(db, tagPlanner, cfg.Planner)

	backendManager, err := backend.NewManager(
		backend.Entry{URL: cfg.Backend.Primary.URL, OutputDir: cfg.Backend.Primary.OutputDir, ModelsDir: cfg.Backend.Primary.ModelsDir},
		backend.Entry{URL: cfg.Backend.Mock.URL, OutputDir: cfg.Backend.Mock.OutputDir, ModelsDir: cfg.Backend.Mock.ModelsDir},
	)
	if err != nil {
		appLogger.Error("failed to initialize backend manager", "error", err)
		os.Exit(1)
	}

	mat := materializer.New(contentRepo, cfg.Storage)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	progressBroker := progress.New(redisClient, appLogger)
	progressBroker.StartRedisBridge(ctx)

	queue, err := jobengine.NewQueue(ctx, redisClient, "genflow-worker")
	if err != nil {
		appLogger.Error("failed to initialize job queue", "error", err)
		os.Exit(1)
	}

	jobManager := jobengine.NewManager(jobRepo, queue, progressBroker, cfg.Orchestrator.DefaultCheckpointName, appLogger)
	worker := jobengine.NewWorker(jobRepo, contentRepo, queue, backendManager, mat, progressBroker, cfg.Orchestrator, appLogger)
	go worker.Run(ctx)

	scheduler := stats.NewScheduler(statsRepo, cfg.Stats, appLogger)
	scheduler.Start(ctx, cfg.Stats.RefreshInterval)

	authVerifier := auth.NewVerifier(cfg.Auth.JWTSecret)
	authMiddleware := rest.NewAuthMiddleware(authVerifier, cfg.Auth.Required)

	router := rest.NewRouter(cfg, appLogger, authMiddleware, jobManager, contentRepo, statsRepo).Build()

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		appLogger.Info("HTTP server starting", "host", cfg.Server.Host, "port", cfg.Server.Port)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			appLogger.Error("server error", "error", err)
			os.Exit(1)
		}

	case <-ctx.Done():
		appLogger.Info("server shutdown initiated")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			appLogger.Error("graceful shutdown failed", "error", err)
			if err := srv.Close(); err != nil {
				appLogger.Error("server close failed", "error", err)
			}
		}

		appLogger.Info("server stopped")
	}
}

func envOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
