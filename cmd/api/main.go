package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/bobarin/imagetiming/internal/allocator"
	"github.com/bobarin/imagetiming/internal/api"
	"github.com/bobarin/imagetiming/internal/cache"
	"github.com/bobarin/imagetiming/internal/config"
	"github.com/bobarin/imagetiming/internal/db"
	"github.com/bobarin/imagetiming/internal/logging"
	"github.com/bobarin/imagetiming/internal/matcher"
	"github.com/bobarin/imagetiming/internal/pipeline"
	"github.com/bobarin/imagetiming/internal/queue"
	"github.com/bobarin/imagetiming/internal/services"
	"github.com/bobarin/imagetiming/internal/storage"
	"github.com/bobarin/imagetiming/internal/timeline"
	"github.com/bobarin/imagetiming/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	logger.Info("starting imagetiming api")

	database, err := db.New(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer database.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = database.Migrate(ctx)
	cancel()
	if err != nil {
		return err
	}
	logger.Info("connected to database")

	q, err := queue.New(cfg.RedisURL)
	if err != nil {
		return err
	}
	defer q.Close()
	logger.Info("connected to redis queue")

	store, err := newCacheStore(cfg, q, logger)
	if err != nil {
		return err
	}

	apiKey, _ := cfg.ProviderKey()
	model := cfg.OpenAIModel
	if cfg.AllocationProvider == config.ProviderGemini {
		model = cfg.GeminiModel
	}
	assistant, err := services.NewAssistant(context.Background(), cfg.AllocationProvider, apiKey, model, logger)
	if err != nil {
		return err
	}

	var semantic allocator.Allocator
	if assistant != nil {
		semantic = allocator.NewSemantic(assistant, store, cfg.SemanticOptions(), logger)
		logger.Info("semantic allocation enabled", zap.String("provider", cfg.AllocationProvider))
	} else {
		logger.Warn("no allocation provider configured, semantic jobs will split evenly")
	}

	p := pipeline.New(
		cfg.PipelineOptions(),
		allocator.NewKeyword(matcher.New(cfg.Weights(), logger)),
		semantic,
		timeline.NewReconciler(cfg.Limits(), logger),
		logger,
	)

	var (
		urls     api.URLResolver
		uploader worker.Uploader
	)
	if cfg.StorageEnabled() {
		stor := storage.New(cfg.SupabaseURL, cfg.SupabaseServiceKey, cfg.SupabaseStorageBucket, logger)
		urls = stor
		uploader = stor
		logger.Info("timeline uploads enabled", zap.String("bucket", cfg.SupabaseStorageBucket))
	}

	handler := api.NewHandler(database, q, urls, p, logger)
	router := api.NewRouter(handler, api.RouterConfig{
		BackendAPIKey:      cfg.BackendAPIKey,
		CorsAllowedOrigins: cfg.CorsAllowedOrigins,
	})

	if cfg.BackendAPIKey == "" {
		logger.Warn("no BACKEND_API_KEY set, API is unprotected (dev mode)")
	}

	server := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	if cfg.WorkerEnabled {
		w := worker.New(database, q, uploader, p, logger)
		go w.Start(workerCtx, cfg.MaxConcurrentJobs)
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("api server listening", zap.String("port", cfg.APIPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info("shutting down server")
	workerCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server exited")
	return nil
}

func newCacheStore(cfg *config.Config, q *queue.Queue, logger *zap.Logger) (cache.Store, error) {
	switch cfg.CacheBackend {
	case config.CacheRedis:
		return cache.NewRedisStore(q.Client()), nil
	case config.CacheFile:
		return cache.NewFileStore(cfg.CachePath, logger), nil
	case config.CacheMemory:
		return cache.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
	}
}
