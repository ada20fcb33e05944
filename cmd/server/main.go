package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/familiar-chat/mediagate/internal/api"
	"github.com/familiar-chat/mediagate/internal/auth"
	"github.com/familiar-chat/mediagate/internal/database"
	"github.com/familiar-chat/mediagate/internal/media"
	"github.com/familiar-chat/mediagate/internal/objectstore"
	"github.com/familiar-chat/mediagate/internal/presence"
	"github.com/familiar-chat/mediagate/internal/tasks"
	"github.com/familiar-chat/mediagate/pkg/config"
	"github.com/familiar-chat/mediagate/pkg/metrics"
	"github.com/familiar-chat/mediagate/pkg/queue"
	"github.com/familiar-chat/mediagate/pkg/util"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Load .env file
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := util.NewLogger(cfg.Server.Env, cfg.Server.LogLevel)
	slog.SetDefault(logger)
	metrics.Register()

	logger.Info("starting mediagate server",
		"env", cfg.Server.Env,
		"addr", cfg.Server.Addr(),
		"storage_backend", cfg.Storage.Backend,
		"bucket", cfg.Storage.Bucket,
	)

	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	if cfg.Server.IsDevelopment() {
		if err := database.AutoMigrate(db); err != nil {
			logger.Error("failed to migrate database", "error", err)
			os.Exit(1)
		}
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		logger.Warn("failed to connect to Redis", "error", err)
		redisClient = nil
	}

	// Connection changes are recounted by the worker when Redis is up, and
	// inline otherwise.
	var (
		asynqClient *asynq.Client
		notifier    presence.Notifier
	)
	if redisClient != nil {
		asynqClient = queue.NewClient(&cfg.Redis)
		notifier = tasks.NewEnqueuer(asynqClient)
	} else {
		notifier = presence.Inline{
			Aggregator: presence.NewAggregator(db, logger, cfg.Presence.MaxRetries),
		}
	}

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	store, err := objectstore.New(startCtx, &cfg.Storage)
	cancelStart()
	if err != nil {
		logger.Error("failed to create object store", "error", err)
		os.Exit(1)
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.Expiry())
	authorizer := auth.NewAuthorizer(jwtService, auth.NewResolver(db), logger)

	router := api.NewRouter(api.RouterConfig{
		DB:             db,
		Redis:          redisClient,
		Logger:         logger,
		Authorizer:     authorizer,
		Media:          media.NewService(db, store, logger),
		Store:          store,
		Presence:       presence.NewStore(db, notifier, logger),
		IngestToken:    cfg.Presence.IngestToken,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		CORSMaxAge:     cfg.CORS.MaxAgeSeconds,
		RateLimitReqs:  cfg.RateLimit.Requests,
		RateLimitSecs:  cfg.RateLimit.WindowSeconds,
		MaxMemoryBytes: cfg.Upload.MaxMemoryBytes,
		MaxBodyBytes:   cfg.Upload.MaxBodyBytes,
	})
	if cfg.Presence.IngestToken == "" {
		logger.Info("PRESENCE_INGEST_TOKEN not set, connection ingest routes disabled")
	}

	// Uploads stream whole files, so the write timeout is generous.
	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       5 * time.Minute,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", cfg.Server.Addr())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if closer, ok := store.(objectstore.Closer); ok {
		if err := closer.Close(); err != nil {
			logger.Warn("object store close error", "error", err)
		}
	}
	if asynqClient != nil {
		asynqClient.Close()
	}
	if redisClient != nil {
		redisClient.Close()
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}

	logger.Info("server stopped")
}
