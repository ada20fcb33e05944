package main

import (
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/familiar-chat/mediagate/internal/database"
	"github.com/familiar-chat/mediagate/internal/presence"
	"github.com/familiar-chat/mediagate/internal/tasks"
	"github.com/familiar-chat/mediagate/pkg/config"
	"github.com/familiar-chat/mediagate/pkg/metrics"
	"github.com/familiar-chat/mediagate/pkg/queue"
	"github.com/familiar-chat/mediagate/pkg/util"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
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

	logger.Info("starting mediagate worker",
		"concurrency", cfg.Presence.Concurrency,
		"max_retries", cfg.Presence.MaxRetries,
	)

	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	srv := queue.NewServer(&cfg.Redis, cfg.Presence.Concurrency)

	aggregator := presence.NewAggregator(db, logger, cfg.Presence.MaxRetries)
	handler := tasks.NewHandler(aggregator, logger)

	mux := asynq.NewServeMux()
	handler.RegisterHandlers(mux)

	// Recount outcomes are exported from the worker process.
	metricsAddr := os.Getenv("WORKER_METRICS_ADDR")
	if metricsAddr != "" {
		go func() {
			logger.Info("worker metrics listening", "addr", metricsAddr)
			if err := http.ListenAndServe(metricsAddr, metrics.Handler()); err != nil {
				logger.Error("worker metrics server error", "error", err)
			}
		}()
	}

	if err := srv.Start(mux); err != nil {
		logger.Error("worker error", "error", err)
		os.Exit(1)
	}
	logger.Info("worker started, waiting for tasks...")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down worker...")
	srv.Shutdown()

	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}

	logger.Info("worker stopped")
}
