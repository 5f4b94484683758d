package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/internal/engine"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/internal/metrics"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/internal/queue/tasks"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/pkg/config"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/pkg/database"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/pkg/logger"
)

func main() {
	cfg := config.MustLoad()
	log, err := logger.Init(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if cfg.RedisAddr == "" {
		log.Fatal("REDIS_ADDR is required to run the worker")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	defer rdb.Close()

	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatal("redis connection failed", zap.Error(err))
	}

	ctx := context.Background()
	db, err := database.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL, false)
	if err != nil {
		log.Fatal("failed to open database", zap.Error(err))
	}
	defer database.Close(db)

	eng, err := engine.New(cfg, db, metrics.New(prometheus.DefaultRegisterer))
	if err != nil {
		log.Fatal("failed to assemble engine", zap.Error(err))
	}

	lockTTL := engine.LockTTL(len(eng.Runner.Stages()), cfg.StageTimeout)
	handler := tasks.NewProvisionTaskHandler(eng.Orchestrator, tasks.NewRedisLocker(rdb), lockTTL)

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       0,
		},
		asynq.Config{
			Concurrency:     cfg.AsynqConcurrency,
			IsFailure:       tasks.IsFailure,
			RetryDelayFunc:  tasks.RetryDelay,
			ShutdownTimeout: cfg.ShutdownTimeout,
			Logger:          log.Sugar(),
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeDeploymentProvision, handler.HandleProvision)

	errCh := make(chan error, 1)
	go func() {
		log.Info("asynq worker starting",
			zap.Int("concurrency", cfg.AsynqConcurrency),
			zap.Duration("lock_ttl", lockTTL),
		)
		if err := srv.Run(mux); err != nil {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("shutdown signal received", zap.String("signal", sig.String()))
	case err := <-errCh:
		log.Error("worker stopped with error", zap.Error(err))
	}

	// waits up to ShutdownTimeout for in-flight pipelines
	srv.Shutdown()
}
