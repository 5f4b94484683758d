package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/internal/api"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/internal/api/handlers"
	mw "github.com/ikon5387/ikon-systems-dashboard-v2-sub001/internal/api/middleware"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/internal/engine"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/internal/metrics"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/internal/queue"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/internal/repository"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/internal/services"
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

	log.Info("starting deployment engine API",
		zap.String("env", cfg.AppEnv),
		zap.String("addr", cfg.HTTPAddr),
		zap.String("dispatch", cfg.DispatchMode),
	)

	ctx := context.Background()
	db, err := database.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL, cfg.AppEnv == "development")
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer database.Close(db)
	// sqlite is the local development store and has no separate migrate step
	if cfg.DatabaseDriver == "sqlite" {
		if err := repository.Migrate(db); err != nil {
			log.Fatal("migration failed", zap.Error(err))
		}
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	eng, err := engine.New(cfg, db, m)
	if err != nil {
		log.Fatal("failed to assemble engine", zap.Error(err))
	}

	readiness := map[string]handlers.ReadinessCheck{
		"database": func(ctx context.Context) error { return database.Ping(ctx, db) },
	}

	var (
		dispatcher  services.Dispatcher
		inline      *queue.InlineDispatcher
		asynqClient *asynq.Client
	)
	if cfg.IsQueue() {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rdb.Close()
		readiness["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }

		asynqClient = asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer asynqClient.Close()
		dispatcher = queue.NewAsynqDispatcher(asynqClient)
	} else {
		inline = queue.NewInlineDispatcher(eng.Orchestrator.Execute)
		dispatcher = inline

		// runs interrupted by a previous exit have no other owner in inline mode
		n, err := services.ResumeInFlight(ctx, eng.Deployments, eng.Logs, inline)
		if err != nil {
			log.Error("failed to resume interrupted pipelines", zap.Error(err))
		} else if n > 0 {
			log.Info("resumed interrupted pipelines", zap.Int("count", n))
		}
	}

	limiter := mw.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	defer limiter.Stop()

	router := api.NewRouter(api.Dependencies{
		Deployments: eng.Service(dispatcher),
		Readiness:   readiness,
		RateLimiter: limiter,
		Metrics:     m,
		Gatherer:    prometheus.DefaultGatherer,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server starting", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("shutdown signal received", zap.String("signal", sig.String()))
	case err := <-errCh:
		log.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown error", zap.Error(err))
	}
	if inline != nil {
		if err := inline.Shutdown(shutdownCtx); err != nil {
			log.Warn("pipelines cancelled before completion", zap.Error(err))
		}
	}
	log.Info("server exited gracefully")
}
