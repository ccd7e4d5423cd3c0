package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/hackgods/coach-onboarding/internal/accounts"
	"github.com/hackgods/coach-onboarding/internal/api"
	"github.com/hackgods/coach-onboarding/internal/availability"
	"github.com/hackgods/coach-onboarding/internal/config"
	"github.com/hackgods/coach-onboarding/internal/db"
	"github.com/hackgods/coach-onboarding/internal/metrics"
	"github.com/hackgods/coach-onboarding/internal/pipeline"
	redisclient "github.com/hackgods/coach-onboarding/internal/redis"
	"github.com/hackgods/coach-onboarding/internal/survey"
	"github.com/hackgods/coach-onboarding/pkg/logging"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("api-server starting up",
		zap.String("env", cfg.Env),
		zap.String("http_port", cfg.HTTPPort),
		zap.String("version", version))

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()
	logger.Info("connected to Postgres")

	// Connect Redis
	rdb, err := redisclient.NewRedisClient(rootCtx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		logger.Fatal("redis connection error", zap.Error(err))
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Warn("error closing redis", zap.Error(err))
		}
	}()
	logger.Info("connected to Redis")

	locker := redisclient.NewRedisLocker(rdb, cfg.LockTTL, cfg.LockWait)
	m := metrics.New(prometheus.DefaultRegisterer)

	slots, err := availability.NewService(availability.NewPgRepository(pgPool), locker, cfg,
		availability.WithMetrics(m),
		availability.WithLogger(logger.Named("availability")))
	if err != nil {
		logger.Fatal("availability service init error", zap.Error(err))
	}

	issuer := accounts.NewIssuer(accounts.NewPgStore(pgPool))

	prospects := pipeline.NewService(pipeline.NewPgRepository(pgPool), locker, slots, issuer, cfg,
		pipeline.WithMetrics(m),
		pipeline.WithLogger(logger.Named("pipeline")))

	surveys := survey.NewService(survey.NewPgRepository(pgPool), locker,
		survey.WithMetrics(m),
		survey.WithRespondentKey([]byte(cfg.RespondentKey)),
		survey.WithLogger(logger.Named("survey")))

	router := api.NewRouter(api.RouterConfig{
		Prospects:    prospects,
		Availability: slots,
		Surveys:      surveys,
		PgPool:       pgPool,
		Redis:        rdb,
		Gatherer:     prometheus.DefaultGatherer,
		Logger:       logger,
		Env:          cfg.Env,
		Version:      version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			logger.Error("http server error", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}

	logger.Info("api-server stopped")
}
