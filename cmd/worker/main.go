package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/clinic-queue-api/internal/config"
	"github.com/jwalitptl/clinic-queue-api/internal/repository/postgres"
	statsService "github.com/jwalitptl/clinic-queue-api/internal/service/stats"
	syncService "github.com/jwalitptl/clinic-queue-api/internal/service/sync"
	"github.com/jwalitptl/clinic-queue-api/internal/worker"
	"github.com/jwalitptl/clinic-queue-api/pkg/logger"
	"github.com/jwalitptl/clinic-queue-api/pkg/messaging/redis"
	"github.com/jwalitptl/clinic-queue-api/pkg/metrics"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	var workerCfg worker.Config
	if err := envconfig.Process("sweeper", &workerCfg); err != nil {
		log.Fatal().Err(err).Msg("failed to load sweeper configuration")
	}

	appLogger := logger.NewLogger(nil)
	zl := appLogger.Zerolog()

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	broker, err := redis.NewRedisBroker(redis.Config{
		URL:          cfg.Redis.URL,
		MaxRetries:   cfg.Redis.MaxRetries,
		RetryBackoff: cfg.Redis.RetryBackoff,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	}, zl)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Redis")
	}
	defer broker.Close()

	m := metrics.NewMetrics("clinic_queue_worker")

	tokenRepo := postgres.NewTokenRepository(db)
	scheduleRepo := postgres.NewScheduleRepository(db)
	statsRepo := postgres.NewStatsRepository(db)
	changeRequestRepo := postgres.NewChangeRequestRepository(db)

	broadcaster := syncService.NewBroadcaster(broker, zl, m)
	dispatcher := syncService.NewDispatcher(zl, m)

	statsSvc := statsService.NewService(
		statsRepo, tokenRepo, scheduleRepo,
		broadcaster, dispatcher, cfg.Stats.ValidityWindow, m,
	)

	sweeper := worker.NewSweeper(tokenRepo, changeRequestRepo, statsSvc, zl, m, workerCfg)

	setupHealthCheck(db)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info().Msg("shutting down...")
		cancel()
	}()

	if err := sweeper.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("sweeper failed")
	}
}

func setupHealthCheck(db interface{ Ping() error }) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	go func() {
		if err := http.ListenAndServe(":8081", mux); err != nil {
			log.Error().Err(err).Msg("health check server failed")
			os.Exit(1)
		}
	}()
}
