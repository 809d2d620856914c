package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/clinic-queue-api/internal/config"
	"github.com/jwalitptl/clinic-queue-api/internal/email"
	"github.com/jwalitptl/clinic-queue-api/internal/handler"
	healthHandler "github.com/jwalitptl/clinic-queue-api/internal/handler/health"
	leaveHandler "github.com/jwalitptl/clinic-queue-api/internal/handler/leave"
	notificationHandler "github.com/jwalitptl/clinic-queue-api/internal/handler/notification"
	prometheusHandler "github.com/jwalitptl/clinic-queue-api/internal/handler/prometheus"
	scheduleHandler "github.com/jwalitptl/clinic-queue-api/internal/handler/schedule"
	statsHandler "github.com/jwalitptl/clinic-queue-api/internal/handler/stats"
	tokenHandler "github.com/jwalitptl/clinic-queue-api/internal/handler/token"
	"github.com/jwalitptl/clinic-queue-api/internal/handler/ws"
	"github.com/jwalitptl/clinic-queue-api/internal/middleware"
	"github.com/jwalitptl/clinic-queue-api/internal/repository/postgres"
	"github.com/jwalitptl/clinic-queue-api/internal/router"
	availabilityService "github.com/jwalitptl/clinic-queue-api/internal/service/availability"
	leaveService "github.com/jwalitptl/clinic-queue-api/internal/service/leave"
	notificationService "github.com/jwalitptl/clinic-queue-api/internal/service/notification"
	statsService "github.com/jwalitptl/clinic-queue-api/internal/service/stats"
	syncService "github.com/jwalitptl/clinic-queue-api/internal/service/sync"
	tokenService "github.com/jwalitptl/clinic-queue-api/internal/service/token"
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

	m := metrics.NewMetrics("clinic_queue")

	// Repositories
	tokenRepo := postgres.NewTokenRepository(db)
	scheduleRepo := postgres.NewScheduleRepository(db)
	leaveRepo := postgres.NewLeaveRepository(db)
	statsRepo := postgres.NewStatsRepository(db)
	notificationRepo := postgres.NewNotificationRepository(db)
	changeRequestRepo := postgres.NewChangeRequestRepository(db)
	doctorDirectory := postgres.NewDoctorDirectory(db)

	// Fan-out plumbing
	broadcaster := syncService.NewBroadcaster(broker, zl, m)
	dispatcher := syncService.NewDispatcher(zl, m)

	// Services
	notificationSvc := notificationService.NewService(notificationRepo, broker)
	emailSvc := email.NewService(cfg.Email)
	tokenSvc := tokenService.NewService(tokenRepo, notificationSvc, broadcaster, dispatcher, m)
	availabilitySvc := availabilityService.NewService(
		scheduleRepo, tokenRepo, changeRequestRepo,
		notificationSvc, broadcaster, dispatcher,
		cfg.Broadcast.AvailabilityCacheTTL, m,
	)
	leaveSvc := leaveService.NewService(
		leaveRepo, availabilitySvc, notificationSvc,
		broadcaster, dispatcher, emailSvc, doctorDirectory,
	)
	statsSvc := statsService.NewService(
		statsRepo, tokenRepo, scheduleRepo,
		broadcaster, dispatcher, cfg.Stats.ValidityWindow, m,
	)

	// WebSocket gateway
	hub := ws.NewHub(broker, zl)

	// Handlers
	handler.RegisterValidations()
	authMiddleware := middleware.NewAuthMiddleware(cfg.JWT.Secret)
	var brokerPinger healthHandler.Pinger
	if p, ok := broker.(healthHandler.Pinger); ok {
		brokerPinger = p
	}

	r := router.NewRouter(
		authMiddleware,
		tokenHandler.NewHandler(tokenSvc),
		scheduleHandler.NewHandler(availabilitySvc),
		leaveHandler.NewHandler(leaveSvc),
		statsHandler.NewHandler(statsSvc),
		notificationHandler.NewHandler(notificationSvc),
		healthHandler.NewHandler(db, brokerPinger),
		ws.NewHandler(hub),
		prometheusHandler.New("clinic_queue"),
		router.Config{
			RateLimitRPS:   cfg.Server.RateLimitRPS,
			RateLimitBurst: cfg.Server.RateLimitBurst,
			CORS:           middleware.DefaultCORSConfig(),
			Timeout:        middleware.DefaultTimeoutConfig(),
		},
	)
	r.Setup()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		appLogger.Info("server listening", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited properly")
}
