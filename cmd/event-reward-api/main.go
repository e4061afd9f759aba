package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/event-reward-api/api/swagger"
	"github.com/noah-isme/event-reward-api/internal/handler"
	internalmiddleware "github.com/noah-isme/event-reward-api/internal/middleware"
	"github.com/noah-isme/event-reward-api/internal/models"
	"github.com/noah-isme/event-reward-api/internal/repository"
	"github.com/noah-isme/event-reward-api/internal/service"
	"github.com/noah-isme/event-reward-api/pkg/cache"
	"github.com/noah-isme/event-reward-api/pkg/config"
	"github.com/noah-isme/event-reward-api/pkg/database"
	"github.com/noah-isme/event-reward-api/pkg/jobs"
	"github.com/noah-isme/event-reward-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/event-reward-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/event-reward-api/pkg/middleware/requestid"
)

// @title Event Reward API
// @version 1.0.0
// @description Reward claims for promotional events: submission, eligibility, review and distribution.
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	var redisClient *redis.Client
	if client, err := cache.NewRedis(ctx, cfg.Redis); err != nil {
		logr.Warn("redis unavailable, running without cache and distribution locks", zap.Error(err))
	} else {
		redisClient = client
		defer redisClient.Close()
	}

	validate := validator.New()
	metrics := service.NewMetricsService()

	eventRepo := repository.NewEventRepository(db)
	rewardRepo := repository.NewRewardRepository(db)
	requestRepo := repository.NewRewardRequestRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	lockRepo := repository.NewLockRepository(redisClient)
	if !lockRepo.Distributed() {
		logr.Warn("redis unavailable, redistribution locks are local to this instance")
	}

	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Cache.TTL, logr, cfg.Cache.Enabled && redisClient != nil)
	authSvc := service.NewAuthService(cfg.Auth, logr)
	eligibilitySvc := service.NewEligibilityService(cfg.Services, metrics, logr)
	distributionSvc := service.NewDistributionService(cfg.Services, metrics, logr)
	eventSvc := service.NewEventService(eventRepo, cacheSvc, auditRepo, validate, logr)
	rewardSvc := service.NewRewardService(rewardRepo, eventRepo, cacheSvc, auditRepo, validate, logr)

	var queue *jobs.Queue
	requestSvc := service.NewRewardRequestService(
		requestRepo, eventRepo, rewardRepo, eligibilitySvc, distributionSvc, validate, logr,
		service.WithRequestCache(cacheSvc, cfg.Cache.TTL),
		service.WithRequestAudit(auditRepo),
		service.WithRequestLocker(lockRepo, cfg.Redistribution.LockTTL),
		service.WithRequestMetrics(metrics),
		func(s *service.RewardRequestService) {
			queue = jobs.NewQueue("redistribution", s.HandleRedistributionJob, jobs.QueueConfig{
				Workers:    cfg.Redistribution.Workers,
				BufferSize: cfg.Redistribution.BufferSize,
				MaxRetries: 2,
				RetryDelay: 2 * time.Second,
				Logger:     logr,
			})
			service.WithRedistributionQueue(queue)(s)
		},
	)
	exportSvc := service.NewExportService(requestRepo, requestSvc, logr, nil, nil)

	queue.Start(ctx)
	defer queue.Stop()

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metrics, "/metrics"))
	r.Use(internalmiddleware.WithResponseMeta())

	readiness := map[string]handler.ReadinessCheck{
		"postgres": db.PingContext,
	}
	if redisClient != nil {
		readiness["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}
	ops := handler.NewMetricsHandler(metrics, readiness)
	r.GET("/health", ops.Health)
	r.GET("/ready", ops.Ready)
	r.GET("/metrics", ops.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	handler.Routes{
		Auth:          internalmiddleware.Authenticate(authSvc),
		SweepAudit:    internalmiddleware.Audit(auditRepo, logr, models.AuditActionRequestSweep, "reward_request"),
		Identity:      handler.NewAuthHandler(authSvc),
		Events:        handler.NewEventHandler(eventSvc),
		Rewards:       handler.NewRewardHandler(rewardSvc),
		RewardRequest: handler.NewRewardRequestHandler(requestSvc, exportSvc, cfg.Redistribution.BatchLimit),
	}.Register(r.Group(cfg.APIPrefix))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env), zap.String("auth_mode", authSvc.Mode()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}
