package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/goride/dispatch/internal/assignment"
	"github.com/goride/dispatch/internal/drivers"
	"github.com/goride/dispatch/internal/geoindex"
	"github.com/goride/dispatch/internal/matching"
	"github.com/goride/dispatch/internal/models"
	"github.com/goride/dispatch/internal/payments"
	"github.com/goride/dispatch/internal/rides"
	"github.com/goride/dispatch/internal/store"
	"github.com/goride/dispatch/internal/trips"
	"github.com/goride/dispatch/pkg/common"
	"github.com/goride/dispatch/pkg/config"
	"github.com/goride/dispatch/pkg/database"
	"github.com/goride/dispatch/pkg/logger"
	"github.com/goride/dispatch/pkg/middleware"
	redisclient "github.com/goride/dispatch/pkg/redis"
)

const (
	serviceName = "dispatch"
	version     = "1.0.0"
)

func main() {
	cfg, err := config.Load(serviceName)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	if err := logger.Init(cfg.Server.Environment); err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	pool, err := database.NewPostgresPool(&cfg.Database)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer database.Close(pool)

	redis, err := redisclient.NewRedisClient(&cfg.Redis)
	if err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer func() { _ = redis.Close() }()

	db := store.New(pool)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := db.EnsureSchema(ctx); err != nil {
		cancel()
		logger.Fatal("failed to ensure schema", zap.Error(err))
	}
	cancel()

	index := geoindex.New(redis, cfg.Dispatch.MaxPositionAge)
	matcher := matching.New(index, cfg.Dispatch.RadiusSearchLimit)
	assignments := assignment.New(db, cfg.Dispatch.AssignmentTTL)
	settler := payments.NewSettler(db, payments.NewSimulatedProvider(), cfg.Dispatch.SettlementDelay)
	tripManager := trips.New(db, index, settler)
	orchestrator := rides.NewOrchestrator(db, matcher, assignments, cfg.Dispatch.MatchRadiusKm)

	sweeperCtx, stopSweeper := context.WithCancel(context.Background())
	sweeper := geoindex.NewSweeper(index, cfg.Dispatch.GeoSweepInterval)
	go sweeper.Run(sweeperCtx)

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	models.RegisterValidations()

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.RequestLogger(serviceName))
	router.Use(middleware.CORS())
	router.Use(middleware.Metrics(serviceName))

	router.GET("/healthz", common.HealthCheck(serviceName, version))
	router.GET("/health/ready", common.ReadinessProbe(serviceName, version, map[string]func() error{
		"database": func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return db.Ping(ctx)
		},
		"redis": func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return redis.Ping(ctx).Err()
		},
	}))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	rides.NewHandler(orchestrator).RegisterRoutes(v1)
	drivers.NewHandler(db, index, assignments).RegisterRoutes(v1)
	trips.NewHandler(tripManager).RegisterRoutes(v1)
	payments.NewHandler(db, settler).RegisterRoutes(v1)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("dispatch service starting",
			zap.String("port", cfg.Server.Port),
			zap.String("environment", cfg.Server.Environment))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down dispatch service")
	stopSweeper()
	assignments.Shutdown()
	settler.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("forced shutdown", zap.Error(err))
	}

	logger.Info("dispatch service stopped")
}
