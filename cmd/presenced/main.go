package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/Dasi-Technology/presenced/internal/bus"
	"github.com/Dasi-Technology/presenced/internal/config"
	"github.com/Dasi-Technology/presenced/internal/health"
	"github.com/Dasi-Technology/presenced/internal/logging"
	"github.com/Dasi-Technology/presenced/internal/manager"
	"github.com/Dasi-Technology/presenced/internal/middleware"
	"github.com/Dasi-Technology/presenced/internal/ratelimit"
	"github.com/Dasi-Technology/presenced/internal/tracing"
	"github.com/Dasi-Technology/presenced/internal/transport"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.ValidateEnv()
	if err != nil {
		panic(err)
	}

	if err := logging.Initialize(cfg.GoEnv != "production"); err != nil {
		panic(err)
	}
	ctx := context.Background()

	tracingEnabled := false
	if cfg.OTelCollectorAddr != "" {
		tp, err := tracing.InitTracer(ctx, "presenced", cfg.OTelCollectorAddr)
		if err != nil {
			logging.Error(ctx, "failed to initialize tracer, continuing without tracing", zap.Error(err))
		} else {
			defer func() { _ = tp.Shutdown(ctx) }()
			tracingEnabled = true
		}
	}

	instanceID := uuid.New().String()
	busService, err := bus.NewService(cfg.BusURL, "", instanceID)
	if err != nil {
		logging.Fatal(ctx, "failed to connect to presence bus", zap.Error(err))
	}
	defer busService.Close()

	mgr := manager.New(busService)

	rateLimiter, err := ratelimit.NewRateLimiter(cfg, busService.Client())
	if err != nil {
		logging.Fatal(ctx, "failed to initialize rate limiter", zap.Error(err))
	}

	endpoint := transport.NewEndpoint(
		mgr,
		cfg.AllowedOrigins,
		cfg.HeartbeatInterval,
		cfg.ClientTimeout,
		cfg.OutboundQueueCapacity,
	)

	healthHandler := health.NewHandler(busService)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	if tracingEnabled {
		router.Use(otelgin.Middleware("presenced"))
	}

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.AllowedOrigins
	router.Use(cors.New(corsConfig))

	router.GET("/health/live", healthHandler.Liveness)
	router.GET("/health/ready", healthHandler.Readiness)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/ws", func(c *gin.Context) {
		if !rateLimiter.CheckWebSocket(c) {
			return
		}
		endpoint.ServeWS(c)
	})

	srv := &http.Server{
		Addr:    ":" + strconv.Itoa(cfg.WSPort),
		Handler: router,
	}

	go func() {
		logging.Info(ctx, "presence service starting", zap.Int("port", cfg.WSPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatal(ctx, "server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logging.Info(ctx, "shutting down presence service")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error(ctx, "server forced to shut down", zap.Error(err))
	}

	logging.Info(ctx, "presence service exited")
}
