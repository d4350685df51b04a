package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httphandlers "peercore/internal/handlers/http"
	"peercore/internal/core/services/peer"
	"peercore/internal/infrastructure/middleware"
	"peercore/internal/infrastructure/monitoring"
	redisrepo "peercore/internal/infrastructure/repositories/redis"
	infrasignal "peercore/internal/infrastructure/signal"
	"peercore/pkg/config"
	"peercore/pkg/logger"
	"peercore/pkg/tracing"
)

func main() {
	startTime := time.Now()

	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"/root/configs/config.yaml",
		"config.yaml",
	}

	var cfg *config.Config
	var err error
	for _, path := range configPaths {
		cfg, err = config.Load(path)
		if err == nil {
			break
		}
	}
	if err != nil {
		cfg = config.DefaultConfig()
	}

	zapLogger := logger.New(cfg.Logging.Level)
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	tracerProvider, err := tracing.Init(tracing.DefaultConfig())
	if err != nil {
		log.Warnw("tracing disabled, failed to initialize", "error", err)
	} else {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tracerProvider.Shutdown(ctx)
		}()
	}

	healthChecker := monitoring.NewHealthChecker()

	var peerDir *redisrepo.PeerDirectory
	if cfg.Redis.Enabled {
		redisClient, err := redisrepo.NewRedisClient(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.PoolSize, log)
		if err != nil {
			log.Fatalw("failed to connect to redis", "error", err)
		}
		peerDir = redisrepo.NewPeerDirectory(redisClient, 30*time.Second)
		healthChecker.AddRedisCheck(redisClient, 30*time.Second, 2*time.Second)
		healthChecker.AddPeerDirectoryCheck(peerDir, 30*time.Second, 2*time.Second)
	}

	auth := infrasignal.NewPeerAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL)
	router := infrasignal.NewRouter(nil, zapLogger)

	peerCfg := peer.Config{
		MaxVideoIntervalMs: cfg.Rtcp.MaxVideoIntervalMs,
		RtcpBufferSize:     cfg.Rtcp.RtcpBufferSize,
	}

	signalCfg := infrasignal.DefaultConfig()
	signalCfg.PingInterval = cfg.Signal.PingInterval
	signalCfg.PongTimeout = cfg.Signal.PongTimeout
	if cfg.RateLimiting.Enabled {
		signalCfg.RequestsPerSecond = cfg.RateLimiting.WebSocket.MessagesPerSecond
		signalCfg.Burst = cfg.RateLimiting.WebSocket.Burst
	}

	signalServer := infrasignal.NewServer(signalCfg, peerCfg, auth, router, zapLogger)
	router.SetNotifier(signalServer)

	if cfg.Monitoring.PrometheusEnabled {
		signalServer.SetMetrics(monitoring.NewPrometheusCollector())
	}
	if peerDir != nil {
		signalServer.SetPeerDirectory(peerDir, cfg.Signal.Address)
	}

	peerHandler := httphandlers.NewPeerHandler(signalServer)

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	ginRouter := gin.Default()
	ginRouter.Use(middleware.RecoveryMiddleware(log))
	ginRouter.Use(middleware.TracingMiddleware())
	ginRouter.Use(middleware.NewHTTPRateLimitMiddleware(cfg))

	peerHandler.SetupRoutes(ginRouter)

	ginRouter.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
			"uptime":    time.Since(startTime).String(),
		})
	})

	ginRouter.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		status := healthChecker.GetReadinessStatus(ctx)
		if status.Status != "healthy" {
			c.JSON(http.StatusServiceUnavailable, status)
			return
		}
		c.JSON(http.StatusOK, status)
	})

	if cfg.Monitoring.PrometheusEnabled {
		ginRouter.GET("/metrics", gin.WrapH(promhttp.Handler()))
		log.Info("prometheus metrics enabled")
	}

	httpSrv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      ginRouter,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	wsMux := http.NewServeMux()
	wsMux.HandleFunc("/ws", signalServer.HandleWebSocket)
	wsMux.HandleFunc("/health", signalServer.HealthCheck)
	wsSrv := &http.Server{
		Addr:         cfg.Signal.Address,
		Handler:      wsMux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 2)
	go func() {
		log.Infof("starting admin/HTTP server on %s", cfg.Server.Address)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()
	go func() {
		log.Infof("starting peer control-channel server on %s", cfg.Signal.Address)
		if err := wsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Fatalw("server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("received shutdown signal", "signal", sig)
	}

	log.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error during admin server shutdown", "error", err)
	}
	if err := wsSrv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error during control-channel server shutdown", "error", err)
	}

	log.Info("peercore sfu stopped")
}
