package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"feedpipe/internal/config"
	"feedpipe/internal/infra/bus"
	"feedpipe/internal/infra/feedclient"
	"feedpipe/internal/infra/feedfinder"
	"feedpipe/internal/infra/health"
	"feedpipe/internal/observability/logging"
	"feedpipe/internal/observability/tracing"
	workerUC "feedpipe/internal/usecase/worker"
)

func main() {
	// .env is optional; deployments set the environment directly.
	_ = godotenv.Load()

	logger := initLogger()
	tracing.SetupPropagation()

	// Context for graceful shutdown of the bus and the HTTP servers
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	workerConfig, err := config.LoadWorkerConfig()
	if err != nil {
		logger.Error("failed to load worker configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("worker configuration loaded",
		slog.String("user_agent", workerConfig.UserAgent),
		slog.Bool("deny_private_ips", workerConfig.DenyPrivateIPs),
		slog.Duration("fetch_timeout", workerConfig.FetchTimeout),
		slog.Duration("probe_timeout", workerConfig.ProbeTimeout),
		slog.Int("health_port", workerConfig.HealthPort))

	busConfig, err := config.LoadBusConfig()
	if err != nil {
		logger.Error("failed to load bus configuration", slog.Any("error", err))
		os.Exit(1)
	}
	// メモリバスは harbor プロセスの中で完結する。独立した worker は
	// Redis 経由でしか繋がらない。
	if busConfig.Driver != config.BusDriverRedis {
		logger.Error("worker requires BUS_DRIVER=redis; the memory bus lives inside the harbor process")
		os.Exit(1)
	}

	redisCfg := bus.DefaultRedisConfig()
	redisCfg.URL = busConfig.RedisURL
	redisBus, err := bus.NewRedisBus(redisCfg)
	if err != nil {
		logger.Error("failed to connect to redis", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("bus initialized", slog.String("driver", busConfig.Driver))

	feedReader, pageReader, imageReader := buildReaders(workerConfig)
	finder := feedfinder.NewFinder(feedReader)

	workerService := workerUC.NewService(redisBus, finder, feedReader, pageReader, imageReader, workerUC.Config{
		ProbeTimeout: workerConfig.ProbeTimeout,
		ProbeReferer: workerConfig.ProbeReferer,
	})
	workerService.Register(redisBus)

	startMetricsServer(ctx, logger, map[string]*feedclient.Reader{
		"feed":    feedReader,
		"webpage": pageReader,
		"image":   imageReader,
	})

	healthAddr := fmt.Sprintf(":%d", workerConfig.HealthPort)
	healthServer := health.NewServer(healthAddr, logger)
	healthServer.AddCheck("bus", redisBus.Ping)
	go func() {
		if err := healthServer.Start(ctx); err != nil && err != http.ErrServerClosed {
			logger.Error("health server failed", slog.Any("error", err))
		}
	}()
	logger.Info("health check server started", slog.String("addr", healthAddr))

	busDone := make(chan error, 1)
	go func() {
		busDone <- redisBus.Run(ctx)
	}()

	healthServer.SetReady(true)
	logger.Info("worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down worker...")

	// Drain order: readiness off first, then stop consuming. Unacked
	// messages are reclaimed by the surviving consumers.
	healthServer.SetReady(false)
	cancel()

	if err := <-busDone; err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("bus stopped with error", slog.Any("error", err))
	}
	if err := redisBus.Close(); err != nil {
		logger.Error("failed to close redis bus", slog.Any("error", err))
	}
	logger.Info("worker stopped")
}

// initLogger initializes and returns a structured logger based on environment configuration.
// LOG_FORMAT=text switches to the human-readable handler for local runs.
func initLogger() *slog.Logger {
	var logger *slog.Logger
	if os.Getenv("LOG_FORMAT") == "text" {
		logger = logging.NewTextLogger()
	} else {
		logger = logging.NewLogger()
	}
	logger = logging.WithFields(logger, map[string]any{"process": "worker"})
	slog.SetDefault(logger)
	return logger
}

// buildReaders constructs the three outbound readers: feeds, story
// webpages and image probes, each with its own breaker and politeness
// profile.
func buildReaders(cfg *config.WorkerConfig) (feed, page, image *feedclient.Reader) {
	feedCfg := feedclient.DefaultConfig()
	feedCfg.UserAgent = cfg.UserAgent
	feedCfg.Timeout = cfg.FetchTimeout
	feedCfg.DenyPrivateIPs = cfg.DenyPrivateIPs

	pageCfg := feedclient.WebpageConfig()
	pageCfg.UserAgent = cfg.UserAgent
	pageCfg.Timeout = cfg.FetchTimeout
	pageCfg.DenyPrivateIPs = cfg.DenyPrivateIPs

	imageCfg := feedclient.ImageProbeConfig()
	imageCfg.UserAgent = cfg.UserAgent
	imageCfg.DenyPrivateIPs = cfg.DenyPrivateIPs

	return feedclient.NewReader(feedCfg), feedclient.NewReader(pageCfg), feedclient.NewReader(imageCfg)
}
