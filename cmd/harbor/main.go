package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"feedpipe/internal/config"
	postgres "feedpipe/internal/infra/adapter/persistence/postgres"
	"feedpipe/internal/infra/bus"
	"feedpipe/internal/infra/db"
	"feedpipe/internal/infra/feedclient"
	"feedpipe/internal/infra/feedfinder"
	"feedpipe/internal/infra/health"
	"feedpipe/internal/infra/scheduler"
	"feedpipe/internal/mq"
	"feedpipe/internal/observability/logging"
	"feedpipe/internal/observability/tracing"
	"feedpipe/internal/resilience/circuitbreaker"
	harborUC "feedpipe/internal/usecase/harbor"
	workerUC "feedpipe/internal/usecase/worker"
)

func main() {
	// .env is optional; deployments set the environment directly.
	_ = godotenv.Load()

	logger := initLogger()
	tracing.SetupPropagation()

	database := initDatabase(logger)
	defer func() {
		if err := database.Close(); err != nil {
			logger.Error("failed to close database", slog.Any("error", err))
		}
	}()

	// Context for graceful shutdown of the bus and the HTTP servers
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load scheduler configuration (fail-open strategy)
	schedMetrics := scheduler.NewMetrics()
	schedConfig, err := scheduler.LoadConfigFromEnv(logger, schedMetrics)
	if err != nil {
		logger.Error("failed to load scheduler configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("scheduler configuration loaded",
		slog.Int("check_feed_minutes", schedConfig.CheckFeedMinutes),
		slog.Int("check_feed_limit", schedConfig.CheckFeedLimit),
		slog.Int("clean_feed_creation_minutes", schedConfig.CleanFeedCreationMinutes),
		slog.String("timezone", schedConfig.Timezone),
		slog.Int("health_port", schedConfig.HealthPort))

	busConfig, err := config.LoadBusConfig()
	if err != nil {
		logger.Error("failed to load bus configuration", slog.Any("error", err))
		os.Exit(1)
	}
	b, redisBus := buildBus(logger, busConfig)

	store := postgres.NewStore(database)
	harborService := harborUC.NewService(store, b, harborUC.Config{
		CheckFeedInterval: schedConfig.CheckFeedInterval(),
		CheckFeedLimit:    schedConfig.CheckFeedLimit,
	})
	harborService.Register(b)

	// メモリバスのときは worker 側のアクターも同じプロセスに住む。
	// 開発ではこの一プロセス構成でパイプライン全体が動く。
	if busConfig.Driver == config.BusDriverMemory {
		registerInProcessWorker(logger, b)
	}

	// The DB circuit breaker only guards the /health/db probe; the store
	// itself talks to the pool directly, one transaction per message.
	dbBreaker := circuitbreaker.NewDBCircuitBreaker(database)
	startMetricsServer(ctx, logger, dbBreaker)

	healthAddr := fmt.Sprintf(":%d", schedConfig.HealthPort)
	healthServer := health.NewServer(healthAddr, logger)
	healthServer.AddCheck("database", func(ctx context.Context) error {
		return database.PingContext(ctx)
	})
	if redisBus != nil {
		healthServer.AddCheck("bus", redisBus.Ping)
	}
	go func() {
		if err := healthServer.Start(ctx); err != nil && err != http.ErrServerClosed {
			logger.Error("health server failed", slog.Any("error", err))
		}
	}()
	logger.Info("health check server started", slog.String("addr", healthAddr))

	busDone := make(chan error, 1)
	go func() {
		busDone <- b.Run(ctx)
	}()

	c := startScheduler(logger, harborService, schedConfig, schedMetrics)
	healthServer.SetReady(true)
	logger.Info("harbor started",
		slog.String("bus", busConfig.Driver),
		slog.String("timezone", schedConfig.Timezone))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down harbor...")

	// Drain order: readiness off, running cron jobs finish, then the bus.
	healthServer.SetReady(false)
	<-c.Stop().Done()
	cancel()

	if err := <-busDone; err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("bus stopped with error", slog.Any("error", err))
	}
	if redisBus != nil {
		if err := redisBus.Close(); err != nil {
			logger.Error("failed to close redis bus", slog.Any("error", err))
		}
	}
	logger.Info("harbor stopped")
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
	logger = logging.WithFields(logger, map[string]any{"process": "harbor"})
	slog.SetDefault(logger)
	return logger
}

// initDatabase opens the connection pool and applies schema migrations.
// Harbor owns the schema; workers never touch the database.
func initDatabase(logger *slog.Logger) *sql.DB {
	database := db.Open()
	if err := db.MigrateUp(database); err != nil {
		logger.Error("failed to run migrations", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("database migrated")
	return database
}

// buildBus constructs the configured bus. The second return value is
// non-nil only for the redis driver, for readiness pings and final close.
func buildBus(logger *slog.Logger, cfg *config.BusConfig) (mq.Bus, *bus.RedisBus) {
	if cfg.Driver == config.BusDriverRedis {
		redisCfg := bus.DefaultRedisConfig()
		redisCfg.URL = cfg.RedisURL
		rb, err := bus.NewRedisBus(redisCfg)
		if err != nil {
			logger.Error("failed to connect to redis", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("bus initialized", slog.String("driver", cfg.Driver))
		return rb, rb
	}

	logger.Info("bus initialized",
		slog.String("driver", cfg.Driver),
		slog.Int("buffer", cfg.MemoryBuffer))
	return bus.NewMemoryBus(cfg.MemoryBuffer), nil
}

// registerInProcessWorker hosts the worker actors inside the harbor process
// for the memory bus. Outbound fetch policy still comes from the worker
// configuration, so the single-process pipeline behaves like the split one.
func registerInProcessWorker(logger *slog.Logger, b mq.Bus) {
	workerConfig, err := config.LoadWorkerConfig()
	if err != nil {
		logger.Error("failed to load worker configuration", slog.Any("error", err))
		os.Exit(1)
	}

	feedReader, pageReader, imageReader := buildReaders(workerConfig)
	finder := feedfinder.NewFinder(feedReader)

	workerService := workerUC.NewService(b, finder, feedReader, pageReader, imageReader, workerUC.Config{
		ProbeTimeout: workerConfig.ProbeTimeout,
		ProbeReferer: workerConfig.ProbeReferer,
	})
	workerService.Register(b)
	logger.Info("worker actors registered in-process")
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

// startScheduler wires the periodic jobs and starts the cron loop:
// check_feed every CheckFeedMinutes and clean_feed_creation every
// CleanFeedCreationMinutes. The jobs invoke the harbor handlers directly;
// the bus is for cross-process messages, and the tick already lives in the
// process that owns the state.
func startScheduler(logger *slog.Logger, svc *harborUC.Service, cfg *scheduler.Config, metrics *scheduler.Metrics) *cron.Cron {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Error("invalid timezone, using UTC", slog.String("timezone", cfg.Timezone), slog.Any("error", err))
		loc = time.UTC
	}
	c := cron.New(cron.WithLocation(loc))

	addJob := func(job, actor string, every time.Duration, handler mq.Handler) {
		spec := fmt.Sprintf("@every %s", every)
		_, err := c.AddFunc(spec, func() {
			runJob(logger, metrics, job, every, func(ctx context.Context) error {
				msg, err := mq.NewMessage(actor, nil)
				if err != nil {
					return err
				}
				return handler(ctx, msg)
			})
		})
		if err != nil {
			logger.Error("failed to add cron job", slog.String("job", job), slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("job scheduled", slog.String("job", job), slog.String("spec", spec))
	}

	addJob("check_feed", mq.HarborCheckFeed, cfg.CheckFeedInterval(), svc.HandleCheckFeed)
	addJob("clean_feed_creation", mq.HarborCleanFeedCreation, cfg.CleanFeedCreationInterval(), svc.HandleCleanFeedCreation)

	c.Start()
	return c
}

// runJob executes one periodic job with its own interval as the deadline;
// a tick must never outlive its period.
func runJob(logger *slog.Logger, metrics *scheduler.Metrics, job string, timeout time.Duration, fn func(context.Context) error) {
	start := time.Now()
	metrics.RecordJobRun(job, "started")
	logger.Info("job started", slog.String("job", job))

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := fn(ctx); err != nil {
		logger.Error("job failed", slog.String("job", job), slog.Any("error", err))
		metrics.RecordJobRun(job, "failure")
		metrics.RecordJobDuration(job, time.Since(start).Seconds())
		return
	}

	metrics.RecordJobRun(job, "success")
	metrics.RecordJobDuration(job, time.Since(start).Seconds())
	metrics.RecordJobLastSuccess(job)

	logger.Info("job completed",
		slog.String("job", job),
		slog.Duration("duration", time.Since(start)))
}
