package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"go.uber.org/zap"

	"github.com/agencycrm/notify-engine/internal/channel"
	"github.com/agencycrm/notify-engine/internal/config"
	"github.com/agencycrm/notify-engine/internal/devices"
	"github.com/agencycrm/notify-engine/internal/dispatch"
	"github.com/agencycrm/notify-engine/internal/domain"
	"github.com/agencycrm/notify-engine/internal/handler"
	"github.com/agencycrm/notify-engine/internal/infra/postgresql"
	"github.com/agencycrm/notify-engine/internal/infra/postgresql/migrations"
	infraredis "github.com/agencycrm/notify-engine/internal/infra/redis"
	"github.com/agencycrm/notify-engine/internal/observability"
	"github.com/agencycrm/notify-engine/internal/policy"
	"github.com/agencycrm/notify-engine/internal/repository"
	"github.com/agencycrm/notify-engine/internal/retry"
	"github.com/agencycrm/notify-engine/internal/transport"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("postgres initialization failed", zap.Error(err))
	}

	if err := migrations.Migrate(db); err != nil {
		logger.Fatal("database migrations failed", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("postgres underlying db init failed", zap.Error(err))
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	metrics := observability.NewMetrics()

	logRepo := repository.NewGormNotificationLogRepo(db)
	deviceRepo := repository.NewGormDeviceRepo(db)

	deviceService, err := devices.NewService(deviceRepo, logger)
	if err != nil {
		logger.Fatal("device service initialization failed", zap.Error(err))
	}
	deviceService.SetMetrics(metrics)

	registry := channel.BuildRegistry(cfg, deviceService, logger)

	quiet, err := policy.NewQuietHours(cfg.QuietHoursEnabled, cfg.QuietHoursStart, cfg.QuietHoursEnd)
	if err != nil {
		logger.Fatal("quiet hours configuration invalid", zap.Error(err))
	}

	fallback, err := policy.ParseFallbackChain(cfg.FallbackChannels())
	if err != nil {
		logger.Fatal("fallback chain configuration invalid", zap.Error(err))
	}

	dispatcher, err := dispatch.NewDispatcher(
		logRepo,
		registry,
		nil,
		retry.NewBackoff(cfg.RetryBaseDelay, cfg.RetryMaxDelay),
		quiet,
		fallback,
		cfg.MaxAttempts,
		logger,
	)
	if err != nil {
		logger.Fatal("dispatcher initialization failed", zap.Error(err))
	}
	dispatcher.SetMetrics(metrics)

	rateLimiter, err := infraredis.NewRedisRateLimiter(rdb, cfg.RateLimitPerSec)
	if err != nil {
		logger.Fatal("rate limiter initialization failed", zap.Error(err))
	}

	runner, err := retry.NewRunner(logRepo, dispatcher, rateLimiter, cfg.WorkerConcurrency, logger)
	if err != nil {
		logger.Fatal("retry runner initialization failed", zap.Error(err))
	}
	runner.SetMetrics(metrics)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loop := retry.NewLoop(runner, cfg.RetryScanInterval, cfg.RetryScanLimit, logger)
	go func() {
		if err := loop.Start(ctx); err != nil {
			logger.Error("retry loop stopped", zap.Error(err))
		}
	}()

	app := fiber.New(fiber.Config{
		AppName:      "notify-engine",
		ErrorHandler: transport.ErrorHandler(logger),
	})
	app.Use(transport.CorrelationID())
	app.Use(metrics.HTTPMiddleware())

	app.Get("/healthz", func(c *fiber.Ctx) error {
		if err := sqlDB.PingContext(c.Context()); err != nil {
			return fiber.NewError(fiber.StatusServiceUnavailable, "postgres unreachable")
		}
		if err := rdb.Ping(c.Context()).Err(); err != nil {
			return fiber.NewError(fiber.StatusServiceUnavailable, "redis unreachable")
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	if err := handler.RegisterNotificationRoutes(app, dispatcher, logRepo); err != nil {
		logger.Fatal("notification routes registration failed", zap.Error(err))
	}

	var fanout handler.PushFanout
	if pushClient, err := registry.Client(domain.ChannelPush); err == nil {
		if pc, ok := pushClient.(*channel.PushClient); ok {
			fanout = pc
		}
	}
	if err := handler.RegisterDeviceRoutes(app, deviceService, fanout); err != nil {
		logger.Fatal("device routes registration failed", zap.Error(err))
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutting down api server")
		if err := app.Shutdown(); err != nil {
			logger.Error("server shutdown failed", zap.Error(err))
		}
	}()

	logger.Info("notify-engine api started", zap.Int("port", cfg.APIPort))
	if err := app.Listen(fmt.Sprintf(":%d", cfg.APIPort)); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
