package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agencycrm/notify-engine/internal/channel"
	"github.com/agencycrm/notify-engine/internal/config"
	"github.com/agencycrm/notify-engine/internal/devices"
	"github.com/agencycrm/notify-engine/internal/dispatch"
	"github.com/agencycrm/notify-engine/internal/infra/postgresql"
	"github.com/agencycrm/notify-engine/internal/infra/postgresql/migrations"
	infraredis "github.com/agencycrm/notify-engine/internal/infra/redis"
	"github.com/agencycrm/notify-engine/internal/observability"
	"github.com/agencycrm/notify-engine/internal/policy"
	"github.com/agencycrm/notify-engine/internal/repository"
	"github.com/agencycrm/notify-engine/internal/retry"
)

var (
	runLimit int
	runForce bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process one batch of retryable notifications",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		logger, err := observability.NewLogger(cfg.LogLevel)
		if err != nil {
			return fmt.Errorf("initialize logger: %w", err)
		}
		defer logger.Sync() //nolint:errcheck

		runner, cleanup, err := buildRunner(cfg, logger)
		if err != nil {
			return err
		}
		defer cleanup()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		limit := runLimit
		if limit < 1 {
			limit = cfg.RetryScanLimit
		}

		result, err := runner.RunOnce(ctx, limit, runForce)
		if err != nil {
			return fmt.Errorf("retry pass failed: %w", err)
		}

		fmt.Printf("retried=%d skipped=%d failed=%d\n", result.Retried, result.Skipped, result.Failed)

		if result.Failed > 0 {
			return fmt.Errorf("%d entries failed during retry", result.Failed)
		}
		return nil
	},
}

func buildRunner(cfg *config.Config, logger *zap.Logger) (*retry.Runner, func(), error) {
	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, fmt.Errorf("access postgres pool: %w", err)
	}

	if err := migrations.Migrate(db); err != nil {
		sqlDB.Close()
		return nil, nil, fmt.Errorf("run migrations: %w", err)
	}

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		sqlDB.Close()
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}

	cleanup := func() {
		rdb.Close()
		sqlDB.Close()
	}

	logRepo := repository.NewGormNotificationLogRepo(db)
	deviceRepo := repository.NewGormDeviceRepo(db)

	deviceService, err := devices.NewService(deviceRepo, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("build device service: %w", err)
	}

	registry := channel.BuildRegistry(cfg, deviceService, logger)

	quiet, err := policy.NewQuietHours(cfg.QuietHoursEnabled, cfg.QuietHoursStart, cfg.QuietHoursEnd)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("parse quiet hours: %w", err)
	}

	fallback, err := policy.ParseFallbackChain(cfg.FallbackChannels())
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("parse fallback chain: %w", err)
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
		cleanup()
		return nil, nil, fmt.Errorf("build dispatcher: %w", err)
	}

	rateLimiter, err := infraredis.NewRedisRateLimiter(rdb, cfg.RateLimitPerSec)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("build rate limiter: %w", err)
	}

	runner, err := retry.NewRunner(logRepo, dispatcher, rateLimiter, cfg.WorkerConcurrency, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("build retry runner: %w", err)
	}

	return runner, cleanup, nil
}

func init() {
	runCmd.Flags().IntVar(&runLimit, "limit", 0, "max entries to scan (default: RETRY_SCAN_LIMIT)")
	runCmd.Flags().BoolVar(&runForce, "force", false, "retry eligible entries even before their scheduled time")
	rootCmd.AddCommand(runCmd)
}
