package retry

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const defaultScanInterval = time.Minute

// Loop drives the runner on a fixed interval, decoupled from request traffic.
type Loop struct {
	runner   *Runner
	interval time.Duration
	limit    int
	logger   *zap.Logger
}

func NewLoop(runner *Runner, interval time.Duration, limit int, logger *zap.Logger) *Loop {
	if interval <= 0 {
		interval = defaultScanInterval
	}
	if limit < 1 {
		limit = DefaultScanLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Loop{
		runner:   runner,
		interval: interval,
		limit:    limit,
		logger:   logger,
	}
}

func (l *Loop) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// Run an initial pass so already-due entries do not wait for the first
	// ticker edge.
	l.runOnce(ctx)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			l.runOnce(ctx)
		}
	}
}

func (l *Loop) runOnce(ctx context.Context) {
	result, err := l.runner.RunOnce(ctx, l.limit, false)
	if err != nil {
		if ctx.Err() == nil {
			l.logger.Error("retry scan failed", zap.Error(err))
		}
		return
	}

	if result.Retried > 0 || result.Failed > 0 {
		l.logger.Info("retry scan completed",
			zap.Int("retried", result.Retried),
			zap.Int("skipped", result.Skipped),
			zap.Int("failed", result.Failed),
		)
	}
}
