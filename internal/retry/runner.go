package retry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/agencycrm/notify-engine/internal/domain"
	"github.com/agencycrm/notify-engine/internal/observability"
	"github.com/agencycrm/notify-engine/internal/ratelimit"
	"github.com/agencycrm/notify-engine/internal/repository"
)

const (
	DefaultScanLimit   = 100
	defaultConcurrency = 8
)

// Sender is the dispatcher's single-attempt resend path. The runner never
// re-renders content; the entry carries the frozen recipient and body from the
// first attempt.
type Sender interface {
	Resend(ctx context.Context, entry *domain.NotificationLog) (*domain.NotificationLog, error)
}

// Result aggregates one RunOnce batch.
type Result struct {
	Retried int
	Skipped int
	Failed  int
}

// Runner re-submits failed ledger entries whose backoff window has elapsed.
type Runner struct {
	logs        repository.NotificationLogRepository
	sender      Sender
	rateLimiter ratelimit.RateLimiter
	logger      *zap.Logger
	metrics     *observability.Metrics
	concurrency int
	now         func() time.Time
}

func NewRunner(
	logs repository.NotificationLogRepository,
	sender Sender,
	rateLimiter ratelimit.RateLimiter,
	concurrency int,
	logger *zap.Logger,
) (*Runner, error) {
	if logs == nil {
		return nil, fmt.Errorf("notification log repository is required")
	}
	if sender == nil {
		return nil, fmt.Errorf("sender is required")
	}
	if concurrency < 1 {
		concurrency = defaultConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Runner{
		logs:        logs,
		sender:      sender,
		rateLimiter: rateLimiter,
		logger:      logger,
		concurrency: concurrency,
		now:         time.Now,
	}, nil
}

func (r *Runner) SetMetrics(metrics *observability.Metrics) {
	if r == nil {
		return
	}
	r.metrics = metrics
}

// RunOnce processes one batch of retryable entries. Entries whose nextRetryAt
// is still in the future are skipped unless force is set; retries never fire
// early. Per-entry failures are isolated so one bad entry cannot halt the
// batch.
func (r *Runner) RunOnce(ctx context.Context, limit int, force bool) (Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if limit < 1 {
		limit = DefaultScanLimit
	}

	entries, err := r.logs.GetRetryable(ctx, limit)
	if err != nil {
		return Result{}, fmt.Errorf("failed to fetch retryable entries: %w", err)
	}

	var (
		mu     sync.Mutex
		result Result
	)

	now := r.now()
	g, groupCtx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for i := range entries {
		entry := entries[i]

		if !force && entry.NextRetryAt != nil && entry.NextRetryAt.After(now) {
			mu.Lock()
			result.Skipped++
			mu.Unlock()
			continue
		}

		g.Go(func() error {
			retried, failed := r.retryEntry(groupCtx, &entry)

			mu.Lock()
			if retried {
				result.Retried++
			}
			if failed {
				result.Failed++
			}
			mu.Unlock()
			return nil
		})
	}

	// Workers report through the shared result, never through errors.
	_ = g.Wait()

	return result, nil
}

// retryEntry claims one row and re-attempts it. The first return reports
// whether the entry was actually re-attempted, the second whether the new
// attempt failed.
func (r *Runner) retryEntry(ctx context.Context, entry *domain.NotificationLog) (bool, bool) {
	claimed, err := r.logs.ClaimForRetry(ctx, entry.ID)
	if err != nil {
		r.logger.Error("failed to claim entry for retry",
			zap.String("notificationLogId", entry.ID),
			zap.Error(err),
		)
		return false, true
	}
	if !claimed {
		// Another runner got there first; nothing to do.
		return false, false
	}

	if r.rateLimiter != nil {
		if err := r.rateLimiter.Wait(ctx, entry.Channel.String()); err != nil {
			r.logger.Error("rate limiter wait failed",
				zap.String("notificationLogId", entry.ID),
				zap.Error(err),
			)
			// The claim flipped the row to pending. No provider call happened,
			// so restore it without consuming an attempt; the next scan picks
			// it up again.
			if deferErr := r.logs.Defer(ctx, entry.ID, "rate limiter unavailable: "+err.Error(), r.now()); deferErr != nil {
				r.logger.Error("failed to restore claimed entry", zap.String("notificationLogId", entry.ID), zap.Error(deferErr))
			}
			return false, true
		}
	}

	updated, err := r.sender.Resend(ctx, entry)
	if err != nil {
		r.logger.Error("retry attempt errored",
			zap.String("notificationLogId", entry.ID),
			zap.String("channel", entry.Channel.String()),
			zap.Error(err),
		)
		return true, true
	}

	if r.metrics != nil {
		r.metrics.IncRetryAttempted(entry.Channel.String())
	}

	if updated.Status == domain.StatusSent {
		r.logger.Info("retry succeeded",
			zap.String("notificationLogId", entry.ID),
			zap.String("channel", entry.Channel.String()),
			zap.Int("attemptCount", updated.AttemptCount),
		)
		return true, false
	}

	r.logger.Warn("retry attempt failed",
		zap.String("notificationLogId", entry.ID),
		zap.String("channel", entry.Channel.String()),
		zap.String("status", updated.Status.String()),
		zap.Int("attemptCount", updated.AttemptCount),
		zap.String("lastError", updated.LastError),
	)
	return true, true
}
