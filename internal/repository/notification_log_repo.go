package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/agencycrm/notify-engine/internal/domain"
)

type ListParams struct {
	Status   *domain.Status
	Channel  *domain.Channel
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

// NotificationLogRepository persists the delivery ledger. The conditional
// Mark* updates guard the state machine: terminal rows are never touched, and
// ClaimForRetry is the per-row lock that keeps two schedulers from
// double-sending the same entry.
type NotificationLogRepository interface {
	Create(ctx context.Context, n *domain.NotificationLog) error
	GetByID(ctx context.Context, id string) (*domain.NotificationLog, error)
	List(ctx context.Context, params ListParams) ([]domain.NotificationLog, int64, error)

	MarkSent(ctx context.Context, id string, sentAt time.Time, metadata map[string]string) error
	MarkFailed(ctx context.Context, id string, lastError string, nextRetryAt *time.Time) error
	MarkExhausted(ctx context.Context, id string, lastError string) error
	Defer(ctx context.Context, id string, reason string, resumeAt time.Time) error

	GetRetryable(ctx context.Context, limit int) ([]domain.NotificationLog, error)
	ClaimForRetry(ctx context.Context, id string) (bool, error)
}

type GormNotificationLogRepo struct {
	db *gorm.DB
}

func NewGormNotificationLogRepo(db *gorm.DB) *GormNotificationLogRepo {
	return &GormNotificationLogRepo{db: db}
}

func (r *GormNotificationLogRepo) Create(ctx context.Context, n *domain.NotificationLog) error {
	model := logModelFromDomain(n)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if n != nil {
		*n = *logModelToDomain(model)
	}
	return nil
}

func (r *GormNotificationLogRepo) GetByID(ctx context.Context, id string) (*domain.NotificationLog, error) {
	var model NotificationLogModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return logModelToDomain(&model), nil
}

func (r *GormNotificationLogRepo) List(ctx context.Context, params ListParams) ([]domain.NotificationLog, int64, error) {
	query := r.db.WithContext(ctx).Model(&NotificationLogModel{})

	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}
	if params.Channel != nil {
		query = query.Where("channel = ?", *params.Channel)
	}
	if params.From != nil {
		query = query.Where("created_at >= ?", *params.From)
	}
	if params.To != nil {
		query = query.Where("created_at <= ?", *params.To)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := max(params.Page, 1)
	pageSize := params.PageSize
	if pageSize < 1 {
		pageSize = 50
	}
	pageSize = min(pageSize, 100)

	var models []NotificationLogModel
	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	logs := make([]domain.NotificationLog, 0, len(models))
	for i := range models {
		logs = append(logs, *logModelToDomain(&models[i]))
	}

	return logs, total, nil
}

func (r *GormNotificationLogRepo) MarkSent(ctx context.Context, id string, sentAt time.Time, metadata map[string]string) error {
	encoded := ""
	if len(metadata) > 0 {
		if raw, err := json.Marshal(metadata); err == nil {
			encoded = string(raw)
		}
	}

	result := r.db.WithContext(ctx).
		Model(&NotificationLogModel{}).
		Where("id = ? AND status = ?", id, domain.StatusPending).
		Updates(map[string]any{
			"status":            domain.StatusSent,
			"sent_at":           sentAt,
			"next_retry_at":     nil,
			"provider_metadata": encoded,
			"attempt_count":     gorm.Expr("attempt_count + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *GormNotificationLogRepo) MarkFailed(ctx context.Context, id string, lastError string, nextRetryAt *time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&NotificationLogModel{}).
		Where("id = ? AND status = ?", id, domain.StatusPending).
		Updates(map[string]any{
			"status":        domain.StatusFailed,
			"last_error":    lastError,
			"next_retry_at": nextRetryAt,
			"attempt_count": gorm.Expr("attempt_count + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *GormNotificationLogRepo) MarkExhausted(ctx context.Context, id string, lastError string) error {
	result := r.db.WithContext(ctx).
		Model(&NotificationLogModel{}).
		Where("id = ? AND status = ?", id, domain.StatusPending).
		Updates(map[string]any{
			"status":        domain.StatusExhausted,
			"last_error":    lastError,
			"next_retry_at": nil,
			"attempt_count": gorm.Expr("attempt_count + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

// Defer parks a pending entry until resumeAt without consuming an attempt.
// Used when no provider call was made: quiet-hours deferral, and the retry
// runner restoring a claimed row it could not process.
func (r *GormNotificationLogRepo) Defer(ctx context.Context, id string, reason string, resumeAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&NotificationLogModel{}).
		Where("id = ? AND status = ?", id, domain.StatusPending).
		Updates(map[string]any{
			"status":        domain.StatusFailed,
			"last_error":    reason,
			"next_retry_at": resumeAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *GormNotificationLogRepo) GetRetryable(ctx context.Context, limit int) ([]domain.NotificationLog, error) {
	var models []NotificationLogModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND next_retry_at IS NOT NULL", domain.StatusFailed).
		Order("next_retry_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	logs := make([]domain.NotificationLog, 0, len(models))
	for i := range models {
		logs = append(logs, *logModelToDomain(&models[i]))
	}

	return logs, nil
}

// ClaimForRetry flips one retryable row back to pending. Only a single caller
// can win the conditional update, which is what serializes attempts per row.
func (r *GormNotificationLogRepo) ClaimForRetry(ctx context.Context, id string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&NotificationLogModel{}).
		Where("id = ? AND status = ? AND next_retry_at IS NOT NULL", id, domain.StatusFailed).
		Updates(map[string]any{
			"status":        domain.StatusPending,
			"next_retry_at": nil,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
