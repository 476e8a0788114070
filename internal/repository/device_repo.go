package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/agencycrm/notify-engine/internal/domain"
)

// DeviceRepository persists push device registrations, keyed by token.
type DeviceRepository interface {
	Upsert(ctx context.Context, d *domain.DeviceRegistration) error
	GetByToken(ctx context.Context, token string) (*domain.DeviceRegistration, error)
	ActiveByCustomer(ctx context.Context, customerID string) ([]domain.DeviceRegistration, error)
	Deactivate(ctx context.Context, token string) error
	Heartbeat(ctx context.Context, token string, at time.Time) error
}

type GormDeviceRepo struct {
	db *gorm.DB
}

func NewGormDeviceRepo(db *gorm.DB) *GormDeviceRepo {
	return &GormDeviceRepo{db: db}
}

// Upsert inserts or refreshes a registration by token. A re-login on the same
// device reassigns the token to the new customer and reactivates it.
func (r *GormDeviceRepo) Upsert(ctx context.Context, d *domain.DeviceRegistration) error {
	model := deviceModelFromDomain(d)
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "device_token"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"customer_id", "device_type", "is_active", "last_active_at", "updated_at",
			}),
		}).
		Create(model).Error
	if err != nil {
		return err
	}

	// Re-read so the caller sees the surviving row's id and timestamps.
	var stored DeviceRegistrationModel
	if err := r.db.WithContext(ctx).First(&stored, "device_token = ?", model.DeviceToken).Error; err != nil {
		return err
	}
	if d != nil {
		*d = *deviceModelToDomain(&stored)
	}
	return nil
}

func (r *GormDeviceRepo) GetByToken(ctx context.Context, token string) (*domain.DeviceRegistration, error) {
	var model DeviceRegistrationModel
	err := r.db.WithContext(ctx).First(&model, "device_token = ?", token).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return deviceModelToDomain(&model), nil
}

func (r *GormDeviceRepo) ActiveByCustomer(ctx context.Context, customerID string) ([]domain.DeviceRegistration, error) {
	var models []DeviceRegistrationModel
	err := r.db.WithContext(ctx).
		Where("customer_id = ? AND is_active = ?", customerID, true).
		Order("last_active_at DESC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	devices := make([]domain.DeviceRegistration, 0, len(models))
	for i := range models {
		devices = append(devices, *deviceModelToDomain(&models[i]))
	}

	return devices, nil
}

func (r *GormDeviceRepo) Deactivate(ctx context.Context, token string) error {
	result := r.db.WithContext(ctx).
		Model(&DeviceRegistrationModel{}).
		Where("device_token = ?", token).
		Update("is_active", false)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormDeviceRepo) Heartbeat(ctx context.Context, token string, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&DeviceRegistrationModel{}).
		Where("device_token = ?", token).
		Update("last_active_at", at)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
