package repository

import (
	"encoding/json"
	"time"

	"github.com/agencycrm/notify-engine/internal/domain"
)

// NotificationLogModel is the persistence model for notification_logs.
type NotificationLogModel struct {
	ID                   string         `gorm:"type:uuid;primaryKey"`
	NotifiableType       string         `gorm:"type:varchar(100);not null"`
	NotifiableID         string         `gorm:"type:varchar(64);not null"`
	Channel              domain.Channel `gorm:"type:varchar(10);not null"`
	Recipient            string         `gorm:"type:varchar(255);not null"`
	NotificationTypeCode string         `gorm:"type:varchar(100)"`
	MessageContent       string         `gorm:"type:text;not null"`
	Status               domain.Status  `gorm:"type:varchar(20);not null"`
	AttemptCount         int            `gorm:"not null;default:0"`
	MaxAttempts          int            `gorm:"not null;default:5"`
	NextRetryAt          *time.Time
	LastError            string `gorm:"type:text"`
	ProviderMetadata     string `gorm:"type:jsonb"`
	CreatedAt            time.Time
	SentAt               *time.Time
	UpdatedAt            time.Time
}

func (NotificationLogModel) TableName() string {
	return "notification_logs"
}

// DeviceRegistrationModel is the persistence model for device_registrations.
type DeviceRegistrationModel struct {
	ID           string `gorm:"type:uuid;primaryKey"`
	CustomerID   string `gorm:"type:varchar(64);not null"`
	DeviceToken  string `gorm:"type:varchar(512);not null;uniqueIndex"`
	DeviceType   string `gorm:"type:varchar(20)"`
	IsActive     bool   `gorm:"not null;default:true"`
	LastActiveAt time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (DeviceRegistrationModel) TableName() string {
	return "device_registrations"
}

func logModelFromDomain(n *domain.NotificationLog) *NotificationLogModel {
	if n == nil {
		return nil
	}

	metadata := ""
	if len(n.ProviderMetadata) > 0 {
		if raw, err := json.Marshal(n.ProviderMetadata); err == nil {
			metadata = string(raw)
		}
	}

	return &NotificationLogModel{
		ID:                   n.ID,
		NotifiableType:       n.NotifiableType,
		NotifiableID:         n.NotifiableID,
		Channel:              n.Channel,
		Recipient:            n.Recipient,
		NotificationTypeCode: n.NotificationTypeCode,
		MessageContent:       n.MessageContent,
		Status:               n.Status,
		AttemptCount:         n.AttemptCount,
		MaxAttempts:          n.MaxAttempts,
		NextRetryAt:          n.NextRetryAt,
		LastError:            n.LastError,
		ProviderMetadata:     metadata,
		CreatedAt:            n.CreatedAt,
		SentAt:               n.SentAt,
		UpdatedAt:            n.UpdatedAt,
	}
}

func logModelToDomain(m *NotificationLogModel) *domain.NotificationLog {
	if m == nil {
		return nil
	}

	var metadata map[string]string
	if m.ProviderMetadata != "" {
		_ = json.Unmarshal([]byte(m.ProviderMetadata), &metadata)
	}

	return &domain.NotificationLog{
		ID:                   m.ID,
		NotifiableType:       m.NotifiableType,
		NotifiableID:         m.NotifiableID,
		Channel:              m.Channel,
		Recipient:            m.Recipient,
		NotificationTypeCode: m.NotificationTypeCode,
		MessageContent:       m.MessageContent,
		Status:               m.Status,
		AttemptCount:         m.AttemptCount,
		MaxAttempts:          m.MaxAttempts,
		NextRetryAt:          m.NextRetryAt,
		LastError:            m.LastError,
		ProviderMetadata:     metadata,
		CreatedAt:            m.CreatedAt,
		SentAt:               m.SentAt,
		UpdatedAt:            m.UpdatedAt,
	}
}

func deviceModelFromDomain(d *domain.DeviceRegistration) *DeviceRegistrationModel {
	if d == nil {
		return nil
	}

	return &DeviceRegistrationModel{
		ID:           d.ID,
		CustomerID:   d.CustomerID,
		DeviceToken:  d.DeviceToken,
		DeviceType:   d.DeviceType,
		IsActive:     d.IsActive,
		LastActiveAt: d.LastActiveAt,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

func deviceModelToDomain(m *DeviceRegistrationModel) *domain.DeviceRegistration {
	if m == nil {
		return nil
	}

	return &domain.DeviceRegistration{
		ID:           m.ID,
		CustomerID:   m.CustomerID,
		DeviceToken:  m.DeviceToken,
		DeviceType:   m.DeviceType,
		IsActive:     m.IsActive,
		LastActiveAt: m.LastActiveAt,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}
