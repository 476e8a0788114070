package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"

	"github.com/agencycrm/notify-engine/internal/repository"
)

func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		createNotificationLogsTable(),
		createDeviceRegistrationsTable(),
	})

	return m.Migrate()
}

func createNotificationLogsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_notification_logs",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.NotificationLogModel{}); err != nil {
				return err
			}
			indexes := []string{
				`CREATE INDEX IF NOT EXISTS idx_notification_logs_status_channel_created ON notification_logs (status, channel, created_at)`,
				`CREATE INDEX IF NOT EXISTS idx_notification_logs_retry ON notification_logs (next_retry_at) WHERE status = 'failed' AND next_retry_at IS NOT NULL`,
				`CREATE INDEX IF NOT EXISTS idx_notification_logs_notifiable ON notification_logs (notifiable_type, notifiable_id)`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.NotificationLogModel{})
		},
	}
}

func createDeviceRegistrationsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_device_registrations",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.DeviceRegistrationModel{}); err != nil {
				return err
			}
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_device_registrations_customer_active ON device_registrations (customer_id) WHERE is_active`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.DeviceRegistrationModel{})
		},
	}
}
