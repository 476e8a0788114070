package channel

import (
	"go.uber.org/zap"

	"github.com/agencycrm/notify-engine/internal/config"
)

// BuildRegistry constructs one client per channel from the configuration
// snapshot and returns the registry the dispatcher selects from.
func BuildRegistry(cfg *config.Config, devices DeviceDirectory, logger *zap.Logger) *Registry {
	whatsapp := NewWhatsAppClient(WhatsAppConfig{
		Enabled:   cfg.WhatsAppEnabled,
		SenderID:  cfg.WhatsAppSenderID,
		BaseURL:   cfg.WhatsAppBaseURL,
		AuthToken: cfg.WhatsAppAuthToken,
	})

	sms := NewSMSClient(SMSConfig{
		Enabled:          cfg.SMSEnabled,
		Provider:         cfg.SMSProvider,
		CharacterLimit:   cfg.SMSCharacterLimit,
		TwilioAccountSID: cfg.TwilioAccountSID,
		TwilioAuthToken:  cfg.TwilioAuthToken,
		TwilioFromNumber: cfg.TwilioFromNumber,
	})

	push := NewPushClient(PushConfig{
		Enabled:   cfg.PushEnabled,
		ServerKey: cfg.FCMServerKey,
		SenderID:  cfg.FCMSenderID,
	}, devices, logger)

	email := NewEmailClient(EmailConfig{Enabled: cfg.EmailEnabled}, NewSMTPMailer(SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
	}))

	return NewRegistry(whatsapp, sms, push, email)
}
