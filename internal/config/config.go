package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Netflix/go-env"
)

// Config is the immutable configuration snapshot handed to every component at
// construction time. Channel clients never read configuration at send time.
type Config struct {
	DatabaseDSN string `env:"DATABASE_DSN,required=true"`
	RedisURL    string `env:"REDIS_URL,required=true"`
	APIPort     int    `env:"API_PORT,default=8080"`
	LogLevel    string `env:"LOG_LEVEL,default=info"`

	WhatsAppEnabled   bool   `env:"WHATSAPP_ENABLED,default=true"`
	WhatsAppSenderID  string `env:"WHATSAPP_SENDER_ID"`
	WhatsAppBaseURL   string `env:"WHATSAPP_BASE_URL"`
	WhatsAppAuthToken string `env:"WHATSAPP_AUTH_TOKEN"`

	SMSEnabled        bool   `env:"SMS_ENABLED,default=true"`
	SMSProvider       string `env:"SMS_PROVIDER,default=twilio"`
	SMSCharacterLimit int    `env:"SMS_CHARACTER_LIMIT,default=160"`
	TwilioAccountSID  string `env:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken   string `env:"TWILIO_AUTH_TOKEN"`
	TwilioFromNumber  string `env:"TWILIO_FROM_NUMBER"`

	PushEnabled  bool   `env:"PUSH_ENABLED,default=true"`
	FCMServerKey string `env:"FCM_SERVER_KEY"`
	FCMSenderID  string `env:"FCM_SENDER_ID"`

	EmailEnabled bool   `env:"EMAIL_ENABLED,default=true"`
	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     string `env:"SMTP_PORT,default=465"`
	SMTPUsername string `env:"SMTP_USERNAME"`
	SMTPPassword string `env:"SMTP_PASSWORD"`

	// FallbackChain is an ordered comma-separated channel list, e.g.
	// "push,whatsapp,sms,email". The default is applied in Load; a comma
	// separated value cannot live in the struct tag because the tag grammar
	// itself splits on commas.
	FallbackChain     string `env:"FALLBACK_CHAIN"`
	QuietHoursEnabled bool   `env:"QUIET_HOURS_ENABLED,default=false"`
	QuietHoursStart   string `env:"QUIET_HOURS_START,default=21:00"`
	QuietHoursEnd     string `env:"QUIET_HOURS_END,default=08:00"`

	MaxAttempts       int           `env:"MAX_ATTEMPTS,default=5"`
	RetryBaseDelay    time.Duration `env:"RETRY_BASE_DELAY,default=5m"`
	RetryMaxDelay     time.Duration `env:"RETRY_MAX_DELAY,default=4h"`
	RetryScanInterval time.Duration `env:"RETRY_SCAN_INTERVAL,default=1m"`
	RetryScanLimit    int           `env:"RETRY_SCAN_LIMIT,default=100"`

	RateLimitPerSec   int `env:"RATE_LIMIT_PER_SEC,default=50"`
	WorkerConcurrency int `env:"WORKER_CONCURRENCY,default=8"`
}

const defaultFallbackChain = "push,whatsapp,sms,email"

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if strings.TrimSpace(cfg.FallbackChain) == "" {
		cfg.FallbackChain = defaultFallbackChain
	}
	return &cfg, nil
}

// FallbackChannels returns the parsed fallback chain, skipping blanks.
func (c *Config) FallbackChannels() []string {
	parts := strings.Split(c.FallbackChain, ",")
	channels := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.ToLower(strings.TrimSpace(part)); trimmed != "" {
			channels = append(channels, trimmed)
		}
	}
	return channels
}
