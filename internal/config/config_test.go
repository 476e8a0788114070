package config

import (
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_DSN", "host=localhost user=test password=test dbname=test port=5432 sslmode=disable")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.APIPort != 8080 {
		t.Errorf("APIPort = %d, want 8080", cfg.APIPort)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %s, want info", cfg.LogLevel)
	}
	if cfg.SMSProvider != "twilio" {
		t.Errorf("SMSProvider = %s, want twilio", cfg.SMSProvider)
	}
	if cfg.SMSCharacterLimit != 160 {
		t.Errorf("SMSCharacterLimit = %d, want 160", cfg.SMSCharacterLimit)
	}
	if cfg.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d, want 5", cfg.MaxAttempts)
	}
	if cfg.RetryBaseDelay != 5*time.Minute {
		t.Errorf("RetryBaseDelay = %v, want 5m", cfg.RetryBaseDelay)
	}
	if cfg.RetryMaxDelay != 4*time.Hour {
		t.Errorf("RetryMaxDelay = %v, want 4h", cfg.RetryMaxDelay)
	}
	if cfg.RetryScanInterval != time.Minute {
		t.Errorf("RetryScanInterval = %v, want 1m", cfg.RetryScanInterval)
	}
	if cfg.RetryScanLimit != 100 {
		t.Errorf("RetryScanLimit = %d, want 100", cfg.RetryScanLimit)
	}
	if cfg.RateLimitPerSec != 50 {
		t.Errorf("RateLimitPerSec = %d, want 50", cfg.RateLimitPerSec)
	}
	if cfg.WorkerConcurrency != 8 {
		t.Errorf("WorkerConcurrency = %d, want 8", cfg.WorkerConcurrency)
	}
	if cfg.QuietHoursEnabled {
		t.Error("QuietHoursEnabled = true, want false by default")
	}
	if cfg.QuietHoursStart != "21:00" || cfg.QuietHoursEnd != "08:00" {
		t.Errorf("quiet hours = %s-%s, want 21:00-08:00", cfg.QuietHoursStart, cfg.QuietHoursEnd)
	}
	if !cfg.WhatsAppEnabled || !cfg.SMSEnabled || !cfg.PushEnabled || !cfg.EmailEnabled {
		t.Error("all channels must default to enabled")
	}
}

func TestLoad_CustomValues(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("API_PORT", "9090")
	t.Setenv("SMS_PROVIDER", "nexmo")
	t.Setenv("RETRY_BASE_DELAY", "30s")
	t.Setenv("MAX_ATTEMPTS", "3")
	t.Setenv("WHATSAPP_ENABLED", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.APIPort != 9090 {
		t.Errorf("APIPort = %d, want 9090", cfg.APIPort)
	}
	if cfg.SMSProvider != "nexmo" {
		t.Errorf("SMSProvider = %s, want nexmo", cfg.SMSProvider)
	}
	if cfg.RetryBaseDelay != 30*time.Second {
		t.Errorf("RetryBaseDelay = %v, want 30s", cfg.RetryBaseDelay)
	}
	if cfg.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", cfg.MaxAttempts)
	}
	if cfg.WhatsAppEnabled {
		t.Error("WhatsAppEnabled = true, want false")
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("DATABASE_DSN", "host=localhost")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when REDIS_URL is missing")
	}
}

func TestFallbackChannels(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := cfg.FallbackChannels()
	want := []string{"push", "whatsapp", "sms", "email"}
	if len(got) != len(want) {
		t.Fatalf("FallbackChannels() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("FallbackChannels()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestFallbackChainDefaultIgnoresStrayEnv(t *testing.T) {
	setRequiredEnv(t)
	// Channel names must never act as environment variables of their own.
	t.Setenv("sms", "hijacked")
	t.Setenv("FALLBACK_CHAIN", "   ")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := cfg.FallbackChannels()
	want := []string{"push", "whatsapp", "sms", "email"}
	if len(got) != len(want) {
		t.Fatalf("FallbackChannels() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("FallbackChannels()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestFallbackChannelsSkipsBlanks(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("FALLBACK_CHAIN", " SMS , ,email ")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := cfg.FallbackChannels()
	if len(got) != 2 || got[0] != "sms" || got[1] != "email" {
		t.Fatalf("FallbackChannels() = %v, want [sms email]", got)
	}
}
