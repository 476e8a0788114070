package observability

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLoggerLevels(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name         string
		level        string
		debugEnabled bool
	}{
		{name: "debug", level: "debug", debugEnabled: true},
		{name: "info", level: "info", debugEnabled: false},
		{name: "warn", level: "warn", debugEnabled: false},
		{name: "empty defaults to info", level: "", debugEnabled: false},
		{name: "case insensitive", level: "DEBUG", debugEnabled: true},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			logger, err := NewLogger(tc.level)
			if err != nil {
				t.Fatalf("NewLogger(%q) error = %v", tc.level, err)
			}
			if got := logger.Core().Enabled(zapcore.DebugLevel); got != tc.debugEnabled {
				t.Fatalf("debug enabled = %v, want %v", got, tc.debugEnabled)
			}
		})
	}
}

func TestNewLoggerInvalidLevel(t *testing.T) {
	t.Parallel()

	if _, err := NewLogger("loud"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestCorrelationIDRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := WithCorrelationID(context.Background(), "cid-1")

	got, ok := CorrelationIDFromContext(ctx)
	if !ok || got != "cid-1" {
		t.Fatalf("CorrelationIDFromContext() = %q, %v", got, ok)
	}

	if _, ok := CorrelationIDFromContext(context.Background()); ok {
		t.Fatal("bare context must carry no correlation id")
	}
}

func TestWithContextLoggerAddsCorrelationID(t *testing.T) {
	t.Parallel()

	core, recorded := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	ctx := WithCorrelationID(context.Background(), "cid-2")
	WithContextLogger(base, ctx).Info("dispatching")

	entries := recorded.All()
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	if got := entries[0].ContextMap()["correlationId"]; got != "cid-2" {
		t.Fatalf("correlationId = %v, want cid-2", got)
	}
}

func TestWithContextLoggerWithoutCorrelationID(t *testing.T) {
	t.Parallel()

	core, recorded := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	WithContextLogger(base, context.Background()).Info("dispatching")

	if _, ok := recorded.All()[0].ContextMap()["correlationId"]; ok {
		t.Fatal("correlationId must be absent without a tagged context")
	}
}
