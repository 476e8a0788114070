package policy

import (
	"errors"
	"testing"
	"time"

	"github.com/agencycrm/notify-engine/internal/domain"
)

func clock(t *testing.T, hhmm string) time.Time {
	t.Helper()

	parsed, err := time.Parse("15:04", hhmm)
	if err != nil {
		t.Fatalf("bad clock fixture %q: %v", hhmm, err)
	}
	return time.Date(2026, time.March, 10, parsed.Hour(), parsed.Minute(), 0, 0, time.UTC)
}

func TestQuietHoursContains(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		start, end string
		at         string
		want       bool
	}{
		{name: "inside wrapped window evening", start: "21:00", end: "08:00", at: "22:30", want: true},
		{name: "inside wrapped window morning", start: "21:00", end: "08:00", at: "03:00", want: true},
		{name: "outside wrapped window", start: "21:00", end: "08:00", at: "12:00", want: false},
		{name: "window start is inclusive", start: "21:00", end: "08:00", at: "21:00", want: true},
		{name: "window end is exclusive", start: "21:00", end: "08:00", at: "08:00", want: false},
		{name: "same-day window", start: "13:00", end: "14:00", at: "13:30", want: true},
		{name: "same-day window outside", start: "13:00", end: "14:00", at: "14:30", want: false},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			q, err := NewQuietHours(true, tc.start, tc.end)
			if err != nil {
				t.Fatalf("NewQuietHours() error = %v", err)
			}
			if got := q.Contains(clock(t, tc.at)); got != tc.want {
				t.Fatalf("Contains(%s) = %v, want %v", tc.at, got, tc.want)
			}
		})
	}
}

func TestQuietHoursDisabled(t *testing.T) {
	t.Parallel()

	q, err := NewQuietHours(false, "21:00", "08:00")
	if err != nil {
		t.Fatalf("NewQuietHours() error = %v", err)
	}
	if q.Contains(clock(t, "23:00")) {
		t.Fatal("disabled window must never contain anything")
	}
}

func TestQuietHoursZeroLengthWindow(t *testing.T) {
	t.Parallel()

	q, err := NewQuietHours(true, "08:00", "08:00")
	if err != nil {
		t.Fatalf("NewQuietHours() error = %v", err)
	}
	if q.Contains(clock(t, "08:00")) {
		t.Fatal("zero-length window must be empty")
	}
}

func TestQuietHoursInvalidClock(t *testing.T) {
	t.Parallel()

	if _, err := NewQuietHours(true, "25:00", "08:00"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}
	if _, err := NewQuietHours(true, "21:00", "bogus"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}
}

func TestQuietHoursWindowEnd(t *testing.T) {
	t.Parallel()

	q, err := NewQuietHours(true, "21:00", "08:00")
	if err != nil {
		t.Fatalf("NewQuietHours() error = %v", err)
	}

	// Evening: the window ends tomorrow morning.
	at := clock(t, "22:30")
	end := q.WindowEnd(at)
	if end.Day() != at.Day()+1 || end.Hour() != 8 {
		t.Fatalf("WindowEnd(22:30) = %v, want 08:00 next day", end)
	}

	// Early morning: the window ends the same day.
	at = clock(t, "03:00")
	end = q.WindowEnd(at)
	if end.Day() != at.Day() || end.Hour() != 8 {
		t.Fatalf("WindowEnd(03:00) = %v, want 08:00 same day", end)
	}
}

func TestParseFallbackChain(t *testing.T) {
	t.Parallel()

	chain, err := ParseFallbackChain([]string{"push", "whatsapp", "sms", "email"})
	if err != nil {
		t.Fatalf("ParseFallbackChain() error = %v", err)
	}

	first, ok := chain.First()
	if !ok || first != domain.ChannelPush {
		t.Fatalf("First() = %q, %v", first, ok)
	}

	next, ok := chain.After(domain.ChannelWhatsApp)
	if !ok || next != domain.ChannelSMS {
		t.Fatalf("After(whatsapp) = %q, %v", next, ok)
	}

	if _, ok := chain.After(domain.ChannelEmail); ok {
		t.Fatal("After(last) must report no successor")
	}
}

func TestParseFallbackChainRejectsBadInput(t *testing.T) {
	t.Parallel()

	if _, err := ParseFallbackChain([]string{"push", "push"}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("duplicate: error = %v, want ErrValidation", err)
	}
	if _, err := ParseFallbackChain([]string{"push", "pager"}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("unknown channel: error = %v, want ErrValidation", err)
	}
}

func TestFallbackChainAfterAbsentChannel(t *testing.T) {
	t.Parallel()

	chain, err := ParseFallbackChain([]string{"sms", "email"})
	if err != nil {
		t.Fatalf("ParseFallbackChain() error = %v", err)
	}
	if _, ok := chain.After(domain.ChannelPush); ok {
		t.Fatal("After(absent) must report no successor")
	}
}
