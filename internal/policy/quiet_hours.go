package policy

import (
	"fmt"
	"time"

	"github.com/agencycrm/notify-engine/internal/domain"
)

// QuietHours is a daily window during which customer-facing sends are
// deferred. The window may wrap midnight, e.g. 21:00-08:00.
type QuietHours struct {
	Enabled bool
	start   int // minutes since midnight
	end     int
}

func NewQuietHours(enabled bool, start, end string) (QuietHours, error) {
	startMin, err := parseClock(start)
	if err != nil {
		return QuietHours{}, fmt.Errorf("%w: invalid quiet hours start: %v", domain.ErrValidation, err)
	}
	endMin, err := parseClock(end)
	if err != nil {
		return QuietHours{}, fmt.Errorf("%w: invalid quiet hours end: %v", domain.ErrValidation, err)
	}

	return QuietHours{Enabled: enabled, start: startMin, end: endMin}, nil
}

func parseClock(value string) (int, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Contains reports whether t falls inside the quiet window.
func (q QuietHours) Contains(t time.Time) bool {
	if !q.Enabled || q.start == q.end {
		return false
	}

	minutes := t.Hour()*60 + t.Minute()
	if q.start < q.end {
		return minutes >= q.start && minutes < q.end
	}
	// Window wraps midnight.
	return minutes >= q.start || minutes < q.end
}

// WindowEnd returns the next moment at or after t when the quiet window ends.
func (q QuietHours) WindowEnd(t time.Time) time.Time {
	endToday := time.Date(t.Year(), t.Month(), t.Day(), q.end/60, q.end%60, 0, 0, t.Location())
	if !endToday.After(t) {
		return endToday.Add(24 * time.Hour)
	}
	return endToday
}
