package retry

import "time"

const (
	DefaultBaseDelay = 5 * time.Minute
	DefaultMaxDelay  = 4 * time.Hour
)

// Backoff computes the delay before the next retry of a failed entry:
// baseDelay doubled per prior attempt, capped at maxDelay.
type Backoff struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

func NewBackoff(base, maxDelay time.Duration) Backoff {
	if base <= 0 {
		base = DefaultBaseDelay
	}
	if maxDelay <= 0 {
		maxDelay = DefaultMaxDelay
	}
	if maxDelay < base {
		maxDelay = base
	}
	return Backoff{BaseDelay: base, MaxDelay: maxDelay}
}

// Delay returns the wait before the next attempt given the number of attempts
// already made. The first failure (attemptCount=1) waits the base delay.
func (b Backoff) Delay(attemptCount int) time.Duration {
	if attemptCount < 1 {
		attemptCount = 1
	}

	delay := b.BaseDelay
	for i := 1; i < attemptCount; i++ {
		delay *= 2
		if delay >= b.MaxDelay {
			return b.MaxDelay
		}
	}

	if delay > b.MaxDelay {
		return b.MaxDelay
	}
	return delay
}
