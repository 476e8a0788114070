package policy

import (
	"fmt"

	"github.com/agencycrm/notify-engine/internal/domain"
)

// FallbackChain is the ordered channel preference list consulted when a send
// fails fatally on one channel and the caller asked for channel fallback.
type FallbackChain []domain.Channel

func ParseFallbackChain(channels []string) (FallbackChain, error) {
	chain := make(FallbackChain, 0, len(channels))
	seen := make(map[domain.Channel]bool, len(channels))

	for _, raw := range channels {
		ch, err := domain.ParseChannelFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid fallback chain entry: %w", err)
		}
		if seen[ch] {
			return nil, fmt.Errorf("%w: duplicate channel %q in fallback chain", domain.ErrValidation, ch)
		}
		seen[ch] = true
		chain = append(chain, ch)
	}

	return chain, nil
}

// After returns the channel following ch in the chain. The second return is
// false when ch is last or absent.
func (f FallbackChain) After(ch domain.Channel) (domain.Channel, bool) {
	for i, entry := range f {
		if entry == ch && i+1 < len(f) {
			return f[i+1], true
		}
	}
	return "", false
}

// First returns the head of the chain.
func (f FallbackChain) First() (domain.Channel, bool) {
	if len(f) == 0 {
		return "", false
	}
	return f[0], true
}
