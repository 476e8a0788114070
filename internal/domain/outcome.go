package domain

import "strings"

// FailureKind classifies a delivery failure for retry policy decisions.
type FailureKind string

const (
	// Fatal kinds: the entry is persisted as failed but never retried.
	FailureInvalidRecipient FailureKind = "invalid_recipient"
	FailureAttachmentError  FailureKind = "attachment_error"
	FailureChannelDisabled  FailureKind = "channel_disabled"
	FailureNotImplemented   FailureKind = "not_implemented"

	// Retryable kinds: the scheduler re-attempts up to MaxAttempts.
	FailureProviderUnavailable FailureKind = "provider_unavailable"
	FailureProviderRejected    FailureKind = "provider_rejected"
	FailureNetworkError        FailureKind = "network_error"
)

func (k FailureKind) String() string { return string(k) }

// Retryable reports whether the scheduler should re-attempt this failure.
func (k FailureKind) Retryable() bool {
	switch k {
	case FailureProviderUnavailable, FailureProviderRejected, FailureNetworkError:
		return true
	}
	return false
}

// DeliveryOutcome is the normalized result of one provider call. Channel
// clients always return an outcome for expected provider behavior; the error
// return on Send is reserved for conditions the dispatcher itself must handle.
type DeliveryOutcome struct {
	Success bool
	Kind    FailureKind
	Error   string

	// ProviderMessageID is the provider-assigned identifier on success.
	ProviderMessageID string

	// Metadata carries raw provider response details for audit. The core
	// never parses it beyond known keys such as invalid-token signals.
	Metadata map[string]string
}

// SuccessOutcome builds an outcome for a delivered message.
func SuccessOutcome(messageID string, metadata map[string]string) DeliveryOutcome {
	return DeliveryOutcome{
		Success:           true,
		ProviderMessageID: strings.TrimSpace(messageID),
		Metadata:          metadata,
	}
}

// FailureOutcome builds an outcome for a failed delivery attempt.
func FailureOutcome(kind FailureKind, errMsg string) DeliveryOutcome {
	return DeliveryOutcome{
		Kind:  kind,
		Error: strings.TrimSpace(errMsg),
	}
}
