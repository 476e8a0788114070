package domain

import (
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle state of a notification log entry.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSent      Status = "sent"
	StatusFailed    Status = "failed"
	StatusExhausted Status = "exhausted"
)

func (s Status) String() string { return string(s) }

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusSent, StatusFailed, StatusExhausted:
		return true
	}
	return false
}

// IsTerminal reports whether the entry may never change state again.
func (s Status) IsTerminal() bool {
	return s == StatusSent || s == StatusExhausted
}

func ParseStatusFromString(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid status %q", ErrValidation, s)
	}
	return st, nil
}

// Channel represents the delivery channel.
type Channel string

const (
	ChannelWhatsApp Channel = "whatsapp"
	ChannelSMS      Channel = "sms"
	ChannelEmail    Channel = "email"
	ChannelPush     Channel = "push"
)

func (c Channel) String() string { return string(c) }

func (c Channel) IsValid() bool {
	switch c {
	case ChannelWhatsApp, ChannelSMS, ChannelEmail, ChannelPush:
		return true
	}
	return false
}

func ParseChannelFromString(s string) (Channel, error) {
	ch := Channel(strings.ToLower(strings.TrimSpace(s)))
	if !ch.IsValid() {
		return "", fmt.Errorf("%w: invalid channel %q", ErrValidation, s)
	}
	return ch, nil
}

// Channels lists every supported delivery channel.
func Channels() []Channel {
	return []Channel{ChannelWhatsApp, ChannelSMS, ChannelEmail, ChannelPush}
}

const DefaultMaxAttempts = 5

// NotificationLog is one row of the delivery ledger: a single logical
// notification and its attempt history rolled up into lifecycle state.
type NotificationLog struct {
	ID                   string
	NotifiableType       string
	NotifiableID         string
	Channel              Channel
	Recipient            string
	NotificationTypeCode string
	MessageContent       string
	Status               Status
	AttemptCount         int
	MaxAttempts          int
	NextRetryAt          *time.Time
	LastError            string
	ProviderMetadata     map[string]string
	CreatedAt            time.Time
	SentAt               *time.Time
	UpdatedAt            time.Time
}

func (n *NotificationLog) Validate() error {
	if strings.TrimSpace(n.Recipient) == "" {
		return fmt.Errorf("%w: recipient is required", ErrValidation)
	}
	if strings.TrimSpace(n.MessageContent) == "" {
		return fmt.Errorf("%w: message content is required", ErrValidation)
	}
	if !n.Channel.IsValid() {
		return fmt.Errorf("%w: invalid channel %q", ErrValidation, n.Channel)
	}
	if n.MaxAttempts < 1 {
		return fmt.Errorf("%w: max attempts must be >= 1", ErrValidation)
	}
	return nil
}

// AttemptsRemaining reports whether another send attempt is still allowed.
func (n *NotificationLog) AttemptsRemaining() bool {
	return n.AttemptCount < n.MaxAttempts
}
