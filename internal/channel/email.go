package channel

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/agencycrm/notify-engine/internal/domain"
)

// Mail is the outbound email handed to the mail subsystem.
type Mail struct {
	To      string
	CC      []string
	BCC     []string
	Subject string
	Body    string
}

// Mailer is the surrounding mail subsystem the email channel delegates to.
type Mailer interface {
	SendMail(ctx context.Context, mail Mail) error
}

// EmailConfig gates the email channel.
type EmailConfig struct {
	Enabled bool
}

// EmailClient adapts the mail subsystem to the channel client contract.
type EmailClient struct {
	cfg    EmailConfig
	mailer Mailer
}

func NewEmailClient(cfg EmailConfig, mailer Mailer) *EmailClient {
	return &EmailClient{cfg: cfg, mailer: mailer}
}

func (c *EmailClient) Channel() domain.Channel { return domain.ChannelEmail }

func (c *EmailClient) Send(ctx context.Context, msg Message) domain.DeliveryOutcome {
	if !c.cfg.Enabled {
		return domain.FailureOutcome(domain.FailureChannelDisabled, "email channel is disabled")
	}

	recipient := strings.TrimSpace(msg.Recipient)
	if recipient == "" || !strings.Contains(recipient, "@") {
		return domain.FailureOutcome(domain.FailureInvalidRecipient,
			"recipient is not a valid email address")
	}
	if c.mailer == nil {
		return domain.FailureOutcome(domain.FailureChannelDisabled, "mailer is not configured")
	}

	err := c.mailer.SendMail(ctx, Mail{
		To:      recipient,
		CC:      msg.CC,
		BCC:     msg.BCC,
		Subject: msg.Subject,
		Body:    msg.Body,
	})
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
			return domain.FailureOutcome(domain.FailureNetworkError, err.Error())
		}
		return domain.FailureOutcome(domain.FailureProviderRejected, err.Error())
	}

	return domain.SuccessOutcome("", map[string]string{"provider": "smtp"})
}
