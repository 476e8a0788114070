package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/agencycrm/notify-engine/internal/domain"
)

const (
	smsSendTimeout       = 30 * time.Second
	smsTruncationSuffix  = "..."
	defaultTwilioBaseURL = "https://api.twilio.com"
)

// SMSConfig selects the SMS provider and carries its credentials.
type SMSConfig struct {
	Enabled        bool
	Provider       string
	CharacterLimit int

	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string
}

// SMSClient sends text messages through the configured provider. Only the
// Twilio path is implemented; nexmo and sns remain configuration-selectable
// stubs that fail without consuming retries.
type SMSClient struct {
	cfg           SMSConfig
	client        *resty.Client
	twilioBaseURL string
}

func NewSMSClient(cfg SMSConfig) *SMSClient {
	if cfg.Provider == "" {
		cfg.Provider = "twilio"
	}
	if cfg.CharacterLimit <= 0 {
		cfg.CharacterLimit = 160
	}

	client := resty.New()
	client.SetRetryCount(0)

	return &SMSClient{
		cfg:           cfg,
		client:        client,
		twilioBaseURL: defaultTwilioBaseURL,
	}
}

func (c *SMSClient) Channel() domain.Channel { return domain.ChannelSMS }

// TruncateSMSBody caps a message body at limit characters, replacing the tail
// with an ellipsis when it had to cut.
func TruncateSMSBody(body string, limit int) string {
	if limit <= 0 {
		limit = 160
	}

	runes := []rune(body)
	if len(runes) <= limit {
		return body
	}

	suffix := []rune(smsTruncationSuffix)
	if limit <= len(suffix) {
		return string(suffix[:limit])
	}
	return string(runes[:limit-len(suffix)]) + smsTruncationSuffix
}

func (c *SMSClient) Send(ctx context.Context, msg Message) domain.DeliveryOutcome {
	if !c.cfg.Enabled {
		return domain.FailureOutcome(domain.FailureChannelDisabled, "sms channel is disabled")
	}

	provider := strings.ToLower(strings.TrimSpace(c.cfg.Provider))
	switch provider {
	case "twilio":
		return c.sendTwilio(ctx, msg)
	case "nexmo", "sns":
		return domain.FailureOutcome(domain.FailureNotImplemented,
			fmt.Sprintf("sms provider %q is not implemented", provider))
	default:
		return domain.FailureOutcome(domain.FailureNotImplemented,
			fmt.Sprintf("unknown sms provider %q", provider))
	}
}

func (c *SMSClient) sendTwilio(ctx context.Context, msg Message) domain.DeliveryOutcome {
	recipient := strings.TrimSpace(msg.Recipient)
	if recipient == "" {
		return domain.FailureOutcome(domain.FailureInvalidRecipient, "recipient phone number is empty")
	}

	ctx, cancel := context.WithTimeout(ctx, smsSendTimeout)
	defer cancel()

	url := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.twilioBaseURL, c.cfg.TwilioAccountSID)

	resp, err := c.client.R().
		SetContext(ctx).
		SetBasicAuth(c.cfg.TwilioAccountSID, c.cfg.TwilioAuthToken).
		SetFormData(map[string]string{
			"From": c.cfg.TwilioFromNumber,
			"To":   recipient,
			"Body": TruncateSMSBody(msg.Body, c.cfg.CharacterLimit),
		}).
		Post(url)
	if err != nil {
		return domain.FailureOutcome(domain.FailureNetworkError, err.Error())
	}

	body := strings.TrimSpace(resp.String())
	metadata := map[string]string{
		"provider":     "twilio",
		"raw_response": body,
	}

	if resp.StatusCode() < http.StatusOK || resp.StatusCode() >= http.StatusMultipleChoices {
		outcome := domain.FailureOutcome(domain.FailureProviderRejected,
			fmt.Sprintf("twilio returned status %d: %s", resp.StatusCode(), body))
		outcome.Metadata = metadata
		return outcome
	}

	var parsed struct {
		SID string `json:"sid"`
	}
	// A missing SID is not a failure; the 2xx is what counts.
	_ = json.Unmarshal([]byte(body), &parsed)

	return domain.SuccessOutcome(parsed.SID, metadata)
}
