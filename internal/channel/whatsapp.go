package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/agencycrm/notify-engine/internal/domain"
)

const (
	whatsappSendTimeout       = 30 * time.Second
	whatsappAttachmentTimeout = 60 * time.Second

	// Provider error status that indicates the gateway session dropped and a
	// later retry is likely to succeed.
	whatsappSessionOffline = "session offline"
)

var whatsappRecipientPattern = regexp.MustCompile(`^91[0-9]{10}$`)

// WhatsAppConfig holds the gateway credentials captured at construction.
type WhatsAppConfig struct {
	Enabled   bool
	SenderID  string
	BaseURL   string
	AuthToken string
}

// WhatsAppClient sends messages through a WhatsApp HTTP gateway.
type WhatsAppClient struct {
	cfg    WhatsAppConfig
	client *resty.Client
}

func NewWhatsAppClient(cfg WhatsAppConfig) *WhatsAppClient {
	client := resty.New()
	client.SetRetryCount(0)

	return &WhatsAppClient{cfg: cfg, client: client}
}

func (c *WhatsAppClient) Channel() domain.Channel { return domain.ChannelWhatsApp }

// NormalizeWhatsAppRecipient canonicalizes an Indian mobile number to the
// 12-digit 91XXXXXXXXXX form the gateway expects.
func NormalizeWhatsAppRecipient(raw string) (string, error) {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, raw)

	if digits == "" {
		return "", fmt.Errorf("%w: recipient %q contains no digits", domain.ErrValidation, raw)
	}
	// A bare 10-digit mobile number gets the country code prepended; a
	// 12-digit number must already carry it.
	if len(digits) == 10 {
		digits = "91" + digits
	}
	if !whatsappRecipientPattern.MatchString(digits) {
		return "", fmt.Errorf("%w: recipient %q is not a valid Indian mobile number", domain.ErrValidation, raw)
	}
	return digits, nil
}

type whatsappResult struct {
	Success bool `json:"success"`
	Error   struct {
		Status string `json:"status"`
	} `json:"error"`
}

func (c *WhatsAppClient) Send(ctx context.Context, msg Message) domain.DeliveryOutcome {
	if !c.cfg.Enabled {
		return domain.FailureOutcome(domain.FailureChannelDisabled, "whatsapp channel is disabled")
	}

	recipient, err := NormalizeWhatsAppRecipient(msg.Recipient)
	if err != nil {
		return domain.FailureOutcome(domain.FailureInvalidRecipient, err.Error())
	}

	timeout := whatsappSendTimeout
	if msg.AttachmentPath != "" {
		if err := checkAttachment(msg.AttachmentPath); err != nil {
			return domain.FailureOutcome(domain.FailureAttachmentError, err.Error())
		}
		timeout = whatsappAttachmentTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req := c.client.R().
		SetContext(ctx).
		SetQueryParam("action", "send").
		SetFormData(map[string]string{
			"senderId":    c.cfg.SenderID,
			"authToken":   c.cfg.AuthToken,
			"messageText": msg.Body,
			"receiverId":  recipient,
		})
	if msg.AttachmentPath != "" {
		req.SetFile("uploadFile", msg.AttachmentPath)
	}

	resp, err := req.Post(c.cfg.BaseURL)
	if err != nil {
		return domain.FailureOutcome(domain.FailureNetworkError, err.Error())
	}

	body := strings.TrimSpace(resp.String())
	metadata := map[string]string{
		"provider":     "whatsapp_gateway",
		"raw_response": body,
	}

	if resp.StatusCode() < http.StatusOK || resp.StatusCode() >= http.StatusMultipleChoices {
		outcome := domain.FailureOutcome(domain.FailureProviderRejected,
			fmt.Sprintf("gateway returned status %d: %s", resp.StatusCode(), body))
		outcome.Metadata = metadata
		return outcome
	}

	var results []whatsappResult
	if err := json.Unmarshal([]byte(body), &results); err != nil || len(results) == 0 {
		outcome := domain.FailureOutcome(domain.FailureProviderRejected,
			fmt.Sprintf("unexpected gateway response: %s", body))
		outcome.Metadata = metadata
		return outcome
	}

	for _, result := range results {
		if result.Success {
			continue
		}

		status := strings.ToLower(strings.TrimSpace(result.Error.Status))
		metadata["error_status"] = status
		kind := domain.FailureProviderRejected
		if status == whatsappSessionOffline {
			kind = domain.FailureProviderUnavailable
		}

		outcome := domain.FailureOutcome(kind, fmt.Sprintf("gateway error: %s", status))
		outcome.Metadata = metadata
		return outcome
	}

	outcome := domain.SuccessOutcome("", metadata)
	return outcome
}

// checkAttachment verifies the file exists and is readable before upload.
// Missing files are a caller bug, not a transient provider problem.
func checkAttachment(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("attachment %q is not readable: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("attachment %q is not readable: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("attachment %q is a directory", path)
	}
	return nil
}
