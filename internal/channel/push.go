package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/agencycrm/notify-engine/internal/domain"
)

const (
	pushSendTimeout = 30 * time.Second
	defaultFCMURL   = "https://fcm.googleapis.com/fcm/send"

	// fanoutConcurrency bounds parallel device sends for one customer so a
	// customer with many devices cannot burst the provider rate limit.
	fanoutConcurrency = 4
)

// invalidTokenErrors are FCM error codes that mean the token is permanently
// dead and its registration must be deactivated.
var invalidTokenErrors = map[string]bool{
	"InvalidRegistration": true,
	"NotRegistered":       true,
	"MismatchSenderId":    true,
}

// PushConfig carries the FCM server credentials.
type PushConfig struct {
	Enabled   bool
	ServerKey string
	SenderID  string
}

// DeviceDirectory is the device-registry surface the push client needs: the
// active tokens of a customer and the deactivation side effect for tokens the
// provider reports invalid.
type DeviceDirectory interface {
	ActiveByCustomer(ctx context.Context, customerID string) ([]domain.DeviceRegistration, error)
	Deactivate(ctx context.Context, token string) error
}

// PushClient sends FCM notifications to single device tokens and fans out to
// all active devices of a customer.
type PushClient struct {
	cfg     PushConfig
	client  *resty.Client
	devices DeviceDirectory
	logger  *zap.Logger
	fcmURL  string
}

func NewPushClient(cfg PushConfig, devices DeviceDirectory, logger *zap.Logger) *PushClient {
	if logger == nil {
		logger = zap.NewNop()
	}

	client := resty.New()
	client.SetRetryCount(0)

	return &PushClient{
		cfg:     cfg,
		client:  client,
		devices: devices,
		logger:  logger,
		fcmURL:  defaultFCMURL,
	}
}

func (c *PushClient) Channel() domain.Channel { return domain.ChannelPush }

type fcmNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Sound string `json:"sound"`
	Icon  string `json:"icon"`
}

type fcmRequest struct {
	To           string            `json:"to"`
	Notification fcmNotification   `json:"notification"`
	Data         map[string]string `json:"data,omitempty"`
	Priority     string            `json:"priority"`
}

type fcmResponse struct {
	Success int `json:"success"`
	Failure int `json:"failure"`
	Results []struct {
		MessageID string `json:"message_id"`
		Error     string `json:"error"`
	} `json:"results"`
}

func (c *PushClient) Send(ctx context.Context, msg Message) domain.DeliveryOutcome {
	if !c.cfg.Enabled {
		return domain.FailureOutcome(domain.FailureChannelDisabled, "push channel is disabled")
	}

	token := strings.TrimSpace(msg.Recipient)
	if token == "" {
		return domain.FailureOutcome(domain.FailureInvalidRecipient, "device token is empty")
	}

	ctx, cancel := context.WithTimeout(ctx, pushSendTimeout)
	defer cancel()

	payload := fcmRequest{
		To: token,
		Notification: fcmNotification{
			Title: msg.Title,
			Body:  msg.Body,
			Sound: "default",
			Icon:  "ic_notification",
		},
		Data:     msg.Data,
		Priority: "high",
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Authorization", "key="+c.cfg.ServerKey).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(c.fcmURL)
	if err != nil {
		return domain.FailureOutcome(domain.FailureNetworkError, err.Error())
	}

	body := strings.TrimSpace(resp.String())
	metadata := map[string]string{
		"provider":     "fcm",
		"raw_response": body,
	}

	if resp.StatusCode() < http.StatusOK || resp.StatusCode() >= http.StatusMultipleChoices {
		outcome := domain.FailureOutcome(domain.FailureProviderRejected,
			fmt.Sprintf("fcm returned status %d: %s", resp.StatusCode(), body))
		outcome.Metadata = metadata
		return outcome
	}

	var parsed fcmResponse
	if err := json.Unmarshal([]byte(body), &parsed); err != nil {
		outcome := domain.FailureOutcome(domain.FailureProviderRejected,
			fmt.Sprintf("unexpected fcm response: %s", body))
		outcome.Metadata = metadata
		return outcome
	}

	if parsed.Failure == 0 && parsed.Success > 0 {
		messageID := ""
		if len(parsed.Results) > 0 {
			messageID = parsed.Results[0].MessageID
		}
		metadata["message_id"] = messageID
		return domain.SuccessOutcome(messageID, metadata)
	}

	errorCode := ""
	if len(parsed.Results) > 0 {
		errorCode = strings.TrimSpace(parsed.Results[0].Error)
	}
	metadata["error_code"] = errorCode

	if invalidTokenErrors[errorCode] {
		if c.devices != nil {
			if err := c.devices.Deactivate(ctx, token); err != nil {
				c.logger.Warn("failed to deactivate invalid push token",
					zap.String("errorCode", errorCode),
					zap.Error(err),
				)
			}
		}
		outcome := domain.FailureOutcome(domain.FailureProviderRejected,
			fmt.Sprintf("fcm rejected token: %s", errorCode))
		outcome.Metadata = metadata
		return outcome
	}

	outcome := domain.FailureOutcome(domain.FailureProviderRejected,
		fmt.Sprintf("fcm reported failure: %s", errorCode))
	outcome.Metadata = metadata
	return outcome
}

// DeviceSendResult pairs one device token with its delivery outcome.
type DeviceSendResult struct {
	DeviceToken string
	Outcome     domain.DeliveryOutcome
}

// FanoutResult aggregates per-device outcomes of a customer fan-out.
type FanoutResult struct {
	Total   int
	Success int
	Failed  int
	Details []DeviceSendResult
}

// SendToCustomer delivers the same notification to every active device of a
// customer. Individual device failures are collected, not propagated, so one
// dead token cannot fail the batch.
func (c *PushClient) SendToCustomer(ctx context.Context, customerID string, msg Message) (*FanoutResult, error) {
	if c.devices == nil {
		return nil, fmt.Errorf("device directory is not configured")
	}

	devices, err := c.devices.ActiveByCustomer(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list active devices: %w", err)
	}

	result := &FanoutResult{
		Total:   len(devices),
		Details: make([]DeviceSendResult, len(devices)),
	}

	g, groupCtx := errgroup.WithContext(ctx)
	g.SetLimit(fanoutConcurrency)

	for i := range devices {
		g.Go(func() error {
			deviceMsg := msg
			deviceMsg.Recipient = devices[i].DeviceToken
			result.Details[i] = DeviceSendResult{
				DeviceToken: devices[i].DeviceToken,
				Outcome:     c.Send(groupCtx, deviceMsg),
			}
			return nil
		})
	}

	// Workers never return errors; Wait only synchronizes completion.
	_ = g.Wait()

	for _, detail := range result.Details {
		if detail.Outcome.Success {
			result.Success++
		} else {
			result.Failed++
		}
	}

	return result, nil
}
