package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agencycrm/notify-engine/internal/channel"
	"github.com/agencycrm/notify-engine/internal/domain"
	"github.com/agencycrm/notify-engine/internal/observability"
	"github.com/agencycrm/notify-engine/internal/policy"
	"github.com/agencycrm/notify-engine/internal/repository"
	"github.com/agencycrm/notify-engine/internal/retry"
)

// Renderer is the external template-render collaborator. An empty result
// means no template exists for the code; the caller owns its fallback copy.
type Renderer interface {
	Render(ctx context.Context, code string, ch domain.Channel, notifiableType, notifiableID string) (string, error)
}

// DispatchRequest describes one outbound notification.
type DispatchRequest struct {
	NotifiableType       string
	NotifiableID         string
	Channel              domain.Channel
	Recipient            string
	NotificationTypeCode string

	// Body is the literal message body. When set, the renderer is never
	// consulted.
	Body string

	// Email extras.
	Subject string
	CC      []string
	BCC     []string

	// Push extras.
	Title string
	Data  map[string]string

	// WhatsApp attachment path.
	AttachmentPath string

	// MaxAttempts overrides the configured ceiling when positive.
	MaxAttempts int
}

// Dispatcher orchestrates one delivery attempt: ledger entry first, provider
// call second, state transition last. All attempt counting happens here.
type Dispatcher struct {
	logs     repository.NotificationLogRepository
	registry *channel.Registry
	renderer Renderer
	backoff  retry.Backoff
	quiet    policy.QuietHours
	fallback policy.FallbackChain

	maxAttempts int
	logger      *zap.Logger
	metrics     *observability.Metrics
	now         func() time.Time
}

func NewDispatcher(
	logs repository.NotificationLogRepository,
	registry *channel.Registry,
	renderer Renderer,
	backoff retry.Backoff,
	quiet policy.QuietHours,
	fallback policy.FallbackChain,
	maxAttempts int,
	logger *zap.Logger,
) (*Dispatcher, error) {
	if logs == nil {
		return nil, fmt.Errorf("notification log repository is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("channel registry is required")
	}
	if maxAttempts < 1 {
		maxAttempts = domain.DefaultMaxAttempts
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Dispatcher{
		logs:        logs,
		registry:    registry,
		renderer:    renderer,
		backoff:     backoff,
		quiet:       quiet,
		fallback:    fallback,
		maxAttempts: maxAttempts,
		logger:      logger,
		now:         time.Now,
	}, nil
}

func (d *Dispatcher) SetMetrics(metrics *observability.Metrics) {
	if d == nil {
		return
	}
	d.metrics = metrics
}

// Dispatch performs a single send attempt and returns the finalized ledger
// entry. Callers branch on the entry's status for UI feedback; retry logic
// belongs to the scheduler, never to callers.
func (d *Dispatcher) Dispatch(ctx context.Context, req DispatchRequest) (*domain.NotificationLog, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if !req.Channel.IsValid() {
		return nil, fmt.Errorf("%w: invalid channel %q", domain.ErrValidation, req.Channel)
	}
	if strings.TrimSpace(req.Recipient) == "" {
		return nil, fmt.Errorf("%w: recipient is required", domain.ErrValidation)
	}

	body, err := d.resolveBody(ctx, req)
	if err != nil {
		return nil, err
	}

	content, err := encodeContent(req.Channel, body, req)
	if err != nil {
		return nil, err
	}

	maxAttempts := d.maxAttempts
	if req.MaxAttempts > 0 {
		maxAttempts = req.MaxAttempts
	}

	entry := &domain.NotificationLog{
		ID:                   uuid.NewString(),
		NotifiableType:       strings.TrimSpace(req.NotifiableType),
		NotifiableID:         strings.TrimSpace(req.NotifiableID),
		Channel:              req.Channel,
		Recipient:            strings.TrimSpace(req.Recipient),
		NotificationTypeCode: strings.TrimSpace(req.NotificationTypeCode),
		MessageContent:       content,
		Status:               domain.StatusPending,
		MaxAttempts:          maxAttempts,
		CreatedAt:            d.now().UTC(),
	}
	if err := entry.Validate(); err != nil {
		return nil, err
	}

	// Persist before any network call so a crash mid-send leaves a trace.
	if err := d.logs.Create(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to create notification log: %w", err)
	}

	now := d.now()
	if d.quiet.Contains(now) {
		resumeAt := d.quiet.WindowEnd(now)
		if err := d.logs.Defer(ctx, entry.ID, "deferred: quiet hours", resumeAt); err != nil {
			return nil, fmt.Errorf("failed to defer notification: %w", err)
		}
		d.logger.Info("send deferred for quiet hours",
			zap.String("notificationLogId", entry.ID),
			zap.Time("resumeAt", resumeAt),
		)
		return d.logs.GetByID(ctx, entry.ID)
	}

	msg, err := decodeContent(entry)
	if err != nil {
		return nil, err
	}
	// The attachment travels with the first attempt only; a retry resends
	// the frozen text body.
	msg.AttachmentPath = req.AttachmentPath

	return d.attempt(ctx, entry, msg, false)
}

// Resend is the scheduler's single-attempt path for a claimed entry. Content
// is frozen at first attempt; nothing is re-rendered.
func (d *Dispatcher) Resend(ctx context.Context, entry *domain.NotificationLog) (*domain.NotificationLog, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if entry == nil {
		return nil, fmt.Errorf("%w: entry is required", domain.ErrValidation)
	}

	msg, err := decodeContent(entry)
	if err != nil {
		if markErr := d.logs.MarkFailed(ctx, entry.ID, err.Error(), nil); markErr != nil {
			return nil, markErr
		}
		return d.logs.GetByID(ctx, entry.ID)
	}

	return d.attempt(ctx, entry, msg, true)
}

// DispatchWithFallback walks the configured fallback chain starting at the
// requested channel: a fatal (non-retryable) failure moves on to the next
// channel with the recipient supplied per channel by the caller.
func (d *Dispatcher) DispatchWithFallback(ctx context.Context, req DispatchRequest, recipients map[domain.Channel]string) (*domain.NotificationLog, error) {
	entry, err := d.Dispatch(ctx, req)
	if err != nil || entry.Status != domain.StatusFailed || entry.NextRetryAt != nil {
		return entry, err
	}

	current := req.Channel
	for {
		next, ok := d.fallback.After(current)
		if !ok {
			return entry, nil
		}

		recipient, ok := recipients[next]
		if !ok || strings.TrimSpace(recipient) == "" {
			current = next
			continue
		}

		nextReq := req
		nextReq.Channel = next
		nextReq.Recipient = recipient

		nextEntry, err := d.Dispatch(ctx, nextReq)
		if err != nil {
			return entry, err
		}
		entry = nextEntry
		if entry.Status != domain.StatusFailed || entry.NextRetryAt != nil {
			return entry, nil
		}
		current = next
	}
}

// attempt runs exactly one provider call and finalizes the entry. Only the
// scheduler path may transition to exhausted.
func (d *Dispatcher) attempt(ctx context.Context, entry *domain.NotificationLog, msg channel.Message, fromScheduler bool) (*domain.NotificationLog, error) {
	client, err := d.registry.Client(entry.Channel)
	if err != nil {
		if markErr := d.logs.MarkFailed(ctx, entry.ID, err.Error(), nil); markErr != nil {
			return nil, markErr
		}
		return d.logs.GetByID(ctx, entry.ID)
	}

	start := d.now()
	outcome := d.safeSend(ctx, client, msg)
	if d.metrics != nil {
		d.metrics.ObserveSendDuration(entry.Channel.String(), d.now().Sub(start))
	}

	if err := d.finalize(ctx, entry, outcome, fromScheduler); err != nil {
		return nil, err
	}

	return d.logs.GetByID(ctx, entry.ID)
}

// safeSend shields the ledger from a misbehaving client: a panic still ends
// up as a failed attempt with lastError set.
func (d *Dispatcher) safeSend(ctx context.Context, client channel.Client, msg channel.Message) (outcome domain.DeliveryOutcome) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("channel client panicked",
				zap.String("channel", client.Channel().String()),
				zap.Any("panic", r),
			)
			outcome = domain.FailureOutcome(domain.FailureProviderRejected, fmt.Sprintf("channel client panic: %v", r))
		}
	}()

	return client.Send(ctx, msg)
}

func (d *Dispatcher) finalize(ctx context.Context, entry *domain.NotificationLog, outcome domain.DeliveryOutcome, fromScheduler bool) error {
	channelName := entry.Channel.String()

	if outcome.Success {
		metadata := outcome.Metadata
		if outcome.ProviderMessageID != "" {
			if metadata == nil {
				metadata = map[string]string{}
			}
			metadata["provider_message_id"] = outcome.ProviderMessageID
		}
		if err := d.logs.MarkSent(ctx, entry.ID, d.now().UTC(), metadata); err != nil {
			return fmt.Errorf("failed to mark notification sent: %w", err)
		}
		if d.metrics != nil {
			d.metrics.IncNotificationSent(channelName)
		}
		return nil
	}

	lastError := outcome.Error
	if outcome.Kind != "" {
		lastError = fmt.Sprintf("%s: %s", outcome.Kind, outcome.Error)
	}
	if d.metrics != nil {
		d.metrics.IncNotificationFailed(channelName, outcome.Kind.String())
	}

	newAttemptCount := entry.AttemptCount + 1
	attemptsSpent := newAttemptCount >= entry.MaxAttempts

	if fromScheduler && attemptsSpent {
		if err := d.logs.MarkExhausted(ctx, entry.ID, lastError); err != nil {
			return fmt.Errorf("failed to mark notification exhausted: %w", err)
		}
		if d.metrics != nil {
			d.metrics.IncNotificationExhausted(channelName)
		}
		return nil
	}

	var nextRetryAt *time.Time
	if outcome.Kind.Retryable() && !attemptsSpent {
		at := d.now().Add(d.backoff.Delay(newAttemptCount))
		nextRetryAt = &at
	}

	if err := d.logs.MarkFailed(ctx, entry.ID, lastError, nextRetryAt); err != nil {
		return fmt.Errorf("failed to mark notification failed: %w", err)
	}
	if nextRetryAt != nil && d.metrics != nil {
		d.metrics.IncRetryScheduled(channelName)
	}
	return nil
}

func (d *Dispatcher) resolveBody(ctx context.Context, req DispatchRequest) (string, error) {
	if strings.TrimSpace(req.Body) != "" {
		return req.Body, nil
	}

	code := strings.TrimSpace(req.NotificationTypeCode)
	if code == "" {
		return "", fmt.Errorf("%w: either a body or a notification type code is required", domain.ErrValidation)
	}
	if d.renderer == nil {
		return "", fmt.Errorf("%w: no renderer configured for template %q", domain.ErrValidation, code)
	}

	body, err := d.renderer.Render(ctx, code, req.Channel, req.NotifiableType, req.NotifiableID)
	if err != nil {
		return "", fmt.Errorf("failed to render template %q: %w", code, err)
	}
	if strings.TrimSpace(body) == "" {
		return "", fmt.Errorf("%w: no template for code %q on channel %s", domain.ErrValidation, code, req.Channel)
	}
	return body, nil
}

// pushContent is the structured payload stored in MessageContent for push
// entries so a retry reconstructs the exact notification.
type pushContent struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// emailContent is the structured payload stored for email entries.
type emailContent struct {
	Subject string   `json:"subject"`
	Body    string   `json:"body"`
	CC      []string `json:"cc,omitempty"`
	BCC     []string `json:"bcc,omitempty"`
}

func encodeContent(ch domain.Channel, body string, req DispatchRequest) (string, error) {
	switch ch {
	case domain.ChannelPush:
		raw, err := json.Marshal(pushContent{Title: req.Title, Body: body, Data: req.Data})
		if err != nil {
			return "", fmt.Errorf("failed to encode push payload: %w", err)
		}
		return string(raw), nil
	case domain.ChannelEmail:
		raw, err := json.Marshal(emailContent{Subject: req.Subject, Body: body, CC: req.CC, BCC: req.BCC})
		if err != nil {
			return "", fmt.Errorf("failed to encode email payload: %w", err)
		}
		return string(raw), nil
	default:
		return body, nil
	}
}

func decodeContent(entry *domain.NotificationLog) (channel.Message, error) {
	msg := channel.Message{
		Recipient: entry.Recipient,
		Body:      entry.MessageContent,
	}

	switch entry.Channel {
	case domain.ChannelPush:
		var payload pushContent
		if err := json.Unmarshal([]byte(entry.MessageContent), &payload); err != nil {
			return channel.Message{}, fmt.Errorf("%w: malformed push payload", domain.ErrValidation)
		}
		msg.Title = payload.Title
		msg.Body = payload.Body
		msg.Data = payload.Data
	case domain.ChannelEmail:
		var payload emailContent
		if err := json.Unmarshal([]byte(entry.MessageContent), &payload); err != nil {
			return channel.Message{}, fmt.Errorf("%w: malformed email payload", domain.ErrValidation)
		}
		msg.Subject = payload.Subject
		msg.Body = payload.Body
		msg.CC = payload.CC
		msg.BCC = payload.BCC
	}

	return msg, nil
}
