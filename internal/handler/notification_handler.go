package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/agencycrm/notify-engine/internal/dispatch"
	"github.com/agencycrm/notify-engine/internal/domain"
	"github.com/agencycrm/notify-engine/internal/repository"
)

const (
	defaultPage     = 1
	defaultPageSize = 50
	maxPageSize     = 100
)

// NotificationDispatcher is the dispatcher surface the HTTP layer needs.
type NotificationDispatcher interface {
	Dispatch(ctx context.Context, req dispatch.DispatchRequest) (*domain.NotificationLog, error)
	DispatchWithFallback(ctx context.Context, req dispatch.DispatchRequest, recipients map[domain.Channel]string) (*domain.NotificationLog, error)
}

type NotificationHandler struct {
	dispatcher NotificationDispatcher
	logs       repository.NotificationLogRepository
}

func NewNotificationHandler(dispatcher NotificationDispatcher, logs repository.NotificationLogRepository) (*NotificationHandler, error) {
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if logs == nil {
		return nil, fmt.Errorf("notification log repository is required")
	}
	return &NotificationHandler{dispatcher: dispatcher, logs: logs}, nil
}

func RegisterNotificationRoutes(router fiber.Router, dispatcher NotificationDispatcher, logs repository.NotificationLogRepository) error {
	h, err := NewNotificationHandler(dispatcher, logs)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/notifications/dispatch", h.DispatchNotification)
	v1.Get("/notifications/:id", h.GetNotification)
	v1.Get("/notifications", h.ListNotifications)

	return nil
}

type dispatchRequest struct {
	NotifiableType       string            `json:"notifiableType"`
	NotifiableID         string            `json:"notifiableId"`
	Channel              string            `json:"channel"`
	Recipient            string            `json:"recipient"`
	NotificationTypeCode string            `json:"notificationTypeCode,omitempty"`
	Body                 string            `json:"body,omitempty"`
	Subject              string            `json:"subject,omitempty"`
	CC                   []string          `json:"cc,omitempty"`
	BCC                  []string          `json:"bcc,omitempty"`
	Title                string            `json:"title,omitempty"`
	Data                 map[string]string `json:"data,omitempty"`
	AttachmentPath       string            `json:"attachmentPath,omitempty"`
	MaxAttempts          int               `json:"maxAttempts,omitempty"`

	// FallbackRecipients enables channel fallback: per-channel destinations
	// consulted when the primary channel fails fatally.
	FallbackRecipients map[string]string `json:"fallbackRecipients,omitempty"`
}

type notificationLogResponse struct {
	ID                   string            `json:"id"`
	NotifiableType       string            `json:"notifiableType,omitempty"`
	NotifiableID         string            `json:"notifiableId,omitempty"`
	Channel              string            `json:"channel"`
	Recipient            string            `json:"recipient"`
	NotificationTypeCode string            `json:"notificationTypeCode,omitempty"`
	MessageContent       string            `json:"messageContent"`
	Status               string            `json:"status"`
	AttemptCount         int               `json:"attemptCount"`
	MaxAttempts          int               `json:"maxAttempts"`
	NextRetryAt          *time.Time        `json:"nextRetryAt,omitempty"`
	LastError            string            `json:"lastError,omitempty"`
	ProviderMetadata     map[string]string `json:"providerMetadata,omitempty"`
	CreatedAt            time.Time         `json:"createdAt"`
	SentAt               *time.Time        `json:"sentAt,omitempty"`
}

type dispatchResponse struct {
	Success bool                    `json:"success"`
	Log     notificationLogResponse `json:"log"`
}

type listNotificationsResponse struct {
	Data []notificationLogResponse `json:"data"`
	Meta listMeta                  `json:"meta"`
}

type listMeta struct {
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
	Total    int64 `json:"total"`
}

func (h *NotificationHandler) DispatchNotification(c *fiber.Ctx) error {
	var req dispatchRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	ch, err := domain.ParseChannelFromString(req.Channel)
	if err != nil {
		return toHTTPError(err)
	}

	dispatchReq := dispatch.DispatchRequest{
		NotifiableType:       strings.TrimSpace(req.NotifiableType),
		NotifiableID:         strings.TrimSpace(req.NotifiableID),
		Channel:              ch,
		Recipient:            strings.TrimSpace(req.Recipient),
		NotificationTypeCode: strings.TrimSpace(req.NotificationTypeCode),
		Body:                 req.Body,
		Subject:              req.Subject,
		CC:                   req.CC,
		BCC:                  req.BCC,
		Title:                req.Title,
		Data:                 req.Data,
		AttachmentPath:       strings.TrimSpace(req.AttachmentPath),
		MaxAttempts:          req.MaxAttempts,
	}

	var entry *domain.NotificationLog
	if len(req.FallbackRecipients) > 0 {
		recipients := make(map[domain.Channel]string, len(req.FallbackRecipients))
		for rawChannel, recipient := range req.FallbackRecipients {
			fallbackCh, err := domain.ParseChannelFromString(rawChannel)
			if err != nil {
				return toHTTPError(err)
			}
			recipients[fallbackCh] = strings.TrimSpace(recipient)
		}
		entry, err = h.dispatcher.DispatchWithFallback(c.Context(), dispatchReq, recipients)
	} else {
		entry, err = h.dispatcher.Dispatch(c.Context(), dispatchReq)
	}
	if err != nil {
		return toHTTPError(err)
	}

	status := fiber.StatusOK
	if entry.Status != domain.StatusSent {
		status = fiber.StatusAccepted
	}

	return c.Status(status).JSON(dispatchResponse{
		Success: entry.Status == domain.StatusSent,
		Log:     toLogResponse(entry),
	})
}

func (h *NotificationHandler) GetNotification(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	entry, err := h.logs.GetByID(c.Context(), id)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toLogResponse(entry))
}

func (h *NotificationHandler) ListNotifications(c *fiber.Ctx) error {
	params, err := parseListParams(c)
	if err != nil {
		return toHTTPError(err)
	}

	logs, total, err := h.logs.List(c.Context(), params)
	if err != nil {
		return toHTTPError(err)
	}

	responses := make([]notificationLogResponse, 0, len(logs))
	for i := range logs {
		responses = append(responses, toLogResponse(&logs[i]))
	}

	return c.Status(fiber.StatusOK).JSON(listNotificationsResponse{
		Data: responses,
		Meta: listMeta{
			Page:     params.Page,
			PageSize: params.PageSize,
			Total:    total,
		},
	})
}

func parseListParams(c *fiber.Ctx) (repository.ListParams, error) {
	params := repository.ListParams{
		Page:     c.QueryInt("page", defaultPage),
		PageSize: c.QueryInt("pageSize", defaultPageSize),
	}

	if params.Page < 1 {
		return repository.ListParams{}, fmt.Errorf("%w: page must be >= 1", domain.ErrValidation)
	}
	if params.PageSize < 1 || params.PageSize > maxPageSize {
		return repository.ListParams{}, fmt.Errorf("%w: pageSize must be between 1 and %d", domain.ErrValidation, maxPageSize)
	}

	if rawStatus := strings.TrimSpace(c.Query("status")); rawStatus != "" {
		status, err := domain.ParseStatusFromString(rawStatus)
		if err != nil {
			return repository.ListParams{}, err
		}
		params.Status = &status
	}

	if rawChannel := strings.TrimSpace(c.Query("channel")); rawChannel != "" {
		ch, err := domain.ParseChannelFromString(rawChannel)
		if err != nil {
			return repository.ListParams{}, err
		}
		params.Channel = &ch
	}

	from, err := parseRFC3339Query(c.Query("from"), "from")
	if err != nil {
		return repository.ListParams{}, err
	}
	to, err := parseRFC3339Query(c.Query("to"), "to")
	if err != nil {
		return repository.ListParams{}, err
	}
	params.From = from
	params.To = to

	return params, nil
}

func parseRFC3339Query(value string, field string) (*time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}

	t, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be RFC3339", domain.ErrValidation, field)
	}
	return &t, nil
}

func toLogResponse(n *domain.NotificationLog) notificationLogResponse {
	if n == nil {
		return notificationLogResponse{}
	}

	return notificationLogResponse{
		ID:                   n.ID,
		NotifiableType:       n.NotifiableType,
		NotifiableID:         n.NotifiableID,
		Channel:              n.Channel.String(),
		Recipient:            n.Recipient,
		NotificationTypeCode: n.NotificationTypeCode,
		MessageContent:       n.MessageContent,
		Status:               n.Status.String(),
		AttemptCount:         n.AttemptCount,
		MaxAttempts:          n.MaxAttempts,
		NextRetryAt:          n.NextRetryAt,
		LastError:            n.LastError,
		ProviderMetadata:     n.ProviderMetadata,
		CreatedAt:            n.CreatedAt,
		SentAt:               n.SentAt,
	}
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return err
	}
}
