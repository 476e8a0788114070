package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/agencycrm/notify-engine/internal/channel"
	"github.com/agencycrm/notify-engine/internal/devices"
)

// PushFanout sends one message to every active device of a customer.
type PushFanout interface {
	SendToCustomer(ctx context.Context, customerID string, msg channel.Message) (*channel.FanoutResult, error)
}

type DeviceHandler struct {
	service *devices.Service
	push    PushFanout
}

func NewDeviceHandler(service *devices.Service, push PushFanout) (*DeviceHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("device service is required")
	}
	return &DeviceHandler{service: service, push: push}, nil
}

func RegisterDeviceRoutes(router fiber.Router, service *devices.Service, push PushFanout) error {
	h, err := NewDeviceHandler(service, push)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/devices", h.RegisterDevice)
	v1.Post("/devices/heartbeat", h.Heartbeat)
	v1.Post("/push/customers/:customerId", h.PushToCustomer)

	return nil
}

type registerDeviceRequest struct {
	CustomerID  string `json:"customerId"`
	DeviceToken string `json:"deviceToken"`
	DeviceType  string `json:"deviceType"`
}

type deviceResponse struct {
	ID           string    `json:"id"`
	CustomerID   string    `json:"customerId"`
	DeviceToken  string    `json:"deviceToken"`
	DeviceType   string    `json:"deviceType"`
	IsActive     bool      `json:"isActive"`
	LastActiveAt time.Time `json:"lastActiveAt"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (h *DeviceHandler) RegisterDevice(c *fiber.Ctx) error {
	var req registerDeviceRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	registration, err := h.service.Register(c.Context(), req.CustomerID, req.DeviceToken, req.DeviceType)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(deviceResponse{
		ID:           registration.ID,
		CustomerID:   registration.CustomerID,
		DeviceToken:  registration.DeviceToken,
		DeviceType:   registration.DeviceType,
		IsActive:     registration.IsActive,
		LastActiveAt: registration.LastActiveAt,
		CreatedAt:    registration.CreatedAt,
	})
}

type heartbeatRequest struct {
	DeviceToken string `json:"deviceToken"`
}

func (h *DeviceHandler) Heartbeat(c *fiber.Ctx) error {
	var req heartbeatRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if err := h.service.Heartbeat(c.Context(), req.DeviceToken); err != nil {
		return toHTTPError(err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

type pushToCustomerRequest struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

type pushToCustomerResponse struct {
	Total   int                `json:"total"`
	Success int                `json:"success"`
	Failed  int                `json:"failed"`
	Devices []deviceSendDetail `json:"devices"`
}

type deviceSendDetail struct {
	DeviceToken string `json:"deviceToken"`
	Success     bool   `json:"success"`
	Error       string `json:"error,omitempty"`
}

func (h *DeviceHandler) PushToCustomer(c *fiber.Ctx) error {
	if h.push == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "push channel is not configured")
	}

	customerID := strings.TrimSpace(c.Params("customerId"))
	if customerID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "customer id is required")
	}

	var req pushToCustomerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Body) == "" {
		return fiber.NewError(fiber.StatusBadRequest, "body is required")
	}

	result, err := h.push.SendToCustomer(c.Context(), customerID, channel.Message{
		Title: req.Title,
		Body:  req.Body,
		Data:  req.Data,
	})
	if err != nil {
		return toHTTPError(err)
	}

	resp := pushToCustomerResponse{
		Total:   result.Total,
		Success: result.Success,
		Failed:  result.Failed,
		Devices: make([]deviceSendDetail, 0, len(result.Details)),
	}
	for _, detail := range result.Details {
		resp.Devices = append(resp.Devices, deviceSendDetail{
			DeviceToken: detail.DeviceToken,
			Success:     detail.Outcome.Success,
			Error:       detail.Outcome.Error,
		})
	}

	return c.Status(fiber.StatusOK).JSON(resp)
}
