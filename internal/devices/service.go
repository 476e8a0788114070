package devices

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agencycrm/notify-engine/internal/domain"
	"github.com/agencycrm/notify-engine/internal/observability"
	"github.com/agencycrm/notify-engine/internal/repository"
)

// Service maintains the push device registry. Registration is idempotent by
// token: a device re-login refreshes the row and may move it to a different
// customer.
type Service struct {
	devices repository.DeviceRepository
	logger  *zap.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

func NewService(devices repository.DeviceRepository, logger *zap.Logger) (*Service, error) {
	if devices == nil {
		return nil, fmt.Errorf("device repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		devices: devices,
		logger:  logger,
		now:     time.Now,
	}, nil
}

func (s *Service) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

func (s *Service) Register(ctx context.Context, customerID, token, deviceType string) (*domain.DeviceRegistration, error) {
	registration := &domain.DeviceRegistration{
		ID:           uuid.NewString(),
		CustomerID:   strings.TrimSpace(customerID),
		DeviceToken:  strings.TrimSpace(token),
		DeviceType:   strings.ToLower(strings.TrimSpace(deviceType)),
		IsActive:     true,
		LastActiveAt: s.now().UTC(),
		CreatedAt:    s.now().UTC(),
	}
	if err := registration.Validate(); err != nil {
		return nil, err
	}

	if err := s.devices.Upsert(ctx, registration); err != nil {
		return nil, fmt.Errorf("failed to upsert device registration: %w", err)
	}

	return registration, nil
}

func (s *Service) Heartbeat(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("%w: device token is required", domain.ErrValidation)
	}
	return s.devices.Heartbeat(ctx, token, s.now().UTC())
}

// Deactivate flips a token inactive. Invoked by the push client when the
// provider reports the token permanently invalid.
func (s *Service) Deactivate(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("%w: device token is required", domain.ErrValidation)
	}

	if err := s.devices.Deactivate(ctx, token); err != nil {
		return err
	}

	s.logger.Info("push token deactivated")
	if s.metrics != nil {
		s.metrics.IncDeviceDeactivated()
	}
	return nil
}

// ActiveByCustomer lists the active registrations push fan-out targets.
func (s *Service) ActiveByCustomer(ctx context.Context, customerID string) ([]domain.DeviceRegistration, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, fmt.Errorf("%w: customer id is required", domain.ErrValidation)
	}
	return s.devices.ActiveByCustomer(ctx, customerID)
}
