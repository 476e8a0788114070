package domain

import (
	"fmt"
	"strings"
	"time"
)

// DeviceRegistration tracks one push token for a customer. A registration is
// deactivated when the push provider reports the token as permanently invalid.
type DeviceRegistration struct {
	ID           string
	CustomerID   string
	DeviceToken  string
	DeviceType   string
	IsActive     bool
	LastActiveAt time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (d *DeviceRegistration) Validate() error {
	if strings.TrimSpace(d.CustomerID) == "" {
		return fmt.Errorf("%w: customer id is required", ErrValidation)
	}
	if strings.TrimSpace(d.DeviceToken) == "" {
		return fmt.Errorf("%w: device token is required", ErrValidation)
	}
	return nil
}
