package devices

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/agencycrm/notify-engine/internal/domain"
)

type fakeDeviceRepo struct {
	upserted    []*domain.DeviceRegistration
	upsertErr   error
	heartbeats  []string
	deactivated []string
	active      []domain.DeviceRegistration
}

func (f *fakeDeviceRepo) Upsert(ctx context.Context, d *domain.DeviceRegistration) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserted = append(f.upserted, d)
	return nil
}

func (f *fakeDeviceRepo) GetByToken(ctx context.Context, token string) (*domain.DeviceRegistration, error) {
	return nil, domain.ErrNotFound
}

func (f *fakeDeviceRepo) ActiveByCustomer(ctx context.Context, customerID string) ([]domain.DeviceRegistration, error) {
	return f.active, nil
}

func (f *fakeDeviceRepo) Deactivate(ctx context.Context, token string) error {
	f.deactivated = append(f.deactivated, token)
	return nil
}

func (f *fakeDeviceRepo) Heartbeat(ctx context.Context, token string, at time.Time) error {
	f.heartbeats = append(f.heartbeats, token)
	return nil
}

func TestRegisterDevice(t *testing.T) {
	t.Parallel()

	repo := &fakeDeviceRepo{}
	svc, err := NewService(repo, nil)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}

	registration, err := svc.Register(context.Background(), " c-1 ", " token-1 ", "Android")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if registration.ID == "" {
		t.Fatal("registration must get an id")
	}
	if registration.CustomerID != "c-1" || registration.DeviceToken != "token-1" {
		t.Fatalf("registration = %+v, want trimmed fields", registration)
	}
	if registration.DeviceType != "android" {
		t.Fatalf("DeviceType = %q, want lowercased", registration.DeviceType)
	}
	if !registration.IsActive {
		t.Fatal("new registration must be active")
	}
	if len(repo.upserted) != 1 {
		t.Fatalf("upserted %d rows, want 1", len(repo.upserted))
	}
}

func TestRegisterDeviceValidation(t *testing.T) {
	t.Parallel()

	repo := &fakeDeviceRepo{}
	svc, err := NewService(repo, nil)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}

	if _, err := svc.Register(context.Background(), "", "token-1", "ios"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("missing customer: error = %v, want ErrValidation", err)
	}
	if _, err := svc.Register(context.Background(), "c-1", "  ", "ios"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("missing token: error = %v, want ErrValidation", err)
	}
	if len(repo.upserted) != 0 {
		t.Fatal("invalid registrations must not reach the repository")
	}
}

func TestHeartbeat(t *testing.T) {
	t.Parallel()

	repo := &fakeDeviceRepo{}
	svc, err := NewService(repo, nil)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}

	if err := svc.Heartbeat(context.Background(), "token-1"); err != nil {
		t.Fatalf("Heartbeat() error = %v", err)
	}
	if len(repo.heartbeats) != 1 || repo.heartbeats[0] != "token-1" {
		t.Fatalf("heartbeats = %v", repo.heartbeats)
	}

	if err := svc.Heartbeat(context.Background(), "  "); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("empty token: error = %v, want ErrValidation", err)
	}
}

func TestDeactivate(t *testing.T) {
	t.Parallel()

	repo := &fakeDeviceRepo{}
	svc, err := NewService(repo, nil)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}

	if err := svc.Deactivate(context.Background(), "token-1"); err != nil {
		t.Fatalf("Deactivate() error = %v", err)
	}
	if len(repo.deactivated) != 1 || repo.deactivated[0] != "token-1" {
		t.Fatalf("deactivated = %v", repo.deactivated)
	}
}

func TestActiveByCustomer(t *testing.T) {
	t.Parallel()

	repo := &fakeDeviceRepo{active: []domain.DeviceRegistration{
		{CustomerID: "c-1", DeviceToken: "token-1", IsActive: true},
	}}
	svc, err := NewService(repo, nil)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}

	got, err := svc.ActiveByCustomer(context.Background(), "c-1")
	if err != nil {
		t.Fatalf("ActiveByCustomer() error = %v", err)
	}
	if len(got) != 1 || got[0].DeviceToken != "token-1" {
		t.Fatalf("got = %v", got)
	}

	if _, err := svc.ActiveByCustomer(context.Background(), " "); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("empty customer: error = %v, want ErrValidation", err)
	}
}
