package channel

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/agencycrm/notify-engine/internal/domain"
)

type fakeDeviceDirectory struct {
	mu          sync.Mutex
	active      []domain.DeviceRegistration
	activeErr   error
	deactivated []string
}

func (f *fakeDeviceDirectory) ActiveByCustomer(ctx context.Context, customerID string) ([]domain.DeviceRegistration, error) {
	if f.activeErr != nil {
		return nil, f.activeErr
	}
	return f.active, nil
}

func (f *fakeDeviceDirectory) Deactivate(ctx context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deactivated = append(f.deactivated, token)
	return nil
}

func newTestPushClient(t *testing.T, serverURL string, devices DeviceDirectory) *PushClient {
	t.Helper()

	client := NewPushClient(PushConfig{Enabled: true, ServerKey: "server-key"}, devices, nil)
	client.fcmURL = serverURL
	return client
}

func TestPushSendSuccess(t *testing.T) {
	t.Parallel()

	var gotReq fcmRequest
	var gotAuth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"success":1,"failure":0,"results":[{"message_id":"fcm-msg-1"}]}`))
	}))
	defer server.Close()

	client := newTestPushClient(t, server.URL, nil)
	outcome := client.Send(context.Background(), Message{
		Recipient: "token-1",
		Title:     "Policy renewal",
		Body:      "your policy renews on friday",
		Data:      map[string]string{"policyId": "p-1"},
	})

	if !outcome.Success {
		t.Fatalf("Send() failed: kind=%s error=%s", outcome.Kind, outcome.Error)
	}
	if outcome.ProviderMessageID != "fcm-msg-1" {
		t.Errorf("ProviderMessageID = %q, want %q", outcome.ProviderMessageID, "fcm-msg-1")
	}
	if gotAuth != "key=server-key" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotReq.To != "token-1" {
		t.Errorf("to = %q", gotReq.To)
	}
	if gotReq.Notification.Title != "Policy renewal" {
		t.Errorf("title = %q", gotReq.Notification.Title)
	}
	if gotReq.Notification.Sound != "default" || gotReq.Notification.Icon != "ic_notification" {
		t.Errorf("notification defaults = %+v", gotReq.Notification)
	}
	if gotReq.Priority != "high" {
		t.Errorf("priority = %q", gotReq.Priority)
	}
	if gotReq.Data["policyId"] != "p-1" {
		t.Errorf("data = %v", gotReq.Data)
	}
}

func TestPushSendInvalidTokenDeactivates(t *testing.T) {
	t.Parallel()

	for _, errorCode := range []string{"InvalidRegistration", "NotRegistered", "MismatchSenderId"} {
		errorCode := errorCode
		t.Run(errorCode, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"success":0,"failure":1,"results":[{"error":"` + errorCode + `"}]}`))
			}))
			defer server.Close()

			directory := &fakeDeviceDirectory{}
			client := newTestPushClient(t, server.URL, directory)

			outcome := client.Send(context.Background(), Message{Recipient: "dead-token", Body: "hi"})

			if outcome.Success || outcome.Kind != domain.FailureProviderRejected {
				t.Fatalf("Kind = %s, want %s", outcome.Kind, domain.FailureProviderRejected)
			}
			if len(directory.deactivated) != 1 || directory.deactivated[0] != "dead-token" {
				t.Fatalf("deactivated = %v, want [dead-token]", directory.deactivated)
			}
			if outcome.Metadata["error_code"] != errorCode {
				t.Errorf("error_code metadata = %q", outcome.Metadata["error_code"])
			}
		})
	}
}

func TestPushSendTransientFailureKeepsToken(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":0,"failure":1,"results":[{"error":"Unavailable"}]}`))
	}))
	defer server.Close()

	directory := &fakeDeviceDirectory{}
	client := newTestPushClient(t, server.URL, directory)

	outcome := client.Send(context.Background(), Message{Recipient: "token-1", Body: "hi"})

	if outcome.Success {
		t.Fatal("expected failure outcome")
	}
	if len(directory.deactivated) != 0 {
		t.Fatalf("deactivated = %v, want none", directory.deactivated)
	}
}

func TestPushSendDisabled(t *testing.T) {
	t.Parallel()

	client := NewPushClient(PushConfig{Enabled: false}, nil, nil)
	outcome := client.Send(context.Background(), Message{Recipient: "token-1", Body: "hi"})

	if outcome.Success || outcome.Kind != domain.FailureChannelDisabled {
		t.Fatalf("Kind = %s, want %s", outcome.Kind, domain.FailureChannelDisabled)
	}
}

func TestPushSendEmptyToken(t *testing.T) {
	t.Parallel()

	client := NewPushClient(PushConfig{Enabled: true}, nil, nil)
	outcome := client.Send(context.Background(), Message{Recipient: " ", Body: "hi"})

	if outcome.Success || outcome.Kind != domain.FailureInvalidRecipient {
		t.Fatalf("Kind = %s, want %s", outcome.Kind, domain.FailureInvalidRecipient)
	}
}

func TestPushSendToCustomerFanout(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req fcmRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}

		if req.To == "bad-token" {
			_, _ = w.Write([]byte(`{"success":0,"failure":1,"results":[{"error":"NotRegistered"}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"success":1,"failure":0,"results":[{"message_id":"m-` + req.To + `"}]}`))
	}))
	defer server.Close()

	directory := &fakeDeviceDirectory{
		active: []domain.DeviceRegistration{
			{CustomerID: "c-1", DeviceToken: "token-a", IsActive: true},
			{CustomerID: "c-1", DeviceToken: "bad-token", IsActive: true},
			{CustomerID: "c-1", DeviceToken: "token-b", IsActive: true},
		},
	}
	client := newTestPushClient(t, server.URL, directory)

	result, err := client.SendToCustomer(context.Background(), "c-1", Message{Title: "hi", Body: "body"})
	if err != nil {
		t.Fatalf("SendToCustomer() error = %v", err)
	}

	if result.Total != 3 || result.Success != 2 || result.Failed != 1 {
		t.Fatalf("result = %+v, want total=3 success=2 failed=1", result)
	}
	if len(result.Details) != 3 {
		t.Fatalf("details = %d entries, want 3", len(result.Details))
	}
	// Details keep the device order from the registry.
	if result.Details[1].DeviceToken != "bad-token" || result.Details[1].Outcome.Success {
		t.Fatalf("details[1] = %+v, want failed bad-token", result.Details[1])
	}
	if len(directory.deactivated) != 1 || directory.deactivated[0] != "bad-token" {
		t.Fatalf("deactivated = %v, want [bad-token]", directory.deactivated)
	}
}

func TestPushSendToCustomerNoDevices(t *testing.T) {
	t.Parallel()

	directory := &fakeDeviceDirectory{}
	client := newTestPushClient(t, "http://unused.invalid", directory)

	result, err := client.SendToCustomer(context.Background(), "c-1", Message{Body: "hi"})
	if err != nil {
		t.Fatalf("SendToCustomer() error = %v", err)
	}
	if result.Total != 0 || result.Success != 0 || result.Failed != 0 {
		t.Fatalf("result = %+v, want all zero", result)
	}
}
