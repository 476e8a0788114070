package channel

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/agencycrm/notify-engine/internal/domain"
)

type fakeMailer struct {
	sendMailFunc func(ctx context.Context, mail Mail) error
	sent         []Mail
}

func (f *fakeMailer) SendMail(ctx context.Context, mail Mail) error {
	f.sent = append(f.sent, mail)
	if f.sendMailFunc != nil {
		return f.sendMailFunc(ctx, mail)
	}
	return nil
}

type fakeNetError struct{}

func (fakeNetError) Error() string   { return "dial tcp: connection refused" }
func (fakeNetError) Timeout() bool   { return false }
func (fakeNetError) Temporary() bool { return true }

var _ net.Error = fakeNetError{}

func TestEmailSendSuccess(t *testing.T) {
	t.Parallel()

	mailer := &fakeMailer{}
	client := NewEmailClient(EmailConfig{Enabled: true}, mailer)

	outcome := client.Send(context.Background(), Message{
		Recipient: "customer@example.com",
		Subject:   "Policy renewal",
		Body:      "your policy renews on friday",
		CC:        []string{"agent@example.com"},
		BCC:       []string{"audit@example.com"},
	})

	if !outcome.Success {
		t.Fatalf("Send() failed: kind=%s error=%s", outcome.Kind, outcome.Error)
	}
	if len(mailer.sent) != 1 {
		t.Fatalf("sent %d mails, want 1", len(mailer.sent))
	}

	mail := mailer.sent[0]
	if mail.To != "customer@example.com" {
		t.Errorf("To = %q", mail.To)
	}
	if mail.Subject != "Policy renewal" {
		t.Errorf("Subject = %q", mail.Subject)
	}
	if len(mail.CC) != 1 || mail.CC[0] != "agent@example.com" {
		t.Errorf("CC = %v", mail.CC)
	}
	if len(mail.BCC) != 1 || mail.BCC[0] != "audit@example.com" {
		t.Errorf("BCC = %v", mail.BCC)
	}
}

func TestEmailSendFailureClassification(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		sendErr  error
		wantKind domain.FailureKind
	}{
		{name: "network error is retryable", sendErr: fakeNetError{}, wantKind: domain.FailureNetworkError},
		{name: "deadline exceeded is retryable", sendErr: context.DeadlineExceeded, wantKind: domain.FailureNetworkError},
		{name: "smtp rejection", sendErr: errors.New("550 mailbox unavailable"), wantKind: domain.FailureProviderRejected},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			mailer := &fakeMailer{sendMailFunc: func(ctx context.Context, mail Mail) error {
				return tc.sendErr
			}}
			client := NewEmailClient(EmailConfig{Enabled: true}, mailer)

			outcome := client.Send(context.Background(), Message{
				Recipient: "customer@example.com",
				Body:      "hi",
			})

			if outcome.Success {
				t.Fatal("expected failure outcome")
			}
			if outcome.Kind != tc.wantKind {
				t.Fatalf("Kind = %s, want %s", outcome.Kind, tc.wantKind)
			}
		})
	}
}

func TestEmailSendInvalidRecipient(t *testing.T) {
	t.Parallel()

	client := NewEmailClient(EmailConfig{Enabled: true}, &fakeMailer{})

	for _, recipient := range []string{"", "   ", "not-an-address"} {
		outcome := client.Send(context.Background(), Message{Recipient: recipient, Body: "hi"})
		if outcome.Success || outcome.Kind != domain.FailureInvalidRecipient {
			t.Fatalf("recipient %q: Kind = %s, want %s", recipient, outcome.Kind, domain.FailureInvalidRecipient)
		}
	}
}

func TestEmailSendDisabled(t *testing.T) {
	t.Parallel()

	client := NewEmailClient(EmailConfig{Enabled: false}, &fakeMailer{})
	outcome := client.Send(context.Background(), Message{Recipient: "a@b.com", Body: "hi"})

	if outcome.Success || outcome.Kind != domain.FailureChannelDisabled {
		t.Fatalf("Kind = %s, want %s", outcome.Kind, domain.FailureChannelDisabled)
	}
}

func TestRegistryLookup(t *testing.T) {
	t.Parallel()

	email := NewEmailClient(EmailConfig{Enabled: true}, &fakeMailer{})
	sms := NewSMSClient(SMSConfig{Enabled: true})

	registry := NewRegistry(email, sms)

	got, err := registry.Client(domain.ChannelEmail)
	if err != nil {
		t.Fatalf("Client(email) error = %v", err)
	}
	if got.Channel() != domain.ChannelEmail {
		t.Fatalf("Channel() = %s", got.Channel())
	}

	if _, err := registry.Client(domain.ChannelPush); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("Client(push) error = %v, want ErrValidation", err)
	}
}

func TestRecipientListCopiesMailSlices(t *testing.T) {
	t.Parallel()

	// Spare capacity on CC is where an aliasing append would write.
	cc := make([]string, 1, 4)
	cc[0] = "agent@agency.example"
	mail := Mail{
		To:  "customer@example.com",
		CC:  cc,
		BCC: []string{"audit@agency.example"},
	}

	got := recipientList(mail)

	want := []string{"customer@example.com", "agent@agency.example", "audit@agency.example"}
	if len(got) != len(want) {
		t.Fatalf("recipientList() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("recipientList()[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	if len(mail.CC) != 1 || mail.CC[0] != "agent@agency.example" {
		t.Fatalf("CC = %v, caller slice must be untouched", mail.CC)
	}
	if spare := cc[:cap(cc)][1]; spare != "" {
		t.Fatalf("CC backing array written through: %q", spare)
	}
}
