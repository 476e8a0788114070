package channel

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
)

// SMTPConfig holds the relay connection settings.
type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
}

// SMTPMailer delivers mail over an implicit-TLS SMTP relay.
type SMTPMailer struct {
	cfg SMTPConfig
}

func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

func (m *SMTPMailer) SendMail(ctx context.Context, mail Mail) error {
	addr := net.JoinHostPort(m.cfg.Host, m.cfg.Port)

	dialer := &tls.Dialer{Config: &tls.Config{ServerName: m.cfg.Host}}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to dial smtp relay: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		return fmt.Errorf("failed to open smtp session: %w", err)
	}
	defer client.Quit()

	auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("smtp auth failed: %w", err)
	}

	if err := client.Mail(m.cfg.Username); err != nil {
		return fmt.Errorf("smtp mail from rejected: %w", err)
	}

	for _, rcpt := range recipientList(mail) {
		if strings.TrimSpace(rcpt) == "" {
			continue
		}
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp recipient %q rejected: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data failed: %w", err)
	}
	if _, err := w.Write(buildMessage(m.cfg.Username, mail)); err != nil {
		return fmt.Errorf("smtp write failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp close failed: %w", err)
	}

	return nil
}

// recipientList flattens to/cc/bcc into a fresh slice so the caller's Mail
// slices are never written through.
func recipientList(mail Mail) []string {
	recipients := make([]string, 0, 1+len(mail.CC)+len(mail.BCC))
	recipients = append(recipients, mail.To)
	recipients = append(recipients, mail.CC...)
	recipients = append(recipients, mail.BCC...)
	return recipients
}

func buildMessage(from string, mail Mail) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", mail.To)
	if len(mail.CC) > 0 {
		fmt.Fprintf(&b, "Cc: %s\r\n", strings.Join(mail.CC, ", "))
	}
	fmt.Fprintf(&b, "Subject: %s\r\n", mail.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(mail.Body)
	return []byte(b.String())
}
