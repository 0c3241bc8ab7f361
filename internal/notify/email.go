package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"
)

// defaultSMTPTimeout bounds the whole SMTP conversation when the caller's
// context carries no deadline of its own.
const defaultSMTPTimeout = 10 * time.Second

// EmailConfig holds SMTP settings for the email sink.
type EmailConfig struct {
	Host       string
	Port       int
	Username   string
	Password   string
	From       string
	Recipients []string
}

// EmailSink delivers notifications over SMTP. The HTML body is preferred
// when present, falling back to the plain-text body.
type EmailSink struct {
	config EmailConfig
}

// NewEmailSink creates an email sink with the given SMTP settings.
func NewEmailSink(config EmailConfig) *EmailSink {
	return &EmailSink{config: config}
}

// Name implements Sink.
func (s *EmailSink) Name() string { return "email" }

// message assembles the RFC 5322 payload for a notification.
func (s *EmailSink) message(n Notification) string {
	contentType := "text/plain; charset=UTF-8"
	body := n.Body
	if n.HTMLBody != "" {
		contentType = "text/html; charset=UTF-8"
		body = n.HTMLBody
	}

	return fmt.Sprintf("From: %s\r\n"+
		"To: %s\r\n"+
		"Subject: %s\r\n"+
		"Content-Type: %s\r\n"+
		"\r\n"+
		"%s\r\n",
		s.config.From,
		strings.Join(s.config.Recipients, ", "),
		n.Subject,
		contentType,
		body)
}

// Notify implements Sink. The SMTP exchange runs under a connection
// deadline so a stalled server cannot block the alert path: the earlier of
// the context deadline and defaultSMTPTimeout applies to every read and
// write on the connection.
func (s *EmailSink) Notify(ctx context.Context, n Notification) error {
	if len(s.config.Recipients) == 0 {
		return fmt.Errorf("no recipients configured")
	}

	deadline := time.Now().Add(defaultSMTPTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	dialer := &net.Dialer{Deadline: deadline}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to dial smtp server %s: %w", addr, err)
	}
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return fmt.Errorf("failed to set smtp deadline: %w", err)
	}

	// NewClient reads the server greeting, so the deadline already covers
	// a server that accepts and then goes silent.
	client, err := smtp.NewClient(conn, s.config.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to start smtp session: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: s.config.Host}); err != nil {
			return fmt.Errorf("failed to start tls: %w", err)
		}
	}
	if s.config.Username != "" {
		if ok, _ := client.Extension("AUTH"); ok {
			auth := smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)
			if err := client.Auth(auth); err != nil {
				return fmt.Errorf("smtp auth failed: %w", err)
			}
		}
	}

	if err := client.Mail(s.config.From); err != nil {
		return fmt.Errorf("smtp mail command failed: %w", err)
	}
	for _, rcpt := range s.config.Recipients {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp rcpt command failed for %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data command failed: %w", err)
	}
	if _, err := w.Write([]byte(s.message(n))); err != nil {
		return fmt.Errorf("failed to write message body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finish message body: %w", err)
	}

	return client.Quit()
}
