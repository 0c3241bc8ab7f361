package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// natsMessage is the wire form published for each alert.
type natsMessage struct {
	AlertType string    `json:"alert_type"`
	Severity  string    `json:"severity"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// NATSSink publishes alerts to NATS under alerts.<type> subjects so
// downstream consumers can subscribe per alert type or with a wildcard.
type NATSSink struct {
	nc *nats.Conn
}

// NewNATSSink creates a NATS sink over an established connection.
func NewNATSSink(nc *nats.Conn) *NATSSink {
	return &NATSSink{nc: nc}
}

// Name implements Sink.
func (s *NATSSink) Name() string { return "nats" }

// Notify implements Sink.
func (s *NATSSink) Notify(ctx context.Context, n Notification) error {
	data, err := json.Marshal(natsMessage{
		AlertType: n.AlertType,
		Severity:  string(n.Severity),
		Subject:   n.Subject,
		Body:      n.Body,
		CreatedAt: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	if err := s.nc.Publish(SubjectFor(n.AlertType), data); err != nil {
		return fmt.Errorf("failed to publish alert: %w", err)
	}
	return nil
}

// SubjectFor maps a human-readable alert type to its NATS subject,
// e.g. "High Error Rate" -> "alerts.high_error_rate".
func SubjectFor(alertType string) string {
	token := strings.ToLower(strings.TrimSpace(alertType))
	token = strings.ReplaceAll(token, " ", "_")
	if token == "" {
		token = "unknown"
	}
	return "alerts." + token
}
