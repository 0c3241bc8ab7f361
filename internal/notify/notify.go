// Package notify dispatches triggered alerts to outbound channels.
package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/tinytelemetry/sift/internal/model"
)

// Notification carries one triggered alert to the configured channels.
type Notification struct {
	AlertType string              `json:"alert_type"`
	Severity  model.AlertSeverity `json:"severity"`
	Subject   string              `json:"subject"`
	Body      string              `json:"body"`
	HTMLBody  string              `json:"html_body,omitempty"`
}

// Sink is a single outbound notification channel.
type Sink interface {
	// Name identifies the channel in logs.
	Name() string

	// Notify delivers the notification. Implementations make a single
	// attempt; retry policy belongs to the caller.
	Notify(ctx context.Context, n Notification) error
}

// Multi fans a notification out to every configured sink. Delivery
// failures are logged and swallowed so one broken channel never blocks
// alert evaluation or the remaining channels.
type Multi struct {
	logger *zap.Logger
	sinks  []Sink
}

// NewMulti creates a fan-out sink over the given channels.
func NewMulti(logger *zap.Logger, sinks ...Sink) *Multi {
	return &Multi{logger: logger, sinks: sinks}
}

// Name implements Sink.
func (m *Multi) Name() string { return "multi" }

// Notify implements Sink. It always returns nil.
func (m *Multi) Notify(ctx context.Context, n Notification) error {
	for _, sink := range m.sinks {
		if err := sink.Notify(ctx, n); err != nil {
			if m.logger != nil {
				m.logger.Warn("Notification delivery failed",
					zap.String("sink", sink.Name()),
					zap.String("alert_type", n.AlertType),
					zap.Error(err))
			}
			continue
		}
		if m.logger != nil {
			m.logger.Info("Notification sent",
				zap.String("sink", sink.Name()),
				zap.String("alert_type", n.AlertType))
		}
	}
	return nil
}
