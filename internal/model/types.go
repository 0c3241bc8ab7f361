package model

import "time"

// LogEvent represents one row of the canonical event stream. Every event at
// rest has a parseable timestamp and a non-empty level; rows that cannot
// satisfy both are dropped during normalization, before they reach storage.
type LogEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"log_level"` // open vocabulary, uppercased: INFO/WARN/ERROR/DEBUG/CRITICAL/UNKNOWN/...
	Message   string    `json:"message"`
	Service   string    `json:"service,omitempty"`
	ErrorType string    `json:"error_type,omitempty"`
}

// AlertSeverity classifies an alert record.
type AlertSeverity string

const (
	SeverityCritical AlertSeverity = "Critical"
	SeverityInfo     AlertSeverity = "Info"
)

// Alert rule names as persisted in alert_type.
const (
	AlertTypeHighErrorRate    = "High Error Rate"
	AlertTypeHighCriticalRate = "High Critical Rate"
	AlertTypeFrequentPattern  = "Frequent Error Pattern"
	AlertTypeErrorBurst       = "Error Burst"
	AlertTypeManualCheck      = "Manual Check"
)

// AlertRecord is one row of the append-only alert history. Records are
// immutable once created; ID is assigned by the history store.
type AlertRecord struct {
	ID        int64         `json:"id"`
	Timestamp time.Time     `json:"timestamp"`
	AlertType string        `json:"alert_type"`
	Message   string        `json:"message"`
	Severity  AlertSeverity `json:"severity"`
	Details   string        `json:"details,omitempty"`
}

// LevelCount pairs a log level with its event count.
type LevelCount struct {
	Level string `json:"level"`
	Count int64  `json:"count"`
}

// MessageCount pairs a message with its occurrence count.
type MessageCount struct {
	Message string `json:"message"`
	Count   int64  `json:"count"`
}

// HourCount is one hourly aggregation bin.
type HourCount struct {
	Hour  time.Time `json:"hour"`
	Count int64     `json:"count"`
}
