// Package alert evaluates statistical alert rules over normalized log events.
package alert

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tinytelemetry/sift/internal/model"
	"github.com/tinytelemetry/sift/internal/notify"
	"github.com/tinytelemetry/sift/internal/storage"
)

// Config holds the tunable rule thresholds. All rate thresholds are
// percentages and all comparisons are strict (a value equal to the
// threshold does not fire).
type Config struct {
	ErrorRateThreshold    float64       `mapstructure:"error_rate_threshold"`
	CriticalRateThreshold float64       `mapstructure:"critical_rate_threshold"`
	FrequentCount         int           `mapstructure:"frequent_count"`
	BurstCount            int           `mapstructure:"burst_count"`
	BurstWindow           time.Duration `mapstructure:"burst_window"`
	Cooldown              time.Duration `mapstructure:"cooldown"`
	TopErrorsLimit        int           `mapstructure:"top_errors_limit"`
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		ErrorRateThreshold:    10,
		CriticalRateThreshold: 10,
		FrequentCount:         5,
		BurstCount:            20,
		BurstWindow:           time.Hour,
		Cooldown:              time.Hour,
		TopErrorsLimit:        20,
	}
}

// Engine evaluates the rule set against event batches. Its only state is
// the append-only alert history, which doubles as the cooldown source:
// the cooldown window is measured from the most recent stored record,
// whatever rule produced it.
type Engine struct {
	config  Config
	history storage.AlertHistoryStorage
	sink    notify.Sink
	logger  *zap.Logger

	// now is overridable in tests.
	now func() time.Time
}

// NewEngine creates an alert engine. sink may be nil when no outbound
// channels are configured.
func NewEngine(config Config, history storage.AlertHistoryStorage, sink notify.Sink, logger *zap.Logger) *Engine {
	return &Engine{
		config:  config,
		history: history,
		sink:    sink,
		logger:  logger,
		now:     time.Now,
	}
}

// messageCount pairs a message with its occurrence count, preserving
// first-encountered order for equal counts.
type messageCount struct {
	message string
	count   int
}

// Evaluate runs every rule against the batch and returns the records that
// fired. Unless force is set, all rules are suppressed while the cooldown
// window since the last stored alert is still open. A forced evaluation
// that fires nothing still records an Info audit entry.
func (e *Engine) Evaluate(ctx context.Context, events []model.LogEvent, force bool) ([]model.AlertRecord, error) {
	if len(events) == 0 {
		return nil, nil
	}

	total := len(events)
	errorEvents := eventsWithLevel(events, "ERROR")
	errors := len(errorEvents)
	criticals := len(eventsWithLevel(events, "CRITICAL"))

	errorCounts := countMessages(errorEvents)
	topErrors := topErrorsContext(errorCounts, e.config.TopErrorsLimit)

	inCooldown := false
	if !force {
		inCooldown = e.isInCooldown(ctx)
	}

	var fired []model.AlertRecord

	// High error rate.
	if rate := float64(errors) / float64(total) * 100; rate > e.config.ErrorRateThreshold && !inCooldown {
		msg := fmt.Sprintf("High Error Rate Detected: %.2f%%", rate)
		details := fmt.Sprintf("Total Logs: %d\nError Count: %d\n%s", total, errors, topErrors)
		metrics := []metric{
			{"Total Logs", fmt.Sprintf("%d", total)},
			{"Error Count", fmt.Sprintf("%d", errors)},
			{"Error Rate", fmt.Sprintf("%.2f%%", rate)},
		}
		fired = append(fired, e.fire(ctx, model.AlertTypeHighErrorRate, msg, model.SeverityCritical,
			details, htmlBody("High Error Rate Detected", msg, metrics, topErrors, e.now())))
	}

	// High critical rate.
	if rate := float64(criticals) / float64(total) * 100; rate > e.config.CriticalRateThreshold && !inCooldown {
		msg := fmt.Sprintf("Critical Log Rate Exceeds %g%%: %.2f%%", e.config.CriticalRateThreshold, rate)
		details := fmt.Sprintf("Total: %d, Criticals: %d\n%s", total, criticals, topErrors)
		metrics := []metric{
			{"Total Logs", fmt.Sprintf("%d", total)},
			{"Critical Logs", fmt.Sprintf("%d", criticals)},
			{"Critical Rate", fmt.Sprintf("%.2f%%", rate)},
		}
		fired = append(fired, e.fire(ctx, model.AlertTypeHighCriticalRate, msg, model.SeverityCritical,
			details, htmlBody("Critical Log Spike", msg, metrics, topErrors, e.now())))
	}

	// Frequent patterns and bursts over ERROR rows only.
	if !inCooldown {
		fired = append(fired, e.checkFrequentPatterns(ctx, errorEvents, errorCounts, errors)...)
	}

	if force && len(fired) == 0 {
		fired = append(fired, e.recordManualCheck(ctx))
	}

	return fired, nil
}

// checkFrequentPatterns runs the batch-frequency and burst sub-checks.
func (e *Engine) checkFrequentPatterns(ctx context.Context, errorEvents []model.LogEvent, errorCounts []messageCount, totalErrors int) []model.AlertRecord {
	var fired []model.AlertRecord

	var frequent []messageCount
	for _, mc := range errorCounts {
		if mc.count > e.config.FrequentCount {
			frequent = append(frequent, mc)
		}
	}

	if len(frequent) > 0 {
		msg := fmt.Sprintf("Frequent Error Detected: %s (%d times)", frequent[0].message, frequent[0].count)
		if len(frequent) > 1 {
			msg = fmt.Sprintf("Multiple Frequent Errors Detected (%d types)", len(frequent))
		}

		lines := []string{fmt.Sprintf("Errors occurring > %d times:", e.config.FrequentCount)}
		for _, mc := range frequent {
			lines = append(lines, fmt.Sprintf("- %s: %d occurrences", mc.message, mc.count))
		}
		details := strings.Join(lines, "\n")

		metrics := []metric{
			{"Unique Frequent Errors", fmt.Sprintf("%d", len(frequent))},
			{"Top Error Count", fmt.Sprintf("%d", frequent[0].count)},
			{"Total Errors in Batch", fmt.Sprintf("%d", totalErrors)},
		}
		fired = append(fired, e.fire(ctx, model.AlertTypeFrequentPattern, msg, model.SeverityCritical,
			details, htmlBody("Frequent Error Patterns Detected", msg, metrics, details, e.now())))
	}

	// Burst check: only messages frequent enough in total can possibly
	// exceed the threshold inside a single window. First match wins.
	for _, mc := range errorCounts {
		if mc.count <= e.config.BurstCount {
			continue
		}
		burst := e.maxWindowCount(errorEvents, mc.message)
		if burst <= e.config.BurstCount {
			continue
		}

		msg := fmt.Sprintf("Alert: Error Burst Detected - '%s' (%d/hr)", mc.message, burst)
		details := fmt.Sprintf("Error '%s' occurred %d times in a single hour window.", mc.message, burst)
		metrics := []metric{
			{"Burst Rate", fmt.Sprintf("%d/hr", burst)},
			{"Error Message", mc.message},
		}
		fired = append(fired, e.fire(ctx, model.AlertTypeErrorBurst, msg, model.SeverityCritical,
			details, htmlBody("Error Burst Detected", msg, metrics, details, e.now())))
		break
	}

	return fired
}

// maxWindowCount returns the maximum number of occurrences of message
// inside any trailing window ending at one of its own timestamps.
func (e *Engine) maxWindowCount(events []model.LogEvent, message string) int {
	var stamps []time.Time
	for _, ev := range events {
		if ev.Message == message {
			stamps = append(stamps, ev.Timestamp)
		}
	}
	sort.Slice(stamps, func(i, j int) bool { return stamps[i].Before(stamps[j]) })

	best := 0
	left := 0
	for right := range stamps {
		for !stamps[left].After(stamps[right].Add(-e.config.BurstWindow)) {
			left++
		}
		if n := right - left + 1; n > best {
			best = n
		}
	}
	return best
}

// fire persists the record and dispatches the notification. Both side
// effects degrade gracefully: a history or sink failure is logged and the
// record still counts as fired.
func (e *Engine) fire(ctx context.Context, alertType, message string, severity model.AlertSeverity, details, html string) model.AlertRecord {
	record := model.AlertRecord{
		Timestamp: e.now(),
		AlertType: alertType,
		Message:   message,
		Severity:  severity,
		Details:   details,
	}

	if err := e.history.Save(ctx, &record); err != nil && e.logger != nil {
		e.logger.Error("Failed to save alert record",
			zap.String("alert_type", alertType),
			zap.Error(err))
	}

	if e.sink != nil {
		notification := notify.Notification{
			AlertType: alertType,
			Severity:  severity,
			Subject:   fmt.Sprintf("[ALERT] %s (%s)", alertType, severity),
			Body:      message + "\n\n" + details,
			HTMLBody:  html,
		}
		if err := e.sink.Notify(ctx, notification); err != nil && e.logger != nil {
			e.logger.Warn("Alert notification failed",
				zap.String("alert_type", alertType),
				zap.Error(err))
		}
	}

	if e.logger != nil {
		e.logger.Info("Alert fired",
			zap.String("alert_type", alertType),
			zap.String("severity", string(severity)),
			zap.String("message", message))
	}

	return record
}

// recordManualCheck leaves an audit entry for a forced evaluation that
// fired nothing. It is persisted but not dispatched to the sinks.
func (e *Engine) recordManualCheck(ctx context.Context) model.AlertRecord {
	record := model.AlertRecord{
		Timestamp: e.now(),
		AlertType: model.AlertTypeManualCheck,
		Message:   "Manual Alert History Check",
		Severity:  model.SeverityInfo,
	}
	if err := e.history.Save(ctx, &record); err != nil && e.logger != nil {
		e.logger.Error("Failed to save manual check record", zap.Error(err))
	}
	return record
}

// isInCooldown reports whether the last stored alert is more recent than
// the cooldown window. History errors count as "not in cooldown" so a
// broken history database never silences alerting entirely.
func (e *Engine) isInCooldown(ctx context.Context) bool {
	latest, err := e.history.Latest(ctx)
	if err != nil {
		if e.logger != nil {
			e.logger.Warn("Failed to read alert history for cooldown", zap.Error(err))
		}
		return false
	}
	if latest == nil {
		return false
	}
	return e.now().Sub(latest.Timestamp) < e.config.Cooldown
}

// eventsWithLevel filters the batch to rows of exactly the given level.
func eventsWithLevel(events []model.LogEvent, level string) []model.LogEvent {
	var out []model.LogEvent
	for _, ev := range events {
		if ev.Level == level {
			out = append(out, ev)
		}
	}
	return out
}

// countMessages tallies message occurrences, ordered by descending count
// with ties kept in first-encountered order.
func countMessages(events []model.LogEvent) []messageCount {
	counts := make(map[string]int)
	var order []string
	for _, ev := range events {
		if ev.Message == "" {
			continue
		}
		if _, seen := counts[ev.Message]; !seen {
			order = append(order, ev.Message)
		}
		counts[ev.Message]++
	}

	out := make([]messageCount, 0, len(order))
	for _, msg := range order {
		out = append(out, messageCount{message: msg, count: counts[msg]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].count > out[j].count })
	return out
}

// topErrorsContext renders the shared "Top Errors" block included in
// rate-rule details and notification bodies.
func topErrorsContext(errorCounts []messageCount, limit int) string {
	if len(errorCounts) == 0 {
		return ""
	}
	if limit > 0 && len(errorCounts) > limit {
		errorCounts = errorCounts[:limit]
	}
	lines := make([]string, 0, len(errorCounts)+1)
	lines = append(lines, "Top Errors:")
	for _, mc := range errorCounts {
		lines = append(lines, fmt.Sprintf("- %s (%d)", mc.message, mc.count))
	}
	return strings.Join(lines, "\n")
}
