// Package report renders summary reports over normalized log events.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/tinytelemetry/sift/internal/model"
)

const timeLayout = "2006-01-02 15:04:05"

// detailColumns is the column subset exported in both report forms.
var detailColumns = []string{"timestamp", "log_level", "service", "error_type", "message"}

// stats holds the metrics shared by the CSV and JSON forms.
type stats struct {
	total    int
	errors   int
	warnings int
	rate     float64

	peakStart time.Time
	peakCount int
	hasPeak   bool

	topMessage string
	topCount   int

	topErrors []messageCount
	errorRows []model.LogEvent
}

type messageCount struct {
	Message string `json:"message"`
	Count   int    `json:"count"`
}

func computeStats(events []model.LogEvent) stats {
	s := stats{total: len(events)}
	hourCounts := make(map[time.Time]int)

	counts := make(map[string]int)
	var order []string
	for _, ev := range events {
		switch ev.Level {
		case "ERROR":
			s.errors++
			s.errorRows = append(s.errorRows, ev)
			hourCounts[ev.Timestamp.Truncate(time.Hour)]++
			if ev.Message != "" {
				if _, seen := counts[ev.Message]; !seen {
					order = append(order, ev.Message)
				}
				counts[ev.Message]++
			}
		case "WARN":
			s.warnings++
		}
	}
	if s.total > 0 {
		s.rate = float64(s.errors) / float64(s.total) * 100
	}

	// Peak hourly error bin, earliest hour wins ties.
	for hour, count := range hourCounts {
		if !s.hasPeak || count > s.peakCount || (count == s.peakCount && hour.Before(s.peakStart)) {
			s.peakStart = hour
			s.peakCount = count
			s.hasPeak = true
		}
	}

	// Message counts by descending count, ties in first-encountered order.
	mcs := make([]messageCount, 0, len(order))
	for _, msg := range order {
		mcs = append(mcs, messageCount{Message: msg, Count: counts[msg]})
	}
	sort.SliceStable(mcs, func(i, j int) bool { return mcs[i].Count > mcs[j].Count })
	s.topErrors = mcs
	if len(mcs) > 0 {
		s.topMessage = mcs[0].Message
		s.topCount = mcs[0].Count
	}

	return s
}

// GenerateCSV renders the two-section CSV report: a key,value summary
// block followed by the full table of ERROR rows. An empty batch yields
// a header-only report.
func GenerateCSV(events []model.LogEvent, generatedAt time.Time) string {
	s := computeStats(events)

	peak := "N/A"
	if s.hasPeak {
		peak = fmt.Sprintf("%s - %s (Count: %d)",
			s.peakStart.Format("2006-01-02 15:00"),
			s.peakStart.Add(time.Hour).Format("15:00"),
			s.peakCount)
	}

	mostFrequent := "N/A"
	if s.topMessage != "" {
		// Commas and newlines would break the key,value layout.
		clean := strings.ReplaceAll(s.topMessage, ",", ";")
		clean = strings.ReplaceAll(clean, "\n", " ")
		mostFrequent = fmt.Sprintf("%s (Count: %d)", clean, s.topCount)
	}

	var b strings.Builder
	b.WriteString("SUMMARY REPORT\n")
	fmt.Fprintf(&b, "Generated At,%s\n", generatedAt.Format(timeLayout))
	fmt.Fprintf(&b, "Total Logs,%d\n", s.total)
	fmt.Fprintf(&b, "Total Errors,%d\n", s.errors)
	fmt.Fprintf(&b, "Total Warnings,%d\n", s.warnings)
	fmt.Fprintf(&b, "Error Rate,%.2f%%\n", s.rate)
	fmt.Fprintf(&b, "Peak Error Time,%s\n", peak)
	fmt.Fprintf(&b, "Most Frequent Error,%s\n", mostFrequent)
	b.WriteString("\n")
	b.WriteString("DETAILED ERROR LOGS\n")

	w := csv.NewWriter(&b)
	w.Write(detailColumns)
	for _, ev := range s.errorRows {
		w.Write([]string{
			ev.Timestamp.Format(timeLayout),
			ev.Level,
			ev.Service,
			ev.ErrorType,
			ev.Message,
		})
	}
	w.Flush()

	return b.String()
}

type reportMeta struct {
	GeneratedAt      string  `json:"generated_at"`
	TotalLogs        int     `json:"total_logs"`
	TotalErrors      int     `json:"total_errors"`
	TotalWarnings    int     `json:"total_warnings"`
	ErrorRatePercent float64 `json:"error_rate_percent"`
}

type jsonRow struct {
	Timestamp string `json:"timestamp"`
	LogLevel  string `json:"log_level"`
	Service   string `json:"service"`
	ErrorType string `json:"error_type"`
	Message   string `json:"message"`
}

type jsonReport struct {
	ReportMeta reportMeta     `json:"report_meta"`
	TopErrors  []messageCount `json:"top_errors"`
	Logs       []jsonRow      `json:"logs"`
}

// GenerateJSON renders the JSON report. An empty batch yields "{}".
func GenerateJSON(events []model.LogEvent, generatedAt time.Time) (string, error) {
	if len(events) == 0 {
		return "{}", nil
	}

	s := computeStats(events)

	topErrors := s.topErrors
	if len(topErrors) > 5 {
		topErrors = topErrors[:5]
	}
	if topErrors == nil {
		topErrors = []messageCount{}
	}

	logs := make([]jsonRow, 0, len(s.errorRows))
	for _, ev := range s.errorRows {
		logs = append(logs, jsonRow{
			Timestamp: ev.Timestamp.Format(timeLayout),
			LogLevel:  ev.Level,
			Service:   ev.Service,
			ErrorType: ev.ErrorType,
			Message:   ev.Message,
		})
	}

	out, err := json.MarshalIndent(jsonReport{
		ReportMeta: reportMeta{
			GeneratedAt:      generatedAt.Format(timeLayout),
			TotalLogs:        s.total,
			TotalErrors:      s.errors,
			TotalWarnings:    s.warnings,
			ErrorRatePercent: math.Round(s.rate*100) / 100,
		},
		TopErrors: topErrors,
		Logs:      logs,
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}
	return string(out), nil
}
