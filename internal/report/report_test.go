package report

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/tinytelemetry/sift/internal/model"
)

var generatedAt = time.Date(2025, 6, 14, 12, 0, 0, 0, time.UTC)

func sampleEvents() []model.LogEvent {
	day := func(h, m int) time.Time {
		return time.Date(2025, 6, 14, h, m, 0, 0, time.UTC)
	}
	return []model.LogEvent{
		{Timestamp: day(9, 0), Level: "INFO", Message: "started"},
		{Timestamp: day(9, 5), Level: "WARN", Message: "slow response"},
		{Timestamp: day(9, 10), Level: "ERROR", Message: "connection refused", Service: "api", ErrorType: "net"},
		{Timestamp: day(9, 20), Level: "ERROR", Message: "connection refused", Service: "api", ErrorType: "net"},
		{Timestamp: day(10, 15), Level: "ERROR", Message: "disk full", Service: "db"},
		{Timestamp: day(11, 30), Level: "INFO", Message: "done"},
	}
}

func TestGenerateCSV(t *testing.T) {
	out := GenerateCSV(sampleEvents(), generatedAt)

	wantLines := []string{
		"SUMMARY REPORT",
		"Generated At,2025-06-14 12:00:00",
		"Total Logs,6",
		"Total Errors,3",
		"Total Warnings,1",
		"Error Rate,50.00%",
		"Peak Error Time,2025-06-14 09:00 - 10:00 (Count: 2)",
		"Most Frequent Error,connection refused (Count: 2)",
		"DETAILED ERROR LOGS",
	}
	for _, want := range wantLines {
		if !strings.Contains(out, want+"\n") {
			t.Errorf("report missing line %q\n%s", want, out)
		}
	}

	if !strings.Contains(out, "timestamp,log_level,service,error_type,message") {
		t.Errorf("report missing detail header:\n%s", out)
	}
	if !strings.Contains(out, "2025-06-14 09:10:00,ERROR,api,net,connection refused") {
		t.Errorf("report missing detail row:\n%s", out)
	}
	if strings.Contains(out, "started") || strings.Contains(out, "slow response") {
		t.Errorf("non-ERROR rows leaked into detail section:\n%s", out)
	}
}

func TestGenerateCSVEscapesMostFrequentError(t *testing.T) {
	events := []model.LogEvent{
		{Timestamp: generatedAt, Level: "ERROR", Message: "read failed, retrying"},
	}
	out := GenerateCSV(events, generatedAt)
	if !strings.Contains(out, "Most Frequent Error,read failed; retrying (Count: 1)") {
		t.Errorf("comma not escaped in summary line:\n%s", out)
	}
}

func TestGenerateCSVEmptyBatch(t *testing.T) {
	out := GenerateCSV(nil, generatedAt)

	if !strings.Contains(out, "Total Logs,0\n") {
		t.Errorf("empty report missing zero totals:\n%s", out)
	}
	if !strings.Contains(out, "Peak Error Time,N/A\n") {
		t.Errorf("empty report missing N/A peak:\n%s", out)
	}
	if !strings.HasSuffix(out, "timestamp,log_level,service,error_type,message\n") {
		t.Errorf("empty report should end with the header row only:\n%s", out)
	}
}

func TestGenerateCSVPeakHourTieBreak(t *testing.T) {
	day := func(h int) time.Time { return time.Date(2025, 6, 14, h, 0, 0, 0, time.UTC) }
	events := []model.LogEvent{
		{Timestamp: day(15), Level: "ERROR", Message: "a"},
		{Timestamp: day(15), Level: "ERROR", Message: "b"},
		{Timestamp: day(9), Level: "ERROR", Message: "c"},
		{Timestamp: day(9), Level: "ERROR", Message: "d"},
	}
	out := GenerateCSV(events, generatedAt)
	if !strings.Contains(out, "Peak Error Time,2025-06-14 09:00 - 10:00 (Count: 2)") {
		t.Errorf("tie should resolve to the earliest hour:\n%s", out)
	}
}

func TestGenerateJSON(t *testing.T) {
	out, err := GenerateJSON(sampleEvents(), generatedAt)
	if err != nil {
		t.Fatalf("GenerateJSON: %v", err)
	}

	var got struct {
		ReportMeta struct {
			GeneratedAt      string  `json:"generated_at"`
			TotalLogs        int     `json:"total_logs"`
			TotalErrors      int     `json:"total_errors"`
			TotalWarnings    int     `json:"total_warnings"`
			ErrorRatePercent float64 `json:"error_rate_percent"`
		} `json:"report_meta"`
		TopErrors []struct {
			Message string `json:"message"`
			Count   int    `json:"count"`
		} `json:"top_errors"`
		Logs []map[string]string `json:"logs"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("report is not valid JSON: %v\n%s", err, out)
	}

	if got.ReportMeta.TotalLogs != 6 || got.ReportMeta.TotalErrors != 3 || got.ReportMeta.TotalWarnings != 1 {
		t.Errorf("unexpected meta: %+v", got.ReportMeta)
	}
	if got.ReportMeta.ErrorRatePercent != 50 {
		t.Errorf("error_rate_percent = %v, want 50", got.ReportMeta.ErrorRatePercent)
	}
	if len(got.TopErrors) != 2 || got.TopErrors[0].Message != "connection refused" || got.TopErrors[0].Count != 2 {
		t.Errorf("unexpected top_errors: %+v", got.TopErrors)
	}
	if len(got.Logs) != 3 {
		t.Errorf("logs should hold all ERROR rows, got %d", len(got.Logs))
	}
	if got.Logs[0]["timestamp"] != "2025-06-14 09:10:00" {
		t.Errorf("unexpected first log row: %+v", got.Logs[0])
	}
}

func TestGenerateJSONTopErrorsCapped(t *testing.T) {
	var events []model.LogEvent
	messages := []string{"a", "b", "c", "d", "e", "f", "g"}
	for i, msg := range messages {
		for j := 0; j <= len(messages)-i; j++ {
			events = append(events, model.LogEvent{Timestamp: generatedAt, Level: "ERROR", Message: msg})
		}
	}

	out, err := GenerateJSON(events, generatedAt)
	if err != nil {
		t.Fatalf("GenerateJSON: %v", err)
	}
	var got struct {
		TopErrors []struct {
			Message string `json:"message"`
		} `json:"top_errors"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(got.TopErrors) != 5 {
		t.Errorf("top_errors should be capped at 5, got %d", len(got.TopErrors))
	}
	if got.TopErrors[0].Message != "a" {
		t.Errorf("top_errors should be sorted by count, got %+v", got.TopErrors)
	}
}

func TestGenerateJSONEmptyBatch(t *testing.T) {
	out, err := GenerateJSON(nil, generatedAt)
	if err != nil {
		t.Fatalf("GenerateJSON: %v", err)
	}
	if out != "{}" {
		t.Errorf("empty batch should render {}, got %q", out)
	}
}
