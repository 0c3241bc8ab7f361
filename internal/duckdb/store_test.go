package duckdb

import (
	"testing"
	"time"

	"github.com/tinytelemetry/sift/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore("", nil)
	if err != nil {
		t.Fatalf("NewStore(\"\") failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func insertTestEvents(t *testing.T, store *Store, events []model.LogEvent) {
	t.Helper()
	if err := store.InsertEventBatch(events); err != nil {
		t.Fatalf("InsertEventBatch failed: %v", err)
	}
}

func day(h, m, s int) time.Time {
	return time.Date(2024, 3, 10, h, m, s, 0, time.UTC)
}

func TestInsertEventBatch(t *testing.T) {
	store := newTestStore(t)

	insertTestEvents(t, store, []model.LogEvent{
		{Timestamp: day(10, 0, 0), Level: "INFO", Message: "service started", Service: "api"},
		{Timestamp: day(10, 5, 0), Level: "ERROR", Message: "connection refused", Service: "api"},
		{Timestamp: day(10, 6, 0), Level: "WARN", Message: "disk usage high", Service: "db"},
	})

	count, err := store.TotalEventCount()
	if err != nil {
		t.Fatalf("TotalEventCount: %v", err)
	}
	if count != 3 {
		t.Errorf("TotalEventCount = %d, want 3", count)
	}

	levels, err := store.LevelCounts()
	if err != nil {
		t.Fatalf("LevelCounts: %v", err)
	}
	if len(levels) != 3 {
		t.Errorf("LevelCounts returned %d levels, want 3", len(levels))
	}
}

func TestReplaceEvents(t *testing.T) {
	store := newTestStore(t)

	insertTestEvents(t, store, []model.LogEvent{
		{Timestamp: day(10, 0, 0), Level: "INFO", Message: "old"},
	})
	if err := store.ReplaceEvents([]model.LogEvent{
		{Timestamp: day(11, 0, 0), Level: "ERROR", Message: "new one"},
		{Timestamp: day(11, 1, 0), Level: "ERROR", Message: "new two"},
	}); err != nil {
		t.Fatalf("ReplaceEvents: %v", err)
	}

	count, err := store.TotalEventCount()
	if err != nil {
		t.Fatalf("TotalEventCount: %v", err)
	}
	if count != 2 {
		t.Errorf("TotalEventCount = %d after replace, want 2", count)
	}
}

func TestFilterEvents_TimeRangeInclusive(t *testing.T) {
	store := newTestStore(t)

	endOfDay := time.Date(2024, 3, 10, 23, 59, 59, 0, time.UTC)
	nextDay := time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)
	insertTestEvents(t, store, []model.LogEvent{
		{Timestamp: day(0, 0, 0), Level: "INFO", Message: "midnight"},
		{Timestamp: endOfDay, Level: "INFO", Message: "last second"},
		{Timestamp: nextDay, Level: "INFO", Message: "next day"},
	})

	// Filtering on (day, day) with a date-valued end must include 23:59:59
	// of that day and exclude day+1 00:00:00.
	got, err := store.FilterEvents(model.EventFilter{
		Start:     time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC),
		End:       time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC),
		EndIsDate: true,
	}, 0)
	if err != nil {
		t.Fatalf("FilterEvents: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d events, want 2", len(got))
	}
	for _, ev := range got {
		if ev.Message == "next day" {
			t.Error("event at day+1 00:00:00 should be excluded")
		}
	}
}

func TestFilterEvents_LevelsCaseInsensitive(t *testing.T) {
	store := newTestStore(t)

	insertTestEvents(t, store, []model.LogEvent{
		{Timestamp: day(10, 0, 0), Level: "ERROR", Message: "e"},
		{Timestamp: day(10, 1, 0), Level: "WARN", Message: "w"},
		{Timestamp: day(10, 2, 0), Level: "INFO", Message: "i"},
	})

	got, err := store.FilterEvents(model.EventFilter{Levels: []string{"error", "warning"}}, 0)
	if err != nil {
		t.Fatalf("FilterEvents: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("got %d events, want 2 (error + warn via synonym)", len(got))
	}
}

func TestFilterEvents_NoFilterMeansEverything(t *testing.T) {
	store := newTestStore(t)

	insertTestEvents(t, store, []model.LogEvent{
		{Timestamp: day(10, 0, 0), Level: "INFO", Message: "a"},
		{Timestamp: day(10, 1, 0), Level: "ERROR", Message: "b"},
	})

	got, err := store.FilterEvents(model.EventFilter{}, 0)
	if err != nil {
		t.Fatalf("FilterEvents: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("got %d events with empty filter, want 2", len(got))
	}
	// Newest first.
	if len(got) == 2 && !got[0].Timestamp.After(got[1].Timestamp) {
		t.Error("events not ordered newest first")
	}
}

func TestSearchEvents(t *testing.T) {
	store := newTestStore(t)

	insertTestEvents(t, store, []model.LogEvent{
		{Timestamp: day(10, 0, 0), Level: "ERROR", Message: "Connection refused", Service: "auth"},
		{Timestamp: day(10, 1, 0), Level: "INFO", Message: "started", Service: "connector"},
		{Timestamp: day(10, 2, 0), Level: "WARN", Message: "slow query", Service: "db"},
	})

	// Matches message of one event and service of another, case-insensitive.
	got, err := store.SearchEvents("CONNECT", model.EventFilter{}, 0)
	if err != nil {
		t.Fatalf("SearchEvents: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("got %d events for 'CONNECT', want 2", len(got))
	}

	// Filters apply before the text match.
	got, err = store.SearchEvents("connect", model.EventFilter{Levels: []string{"ERROR"}}, 0)
	if err != nil {
		t.Fatalf("SearchEvents: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("got %d events for filtered search, want 1", len(got))
	}
}

func TestMessageCounts(t *testing.T) {
	store := newTestStore(t)

	var events []model.LogEvent
	for i := 0; i < 4; i++ {
		events = append(events, model.LogEvent{Timestamp: day(10, i, 0), Level: "ERROR", Message: "timeout"})
	}
	events = append(events,
		model.LogEvent{Timestamp: day(11, 0, 0), Level: "ERROR", Message: "refused"},
		model.LogEvent{Timestamp: day(11, 1, 0), Level: "INFO", Message: "timeout"},
	)
	insertTestEvents(t, store, events)

	got, err := store.MessageCounts("ERROR", 10)
	if err != nil {
		t.Fatalf("MessageCounts: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d messages, want 2", len(got))
	}
	if got[0].Message != "timeout" || got[0].Count != 4 {
		t.Errorf("top message = %q (%d), want timeout (4); INFO rows must not count", got[0].Message, got[0].Count)
	}
}

func TestHourlyLevelCounts(t *testing.T) {
	store := newTestStore(t)

	insertTestEvents(t, store, []model.LogEvent{
		{Timestamp: day(10, 5, 0), Level: "ERROR", Message: "a"},
		{Timestamp: day(10, 45, 0), Level: "ERROR", Message: "b"},
		{Timestamp: day(12, 0, 0), Level: "ERROR", Message: "c"},
		{Timestamp: day(12, 1, 0), Level: "INFO", Message: "d"},
	})

	got, err := store.HourlyLevelCounts("ERROR")
	if err != nil {
		t.Fatalf("HourlyLevelCounts: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d bins, want 2", len(got))
	}
	if got[0].Count != 2 {
		t.Errorf("first bin count = %d, want 2", got[0].Count)
	}
	if !got[0].Hour.Before(got[1].Hour) {
		t.Error("bins not in chronological order")
	}
}

func TestExecuteQuery_ReadOnlyGuard(t *testing.T) {
	store := newTestStore(t)

	denied := []string{
		"DELETE FROM events",
		"SELECT 1; DROP TABLE events",
		"SELECT 1 /* DROP */ FROM events WHERE 1=0 AND message = 'DELETE'",
		"INSERT INTO events VALUES (1)",
	}
	for _, q := range denied {
		if _, err := store.ExecuteQuery(q); err == nil {
			t.Errorf("ExecuteQuery(%q) should be rejected", q)
		}
	}

	if _, err := store.ExecuteQuery("SELECT COUNT(*) AS n FROM events"); err != nil {
		t.Errorf("plain SELECT rejected: %v", err)
	}
}

func TestDeleteBefore(t *testing.T) {
	store := newTestStore(t)

	insertTestEvents(t, store, []model.LogEvent{
		{Timestamp: day(10, 0, 0), Level: "INFO", Message: "old"},
		{Timestamp: time.Now().Add(time.Hour), Level: "INFO", Message: "fresh"},
	})

	rows, err := store.DeleteBefore(time.Now())
	if err != nil {
		t.Fatalf("DeleteBefore: %v", err)
	}
	if rows != 1 {
		t.Errorf("deleted %d rows, want 1", rows)
	}
}
