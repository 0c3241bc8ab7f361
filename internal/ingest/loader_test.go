package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tinytelemetry/sift/internal/model"
	"github.com/tinytelemetry/sift/internal/storage"
)

type fakeCache struct {
	fresh    bool
	replaced [][]model.LogEvent
}

func (c *fakeCache) CacheFresh(rawMtime time.Time) bool { return c.fresh }

func (c *fakeCache) ReplaceEvents(events []model.LogEvent) error {
	c.replaced = append(c.replaced, events)
	return nil
}

type fakeHistory struct {
	records []storage.AnalysisRecord
}

func (h *fakeHistory) Add(ctx context.Context, record *storage.AnalysisRecord) error {
	record.ID = int64(len(h.records) + 1)
	h.records = append(h.records, *record)
	return nil
}

func (h *fakeHistory) List(ctx context.Context, limit int) ([]storage.AnalysisRecord, error) {
	return h.records, nil
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestRefreshLoadsAndNormalizes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "app.csv",
		"Date,Time,Level,Content\n"+
			"2025-06-14,08:00:00,INFO,started\n"+
			"2025-06-14,09:00:00,ERROR,disk full\n"+
			"2025-06-14,10:00:00,WARNING,slow response\n")
	writeFile(t, dir, "syslog.csv",
		"Month,Date,Time,Level,Content\n"+
			"Jun,15,11:22:33,combo,session opened\n")

	cache := &fakeCache{}
	history := &fakeHistory{}
	loader := NewLoader(nil, cache, history, dir)

	result, err := loader.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if result.Reused {
		t.Fatal("expected a full load, not a cache reuse")
	}
	if result.Events != 4 || result.Errors != 1 || result.Warnings != 1 {
		t.Errorf("unexpected result: %+v", result)
	}

	if len(cache.replaced) != 1 {
		t.Fatalf("ReplaceEvents called %d times, want 1", len(cache.replaced))
	}
	events := cache.replaced[0]
	if len(events) != 4 {
		t.Fatalf("got %d events, want 4", len(events))
	}
	// Merged across files, newest first.
	if events[0].Message != "session opened" || events[0].Level != "INFO" {
		t.Errorf("unexpected newest event: %+v", events[0])
	}
	if events[len(events)-1].Message != "started" {
		t.Errorf("unexpected oldest event: %+v", events[len(events)-1])
	}

	if len(history.records) != 1 {
		t.Fatalf("expected one analysis record, got %d", len(history.records))
	}
	record := history.records[0]
	if !strings.Contains(record.FileName, "app.csv") || !strings.Contains(record.FileName, "syslog.csv") {
		t.Errorf("unexpected file name in history: %q", record.FileName)
	}
	if record.NumErrors != 1 || record.NumWarnings != 1 {
		t.Errorf("unexpected history counts: %+v", record)
	}
}

func TestRefreshSkipsUnreadableFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "good.csv",
		"Date,Time,Level,Content\n2025-06-14,08:00:00,ERROR,disk full\n")
	// A directory with a .csv suffix fails to parse and must be skipped.
	if err := os.Mkdir(filepath.Join(dir, "bad.csv"), 0o755); err != nil {
		t.Fatal(err)
	}

	cache := &fakeCache{}
	loader := NewLoader(nil, cache, nil, dir)

	result, err := loader.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if result.Events != 1 {
		t.Errorf("got %d events, want 1", result.Events)
	}
	if len(result.Files) != 1 || result.Files[0] != "good.csv" {
		t.Errorf("unexpected files: %v", result.Files)
	}
}

func TestRefreshReusesFreshCache(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "app.csv",
		"Date,Time,Level,Content\n2025-06-14,08:00:00,INFO,started\n")

	cache := &fakeCache{fresh: true}
	loader := NewLoader(nil, cache, nil, dir)

	result, err := loader.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if !result.Reused {
		t.Error("expected cache reuse")
	}
	if len(cache.replaced) != 0 {
		t.Error("ReplaceEvents must not run on cache reuse")
	}
}

func TestRefreshEmptyDirReplacesWithNothing(t *testing.T) {
	cache := &fakeCache{fresh: true}
	loader := NewLoader(nil, cache, nil, t.TempDir())

	// No raw files at all: freshness is moot, the store is cleared.
	result, err := loader.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if result.Reused || result.Events != 0 {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestLoadReader(t *testing.T) {
	loader := NewLoader(nil, &fakeCache{}, nil, "")

	events, err := loader.LoadReader(strings.NewReader(
		"Date,Time,Level,Content\n" +
			"2025-06-14,09:00:00,error,connection refused\n" +
			"2025-06-14,10:00:00,INFO,recovered\n"))
	if err != nil {
		t.Fatalf("LoadReader: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Message != "recovered" {
		t.Errorf("events not newest first: %+v", events[0])
	}
	if events[1].Level != "ERROR" {
		t.Errorf("level not normalized: %+v", events[1])
	}
}
