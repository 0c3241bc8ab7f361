// Package ingest loads raw CSV log exports, normalizes them, and feeds
// the event store.
package ingest

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tinytelemetry/sift/internal/model"
	"github.com/tinytelemetry/sift/internal/normalize"
	"github.com/tinytelemetry/sift/internal/storage"
)

// eventCache is the slice of the event store the loader needs: freshness
// against the raw files and wholesale replacement.
type eventCache interface {
	CacheFresh(rawMtime time.Time) bool
	ReplaceEvents(events []model.LogEvent) error
}

// Loader refreshes the event store from a directory of raw CSV files.
type Loader struct {
	logger     *zap.Logger
	normalizer *normalize.Normalizer
	store      eventCache
	history    storage.AnalysisHistoryStorage
	rawDir     string
}

// NewLoader creates a loader over rawDir. history may be nil.
func NewLoader(logger *zap.Logger, store eventCache, history storage.AnalysisHistoryStorage, rawDir string) *Loader {
	return &Loader{
		logger:     logger,
		normalizer: normalize.New(),
		store:      store,
		history:    history,
		rawDir:     rawDir,
	}
}

// LoadResult describes one refresh.
type LoadResult struct {
	Reused   bool
	Files    []string
	Events   int
	Errors   int
	Warnings int
}

// LatestRawMtime returns the most recent modification time among the CSV
// files in dir, or the zero time when there are none.
func LatestRawMtime(dir string) time.Time {
	matches, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return time.Time{}
	}

	var latest time.Time
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if info.ModTime().After(latest) {
			latest = info.ModTime()
		}
	}
	return latest
}

// Refresh reloads the event store from the raw directory. When the store's
// cached snapshot is at least as new as the most recently modified raw
// file, the snapshot is reused and nothing is re-parsed. Unreadable files
// are skipped, never fatal.
func (l *Loader) Refresh(ctx context.Context) (*LoadResult, error) {
	rawMtime := LatestRawMtime(l.rawDir)
	if !rawMtime.IsZero() && l.store.CacheFresh(rawMtime) {
		if l.logger != nil {
			l.logger.Info("Reusing cached events", zap.Time("raw_mtime", rawMtime))
		}
		return &LoadResult{Reused: true}, nil
	}

	matches, err := filepath.Glob(filepath.Join(l.rawDir, "*.csv"))
	if err != nil {
		return nil, fmt.Errorf("failed to list raw directory %s: %w", l.rawDir, err)
	}
	sort.Strings(matches)

	var (
		events []model.LogEvent
		files  []string
	)
	for _, path := range matches {
		batch, err := readCSVFile(path)
		if err != nil {
			if l.logger != nil {
				l.logger.Warn("Skipping unreadable file",
					zap.String("file", path),
					zap.Error(err))
			}
			continue
		}
		events = append(events, l.normalizer.Normalize(batch)...)
		files = append(files, filepath.Base(path))
	}

	sortNewestFirst(events)

	if err := l.store.ReplaceEvents(events); err != nil {
		return nil, fmt.Errorf("failed to replace events: %w", err)
	}

	result := &LoadResult{Files: files, Events: len(events)}
	for _, ev := range events {
		switch ev.Level {
		case "ERROR":
			result.Errors++
		case "WARN":
			result.Warnings++
		}
	}

	l.recordAnalysis(ctx, result)

	if l.logger != nil {
		l.logger.Info("Loaded raw logs",
			zap.Int("files", len(files)),
			zap.Int("events", result.Events),
			zap.Int("errors", result.Errors),
			zap.Int("warnings", result.Warnings))
	}

	return result, nil
}

// LoadReader normalizes a single uploaded CSV stream without touching the
// raw directory or the cache.
func (l *Loader) LoadReader(r io.Reader) ([]model.LogEvent, error) {
	batch, err := readCSV(r)
	if err != nil {
		return nil, err
	}
	events := l.normalizer.Normalize(batch)
	sortNewestFirst(events)
	return events, nil
}

// recordAnalysis appends an analysis history entry. History failures only
// degrade bookkeeping, never the load itself.
func (l *Loader) recordAnalysis(ctx context.Context, result *LoadResult) {
	if l.history == nil || len(result.Files) == 0 {
		return
	}
	err := l.history.Add(ctx, &storage.AnalysisRecord{
		AnalyzedAt:  time.Now(),
		FileName:    strings.Join(result.Files, ", "),
		NumErrors:   result.Errors,
		NumWarnings: result.Warnings,
		DataPath:    l.rawDir,
	})
	if err != nil && l.logger != nil {
		l.logger.Warn("Failed to record analysis history", zap.Error(err))
	}
}

func readCSVFile(path string) (normalize.RawBatch, error) {
	f, err := os.Open(path)
	if err != nil {
		return normalize.RawBatch{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	batch, err := readCSV(f)
	if err != nil {
		return normalize.RawBatch{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return batch, nil
}

func readCSV(r io.Reader) (normalize.RawBatch, error) {
	reader := csv.NewReader(r)
	// Source rows are ragged: syslog exports carry fewer columns than
	// their headers and message fields embed stray quotes.
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return normalize.RawBatch{}, nil
		}
		return normalize.RawBatch{}, fmt.Errorf("failed to read header: %w", err)
	}

	batch := normalize.RawBatch{Columns: header}
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return normalize.RawBatch{}, fmt.Errorf("failed to read row: %w", err)
		}
		batch.Rows = append(batch.Rows, row)
	}
	return batch, nil
}

func sortNewestFirst(events []model.LogEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.After(events[j].Timestamp)
	})
}
