package duckdb

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/tinytelemetry/sift/internal/model"
)

// InsertEventBatch appends a batch of normalized events in a single
// transaction. If the batch fails it is retried record-by-record so one bad
// row does not discard the rest; unrecoverable rows are logged and dropped.
func (s *Store) InsertEventBatch(events []model.LogEvent) error {
	if len(events) == 0 {
		return nil
	}

	ctx, cancel := s.queryCtx()
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.insertBatchTx(ctx, events); err == nil {
		return nil
	}

	var failed int
	for _, ev := range events {
		if rerr := s.insertBatchTx(ctx, []model.LogEvent{ev}); rerr != nil {
			failed++
			s.logger.Warn("dropping event",
				zap.String("level", ev.Level),
				zap.String("message", truncate(ev.Message, 80)),
				zap.Error(rerr))
		}
	}
	if failed > 0 {
		s.logger.Warn("batch partially failed",
			zap.Int("dropped", failed),
			zap.Int("total", len(events)))
	}
	return nil
}

// ReplaceEvents truncates the events table and loads the given batch.
// Used by the loader when the raw sources are newer than the cache.
func (s *Store) ReplaceEvents(events []model.LogEvent) error {
	ctx, cancel := s.queryCtx()
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, "DELETE FROM events"); err != nil {
		return fmt.Errorf("truncating events: %w", err)
	}
	if len(events) == 0 {
		return nil
	}
	return s.insertBatchTx(ctx, events)
}

func (s *Store) insertBatchTx(ctx context.Context, events []model.LogEvent) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO events (timestamp, log_level, message, service, error_type) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, ev := range events {
		if _, err := stmt.ExecContext(ctx,
			ev.Timestamp, ev.Level, ev.Message, ev.Service, ev.ErrorType,
		); err != nil {
			return fmt.Errorf("event insert: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
