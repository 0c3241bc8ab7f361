// Package storage persists alert and analysis history in SQLite.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/tinytelemetry/sift/internal/model"
)

// timeLayout is the wire format used for timestamps stored as TEXT.
const timeLayout = "2006-01-02T15:04:05"

// AlertHistoryStorage defines the interface for persisted alert records.
type AlertHistoryStorage interface {
	// Save stores an alert record and assigns its ID.
	Save(ctx context.Context, record *model.AlertRecord) error

	// Latest returns the most recent alert record, or nil when none exist.
	Latest(ctx context.Context) (*model.AlertRecord, error)

	// List retrieves alert records newest-first, optionally bounded by
	// [start, end] and capped at limit (0 means no cap).
	List(ctx context.Context, start, end *time.Time, limit int) ([]model.AlertRecord, error)

	// DeleteBefore deletes records older than the specified time.
	DeleteBefore(ctx context.Context, before time.Time) error
}

// SQLiteAlertHistory implements AlertHistoryStorage using SQLite.
type SQLiteAlertHistory struct {
	logger *zap.Logger
	db     *sql.DB
}

// NewSQLiteAlertHistory opens (or creates) an alert history database at dbPath.
func NewSQLiteAlertHistory(logger *zap.Logger, dbPath string) (*SQLiteAlertHistory, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	storage := &SQLiteAlertHistory{
		logger: logger,
		db:     db,
	}

	if err := storage.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return storage, nil
}

// initialize creates the necessary tables if they don't exist
func (s *SQLiteAlertHistory) initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS alert_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp TEXT NOT NULL,
			alert_type TEXT NOT NULL,
			message TEXT NOT NULL,
			severity TEXT NOT NULL,
			details TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_alert_history_timestamp ON alert_history(timestamp);
		CREATE INDEX IF NOT EXISTS idx_alert_history_alert_type ON alert_history(alert_type);
	`)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	return nil
}

// Save implements AlertHistoryStorage.Save
func (s *SQLiteAlertHistory) Save(ctx context.Context, record *model.AlertRecord) error {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO alert_history (
			timestamp, alert_type, message, severity, details
		) VALUES (?, ?, ?, ?, ?)`,
		record.Timestamp.Format(timeLayout),
		record.AlertType,
		record.Message,
		string(record.Severity),
		sql.NullString{String: record.Details, Valid: record.Details != ""},
	)
	if err != nil {
		return fmt.Errorf("failed to store alert record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read alert record id: %w", err)
	}
	record.ID = id
	return nil
}

// Latest implements AlertHistoryStorage.Latest
func (s *SQLiteAlertHistory) Latest(ctx context.Context) (*model.AlertRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, timestamp, alert_type, message, severity, details
		FROM alert_history
		ORDER BY timestamp DESC, id DESC
		LIMIT 1`)

	record, err := scanAlertRecord(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}

// List implements AlertHistoryStorage.List
func (s *SQLiteAlertHistory) List(ctx context.Context, start, end *time.Time, limit int) ([]model.AlertRecord, error) {
	query := "SELECT id, timestamp, alert_type, message, severity, details FROM alert_history"
	args := make([]interface{}, 0)

	var clauses []string
	if start != nil {
		clauses = append(clauses, "timestamp >= ?")
		args = append(args, start.Format(timeLayout))
	}
	if end != nil {
		clauses = append(clauses, "timestamp <= ?")
		args = append(args, end.Format(timeLayout))
	}
	for i, clause := range clauses {
		if i == 0 {
			query += " WHERE " + clause
		} else {
			query += " AND " + clause
		}
	}

	query += " ORDER BY timestamp DESC, id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list alert records: %w", err)
	}
	defer rows.Close()

	var records []model.AlertRecord
	for rows.Next() {
		record, err := scanAlertRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	return records, nil
}

// DeleteBefore implements AlertHistoryStorage.DeleteBefore
func (s *SQLiteAlertHistory) DeleteBefore(ctx context.Context, before time.Time) error {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM alert_history WHERE timestamp < ?", before.Format(timeLayout))
	if err != nil {
		return fmt.Errorf("failed to delete alert records: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if s.logger != nil {
		s.logger.Info("Deleted old alert records",
			zap.Time("before", before),
			zap.Int64("deleted", affected))
	}

	return nil
}

// Close closes the database connection
func (s *SQLiteAlertHistory) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAlertRecord(row rowScanner) (*model.AlertRecord, error) {
	var (
		record   model.AlertRecord
		ts       string
		severity string
		details  sql.NullString
	)

	err := row.Scan(
		&record.ID,
		&ts,
		&record.AlertType,
		&record.Message,
		&severity,
		&details,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan alert record: %w", err)
	}

	parsed, err := time.Parse(timeLayout, ts)
	if err != nil {
		return nil, fmt.Errorf("failed to parse alert timestamp %q: %w", ts, err)
	}
	record.Timestamp = parsed
	record.Severity = model.AlertSeverity(severity)
	if details.Valid {
		record.Details = details.String
	}

	return &record, nil
}
