package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// AnalysisRecord describes one completed log load and its headline counts.
type AnalysisRecord struct {
	ID          int64     `json:"id"`
	AnalyzedAt  time.Time `json:"analyzed_at"`
	FileName    string    `json:"file_name"`
	NumErrors   int       `json:"num_errors"`
	NumWarnings int       `json:"num_warnings"`
	DataPath    string    `json:"data_path"`
}

// AnalysisHistoryStorage defines the interface for persisted analysis records.
type AnalysisHistoryStorage interface {
	// Add stores an analysis record and assigns its ID.
	Add(ctx context.Context, record *AnalysisRecord) error

	// List retrieves analysis records newest-first, capped at limit
	// (0 means no cap).
	List(ctx context.Context, limit int) ([]AnalysisRecord, error)
}

// SQLiteAnalysisHistory implements AnalysisHistoryStorage using SQLite.
type SQLiteAnalysisHistory struct {
	logger *zap.Logger
	db     *sql.DB
}

// NewSQLiteAnalysisHistory opens (or creates) an analysis history database at dbPath.
func NewSQLiteAnalysisHistory(logger *zap.Logger, dbPath string) (*SQLiteAnalysisHistory, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	storage := &SQLiteAnalysisHistory{
		logger: logger,
		db:     db,
	}

	if err := storage.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return storage, nil
}

func (s *SQLiteAnalysisHistory) initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS analysis_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			analysis_date TEXT NOT NULL,
			analysis_time TEXT NOT NULL,
			file_name TEXT NOT NULL,
			num_errors INTEGER NOT NULL,
			num_warnings INTEGER NOT NULL,
			data_path TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_analysis_history_date ON analysis_history(analysis_date, analysis_time);
	`)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	return nil
}

// Add implements AnalysisHistoryStorage.Add
func (s *SQLiteAnalysisHistory) Add(ctx context.Context, record *AnalysisRecord) error {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO analysis_history (
			analysis_date, analysis_time, file_name, num_errors, num_warnings, data_path
		) VALUES (?, ?, ?, ?, ?, ?)`,
		record.AnalyzedAt.Format("2006-01-02"),
		record.AnalyzedAt.Format("15:04:05"),
		record.FileName,
		record.NumErrors,
		record.NumWarnings,
		sql.NullString{String: record.DataPath, Valid: record.DataPath != ""},
	)
	if err != nil {
		return fmt.Errorf("failed to store analysis record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read analysis record id: %w", err)
	}
	record.ID = id
	return nil
}

// List implements AnalysisHistoryStorage.List
func (s *SQLiteAnalysisHistory) List(ctx context.Context, limit int) ([]AnalysisRecord, error) {
	query := `
		SELECT id, analysis_date, analysis_time, file_name, num_errors, num_warnings, data_path
		FROM analysis_history
		ORDER BY analysis_date DESC, analysis_time DESC, id DESC`
	args := make([]interface{}, 0)
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list analysis records: %w", err)
	}
	defer rows.Close()

	var records []AnalysisRecord
	for rows.Next() {
		var (
			record   AnalysisRecord
			date     string
			clock    string
			dataPath sql.NullString
		)
		err := rows.Scan(
			&record.ID,
			&date,
			&clock,
			&record.FileName,
			&record.NumErrors,
			&record.NumWarnings,
			&dataPath,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan analysis record: %w", err)
		}

		parsed, err := time.Parse("2006-01-02 15:04:05", date+" "+clock)
		if err != nil {
			return nil, fmt.Errorf("failed to parse analysis timestamp %q: %w", date+" "+clock, err)
		}
		record.AnalyzedAt = parsed
		if dataPath.Valid {
			record.DataPath = dataPath.String
		}

		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	return records, nil
}

// Close closes the database connection
func (s *SQLiteAnalysisHistory) Close() error {
	return s.db.Close()
}
