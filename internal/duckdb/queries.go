package duckdb

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tinytelemetry/sift/internal/logparse"
	"github.com/tinytelemetry/sift/internal/model"
)

// dangerousKeywordPattern matches dangerous SQL keywords at word boundaries.
// This avoids false positives like "RESET" matching "SET".
// Used as defense-in-depth after comment stripping and semicolon rejection.
var dangerousKeywordPattern = regexp.MustCompile(
	`(?i)\b(INSERT|UPDATE|DELETE|DROP|CREATE|ALTER|TRUNCATE|COPY|ATTACH|LOAD|EXPORT|IMPORT|INSTALL|CALL|EXECUTE|PRAGMA|SET)\b`,
)

// blockCommentPattern matches C-style block comments (/* ... */).
var blockCommentPattern = regexp.MustCompile(`/\*[\s\S]*?\*/`)

// stripSQLComments removes -- line comments and /* */ block comments from a query.
func stripSQLComments(query string) string {
	cleaned := blockCommentPattern.ReplaceAllString(query, " ")
	var result strings.Builder
	for _, line := range strings.Split(cleaned, "\n") {
		if idx := strings.Index(line, "--"); idx >= 0 {
			line = line[:idx]
		}
		result.WriteString(line)
		result.WriteByte('\n')
	}
	return result.String()
}

// filterClauses translates an EventFilter into WHERE fragments and args.
// Absent filter fields contribute nothing: no restriction, never "match none".
func filterClauses(f model.EventFilter) (conditions []string, args []interface{}) {
	if !f.Start.IsZero() {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, f.Start)
	}
	if !f.End.IsZero() {
		end := f.End
		if f.EndIsDate {
			// A date-valued end bound covers its whole calendar day.
			end = time.Date(end.Year(), end.Month(), end.Day(), 23, 59, 59, 0, end.Location())
		}
		conditions = append(conditions, "timestamp <= ?")
		args = append(args, end)
	}
	if len(f.Levels) > 0 {
		placeholders := make([]string, len(f.Levels))
		for i, lvl := range f.Levels {
			placeholders[i] = "?"
			args = append(args, logparse.NormalizeLevel(lvl))
		}
		conditions = append(conditions, "upper(log_level) IN ("+strings.Join(placeholders, ", ")+")")
	}
	if f.Service != "" {
		conditions = append(conditions, "service = ?")
		args = append(args, f.Service)
	}
	if f.ErrorType != "" {
		conditions = append(conditions, "error_type = ?")
		args = append(args, f.ErrorType)
	}
	return conditions, args
}

// FilterEvents returns events matching the filter, newest first.
// A limit <= 0 means no limit.
func (s *Store) FilterEvents(f model.EventFilter, limit int) ([]model.LogEvent, error) {
	conditions, args := filterClauses(f)
	return s.queryEvents(conditions, args, limit)
}

// SearchEvents applies the filter first, then a case-insensitive substring
// match across message, service, and log_level; an event matches when ANY of
// those fields contains the query.
func (s *Store) SearchEvents(query string, f model.EventFilter, limit int) ([]model.LogEvent, error) {
	conditions, args := filterClauses(f)
	q := strings.ToLower(strings.TrimSpace(query))
	if q != "" {
		conditions = append(conditions,
			"(contains(lower(message), ?) OR contains(lower(service), ?) OR contains(lower(log_level), ?))")
		args = append(args, q, q, q)
	}
	return s.queryEvents(conditions, args, limit)
}

func (s *Store) queryEvents(conditions []string, args []interface{}, limit int) ([]model.LogEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	query := `SELECT timestamp, log_level, COALESCE(message, ''), COALESCE(service, ''), COALESCE(error_type, '') FROM events`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY timestamp DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []model.LogEvent
	for rows.Next() {
		var ev model.LogEvent
		if err := rows.Scan(&ev.Timestamp, &ev.Level, &ev.Message, &ev.Service, &ev.ErrorType); err != nil {
			s.logger.Warn("scan error (events)", zap.Error(err))
			continue
		}
		results = append(results, ev)
	}
	return results, rows.Err()
}

// TotalEventCount returns the number of events in the store.
func (s *Store) TotalEventCount() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&count)
	return count, err
}

// LevelCounts returns the event count per log level, descending.
func (s *Store) LevelCounts() ([]model.LevelCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT log_level, COUNT(*) AS count FROM events GROUP BY log_level ORDER BY count DESC, log_level ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []model.LevelCount
	for rows.Next() {
		var lc model.LevelCount
		if err := rows.Scan(&lc.Level, &lc.Count); err != nil {
			s.logger.Warn("scan error (LevelCounts)", zap.Error(err))
			continue
		}
		results = append(results, lc)
	}
	return results, rows.Err()
}

// MessageCounts returns the most frequent messages at the given level,
// descending by count; ties keep the earliest first occurrence.
func (s *Store) MessageCounts(level string, limit int) ([]model.MessageCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT message, COUNT(*) AS count
		FROM events
		WHERE upper(log_level) = ? AND message IS NOT NULL AND message != ''
		GROUP BY message
		ORDER BY count DESC, MIN(timestamp) ASC
		LIMIT ?`, logparse.NormalizeLevel(level), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []model.MessageCount
	for rows.Next() {
		var mc model.MessageCount
		if err := rows.Scan(&mc.Message, &mc.Count); err != nil {
			s.logger.Warn("scan error (MessageCounts)", zap.Error(err))
			continue
		}
		results = append(results, mc)
	}
	return results, rows.Err()
}

// HourlyLevelCounts returns per-hour event counts for one level in
// chronological order, for peak-window reporting.
func (s *Store) HourlyLevelCounts(level string) ([]model.HourCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT date_trunc('hour', timestamp) AS hour, COUNT(*) AS count
		FROM events
		WHERE upper(log_level) = ?
		GROUP BY hour
		ORDER BY hour ASC`, logparse.NormalizeLevel(level))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []model.HourCount
	for rows.Next() {
		var hc model.HourCount
		if err := rows.Scan(&hc.Hour, &hc.Count); err != nil {
			s.logger.Warn("scan error (HourlyLevelCounts)", zap.Error(err))
			continue
		}
		results = append(results, hc)
	}
	return results, rows.Err()
}

// ExecuteQuery runs a read-only SQL query and returns results as maps.
// Only SELECT/WITH read queries are allowed; DDL/DML is rejected.
func (s *Store) ExecuteQuery(query string) ([]map[string]interface{}, error) {
	trimmed := strings.TrimSpace(query)

	// Reject semicolons to prevent statement chaining.
	if strings.Contains(trimmed, ";") {
		return nil, fmt.Errorf("query must not contain semicolons")
	}

	// Strip SQL comments so keywords hidden in comments are still caught.
	stripped := strings.TrimSpace(stripSQLComments(trimmed))
	upper := strings.ToUpper(stripped)

	if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
		return nil, fmt.Errorf("only SELECT/WITH queries are allowed")
	}

	if match := dangerousKeywordPattern.FindString(stripped); match != "" {
		return nil, fmt.Errorf("query contains disallowed keyword: %s", strings.ToUpper(match))
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()
	rows, err := s.db.QueryContext(ctx, trimmed)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var results []map[string]interface{}
	maxRows := 1000

	for rows.Next() && len(results) < maxRows {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			s.logger.Warn("scan error (ExecuteQuery)", zap.Error(err))
			continue
		}

		row := make(map[string]interface{})
		for i, col := range columns {
			row[col] = values[i]
		}
		results = append(results, row)
	}

	return results, rows.Err()
}

// GetSchemaDescription returns a human-readable schema description.
func (s *Store) GetSchemaDescription() string {
	return `Table 'events': id (BIGINT), timestamp (TIMESTAMP), ` +
		`log_level (VARCHAR, open vocabulary: INFO/WARN/ERROR/DEBUG/CRITICAL/UNKNOWN/...), ` +
		`message (VARCHAR), service (VARCHAR), error_type (VARCHAR).`
}

// TableRowCounts returns the row count for each known table using a hardcoded allowlist.
func (s *Store) TableRowCounts() (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	allowedTables := []string{"events"}
	counts := make(map[string]int64, len(allowedTables))

	for _, table := range allowedTables {
		var count int64
		// Table names are hardcoded constants, not user input.
		err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&count)
		if err != nil {
			continue
		}
		counts[table] = count
	}
	return counts, nil
}
