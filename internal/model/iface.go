package model

import "time"

// EventFilter holds optional restrictions applied to event queries.
// Zero values mean "no restriction", never "restrict to empty".
type EventFilter struct {
	Start     time.Time // inclusive; zero = unbounded
	End       time.Time // inclusive; zero = unbounded
	EndIsDate bool      // when set, End is a calendar date extended to 23:59:59
	Levels    []string  // membership test, case-insensitive; nil = all levels
	Service   string    // exact match; empty = all
	ErrorType string    // exact match; empty = all
}

// EventQuerier provides read-only queries over the canonical event stream.
type EventQuerier interface {
	TotalEventCount() (int64, error)
	LevelCounts() ([]LevelCount, error)
	FilterEvents(f EventFilter, limit int) ([]LogEvent, error)
	SearchEvents(query string, f EventFilter, limit int) ([]LogEvent, error)
	MessageCounts(level string, limit int) ([]MessageCount, error)
	HourlyLevelCounts(level string) ([]HourCount, error)
}

// SchemaQuerier provides schema introspection and arbitrary read-only queries.
type SchemaQuerier interface {
	ExecuteQuery(query string) ([]map[string]interface{}, error)
	GetSchemaDescription() string
	TableRowCounts() (map[string]int64, error)
}

// EventWriter provides append-oriented write operations for normalized events.
type EventWriter interface {
	InsertEventBatch(events []LogEvent) error
	ReplaceEvents(events []LogEvent) error
}

// EventReader is the unified read-side contract for query surfaces.
type EventReader interface {
	EventQuerier
	SchemaQuerier
}
