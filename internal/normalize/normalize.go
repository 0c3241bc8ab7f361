package normalize

import (
	"strings"
	"time"

	"github.com/tinytelemetry/sift/internal/logparse"
	"github.com/tinytelemetry/sift/internal/model"
	"github.com/tinytelemetry/sift/internal/timestamp"
)

// AssumedYear is prepended to syslog-style rows, which carry month/day/time
// but no year. Best-effort by design; see the time-range filter for why an
// exact year rarely matters here.
const AssumedYear = "2025"

// Canonical column names after normalization.
const (
	colTimestamp = "timestamp"
	colLevel     = "log_level"
	colMessage   = "message"
	colService   = "service"
	colErrorType = "error_type"
)

// columnRenames maps known source column names to canonical ones.
var columnRenames = map[string]string{
	"level":         colLevel,
	"content":       colMessage,
	"eventtemplate": colErrorType,
}

// RawBatch is one load operation's worth of raw rows: a header and the rows
// beneath it, exactly as they came off the CSV reader. Rows shorter or longer
// than the header are tolerated.
type RawBatch struct {
	Columns []string
	Rows    [][]string
}

// Normalizer converts raw row batches into the canonical event stream.
// It never returns an error: rows that cannot be assigned both a level and a
// parseable timestamp are dropped silently, because this is a best-effort ETL
// boundary over large heterogeneous source files.
type Normalizer struct {
	syslogChain *timestamp.Parser
	dateChain   *timestamp.Parser
	mixed       *timestamp.Parser
}

// New creates a Normalizer with the default parser chains.
func New() *Normalizer {
	return &Normalizer{
		syslogChain: timestamp.NewChain(
			timestamp.Step{Name: "syslog-with-year", Layout: "2006 Jan 2 15:04:05"},
		),
		dateChain: timestamp.NewChain(
			timestamp.Step{Name: "iso", Layout: "2006-01-02 15:04:05"},
			timestamp.Step{Name: "slash-short-year", Layout: "06/01/02 15:04:05"},
		),
		mixed: timestamp.NewParser(),
	}
}

// Normalize converts a raw batch to canonical events. An empty result is a
// valid outcome, not an error.
func (n *Normalizer) Normalize(batch RawBatch) []model.LogEvent {
	cols := canonicalColumns(batch.Columns)
	if len(cols.order) == 0 {
		return nil
	}

	events := make([]model.LogEvent, 0, len(batch.Rows))
	for _, row := range batch.Rows {
		if ev, ok := n.normalizeRow(cols, row); ok {
			events = append(events, ev)
		}
	}
	return events
}

// columnIndex resolves canonical column names to source row positions.
// Duplicate source columns collapse to the first occurrence.
type columnIndex struct {
	order []string       // canonical names in first-seen order
	idx   map[string]int // canonical name -> position in the raw row
}

func canonicalColumns(raw []string) columnIndex {
	ci := columnIndex{idx: make(map[string]int, len(raw))}
	for i, name := range raw {
		lower := strings.ToLower(strings.TrimSpace(name))
		if renamed, ok := columnRenames[lower]; ok {
			lower = renamed
		}
		if _, seen := ci.idx[lower]; seen || lower == "" {
			continue
		}
		ci.idx[lower] = i
		ci.order = append(ci.order, lower)
	}
	return ci
}

func (c columnIndex) value(row []string, name string) (string, bool) {
	i, ok := c.idx[name]
	if !ok || i >= len(row) {
		return "", false
	}
	return row[i], true
}

func (c columnIndex) has(name string) bool {
	_, ok := c.idx[name]
	return ok
}

// normalizeRow applies the per-row pipeline: timestamp reconstruction, level
// normalization, field mapping, and the final parse-or-drop pass.
func (n *Normalizer) normalizeRow(cols columnIndex, row []string) (model.LogEvent, bool) {
	ts, ok := n.rowTimestamp(cols, row)
	if !ok {
		return model.LogEvent{}, false
	}

	level, _ := cols.value(row, colLevel)
	msg, _ := cols.value(row, colMessage)
	service, _ := cols.value(row, colService)
	errType, _ := cols.value(row, colErrorType)

	return model.LogEvent{
		Timestamp: ts,
		Level:     logparse.NormalizeLevel(level),
		Message:   strings.TrimSpace(msg),
		Service:   strings.TrimSpace(service),
		ErrorType: strings.TrimSpace(errType),
	}, true
}

// rowTimestamp reconstructs the timestamp for one row, trying source formats
// in strict order with first success winning:
//
//  1. a pre-populated timestamp column, re-parsed with the mixed chain;
//  2. month+date+time (syslog style) with the assumed year;
//  3. date+time joined after bracket/whitespace cleanup, through the
//     progressive date chain, then the mixed chain as last resort.
func (n *Normalizer) rowTimestamp(cols columnIndex, row []string) (time.Time, bool) {
	if raw, ok := cols.value(row, colTimestamp); ok {
		return n.mixed.Parse(raw)
	}

	if cols.has("month") && cols.has("date") && cols.has("time") {
		month, _ := cols.value(row, "month")
		date, _ := cols.value(row, "date")
		tod, _ := cols.value(row, "time")
		combined := AssumedYear + " " + strings.TrimSpace(month) + " " +
			strings.TrimSpace(date) + " " + strings.TrimSpace(tod)
		if ts, ok := n.syslogChain.Parse(combined); ok {
			return ts, true
		}
		return time.Time{}, false
	}

	if cols.has("date") && cols.has("time") {
		date, _ := cols.value(row, "date")
		tod, _ := cols.value(row, "time")
		combined := timestamp.CleanFragment(date) + " " + timestamp.CleanFragment(tod)
		if ts, ok := n.dateChain.Parse(combined); ok {
			return ts, true
		}
		return n.mixed.Parse(combined)
	}

	return time.Time{}, false
}
