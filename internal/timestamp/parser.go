package timestamp

import (
	"strings"
	"time"
)

// Step is one named attempt in the parse chain. Steps are tried in order and
// the first success wins, which keeps format policy out of conditionals and
// makes the fallback order testable.
type Step struct {
	Name   string
	Layout string
}

// Parser tries an ordered list of timestamp layouts against a raw value.
type Parser struct {
	steps []Step
}

// NewParser builds the default mixed-format parser. The order matters:
// stricter source-specific layouts come before generic fallbacks so a value
// never matches a looser layout than intended.
func NewParser() *Parser {
	return &Parser{steps: []Step{
		{Name: "rfc3339", Layout: time.RFC3339},
		{Name: "iso-t", Layout: "2006-01-02T15:04:05"},
		{Name: "iso-space", Layout: "2006-01-02 15:04:05"},
		{Name: "iso-unpadded", Layout: "2006-1-2 15:04:05"},
		{Name: "slash-short-year", Layout: "06/01/02 15:04:05"},
		{Name: "slash", Layout: "2006/01/02 15:04:05"},
		{Name: "us-slash", Layout: "01/02/2006 15:04:05"},
		{Name: "syslog-with-year", Layout: "2006 Jan 2 15:04:05"},
		{Name: "syslog", Layout: "Jan 2 15:04:05"},
		{Name: "date-only", Layout: "2006-01-02"},
	}}
}

// NewChain builds a parser from an explicit ordered set of layouts, for
// callers that know the source format family up front.
func NewChain(steps ...Step) *Parser {
	return &Parser{steps: steps}
}

// Parse attempts each step in order against the trimmed input. Go's parser
// accepts a fractional-second suffix even when the layout omits one, so the
// ISO layouts above also cover millisecond and microsecond variants.
func (p *Parser) Parse(value string) (time.Time, bool) {
	v := strings.TrimSpace(value)
	if v == "" {
		return time.Time{}, false
	}
	for _, step := range p.steps {
		if ts, err := time.Parse(step.Layout, v); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// Steps exposes the configured chain, newest-first callers use it to report
// which formats a parser will attempt.
func (p *Parser) Steps() []Step {
	out := make([]Step, len(p.steps))
	copy(out, p.steps)
	return out
}

// CleanFragment strips surrounding brackets and whitespace from a date or
// time fragment and converts a comma decimal separator to a dot, matching
// what heterogeneous CSV exports put in their date/time columns.
func CleanFragment(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "[]")
	s = strings.ReplaceAll(s, ",", ".")
	return strings.TrimSpace(s)
}
