package logparse

import "strings"

// UnknownLevel is assigned when a source row carries no level at all.
const UnknownLevel = "UNKNOWN"

// synonyms maps source-specific level spellings to their canonical form.
// The vocabulary is otherwise open: unrecognized levels pass through
// uppercased so new source formats keep their own levels.
var synonyms = map[string]string{
	"WARNING": "WARN",
	"COMBO":   "INFO",
}

// NormalizeLevel converts a raw level value to its canonical uppercase form.
// Empty or whitespace-only input becomes UNKNOWN.
func NormalizeLevel(level string) string {
	normalized := strings.ToUpper(strings.TrimSpace(level))
	if normalized == "" {
		return UnknownLevel
	}
	if canonical, ok := synonyms[normalized]; ok {
		return canonical
	}
	return normalized
}

// LevelsEqual reports whether two level values match ignoring case and
// synonym spelling.
func LevelsEqual(a, b string) bool {
	return NormalizeLevel(a) == NormalizeLevel(b)
}
