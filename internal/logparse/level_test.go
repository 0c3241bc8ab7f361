package logparse

import "testing"

func TestNormalizeLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		// Standard forms pass through uppercased
		{"INFO", "INFO"}, {"WARN", "WARN"}, {"ERROR", "ERROR"},
		{"DEBUG", "DEBUG"}, {"CRITICAL", "CRITICAL"},
		// Case insensitive
		{"info", "INFO"}, {"Error", "ERROR"}, {"debug", "DEBUG"},
		// Synonyms
		{"WARNING", "WARN"}, {"warning", "WARN"},
		{"COMBO", "INFO"}, {"combo", "INFO"},
		// Open vocabulary: unknown levels survive as-is
		{"NOTICE", "NOTICE"}, {"verbose", "VERBOSE"},
		// Missing level defaults to UNKNOWN
		{"", "UNKNOWN"}, {"   ", "UNKNOWN"},
		// Whitespace
		{"  WARN  ", "WARN"}, {"\terror\t", "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := NormalizeLevel(tt.input)
			if got != tt.expected {
				t.Errorf("NormalizeLevel(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestLevelsEqual(t *testing.T) {
	tests := []struct {
		a, b     string
		expected bool
	}{
		{"WARN", "warning", true},
		{"INFO", "combo", true},
		{"error", "ERROR", true},
		{"ERROR", "CRITICAL", false},
		{"", "UNKNOWN", true},
	}

	for _, tt := range tests {
		if got := LevelsEqual(tt.a, tt.b); got != tt.expected {
			t.Errorf("LevelsEqual(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.expected)
		}
	}
}
