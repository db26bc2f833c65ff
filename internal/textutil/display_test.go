package textutil

import (
	"testing"

	"github.com/wesm/pitwatch/internal/testutil"
)

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		input    string
		maxRunes int
		expected string
	}{
		{"Hello", 10, "Hello"},
		{"Hello", 5, "Hello"},
		{"Hello World", 8, "Hello..."},
		{"", 5, ""},
		{"Hello", 3, "Hel"},
		{"Hello", 0, ""},
		{"你好世界", 4, "你好世界"},
		{"你好世界！", 4, "你..."},
	}
	for _, tt := range tests {
		if got := TruncateRunes(tt.input, tt.maxRunes); got != tt.expected {
			t.Errorf("TruncateRunes(%q, %d) = %q, want %q", tt.input, tt.maxRunes, got, tt.expected)
		}
	}
}

func TestFirstLine(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Hello World", "Hello World"},
		{"First\nSecond", "First"},
		{"Error: no search query\r\n", "Error: no search query"},
		{"\n\nafter blank lines\nrest", "after blank lines"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := FirstLine(tt.input); got != tt.expected {
			t.Errorf("FirstLine(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestSingleLine(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"plain", "plain"},
		{"  padded  ", "padded"},
		{"multi\nline\r\nsubject", "multi line subject"},
		{"tab\tseparated", "tab separated"},
		{"escape\x1b[31mred", "escape [31mred"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := SingleLine(tt.input); got != tt.expected {
			t.Errorf("SingleLine(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestClean(t *testing.T) {
	enc := testutil.EncodedSamples()
	if got := Clean(string(enc.Latin1_CCedilla)); got != "Garçon" {
		t.Errorf("Clean = %q, want %q", got, "Garçon")
	}
	if got := Clean("Weekly\r\n\treport"); got != "Weekly report" {
		t.Errorf("Clean = %q, want %q", got, "Weekly report")
	}
}
