package textutil

import (
	"strings"
	"testing"

	"github.com/wesm/pitwatch/internal/testutil"
)

func TestEnsureUTF8_AlreadyValid(t *testing.T) {
	for _, in := range []string{"Hello, World!", "你好世界", "Привет мир", "Hello 👋 World 🌍", ""} {
		if got := EnsureUTF8(in); got != in {
			t.Errorf("EnsureUTF8(%q) = %q, want unchanged", in, got)
		}
	}
}

func TestEnsureUTF8_Western(t *testing.T) {
	enc := testutil.EncodedSamples()
	tests := []struct {
		name     string
		input    []byte
		expected string
	}{
		{"smart single quote", enc.Win1252_SmartQuoteRight, "Rand’s Opponent"},
		{"en dash", enc.Win1252_EnDash, "2020 – 2024"},
		{"double quotes", enc.Win1252_DoubleQuotes, "“Hello”"},
		{"euro sign", enc.Win1252_Euro, "Price: €100"},
		{"o with acute", enc.Latin1_OAcute, "Miró - Picasso"},
		{"u with umlaut", enc.Latin1_UUmlaut, "München"},
		{"degree symbol", enc.Latin1_Degree, "25°C"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := EnsureUTF8(string(tt.input))
			if result != tt.expected {
				t.Errorf("got %q, want %q", result, tt.expected)
			}
			testutil.AssertValidUTF8(t, result)
		})
	}
}

func TestEnsureUTF8_AsianEncodings(t *testing.T) {
	// Detection heuristics vary, so only check for a clean decode.
	enc := testutil.EncodedSamples()
	for name, input := range map[string][]byte{
		"Shift-JIS": enc.ShiftJIS_Long,
		"GBK":       enc.GBK_Long,
		"Big5":      enc.Big5_Long,
		"EUC-KR":    enc.EUCKR_Long,
	} {
		t.Run(name, func(t *testing.T) {
			result := EnsureUTF8(string(input))
			testutil.AssertValidUTF8(t, result)
			if result == "" || strings.ContainsRune(result, '�') {
				t.Errorf("EnsureUTF8 = %q, want a clean decode", result)
			}
		})
	}
}

func TestEnsureUTF8_Subject(t *testing.T) {
	result := EnsureUTF8("Re: Can\x92t access the \x93dashboard\x94")
	testutil.AssertValidUTF8(t, result)
	testutil.AssertContainsAll(t, result, []string{"Re:", "Can", "access the", "dashboard"})
}

func TestSanitizeUTF8(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"valid unchanged", "Hello, 世界!", "Hello, 世界!"},
		{"single invalid byte", "Hello\x80World", "Hello�World"},
		{"one replacement per byte", "Test\x80\x81\x82String", "Test���String"},
		{"truncated sequence", "Hello\xc3", "Hello�"},
		{"invalid continuation", "Test\xc3\x00End", "Test�\x00End"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := SanitizeUTF8(tt.input)
			if result != tt.expected {
				t.Errorf("SanitizeUTF8(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestCharset(t *testing.T) {
	enc := testutil.EncodedSamples()
	tests := []struct {
		label    string
		input    []byte
		expected string
	}{
		{"windows-1252", []byte{0x92}, "’"},
		{"CP1252", []byte{0x92}, "’"},
		{"ISO-8859-1", []byte{0xe9}, "é"},
		{"latin-1", []byte{0xe9}, "é"},
		{"Shift_JIS", enc.ShiftJIS_Long, enc.ShiftJIS_Long_UTF8},
		{"shift-jis", []byte{0x82, 0xa0, 0x82, 0xa2, 0x82, 0xa4}, "あいう"},
		{"EUC-JP", []byte{0xa4, 0xa2, 0xa4, 0xa4, 0xa4, 0xa6}, "あいう"},
		{"GBK", enc.GBK_Long, enc.GBK_Long_UTF8},
		{"GB2312", enc.GBK_Nihao, "你好"},
		{"Big5", enc.Big5_Long, enc.Big5_Long_UTF8},
		{"EUC-KR", enc.EUCKR_Long, enc.EUCKR_Long_UTF8},
		{"KOI8-R", []byte{0xf0, 0xf2, 0xe9, 0xf7, 0xe5, 0xf4}, "ПРИВЕТ"},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			e := Charset(tt.label)
			if e == nil {
				t.Fatalf("Charset(%q) = nil", tt.label)
			}
			got, err := e.NewDecoder().Bytes(tt.input)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if string(got) != tt.expected {
				t.Errorf("decoded %q, want %q", got, tt.expected)
			}
		})
	}

	for _, label := range []string{"", "  ", "x-unknown"} {
		if Charset(label) != nil {
			t.Errorf("Charset(%q) != nil", label)
		}
	}
}
