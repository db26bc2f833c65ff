// Package textutil repairs and shapes server-supplied text for terminal
// display.
package textutil

import (
	"strings"
	"unicode/utf8"

	"github.com/gogs/chardet"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
)

// fallbacks are tried in order when detection is inconclusive. Western
// single-byte sets come first since they are the most common in mail.
var fallbacks = []encoding.Encoding{
	charmap.Windows1252,
	charmap.ISO8859_1,
	charmap.ISO8859_15,
	japanese.ShiftJIS,
	japanese.EUCJP,
	korean.EUCKR,
	simplifiedchinese.GBK,
	traditionalchinese.Big5,
}

// Names chardet reports that are not WHATWG labels.
var charsetAliases = map[string]string{
	"gb-18030":  "gb18030",
	"latin-1":   "latin1",
	"big-5":     "big5",
	"shift-jis": "shift_jis",
}

// Detected charsets outside this set are too often misidentified on short
// mail headers to be trusted.
var detectable = map[string]bool{
	"windows-1252": true,
	"iso-8859-1":   true,
	"iso-8859-15":  true,
	"iso-8859-2":   true,
	"shift_jis":    true,
	"euc-jp":       true,
	"iso-2022-jp":  true,
	"euc-kr":       true,
	"gb-18030":     true,
	"gbk":          true,
	"big5":         true,
	"koi8-r":       true,
	"koi8-u":       true,
}

// EnsureUTF8 returns s unchanged when it is valid UTF-8. Otherwise it
// detects the charset, tries the common mail charsets, and as a last
// resort replaces each invalid byte with U+FFFD.
func EnsureUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	data := []byte(s)

	if enc := detect(data); enc != nil {
		if out, ok := decode(enc, data); ok {
			return out
		}
	}
	for _, enc := range fallbacks {
		if out, ok := decode(enc, data); ok {
			return out
		}
	}
	return SanitizeUTF8(s)
}

// detect asks chardet for the most likely charset. Short inputs give
// weaker signals, so the confidence bar is lower for them.
func detect(data []byte) encoding.Encoding {
	minConfidence := 30
	if len(data) > 50 {
		minConfidence = 50
	}
	res, err := chardet.NewTextDetector().DetectBest(data)
	if err != nil || res.Confidence < minConfidence || !detectable[strings.ToLower(res.Charset)] {
		return nil
	}
	return Charset(res.Charset)
}

func decode(enc encoding.Encoding, data []byte) (string, bool) {
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil || !utf8.Valid(out) {
		return "", false
	}
	return string(out), true
}

// SanitizeUTF8 replaces every invalid byte with U+FFFD.
func SanitizeUTF8(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	// Ranging over a string yields U+FFFD once per invalid byte.
	for _, r := range s {
		sb.WriteRune(r)
	}
	return sb.String()
}

// Charset returns the encoding for an IANA or WHATWG charset label, or nil
// when the label is unknown.
func Charset(name string) encoding.Encoding {
	label := strings.ToLower(strings.TrimSpace(name))
	if label == "" {
		return nil
	}
	if alias, ok := charsetAliases[label]; ok {
		label = alias
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil
	}
	return enc
}
