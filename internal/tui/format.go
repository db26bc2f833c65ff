package tui

import (
	"fmt"
	"hash/fnv"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/mattn/go-runewidth"

	"github.com/wesm/pitwatch/internal/mailbox"
	"github.com/wesm/pitwatch/internal/mime"
	"github.com/wesm/pitwatch/internal/textutil"
)

// searchTerms extracts the free-text words of a Mailpit search for
// highlighting. Negated terms and is: flags are skipped; field prefixes
// such as from: or subject: are dropped.
func searchTerms(query string) []string {
	var terms []string
	seen := make(map[string]bool)
	for _, tok := range splitQuery(query) {
		if tok == "" || strings.HasPrefix(tok, "-") || strings.HasPrefix(strings.ToLower(tok), "is:") {
			continue
		}
		if i := strings.IndexByte(tok, ':'); i > 0 {
			tok = tok[i+1:]
		}
		tok = strings.Trim(tok, `"`)
		lower := strings.ToLower(tok)
		if tok == "" || seen[lower] {
			continue
		}
		seen[lower] = true
		terms = append(terms, tok)
	}
	return terms
}

// splitQuery splits on spaces outside double quotes.
func splitQuery(query string) []string {
	var (
		out     []string
		cur     strings.Builder
		inQuote bool
	)
	for _, r := range query {
		switch {
		case r == '"':
			inQuote = !inQuote
			cur.WriteRune(r)
		case r == ' ' && !inQuote:
			out = append(out, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	return append(out, cur.String())
}

// highlightTerms wraps case-insensitive occurrences of the query's terms in
// highlightStyle. Matching runs on runes so case folding that changes byte
// length cannot shift offsets.
func highlightTerms(text, query string) string {
	terms := searchTerms(query)
	if text == "" || len(terms) == 0 {
		return text
	}
	textRunes := []rune(text)
	lower := []rune(strings.ToLower(text))
	if len(lower) != len(textRunes) {
		return text
	}
	marked := make([]bool, len(textRunes))
	for _, term := range terms {
		t := []rune(strings.ToLower(term))
		for i := 0; i+len(t) <= len(lower); i++ {
			if slices.Equal(lower[i:i+len(t)], t) {
				for j := i; j < i+len(t); j++ {
					marked[j] = true
				}
			}
		}
	}

	var sb strings.Builder
	for i := 0; i < len(textRunes); {
		j := i
		for j < len(textRunes) && marked[j] == marked[i] {
			j++
		}
		if marked[i] {
			sb.WriteString(highlightStyle.Render(string(textRunes[i:j])))
		} else {
			sb.WriteString(string(textRunes[i:j]))
		}
		i = j
	}
	return sb.String()
}

// formatBytes formats a byte count as a human-readable string (e.g., "1.5 KB").
func formatBytes(size float64) string {
	if size <= 0 {
		return "-"
	}
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", int64(size))
	}
	div, exp := float64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", size/div, "KMGTPE"[exp])
}

// formatDate shows today's messages by time and older ones by date, in
// the preferred zone.
func formatDate(t time.Time, loc *time.Location, now time.Time) string {
	if t.IsZero() {
		return "-"
	}
	t = t.In(loc)
	now = now.In(loc)
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	if t.Year() == now.Year() {
		return t.Format("Jan 02")
	}
	return t.Format("2006-01-02")
}

// formatFrom returns the display name of the sender, or its address.
func formatFrom(a *mailbox.Address) string {
	if a == nil {
		return "(unknown)"
	}
	if a.Name != "" {
		return textutil.Clean(a.Name)
	}
	return textutil.Clean(a.Address)
}

// formatAddresses formats a slice of addresses as a comma-separated string.
func formatAddresses(addrs []mime.Address) string {
	parts := make([]string, 0, len(addrs))
	for _, a := range addrs {
		parts = append(parts, a.String())
	}
	return strings.Join(parts, ", ")
}

// padRight pads a string with spaces to fill width terminal cells.
// Uses lipgloss.Width to correctly handle ANSI codes and full-width characters.
func padRight(s string, width int) string {
	sw := lipgloss.Width(s)
	if sw >= width {
		return ansi.Truncate(s, width, "")
	}
	return s + strings.Repeat(" ", width-sw)
}

// truncateCells cleans s onto one line and truncates it to maxWidth
// terminal cells, counting wide runes (CJK, emoji) as two.
func truncateCells(s string, maxWidth int) string {
	s = textutil.Clean(s)
	if runewidth.StringWidth(s) <= maxWidth {
		return s
	}
	if maxWidth <= 3 {
		return runewidth.Truncate(s, maxWidth, "")
	}
	return runewidth.Truncate(s, maxWidth, "...")
}

// wrapText wraps text to fit within width terminal cells.
// Uses runewidth to correctly handle full-width characters (CJK, emoji, etc.)
func wrapText(text string, width int) []string {
	if width <= 0 {
		width = 80
	}

	var result []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if runewidth.StringWidth(line) <= width {
			result = append(result, line)
			continue
		}

		runes := []rune(line)
		for len(runes) > 0 {
			currentWidth, breakAt, lastSpace := 0, 0, -1
			for i, r := range runes {
				rw := runewidth.RuneWidth(r)
				if currentWidth+rw > width {
					break
				}
				currentWidth += rw
				breakAt = i + 1
				if r == ' ' {
					lastSpace = i
				}
			}
			// Prefer breaking at a space in the latter half of the line
			if lastSpace > breakAt/2 && breakAt < len(runes) {
				breakAt = lastSpace
			}
			if breakAt == 0 {
				breakAt = 1
			}
			result = append(result, string(runes[:breakAt]))
			runes = runes[breakAt:]
			for len(runes) > 0 && runes[0] == ' ' {
				runes = runes[1:]
			}
		}
	}
	return result
}

var tagPalette = []lipgloss.Color{"1", "2", "3", "4", "5", "6", "9", "10", "11", "12", "13", "14"}

// renderTags renders tags separated by spaces, colored by a hash of the tag
// name when colors are enabled so a tag keeps its color across sessions.
func renderTags(tags []string, colored bool) string {
	parts := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = textutil.Clean(tag)
		if !colored {
			parts = append(parts, "["+tag+"]")
			continue
		}
		h := fnv.New32a()
		_, _ = h.Write([]byte(tag))
		c := tagPalette[h.Sum32()%uint32(len(tagPalette))]
		parts = append(parts, tagStyle.Foreground(c).Render(tag))
	}
	return strings.Join(parts, " ")
}
