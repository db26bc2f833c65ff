// Package mime parses raw messages for the detail view and the development
// server, using enmime.
package mime

import (
	"bytes"
	"html"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/jhillyerd/enmime"

	"github.com/wesm/pitwatch/internal/textutil"
)

// Message is a parsed message.
type Message struct {
	Subject     string
	Date        time.Time
	From        []Address
	To          []Address
	Cc          []Address
	Bcc         []Address
	ReplyTo     []Address
	MessageID   string
	Tags        []string // from X-Tags
	BodyText    string
	BodyHTML    string
	Attachments []Attachment
	Errors      []string // non-fatal parse errors
}

// Address is a mailbox with an optional display name.
type Address struct {
	Name  string
	Email string
}

// String formats the address the way a mail client shows it.
func (a Address) String() string {
	if a.Name == "" {
		return a.Email
	}
	return a.Name + " <" + a.Email + ">"
}

// Attachment describes an attached or inline part. Content is not kept.
type Attachment struct {
	Filename    string
	ContentType string
	ContentID   string
	Size        int
	Inline      bool
}

// Parse parses raw RFC 822 data.
func Parse(raw []byte) (*Message, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}

	msg := &Message{
		Subject:   textutil.EnsureUTF8(env.GetHeader("Subject")),
		MessageID: strings.Trim(env.GetHeader("Message-ID"), "<> "),
		BodyText:  textutil.EnsureUTF8(env.Text),
		BodyHTML:  textutil.EnsureUTF8(env.HTML),
	}
	msg.Tags = parseTags(env.GetHeader("X-Tags"))
	if dateStr := env.GetHeader("Date"); dateStr != "" {
		msg.Date = parseDate(dateStr)
	}

	msg.From = parseAddressList(env, "From")
	msg.To = parseAddressList(env, "To")
	msg.Cc = parseAddressList(env, "Cc")
	msg.Bcc = parseAddressList(env, "Bcc")
	msg.ReplyTo = parseAddressList(env, "Reply-To")

	// Inlines can include body alternatives; isBodyPart drops those.
	msg.Attachments = append(msg.Attachments, attachments(env.Attachments, false)...)
	msg.Attachments = append(msg.Attachments, attachments(env.Inlines, true)...)

	for _, e := range env.Errors {
		msg.Errors = append(msg.Errors, e.Error())
	}
	return msg, nil
}

func parseAddressList(env *enmime.Envelope, header string) []Address {
	list, err := env.AddressList(header)
	if err != nil || list == nil {
		return nil
	}
	out := make([]Address, 0, len(list))
	for _, addr := range list {
		if addr.Address == "" {
			continue
		}
		out = append(out, Address{
			Name:  textutil.EnsureUTF8(addr.Name),
			Email: strings.ToLower(addr.Address),
		})
	}
	return out
}

// parseTags splits a comma-separated tag header, dropping blanks and
// duplicates.
func parseTags(h string) []string {
	var tags []string
	for _, t := range strings.Split(h, ",") {
		t = strings.TrimSpace(t)
		if t != "" && !slices.Contains(tags, t) {
			tags = append(tags, t)
		}
	}
	return tags
}

// isBodyPart reports whether a text/plain or text/html part without a
// filename or an attachment disposition is body content.
func isBodyPart(part *enmime.Part) bool {
	contentType := strings.ToLower(part.ContentType)
	if idx := strings.Index(contentType, ";"); idx >= 0 {
		contentType = strings.TrimSpace(contentType[:idx])
	}
	if contentType != "text/plain" && contentType != "text/html" {
		return false
	}
	if part.FileName != "" {
		return false
	}
	disposition := strings.ToLower(part.Disposition)
	if idx := strings.Index(disposition, ";"); idx >= 0 {
		disposition = strings.TrimSpace(disposition[:idx])
	}
	return disposition != "attachment"
}

func attachments(parts []*enmime.Part, inline bool) []Attachment {
	var out []Attachment
	for _, part := range parts {
		if isBodyPart(part) {
			continue
		}
		out = append(out, Attachment{
			Filename:    part.FileName,
			ContentType: part.ContentType,
			ContentID:   part.ContentID,
			Size:        len(part.Content),
			Inline:      inline,
		})
	}
	return out
}

var dateFormats = []string{
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"2 Jan 2006 15:04:05 -0700",
	"02 Jan 2006 15:04:05 -0700",
	time.RFC822Z,
	time.RFC822,
	time.RFC850,
	time.ANSIC,
	time.UnixDate,
	time.RFC3339,
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05",
}

// parseDate parses a Date header in UTC. Unparseable dates yield the zero
// time.
func parseDate(s string) time.Time {
	s = strings.Join(strings.Fields(s), " ")
	// "(UTC)" and similar trailing comments
	if idx := strings.LastIndex(s, "("); idx > 0 {
		s = strings.TrimSpace(s[:idx])
	}
	for _, format := range dateFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

var (
	blockTagRe  = regexp.MustCompile(`(?i)<(/?)(p|div|br|hr|h[1-6]|li|tr|td|th|blockquote|pre|table|ul|ol|dl|dt|dd)[^>]*>`)
	scriptTagRe = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	styleTagRe  = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	headTagRe   = regexp.MustCompile(`(?is)<head[^>]*>.*?</head>`)
	htmlTagRe   = regexp.MustCompile(`<[^>]*>`)
)

// StripHTML converts HTML to plain text. Block elements become line
// breaks; runs of spaces collapse.
func StripHTML(rawHTML string) string {
	text := scriptTagRe.ReplaceAllString(rawHTML, "")
	text = styleTagRe.ReplaceAllString(text, "")
	text = headTagRe.ReplaceAllString(text, "")
	text = blockTagRe.ReplaceAllString(text, "\n")
	text = htmlTagRe.ReplaceAllString(text, "")
	text = html.UnescapeString(text)

	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.ReplaceAll(text, "\u00A0", " ")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.Fields(line), " ")
	}
	text = strings.Join(lines, "\n")
	for strings.Contains(text, "\n\n\n") {
		text = strings.ReplaceAll(text, "\n\n\n", "\n\n")
	}
	return strings.TrimSpace(text)
}

// Text returns the plain-text body, falling back to stripped HTML.
func (m *Message) Text() string {
	if m.BodyText != "" {
		return m.BodyText
	}
	if m.BodyHTML != "" {
		return StripHTML(m.BodyHTML)
	}
	return ""
}

// FirstFrom returns the first From address, or the zero Address.
func (m *Message) FirstFrom() Address {
	if len(m.From) > 0 {
		return m.From[0]
	}
	return Address{}
}

// Snippet returns the body collapsed to a single line of at most n runes,
// as shown in list rows.
func (m *Message) Snippet(n int) string {
	return textutil.TruncateRunes(strings.Join(strings.Fields(m.Text()), " "), n)
}
