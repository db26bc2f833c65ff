package devserver

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"
)

// Draft describes a message to compose.
type Draft struct {
	From    string
	To      string
	Subject string
	Date    time.Time
	Tags    []string
	Body    string
}

// Compose renders d as an RFC 822 message with CRLF line endings.
func Compose(d Draft) []byte {
	if d.From == "" {
		d.From = "sender@example.com"
	}
	if d.To == "" {
		d.To = "recipient@example.com"
	}
	if d.Date.IsZero() {
		d.Date = time.Now()
	}

	var b strings.Builder
	header := func(k, v string) {
		b.WriteString(k + ": " + v + "\r\n")
	}
	header("From", d.From)
	header("To", d.To)
	header("Subject", d.Subject)
	header("Date", d.Date.Format(time.RFC1123Z))
	header("Message-ID", fmt.Sprintf("<%d.%d@pitwatch.test>", d.Date.UnixNano(), rand.Uint32()))
	if len(d.Tags) > 0 {
		header("X-Tags", strings.Join(d.Tags, ", "))
	}
	header("MIME-Version", "1.0")
	header("Content-Type", "text/plain; charset=utf-8")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(d.Body, "\n", "\r\n"))
	return []byte(b.String())
}

var (
	seedSenders = []string{
		"Alice Archer <alice@example.com>",
		"Bob Baker <bob@example.org>",
		"Build Bot <ci@builds.example.net>",
		"Carol Chen <carol@example.com>",
		"noreply@shop.example",
	}
	seedSubjects = []string{
		"Weekly report",
		"Your order has shipped",
		"Build %d failed",
		"Re: lunch on Friday?",
		"Password reset request",
		"Invoice #%d",
		"Meeting notes",
	}
	seedTags = [][]string{nil, nil, {"work"}, {"billing"}, {"work", "urgent"}}
)

// SampleDraft returns a plausible draft for message number n.
func SampleDraft(n int, r *rand.Rand) Draft {
	subject := seedSubjects[r.IntN(len(seedSubjects))]
	if strings.Contains(subject, "%d") {
		subject = fmt.Sprintf(subject, 1000+n)
	}
	return Draft{
		From:    seedSenders[r.IntN(len(seedSenders))],
		To:      fmt.Sprintf("user%d@example.com", r.IntN(5)+1),
		Subject: subject,
		Tags:    seedTags[r.IntN(len(seedTags))],
		Body:    fmt.Sprintf("Message %d.\n\nThis message was generated by the pitwatch development server.", n),
	}
}
