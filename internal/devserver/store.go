package devserver

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/wesm/pitwatch/internal/mime"
	"github.com/wesm/pitwatch/internal/remote"
)

const snippetLength = 250

type entry struct {
	summary remote.MessageSummary
	raw     []byte
}

// Store is an in-memory mailbox, ordered newest first. It is safe for
// concurrent use.
type Store struct {
	mu      sync.RWMutex
	entries []*entry
	seq     int
	max     int
	now     func() time.Time
}

// NewStore creates a store that keeps at most maxMessages messages; zero
// means unlimited.
func NewStore(maxMessages int) *Store {
	return &Store{max: maxMessages, now: time.Now}
}

// Add parses raw and stores it as the newest message. pruned reports
// whether older messages were dropped to stay within the limit.
func (s *Store) Add(raw []byte) (summary remote.MessageSummary, pruned bool, err error) {
	msg, err := mime.Parse(raw)
	if err != nil {
		return remote.MessageSummary{}, false, fmt.Errorf("parse message: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	created := s.now().UTC()
	summary = remote.MessageSummary{
		ID:        fmt.Sprintf("%s-%06d", created.Format("20060102"), s.seq),
		MessageID: msg.MessageID,
		To:        addresses(msg.To),
		Cc:        addresses(msg.Cc),
		Bcc:       addresses(msg.Bcc),
		ReplyTo:   addresses(msg.ReplyTo),
		Subject:   msg.Subject,
		Created:   created,
		Tags:      normalizeTags(msg.Tags),
		Size:      float64(len(raw)),
		Snippet:   msg.Snippet(snippetLength),
	}
	if from := msg.FirstFrom(); from.Email != "" {
		summary.From = &remote.Address{Name: from.Name, Address: from.Email}
	}
	for _, a := range msg.Attachments {
		if !a.Inline {
			summary.Attachments++
		}
	}

	s.entries = slices.Insert(s.entries, 0, &entry{summary: summary, raw: raw})
	if s.max > 0 && len(s.entries) > s.max {
		s.entries = s.entries[:s.max]
		pruned = true
	}
	return summary, pruned, nil
}

func addresses(in []mime.Address) []remote.Address {
	out := make([]remote.Address, len(in))
	for i, a := range in {
		out[i] = remote.Address{Name: a.Name, Address: a.Email}
	}
	return out
}

// Delete removes the given messages and returns the IDs that existed.
func (s *Store) Delete(ids []string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted []string
	s.entries = slices.DeleteFunc(s.entries, func(e *entry) bool {
		if slices.Contains(ids, e.summary.ID) {
			deleted = append(deleted, e.summary.ID)
			return true
		}
		return false
	})
	return deleted
}

// DeleteAll removes every message and returns how many there were.
func (s *Store) DeleteAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.entries)
	s.entries = nil
	return n
}

// SetTags replaces the tags of the given messages and returns the IDs
// that changed.
func (s *Store) SetTags(ids []string, tags []string) []string {
	tags = normalizeTags(tags)

	s.mu.Lock()
	defer s.mu.Unlock()

	var changed []string
	for _, e := range s.entries {
		if !slices.Contains(ids, e.summary.ID) || slices.Equal(e.summary.Tags, tags) {
			continue
		}
		e.summary.Tags = slices.Clone(tags)
		changed = append(changed, e.summary.ID)
	}
	return changed
}

func normalizeTags(tags []string) []string {
	out := []string{}
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t != "" && !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	slices.Sort(out)
	return out
}

// SetRead sets the read flag of the given messages, of every message
// matching search when ids is empty, or of every message when both are
// empty. It returns the number of messages changed.
func (s *Store) SetRead(ids []string, search string, read bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := parseQuery(search)
	n := 0
	for _, e := range s.entries {
		switch {
		case len(ids) > 0 && !slices.Contains(ids, e.summary.ID):
			continue
		case len(ids) == 0 && !q.matches(e.summary):
			continue
		}
		if e.summary.Read != read {
			e.summary.Read = read
			n++
		}
	}
	return n
}

// Raw returns the source of a message.
func (s *Store) Raw(id string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entries {
		if e.summary.ID == id {
			return e.raw, true
		}
	}
	return nil, false
}

// Counts returns the mailbox totals.
func (s *Store) Counts() (total, unread int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entries {
		if !e.summary.Read {
			unread++
		}
	}
	return len(s.entries), unread
}

// List returns one page of the messages matching query. An empty query
// matches everything. Start is echoed back even when it is past the end.
func (s *Store) List(start, limit int, query string) remote.ListResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := parseQuery(query)
	resp := remote.ListResponse{
		Start:    start,
		Tags:     []string{},
		Messages: []remote.MessageSummary{},
	}
	for _, e := range s.entries {
		resp.Total++
		if !e.summary.Read {
			resp.Unread++
		}
		for _, t := range e.summary.Tags {
			if !slices.Contains(resp.Tags, t) {
				resp.Tags = append(resp.Tags, t)
			}
		}
		if !q.matches(e.summary) {
			continue
		}
		if resp.MessagesCount >= start && len(resp.Messages) < limit {
			resp.Messages = append(resp.Messages, e.summary)
		}
		resp.MessagesCount++
		if !e.summary.Read {
			resp.MessagesUnread++
		}
	}
	slices.Sort(resp.Tags)
	resp.Count = len(resp.Messages)
	return resp
}

// query is a parsed search. Terms are ANDed; a leading "-" negates one.
type query struct {
	terms []term
}

type term struct {
	field  string // "", "is", "tag", "from", "to", "subject"
	value  string
	negate bool
}

func parseQuery(s string) query {
	var q query
	for _, f := range strings.Fields(strings.ToLower(s)) {
		t := term{value: f}
		if strings.HasPrefix(t.value, "-") && len(t.value) > 1 {
			t.negate = true
			t.value = t.value[1:]
		}
		if field, value, ok := strings.Cut(t.value, ":"); ok {
			switch field {
			case "is", "tag", "from", "to", "subject":
				t.field, t.value = field, value
			}
		}
		t.value = strings.Trim(t.value, `"`)
		q.terms = append(q.terms, t)
	}
	return q
}

func (q query) matches(m remote.MessageSummary) bool {
	for _, t := range q.terms {
		if t.match(m) == t.negate {
			return false
		}
	}
	return true
}

func (t term) match(m remote.MessageSummary) bool {
	contains := func(s string) bool {
		return strings.Contains(strings.ToLower(s), t.value)
	}
	from := ""
	if m.From != nil {
		from = m.From.Name + " " + m.From.Address
	}
	to := ""
	for _, a := range m.To {
		to += a.Name + " " + a.Address + " "
	}

	switch t.field {
	case "is":
		switch t.value {
		case "read":
			return m.Read
		case "unread":
			return !m.Read
		case "tagged":
			return len(m.Tags) > 0
		}
		return false
	case "tag":
		for _, tag := range m.Tags {
			if strings.EqualFold(tag, t.value) {
				return true
			}
		}
		return false
	case "from":
		return contains(from)
	case "to":
		return contains(to)
	case "subject":
		return contains(m.Subject)
	}
	return contains(m.Subject) || contains(from) || contains(to) || contains(m.Snippet)
}
