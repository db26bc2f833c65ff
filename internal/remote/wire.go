package remote

import (
	"time"

	"github.com/wesm/pitwatch/internal/mailbox"
)

// Address is a Mailpit address as encoded on the wire.
type Address struct {
	Name    string
	Address string
}

// MessageSummary is a single list entry. Mailpit encodes struct fields
// without JSON tags, so the Go field names are the wire names.
type MessageSummary struct {
	ID          string
	MessageID   string
	Read        bool
	From        *Address
	To          []Address
	Cc          []Address
	Bcc         []Address
	ReplyTo     []Address
	Subject     string
	Created     time.Time
	Tags        []string
	Size        float64
	Attachments int
	Snippet     string
}

// Item converts the wire summary to a cached list item.
func (m MessageSummary) Item() mailbox.Item {
	it := mailbox.Item{
		ID:          m.ID,
		MessageID:   m.MessageID,
		Read:        m.Read,
		To:          toAddresses(m.To),
		Cc:          toAddresses(m.Cc),
		Subject:     m.Subject,
		Created:     m.Created,
		Tags:        m.Tags,
		Size:        m.Size,
		Attachments: m.Attachments,
		Snippet:     m.Snippet,
	}
	if m.From != nil {
		it.From = &mailbox.Address{Name: m.From.Name, Address: m.From.Address}
	}
	return it
}

func toAddresses(in []Address) []mailbox.Address {
	if len(in) == 0 {
		return nil
	}
	out := make([]mailbox.Address, len(in))
	for i, a := range in {
		out[i] = mailbox.Address{Name: a.Name, Address: a.Address}
	}
	return out
}

// ListResponse is the body of the messages and search endpoints.
type ListResponse struct {
	Total          int              `json:"total"`
	Unread         int              `json:"unread"`
	Count          int              `json:"count"`
	MessagesCount  int              `json:"messages_count"`
	MessagesUnread int              `json:"messages_unread"`
	Start          int              `json:"start"`
	Tags           []string         `json:"tags"`
	Messages       []MessageSummary `json:"messages"`
}

// Info is the server's application information.
type Info struct {
	Version       string
	LatestVersion string
	Database      string
	DatabaseSize  int64
	Messages      int
	Unread        int
	Memory        uint64
}

// ReadStatusRequest is the body of PUT /api/v1/messages.
type ReadStatusRequest struct {
	IDs    []string
	Read   bool
	Search string `json:",omitempty"`
}

// DeleteRequest is the body of DELETE /api/v1/messages. An empty IDs list
// deletes every message.
type DeleteRequest struct {
	IDs []string
}

// Notification is a frame on the events websocket.
type Notification struct {
	Type string
	Data any
}

// Notification types broadcast by the server.
const (
	NotifyNew    = "new"
	NotifyUpdate = "update"
	NotifyDelete = "delete"
	NotifyPrune  = "prune"
	NotifyStats  = "stats"
)

// UpdateData is the payload of an "update" notification.
type UpdateData struct {
	ID   string
	Tags []string
}

// DeleteData is the payload of a "delete" notification.
type DeleteData struct {
	ID string
}

// StatsData is the payload of a "stats" notification.
type StatsData struct {
	Total   float64
	Unread  float64
	Version string
}
