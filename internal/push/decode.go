package push

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/wesm/pitwatch/internal/mailbox"
	"github.com/wesm/pitwatch/internal/remote"
)

// ErrUnknownType is returned for notification types the client does not
// handle. Callers skip such notifications.
var ErrUnknownType = errors.New("unknown notification type")

type rawNotification struct {
	Type string
	Data json.RawMessage
}

// Decode decodes a single notification into a mailbox event.
func Decode(b []byte) (mailbox.Event, error) {
	var n rawNotification
	if err := json.Unmarshal(b, &n); err != nil {
		return mailbox.Event{}, fmt.Errorf("decode notification: %w", err)
	}

	switch n.Type {
	case remote.NotifyNew:
		var m remote.MessageSummary
		if err := unmarshalData(n, &m); err != nil {
			return mailbox.Event{}, err
		}
		if m.ID == "" {
			return mailbox.Event{}, fmt.Errorf("%s notification without ID", n.Type)
		}
		item := m.Item()
		return mailbox.Event{Kind: mailbox.EventCreated, ID: m.ID, Item: &item}, nil

	case remote.NotifyUpdate:
		var d remote.UpdateData
		if err := unmarshalData(n, &d); err != nil {
			return mailbox.Event{}, err
		}
		if d.ID == "" {
			return mailbox.Event{}, fmt.Errorf("%s notification without ID", n.Type)
		}
		return mailbox.Event{Kind: mailbox.EventUpdated, ID: d.ID, Tags: d.Tags}, nil

	case remote.NotifyDelete:
		var d remote.DeleteData
		if err := unmarshalData(n, &d); err != nil {
			return mailbox.Event{}, err
		}
		if d.ID == "" {
			return mailbox.Event{}, fmt.Errorf("%s notification without ID", n.Type)
		}
		return mailbox.Event{Kind: mailbox.EventDeleted, ID: d.ID}, nil

	case remote.NotifyPrune:
		return mailbox.Event{Kind: mailbox.EventTruncated}, nil

	case remote.NotifyStats:
		var d remote.StatsData
		if err := unmarshalData(n, &d); err != nil {
			return mailbox.Event{}, err
		}
		return mailbox.Event{
			Kind:    mailbox.EventStats,
			Total:   int(d.Total),
			Unread:  int(d.Unread),
			Version: d.Version,
		}, nil

	default:
		return mailbox.Event{}, fmt.Errorf("%w: %q", ErrUnknownType, n.Type)
	}
}

func unmarshalData(n rawNotification, v any) error {
	if len(n.Data) == 0 || bytes.Equal(n.Data, []byte("null")) {
		return fmt.Errorf("%s notification without data", n.Type)
	}
	if err := json.Unmarshal(n.Data, v); err != nil {
		return fmt.Errorf("decode %s data: %w", n.Type, err)
	}
	return nil
}

// SplitFrame returns the notifications in a websocket frame. The server
// batches queued notifications into one frame separated by newlines.
func SplitFrame(frame []byte) [][]byte {
	var out [][]byte
	for _, line := range bytes.Split(frame, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) > 0 {
			out = append(out, line)
		}
	}
	return out
}
