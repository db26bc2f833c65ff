package mailbox

import (
	"fmt"
	"log/slog"
)

// EventKind identifies a remote mutation pushed by the server.
type EventKind int

const (
	EventCreated EventKind = iota + 1
	EventUpdated
	EventDeleted
	EventTruncated
	EventStats
)

// String returns the kind name used in logs.
func (k EventKind) String() string {
	switch k {
	case EventCreated:
		return "created"
	case EventUpdated:
		return "updated"
	case EventDeleted:
		return "deleted"
	case EventTruncated:
		return "truncated"
	case EventStats:
		return "stats"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is a decoded push notification. Which fields are set depends on
// Kind: Created carries Item, Updated carries ID and Tags, Deleted carries
// ID, Stats carries Total, Unread and Version.
type Event struct {
	Kind    EventKind
	Item    *Item
	ID      string
	Tags    []string
	Total   int
	Unread  int
	Version string
}

// Router translates push events into reconciliation requests on a
// Controller.
type Router struct {
	ctrl   *Controller
	logger *slog.Logger
}

// NewRouter returns a router feeding ctrl.
func NewRouter(ctrl *Controller) *Router {
	return &Router{ctrl: ctrl, logger: ctrl.logger}
}

// Route applies ev and returns the request to issue, if the event needs a
// fetch. A nil request with a nil error means the event was absorbed
// locally or a fetch is already in flight.
func (r *Router) Route(ev Event) (*Request, error) {
	r.logger.Debug("push event", "event", ev.Kind.String(), "id", ev.ID)

	switch ev.Kind {
	case EventDeleted:
		// Removal changes the count, which has to go through the prune check
		// and the selection invariant, so it is never patched locally.
		if !r.ctrl.state.cache.Contains(ev.ID) {
			return nil, nil
		}
		r.ctrl.ScrollInPlace()
		return r.ctrl.Sync()

	case EventTruncated:
		return r.ctrl.Reload()

	case EventCreated:
		r.created(ev.Item)
		if !r.ctrl.state.window.FirstPage() {
			return nil, nil
		}
		r.ctrl.ScrollInPlace()
		return r.ctrl.Sync()

	case EventUpdated:
		s := r.ctrl.state
		s.cache = s.cache.withTags(ev.ID, ev.Tags)
		if !s.window.FirstPage() {
			return nil, nil
		}
		r.ctrl.ScrollInPlace()
		return r.ctrl.Sync()

	case EventStats:
		s := r.ctrl.state
		s.cache.Total = ev.Total
		s.cache.Unread = ev.Unread
		if ev.Version != "" {
			s.serverVersion = ev.Version
		}
		return nil, nil

	default:
		r.logger.Debug("ignoring unknown push event", "event", ev.Kind.String())
		return nil, nil
	}
}

// created bumps the counters for a new message. The window total only
// tracks the unfiltered mailbox; a search result count cannot be guessed.
func (r *Router) created(item *Item) {
	s := r.ctrl.state
	s.cache.Total++
	if item != nil && !item.Read {
		s.cache.Unread++
	}
	if item != nil && len(item.Tags) > 0 {
		s.cache.Tags = mergeTags(s.cache.Tags, item.Tags)
	}
	if r.ctrl.filter == "" {
		w := s.window
		w.Total++
		s.setWindow(w)
	}
}
