package mailbox

import (
	"slices"

	"github.com/charmbracelet/bubbles/key"
)

// KeyMap binds key names to navigation actions. Key names follow
// bubbletea's KeyMsg.String() and the browser's KeyboardEvent.key.
type KeyMap struct {
	Next     key.Binding
	Previous key.Binding
	Exit     key.Binding
}

// DefaultKeyMap returns the j/k, arrow and escape bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Next: key.NewBinding(
			key.WithKeys("j", "down", "ArrowDown"),
			key.WithHelp("j/↓", "next message"),
		),
		Previous: key.NewBinding(
			key.WithKeys("k", "up", "ArrowUp"),
			key.WithHelp("k/↑", "previous message"),
		),
		Exit: key.NewBinding(
			key.WithKeys("esc", "Escape", "u"),
			key.WithHelp("esc/u", "back to list"),
		),
	}
}

func matches(b key.Binding, k string) bool {
	return b.Enabled() && slices.Contains(b.Keys(), k)
}

// InputGuard reports whether an editable input has focus. Navigation keys
// are ignored while it returns true.
type InputGuard func() bool

// ActionKind is what the view should do after a key press.
type ActionKind int

const (
	ActionNone ActionKind = iota
	// ActionOpen shows the detail view of Action.ID.
	ActionOpen
	// ActionExit returns from the detail view to the list.
	ActionExit
)

// Action is the result of a navigation key.
type Action struct {
	Kind ActionKind
	ID   string
}

// ListNav moves an identity-based cursor over the cached page. The anchor
// is the cursor position.
type ListNav struct {
	state *State
	keys  KeyMap
	guard InputGuard
}

// NewListNav returns list navigation over state. guard may be nil.
func NewListNav(state *State, keys KeyMap, guard InputGuard) *ListNav {
	return &ListNav{state: state, keys: keys, guard: guard}
}

func (n *ListNav) blocked() bool {
	return n.guard != nil && n.guard()
}

// HandleKey maps a key name to a navigation action.
func (n *ListNav) HandleKey(k string) Action {
	if n.blocked() {
		return Action{}
	}
	switch {
	case matches(n.keys.Next, k):
		return n.Next()
	case matches(n.keys.Previous, k):
		return n.Previous()
	}
	return Action{}
}

// Next opens the item after the anchor, or the first item when nothing is
// anchored. It is a no-op on the last item.
func (n *ListNav) Next() Action {
	items := n.state.cache.Items
	if len(items) == 0 {
		return Action{}
	}
	current := -1
	if id, ok := n.state.Anchor.Get(); ok {
		current = n.state.cache.IndexOf(id)
	}
	return n.moveTo(current + 1)
}

// Previous opens the item before the anchor, or the last item when nothing
// is anchored. It is a no-op on the first item.
func (n *ListNav) Previous() Action {
	items := n.state.cache.Items
	if len(items) == 0 {
		return Action{}
	}
	current := len(items)
	if id, ok := n.state.Anchor.Get(); ok {
		if i := n.state.cache.IndexOf(id); i >= 0 {
			current = i
		}
	}
	return n.moveTo(current - 1)
}

func (n *ListNav) moveTo(i int) Action {
	items := n.state.cache.Items
	if i < 0 || i >= len(items) {
		return Action{}
	}
	id := items[i].ID
	n.state.Anchor.Set(id)
	return Action{Kind: ActionOpen, ID: id}
}

// Open anchors id and opens it, if it is on the current page.
func (n *ListNav) Open(id string) Action {
	return n.moveTo(n.state.cache.IndexOf(id))
}

// Neighbours returns the identities before and after id in items.
func Neighbours(items []Item, id string) (previous, next string) {
	for i := range items {
		if items[i].ID != id {
			continue
		}
		if i > 0 {
			previous = items[i-1].ID
		}
		if i+1 < len(items) {
			next = items[i+1].ID
		}
		return previous, next
	}
	return "", ""
}

// DetailNav handles keys while a single item is shown. PreviousID and
// NextID are computed by the view from the loaded page.
type DetailNav struct {
	PreviousID string
	NextID     string

	state *State
	keys  KeyMap
	guard InputGuard
}

// NewDetailNav returns detail navigation for the item id on the page held
// by state, and anchors id.
func NewDetailNav(state *State, id string, keys KeyMap, guard InputGuard) *DetailNav {
	prev, next := Neighbours(state.cache.Items, id)
	state.Anchor.Set(id)
	return &DetailNav{
		PreviousID: prev,
		NextID:     next,
		state:      state,
		keys:       keys,
		guard:      guard,
	}
}

// HandleKey maps a key name to a navigation action.
func (d *DetailNav) HandleKey(k string) Action {
	if d.guard != nil && d.guard() {
		return Action{}
	}
	switch {
	case matches(d.keys.Next, k):
		return d.Next()
	case matches(d.keys.Previous, k):
		return d.Previous()
	case matches(d.keys.Exit, k):
		return d.Exit()
	}
	return Action{}
}

// Next opens the following item, if any.
func (d *DetailNav) Next() Action {
	return d.open(d.NextID)
}

// Previous opens the preceding item, if any.
func (d *DetailNav) Previous() Action {
	return d.open(d.PreviousID)
}

// Exit returns to the list.
func (d *DetailNav) Exit() Action {
	return Action{Kind: ActionExit}
}

func (d *DetailNav) open(id string) Action {
	if id == "" {
		return Action{}
	}
	d.state.Anchor.Set(id)
	return Action{Kind: ActionOpen, ID: id}
}
