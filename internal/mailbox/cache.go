package mailbox

import "time"

// Address is a display name and mailbox address pair.
type Address struct {
	Name    string
	Address string
}

// String formats the address the way mail clients display it.
func (a Address) String() string {
	if a.Name == "" {
		return a.Address
	}
	return a.Name + " <" + a.Address + ">"
}

// Item is the list summary of a single message. ID is the stable,
// server-assigned identity; it is the only value other components keep
// across a refresh.
type Item struct {
	ID          string
	MessageID   string
	Read        bool
	From        *Address
	To          []Address
	Cc          []Address
	Subject     string
	Created     time.Time
	Tags        []string
	Size        float64
	Attachments int
	Snippet     string
}

// Page is one decoded response from the list endpoint.
type Page struct {
	Total          int // all messages on the server
	Unread         int // all unread messages on the server
	MessagesCount  int // results of the current mailbox or search
	MessagesUnread int // unread results of the current mailbox or search
	Start          int // offset the server actually served
	Tags           []string
	Items          []Item
}

// Cache holds the items of the current window and the aggregate counters
// returned alongside them. A Cache is replaced as a whole on every
// successful fetch; the optimistic push updates only touch counters and
// per-item tags on a copy.
type Cache struct {
	Items          []Item
	Total          int
	Unread         int
	MessagesUnread int
	Tags           []string
}

func cacheFromPage(p *Page) Cache {
	items := make([]Item, len(p.Items))
	copy(items, p.Items)
	tags := make([]string, len(p.Tags))
	copy(tags, p.Tags)
	return Cache{
		Items:          items,
		Total:          p.Total,
		Unread:         p.Unread,
		MessagesUnread: p.MessagesUnread,
		Tags:           tags,
	}
}

// IndexOf returns the position of id in the cached items, or -1.
func (c Cache) IndexOf(id string) int {
	if id == "" {
		return -1
	}
	for i := range c.Items {
		if c.Items[i].ID == id {
			return i
		}
	}
	return -1
}

// Contains reports whether id is on the current page.
func (c Cache) Contains(id string) bool {
	return c.IndexOf(id) >= 0
}

// Item returns the cached item with the given identity.
func (c Cache) Item(id string) (Item, bool) {
	if i := c.IndexOf(id); i >= 0 {
		return c.Items[i], true
	}
	return Item{}, false
}

// IDs returns the identities of the cached items in list order.
func (c Cache) IDs() []string {
	ids := make([]string, len(c.Items))
	for i := range c.Items {
		ids[i] = c.Items[i].ID
	}
	return ids
}

// Len returns the number of cached items.
func (c Cache) Len() int {
	return len(c.Items)
}

// withTags returns a copy of c where the item with the given id carries
// tags, and the tag index includes every tag in tags.
func (c Cache) withTags(id string, tags []string) Cache {
	out := c
	if i := c.IndexOf(id); i >= 0 {
		out.Items = make([]Item, len(c.Items))
		copy(out.Items, c.Items)
		out.Items[i].Tags = append([]string(nil), tags...)
	}
	out.Tags = mergeTags(c.Tags, tags)
	return out
}

func mergeTags(index, tags []string) []string {
	seen := make(map[string]bool, len(index)+len(tags))
	merged := make([]string, 0, len(index)+len(tags))
	for _, t := range index {
		if !seen[t] {
			seen[t] = true
			merged = append(merged, t)
		}
	}
	for _, t := range tags {
		if t != "" && !seen[t] {
			seen[t] = true
			merged = append(merged, t)
		}
	}
	return merged
}
