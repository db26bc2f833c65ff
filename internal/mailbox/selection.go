package mailbox

import "sort"

// Selection is the set of selected item identities on the current page.
type Selection struct {
	ids map[string]bool
}

// NewSelection returns an empty selection.
func NewSelection() *Selection {
	return &Selection{ids: make(map[string]bool)}
}

// Toggle flips id and reports whether it is selected afterwards.
func (s *Selection) Toggle(id string) bool {
	if s.ids[id] {
		delete(s.ids, id)
		return false
	}
	s.ids[id] = true
	return true
}

// Clear empties the selection.
func (s *Selection) Clear() {
	if len(s.ids) == 0 {
		return
	}
	s.ids = make(map[string]bool)
}

// Contains reports whether id is selected.
func (s *Selection) Contains(id string) bool {
	return s.ids[id]
}

// Len returns the number of selected identities.
func (s *Selection) Len() int {
	return len(s.ids)
}

// IDs returns the selected identities in sorted order.
func (s *Selection) IDs() []string {
	ids := make([]string, 0, len(s.ids))
	for id := range s.ids {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Snapshot returns a copy of the selection that Restore can bring back.
func (s *Selection) Snapshot() map[string]bool {
	snap := make(map[string]bool, len(s.ids))
	for id := range s.ids {
		snap[id] = true
	}
	return snap
}

// Restore replaces the selection with a snapshot.
func (s *Selection) Restore(snap map[string]bool) {
	s.ids = make(map[string]bool, len(snap))
	for id := range snap {
		s.ids[id] = true
	}
}

// retain drops identities that are not on the page held by c.
func (s *Selection) retain(c Cache) {
	for id := range s.ids {
		if !c.Contains(id) {
			delete(s.ids, id)
		}
	}
}
