// Package mailbox keeps a windowed, locally cached view of a server-held
// message list consistent under page navigation, push notifications and
// keyboard navigation.
//
// All types in this package are owned by a single event loop (the TUI
// update loop or a command's select loop) and are not safe for concurrent
// use. Fetches run elsewhere and report back through Controller.Apply.
package mailbox

// State groups the per-view state: the window, the cached page, the
// selection and the anchor. One State exists per active view.
type State struct {
	window Window
	cache  Cache

	Selection *Selection
	Anchor    *Anchor

	serverVersion string

	totalObservers []func(old, new int)
}

// NewState returns an empty state at the first page. The selection is
// cleared whenever the window's result count changes.
func NewState() *State {
	s := &State{
		window:    NewWindow(),
		Selection: NewSelection(),
		Anchor:    &Anchor{},
	}
	s.OnTotalChange(func(int, int) {
		s.Selection.Clear()
	})
	return s
}

// Window returns the current pagination window.
func (s *State) Window() Window {
	return s.window
}

// Cache returns the current page. The returned slices must not be modified.
func (s *State) Cache() Cache {
	return s.cache
}

// ServerVersion returns the version from the last stats event, or "" before
// one arrives.
func (s *State) ServerVersion() string {
	return s.serverVersion
}

// OnTotalChange registers fn to run synchronously whenever Window.Total
// changes value, after the new window is in place.
func (s *State) OnTotalChange(fn func(old, new int)) {
	s.totalObservers = append(s.totalObservers, fn)
}

// ToggleSelection toggles id if it is on the current page and reports
// whether it is selected afterwards.
func (s *State) ToggleSelection(id string) bool {
	if !s.cache.Contains(id) {
		return false
	}
	return s.Selection.Toggle(id)
}

func (s *State) setWindow(w Window) {
	old := s.window.Total
	s.window = w
	if old != w.Total {
		for _, fn := range s.totalObservers {
			fn(old, w.Total)
		}
	}
}

// commit replaces the cache and window with a fetch result.
func (s *State) commit(w Window, c Cache) {
	s.cache = c
	s.setWindow(w)
	s.Selection.retain(c)
}
