package mailbox

// Anchor is the last focused item identity. It is a one-shot instruction
// for the next reconciliation, not a persistent cursor: the controller
// takes it on every successful commit.
type Anchor struct {
	id  string
	set bool
}

// Set anchors id. An empty id clears the anchor.
func (a *Anchor) Set(id string) {
	if id == "" {
		a.Clear()
		return
	}
	a.id, a.set = id, true
}

// Get returns the anchored identity.
func (a *Anchor) Get() (string, bool) {
	return a.id, a.set
}

// IsSet reports whether an identity is anchored.
func (a *Anchor) IsSet() bool {
	return a.set
}

// Clear resets the anchor to unset.
func (a *Anchor) Clear() {
	a.id, a.set = "", false
}

// Take returns the anchored identity and clears the anchor.
func (a *Anchor) Take() (string, bool) {
	id, ok := a.id, a.set
	a.Clear()
	return id, ok
}
