package mailbox

// Bypass decides whether the next Sync call issues a fetch.
//
// A window change that only mirrors a fetch already issued elsewhere (for
// example, the location update that follows a page change) suppresses the
// bypass; the Sync it triggers is then skipped exactly once.
type Bypass int

const (
	// BypassArmed lets the next Sync fetch.
	BypassArmed Bypass = iota
	// BypassSuppressed turns the next Sync into a no-op.
	BypassSuppressed
)

// String returns the state name.
func (b Bypass) String() string {
	switch b {
	case BypassSuppressed:
		return "suppressed"
	default:
		return "armed"
	}
}

// Suppress makes the next Consume report a skip.
func (b *Bypass) Suppress() {
	*b = BypassSuppressed
}

// Arm cancels a pending suppression.
func (b *Bypass) Arm() {
	*b = BypassArmed
}

// Consume reports whether the current call must be skipped. A suppressed
// bypass is re-armed by the call that consumes it.
func (b *Bypass) Consume() bool {
	if *b == BypassSuppressed {
		*b = BypassArmed
		return true
	}
	return false
}
