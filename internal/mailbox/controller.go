package mailbox

import (
	"context"
	"fmt"
	"log/slog"
)

// Phase is the reconciliation state of a Controller.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseFetching
	PhaseReconciling
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseFetching:
		return "fetching"
	case PhaseReconciling:
		return "reconciling"
	default:
		return "idle"
	}
}

// Request describes one fetch of the list endpoint.
type Request struct {
	ID       uint64
	Endpoint string
	Start    int // omitted from the query when 0
	Limit    int
	Filter   string // opaque search predicate, passed through

	attempt int
}

// Prune reports whether the request is the first-page retry after an
// empty page.
func (r Request) Prune() bool {
	return r.attempt > 0
}

// Fetcher performs a Request against the server.
type Fetcher interface {
	FetchPage(ctx context.Context, req Request) (*Page, error)
}

// FocusKind says where the view should scroll after a commit.
type FocusKind int

const (
	// FocusNone keeps the current scroll position.
	FocusNone FocusKind = iota
	// FocusOrigin scrolls the list to its top.
	FocusOrigin
	// FocusItem scrolls to and focuses Focus.ID.
	FocusItem
)

// Focus is a pending scroll/focus instruction for the renderer.
type Focus struct {
	Kind FocusKind
	ID   string
}

// Result is the outcome of Apply.
type Result struct {
	// Applied is true when a page was committed.
	Applied bool
	// Next is a follow-up request the caller must issue (prune retry).
	Next *Request
	// Focus is the resolved anchor of a committed page.
	Focus Focus
	// Err is the transport or reconciliation failure, if any.
	Err error
}

// Options configures a Controller.
type Options struct {
	Endpoint string
	Filter   string
	PageSize int // 0 means DefaultPageSize
	Logger   *slog.Logger
	// OnError receives every fetch failure once, after rollback.
	OnError func(error)
}

// Controller runs fetch-and-reconcile cycles against a State. It allows at
// most one fetch in flight.
type Controller struct {
	state   *State
	fetcher Fetcher

	endpoint string
	filter   string

	bypass   Bypass
	phase    Phase
	inflight *Request
	seq      uint64
	target   *int // offset requested by GoTo, not yet fetched

	selection     map[string]bool // selection before the in-flight sync
	scrollInPlace bool
	focus         Focus

	logger  *slog.Logger
	onError func(error)
}

// NewController returns a controller for state. fetcher may be nil when
// the caller only drives the controller through Sync and Apply.
func NewController(state *State, fetcher Fetcher, opts Options) (*Controller, error) {
	if state == nil {
		return nil, fmt.Errorf("state is required")
	}
	c := &Controller{
		state:    state,
		fetcher:  fetcher,
		endpoint: opts.Endpoint,
		filter:   opts.Filter,
		logger:   opts.Logger,
		onError:  opts.OnError,
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if opts.PageSize != 0 {
		w, err := state.window.SetWindow(state.window.Offset, opts.PageSize)
		if err != nil {
			return nil, err
		}
		state.setWindow(w)
	}
	return c, nil
}

// State returns the state the controller reconciles.
func (c *Controller) State() *State {
	return c.state
}

// Phase returns the current reconciliation phase.
func (c *Controller) Phase() Phase {
	return c.phase
}

// Bypass returns the current bypass state.
func (c *Controller) Bypass() Bypass {
	return c.bypass
}

// LocationPending reports whether an offset set by GoTo has not been
// requested yet.
func (c *Controller) LocationPending() bool {
	return c.target != nil
}

// Endpoint returns the list endpoint path.
func (c *Controller) Endpoint() string {
	return c.endpoint
}

// SetEndpoint sets the list endpoint path used by the next request.
func (c *Controller) SetEndpoint(path string) {
	c.endpoint = path
}

// Filter returns the active search predicate.
func (c *Controller) Filter() string {
	return c.filter
}

// SetFilter sets the search predicate used by the next request.
func (c *Controller) SetFilter(filter string) {
	c.filter = filter
}

// SetPageSize changes the page size, keeping the offset on a page boundary.
func (c *Controller) SetPageSize(n int) error {
	w, err := c.state.window.SetWindow(c.state.window.Offset, n)
	if err != nil {
		return err
	}
	c.state.setWindow(w)
	return nil
}

// GoTo sets the offset of the next request. The window itself only moves
// when that request's page is committed.
func (c *Controller) GoTo(offset int) {
	w, _ := c.state.window.SetWindow(offset, c.state.window.PageSize)
	c.target = &w.Offset
}

// Suppress makes the next Sync a no-op.
func (c *Controller) Suppress() {
	c.bypass.Suppress()
}

// ScrollInPlace keeps the scroll position on the next commit that has no
// anchor to restore.
func (c *Controller) ScrollInPlace() {
	c.scrollInPlace = true
}

// TakeFocus returns the pending focus instruction once.
func (c *Controller) TakeFocus() Focus {
	f := c.focus
	c.focus = Focus{}
	return f
}

// Reload fetches the first page.
func (c *Controller) Reload() (*Request, error) {
	c.GoTo(0)
	return c.Sync()
}

// Sync starts a reconciliation and returns the request to issue. It
// returns nil without error when the bypass is suppressed or a fetch is
// already in flight.
func (c *Controller) Sync() (*Request, error) {
	if c.endpoint == "" {
		return nil, &ConfigurationError{Field: "endpoint"}
	}
	if c.bypass.Consume() {
		c.logger.Debug("sync suppressed")
		return nil, nil
	}
	if c.phase != PhaseIdle {
		c.logger.Debug("sync skipped, fetch in flight", "request", c.inflight.ID)
		return nil, nil
	}

	// Selection belongs to the outgoing request.
	c.selection = c.state.Selection.Snapshot()
	c.state.Selection.Clear()

	start := c.state.window.Offset
	if c.target != nil {
		start, c.target = *c.target, nil
	}
	return c.begin(start, 0), nil
}

func (c *Controller) begin(start, attempt int) *Request {
	c.seq++
	req := &Request{
		ID:       c.seq,
		Endpoint: c.endpoint,
		Start:    start,
		Limit:    c.state.window.PageSize,
		Filter:   c.filter,
		attempt:  attempt,
	}
	c.inflight = req
	c.phase = PhaseFetching
	c.logger.Debug("fetching page",
		"endpoint", req.Endpoint,
		"start", req.Start,
		"limit", req.Limit,
		"prune", req.Prune())
	return req
}

// Apply completes the in-flight request with the fetch outcome. Results
// for any other request are ignored.
func (c *Controller) Apply(req *Request, page *Page, err error) Result {
	if req == nil || c.inflight == nil || req.ID != c.inflight.ID {
		c.logger.Debug("ignoring stale fetch result")
		return Result{}
	}
	if err != nil {
		return c.fail(req, asTransportError("fetch", err))
	}
	if page == nil {
		return c.fail(req, &TransportError{Op: "fetch", Err: fmt.Errorf("empty response")})
	}

	c.phase = PhaseReconciling
	w, prune := c.state.window.ApplyFetchResult(page.MessagesCount, len(page.Items), page.Start)
	if prune {
		if req.Prune() {
			return c.fail(req, &TransportError{Op: "prune", Err: ErrReconciliationAnomaly})
		}
		c.logger.Info("page is empty, pruning to first page", "start", page.Start)
		return Result{Next: c.begin(0, 1)}
	}

	c.state.commit(w, cacheFromPage(page))
	c.inflight = nil
	c.selection = nil
	c.focus = c.resolveAnchor()
	c.phase = PhaseIdle

	c.logger.Debug("page applied",
		"start", w.Offset,
		"count", w.Count,
		"total", w.Total)
	return Result{Applied: true, Focus: c.focus}
}

func (c *Controller) resolveAnchor() Focus {
	inPlace := c.scrollInPlace
	c.scrollInPlace = false

	id, ok := c.state.Anchor.Take()
	switch {
	case ok && c.state.cache.Contains(id):
		return Focus{Kind: FocusItem, ID: id}
	case ok:
		return Focus{Kind: FocusOrigin}
	case inPlace:
		return Focus{Kind: FocusNone}
	default:
		return Focus{Kind: FocusOrigin}
	}
}

// fail rolls back to the last good state. Window and cache were never
// touched; the selection comes back from its snapshot and the anchor is
// left for a manual retry.
func (c *Controller) fail(req *Request, err error) Result {
	c.inflight = nil
	c.phase = PhaseIdle
	if c.selection != nil {
		c.state.Selection.Restore(c.selection)
		c.selection = nil
	}
	c.logger.Error("sync failed",
		"endpoint", req.Endpoint,
		"start", req.Start,
		"err", err)
	if c.onError != nil {
		c.onError(err)
	}
	return Result{Err: err}
}

// Run issues req and any follow-up requests with the controller's Fetcher
// and returns the final result. A nil req returns an empty Result.
func (c *Controller) Run(ctx context.Context, req *Request) Result {
	var res Result
	for req != nil {
		if c.fetcher == nil {
			return c.fail(req, &ConfigurationError{Field: "fetcher"})
		}
		page, err := c.fetcher.FetchPage(ctx, *req)
		res = c.Apply(req, page, err)
		req = res.Next
	}
	return res
}
