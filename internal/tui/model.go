// Package tui provides a terminal user interface for a Mailpit mailbox.
package tui

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/wesm/pitwatch/internal/mailbox"
	"github.com/wesm/pitwatch/internal/mime"
	"github.com/wesm/pitwatch/internal/prefs"
	"github.com/wesm/pitwatch/internal/push"
	"github.com/wesm/pitwatch/internal/remote"
)

// viewLevel represents the current navigation depth.
type viewLevel int

const (
	levelList viewLevel = iota
	levelDetail
)

// modalType represents the type of modal dialog.
type modalType int

const (
	modalNone modalType = iota
	modalDeleteConfirm
	modalHelp
)

// Client is the server API the model needs.
type Client interface {
	mailbox.Fetcher
	MessageRaw(ctx context.Context, id string) ([]byte, error)
	SetReadStatus(ctx context.Context, ids []string, read bool) error
	DeleteMessages(ctx context.Context, ids []string) error
}

// PrefsStore loads and updates display preferences.
type PrefsStore interface {
	Load() (prefs.Settings, error)
	Update(fn func(*prefs.Settings)) (prefs.Settings, error)
}

// Options configuration for TUI.
type Options struct {
	Version  string
	Search   string // initial search; empty shows the inbox
	PageSize int
	Prefs    PrefsStore // may be nil; defaults are used
	// NotificationsSupported reports whether new-message notices can be
	// shown. When false the notifications toggle only explains why.
	NotificationsSupported bool
	RequestTimeout         time.Duration
	Logger                 *slog.Logger
}

const defaultRequestTimeout = 30 * time.Second

// Model is the main TUI model following the Elm architecture.
type Model struct {
	client Client
	store  PrefsStore
	logger *slog.Logger

	// Sync engine. These are shared by every copy of the model and only
	// touched from Update.
	state  *mailbox.State
	ctrl   *mailbox.Controller
	router *mailbox.Router
	keys   mailbox.KeyMap
	list   *mailbox.ListNav

	version        string
	requestTimeout time.Duration
	settings       prefs.Settings
	notifyOK       bool

	level  viewLevel
	cursor int // index of the focused row in the cached page
	// Set once the cursor points at a row the user chose. Until then j/k
	// navigate from no anchor.
	cursorMoved bool
	scroll int // first visible row

	// Detail view
	detailID      string
	detail        *mime.Message
	detailNav     *mailbox.DetailNav
	detailErr     error
	detailLoading bool
	detailScroll  int

	// Set while the search input has focus; read by the navigation guard.
	inputActive *bool
	searchInput textinput.Model

	// A location change that arrived while a fetch was in flight.
	pendingLocation bool

	modal        modalType
	pendingIDs   []string // messages awaiting delete confirmation
	connected    bool
	disconnected bool // the push connection was lost at least once

	width    int
	height   int
	pageRows int

	loading       bool
	err           error
	spinnerFrame  int
	spinnerActive bool

	flashMessage   string
	flashExpiresAt time.Time

	quitting bool
}

// New creates a new TUI model with the given options.
func New(client Client, opts Options) (Model, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	endpoint := remote.MessagesPath
	if opts.Search != "" {
		endpoint = remote.SearchPath
	}

	state := mailbox.NewState()
	ctrl, err := mailbox.NewController(state, client, mailbox.Options{
		Endpoint: endpoint,
		Filter:   opts.Search,
		PageSize: mailbox.ClampPageSize(opts.PageSize),
		Logger:   logger,
	})
	if err != nil {
		return Model{}, err
	}

	ti := textinput.New()
	ti.Placeholder = "search (from:, subject:, is:unread, tag:)"
	ti.CharLimit = 200
	ti.Width = 50
	ti.SetValue(opts.Search)

	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	inputActive := new(bool)
	guard := func() bool { return *inputActive }
	keys := navKeys()

	return Model{
		client:         client,
		store:          opts.Prefs,
		logger:         logger,
		state:          state,
		ctrl:           ctrl,
		router:         mailbox.NewRouter(ctrl),
		keys:           keys,
		list:           mailbox.NewListNav(state, keys, guard),
		version:        opts.Version,
		requestTimeout: timeout,
		settings:       prefs.Defaults(),
		notifyOK:       opts.NotificationsSupported,
		inputActive:    inputActive,
		searchInput:    ti,
		pageRows:       20,
		loading:        true,
		spinnerActive:  true,
	}, nil
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.loadSettings(), spinnerTick()}
	req, err := m.ctrl.Sync()
	if err != nil {
		m.logger.Error("initial sync", "err", err)
	}
	if req != nil {
		cmds = append(cmds, m.fetch(req))
	}
	return tea.Batch(cmds...)
}

// PushMsg delivers a push notification or connection change to the model.
type PushMsg struct {
	Message push.Message
}

// PrefsChangedMsg reports that the preference store changed on disk.
type PrefsChangedMsg struct{}

// ResyncMsg asks for a full reconciliation of the current page.
type ResyncMsg struct{}

// pageLoadedMsg is sent when a list request completes.
type pageLoadedMsg struct {
	req  *mailbox.Request
	page *mailbox.Page
	err  error
}

// locationChangedMsg follows a change of page, search or page size, the
// way the browser's location update follows a click.
type locationChangedMsg struct{}

// detailLoadedMsg is sent when a message body is loaded.
type detailLoadedMsg struct {
	id  string
	msg *mime.Message
	err error
}

// mutationDoneMsg is sent when a read-status or delete request completes.
type mutationDoneMsg struct {
	op    string
	count int
	quiet bool
	err   error
}

// settingsLoadedMsg is sent when preferences are (re)loaded.
type settingsLoadedMsg struct {
	settings prefs.Settings
	err      error
}

// flashClearMsg clears the flash message after it expires.
type flashClearMsg struct{}

// spinnerTickMsg advances the loading spinner animation.
type spinnerTickMsg struct{}

// spinnerFrames are the Braille dot animation frames for the loading spinner.
var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

const (
	spinnerInterval = 80 * time.Millisecond
	flashDuration   = 4 * time.Second
)

func spinnerTick() tea.Cmd {
	return tea.Tick(spinnerInterval, func(t time.Time) tea.Msg {
		return spinnerTickMsg{}
	})
}

// startSpinner returns a spinnerTick command if the spinner isn't already active.
func (m *Model) startSpinner() tea.Cmd {
	if m.spinnerActive {
		return nil
	}
	m.spinnerActive = true
	m.spinnerFrame = 0
	return spinnerTick()
}

func (m Model) fetch(req *mailbox.Request) tea.Cmd {
	client, timeout := m.client, m.requestTimeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		page, err := client.FetchPage(ctx, *req)
		return pageLoadedMsg{req: req, page: page, err: err}
	}
}

func (m Model) loadDetail(id string) tea.Cmd {
	client, timeout := m.client, m.requestTimeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		raw, err := client.MessageRaw(ctx, id)
		if err != nil {
			return detailLoadedMsg{id: id, err: err}
		}
		msg, err := mime.Parse(raw)
		return detailLoadedMsg{id: id, msg: msg, err: err}
	}
}

func (m Model) markRead(ids []string, quiet bool) tea.Cmd {
	client, timeout := m.client, m.requestTimeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		err := client.SetReadStatus(ctx, ids, true)
		return mutationDoneMsg{op: "read", count: len(ids), quiet: quiet, err: err}
	}
}

func (m Model) deleteMessages(ids []string) tea.Cmd {
	client, timeout := m.client, m.requestTimeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		err := client.DeleteMessages(ctx, ids)
		return mutationDoneMsg{op: "delete", count: len(ids), err: err}
	}
}

func (m Model) loadSettings() tea.Cmd {
	store := m.store
	if store == nil {
		return nil
	}
	return func() tea.Msg {
		s, err := store.Load()
		return settingsLoadedMsg{settings: s, err: err}
	}
}

func (m Model) updateSettings(fn func(*prefs.Settings)) tea.Cmd {
	store := m.store
	if store == nil {
		s := m.settings
		fn(&s)
		return func() tea.Msg { return settingsLoadedMsg{settings: s} }
	}
	return func() tea.Msg {
		s, err := store.Update(fn)
		return settingsLoadedMsg{settings: s, err: err}
	}
}

func locationChanged() tea.Msg {
	return locationChangedMsg{}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = max(msg.Width, 0)
		m.height = max(msg.Height, 0)
		// Reserve space for: title bar (1) + info line (1) + table header (1) + separator (1) + footer (1) = 5
		m.pageRows = max(m.height-5, 1)
		m.scrollToCursor()
		m.searchInput.Width = max(m.width-12, 10)
		return m, nil

	case pageLoadedMsg:
		return m.applyPage(msg)

	case locationChangedMsg:
		if m.ctrl.Bypass() == mailbox.BypassSuppressed {
			return m.sync()
		}
		if !m.ctrl.LocationPending() {
			// A sync already took the new location, possibly one that
			// consumed the suppression meant for this change.
			return m, nil
		}
		if m.ctrl.Phase() != mailbox.PhaseIdle {
			m.pendingLocation = true
			return m, nil
		}
		return m.sync()

	case detailLoadedMsg:
		if msg.id != m.detailID || m.level != levelDetail {
			return m, nil
		}
		m.detailLoading = false
		m.detail = msg.msg
		m.detailErr = msg.err
		if msg.err != nil {
			m.logger.Error("load message", "id", msg.id, "err", msg.err)
		}
		return m, nil

	case mutationDoneMsg:
		if msg.err != nil {
			m.logger.Error("update messages", "op", msg.op, "err", msg.err)
			m.err = msg.err
			return m, nil
		}
		if msg.quiet {
			return m, nil
		}
		m.ctrl.ScrollInPlace()
		next, syncCmd := m.sync()
		verb := "Marked %d read"
		if msg.op == "delete" {
			verb = "Deleted %d"
		}
		nm, flashCmd := next.showFlash(fmt.Sprintf(verb, msg.count))
		return nm, tea.Batch(syncCmd, flashCmd)

	case settingsLoadedMsg:
		if msg.err != nil {
			m.logger.Error("load preferences", "err", msg.err)
			return m, nil
		}
		m.settings = msg.settings
		return m, nil

	case PushMsg:
		return m.handlePush(msg.Message)

	case PrefsChangedMsg:
		return m, m.loadSettings()

	case ResyncMsg:
		m.ctrl.ScrollInPlace()
		return m.sync()

	case spinnerTickMsg:
		if m.loading || m.detailLoading {
			m.spinnerFrame = (m.spinnerFrame + 1) % len(spinnerFrames)
			return m, spinnerTick()
		}
		m.spinnerActive = false
		return m, nil

	case flashClearMsg:
		if time.Now().After(m.flashExpiresAt) {
			m.flashMessage = ""
		}
		return m, nil
	}
	return m, nil
}

// sync starts a reconciliation and returns the command that fetches it.
func (m Model) sync() (Model, tea.Cmd) {
	req, err := m.ctrl.Sync()
	if err != nil {
		m.err = err
		return m, nil
	}
	if req == nil {
		return m, nil
	}
	m.loading = true
	cmd := tea.Batch(m.fetch(req), m.startSpinner())
	return m, cmd
}

// applyPage hands a completed fetch to the controller and moves the cursor
// to wherever the controller resolved focus.
func (m Model) applyPage(msg pageLoadedMsg) (tea.Model, tea.Cmd) {
	prevID := m.focusedID()
	res := m.ctrl.Apply(msg.req, msg.page, msg.err)
	if res.Next != nil {
		return m, m.fetch(res.Next)
	}
	if !res.Applied && res.Err == nil {
		// stale
		return m, nil
	}
	m.loading = false

	if res.Err != nil {
		m.err = res.Err
	} else {
		m.err = nil
		m.applyFocus(m.ctrl.TakeFocus(), prevID)
		if m.level == levelDetail {
			m.detailNav = mailbox.NewDetailNav(m.state, m.detailID, m.keys, m.guard())
		}
	}

	if m.pendingLocation {
		m.pendingLocation = false
		return m.sync()
	}
	return m, nil
}

func (m *Model) applyFocus(f mailbox.Focus, prevID string) {
	cache := m.state.Cache()
	switch f.Kind {
	case mailbox.FocusItem:
		if i := cache.IndexOf(f.ID); i >= 0 {
			m.cursor = i
			m.cursorMoved = true
		}
	case mailbox.FocusOrigin:
		m.cursor = 0
		m.scroll = 0
		m.cursorMoved = false
	case mailbox.FocusNone:
		if i := cache.IndexOf(prevID); i >= 0 {
			m.cursor = i
		}
	}
	m.clampCursor()
}

func (m *Model) clampCursor() {
	n := m.state.Cache().Len()
	if m.cursor >= n {
		m.cursor = n - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
	m.scrollToCursor()
}

func (m *Model) scrollToCursor() {
	if m.cursor < m.scroll {
		m.scroll = m.cursor
	}
	if m.cursor >= m.scroll+m.pageRows {
		m.scroll = m.cursor - m.pageRows + 1
	}
	if m.scroll < 0 {
		m.scroll = 0
	}
}

func (m Model) guard() mailbox.InputGuard {
	active := m.inputActive
	return func() bool { return *active }
}

// focusedID returns the identity of the row under the cursor.
func (m Model) focusedID() string {
	items := m.state.Cache().Items
	if m.cursor < 0 || m.cursor >= len(items) {
		return ""
	}
	return items[m.cursor].ID
}

// targetIDs returns the selection, or the focused row when nothing is
// selected.
func (m Model) targetIDs() []string {
	if ids := m.state.Selection.IDs(); len(ids) > 0 {
		return ids
	}
	if id := m.focusedID(); id != "" {
		return []string{id}
	}
	return nil
}

// handlePush routes a push notification through the router.
func (m Model) handlePush(pm push.Message) (tea.Model, tea.Cmd) {
	switch pm := pm.(type) {
	case push.StatusMessage:
		wasConnected := m.connected
		m.connected = pm.Connected
		if pm.Err != nil {
			m.logger.Debug("push connection", "err", pm.Err)
		}
		if !pm.Connected {
			if wasConnected {
				m.disconnected = true
			}
			return m, nil
		}
		if m.disconnected && !wasConnected {
			// Events were missed while offline.
			m.ctrl.ScrollInPlace()
			return m.sync()
		}
		return m, nil

	case push.EventMessage:
		ev := pm.Event
		req, err := m.router.Route(ev)
		if err != nil {
			m.err = err
			return m, nil
		}
		var cmds []tea.Cmd
		if req != nil {
			m.loading = true
			cmds = append(cmds, m.fetch(req), m.startSpinner())
		}
		if ev.Kind == mailbox.EventCreated && ev.Item != nil && m.settings.Notifications && m.notifyOK {
			next, cmd := m.showFlash(fmt.Sprintf("New message from %s: %s",
				formatFrom(ev.Item.From), truncateCells(ev.Item.Subject, 60)))
			return next, tea.Batch(append(cmds, cmd)...)
		}
		return m, tea.Batch(cmds...)
	}
	return m, nil
}

// openDetail shows the message id and loads its body.
func (m Model) openDetail(id string) (tea.Model, tea.Cmd) {
	m.level = levelDetail
	m.detailID = id
	m.detail = nil
	m.detailErr = nil
	m.detailScroll = 0
	m.detailLoading = true
	m.detailNav = mailbox.NewDetailNav(m.state, id, m.keys, m.guard())
	if i := m.state.Cache().IndexOf(id); i >= 0 {
		m.cursor = i
		m.cursorMoved = true
		m.scrollToCursor()
	}

	cmds := []tea.Cmd{m.loadDetail(id), m.startSpinner()}
	if item, ok := m.state.Cache().Item(id); ok && !item.Read {
		cmds = append(cmds, m.markRead([]string{id}, true))
	}
	return m, tea.Batch(cmds...)
}

// exitDetail returns to the list. The sync that follows restores focus to
// the anchored message.
func (m Model) exitDetail() (tea.Model, tea.Cmd) {
	m.level = levelList
	m.detail = nil
	m.detailNav = nil
	m.detailErr = nil
	m.detailLoading = false
	if id, ok := m.state.Anchor.Get(); ok {
		if i := m.state.Cache().IndexOf(id); i >= 0 {
			m.cursor = i
			m.scrollToCursor()
		}
	}
	return m.sync()
}

func (m Model) showFlash(message string) (Model, tea.Cmd) {
	m.flashMessage = message
	m.flashExpiresAt = time.Now().Add(flashDuration)
	return m, tea.Tick(flashDuration, func(t time.Time) tea.Msg {
		return flashClearMsg{}
	})
}

// Quitting reports whether the user asked to quit.
func (m Model) Quitting() bool {
	return m.quitting
}
