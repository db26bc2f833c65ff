package tui

import (
	"slices"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/wesm/pitwatch/internal/mailbox"
	"github.com/wesm/pitwatch/internal/prefs"
	"github.com/wesm/pitwatch/internal/remote"
)

// clipboardWrite is replaced in tests.
var clipboardWrite = clipboard.WriteAll

// navKeys returns the message navigation bindings. The arrow keys are left
// out so they can move the list cursor and scroll the detail view.
func navKeys() mailbox.KeyMap {
	keys := mailbox.DefaultKeyMap()
	keys.Next.SetKeys("j")
	keys.Next.SetHelp("j", "next message")
	keys.Previous.SetKeys("k")
	keys.Previous.SetHelp("k", "previous message")
	keys.Exit = key.NewBinding(
		key.WithKeys("esc", "u"),
		key.WithHelp("esc/u", "back to list"),
	)
	return keys
}

func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		m.quitting = true
		return m, tea.Quit
	}
	if *m.inputActive {
		return m.handleSearchKeys(msg)
	}
	if m.modal != modalNone {
		return m.handleModalKeys(msg)
	}
	switch m.level {
	case levelDetail:
		return m.handleDetailKeys(msg)
	default:
		return m.handleListKeys(msg)
	}
}

// handleSearchKeys handles keys while the search input has focus.
func (m Model) handleSearchKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		*m.inputActive = false
		m.searchInput.Blur()
		return m.applySearch(strings.TrimSpace(m.searchInput.Value()))

	case "esc":
		*m.inputActive = false
		m.searchInput.Blur()
		m.searchInput.SetValue(m.ctrl.Filter())
		return m, nil

	default:
		var cmd tea.Cmd
		m.searchInput, cmd = m.searchInput.Update(msg)
		return m, cmd
	}
}

// applySearch switches between the inbox and a search and returns to the
// first page.
func (m Model) applySearch(query string) (tea.Model, tea.Cmd) {
	m.searchInput.SetValue(query)
	if query == m.ctrl.Filter() {
		return m, nil
	}
	m.ctrl.SetFilter(query)
	if query == "" {
		m.ctrl.SetEndpoint(remote.MessagesPath)
	} else {
		m.ctrl.SetEndpoint(remote.SearchPath)
	}
	m.ctrl.GoTo(0)
	m.state.Anchor.Clear()
	return m, locationChanged
}

func (m Model) handleListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	k := msg.String()

	if key.Matches(msg, m.keys.Next, m.keys.Previous) {
		if id := m.focusedID(); id != "" && m.cursorMoved {
			m.state.Anchor.Set(id)
		}
		if act := m.list.HandleKey(k); act.Kind == mailbox.ActionOpen {
			return m.openDetail(act.ID)
		}
		return m, nil
	}

	switch k {
	case "q":
		m.quitting = true
		return m, tea.Quit

	case "?":
		m.modal = modalHelp
		return m, nil

	case "up":
		m.cursor--
		m.moveCursor()
	case "down":
		m.cursor++
		m.moveCursor()
	case "pgup":
		m.cursor -= m.pageRows
		m.moveCursor()
	case "pgdown":
		m.cursor += m.pageRows
		m.moveCursor()
	case "home", "g":
		m.cursor = 0
		m.moveCursor()
	case "end", "G":
		m.cursor = m.state.Cache().Len() - 1
		m.moveCursor()

	case "enter":
		if act := m.list.Open(m.focusedID()); act.Kind == mailbox.ActionOpen {
			return m.openDetail(act.ID)
		}

	case "n", "right":
		w := m.state.Window()
		if !w.HasNext() {
			return m, nil
		}
		return m.changePage(w.NextOffset())
	case "p", "left":
		w := m.state.Window()
		if !w.HasPrevious() {
			return m, nil
		}
		return m.changePage(w.PreviousOffset())

	case "+", "=":
		return m.stepPageSize(1)
	case "-", "_":
		return m.stepPageSize(-1)

	case "r":
		req, err := m.ctrl.Reload()
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

	case " ":
		if id := m.focusedID(); id != "" {
			m.state.ToggleSelection(id)
			m.cursor++
			m.moveCursor()
		}
	case "x":
		m.state.Selection.Clear()

	case "m":
		ids := m.targetIDs()
		if len(ids) == 0 {
			return m, nil
		}
		return m, m.markRead(ids, false)

	case "D":
		return m.stageDeletion(m.targetIDs())

	case "/":
		*m.inputActive = true
		m.searchInput.Focus()
		m.searchInput.CursorEnd()
		return m, textinput.Blink

	case "esc":
		if m.ctrl.Filter() != "" {
			return m.applySearch("")
		}

	case "t":
		return m, m.updateSettings(func(s *prefs.Settings) {
			s.ShowTagColors = !s.ShowTagColors
		})
	case "N":
		return m.toggleNotifications()

	case "y":
		return m.copyID(m.focusedID())
	}
	return m, nil
}

// changePage fetches the page at offset directly, then suppresses the sync
// the location change would otherwise trigger.
func (m Model) changePage(offset int) (tea.Model, tea.Cmd) {
	if m.ctrl.Phase() != mailbox.PhaseIdle {
		return m, nil
	}
	m.ctrl.GoTo(offset)
	m.state.Anchor.Clear()
	m, cmd := m.sync()
	if cmd == nil {
		return m, nil
	}
	m.ctrl.Suppress()
	return m, tea.Batch(cmd, locationChanged)
}

// stepPageSize moves to the next larger (dir > 0) or smaller page size.
func (m Model) stepPageSize(dir int) (tea.Model, tea.Cmd) {
	sizes := mailbox.PageSizes
	i := slices.Index(sizes, m.state.Window().PageSize)
	if i < 0 || i+dir < 0 || i+dir >= len(sizes) {
		return m, nil
	}
	if err := m.ctrl.SetPageSize(sizes[i+dir]); err != nil {
		m.err = err
		return m, nil
	}
	m.ctrl.GoTo(m.state.Window().Offset)
	return m, locationChanged
}

func (m Model) stageDeletion(ids []string) (tea.Model, tea.Cmd) {
	if len(ids) == 0 {
		return m, nil
	}
	m.pendingIDs = ids
	m.modal = modalDeleteConfirm
	return m, nil
}

func (m Model) toggleNotifications() (tea.Model, tea.Cmd) {
	if !m.notifyOK {
		return m.showFlash("Notifications are not supported by this terminal")
	}
	enabled := !m.settings.Notifications
	cmd := m.updateSettings(func(s *prefs.Settings) {
		s.Notifications = enabled
	})
	msg := "Notifications off"
	if enabled {
		msg = "Notifications on"
	}
	next, flashCmd := m.showFlash(msg)
	return next, tea.Batch(cmd, flashCmd)
}

func (m Model) copyID(id string) (tea.Model, tea.Cmd) {
	if id == "" {
		return m, nil
	}
	if err := clipboardWrite(id); err != nil {
		m.logger.Error("copy to clipboard", "err", err)
		return m.showFlash("Copy failed: " + err.Error())
	}
	return m.showFlash("Copied " + id)
}

func (m Model) handleDetailKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.detailNav != nil {
		switch act := m.detailNav.HandleKey(msg.String()); act.Kind {
		case mailbox.ActionOpen:
			return m.openDetail(act.ID)
		case mailbox.ActionExit:
			return m.exitDetail()
		}
	}

	switch msg.String() {
	case "q":
		m.quitting = true
		return m, tea.Quit
	case "?":
		m.modal = modalHelp
	case "up":
		m.detailScroll--
		m.clampDetailScroll()
	case "down":
		m.detailScroll++
		m.clampDetailScroll()
	case "pgup":
		m.detailScroll -= m.detailPageRows()
		m.clampDetailScroll()
	case "pgdown", " ":
		m.detailScroll += m.detailPageRows()
		m.clampDetailScroll()
	case "home", "g":
		m.detailScroll = 0
	case "end", "G":
		m.detailScroll = len(m.detailLines())
		m.clampDetailScroll()
	case "D":
		return m.stageDeletion([]string{m.detailID})
	case "y":
		return m.copyID(m.detailID)
	case "t":
		return m, m.updateSettings(func(s *prefs.Settings) {
			s.ShowTagColors = !s.ShowTagColors
		})
	}
	return m, nil
}

// moveCursor clamps a cursor the user moved.
func (m *Model) moveCursor() {
	m.cursorMoved = true
	m.clampCursor()
}

// detailPageRows is the number of body lines visible in the detail view.
func (m Model) detailPageRows() int {
	return max(m.pageRows+2, 1)
}

func (m *Model) clampDetailScroll() {
	maxScroll := max(len(m.detailLines())-m.detailPageRows(), 0)
	m.detailScroll = min(max(m.detailScroll, 0), maxScroll)
}

func (m Model) handleModalKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.modal {
	case modalDeleteConfirm:
		switch msg.String() {
		case "y", "Y", "enter":
			ids := m.pendingIDs
			m.pendingIDs = nil
			m.modal = modalNone
			if m.level == levelDetail {
				m.level = levelList
				m.detail = nil
				m.detailNav = nil
			}
			return m, m.deleteMessages(ids)
		case "n", "N", "esc", "q":
			m.pendingIDs = nil
			m.modal = modalNone
		}
	case modalHelp:
		m.modal = modalNone
	}
	return m, nil
}
