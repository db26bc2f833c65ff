package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Monochrome theme - adaptive for light and dark terminals
var (
	bgBase   = lipgloss.AdaptiveColor{Light: "#ffffff", Dark: "#000000"}
	bgAlt    = lipgloss.AdaptiveColor{Light: "#f0f0f0", Dark: "#181818"}
	bgCursor = lipgloss.AdaptiveColor{Light: "#e0e0e0", Dark: "#282828"}

	titleBarStyle = lipgloss.NewStyle().
			Bold(true).
			Background(lipgloss.AdaptiveColor{Light: "#e0e0e0", Dark: "#333333"}).
			Foreground(lipgloss.AdaptiveColor{Light: "#000000", Dark: "#ffffff"}).
			Padding(0, 1)

	statsStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#555555", Dark: "#999999"}).
			Background(bgBase).
			Padding(0, 1)

	// Spinner style - NOT faint so it's visible
	spinnerStyle = lipgloss.NewStyle().
			Bold(true).
			Background(bgBase)

	tableHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Background(bgBase)

	separatorStyle = lipgloss.NewStyle().
			Faint(true).
			Background(bgBase)

	cursorRowStyle = lipgloss.NewStyle().
			Background(bgCursor)

	selectedRowStyle = lipgloss.NewStyle().
				Bold(true).
				Background(bgBase)

	normalRowStyle = lipgloss.NewStyle().
			Background(bgBase)

	altRowStyle = lipgloss.NewStyle().
			Background(bgAlt)

	unreadStyle = lipgloss.NewStyle().
			Bold(true)

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#555555", Dark: "#999999"}).
			Background(bgBase).
			Padding(0, 1)

	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Background(bgBase)

	loadingStyle = lipgloss.NewStyle().
			Italic(true).
			Background(bgBase)

	selectedIndicatorStyle = lipgloss.NewStyle().
				Bold(true)

	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(1, 2).
			Background(bgBase)

	modalTitleStyle = lipgloss.NewStyle().
			Bold(true)

	flashStyle = lipgloss.NewStyle().
			Italic(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#996600", Dark: "#ffcc00"}). // Amber for visibility
			Background(bgBase)

	highlightStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#000000", Dark: "#000000"}).
			Background(lipgloss.AdaptiveColor{Light: "#e8d44d", Dark: "#e8d44d"}).
			Bold(true)

	tagStyle = lipgloss.NewStyle().
			Bold(true)
)

// Column widths of the message table.
const (
	markWidth = 3
	fromWidth = 24
	dateWidth = 10
	sizeWidth = 8
	tagsWidth = 20
)

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.width == 0 {
		return "Loading..."
	}

	var body string
	switch m.level {
	case levelDetail:
		body = m.detailView()
	default:
		body = m.listView()
	}
	view := fmt.Sprintf("%s\n%s\n%s", m.buildTitleBar(), body, m.footerView())
	if m.modal != modalNone {
		return m.overlayModal(view)
	}
	return view
}

// buildTitleBar shows the mailbox, page position, counters, server version
// and the push connection state.
func (m Model) buildTitleBar() string {
	title := "pitwatch"
	if m.version != "" && m.version != "dev" {
		title = fmt.Sprintf("pitwatch [%s]", m.version)
	}

	mailboxName := "Inbox"
	if f := m.ctrl.Filter(); f != "" {
		mailboxName = fmt.Sprintf("Search %q", f)
	}

	w := m.state.Window()
	cache := m.state.Cache()
	left := fmt.Sprintf("%s - %s", title, mailboxName)
	if w.Total > 0 {
		left += fmt.Sprintf("  page %d/%d", w.Page(), w.Pages())
	}

	right := fmt.Sprintf("%d messages, %d unread", cache.Total, cache.Unread)
	if cache.Total != w.Total && m.ctrl.Filter() != "" {
		right = fmt.Sprintf("%d results, %s", w.Total, right)
	}
	if v := m.state.ServerVersion(); v != "" {
		right += "  Mailpit " + v
	}
	if m.connected {
		right += "  ● live"
	} else {
		right += "  ○ offline"
	}

	line := left
	if gap := m.width - 2 - lipgloss.Width(left) - lipgloss.Width(right); gap > 1 {
		line += strings.Repeat(" ", gap) + right
	}
	return titleBarStyle.Render(padRight(line, max(m.width-2, 0)))
}

// subjectWidth is whatever the fixed columns leave over.
func (m Model) subjectWidth() int {
	return max(m.width-markWidth-fromWidth-dateWidth-sizeWidth-tagsWidth-10, 10)
}

// listView renders the table header, the visible rows and the info line.
func (m Model) listView() string {
	var sb strings.Builder

	subjectWidth := m.subjectWidth()
	header := fmt.Sprintf("%*s%-*s  %-*s  %-*s  %-*s  %*s",
		markWidth, "",
		fromWidth, "From",
		subjectWidth, "Subject",
		tagsWidth, "Tags",
		dateWidth, "Date",
		sizeWidth, "Size",
	)
	sb.WriteString(tableHeaderStyle.Render(padRight(header, m.width)))
	sb.WriteString("\n")
	sb.WriteString(separatorStyle.Render(strings.Repeat("─", m.width)))
	sb.WriteString("\n")

	items := m.state.Cache().Items
	used := 0
	placeholder := false
	switch {
	case m.err != nil && len(items) == 0:
		sb.WriteString(errorStyle.Render(padRight("Error: "+truncateCells(m.err.Error(), m.width), m.width)))
		sb.WriteString("\n")
		used, placeholder = 1, true
	case len(items) == 0 && !m.loading:
		msg := "No messages"
		if m.ctrl.Filter() != "" {
			msg = "No results"
		}
		sb.WriteString(normalRowStyle.Render(padRight(msg, m.width)))
		sb.WriteString("\n")
		used, placeholder = 1, true
	}

	now := time.Now()
	loc := m.settings.Location()
	end := min(m.scroll+m.pageRows, len(items))
	for i := m.scroll; i < end && !placeholder; i++ {
		item := items[i]
		isCursor := i == m.cursor
		isChecked := m.state.Selection.Contains(item.ID)

		var mark string
		switch {
		case isCursor && isChecked:
			mark = selectedIndicatorStyle.Render("▶✓ ")
		case isCursor:
			mark = cursorRowStyle.Render("▶  ")
		case isChecked:
			mark = selectedIndicatorStyle.Render(" ✓ ")
		default:
			mark = "   "
		}

		from := padRight(truncateCells(formatFrom(item.From), fromWidth), fromWidth)
		subject := item.Subject
		if subject == "" {
			subject = "(no subject)"
		}
		if item.Attachments > 0 {
			subject = "📎 " + subject
		}
		subject = padRight(truncateCells(subject, subjectWidth), subjectWidth)
		subject = highlightTerms(subject, m.ctrl.Filter())
		tags := padRight(renderTags(item.Tags, m.settings.ShowTagColors), tagsWidth)

		line := fmt.Sprintf("%s  %s  %s  %-*s  %*s",
			from,
			subject,
			tags,
			dateWidth, formatDate(item.Created, loc, now),
			sizeWidth, formatBytes(item.Size),
		)
		if !item.Read {
			line = unreadStyle.Render(line)
		}

		var style lipgloss.Style
		switch {
		case isCursor:
			style = cursorRowStyle
		case isChecked:
			style = selectedRowStyle
		case i%2 == 0:
			style = normalRowStyle
		default:
			style = altRowStyle
		}
		sb.WriteString(mark)
		sb.WriteString(style.Render(padRight(line, m.width-markWidth)))
		sb.WriteString("\n")
		used++
	}

	for i := used; i < m.pageRows; i++ {
		sb.WriteString(normalRowStyle.Render(strings.Repeat(" ", m.width)))
		sb.WriteString("\n")
	}

	sb.WriteString(m.renderInfoLine(m.infoContent(), m.loading))
	return sb.String()
}

// infoContent is the text of the line above the footer.
func (m Model) infoContent() string {
	switch {
	case *m.inputActive:
		return "/" + m.searchInput.View()
	case m.flashMessage != "":
		return flashStyle.Render(m.flashMessage)
	case m.err != nil:
		return errorStyle.Render("Error: " + truncateCells(m.err.Error(), max(m.width-12, 10)))
	case m.state.Selection.Len() > 0:
		return fmt.Sprintf("%d selected", m.state.Selection.Len())
	}
	return ""
}

func (m Model) spinnerIndicator() string {
	if m.spinnerFrame < len(spinnerFrames) {
		return spinnerFrames[m.spinnerFrame]
	}
	return spinnerFrames[0]
}

// renderInfoLine renders the info line with an optional right-aligned
// loading spinner.
func (m Model) renderInfoLine(content string, loading bool) string {
	// statsStyle has Padding(0, 1) which adds 2 characters
	contentWidth := max(m.width-2, 1)
	if content == "" && !loading {
		return statsStyle.Render(strings.Repeat(" ", contentWidth))
	}
	if loading {
		indicator := m.spinnerIndicator()
		gap := max(contentWidth-lipgloss.Width(content)-lipgloss.Width(indicator), 1)
		content += strings.Repeat(" ", gap) + spinnerStyle.Render(indicator)
	}
	return statsStyle.Render(padRight(content, contentWidth))
}

// detailLines builds the header block and wrapped body of the open message.
func (m Model) detailLines() []string {
	msg := m.detail
	if msg == nil {
		return nil
	}
	loc := m.settings.Location()

	lines := []string{"Subject: " + truncateCells(msg.Subject, max(m.width-11, 10)), ""}
	if !msg.Date.IsZero() {
		lines = append(lines, "Date: "+msg.Date.In(loc).Format("Mon, 02 Jan 2006 15:04:05 MST"))
	}
	if len(msg.From) > 0 {
		lines = append(lines, "From: "+formatAddresses(msg.From))
	}
	if len(msg.To) > 0 {
		lines = append(lines, "To: "+formatAddresses(msg.To))
	}
	if len(msg.Cc) > 0 {
		lines = append(lines, "Cc: "+formatAddresses(msg.Cc))
	}
	if len(msg.ReplyTo) > 0 {
		lines = append(lines, "Reply-To: "+formatAddresses(msg.ReplyTo))
	}
	tags := msg.Tags
	if item, ok := m.state.Cache().Item(m.detailID); ok {
		tags = item.Tags
	}
	if len(tags) > 0 {
		lines = append(lines, "Tags: "+renderTags(tags, m.settings.ShowTagColors))
	}
	if len(msg.Attachments) > 0 {
		lines = append(lines, "", fmt.Sprintf("Attachments (%d):", len(msg.Attachments)))
		for _, att := range msg.Attachments {
			lines = append(lines, fmt.Sprintf("  📎 %s (%s)", att.Filename, formatBytes(float64(att.Size))))
		}
	}

	sepWidth := min(m.width-2, 80)
	if sepWidth < 1 {
		sepWidth = 40
	}
	lines = append(lines, "", strings.Repeat("─", sepWidth), "")

	body := msg.Text()
	if body == "" {
		body = "(No text content)"
	}
	body = strings.ReplaceAll(body, "\r\n", "\n")
	return append(lines, wrapText(body, m.width-2)...)
}

// detailView renders the open message, scrolled to detailScroll.
func (m Model) detailView() string {
	rows := m.detailPageRows()
	var content []string
	switch {
	case m.detailErr != nil:
		content = []string{errorStyle.Render(padRight("Error loading message: "+truncateCells(m.detailErr.Error(), m.width), m.width))}
	case m.detail == nil:
		content = []string{loadingStyle.Render(padRight(m.spinnerIndicator()+" Loading message...", m.width))}
	default:
		lines := m.detailLines()
		end := min(m.detailScroll+rows, len(lines))
		for _, line := range lines[min(m.detailScroll, end):end] {
			content = append(content, normalRowStyle.Render(padRight(line, m.width)))
		}
	}

	var sb strings.Builder
	for _, line := range content {
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	for i := len(content); i < rows; i++ {
		sb.WriteString(normalRowStyle.Render(strings.Repeat(" ", m.width)))
		sb.WriteString("\n")
	}
	sb.WriteString(m.renderNotificationLine())
	return sb.String()
}

// renderNotificationLine shows the flash message, or the loading spinner.
func (m Model) renderNotificationLine() string {
	if m.flashMessage != "" {
		return flashStyle.Render(padRight(" "+m.flashMessage, m.width))
	}
	if m.loading || m.detailLoading {
		return m.renderInfoLine("", true)
	}
	return normalRowStyle.Render(strings.Repeat(" ", m.width))
}

func (m Model) footerView() string {
	var keys []string
	var posStr string

	switch m.level {
	case levelDetail:
		keys = []string{"j/k msg", "↑/↓ scroll", "esc back", "D del", "y copy", "? help"}
		if m.detailNav != nil {
			if i := m.state.Cache().IndexOf(m.detailID); i >= 0 {
				posStr = fmt.Sprintf(" %d/%d ", i+1, m.state.Cache().Len())
			}
		}
	default:
		keys = []string{"↑/↓", "enter", "n/p page", "/ search", "space sel", "m read", "D del", "? help"}
		if n := m.state.Cache().Len(); n > 0 {
			w := m.state.Window()
			posStr = fmt.Sprintf(" %d-%d of %d ", w.Offset+1, w.Offset+n, w.Total)
		}
	}

	left := strings.Join(keys, " │ ")
	gap := max(m.width-2-lipgloss.Width(left)-lipgloss.Width(posStr), 1)
	return footerStyle.Render(padRight(left+strings.Repeat(" ", gap)+posStr, max(m.width-2, 0)))
}

var helpLines = []string{
	"Keys",
	"",
	"↑/↓        move cursor / scroll",
	"j/k        open next / previous message",
	"enter      open message",
	"esc/u      back to list (clears search in list)",
	"n/p ←/→    next / previous page",
	"+/-        page size",
	"/          search",
	"r          reload first page",
	"space      toggle selection",
	"x          clear selection",
	"m          mark read",
	"D          delete",
	"t          tag colors",
	"N          notifications",
	"y          copy message ID",
	"q          quit",
}

func (m Model) renderDeleteConfirmModal() string {
	noun := "message"
	if len(m.pendingIDs) != 1 {
		noun = "messages"
	}
	return modalTitleStyle.Render("Confirm Deletion") + "\n\n" +
		fmt.Sprintf("Delete %d %s from the server?\n\n", len(m.pendingIDs), noun) +
		"[Y] Yes, delete    [N] Cancel"
}

func (m Model) renderHelpModal() string {
	lines := make([]string, len(helpLines))
	copy(lines, helpLines)
	lines[0] = modalTitleStyle.Render(lines[0])
	return strings.Join(lines, "\n")
}

// overlayModal draws the active modal centered over background.
func (m Model) overlayModal(background string) string {
	var content string
	switch m.modal {
	case modalDeleteConfirm:
		content = m.renderDeleteConfirmModal()
	case modalHelp:
		content = m.renderHelpModal()
	}
	if content == "" {
		return background
	}

	modal := modalStyle.Render(content)
	bgLines := strings.Split(background, "\n")
	modalLines := strings.Split(modal, "\n")

	start := max((len(bgLines)-len(modalLines))/2, 0)
	left := max((m.width-lipgloss.Width(modal))/2, 0)
	for i, line := range modalLines {
		row := start + i
		if row >= len(bgLines) {
			break
		}
		bgLines[row] = padRight(strings.Repeat(" ", left)+line, m.width)
	}
	return strings.Join(bgLines, "\n")
}
