package tui

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/wesm/pitwatch/internal/mailbox"
	"github.com/wesm/pitwatch/internal/prefs"
	"github.com/wesm/pitwatch/internal/remote"
)

// colorProfileMu serializes tests that mutate the global lipgloss color profile.
var colorProfileMu sync.Mutex

// forceColorProfile sets lipgloss to ANSI color output for tests that assert
// on styled output and restores the original profile via t.Cleanup.
func forceColorProfile(t *testing.T) {
	t.Helper()
	colorProfileMu.Lock()
	orig := lipgloss.ColorProfile()
	lipgloss.SetColorProfile(termenv.ANSI)
	t.Cleanup(func() {
		lipgloss.SetColorProfile(orig)
		colorProfileMu.Unlock()
	})
}

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]`)

func stripANSI(s string) string {
	return ansiPattern.ReplaceAllString(s, "")
}

// fakeClient serves a mutable in-memory mailbox, newest first.
type fakeClient struct {
	mu       sync.Mutex
	items    []mailbox.Item
	requests []mailbox.Request
	read     [][]string
	deleted  [][]string
	fetchErr error
}

func newFakeClient(n int) *fakeClient {
	c := &fakeClient{}
	for i := n; i >= 1; i-- {
		c.items = append(c.items, testItem(i))
	}
	return c
}

func testItem(i int) mailbox.Item {
	return mailbox.Item{
		ID:      fmt.Sprintf("id-%03d", i),
		Subject: fmt.Sprintf("Message %d", i),
		From:    &mailbox.Address{Name: fmt.Sprintf("Sender %d", i), Address: fmt.Sprintf("s%d@example.com", i)},
		Created: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Minute),
		Size:    1024,
	}
}

// prepend adds a new message at the top of the mailbox.
func (c *fakeClient) prepend(item mailbox.Item) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append([]mailbox.Item{item}, c.items...)
}

func (c *fakeClient) setFetchErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetchErr = err
}

func (c *fakeClient) FetchPage(_ context.Context, req mailbox.Request) (*mailbox.Page, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
	if c.fetchErr != nil {
		return nil, c.fetchErr
	}

	items := c.items
	if req.Endpoint == remote.SearchPath {
		items = nil
		for _, it := range c.items {
			if strings.Contains(strings.ToLower(it.Subject), strings.ToLower(req.Filter)) {
				items = append(items, it)
			}
		}
	}
	page := &mailbox.Page{
		Total:         len(c.items),
		MessagesCount: len(items),
		Start:         req.Start,
	}
	for _, it := range c.items {
		if !it.Read {
			page.Unread++
		}
	}
	if req.Start < len(items) {
		end := min(req.Start+req.Limit, len(items))
		page.Items = slices.Clone(items[req.Start:end])
	}
	return page, nil
}

func (c *fakeClient) MessageRaw(_ context.Context, id string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, it := range c.items {
		if it.ID == id {
			raw := fmt.Sprintf("From: %s <%s>\r\nTo: dev@example.com\r\nSubject: %s\r\n"+
				"Date: Wed, 01 May 2024 12:00:00 +0000\r\nContent-Type: text/plain\r\n\r\nBody of %s\r\n",
				it.From.Name, it.From.Address, it.Subject, it.ID)
			return []byte(raw), nil
		}
	}
	return nil, errors.New("not found")
}

func (c *fakeClient) SetReadStatus(_ context.Context, ids []string, read bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.read = append(c.read, slices.Clone(ids))
	for i := range c.items {
		if slices.Contains(ids, c.items[i].ID) {
			c.items[i].Read = read
		}
	}
	return nil
}

func (c *fakeClient) DeleteMessages(_ context.Context, ids []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleted = append(c.deleted, slices.Clone(ids))
	c.items = slices.DeleteFunc(c.items, func(it mailbox.Item) bool {
		return slices.Contains(ids, it.ID)
	})
	return nil
}

func (c *fakeClient) requestLog() []mailbox.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.requests)
}

func (c *fakeClient) lastRequest(t *testing.T) mailbox.Request {
	t.Helper()
	reqs := c.requestLog()
	if len(reqs) == 0 {
		t.Fatal("no requests issued")
	}
	return reqs[len(reqs)-1]
}

// memPrefs is an in-memory PrefsStore.
type memPrefs struct {
	mu sync.Mutex
	s  prefs.Settings
}

func (p *memPrefs) Load() (prefs.Settings, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.s, nil
}

func (p *memPrefs) Update(fn func(*prefs.Settings)) (prefs.Settings, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(&p.s)
	return p.s, nil
}

// newTestModel returns a sized model whose first page has been loaded.
func newTestModel(t *testing.T, client *fakeClient, opts Options) Model {
	t.Helper()
	if opts.PageSize == 0 {
		opts.PageSize = 25
	}
	m, err := New(client, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	m, _ = sendMsg(t, m, tea.WindowSizeMsg{Width: 120, Height: 30})
	return runCmd(t, m, m.Init())
}

// sendKey sends a key through Update and returns the concrete Model.
func sendKey(t *testing.T, m Model, k tea.KeyMsg) (Model, tea.Cmd) {
	t.Helper()
	newM, cmd := m.Update(k)
	return newM.(Model), cmd
}

// sendMsg sends any tea.Msg through Update and returns the concrete Model.
func sendMsg(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	newM, cmd := m.Update(msg)
	return newM.(Model), cmd
}

// press sends k and runs the commands it returns to completion.
func press(t *testing.T, m Model, k tea.KeyMsg) Model {
	t.Helper()
	m, cmd := sendKey(t, m, k)
	return runCmd(t, m, cmd)
}

// deliver sends msg and runs the commands it returns to completion.
func deliver(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	m, cmd := sendMsg(t, m, msg)
	return runCmd(t, m, cmd)
}

// cmdTimeout bounds how long a command may block. Timer commands (spinner
// and flash expiry) are abandoned.
const cmdTimeout = 200 * time.Millisecond

// runCmd executes cmd and feeds every resulting message back into the
// model until no work is left.
func runCmd(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	for _, msg := range collect(cmd) {
		switch msg.(type) {
		case spinnerTickMsg, flashClearMsg:
			continue
		}
		var next tea.Cmd
		m, next = sendMsg(t, m, msg)
		m = runCmd(t, m, next)
	}
	return m
}

func collect(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	ch := make(chan tea.Msg, 1)
	go func() { ch <- cmd() }()

	var msg tea.Msg
	select {
	case msg = <-ch:
	case <-time.After(cmdTimeout):
		return nil
	}

	batch, ok := msg.(tea.BatchMsg)
	if !ok {
		if msg == nil {
			return nil
		}
		return []tea.Msg{msg}
	}
	results := make([][]tea.Msg, len(batch))
	var wg sync.WaitGroup
	for i, c := range batch {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = collect(c)
		}()
	}
	wg.Wait()
	var out []tea.Msg
	for _, r := range results {
		out = append(out, r...)
	}
	return out
}

// keyRune returns a KeyMsg for a single rune, e.g. keyRune('x').
func keyRune(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func keyEnter() tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyEnter}
}

func keyEsc() tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyEscape}
}

func keyDown() tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyDown}
}

func keyRight() tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRight}
}

// typeText sends each rune of s as a key press.
func typeText(t *testing.T, m Model, s string) Model {
	t.Helper()
	for _, r := range s {
		m, _ = sendKey(t, m, keyRune(r))
	}
	return m
}

func assertLevel(t *testing.T, m Model, expected viewLevel) {
	t.Helper()
	if m.level != expected {
		t.Errorf("level = %v, want %v", m.level, expected)
	}
}

func assertFocused(t *testing.T, m Model, id string) {
	t.Helper()
	if got := m.focusedID(); got != id {
		t.Errorf("focused = %q, want %q (cursor %d)", got, id, m.cursor)
	}
}

func assertRequestCount(t *testing.T, c *fakeClient, expected int) {
	t.Helper()
	if got := len(c.requestLog()); got != expected {
		t.Errorf("requests = %d, want %d: %+v", got, expected, c.requestLog())
	}
}
