package cmd

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/wesm/pitwatch/internal/mailbox"
	"github.com/wesm/pitwatch/internal/remote"
	"github.com/wesm/pitwatch/internal/testutil"
)

// loadedState fetches the page at offset from a fixed mailbox of n items.
func loadedState(t *testing.T, n, pageSize, offset int) *mailbox.State {
	t.Helper()
	state := mailbox.NewState()
	ctrl, err := mailbox.NewController(state, newPageFetcher(n), mailbox.Options{
		Endpoint: remote.MessagesPath,
		PageSize: pageSize,
		Logger:   testutil.DiscardLogger(),
	})
	testutil.MustNoErr(t, err, "NewController")
	ctrl.GoTo(offset)
	req, err := ctrl.Sync()
	testutil.MustNoErr(t, err, "Sync")
	if res := ctrl.Run(context.Background(), req); res.Err != nil {
		t.Fatalf("Run() error = %v", res.Err)
	}
	return state
}

func TestNewListOutput(t *testing.T) {
	out := newListOutput(loadedState(t, 60, 25, 25), "")

	if out.Page != 2 || out.Pages != 3 || out.PageSize != 25 {
		t.Errorf("page %d/%d size %d, want 2/3 size 25", out.Page, out.Pages, out.PageSize)
	}
	if out.Results != 60 || out.Total != 60 || out.Unread != 30 {
		t.Errorf("results=%d total=%d unread=%d", out.Results, out.Total, out.Unread)
	}
	if len(out.Messages) != 25 {
		t.Fatalf("messages = %d, want 25", len(out.Messages))
	}
	first := out.Messages[0]
	if first.ID != "id-035" || first.From != "Alice <alice@example.com>" || first.Size != 2048 {
		t.Errorf("first message = %+v", first)
	}
}

func TestNewListOutput_PastEndPrunesToFirstPage(t *testing.T) {
	out := newListOutput(loadedState(t, 10, 25, 100), "")
	if out.Page != 1 || len(out.Messages) != 10 {
		t.Errorf("page = %d with %d messages, want page 1 with 10", out.Page, len(out.Messages))
	}
}

func TestOutputListTable(t *testing.T) {
	var buf bytes.Buffer
	outputListTable(&buf, newListOutput(loadedState(t, 3, 25, 0), ""))

	testutil.AssertContainsAll(t, buf.String(), []string{
		"ID", "FROM", "SUBJECT",
		"id-003", "Message 3", "Alice <alice@example.com>", "work",
		"Page 1 of 1, 3 results",
	})
}

func TestOutputListTable_Empty(t *testing.T) {
	var buf bytes.Buffer
	outputListTable(&buf, listOutput{})
	if got := strings.TrimSpace(buf.String()); got != "No messages." {
		t.Errorf("empty mailbox = %q", got)
	}

	buf.Reset()
	outputListTable(&buf, listOutput{Search: "nothing"})
	if got := strings.TrimSpace(buf.String()); got != "No results." {
		t.Errorf("empty search = %q", got)
	}
}

func TestOutputListJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := outputListJSON(&buf, newListOutput(loadedState(t, 3, 25, 0), "from:alice")); err != nil {
		t.Fatalf("outputListJSON: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, buf.String())
	}
	if got["search"] != "from:alice" {
		t.Errorf("search = %v", got["search"])
	}
	msgs, ok := got["messages"].([]any)
	if !ok || len(msgs) != 3 {
		t.Fatalf("messages = %v", got["messages"])
	}
	if id := msgs[0].(map[string]any)["id"]; id != "id-003" {
		t.Errorf("first id = %v", id)
	}
}

func TestOutputListYAML(t *testing.T) {
	var buf bytes.Buffer
	if err := outputListYAML(&buf, newListOutput(loadedState(t, 2, 25, 0), "")); err != nil {
		t.Fatalf("outputListYAML: %v", err)
	}

	var got listOutput
	if err := yaml.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid YAML: %v\n%s", err, buf.String())
	}
	if got.Page != 1 || len(got.Messages) != 2 || got.Messages[1].ID != "id-001" {
		t.Errorf("decoded = %+v", got)
	}
	if strings.Contains(buf.String(), "search:") {
		t.Error("empty search should be omitted")
	}
}
