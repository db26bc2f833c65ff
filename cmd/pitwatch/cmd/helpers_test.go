package cmd

import (
	"context"
	"fmt"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/wesm/pitwatch/internal/devserver"
	"github.com/wesm/pitwatch/internal/mailbox"
	"github.com/wesm/pitwatch/internal/remote"
	"github.com/wesm/pitwatch/internal/testutil"
)

// pageFetcher serves n fixed items, newest first.
type pageFetcher struct {
	items []mailbox.Item
}

func newPageFetcher(n int) *pageFetcher {
	f := &pageFetcher{}
	for i := n; i >= 1; i-- {
		f.items = append(f.items, mailbox.Item{
			ID:      fmt.Sprintf("id-%03d", i),
			Subject: fmt.Sprintf("Message %d", i),
			From:    &mailbox.Address{Name: "Alice", Address: "alice@example.com"},
			Created: time.Date(2024, 5, 1, 12, i, 0, 0, time.UTC),
			Size:    2048,
			Read:    i%2 == 0,
			Tags:    []string{"work"},
		})
	}
	return f
}

func (f *pageFetcher) FetchPage(_ context.Context, req mailbox.Request) (*mailbox.Page, error) {
	page := &mailbox.Page{
		Total:         len(f.items),
		Unread:        len(f.items) / 2,
		MessagesCount: len(f.items),
		Start:         req.Start,
	}
	if req.Start >= len(f.items) {
		return page, nil
	}
	end := min(req.Start+req.Limit, len(f.items))
	page.Items = f.items[req.Start:end]
	return page, nil
}

// countingFetcher counts requests passed to the wrapped fetcher.
type countingFetcher struct {
	mailbox.Fetcher
	mu sync.Mutex
	n  int
}

func (f *countingFetcher) FetchPage(ctx context.Context, req mailbox.Request) (*mailbox.Page, error) {
	f.mu.Lock()
	f.n++
	f.mu.Unlock()
	return f.Fetcher.FetchPage(ctx, req)
}

func (f *countingFetcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.n
}

// newDevServer starts a development server and returns it with a client.
func newDevServer(t *testing.T) (*devserver.Server, *remote.Client) {
	t.Helper()
	srv := devserver.New(devserver.Config{Logger: testutil.DiscardLogger()})
	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		_ = srv.Shutdown(context.Background())
		hs.Close()
	})
	client, err := remote.New(remote.Config{
		URL:           hs.URL,
		AllowInsecure: true,
		MaxRetries:    -1,
		Logger:        testutil.DiscardLogger(),
	})
	testutil.MustNoErr(t, err, "remote.New")
	return srv, client
}

func addMessage(t *testing.T, srv *devserver.Server, subject string) remote.MessageSummary {
	t.Helper()
	sum, err := srv.AddMessage(devserver.Compose(devserver.Draft{Subject: subject}))
	testutil.MustNoErr(t, err, "AddMessage")
	return sum
}
