package devserver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/wesm/pitwatch/internal/mailbox"
	"github.com/wesm/pitwatch/internal/push"
	"github.com/wesm/pitwatch/internal/remote"
	"github.com/wesm/pitwatch/internal/testutil"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testServer struct {
	srv    *Server
	http   *httptest.Server
	client *remote.Client
}

func newTestServer(t *testing.T, cfg Config) *testServer {
	t.Helper()
	cfg.Logger = discardLogger()
	s := New(cfg)
	hs := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		_ = s.Shutdown(context.Background())
		hs.Close()
	})
	c, err := remote.New(remote.Config{
		URL:           hs.URL,
		Username:      cfg.Username,
		Password:      cfg.Password,
		AllowInsecure: true,
		MaxRetries:    -1,
		Logger:        discardLogger(),
	})
	testutil.MustNoErr(t, err, "remote.New")
	return &testServer{srv: s, http: hs, client: c}
}

func (ts *testServer) seed(t *testing.T, n int) []string {
	t.Helper()
	ids := make([]string, n)
	for i := range n {
		sum, err := ts.srv.AddMessage(Compose(Draft{Subject: "message " + string(rune('a'+i%26))}))
		testutil.MustNoErr(t, err, "AddMessage")
		ids[i] = sum.ID
	}
	return ids
}

func TestServer_ListThroughClient(t *testing.T) {
	ts := newTestServer(t, Config{})
	ids := ts.seed(t, 7)

	page, err := ts.client.FetchPage(context.Background(), mailbox.Request{
		Endpoint: remote.MessagesPath, Start: 5, Limit: 5,
	})
	if err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}
	if page.Total != 7 || page.MessagesCount != 7 || page.Start != 5 || len(page.Items) != 2 {
		t.Fatalf("page = %+v", page)
	}
	if page.Items[0].ID != ids[1] || page.Items[1].ID != ids[0] {
		t.Errorf("items = %s, %s; want oldest last", page.Items[0].ID, page.Items[1].ID)
	}
}

func TestServer_SearchRequiresQuery(t *testing.T) {
	ts := newTestServer(t, Config{})
	ts.seed(t, 3)

	_, err := ts.client.FetchPage(context.Background(), mailbox.Request{Endpoint: remote.SearchPath, Limit: 10})
	var te *mailbox.TransportError
	if !errors.As(err, &te) || te.StatusCode != http.StatusBadRequest {
		t.Fatalf("FetchPage(search, no query) error = %v, want 400", err)
	}
	if !strings.Contains(err.Error(), "no search query") {
		t.Errorf("error = %v", err)
	}

	page, err := ts.client.FetchPage(context.Background(), mailbox.Request{
		Endpoint: remote.SearchPath, Limit: 10, Filter: "subject:message",
	})
	if err != nil {
		t.Fatal(err)
	}
	if page.MessagesCount != 3 {
		t.Errorf("MessagesCount = %d, want 3", page.MessagesCount)
	}
}

func TestServer_BasicAuth(t *testing.T) {
	ts := newTestServer(t, Config{Username: "admin", Password: "secret"})
	if _, err := ts.client.Info(context.Background()); err != nil {
		t.Fatalf("Info() with credentials error = %v", err)
	}

	resp, err := http.Get(ts.http.URL + remote.InfoPath)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status without credentials = %d, want 401", resp.StatusCode)
	}
}

func TestServer_MutationsThroughClient(t *testing.T) {
	ts := newTestServer(t, Config{})
	ids := ts.seed(t, 3)
	ctx := context.Background()

	if err := ts.client.SetReadStatus(ctx, ids[:2], true); err != nil {
		t.Fatal(err)
	}
	info, err := ts.client.Info(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if info.Messages != 3 || info.Unread != 1 || info.Version != DefaultVersion {
		t.Errorf("info = %+v", info)
	}

	raw, err := ts.client.MessageRaw(ctx, ids[0])
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), "Subject: message a") {
		t.Errorf("raw = %q", raw)
	}

	if err := ts.client.DeleteMessages(ctx, ids[:1]); err != nil {
		t.Fatal(err)
	}
	if _, err := ts.client.MessageRaw(ctx, ids[0]); err == nil {
		t.Error("MessageRaw() of a deleted message succeeded")
	}
	if total, _ := ts.srv.Store().Counts(); total != 2 {
		t.Errorf("total = %d, want 2", total)
	}
}

// subscribe starts a push client and waits until the server has
// registered it.
func subscribe(t *testing.T, ts *testServer) <-chan push.Message {
	t.Helper()
	pc, err := push.New(push.Config{
		URL:          ts.client.EventsURL(),
		ReconnectMin: 10 * time.Millisecond,
		ReconnectMax: 50 * time.Millisecond,
		Logger:       discardLogger(),
	})
	testutil.MustNoErr(t, err, "push.New")

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan push.Message, 64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = pc.Run(ctx, out)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	deadline := time.Now().Add(5 * time.Second)
	for ts.srv.Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return out
}

// nextEvent skips status messages and returns the next event.
func nextEvent(t *testing.T, ch <-chan push.Message) mailbox.Event {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case m := <-ch:
			if ev, ok := m.(push.EventMessage); ok {
				return ev.Event
			}
		case <-timeout:
			t.Fatal("timed out waiting for an event")
			return mailbox.Event{}
		}
	}
}

func TestServer_EventStream(t *testing.T) {
	ts := newTestServer(t, Config{MaxMessages: 2, StatsPerSecond: 1000})
	events := subscribe(t, ts)

	sum, err := ts.srv.AddMessage(Compose(Draft{Subject: "hello", Tags: []string{"x"}}))
	if err != nil {
		t.Fatal(err)
	}
	ev := nextEvent(t, events)
	if ev.Kind != mailbox.EventCreated || ev.ID != sum.ID || ev.Item == nil || ev.Item.Subject != "hello" {
		t.Fatalf("first event = %+v", ev)
	}
	if ev = nextEvent(t, events); ev.Kind != mailbox.EventStats || ev.Total != 1 || ev.Unread != 1 {
		t.Fatalf("second event = %+v", ev)
	}

	ts.srv.SetTags([]string{sum.ID}, []string{"y"})
	if ev = nextEvent(t, events); ev.Kind != mailbox.EventUpdated || ev.ID != sum.ID {
		t.Fatalf("tag event = %+v", ev)
	}
	testutil.AssertStrings(t, ev.Tags, "y")

	ts.srv.DeleteMessages([]string{sum.ID})
	if ev = nextEvent(t, events); ev.Kind != mailbox.EventDeleted || ev.ID != sum.ID {
		t.Fatalf("delete event = %+v", ev)
	}
	if ev = nextEvent(t, events); ev.Kind != mailbox.EventStats || ev.Total != 0 {
		t.Fatalf("stats after delete = %+v", ev)
	}

	// Three adds with a limit of two prunes once.
	for i := range 3 {
		if _, err := ts.srv.AddMessage(Compose(Draft{Subject: "bulk"})); err != nil {
			t.Fatal(err)
		}
		if ev = nextEvent(t, events); ev.Kind != mailbox.EventCreated {
			t.Fatalf("add %d: event = %+v", i, ev)
		}
		if i == 2 {
			if ev = nextEvent(t, events); ev.Kind != mailbox.EventTruncated {
				t.Fatalf("expected prune, got %+v", ev)
			}
		}
		if ev = nextEvent(t, events); ev.Kind != mailbox.EventStats {
			t.Fatalf("add %d: expected stats, got %+v", i, ev)
		}
	}
}

func TestServer_StatsThrottled(t *testing.T) {
	ts := newTestServer(t, Config{StatsPerSecond: 2})
	events := subscribe(t, ts)

	for range 5 {
		if _, err := ts.srv.AddMessage(Compose(Draft{Subject: "burst"})); err != nil {
			t.Fatal(err)
		}
	}

	created, stats := 0, 0
	var last mailbox.Event
	for created < 5 || last.Total != 5 {
		ev := nextEvent(t, events)
		switch ev.Kind {
		case mailbox.EventCreated:
			created++
		case mailbox.EventStats:
			stats++
			last = ev
		}
	}
	if stats >= 5 {
		t.Errorf("got %d stats notifications for 5 adds, want throttling", stats)
	}
}
