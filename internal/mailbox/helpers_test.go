package mailbox

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// makeItems returns n items with IDs "1".."n", newest first like the
// server lists them.
func makeItems(n int) []Item {
	items := make([]Item, n)
	for i := range items {
		items[i] = Item{
			ID:      fmt.Sprint(i + 1),
			Subject: fmt.Sprintf("message %d", i+1),
			Read:    i%3 == 0,
		}
	}
	return items
}

// fakeServer serves pages out of an in-memory list and records every
// request it receives.
type fakeServer struct {
	items []Item
	err   error
	calls []Request
	// serve overrides the default paging when set.
	serve func(req Request) (*Page, error)
}

func (f *fakeServer) FetchPage(_ context.Context, req Request) (*Page, error) {
	f.calls = append(f.calls, req)
	if f.serve != nil {
		return f.serve(req)
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.page(req.Start, req.Limit), nil
}

func (f *fakeServer) page(start, limit int) *Page {
	var items []Item
	if start < len(f.items) {
		items = f.items[start:min(start+limit, len(f.items))]
	}
	unread := 0
	for _, it := range f.items {
		if !it.Read {
			unread++
		}
	}
	return &Page{
		Total:          len(f.items),
		Unread:         unread,
		MessagesCount:  len(f.items),
		MessagesUnread: unread,
		Start:          start,
		Items:          items,
	}
}

func (f *fakeServer) deleteID(id string) {
	for i, it := range f.items {
		if it.ID == id {
			f.items = append(f.items[:i:i], f.items[i+1:]...)
			return
		}
	}
}

type testEnv struct {
	state  *State
	ctrl   *Controller
	server *fakeServer
	errs   []error
}

func newTestEnv(t *testing.T, items int) *testEnv {
	t.Helper()
	env := &testEnv{
		state:  NewState(),
		server: &fakeServer{items: makeItems(items)},
	}
	ctrl, err := NewController(env.state, env.server, Options{
		Endpoint: "/api/v1/messages",
		Logger:   discardLogger(),
		OnError:  func(err error) { env.errs = append(env.errs, err) },
	})
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	env.ctrl = ctrl
	return env
}

// sync runs a full Sync cycle and fails the test on a transport error.
func (e *testEnv) sync(t *testing.T) Result {
	t.Helper()
	req, err := e.ctrl.Sync()
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	res := e.ctrl.Run(context.Background(), req)
	if res.Err != nil {
		t.Fatalf("Run: %v", res.Err)
	}
	return res
}

func (e *testEnv) goTo(t *testing.T, offset int) {
	t.Helper()
	e.ctrl.GoTo(offset)
	e.sync(t)
}
