package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/wesm/pitwatch/internal/mailbox"
	"github.com/wesm/pitwatch/internal/push"
	"github.com/wesm/pitwatch/internal/scheduler"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the mailbox without a UI and log every reconciliation",
	Long: `Run the sync engine headless. The current page is fetched once, then kept
in step with the server's event stream and the sync.resync_schedule. Each
event and each reconciled page is logged to stderr.

Useful to check what the interactive view would do against a live server.

Examples:
  pitwatch watch
  pitwatch watch --search "is:unread" --page-size 10 -v`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		client, err := newRemoteClient(logger)
		if err != nil {
			return err
		}
		if err := checkServer(ctx, client, logger); err != nil {
			return err
		}

		search, pageSize := viewOptions(cmd)
		loop, err := newWatchLoop(client, search, pageSize, logger)
		if err != nil {
			return err
		}
		pc, err := newPushClient(client, logger)
		if err != nil {
			return err
		}

		resync := make(chan struct{}, 1)
		sched := scheduler.New(func(context.Context) error {
			select {
			case resync <- struct{}{}:
			default:
			}
			return nil
		}).WithLogger(logger)
		if err := sched.Set(cfg.Sync.ResyncSchedule); err != nil {
			return fmt.Errorf("sync.resync_schedule: %w", err)
		}
		sched.Start()
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = sched.Stop(stopCtx)
		}()

		g, gctx := errgroup.WithContext(ctx)
		events := make(chan push.Message, 16)
		g.Go(func() error {
			return pc.Run(gctx, events)
		})
		g.Go(func() error {
			return loop.run(gctx, events, resync)
		})
		return g.Wait()
	},
}

// watchLoop drives a controller and router from a single goroutine.
type watchLoop struct {
	state  *mailbox.State
	ctrl   *mailbox.Controller
	router *mailbox.Router
	logger *slog.Logger

	// disconnected is set while the event stream is down; the next
	// successful connection resyncs the page.
	disconnected bool
}

func newWatchLoop(fetcher mailbox.Fetcher, search string, pageSize int, l *slog.Logger) (*watchLoop, error) {
	state := mailbox.NewState()
	ctrl, err := mailbox.NewController(state, fetcher, mailbox.Options{
		Endpoint: endpointFor(search),
		Filter:   search,
		PageSize: pageSize,
		Logger:   l,
	})
	if err != nil {
		return nil, err
	}
	state.OnTotalChange(func(old, new int) {
		l.Info("result count changed", "from", old, "to", new)
	})
	return &watchLoop{
		state:  state,
		ctrl:   ctrl,
		router: mailbox.NewRouter(ctrl),
		logger: l,
	}, nil
}

// run syncs the page, then handles events and resync ticks until ctx ends.
func (l *watchLoop) run(ctx context.Context, events <-chan push.Message, resync <-chan struct{}) error {
	if err := l.sync(ctx, "initial"); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-resync:
			if err := l.sync(ctx, "scheduled"); err != nil {
				return err
			}
		case msg := <-events:
			if err := l.handle(ctx, msg); err != nil {
				return err
			}
		}
	}
}

// handle applies one message from the event stream. Only configuration
// errors are returned; fetch failures are logged and left to the next
// event or resync.
func (l *watchLoop) handle(ctx context.Context, msg push.Message) error {
	switch m := msg.(type) {
	case push.StatusMessage:
		if !m.Connected {
			if !l.disconnected {
				l.logger.Warn("event stream down", "err", m.Err)
			}
			l.disconnected = true
			return nil
		}
		l.logger.Info("event stream connected")
		if l.disconnected {
			l.disconnected = false
			return l.sync(ctx, "reconnect")
		}
		return nil

	case push.EventMessage:
		ev := m.Event
		l.logger.Info("event", "kind", ev.Kind.String(), "id", eventID(ev))
		req, err := l.router.Route(ev)
		if err != nil {
			return err
		}
		l.reconcile(ctx, req, ev.Kind.String())
		return nil
	}
	return nil
}

func (l *watchLoop) sync(ctx context.Context, reason string) error {
	req, err := l.ctrl.Sync()
	if err != nil {
		return err
	}
	l.reconcile(ctx, req, reason)
	return nil
}

func (l *watchLoop) reconcile(ctx context.Context, req *mailbox.Request, reason string) {
	if req == nil {
		return
	}
	res := l.ctrl.Run(ctx, req)
	if res.Err != nil {
		if ctx.Err() == nil {
			l.logger.Warn("reconciliation failed", "reason", reason, "err", res.Err)
		}
		return
	}
	w, c := l.state.Window(), l.state.Cache()
	l.logger.Info("page reconciled",
		"reason", reason,
		"page", w.Page(),
		"pages", w.Pages(),
		"count", w.Count,
		"results", w.Total,
		"total", c.Total,
		"unread", c.Unread,
		"focus", res.Focus.ID)
}

func eventID(ev mailbox.Event) string {
	if ev.Item != nil {
		return ev.Item.ID
	}
	return ev.ID
}

func init() {
	rootCmd.AddCommand(watchCmd)
	addViewFlags(watchCmd)
}
