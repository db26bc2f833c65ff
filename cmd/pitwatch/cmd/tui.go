package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/wesm/pitwatch/internal/fileutil"
	"github.com/wesm/pitwatch/internal/prefs"
	"github.com/wesm/pitwatch/internal/push"
	"github.com/wesm/pitwatch/internal/scheduler"
	"github.com/wesm/pitwatch/internal/tui"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Open the interactive mailbox view",
	Long: `Open an interactive terminal view of the Mailpit mailbox.

The view shows one page at a time and follows the server's event stream:
new messages appear at the top of the first page, deleted messages drop out
and counters stay current. When the stream is down the page is resynced on
reconnect and on the sync.resync_schedule.

Navigation:
  ↑/↓         Move cursor
  n/→, p/←    Next / previous page
  +/-         Larger / smaller page size
  Enter       Open message
  j/k         Open next / previous message
  Esc/u       Back to the list
  /           Search (Esc clears it)

Selection:
  Space       Toggle selection
  x           Clear selection
  m           Mark read
  D           Delete
  q           Quit

Logs are written to pitwatch.log in the home directory.`,
	Args: cobra.NoArgs,
	RunE: runTUI,
}

func runTUI(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	// The alternate screen owns the terminal, so log to a file instead.
	logFile, err := fileutil.SecureOpenFile(cfg.LogPath(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	tuiLogger := slog.New(slog.NewTextHandler(logFile, &slog.HandlerOptions{Level: level}))

	client, err := newRemoteClient(tuiLogger)
	if err != nil {
		return err
	}
	if err := checkServer(ctx, client, tuiLogger); err != nil {
		return err
	}

	store, err := prefs.Open(cfg.PrefsPath())
	if err != nil {
		return fmt.Errorf("open preferences: %w", err)
	}
	defer store.Close()

	search, pageSize := viewOptions(cmd)
	model, err := tui.New(client, tui.Options{
		Version:                Version,
		Search:                 search,
		PageSize:               pageSize,
		Prefs:                  store,
		NotificationsSupported: prefs.NotificationsSupported(os.Stdout.Fd()),
		RequestTimeout:         cfg.Server.Timeout.Duration,
		Logger:                 tuiLogger,
	})
	if err != nil {
		return fmt.Errorf("create view: %w", err)
	}
	p := tea.NewProgram(model, tea.WithAltScreen())

	pc, err := newPushClient(client, tuiLogger)
	if err != nil {
		return err
	}
	sched := scheduler.New(func(context.Context) error {
		p.Send(tui.ResyncMsg{})
		return nil
	}).WithLogger(tuiLogger)
	if err := sched.Set(cfg.Sync.ResyncSchedule); err != nil {
		return fmt.Errorf("sync.resync_schedule: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		<-gctx.Done()
		p.Quit()
		return nil
	})
	events := make(chan push.Message, 16)
	g.Go(func() error {
		return ignoreCanceled(pc.Run(gctx, events))
	})
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case msg := <-events:
				p.Send(tui.PushMsg{Message: msg})
			}
		}
	})

	// Preferences changed by `pitwatch prefs set` or another instance.
	if w, err := prefs.NewWatcher(store.Path(), prefs.DefaultDebounce, tuiLogger); err != nil {
		tuiLogger.Warn("preference changes will not be picked up", "err", err)
	} else {
		g.Go(func() error {
			return w.Run(gctx, func() { p.Send(tui.PrefsChangedMsg{}) })
		})
	}

	sched.Start()
	_, runErr := p.Run()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if err := sched.Stop(stopCtx); err != nil {
		tuiLogger.Warn("scheduler did not stop", "err", err)
	}
	cancel()
	if err := g.Wait(); err != nil {
		tuiLogger.Error("background task failed", "err", err)
	}

	if runErr != nil {
		return fmt.Errorf("run tui: %w", runErr)
	}
	return ctx.Err()
}

func init() {
	rootCmd.AddCommand(tuiCmd)
	addViewFlags(tuiCmd)
}
