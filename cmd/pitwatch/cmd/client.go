package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/wesm/pitwatch/internal/mailbox"
	"github.com/wesm/pitwatch/internal/push"
	"github.com/wesm/pitwatch/internal/remote"
)

var (
	viewSearch   string
	viewPageSize int
)

// addViewFlags registers the flags that choose the initial list view.
func addViewFlags(c *cobra.Command) {
	c.Flags().StringVarP(&viewSearch, "search", "s", "", "search query (overrides view.search)")
	c.Flags().IntVar(&viewPageSize, "page-size", 0, "messages per page (overrides view.page_size)")
}

// viewOptions merges the view flags over the configured defaults.
func viewOptions(c *cobra.Command) (search string, pageSize int) {
	search, pageSize = cfg.View.Search, cfg.View.PageSize
	if c.Flags().Changed("search") {
		search = viewSearch
	}
	if c.Flags().Changed("page-size") {
		pageSize = mailbox.ClampPageSize(viewPageSize)
	}
	return search, pageSize
}

// endpointFor returns the list endpoint serving search.
func endpointFor(search string) string {
	if search == "" {
		return remote.MessagesPath
	}
	return remote.SearchPath
}

func newRemoteClient(l *slog.Logger) (*remote.Client, error) {
	client, err := remote.New(remote.Config{
		URL:           cfg.Server.URL,
		Username:      cfg.Server.Username,
		Password:      cfg.Server.Password,
		AllowInsecure: cfg.Server.AllowInsecure,
		Timeout:       cfg.Server.Timeout.Duration,
		Logger:        l,
	})
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}
	return client, nil
}

func newPushClient(client *remote.Client, l *slog.Logger) (*push.Client, error) {
	username, password, _ := client.BasicAuth()
	pc, err := push.New(push.Config{
		URL:          client.EventsURL(),
		Username:     username,
		Password:     password,
		ReconnectMin: cfg.Sync.ReconnectMin.Duration,
		ReconnectMax: cfg.Sync.ReconnectMax.Duration,
		Logger:       l,
	})
	if err != nil {
		return nil, fmt.Errorf("create event stream client: %w", err)
	}
	return pc, nil
}

// checkServer refuses servers older than remote.MinServerVersion. An
// unreachable server is only logged; the sync engine retries on its own.
func checkServer(ctx context.Context, client *remote.Client, l *slog.Logger) error {
	info, err := client.Info(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		l.Warn("server info unavailable", "url", client.BaseURL(), "err", err)
		return nil
	}
	if err := remote.CheckVersion(info.Version); err != nil {
		return err
	}
	l.Debug("connected to server", "url", client.BaseURL(), "version", info.Version, "messages", info.Messages)
	return nil
}

// ignoreCanceled drops the context.Canceled every background loop returns
// on shutdown.
func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
