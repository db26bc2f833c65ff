package cmd

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/wesm/pitwatch/internal/devserver"
)

var (
	devListen   string
	devSeed     int
	devInterval time.Duration
	devMax      int
	devUsername string
	devPassword string
)

var devserverCmd = &cobra.Command{
	Use:   "devserver",
	Short: "Run a fake Mailpit server for development",
	Long: `Run an in-memory server that speaks the subset of the Mailpit API pitwatch
uses: message listing and search, message source, read status, deletion and
the event stream.

The mailbox starts with --seed generated messages. With --interval set a new
message arrives on that period, which exercises the live view.

Examples:
  pitwatch devserver
  pitwatch devserver --seed 200 --interval 3s --max 500
  pitwatch devserver --listen :8026 --username dev --password secret`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if devSeed < 0 {
			return fmt.Errorf("--seed must not be negative")
		}
		if devInterval < 0 {
			return fmt.Errorf("--interval must not be negative")
		}
		if (devUsername == "") != (devPassword == "") {
			return fmt.Errorf("--username and --password must be set together")
		}

		srv := devserver.New(devserver.Config{
			Username:    devUsername,
			Password:    devPassword,
			MaxMessages: devMax,
			Logger:      logger,
		})
		rng := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))
		n := 0
		addSample := func(date time.Time) error {
			n++
			d := devserver.SampleDraft(n, rng)
			d.Date = date
			_, err := srv.AddMessage(devserver.Compose(d))
			return err
		}
		start := time.Now().Add(-time.Duration(devSeed) * time.Minute)
		for i := range devSeed {
			if err := addSample(start.Add(time.Duration(i) * time.Minute)); err != nil {
				return fmt.Errorf("seed mailbox: %w", err)
			}
		}
		logger.Info("seeded mailbox", "messages", devSeed)

		serverErr := make(chan error, 1)
		go func() {
			if err := srv.ListenAndServe(devListen); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErr <- err
			}
			close(serverErr)
		}()

		var tick <-chan time.Time
		if devInterval > 0 {
			ticker := time.NewTicker(devInterval)
			defer ticker.Stop()
			tick = ticker.C
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Serving on http://%s (Ctrl+C to stop)\n", devListen)
	loop:
		for {
			select {
			case err, ok := <-serverErr:
				if ok {
					return fmt.Errorf("server error: %w", err)
				}
				break loop
			case <-ctx.Done():
				break loop
			case <-tick:
				if err := addSample(time.Now()); err != nil {
					logger.Warn("add message", "err", err)
				}
			}
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "err", err)
		}
		return ctx.Err()
	},
}

func init() {
	rootCmd.AddCommand(devserverCmd)
	devserverCmd.Flags().StringVar(&devListen, "listen", "localhost:8025", "address to listen on")
	devserverCmd.Flags().IntVar(&devSeed, "seed", 50, "number of messages to start with")
	devserverCmd.Flags().DurationVar(&devInterval, "interval", 0, "add a message on this period (0 disables)")
	devserverCmd.Flags().IntVar(&devMax, "max", 0, "prune the oldest messages beyond this count (0 keeps all)")
	devserverCmd.Flags().StringVar(&devUsername, "username", "", "require basic auth with this username")
	devserverCmd.Flags().StringVar(&devPassword, "password", "", "basic auth password")
}
