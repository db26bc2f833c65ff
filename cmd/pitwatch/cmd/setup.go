package cmd

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/wesm/pitwatch/internal/config"
	"github.com/wesm/pitwatch/internal/mailbox"
	"github.com/wesm/pitwatch/internal/scheduler"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive first-run configuration",
	Long: `Walk through the settings pitwatch needs and write them to config.toml in
the home directory. Existing values are offered as defaults.`,
	Args: cobra.NoArgs,
	RunE: runSetup,
}

// setupValues holds the form fields as strings, the way huh edits them.
type setupValues struct {
	URL            string
	Username       string
	Password       string
	AllowInsecure  bool
	Timeout        string
	PageSize       int
	Search         string
	ResyncSchedule string
}

func setupValuesFrom(c *config.Config) setupValues {
	return setupValues{
		URL:            c.Server.URL,
		Username:       c.Server.Username,
		Password:       c.Server.Password,
		AllowInsecure:  c.Server.AllowInsecure,
		Timeout:        c.Server.Timeout.String(),
		PageSize:       c.View.PageSize,
		Search:         c.View.Search,
		ResyncSchedule: c.Sync.ResyncSchedule,
	}
}

// apply copies v into c and validates the result. c is left unchanged on
// error.
func (v setupValues) apply(c *config.Config) error {
	timeout, err := time.ParseDuration(strings.TrimSpace(v.Timeout))
	if err != nil {
		return fmt.Errorf("timeout: %w", err)
	}
	if err := scheduler.Validate(strings.TrimSpace(v.ResyncSchedule)); err != nil {
		return err
	}

	next := *c
	next.Server.URL = strings.TrimSpace(v.URL)
	next.Server.Username = strings.TrimSpace(v.Username)
	next.Server.Password = v.Password
	next.Server.AllowInsecure = v.AllowInsecure
	next.Server.Timeout = config.Duration{Duration: timeout}
	next.View.PageSize = mailbox.ClampPageSize(v.PageSize)
	next.View.Search = strings.TrimSpace(v.Search)
	next.Sync.ResyncSchedule = strings.TrimSpace(v.ResyncSchedule)
	if err := next.Validate(); err != nil {
		return err
	}
	*c = next
	return nil
}

func validateServerURL(s string) error {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return errors.New("enter an http:// or https:// URL, e.g. http://localhost:8025")
	}
	return nil
}

func validateDuration(s string) error {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil || d < 0 {
		return errors.New("enter a duration such as 15s")
	}
	return nil
}

func setupForm(v *setupValues) *huh.Form {
	sizes := make([]huh.Option[int], 0, len(mailbox.PageSizes))
	for _, n := range mailbox.PageSizes {
		sizes = append(sizes, huh.NewOption(strconv.Itoa(n), n))
	}

	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Mailpit URL").
				Description("Base URL of the web UI and API").
				Value(&v.URL).
				Validate(validateServerURL),
			huh.NewConfirm().
				Title("Allow plain http?").
				Description("Mailpit serves http by default; only use it on trusted networks").
				Value(&v.AllowInsecure),
			huh.NewInput().
				Title("Username").
				Description("Leave empty if the server has no basic auth").
				Value(&v.Username),
			huh.NewInput().
				Title("Password").
				EchoMode(huh.EchoModePassword).
				Value(&v.Password),
			huh.NewInput().
				Title("Request timeout").
				Value(&v.Timeout).
				Validate(validateDuration),
		),
		huh.NewGroup(
			huh.NewSelect[int]().
				Title("Messages per page").
				Options(sizes...).
				Value(&v.PageSize),
			huh.NewInput().
				Title("Initial search").
				Description("Empty shows the whole mailbox").
				Value(&v.Search),
			huh.NewInput().
				Title("Fallback resync schedule").
				Description("Cron expression or @every 10m; empty disables").
				Value(&v.ResyncSchedule).
				Validate(func(s string) error {
					return scheduler.Validate(strings.TrimSpace(s))
				}),
		),
	)
}

func runSetup(cmd *cobra.Command, args []string) error {
	v := setupValuesFrom(cfg)
	if err := setupForm(&v).RunWithContext(cmd.Context()); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			fmt.Fprintln(cmd.OutOrStdout(), "Setup cancelled.")
			return nil
		}
		return err
	}
	if err := v.apply(cfg); err != nil {
		return err
	}
	if err := cfg.Save(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Configuration saved to %s\n", cfg.ConfigFilePath())
	return nil
}

func init() {
	rootCmd.AddCommand(setupCmd)
}
