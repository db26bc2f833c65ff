package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/wesm/pitwatch/internal/prefs"
)

var prefsCmd = &cobra.Command{
	Use:   "prefs",
	Short: "Show or change display preferences",
	Long: `Show or change the display preferences shared with the interactive view.
A running view picks up changes immediately.

Keys:
  hideTagColors   show tags without colors (true/false)
  hideHTMLCheck   hide the HTML check summary (true/false)
  hideLinkCheck   hide the link check summary (true/false)
  hideSpamCheck   hide the spam check summary (true/false)
  timeZone        IANA zone for dates, empty for local time
  notifications   notify about new messages (true/false)

Examples:
  pitwatch prefs list
  pitwatch prefs get timeZone
  pitwatch prefs set timeZone Europe/Berlin
  pitwatch prefs set hideTagColors ""`,
}

var prefsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored preferences",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := prefs.Open(cfg.PrefsPath())
		if err != nil {
			return fmt.Errorf("open preferences: %w", err)
		}
		defer store.Close()

		m, err := store.Entries()
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		if len(m) == 0 {
			fmt.Fprintln(w, "All preferences are at their defaults.")
			return nil
		}
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		for _, kv := range prefs.SortedEntries(m) {
			fmt.Fprintf(tw, "%s\t%s\n", kv[0], kv[1])
		}
		return tw.Flush()
	},
}

var prefsGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print a stored preference (empty for the default)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := prefs.Open(cfg.PrefsPath())
		if err != nil {
			return fmt.Errorf("open preferences: %w", err)
		}
		defer store.Close()

		v, err := store.Get(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), v)
		return nil
	},
}

var prefsSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change a preference; an empty value restores the default",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := prefs.Open(cfg.PrefsPath())
		if err != nil {
			return fmt.Errorf("open preferences: %w", err)
		}
		defer store.Close()

		if err := store.Set(args[0], args[1]); err != nil {
			return err
		}
		logger.Debug("preference updated", "key", args[0], "value", args[1])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(prefsCmd)
	prefsCmd.AddCommand(prefsListCmd, prefsGetCmd, prefsSetCmd)
}
