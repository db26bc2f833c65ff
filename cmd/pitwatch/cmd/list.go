package cmd

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/wesm/pitwatch/internal/mailbox"
	"github.com/wesm/pitwatch/internal/textutil"
)

var (
	listPage   int
	listLimit  int
	listSearch string
	listJSON   bool
	listFormat string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Print one page of the mailbox",
	Long: `Fetch a single page of the mailbox, or of a search, and print it.

The page is reconciled the same way the interactive view does it: asking
for a page past the end returns the first page instead.

Examples:
  pitwatch list
  pitwatch list --page 2 --limit 50
  pitwatch list --search "subject:invoice" --json
  pitwatch list --format yaml`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format := listFormat
		if listJSON {
			format = "json"
		}
		switch format {
		case "table", "json", "yaml":
		default:
			return fmt.Errorf("unknown format %q (want table, json or yaml)", format)
		}
		if listPage < 1 {
			return fmt.Errorf("--page must be at least 1")
		}

		search := cfg.View.Search
		if cmd.Flags().Changed("search") {
			search = listSearch
		}
		limit := cfg.View.PageSize
		if cmd.Flags().Changed("limit") {
			limit = listLimit
		}

		client, err := newRemoteClient(logger)
		if err != nil {
			return err
		}
		state := mailbox.NewState()
		ctrl, err := mailbox.NewController(state, client, mailbox.Options{
			Endpoint: endpointFor(search),
			Filter:   search,
			PageSize: limit,
			Logger:   logger,
		})
		if err != nil {
			return err
		}

		ctrl.GoTo((listPage - 1) * limit)
		req, err := ctrl.Sync()
		if err != nil {
			return err
		}
		if res := ctrl.Run(cmd.Context(), req); res.Err != nil {
			return fmt.Errorf("fetch page: %w", res.Err)
		}

		out := newListOutput(state, search)
		w := cmd.OutOrStdout()
		switch format {
		case "json":
			return outputListJSON(w, out)
		case "yaml":
			return outputListYAML(w, out)
		default:
			outputListTable(w, out)
			return nil
		}
	},
}

// listOutput is the machine-readable form of a page.
type listOutput struct {
	Search   string     `json:"search,omitempty" yaml:"search,omitempty"`
	Page     int        `json:"page" yaml:"page"`
	Pages    int        `json:"pages" yaml:"pages"`
	PageSize int        `json:"page_size" yaml:"page_size"`
	Results  int        `json:"results" yaml:"results"`
	Total    int        `json:"total" yaml:"total"`
	Unread   int        `json:"unread" yaml:"unread"`
	Messages []listItem `json:"messages" yaml:"messages"`
}

type listItem struct {
	ID          string    `json:"id" yaml:"id"`
	From        string    `json:"from" yaml:"from"`
	Subject     string    `json:"subject" yaml:"subject"`
	Date        time.Time `json:"date" yaml:"date"`
	Size        int64     `json:"size" yaml:"size"`
	Read        bool      `json:"read" yaml:"read"`
	Attachments int       `json:"attachments" yaml:"attachments"`
	Tags        []string  `json:"tags,omitempty" yaml:"tags,omitempty"`
}

func newListOutput(state *mailbox.State, search string) listOutput {
	w, c := state.Window(), state.Cache()
	out := listOutput{
		Search:   search,
		Page:     w.Page(),
		Pages:    w.Pages(),
		PageSize: w.PageSize,
		Results:  w.Total,
		Total:    c.Total,
		Unread:   c.Unread,
		Messages: make([]listItem, 0, len(c.Items)),
	}
	for _, it := range c.Items {
		from := ""
		if it.From != nil {
			from = it.From.String()
		}
		out.Messages = append(out.Messages, listItem{
			ID:          it.ID,
			From:        from,
			Subject:     it.Subject,
			Date:        it.Created,
			Size:        int64(it.Size),
			Read:        it.Read,
			Attachments: it.Attachments,
			Tags:        it.Tags,
		})
	}
	return out
}

func outputListTable(w io.Writer, out listOutput) {
	if len(out.Messages) == 0 {
		if out.Search != "" {
			fmt.Fprintln(w, "No results.")
		} else {
			fmt.Fprintln(w, "No messages.")
		}
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, " \tID\tFROM\tSUBJECT\tDATE\tTAGS")
	fmt.Fprintln(tw, " \t──\t────\t───────\t────\t────")
	for _, m := range out.Messages {
		mark := "*"
		if m.Read {
			mark = " "
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			mark,
			m.ID,
			textutil.TruncateRunes(textutil.SingleLine(m.From), 30),
			textutil.TruncateRunes(textutil.SingleLine(m.Subject), 50),
			m.Date.Local().Format("2006-01-02 15:04"),
			strings.Join(m.Tags, ","),
		)
	}
	tw.Flush()
	fmt.Fprintf(w, "\nPage %d of %d, %d results (%d messages, %d unread)\n",
		out.Page, out.Pages, out.Results, out.Total, out.Unread)
}

func outputListJSON(w io.Writer, out listOutput) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func outputListYAML(w io.Writer, out listOutput) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(out); err != nil {
		return err
	}
	return enc.Close()
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().IntVar(&listPage, "page", 1, "page number, starting at 1")
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 0, "messages per page (default view.page_size)")
	listCmd.Flags().StringVarP(&listSearch, "search", "s", "", "search query instead of the whole mailbox")
	listCmd.Flags().BoolVar(&listJSON, "json", false, "output as JSON (same as --format json)")
	listCmd.Flags().StringVar(&listFormat, "format", "table", "output format: table, json or yaml")
}
