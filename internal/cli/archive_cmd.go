package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/soyeahso/dlscribe/internal/store"
	"github.com/spf13/cobra"
)

func newArchiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Inspect the local activity archive",
	}

	cmd.AddCommand(newArchiveListCmd())
	cmd.AddCommand(newArchiveShowCmd())
	cmd.AddCommand(newArchiveSearchCmd())
	cmd.AddCommand(newArchiveRunsCmd())
	cmd.AddCommand(newArchiveDeleteCmd())

	return cmd
}

// withArchive opens the archive for a subcommand, failing when the store is
// disabled.
func withArchive(fn func(a *store.Archive) error) error {
	a, closeArchive, err := openArchive()
	if err != nil {
		return err
	}
	defer closeArchive()
	if a == nil {
		return fmt.Errorf("archive is disabled (store.enabled: false)")
	}
	return fn(a)
}

func newArchiveListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List archived conversations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			return withArchive(func(a *store.Archive) error {
				convs, err := a.List()
				if err != nil {
					return err
				}
				if len(convs) == 0 {
					fmt.Fprintln(out, "No archived conversations.")
					return nil
				}

				total := 0
				for _, c := range convs {
					state := "complete"
					if !c.Complete {
						state = "partial"
					}
					fmt.Fprintf(out, "%-40s %10s activities  %-8s  fetched %s\n",
						c.ID, humanize.Comma(int64(c.ActivityCount)), state, humanize.Time(c.FetchedAt))
					total += c.ActivityCount
				}

				footer := fmt.Sprintf("\n%d conversation(s), %s activities", len(convs), humanize.Comma(int64(total)))
				if fi, err := os.Stat(paths.Database); err == nil {
					footer += ", " + humanize.Bytes(uint64(fi.Size()))
				}
				fmt.Fprintln(out, footer)
				return nil
			})
		},
	}
}

func newArchiveShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <conversationId>",
		Short: "Show an archived conversation and its recent fetch runs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			return withArchive(func(a *store.Archive) error {
				c, err := a.Get(args[0])
				if err != nil {
					return err
				}
				if c == nil {
					return fmt.Errorf("conversation %s is not archived", args[0])
				}

				fmt.Fprintf(out, "Conversation: %s\n", c.ID)
				fmt.Fprintf(out, "Watermark:    %s\n", c.Watermark)
				fmt.Fprintf(out, "Complete:     %v\n", c.Complete)
				fmt.Fprintf(out, "Activities:   %s\n", humanize.Comma(int64(c.ActivityCount)))
				fmt.Fprintf(out, "Fetched:      %s (%s)\n", c.FetchedAt.Local().Format("2006-01-02 15:04:05"), humanize.Time(c.FetchedAt))

				runs, err := a.Runs(c.ID, 5)
				if err != nil {
					return err
				}
				if len(runs) > 0 {
					fmt.Fprintln(out, "\nRecent runs:")
					printRuns(out, runs)
				}
				return nil
			})
		},
	}
}

func newArchiveSearchCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search <query>...",
		Short: "Full-text search over archived messages",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			return withArchive(func(a *store.Archive) error {
				hits, err := a.Search(strings.Join(args, " "), limit)
				if err != nil {
					return fmt.Errorf("search: %w", err)
				}
				if len(hits) == 0 {
					fmt.Fprintln(out, "No matches.")
					return nil
				}
				for _, h := range hits {
					fmt.Fprintf(out, "%s #%d [%s] %s: %s\n", h.ConversationID, h.Seq, h.Timestamp, h.FromID, h.Text)
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of matches")
	return cmd
}

func newArchiveRunsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs [conversationId]",
		Short: "List recent fetch runs",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var id string
			if len(args) == 1 {
				id = args[0]
			}
			out := cmd.OutOrStdout()
			return withArchive(func(a *store.Archive) error {
				runs, err := a.Runs(id, limit)
				if err != nil {
					return err
				}
				if len(runs) == 0 {
					fmt.Fprintln(out, "No fetch runs.")
					return nil
				}
				printRuns(out, runs)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs")
	return cmd
}

func newArchiveDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <conversationId>",
		Short: "Remove a conversation and its activities from the archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withArchive(func(a *store.Archive) error {
				if err := a.Delete(args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
				return nil
			})
		},
	}
}

func printRuns(out io.Writer, runs []store.FetchRun) {
	for _, r := range runs {
		id := r.ID
		if len(id) > 8 {
			id = id[:8]
		}
		line := fmt.Sprintf("  %s  %-36s %-8s %d pages, %s activities, %d retries, started %s",
			id, r.ConversationID, r.Status, r.Pages, humanize.Comma(int64(r.Activities)), r.Retries,
			humanize.Time(r.StartedAt))
		if r.Error != "" {
			line += "\n      error: " + r.Error
		}
		fmt.Fprintln(out, line)
	}
}
