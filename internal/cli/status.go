package cli

import (
	"fmt"
	"os"

	"github.com/soyeahso/dlscribe/internal/config"
	"github.com/soyeahso/dlscribe/internal/hooks"
	"github.com/soyeahso/dlscribe/internal/version"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show dlscribe status and configuration summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "dlscribe %s (commit %s)\n\n", version.Version, version.Commit)

			// Show paths
			fmt.Fprintf(out, "Config:      %s", paths.Config)
			if _, err := os.Stat(paths.Config); os.IsNotExist(err) {
				fmt.Fprint(out, " (not found, using defaults)")
			}
			fmt.Fprintln(out)
			fmt.Fprintf(out, "Data:        %s\n", paths.Data)
			fmt.Fprintf(out, "Activities:  %s\n", paths.Activities)
			fmt.Fprintf(out, "Transcripts: %s\n", paths.Transcripts)
			fmt.Fprintln(out)

			// Direct Line
			auth := "none"
			switch {
			case cfg.DirectLine.Token != "":
				auth = "token"
			case cfg.DirectLine.Secret != "":
				auth = "secret"
			}
			fmt.Fprintf(out, "Direct Line: url=%s auth=%s timeout=%ds\n",
				cfg.DirectLine.BaseURL, auth, cfg.DirectLine.TimeoutSeconds)

			// Fetch
			pace := "unpaced"
			if cfg.Fetch.PagesPerSecond > 0 {
				pace = fmt.Sprintf("%g pages/s", cfg.Fetch.PagesPerSecond)
			}
			fmt.Fprintf(out, "Fetch:       maxPages=%d retries=%d backoff=%d-%dms concurrency=%d %s\n",
				cfg.Fetch.MaxPages, cfg.Fetch.MaxRetries, cfg.Fetch.BaseBackoffMs, cfg.Fetch.MaxBackoffMs,
				cfg.Fetch.Concurrency, pace)

			// Stream
			fmt.Fprintf(out, "Stream:      idle=%ds ping=%ds skipOwn=%v\n",
				cfg.Stream.IdleTimeoutSeconds, cfg.Stream.PingSeconds, cfg.Stream.SkipOwnActivities())

			// Store
			if cfg.Store.Enabled {
				fmt.Fprintf(out, "Store:       %s\n", paths.Database)
			} else {
				fmt.Fprintln(out, "Store:       (disabled)")
			}

			// Hooks
			m := hooks.NewManager(log)
			if n := m.RegisterConfig(cfg.Hooks); n > 0 {
				for _, event := range m.Events() {
					fmt.Fprintf(out, "Hook:        %s x%d\n", event, m.Count(event))
				}
			} else {
				fmt.Fprintln(out, "Hooks:       (none)")
			}

			// Validation
			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				fmt.Fprintf(out, "\nValidation issues (%d):\n", len(issues))
				for _, issue := range issues {
					fmt.Fprintf(out, "  - %s\n", issue)
				}
			}

			return nil
		},
	}

	return cmd
}
