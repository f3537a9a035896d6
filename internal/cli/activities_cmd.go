package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/soyeahso/dlscribe/internal/directline"
	"github.com/soyeahso/dlscribe/internal/replay"
	"github.com/soyeahso/dlscribe/internal/transcript"
	"github.com/spf13/cobra"
)

// activitiesExport is the document written by the activities command.
type activitiesExport struct {
	ConversationID string                `json:"conversationId"`
	Watermark      string                `json:"watermark,omitempty"`
	Complete       bool                  `json:"complete"`
	Warnings       []string              `json:"warnings,omitempty"`
	Error          string                `json:"error,omitempty"` // why a partial fetch stopped
	Activities     []directline.Activity `json:"activities"`
}

func newActivitiesCmd() *cobra.Command {
	var (
		resume   bool
		toStdout bool
	)

	cmd := &cobra.Command{
		Use:   "activities <conversationId>...",
		Short: "Fetch the raw activity history of conversations",
		Long: "Replays each conversation page by page from its watermark and writes the\n" +
			"activities, unmodified, to <output>/activities/<conversationId>.json.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := splitIDs(args)
			if len(ids) == 0 {
				return directline.ErrEmptyConversationID
			}

			client, err := newClient()
			if err != nil {
				return err
			}
			archive, closeArchive, err := openArchive()
			if err != nil {
				return err
			}
			defer closeArchive()
			if resume && archive == nil {
				return fmt.Errorf("--resume needs the archive (store.enabled)")
			}

			ctx, stop := signalContext()
			defer stop()

			h := newHooks()
			defer h.Wait()
			job := &fetchJob{client: client, hooks: h, archive: archive, resume: resume}
			outcomes := job.run(ctx, ids, cfg.Fetch.Concurrency)

			failed := 0
			for _, o := range outcomes {
				if o.Err != nil {
					failed++
					log.Error().Err(o.Err).Str("conversation", o.ConversationID).Msg("fetch failed")
					if o.Result == nil || len(o.Result.Activities) == 0 {
						continue
					}
				}
				exp := exportOf(o.Result, o.Err)
				if resume {
					// The file always carries the whole history, not just the new pages.
					acts, err := archive.Activities(o.ConversationID)
					if err != nil {
						return fmt.Errorf("reading archived activities: %w", err)
					}
					if acts != nil {
						exp.Activities = acts
					}
				}
				if toStdout {
					if err := writeJSON(cmd.OutOrStdout(), exp); err != nil {
						return err
					}
					continue
				}
				path, err := saveActivities(paths.Activities, exp)
				if err != nil {
					return err
				}
				state := ""
				if !exp.Complete {
					state = " (partial)"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d activities%s -> %s\n", o.ConversationID, len(exp.Activities), state, path)
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d conversation(s) failed", failed, len(ids))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&resume, "resume", false, "continue from the archived watermark and append")
	cmd.Flags().BoolVar(&toStdout, "stdout", false, "write the activities as JSON to stdout instead of a file")
	return cmd
}

// exportOf turns a fetch result into an export document. A non-nil fetchErr
// marks the export partial.
func exportOf(res *replay.Result, fetchErr error) *activitiesExport {
	exp := &activitiesExport{
		ConversationID: res.ConversationID,
		Watermark:      res.Watermark,
		Complete:       res.Complete && fetchErr == nil,
		Activities:     res.Activities,
	}
	if fetchErr != nil {
		exp.Error = fetchErr.Error()
	}
	for _, w := range res.Warnings {
		exp.Warnings = append(exp.Warnings, w.String())
	}
	if exp.Activities == nil {
		exp.Activities = []directline.Activity{}
	}
	return exp
}

// saveActivities writes exp to <dir>/<conversationId>.json.
func saveActivities(dir string, exp *activitiesExport) (string, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("creating activities directory: %w", err)
	}
	path := filepath.Join(dir, transcript.FileName(exp.ConversationID)+".json")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return "", fmt.Errorf("writing activities: %w", err)
	}
	if err := writeJSON(f, exp); err != nil {
		f.Close()
		return "", err
	}
	return path, f.Close()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
