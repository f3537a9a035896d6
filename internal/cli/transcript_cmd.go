package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/soyeahso/dlscribe/internal/directline"
	"github.com/soyeahso/dlscribe/internal/hooks"
	"github.com/soyeahso/dlscribe/internal/replay"
	"github.com/soyeahso/dlscribe/internal/store"
	"github.com/soyeahso/dlscribe/internal/transcript"
	"github.com/spf13/cobra"
)

func newTranscriptCmd() *cobra.Command {
	var (
		format      string
		fromArchive bool
		noSave      bool
	)

	cmd := &cobra.Command{
		Use:   "transcript <conversationId>...",
		Short: "Build chronological message transcripts of conversations",
		Long: "Fetches the full history of each conversation, keeps the message activities\n" +
			"and orders them by timestamp. Transcripts are saved to\n" +
			"<output>/transcripts/<conversationId>.json.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch format {
			case "", "text", "json":
			default:
				return fmt.Errorf("unknown format %q (want text or json)", format)
			}
			ids := splitIDs(args)
			if len(ids) == 0 {
				return directline.ErrEmptyConversationID
			}

			archive, closeArchive, err := openArchive()
			if err != nil {
				return err
			}
			defer closeArchive()

			ctx, stop := signalContext()
			defer stop()

			h := newHooks()
			defer h.Wait()

			var outcomes []replay.Outcome
			if fromArchive {
				if archive == nil {
					return fmt.Errorf("--from-archive needs the archive (store.enabled)")
				}
				for _, id := range ids {
					acts, err := archivedActivities(archive, id)
					outcomes = append(outcomes, replay.Outcome{
						ConversationID: id,
						Result:         &replay.Result{ConversationID: id, Activities: acts},
						Err:            err,
					})
				}
			} else {
				client, err := newClient()
				if err != nil {
					return err
				}
				job := &fetchJob{client: client, hooks: h, archive: archive}
				outcomes = job.run(ctx, ids, cfg.Fetch.Concurrency)
			}

			failed := 0
			for _, o := range outcomes {
				if o.Err != nil {
					failed++
					ev := log.Error().Err(o.Err).Str("conversation", o.ConversationID)
					if o.Result != nil {
						ev = ev.Int("activities", len(o.Result.Activities))
					}
					ev.Msg("transcript not built")
					continue
				}
				if err := emitTranscript(ctx, cmd.OutOrStdout(), h, o.Result, format, noSave); err != nil {
					return err
				}
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d conversation(s) failed", failed, len(ids))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "", "print the transcript to stdout as text or json")
	cmd.Flags().BoolVar(&fromArchive, "from-archive", false, "build from archived activities without fetching")
	cmd.Flags().BoolVar(&noSave, "no-save", false, "do not write the transcript file")
	return cmd
}

// emitTranscript projects res, saves and prints it, and fires
// transcript_built.
func emitTranscript(ctx context.Context, w io.Writer, h *hooks.Manager, res *replay.Result, format string, noSave bool) error {
	t := transcript.Build(res.ConversationID, res.Activities, log)

	var path string
	if !noSave {
		var err error
		path, err = transcript.Save(paths.Transcripts, t)
		if err != nil {
			return err
		}
	}

	switch format {
	case "text":
		fmt.Fprint(w, transcript.Format(t))
	case "json":
		if err := writeJSON(w, t); err != nil {
			return err
		}
	default:
		if path != "" {
			fmt.Fprintf(w, "%s: %d messages -> %s\n", t.ConversationID, len(t.Messages), path)
		} else {
			fmt.Fprintf(w, "%s: %d messages\n", t.ConversationID, len(t.Messages))
		}
	}

	h.Emit(ctx, hooks.EventTranscriptBuilt, map[string]any{
		"conversationId": t.ConversationID,
		"messages":       len(t.Messages),
		"activities":     len(res.Activities),
		"path":           path,
	})
	return nil
}

// archivedActivities reloads an archived conversation, failing when it was
// never fetched.
func archivedActivities(archive *store.Archive, id string) ([]directline.Activity, error) {
	sum, err := archive.Get(id)
	if err != nil {
		return nil, err
	}
	if sum == nil {
		return nil, fmt.Errorf("conversation %s is not archived", id)
	}
	return archive.Activities(id)
}
