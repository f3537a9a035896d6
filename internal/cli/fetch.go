package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/soyeahso/dlscribe/internal/directline"
	"github.com/soyeahso/dlscribe/internal/hooks"
	"github.com/soyeahso/dlscribe/internal/replay"
	"github.com/soyeahso/dlscribe/internal/store"
)

// fetchJob runs the replay loop for a set of conversations, recording each
// run in the archive and reporting lifecycle events to the hook manager.
type fetchJob struct {
	client  *directline.Client
	hooks   *hooks.Manager
	archive *store.Archive // nil when the store is disabled
	resume  bool           // continue from the archived checkpoint and append
}

// signalContext returns a context canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// run fetches ids with at most workers in flight and returns the outcomes in
// input order. Archive failures are logged and do not fail the fetch.
func (j *fetchJob) run(ctx context.Context, ids []string, workers int) []replay.Outcome {
	starts := make(map[string]string, len(ids))
	runs := make(map[string]string, len(ids))
	for _, id := range ids {
		if j.resume && j.archive != nil {
			wm, ok, err := j.archive.Checkpoint(id)
			switch {
			case err != nil:
				log.Warn().Err(err).Str("conversation", id).Msg("reading checkpoint")
			case ok:
				starts[id] = wm
			}
		}
		if j.archive != nil {
			runID, err := j.archive.StartRun(id, starts[id])
			if err != nil {
				log.Warn().Err(err).Str("conversation", id).Msg("recording fetch run")
			}
			runs[id] = runID
		}
		j.hooks.Emit(ctx, hooks.EventFetchStarted, map[string]any{
			"conversationId": id,
			"runId":          runs[id],
			"watermark":      starts[id],
		})
	}

	opts := fetchOptions()
	opts.Checkpoint = func(id string) string { return starts[id] }
	opts.OnPage = func(p replay.Page) {
		j.hooks.Emit(ctx, hooks.EventPageFetched, map[string]any{
			"conversationId": p.ConversationID,
			"page":           p.Number,
			"count":          p.Count,
			"total":          p.Total,
			"watermark":      p.Watermark,
		})
	}

	fetcher := replay.New(j.client, opts, log)
	outcomes := fetcher.FetchAll(ctx, ids, workers)
	for _, o := range outcomes {
		j.finish(ctx, o, runs[o.ConversationID])
	}
	return outcomes
}

func (j *fetchJob) finish(ctx context.Context, o replay.Outcome, runID string) {
	// Failure hooks still run after an interrupt.
	ctx = context.WithoutCancel(ctx)
	res := o.Result
	resumed := res != nil && res.StartWatermark != ""

	if j.archive != nil && res != nil {
		var err error
		switch {
		case resumed:
			// Partial progress past the checkpoint is still worth keeping.
			err = j.archive.AppendFetch(res)
		case o.Err == nil:
			err = j.archive.SaveFetch(res)
		case len(res.Activities) > 0:
			err = j.savePartial(res)
		}
		if err != nil {
			log.Warn().Err(err).Str("conversation", o.ConversationID).Msg("archiving activities")
		}
		if runID != "" {
			if err := j.archive.FinishRun(runID, res, o.Err); err != nil {
				log.Warn().Err(err).Str("conversation", o.ConversationID).Msg("recording fetch run")
			}
		}
	}

	if o.Err != nil {
		data := map[string]any{
			"conversationId": o.ConversationID,
			"runId":          runID,
			"error":          o.Err.Error(),
		}
		if res != nil {
			data["activities"] = len(res.Activities)
			data["watermark"] = res.Watermark
		}
		j.hooks.Emit(ctx, hooks.EventFetchFailed, data)
		return
	}

	warnings := make([]string, 0, len(res.Warnings))
	for _, w := range res.Warnings {
		warnings = append(warnings, w.String())
	}
	j.hooks.Emit(ctx, hooks.EventFetchFinished, map[string]any{
		"conversationId": o.ConversationID,
		"runId":          runID,
		"activities":     len(res.Activities),
		"pages":          res.Pages,
		"retries":        res.Retries,
		"watermark":      res.Watermark,
		"complete":       res.Complete,
		"warnings":       warnings,
	})
}

// savePartial archives the activities of a failed full fetch so --resume can
// continue from them, unless a complete history is already archived.
func (j *fetchJob) savePartial(res *replay.Result) error {
	prev, err := j.archive.Get(res.ConversationID)
	if err != nil {
		return err
	}
	if prev != nil && prev.Complete {
		log.Warn().
			Str("conversation", res.ConversationID).
			Int("activities", len(res.Activities)).
			Msg("keeping complete archive over partial fetch")
		return nil
	}
	return j.archive.SaveFetch(res)
}
