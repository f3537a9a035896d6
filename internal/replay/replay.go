// Package replay pages through a conversation's activity history by
// following Direct Line watermarks until the service has nothing new.
package replay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/soyeahso/dlscribe/internal/directline"
	"github.com/soyeahso/dlscribe/internal/logging"
	"golang.org/x/time/rate"
)

// ErrPageLimit is returned with partial results when MaxPages pages were
// fetched without the history ending.
var ErrPageLimit = errors.New("replay: page limit reached")

// Pager fetches one page of activities. *directline.Client implements it.
type Pager interface {
	GetActivities(ctx context.Context, conversationID, watermark string) (*directline.ActivitySet, error)
}

// Options bound a fetch.
type Options struct {
	MaxPages       int           // hard cap on pages per fetch; <= 0 means 1000
	MaxRetries     int           // retries per page for transient errors
	BaseBackoff    time.Duration // first retry delay; <= 0 means 500ms
	MaxBackoff     time.Duration // retry delay ceiling, Retry-After included; <= 0 means 30s
	PagesPerSecond float64       // 0 disables pacing
	StartWatermark string        // resume after this cursor

	// Checkpoint, when set, returns a per-conversation cursor to resume
	// after. A non-empty value overrides StartWatermark.
	Checkpoint func(conversationID string) string

	// OnPage is called after every successful page.
	OnPage func(Page)
}

// Page reports progress after one page.
type Page struct {
	ConversationID string
	Number         int
	Count          int // activities in this page
	Total          int // activities accumulated so far
	Watermark      string
}

// WarningKind names a non-fatal protocol condition.
type WarningKind string

const (
	// WarnRepeatedWatermark means a non-empty page came back with the cursor
	// that requested it. The loop treats this as the end of history.
	WarnRepeatedWatermark WarningKind = "repeated_watermark"
	// WarnMissingWatermark means a non-empty page carried no cursor, so
	// there is nothing to advance to.
	WarnMissingWatermark WarningKind = "missing_watermark"
)

// Warning records a protocol ambiguity that ended the loop.
type Warning struct {
	Kind      WarningKind
	Page      int
	Watermark string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s on page %d (watermark %q)", w.Kind, w.Page, w.Watermark)
}

// Result is the accumulated history of one fetch. It is returned even when
// the fetch fails; Complete tells callers whether it is the whole history.
type Result struct {
	ConversationID string
	StartWatermark string // cursor the fetch resumed after, "" for full history
	Activities     []directline.Activity
	Watermark      string // last cursor received, usable as a checkpoint
	Pages          int
	Retries        int
	Complete       bool
	Warnings       []Warning
}

// Fetcher runs the watermark loop against a Pager.
type Fetcher struct {
	pager   Pager
	opts    Options
	limiter *rate.Limiter
	log     *logging.Logger

	// sleep waits for d or until ctx is done.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Fetcher.
func New(pager Pager, opts Options, log *logging.Logger) *Fetcher {
	if opts.MaxPages <= 0 {
		opts.MaxPages = 1000
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = 500 * time.Millisecond
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 30 * time.Second
	}
	if opts.MaxBackoff < opts.BaseBackoff {
		opts.MaxBackoff = opts.BaseBackoff
	}

	f := &Fetcher{
		pager: pager,
		opts:  opts,
		log:   log.Sub("replay"),
		sleep: sleepCtx,
	}
	if opts.PagesPerSecond > 0 {
		f.limiter = rate.NewLimiter(rate.Limit(opts.PagesPerSecond), 1)
	}
	return f
}

// Fetch pages through the history of conversationID.
//
// The loop ends successfully on an empty page, or on a page whose watermark
// repeats the one that requested it (recorded as a warning). Any
// non-transient error, exhausted retries, cancellation or the page cap end
// it with an error; the activities accumulated so far are always returned.
func (f *Fetcher) Fetch(ctx context.Context, conversationID string) (*Result, error) {
	if conversationID == "" {
		return &Result{}, directline.ErrEmptyConversationID
	}
	watermark := f.opts.StartWatermark
	if f.opts.Checkpoint != nil {
		if wm := f.opts.Checkpoint(conversationID); wm != "" {
			watermark = wm
		}
	}
	res := &Result{ConversationID: conversationID, StartWatermark: watermark, Watermark: watermark}
	log := f.log.With("conversation", conversationID)
	if watermark != "" {
		log.Debug().Str("watermark", watermark).Msg("resuming fetch")
	}

	for {
		if err := ctx.Err(); err != nil {
			log.Warn().Int("pages", res.Pages).Int("activities", len(res.Activities)).Msg("fetch canceled")
			return res, err
		}
		if res.Pages >= f.opts.MaxPages {
			log.Warn().Int("pages", res.Pages).Msg("page limit reached")
			return res, fmt.Errorf("%w (%d pages)", ErrPageLimit, res.Pages)
		}
		if f.limiter != nil {
			if err := f.limiter.Wait(ctx); err != nil {
				return res, err
			}
		}

		set, err := f.fetchPage(ctx, res, conversationID, watermark)
		if err != nil {
			log.Error().Err(err).Int("pages", res.Pages).Int("activities", len(res.Activities)).Msg("fetch failed")
			return res, err
		}
		res.Pages++

		if set == nil || len(set.Activities) == 0 {
			if set != nil && set.Watermark != "" {
				res.Watermark = set.Watermark
			}
			f.notify(res, 0)
			res.Complete = true
			log.Debug().Int("pages", res.Pages).Int("activities", len(res.Activities)).Msg("history exhausted")
			return res, nil
		}

		res.Activities = append(res.Activities, set.Activities...)
		if set.Watermark != "" {
			res.Watermark = set.Watermark
		}
		f.notify(res, len(set.Activities))

		switch {
		case set.Watermark == "":
			f.warn(log, res, WarnMissingWatermark, watermark)
			res.Complete = true
			return res, nil
		case set.Watermark == watermark:
			f.warn(log, res, WarnRepeatedWatermark, watermark)
			res.Complete = true
			return res, nil
		}
		watermark = set.Watermark
	}
}

// fetchPage requests one page, retrying transient failures with capped
// exponential backoff.
func (f *Fetcher) fetchPage(ctx context.Context, res *Result, conversationID, watermark string) (*directline.ActivitySet, error) {
	for attempt := 0; ; attempt++ {
		set, err := f.pager.GetActivities(ctx, conversationID, watermark)
		if err == nil {
			return set, nil
		}
		if !directline.IsTransient(err) || attempt >= f.opts.MaxRetries {
			return nil, err
		}

		delay := f.backoff(attempt, err)
		f.log.Warn().
			Err(err).
			Str("conversation", conversationID).
			Int("attempt", attempt+1).
			Dur("delay", delay).
			Msg("transient error, retrying")
		res.Retries++

		if err := f.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

// backoff returns base*2^attempt, raised to the server's Retry-After and
// capped at MaxBackoff.
func (f *Fetcher) backoff(attempt int, err error) time.Duration {
	d := f.opts.BaseBackoff
	for i := 0; i < attempt && d < f.opts.MaxBackoff; i++ {
		d *= 2
	}
	if ra, ok := directline.RetryAfter(err); ok && ra > d {
		d = ra
	}
	return min(d, f.opts.MaxBackoff)
}

func (f *Fetcher) notify(res *Result, count int) {
	if f.opts.OnPage == nil {
		return
	}
	f.opts.OnPage(Page{
		ConversationID: res.ConversationID,
		Number:         res.Pages,
		Count:          count,
		Total:          len(res.Activities),
		Watermark:      res.Watermark,
	})
}

func (f *Fetcher) warn(log *logging.Logger, res *Result, kind WarningKind, watermark string) {
	w := Warning{Kind: kind, Page: res.Pages, Watermark: watermark}
	res.Warnings = append(res.Warnings, w)
	log.Warn().Str("warning", string(kind)).Int("page", w.Page).Str("watermark", watermark).Msg("ending fetch on ambiguous watermark")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
