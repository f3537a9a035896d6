package replay

import (
	"context"
	"sync"
)

// Outcome is the result of one conversation in FetchAll.
type Outcome struct {
	ConversationID string
	Result         *Result
	Err            error
}

// FetchAll fetches several conversations with at most workers running at
// once. Each fetch owns its own accumulator. Outcomes are returned in the
// order of ids; a failure of one conversation does not stop the others.
func (f *Fetcher) FetchAll(ctx context.Context, ids []string, workers int) []Outcome {
	if workers < 1 {
		workers = 1
	}

	out := make([]Outcome, len(ids))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				out[i] = Outcome{ConversationID: id, Result: &Result{ConversationID: id}, Err: ctx.Err()}
				return
			}
			defer func() { <-sem }()

			res, err := f.Fetch(ctx, id)
			out[i] = Outcome{ConversationID: id, Result: res, Err: err}
		}(i, id)
	}

	wg.Wait()
	return out
}
