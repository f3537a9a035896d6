package store

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/soyeahso/dlscribe/internal/replay"
)

// Run statuses.
const (
	RunRunning  = "running"
	RunComplete = "complete"
	RunPartial  = "partial"
	RunFailed   = "failed"
)

// FetchRun records one invocation of the replay loop.
type FetchRun struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversationId"`
	StartWatermark string     `json:"startWatermark,omitempty"`
	Status         string     `json:"status"`
	Pages          int        `json:"pages"`
	Activities     int        `json:"activities"`
	Retries        int        `json:"retries"`
	Error          string     `json:"error,omitempty"`
	StartedAt      time.Time  `json:"startedAt"`
	FinishedAt     *time.Time `json:"finishedAt,omitempty"`
}

// StartRun records the start of a fetch and returns its id.
func (a *Archive) StartRun(conversationID, startWatermark string) (string, error) {
	id := uuid.New().String()
	_, err := a.db.sql.Exec(
		`INSERT INTO fetch_runs (id, conversation_id, start_watermark, status, started_at)
		 VALUES (?, ?, ?, ?, ?)`,
		id, conversationID, startWatermark, RunRunning, time.Now().UTC().Format(time.DateTime),
	)
	if err != nil {
		return "", err
	}
	return id, nil
}

// FinishRun records the outcome of a fetch. A failed fetch that still
// accumulated activities is recorded as partial.
func (a *Archive) FinishRun(id string, res *replay.Result, fetchErr error) error {
	status := RunComplete
	var errText sql.NullString
	if fetchErr != nil {
		status = RunFailed
		if res != nil && len(res.Activities) > 0 {
			status = RunPartial
		}
		errText = sql.NullString{String: fetchErr.Error(), Valid: true}
	}

	var pages, acts, retries int
	if res != nil {
		pages, acts, retries = res.Pages, len(res.Activities), res.Retries
	}

	_, err := a.db.sql.Exec(
		`UPDATE fetch_runs
		 SET status = ?, pages = ?, activities = ?, retries = ?, error = ?, finished_at = ?
		 WHERE id = ?`,
		status, pages, acts, retries, errText, time.Now().UTC().Format(time.DateTime), id,
	)
	return err
}

// Runs returns the most recent fetch runs for a conversation, newest first.
// An empty conversationID lists runs for every conversation. Limit of 0
// defaults to 20.
func (a *Archive) Runs(conversationID string, limit int) ([]FetchRun, error) {
	if limit <= 0 {
		limit = 20
	}

	var rows *sql.Rows
	var err error
	if conversationID != "" {
		rows, err = a.db.sql.Query(
			`SELECT id, conversation_id, start_watermark, status, pages, activities, retries, error, started_at, finished_at
			 FROM fetch_runs WHERE conversation_id = ?
			 ORDER BY started_at DESC, rowid DESC LIMIT ?`,
			conversationID, limit,
		)
	} else {
		rows, err = a.db.sql.Query(
			`SELECT id, conversation_id, start_watermark, status, pages, activities, retries, error, started_at, finished_at
			 FROM fetch_runs
			 ORDER BY started_at DESC, rowid DESC LIMIT ?`,
			limit,
		)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []FetchRun
	for rows.Next() {
		var r FetchRun
		var startedAt string
		var errText, finishedAt sql.NullString
		if err := rows.Scan(
			&r.ID, &r.ConversationID, &r.StartWatermark, &r.Status,
			&r.Pages, &r.Activities, &r.Retries, &errText, &startedAt, &finishedAt,
		); err != nil {
			return nil, err
		}
		r.StartedAt, _ = time.Parse(time.DateTime, startedAt)
		if finishedAt.Valid {
			if t, err := time.Parse(time.DateTime, finishedAt.String); err == nil {
				r.FinishedAt = &t
			}
		}
		r.Error = errText.String
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
