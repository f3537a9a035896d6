package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/soyeahso/dlscribe/internal/directline"
	"github.com/soyeahso/dlscribe/internal/replay"
)

// ConversationSummary is one row of the conversations table.
type ConversationSummary struct {
	ID            string    `json:"id"`
	Watermark     string    `json:"watermark"`
	Complete      bool      `json:"complete"`
	FetchedAt     time.Time `json:"fetchedAt"`
	ActivityCount int       `json:"activityCount"`
}

// SearchHit is a message activity matching a full-text query.
type SearchHit struct {
	ConversationID string  `json:"conversationId"`
	Seq            int     `json:"seq"`
	ActivityID     string  `json:"activityId"`
	Timestamp      string  `json:"timestamp"`
	FromID         string  `json:"fromId"`
	Text           string  `json:"text"`
	Rank           float64 `json:"rank"`
}

// Archive stores the raw activities of fetched conversations.
type Archive struct {
	db *DB
}

// NewArchive creates an archive using the given database.
func NewArchive(db *DB) *Archive {
	return &Archive{db: db}
}

// SaveFetch replaces everything archived for res.ConversationID with the
// activities in res.
func (a *Archive) SaveFetch(res *replay.Result) error {
	return a.write(res, true)
}

// AppendFetch adds the activities in res after those already archived, as
// when a fetch resumed from the stored checkpoint.
func (a *Archive) AppendFetch(res *replay.Result) error {
	return a.write(res, false)
}

func (a *Archive) write(res *replay.Result, replace bool) error {
	if res == nil || res.ConversationID == "" {
		return directline.ErrEmptyConversationID
	}

	tx, err := a.db.sql.Begin()
	if err != nil {
		return fmt.Errorf("begin archive: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.DateTime)
	if _, err := tx.Exec(
		`INSERT INTO conversations (id, fetched_at) VALUES (?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		res.ConversationID, now,
	); err != nil {
		return fmt.Errorf("upserting conversation: %w", err)
	}

	next := 0
	if replace {
		if _, err := tx.Exec(`DELETE FROM activities WHERE conversation_id = ?`, res.ConversationID); err != nil {
			return fmt.Errorf("clearing activities: %w", err)
		}
	} else {
		if err := tx.QueryRow(
			`SELECT COALESCE(MAX(seq) + 1, 0) FROM activities WHERE conversation_id = ?`, res.ConversationID,
		).Scan(&next); err != nil {
			return fmt.Errorf("reading last sequence: %w", err)
		}
	}

	stmt, err := tx.Prepare(
		`INSERT INTO activities (conversation_id, seq, activity_id, type, timestamp, from_id, text, raw)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for i, act := range res.Activities {
		raw, err := json.Marshal(act)
		if err != nil {
			return fmt.Errorf("encoding activity %d: %w", i, err)
		}
		var ts, from string
		if act.Timestamp.Valid() {
			ts = act.Timestamp.Time.UTC().Format(time.RFC3339Nano)
		}
		if act.From != nil {
			from = act.From.ID
		}
		if _, err := stmt.Exec(res.ConversationID, next+i, act.ID, act.Type, ts, from, act.Text, string(raw)); err != nil {
			return fmt.Errorf("inserting activity %d: %w", i, err)
		}
	}

	watermark := res.Watermark
	if _, err := tx.Exec(
		`UPDATE conversations
		 SET watermark = CASE WHEN ? = '' THEN watermark ELSE ? END,
		     complete = ?,
		     fetched_at = ?,
		     activity_count = (SELECT COUNT(*) FROM activities WHERE conversation_id = ?)
		 WHERE id = ?`,
		watermark, watermark, res.Complete, now, res.ConversationID, res.ConversationID,
	); err != nil {
		return fmt.Errorf("updating conversation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit archive: %w", err)
	}

	a.db.log.Debug().
		Str("conversation", res.ConversationID).
		Int("activities", len(res.Activities)).
		Bool("replace", replace).
		Msg("fetch archived")
	return nil
}

// Checkpoint returns the last watermark stored for a conversation. ok is
// false when the conversation was never archived or has no watermark.
func (a *Archive) Checkpoint(conversationID string) (watermark string, ok bool, err error) {
	err = a.db.sql.QueryRow(`SELECT watermark FROM conversations WHERE id = ?`, conversationID).Scan(&watermark)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return watermark, watermark != "", nil
}

// Activities reloads a conversation's archived activities in fetch order.
func (a *Archive) Activities(conversationID string) ([]directline.Activity, error) {
	rows, err := a.db.sql.Query(
		`SELECT seq, raw FROM activities WHERE conversation_id = ? ORDER BY seq`, conversationID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var acts []directline.Activity
	for rows.Next() {
		var seq int
		var raw string
		if err := rows.Scan(&seq, &raw); err != nil {
			return nil, err
		}
		var act directline.Activity
		if err := json.Unmarshal([]byte(raw), &act); err != nil {
			return nil, fmt.Errorf("decoding activity %d: %w", seq, err)
		}
		acts = append(acts, act)
	}
	return acts, rows.Err()
}

// Get returns one conversation summary, or nil if it is not archived.
func (a *Archive) Get(conversationID string) (*ConversationSummary, error) {
	row := a.db.sql.QueryRow(
		`SELECT id, watermark, complete, fetched_at, activity_count FROM conversations WHERE id = ?`,
		conversationID,
	)
	s, err := scanSummary(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// List returns all archived conversations, most recently fetched first.
func (a *Archive) List() ([]ConversationSummary, error) {
	rows, err := a.db.sql.Query(
		`SELECT id, watermark, complete, fetched_at, activity_count
		 FROM conversations ORDER BY fetched_at DESC, id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ConversationSummary
	for rows.Next() {
		s, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Delete removes a conversation and its activities.
func (a *Archive) Delete(conversationID string) error {
	tx, err := a.db.sql.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// foreign_keys is per connection, so activities are not left to the cascade.
	if _, err := tx.Exec(`DELETE FROM activities WHERE conversation_id = ?`, conversationID); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM conversations WHERE id = ?`, conversationID); err != nil {
		return err
	}
	return tx.Commit()
}

// Search finds archived message activities whose text or sender matches the
// FTS5 query. Limit of 0 defaults to 20.
func (a *Archive) Search(query string, limit int) ([]SearchHit, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := a.db.sql.Query(
		`SELECT act.conversation_id, act.seq, act.activity_id, act.timestamp, act.from_id, act.text, rank
		 FROM activities_fts
		 JOIN activities act ON act.rowid = activities_fts.rowid
		 WHERE activities_fts MATCH ?
		 ORDER BY rank
		 LIMIT ?`,
		query, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []SearchHit
	for rows.Next() {
		var h SearchHit
		if err := rows.Scan(&h.ConversationID, &h.Seq, &h.ActivityID, &h.Timestamp, &h.FromID, &h.Text, &h.Rank); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSummary(r rowScanner) (ConversationSummary, error) {
	var s ConversationSummary
	var fetchedAt string
	if err := r.Scan(&s.ID, &s.Watermark, &s.Complete, &fetchedAt, &s.ActivityCount); err != nil {
		return s, err
	}
	s.FetchedAt, _ = time.Parse(time.DateTime, fetchedAt)
	return s, nil
}
