package store

// migration represents a single schema migration.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered list of all schema migrations.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create conversations and activities",
		SQL: `
			CREATE TABLE conversations (
				id              TEXT PRIMARY KEY,
				watermark       TEXT NOT NULL DEFAULT '',
				complete        INTEGER NOT NULL DEFAULT 0,
				fetched_at      TEXT NOT NULL DEFAULT (datetime('now')),
				activity_count  INTEGER NOT NULL DEFAULT 0
			);

			CREATE TABLE activities (
				conversation_id  TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
				seq              INTEGER NOT NULL,
				activity_id      TEXT NOT NULL DEFAULT '',
				type             TEXT NOT NULL DEFAULT '',
				timestamp        TEXT NOT NULL DEFAULT '',
				from_id          TEXT NOT NULL DEFAULT '',
				text             TEXT NOT NULL DEFAULT '',
				raw              TEXT NOT NULL,
				PRIMARY KEY (conversation_id, seq)
			);

			CREATE INDEX idx_activities_type ON activities (conversation_id, type);
		`,
	},
	{
		Version: 2,
		Name:    "create fetch runs",
		SQL: `
			CREATE TABLE fetch_runs (
				id               TEXT PRIMARY KEY,
				conversation_id  TEXT NOT NULL,
				start_watermark  TEXT NOT NULL DEFAULT '',
				status           TEXT NOT NULL DEFAULT 'running',
				pages            INTEGER NOT NULL DEFAULT 0,
				activities       INTEGER NOT NULL DEFAULT 0,
				retries          INTEGER NOT NULL DEFAULT 0,
				error            TEXT,
				started_at       TEXT NOT NULL DEFAULT (datetime('now')),
				finished_at      TEXT
			);

			CREATE INDEX idx_fetch_runs_conversation ON fetch_runs (conversation_id, started_at);
		`,
	},
	{
		Version: 3,
		Name:    "create message text search with FTS5",
		SQL: `
			CREATE VIRTUAL TABLE activities_fts USING fts5(
				text,
				from_id,
				content='activities',
				content_rowid='rowid'
			);

			CREATE TRIGGER activities_ai AFTER INSERT ON activities WHEN new.type = 'message' BEGIN
				INSERT INTO activities_fts(rowid, text, from_id)
				VALUES (new.rowid, new.text, new.from_id);
			END;

			CREATE TRIGGER activities_ad AFTER DELETE ON activities WHEN old.type = 'message' BEGIN
				INSERT INTO activities_fts(activities_fts, rowid, text, from_id)
				VALUES ('delete', old.rowid, old.text, old.from_id);
			END;
		`,
	},
}
