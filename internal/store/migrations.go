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
		Name:    "create sessions and messages",
		SQL: `
			CREATE TABLE sessions (
				id          TEXT PRIMARY KEY,
				key_str     TEXT NOT NULL,
				app_name    TEXT NOT NULL,
				user_id     TEXT NOT NULL,
				session_key TEXT NOT NULL,
				state       TEXT NOT NULL DEFAULT '{}',
				created_at  TEXT NOT NULL DEFAULT (datetime('now')),
				updated_at  TEXT NOT NULL DEFAULT (datetime('now'))
			);

			CREATE UNIQUE INDEX idx_sessions_key ON sessions (key_str);

			CREATE TABLE messages (
				id          INTEGER PRIMARY KEY AUTOINCREMENT,
				session_id  TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
				role        TEXT NOT NULL,
				author      TEXT NOT NULL DEFAULT '',
				content     TEXT NOT NULL,
				timestamp   TEXT NOT NULL DEFAULT (datetime('now')),
				tool_calls  TEXT
			);

			CREATE INDEX idx_messages_session ON messages (session_id, id);
			CREATE INDEX idx_messages_author ON messages (session_id, author, id);
		`,
	},
	{
		Version: 2,
		Name:    "create runs and stages",
		SQL: `
			CREATE TABLE runs (
				id          TEXT PRIMARY KEY,
				session_id  TEXT NOT NULL DEFAULT '',
				task        TEXT NOT NULL,
				output_dir  TEXT NOT NULL,
				provider    TEXT NOT NULL DEFAULT '',
				status      TEXT NOT NULL,
				error       TEXT NOT NULL DEFAULT '',
				started_at  TEXT NOT NULL,
				finished_at TEXT NOT NULL DEFAULT ''
			);

			CREATE INDEX idx_runs_started ON runs (started_at);

			CREATE TABLE stages (
				id          INTEGER PRIMARY KEY AUTOINCREMENT,
				run_id      TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
				position    INTEGER NOT NULL,
				agent       TEXT NOT NULL,
				status      TEXT NOT NULL,
				output      TEXT NOT NULL DEFAULT '',
				error       TEXT NOT NULL DEFAULT '',
				tool_calls  INTEGER NOT NULL DEFAULT 0,
				started_at  TEXT NOT NULL,
				duration_ms INTEGER NOT NULL DEFAULT 0
			);

			CREATE INDEX idx_stages_run ON stages (run_id, position);
		`,
	},
	{
		Version: 3,
		Name:    "create artifacts with FTS5",
		SQL: `
			CREATE TABLE artifacts (
				id          INTEGER PRIMARY KEY AUTOINCREMENT,
				run_id      TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
				path        TEXT NOT NULL,
				kind        TEXT NOT NULL,
				agent       TEXT NOT NULL DEFAULT '',
				size        INTEGER NOT NULL DEFAULT 0,
				content     TEXT NOT NULL DEFAULT '',
				written_at  TEXT NOT NULL
			);

			CREATE INDEX idx_artifacts_run ON artifacts (run_id, id);

			CREATE VIRTUAL TABLE artifacts_fts USING fts5(
				path,
				content,
				content='artifacts',
				content_rowid='id'
			);

			CREATE TRIGGER artifacts_ai AFTER INSERT ON artifacts BEGIN
				INSERT INTO artifacts_fts(rowid, path, content)
				VALUES (new.id, new.path, new.content);
			END;

			CREATE TRIGGER artifacts_ad AFTER DELETE ON artifacts BEGIN
				INSERT INTO artifacts_fts(artifacts_fts, rowid, path, content)
				VALUES ('delete', old.id, old.path, old.content);
			END;
		`,
	},
}
