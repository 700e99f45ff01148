package store

// migrations are applied in order; the index+1 is the schema version.
var migrations = []string{
	`CREATE TABLE batches (
		id          TEXT PRIMARY KEY,
		command     TEXT NOT NULL DEFAULT '{}',
		task_count  INTEGER NOT NULL DEFAULT 0,
		created_at  TEXT NOT NULL,
		finished_at TEXT NOT NULL DEFAULT ''
	);
	CREATE TABLE results (
		batch_id    TEXT NOT NULL REFERENCES batches(id) ON DELETE CASCADE,
		task_id     TEXT NOT NULL,
		prompt      TEXT NOT NULL DEFAULT '',
		status      TEXT NOT NULL,
		command     TEXT NOT NULL DEFAULT '{}',
		messages    TEXT NOT NULL DEFAULT '[]',
		started_at  TEXT NOT NULL DEFAULT '',
		finished_at TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (batch_id, task_id)
	);
	CREATE INDEX idx_results_status ON results(batch_id, status);`,

	`CREATE TABLE task_events (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		batch_id   TEXT NOT NULL,
		task_id    TEXT NOT NULL,
		event_type TEXT NOT NULL,
		message    TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);
	CREATE INDEX idx_task_events_task ON task_events(batch_id, task_id, created_at);`,
}
