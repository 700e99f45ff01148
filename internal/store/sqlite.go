package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/btouchard/oibench/internal/task"
)

const (
	// Fixed width so stored timestamps sort lexicographically.
	timeFormat = "2006-01-02T15:04:05.000000000Z07:00"
	memoryDSN  = ":memory:"
)

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, zero CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database and runs migrations.
// The database file is created with 0600 permissions and its parent directory with 0700.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path != memoryDSN {
		if err := prepareFile(path); err != nil {
			return nil, err
		}
	}

	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite handles one writer at a time
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

func prepareFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating database directory: %w", err)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0600)
		if err != nil {
			return fmt.Errorf("creating database file: %w", err)
		}
		_ = f.Close()
		return nil
	}

	if err := os.Chmod(path, 0600); err != nil {
		return fmt.Errorf("tightening database permissions: %w", err)
	}
	return nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	var current int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version")
	if err := row.Scan(&current); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	for i := current; i < len(migrations); i++ {
		slog.Debug("applying migration", "version", i+1)
		if _, err := s.db.Exec(migrations[i]); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_version (version) VALUES (?)", i+1); err != nil {
			return fmt.Errorf("recording migration %d: %w", i+1, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Batches ---

func (s *SQLiteStore) CreateBatch(ctx context.Context, b *BatchRecord) error {
	cmd, err := json.Marshal(b.Command.Redacted())
	if err != nil {
		return fmt.Errorf("encoding command: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO batches (id, command, task_count, created_at, finished_at)
		VALUES (?, ?, ?, ?, ?)`,
		b.ID, string(cmd), b.TaskCount, formatTime(b.CreatedAt), formatTime(b.FinishedAt))
	if err != nil {
		return fmt.Errorf("inserting batch: %w", err)
	}
	return nil
}

func (s *SQLiteStore) FinishBatch(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, "UPDATE batches SET finished_at = ? WHERE id = ?", formatTime(at), id)
	if err != nil {
		return fmt.Errorf("finishing batch: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("batch %q: %w", id, ErrNotFound)
	}
	return nil
}

const batchColumns = `b.id, b.command, b.task_count, b.created_at, b.finished_at,
	(SELECT COUNT(*) FROM results r WHERE r.batch_id = b.id),
	(SELECT COUNT(*) FROM results r WHERE r.batch_id = b.id AND r.status = 'correct')`

func (s *SQLiteStore) GetBatch(ctx context.Context, id string) (*BatchRecord, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+batchColumns+" FROM batches b WHERE b.id = ?", id)
	b, err := scanBatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("batch %q: %w", id, ErrNotFound)
	}
	return b, err
}

func (s *SQLiteStore) ListBatches(ctx context.Context, limit int) ([]BatchRecord, error) {
	query := "SELECT " + batchColumns + " FROM batches b ORDER BY b.created_at DESC"
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing batches: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var batches []BatchRecord
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, *b)
	}
	return batches, rows.Err()
}

// --- Results ---

// SaveResult stores r, replacing any earlier result for the same task.
func (s *SQLiteStore) SaveResult(ctx context.Context, batchID string, r task.Result) error {
	cmd, err := json.Marshal(r.Command.Redacted())
	if err != nil {
		return fmt.Errorf("encoding command: %w", err)
	}
	msgs := r.Messages
	if msgs == nil {
		msgs = []task.Message{}
	}
	messages, err := json.Marshal(msgs)
	if err != nil {
		return fmt.Errorf("encoding messages: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `INSERT OR REPLACE INTO results
		(batch_id, task_id, prompt, status, command, messages, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		batchID, r.TaskID, r.Prompt, string(r.Status), string(cmd), string(messages),
		formatTime(r.Start), formatTime(r.End))
	if err != nil {
		return fmt.Errorf("saving result: %w", err)
	}
	return nil
}

// ListResults returns a batch's results sorted by task id.
func (s *SQLiteStore) ListResults(ctx context.Context, batchID string) ([]task.Result, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT task_id, prompt, status, command, messages, started_at, finished_at
		FROM results WHERE batch_id = ? ORDER BY task_id`, batchID)
	if err != nil {
		return nil, fmt.Errorf("listing results: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []task.Result
	for rows.Next() {
		var r task.Result
		var status, cmd, messages, startedAt, finishedAt string
		if err := rows.Scan(&r.TaskID, &r.Prompt, &status, &cmd, &messages, &startedAt, &finishedAt); err != nil {
			return nil, fmt.Errorf("scanning result: %w", err)
		}
		if err := json.Unmarshal([]byte(cmd), &r.Command); err != nil {
			return nil, fmt.Errorf("decoding command of %s: %w", r.TaskID, err)
		}
		if err := json.Unmarshal([]byte(messages), &r.Messages); err != nil {
			return nil, fmt.Errorf("decoding messages of %s: %w", r.TaskID, err)
		}
		r.Status = task.Status(status)
		r.Start = parseTime(startedAt)
		r.End = parseTime(finishedAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

// --- Task Events ---

func (s *SQLiteStore) AddEvent(ctx context.Context, e *TaskEvent) error {
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO task_events (batch_id, task_id, event_type, message, created_at) VALUES (?, ?, ?, ?, ?)`,
		e.BatchID, e.TaskID, e.EventType, e.Message, formatTime(createdAt))
	if err != nil {
		return fmt.Errorf("adding event: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		e.ID = id
	}
	return nil
}

// GetEvents returns the newest events first. An empty taskID selects every
// task of the batch.
func (s *SQLiteStore) GetEvents(ctx context.Context, batchID, taskID string, limit int) ([]TaskEvent, error) {
	query := "SELECT id, batch_id, task_id, event_type, message, created_at FROM task_events WHERE batch_id = ?"
	args := []any{batchID}

	if taskID != "" {
		query += " AND task_id = ?"
		args = append(args, taskID)
	}
	query += " ORDER BY created_at DESC, id DESC"

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("getting events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []TaskEvent
	for rows.Next() {
		var e TaskEvent
		var createdAt string
		if err := rows.Scan(&e.ID, &e.BatchID, &e.TaskID, &e.EventType, &e.Message, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		e.CreatedAt = parseTime(createdAt)
		events = append(events, e)
	}
	return events, rows.Err()
}

// --- Helpers ---

type scanner interface {
	Scan(dest ...any) error
}

func scanBatch(row scanner) (*BatchRecord, error) {
	var b BatchRecord
	var cmd, createdAt, finishedAt string

	err := row.Scan(&b.ID, &cmd, &b.TaskCount, &createdAt, &finishedAt, &b.Completed, &b.Correct)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning batch: %w", err)
	}
	if err := json.Unmarshal([]byte(cmd), &b.Command); err != nil {
		return nil, fmt.Errorf("decoding command: %w", err)
	}

	b.CreatedAt = parseTime(createdAt)
	b.FinishedAt = parseTime(finishedAt)
	return &b, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(timeFormat, s)
	return t
}
