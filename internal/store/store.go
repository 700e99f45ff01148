package store

import (
	"context"
	"errors"
	"time"

	"github.com/btouchard/oibench/internal/task"
)

// ErrNotFound is returned when a batch does not exist.
var ErrNotFound = errors.New("not found")

// Store is the persistence interface for benchmark runs.
// Defined at the consumer side per Go conventions.
type Store interface {
	// Batches
	CreateBatch(ctx context.Context, b *BatchRecord) error
	FinishBatch(ctx context.Context, id string, at time.Time) error
	GetBatch(ctx context.Context, id string) (*BatchRecord, error)
	ListBatches(ctx context.Context, limit int) ([]BatchRecord, error)

	// Results
	SaveResult(ctx context.Context, batchID string, r task.Result) error
	ListResults(ctx context.Context, batchID string) ([]task.Result, error)

	// Task events
	AddEvent(ctx context.Context, e *TaskEvent) error
	GetEvents(ctx context.Context, batchID, taskID string, limit int) ([]TaskEvent, error)

	Close() error
}

// BatchRecord represents a persisted batch run.
type BatchRecord struct {
	ID         string
	Command    task.Command
	TaskCount  int
	CreatedAt  time.Time
	FinishedAt time.Time

	// Filled on reads from the results table.
	Completed int
	Correct   int
}

// TaskEvent represents a timestamped lifecycle event for the audit trail.
type TaskEvent struct {
	ID        int64
	BatchID   string
	TaskID    string
	EventType string
	Message   string
	CreatedAt time.Time
}
