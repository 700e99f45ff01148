package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/btouchard/oibench/internal/store"
)

// EventStore is the slice of store.Store the recorder needs.
type EventStore interface {
	AddEvent(ctx context.Context, e *store.TaskEvent) error
}

// EventRecorder writes every event to the audit table.
type EventRecorder struct {
	store   EventStore
	timeout time.Duration
}

func NewEventRecorder(s EventStore) *EventRecorder {
	return &EventRecorder{store: s, timeout: 5 * time.Second}
}

func (r *EventRecorder) Notify(event Event) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	err := r.store.AddEvent(ctx, &store.TaskEvent{
		BatchID:   event.BatchID,
		TaskID:    event.TaskID,
		EventType: event.Type,
		Message:   event.Message,
		CreatedAt: event.At,
	})
	if err != nil {
		slog.Warn("recording event failed",
			"batch_id", event.BatchID,
			"task_id", event.TaskID,
			"error", err)
	}
}
