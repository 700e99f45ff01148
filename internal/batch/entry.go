package batch

import (
	"sync"
	"time"

	"github.com/btouchard/oibench/internal/broadcast"
	"github.com/btouchard/oibench/internal/task"
)

// Entry is one task of a batch together with its log channel and live state.
type Entry struct {
	Task    task.Task
	Channel *broadcast.Channel

	mu         sync.RWMutex
	status     task.Status
	startedAt  time.Time
	finishedAt time.Time
	result     *task.Result
}

func newEntry(t task.Task) *Entry {
	return &Entry{
		Task:    t,
		Channel: broadcast.New("task:" + t.ID),
		status:  task.StatusPending,
	}
}

// SetRunning marks the task as started.
func (e *Entry) SetRunning() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status = task.StatusRunning
	e.startedAt = time.Now()
}

// SetResult stores the task's final result and verdict.
func (e *Entry) SetResult(r task.Result) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status = r.Status
	e.finishedAt = time.Now()
	e.result = &r
}

// Status returns the current status.
func (e *Entry) Status() task.Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.status
}

// Result returns the final result, or false while the task is unresolved.
func (e *Entry) Result() (task.Result, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.result == nil {
		return task.Result{}, false
	}
	return *e.result, true
}

// Snapshot returns a read-consistent copy of the entry state.
func (e *Entry) Snapshot() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return Snapshot{
		ID:            e.Task.ID,
		Prompt:        e.Task.Prompt,
		Status:        e.status,
		StartedAt:     e.startedAt,
		FinishedAt:    e.finishedAt,
		LogChunks:     e.Channel.Len(),
		Observers:     e.Channel.Subscribers(),
		ChannelClosed: e.Channel.IsClosed(),
	}
}

// Snapshot is a read-only copy of an Entry at a point in time.
type Snapshot struct {
	ID            string      `json:"task_id"`
	Prompt        string      `json:"prompt"`
	Status        task.Status `json:"status"`
	StartedAt     time.Time   `json:"started_at,omitzero"`
	FinishedAt    time.Time   `json:"finished_at,omitzero"`
	LogChunks     int         `json:"log_chunks"`
	Observers     int         `json:"observers"`
	ChannelClosed bool        `json:"channel_closed"`
}

// Duration returns the elapsed time from start to finish (or now if still running).
func (s Snapshot) Duration() time.Duration {
	if s.StartedAt.IsZero() {
		return 0
	}
	end := s.FinishedAt
	if end.IsZero() {
		end = time.Now()
	}
	return end.Sub(s.StartedAt)
}

// FormatDuration returns a human-readable duration string.
func (s Snapshot) FormatDuration() string {
	return task.FormatDuration(s.Duration())
}
