// Package batch is the registry shared by the worker pool and the observer
// server: the tasks of one run, a log channel per task, and the updates
// channel carrying batch-wide lifecycle events.
package batch

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/btouchard/oibench/internal/broadcast"
	"github.com/btouchard/oibench/internal/task"
)

// ErrUnknownTask is returned when a task id is not part of the batch.
var ErrUnknownTask = errors.New("unknown task")

// Batch holds everything one coordinator invocation shares with observers.
// Its task set is fixed at construction, so lookups need no locking.
type Batch struct {
	id        string
	command   task.Command
	createdAt time.Time

	order   []string
	entries map[string]*Entry
	updates *broadcast.Channel
}

// NewID returns a time-ordered batch identifier.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// New builds a batch from tasks in submission order. Task ids must be unique.
func New(id string, tasks []task.Task, cmd task.Command) (*Batch, error) {
	if id == "" {
		id = NewID()
	}

	b := &Batch{
		id:        id,
		command:   cmd,
		createdAt: time.Now(),
		order:     make([]string, 0, len(tasks)),
		entries:   make(map[string]*Entry, len(tasks)),
		updates:   broadcast.New("updates"),
	}

	for _, t := range tasks {
		if t.ID == "" {
			return nil, errors.New("task with empty id")
		}
		if _, ok := b.entries[t.ID]; ok {
			return nil, fmt.Errorf("duplicate task id %q", t.ID)
		}
		b.order = append(b.order, t.ID)
		b.entries[t.ID] = newEntry(t)
	}

	return b, nil
}

// ID returns the batch id.
func (b *Batch) ID() string { return b.id }

// Command returns the command every task runs with.
func (b *Batch) Command() task.Command { return b.command }

// CreatedAt returns when the batch was built.
func (b *Batch) CreatedAt() time.Time { return b.createdAt }

// Len returns the number of tasks.
func (b *Batch) Len() int { return len(b.order) }

// IDs returns the task ids in submission order.
func (b *Batch) IDs() []string {
	out := make([]string, len(b.order))
	copy(out, b.order)
	return out
}

// Tasks returns the tasks in submission order.
func (b *Batch) Tasks() []task.Task {
	out := make([]task.Task, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.entries[id].Task)
	}
	return out
}

// Entries returns the entries in submission order.
func (b *Batch) Entries() []*Entry {
	out := make([]*Entry, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.entries[id])
	}
	return out
}

// Lookup returns the entry for a task id.
func (b *Batch) Lookup(id string) (*Entry, error) {
	e, ok := b.entries[id]
	if !ok {
		return nil, fmt.Errorf("task %q: %w", id, ErrUnknownTask)
	}
	return e, nil
}

// Updates returns the batch-wide lifecycle channel.
func (b *Batch) Updates() *broadcast.Channel { return b.updates }

// Publish writes u to the updates channel.
func (b *Batch) Publish(u Update) error {
	return b.updates.WriteJSON(u)
}

// Stop closes a task's log channel early, disconnecting its observers.
// It reports false when the channel was already closed.
func (b *Batch) Stop(id string) (bool, error) {
	e, err := b.Lookup(id)
	if err != nil {
		return false, err
	}
	if e.Channel.IsClosed() {
		return false, nil
	}
	e.Channel.Close()
	return true, nil
}

// Close closes every task channel, then the updates channel.
func (b *Batch) Close() {
	for _, id := range b.order {
		b.entries[id].Channel.Close()
	}
	b.updates.Close()
}
