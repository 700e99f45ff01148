// Package results collects the terminal record of every task in a batch.
package results

import (
	"errors"
	"fmt"
	"sync"

	"github.com/btouchard/oibench/internal/task"
)

var (
	// ErrDuplicate is returned when a task's result is recorded twice.
	ErrDuplicate = errors.New("result already recorded")
	// ErrComplete is returned when recording beyond the expected count.
	ErrComplete = errors.New("aggregator already complete")
)

// Aggregator is a thread-safe collector of one result per task.
type Aggregator struct {
	mu       sync.Mutex
	results  []task.Result
	seen     map[string]struct{}
	expected int

	done     chan struct{}
	doneOnce sync.Once
}

// NewAggregator creates an aggregator that completes after expected results.
// With expected <= 0 it is complete immediately.
func NewAggregator(expected int) *Aggregator {
	a := &Aggregator{
		seen:     make(map[string]struct{}, max(expected, 0)),
		expected: max(expected, 0),
		done:     make(chan struct{}),
	}
	if a.expected == 0 {
		a.markDone()
	}
	return a
}

// Record appends r. It is safe to call from any worker.
func (a *Aggregator) Record(r task.Result) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.seen[r.TaskID]; ok {
		return fmt.Errorf("task %q: %w", r.TaskID, ErrDuplicate)
	}
	if len(a.results) >= a.expected {
		return fmt.Errorf("task %q: %w", r.TaskID, ErrComplete)
	}

	a.seen[r.TaskID] = struct{}{}
	a.results = append(a.results, r)

	if len(a.results) == a.expected {
		a.markDone()
	}
	return nil
}

// IsComplete reports whether every expected result has been recorded.
func (a *Aggregator) IsComplete() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.results) == a.expected
}

// Done returns a channel closed once the aggregator is complete.
func (a *Aggregator) Done() <-chan struct{} {
	return a.done
}

// Count returns the number of recorded results.
func (a *Aggregator) Count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.results)
}

// Expected returns the number of results the aggregator waits for.
func (a *Aggregator) Expected() int {
	return a.expected
}

// Drain returns a copy of the recorded results in completion order.
func (a *Aggregator) Drain() []task.Result {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]task.Result, len(a.results))
	copy(out, a.results)
	return out
}

func (a *Aggregator) markDone() {
	a.doneOnce.Do(func() { close(a.done) })
}
