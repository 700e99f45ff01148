// Package pool runs the tasks of a batch on a bounded set of workers and
// collects exactly one result per task.
package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/btouchard/oibench/internal/batch"
	"github.com/btouchard/oibench/internal/executor"
	"github.com/btouchard/oibench/internal/lifecycle"
	"github.com/btouchard/oibench/internal/results"
	"github.com/btouchard/oibench/internal/task"
)

// ResultSink persists a finished task's result.
type ResultSink interface {
	SaveResult(ctx context.Context, batchID string, r task.Result) error
}

// HookFunc lets callers register extra lifecycle callbacks for a task.
type HookFunc func(e *batch.Entry, h *lifecycle.Hooks[task.Result])

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithTaskTimeout bounds every task's run. Zero means no bound.
func WithTaskTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.taskTimeout = d }
}

// WithResultSink persists every result once its task is done.
func WithResultSink(sink ResultSink) Option {
	return func(c *Coordinator) { c.sink = sink }
}

// WithHooks adds callbacks around every task, after the built-in ones.
func WithHooks(fn HookFunc) Option {
	return func(c *Coordinator) { c.hooks = append(c.hooks, fn) }
}

// Coordinator executes a batch with at most Workers tasks in flight.
type Coordinator struct {
	exec        executor.Executor
	workers     int
	taskTimeout time.Duration
	sink        ResultSink
	hooks       []HookFunc
}

// NewCoordinator creates a Coordinator. workers <= 0 uses one worker per CPU.
func NewCoordinator(exec executor.Executor, workers int, opts ...Option) *Coordinator {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	c := &Coordinator{
		exec:    exec,
		workers: workers,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Workers returns the concurrency limit.
func (c *Coordinator) Workers() int { return c.workers }

// Run executes every task of b and blocks until each produced a result.
// Results come back in completion order. Cancelling ctx does not interrupt
// tasks already submitted. Every channel of b is closed on return.
func (c *Coordinator) Run(ctx context.Context, b *batch.Batch) []task.Result {
	agg := results.NewAggregator(b.Len())
	taskCtx := context.WithoutCancel(ctx)

	slog.Info("batch started",
		"batch_id", b.ID(),
		"tasks", b.Len(),
		"workers", c.workers)

	var g errgroup.Group
	g.SetLimit(c.workers)

	for _, e := range b.Entries() {
		run := c.hooksFor(ctx, b, e, agg).Wrap(func(ctx context.Context) task.Result {
			return c.runTask(ctx, b, e)
		})
		g.Go(func() error {
			run(taskCtx)
			return nil
		})
	}

	_ = g.Wait()
	<-agg.Done()
	b.Close()

	out := agg.Drain()
	slog.Info("batch completed",
		"batch_id", b.ID(),
		"results", len(out))
	return out
}

func (c *Coordinator) hooksFor(ctx context.Context, b *batch.Batch, e *batch.Entry, agg *results.Aggregator) *lifecycle.Hooks[task.Result] {
	id := e.Task.ID
	h := lifecycle.New[task.Result]()

	h.AddStart(func() {
		e.SetRunning()
		if err := b.Publish(batch.Started(id)); err != nil {
			slog.Debug("publishing start failed", "task_id", id, "error", err)
		}
		slog.Debug("task started", "batch_id", b.ID(), "task_id", id)
	})

	h.AddDone(func(r task.Result) {
		if err := b.Publish(batch.Done(id, r.Status)); err != nil {
			slog.Debug("publishing done failed", "task_id", id, "error", err)
		}
		e.SetResult(r)
		if err := agg.Record(r); err != nil {
			slog.Error("recording result failed", "task_id", id, "error", err)
		}
		e.Channel.Close()
		slog.Info("task done",
			"batch_id", b.ID(),
			"task_id", id,
			"status", r.Status,
			"duration", r.FormatDuration())
	})

	if c.sink != nil {
		h.AddDone(func(r task.Result) {
			if err := c.sink.SaveResult(context.WithoutCancel(ctx), b.ID(), r); err != nil {
				slog.Warn("saving result failed", "task_id", id, "error", err)
			}
		})
	}

	for _, fn := range c.hooks {
		fn(e, h)
	}
	return h
}

// runTask never panics and always returns a result with both timestamps set.
func (c *Coordinator) runTask(ctx context.Context, b *batch.Batch, e *batch.Entry) (res task.Result) {
	res = task.Result{
		TaskID:   e.Task.ID,
		Command:  b.Command(),
		Prompt:   e.Task.Prompt,
		Start:    time.Now(),
		Messages: []task.Message{},
		Status:   task.StatusError,
	}
	rec := taskRecorder{b: b, e: e}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("task panicked",
				"task_id", e.Task.ID,
				"panic", r)
			rec.Log(fmt.Sprintf("task %s panicked: %v\n%s", e.Task.ID, r, debug.Stack()))
			res.Messages = []task.Message{}
			res.Status = task.StatusError
		}
		res.End = time.Now()
	}()

	if c.taskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.taskTimeout)
		defer cancel()
	}

	out, err := c.exec.Execute(ctx, executor.Request{Task: e.Task, Command: b.Command()}, rec)
	if err == nil && out == nil {
		err = errors.New("executor returned no result")
	}
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			slog.Warn("task timed out", "task_id", e.Task.ID)
			err = fmt.Errorf("task timed out after %s: %w", c.taskTimeout, err)
		}
		rec.Log(fmt.Sprintf("task %s failed: %v", e.Task.ID, err))
		return res
	}

	if out.Messages != nil {
		res.Messages = out.Messages
	}
	res.Status = out.Status
	if !res.Status.IsTerminal() {
		res.Status = task.StatusUnknown
	}
	return res
}
