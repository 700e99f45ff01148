package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/btouchard/oibench/internal/task"
)

// FakeExecutor answers every task in-process without a worker. It replies
// with the task's expected answer, which makes it useful for dry runs of the
// whole pipeline.
type FakeExecutor struct {
	Delay time.Duration
	Judge task.Judge
}

func (e *FakeExecutor) Execute(ctx context.Context, req Request, rec Recorder) (*Result, error) {
	if rec == nil {
		rec = DiscardRecorder
	}
	start := time.Now()

	messages := []task.Message{
		{Role: "user", Type: "message", Content: req.Task.Prompt},
	}
	rec.Log("fake run started")

	if e.Delay > 0 {
		select {
		case <-time.After(e.Delay):
		case <-ctx.Done():
			return &Result{Status: task.StatusError, Duration: time.Since(start)}, fmt.Errorf("fake run: %w", ctx.Err())
		}
	}

	answer := req.Task.Expected
	if answer == "" {
		answer = "I am not sure."
	}
	messages = append(messages, task.Message{Role: "assistant", Type: "message", Content: answer})

	for _, m := range messages {
		line, err := json.Marshal(m)
		if err != nil {
			return nil, fmt.Errorf("encoding message: %w", err)
		}
		if _, err := rec.Write(append(line, '\n')); err != nil {
			return nil, fmt.Errorf("recording output: %w", err)
		}
	}

	judge := e.Judge
	if judge == nil {
		judge = task.ExpectedAnswer{}
	}

	return &Result{
		Messages: messages,
		Status:   judge.Judge(req.Task, messages),
		Duration: time.Since(start),
	}, nil
}
