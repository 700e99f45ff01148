package executor

import (
	"context"
	"io"
	"time"

	"github.com/btouchard/oibench/internal/task"
)

// Executor runs a single task to completion.
type Executor interface {
	Execute(ctx context.Context, req Request, rec Recorder) (*Result, error)
}

// Recorder receives a task's output while it runs. Write carries raw output
// bytes; Log carries human-readable progress lines.
type Recorder interface {
	io.Writer
	Log(text string)
}

// Request is what a worker hands to the executor.
type Request struct {
	Task    task.Task
	Command task.Command
}

// Result is what the executor hands back.
type Result struct {
	Messages []task.Message
	Status   task.Status
	ExitCode int
	Duration time.Duration
}

// DiscardRecorder drops everything written to it.
var DiscardRecorder Recorder = discard{}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
func (discard) Log(string)                  {}
