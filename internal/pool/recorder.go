package pool

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/btouchard/oibench/internal/batch"
	"github.com/btouchard/oibench/internal/broadcast"
)

// taskRecorder routes executor output for one task. Raw output goes to the
// task's own channel; log lines go there too and to the updates channel.
type taskRecorder struct {
	b *batch.Batch
	e *batch.Entry
}

func (r taskRecorder) Write(p []byte) (int, error) {
	if err := r.e.Channel.Write(p); err != nil && !errors.Is(err, broadcast.ErrClosed) {
		return 0, err
	}
	// A stopped channel drops output; the task keeps running.
	return len(p), nil
}

func (r taskRecorder) Log(text string) {
	line := text
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}
	if err := r.e.Channel.Write([]byte(line)); err != nil && !errors.Is(err, broadcast.ErrClosed) {
		slog.Debug("writing task log failed", "task_id", r.e.Task.ID, "error", err)
	}
	if err := r.b.Publish(batch.Log(r.e.Task.ID, text)); err != nil {
		slog.Debug("publishing task log failed", "task_id", r.e.Task.ID, "error", err)
	}
}
