package handlers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/btouchard/oibench/internal/batch"
)

// StopTask returns a handler that closes a task's log stream early.
// The task itself keeps running; only its observers are disconnected.
func StopTask(b *batch.Batch) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		e, errResult := lookupTask(b, req.GetArguments())
		if errResult != nil {
			return errResult, nil
		}

		stopped, err := b.Stop(e.Task.ID)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if !stopped {
			return mcp.NewToolResultText(fmt.Sprintf("Log stream of task %s was already closed.", e.Task.ID)), nil
		}

		slog.Info("task stream stopped via mcp", "task_id", e.Task.ID)
		return mcp.NewToolResultText(fmt.Sprintf("Log stream of task %s closed.", e.Task.ID)), nil
	}
}
