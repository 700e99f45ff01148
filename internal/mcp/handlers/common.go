package handlers

import (
	"errors"
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/btouchard/oibench/internal/batch"
	"github.com/btouchard/oibench/internal/task"
)

// lookupTask resolves the required task_id argument. On failure it returns
// a tool error result ready to hand back to the client.
func lookupTask(b *batch.Batch, args map[string]any) (*batch.Entry, *mcp.CallToolResult) {
	taskID, _ := args["task_id"].(string)
	if taskID == "" {
		return nil, mcp.NewToolResultError("task_id is required")
	}

	e, err := b.Lookup(taskID)
	if errors.Is(err, batch.ErrUnknownTask) {
		return nil, mcp.NewToolResultError(fmt.Sprintf("Task not found: %s", taskID))
	}
	if err != nil {
		return nil, mcp.NewToolResultError(err.Error())
	}
	return e, nil
}

// intArg reads a positive numeric argument, capped at math.MaxInt32.
func intArg(args map[string]any, key string, def int) int {
	n, ok := args[key].(float64)
	if !ok || !(n > 0) {
		return def
	}
	if n > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(n)
}

func statusIcon(s task.Status) string {
	switch s {
	case task.StatusPending:
		return "⏳"
	case task.StatusRunning:
		return "🔄"
	case task.StatusCorrect:
		return "✅"
	case task.StatusIncorrect:
		return "❌"
	case task.StatusError:
		return "💥"
	default:
		return "❓"
	}
}

// truncate cuts s to at most max bytes on a rune boundary.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max] + "..."
}
