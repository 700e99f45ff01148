package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/btouchard/oibench/internal/batch"
	"github.com/btouchard/oibench/internal/task"
)

// ListTasks returns a handler that lists the batch's tasks with their live status.
func ListTasks(b *batch.Batch) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()

		status, _ := args["status"].(string)
		limit := intArg(args, "limit", 50)

		var snaps []batch.Snapshot
		counts := make(map[task.Status]int)
		for _, e := range b.Entries() {
			snap := e.Snapshot()
			counts[snap.Status]++
			if status != "" && status != "all" && snap.Status != task.Status(status) {
				continue
			}
			if len(snaps) < limit {
				snaps = append(snaps, snap)
			}
		}

		if len(snaps) == 0 {
			return mcp.NewToolResultText("No tasks found matching the given filters."), nil
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "📋 Batch %s: %d tasks", b.ID(), b.Len())
		if done := counts[task.StatusCorrect] + counts[task.StatusIncorrect] + counts[task.StatusUnknown] + counts[task.StatusError]; done > 0 {
			fmt.Fprintf(&sb, ", %d done (%d correct)", done, counts[task.StatusCorrect])
		}
		sb.WriteString("\n\n")

		for _, s := range snaps {
			fmt.Fprintf(&sb, "%s **%s** — %s", statusIcon(s.Status), s.ID, s.Status)
			if !s.StartedAt.IsZero() {
				fmt.Fprintf(&sb, " | %s", s.FormatDuration())
			}
			if s.Observers > 0 {
				fmt.Fprintf(&sb, " | %d watching", s.Observers)
			}
			sb.WriteString("\n")
		}

		return mcp.NewToolResultText(sb.String()), nil
	}
}
