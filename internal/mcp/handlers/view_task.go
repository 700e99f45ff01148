package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/btouchard/oibench/internal/batch"
)

// ViewTask returns a handler that shows a task's prompt, command and live state.
func ViewTask(b *batch.Batch) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		e, errResult := lookupTask(b, req.GetArguments())
		if errResult != nil {
			return errResult, nil
		}

		snap := e.Snapshot()
		cmd, err := json.MarshalIndent(b.Command().Redacted(), "", "  ")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("JSON encoding error: %s", err)), nil
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "%s Task %s — %s\n\n", statusIcon(snap.Status), snap.ID, snap.Status)
		if !snap.StartedAt.IsZero() {
			fmt.Fprintf(&sb, "- Started: %s\n", snap.StartedAt.Format(time.RFC3339))
			fmt.Fprintf(&sb, "- Duration: %s\n", snap.FormatDuration())
		}
		if !snap.FinishedAt.IsZero() {
			fmt.Fprintf(&sb, "- Finished: %s\n", snap.FinishedAt.Format(time.RFC3339))
		}
		fmt.Fprintf(&sb, "- Log chunks: %d\n", snap.LogChunks)
		if snap.ChannelClosed {
			sb.WriteString("- Log stream: closed\n")
		} else {
			fmt.Fprintf(&sb, "- Log stream: open, %d watching\n", snap.Observers)
		}

		fmt.Fprintf(&sb, "\nPrompt:\n%s\n", snap.Prompt)
		fmt.Fprintf(&sb, "\nCommand:\n%s\n", cmd)

		return mcp.NewToolResultText(sb.String()), nil
	}
}
