package handlers

import (
	"bytes"
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/btouchard/oibench/internal/batch"
)

const defaultLogChunks = 50

// GetLogs returns a handler that dumps the tail of a task's log channel.
func GetLogs(b *batch.Batch) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()
		e, errResult := lookupTask(b, args)
		if errResult != nil {
			return errResult, nil
		}

		history := e.Channel.History()
		if len(history) == 0 {
			return mcp.NewToolResultText(fmt.Sprintf("No output yet for task %s.", e.Task.ID)), nil
		}

		limit := intArg(args, "limit", defaultLogChunks)
		skipped := 0
		if limit > 0 && len(history) > limit {
			skipped = len(history) - limit
			history = history[skipped:]
		}

		var buf bytes.Buffer
		if skipped > 0 {
			fmt.Fprintf(&buf, "[... %d earlier chunks omitted]\n", skipped)
		}
		for _, chunk := range history {
			buf.Write(chunk)
			if !bytes.HasSuffix(chunk, []byte("\n")) {
				buf.WriteByte('\n')
			}
		}

		return mcp.NewToolResultText(buf.String()), nil
	}
}
