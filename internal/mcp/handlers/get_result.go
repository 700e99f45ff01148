package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/btouchard/oibench/internal/batch"
	"github.com/btouchard/oibench/internal/task"
)

// GetResult returns a handler that provides the final result of a finished task.
func GetResult(b *batch.Batch) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()
		e, errResult := lookupTask(b, args)
		if errResult != nil {
			return errResult, nil
		}

		r, ok := e.Result()
		if !ok {
			return mcp.NewToolResultText(
				fmt.Sprintf("Task %s is still %s. Use view_task to monitor progress.", e.Task.ID, e.Status()),
			), nil
		}
		r.Command = r.Command.Redacted()

		format := "summary"
		if f, ok := args["format"].(string); ok && f != "" {
			format = f
		}

		switch format {
		case "json":
			return formatJSON(r)
		case "full":
			return formatFull(r), nil
		default:
			return formatSummary(r), nil
		}
	}
}

func formatSummary(r task.Result) *mcp.CallToolResult {
	var b strings.Builder

	fmt.Fprintf(&b, "%s Task %s — %s\n\n", statusIcon(r.Status), r.TaskID, r.Status)
	if r.Command.Model != "" {
		fmt.Fprintf(&b, "- Model: %s\n", r.Command.Model)
	}
	fmt.Fprintf(&b, "- Duration: %s\n", r.FormatDuration())
	fmt.Fprintf(&b, "- Messages: %d\n", len(r.Messages))

	if last, ok := lastAnswer(r.Messages); ok {
		fmt.Fprintf(&b, "\nFinal answer:\n%s\n", truncate(last, 1000))
	}

	return mcp.NewToolResultText(b.String())
}

func formatFull(r task.Result) *mcp.CallToolResult {
	var b strings.Builder

	fmt.Fprintf(&b, "Task %s — %s | Duration: %s\n\n", r.TaskID, r.Status, r.FormatDuration())
	fmt.Fprintf(&b, "Prompt:\n%s\n", r.Prompt)

	for i, m := range r.Messages {
		fmt.Fprintf(&b, "\n--- %d. %s %s", i+1, m.Role, m.Type)
		if m.Format != "" {
			fmt.Fprintf(&b, " (%s)", m.Format)
		}
		fmt.Fprintf(&b, " ---\n%s\n", m.Content)
	}

	return mcp.NewToolResultText(b.String())
}

func formatJSON(r task.Result) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("JSON encoding error: %s", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func lastAnswer(messages []task.Message) (string, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "assistant" && messages[i].Type == "message" {
			return messages[i].Content, true
		}
	}
	return "", false
}
