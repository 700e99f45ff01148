package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/btouchard/oibench/internal/mcp/handlers"
)

func registerTools(s *server.MCPServer, deps *Deps) {
	// list_tasks — Live status of every task in the batch
	s.AddTool(
		mcp.NewTool("list_tasks",
			mcp.WithDescription("List the tasks of the running benchmark batch with their live status."),
			mcp.WithString("status",
				mcp.Description("Filter by status"),
				mcp.Enum("all", "pending", "running", "correct", "incorrect", "unknown", "error"),
			),
			mcp.WithNumber("limit",
				mcp.Description("Maximum number of tasks to return (default: 50)"),
			),
		),
		handlers.ListTasks(deps.Batch),
	)

	// view_task — Prompt, command and state of one task
	s.AddTool(
		mcp.NewTool("view_task",
			mcp.WithDescription("Show a task's prompt, the command it runs with, and its live state."),
			mcp.WithString("task_id",
				mcp.Required(),
				mcp.Description("The task ID from list_tasks"),
			),
		),
		handlers.ViewTask(deps.Batch),
	)

	// get_logs — Tail of the task's output stream
	s.AddTool(
		mcp.NewTool("get_logs",
			mcp.WithDescription("Get the most recent output chunks a task has produced."),
			mcp.WithString("task_id",
				mcp.Required(),
				mcp.Description("The task ID from list_tasks"),
			),
			mcp.WithNumber("limit",
				mcp.Description("Maximum number of chunks to return (default: 50)"),
			),
		),
		handlers.GetLogs(deps.Batch),
	)

	// get_result — Final record of a finished task
	s.AddTool(
		mcp.NewTool("get_result",
			mcp.WithDescription("Get the final result of a finished task."),
			mcp.WithString("task_id",
				mcp.Required(),
				mcp.Description("The task ID from list_tasks"),
			),
			mcp.WithString("format",
				mcp.Description("Output format: summary (verdict and final answer), full (every message), json (raw)"),
				mcp.Enum("summary", "full", "json"),
			),
		),
		handlers.GetResult(deps.Batch),
	)

	// stop_task — Close a task's output stream early
	s.AddTool(
		mcp.NewTool("stop_task",
			mcp.WithDescription("Close a task's output stream early, disconnecting its watchers. The task itself keeps running."),
			mcp.WithString("task_id",
				mcp.Required(),
				mcp.Description("The task ID from list_tasks"),
			),
		),
		handlers.StopTask(deps.Batch),
	)
}
