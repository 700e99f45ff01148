package notify

import (
	"log/slog"
	"sync"
	"time"

	"github.com/btouchard/oibench/internal/task"
)

// MCPSender abstracts the mcp-go server notification methods.
// Defined consumer-side per Go convention.
type MCPSender interface {
	SendNotificationToSpecificClient(sessionID string, method string, params map[string]any) error
	SendNotificationToAllClients(method string, params map[string]any)
}

// MCPNotifier pushes task updates to connected MCP clients.
type MCPNotifier struct {
	sender   MCPSender
	debounce time.Duration

	mu       sync.Mutex
	lastSent map[string]time.Time // taskID → last progress notification time
}

// NewMCPNotifier creates an MCPNotifier with the given debounce interval
// for log events. Start and done events are always sent immediately.
func NewMCPNotifier(sender MCPSender, debounce time.Duration) *MCPNotifier {
	if debounce <= 0 {
		debounce = 3 * time.Second
	}
	return &MCPNotifier{
		sender:   sender,
		debounce: debounce,
		lastSent: make(map[string]time.Time),
	}
}

// Notify sends an MCP notification for the given event.
func (n *MCPNotifier) Notify(event Event) {
	switch event.Type {
	case EventLog:
		n.sendProgress(event)
	case EventStarted:
		n.sendMessage(event, "info")
	case EventDone:
		n.clearDebounce(event.TaskID)
		level := "info"
		if event.Status == task.StatusError {
			level = "error"
		}
		n.sendMessage(event, level)
	default:
		slog.Debug("mcp notifier: unknown event type", "type", event.Type)
	}
}

// sendProgress sends a notifications/progress with debounce.
func (n *MCPNotifier) sendProgress(event Event) {
	n.mu.Lock()
	last, ok := n.lastSent[event.TaskID]
	if ok && time.Since(last) < n.debounce {
		n.mu.Unlock()
		return
	}
	n.lastSent[event.TaskID] = time.Now()
	n.mu.Unlock()

	params := map[string]any{
		"progressToken": event.TaskID,
		"progress":      -1, // indeterminate
		"total":         1,
		"message":       event.Message,
	}

	n.send(event.MCPSessionID, "notifications/progress", params)
}

func (n *MCPNotifier) sendMessage(event Event, level string) {
	data := map[string]any{
		"type":     event.Type,
		"batch_id": event.BatchID,
		"task_id":  event.TaskID,
		"message":  event.Message,
	}
	if event.Status != "" {
		data["status"] = string(event.Status)
	}

	n.send(event.MCPSessionID, "notifications/message", map[string]any{
		"level":  level,
		"logger": "oibench",
		"data":   data,
	})
}

// send dispatches to a specific client or broadcasts.
func (n *MCPNotifier) send(mcpSessionID, method string, params map[string]any) {
	if mcpSessionID != "" {
		if err := n.sender.SendNotificationToSpecificClient(mcpSessionID, method, params); err != nil {
			slog.Debug("mcp notification failed, falling back to broadcast",
				"session_id", mcpSessionID,
				"method", method,
				"error", err)
			n.sender.SendNotificationToAllClients(method, params)
		}
		return
	}
	n.sender.SendNotificationToAllClients(method, params)
}

func (n *MCPNotifier) clearDebounce(taskID string) {
	n.mu.Lock()
	delete(n.lastSent, taskID)
	n.mu.Unlock()
}
