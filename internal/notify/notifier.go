// Package notify turns a batch's lifecycle updates into events for
// out-of-band consumers (MCP clients, the audit log).
package notify

import (
	"time"

	"github.com/btouchard/oibench/internal/task"
)

const (
	EventStarted = "task.started"
	EventLog     = "task.log"
	EventDone    = "task.done"
)

// Event represents a task lifecycle notification.
type Event struct {
	Type    string // EventStarted, EventLog or EventDone
	BatchID string
	TaskID  string
	Status  task.Status
	Message string
	At      time.Time

	// MCPSessionID targets a specific MCP client session.
	// Empty means broadcast to all.
	MCPSessionID string
}

// Notifier sends task lifecycle notifications.
type Notifier interface {
	Notify(event Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Event)

func (f NotifierFunc) Notify(event Event) { f(event) }

// Hub dispatches events to multiple notifiers.
// Dispatch is synchronous so every notifier sees events in update order.
type Hub struct {
	notifiers []Notifier
}

// NewHub creates a Hub with the given notifiers. Nil notifiers are skipped.
func NewHub(notifiers ...Notifier) *Hub {
	h := &Hub{}
	for _, n := range notifiers {
		if n != nil {
			h.notifiers = append(h.notifiers, n)
		}
	}
	return h
}

// Len returns the number of registered notifiers.
func (h *Hub) Len() int { return len(h.notifiers) }

// Notify sends an event to all registered notifiers.
func (h *Hub) Notify(event Event) {
	for _, n := range h.notifiers {
		n.Notify(event)
	}
}
