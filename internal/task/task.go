package task

import (
	"fmt"
	"strings"
	"time"
)

// Status is the verdict of a task, or its progress while unresolved.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCorrect   Status = "correct"
	StatusIncorrect Status = "incorrect"
	StatusUnknown   Status = "unknown"
	StatusError     Status = "error"
)

// IsTerminal returns true once the status is a final verdict.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCorrect, StatusIncorrect, StatusUnknown, StatusError:
		return true
	default:
		return false
	}
}

// Command is the run configuration handed to the task runner.
type Command struct {
	Model              string `yaml:"model" json:"model,omitempty"`
	ContextWindow      int    `yaml:"context_window" json:"context_window,omitempty"`
	APIBase            string `yaml:"api_base" json:"api_base,omitempty"`
	APIKey             string `yaml:"api_key" json:"api_key,omitempty"`
	AutoRun            bool   `yaml:"auto_run" json:"auto_run,omitempty"`
	OSMode             bool   `yaml:"os_mode" json:"os_mode,omitempty"`
	CustomInstructions string `yaml:"custom_instructions" json:"custom_instructions,omitempty"`
	SupportsFunctions  bool   `yaml:"supports_functions" json:"supports_functions,omitempty"`
}

// WithCustomInstructions returns a copy of c with extra appended to its
// custom instructions on a new line. An empty extra returns c unchanged.
func (c Command) WithCustomInstructions(extra string) Command {
	extra = strings.TrimSpace(extra)
	if extra == "" {
		return c
	}
	if c.CustomInstructions == "" {
		c.CustomInstructions = extra
		return c
	}
	c.CustomInstructions += "\n" + extra
	return c
}

// Redacted returns a copy safe to show to observers.
func (c Command) Redacted() Command {
	if c.APIKey != "" {
		c.APIKey = "***"
	}
	return c
}

// Task is one independently executable benchmark unit.
type Task struct {
	ID       string `yaml:"id" json:"id"`
	Prompt   string `yaml:"prompt" json:"prompt"`
	Expected string `yaml:"expected" json:"expected,omitempty"`
}

// Message is one record of a runner's conversation log.
type Message struct {
	Role    string `json:"role"`
	Type    string `json:"type"`
	Format  string `json:"format,omitempty"`
	Content string `json:"content"`
}

// Result is the terminal record produced for every task of a batch.
type Result struct {
	TaskID   string    `json:"task_id"`
	Command  Command   `json:"command"`
	Prompt   string    `json:"prompt"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Messages []Message `json:"messages"`
	Status   Status    `json:"status"`
}

// Duration returns the elapsed time between start and end.
func (r Result) Duration() time.Duration {
	if r.Start.IsZero() || r.End.IsZero() {
		return 0
	}
	return r.End.Sub(r.Start)
}

// FormatDuration returns a human-readable duration string.
func (r Result) FormatDuration() string {
	return FormatDuration(r.Duration())
}

// FormatDuration renders d as "< 1s", "12s" or "3m 4s".
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return "< 1s"
	}
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60
	if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}
