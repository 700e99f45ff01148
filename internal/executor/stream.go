package executor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/btouchard/oibench/internal/task"
)

const maxProgressLen = 200

// ParseMessageLine decodes one stdout line of a worker process.
// Blank lines and lines that are not JSON objects return nil without error:
// they are plain output. A JSON object without content is rejected.
func ParseMessageLine(line []byte) (*task.Message, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 || line[0] != '{' {
		return nil, nil
	}

	var msg task.Message
	if err := json.Unmarshal(line, &msg); err != nil {
		return nil, fmt.Errorf("parsing message line: %w", err)
	}
	if msg.Role == "" || msg.Type == "" {
		return nil, fmt.Errorf("parsing message line: missing role or type")
	}
	return &msg, nil
}

// Progress returns a short progress string for a message.
func Progress(msg *task.Message) string {
	switch {
	case msg == nil:
		return ""
	case msg.Type == "code":
		if msg.Format != "" {
			return "Running " + msg.Format + " code"
		}
		return "Running code"
	case msg.Role == "assistant" && msg.Type == "message":
		return truncateStr(msg.Content, maxProgressLen)
	default:
		return ""
	}
}

func truncateStr(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
