package task

import "strings"

// Judge turns a runner's messages into a verdict.
type Judge interface {
	Judge(t Task, messages []Message) Status
}

// JudgeFunc adapts a function to Judge.
type JudgeFunc func(Task, []Message) Status

func (f JudgeFunc) Judge(t Task, messages []Message) Status { return f(t, messages) }

// ExpectedAnswer compares the last assistant message with Task.Expected.
// Matching is case-insensitive and succeeds when the expected answer appears
// anywhere in the message.
type ExpectedAnswer struct{}

func (ExpectedAnswer) Judge(t Task, messages []Message) Status {
	expected := strings.ToLower(strings.TrimSpace(t.Expected))
	if expected == "" {
		return StatusUnknown
	}

	last, ok := lastAssistantMessage(messages)
	if !ok {
		return StatusUnknown
	}

	if strings.Contains(strings.ToLower(last.Content), expected) {
		return StatusCorrect
	}
	return StatusIncorrect
}

func lastAssistantMessage(messages []Message) (Message, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		m := messages[i]
		if m.Role == "assistant" && m.Type == "message" && strings.TrimSpace(m.Content) != "" {
			return m, true
		}
	}
	return Message{}, false
}
