package batch

import (
	"encoding/json"
	"fmt"

	"github.com/btouchard/oibench/internal/task"
)

// Tag identifies the kind of a lifecycle update.
type Tag string

const (
	TagStarted Tag = "started"
	TagDone    Tag = "done"
	TagLog     Tag = "log"
)

// Payload carries one of three shapes: started, done with a status, or log with a message.
type Payload struct {
	Tag     Tag         `json:"tag"`
	Status  task.Status `json:"status,omitempty"`
	Message string      `json:"message,omitempty"`
}

// MarshalJSON writes exactly the fields of the payload's shape: a log
// always carries a message and a done always carries a status, even empty.
func (p Payload) MarshalJSON() ([]byte, error) {
	switch p.Tag {
	case TagLog:
		return json.Marshal(struct {
			Tag     Tag    `json:"tag"`
			Message string `json:"message"`
		}{p.Tag, p.Message})
	case TagDone:
		return json.Marshal(struct {
			Tag    Tag         `json:"tag"`
			Status task.Status `json:"status"`
		}{p.Tag, p.Status})
	default:
		type plain Payload
		return json.Marshal(plain(p))
	}
}

// Update is a batch-wide lifecycle event written to the updates channel.
type Update struct {
	TaskID  string  `json:"task_id"`
	Payload Payload `json:"payload"`
}

func Started(taskID string) Update {
	return Update{TaskID: taskID, Payload: Payload{Tag: TagStarted}}
}

func Done(taskID string, status task.Status) Update {
	return Update{TaskID: taskID, Payload: Payload{Tag: TagDone, Status: status}}
}

func Log(taskID, message string) Update {
	return Update{TaskID: taskID, Payload: Payload{Tag: TagLog, Message: message}}
}

// ParseUpdate decodes an update read from the updates channel.
func ParseUpdate(data []byte) (Update, error) {
	var u Update
	if err := json.Unmarshal(data, &u); err != nil {
		return Update{}, fmt.Errorf("decoding update: %w", err)
	}
	switch u.Payload.Tag {
	case TagStarted, TagDone, TagLog:
	default:
		return Update{}, fmt.Errorf("unknown update tag %q", u.Payload.Tag)
	}
	return u, nil
}
