package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/btouchard/oibench/internal/batch"
	"github.com/btouchard/oibench/internal/broadcast"
)

// FromUpdate converts a lifecycle update into an Event.
func FromUpdate(batchID string, u batch.Update) Event {
	e := Event{
		BatchID: batchID,
		TaskID:  u.TaskID,
		Status:  u.Payload.Status,
		Message: u.Payload.Message,
		At:      time.Now(),
	}
	switch u.Payload.Tag {
	case batch.TagStarted:
		e.Type = EventStarted
	case batch.TagLog:
		e.Type = EventLog
	case batch.TagDone:
		e.Type = EventDone
		e.Message = string(u.Payload.Status)
	}
	return e
}

// Follower delivers the updates of one batch to a Notifier.
type Follower struct {
	ch      *broadcast.Channel
	sub     *broadcast.Subscriber
	batchID string
	n       Notifier
}

// NewFollower attaches to ch right away, so nothing written after it
// returns can be missed even if Run starts late.
func NewFollower(ch *broadcast.Channel, batchID string, n Notifier) (*Follower, error) {
	sub, err := ch.Attach()
	if err != nil {
		return nil, err
	}
	return &Follower{ch: ch, sub: sub, batchID: batchID, n: n}, nil
}

// Run hands every update to the notifier, in order. It returns nil once the
// channel closes and every update was delivered, or the context error when
// ctx ends first.
func (f *Follower) Run(ctx context.Context) error {
	return f.ch.Forward(ctx, f.sub, broadcast.SinkFunc(func(_ context.Context, msg []byte) error {
		u, err := batch.ParseUpdate(msg)
		if err != nil {
			slog.Debug("skipping malformed update", "batch_id", f.batchID, "error", err)
			return nil
		}
		f.n.Notify(FromUpdate(f.batchID, u))
		return nil
	}))
}
