// Package broadcast provides a replaying one-to-many message channel.
//
// A Channel keeps every message written to it. Subscribers attached at any
// time before the channel closes first receive the full history, then every
// later write, in write order, exactly once.
//
// Writers never touch the network: a write appends to each subscriber's
// in-memory queue, and each observer drains its own queue on its own
// goroutine (see Stream). A slow or broken observer therefore cannot hold
// up writers or other observers.
package broadcast

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

var (
	// ErrClosed is returned by Attach and Write once the channel is closed.
	ErrClosed = errors.New("broadcast channel closed")
	// ErrDetached is the default cause for a subscriber removed by Detach.
	ErrDetached = errors.New("subscriber detached")
)

// Sink is the downstream side of an observer connection.
type Sink interface {
	Send(ctx context.Context, msg []byte) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, msg []byte) error

// Send calls f(ctx, msg).
func (f SinkFunc) Send(ctx context.Context, msg []byte) error {
	return f(ctx, msg)
}

// Channel is a thread-safe, history-replaying broadcast channel.
type Channel struct {
	name string

	mu      sync.Mutex
	history [][]byte
	subs    map[*Subscriber]struct{}
	closed  bool
}

// New creates an open channel. The name is only used in logs.
func New(name string) *Channel {
	return &Channel{
		name: name,
		subs: make(map[*Subscriber]struct{}),
	}
}

// Name returns the channel name.
func (c *Channel) Name() string {
	return c.name
}

// Attach registers a new subscriber. The current history is queued on the
// subscriber in the same critical section, so no write can fall between
// the replay and the live tail.
func (c *Channel) Attach() (*Subscriber, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}

	sub := newSubscriber(c.history)
	c.subs[sub] = struct{}{}

	slog.Debug("subscriber attached",
		"channel", c.name,
		"replayed", len(c.history),
		"subscribers", len(c.subs))

	return sub, nil
}

// Write appends msg to the history and delivers it to every attached
// subscriber. Subscribers that can no longer accept messages are removed
// once the fan-out is finished. Writing to a closed channel returns ErrClosed
// and has no effect.
func (c *Channel) Write(msg []byte) error {
	data := bytes.Clone(msg)
	if data == nil {
		data = []byte{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	c.history = append(c.history, data)

	var dead []*Subscriber
	for sub := range c.subs {
		if err := sub.enqueue(data); err != nil {
			dead = append(dead, sub)
		}
	}
	for _, sub := range dead {
		c.removeLocked(sub, ErrDetached)
	}

	return nil
}

// WriteJSON encodes v as JSON and writes it.
func (c *Channel) WriteJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}
	return c.Write(data)
}

// Detach removes sub from the channel and signals its Done channel.
// cause is reported by sub.Err; nil means ErrDetached.
func (c *Channel) Detach(sub *Subscriber, cause error) {
	if cause == nil {
		cause = ErrDetached
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.removeLocked(sub, cause)
}

func (c *Channel) removeLocked(sub *Subscriber, cause error) {
	if _, ok := c.subs[sub]; !ok {
		return
	}
	delete(c.subs, sub)
	sub.end(cause)

	slog.Debug("subscriber removed",
		"channel", c.name,
		"cause", cause,
		"subscribers", len(c.subs))
}

// Close marks the channel closed and ends every attached subscriber.
// Subscribers still drain what was queued before the close. Close is idempotent.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true

	for sub := range c.subs {
		sub.end(nil)
	}
	clear(c.subs)
}

// IsClosed reports whether Close has been called.
func (c *Channel) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// History returns a copy of the messages written so far.
func (c *Channel) History() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([][]byte, len(c.history))
	copy(out, c.history)
	return out
}

// Len returns the number of messages written so far.
func (c *Channel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.history)
}

// Subscribers returns the number of attached subscribers.
func (c *Channel) Subscribers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

// Stream attaches to the channel and forwards every message to sink. It
// returns nil once the channel closes and the queue is drained. When the sink
// fails or ctx ends first, the subscriber is detached and the error returned.
func (c *Channel) Stream(ctx context.Context, sink Sink) error {
	sub, err := c.Attach()
	if err != nil {
		return err
	}
	return c.Forward(ctx, sub, sink)
}

// Forward drains an already attached subscriber into sink with the same
// termination rules as Stream.
func (c *Channel) Forward(ctx context.Context, sub *Subscriber, sink Sink) error {
	for {
		msg, err := sub.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			c.Detach(sub, err)
			return err
		}

		if err := sink.Send(ctx, msg); err != nil {
			c.Detach(sub, err)
			return fmt.Errorf("delivering to subscriber: %w", err)
		}
	}
}
