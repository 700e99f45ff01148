package broadcast

import (
	"context"
	"io"
	"sync"
)

// Subscriber is an observer attached to a single Channel.
// Messages written to the channel are queued on the subscriber and
// consumed with Next, on the observer's own goroutine.
type Subscriber struct {
	mu      sync.Mutex
	pending [][]byte
	ended   bool
	err     error

	wake chan struct{}
	done chan struct{}
}

func newSubscriber(history [][]byte) *Subscriber {
	s := &Subscriber{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	if len(history) > 0 {
		s.pending = make([][]byte, len(history))
		copy(s.pending, history)
		s.signal()
	}
	return s
}

// Done returns a channel that is closed when the subscriber is removed
// from its channel, either because the channel closed or because it was detached.
func (s *Subscriber) Done() <-chan struct{} {
	return s.done
}

// Err returns why the subscriber ended. It is nil while the subscriber is
// attached and after a normal channel close.
func (s *Subscriber) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Pending returns the number of queued messages not yet consumed.
func (s *Subscriber) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Next blocks until a message is available and returns it.
// After a channel close the remaining queued messages are still returned,
// then io.EOF. A detached subscriber returns its detach cause immediately.
// The returned slice is shared with other subscribers and must not be modified.
func (s *Subscriber) Next(ctx context.Context) ([]byte, error) {
	for {
		s.mu.Lock()
		if len(s.pending) > 0 {
			msg := s.pending[0]
			s.pending[0] = nil
			s.pending = s.pending[1:]
			s.mu.Unlock()
			return msg, nil
		}
		if s.ended {
			err := s.err
			s.mu.Unlock()
			if err == nil {
				return nil, io.EOF
			}
			return nil, err
		}
		s.mu.Unlock()

		select {
		case <-s.wake:
		case <-s.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// enqueue is called with the owning channel's lock held.
func (s *Subscriber) enqueue(msg []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		return ErrDetached
	}
	s.pending = append(s.pending, msg)
	s.signal()
	return nil
}

// end marks the subscriber as finished. A nil cause is a graceful end:
// queued messages stay readable. A non-nil cause drops them.
func (s *Subscriber) end(cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		return
	}
	s.ended = true
	s.err = cause
	if cause != nil {
		s.pending = nil
	}
	close(s.done)
}

func (s *Subscriber) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}
