package broadcast

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readN(t *testing.T, sub *Subscriber, n int) []string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out := make([]string, 0, n)
	for range n {
		msg, err := sub.Next(ctx)
		require.NoError(t, err)
		out = append(out, string(msg))
	}
	return out
}

func TestChannel_Attach_ReplaysHistoryThenLiveTail(t *testing.T) {
	t.Parallel()

	ch := New("test")
	for i := range 3 {
		require.NoError(t, ch.Write([]byte(fmt.Sprintf("m%d", i))))
	}

	sub, err := ch.Attach()
	require.NoError(t, err)

	assert.Equal(t, []string{"m0", "m1", "m2"}, readN(t, sub, 3))

	require.NoError(t, ch.Write([]byte("m3")))
	assert.Equal(t, []string{"m3"}, readN(t, sub, 1))
	assert.Equal(t, 0, sub.Pending(), "no duplicates should remain queued")
}

func TestChannel_TwoSubscribers_SeeWritesAfterTheirAttach(t *testing.T) {
	t.Parallel()

	ch := New("test")
	first, err := ch.Attach()
	require.NoError(t, err)

	require.NoError(t, ch.Write([]byte("a")))

	second, err := ch.Attach()
	require.NoError(t, err)

	require.NoError(t, ch.Write([]byte("b")))
	require.NoError(t, ch.Write([]byte("c")))

	assert.Equal(t, []string{"a", "b", "c"}, readN(t, first, 3))
	// second replays "a" from history, then the live writes in the same order
	assert.Equal(t, []string{"a", "b", "c"}, readN(t, second, 3))
}

func TestChannel_Write_CopiesCallerBuffer(t *testing.T) {
	t.Parallel()

	ch := New("test")
	buf := []byte("hello")
	require.NoError(t, ch.Write(buf))
	buf[0] = 'j'

	assert.Equal(t, "hello", string(ch.History()[0]))
}

func TestChannel_Close_WakesBlockedSubscribers(t *testing.T) {
	t.Parallel()

	ch := New("test")
	const n = 5
	subs := make([]*Subscriber, n)
	for i := range subs {
		sub, err := ch.Attach()
		require.NoError(t, err)
		subs[i] = sub
	}

	errs := make(chan error, n)
	for _, sub := range subs {
		go func() {
			_, err := sub.Next(context.Background())
			errs <- err
		}()
	}

	time.Sleep(20 * time.Millisecond)
	ch.Close()

	for range n {
		select {
		case err := <-errs:
			assert.ErrorIs(t, err, io.EOF)
		case <-time.After(5 * time.Second):
			t.Fatal("subscriber was not woken by close")
		}
	}
	for _, sub := range subs {
		select {
		case <-sub.Done():
		default:
			t.Fatal("Done should be closed after channel close")
		}
		assert.NoError(t, sub.Err())
	}
	assert.Equal(t, 0, ch.Subscribers())
}

func TestChannel_Close_LetsSubscribersDrainQueuedMessages(t *testing.T) {
	t.Parallel()

	ch := New("test")
	sub, err := ch.Attach()
	require.NoError(t, err)

	require.NoError(t, ch.Write([]byte("last words")))
	ch.Close()

	assert.Equal(t, []string{"last words"}, readN(t, sub, 1))
	_, err = sub.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestChannel_Attach_AfterCloseIsRejected(t *testing.T) {
	t.Parallel()

	ch := New("test")
	require.NoError(t, ch.Write([]byte("x")))
	ch.Close()

	sub, err := ch.Attach()
	assert.Nil(t, sub)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestChannel_Write_AfterCloseIsRejected(t *testing.T) {
	t.Parallel()

	ch := New("test")
	require.NoError(t, ch.Write([]byte("x")))
	ch.Close()

	err := ch.Write([]byte("y"))
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, 1, ch.Len(), "rejected write must not reach history")
}

func TestChannel_Close_IsIdempotent(t *testing.T) {
	t.Parallel()

	ch := New("test")
	assert.False(t, ch.IsClosed())

	ch.Close()
	require.NotPanics(t, ch.Close)
	assert.True(t, ch.IsClosed())
}

func TestChannel_Detach_DropsQueueAndReportsCause(t *testing.T) {
	t.Parallel()

	ch := New("test")
	sub, err := ch.Attach()
	require.NoError(t, err)
	require.NoError(t, ch.Write([]byte("pending")))

	cause := errors.New("connection reset")
	ch.Detach(sub, cause)

	_, err = sub.Next(context.Background())
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, sub.Err(), cause)
	assert.Equal(t, 0, ch.Subscribers())

	// writes after detach are not delivered, other state unaffected
	require.NoError(t, ch.Write([]byte("later")))
	assert.Equal(t, 0, sub.Pending())
}

func TestChannel_Write_RemovesEndedSubscriberDuringFanOut(t *testing.T) {
	t.Parallel()

	ch := New("test")
	healthy, err := ch.Attach()
	require.NoError(t, err)
	broken, err := ch.Attach()
	require.NoError(t, err)

	// simulate a subscriber whose downstream failed without going through Detach
	broken.end(errors.New("gone"))
	require.Equal(t, 2, ch.Subscribers())

	require.NoError(t, ch.Write([]byte("m")), "a failed subscriber never fails the write")

	assert.Equal(t, 1, ch.Subscribers())
	assert.Equal(t, []string{"m"}, readN(t, healthy, 1))
}

func TestChannel_Next_ReturnsOnContextCancel(t *testing.T) {
	t.Parallel()

	ch := New("test")
	sub, err := ch.Attach()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = sub.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestChannel_Stream_WhenSinkFails_DetachesAndOthersContinue(t *testing.T) {
	t.Parallel()

	ch := New("test")
	sinkErr := errors.New("broken pipe")

	failing := SinkFunc(func(_ context.Context, _ []byte) error { return sinkErr })
	var mu sync.Mutex
	var got []string
	healthy := SinkFunc(func(_ context.Context, msg []byte) error {
		mu.Lock()
		got = append(got, string(msg))
		mu.Unlock()
		return nil
	})

	failDone := make(chan error, 1)
	okDone := make(chan error, 1)
	go func() { failDone <- ch.Stream(context.Background(), failing) }()
	go func() { okDone <- ch.Stream(context.Background(), healthy) }()

	require.Eventually(t, func() bool { return ch.Subscribers() == 2 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, ch.Write([]byte("one")))
	select {
	case err := <-failDone:
		assert.ErrorIs(t, err, sinkErr)
	case <-time.After(5 * time.Second):
		t.Fatal("failing stream did not return")
	}

	require.NoError(t, ch.Write([]byte("two")))
	ch.Close()

	select {
	case err := <-okDone:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("healthy stream did not end on close")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"one", "two"}, got)
}

func TestChannel_Stream_OnClosedChannel_ReturnsErrClosed(t *testing.T) {
	t.Parallel()

	ch := New("test")
	ch.Close()

	err := ch.Stream(context.Background(), SinkFunc(func(context.Context, []byte) error { return nil }))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestChannel_Forward_AttachedBeforeClose_DrainsEverything(t *testing.T) {
	t.Parallel()

	ch := New("test")
	sub, err := ch.Attach()
	require.NoError(t, err)

	require.NoError(t, ch.Write([]byte("a")))
	require.NoError(t, ch.Write([]byte("b")))
	ch.Close()

	var got []string
	err = ch.Forward(context.Background(), sub, SinkFunc(func(_ context.Context, msg []byte) error {
		got = append(got, string(msg))
		return nil
	}))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestChannel_ConcurrentWritersAndLateSubscribers_NoLossNoDuplicates(t *testing.T) {
	t.Parallel()

	ch := New("test")
	const writers = 8
	const perWriter = 200
	const subscribers = 6

	results := make([]chan []string, subscribers)
	var attached sync.WaitGroup
	for i := range subscribers {
		results[i] = make(chan []string, 1)
		attached.Add(1)
		go func() {
			// stagger attaches so some subscribers replay history
			time.Sleep(time.Duration(i) * time.Millisecond)
			sub, err := ch.Attach()
			attached.Done()
			if err != nil {
				results[i] <- nil
				return
			}
			var seen []string
			for {
				msg, err := sub.Next(context.Background())
				if err != nil {
					break
				}
				seen = append(seen, string(msg))
			}
			results[i] <- seen
		}()
	}

	var wg sync.WaitGroup
	for w := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perWriter {
				_ = ch.Write([]byte(fmt.Sprintf("w%d-%d", w, i)))
			}
		}()
	}
	wg.Wait()
	attached.Wait()
	ch.Close()

	history := ch.History()
	require.Len(t, history, writers*perWriter)
	want := make([]string, len(history))
	for i, m := range history {
		want[i] = string(m)
	}

	for i := range subscribers {
		seen := <-results[i]
		assert.Equal(t, want, seen, "subscriber %d must see the full history in write order", i)
	}
}
