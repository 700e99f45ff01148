package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/btouchard/oibench/internal/batch"
	"github.com/btouchard/oibench/internal/broadcast"
	"github.com/btouchard/oibench/internal/store"
	"github.com/btouchard/oibench/internal/task"
)

type sent struct {
	sessionID string
	method    string
	params    map[string]any
}

type mockSender struct {
	mu        sync.Mutex
	specific  []sent
	broadcast []sent
	failFor   string
}

func (m *mockSender) SendNotificationToSpecificClient(sessionID, method string, params map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sessionID == m.failFor {
		return errors.New("session gone")
	}
	m.specific = append(m.specific, sent{sessionID, method, params})
	return nil
}

func (m *mockSender) SendNotificationToAllClients(method string, params map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.broadcast = append(m.broadcast, sent{"", method, params})
}

type collector struct {
	mu     sync.Mutex
	events []Event
}

func (c *collector) Notify(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *collector) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

func TestHub_DispatchesInOrderToEveryNotifier(t *testing.T) {
	t.Parallel()

	a, b := &collector{}, &collector{}
	h := NewHub(a, nil, b)
	assert.Equal(t, 2, h.Len())

	h.Notify(Event{Type: EventStarted, TaskID: "1"})
	h.Notify(Event{Type: EventDone, TaskID: "1"})

	for _, c := range []*collector{a, b} {
		got := c.Events()
		require.Len(t, got, 2)
		assert.Equal(t, EventStarted, got[0].Type)
		assert.Equal(t, EventDone, got[1].Type)
	}
}

func TestNotifierFunc(t *testing.T) {
	t.Parallel()

	var got Event
	NotifierFunc(func(e Event) { got = e }).Notify(Event{TaskID: "x"})
	assert.Equal(t, "x", got.TaskID)
}

func TestFromUpdate_MapsEveryTag(t *testing.T) {
	t.Parallel()

	e := FromUpdate("b", batch.Started("t"))
	assert.Equal(t, EventStarted, e.Type)
	assert.Equal(t, "b", e.BatchID)
	assert.Equal(t, "t", e.TaskID)
	assert.False(t, e.At.IsZero())

	e = FromUpdate("b", batch.Log("t", "hello"))
	assert.Equal(t, EventLog, e.Type)
	assert.Equal(t, "hello", e.Message)

	e = FromUpdate("b", batch.Done("t", task.StatusIncorrect))
	assert.Equal(t, EventDone, e.Type)
	assert.Equal(t, task.StatusIncorrect, e.Status)
	assert.Equal(t, "incorrect", e.Message)
}

func TestFollower_DeliversAllUpdatesUntilClose(t *testing.T) {
	t.Parallel()

	b, err := batch.New("batch-1", []task.Task{{ID: "a"}}, task.Command{})
	require.NoError(t, err)
	require.NoError(t, b.Publish(batch.Started("a")))

	c := &collector{}
	f, err := NewFollower(b.Updates(), b.ID(), c)
	require.NoError(t, err)
	errCh := make(chan error, 1)
	go func() { errCh <- f.Run(context.Background()) }()

	require.NoError(t, b.Publish(batch.Log("a", "working")))
	require.NoError(t, b.Updates().Write([]byte("garbage")))
	require.NoError(t, b.Publish(batch.Done("a", task.StatusCorrect)))
	b.Close()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Follow did not return after close")
	}

	got := c.Events()
	require.Len(t, got, 3)
	assert.Equal(t, EventStarted, got[0].Type)
	assert.Equal(t, EventLog, got[1].Type)
	assert.Equal(t, EventDone, got[2].Type)
	assert.Equal(t, "batch-1", got[2].BatchID)
}

func TestNewFollower_WhenChannelClosed_ReturnsErrClosed(t *testing.T) {
	t.Parallel()

	b, err := batch.New("", nil, task.Command{})
	require.NoError(t, err)
	b.Close()

	_, err = NewFollower(b.Updates(), b.ID(), &collector{})
	assert.ErrorIs(t, err, broadcast.ErrClosed)
}

func TestFollower_WhenStartedLate_StillSeesEverything(t *testing.T) {
	t.Parallel()

	b, err := batch.New("batch-1", []task.Task{{ID: "a"}}, task.Command{})
	require.NoError(t, err)

	c := &collector{}
	f, err := NewFollower(b.Updates(), b.ID(), c)
	require.NoError(t, err)

	require.NoError(t, b.Publish(batch.Started("a")))
	require.NoError(t, b.Publish(batch.Done("a", task.StatusCorrect)))
	b.Close()

	require.NoError(t, f.Run(context.Background()))
	assert.Len(t, c.Events(), 2)
}

func TestFollower_WhenContextCancelled_ReturnsContextErrorAndDetaches(t *testing.T) {
	t.Parallel()

	b, err := batch.New("", nil, task.Command{})
	require.NoError(t, err)
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	f, err := NewFollower(b.Updates(), b.ID(), &collector{})
	require.NoError(t, err)
	assert.Equal(t, 1, b.Updates().Subscribers())

	err = f.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, b.Updates().Subscribers())
}

func TestMCPNotifier_StartedAndDone_SendMessages(t *testing.T) {
	t.Parallel()

	s := &mockSender{}
	n := NewMCPNotifier(s, time.Hour)

	n.Notify(Event{Type: EventStarted, BatchID: "b", TaskID: "t"})
	n.Notify(Event{Type: EventDone, BatchID: "b", TaskID: "t", Status: task.StatusError})

	require.Len(t, s.broadcast, 2)
	assert.Equal(t, "notifications/message", s.broadcast[0].method)
	assert.Equal(t, "info", s.broadcast[0].params["level"])
	assert.Equal(t, "oibench", s.broadcast[0].params["logger"])
	assert.Equal(t, "error", s.broadcast[1].params["level"])

	data := s.broadcast[1].params["data"].(map[string]any)
	assert.Equal(t, "t", data["task_id"])
	assert.Equal(t, "error", data["status"])
}

func TestMCPNotifier_LogEvents_AreDebounced(t *testing.T) {
	t.Parallel()

	s := &mockSender{}
	n := NewMCPNotifier(s, time.Hour)

	n.Notify(Event{Type: EventLog, TaskID: "t", Message: "one"})
	n.Notify(Event{Type: EventLog, TaskID: "t", Message: "two"})
	n.Notify(Event{Type: EventLog, TaskID: "other", Message: "three"})

	require.Len(t, s.broadcast, 2)
	assert.Equal(t, "notifications/progress", s.broadcast[0].method)
	assert.Equal(t, "one", s.broadcast[0].params["message"])
	assert.Equal(t, "three", s.broadcast[1].params["message"])
}

func TestMCPNotifier_Done_ResetsDebounce(t *testing.T) {
	t.Parallel()

	s := &mockSender{}
	n := NewMCPNotifier(s, time.Hour)

	n.Notify(Event{Type: EventLog, TaskID: "t"})
	n.Notify(Event{Type: EventDone, TaskID: "t", Status: task.StatusCorrect})
	n.Notify(Event{Type: EventLog, TaskID: "t"})

	assert.Len(t, s.broadcast, 3)
}

func TestMCPNotifier_WithSession_TargetsClientThenFallsBack(t *testing.T) {
	t.Parallel()

	s := &mockSender{failFor: "dead"}
	n := NewMCPNotifier(s, 0)

	n.Notify(Event{Type: EventStarted, TaskID: "t", MCPSessionID: "live"})
	n.Notify(Event{Type: EventStarted, TaskID: "t", MCPSessionID: "dead"})

	require.Len(t, s.specific, 1)
	assert.Equal(t, "live", s.specific[0].sessionID)
	assert.Len(t, s.broadcast, 1)
}

func TestMCPNotifier_UnknownType_IsIgnored(t *testing.T) {
	t.Parallel()

	s := &mockSender{}
	NewMCPNotifier(s, 0).Notify(Event{Type: "task.weird"})
	assert.Empty(t, s.broadcast)
}

func TestEventRecorder_WritesToStore(t *testing.T) {
	t.Parallel()

	st, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	r := NewEventRecorder(st)
	r.Notify(Event{Type: EventStarted, BatchID: "b", TaskID: "t", At: time.Now()})
	r.Notify(Event{Type: EventDone, BatchID: "b", TaskID: "t", Message: "correct", At: time.Now().Add(time.Second)})

	events, err := st.GetEvents(context.Background(), "b", "t", 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, EventDone, events[0].EventType)
	assert.Equal(t, "correct", events[0].Message)
}

type failingStore struct{}

func (failingStore) AddEvent(context.Context, *store.TaskEvent) error { return errors.New("db locked") }

func TestEventRecorder_WhenStoreFails_DoesNotPanic(t *testing.T) {
	t.Parallel()

	require.NotPanics(t, func() {
		NewEventRecorder(failingStore{}).Notify(Event{Type: EventStarted})
	})
}
