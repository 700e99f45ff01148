package batch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/btouchard/oibench/internal/broadcast"
	"github.com/btouchard/oibench/internal/task"
)

func newTestBatch(t *testing.T, ids ...string) *Batch {
	t.Helper()
	tasks := make([]task.Task, 0, len(ids))
	for _, id := range ids {
		tasks = append(tasks, task.Task{ID: id, Prompt: "prompt " + id})
	}
	b, err := New("batch-1", tasks, task.Command{Model: "test"})
	require.NoError(t, err)
	return b
}

func TestNew_KeepsSubmissionOrder(t *testing.T) {
	t.Parallel()

	b := newTestBatch(t, "c", "a", "b")

	assert.Equal(t, "batch-1", b.ID())
	assert.Equal(t, 3, b.Len())
	assert.Equal(t, []string{"c", "a", "b"}, b.IDs())
	assert.Equal(t, "test", b.Command().Model)
	assert.Equal(t, "a", b.Tasks()[1].ID)
	assert.Len(t, b.Entries(), 3)
}

func TestNew_WhenIDEmpty_GeneratesOne(t *testing.T) {
	t.Parallel()

	b, err := New("", nil, task.Command{})
	require.NoError(t, err)
	assert.NotEmpty(t, b.ID())
	assert.NotEqual(t, b.ID(), NewID())
}

func TestNew_RejectsDuplicateTaskIDs(t *testing.T) {
	t.Parallel()

	_, err := New("x", []task.Task{{ID: "a"}, {ID: "a"}}, task.Command{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestNew_RejectsEmptyTaskID(t *testing.T) {
	t.Parallel()

	_, err := New("x", []task.Task{{ID: ""}}, task.Command{})
	assert.Error(t, err)
}

func TestLookup_UnknownTask_ReturnsErrUnknownTask(t *testing.T) {
	t.Parallel()

	b := newTestBatch(t, "a")

	e, err := b.Lookup("a")
	require.NoError(t, err)
	assert.Equal(t, "a", e.Task.ID)

	_, err = b.Lookup("nope")
	assert.ErrorIs(t, err, ErrUnknownTask)
}

func TestStop_ClosesChannelOnce(t *testing.T) {
	t.Parallel()

	b := newTestBatch(t, "a")
	e, _ := b.Lookup("a")

	stopped, err := b.Stop("a")
	require.NoError(t, err)
	assert.True(t, stopped)
	assert.True(t, e.Channel.IsClosed())

	stopped, err = b.Stop("a")
	require.NoError(t, err)
	assert.False(t, stopped)

	_, err = b.Stop("nope")
	assert.ErrorIs(t, err, ErrUnknownTask)
}

func TestClose_ClosesAllChannels(t *testing.T) {
	t.Parallel()

	b := newTestBatch(t, "a", "b")
	sub, err := b.Updates().Attach()
	require.NoError(t, err)

	b.Close()

	for _, e := range b.Entries() {
		assert.True(t, e.Channel.IsClosed())
	}
	assert.True(t, b.Updates().IsClosed())
	<-sub.Done()

	_, err = b.Updates().Attach()
	assert.ErrorIs(t, err, broadcast.ErrClosed)
}

func TestPublish_WritesParseableUpdates(t *testing.T) {
	t.Parallel()

	b := newTestBatch(t, "a")
	require.NoError(t, b.Publish(Started("a")))
	require.NoError(t, b.Publish(Log("a", "boom")))
	require.NoError(t, b.Publish(Done("a", task.StatusError)))
	b.Close()

	_, err := b.Updates().Attach()
	require.ErrorIs(t, err, broadcast.ErrClosed)

	hist := b.Updates().History()
	require.Len(t, hist, 3)

	u, err := ParseUpdate(hist[0])
	require.NoError(t, err)
	assert.Equal(t, Started("a"), u)

	u, err = ParseUpdate(hist[1])
	require.NoError(t, err)
	assert.Equal(t, TagLog, u.Payload.Tag)
	assert.Equal(t, "boom", u.Payload.Message)

	u, err = ParseUpdate(hist[2])
	require.NoError(t, err)
	assert.Equal(t, TagDone, u.Payload.Tag)
	assert.Equal(t, task.StatusError, u.Payload.Status)
}

func TestUpdate_WireShape(t *testing.T) {
	t.Parallel()

	b := newTestBatch(t, "a")
	require.NoError(t, b.Publish(Started("a")))
	require.NoError(t, b.Publish(Done("a", task.StatusCorrect)))

	hist := b.Updates().History()
	assert.JSONEq(t, `{"task_id":"a","payload":{"tag":"started"}}`, string(hist[0]))
	assert.JSONEq(t, `{"task_id":"a","payload":{"tag":"done","status":"correct"}}`, string(hist[1]))
}

func TestUpdate_WireShape_EmptyFieldsStayPresent(t *testing.T) {
	t.Parallel()

	b := newTestBatch(t, "a")
	require.NoError(t, b.Publish(Log("a", "")))
	require.NoError(t, b.Publish(Log("a", "step 1")))
	require.NoError(t, b.Publish(Done("a", "")))

	hist := b.Updates().History()
	assert.JSONEq(t, `{"task_id":"a","payload":{"tag":"log","message":""}}`, string(hist[0]))
	assert.JSONEq(t, `{"task_id":"a","payload":{"tag":"log","message":"step 1"}}`, string(hist[1]))
	assert.JSONEq(t, `{"task_id":"a","payload":{"tag":"done","status":""}}`, string(hist[2]))

	u, err := ParseUpdate(hist[0])
	require.NoError(t, err)
	assert.Equal(t, Log("a", ""), u)
}

func TestParseUpdate_RejectsUnknownTag(t *testing.T) {
	t.Parallel()

	_, err := ParseUpdate([]byte(`{"task_id":"a","payload":{"tag":"weird"}}`))
	assert.Error(t, err)

	_, err = ParseUpdate([]byte(`not json`))
	assert.Error(t, err)
}

func TestEntry_StateTransitions(t *testing.T) {
	t.Parallel()

	b := newTestBatch(t, "a")
	e, _ := b.Lookup("a")

	assert.Equal(t, task.StatusPending, e.Status())
	_, ok := e.Result()
	assert.False(t, ok)

	e.SetRunning()
	snap := e.Snapshot()
	assert.Equal(t, task.StatusRunning, snap.Status)
	assert.False(t, snap.StartedAt.IsZero())
	assert.True(t, snap.FinishedAt.IsZero())

	require.NoError(t, e.Channel.Write([]byte("chunk")))
	e.SetResult(task.Result{TaskID: "a", Status: task.StatusCorrect})

	r, ok := e.Result()
	require.True(t, ok)
	assert.Equal(t, task.StatusCorrect, r.Status)

	snap = e.Snapshot()
	assert.Equal(t, task.StatusCorrect, snap.Status)
	assert.Equal(t, 1, snap.LogChunks)
	assert.False(t, snap.FinishedAt.IsZero())
	assert.NotEmpty(t, snap.FormatDuration())
}

func TestEntry_ChannelReplaysToLateObserver(t *testing.T) {
	t.Parallel()

	b := newTestBatch(t, "a")
	e, _ := b.Lookup("a")
	require.NoError(t, e.Channel.Write([]byte("one")))
	require.NoError(t, e.Channel.Write([]byte("two")))

	sub, err := e.Channel.Attach()
	require.NoError(t, err)
	b.Close()

	ctx := context.Background()
	var got []string
	for {
		msg, err := sub.Next(ctx)
		if err != nil {
			break
		}
		got = append(got, string(msg))
	}
	assert.Equal(t, []string{"one", "two"}, got)
}
