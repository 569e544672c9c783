package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/actorfabric/internal/core"
	"github.com/hugo-lorenzo-mato/actorfabric/internal/testutil"
)

func enqueue(t *testing.T, q *Queue, group, dedup, body string) {
	t.Helper()
	require.NoError(t, q.Enqueue(context.Background(), core.Message{GroupKey: group, DedupID: dedup, Body: []byte(body)}))
}

func TestQueue_OrderWithinGroup(t *testing.T) {
	ctx := context.Background()
	q := NewQueue()
	enqueue(t, q, "a", "1", "a1")
	enqueue(t, q, "b", "2", "b1")
	enqueue(t, q, "a", "3", "a2")

	got, err := q.Receive(ctx, 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, got, 2, "one head per group")
	assert.Equal(t, "a1", string(got[0].Body))
	assert.Equal(t, "b1", string(got[1].Body))

	// a2 stays hidden behind the in-flight a1.
	more, err := q.Receive(ctx, 10, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, more)

	require.NoError(t, q.Ack(ctx, got[0].Receipt))
	more, err = q.Receive(ctx, 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, more, 1)
	assert.Equal(t, "a2", string(more[0].Body))
}

func TestQueue_Dedup(t *testing.T) {
	clock := testutil.NewClock(time.Now())
	q := NewQueue(WithClock(clock.Now), WithDedupWindow(time.Minute))
	enqueue(t, q, "a", "same", "first")
	enqueue(t, q, "a", "same", "second")
	assert.Equal(t, 1, q.Len())

	clock.Advance(2 * time.Minute)
	enqueue(t, q, "a", "same", "third")
	assert.Equal(t, 2, q.Len())
}

func TestQueue_VisibilityAndDeadLetter(t *testing.T) {
	ctx := context.Background()
	clock := testutil.NewClock(time.Now())
	q := NewQueue(WithClock(clock.Now), WithMaxReceives(2))
	enqueue(t, q, "a", "1", "poison")
	enqueue(t, q, "a", "2", "next")

	for i := 0; i < 2; i++ {
		got, err := q.Receive(ctx, 1, time.Second)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "poison", string(got[0].Body))
		assert.Equal(t, i+1, got[0].ReceiveCount)
		clock.Advance(2 * time.Second)
	}

	got, err := q.Receive(ctx, 1, time.Second)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "next", string(got[0].Body))
	require.Len(t, q.DeadLetters(), 1)
}
