package sqlstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/actorfabric/internal/adapters/sqlstore"
	"github.com/hugo-lorenzo-mato/actorfabric/internal/core"
	"github.com/hugo-lorenzo-mato/actorfabric/internal/testutil"
)

func newQueue(t *testing.T, opts ...sqlstore.QueueOption) (*sqlstore.Queue, *testutil.Clock) {
	t.Helper()
	clock := testutil.NewClock(time.Time{})
	opts = append([]sqlstore.QueueOption{sqlstore.WithClock(clock.Now)}, opts...)
	return sqlstore.NewQueue(newStore(t), opts...), clock
}

func msg(group, dedup, body string) core.Message {
	return core.Message{GroupKey: group, DedupID: dedup, Body: []byte(body)}
}

func TestQueue_GroupHeadOrdering(t *testing.T) {
	q, _ := newQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, msg("a", "1", "a1")))
	require.NoError(t, q.Enqueue(ctx, msg("a", "2", "a2")))
	require.NoError(t, q.Enqueue(ctx, msg("b", "3", "b1")))

	got, err := q.Receive(ctx, 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a1", string(got[0].Body))
	assert.Equal(t, "b1", string(got[1].Body))
	assert.Equal(t, 1, got[0].ReceiveCount)

	// a2 stays blocked while a1 is in flight.
	again, err := q.Receive(ctx, 10, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, again)

	require.NoError(t, q.Ack(ctx, got[0].Receipt))

	next, err := q.Receive(ctx, 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, next, 1)
	assert.Equal(t, "a2", string(next[0].Body))
}

func TestQueue_Dedup(t *testing.T) {
	q, clock := newQueue(t, sqlstore.WithDedupWindow(time.Minute))
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, msg("a", "same", "first")))
	require.NoError(t, q.Enqueue(ctx, msg("a", "same", "second")))

	live, _, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, live)

	clock.Advance(2 * time.Minute)
	require.NoError(t, q.Enqueue(ctx, msg("a", "same", "third")))

	live, _, err = q.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, live)
}

func TestQueue_VisibilityTimeoutRedelivers(t *testing.T) {
	q, clock := newQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, msg("a", "1", "a1")))

	first, err := q.Receive(ctx, 1, 30*time.Second)
	require.NoError(t, err)
	require.Len(t, first, 1)

	clock.Advance(31 * time.Second)

	second, err := q.Receive(ctx, 1, 30*time.Second)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, 2, second[0].ReceiveCount)
	assert.NotEqual(t, first[0].Receipt, second[0].Receipt)

	// The stale receipt no longer matches anything.
	require.NoError(t, q.Ack(ctx, first[0].Receipt))
	live, _, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, live)
}

func TestQueue_DeadLetterUnblocksGroup(t *testing.T) {
	q, clock := newQueue(t, sqlstore.WithMaxReceives(2))
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, msg("a", "1", "poison")))
	require.NoError(t, q.Enqueue(ctx, msg("a", "2", "next")))

	for i := 0; i < 2; i++ {
		got, err := q.Receive(ctx, 1, time.Second)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "poison", string(got[0].Body))
		clock.Advance(2 * time.Second)
	}

	got, err := q.Receive(ctx, 1, time.Second)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "next", string(got[0].Body))

	live, dead, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, live)
	assert.Equal(t, 1, dead)
}

func TestQueue_ReceiveZero(t *testing.T) {
	q, _ := newQueue(t)

	got, err := q.Receive(context.Background(), 0, time.Second)
	require.NoError(t, err)
	assert.Empty(t, got)
}
