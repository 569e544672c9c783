package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/actorfabric/internal/adapters/memory"
	"github.com/hugo-lorenzo-mato/actorfabric/internal/core"
)

func TestLease_HoldAndRelease(t *testing.T) {
	ctx := context.Background()
	tables := memory.NewTables()
	m := NewManager(tables, "h1")
	other := NewManager(tables, "h2")

	lease, err := m.Hold(ctx, "a1", 60*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "a1", lease.ActorID())

	// Outlive the ttl several times; renewal keeps the lease.
	time.Sleep(200 * time.Millisecond)
	ok, err := other.Acquire(ctx, "a1", time.Second)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, lease.Context().Err())

	require.NoError(t, lease.Release())
	assert.Error(t, lease.Context().Err())

	ok, err = other.Acquire(ctx, "a1", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLease_HoldContended(t *testing.T) {
	ctx := context.Background()
	tables := memory.NewTables()
	ok, _ := NewManager(tables, "h2").Acquire(ctx, "a1", time.Minute)
	require.True(t, ok)

	_, err := NewManager(tables, "h1").Hold(ctx, "a1", time.Minute)
	assert.True(t, core.IsCode(err, core.CodeLockUnavailable))
}

func TestLease_LostCancelsContext(t *testing.T) {
	ctx := context.Background()
	tables := memory.NewTables()
	m := NewManager(tables, "h1")

	lease, err := m.Hold(ctx, "a1", 30*time.Millisecond)
	require.NoError(t, err)

	// Someone removes the lock out from under the holder.
	require.NoError(t, tables.DeleteLock(ctx, "a1", "h1"))

	select {
	case <-lease.Context().Done():
	case <-time.After(time.Second):
		t.Fatal("lease context not cancelled after loss")
	}
	assert.True(t, core.IsCode(lease.Err(), core.CodeLockLost))
	assert.True(t, core.IsCode(lease.Release(), core.CodeLockLost))
}
