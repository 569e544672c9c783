package memory

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/actorfabric/internal/core"
)

func TestTables_PutActorConditional(t *testing.T) {
	ctx := context.Background()
	tables := NewTables()

	st := core.NewActorState("a1", time.Now())
	st.Version = 1
	require.NoError(t, tables.PutActor(ctx, st, 0))

	// Expecting absence again must fail now that a record exists.
	assert.ErrorIs(t, tables.PutActor(ctx, st, 0), core.ErrConditionFailed)

	st.Version = 2
	st.Data = json.RawMessage(`{"n":1}`)
	require.NoError(t, tables.PutActor(ctx, st, 1))

	got, err := tables.GetActor(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
	assert.JSONEq(t, `{"n":1}`, string(got.Data))

	// Mutating the returned copy does not leak into the table.
	got.Alarms["x"] = 1
	again, _ := tables.GetActor(ctx, "a1")
	assert.NotContains(t, again.Alarms, "x")
}

func TestTables_PutActorMissingWithVersion(t *testing.T) {
	tables := NewTables()
	st := core.NewActorState("ghost", time.Now())
	assert.ErrorIs(t, tables.PutActor(context.Background(), st, 4), core.ErrConditionFailed)
}

func TestTables_LockLifecycle(t *testing.T) {
	ctx := context.Background()
	tables := NewTables()
	now := time.Now()

	lock := core.Lock{ActorID: "a1", Holder: "h1", AcquiredAt: now, ExpiresAt: now.Add(time.Second)}
	require.NoError(t, tables.InsertLock(ctx, lock, now))

	other := core.Lock{ActorID: "a1", Holder: "h2", AcquiredAt: now, ExpiresAt: now.Add(time.Second)}
	assert.ErrorIs(t, tables.InsertLock(ctx, other, now), core.ErrConditionFailed)

	assert.ErrorIs(t, tables.ExtendLock(ctx, "a1", "h2", now.Add(time.Minute)), core.ErrConditionFailed)
	require.NoError(t, tables.ExtendLock(ctx, "a1", "h1", now.Add(time.Minute)))

	// Past the extended expiry another holder can reclaim.
	later := now.Add(2 * time.Minute)
	require.NoError(t, tables.InsertLock(ctx, other, later))

	assert.ErrorIs(t, tables.DeleteLock(ctx, "a1", "h1"), core.ErrConditionFailed)
	require.NoError(t, tables.DeleteLock(ctx, "a1", "h2"))
}

func TestTables_ResolveWorkflow(t *testing.T) {
	ctx := context.Background()
	tables := NewTables()
	now := time.Now()

	wf := &core.Workflow{WorkflowID: "w1", Status: core.WorkflowStatusPending, CreatedAt: now, ExpiresAt: now.Add(time.Minute)}
	require.NoError(t, tables.InsertWorkflow(ctx, wf))

	require.NoError(t, tables.ResolveWorkflow(ctx, "w1", core.Payload{"x": 1}, now, now))
	assert.ErrorIs(t, tables.ResolveWorkflow(ctx, "w1", core.Payload{"x": 2}, now, now), core.ErrConditionFailed)
	assert.ErrorIs(t, tables.ResolveWorkflow(ctx, "missing", nil, now, now), core.ErrConditionFailed)

	got, err := tables.GetWorkflow(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, core.WorkflowStatusResolved, got.Status)
	assert.Equal(t, 1, got.Output["x"])
}

func TestTables_GetWorkflowReturnsCopy(t *testing.T) {
	ctx := context.Background()
	tables := NewTables()
	now := time.Now()

	require.NoError(t, tables.InsertWorkflow(ctx, &core.Workflow{
		WorkflowID: "w1", Status: core.WorkflowStatusPending, CreatedAt: now, ExpiresAt: now.Add(time.Minute),
	}))
	require.NoError(t, tables.ResolveWorkflow(ctx, "w1", core.Payload{"x": 1}, now, now))

	got, err := tables.GetWorkflow(ctx, "w1")
	require.NoError(t, err)
	got.Output["x"] = 999
	got.Output["extra"] = true

	again, err := tables.GetWorkflow(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, core.Payload{"x": 1}, again.Output)
}
