package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/actorfabric/internal/adapters/memory"
	"github.com/hugo-lorenzo-mato/actorfabric/internal/core"
	"github.com/hugo-lorenzo-mato/actorfabric/internal/testutil"
)

func TestCorrelator_CreateResolveGet(t *testing.T) {
	ctx := context.Background()
	c := testutil.NewClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	corr := NewCorrelator(memory.NewTables(), WithClock(c.Now))

	id, err := corr.Create(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	wf, err := corr.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, wf)
	assert.Equal(t, core.WorkflowStatusPending, wf.Status)
	assert.Equal(t, c.Now().Add(core.DefaultWorkflowTTL), wf.ExpiresAt)
	assert.Nil(t, wf.ResolvedAt)

	c.Advance(time.Second)
	require.NoError(t, corr.Resolve(ctx, id, core.Payload{"x": 1}))

	wf, err = corr.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, core.WorkflowStatusResolved, wf.Status)
	assert.Equal(t, core.Payload{"x": 1}, wf.Output)
	require.NotNil(t, wf.ResolvedAt)
	assert.Equal(t, c.Now(), *wf.ResolvedAt)
}

func TestCorrelator_FirstWriteWins(t *testing.T) {
	ctx := context.Background()
	corr := NewCorrelator(memory.NewTables())

	id, err := corr.Create(ctx)
	require.NoError(t, err)
	require.NoError(t, corr.Resolve(ctx, id, core.Payload{"x": 1}))

	// Identical redelivery is a no-op.
	assert.NoError(t, corr.Resolve(ctx, id, core.Payload{"x": 1}))

	err = corr.Resolve(ctx, id, core.Payload{"x": 2})
	assert.True(t, core.IsCode(err, core.CodeWorkflowAlreadyResolved))
	assert.True(t, core.IsCategory(err, core.ErrCatConflict))

	wf, _ := corr.Get(ctx, id)
	assert.Equal(t, 1, wf.Output["x"])
}

func TestCorrelator_ResolveUnknown(t *testing.T) {
	corr := NewCorrelator(memory.NewTables())
	err := corr.Resolve(context.Background(), "missing", core.Payload{})
	assert.True(t, core.IsCategory(err, core.ErrCatNotFound))

	err = corr.Resolve(context.Background(), "", core.Payload{})
	assert.True(t, core.IsCategory(err, core.ErrCatValidation))
}

func TestCorrelator_ExpiredRecords(t *testing.T) {
	ctx := context.Background()
	c := testutil.NewClock(time.Now())
	corr := NewCorrelator(memory.NewTables(), WithClock(c.Now), WithTTL(time.Minute))

	id, err := corr.Create(ctx)
	require.NoError(t, err)

	c.Advance(2 * time.Minute)
	wf, err := corr.Get(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, wf, "expired record reads as absent")

	err = corr.Resolve(ctx, id, core.Payload{"late": true})
	assert.True(t, core.IsCategory(err, core.ErrCatNotFound))
}

func TestCorrelator_GetAbsent(t *testing.T) {
	wf, err := NewCorrelator(memory.NewTables()).Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, wf)
}

type brokenTable struct{}

var errOffline = errors.New("offline")

func (brokenTable) InsertWorkflow(context.Context, *core.Workflow) error { return errOffline }
func (brokenTable) ResolveWorkflow(context.Context, string, core.Payload, time.Time, time.Time) error {
	return errOffline
}
func (brokenTable) GetWorkflow(context.Context, string) (*core.Workflow, error) { return nil, errOffline }

func TestCorrelator_BackendFaults(t *testing.T) {
	ctx := context.Background()
	corr := NewCorrelator(brokenTable{}, WithIDGenerator(func() string { return "w1" }))

	_, err := corr.Create(ctx)
	assert.ErrorIs(t, err, errOffline)
	assert.ErrorIs(t, corr.Resolve(ctx, "w1", nil), errOffline)
	_, err = corr.Get(ctx, "w1")
	assert.ErrorIs(t, err, errOffline)
}
