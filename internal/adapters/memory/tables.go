// Package memory provides in-process implementations of every backend port.
// Records live in maps guarded by a mutex; nothing survives the process.
package memory

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/hugo-lorenzo-mato/actorfabric/internal/core"
)

// Tables implements the actor, lock and workflow tables.
type Tables struct {
	mu        sync.Mutex
	actors    map[string]core.ActorState
	locks     map[string]core.Lock
	workflows map[string]core.Workflow
}

// NewTables creates empty tables.
func NewTables() *Tables {
	return &Tables{
		actors:    make(map[string]core.ActorState),
		locks:     make(map[string]core.Lock),
		workflows: make(map[string]core.Workflow),
	}
}

// GetActor returns a copy of the stored record.
func (t *Tables) GetActor(_ context.Context, actorID string) (*core.ActorState, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.actors[actorID]
	if !ok {
		return nil, nil
	}
	return copyActor(st), nil
}

// PutActor writes state conditioned on expectedVersion.
func (t *Tables) PutActor(_ context.Context, state *core.ActorState, expectedVersion int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	current, ok := t.actors[state.ActorID]
	switch {
	case !ok && expectedVersion != 0:
		return core.ErrConditionFailed
	case ok && current.Version != expectedVersion:
		return core.ErrConditionFailed
	}
	t.actors[state.ActorID] = *copyActor(*state)
	return nil
}

func copyActor(st core.ActorState) *core.ActorState {
	out := st
	out.Data = append(json.RawMessage(nil), st.Data...)
	out.Alarms = make(map[string]int64, len(st.Alarms))
	for k, v := range st.Alarms {
		out.Alarms[k] = v
	}
	return &out
}

// InsertLock creates the lock when absent or expired.
func (t *Tables) InsertLock(_ context.Context, lock core.Lock, now time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if current, ok := t.locks[lock.ActorID]; ok && !current.Expired(now) {
		return core.ErrConditionFailed
	}
	t.locks[lock.ActorID] = lock
	return nil
}

// ExtendLock moves the expiry of a lock still owned by holder.
func (t *Tables) ExtendLock(_ context.Context, actorID, holder string, expiresAt time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	current, ok := t.locks[actorID]
	if !ok || current.Holder != holder {
		return core.ErrConditionFailed
	}
	current.ExpiresAt = expiresAt
	t.locks[actorID] = current
	return nil
}

// DeleteLock removes a lock still owned by holder.
func (t *Tables) DeleteLock(_ context.Context, actorID, holder string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	current, ok := t.locks[actorID]
	if !ok || current.Holder != holder {
		return core.ErrConditionFailed
	}
	delete(t.locks, actorID)
	return nil
}

// InsertWorkflow stores a new correlation record.
func (t *Tables) InsertWorkflow(_ context.Context, wf *core.Workflow) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	stored := *wf
	if wf.Output != nil {
		stored.Output = wf.Output.Clone()
	}
	t.workflows[wf.WorkflowID] = stored
	return nil
}

// ResolveWorkflow transitions a pending, unexpired record.
func (t *Tables) ResolveWorkflow(_ context.Context, workflowID string, output core.Payload, resolvedAt, now time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	wf, ok := t.workflows[workflowID]
	if !ok || wf.Status != core.WorkflowStatusPending || wf.Expired(now) {
		return core.ErrConditionFailed
	}
	wf.Status = core.WorkflowStatusResolved
	wf.Output = output.Clone()
	wf.ResolvedAt = &resolvedAt
	t.workflows[workflowID] = wf
	return nil
}

// GetWorkflow returns a copy of the stored record.
func (t *Tables) GetWorkflow(_ context.Context, workflowID string) (*core.Workflow, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	wf, ok := t.workflows[workflowID]
	if !ok {
		return nil, nil
	}
	if wf.Output != nil {
		wf.Output = wf.Output.Clone()
	}
	return &wf, nil
}

// Verify that Tables implements the table ports.
var (
	_ core.ActorTable    = (*Tables)(nil)
	_ core.LockTable     = (*Tables)(nil)
	_ core.WorkflowTable = (*Tables)(nil)
)
