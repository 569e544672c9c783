package durable

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hugo-lorenzo-mato/actorfabric/internal/core"
)

// Context composes the services for code that coordinates other actors.
type Context struct {
	rt *Runtime
}

// Save replaces the data of actorID with newState. The write is conditioned
// on the version just read; callers retry on an OPTIMISTIC_CONFLICT error.
func (c *Context) Save(ctx context.Context, actorID string, newState any) error {
	data, err := json.Marshal(newState)
	if err != nil {
		return core.ErrValidation(core.CodeInvalidPayload, fmt.Sprintf("encoding state for %s: %v", actorID, err))
	}
	st, err := c.rt.Load(ctx, actorID)
	if err != nil {
		return err
	}
	st.Data = data
	return c.rt.Save(ctx, st)
}

// Send enqueues payload for actorID.
func (c *Context) Send(ctx context.Context, actorID string, payload Payload) error {
	_, err := c.rt.Send(ctx, actorID, payload, "")
	return err
}

// Call starts a cross-actor call. It creates a workflow, sends payload with
// the workflow id under "_workflowId" to target, and reads the workflow once.
// The returned record is usually still PENDING; callers poll GetWorkflow
// themselves when they need the result.
func (c *Context) Call(ctx context.Context, source, target string, payload Payload) (*Workflow, error) {
	workflowID, err := c.rt.CreateWorkflow(ctx)
	if err != nil {
		return nil, err
	}

	msg := payload.Clone()
	msg[core.WorkflowKey] = workflowID
	if _, err := c.rt.Send(ctx, target, msg, ""); err != nil {
		return nil, err
	}
	c.rt.logger.WithWorkflow(workflowID).Debug("call sent", "source", source, "target", target)

	return c.rt.GetWorkflow(ctx, workflowID)
}

// SetAlarm schedules an AlarmFired notification for actorID.
func (c *Context) SetAlarm(ctx context.Context, actorID, name string, delay Delay) (time.Time, error) {
	return c.rt.SetAlarm(ctx, actorID, name, delay)
}
