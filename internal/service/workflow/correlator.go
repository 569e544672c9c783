// Package workflow correlates cross-actor calls with their results.
package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hugo-lorenzo-mato/actorfabric/internal/core"
)

// Correlator creates, resolves and reads workflow records.
//
// Resolution is first-write-wins: only a PENDING, unexpired record becomes
// RESOLVED. Resolving again with the same output succeeds without writing, so
// redelivered messages are harmless. A different output is rejected.
type Correlator struct {
	table core.WorkflowTable
	ttl   time.Duration
	now   func() time.Time
	newID func() string
}

// Option configures a Correlator.
type Option func(*Correlator)

// WithTTL sets how long a record lives after creation.
func WithTTL(ttl time.Duration) Option {
	return func(c *Correlator) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock overrides the clock.
func WithClock(now func() time.Time) Option {
	return func(c *Correlator) { c.now = now }
}

// WithIDGenerator overrides how workflow ids are minted.
func WithIDGenerator(fn func() string) Option {
	return func(c *Correlator) { c.newID = fn }
}

// NewCorrelator creates a correlator over table.
func NewCorrelator(table core.WorkflowTable, opts ...Option) *Correlator {
	c := &Correlator{
		table: table,
		ttl:   core.DefaultWorkflowTTL,
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Create persists a fresh PENDING record and returns its id.
func (c *Correlator) Create(ctx context.Context) (string, error) {
	now := c.now().UTC()
	wf := &core.Workflow{
		WorkflowID: c.newID(),
		Status:     core.WorkflowStatusPending,
		CreatedAt:  now,
		ExpiresAt:  now.Add(c.ttl),
	}
	if err := c.table.InsertWorkflow(ctx, wf); err != nil {
		return "", fmt.Errorf("creating workflow: %w", err)
	}
	return wf.WorkflowID, nil
}

// Resolve records output for workflowID.
func (c *Correlator) Resolve(ctx context.Context, workflowID string, output core.Payload) error {
	if workflowID == "" {
		return core.ErrValidation(core.CodeInvalidPayload, "resolve requires a workflow id")
	}
	if output == nil {
		output = core.Payload{}
	}

	now := c.now().UTC()
	err := c.table.ResolveWorkflow(ctx, workflowID, output, now, now)
	if err == nil {
		return nil
	}
	if !errors.Is(err, core.ErrConditionFailed) {
		return fmt.Errorf("resolving workflow %s: %w", workflowID, err)
	}

	current, err := c.Get(ctx, workflowID)
	if err != nil {
		return err
	}
	switch {
	case current == nil:
		return core.ErrNotFound("workflow", workflowID)
	case current.IsResolved() && sameOutput(current.Output, output):
		return nil
	default:
		return core.ErrWorkflowAlreadyResolved(workflowID)
	}
}

// Get returns the current record, or nil when it does not exist or expired.
// It reads once and never waits for resolution.
func (c *Correlator) Get(ctx context.Context, workflowID string) (*core.Workflow, error) {
	wf, err := c.table.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("reading workflow %s: %w", workflowID, err)
	}
	if wf == nil || wf.Expired(c.now()) {
		return nil, nil
	}
	return wf, nil
}

func sameOutput(a, b core.Payload) bool {
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	return errA == nil && errB == nil && bytes.Equal(ja, jb)
}
