package core

import (
	"context"
	"time"
)

// =============================================================================
// Backend Ports
// =============================================================================

// ActorTable persists versioned actor records.
type ActorTable interface {
	// GetActor returns the stored record, or nil when none exists.
	GetActor(ctx context.Context, actorID string) (*ActorState, error)

	// PutActor writes state only if the stored version equals expectedVersion,
	// or no record exists when expectedVersion is 0. Otherwise it returns
	// ErrConditionFailed and leaves the stored record untouched.
	PutActor(ctx context.Context, state *ActorState, expectedVersion int64) error
}

// LockTable persists actor leases.
type LockTable interface {
	// InsertLock creates or overwrites the lock only when no lock exists or the
	// stored one expired before now. Otherwise it returns ErrConditionFailed.
	InsertLock(ctx context.Context, lock Lock, now time.Time) error

	// ExtendLock moves expiresAt forward when holder still owns the lock.
	ExtendLock(ctx context.Context, actorID, holder string, expiresAt time.Time) error

	// DeleteLock removes the lock when holder still owns it.
	DeleteLock(ctx context.Context, actorID, holder string) error
}

// WorkflowTable persists correlation records.
type WorkflowTable interface {
	InsertWorkflow(ctx context.Context, wf *Workflow) error

	// ResolveWorkflow marks a PENDING record that has not expired at now as
	// RESOLVED. Any other stored state yields ErrConditionFailed.
	ResolveWorkflow(ctx context.Context, workflowID string, output Payload, resolvedAt, now time.Time) error

	// GetWorkflow returns the stored record, or nil when none exists.
	GetWorkflow(ctx context.Context, workflowID string) (*Workflow, error)
}

// Queue is an ordered, deduplicated message queue. Ordering and visibility
// are scoped to the message group key.
type Queue interface {
	// Enqueue appends msg to its group. A DedupID already seen within the
	// dedup window is accepted without creating a second message.
	Enqueue(ctx context.Context, msg Message) error

	// Receive returns up to max visible messages, at most one per group, and
	// hides them for the visibility timeout.
	Receive(ctx context.Context, max int, visibility time.Duration) ([]Delivery, error)

	// Ack removes a received message.
	Ack(ctx context.Context, receipt string) error
}

// Bus publishes notifications. Events whose Time lies in the future are
// delivered by the backend at that time.
type Bus interface {
	PutEvents(ctx context.Context, events ...BusEvent) error
}

// Backends groups the capabilities the runtime composes.
type Backends struct {
	Actors    ActorTable
	Locks     LockTable
	Workflows WorkflowTable
	Queue     Queue
	Bus       Bus

	// Closer releases backend resources; may be nil.
	Closer func() error
}

// Close releases backend resources.
func (b *Backends) Close() error {
	if b.Closer == nil {
		return nil
	}
	return b.Closer()
}

// Validate ensures every port is wired.
func (b *Backends) Validate() error {
	switch {
	case b.Actors == nil:
		return ErrValidation(CodeInvalidSetting, "actor table backend is required")
	case b.Locks == nil:
		return ErrValidation(CodeInvalidSetting, "lock table backend is required")
	case b.Workflows == nil:
		return ErrValidation(CodeInvalidSetting, "workflow table backend is required")
	case b.Queue == nil:
		return ErrValidation(CodeInvalidSetting, "queue backend is required")
	case b.Bus == nil:
		return ErrValidation(CodeInvalidSetting, "event bus backend is required")
	}
	return nil
}
