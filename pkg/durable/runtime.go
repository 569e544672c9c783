// Package durable gives plain handler functions actor semantics: versioned
// per-actor state, advisory leases, ordered mailboxes with coalescing,
// call/response correlation and scheduled wake-ups.
//
// A Runtime composes the services over a set of backends. Actor wraps a
// handler into a dispatchable unit with a synchronous and an asynchronous
// mode. Context is the facade for code that coordinates other actors.
package durable

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/hugo-lorenzo-mato/actorfabric/internal/core"
	"github.com/hugo-lorenzo-mato/actorfabric/internal/logging"
	"github.com/hugo-lorenzo-mato/actorfabric/internal/service/lock"
	"github.com/hugo-lorenzo-mato/actorfabric/internal/service/mailbox"
	"github.com/hugo-lorenzo-mato/actorfabric/internal/service/scheduler"
	"github.com/hugo-lorenzo-mato/actorfabric/internal/service/state"
	"github.com/hugo-lorenzo-mato/actorfabric/internal/service/workflow"
)

// Re-exported domain types.
type (
	Payload    = core.Payload
	ActorState = core.ActorState
	Workflow   = core.Workflow
	Invocation = core.Invocation
	Mode       = core.Mode
	Delay      = core.Delay
	Backends   = core.Backends
	Lease      = lock.Lease
)

// Invocation modes.
const (
	ModeSync  = core.ModeSync
	ModeAsync = core.ModeAsync
)

// Options configures a Runtime. Zero values pick defaults.
type Options struct {
	// HolderToken identifies this process to the lock table. A random token
	// is generated when empty.
	HolderToken    string
	BusName        string
	LockTTL        time.Duration
	WorkflowTTL    time.Duration
	CoalesceWindow time.Duration
	Logger         *logging.Logger
	Clock          func() time.Time
}

// Runtime is the composition of the state store, lock manager, mailbox,
// scheduler and workflow correlator over one set of backends.
type Runtime struct {
	state     *state.Store
	locks     *lock.Manager
	mailbox   *mailbox.Service
	scheduler *scheduler.Scheduler
	workflows *workflow.Correlator

	backends *core.Backends
	logger   *logging.Logger
	lockTTL  time.Duration
}

// NewRuntime wires the services over backends.
func NewRuntime(backends *core.Backends, opts Options) (*Runtime, error) {
	if backends == nil {
		return nil, core.ErrValidation(core.CodeInvalidSetting, "backends are required")
	}
	if err := backends.Validate(); err != nil {
		return nil, err
	}
	if opts.HolderToken == "" {
		opts.HolderToken = uuid.NewString()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = lock.DefaultTTL
	}

	logger := opts.Logger
	return &Runtime{
		state: state.NewStore(backends.Actors, state.WithClock(opts.Clock)),
		locks: lock.NewManager(backends.Locks, opts.HolderToken,
			lock.WithClock(opts.Clock), lock.WithLogger(logger.WithComponent("lock"))),
		mailbox: mailbox.New(backends.Queue,
			mailbox.WithLogger(logger.WithComponent("mailbox")),
			mailbox.WithCoalesceWindow(opts.CoalesceWindow)),
		scheduler: scheduler.New(backends.Bus, opts.BusName, scheduler.WithClock(opts.Clock)),
		workflows: workflow.NewCorrelator(backends.Workflows,
			workflow.WithClock(opts.Clock), workflow.WithTTL(opts.WorkflowTTL)),
		backends: backends,
		logger:   logger,
		lockTTL:  opts.LockTTL,
	}, nil
}

// Logger returns the runtime logger.
func (r *Runtime) Logger() *logging.Logger { return r.logger }

// HolderToken returns the token this runtime uses for leases.
func (r *Runtime) HolderToken() string { return r.locks.Holder() }

// Context returns the facade used to coordinate other actors.
func (r *Runtime) Context() *Context { return &Context{rt: r} }

// Close flushes coalesced requests and releases the backends.
func (r *Runtime) Close(ctx context.Context) error {
	r.mailbox.Flush(ctx)
	return r.backends.Close()
}

// State store.

// Load returns the actor record, or a version 0 default.
func (r *Runtime) Load(ctx context.Context, actorID string) (*ActorState, error) {
	return r.state.Load(ctx, actorID)
}

// Save persists st with optimistic concurrency and advances st.Version.
func (r *Runtime) Save(ctx context.Context, st *ActorState) error {
	return r.state.Save(ctx, st)
}

// Update runs load-mutate-save, retrying on version conflicts.
func (r *Runtime) Update(ctx context.Context, actorID string, mutate func(*ActorState) error) (*ActorState, error) {
	return r.state.Update(ctx, actorID, mutate)
}

// Lock manager.

// Acquire takes the lease on actorID; false means another holder has it.
func (r *Runtime) Acquire(ctx context.Context, actorID string, ttl time.Duration) (bool, error) {
	return r.locks.Acquire(ctx, actorID, r.ttl(ttl))
}

// Renew extends the lease on actorID or fails with LOCK_LOST.
func (r *Runtime) Renew(ctx context.Context, actorID string, ttl time.Duration) error {
	return r.locks.Renew(ctx, actorID, r.ttl(ttl))
}

// Release drops the lease on actorID. It never fails.
func (r *Runtime) Release(ctx context.Context, actorID string) {
	r.locks.Release(ctx, actorID)
}

// Hold acquires actorID and keeps renewing it until the lease is released.
func (r *Runtime) Hold(ctx context.Context, actorID string, ttl time.Duration) (*Lease, error) {
	return r.locks.Hold(ctx, actorID, r.ttl(ttl))
}

func (r *Runtime) ttl(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return r.lockTTL
	}
	return ttl
}

// Mailbox.

// Send enqueues payload for actorID and returns the dedup id used.
func (r *Runtime) Send(ctx context.Context, actorID string, payload Payload, dedupID string) (string, error) {
	return r.mailbox.Send(ctx, actorID, payload, dedupID)
}

// Coalesce buffers request into the current batch for actorID and returns
// the batch id.
func (r *Runtime) Coalesce(ctx context.Context, actorID string, request Payload, window time.Duration) (string, error) {
	return r.mailbox.Coalesce(ctx, actorID, request, window)
}

// Scheduler.

// Sleep schedules a TimerFired notification.
func (r *Runtime) Sleep(ctx context.Context, actorID string, delay Delay) (time.Time, error) {
	return r.scheduler.Sleep(ctx, actorID, delay)
}

// SetAlarm schedules an AlarmFired notification.
func (r *Runtime) SetAlarm(ctx context.Context, actorID, name string, delay Delay) (time.Time, error) {
	return r.scheduler.SetAlarm(ctx, actorID, name, delay)
}

// Signal publishes an immediate notification to target.
func (r *Runtime) Signal(ctx context.Context, target, eventType string, payload Payload) error {
	return r.scheduler.Signal(ctx, target, eventType, payload)
}

// Workflows.

// CreateWorkflow allocates a PENDING correlation record.
func (r *Runtime) CreateWorkflow(ctx context.Context) (string, error) {
	return r.workflows.Create(ctx)
}

// Resolve records the output of a workflow.
func (r *Runtime) Resolve(ctx context.Context, workflowID string, output Payload) error {
	return r.workflows.Resolve(ctx, workflowID, output)
}

// GetWorkflow reads a workflow once; nil means absent or expired.
func (r *Runtime) GetWorkflow(ctx context.Context, workflowID string) (*Workflow, error) {
	return r.workflows.Get(ctx, workflowID)
}

// Queue exposes the mailbox queue to consumers.
func (r *Runtime) Queue() core.Queue { return r.backends.Queue }

// IsConflict reports whether err is an optimistic concurrency conflict.
func IsConflict(err error) bool { return core.IsCode(err, core.CodeOptimisticConflict) }

// IsLockLost reports whether err means a held lease was lost.
func IsLockLost(err error) bool { return core.IsCode(err, core.CodeLockLost) }

// IsLockUnavailable reports whether err means a lease is held elsewhere.
func IsLockUnavailable(err error) bool { return core.IsCode(err, core.CodeLockUnavailable) }

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool {
	var domErr *core.DomainError
	return errors.As(err, &domErr) && domErr.Category == core.ErrCatNotFound
}
