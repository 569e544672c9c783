package durable

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hugo-lorenzo-mato/actorfabric/internal/core"
	"github.com/hugo-lorenzo-mato/actorfabric/internal/logging"
)

// SyncHandler runs a synchronous invocation against loaded actor state. A nil
// result is answered with {"ok": true, "state": <state>}.
type SyncHandler[T any] func(ctx context.Context, ac *ActorContext[T], payload Payload) (Payload, error)

// AsyncHandler runs an asynchronous invocation. State is not preloaded; the
// handler gets the whole runtime and the raw invocation.
type AsyncHandler func(ctx context.Context, rt *Runtime, inv Invocation) error

// Invoker dispatches invocations. Actor implements it.
type Invoker interface {
	Invoke(ctx context.Context, inv Invocation) (Payload, error)
}

// Actor turns handlers into a dispatchable unit.
type Actor[T any] struct {
	name   string
	rt     *Runtime
	sync   SyncHandler[T]
	async  AsyncHandler
	logger *logging.Logger
}

// ActorOption configures an Actor.
type ActorOption func(*actorConfig)

type actorConfig struct {
	async AsyncHandler
}

// WithAsyncHandler sets the handler for asynchronous invocations. Without
// one, async invocations are acknowledged and logged.
func WithAsyncHandler(h AsyncHandler) ActorOption {
	return func(c *actorConfig) { c.async = h }
}

// NewActor wraps handler into an Actor named name.
func NewActor[T any](rt *Runtime, name string, handler SyncHandler[T], opts ...ActorOption) *Actor[T] {
	var cfg actorConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Actor[T]{
		name:   name,
		rt:     rt,
		sync:   handler,
		async:  cfg.async,
		logger: rt.Logger().With("actor_type", name),
	}
}

// Name returns the actor type name.
func (a *Actor[T]) Name() string { return a.name }

// Invoke dispatches inv by mode.
func (a *Actor[T]) Invoke(ctx context.Context, inv Invocation) (Payload, error) {
	if inv.ActorID == "" {
		return nil, core.ErrValidation(core.CodeInvalidPayload, "invocation requires an actor id")
	}
	switch inv.Mode {
	case core.ModeSync:
		return a.invokeSync(ctx, inv)
	case core.ModeAsync:
		return a.invokeAsync(ctx, inv), nil
	default:
		return nil, core.ErrValidation(core.CodeInvalidMode, fmt.Sprintf("unsupported invocation mode %s", inv.Mode))
	}
}

func (a *Actor[T]) invokeSync(ctx context.Context, inv Invocation) (Payload, error) {
	if a.sync == nil {
		return nil, core.ErrValidation(core.CodeInvalidMode, fmt.Sprintf("actor %s has no synchronous handler", a.name))
	}
	record, err := a.rt.Load(ctx, inv.ActorID)
	if err != nil {
		return nil, err
	}
	ac, err := newActorContext[T](a.rt, record, inv)
	if err != nil {
		return nil, err
	}

	payload := inv.Payload
	if payload == nil {
		payload = Payload{}
	}
	result, err := a.sync(ctx, ac, payload)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return Payload{"ok": true, "state": ac.State}, nil
	}
	return result, nil
}

func (a *Actor[T]) invokeAsync(ctx context.Context, inv Invocation) Payload {
	ack := Payload{"ok": true, "processed": true, "actorId": inv.ActorID}
	logger := a.logger.WithActor(inv.ActorID)
	if inv.EventID != "" {
		logger = logger.WithEvent(inv.EventID)
	}

	if a.async == nil {
		logger.Warn("async invocation without async handler", "source", inv.Source)
		return ack
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("async handler panicked", "panic", fmt.Sprint(r))
		}
	}()
	if err := a.async(ctx, a.rt, inv); err != nil {
		logger.Error("async handler failed", "error", err)
	}
	return ack
}

// ActorContext is the per-invocation view a synchronous handler works on.
// Mutate State in place and call Save, or hand a replacement to SaveState.
type ActorContext[T any] struct {
	ActorID string
	State   *T

	rt     *Runtime
	record *core.ActorState
	inv    Invocation
}

func newActorContext[T any](rt *Runtime, record *core.ActorState, inv Invocation) (*ActorContext[T], error) {
	st := new(T)
	if len(record.Data) > 0 {
		if err := json.Unmarshal(record.Data, st); err != nil {
			return nil, core.ErrValidation(core.CodeInvalidPayload,
				fmt.Sprintf("stored state of %s does not decode: %v", inv.ActorID, err))
		}
	}
	return &ActorContext[T]{
		ActorID: inv.ActorID,
		State:   st,
		rt:      rt,
		record:  record,
		inv:     inv,
	}, nil
}

// Version is the stored version the state was loaded at, advanced by each
// successful save.
func (c *ActorContext[T]) Version() int64 { return c.record.Version }

// Alarms returns the scheduled alarms as name to fire time.
func (c *ActorContext[T]) Alarms() map[string]time.Time {
	out := make(map[string]time.Time, len(c.record.Alarms))
	for name, ms := range c.record.Alarms {
		out[name] = core.FromUnixMilli(ms)
	}
	return out
}

// Save persists the current State. It fails with OPTIMISTIC_CONFLICT when
// another writer saved since the state was loaded.
func (c *ActorContext[T]) Save(ctx context.Context) error {
	data, err := json.Marshal(c.State)
	if err != nil {
		return core.ErrValidation(core.CodeInvalidPayload, fmt.Sprintf("encoding state of %s: %v", c.ActorID, err))
	}
	c.record.Data = data
	if c.inv.EventID != "" {
		c.record.LastEventID = c.inv.EventID
	}
	return c.rt.Save(ctx, c.record)
}

// SaveState replaces State with ns and persists it.
func (c *ActorContext[T]) SaveState(ctx context.Context, ns T) error {
	*c.State = ns
	return c.Save(ctx)
}

// Resolve records the output of a workflow this actor was called under.
func (c *ActorContext[T]) Resolve(ctx context.Context, workflowID string, output Payload) error {
	return c.rt.Resolve(ctx, workflowID, output)
}

// WorkflowID returns the correlation id carried by the payload, if the
// invocation is part of a call.
func (c *ActorContext[T]) WorkflowID() string {
	id, _ := c.inv.Payload[core.WorkflowKey].(string)
	return id
}

// SetAlarm schedules an alarm for this actor and records it in the actor's
// alarms. The record is persisted with the next Save.
func (c *ActorContext[T]) SetAlarm(ctx context.Context, name string, delay Delay) error {
	at, err := c.rt.SetAlarm(ctx, c.ActorID, name, delay)
	if err != nil {
		return err
	}
	if c.record.Alarms == nil {
		c.record.Alarms = map[string]int64{}
	}
	c.record.Alarms[name] = core.UnixMilli(at)
	return nil
}

// Sleep schedules a TimerFired notification for this actor.
func (c *ActorContext[T]) Sleep(ctx context.Context, delay Delay) error {
	_, err := c.rt.Sleep(ctx, c.ActorID, delay)
	return err
}

// Send enqueues payload for another actor.
func (c *ActorContext[T]) Send(ctx context.Context, actorID string, payload Payload) error {
	_, err := c.rt.Send(ctx, actorID, payload, "")
	return err
}
