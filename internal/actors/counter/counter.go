// Package counter is the built-in demo actor: a per-actor integer counter.
package counter

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/hugo-lorenzo-mato/actorfabric/internal/core"
	"github.com/hugo-lorenzo-mato/actorfabric/pkg/durable"
)

// Name is the actor type name.
const Name = "counter"

// State is the persisted counter.
type State struct {
	Count int `json:"count"`
}

var supportedMethods = []string{"GET", "POST", "PUT", "DELETE", "increment", "decrement", "set", "reset"}

// New wraps the counter handlers into an actor on rt.
func New(rt *durable.Runtime) *durable.Actor[State] {
	return durable.NewActor[State](rt, Name, Handle, durable.WithAsyncHandler(HandleAsync))
}

// Handle serves one synchronous request.
func Handle(ctx context.Context, ac *durable.ActorContext[State], req durable.Payload) (durable.Payload, error) {
	return apply(ctx, ac.ActorID, ac.State, req, func() error { return ac.Save(ctx) })
}

// apply runs one request against st. persist is called after every mutation.
func apply(ctx context.Context, actorID string, st *State, req durable.Payload, persist func() error) (durable.Payload, error) {
	method := stringField(req, "method")
	if method == "" {
		method = stringField(req, "action")
	}

	switch method {
	case "GET", "get":
		return durable.Payload{"count": st.Count, "actorId": actorID}, nil

	case "POST", "increment":
		by := amount(req, 1)
		st.Count += by
		if err := persist(); err != nil {
			return nil, err
		}
		return durable.Payload{"count": st.Count, "actorId": actorID, "incremented": by}, nil

	case "PUT", "set":
		old := st.Count
		st.Count = amount(req, 0)
		if err := persist(); err != nil {
			return nil, err
		}
		return durable.Payload{"count": st.Count, "previousCount": old}, nil

	case "DELETE", "reset":
		was := st.Count
		st.Count = 0
		if err := persist(); err != nil {
			return nil, err
		}
		return durable.Payload{"count": 0, "resetFrom": was}, nil

	case "decrement":
		by := amount(req, 1)
		st.Count -= by
		if err := persist(); err != nil {
			return nil, err
		}
		return durable.Payload{"count": st.Count, "decremented": by}, nil

	default:
		return durable.Payload{
			"error":            fmt.Sprintf("Unknown method: %s", method),
			"supportedMethods": supportedMethods,
		}, nil
	}
}

// HandleAsync processes mailbox messages and timer notifications. Messages
// are applied with a retrying load-modify-save; a message that is part of a
// call resolves the caller's workflow with the result. Signals apply their
// payload as a request. An alarm named "reset" zeroes the counter.
func HandleAsync(ctx context.Context, rt *durable.Runtime, inv durable.Invocation) error {
	logger := rt.Logger().WithActor(inv.ActorID)

	if eventType := stringField(inv.Payload, "type"); eventType == core.DetailTimerFired || eventType == core.DetailAlarmFired {
		alarm := stringField(inv.Payload, "alarmName")
		logger.Info("counter woke up", "type", eventType, "alarm", alarm)
		if alarm != "reset" {
			return nil
		}
		_, err := update(ctx, rt, inv, durable.Payload{"action": "reset"})
		return err
	}

	if inv.Source == core.SourceSignal {
		var req durable.Payload
		switch inner := inv.Payload["payload"].(type) {
		case durable.Payload:
			req = inner
		case map[string]any:
			req = inner
		}
		_, err := update(ctx, rt, inv, req)
		return err
	}

	requests := []durable.Payload{inv.Payload}
	env := core.Envelope{Payload: inv.Payload}
	if batch, ok := env.Batch(); ok {
		requests = batch
	}

	for _, req := range requests {
		result, err := update(ctx, rt, inv, req)
		if err != nil {
			return fmt.Errorf("applying request to %s: %w", inv.ActorID, err)
		}
		if workflowID, ok := req[core.WorkflowKey].(string); ok && workflowID != "" {
			if err := rt.Resolve(ctx, workflowID, result); err != nil {
				return err
			}
		}
		logger.Debug("counter message applied", "result", result)
	}
	return nil
}

func update(ctx context.Context, rt *durable.Runtime, inv durable.Invocation, req durable.Payload) (durable.Payload, error) {
	var result durable.Payload
	_, err := rt.Update(ctx, inv.ActorID, func(record *core.ActorState) error {
		var st State
		if err := json.Unmarshal(record.Data, &st); err != nil {
			return err
		}
		res, err := apply(ctx, inv.ActorID, &st, req, func() error { return nil })
		if err != nil {
			return err
		}
		data, err := json.Marshal(st)
		if err != nil {
			return err
		}
		record.Data = data
		if inv.EventID != "" {
			record.LastEventID = inv.EventID
		}
		result = res
		return nil
	})
	return result, err
}

func stringField(p durable.Payload, key string) string {
	s, _ := p[key].(string)
	return strings.TrimSpace(s)
}

// amount reads the numeric "amount" field, treating missing or zero as def.
func amount(p durable.Payload, def int) int {
	var n int
	switch v := p["amount"].(type) {
	case int:
		n = v
	case int64:
		n = int(v)
	case float64:
		n = int(math.Round(v))
	case json.Number:
		i, err := v.Int64()
		if err != nil {
			return def
		}
		n = int(i)
	}
	if n == 0 {
		return def
	}
	return n
}
