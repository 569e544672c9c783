package dispatch

import (
	"context"
	"encoding/json"

	"github.com/hugo-lorenzo-mato/actorfabric/internal/core"
	"github.com/hugo-lorenzo-mato/actorfabric/internal/logging"
)

// Subscriber is the part of the event bus the consumer needs.
type Subscriber interface {
	SubscribePriority(types ...string) <-chan core.BusEvent
	Unsubscribe(ch <-chan core.BusEvent)
}

// BusConsumer turns timer, alarm and signal notifications into asynchronous
// invocations of the target actor.
//
// Timer and alarm invocations carry {"type": detailType, "alarmName": name};
// signals carry {"type": detailType, "payload": signal payload}.
type BusConsumer struct {
	bus     Subscriber
	invoker Invoker
	logger  *logging.Logger
}

// NewBusConsumer creates a consumer.
func NewBusConsumer(bus Subscriber, invoker Invoker, logger *logging.Logger) *BusConsumer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &BusConsumer{bus: bus, invoker: invoker, logger: logger.WithComponent("bus-consumer")}
}

// Run consumes until ctx is done or the bus closes.
func (c *BusConsumer) Run(ctx context.Context) error {
	ch := c.bus.SubscribePriority()
	defer c.unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			c.Handle(ctx, e)
		}
	}
}

// unsubscribe drains ch while removing it so a publisher blocked on the
// priority channel is released.
func (c *BusConsumer) unsubscribe(ch <-chan core.BusEvent) {
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for range ch {
		}
	}()
	c.bus.Unsubscribe(ch)
	<-drained
}

// Handle dispatches one event. Events that do not target an actor are
// ignored.
func (c *BusConsumer) Handle(ctx context.Context, e core.BusEvent) {
	inv, ok := c.invocation(e)
	if !ok {
		return
	}
	logger := c.logger.WithActor(inv.ActorID)
	if _, err := c.invoker.Invoke(ctx, inv); err != nil {
		logger.Error("dispatching bus event failed", "type", e.DetailType, "error", err)
		return
	}
	logger.Debug("bus event dispatched", "type", e.DetailType, "source", e.Source)
}

func (c *BusConsumer) invocation(e core.BusEvent) (core.Invocation, bool) {
	inv := core.Invocation{Mode: core.ModeAsync, Source: e.Source}

	switch {
	case e.Source == core.SourceTimer && e.DetailType == core.DetailTimerFired:
		var d core.TimerDetail
		if err := json.Unmarshal(e.Detail, &d); err != nil || d.ActorID == "" {
			c.logger.Warn("malformed timer event", "error", err)
			return inv, false
		}
		inv.ActorID = d.ActorID
		inv.Payload = core.Payload{"type": e.DetailType}

	case e.Source == core.SourceTimer && e.DetailType == core.DetailAlarmFired:
		var d core.AlarmDetail
		if err := json.Unmarshal(e.Detail, &d); err != nil || d.ActorID == "" {
			c.logger.Warn("malformed alarm event", "error", err)
			return inv, false
		}
		inv.ActorID = d.ActorID
		inv.Payload = core.Payload{"type": e.DetailType, "alarmName": d.AlarmName}

	case e.Source == core.SourceSignal:
		var d core.SignalDetail
		if err := json.Unmarshal(e.Detail, &d); err != nil || d.ActorID == "" {
			c.logger.Warn("malformed signal event", "error", err)
			return inv, false
		}
		inv.ActorID = d.ActorID
		inv.Payload = core.Payload{"type": e.DetailType, "payload": d.Payload}

	default:
		return inv, false
	}
	return inv, true
}
