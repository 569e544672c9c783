package events

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/hugo-lorenzo-mato/actorfabric/internal/core"
)

func timerEvent(actorID string) core.BusEvent {
	detail, _ := json.Marshal(core.TimerDetail{ActorID: actorID})
	return core.BusEvent{
		Source:     core.SourceTimer,
		DetailType: core.DetailTimerFired,
		Detail:     detail,
	}
}

func alarmEvent(actorID, name string) core.BusEvent {
	detail, _ := json.Marshal(core.AlarmDetail{ActorID: actorID, AlarmName: name})
	return core.BusEvent{
		Source:     core.SourceTimer,
		DetailType: core.DetailAlarmFired,
		Detail:     detail,
	}
}

func TestEventBus_Subscribe(t *testing.T) {
	bus := New(10, WithName("actors"))
	defer bus.Close()

	ch := bus.Subscribe()

	if err := bus.PutEvents(context.Background(), timerEvent("a1")); err != nil {
		t.Fatalf("PutEvents() error = %v", err)
	}

	select {
	case received := <-ch:
		if received.DetailType != core.DetailTimerFired {
			t.Errorf("expected %s, got %s", core.DetailTimerFired, received.DetailType)
		}
		if received.ActorID() != "a1" {
			t.Errorf("expected a1, got %s", received.ActorID())
		}
		if received.Bus != "actors" {
			t.Errorf("expected bus name actors, got %s", received.Bus)
		}
		if received.Time.IsZero() {
			t.Error("expected time to be stamped")
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("timeout waiting for event")
	}
}

func TestEventBus_SubscribeByType(t *testing.T) {
	bus := New(10)
	defer bus.Close()

	alarmCh := bus.Subscribe(core.DetailAlarmFired)
	allCh := bus.Subscribe()

	bus.Publish(timerEvent("a1"))
	bus.Publish(alarmEvent("a1", "reminder"))

	for i := 0; i < 2; i++ {
		select {
		case <-allCh:
		case <-time.After(100 * time.Millisecond):
			t.Fatalf("allCh should receive event %d", i)
		}
	}

	select {
	case received := <-alarmCh:
		if received.DetailType != core.DetailAlarmFired {
			t.Errorf("expected AlarmFired, got %s", received.DetailType)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("alarmCh should receive alarm event")
	}

	select {
	case e := <-alarmCh:
		t.Errorf("alarmCh should not receive %s", e.DetailType)
	default:
	}
}

func TestEventBus_DelayedDelivery(t *testing.T) {
	bus := New(10)
	defer bus.Close()

	ch := bus.Subscribe()
	e := timerEvent("a1")
	e.Time = time.Now().Add(50 * time.Millisecond)

	if err := bus.PutEvents(context.Background(), e); err != nil {
		t.Fatalf("PutEvents() error = %v", err)
	}
	if bus.Pending() != 1 {
		t.Errorf("expected 1 pending event, got %d", bus.Pending())
	}

	select {
	case <-ch:
		t.Fatal("event delivered before its time")
	case <-time.After(10 * time.Millisecond):
	}

	select {
	case received := <-ch:
		if received.ActorID() != "a1" {
			t.Errorf("expected a1, got %s", received.ActorID())
		}
	case <-time.After(time.Second):
		t.Fatal("delayed event never delivered")
	}
	if bus.Pending() != 0 {
		t.Errorf("expected no pending events, got %d", bus.Pending())
	}
}

func TestEventBus_CloseCancelsPending(t *testing.T) {
	bus := New(10)
	ch := bus.Subscribe()

	e := timerEvent("a1")
	e.Time = time.Now().Add(time.Hour)
	if err := bus.PutEvents(context.Background(), e); err != nil {
		t.Fatalf("PutEvents() error = %v", err)
	}
	bus.Close()

	if bus.Pending() != 0 {
		t.Errorf("expected pending timers to be stopped, got %d", bus.Pending())
	}
	if _, ok := <-ch; ok {
		t.Error("channel should be closed after Close")
	}
	// Publishing after close is a no-op.
	bus.Publish(timerEvent("a1"))
}

func TestEventBus_PutEventsCanceledContext(t *testing.T) {
	bus := New(10)
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := bus.PutEvents(ctx, timerEvent("a1")); err == nil {
		t.Error("expected error for canceled context")
	}
}

func TestEventBus_PriorityNeverDrops(t *testing.T) {
	bus := New(5)
	defer bus.Close()

	priorityCh := bus.SubscribePriority(core.DetailAlarmFired)
	_ = bus.Subscribe()

	for i := 0; i < 100; i++ {
		bus.Publish(timerEvent("noise"))
	}
	bus.Publish(alarmEvent("a1", "wake"))

	select {
	case received := <-priorityCh:
		if received.DetailType != core.DetailAlarmFired {
			t.Errorf("expected AlarmFired, got %s", received.DetailType)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("priority event was dropped")
	}
}

func TestEventBus_RingBufferDropsOldest(t *testing.T) {
	bus := New(5)
	defer bus.Close()

	ch := bus.Subscribe()
	for i := 0; i < 10; i++ {
		bus.Publish(timerEvent("a1"))
	}

	if bus.DroppedCount() == 0 {
		t.Error("expected some events to be dropped")
	}

	received := 0
drain:
	for {
		select {
		case <-ch:
			received++
		default:
			break drain
		}
	}
	if received != 5 {
		t.Errorf("expected a full buffer of 5 events, got %d", received)
	}
}

func TestEventBus_ConcurrentPublish(t *testing.T) {
	bus := New(100)
	defer bus.Close()

	ch := bus.Subscribe()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = bus.PutEvents(context.Background(), timerEvent("a1"))
			}
		}()
	}
	wg.Wait()

	received := 0
drainLoop:
	for {
		select {
		case <-ch:
			received++
		default:
			break drainLoop
		}
	}
	if received == 0 {
		t.Error("should have received some events")
	}
}

func TestEventBus_Unsubscribe(t *testing.T) {
	bus := New(10)
	defer bus.Close()

	ch := bus.Subscribe()
	bus.Unsubscribe(ch)

	if _, ok := <-ch; ok {
		t.Error("channel should be closed after unsubscribe")
	}
}

func TestEventBus_SubscribeAfterClose(t *testing.T) {
	bus := New(10)
	bus.Close()

	ch := bus.Subscribe()
	if _, ok := <-ch; ok {
		t.Error("subscription on a closed bus should be closed")
	}
}
