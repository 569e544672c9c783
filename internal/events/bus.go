// Package events provides the in-process event bus used for timers, alarms
// and external signals. It implements pub/sub with backpressure control,
// priority channels and delayed delivery.
package events

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hugo-lorenzo-mato/actorfabric/internal/core"
)

// DefaultBusName is used when an event does not name its bus.
const DefaultBusName = "default"

// Subscriber represents an event subscription.
type Subscriber struct {
	ch       chan core.BusEvent
	types    map[string]bool // Empty means all detail types
	priority bool
}

func (s *Subscriber) matches(e core.BusEvent) bool {
	return len(s.types) == 0 || s.types[e.DetailType]
}

// EventBus provides pub/sub with backpressure control. Events scheduled in
// the future are held on timers until due.
type EventBus struct {
	mu           sync.RWMutex
	name         string
	subscribers  []*Subscriber
	prioritySubs []*Subscriber
	bufferSize   int
	droppedCount int64
	closed       bool

	timersMu sync.Mutex
	timers   map[*time.Timer]struct{}
	now      func() time.Time
}

// Option configures an EventBus.
type Option func(*EventBus)

// WithName sets the bus name stamped on events that carry none.
func WithName(name string) Option {
	return func(eb *EventBus) {
		if name != "" {
			eb.name = name
		}
	}
}

// WithClock overrides the clock used to decide whether an event is due.
func WithClock(now func() time.Time) Option {
	return func(eb *EventBus) { eb.now = now }
}

// New creates a new EventBus with the specified buffer size.
func New(bufferSize int, opts ...Option) *EventBus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	eb := &EventBus{
		name:         DefaultBusName,
		subscribers:  make([]*Subscriber, 0),
		prioritySubs: make([]*Subscriber, 0),
		bufferSize:   bufferSize,
		timers:       make(map[*time.Timer]struct{}),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(eb)
	}
	return eb
}

// Name returns the bus name.
func (eb *EventBus) Name() string { return eb.name }

// Subscribe creates a subscription for specific detail types.
// If no types are specified, subscribes to all events.
func (eb *EventBus) Subscribe(types ...string) <-chan core.BusEvent {
	return eb.subscribe(false, eb.bufferSize, types)
}

// SubscribePriority creates a subscription that never drops events.
// Publishing blocks until the subscriber has room.
func (eb *EventBus) SubscribePriority(types ...string) <-chan core.BusEvent {
	return eb.subscribe(true, 50, types)
}

func (eb *EventBus) subscribe(priority bool, size int, types []string) <-chan core.BusEvent {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	sub := &Subscriber{
		ch:       make(chan core.BusEvent, size),
		types:    make(map[string]bool, len(types)),
		priority: priority,
	}
	for _, t := range types {
		sub.types[t] = true
	}
	if eb.closed {
		close(sub.ch)
		return sub.ch
	}
	if priority {
		eb.prioritySubs = append(eb.prioritySubs, sub)
	} else {
		eb.subscribers = append(eb.subscribers, sub)
	}
	return sub.ch
}

// Unsubscribe removes a subscription and closes its channel.
func (eb *EventBus) Unsubscribe(ch <-chan core.BusEvent) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscribers = removeSubscriber(eb.subscribers, ch)
	eb.prioritySubs = removeSubscriber(eb.prioritySubs, ch)
}

func removeSubscriber(subs []*Subscriber, ch <-chan core.BusEvent) []*Subscriber {
	result := make([]*Subscriber, 0, len(subs))
	for _, sub := range subs {
		if sub.ch != ch {
			result = append(result, sub)
		} else {
			close(sub.ch)
		}
	}
	return result
}

// PutEvents publishes events. Events whose Time is after now are delivered
// when due; the rest are delivered immediately.
func (eb *EventBus) PutEvents(ctx context.Context, events ...core.BusEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := eb.now()
	for _, e := range events {
		if e.Bus == "" {
			e.Bus = eb.name
		}
		if e.Time.IsZero() {
			e.Time = now
		}
		if delay := e.Time.Sub(now); delay > 0 {
			eb.schedule(e, delay)
			continue
		}
		eb.Publish(e)
	}
	return nil
}

func (eb *EventBus) schedule(e core.BusEvent, delay time.Duration) {
	eb.timersMu.Lock()
	defer eb.timersMu.Unlock()

	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		eb.timersMu.Lock()
		delete(eb.timers, timer)
		eb.timersMu.Unlock()
		eb.Publish(e)
	})
	eb.timers[timer] = struct{}{}
}

// Pending returns the number of events waiting for their delivery time.
func (eb *EventBus) Pending() int {
	eb.timersMu.Lock()
	defer eb.timersMu.Unlock()
	return len(eb.timers)
}

// Publish delivers an event to all matching subscribers. Regular
// subscribers drop their oldest event when full; priority subscribers block.
func (eb *EventBus) Publish(event core.BusEvent) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if eb.closed {
		return
	}

	for _, sub := range eb.subscribers {
		if !sub.matches(event) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			// Buffer full, drop oldest and try again (ring buffer)
			select {
			case <-sub.ch:
				atomic.AddInt64(&eb.droppedCount, 1)
			default:
			}
			select {
			case sub.ch <- event:
			default:
				atomic.AddInt64(&eb.droppedCount, 1)
			}
		}
	}

	for _, sub := range eb.prioritySubs {
		if sub.matches(event) {
			sub.ch <- event
		}
	}
}

// DroppedCount returns the total number of dropped events.
func (eb *EventBus) DroppedCount() int64 {
	return atomic.LoadInt64(&eb.droppedCount)
}

// Close stops pending deliveries and closes all subscriber channels.
func (eb *EventBus) Close() {
	eb.timersMu.Lock()
	for timer := range eb.timers {
		timer.Stop()
	}
	eb.timers = make(map[*time.Timer]struct{})
	eb.timersMu.Unlock()

	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}
	eb.closed = true

	for _, sub := range eb.subscribers {
		close(sub.ch)
	}
	for _, sub := range eb.prioritySubs {
		close(sub.ch)
	}
	eb.subscribers = nil
	eb.prioritySubs = nil
}

var _ core.Bus = (*EventBus)(nil)
