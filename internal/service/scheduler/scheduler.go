// Package scheduler publishes timer, alarm and signal notifications on the
// event bus.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hugo-lorenzo-mato/actorfabric/internal/core"
)

// Scheduler turns sleep, alarm and signal requests into bus events. Delivery
// at the requested time is the bus backend's job.
type Scheduler struct {
	bus     core.Bus
	busName string
	now     func() time.Time
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock overrides the clock used to compute fire times.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// New creates a scheduler publishing to the named bus.
func New(bus core.Bus, busName string, opts ...Option) *Scheduler {
	s := &Scheduler{bus: bus, busName: busName, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sleep schedules a TimerFired notification for actorID after delay and
// returns the fire time.
func (s *Scheduler) Sleep(ctx context.Context, actorID string, delay core.Delay) (time.Time, error) {
	at, err := s.fireTime(delay)
	if err != nil {
		return time.Time{}, err
	}
	detail := core.TimerDetail{ActorID: actorID}
	if err := s.put(ctx, core.SourceTimer, core.DetailTimerFired, detail, at); err != nil {
		return time.Time{}, err
	}
	return at, nil
}

// SetAlarm schedules an AlarmFired notification named name for actorID after
// delay and returns the fire time.
func (s *Scheduler) SetAlarm(ctx context.Context, actorID, name string, delay core.Delay) (time.Time, error) {
	if name == "" {
		return time.Time{}, core.ErrValidation(core.CodeInvalidPayload, "alarm requires a name")
	}
	at, err := s.fireTime(delay)
	if err != nil {
		return time.Time{}, err
	}
	detail := core.AlarmDetail{ActorID: actorID, AlarmName: name}
	if err := s.put(ctx, core.SourceTimer, core.DetailAlarmFired, detail, at); err != nil {
		return time.Time{}, err
	}
	return at, nil
}

// Signal publishes an immediate notification of eventType to target.
func (s *Scheduler) Signal(ctx context.Context, target, eventType string, payload core.Payload) error {
	if eventType == "" {
		return core.ErrValidation(core.CodeInvalidPayload, "signal requires a type")
	}
	detail := core.SignalDetail{ActorID: target, Payload: payload}
	return s.put(ctx, core.SourceSignal, eventType, detail, s.now().UTC())
}

func (s *Scheduler) fireTime(delay core.Delay) (time.Time, error) {
	d, err := delay.Duration()
	if err != nil {
		return time.Time{}, err
	}
	return s.now().UTC().Add(d), nil
}

func (s *Scheduler) put(ctx context.Context, source, detailType string, detail any, at time.Time) error {
	raw, err := json.Marshal(detail)
	if err != nil {
		return core.ErrValidation(core.CodeInvalidPayload, err.Error())
	}
	event := core.BusEvent{
		Bus:        s.busName,
		Source:     source,
		DetailType: detailType,
		Detail:     raw,
		Time:       at,
	}
	if err := s.bus.PutEvents(ctx, event); err != nil {
		return fmt.Errorf("publishing %s: %w", detailType, err)
	}
	return nil
}
