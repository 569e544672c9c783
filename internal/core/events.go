package core

import (
	"encoding/json"
	"time"
)

// Event sources and detail types published by the scheduler.
const (
	SourceTimer  = "actor-runtime.timer"
	SourceSignal = "external.signal"

	DetailTimerFired = "TimerFired"
	DetailAlarmFired = "AlarmFired"
)

// BusEvent is one notification on the event bus.
type BusEvent struct {
	Bus        string          `json:"bus"`
	Source     string          `json:"source"`
	DetailType string          `json:"detailType"`
	Detail     json.RawMessage `json:"detail"`
	// Time is when the event should be delivered. Zero means now.
	Time time.Time `json:"time"`
}

// TimerDetail is the detail of a TimerFired event.
type TimerDetail struct {
	ActorID string `json:"actorId"`
}

// AlarmDetail is the detail of an AlarmFired event.
type AlarmDetail struct {
	ActorID   string `json:"actorId"`
	AlarmName string `json:"alarmName"`
}

// SignalDetail is the detail of an external signal.
type SignalDetail struct {
	ActorID string  `json:"actorId"`
	Payload Payload `json:"payload"`
}

// ActorID extracts the target actor from any detail shape above.
func (e BusEvent) ActorID() string {
	var target struct {
		ActorID string `json:"actorId"`
	}
	if err := json.Unmarshal(e.Detail, &target); err != nil {
		return ""
	}
	return target.ActorID
}
