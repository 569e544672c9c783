package core

import (
	"encoding/json"
	"time"
)

// Payload is an opaque JSON object exchanged with handlers.
type Payload map[string]any

// Clone returns a shallow copy of p.
func (p Payload) Clone() Payload {
	out := make(Payload, len(p)+1)
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Reserved payload keys.
const (
	// WorkflowKey carries the correlation id of a cross-actor call.
	WorkflowKey = "_workflowId"
	// BatchKey carries the requests of a coalesced batch.
	BatchKey = "_batch"
)

// ActorState is the versioned record owned by one actor.
type ActorState struct {
	ActorID     string           `json:"actorId"`
	Version     int64            `json:"version"`
	Data        json.RawMessage  `json:"data"`
	UpdatedAt   time.Time        `json:"updatedAt"`
	LastEventID string           `json:"lastEventId,omitempty"`
	Alarms      map[string]int64 `json:"alarms,omitempty"` // name -> fire time (unix ms)
}

// NewActorState returns the default record synthesized for an actor that has
// never been saved.
func NewActorState(actorID string, now time.Time) *ActorState {
	return &ActorState{
		ActorID:   actorID,
		Version:   0,
		Data:      json.RawMessage(`{}`),
		UpdatedAt: now,
		Alarms:    map[string]int64{},
	}
}

// Lock is an exclusive, time-bounded claim on an actor.
type Lock struct {
	ActorID    string    `json:"actorId"`
	Holder     string    `json:"lockHolder"`
	AcquiredAt time.Time `json:"acquiredAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// Expired reports whether the lock no longer blocks acquisition at now.
func (l *Lock) Expired(now time.Time) bool {
	return l.ExpiresAt.Before(now)
}

// Envelope is the body of every mailbox message.
type Envelope struct {
	ActorID string  `json:"actorId"`
	EventID string  `json:"eventId"`
	Payload Payload `json:"payload"`
}

// Batch returns the coalesced requests carried by the envelope, if any.
func (e *Envelope) Batch() ([]Payload, bool) {
	raw, ok := e.Payload[BatchKey]
	if !ok {
		return nil, false
	}
	switch items := raw.(type) {
	case []Payload:
		return items, true
	case []any:
		out := make([]Payload, 0, len(items))
		for _, item := range items {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, false
			}
			out = append(out, Payload(m))
		}
		return out, true
	default:
		return nil, false
	}
}

// Message is one entry on the ordered queue.
type Message struct {
	GroupKey string
	DedupID  string
	Body     []byte
}

// Delivery is a received message. The receipt acknowledges it.
type Delivery struct {
	Message
	Receipt      string
	ReceiveCount int
}

// UnixMilli converts a time to the persisted representation.
func UnixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// FromUnixMilli converts a persisted timestamp back to a time.
func FromUnixMilli(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
