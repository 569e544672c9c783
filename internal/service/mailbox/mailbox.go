// Package mailbox delivers ordered, deduplicated messages to actors.
//
// The coalescing buffer lives inside one Service value. It batches requests
// issued through that value only; separate processes, or separate Service
// values, each produce their own partial batches.
package mailbox

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hugo-lorenzo-mato/actorfabric/internal/core"
	"github.com/hugo-lorenzo-mato/actorfabric/internal/logging"
)

// DefaultCoalesceWindow is how long the first request of a batch waits for
// company before the batch is sent.
const DefaultCoalesceWindow = 10 * time.Millisecond

// Service enqueues actor messages and coalesces bursts of requests.
type Service struct {
	queue  core.Queue
	logger *logging.Logger
	window time.Duration
	newID  func() string

	mu      sync.Mutex
	pending map[string]*batch
	flushes sync.WaitGroup
}

type batch struct {
	id       string
	requests []core.Payload
	timer    *time.Timer
	ctx      context.Context
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger used for flush failures.
func WithLogger(l *logging.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithCoalesceWindow sets the window used when Coalesce is passed zero.
func WithCoalesceWindow(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.window = d
		}
	}
}

// WithIDGenerator overrides how dedup and batch ids are minted.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) { s.newID = fn }
}

// New creates a mailbox over queue.
func New(queue core.Queue, opts ...Option) *Service {
	s := &Service{
		queue:   queue,
		logger:  logging.NewNop(),
		window:  DefaultCoalesceWindow,
		newID:   uuid.NewString,
		pending: make(map[string]*batch),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send enqueues payload for actorID. Messages for one actor are delivered in
// send order; a dedupID repeated inside the queue's dedup window is delivered
// once. An empty dedupID gets a fresh random one. The dedup id is returned.
func (s *Service) Send(ctx context.Context, actorID string, payload core.Payload, dedupID string) (string, error) {
	if actorID == "" {
		return "", core.ErrValidation(core.CodeInvalidPayload, "message requires an actor id")
	}
	if dedupID == "" {
		dedupID = s.newID()
	}
	if payload == nil {
		payload = core.Payload{}
	}

	body, err := json.Marshal(core.Envelope{ActorID: actorID, EventID: dedupID, Payload: payload})
	if err != nil {
		return "", core.ErrValidation(core.CodeInvalidPayload, err.Error())
	}
	msg := core.Message{GroupKey: actorID, DedupID: dedupID, Body: body}
	if err := s.queue.Enqueue(ctx, msg); err != nil {
		return "", fmt.Errorf("enqueueing message for %s: %w", actorID, err)
	}
	return dedupID, nil
}

// Coalesce buffers request for actorID. The first request for an actor opens a
// window; when it closes, every buffered request goes out as one message whose
// payload is {"_batch": [requests in call order]}. All callers in one window
// get the same batch id, which is also the message's dedup id and event id.
func (s *Service) Coalesce(ctx context.Context, actorID string, request core.Payload, window time.Duration) (string, error) {
	if actorID == "" {
		return "", core.ErrValidation(core.CodeInvalidPayload, "message requires an actor id")
	}
	if window <= 0 {
		window = s.window
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if b, ok := s.pending[actorID]; ok {
		b.requests = append(b.requests, request)
		return b.id, nil
	}

	b := &batch{
		id:       s.newID(),
		requests: []core.Payload{request},
		ctx:      context.WithoutCancel(ctx),
	}
	s.pending[actorID] = b
	s.flushes.Add(1)
	b.timer = time.AfterFunc(window, func() { s.expire(actorID, b) })
	return b.id, nil
}

// expire runs when a window closes. Whoever removes a batch from pending
// sends it, so a concurrent Flush and timer never both send.
func (s *Service) expire(actorID string, b *batch) {
	s.mu.Lock()
	if s.pending[actorID] != b {
		s.mu.Unlock()
		return
	}
	delete(s.pending, actorID)
	s.mu.Unlock()

	s.send(b.ctx, actorID, b)
}

func (s *Service) send(ctx context.Context, actorID string, b *batch) {
	defer s.flushes.Done()

	payload := core.Payload{core.BatchKey: b.requests}
	if _, err := s.Send(ctx, actorID, payload, b.id); err != nil {
		s.logger.WithActor(actorID).Error("coalesced batch flush failed",
			"batch_id", b.id, "requests", len(b.requests), "error", err)
		return
	}
	s.logger.WithActor(actorID).Debug("coalesced batch sent", "batch_id", b.id, "requests", len(b.requests))
}

// Flush sends every open batch now and waits for in-flight flushes. It is
// used on shutdown so buffered requests are not lost.
func (s *Service) Flush(ctx context.Context) {
	s.mu.Lock()
	drained := s.pending
	s.pending = make(map[string]*batch)
	s.mu.Unlock()

	for actorID, b := range drained {
		b.timer.Stop()
		s.send(ctx, actorID, b)
	}
	s.flushes.Wait()
}

// Pending returns the number of requests buffered for actorID.
func (s *Service) Pending(actorID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.pending[actorID]; ok {
		return len(b.requests)
	}
	return 0
}

// Decode parses a received message body.
func Decode(d core.Delivery) (*core.Envelope, error) {
	var env core.Envelope
	if err := json.Unmarshal(d.Body, &env); err != nil {
		return nil, core.ErrValidation(core.CodeInvalidPayload, "malformed envelope").WithCause(err)
	}
	if env.ActorID == "" {
		env.ActorID = d.GroupKey
	}
	if env.Payload == nil {
		env.Payload = core.Payload{}
	}
	return &env, nil
}
