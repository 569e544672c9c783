package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hugo-lorenzo-mato/actorfabric/internal/core"
)

type queuedMessage struct {
	seq          int64
	msg          core.Message
	visibleAt    time.Time
	receipt      string
	receiveCount int
	dead         bool
}

// Queue is a FIFO queue with per-group ordering, a dedup window and
// visibility timeouts.
type Queue struct {
	mu          sync.Mutex
	seq         int64
	messages    []*queuedMessage
	dedup       map[string]time.Time
	dedupWindow time.Duration
	maxReceives int
	now         func() time.Time
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithDedupWindow sets how long a dedup id suppresses duplicates.
func WithDedupWindow(d time.Duration) QueueOption {
	return func(q *Queue) {
		q.dedupWindow = d
	}
}

// WithMaxReceives sets the receive count after which a message is dead-lettered.
func WithMaxReceives(n int) QueueOption {
	return func(q *Queue) {
		q.maxReceives = n
	}
}

// WithClock replaces the queue's time source.
func WithClock(now func() time.Time) QueueOption {
	return func(q *Queue) {
		q.now = now
	}
}

// NewQueue creates an empty queue.
func NewQueue(opts ...QueueOption) *Queue {
	q := &Queue{
		dedup:       make(map[string]time.Time),
		dedupWindow: 5 * time.Minute,
		maxReceives: 3,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue appends msg unless its dedup id was seen within the window.
func (q *Queue) Enqueue(_ context.Context, msg core.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	for id, expires := range q.dedup {
		if expires.Before(now) {
			delete(q.dedup, id)
		}
	}
	if _, seen := q.dedup[msg.DedupID]; seen {
		return nil
	}
	q.dedup[msg.DedupID] = now.Add(q.dedupWindow)

	q.seq++
	q.messages = append(q.messages, &queuedMessage{
		seq:       q.seq,
		msg:       core.Message{GroupKey: msg.GroupKey, DedupID: msg.DedupID, Body: append([]byte(nil), msg.Body...)},
		visibleAt: now,
	})
	return nil
}

// Receive returns the visible head of each group.
func (q *Queue) Receive(_ context.Context, max int, visibility time.Duration) ([]core.Delivery, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	blocked := make(map[string]bool)
	var out []core.Delivery

	for _, m := range q.messages {
		if len(out) >= max {
			break
		}
		if m.dead || blocked[m.msg.GroupKey] {
			continue
		}
		if q.maxReceives > 0 && m.receiveCount >= q.maxReceives && !m.visibleAt.After(now) {
			m.dead = true
			continue
		}
		// Only the head of a group is eligible; an in-flight head blocks the group.
		blocked[m.msg.GroupKey] = true
		if m.visibleAt.After(now) {
			continue
		}
		m.visibleAt = now.Add(visibility)
		m.receipt = uuid.NewString()
		m.receiveCount++
		out = append(out, core.Delivery{
			Message:      m.msg,
			Receipt:      m.receipt,
			ReceiveCount: m.receiveCount,
		})
	}
	return out, nil
}

// Ack deletes the message holding receipt. Unknown receipts are ignored.
func (q *Queue) Ack(_ context.Context, receipt string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, m := range q.messages {
		if m.receipt == receipt {
			q.messages = append(q.messages[:i], q.messages[i+1:]...)
			return nil
		}
	}
	return nil
}

// Len returns the number of live (not dead-lettered) messages.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for _, m := range q.messages {
		if !m.dead {
			n++
		}
	}
	return n
}

// Depth reports the number of live and dead-lettered messages.
func (q *Queue) Depth(_ context.Context) (live, dead int, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, m := range q.messages {
		if m.dead {
			dead++
		} else {
			live++
		}
	}
	return live, dead, nil
}

// DeadLetters returns the bodies of dead-lettered messages.
func (q *Queue) DeadLetters() []core.Message {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []core.Message
	for _, m := range q.messages {
		if m.dead {
			out = append(out, m.msg)
		}
	}
	return out
}

// Verify that Queue implements core.Queue.
var _ core.Queue = (*Queue)(nil)
