package lock

import (
	"context"
	"sync"
	"time"

	"github.com/hugo-lorenzo-mato/actorfabric/internal/core"
)

// Lease is a held lock kept alive by a background renewer. Its context is
// cancelled as soon as a renewal reports the lease lost, so work bound to it
// stops.
type Lease struct {
	ctx     context.Context
	cancel  context.CancelFunc
	manager *Manager
	actorID string
	done    chan struct{}

	mu  sync.Mutex
	err error
}

// Hold acquires actorID and starts renewing it every ttl/3. It returns
// LOCK_UNAVAILABLE when another holder owns a live lease.
func (m *Manager) Hold(ctx context.Context, actorID string, ttl time.Duration) (*Lease, error) {
	ttl = ttlOrDefault(ttl)
	ok, err := m.Acquire(ctx, actorID, ttl)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, core.ErrLockUnavailable(actorID)
	}

	leaseCtx, cancel := context.WithCancel(ctx)
	l := &Lease{
		ctx:     leaseCtx,
		cancel:  cancel,
		manager: m,
		actorID: actorID,
		done:    make(chan struct{}),
	}
	go l.renewLoop(ttl)
	return l, nil
}

func (l *Lease) renewLoop(ttl time.Duration) {
	defer close(l.done)

	interval := ttl / 3
	if interval <= 0 {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.ctx.Done():
			return
		case <-ticker.C:
			if err := l.manager.Renew(l.ctx, l.actorID, ttl); err != nil {
				if l.ctx.Err() != nil {
					return
				}
				if core.IsCode(err, core.CodeLockLost) {
					l.fail(err)
					return
				}
				// Transient fault: keep the lease until it really expires.
				l.manager.logger.Warn("lock renew failed", "actor_id", l.actorID, "error", err)
			}
		}
	}
}

func (l *Lease) fail(err error) {
	l.mu.Lock()
	l.err = err
	l.mu.Unlock()
	l.manager.logger.Warn("lease lost", "actor_id", l.actorID, "holder", l.manager.holder)
	l.cancel()
}

// Context is cancelled when the lease is lost or released.
func (l *Lease) Context() context.Context { return l.ctx }

// ActorID returns the locked actor.
func (l *Lease) ActorID() string { return l.actorID }

// Err returns LOCK_LOST once a renewal failed, nil otherwise.
func (l *Lease) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Release stops renewing and drops the lock. It returns the lease error, if
// the lease was lost while held.
func (l *Lease) Release() error {
	l.cancel()
	<-l.done

	ctx, cancel := context.WithTimeout(context.WithoutCancel(l.ctx), 5*time.Second)
	defer cancel()
	l.manager.Release(ctx, l.actorID)
	return l.Err()
}
