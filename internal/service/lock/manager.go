// Package lock implements advisory per-actor leases.
//
// A Manager is bound to one holder token for its whole lifetime. Tests that
// need several holders build several managers over the same table.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hugo-lorenzo-mato/actorfabric/internal/core"
	"github.com/hugo-lorenzo-mato/actorfabric/internal/logging"
)

// DefaultTTL is the lease length used when a caller passes zero.
const DefaultTTL = 30 * time.Second

// Manager acquires, renews and releases leases for one holder.
type Manager struct {
	table  core.LockTable
	holder string
	now    func() time.Time
	logger *logging.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the clock used for lease arithmetic.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithLogger sets the logger used for swallowed release failures.
func WithLogger(l *logging.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// NewManager creates a manager acting as holder.
func NewManager(table core.LockTable, holder string, opts ...Option) *Manager {
	m := &Manager{
		table:  table,
		holder: holder,
		now:    time.Now,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Holder returns the token this manager acts as.
func (m *Manager) Holder() string { return m.holder }

func ttlOrDefault(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return DefaultTTL
	}
	return ttl
}

// Acquire takes the lease when it is free or expired. It returns false when
// another holder owns a live lease; only backend faults are errors.
func (m *Manager) Acquire(ctx context.Context, actorID string, ttl time.Duration) (bool, error) {
	now := m.now().UTC()
	lock := core.Lock{
		ActorID:    actorID,
		Holder:     m.holder,
		AcquiredAt: now,
		ExpiresAt:  now.Add(ttlOrDefault(ttl)),
	}
	err := m.table.InsertLock(ctx, lock, now)
	if errors.Is(err, core.ErrConditionFailed) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("acquiring lock on %s: %w", actorID, err)
	}
	return true, nil
}

// Renew pushes the expiry forward. It fails with LOCK_LOST when the lease was
// reclaimed by another holder or removed.
func (m *Manager) Renew(ctx context.Context, actorID string, ttl time.Duration) error {
	expiresAt := m.now().UTC().Add(ttlOrDefault(ttl))
	err := m.table.ExtendLock(ctx, actorID, m.holder, expiresAt)
	if errors.Is(err, core.ErrConditionFailed) {
		return core.ErrLockLost(actorID, m.holder)
	}
	if err != nil {
		return fmt.Errorf("renewing lock on %s: %w", actorID, err)
	}
	return nil
}

// Release drops the lease if this holder still owns it. Failures are logged
// and never returned.
func (m *Manager) Release(ctx context.Context, actorID string) {
	err := m.table.DeleteLock(ctx, actorID, m.holder)
	switch {
	case err == nil:
	case errors.Is(err, core.ErrConditionFailed):
		m.logger.Debug("lock already gone on release", "actor_id", actorID, "holder", m.holder)
	default:
		m.logger.Warn("lock release failed", "actor_id", actorID, "holder", m.holder, "error", err)
	}
}
