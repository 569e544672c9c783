// Package state implements the versioned per-actor state store.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hugo-lorenzo-mato/actorfabric/internal/core"
	"github.com/hugo-lorenzo-mato/actorfabric/internal/service"
)

// Store loads and saves actor records with optimistic concurrency.
type Store struct {
	table core.ActorTable
	retry *service.RetryPolicy
	now   func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used for updatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithRetryPolicy sets the policy Update uses on version conflicts.
func WithRetryPolicy(p *service.RetryPolicy) Option {
	return func(s *Store) { s.retry = p }
}

// NewStore creates a store over table.
func NewStore(table core.ActorTable, opts ...Option) *Store {
	s := &Store{
		table: table,
		retry: service.ConflictRetryPolicy(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load returns the stored record, or a version 0 default when the actor has
// never been saved.
func (s *Store) Load(ctx context.Context, actorID string) (*core.ActorState, error) {
	st, err := s.table.GetActor(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("loading actor %s: %w", actorID, err)
	}
	if st == nil {
		return core.NewActorState(actorID, s.now()), nil
	}
	if len(st.Data) == 0 {
		st.Data = json.RawMessage(`{}`)
	}
	if st.Alarms == nil {
		st.Alarms = map[string]int64{}
	}
	return st, nil
}

// Save persists st as version st.Version+1, provided the stored version still
// equals st.Version. On success st.Version and st.UpdatedAt are advanced so
// the next Save chains. On a lost race the stored record is untouched and an
// OPTIMISTIC_CONFLICT error is returned.
func (s *Store) Save(ctx context.Context, st *core.ActorState) error {
	if st == nil || st.ActorID == "" {
		return core.ErrValidation(core.CodeInvalidPayload, "actor state requires an actor id")
	}

	next := *st
	next.Version = st.Version + 1
	next.UpdatedAt = s.now().UTC()
	if len(next.Data) == 0 {
		next.Data = json.RawMessage(`{}`)
	}

	err := s.table.PutActor(ctx, &next, st.Version)
	if errors.Is(err, core.ErrConditionFailed) {
		return core.ErrOptimisticConflict(st.ActorID, st.Version)
	}
	if err != nil {
		return fmt.Errorf("saving actor %s: %w", st.ActorID, err)
	}

	st.Version = next.Version
	st.UpdatedAt = next.UpdatedAt
	st.Data = next.Data
	return nil
}

// Update runs a load-mutate-save cycle, reloading and retrying when another
// writer wins the version race. mutate must be safe to call more than once.
func (s *Store) Update(ctx context.Context, actorID string, mutate func(*core.ActorState) error) (*core.ActorState, error) {
	var result *core.ActorState
	err := s.retry.Execute(ctx, func(ctx context.Context) error {
		st, err := s.Load(ctx, actorID)
		if err != nil {
			return err
		}
		if err := mutate(st); err != nil {
			return err
		}
		if err := s.Save(ctx, st); err != nil {
			return err
		}
		result = st
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
