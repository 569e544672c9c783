package durable

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/hugo-lorenzo-mato/actorfabric/internal/core"
)

// Router dispatches invocations to the actor registered for the longest
// matching actor id prefix, falling back to a default actor.
type Router struct {
	mu       sync.RWMutex
	prefixes []string
	actors   map[string]Invoker
	fallback Invoker
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{actors: make(map[string]Invoker)}
}

// Handle routes actor ids starting with prefix to inv.
func (r *Router) Handle(prefix string, inv Invoker) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.actors[prefix]; !exists {
		r.prefixes = append(r.prefixes, prefix)
		sort.Slice(r.prefixes, func(i, j int) bool { return len(r.prefixes[i]) > len(r.prefixes[j]) })
	}
	r.actors[prefix] = inv
}

// Default routes every id no prefix matches to inv.
func (r *Router) Default(inv Invoker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = inv
}

// Lookup returns the invoker for actorID.
func (r *Router) Lookup(actorID string) (Invoker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.prefixes {
		if strings.HasPrefix(actorID, p) {
			return r.actors[p], true
		}
	}
	return r.fallback, r.fallback != nil
}

// Invoke dispatches inv to the matching actor.
func (r *Router) Invoke(ctx context.Context, inv Invocation) (Payload, error) {
	target, ok := r.Lookup(inv.ActorID)
	if !ok {
		return nil, core.ErrNotFound("actor handler", fmt.Sprintf("for %q", inv.ActorID))
	}
	return target.Invoke(ctx, inv)
}
