// Package dispatch turns mailbox messages and bus notifications into
// asynchronous actor invocations.
package dispatch

import (
	"context"
	"time"

	"github.com/hugo-lorenzo-mato/actorfabric/internal/core"
	"github.com/hugo-lorenzo-mato/actorfabric/internal/service/lock"
)

// Invoker runs one invocation.
type Invoker interface {
	Invoke(ctx context.Context, inv core.Invocation) (core.Payload, error)
}

// Leaser hands out renewing leases.
type Leaser interface {
	Hold(ctx context.Context, actorID string, ttl time.Duration) (*lock.Lease, error)
}

// Invocation sources recorded on dispatched invocations.
const (
	SourceQueue = "queue"
)
