package memory

import "github.com/hugo-lorenzo-mato/actorfabric/internal/core"

// NewBackends wires in-memory tables and queue with the given bus.
func NewBackends(bus core.Bus, opts ...QueueOption) *core.Backends {
	tables := NewTables()
	return &core.Backends{
		Actors:    tables,
		Locks:     tables,
		Workflows: tables,
		Queue:     NewQueue(opts...),
		Bus:       bus,
	}
}
