// Package backend opens the configured set of backend ports.
package backend

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hugo-lorenzo-mato/actorfabric/internal/adapters/memory"
	"github.com/hugo-lorenzo-mato/actorfabric/internal/adapters/postgres"
	"github.com/hugo-lorenzo-mato/actorfabric/internal/adapters/sqlite"
	"github.com/hugo-lorenzo-mato/actorfabric/internal/adapters/sqlstore"
	"github.com/hugo-lorenzo-mato/actorfabric/internal/core"
)

// Drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Options selects and tunes the backend.
type Options struct {
	Driver string
	DSN    string

	// Names carry the configured table and queue names.
	Names sqlstore.Names

	DedupWindow time.Duration
	MaxReceives int

	// Pool applies to postgres only.
	Pool postgres.PoolConfig
}

// Depther is implemented by queues that can report their depth.
type Depther interface {
	Depth(ctx context.Context) (live, dead int, err error)
}

// Open builds the backend set for opts. The bus is supplied by the caller
// because it is always in-process.
func Open(ctx context.Context, opts Options, bus core.Bus) (*core.Backends, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case DriverMemory:
		var qopts []memory.QueueOption
		if opts.DedupWindow > 0 {
			qopts = append(qopts, memory.WithDedupWindow(opts.DedupWindow))
		}
		if opts.MaxReceives > 0 {
			qopts = append(qopts, memory.WithMaxReceives(opts.MaxReceives))
		}
		return memory.NewBackends(bus, qopts...), nil

	case DriverSQLite, "":
		store, err := sqlite.New(opts.DSN, opts.Names)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite backend: %w", err)
		}
		return fromStore(store, opts, bus), nil

	case DriverPostgres:
		pool := opts.Pool
		if pool == (postgres.PoolConfig{}) {
			pool = postgres.DefaultPoolConfig()
		}
		store, err := postgres.New(ctx, opts.DSN, pool, opts.Names)
		if err != nil {
			return nil, fmt.Errorf("opening postgres backend: %w", err)
		}
		return fromStore(store, opts, bus), nil

	default:
		return nil, core.ErrConfiguration(core.CodeInvalidSetting, "backend.driver",
			fmt.Sprintf("unknown driver %q (want sqlite, postgres or memory)", opts.Driver))
	}
}

func fromStore(store *sqlstore.Store, opts Options, bus core.Bus) *core.Backends {
	var qopts []sqlstore.QueueOption
	if opts.DedupWindow > 0 {
		qopts = append(qopts, sqlstore.WithDedupWindow(opts.DedupWindow))
	}
	if opts.MaxReceives > 0 {
		qopts = append(qopts, sqlstore.WithMaxReceives(opts.MaxReceives))
	}
	return &core.Backends{
		Actors:    store,
		Locks:     store,
		Workflows: store,
		Queue:     sqlstore.NewQueue(store, qopts...),
		Bus:       bus,
		Closer:    store.Close,
	}
}

// Migrate applies schema migrations for SQL drivers and returns the
// resulting version. The memory driver has no schema.
func Migrate(ctx context.Context, opts Options) (int64, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case DriverMemory:
		return 0, nil
	case DriverSQLite, "":
		db, err := sqlite.Open(opts.DSN)
		if err != nil {
			return 0, err
		}
		defer db.Close()
		if err := sqlite.Migrate(db); err != nil {
			return 0, err
		}
		return sqlite.Version(db)
	case DriverPostgres:
		db, err := postgres.Open(ctx, opts.DSN, postgres.PoolConfig{MaxOpenConns: 1})
		if err != nil {
			return 0, err
		}
		defer db.Close()
		if err := postgres.Migrate(db); err != nil {
			return 0, err
		}
		return postgres.Version(db)
	default:
		return 0, core.ErrConfiguration(core.CodeInvalidSetting, "backend.driver",
			fmt.Sprintf("unknown driver %q", opts.Driver))
	}
}
