package cmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/hugo-lorenzo-mato/actorfabric/internal/actors/counter"
	"github.com/hugo-lorenzo-mato/actorfabric/internal/adapters/backend"
	sqliteadapter "github.com/hugo-lorenzo-mato/actorfabric/internal/adapters/sqlite"
	"github.com/hugo-lorenzo-mato/actorfabric/internal/api"
	"github.com/hugo-lorenzo-mato/actorfabric/internal/config"
	"github.com/hugo-lorenzo-mato/actorfabric/internal/core"
	"github.com/hugo-lorenzo-mato/actorfabric/internal/diagnostics"
	"github.com/hugo-lorenzo-mato/actorfabric/internal/events"
	"github.com/hugo-lorenzo-mato/actorfabric/internal/logging"
	"github.com/hugo-lorenzo-mato/actorfabric/internal/service/dispatch"
	"github.com/hugo-lorenzo-mato/actorfabric/pkg/durable"
)

const busBufferSize = 256

// app is everything serve runs: the runtime, its two consumers and the API.
type app struct {
	cfg      *config.Config
	logger   *logging.Logger
	bus      *events.EventBus
	backends *core.Backends
	runtime  *durable.Runtime
	router   *durable.Router

	queueConsumer *dispatch.QueueConsumer
	busConsumer   *dispatch.BusConsumer
	server        *api.Server
}

// newApp opens the backend and wires the runtime. The counter actor serves
// every actor id.
func newApp(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*app, error) {
	bus := events.New(busBufferSize, events.WithName(cfg.Runtime.BusName))

	backends, err := backend.Open(ctx, backendOptions(cfg), bus)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("opening %s backend: %w", cfg.Backend.Driver, err)
	}

	rt, err := durable.NewRuntime(backends, durable.Options{
		HolderToken:    cfg.Runtime.HolderToken,
		BusName:        cfg.Runtime.BusName,
		LockTTL:        cfg.Lock.TTL,
		WorkflowTTL:    cfg.Workflow.TTL,
		CoalesceWindow: cfg.Mailbox.CoalesceWindow,
		Logger:         logger,
	})
	if err != nil {
		_ = backends.Close()
		bus.Close()
		return nil, err
	}

	router := durable.NewRouter()
	router.Default(counter.New(rt))

	var leaser dispatch.Leaser
	if cfg.Dispatch.Serialize {
		leaser = rt
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		bus:      bus,
		backends: backends,
		runtime:  rt,
		router:   router,
		queueConsumer: dispatch.NewQueueConsumer(backends.Queue, router, leaser, dispatch.QueueConfig{
			BatchSize:    cfg.Mailbox.BatchSize,
			Visibility:   cfg.Mailbox.VisibilityTimeout,
			PollInterval: cfg.Mailbox.PollInterval,
			Serialize:    cfg.Dispatch.Serialize,
			LockTTL:      cfg.Lock.TTL,
		}, logger),
		busConsumer: dispatch.NewBusConsumer(bus, router, logger),
	}

	a.server = api.NewServer(rt, router,
		api.WithLogger(logger),
		api.WithAllowedOrigins(cfg.Server.CORS.AllowedOrigins),
		api.WithCollector(diagnostics.NewCollector(diskPath(cfg))),
		api.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
	)
	return a, nil
}

// run blocks until ctx is cancelled or one of the loops fails.
func (a *app) run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.queueConsumer.Run(gctx)
	})
	g.Go(func() error {
		return a.busConsumer.Run(gctx)
	})
	g.Go(func() error {
		return a.server.ListenAndServe(gctx, a.cfg.Server.Addr)
	})

	a.logger.Info("actorfabric started",
		"addr", a.cfg.Server.Addr,
		"driver", a.cfg.Backend.Driver,
		"holder", a.runtime.HolderToken(),
		"serialize", a.cfg.Dispatch.Serialize,
	)
	return g.Wait()
}

// close flushes coalesced requests before the backend and bus go away.
func (a *app) close(ctx context.Context) error {
	err := a.runtime.Close(ctx)
	a.bus.Close()
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("closing runtime: %w", err)
	}
	return nil
}

// diskPath is the filesystem the health snapshot reports on.
func diskPath(cfg *config.Config) string {
	sqlite := cfg.Backend.Driver == backend.DriverSQLite || cfg.Backend.Driver == ""
	if !sqlite || cfg.Backend.DSN == sqliteadapter.MemoryPath {
		return ""
	}
	return filepath.Dir(cfg.Backend.DSN)
}
