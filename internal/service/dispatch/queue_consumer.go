package dispatch

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hugo-lorenzo-mato/actorfabric/internal/core"
	"github.com/hugo-lorenzo-mato/actorfabric/internal/logging"
	"github.com/hugo-lorenzo-mato/actorfabric/internal/service"
	"github.com/hugo-lorenzo-mato/actorfabric/internal/service/mailbox"
)

// QueueConfig configures a QueueConsumer.
type QueueConfig struct {
	// BatchSize caps messages per receive; they are processed concurrently,
	// at most one per actor.
	BatchSize int
	// Visibility hides a received message from other consumers.
	Visibility time.Duration
	// PollInterval is the pause after an empty receive.
	PollInterval time.Duration
	// Serialize holds the actor's lease while its message is processed.
	Serialize bool
	LockTTL   time.Duration
}

// DefaultQueueConfig returns the default consumer configuration.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		BatchSize:    10,
		Visibility:   60 * time.Second,
		PollInterval: 200 * time.Millisecond,
		Serialize:    false,
		LockTTL:      30 * time.Second,
	}
}

// QueueConsumer receives mailbox messages and invokes actors asynchronously.
// A message is acknowledged once its invocation returns without error. An
// actor's async handler failure is logged by the actor and still acked;
// routing and validation errors, a busy lease, or a lease lost mid-flight
// leave the message for redelivery once the visibility timeout passes.
type QueueConsumer struct {
	queue   core.Queue
	invoker Invoker
	leaser  Leaser
	config  QueueConfig
	retry   *service.RetryPolicy
	logger  *logging.Logger

	processed atomic.Int64
	skipped   atomic.Int64
}

// NewQueueConsumer creates a consumer. leaser may be nil when Serialize is off.
func NewQueueConsumer(queue core.Queue, invoker Invoker, leaser Leaser, cfg QueueConfig, logger *logging.Logger) *QueueConsumer {
	def := DefaultQueueConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.Visibility <= 0 {
		cfg.Visibility = def.Visibility
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = def.LockTTL
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &QueueConsumer{
		queue:   queue,
		invoker: invoker,
		leaser:  leaser,
		config:  cfg,
		retry:   service.BackendRetryPolicy(),
		logger:  logger.WithComponent("queue-consumer"),
	}
}

// Processed returns the number of acknowledged messages.
func (c *QueueConsumer) Processed() int64 { return c.processed.Load() }

// Skipped returns the number of messages left for redelivery.
func (c *QueueConsumer) Skipped() int64 { return c.skipped.Load() }

// Run polls until ctx is done.
func (c *QueueConsumer) Run(ctx context.Context) error {
	c.logger.Info("queue consumer started",
		"batch_size", c.config.BatchSize, "serialize", c.config.Serialize)
	defer c.logger.Info("queue consumer stopped")

	for {
		n, err := c.Poll(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			c.logger.Error("queue receive failed", "error", err)
		}
		if n > 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.config.PollInterval):
		}
	}
}

// Poll receives one batch and processes it. It returns the number of
// messages received.
func (c *QueueConsumer) Poll(ctx context.Context) (int, error) {
	var deliveries []core.Delivery
	err := c.retry.Execute(ctx, func(ctx context.Context) error {
		var err error
		deliveries, err = c.queue.Receive(ctx, c.config.BatchSize, c.config.Visibility)
		if err != nil {
			return core.ErrBackend("receive", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.config.BatchSize)
	for _, d := range deliveries {
		g.Go(func() error {
			c.handle(gctx, d)
			return nil
		})
	}
	_ = g.Wait()
	return len(deliveries), nil
}

func (c *QueueConsumer) handle(ctx context.Context, d core.Delivery) {
	logger := c.logger.WithActor(d.GroupKey).WithEvent(d.DedupID)

	env, err := mailbox.Decode(d)
	if err != nil {
		logger.Error("undecodable message left for dead-lettering", "receive_count", d.ReceiveCount, "error", err)
		c.skipped.Add(1)
		return
	}

	runCtx := ctx
	if c.config.Serialize && c.leaser != nil {
		lease, err := c.leaser.Hold(ctx, env.ActorID, c.config.LockTTL)
		if core.IsCode(err, core.CodeLockUnavailable) {
			logger.Debug("actor busy, leaving message for redelivery")
			c.skipped.Add(1)
			return
		}
		if err != nil {
			logger.Error("acquiring actor lease failed", "error", err)
			c.skipped.Add(1)
			return
		}
		defer func() {
			if err := lease.Release(); err != nil {
				logger.Warn("lease lost during processing", "error", err)
			}
		}()
		runCtx = lease.Context()
	}

	inv := core.Invocation{
		ActorID: env.ActorID,
		Payload: env.Payload,
		Mode:    core.ModeAsync,
		EventID: env.EventID,
		Source:  SourceQueue,
	}
	if _, err := c.invoker.Invoke(runCtx, inv); err != nil {
		logger.Error("dispatch failed", "error", err)
		c.skipped.Add(1)
		return
	}
	if runCtx.Err() != nil && ctx.Err() == nil {
		// The lease was lost mid-flight; the outcome is unknown.
		logger.Warn("lease lost before ack, leaving message for redelivery")
		c.skipped.Add(1)
		return
	}

	ackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := c.queue.Ack(ackCtx, d.Receipt); err != nil {
		logger.Error("ack failed", "error", err)
		c.skipped.Add(1)
		return
	}
	c.processed.Add(1)
}
