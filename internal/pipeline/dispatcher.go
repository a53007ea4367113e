package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/konvohq/konvo/internal/channel"
)

// Runner is the dispatcher's view of the orchestrator.
type Runner interface {
	Process(ctx context.Context, event channel.InboundEvent) ([]string, error)
}

// Dispatcher runs pipeline invocations on a bounded worker pool. Webhook
// handlers enqueue and acknowledge immediately; a run's failure is logged and
// dropped so the provider never retries because automation failed.
type Dispatcher struct {
	runner  Runner
	logger  *slog.Logger
	queue   chan channel.InboundEvent
	workers int

	once   sync.Once
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewDispatcher(runner Runner, workers, queueSize int, logger *slog.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Dispatcher{
		runner:  runner,
		logger:  logger.With(slog.String("service", "dispatcher")),
		queue:   make(chan channel.InboundEvent, queueSize),
		workers: workers,
	}
}

// Enqueue hands an event to the pool. A full queue is reported to the caller;
// providers redeliver, so shedding load beats unbounded buffering.
func (d *Dispatcher) Enqueue(ctx context.Context, event channel.InboundEvent) error {
	d.start(ctx)
	if d.ctx != nil && d.ctx.Err() != nil {
		return errors.New("dispatcher stopped")
	}
	select {
	case d.queue <- event:
		return nil
	default:
		return errors.New("inbound queue full")
	}
}

func (d *Dispatcher) start(ctx context.Context) {
	d.once.Do(func() {
		if ctx == nil {
			ctx = context.Background()
		}
		d.ctx, d.cancel = context.WithCancel(context.WithoutCancel(ctx))
		for i := 0; i < d.workers; i++ {
			d.wg.Add(1)
			go d.run(d.ctx)
		}
	})
}

// Stop drains no further work and waits for in-flight runs to finish.
func (d *Dispatcher) Stop() {
	d.start(context.Background())
	d.cancel()
	d.wg.Wait()
}

func (d *Dispatcher) run(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-d.queue:
			d.process(ctx, event)
		}
	}
}

// process runs one event to completion. The run is never cancelled midway; a
// panic or error is contained here so one bad event cannot take a worker down.
func (d *Dispatcher) process(ctx context.Context, event channel.InboundEvent) {
	defer func() {
		if rec := recover(); rec != nil {
			d.logger.Error("pipeline run panicked",
				slog.String("channel_id", event.ChannelID),
				slog.Any("panic", rec))
		}
	}()
	if _, err := d.runner.Process(context.WithoutCancel(ctx), event); err != nil {
		d.logger.Error("pipeline run failed",
			slog.String("channel_id", event.ChannelID),
			slog.Any("error", err))
	}
}
