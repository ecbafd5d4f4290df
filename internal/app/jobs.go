package app

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/hypermind-backend/internal/jobs/eventbus"
	"github.com/yungbote/hypermind-backend/internal/jobs/orchestrator"
	"github.com/yungbote/hypermind-backend/internal/jobs/pipeline/catalog"
	"github.com/yungbote/hypermind-backend/internal/jobs/registry"
	"github.com/yungbote/hypermind-backend/internal/jobs/worker"
	"github.com/yungbote/hypermind-backend/internal/observability"
	"github.com/yungbote/hypermind-backend/internal/platform/logger"
	"github.com/yungbote/hypermind-backend/internal/realtime"
	"github.com/yungbote/hypermind-backend/internal/realtime/bus"
)

// Jobs is the durable pipeline machinery: registry, bus, executor and
// dispatcher over one database.
type Jobs struct {
	Registry   *registry.Registry
	Gate       *registry.Gate
	Bus        *eventbus.Bus
	Queue      *eventbus.GormStore
	Engine     *orchestrator.Engine
	Dispatcher *worker.Dispatcher

	signaler *eventbus.PGSignaler
}

func wireJobs(ctx context.Context, log *logger.Logger, cfg Config, db *gorm.DB, dsn string, clients Clients, hub *realtime.Hub, metrics *observability.Metrics) (*Jobs, error) {
	log.Info("Wiring pipelines...")
	var overrides *registry.Overrides
	if cfg.PipelinesConfig != "" {
		o, err := registry.LoadOverrides(cfg.PipelinesConfig)
		if err != nil {
			return nil, fmt.Errorf("load pipeline overrides: %w", err)
		}
		overrides = o
	}
	reg, err := catalog.Registry(clients.Adapters, overrides, log)
	if err != nil {
		return nil, fmt.Errorf("register pipelines: %w", err)
	}

	queue := eventbus.NewGormStore(db, log)
	j := &Jobs{
		Registry: reg,
		Gate:     registry.NewGate(reg, log),
		Bus:      eventbus.NewBus(catalog.Events(), reg, queue, log),
		Queue:    queue,
	}
	if dsn != "" {
		sig, err := eventbus.NewPGSignaler(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("init delivery signaler: %w", err)
		}
		j.signaler = sig
		j.Bus.WithSignaler(sig)
	}

	runs := orchestrator.NewGormStore(db, log)
	j.Engine = orchestrator.NewEngine(runs, runs, log)
	j.Engine.Metrics = metrics
	j.Engine.Lease = cfg.StepLease
	if cfg.WorkerOwner != "" {
		j.Engine.Owner = cfg.WorkerOwner
	}
	// With Redis, every process hears updates through the forwarder, so the
	// engine publishes there only.
	if clients.RunBus != nil {
		j.Engine.Notify = bus.NewNotifier(clients.RunBus, log)
	} else if hub != nil {
		j.Engine.Notify = hub
	}

	j.Dispatcher = worker.NewDispatcher(reg, j.Gate, queue, j.Engine, log)
	j.Dispatcher.WakeOn(j.Bus.Wakeups())
	return j, nil
}

// Start runs the dispatcher and, on Postgres, a LISTEN connection so events
// published by other processes wake it.
func (j *Jobs) Start(ctx context.Context, log *logger.Logger, dsn string) error {
	if dsn != "" {
		go eventbus.Listen(ctx, dsn, j.Dispatcher.WakeChan(), log)
	}
	return j.Dispatcher.Start(ctx)
}

func (j *Jobs) Close() {
	if j == nil {
		return
	}
	if j.signaler != nil {
		j.signaler.Close()
	}
}

// forwardRunBus feeds updates from other processes into the local hub,
// including the all-runs channel the bus does not carry.
func forwardRunBus(ctx context.Context, b bus.Bus, hub *realtime.Hub) error {
	return b.StartForwarder(ctx, func(m realtime.Message) {
		hub.Broadcast(m)
		if m.Channel != realtime.ChannelAll {
			hub.Broadcast(realtime.Message{Channel: realtime.ChannelAll, Event: m.Event, Data: m.Data})
		}
	})
}
