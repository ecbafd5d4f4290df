package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/yungbote/hypermind-backend/internal/domain/pipeline"
	"github.com/yungbote/hypermind-backend/internal/jobs/eventbus"
	"github.com/yungbote/hypermind-backend/internal/jobs/orchestrator"
	"github.com/yungbote/hypermind-backend/internal/jobs/registry"
	jobrt "github.com/yungbote/hypermind-backend/internal/jobs/runtime"
	"github.com/yungbote/hypermind-backend/internal/observability"
	"github.com/yungbote/hypermind-backend/internal/platform/logger"
)

// Executor runs one pipeline run to completion or interruption.
type Executor interface {
	Execute(ctx context.Context, run *pipeline.PipelineRun, def jobrt.Definition) (orchestrator.Result, error)
}

// Dispatcher turns queued deliveries into runs, never exceeding a pipeline's
// concurrency. The gate bounds this process; the queue re-checks the limit
// against every process sharing the store at admission.
type Dispatcher struct {
	reg     *registry.Registry
	gate    *registry.Gate
	queue   eventbus.Queue
	exec    Executor
	log     *logger.Logger
	metrics *observability.Metrics

	Tick       time.Duration
	RetryDelay time.Duration

	wake    chan struct{}
	sources []<-chan struct{}

	mu      sync.Mutex
	backlog map[string][]backlogEntry

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

type backlogEntry struct {
	run   *pipeline.PipelineRun
	after time.Time
}

func NewDispatcher(reg *registry.Registry, gate *registry.Gate, queue eventbus.Queue, exec Executor, baseLog *logger.Logger) *Dispatcher {
	return &Dispatcher{
		reg:        reg,
		gate:       gate,
		queue:      queue,
		exec:       exec,
		log:        baseLog.With("component", "Dispatcher"),
		metrics:    observability.Current(),
		Tick:       time.Second,
		RetryDelay: 5 * time.Second,
		wake:       make(chan struct{}, 1),
		backlog:    map[string][]backlogEntry{},
	}
}

// WakeOn adds a wake-up source, such as the bus or a LISTEN connection.
// Call before Start.
func (d *Dispatcher) WakeOn(ch <-chan struct{}) {
	d.sources = append(d.sources, ch)
}

// Wake schedules a pump without blocking.
func (d *Dispatcher) Wake() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// WakeChan exposes the wake channel for producers in other packages.
func (d *Dispatcher) WakeChan() chan<- struct{} { return d.wake }

// Start re-admits unfinished runs from a previous process, then pumps until
// Stop or ctx cancellation.
func (d *Dispatcher) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	if err := d.recover(ctx); err != nil {
		cancel()
		return fmt.Errorf("recover unfinished runs: %w", err)
	}
	for _, src := range d.sources {
		d.wg.Add(1)
		go d.forward(ctx, src)
	}
	d.wg.Add(1)
	go d.loop(ctx)
	d.log.Info("Dispatcher started", "pipelines", len(d.reg.Definitions()))
	return nil
}

// Stop cancels the loop and waits for in-flight runs to return. Interrupted
// runs stay resumable.
func (d *Dispatcher) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()
	d.log.Info("Dispatcher stopped")
}

func (d *Dispatcher) recover(ctx context.Context) error {
	runs, err := d.queue.Unfinished(ctx)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, run := range runs {
		if _, ok := d.reg.Get(run.PipelineID); !ok {
			d.log.Warn("unfinished run for unknown pipeline", "run_id", run.ID.String(), "pipeline_id", run.PipelineID)
			continue
		}
		d.backlog[run.PipelineID] = append(d.backlog[run.PipelineID], backlogEntry{run: run})
	}
	if len(runs) > 0 {
		d.log.Info("re-admitting unfinished runs", "count", len(runs))
	}
	return nil
}

func (d *Dispatcher) forward(ctx context.Context, src <-chan struct{}) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-src:
			if !ok {
				return
			}
			d.Wake()
		}
	}
}

func (d *Dispatcher) loop(ctx context.Context) {
	defer d.wg.Done()
	tick := d.Tick
	if tick <= 0 {
		tick = time.Second
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		d.safePump(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-d.wake:
		}
	}
}

func (d *Dispatcher) safePump(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("dispatcher pump panic", "panic", r, "stack", string(debug.Stack()))
		}
	}()
	d.Pump(ctx)
}

// Pump admits as much work as the gates allow: recovered runs first, then
// queued deliveries in FIFO order.
func (d *Dispatcher) Pump(ctx context.Context) {
	for _, def := range d.reg.Definitions() {
		for ctx.Err() == nil {
			if !d.gate.TryAcquire(def.ID) {
				break
			}
			run := d.nextBacklog(def.ID)
			if run == nil {
				var err error
				run, err = d.queue.AdmitNext(ctx, def.ID, def.Concurrency)
				if err != nil {
					d.gate.Release(def.ID)
					d.log.Warn("AdmitNext failed", "pipeline_id", def.ID, "error", err)
					break
				}
			}
			if run == nil {
				d.gate.Release(def.ID)
				break
			}
			d.launch(ctx, run)
		}
		d.metrics.SetActiveRuns(def.ID, d.gate.Running(def.ID))
	}
}

func (d *Dispatcher) nextBacklog(pipelineID string) *pipeline.PipelineRun {
	d.mu.Lock()
	defer d.mu.Unlock()
	q := d.backlog[pipelineID]
	if len(q) == 0 || time.Now().Before(q[0].after) {
		return nil
	}
	d.backlog[pipelineID] = q[1:]
	return q[0].run
}

func (d *Dispatcher) requeue(run *pipeline.PipelineRun) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.backlog[run.PipelineID] = append(d.backlog[run.PipelineID], backlogEntry{run: run, after: time.Now().Add(d.RetryDelay)})
}

// Backlogged reports how many recovered or interrupted runs wait for a slot.
func (d *Dispatcher) Backlogged() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, q := range d.backlog {
		n += len(q)
	}
	return n
}

func (d *Dispatcher) launch(ctx context.Context, run *pipeline.PipelineRun) {
	def, _ := d.reg.Get(run.PipelineID)
	log := d.log.With("pipeline_id", run.PipelineID, "run_id", run.ID.String())
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.Wake()
		defer d.gate.Release(run.PipelineID)
		defer func() {
			if r := recover(); r != nil {
				log.Error("run panic", "panic", r, "stack", string(debug.Stack()))
				d.requeue(run)
			}
		}()

		res, err := d.exec.Execute(ctx, run, def)
		switch {
		case err == nil:
			if res.Status == pipeline.RunSucceeded || res.Status == pipeline.RunFailed {
				if mErr := d.queue.MarkDone(context.WithoutCancel(ctx), run.ID); mErr != nil {
					log.Warn("MarkDone failed", "error", mErr)
				}
			}
		case errors.Is(err, orchestrator.ErrStepHeld):
			log.Info("a step is leased by another worker; checking back later")
			d.requeue(run)
		case ctx.Err() != nil:
			log.Info("run interrupted by shutdown; it will resume on restart")
		default:
			log.Error("run interrupted; will retry", "error", err)
			d.requeue(run)
		}
	}()
}
