package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"

	"github.com/yungbote/hypermind-backend/internal/domain/pipeline"
	jobrt "github.com/yungbote/hypermind-backend/internal/jobs/runtime"
	"github.com/yungbote/hypermind-backend/internal/observability"
	"github.com/yungbote/hypermind-backend/internal/platform/ctxutil"
	"github.com/yungbote/hypermind-backend/internal/platform/httpx"
	"github.com/yungbote/hypermind-backend/internal/platform/logger"
)

const tracerName = "github.com/yungbote/hypermind-backend/internal/jobs/orchestrator"

// -------------------- Public API --------------------

// Result summarizes one Execute call. Err is the step failure that failed the
// run, if any; infrastructure problems are returned as Execute's error.
type Result struct {
	RunID    uuid.UUID
	Status   string
	Output   json.RawMessage
	Err      error
	Executed []string
	Replayed []string
}

// Engine is the step executor. It runs the steps of one PipelineRun in
// declared order, replaying succeeded steps from their records and retrying
// transient failures per step policy.
type Engine struct {
	Steps   StepStore
	Runs    RunStore
	Notify  Notifier
	Metrics *observability.Metrics

	Owner string        // lease owner id, unique per engine
	Lease time.Duration // default 2m; renewed while a step runs

	Sleep func(ctx context.Context, d time.Duration) error
	Now   func() time.Time

	log    *logger.Logger
	tracer trace.Tracer
}

func NewEngine(steps StepStore, runs RunStore, log *logger.Logger) *Engine {
	host, _ := os.Hostname()
	return &Engine{
		Steps:  steps,
		Runs:   runs,
		Notify: NopNotifier{},
		Owner:  fmt.Sprintf("%s/%d/%s", host, os.Getpid(), uuid.NewString()[:8]),
		Lease:  2 * time.Minute,
		Sleep:  httpx.SleepCtx,
		Now:    func() time.Time { return time.Now().UTC() },
		log:    log.With("component", "StepExecutor"),
		tracer: otel.Tracer(tracerName),
	}
}

// Execute drives run to a terminal status, or returns an error and leaves the
// run resumable when the context is cancelled, the store fails, or another
// worker holds one of its steps.
func (e *Engine) Execute(ctx context.Context, run *pipeline.PipelineRun, def jobrt.Definition) (Result, error) {
	if run == nil {
		return Result{}, errors.New("nil run")
	}
	res := Result{RunID: run.ID, Status: run.Status}
	if run.PipelineID != def.ID {
		return res, fmt.Errorf("run %s belongs to pipeline %s, not %s", run.ID, run.PipelineID, def.ID)
	}
	if run.Terminal() {
		return resultFromRun(run), nil
	}
	if err := def.Validate(); err != nil {
		return res, err
	}

	ctx, span := e.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("pipeline.id", def.ID),
		attribute.String("run.id", run.ID.String()),
		attribute.String("event.name", run.EventName),
	))
	defer span.End()
	log := e.log.With("pipeline_id", def.ID, "run_id", run.ID.String())

	if fresh, done, err := e.markRunning(ctx, run); err != nil || done {
		return fresh, err
	}
	res.Status = pipeline.RunRunning

	event, err := jobrt.NewEventData(run.EventName, run.EventData)
	if err != nil {
		return e.failRun(ctx, log, run, res, "", jobrt.Permanent(err))
	}
	records, err := e.Steps.ListSteps(ctx, run.ID)
	if err != nil {
		return res, fmt.Errorf("load step records: %w", err)
	}
	stored := make(map[string]*pipeline.StepRecord, len(records))
	for _, rec := range records {
		stored[rec.StepName] = rec
	}

	prior := jobrt.NewOutputs()
	last := json.RawMessage("null")
	for i, st := range def.Steps {
		if rec := stored[st.Name]; rec.Succeeded() {
			last = rawOf(rec.Output)
			prior = prior.With(st.Name, last)
			res.Replayed = append(res.Replayed, st.Name)
			continue
		}
		in := jobrt.StepInput{RunID: run.ID, Event: event, Prior: prior}
		out, stepErr, err := e.runStep(ctx, log, run, def, i, in)
		if err != nil {
			span.RecordError(err)
			log.Warn("run interrupted; leaving it resumable", "step", st.Name, "error", err)
			return res, err
		}
		if stepErr != nil {
			span.SetStatus(codes.Error, stepErr.Error())
			return e.failRun(ctx, log, run, res, st.Name, stepErr)
		}
		res.Executed = append(res.Executed, st.Name)
		last = out
		prior = prior.With(st.Name, out)
	}
	return e.succeedRun(ctx, log, run, res, last)
}

// -------------------- run transitions --------------------

func (e *Engine) markRunning(ctx context.Context, run *pipeline.PipelineRun) (Result, bool, error) {
	if run.Status != pipeline.RunPending {
		return Result{}, false, nil
	}
	now := e.Now()
	ok, err := e.Runs.TransitionRun(ctx, run.ID, RunTransition{
		From:      []string{pipeline.RunPending},
		To:        pipeline.RunRunning,
		StartedAt: &now,
	})
	if err != nil {
		return Result{RunID: run.ID, Status: run.Status}, true, fmt.Errorf("mark run running: %w", err)
	}
	if !ok {
		fresh, err := e.Runs.GetRun(ctx, run.ID)
		if err != nil {
			return Result{RunID: run.ID, Status: run.Status}, true, fmt.Errorf("reload run: %w", err)
		}
		if fresh.Terminal() {
			return resultFromRun(fresh), true, nil
		}
		return Result{}, false, nil
	}
	run.Status = pipeline.RunRunning
	run.StartedAt = &now
	e.notify(ctx, Update{RunID: run.ID, PipelineID: run.PipelineID, RunStatus: pipeline.RunRunning, At: now})
	return Result{}, false, nil
}

func (e *Engine) succeedRun(ctx context.Context, log *logger.Logger, run *pipeline.PipelineRun, res Result, out json.RawMessage) (Result, error) {
	now := e.Now()
	ok, err := e.Runs.TransitionRun(ctx, run.ID, RunTransition{
		From:        []string{pipeline.RunPending, pipeline.RunRunning},
		To:          pipeline.RunSucceeded,
		Output:      datatypes.JSON(out),
		CompletedAt: &now,
	})
	if err != nil {
		return res, fmt.Errorf("mark run succeeded: %w", err)
	}
	if !ok {
		return e.reloadTerminal(ctx, run, res)
	}
	res.Status = pipeline.RunSucceeded
	res.Output = out
	e.Metrics.ObserveRun(run.PipelineID, res.Status, elapsed(run.StartedAt, now))
	log.Info("run succeeded", "executed", len(res.Executed), "replayed", len(res.Replayed))
	e.notify(ctx, Update{RunID: run.ID, PipelineID: run.PipelineID, RunStatus: res.Status, At: now})
	return res, nil
}

func (e *Engine) failRun(ctx context.Context, log *logger.Logger, run *pipeline.PipelineRun, res Result, step string, cause error) (Result, error) {
	now := e.Now()
	msg := cause.Error()
	if step != "" {
		msg = fmt.Sprintf("step %s: %s", step, msg)
	}
	kind := jobrt.Classify(cause)
	ok, err := e.Runs.TransitionRun(ctx, run.ID, RunTransition{
		From:        []string{pipeline.RunPending, pipeline.RunRunning},
		To:          pipeline.RunFailed,
		ErrorKind:   string(kind),
		Error:       msg,
		CompletedAt: &now,
	})
	if err != nil {
		return res, fmt.Errorf("mark run failed: %w", err)
	}
	if !ok {
		return e.reloadTerminal(ctx, run, res)
	}
	res.Status = pipeline.RunFailed
	res.Err = cause
	e.Metrics.ObserveRun(run.PipelineID, res.Status, elapsed(run.StartedAt, now))
	log.Error("run failed", "step", step, "kind", kind, "error", cause)
	e.notify(ctx, Update{RunID: run.ID, PipelineID: run.PipelineID, RunStatus: res.Status, Step: step, Error: msg, At: now})
	return res, nil
}

// reloadTerminal handles a lost transition race: another worker already
// moved the run, so report what it recorded.
func (e *Engine) reloadTerminal(ctx context.Context, run *pipeline.PipelineRun, res Result) (Result, error) {
	fresh, err := e.Runs.GetRun(ctx, run.ID)
	if err != nil {
		return res, fmt.Errorf("reload run: %w", err)
	}
	out := resultFromRun(fresh)
	out.Executed, out.Replayed = res.Executed, res.Replayed
	return out, nil
}

// -------------------- steps --------------------

// runStep returns the step output, or a step failure that must fail the run,
// or an infrastructure error that leaves the run resumable.
func (e *Engine) runStep(ctx context.Context, log *logger.Logger, run *pipeline.PipelineRun, def jobrt.Definition, idx int, in jobrt.StepInput) (json.RawMessage, error, error) {
	st := def.Steps[idx]
	now := e.Now()
	rec, err := e.Steps.ClaimStep(ctx, StepClaim{
		RunID:     run.ID,
		StepName:  st.Name,
		StepIndex: idx,
		Owner:     e.Owner,
		Until:     now.Add(e.lease()),
		Now:       now,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("claim step %s: %w", st.Name, err)
	}
	switch rec.Status {
	case pipeline.StepSucceeded:
		return rawOf(rec.Output), nil, nil
	case pipeline.StepFailed:
		return nil, recordedError(rec), nil
	}

	slog := log.With("step", st.Name)
	for {
		started := e.Now()
		until := started.Add(e.lease())
		rec.Attempts++
		rec.StartedAt = &started
		rec.LeaseUntil = &until
		if err := e.Steps.RecordAttempt(ctx, rec); err != nil {
			return nil, nil, fmt.Errorf("record attempt of step %s: %w", st.Name, err)
		}
		e.notify(ctx, Update{RunID: run.ID, PipelineID: run.PipelineID, RunStatus: pipeline.RunRunning, Step: st.Name, StepStatus: pipeline.StepPending, Attempt: rec.Attempts, At: started})

		raw, runErr := e.attempt(ctx, slog, def, st, rec, in)
		finished := e.Now()
		if runErr == nil {
			e.Metrics.ObserveStepAttempt(def.ID, st.Name, "ok", finished.Sub(started))
			return e.completeStep(ctx, slog, run, st, rec, raw, finished)
		}
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}

		kind := jobrt.Classify(runErr)
		rec.ErrorKind = string(kind)
		rec.ErrorMessage = runErr.Error()
		e.Metrics.ObserveStepAttempt(def.ID, st.Name, string(kind), finished.Sub(started))

		if st.Retry.Allows(rec.Attempts, runErr) {
			delay := st.Retry.Backoff(rec.Attempts)
			slog.Warn("step attempt failed; retrying",
				"attempt", rec.Attempts,
				"max_attempts", st.Retry.Attempts(),
				"delay", delay.String(),
				"error", runErr,
			)
			if err := e.Steps.RecordAttempt(ctx, rec); err != nil {
				return nil, nil, fmt.Errorf("record failed attempt of step %s: %w", st.Name, err)
			}
			if err := e.sleep(ctx, delay); err != nil {
				return nil, nil, err
			}
			continue
		}

		rec.Status = pipeline.StepFailed
		rec.FinishedAt = &finished
		if err := e.Steps.FailStep(ctx, rec); err != nil {
			return nil, nil, fmt.Errorf("record failure of step %s: %w", st.Name, err)
		}
		slog.Error("step failed", "attempt", rec.Attempts, "kind", kind, "error", runErr)
		e.notify(ctx, Update{RunID: run.ID, PipelineID: run.PipelineID, RunStatus: pipeline.RunRunning, Step: st.Name, StepStatus: pipeline.StepFailed, Attempt: rec.Attempts, Error: rec.ErrorMessage, At: finished})
		return nil, runErr, nil
	}
}

func (e *Engine) completeStep(ctx context.Context, log *logger.Logger, run *pipeline.PipelineRun, st jobrt.Step, rec *pipeline.StepRecord, raw json.RawMessage, finished time.Time) (json.RawMessage, error, error) {
	rec.Status = pipeline.StepSucceeded
	rec.Output = datatypes.JSON(raw)
	rec.FinishedAt = &finished
	rec.ErrorKind, rec.ErrorMessage = "", ""
	won, err := e.Steps.CompleteStep(ctx, rec)
	if err != nil {
		return nil, nil, fmt.Errorf("complete step %s: %w", st.Name, err)
	}
	if !won {
		stored, err := e.Steps.GetStep(ctx, run.ID, st.Name)
		if err != nil {
			return nil, nil, fmt.Errorf("reload step %s: %w", st.Name, err)
		}
		switch {
		case stored.Succeeded():
			log.Warn("step completed concurrently; using stored output")
			return rawOf(stored.Output), nil, nil
		case stored != nil && stored.Status == pipeline.StepFailed:
			log.Warn("step failed under another owner; discarding late output", "owner", stored.Owner)
			return nil, recordedError(stored), nil
		default:
			return nil, nil, ErrStepHeld
		}
	}
	log.Debug("step succeeded", "attempt", rec.Attempts)
	e.notify(ctx, Update{RunID: run.ID, PipelineID: run.PipelineID, RunStatus: pipeline.RunRunning, Step: st.Name, StepStatus: pipeline.StepSucceeded, Attempt: rec.Attempts, At: finished})
	return raw, nil, nil
}

// attempt runs one try of st under a span, keeping the lease alive, and
// encodes the output.
func (e *Engine) attempt(ctx context.Context, log *logger.Logger, def jobrt.Definition, st jobrt.Step, rec *pipeline.StepRecord, in jobrt.StepInput) (json.RawMessage, error) {
	actx, span := e.tracer.Start(ctx, "pipeline.step", trace.WithAttributes(
		attribute.String("pipeline.id", def.ID),
		attribute.String("step.name", st.Name),
		attribute.Int("step.attempt", rec.Attempts),
	))
	defer span.End()
	actx = ctxutil.WithTraceData(actx, &ctxutil.TraceData{
		TraceID: span.SpanContext().TraceID().String(),
		RunID:   rec.RunID.String(),
		Step:    st.Name,
		Attempt: rec.Attempts,
	})

	stop := e.keepLease(actx, log, *rec)
	out, err := invoke(actx, st, in)
	stop()
	if err == nil {
		var raw json.RawMessage
		raw, err = encodeOutput(st.Name, out)
		if err == nil {
			return raw, nil
		}
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return nil, err
}

// keepLease renews the step lease until the returned func is called.
func (e *Engine) keepLease(ctx context.Context, log *logger.Logger, rec pipeline.StepRecord) func() {
	lease := e.lease()
	if lease <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(lease / 3)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-t.C:
				until := e.Now().Add(lease)
				rec.LeaseUntil = &until
				if err := e.Steps.RecordAttempt(ctx, &rec); err != nil {
					log.Warn("lease renewal failed", "error", err)
				}
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}

func invoke(ctx context.Context, st jobrt.Step, in jobrt.StepInput) (any, error) {
	call := func(c context.Context) (out any, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = jobrt.Permanent(fmt.Errorf("step %q panicked: %v\n%s", st.Name, r, debug.Stack()))
			}
		}()
		return st.Run(c, in)
	}
	if st.Timeout <= 0 {
		return call(ctx)
	}
	tctx, cancel := context.WithTimeout(ctx, st.Timeout)
	defer cancel()
	type result struct {
		out any
		err error
	}
	ch := make(chan result, 1)
	go func() {
		o, err := call(tctx)
		ch <- result{out: o, err: err}
	}()
	select {
	case <-tctx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// Let the attempt unwind so it does not overlap its own retry.
		grace := time.NewTimer(timeoutGrace)
		defer grace.Stop()
		select {
		case <-ch:
		case <-grace.C:
		}
		return nil, jobrt.Transient(fmt.Errorf("step %q timed out after %s: %w", st.Name, st.Timeout, tctx.Err()))
	case r := <-ch:
		return r.out, r.err
	}
}

// timeoutGrace bounds how long a timed-out attempt may keep running before
// the engine moves on without it.
const timeoutGrace = 5 * time.Second

func encodeOutput(step string, out any) (json.RawMessage, error) {
	if out == nil {
		return json.RawMessage("null"), nil
	}
	b, err := json.Marshal(out)
	if err != nil {
		return nil, &jobrt.OutputNotSerializableError{Step: step, Err: err}
	}
	return b, nil
}

// -------------------- misc --------------------

func (e *Engine) lease() time.Duration {
	if e.Lease <= 0 {
		return 0
	}
	return e.Lease
}

func (e *Engine) sleep(ctx context.Context, d time.Duration) error {
	if e.Sleep == nil {
		return httpx.SleepCtx(ctx, d)
	}
	return e.Sleep(ctx, d)
}

func (e *Engine) notify(ctx context.Context, u Update) {
	if e.Notify != nil {
		e.Notify.Notify(ctx, u)
	}
}

func recordedError(rec *pipeline.StepRecord) error {
	err := fmt.Errorf("%s", rec.ErrorMessage)
	if rec.ErrorKind == string(jobrt.KindTransient) {
		return jobrt.Transient(err)
	}
	return jobrt.Permanent(err)
}

func resultFromRun(r *pipeline.PipelineRun) Result {
	res := Result{RunID: r.ID, Status: r.Status, Output: rawOf(r.Output)}
	if r.Status == pipeline.RunFailed {
		res.Err = errors.New(r.Error)
	}
	return res
}

func rawOf(j datatypes.JSON) json.RawMessage {
	if len(j) == 0 {
		return json.RawMessage("null")
	}
	return json.RawMessage(j)
}

func elapsed(from *time.Time, to time.Time) time.Duration {
	if from == nil {
		return 0
	}
	return to.Sub(*from)
}
