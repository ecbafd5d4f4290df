package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/hypermind-backend/internal/domain/pipeline"
	jobrt "github.com/yungbote/hypermind-backend/internal/jobs/runtime"
	"github.com/yungbote/hypermind-backend/internal/platform/logger"
)

func newTestEngine(store *MemoryStore) (*Engine, *int32) {
	var sleeps int32
	e := NewEngine(store, store, logger.NewNop())
	e.Sleep = func(ctx context.Context, d time.Duration) error {
		atomic.AddInt32(&sleeps, 1)
		return ctx.Err()
	}
	return e, &sleeps
}

func newTestRun(store *MemoryStore, pipelineID string, data string) *pipeline.PipelineRun {
	run := &pipeline.PipelineRun{
		ID:         uuid.New(),
		PipelineID: pipelineID,
		EventID:    uuid.New(),
		EventName:  "test/event",
		EventData:  datatypes.JSON(data),
		Status:     pipeline.RunPending,
		CreatedAt:  time.Now().UTC(),
	}
	store.PutRun(run)
	return run
}

func testDef(steps ...jobrt.Step) jobrt.Definition {
	return jobrt.Definition{ID: "test-pipeline", Events: []string{"test/event"}, Steps: steps}
}

func counting(n *int32, fn jobrt.StepFunc) jobrt.StepFunc {
	return func(ctx context.Context, in jobrt.StepInput) (any, error) {
		atomic.AddInt32(n, 1)
		return fn(ctx, in)
	}
}

func TestExecuteRunsStepsInOrderAndChainsOutputs(t *testing.T) {
	store := NewMemoryStore()
	e, _ := newTestEngine(store)
	var order []string
	def := testDef(
		jobrt.Step{Name: "a", Run: func(ctx context.Context, in jobrt.StepInput) (any, error) {
			order = append(order, "a")
			return map[string]int{"n": in.Event.Int("start", 0) + 1}, nil
		}},
		jobrt.Step{Name: "b", Run: func(ctx context.Context, in jobrt.StepInput) (any, error) {
			order = append(order, "b")
			var prev struct{ N int }
			if err := in.Prior.Decode("a", &prev); err != nil {
				return nil, err
			}
			return map[string]int{"n": prev.N * 10}, nil
		}},
	)
	run := newTestRun(store, def.ID, `{"start":4}`)

	res, err := e.Execute(context.Background(), run, def)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Status != pipeline.RunSucceeded {
		t.Fatalf("status: want=%s got=%s", pipeline.RunSucceeded, res.Status)
	}
	if fmt.Sprint(order) != "[a b]" {
		t.Fatalf("order: want=[a b] got=%v", order)
	}
	if string(res.Output) != `{"n":50}` {
		t.Fatalf("output: want=%s got=%s", `{"n":50}`, res.Output)
	}
	stored, _ := store.GetRun(context.Background(), run.ID)
	if stored.Status != pipeline.RunSucceeded || string(stored.Output) != `{"n":50}` {
		t.Fatalf("stored run: status=%s output=%s", stored.Status, stored.Output)
	}
	if stored.StartedAt == nil || stored.CompletedAt == nil {
		t.Fatalf("expected start and completion timestamps")
	}
}

func TestExecuteResumesWithoutRerunningSucceededSteps(t *testing.T) {
	store := NewMemoryStore()
	e, _ := newTestEngine(store)
	var aCalls, bCalls, cCalls int32
	ctx, cancel := context.WithCancel(context.Background())
	def := testDef(
		jobrt.Step{Name: "a", Run: counting(&aCalls, func(context.Context, jobrt.StepInput) (any, error) {
			return "from-a", nil
		})},
		jobrt.Step{Name: "b", Run: counting(&bCalls, func(c context.Context, in jobrt.StepInput) (any, error) {
			if atomic.LoadInt32(&bCalls) == 1 {
				cancel()
				return nil, c.Err()
			}
			var a string
			if err := in.Prior.Decode("a", &a); err != nil {
				return nil, err
			}
			return a + "+b", nil
		})},
		jobrt.Step{Name: "c", Run: counting(&cCalls, func(_ context.Context, in jobrt.StepInput) (any, error) {
			var b string
			if err := in.Prior.Decode("b", &b); err != nil {
				return nil, err
			}
			return b + "+c", nil
		})},
	)
	run := newTestRun(store, def.ID, `{}`)

	if _, err := e.Execute(ctx, run, def); !errors.Is(err, context.Canceled) {
		t.Fatalf("first Execute: want context.Canceled got=%v", err)
	}
	mid, _ := store.GetRun(context.Background(), run.ID)
	if mid.Terminal() {
		t.Fatalf("run should stay resumable after cancellation, got status=%s", mid.Status)
	}

	res, err := e.Execute(context.Background(), mid, def)
	if err != nil {
		t.Fatalf("second Execute: %v", err)
	}
	if res.Status != pipeline.RunSucceeded {
		t.Fatalf("status: want=%s got=%s (err=%v)", pipeline.RunSucceeded, res.Status, res.Err)
	}
	if aCalls != 1 || bCalls != 2 || cCalls != 1 {
		t.Fatalf("calls: want a=1 b=2 c=1 got a=%d b=%d c=%d", aCalls, bCalls, cCalls)
	}
	if fmt.Sprint(res.Replayed) != "[a]" {
		t.Fatalf("replayed: want=[a] got=%v", res.Replayed)
	}
	if string(res.Output) != `"from-a+b+c"` {
		t.Fatalf("output: want=%s got=%s", `"from-a+b+c"`, res.Output)
	}
}

func TestExecuteRetriesTransientUpToLimit(t *testing.T) {
	store := NewMemoryStore()
	e, sleeps := newTestEngine(store)
	var calls, after int32
	def := testDef(
		jobrt.Step{Name: "flaky", Retry: jobrt.Retries(2), Run: counting(&calls, func(context.Context, jobrt.StepInput) (any, error) {
			return nil, jobrt.Transientf("upstream 503")
		})},
		jobrt.Step{Name: "after", Run: counting(&after, func(context.Context, jobrt.StepInput) (any, error) {
			return nil, nil
		})},
	)
	run := newTestRun(store, def.ID, `{}`)

	res, err := e.Execute(context.Background(), run, def)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Status != pipeline.RunFailed {
		t.Fatalf("status: want=%s got=%s", pipeline.RunFailed, res.Status)
	}
	if calls != 3 {
		t.Fatalf("attempts: want=3 got=%d", calls)
	}
	if *sleeps != 2 {
		t.Fatalf("backoff sleeps: want=2 got=%d", *sleeps)
	}
	if after != 0 {
		t.Fatalf("later step should not run, ran %d times", after)
	}
	rec, _ := store.GetStep(context.Background(), run.ID, "flaky")
	if rec == nil || rec.Status != pipeline.StepFailed || rec.Attempts != 3 {
		t.Fatalf("step record: %+v", rec)
	}
	if rec.ErrorKind != string(jobrt.KindTransient) {
		t.Fatalf("error kind: want=%s got=%s", jobrt.KindTransient, rec.ErrorKind)
	}
	if got, _ := store.GetStep(context.Background(), run.ID, "after"); got != nil {
		t.Fatalf("later step should have no record, got %+v", got)
	}
}

func TestExecuteTransientThenSuccess(t *testing.T) {
	store := NewMemoryStore()
	e, _ := newTestEngine(store)
	var calls int32
	def := testDef(jobrt.Step{Name: "flaky", Retry: jobrt.Retries(3), Run: counting(&calls, func(context.Context, jobrt.StepInput) (any, error) {
		if atomic.LoadInt32(&calls) < 3 {
			return nil, jobrt.Transientf("rate limited")
		}
		return "ok", nil
	})})
	run := newTestRun(store, def.ID, `{}`)

	res, err := e.Execute(context.Background(), run, def)
	if err != nil || res.Status != pipeline.RunSucceeded {
		t.Fatalf("want success got status=%s err=%v", res.Status, err)
	}
	rec, _ := store.GetStep(context.Background(), run.ID, "flaky")
	if rec.Attempts != 3 || rec.ErrorMessage != "" {
		t.Fatalf("step record: attempts=%d error=%q", rec.Attempts, rec.ErrorMessage)
	}
}

func TestExecutePermanentErrorSkipsRetries(t *testing.T) {
	store := NewMemoryStore()
	e, sleeps := newTestEngine(store)
	var calls int32
	def := testDef(jobrt.Step{Name: "bad-input", Retry: jobrt.Retries(5), Run: counting(&calls, func(context.Context, jobrt.StepInput) (any, error) {
		return nil, jobrt.Permanentf("document not found")
	})})
	run := newTestRun(store, def.ID, `{}`)

	res, err := e.Execute(context.Background(), run, def)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if calls != 1 || *sleeps != 0 {
		t.Fatalf("want one attempt and no sleeps, got calls=%d sleeps=%d", calls, *sleeps)
	}
	stored, _ := store.GetRun(context.Background(), run.ID)
	if stored.Status != pipeline.RunFailed || stored.ErrorKind != string(jobrt.KindPermanent) {
		t.Fatalf("run: status=%s kind=%s", stored.Status, stored.ErrorKind)
	}
	if stored.Error == "" || res.Err == nil {
		t.Fatalf("expected the failure message to be recorded")
	}
}

func TestExecuteNoRetryFailsOnFirstTransient(t *testing.T) {
	store := NewMemoryStore()
	e, _ := newTestEngine(store)
	var calls int32
	def := testDef(jobrt.Step{Name: "once", Retry: jobrt.NoRetry(), Run: counting(&calls, func(context.Context, jobrt.StepInput) (any, error) {
		return nil, jobrt.Transientf("timeout")
	})})
	run := newTestRun(store, def.ID, `{}`)

	res, _ := e.Execute(context.Background(), run, def)
	if res.Status != pipeline.RunFailed || calls != 1 {
		t.Fatalf("want failed after one attempt, got status=%s calls=%d", res.Status, calls)
	}
}

func TestExecuteUnserializableOutputIsPermanent(t *testing.T) {
	store := NewMemoryStore()
	e, _ := newTestEngine(store)
	var calls int32
	def := testDef(jobrt.Step{Name: "leaky", Retry: jobrt.Retries(3), Run: counting(&calls, func(context.Context, jobrt.StepInput) (any, error) {
		return map[string]any{"fn": func() {}}, nil
	})})
	run := newTestRun(store, def.ID, `{}`)

	res, err := e.Execute(context.Background(), run, def)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	var ns *jobrt.OutputNotSerializableError
	if !errors.As(res.Err, &ns) || ns.Step != "leaky" {
		t.Fatalf("want OutputNotSerializableError for leaky, got %v", res.Err)
	}
	if calls != 1 {
		t.Fatalf("attempts: want=1 got=%d", calls)
	}
}

func TestExecutePanicFailsRunPermanently(t *testing.T) {
	store := NewMemoryStore()
	e, _ := newTestEngine(store)
	def := testDef(jobrt.Step{Name: "boom", Retry: jobrt.Retries(2), Run: func(context.Context, jobrt.StepInput) (any, error) {
		panic("nil map")
	}})
	run := newTestRun(store, def.ID, `{}`)

	res, err := e.Execute(context.Background(), run, def)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Status != pipeline.RunFailed || jobrt.Classify(res.Err) != jobrt.KindPermanent {
		t.Fatalf("want permanent failure, got status=%s err=%v", res.Status, res.Err)
	}
}

func TestExecuteStepTimeoutIsTransient(t *testing.T) {
	store := NewMemoryStore()
	e, _ := newTestEngine(store)
	def := testDef(jobrt.Step{Name: "slow", Timeout: 20 * time.Millisecond, Run: func(ctx context.Context, _ jobrt.StepInput) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}})
	run := newTestRun(store, def.ID, `{}`)

	res, err := e.Execute(context.Background(), run, def)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	stored, _ := store.GetRun(context.Background(), run.ID)
	if res.Status != pipeline.RunFailed || stored.ErrorKind != string(jobrt.KindTransient) {
		t.Fatalf("want transient failure, got status=%s kind=%s", res.Status, stored.ErrorKind)
	}
}

func TestExecuteTimedOutAttemptDoesNotOverlapRetry(t *testing.T) {
	store := NewMemoryStore()
	e, _ := newTestEngine(store)
	var running, peak, calls int32
	def := testDef(jobrt.Step{Name: "stubborn", Timeout: 10 * time.Millisecond, Retry: jobrt.Retries(3), Run: func(context.Context, jobrt.StepInput) (any, error) {
		n := atomic.AddInt32(&running, 1)
		if n > atomic.LoadInt32(&peak) {
			atomic.StoreInt32(&peak, n)
		}
		defer atomic.AddInt32(&running, -1)
		if atomic.AddInt32(&calls, 1) < 3 {
			// Ignores ctx and outlives the timeout.
			time.Sleep(40 * time.Millisecond)
			return nil, nil
		}
		return "done", nil
	}})
	run := newTestRun(store, def.ID, `{}`)

	res, err := e.Execute(context.Background(), run, def)
	if err != nil || res.Status != pipeline.RunSucceeded {
		t.Fatalf("Execute: status=%s err=%v", res.Status, err)
	}
	if calls != 3 {
		t.Fatalf("attempts: want=3 got=%d", calls)
	}
	if peak != 1 {
		t.Fatalf("overlapping attempts: want peak=1 got=%d", peak)
	}
}

// racingStore lets another worker take the step over and complete it just
// before this engine's CompleteStep lands.
type racingStore struct {
	*MemoryStore
	winner string
}

func (r *racingStore) CompleteStep(ctx context.Context, in *pipeline.StepRecord) (bool, error) {
	later := time.Now().UTC().Add(24 * time.Hour)
	other, err := r.MemoryStore.ClaimStep(ctx, StepClaim{RunID: in.RunID, StepName: in.StepName, Owner: "other-worker", Until: later.Add(time.Minute), Now: later})
	if err != nil {
		return false, err
	}
	other.Output = datatypes.JSON(r.winner)
	if _, err := r.MemoryStore.CompleteStep(ctx, other); err != nil {
		return false, err
	}
	return r.MemoryStore.CompleteStep(ctx, in)
}

func TestExecuteUsesStoredOutputWhenCompletionRaceLost(t *testing.T) {
	mem := NewMemoryStore()
	rs := &racingStore{MemoryStore: mem, winner: `{"value":"stored"}`}
	e := NewEngine(rs, mem, logger.NewNop())
	var seen string
	def := testDef(
		jobrt.Step{Name: "a", Run: func(context.Context, jobrt.StepInput) (any, error) {
			return map[string]string{"value": "mine"}, nil
		}},
		jobrt.Step{Name: "b", Run: func(_ context.Context, in jobrt.StepInput) (any, error) {
			var prev struct{ Value string }
			if err := in.Prior.Decode("a", &prev); err != nil {
				return nil, err
			}
			seen = prev.Value
			return nil, nil
		}},
	)
	run := newTestRun(mem, def.ID, `{}`)

	if _, err := e.Execute(context.Background(), run, def); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if seen != "stored" {
		t.Fatalf("downstream input: want=stored got=%s", seen)
	}
	rec, _ := mem.GetStep(context.Background(), run.ID, "a")
	if string(rec.Output) != rs.winner {
		t.Fatalf("stored output changed: want=%s got=%s", rs.winner, rec.Output)
	}
}

func TestExecuteKeepsFailureRecordedByNewOwner(t *testing.T) {
	store := NewMemoryStore()
	e, _ := newTestEngine(store)
	var downstream int32
	def := testDef(
		jobrt.Step{Name: "a", Run: func(ctx context.Context, in jobrt.StepInput) (any, error) {
			// Our lease lapses mid-attempt; another worker takes over and fails the step.
			later := time.Now().UTC().Add(24 * time.Hour)
			other, err := store.ClaimStep(ctx, StepClaim{RunID: in.RunID, StepName: "a", Owner: "other-worker", Until: later.Add(time.Minute), Now: later})
			if err != nil {
				return nil, err
			}
			other.Status = pipeline.StepFailed
			other.ErrorKind = string(jobrt.KindPermanent)
			other.ErrorMessage = "rejected by other-worker"
			other.FinishedAt = &later
			if err := store.FailStep(ctx, other); err != nil {
				return nil, err
			}
			return "late", nil
		}},
		jobrt.Step{Name: "b", Run: counting(&downstream, func(context.Context, jobrt.StepInput) (any, error) {
			return nil, nil
		})},
	)
	run := newTestRun(store, def.ID, `{}`)

	res, err := e.Execute(context.Background(), run, def)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Status != pipeline.RunFailed {
		t.Fatalf("run status: want=%s got=%s", pipeline.RunFailed, res.Status)
	}
	rec, _ := store.GetStep(context.Background(), run.ID, "a")
	if rec.Status != pipeline.StepFailed || rec.Owner != "other-worker" || len(rec.Output) != 0 {
		t.Fatalf("step record overwritten by stale owner: %+v", rec)
	}
	stored, _ := store.GetRun(context.Background(), run.ID)
	if stored.ErrorKind != string(jobrt.KindPermanent) {
		t.Fatalf("run error kind: want=%s got=%s", jobrt.KindPermanent, stored.ErrorKind)
	}
	if downstream != 0 {
		t.Fatalf("downstream step ran %d times after failure", downstream)
	}
}

func TestExecuteReturnsStepHeldWhenLeasedElsewhere(t *testing.T) {
	store := NewMemoryStore()
	e, _ := newTestEngine(store)
	var calls int32
	def := testDef(jobrt.Step{Name: "a", Run: counting(&calls, func(context.Context, jobrt.StepInput) (any, error) {
		return nil, nil
	})})
	run := newTestRun(store, def.ID, `{}`)
	now := time.Now().UTC()
	if _, err := store.ClaimStep(context.Background(), StepClaim{
		RunID: run.ID, StepName: "a", Owner: "someone-else", Until: now.Add(time.Hour), Now: now,
	}); err != nil {
		t.Fatalf("pre-claim: %v", err)
	}

	_, err := e.Execute(context.Background(), run, def)
	if !errors.Is(err, ErrStepHeld) {
		t.Fatalf("want ErrStepHeld got=%v", err)
	}
	if calls != 0 {
		t.Fatalf("held step must not run, ran %d times", calls)
	}
	stored, _ := store.GetRun(context.Background(), run.ID)
	if stored.Terminal() {
		t.Fatalf("run should remain resumable, got %s", stored.Status)
	}
}

func TestExecuteTakesOverExpiredLease(t *testing.T) {
	store := NewMemoryStore()
	e, _ := newTestEngine(store)
	def := testDef(jobrt.Step{Name: "a", Run: func(context.Context, jobrt.StepInput) (any, error) {
		return 1, nil
	}})
	run := newTestRun(store, def.ID, `{}`)
	past := time.Now().UTC().Add(-time.Hour)
	if _, err := store.ClaimStep(context.Background(), StepClaim{
		RunID: run.ID, StepName: "a", Owner: "crashed-worker", Until: past, Now: past,
	}); err != nil {
		t.Fatalf("pre-claim: %v", err)
	}

	res, err := e.Execute(context.Background(), run, def)
	if err != nil || res.Status != pipeline.RunSucceeded {
		t.Fatalf("want success got status=%s err=%v", res.Status, err)
	}
}

func TestExecuteTerminalRunIsNoop(t *testing.T) {
	store := NewMemoryStore()
	e, _ := newTestEngine(store)
	var calls int32
	def := testDef(jobrt.Step{Name: "a", Run: counting(&calls, func(context.Context, jobrt.StepInput) (any, error) {
		return nil, nil
	})})
	run := newTestRun(store, def.ID, `{}`)
	run.Status = pipeline.RunSucceeded
	run.Output = datatypes.JSON(`{"done":true}`)
	store.PutRun(run)

	res, err := e.Execute(context.Background(), run, def)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if calls != 0 || string(res.Output) != `{"done":true}` {
		t.Fatalf("want stored result without running, got calls=%d output=%s", calls, res.Output)
	}
}

func TestExecuteRejectsForeignRun(t *testing.T) {
	store := NewMemoryStore()
	e, _ := newTestEngine(store)
	def := testDef(jobrt.Step{Name: "a", Run: func(context.Context, jobrt.StepInput) (any, error) { return nil, nil }})
	run := newTestRun(store, "another-pipeline", `{}`)
	if _, err := e.Execute(context.Background(), run, def); err == nil {
		t.Fatalf("expected an error for a run of another pipeline")
	}
}

func TestExecuteNotifiesProgress(t *testing.T) {
	store := NewMemoryStore()
	e, _ := newTestEngine(store)
	rec := &recordingNotifier{}
	e.Notify = rec
	def := testDef(jobrt.Step{Name: "a", Run: func(context.Context, jobrt.StepInput) (any, error) { return nil, nil }})
	run := newTestRun(store, def.ID, `{}`)
	if _, err := e.Execute(context.Background(), run, def); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(rec.updates) == 0 {
		t.Fatalf("expected updates")
	}
	last := rec.updates[len(rec.updates)-1]
	if last.RunStatus != pipeline.RunSucceeded {
		t.Fatalf("last update: want=%s got=%s", pipeline.RunSucceeded, last.RunStatus)
	}
	if _, err := json.Marshal(last); err != nil {
		t.Fatalf("update should marshal: %v", err)
	}
}

type recordingNotifier struct{ updates []Update }

func (r *recordingNotifier) Notify(_ context.Context, u Update) { r.updates = append(r.updates, u) }
