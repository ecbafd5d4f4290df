package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/hypermind-backend/internal/data/repos/testutil"
	"github.com/yungbote/hypermind-backend/internal/domain/pipeline"
	jobrt "github.com/yungbote/hypermind-backend/internal/jobs/runtime"
)

func TestEngineOverGormStoreResumesAfterCrash(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	store := NewGormStore(db, testutil.Logger(t))

	now := time.Now().UTC()
	run := &pipeline.PipelineRun{
		ID:         uuid.New(),
		PipelineID: "test-pipeline",
		EventID:    uuid.New(),
		EventName:  "test/event",
		EventData:  datatypes.JSON([]byte(`{"documentId":"doc-1"}`)),
		Status:     pipeline.RunPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := db.Create(run).Error; err != nil {
		t.Fatalf("create run: %v", err)
	}

	var firstCalls, secondCalls int
	crash := true
	def := testDef(
		jobrt.Step{Name: "first", Run: func(_ context.Context, in jobrt.StepInput) (any, error) {
			firstCalls++
			return map[string]string{"doc": in.Event.String("documentId")}, nil
		}},
		jobrt.Step{Name: "second", Retry: jobrt.Retries(2), Run: func(_ context.Context, in jobrt.StepInput) (any, error) {
			secondCalls++
			if crash {
				return nil, jobrt.Permanentf("simulated crash")
			}
			var prev struct{ Doc string }
			if err := in.Prior.Decode("first", &prev); err != nil {
				return nil, err
			}
			return prev.Doc + "!", nil
		}},
	)

	e1 := NewEngine(store, store, testutil.Logger(t))
	e1.Sleep = func(context.Context, time.Duration) error { return nil }
	res, err := e1.Execute(ctx, run, def)
	if err != nil || res.Status != pipeline.RunFailed {
		t.Fatalf("first execute: status=%s err=%v", res.Status, err)
	}
	stored, err := store.GetRun(ctx, run.ID)
	if err != nil || stored.Status != pipeline.RunFailed || stored.ErrorKind != string(jobrt.KindPermanent) {
		t.Fatalf("stored run: %+v err=%v", stored, err)
	}
	steps, _ := store.ListSteps(ctx, run.ID)
	if len(steps) != 2 || !steps[0].Succeeded() || steps[1].Status != pipeline.StepFailed {
		t.Fatalf("step records: %+v", steps)
	}

	// Same run re-opened: a fresh engine must not repeat "first".
	if err := db.Model(&pipeline.PipelineRun{}).Where("id = ?", run.ID).Update("status", pipeline.RunRunning).Error; err != nil {
		t.Fatalf("reopen run: %v", err)
	}
	if err := db.Where("run_id = ? AND step_name = ?", run.ID, "second").Delete(&pipeline.StepRecord{}).Error; err != nil {
		t.Fatalf("drop failed step: %v", err)
	}
	crash = false
	reopened, _ := store.GetRun(ctx, run.ID)
	e2 := NewEngine(store, store, testutil.Logger(t))
	res, err = e2.Execute(ctx, reopened, def)
	if err != nil || res.Status != pipeline.RunSucceeded {
		t.Fatalf("second execute: status=%s err=%v", res.Status, err)
	}
	if firstCalls != 1 || secondCalls != 2 {
		t.Fatalf("calls: want first=1 second=2 got first=%d second=%d", firstCalls, secondCalls)
	}
	if string(res.Output) != `"doc-1!"` {
		t.Fatalf("output: want=%s got=%s", `"doc-1!"`, res.Output)
	}
}

func TestGormStoreReportsHeldSteps(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	store := NewGormStore(db, testutil.Logger(t))
	now := time.Now().UTC()
	claim := StepClaim{RunID: uuid.New(), StepName: "a", Owner: "w1", Until: now.Add(time.Minute), Now: now}
	if _, err := store.ClaimStep(ctx, claim); err != nil {
		t.Fatalf("claim: %v", err)
	}
	claim.Owner = "w2"
	if _, err := store.ClaimStep(ctx, claim); err != ErrStepHeld {
		t.Fatalf("want ErrStepHeld got=%v", err)
	}
	if _, err := store.GetRun(ctx, uuid.New()); err != ErrRunNotFound {
		t.Fatalf("want ErrRunNotFound got=%v", err)
	}
}

func TestGormStoreStaleOwnerCannotOverwriteOutcome(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	store := NewGormStore(db, testutil.Logger(t))
	runID := uuid.New()
	past := time.Now().UTC().Add(-time.Hour)
	now := time.Now().UTC()

	for _, step := range []string{"fails", "succeeds"} {
		stale, err := store.ClaimStep(ctx, StepClaim{RunID: runID, StepName: step, Owner: "A", Until: past, Now: past})
		if err != nil {
			t.Fatalf("claim %s by A: %v", step, err)
		}
		fresh, err := store.ClaimStep(ctx, StepClaim{RunID: runID, StepName: step, Owner: "B", Until: now.Add(time.Minute), Now: now})
		if err != nil || fresh.Owner != "B" {
			t.Fatalf("takeover of %s by B: rec=%+v err=%v", step, fresh, err)
		}

		if step == "fails" {
			fresh.Status = pipeline.StepFailed
			fresh.ErrorKind = string(jobrt.KindPermanent)
			fresh.ErrorMessage = "boom"
			fresh.FinishedAt = &now
			if err := store.FailStep(ctx, fresh); err != nil {
				t.Fatalf("FailStep B: %v", err)
			}
			stale.Output = datatypes.JSON([]byte(`"late"`))
			stale.FinishedAt = &now
			won, err := store.CompleteStep(ctx, stale)
			if err != nil || won {
				t.Fatalf("stale CompleteStep: want lost got won=%v err=%v", won, err)
			}
		} else {
			stale.ErrorKind = string(jobrt.KindPermanent)
			stale.ErrorMessage = "late failure"
			if err := store.FailStep(ctx, stale); err != nil {
				t.Fatalf("stale FailStep: %v", err)
			}
			fresh.Output = datatypes.JSON([]byte(`"ok"`))
			fresh.FinishedAt = &now
			won, err := store.CompleteStep(ctx, fresh)
			if err != nil || !won {
				t.Fatalf("owner CompleteStep: won=%v err=%v", won, err)
			}
		}
	}

	failed, _ := store.GetStep(ctx, runID, "fails")
	if failed.Status != pipeline.StepFailed || failed.ErrorMessage != "boom" {
		t.Fatalf("failed step: want status=%s got=%+v", pipeline.StepFailed, failed)
	}
	done, _ := store.GetStep(ctx, runID, "succeeds")
	if done.Status != pipeline.StepSucceeded || string(done.Output) != `"ok"` {
		t.Fatalf("succeeded step: want status=%s got=%+v", pipeline.StepSucceeded, done)
	}
}
