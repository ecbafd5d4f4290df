package services

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/hypermind-backend/internal/data/repos/pipelines"
	"github.com/yungbote/hypermind-backend/internal/data/repos/testutil"
	"github.com/yungbote/hypermind-backend/internal/domain/pipeline"
	"github.com/yungbote/hypermind-backend/internal/jobs/registry"
	jobrt "github.com/yungbote/hypermind-backend/internal/jobs/runtime"
	"github.com/yungbote/hypermind-backend/internal/platform/apierr"
	"github.com/yungbote/hypermind-backend/internal/platform/dbctx"
)

type publisherFunc func(ctx context.Context, name string, payload any) (uuid.UUID, error)

func (f publisherFunc) Publish(ctx context.Context, name string, payload any) (uuid.UUID, error) {
	return f(ctx, name, payload)
}

func testRegistry() *registry.Registry {
	noop := func(context.Context, jobrt.StepInput) (any, error) { return nil, nil }
	return registry.New().MustRegister(jobrt.Definition{
		ID:          "predict-exam",
		Events:      []string{"exam/predict"},
		Concurrency: 2,
		Steps: []jobrt.Step{
			{Name: "extract-topics", Retry: jobrt.Retries(2), Run: noop},
			{Name: "run-simulation", Retry: jobrt.NoRetry(), Run: noop},
		},
	})
}

func status(err error) int {
	var ae *apierr.Error
	if errors.As(err, &ae) {
		return ae.Status
	}
	return 0
}

func TestPublishMapsValidationTo400(t *testing.T) {
	bus := publisherFunc(func(context.Context, string, any) (uuid.UUID, error) {
		return uuid.Nil, &jobrt.ValidationError{Event: "exam/predict", Reason: "missing documentId"}
	})
	svc := NewRunService(testutil.DB(t), testutil.Logger(t), bus, testRegistry(), nil)
	_, err := svc.Publish(dbctx.Context{Ctx: context.Background()}, "exam/predict", map[string]any{})
	if status(err) != http.StatusBadRequest {
		t.Fatalf("status: want=400 got=%d err=%v", status(err), err)
	}
}

func TestGetRunAndEventRuns(t *testing.T) {
	ctx := context.Background()
	db := testutil.DB(t)
	ev := testutil.SeedEvent(t, ctx, db, "exam/predict", `{"documentId":"d1"}`)
	run := testutil.SeedRun(t, ctx, db, ev, "predict-exam", pipeline.RunSucceeded)
	svc := NewRunService(db, testutil.Logger(t), nil, testRegistry(), nil)
	dbc := dbctx.Context{Ctx: ctx}

	got, err := svc.GetRun(dbc, run.ID)
	if err != nil || got.ID != run.ID || got.Status != pipeline.RunSucceeded {
		t.Fatalf("GetRun: %+v err=%v", got, err)
	}
	if _, err := svc.GetRun(dbc, uuid.New()); status(err) != http.StatusNotFound {
		t.Fatalf("missing run: want=404 got=%d", status(err))
	}
	steps, err := svc.ListSteps(dbc, run.ID)
	if err != nil || len(steps) != 0 {
		t.Fatalf("ListSteps: %v err=%v", steps, err)
	}

	er, err := svc.EventRuns(dbc, ev.ID)
	if err != nil || er.Event.Name != "exam/predict" || len(er.Runs) != 1 {
		t.Fatalf("EventRuns: %+v err=%v", er, err)
	}
	if _, err := svc.EventRuns(dbc, uuid.New()); status(err) != http.StatusNotFound {
		t.Fatalf("missing event: want=404 got=%d", status(err))
	}
}

func TestListRunsRejectsUnknownPipeline(t *testing.T) {
	svc := NewRunService(testutil.DB(t), testutil.Logger(t), nil, testRegistry(), nil)
	_, err := svc.ListRuns(dbctx.Context{Ctx: context.Background()}, pipelines.RunFilter{PipelineID: "nope"})
	if status(err) != http.StatusBadRequest {
		t.Fatalf("status: want=400 got=%d", status(err))
	}
}

func TestPipelinesDescribesSteps(t *testing.T) {
	reg := testRegistry()
	gate := registry.NewGate(reg, testutil.Logger(t))
	if !gate.TryAcquire("predict-exam") {
		t.Fatalf("TryAcquire failed")
	}
	svc := NewRunService(testutil.DB(t), testutil.Logger(t), nil, reg, gate)
	infos := svc.Pipelines()
	if len(infos) != 1 || infos[0].Running != 1 || infos[0].Concurrency != 2 {
		t.Fatalf("pipelines: %+v", infos)
	}
	if infos[0].Steps[0].MaxAttempts != 3 || infos[0].Steps[1].MaxAttempts != 1 {
		t.Fatalf("steps: %+v", infos[0].Steps)
	}
}
