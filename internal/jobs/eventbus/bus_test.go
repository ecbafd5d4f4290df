package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/yungbote/hypermind-backend/internal/data/repos/testutil"
	"github.com/yungbote/hypermind-backend/internal/domain/pipeline"
	"github.com/yungbote/hypermind-backend/internal/jobs/orchestrator"
	"github.com/yungbote/hypermind-backend/internal/jobs/registry"
	jobrt "github.com/yungbote/hypermind-backend/internal/jobs/runtime"
	"github.com/yungbote/hypermind-backend/internal/platform/logger"
)

func testCatalog() *Catalog {
	return NewCatalog().
		Register("document/uploaded", Object("documentId", "fileUrl")).
		Register("quiz/generate-batch", Object("documentId").
			WithProperty("count", openapi3.NewIntegerSchema().WithMin(1).WithMax(50))).
		Register("audit/ping", nil)
}

func testRegistry() *registry.Registry {
	noop := func(context.Context, jobrt.StepInput) (any, error) { return nil, nil }
	mk := func(id string, events ...string) jobrt.Definition {
		return jobrt.Definition{ID: id, Events: events, Concurrency: 1, Steps: []jobrt.Step{{Name: "only", Run: noop}}}
	}
	return registry.New().MustRegister(
		mk("ingest-document", "document/uploaded"),
		mk("extract-knowledge", "document/uploaded"),
		mk("generate-quiz-batch", "quiz/generate-batch"),
	)
}

func TestPublishRejectsUnknownEvent(t *testing.T) {
	bus := NewBus(testCatalog(), testRegistry(), NewMemoryStore(nil), logger.NewNop())
	_, err := bus.Publish(context.Background(), "nope/never", map[string]any{})
	var ve *jobrt.ValidationError
	if !errors.As(err, &ve) || ve.Event != "nope/never" {
		t.Fatalf("want ValidationError got=%v", err)
	}
}

func TestPublishRejectsSchemaMismatch(t *testing.T) {
	store := NewMemoryStore(nil)
	bus := NewBus(testCatalog(), testRegistry(), store, logger.NewNop())
	cases := []any{
		map[string]any{"documentId": "d1"},
		map[string]any{"documentId": 7, "fileUrl": "http://x/f.pdf"},
		"not an object",
		nil,
	}
	for i, payload := range cases {
		if _, err := bus.Publish(context.Background(), "document/uploaded", payload); err == nil {
			t.Fatalf("case %d: expected ValidationError", i)
		}
	}
	if _, err := bus.Publish(context.Background(), "quiz/generate-batch", map[string]any{"documentId": "d", "count": 500}); err == nil {
		t.Fatalf("count above maximum should be rejected")
	}
	if n := len(store.Deliveries()); n != 0 {
		t.Fatalf("rejected events must not be stored, got %d deliveries", n)
	}
}

func TestPublishFansOutToSubscribersAndWakes(t *testing.T) {
	runs := orchestrator.NewMemoryStore()
	store := NewMemoryStore(runs)
	bus := NewBus(testCatalog(), testRegistry(), store, logger.NewNop())

	id, err := bus.Publish(context.Background(), "document/uploaded", map[string]any{"documentId": "d1", "fileUrl": "http://x/f.pdf"})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	select {
	case <-bus.Wakeups():
	default:
		t.Fatalf("expected a wake-up after publish")
	}
	ds := store.Deliveries()
	if len(ds) != 2 || ds[0].PipelineID != "ingest-document" || ds[1].PipelineID != "extract-knowledge" {
		t.Fatalf("deliveries: %+v", ds)
	}
	ev, ok := store.Event(id)
	if !ok {
		t.Fatalf("event %s not stored", id)
	}
	var data map[string]string
	if err := json.Unmarshal(ev.Data, &data); err != nil || data["documentId"] != "d1" {
		t.Fatalf("stored payload: %s err=%v", ev.Data, err)
	}

	run, err := store.AdmitNext(context.Background(), "ingest-document", 0)
	if err != nil || run == nil || run.EventID != id || run.Status != pipeline.RunPending {
		t.Fatalf("AdmitNext: run=%+v err=%v", run, err)
	}
	if _, err := runs.GetRun(context.Background(), run.ID); err != nil {
		t.Fatalf("admitted run should reach the sink: %v", err)
	}
	unfinished, _ := store.Unfinished(context.Background())
	if len(unfinished) != 1 {
		t.Fatalf("unfinished: want=1 got=%d", len(unfinished))
	}
}

func TestPublishStoresEventsWithoutSubscribers(t *testing.T) {
	store := NewMemoryStore(nil)
	bus := NewBus(testCatalog(), testRegistry(), store, logger.NewNop())
	id, err := bus.Publish(context.Background(), "audit/ping", map[string]any{"at": "now"})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if _, ok := store.Event(id); !ok {
		t.Fatalf("event without subscribers should still be stored")
	}
	if len(store.Deliveries()) != 0 {
		t.Fatalf("no deliveries expected")
	}
}

func TestGormStoreQueuesFIFO(t *testing.T) {
	db := testutil.DB(t)
	store := NewGormStore(db, testutil.Logger(t))
	bus := NewBus(testCatalog(), testRegistry(), store, logger.NewNop())
	ctx := context.Background()

	var ids []string
	for _, doc := range []string{"a", "b", "c"} {
		id, err := bus.Publish(ctx, "quiz/generate-batch", map[string]any{"documentId": doc, "count": 5})
		if err != nil {
			t.Fatalf("Publish: %v", err)
		}
		ids = append(ids, id.String())
	}
	for i := range ids {
		run, err := store.AdmitNext(ctx, "generate-quiz-batch", 0)
		if err != nil || run == nil {
			t.Fatalf("AdmitNext #%d: run=%v err=%v", i, run, err)
		}
		if run.EventID.String() != ids[i] {
			t.Fatalf("FIFO #%d: want=%s got=%s", i, ids[i], run.EventID)
		}
		if err := store.MarkDone(ctx, run.ID); err != nil {
			t.Fatalf("MarkDone: %v", err)
		}
	}
	unfinished, err := store.Unfinished(ctx)
	if err != nil || len(unfinished) != 3 {
		t.Fatalf("Unfinished: want=3 pending runs got=%d err=%v", len(unfinished), err)
	}
}
