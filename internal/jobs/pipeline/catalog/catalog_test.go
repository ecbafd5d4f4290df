package catalog

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/yungbote/hypermind-backend/internal/domain/pipeline"
	domain "github.com/yungbote/hypermind-backend/internal/domain/study"
	"github.com/yungbote/hypermind-backend/internal/jobs/adapters"
	"github.com/yungbote/hypermind-backend/internal/jobs/eventbus"
	"github.com/yungbote/hypermind-backend/internal/jobs/orchestrator"
	"github.com/yungbote/hypermind-backend/internal/jobs/pipeline/ingest_document"
	"github.com/yungbote/hypermind-backend/internal/jobs/pipeline/pipelinetest"
	"github.com/yungbote/hypermind-backend/internal/jobs/registry"
	"github.com/yungbote/hypermind-backend/internal/jobs/worker"
	"github.com/yungbote/hypermind-backend/internal/platform/logger"
)

func TestEveryPipelineEventHasASchema(t *testing.T) {
	reg, err := Registry(adapters.Set{}, nil, logger.NewNop())
	if err != nil {
		t.Fatalf("Registry: %v", err)
	}
	if n := len(reg.Definitions()); n != 11 {
		t.Fatalf("definitions: want=11 got=%d", n)
	}
	cat := Events()
	for _, ev := range reg.Events() {
		if !cat.Has(ev) {
			t.Fatalf("event %s has no schema", ev)
		}
	}
}

func TestEventSchemasRejectBadPayloads(t *testing.T) {
	cat := Events()
	cases := []struct {
		event   string
		payload map[string]any
		ok      bool
	}{
		{"document/uploaded", map[string]any{"documentId": "d1", "fileUrl": "http://x/f.pdf"}, true},
		{"document/uploaded", map[string]any{"documentId": "d1"}, false},
		{"video/generate", map[string]any{"documentId": "d1", "content": "c", "style": "grunge"}, false},
		{"lexmind/run", map[string]any{"input": "x", "mode": "cite"}, true},
		{"lexmind/run", map[string]any{"input": "x", "mode": "sue"}, false},
		{"medisim/run", map[string]any{"action": "hi", "history": []any{map[string]any{"role": "user", "content": "hello"}}}, true},
		{"quiz/generate-batch", map[string]any{"documentId": "d1", "count": 0}, false},
		{"handwriting/grade", map[string]any{"imageUrl": "http://x/a.png"}, true},
	}
	for i, c := range cases {
		_, err := cat.Validate(c.event, c.payload)
		if (err == nil) != c.ok {
			t.Fatalf("case %d (%s): want ok=%v got err=%v", i, c.event, c.ok, err)
		}
	}
}

func TestUploadedDocumentRunsIngestEndToEnd(t *testing.T) {
	log := logger.NewNop()
	db := pipelinetest.NewDB()
	_, _ = db.Insert(context.Background(), domain.TableDocuments, []adapters.Row{{"id": "d1", "status": domain.DocumentProcessing}})
	deps := adapters.Set{
		LLM: &pipelinetest.LLM{Reply: func(_ []adapters.Message, hint adapters.ModelHint) (string, error) {
			if hint == adapters.HintSpeed {
				return `{"nodes":[{"id":"1","label":"Osmosis"}],"edges":[]}`, nil
			}
			return "Water moves across membranes.", nil
		}},
		DB:        db,
		Fetch:     pipelinetest.Fetcher{"http://x/f.pdf": {Data: []byte("Osmosis moves water."), ContentType: "application/pdf"}},
		Extractor: pipelinetest.Extractor{},
	}
	reg, err := Registry(deps, nil, log)
	if err != nil {
		t.Fatalf("Registry: %v", err)
	}
	runs := orchestrator.NewMemoryStore()
	events := eventbus.NewMemoryStore(runs)
	bus := eventbus.NewBus(Events(), reg, events, log)
	engine := orchestrator.NewEngine(runs, runs, log)
	engine.Sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	disp := worker.NewDispatcher(reg, registry.NewGate(reg, log), events, engine, log)
	disp.Tick = 10 * time.Millisecond
	disp.WakeOn(bus.Wakeups())
	if err := disp.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer disp.Stop()

	if _, err := bus.Publish(context.Background(), ingest_document.Event, map[string]any{"documentId": "d1", "fileUrl": "http://x/f.pdf"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	var done *pipeline.PipelineRun
	deadline := time.Now().Add(5 * time.Second)
	for done == nil && time.Now().Before(deadline) {
		for _, r := range runs.Runs() {
			if r.Terminal() {
				done = r
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	if done == nil {
		t.Fatalf("run never finished")
	}
	if done.PipelineID != ingest_document.PipelineID || done.Status != pipeline.RunSucceeded {
		t.Fatalf("run: id=%s status=%s err=%s", done.PipelineID, done.Status, done.Error)
	}
	var out ingest_document.Result
	if err := json.Unmarshal(done.Output, &out); err != nil {
		t.Fatalf("output: %v", err)
	}
	if out.DocumentID != "d1" || out.NodesExtracted != 1 {
		t.Fatalf("output: %+v", out)
	}
	if len(runs.Runs()) != 1 {
		t.Fatalf("runs: want=1 got=%d", len(runs.Runs()))
	}
}
