package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	jobrt "github.com/yungbote/hypermind-backend/internal/jobs/runtime"
	"github.com/yungbote/hypermind-backend/internal/platform/logger"
)

func def(id string, concurrency int, events ...string) jobrt.Definition {
	noop := func(context.Context, jobrt.StepInput) (any, error) { return nil, nil }
	return jobrt.Definition{
		ID:          id,
		Events:      events,
		Concurrency: concurrency,
		Steps: []jobrt.Step{
			{Name: "first", Retry: jobrt.Retries(2), Run: noop},
			{Name: "second", Run: noop},
		},
	}
}

func TestRegisterRejectsDuplicateIDs(t *testing.T) {
	r := New()
	if err := r.Register(def("ingest-document", 4, "document/uploaded")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	err := r.Register(def("ingest-document", 1, "other/event"))
	var dup *jobrt.DuplicatePipelineIDError
	if !errors.As(err, &dup) || dup.ID != "ingest-document" {
		t.Fatalf("want DuplicatePipelineIDError got=%v", err)
	}
	if got := r.Resolve("other/event"); len(got) != 0 {
		t.Fatalf("rejected definition must not subscribe, got %d", len(got))
	}
}

func TestRegisterValidates(t *testing.T) {
	r := New()
	bad := def("broken", 1, "x/y")
	bad.Steps = nil
	if err := r.Register(bad); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestResolveKeepsRegistrationOrder(t *testing.T) {
	r := New()
	r.MustRegister(
		def("ingest-document", 4, "document/uploaded"),
		def("audit", 0, "document/uploaded", "quiz/generate-batch"),
		def("generate-quiz-batch", 4, "quiz/generate-batch"),
	)
	got := r.Resolve("document/uploaded")
	if len(got) != 2 || got[0].ID != "ingest-document" || got[1].ID != "audit" {
		t.Fatalf("resolve: %v", ids(got))
	}
	got = r.Resolve("quiz/generate-batch")
	if len(got) != 2 || got[0].ID != "audit" || got[1].ID != "generate-quiz-batch" {
		t.Fatalf("resolve: %v", ids(got))
	}
	if got := r.Resolve("unknown/event"); len(got) != 0 {
		t.Fatalf("unknown event: want none got %v", ids(got))
	}
	if n := len(r.Definitions()); n != 3 {
		t.Fatalf("definitions: want=3 got=%d", n)
	}
	if evs := r.Events(); len(evs) != 2 {
		t.Fatalf("events: want=2 got=%v", evs)
	}
}

func ids(defs []jobrt.Definition) []string {
	out := make([]string, 0, len(defs))
	for _, d := range defs {
		out = append(out, d.ID)
	}
	return out
}

func TestGateCapsConcurrency(t *testing.T) {
	r := New().MustRegister(def("generate-video", 1, "video/generate"), def("free", 0, "x/y"))
	g := NewGate(r, logger.NewNop())

	if !g.TryAcquire("generate-video") {
		t.Fatalf("first acquire should succeed")
	}
	if g.TryAcquire("generate-video") {
		t.Fatalf("second acquire should be refused at limit 1")
	}
	g.Release("generate-video")
	if !g.TryAcquire("generate-video") {
		t.Fatalf("acquire after release should succeed")
	}
	for i := 0; i < 50; i++ {
		if !g.TryAcquire("free") {
			t.Fatalf("unlimited pipeline refused at %d", i)
		}
	}
	if g.Running("free") != 50 {
		t.Fatalf("running: want=50 got=%d", g.Running("free"))
	}
}

func TestGateReleaseOnIdleIsNoop(t *testing.T) {
	g := NewGate(New().MustRegister(def("p", 2, "e/v")), logger.NewNop())
	g.Release("p")
	if g.Running("p") != 0 {
		t.Fatalf("running: want=0 got=%d", g.Running("p"))
	}
	if !g.TryAcquire("p") || !g.TryAcquire("p") || g.TryAcquire("p") {
		t.Fatalf("idle release must not create extra capacity")
	}
}

func TestGateConcurrentAcquireNeverExceedsLimit(t *testing.T) {
	g := NewGate(New().MustRegister(def("p", 3, "e/v")), logger.NewNop())
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		inFlight int
		peak     int
	)
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for !g.TryAcquire("p") {
				time.Sleep(time.Millisecond)
			}
			mu.Lock()
			inFlight++
			if inFlight > peak {
				peak = inFlight
			}
			mu.Unlock()
			time.Sleep(2 * time.Millisecond)
			mu.Lock()
			inFlight--
			mu.Unlock()
			g.Release("p")
		}()
	}
	wg.Wait()
	if peak > 3 {
		t.Fatalf("peak concurrency: want<=3 got=%d", peak)
	}
}

func TestOverridesApply(t *testing.T) {
	o, err := ParseOverrides([]byte(`
pipelines:
  ingest-document:
    concurrency: 8
    steps:
      first: {retries: 5, timeout_seconds: 90}
`))
	if err != nil {
		t.Fatalf("ParseOverrides: %v", err)
	}
	r := New()
	if err := r.RegisterAll(o, def("ingest-document", 4, "document/uploaded"), def("other", 1, "x/y")); err != nil {
		t.Fatalf("RegisterAll: %v", err)
	}
	got, _ := r.Get("ingest-document")
	if got.Concurrency != 8 {
		t.Fatalf("concurrency: want=8 got=%d", got.Concurrency)
	}
	if got.Steps[0].Retry.Attempts() != 6 || got.Steps[0].Timeout != 90*time.Second {
		t.Fatalf("step override: attempts=%d timeout=%s", got.Steps[0].Retry.Attempts(), got.Steps[0].Timeout)
	}
	if got.Steps[1].Retry.Attempts() != 1 {
		t.Fatalf("untouched step changed: attempts=%d", got.Steps[1].Retry.Attempts())
	}
	other, _ := r.Get("other")
	if other.Concurrency != 1 {
		t.Fatalf("other pipeline changed: %d", other.Concurrency)
	}
}

func TestOverridesRejectUnknownStep(t *testing.T) {
	o, err := ParseOverrides([]byte("pipelines:\n  p:\n    steps:\n      typo: {retries: 1}\n"))
	if err != nil {
		t.Fatalf("ParseOverrides: %v", err)
	}
	if _, err := o.Apply(def("p", 1, "e/v")); err == nil {
		t.Fatalf("expected error for unknown step")
	}
}
