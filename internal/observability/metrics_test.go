package observability

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	m.ObserveRun("p", "succeeded", time.Second)
	m.ObserveStepAttempt("p", "s", "ok", time.Second)
	m.SetActiveRuns("p", 1)
	if err := m.WritePrometheus(&bytes.Buffer{}); err != nil {
		t.Fatalf("nil WritePrometheus: %v", err)
	}
}

func TestMetricsExposition(t *testing.T) {
	m := newMetrics()
	m.ObserveRun("ingest-document", "succeeded", 2*time.Second)
	m.ObserveStepAttempt("ingest-document", "extract-text", "transient", 100*time.Millisecond)
	m.ObserveStepAttempt("ingest-document", "extract-text", "ok", 100*time.Millisecond)
	m.SetActiveRuns("ingest-document", 3)

	if got := m.stepAttempts.Value("ingest-document", "extract-text", "ok"); got != 1 {
		t.Fatalf("step attempts ok: want=1 got=%v", got)
	}
	var buf bytes.Buffer
	if err := m.WritePrometheus(&buf); err != nil {
		t.Fatalf("WritePrometheus: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		`hypermind_pipeline_runs_total{pipeline="ingest-document",status="succeeded"} 1`,
		`hypermind_pipeline_runs_active{pipeline="ingest-document"} 3`,
		`hypermind_pipeline_run_seconds_bucket{pipeline="ingest-document",status="succeeded",le="+Inf"} 1`,
		"# TYPE hypermind_step_attempts_total counter",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("exposition missing %q\n%s", want, out)
		}
	}
}

func TestLabelEscaping(t *testing.T) {
	got := labelString([]string{"a"}, []string{"x\"y"})
	if got != `{a="x\"y"}` {
		t.Fatalf("escape: got=%s", got)
	}
	if got := withLe("", "1"); got != `{le="1"}` {
		t.Fatalf("withLe empty: got=%s", got)
	}
}
