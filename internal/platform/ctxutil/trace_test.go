package ctxutil

import (
	"context"
	"reflect"
	"testing"
)

func TestLogFieldsSkipsEmpty(t *testing.T) {
	if got := LogFields(context.Background()); got != nil {
		t.Fatalf("bare context: want=nil got=%v", got)
	}
	ctx := WithTraceData(context.Background(), &TraceData{RunID: "r1", Step: "extract-topics", Attempt: 2})
	want := []interface{}{"run_id", "r1", "step", "extract-topics", "attempt", 2}
	if got := LogFields(ctx); !reflect.DeepEqual(got, want) {
		t.Fatalf("fields: want=%v got=%v", want, got)
	}
}
