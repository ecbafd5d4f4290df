package ctxutil

import "context"

type traceDataKey struct{}

// TraceData correlates log lines across an HTTP request or a step attempt.
type TraceData struct {
	TraceID   string
	RequestID string
	RunID     string
	Step      string
	Attempt   int
}

func WithTraceData(ctx context.Context, td *TraceData) context.Context {
	return context.WithValue(ctx, traceDataKey{}, td)
}

func GetTraceData(ctx context.Context) *TraceData {
	if ctx == nil {
		return nil
	}
	if td, ok := ctx.Value(traceDataKey{}).(*TraceData); ok {
		return td
	}
	return nil
}

// LogFields returns the non-empty trace fields of ctx as logger key/value
// pairs.
func LogFields(ctx context.Context) []interface{} {
	td := GetTraceData(ctx)
	if td == nil {
		return nil
	}
	var out []interface{}
	add := func(k, v string) {
		if v != "" {
			out = append(out, k, v)
		}
	}
	add("trace_id", td.TraceID)
	add("request_id", td.RequestID)
	add("run_id", td.RunID)
	add("step", td.Step)
	if td.Attempt > 0 {
		out = append(out, "attempt", td.Attempt)
	}
	return out
}
