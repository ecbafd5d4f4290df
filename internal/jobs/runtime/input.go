package runtime

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// StepInput is everything a step may read: the triggering event payload and
// the outputs of the steps that succeeded before it.
type StepInput struct {
	RunID uuid.UUID
	Event EventData
	Prior Outputs
}

// EventData is the decoded payload of the triggering event.
type EventData struct {
	Name string
	raw  json.RawMessage
	m    map[string]any
}

func NewEventData(name string, raw []byte) (EventData, error) {
	ed := EventData{Name: name, raw: append(json.RawMessage(nil), raw...)}
	if len(raw) == 0 {
		ed.raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(ed.raw, &ed.m); err != nil {
		return EventData{}, fmt.Errorf("decode event %s payload: %w", name, err)
	}
	if ed.m == nil {
		ed.m = map[string]any{}
	}
	return ed, nil
}

func (e EventData) Raw() json.RawMessage { return e.raw }

func (e EventData) Decode(v any) error {
	if err := json.Unmarshal(e.raw, v); err != nil {
		return Permanentf("decode %s payload: %v", e.Name, err)
	}
	return nil
}

func (e EventData) Has(key string) bool {
	_, ok := e.m[key]
	return ok
}

func (e EventData) String(key string) string {
	v, ok := e.m[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

// Require returns the string at key or a permanent error when it is blank.
func (e EventData) Require(key string) (string, error) {
	s := e.String(key)
	if s == "" {
		return "", Permanentf("%s payload missing %q", e.Name, key)
	}
	return s, nil
}

func (e EventData) Int(key string, def int) int {
	v, ok := e.m[key]
	if !ok || v == nil {
		return def
	}
	switch t := v.(type) {
	case float64:
		return int(t)
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
			return i
		}
	}
	return def
}

// Outputs is the ordered, read-only view of prior step outputs. Values are
// the stored JSON, identical whether the step ran in this process or was
// replayed from a previous one.
type Outputs struct {
	names  []string
	values map[string]json.RawMessage
}

func NewOutputs() Outputs {
	return Outputs{values: map[string]json.RawMessage{}}
}

// With returns a copy extended by one step output.
func (o Outputs) With(name string, raw json.RawMessage) Outputs {
	next := Outputs{
		names:  append(append([]string(nil), o.names...), name),
		values: make(map[string]json.RawMessage, len(o.values)+1),
	}
	for k, v := range o.values {
		next.values[k] = v
	}
	next.values[name] = raw
	return next
}

func (o Outputs) Names() []string { return append([]string(nil), o.names...) }

func (o Outputs) Len() int { return len(o.names) }

func (o Outputs) Has(name string) bool {
	_, ok := o.values[name]
	return ok
}

func (o Outputs) Raw(name string) (json.RawMessage, bool) {
	v, ok := o.values[name]
	return v, ok
}

// Decode unmarshals the output of step name into v. A missing step is a
// permanent error: it can only mean the pipeline reads a step that has not
// run before it.
func (o Outputs) Decode(name string, v any) error {
	raw, ok := o.values[name]
	if !ok {
		return Permanentf("no output recorded for step %q", name)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return Permanentf("decode output of step %q: %v", name, err)
	}
	return nil
}
