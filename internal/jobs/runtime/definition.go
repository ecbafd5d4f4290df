package runtime

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// StepFunc does the work of one step. It must be safe to call again after a
// failed attempt; the executor does not undo partial side effects. It must
// return soon after ctx is done: a timed-out attempt gets a short grace
// period to unwind before the retry starts, after which it is abandoned.
type StepFunc func(ctx context.Context, in StepInput) (any, error)

type Step struct {
	Name    string
	Retry   RetryPolicy
	Timeout time.Duration // 0 = bounded only by the adapters' own timeouts
	Run     StepFunc
}

// Definition is a named, linear pipeline subscribed to one or more event
// names. Concurrency caps simultaneously running runs; 0 means unlimited.
type Definition struct {
	ID          string
	Events      []string
	Concurrency int
	Steps       []Step
}

func (d Definition) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return fmt.Errorf("pipeline id is empty")
	}
	if len(d.Events) == 0 {
		return fmt.Errorf("pipeline %s subscribes to no events", d.ID)
	}
	for _, ev := range d.Events {
		if strings.TrimSpace(ev) == "" {
			return fmt.Errorf("pipeline %s has an empty event name", d.ID)
		}
	}
	if d.Concurrency < 0 {
		return fmt.Errorf("pipeline %s has negative concurrency", d.ID)
	}
	if len(d.Steps) == 0 {
		return fmt.Errorf("pipeline %s has no steps", d.ID)
	}
	seen := make(map[string]bool, len(d.Steps))
	for i, st := range d.Steps {
		if strings.TrimSpace(st.Name) == "" {
			return fmt.Errorf("pipeline %s step[%d] has empty name", d.ID, i)
		}
		if seen[st.Name] {
			return fmt.Errorf("pipeline %s has duplicate step name: %s", d.ID, st.Name)
		}
		seen[st.Name] = true
		if st.Run == nil {
			return fmt.Errorf("pipeline %s step %s has nil Run", d.ID, st.Name)
		}
	}
	return nil
}

// StepIndex returns the declared position of name, or -1.
func (d Definition) StepIndex(name string) int {
	for i, st := range d.Steps {
		if st.Name == name {
			return i
		}
	}
	return -1
}

func (d Definition) Subscribes(event string) bool {
	for _, ev := range d.Events {
		if ev == event {
			return true
		}
	}
	return false
}

func (d Definition) StepNames() []string {
	out := make([]string, len(d.Steps))
	for i, st := range d.Steps {
		out[i] = st.Name
	}
	return out
}
