package registry

import (
	"fmt"
	"sync"

	jobrt "github.com/yungbote/hypermind-backend/internal/jobs/runtime"
)

// Registry maps pipeline ids to definitions and event names to subscribers.
// Registration order is preserved for Resolve and Definitions.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	defs    map[string]jobrt.Definition
	byEvent map[string][]string
}

func New() *Registry {
	return &Registry{
		defs:    make(map[string]jobrt.Definition),
		byEvent: make(map[string][]string),
	}
}

func (r *Registry) Register(def jobrt.Definition) error {
	if err := def.Validate(); err != nil {
		return fmt.Errorf("register pipeline: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.defs[def.ID]; exists {
		return &jobrt.DuplicatePipelineIDError{ID: def.ID}
	}
	r.defs[def.ID] = def
	r.order = append(r.order, def.ID)
	seen := make(map[string]bool, len(def.Events))
	for _, ev := range def.Events {
		if seen[ev] {
			continue
		}
		seen[ev] = true
		r.byEvent[ev] = append(r.byEvent[ev], def.ID)
	}
	return nil
}

// MustRegister panics on error; it is meant for static catalogs.
func (r *Registry) MustRegister(defs ...jobrt.Definition) *Registry {
	for _, d := range defs {
		if err := r.Register(d); err != nil {
			panic(err)
		}
	}
	return r
}

// Resolve returns the pipelines subscribed to event, in registration order.
// An unknown event resolves to nothing.
func (r *Registry) Resolve(event string) []jobrt.Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := r.byEvent[event]
	out := make([]jobrt.Definition, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.defs[id])
	}
	return out
}

func (r *Registry) Get(id string) (jobrt.Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.defs[id]
	return d, ok
}

func (r *Registry) Definitions() []jobrt.Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]jobrt.Definition, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.defs[id])
	}
	return out
}

// Events lists every event name with at least one subscriber.
func (r *Registry) Events() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byEvent))
	for _, id := range r.order {
		for _, ev := range r.defs[id].Events {
			if !contains(out, ev) {
				out = append(out, ev)
			}
		}
	}
	return out
}

func contains(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}
