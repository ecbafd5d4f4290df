package registry

import (
	"sync"

	"github.com/yungbote/hypermind-backend/internal/platform/logger"
)

// Gate counts running runs per pipeline against each pipeline's concurrency
// limit. A limit of 0 is unlimited.
type Gate struct {
	mu      sync.Mutex
	limits  map[string]int
	running map[string]int
	log     *logger.Logger
}

func NewGate(reg *Registry, log *logger.Logger) *Gate {
	g := &Gate{
		limits:  map[string]int{},
		running: map[string]int{},
		log:     log.With("component", "ConcurrencyGate"),
	}
	if reg != nil {
		for _, d := range reg.Definitions() {
			g.limits[d.ID] = d.Concurrency
		}
	}
	return g
}

// TryAcquire takes a slot for pipelineID if one is free.
func (g *Gate) TryAcquire(pipelineID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	limit := g.limits[pipelineID]
	if limit > 0 && g.running[pipelineID] >= limit {
		return false
	}
	g.running[pipelineID]++
	return true
}

func (g *Gate) Release(pipelineID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running[pipelineID] <= 0 {
		g.log.Error("release on idle gate", "pipeline_id", pipelineID)
		return
	}
	g.running[pipelineID]--
}

func (g *Gate) Running(pipelineID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.running[pipelineID]
}

func (g *Gate) Limit(pipelineID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.limits[pipelineID]
}
