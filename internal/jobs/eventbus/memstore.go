package eventbus

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/hypermind-backend/internal/domain/pipeline"
)

// RunSink receives runs created on admission.
type RunSink interface {
	PutRun(run *pipeline.PipelineRun)
	Runs() []*pipeline.PipelineRun
}

// MemoryStore is an in-process EventStore and Queue. Admitted runs are
// written to the sink so an in-memory executor store can pick them up.
type MemoryStore struct {
	mu         sync.Mutex
	seq        int64
	events     map[uuid.UUID]*pipeline.Event
	deliveries []*pipeline.Delivery
	sink       RunSink
}

func NewMemoryStore(sink RunSink) *MemoryStore {
	return &MemoryStore{events: map[uuid.UUID]*pipeline.Event{}, sink: sink}
}

func (m *MemoryStore) Append(_ context.Context, ev *pipeline.Event, pipelineIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *ev
	m.events[ev.ID] = &cp
	for _, id := range pipelineIDs {
		m.seq++
		m.deliveries = append(m.deliveries, &pipeline.Delivery{
			ID:         m.seq,
			EventID:    ev.ID,
			PipelineID: id,
			Status:     pipeline.DeliveryQueued,
			CreatedAt:  ev.EnqueuedAt,
			UpdatedAt:  ev.EnqueuedAt,
		})
	}
	return nil
}

func (m *MemoryStore) AdmitNext(_ context.Context, pipelineID string, limit int) (*pipeline.PipelineRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit > 0 && m.activeLocked(pipelineID) >= limit {
		return nil, nil
	}
	for _, d := range m.deliveries {
		if d.PipelineID != pipelineID || d.Status != pipeline.DeliveryQueued {
			continue
		}
		ev := m.events[d.EventID]
		run := newRun(ev, pipelineID)
		run.CreatedAt = time.Now().UTC()
		run.UpdatedAt = run.CreatedAt
		d.Status = pipeline.DeliveryAdmitted
		d.RunID = &run.ID
		d.UpdatedAt = run.CreatedAt
		if m.sink != nil {
			m.sink.PutRun(run)
		}
		return run, nil
	}
	return nil, nil
}

func (m *MemoryStore) activeLocked(pipelineID string) int {
	if m.sink == nil {
		n := 0
		for _, d := range m.deliveries {
			if d.PipelineID == pipelineID && d.Status == pipeline.DeliveryAdmitted {
				n++
			}
		}
		return n
	}
	n := 0
	for _, r := range m.sink.Runs() {
		if r.PipelineID == pipelineID && !r.Terminal() {
			n++
		}
	}
	return n
}

func (m *MemoryStore) MarkDone(_ context.Context, runID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.deliveries {
		if d.RunID != nil && *d.RunID == runID {
			d.Status = pipeline.DeliveryDone
		}
	}
	return nil
}

func (m *MemoryStore) Unfinished(_ context.Context) ([]*pipeline.PipelineRun, error) {
	if m.sink == nil {
		return nil, nil
	}
	var out []*pipeline.PipelineRun
	for _, r := range m.sink.Runs() {
		if !r.Terminal() {
			out = append(out, r)
		}
	}
	return out, nil
}

// Deliveries returns a snapshot, in sequence order.
func (m *MemoryStore) Deliveries() []pipeline.Delivery {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]pipeline.Delivery, 0, len(m.deliveries))
	for _, d := range m.deliveries {
		out = append(out, *d)
	}
	return out
}

func (m *MemoryStore) Event(id uuid.UUID) (*pipeline.Event, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[id]
	if !ok {
		return nil, false
	}
	cp := *ev
	return &cp, true
}
