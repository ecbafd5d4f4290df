package orchestrator

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/hypermind-backend/internal/domain/pipeline"
)

// MemoryStore keeps runs and step records in process. It backs tests and
// the CLI's --memory mode.
type MemoryStore struct {
	mu    sync.Mutex
	runs  map[uuid.UUID]*pipeline.PipelineRun
	steps map[uuid.UUID]map[string]*pipeline.StepRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs:  map[uuid.UUID]*pipeline.PipelineRun{},
		steps: map[uuid.UUID]map[string]*pipeline.StepRecord{},
	}
}

func (m *MemoryStore) PutRun(run *pipeline.PipelineRun) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *run
	m.runs[run.ID] = &cp
}

func (m *MemoryStore) GetRun(_ context.Context, id uuid.UUID) (*pipeline.PipelineRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) Runs() []*pipeline.PipelineRun {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*pipeline.PipelineRun, 0, len(m.runs))
	for _, r := range m.runs {
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (m *MemoryStore) TransitionRun(_ context.Context, id uuid.UUID, t RunTransition) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return false, ErrRunNotFound
	}
	if !statusIn(r.Status, t.From) {
		return false, nil
	}
	r.Status = t.To
	if t.Output != nil {
		r.Output = t.Output
	}
	if t.ErrorKind != "" || t.Error != "" {
		r.ErrorKind, r.Error = t.ErrorKind, t.Error
	}
	if t.StartedAt != nil {
		r.StartedAt = t.StartedAt
	}
	if t.CompletedAt != nil {
		r.CompletedAt = t.CompletedAt
	}
	r.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (m *MemoryStore) ListSteps(_ context.Context, runID uuid.UUID) ([]*pipeline.StepRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*pipeline.StepRecord, 0, len(m.steps[runID]))
	for _, rec := range m.steps[runID] {
		cp := *rec
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StepIndex < out[j].StepIndex })
	return out, nil
}

func (m *MemoryStore) GetStep(_ context.Context, runID uuid.UUID, stepName string) (*pipeline.StepRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.steps[runID][stepName]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (m *MemoryStore) ClaimStep(_ context.Context, c StepClaim) (*pipeline.StepRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byName := m.steps[c.RunID]
	if byName == nil {
		byName = map[string]*pipeline.StepRecord{}
		m.steps[c.RunID] = byName
	}
	rec, ok := byName[c.StepName]
	if !ok {
		until := c.Until
		rec = &pipeline.StepRecord{
			ID:         uuid.New(),
			RunID:      c.RunID,
			StepName:   c.StepName,
			StepIndex:  c.StepIndex,
			Status:     pipeline.StepPending,
			Owner:      c.Owner,
			LeaseUntil: &until,
			CreatedAt:  c.Now,
			UpdatedAt:  c.Now,
		}
		byName[c.StepName] = rec
		cp := *rec
		return &cp, nil
	}
	switch {
	case rec.Status != pipeline.StepPending:
	case claimable(rec, c.Owner, c.Now):
		until := c.Until
		rec.Owner = c.Owner
		rec.LeaseUntil = &until
		rec.UpdatedAt = c.Now
	default:
		return nil, ErrStepHeld
	}
	cp := *rec
	return &cp, nil
}

func (m *MemoryStore) RecordAttempt(_ context.Context, in *pipeline.StepRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.steps[in.RunID][in.StepName]
	if !ok || rec.Status != pipeline.StepPending || rec.Owner != in.Owner {
		return ErrStepHeld
	}
	rec.Attempts = in.Attempts
	rec.StartedAt = in.StartedAt
	rec.ErrorKind = in.ErrorKind
	rec.ErrorMessage = in.ErrorMessage
	rec.LeaseUntil = in.LeaseUntil
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryStore) CompleteStep(_ context.Context, in *pipeline.StepRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.steps[in.RunID][in.StepName]
	if !ok || rec.Status != pipeline.StepPending || rec.Owner != in.Owner {
		return false, nil
	}
	rec.Status = pipeline.StepSucceeded
	rec.Attempts = in.Attempts
	rec.Output = in.Output
	rec.ErrorKind, rec.ErrorMessage = "", ""
	rec.StartedAt = in.StartedAt
	rec.FinishedAt = in.FinishedAt
	rec.LeaseUntil = nil
	rec.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (m *MemoryStore) FailStep(_ context.Context, in *pipeline.StepRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.steps[in.RunID][in.StepName]
	if !ok || rec.Status != pipeline.StepPending || rec.Owner != in.Owner {
		return nil
	}
	rec.Status = pipeline.StepFailed
	rec.Attempts = in.Attempts
	rec.ErrorKind, rec.ErrorMessage = in.ErrorKind, in.ErrorMessage
	rec.FinishedAt = in.FinishedAt
	rec.LeaseUntil = nil
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

func statusIn(s string, set []string) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}
