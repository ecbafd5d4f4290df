package orchestrator

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/hypermind-backend/internal/data/repos/pipelines"
	"github.com/yungbote/hypermind-backend/internal/domain/pipeline"
	"github.com/yungbote/hypermind-backend/internal/platform/dbctx"
	"github.com/yungbote/hypermind-backend/internal/platform/logger"
)

// GormStore persists runs and step records through the pipeline repos.
type GormStore struct {
	runs  pipelines.RunRepo
	steps pipelines.StepRepo
}

func NewGormStore(db *gorm.DB, log *logger.Logger) *GormStore {
	return &GormStore{
		runs:  pipelines.NewRunRepo(db, log),
		steps: pipelines.NewStepRepo(db, log),
	}
}

func (s *GormStore) GetRun(ctx context.Context, id uuid.UUID) (*pipeline.PipelineRun, error) {
	run, err := s.runs.GetByID(dbctx.Context{Ctx: ctx}, id)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, ErrRunNotFound
	}
	return run, nil
}

func (s *GormStore) TransitionRun(ctx context.Context, id uuid.UUID, t RunTransition) (bool, error) {
	updates := map[string]interface{}{"status": t.To}
	if t.Output != nil {
		updates["output"] = t.Output
	}
	if t.ErrorKind != "" || t.Error != "" {
		updates["error_kind"] = t.ErrorKind
		updates["error"] = t.Error
	}
	if t.StartedAt != nil {
		updates["started_at"] = *t.StartedAt
	}
	if t.CompletedAt != nil {
		updates["completed_at"] = *t.CompletedAt
	}
	return s.runs.UpdateFieldsIfStatus(dbctx.Context{Ctx: ctx}, id, t.From, updates)
}

func (s *GormStore) ListSteps(ctx context.Context, runID uuid.UUID) ([]*pipeline.StepRecord, error) {
	return s.steps.ListByRun(dbctx.Context{Ctx: ctx}, runID)
}

func (s *GormStore) GetStep(ctx context.Context, runID uuid.UUID, stepName string) (*pipeline.StepRecord, error) {
	return s.steps.Get(dbctx.Context{Ctx: ctx}, runID, stepName)
}

func (s *GormStore) ClaimStep(ctx context.Context, c StepClaim) (*pipeline.StepRecord, error) {
	rec, held, err := s.steps.Claim(dbctx.Context{Ctx: ctx}, pipelines.StepClaim{
		RunID:     c.RunID,
		StepName:  c.StepName,
		StepIndex: c.StepIndex,
		Owner:     c.Owner,
		Until:     c.Until,
		Now:       c.Now,
	})
	if err != nil {
		return nil, err
	}
	if held {
		return nil, ErrStepHeld
	}
	return rec, nil
}

func (s *GormStore) RecordAttempt(ctx context.Context, rec *pipeline.StepRecord) error {
	ok, err := s.steps.SaveAttempt(dbctx.Context{Ctx: ctx}, rec)
	if err != nil {
		return err
	}
	if !ok {
		return ErrStepHeld
	}
	return nil
}

func (s *GormStore) CompleteStep(ctx context.Context, rec *pipeline.StepRecord) (bool, error) {
	return s.steps.Complete(dbctx.Context{Ctx: ctx}, rec)
}

func (s *GormStore) FailStep(ctx context.Context, rec *pipeline.StepRecord) error {
	return s.steps.Fail(dbctx.Context{Ctx: ctx}, rec)
}
