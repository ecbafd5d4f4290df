package eventbus

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/hypermind-backend/internal/data/repos/pipelines"
	"github.com/yungbote/hypermind-backend/internal/domain/pipeline"
	"github.com/yungbote/hypermind-backend/internal/platform/dbctx"
	"github.com/yungbote/hypermind-backend/internal/platform/logger"
)

// GormStore is the database-backed EventStore and Queue.
type GormStore struct {
	events     pipelines.EventRepo
	deliveries pipelines.DeliveryRepo
	runs       pipelines.RunRepo
}

func NewGormStore(db *gorm.DB, log *logger.Logger) *GormStore {
	return &GormStore{
		events:     pipelines.NewEventRepo(db, log),
		deliveries: pipelines.NewDeliveryRepo(db, log),
		runs:       pipelines.NewRunRepo(db, log),
	}
}

func (s *GormStore) Append(ctx context.Context, ev *pipeline.Event, pipelineIDs []string) error {
	_, err := s.events.CreateWithDeliveries(dbctx.Context{Ctx: ctx}, ev, pipelineIDs)
	return err
}

func (s *GormStore) AdmitNext(ctx context.Context, pipelineID string, limit int) (*pipeline.PipelineRun, error) {
	return s.deliveries.AdmitNext(dbctx.Context{Ctx: ctx}, pipelineID, limit, func(ev *pipeline.Event, d *pipeline.Delivery) *pipeline.PipelineRun {
		run := newRun(ev, d.PipelineID)
		run.CreatedAt = time.Now().UTC()
		run.UpdatedAt = run.CreatedAt
		return run
	})
}

func (s *GormStore) MarkDone(ctx context.Context, runID uuid.UUID) error {
	return s.deliveries.MarkDone(dbctx.Context{Ctx: ctx}, runID)
}

func (s *GormStore) Unfinished(ctx context.Context) ([]*pipeline.PipelineRun, error) {
	return s.runs.ListUnfinished(dbctx.Context{Ctx: ctx})
}
