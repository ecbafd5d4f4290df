package pipelines

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/hypermind-backend/internal/domain"
	"github.com/yungbote/hypermind-backend/internal/domain/pipeline"
	"github.com/yungbote/hypermind-backend/internal/platform/dbctx"
	"github.com/yungbote/hypermind-backend/internal/platform/logger"
)

type RunFilter struct {
	PipelineID string
	Status     string
	Limit      int
}

type RunRepo interface {
	Create(dbc dbctx.Context, run *types.PipelineRun) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.PipelineRun, error)
	ListByEvent(dbc dbctx.Context, eventID uuid.UUID) ([]*types.PipelineRun, error)
	List(dbc dbctx.Context, f RunFilter) ([]*types.PipelineRun, error)
	// ListUnfinished returns pending and running runs, oldest first.
	ListUnfinished(dbc dbctx.Context) ([]*types.PipelineRun, error)
	// CountActive counts pending and running runs per pipeline, limited to
	// pipelineIDs when any are given.
	CountActive(dbc dbctx.Context, pipelineIDs ...string) (map[string]int, error)
	// UpdateFieldsIfStatus applies updates only while the run's status is
	// one of allowed and reports whether a row changed.
	UpdateFieldsIfStatus(dbc dbctx.Context, id uuid.UUID, allowed []string, updates map[string]interface{}) (bool, error)
}

type runRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRunRepo(db *gorm.DB, baseLog *logger.Logger) RunRepo {
	return &runRepo{
		db:  db,
		log: baseLog.With("repo", "RunRepo"),
	}
}

func (r *runRepo) Create(dbc dbctx.Context, run *types.PipelineRun) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	now := time.Now().UTC()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	if run.UpdatedAt.IsZero() {
		run.UpdatedAt = now
	}
	if run.Status == "" {
		run.Status = pipeline.RunPending
	}
	return dbc.Conn(r.db).Create(run).Error
}

func (r *runRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.PipelineRun, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var run types.PipelineRun
	if err := dbc.Conn(r.db).Where("id = ?", id).Limit(1).Find(&run).Error; err != nil {
		return nil, err
	}
	if run.ID == uuid.Nil {
		return nil, nil
	}
	return &run, nil
}

func (r *runRepo) ListByEvent(dbc dbctx.Context, eventID uuid.UUID) ([]*types.PipelineRun, error) {
	var out []*types.PipelineRun
	if eventID == uuid.Nil {
		return out, nil
	}
	if err := dbc.Conn(r.db).Where("event_id = ?", eventID).Order("created_at ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *runRepo) List(dbc dbctx.Context, f RunFilter) ([]*types.PipelineRun, error) {
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	q := dbc.Conn(r.db).Order("created_at DESC").Limit(limit)
	if f.PipelineID != "" {
		q = q.Where("pipeline_id = ?", f.PipelineID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	var out []*types.PipelineRun
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *runRepo) ListUnfinished(dbc dbctx.Context) ([]*types.PipelineRun, error) {
	var out []*types.PipelineRun
	err := dbc.Conn(r.db).
		Where("status IN ?", []string{pipeline.RunPending, pipeline.RunRunning}).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *runRepo) CountActive(dbc dbctx.Context, pipelineIDs ...string) (map[string]int, error) {
	var rows []struct {
		PipelineID string
		N          int
	}
	q := dbc.Conn(r.db).
		Model(&types.PipelineRun{}).
		Select("pipeline_id, COUNT(*) AS n").
		Where("status IN ?", []string{pipeline.RunPending, pipeline.RunRunning})
	if len(pipelineIDs) > 0 {
		q = q.Where("pipeline_id IN ?", pipelineIDs)
	}
	err := q.Group("pipeline_id").Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(rows))
	for _, row := range rows {
		out[row.PipelineID] = row.N
	}
	return out, nil
}

func (r *runRepo) UpdateFieldsIfStatus(dbc dbctx.Context, id uuid.UUID, allowed []string, updates map[string]interface{}) (bool, error) {
	if id == uuid.Nil {
		return false, nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	q := dbc.Conn(r.db).
		Model(&types.PipelineRun{}).
		Where("id = ?", id)
	if len(allowed) == 1 {
		q = q.Where("status = ?", allowed[0])
	} else if len(allowed) > 1 {
		q = q.Where("status IN ?", allowed)
	}
	res := q.Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
