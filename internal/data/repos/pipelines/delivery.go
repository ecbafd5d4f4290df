package pipelines

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/hypermind-backend/internal/domain"
	"github.com/yungbote/hypermind-backend/internal/domain/pipeline"
	"github.com/yungbote/hypermind-backend/internal/platform/dbctx"
	"github.com/yungbote/hypermind-backend/internal/platform/logger"
)

// RunFactory builds the run for an admitted delivery.
type RunFactory func(ev *types.Event, d *types.Delivery) *types.PipelineRun

type DeliveryRepo interface {
	// AdmitNext takes the oldest queued delivery of pipelineID, creates its
	// run and marks the delivery admitted, all in one transaction. With
	// limit > 0 nothing is admitted while the pipeline already has limit
	// pending or running runs. It returns nil when nothing is admitted.
	AdmitNext(dbc dbctx.Context, pipelineID string, limit int, newRun RunFactory) (*types.PipelineRun, error)
	MarkDone(dbc dbctx.Context, runID uuid.UUID) error
	ListByEvent(dbc dbctx.Context, eventID uuid.UUID) ([]*types.Delivery, error)
	QueuedPipelines(dbc dbctx.Context) ([]string, error)
	CountQueued(dbc dbctx.Context, pipelineID string) (int64, error)
}

type deliveryRepo struct {
	db   *gorm.DB
	log  *logger.Logger
	runs RunRepo
}

func NewDeliveryRepo(db *gorm.DB, baseLog *logger.Logger) DeliveryRepo {
	return &deliveryRepo{
		db:   db,
		log:  baseLog.With("repo", "DeliveryRepo"),
		runs: NewRunRepo(db, baseLog),
	}
}

func (r *deliveryRepo) AdmitNext(dbc dbctx.Context, pipelineID string, limit int, newRun RunFactory) (*types.PipelineRun, error) {
	if pipelineID == "" || newRun == nil {
		return nil, nil
	}
	now := time.Now().UTC()
	var admitted *types.PipelineRun
	err := dbc.Conn(r.db).Transaction(func(txx *gorm.DB) error {
		if limit > 0 {
			// Serializes admission per pipeline across processes until commit.
			// SQLite already allows a single writer.
			if txx.Dialector.Name() == "postgres" {
				if err := txx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", pipelineID).Error; err != nil {
					return err
				}
			}
			active, err := r.runs.CountActive(dbctx.Context{Ctx: dbc.Ctx, Tx: txx}, pipelineID)
			if err != nil {
				return err
			}
			if active[pipelineID] >= limit {
				return nil
			}
		}
		var d types.Delivery
		qErr := txx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("pipeline_id = ? AND status = ?", pipelineID, pipeline.DeliveryQueued).
			Order("id ASC").
			First(&d).Error
		if errors.Is(qErr, gorm.ErrRecordNotFound) {
			return nil
		}
		if qErr != nil {
			return qErr
		}
		var ev types.Event
		if err := txx.Where("id = ?", d.EventID).First(&ev).Error; err != nil {
			return err
		}
		run := newRun(&ev, &d)
		if run == nil {
			return nil
		}
		if err := txx.Create(run).Error; err != nil {
			return err
		}
		res := txx.Model(&types.Delivery{}).
			Where("id = ? AND status = ?", d.ID, pipeline.DeliveryQueued).
			Updates(map[string]interface{}{
				"status":     pipeline.DeliveryAdmitted,
				"run_id":     run.ID,
				"updated_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Admitted concurrently; undo the run insert.
			return errDeliveryTaken
		}
		admitted = run
		return nil
	})
	if errors.Is(err, errDeliveryTaken) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return admitted, nil
}

var errDeliveryTaken = errors.New("delivery already admitted")

func (r *deliveryRepo) MarkDone(dbc dbctx.Context, runID uuid.UUID) error {
	if runID == uuid.Nil {
		return nil
	}
	return dbc.Conn(r.db).
		Model(&types.Delivery{}).
		Where("run_id = ?", runID).
		Updates(map[string]interface{}{
			"status":     pipeline.DeliveryDone,
			"updated_at": time.Now().UTC(),
		}).Error
}

func (r *deliveryRepo) ListByEvent(dbc dbctx.Context, eventID uuid.UUID) ([]*types.Delivery, error) {
	var out []*types.Delivery
	if eventID == uuid.Nil {
		return out, nil
	}
	if err := dbc.Conn(r.db).Where("event_id = ?", eventID).Order("id ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *deliveryRepo) QueuedPipelines(dbc dbctx.Context) ([]string, error) {
	var out []string
	err := dbc.Conn(r.db).
		Model(&types.Delivery{}).
		Where("status = ?", pipeline.DeliveryQueued).
		Distinct().
		Pluck("pipeline_id", &out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *deliveryRepo) CountQueued(dbc dbctx.Context, pipelineID string) (int64, error) {
	var n int64
	err := dbc.Conn(r.db).
		Model(&types.Delivery{}).
		Where("pipeline_id = ? AND status = ?", pipelineID, pipeline.DeliveryQueued).
		Count(&n).Error
	return n, err
}
