package pipelines

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/hypermind-backend/internal/domain"
	"github.com/yungbote/hypermind-backend/internal/domain/pipeline"
	"github.com/yungbote/hypermind-backend/internal/platform/dbctx"
	"github.com/yungbote/hypermind-backend/internal/platform/logger"
)

type StepClaim struct {
	RunID     uuid.UUID
	StepName  string
	StepIndex int
	Owner     string
	Until     time.Time
	Now       time.Time
}

type StepRepo interface {
	ListByRun(dbc dbctx.Context, runID uuid.UUID) ([]*types.StepRecord, error)
	Get(dbc dbctx.Context, runID uuid.UUID, stepName string) (*types.StepRecord, error)
	// Claim inserts the record or takes over a pending one whose lease has
	// lapsed or that c.Owner already holds. held is true when a live lease
	// belongs to someone else.
	Claim(dbc dbctx.Context, c StepClaim) (rec *types.StepRecord, held bool, err error)
	// SaveAttempt updates attempt bookkeeping while the caller still owns the
	// pending record.
	SaveAttempt(dbc dbctx.Context, rec *types.StepRecord) (bool, error)
	// Complete marks the step succeeded while it is still pending and held
	// by rec.Owner. A lost lease or a terminal record makes it a no-op.
	Complete(dbc dbctx.Context, rec *types.StepRecord) (bool, error)
	// Fail has the same ownership guard as Complete.
	Fail(dbc dbctx.Context, rec *types.StepRecord) error
}

type stepRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewStepRepo(db *gorm.DB, baseLog *logger.Logger) StepRepo {
	return &stepRepo{
		db:  db,
		log: baseLog.With("repo", "StepRepo"),
	}
}

func (r *stepRepo) ListByRun(dbc dbctx.Context, runID uuid.UUID) ([]*types.StepRecord, error) {
	var out []*types.StepRecord
	if runID == uuid.Nil {
		return out, nil
	}
	if err := dbc.Conn(r.db).Where("run_id = ?", runID).Order("step_index ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *stepRepo) Get(dbc dbctx.Context, runID uuid.UUID, stepName string) (*types.StepRecord, error) {
	var rec types.StepRecord
	err := dbc.Conn(r.db).
		Where("run_id = ? AND step_name = ?", runID, stepName).
		Limit(1).
		Find(&rec).Error
	if err != nil {
		return nil, err
	}
	if rec.ID == uuid.Nil {
		return nil, nil
	}
	return &rec, nil
}

func (r *stepRepo) Claim(dbc dbctx.Context, c StepClaim) (*types.StepRecord, bool, error) {
	var (
		claimed *types.StepRecord
		held    bool
	)
	err := dbc.Conn(r.db).Transaction(func(txx *gorm.DB) error {
		until := c.Until
		fresh := &types.StepRecord{
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
		ins := txx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "run_id"}, {Name: "step_name"}},
			DoNothing: true,
		}).Create(fresh)
		if ins.Error != nil {
			return ins.Error
		}
		if ins.RowsAffected == 1 {
			claimed = fresh
			return nil
		}

		upd := txx.Model(&types.StepRecord{}).
			Where("run_id = ? AND step_name = ? AND status = ?", c.RunID, c.StepName, pipeline.StepPending).
			Where("(owner = ? OR owner = '' OR owner IS NULL OR lease_until IS NULL OR lease_until < ?)", c.Owner, c.Now).
			Updates(map[string]interface{}{
				"owner":       c.Owner,
				"lease_until": until,
				"updated_at":  c.Now,
			})
		if upd.Error != nil {
			return upd.Error
		}
		var cur types.StepRecord
		if err := txx.Where("run_id = ? AND step_name = ?", c.RunID, c.StepName).First(&cur).Error; err != nil {
			return err
		}
		if upd.RowsAffected == 0 && cur.Status == pipeline.StepPending {
			held = true
			return nil
		}
		claimed = &cur
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return claimed, held, nil
}

func (r *stepRepo) SaveAttempt(dbc dbctx.Context, rec *types.StepRecord) (bool, error) {
	res := dbc.Conn(r.db).
		Model(&types.StepRecord{}).
		Where("run_id = ? AND step_name = ? AND status = ? AND owner = ?", rec.RunID, rec.StepName, pipeline.StepPending, rec.Owner).
		Updates(map[string]interface{}{
			"attempts":      rec.Attempts,
			"started_at":    rec.StartedAt,
			"error_kind":    rec.ErrorKind,
			"error_message": rec.ErrorMessage,
			"lease_until":   rec.LeaseUntil,
			"updated_at":    time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *stepRepo) Complete(dbc dbctx.Context, rec *types.StepRecord) (bool, error) {
	res := dbc.Conn(r.db).
		Model(&types.StepRecord{}).
		Where("run_id = ? AND step_name = ? AND status = ? AND owner = ?", rec.RunID, rec.StepName, pipeline.StepPending, rec.Owner).
		Updates(map[string]interface{}{
			"status":        pipeline.StepSucceeded,
			"attempts":      rec.Attempts,
			"output":        rec.Output,
			"error_kind":    "",
			"error_message": "",
			"started_at":    rec.StartedAt,
			"finished_at":   rec.FinishedAt,
			"lease_until":   nil,
			"updated_at":    time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *stepRepo) Fail(dbc dbctx.Context, rec *types.StepRecord) error {
	return dbc.Conn(r.db).
		Model(&types.StepRecord{}).
		Where("run_id = ? AND step_name = ? AND status = ? AND owner = ?", rec.RunID, rec.StepName, pipeline.StepPending, rec.Owner).
		Updates(map[string]interface{}{
			"status":        pipeline.StepFailed,
			"attempts":      rec.Attempts,
			"error_kind":    rec.ErrorKind,
			"error_message": rec.ErrorMessage,
			"finished_at":   rec.FinishedAt,
			"lease_until":   nil,
			"updated_at":    time.Now().UTC(),
		}).Error
}
